package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macd-sentry/pkg/types"
)

func candlePush(ts, close, confirm string) string {
	return `{"arg":{"channel":"candle1H","instId":"BTC-USDT"},"data":[["` + ts + `","100","110","90","` + close + `","1","1","1","` + confirm + `"]]}`
}

// newServer 依次推送每一批消息，批次之间等待 next
func newServer(t *testing.T, next <-chan struct{}, batches ...[]string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub subscription
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		assert.Equal(t, "subscribe", sub.Op)
		if assert.Len(t, sub.Args, 1) {
			assert.Equal(t, "candle1H", sub.Args[0].Channel)
			assert.Equal(t, "BTC-USDT", sub.Args[0].InstID)
		}

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"subscribe","arg":{"channel":"candle1H","instId":"BTC-USDT"}}`))
		for i, batch := range batches {
			if i > 0 {
				select {
				case <-next:
				case <-time.After(5 * time.Second):
					return
				}
			}
			for _, p := range batch {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(p))
			}
		}

		// 保持连接直到客户端关闭
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func receive(t *testing.T, c *Client) *types.KLine {
	t.Helper()
	select {
	case k := <-c.Closed():
		return k
	case <-time.After(2 * time.Second):
		t.Fatal("等待收盘K线超时")
		return nil
	}
}

func TestClient_EmitsClosedCandlesOnce(t *testing.T) {
	next := make(chan struct{})
	srv := newServer(t, next,
		[]string{
			candlePush("1700000000000", "101", "0"),
			candlePush("1700000000000", "102", "1"),
			candlePush("1700000000000", "102", "1"),
		},
		[]string{
			`{"arg":{"channel":"candle1H","instId":"ETH-USDT"},"data":[["1700003600000","1","1","1","1","1","1","1","1"]]}`,
			candlePush("1700003600000", "103", "0"),
			candlePush("1700003600000", "104", "1"),
		},
	)

	c := NewClient(types.WebSocketConfig{OKXEndpoint: wsURL(srv), PingInterval: time.Hour}, "", "BTC-USDT", "1H")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	first := receive(t, c)
	assert.Equal(t, int64(1700000000000), first.Timestamp)
	assert.Equal(t, 102.0, first.Close)
	assert.True(t, first.Confirmed)

	close(next)
	second := receive(t, c)
	assert.Equal(t, int64(1700003600000), second.Timestamp)
	assert.Equal(t, 104.0, second.Close)

	select {
	case k := <-c.Closed():
		t.Fatalf("不应收到重复K线: %+v", k)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run 未在取消后退出")
	}
	assert.False(t, c.IsConnected())
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	c := NewClient(types.WebSocketConfig{
		OKXEndpoint:          "ws://127.0.0.1:1/ws",
		ReconnectInterval:    time.Millisecond,
		MaxReconnectAttempts: 2,
	}, "", "BTC-USDT", "1H")

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "最大重连次数")
}

func TestClient_HandleMessage(t *testing.T) {
	c := NewClient(types.WebSocketConfig{}, "", "BTC-USDT", "1H")

	assert.Error(t, c.handleMessage([]byte(`{"event":"error","code":"60012","msg":"Invalid request"}`)))
	assert.NoError(t, c.handleMessage([]byte(`not json`)))
	assert.NoError(t, c.handleMessage([]byte(candlePush("1700000000000", "oops", "1"))))

	require.NoError(t, c.handleMessage([]byte(candlePush("1700000000000", "100", "1"))))
	require.NoError(t, c.handleMessage([]byte(candlePush("1700003600000", "101", "1"))))

	// 缓冲只保留最新一根
	k := <-c.Closed()
	assert.Equal(t, int64(1700003600000), k.Timestamp)
	select {
	case <-c.Closed():
		t.Fatal("旧K线应被丢弃")
	default:
	}
}
