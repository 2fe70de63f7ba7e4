package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"macd-sentry/pkg/types"
)

func testSignal(direction types.Direction) *types.Signal {
	return &types.Signal{
		Time:          time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		IndicatorName: types.IndicatorMACD,
		Direction:     direction,
		EntryPrice:    decimal.RequireFromString("100.5"),
		StopLoss:      decimal.RequireFromString("98.49"),
		TakeProfit1:   decimal.RequireFromString("101.51"),
		TakeProfit2:   decimal.RequireFromString("102.51"),
		TakeProfit3:   decimal.RequireFromString("103.52"),
		Symbol:        "BTC-USDT",
		Timeframe:     "1H",
		PricePlaces:   2,
	}
}

func TestFormatMessage(t *testing.T) {
	msg := FormatMessage(testSignal(types.DirectionBuy))
	lines := strings.Split(msg, "\n")
	require.Len(t, lines, 7)

	assert.Equal(t, "🚀 OKX MACD信号: #BTC-USDT", lines[0])
	assert.Equal(t, "📈 买入 @ 100.5", lines[1])
	assert.Equal(t, "止损(SL): 98.49", lines[2])
	assert.Equal(t, "止盈1(TP1): 101.51", lines[3])
	assert.Equal(t, "止盈2(TP2): 102.51", lines[4])
	assert.Equal(t, "止盈3(TP3): 103.52", lines[5])
	assert.Equal(t, "⏰ 1H | 2024-05-01T08:00:00Z", lines[6])
}

func TestFormatMessage_KeepsTrailingZeros(t *testing.T) {
	signal := testSignal(types.DirectionSell)
	signal.EntryPrice = decimal.RequireFromString("100")
	signal.StopLoss = decimal.RequireFromString("102")
	signal.TakeProfit1 = decimal.RequireFromString("99")
	signal.TakeProfit2 = decimal.RequireFromString("98.5")
	signal.TakeProfit3 = decimal.RequireFromString("97.00")

	lines := strings.Split(FormatMessage(signal), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "📉 卖出 @ 100", lines[1])
	assert.Equal(t, "止损(SL): 102.00", lines[2])
	assert.Equal(t, "止盈1(TP1): 99.00", lines[3])
	assert.Equal(t, "止盈2(TP2): 98.50", lines[4])
	assert.Equal(t, "止盈3(TP3): 97.00", lines[5])

	signal.PricePlaces = 0
	assert.Contains(t, FormatMessage(signal), "止损(SL): 102\n")

	sell := FormatMessage(testSignal(types.DirectionSell))
	assert.Contains(t, sell, "📉 卖出 @ 100.5")
}

func TestConsoleNotifier(t *testing.T) {
	var buf bytes.Buffer
	cn := &ConsoleNotifier{out: &buf}

	require.NoError(t, cn.SendSignal(context.Background(), testSignal(types.DirectionBuy), "charts/a.png"))
	out := buf.String()
	assert.Contains(t, out, "╔")
	assert.Contains(t, out, "#BTC-USDT")
	assert.Contains(t, out, "charts/a.png")
	assert.Equal(t, 0, safePadding(strings.Repeat("x", 100), boxWidth))
}

type recordingNotifier struct {
	name string
	err  error

	mu    sync.Mutex
	calls int
	image string
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) SendSignal(_ context.Context, _ *types.Signal, imagePath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.image = imagePath
	return r.err
}

func TestMulti_FanOutAndAggregate(t *testing.T) {
	ok := &recordingNotifier{name: "ok"}
	bad1 := &recordingNotifier{name: "bad1", err: errors.New("boom")}
	bad2 := &recordingNotifier{name: "bad2", err: errors.New("bang")}
	fallback := &recordingNotifier{name: "fallback"}

	m := NewMulti(bad1, ok, bad2)
	m.fallback = fallback

	err := m.SendSignal(context.Background(), testSignal(types.DirectionBuy), "x.png")
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Contains(t, err.Error(), "bad1")
	assert.Contains(t, err.Error(), "bang")

	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, "x.png", ok.image)
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, "bad1,ok,bad2", m.Name())
}

func TestMulti_NoFallbackOnSuccess(t *testing.T) {
	ok := &recordingNotifier{name: "ok"}
	fallback := &recordingNotifier{name: "fallback"}
	m := NewMulti(ok)
	m.fallback = fallback

	require.NoError(t, m.SendSignal(context.Background(), testSignal(types.DirectionSell), ""))
	assert.Equal(t, 0, fallback.calls)
}

func TestNew_SelectsConfiguredChannels(t *testing.T) {
	m, err := New(&types.Config{}, nil)
	require.NoError(t, err)
	require.Len(t, m.Notifiers(), 1)
	assert.Equal(t, "console", m.Notifiers()[0].Name())

	m, err = New(&types.Config{
		Telegram: types.TelegramConfig{BotToken: "123:abc", ChatID: 42},
		Slack:    types.SlackConfig{Token: "xoxb", Channel: "#signals"},
		DingTalk: types.DingTalkConfig{WebhookURL: "https://oapi.dingtalk.com/robot/send?access_token=x"},
		PushPlus: types.PushPlusConfig{UserToken: "token"},
	}, http.DefaultClient)
	require.NoError(t, err)
	assert.Equal(t, "telegram,slack,dingtalk,pushplus", m.Name())
}

func TestTelegramNotifier(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		forms []map[string]string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fields := map[string]string{}
		mediaType, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		switch {
		case strings.HasPrefix(mediaType, "multipart/"):
			reader := multipart.NewReader(r.Body, params["boundary"])
			for {
				part, err := reader.NextPart()
				if err != nil {
					break
				}
				data, _ := io.ReadAll(part)
				fields[part.FormName()] = string(data)
			}
		case mediaType == "application/json":
			var body map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			for k, v := range body {
				if s, ok := v.(string); ok {
					fields[k] = s
				}
			}
		}

		mu.Lock()
		paths = append(paths, r.URL.Path)
		forms = append(forms, fields)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":1700000000,"chat":{"id":42,"type":"private"},"caption":"c","photo":[{"file_id":"f1","file_unique_id":"u1","width":10,"height":10,"file_size":100}]}}`))
	}))
	defer srv.Close()

	tn, err := NewTelegramNotifier(types.TelegramConfig{BotToken: "123:abc", ChatID: 42, APIURL: srv.URL}, srv.Client())
	require.NoError(t, err)

	signal := testSignal(types.DirectionBuy)
	require.NoError(t, tn.SendSignal(context.Background(), signal, ""))

	image := filepath.Join(t.TempDir(), "chart.png")
	require.NoError(t, os.WriteFile(image, []byte("\x89PNG\r\n"), 0o644))
	require.NoError(t, tn.SendSignal(context.Background(), signal, image))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, paths, 2)
	assert.Equal(t, "/bot123:abc/sendMessage", paths[0])
	assert.Equal(t, "42", forms[0]["chat_id"])
	assert.Equal(t, FormatMessage(signal), forms[0]["text"])

	assert.Equal(t, "/bot123:abc/sendPhoto", paths[1])
	assert.Equal(t, "42", forms[1]["chat_id"])
	assert.Equal(t, FormatMessage(signal), forms[1]["caption"])
	// 图片以multipart文件上传，内容即PNG原始字节
	assert.Equal(t, "\x89PNG\r\n", forms[1]["photo"])
}

func TestTelegramNotifier_CancelledContext(t *testing.T) {
	tn, err := NewTelegramNotifier(types.TelegramConfig{BotToken: "123:abc", ChatID: 42, APIURL: "http://127.0.0.1:1"}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, tn.SendSignal(ctx, testSignal(types.DirectionBuy), ""), context.Canceled)
}

func TestSlackNotifier(t *testing.T) {
	var form map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat.postMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1700000000.000100"}`))
	}))
	defer srv.Close()

	sn := NewSlackNotifier(types.SlackConfig{Token: "xoxb-test", Channel: "C123"}, srv.Client(), slack.OptionAPIURL(srv.URL+"/"))
	require.NoError(t, sn.SendSignal(context.Background(), testSignal(types.DirectionSell), "charts/MACD_plot.png"))

	require.NotNil(t, form)
	assert.Equal(t, "C123", form["channel"][0])
	assert.Contains(t, form["text"][0], "BTC-USDT")

	var attachments []slack.Attachment
	require.NoError(t, json.Unmarshal([]byte(form["attachments"][0]), &attachments))
	require.Len(t, attachments, 1)
	assert.Equal(t, "#FF4444", attachments[0].Color)
	assert.Equal(t, "chart: MACD_plot.png", attachments[0].Footer)
	assert.Equal(t, "98.49", attachments[0].Fields[1].Value)
}

func TestSlackNotifier_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer srv.Close()

	sn := NewSlackNotifier(types.SlackConfig{Token: "xoxb-test", Channel: "nope"}, srv.Client(), slack.OptionAPIURL(srv.URL+"/"))
	err := sn.SendSignal(context.Background(), testSignal(types.DirectionBuy), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
}

func TestDingTalkNotifier(t *testing.T) {
	fixed := time.UnixMilli(1700000000123)
	var (
		query url.Values
		msg   DingTalkMessage
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	dtn := NewDingTalkNotifier(srv.URL+"/robot/send?access_token=abc", "SECxyz", srv.Client())
	dtn.now = func() time.Time { return fixed }

	require.NoError(t, dtn.SendSignal(context.Background(), testSignal(types.DirectionBuy), "ignored.png"))

	assert.Equal(t, "abc", query.Get("access_token"))
	assert.Equal(t, "1700000000123", query.Get("timestamp"))

	mac := hmac.New(sha256.New, []byte("SECxyz"))
	mac.Write([]byte("1700000000123\nSECxyz"))
	assert.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), query.Get("sign"))

	assert.Equal(t, "markdown", msg.MsgType)
	require.NotNil(t, msg.Markdown)
	assert.Contains(t, msg.Markdown.Title, "BTC-USDT")
	assert.Contains(t, msg.Markdown.Text, "**止损(SL)**: 98.49")
	assert.Contains(t, msg.Markdown.Text, `<font color="green">买入</font>`)
}

func TestDingTalkNotifier_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("sign"))
		_, _ = w.Write([]byte(`{"errcode":310000,"errmsg":"sign not match"}`))
	}))
	defer srv.Close()

	dtn := NewDingTalkNotifier(srv.URL, "", srv.Client())
	err := dtn.SendSignal(context.Background(), testSignal(types.DirectionSell), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "310000")
}

func TestPushPlusNotifier(t *testing.T) {
	var req PushPlusRequest
	code := 200
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(PushPlusResponse{Code: code, Msg: "请求成功"})
	}))
	defer srv.Close()

	ppn := NewPushPlusNotifier("user-token", "friend-a,friend-b", srv.Client())
	ppn.endpoint = srv.URL

	require.NoError(t, ppn.SendSignal(context.Background(), testSignal(types.DirectionSell), ""))
	assert.Equal(t, "user-token", req.Token)
	assert.Equal(t, "friend-a,friend-b", req.To)
	assert.Equal(t, "html", req.Template)
	assert.Contains(t, req.Title, "卖出")
	assert.Contains(t, req.Content, "#FF4444")
	assert.Contains(t, req.Content, "103.52")

	code = 900
	assert.Error(t, ppn.SendSignal(context.Background(), testSignal(types.DirectionSell), ""))
}
