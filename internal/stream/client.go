package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"macd-sentry/internal/fetcher"
	"macd-sentry/pkg/types"
)

// Client 订阅OKX K线频道，在K线收盘时发出通知
type Client struct {
	endpoint string
	proxy    string
	symbol   string
	interval string
	config   types.WebSocketConfig

	closed     chan *types.KLine
	lastClosed int64

	mu        sync.RWMutex
	connected bool
}

// candleMessage OKX K线推送
type candleMessage struct {
	Event string `json:"event"`
	Code  string `json:"code"`
	Msg   string `json:"msg"`
	Arg   struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data [][]string `json:"data"`
}

type subscribeArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

// subscription OKX订阅消息
type subscription struct {
	Op   string         `json:"op"`
	Args []subscribeArg `json:"args"`
}

// NewClient 创建K线收盘订阅客户端
func NewClient(config types.WebSocketConfig, proxy, symbol, interval string) *Client {
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = 5 * time.Second
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 20 * time.Second
	}

	return &Client{
		endpoint: config.OKXEndpoint,
		proxy:    proxy,
		symbol:   symbol,
		interval: interval,
		config:   config,
		closed:   make(chan *types.KLine, 1),
	}
}

// Closed 已收盘K线通道
func (c *Client) Closed() <-chan *types.KLine {
	return c.closed
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Run 保持连接直到 ctx 取消，断线后按配置重连
//
// 超过最大重连次数时返回错误；MaxReconnectAttempts 为0表示不限次数。
func (c *Client) Run(ctx context.Context) error {
	attempts := 0
	for {
		subscribed, err := c.session(ctx)
		if ctx.Err() != nil {
			zap.L().Info("📴 WebSocket订阅已停止")
			return nil
		}
		if subscribed {
			attempts = 0
		}

		attempts++
		if c.config.MaxReconnectAttempts > 0 && attempts > c.config.MaxReconnectAttempts {
			return errors.Wrapf(err, "达到最大重连次数%d", c.config.MaxReconnectAttempts)
		}

		zap.L().Warn("⚠️ WebSocket连接断开，准备重连",
			zap.Error(err),
			zap.Int("attempt", attempts),
			zap.Duration("wait", c.config.ReconnectInterval))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.config.ReconnectInterval):
		}
	}
}

// session 建立一次连接并读取到断开为止，返回是否订阅成功
func (c *Client) session(ctx context.Context) (bool, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(messageType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(messageType, data)
	}

	sub, _ := json.Marshal(subscription{
		Op:   "subscribe",
		Args: []subscribeArg{{Channel: "candle" + c.interval, InstID: c.symbol}},
	})
	if err := write(websocket.TextMessage, sub); err != nil {
		return false, errors.Wrap(err, "发送订阅消息失败")
	}

	c.setConnected(true)
	defer c.setConnected(false)

	zap.L().Info("📊 已订阅K线数据",
		zap.String("symbol", c.symbol),
		zap.String("interval", c.interval))

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(c.config.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				// 关闭连接以打断阻塞的读取
				conn.Close()
				return
			case <-ticker.C:
				// OKX使用文本 ping/pong 心跳
				if err := write(websocket.TextMessage, []byte("ping")); err != nil {
					zap.L().Warn("⚠️ 发送心跳失败", zap.Error(err))
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return true, errors.Wrap(err, "WebSocket读取消息失败")
		}
		if string(message) == "pong" {
			continue
		}
		if err := c.handleMessage(message); err != nil {
			return true, err
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := *websocket.DefaultDialer
	if c.proxy != "" {
		proxyURL, err := url.Parse(c.proxy)
		if err != nil {
			return nil, fmt.Errorf("解析代理URL失败: %v", err)
		}
		dialer.Proxy = http.ProxyURL(proxyURL)
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("WebSocket连接失败: %v", err)
	}

	zap.L().Info("✅ WebSocket连接建立成功", zap.String("endpoint", c.endpoint))
	return conn, nil
}

// handleMessage 处理一条推送，只有订阅失败会返回错误
func (c *Client) handleMessage(message []byte) error {
	var msg candleMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		zap.L().Warn("⚠️ 解析推送消息失败", zap.Error(err))
		return nil
	}

	switch msg.Event {
	case "":
	case "error":
		return fmt.Errorf("订阅失败: code=%s, msg=%s", msg.Code, msg.Msg)
	default:
		zap.L().Debug("收到事件消息", zap.String("event", msg.Event))
		return nil
	}

	if msg.Arg.Channel != "candle"+c.interval || msg.Arg.InstID != c.symbol {
		return nil
	}

	for _, row := range msg.Data {
		kline, err := fetcher.ParseCandle(c.symbol, c.interval, row)
		if err != nil {
			zap.L().Warn("⚠️ 解析K线推送失败", zap.Error(err))
			continue
		}
		if !kline.Confirmed || kline.Timestamp <= c.lastClosed {
			continue
		}
		c.lastClosed = kline.Timestamp
		c.publish(kline)
	}
	return nil
}

// publish 只保留最新一根收盘K线，消费者来不及处理时丢弃旧的
func (c *Client) publish(kline *types.KLine) {
	for {
		select {
		case c.closed <- kline:
			zap.L().Debug("🕯️ K线收盘",
				zap.String("symbol", kline.Symbol),
				zap.Int64("ts", kline.Timestamp))
			return
		default:
		}
		select {
		case <-c.closed:
		default:
		}
	}
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
