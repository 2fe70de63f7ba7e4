package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"macd-sentry/pkg/types"
)

// Interface 通知接口
type Interface interface {
	// SendSignal 推送信号，imagePath 为空时只发送文字
	SendSignal(ctx context.Context, signal *types.Signal, imagePath string) error
	Name() string
}

// FormatMessage 生成信号的文字消息
func FormatMessage(signal *types.Signal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚀 OKX MACD信号: #%s\n", signal.Symbol)
	fmt.Fprintf(&b, "%s %s @ %s\n", directionEmoji(signal.Direction), directionText(signal.Direction), signal.EntryPrice.String())
	fmt.Fprintf(&b, "止损(SL): %s\n", signal.FormatLevel(signal.StopLoss))
	fmt.Fprintf(&b, "止盈1(TP1): %s\n", signal.FormatLevel(signal.TakeProfit1))
	fmt.Fprintf(&b, "止盈2(TP2): %s\n", signal.FormatLevel(signal.TakeProfit2))
	fmt.Fprintf(&b, "止盈3(TP3): %s\n", signal.FormatLevel(signal.TakeProfit3))
	fmt.Fprintf(&b, "⏰ %s | %s", signal.Timeframe, signal.Time.Format(time.RFC3339))
	return b.String()
}

// messageTitle 消息标题
func messageTitle(signal *types.Signal) string {
	return fmt.Sprintf("%s OKX MACD信号 - %s %s", directionEmoji(signal.Direction), signal.Symbol, directionText(signal.Direction))
}

func directionEmoji(direction types.Direction) string {
	switch direction {
	case types.DirectionBuy:
		return "📈"
	case types.DirectionSell:
		return "📉"
	default:
		return "ℹ️"
	}
}

func directionText(direction types.Direction) string {
	switch direction {
	case types.DirectionBuy:
		return "买入"
	case types.DirectionSell:
		return "卖出"
	default:
		return string(direction)
	}
}

// Multi 向所有已配置的渠道推送
//
// 任一渠道失败时打印到控制台兜底，错误合并返回。
type Multi struct {
	notifiers []Interface
	fallback  Interface
}

// NewMulti 创建组合通知器
func NewMulti(notifiers ...Interface) *Multi {
	return &Multi{
		notifiers: notifiers,
		fallback:  NewConsoleNotifier(),
	}
}

func (m *Multi) Name() string {
	names := make([]string, 0, len(m.notifiers))
	for _, n := range m.notifiers {
		names = append(names, n.Name())
	}
	return strings.Join(names, ",")
}

// Notifiers 已配置的渠道
func (m *Multi) Notifiers() []Interface {
	return m.notifiers
}

func (m *Multi) SendSignal(ctx context.Context, signal *types.Signal, imagePath string) error {
	var errs error
	for _, n := range m.notifiers {
		if err := n.SendSignal(ctx, signal, imagePath); err != nil {
			zap.L().Error("❌ 通知发送失败", zap.String("notifier", n.Name()), zap.Error(err))
			errs = multierr.Append(errs, errors.Wrap(err, n.Name()))
			continue
		}
		zap.L().Info("✅ 通知已发送",
			zap.String("notifier", n.Name()),
			zap.String("symbol", signal.Symbol),
			zap.String("direction", string(signal.Direction)))
	}

	if errs != nil && !m.hasConsole() {
		// 降级为控制台输出
		_ = m.fallback.SendSignal(ctx, signal, imagePath)
	}
	return errs
}

func (m *Multi) hasConsole() bool {
	for _, n := range m.notifiers {
		if _, ok := n.(*ConsoleNotifier); ok {
			return true
		}
	}
	return false
}

// New 根据配置创建通知器，未配置任何渠道时使用控制台输出
func New(cfg *types.Config, httpClient *http.Client) (*Multi, error) {
	var notifiers []Interface

	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != 0 {
		telegram, err := NewTelegramNotifier(cfg.Telegram, httpClient)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, telegram)
	}
	if cfg.Slack.Token != "" && cfg.Slack.Channel != "" {
		notifiers = append(notifiers, NewSlackNotifier(cfg.Slack, httpClient))
	}
	if cfg.DingTalk.WebhookURL != "" {
		notifiers = append(notifiers, NewDingTalkNotifier(cfg.DingTalk.WebhookURL, cfg.DingTalk.Secret, httpClient))
	}
	if cfg.PushPlus.UserToken != "" {
		notifiers = append(notifiers, NewPushPlusNotifier(cfg.PushPlus.UserToken, cfg.PushPlus.To, httpClient))
	}

	if len(notifiers) == 0 {
		zap.L().Info("🔧 未配置推送渠道，使用控制台输出模式")
		notifiers = append(notifiers, NewConsoleNotifier())
	}

	multi := NewMulti(notifiers...)
	zap.L().Info("✅ 已配置通知服务", zap.String("notifiers", multi.Name()))
	return multi, nil
}
