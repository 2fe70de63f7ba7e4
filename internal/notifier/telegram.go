package notifier

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	tb "gopkg.in/tucnak/telebot.v2"

	"macd-sentry/pkg/types"
)

// TelegramNotifier Telegram机器人通知器
type TelegramNotifier struct {
	bot  *tb.Bot
	chat *tb.Chat
}

// NewTelegramNotifier 创建Telegram通知器，只用于发送，不拉取更新
func NewTelegramNotifier(cfg types.TelegramConfig, httpClient *http.Client) (*TelegramNotifier, error) {
	bot, err := tb.NewBot(tb.Settings{
		// 为空时使用 https://api.telegram.org
		URL:     cfg.APIURL,
		Token:   cfg.BotToken,
		Client:  httpClient,
		Offline: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "初始化Telegram机器人失败")
	}

	return &TelegramNotifier{
		bot:  bot,
		chat: &tb.Chat{ID: cfg.ChatID},
	}, nil
}

func (tn *TelegramNotifier) Name() string {
	return "telegram"
}

// SendSignal 有图片时发送带说明的图片，否则发送文字
func (tn *TelegramNotifier) SendSignal(ctx context.Context, signal *types.Signal, imagePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	message := FormatMessage(signal)

	var what interface{} = message
	if imagePath != "" {
		what = &tb.Photo{File: tb.FromDisk(imagePath), Caption: message}
	}

	if _, err := tn.bot.Send(tn.chat, what); err != nil {
		return errors.Wrap(err, "Telegram发送失败")
	}
	return nil
}
