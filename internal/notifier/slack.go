package notifier

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/slack-go/slack"

	"macd-sentry/pkg/types"
)

// SlackNotifier Slack通知器，只发送文字和字段附件
type SlackNotifier struct {
	client  *slack.Client
	channel string
}

// NewSlackNotifier 创建Slack通知器
func NewSlackNotifier(cfg types.SlackConfig, httpClient *http.Client, options ...slack.Option) *SlackNotifier {
	if httpClient != nil {
		options = append([]slack.Option{slack.OptionHTTPClient(httpClient)}, options...)
	}
	return &SlackNotifier{
		client:  slack.New(cfg.Token, options...),
		channel: cfg.Channel,
	}
}

func (sn *SlackNotifier) Name() string {
	return "slack"
}

func (sn *SlackNotifier) SendSignal(ctx context.Context, signal *types.Signal, imagePath string) error {
	_, _, err := sn.client.PostMessageContext(ctx, sn.channel,
		slack.MsgOptionText(messageTitle(signal), false),
		slack.MsgOptionAttachments(signalAttachment(signal, imagePath)))
	if err != nil {
		return errors.Wrap(err, "Slack发送失败")
	}
	return nil
}

func signalAttachment(signal *types.Signal, imagePath string) slack.Attachment {
	color := "#00C851"
	if signal.Direction == types.DirectionSell {
		color = "#FF4444"
	}

	attachment := slack.Attachment{
		Text:  FormatMessage(signal),
		Color: color,
		Fields: []slack.AttachmentField{
			{Title: "Entry", Value: signal.EntryPrice.String(), Short: true},
			{Title: "Stop Loss", Value: signal.FormatLevel(signal.StopLoss), Short: true},
			{Title: "TP1", Value: signal.FormatLevel(signal.TakeProfit1), Short: true},
			{Title: "TP2", Value: signal.FormatLevel(signal.TakeProfit2), Short: true},
			{Title: "TP3", Value: signal.FormatLevel(signal.TakeProfit3), Short: true},
			{Title: "Timeframe", Value: signal.Timeframe, Short: true},
		},
	}
	if imagePath != "" {
		attachment.Footer = "chart: " + filepath.Base(imagePath)
	}
	return attachment
}
