package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"macd-sentry/pkg/types"
)

// DingTalkNotifier 钉钉机器人通知器
type DingTalkNotifier struct {
	webhookURL string
	secret     string
	httpClient *http.Client
	now        func() time.Time
}

// DingTalkMessage 钉钉消息结构
type DingTalkMessage struct {
	MsgType  string            `json:"msgtype"`
	Markdown *DingTalkMarkdown `json:"markdown,omitempty"`
	At       *DingTalkAt       `json:"at,omitempty"`
}

type DingTalkMarkdown struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type DingTalkAt struct {
	AtAll bool `json:"isAtAll"`
}

// DingTalkResponse 钉钉API响应
type DingTalkResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func NewDingTalkNotifier(webhookURL, secret string, httpClient *http.Client) *DingTalkNotifier {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &DingTalkNotifier{
		webhookURL: webhookURL,
		secret:     secret,
		httpClient: httpClient,
		now:        time.Now,
	}
}

func (dtn *DingTalkNotifier) Name() string {
	return "dingtalk"
}

// SendSignal 钉钉机器人无法直接上传本地图片，只发送Markdown文字
func (dtn *DingTalkNotifier) SendSignal(ctx context.Context, signal *types.Signal, _ string) error {
	return dtn.sendDingTalkMessage(ctx, messageTitle(signal), dtn.buildMarkdownContent(signal))
}

// buildMarkdownContent 构建信号的Markdown内容
func (dtn *DingTalkNotifier) buildMarkdownContent(signal *types.Signal) string {
	color := "green"
	if signal.Direction == types.DirectionSell {
		color = "red"
	}

	return fmt.Sprintf(`## %s MACD交叉信号

**交易对**: %s
**周期**: %s
**方向**: <font color="%s">%s</font>
**入场价**: %s
**止损(SL)**: %s
**止盈1(TP1)**: %s
**止盈2(TP2)**: %s
**止盈3(TP3)**: %s
**信号时间**: %s  `,
		directionEmoji(signal.Direction),
		signal.Symbol,
		signal.Timeframe,
		color, directionText(signal.Direction),
		signal.EntryPrice.String(),
		signal.FormatLevel(signal.StopLoss),
		signal.FormatLevel(signal.TakeProfit1),
		signal.FormatLevel(signal.TakeProfit2),
		signal.FormatLevel(signal.TakeProfit3),
		signal.Time.Format("2006-01-02 15:04:05"))
}

// generateSignature 生成钉钉加签
func (dtn *DingTalkNotifier) generateSignature(timestamp int64) string {
	// 按照文档要求: timestamp + "\n" + secret
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, dtn.secret)

	h := hmac.New(sha256.New, []byte(dtn.secret))
	h.Write([]byte(stringToSign))
	return url.QueryEscape(base64.StdEncoding.EncodeToString(h.Sum(nil)))
}

// buildSignedURL 构建带签名的URL，没有secret则不加签
func (dtn *DingTalkNotifier) buildSignedURL() string {
	if dtn.secret == "" {
		return dtn.webhookURL
	}

	timestamp := dtn.now().UnixMilli()
	separator := "&"
	if !strings.Contains(dtn.webhookURL, "?") {
		separator = "?"
	}

	return fmt.Sprintf("%s%stimestamp=%d&sign=%s",
		dtn.webhookURL, separator, timestamp, dtn.generateSignature(timestamp))
}

// sendDingTalkMessage 发送钉钉消息
func (dtn *DingTalkNotifier) sendDingTalkMessage(ctx context.Context, title, content string) error {
	message := &DingTalkMessage{
		MsgType: "markdown",
		Markdown: &DingTalkMarkdown{
			Title: title,
			Text:  content,
		},
		At: &DingTalkAt{
			AtAll: false, // 不@所有人，避免过度打扰
		},
	}

	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dtn.buildSignedURL(), bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("创建HTTP请求失败: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := dtn.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %v", err)
	}
	defer resp.Body.Close()

	var dingResp DingTalkResponse
	if err := json.NewDecoder(resp.Body).Decode(&dingResp); err != nil {
		return fmt.Errorf("解析响应失败: %v", err)
	}

	if dingResp.ErrCode != 0 {
		return fmt.Errorf("钉钉API错误 [%d]: %s", dingResp.ErrCode, dingResp.ErrMsg)
	}
	return nil
}
