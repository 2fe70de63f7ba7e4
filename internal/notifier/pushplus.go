package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"macd-sentry/pkg/types"
)

// PushPlusEndpoint PushPlus推送地址
const PushPlusEndpoint = "http://www.pushplus.plus/send"

// PushPlusNotifier PushPlus通知器
type PushPlusNotifier struct {
	endpoint   string
	userToken  string
	to         string // 好友令牌，多人用逗号分隔
	httpClient *http.Client
}

type PushPlusRequest struct {
	Token    string `json:"token"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Template string `json:"template"`
	To       string `json:"to,omitempty"` // 好友令牌，给朋友发送通知
}

type PushPlusResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data string `json:"data"`
}

func NewPushPlusNotifier(userToken, to string, httpClient *http.Client) *PushPlusNotifier {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &PushPlusNotifier{
		endpoint:   PushPlusEndpoint,
		userToken:  userToken,
		to:         to,
		httpClient: httpClient,
	}
}

func (ppn *PushPlusNotifier) Name() string {
	return "pushplus"
}

func (ppn *PushPlusNotifier) SendSignal(ctx context.Context, signal *types.Signal, _ string) error {
	return ppn.sendPushPlusMessage(ctx, messageTitle(signal), ppn.buildHTMLContent(signal))
}

func (ppn *PushPlusNotifier) buildHTMLContent(signal *types.Signal) string {
	color := "#00C851" // 绿色表示买入
	if signal.Direction == types.DirectionSell {
		color = "#FF4444"
	}

	return fmt.Sprintf(`
<div style="border: 2px solid %s; border-radius: 10px; padding: 20px; margin: 10px; background-color: #f9f9f9;">
    <h2 style="color: %s; text-align: center; margin-top: 0;">%s MACD交叉信号</h2>
    <div style="background-color: white; padding: 15px; border-radius: 8px; margin: 10px 0;">
        <p><strong>交易对:</strong> %s (%s)</p>
        <p><strong>方向:</strong> <span style="font-size: 18px; font-weight: bold; color: %s;">%s</span></p>
        <p><strong>入场价:</strong> %s</p>
        <p><strong>止损(SL):</strong> %s</p>
        <p><strong>止盈1(TP1):</strong> %s</p>
        <p><strong>止盈2(TP2):</strong> %s</p>
        <p><strong>止盈3(TP3):</strong> %s</p>
        <p><strong>信号时间:</strong> <span style="color: #666;">%s</span></p>
    </div>
</div>
`,
		color, color, directionEmoji(signal.Direction),
		signal.Symbol, signal.Timeframe,
		color, directionText(signal.Direction),
		signal.EntryPrice.String(),
		signal.FormatLevel(signal.StopLoss),
		signal.FormatLevel(signal.TakeProfit1),
		signal.FormatLevel(signal.TakeProfit2),
		signal.FormatLevel(signal.TakeProfit3),
		signal.Time.Format("2006-01-02 15:04:05"))
}

func (ppn *PushPlusNotifier) sendPushPlusMessage(ctx context.Context, title, content string) error {
	reqData := PushPlusRequest{
		Token:    ppn.userToken,
		Title:    title,
		Content:  content,
		Template: "html",
		To:       ppn.to,
	}

	jsonData, err := json.Marshal(reqData)
	if err != nil {
		return fmt.Errorf("序列化请求数据失败: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ppn.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("创建HTTP请求失败: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ppn.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %v", err)
	}
	defer resp.Body.Close()

	var pushResp PushPlusResponse
	if err := json.NewDecoder(resp.Body).Decode(&pushResp); err != nil {
		return fmt.Errorf("解析响应失败: %v", err)
	}

	if pushResp.Code != 200 {
		return fmt.Errorf("PushPlus API错误: %s", pushResp.Msg)
	}
	return nil
}
