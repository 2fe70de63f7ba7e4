package notifier

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"macd-sentry/pkg/types"
)

const boxWidth = 60

// ConsoleNotifier 控制台通知器
type ConsoleNotifier struct {
	out io.Writer
}

func NewConsoleNotifier() *ConsoleNotifier {
	return &ConsoleNotifier{out: os.Stdout}
}

func (cn *ConsoleNotifier) Name() string {
	return "console"
}

func (cn *ConsoleNotifier) SendSignal(_ context.Context, signal *types.Signal, imagePath string) error {
	lines := strings.Split(FormatMessage(signal), "\n")
	if imagePath != "" {
		lines = append(lines, "🖼️ "+imagePath)
	}

	// 生成一个漂亮的信号框
	var b strings.Builder
	b.WriteString("\n╔" + strings.Repeat("═", boxWidth) + "╗\n")
	for _, line := range lines {
		fmt.Fprintf(&b, "║ %s%s ║\n", line, strings.Repeat(" ", safePadding(line, boxWidth)))
	}
	b.WriteString("╚" + strings.Repeat("═", boxWidth) + "╝\n")

	_, err := io.WriteString(cn.out, b.String())
	return err
}

// safePadding 安全地计算填充空格数量，避免负数
func safePadding(content string, totalWidth int) int {
	// 使用utf8.RuneCountInString计算实际显示字符数，而不是字节数
	padding := totalWidth - utf8.RuneCountInString(content) - 2
	if padding < 0 {
		padding = 0
	}
	return padding
}
