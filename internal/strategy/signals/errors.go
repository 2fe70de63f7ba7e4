package signals

import (
	"fmt"

	"github.com/pkg/errors"

	"macd-sentry/pkg/types"
)

// ErrOverlayMismatch MACD线与信号线长度不一致
var ErrOverlayMismatch = errors.New("MACD线与信号线长度不一致")

// InsufficientDataError 序列长度不足以判断交叉
type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("数据不足: 需要至少%d个点，实际%d个", e.Need, e.Have)
}

// InvalidDirectionError 计算止盈止损时方向非法
type InvalidDirectionError struct {
	Direction types.Direction
}

func (e *InvalidDirectionError) Error() string {
	return fmt.Sprintf("无效的信号方向: %q", e.Direction)
}
