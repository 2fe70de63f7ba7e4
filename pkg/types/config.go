package types

import "time"

// Config 主配置结构
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Market    MarketConfig    `mapstructure:"market"`
	Signal    SignalConfig    `mapstructure:"signal"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Driver    DriverConfig    `mapstructure:"driver"`
	Chart     ChartConfig     `mapstructure:"chart"`
	Alert     AlertConfig     `mapstructure:"alert"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Slack     SlackConfig     `mapstructure:"slack"`
	DingTalk  DingTalkConfig  `mapstructure:"dingtalk"`
	PushPlus  PushPlusConfig  `mapstructure:"pushplus"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Network   NetworkConfig   `mapstructure:"network"`
	Database  DatabaseConfig  `mapstructure:"database"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // 日志级别
	FilePath   string `mapstructure:"file_path"`   // 日志输出路径名，为空时只输出到控制台
	MaxSize    int    `mapstructure:"max_size"`    // 日志文件大小 单位：MB，超限后会自动切割
	MaxAge     int    `mapstructure:"max_age"`     // 日志文件存放时间 单位：天
	MaxBackups int    `mapstructure:"max_backups"` // 日志文件备份数量
	Compress   bool   `mapstructure:"compress"`    // 日志文件压缩
}

// MarketConfig 行情配置
type MarketConfig struct {
	Endpoint  string `mapstructure:"endpoint"`  // OKX REST地址，为空时使用goex默认地址
	Symbol    string `mapstructure:"symbol"`    // 交易对，如 BTC-USDT
	Timeframe string `mapstructure:"timeframe"` // K线周期，如 15m、1H
	Limit     int    `mapstructure:"limit"`     // 每次获取的K线数量
}

// SignalConfig MACD信号与止盈止损配置
type SignalConfig struct {
	FastPeriod         int     `mapstructure:"fast_period"`
	SlowPeriod         int     `mapstructure:"slow_period"`
	SignalPeriod       int     `mapstructure:"signal_period"`
	StopLossPercent    float64 `mapstructure:"stop_loss_percent"`     // 百分比整数，2 表示 2%
	TakeProfit1Percent float64 `mapstructure:"take_profit_1_percent"` // 第一止盈位百分比
	TakeProfit2Percent float64 `mapstructure:"take_profit_2_percent"` // 第二止盈位百分比
	TakeProfit3Percent float64 `mapstructure:"take_profit_3_percent"` // 第三止盈位百分比
	RoundDecimalPlaces int     `mapstructure:"round_decimal_places"`  // 止盈止损保留小数位
}

// TakeProfitPercents 三个止盈百分比
func (c SignalConfig) TakeProfitPercents() [3]float64 {
	return [3]float64{c.TakeProfit1Percent, c.TakeProfit2Percent, c.TakeProfit3Percent}
}

// FetchConfig 数据获取配置
type FetchConfig struct {
	MaxRetries int  `mapstructure:"max_retries"` // 失败重试次数
	ClosedOnly bool `mapstructure:"closed_only"` // 只使用已收盘K线
}

// DriverConfig 主循环配置
type DriverConfig struct {
	Mode             string        `mapstructure:"mode"`              // sleep | align | stream
	FallbackInterval time.Duration `mapstructure:"fallback_interval"` // 周期无法解析时的等待时间
}

// ChartConfig 图表配置
type ChartConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	OutputDir string `mapstructure:"output_dir"`
	Width     int    `mapstructure:"width"`
	Height    int    `mapstructure:"height"`
}

// AlertConfig 预警去重配置
type AlertConfig struct {
	Dedup    bool          `mapstructure:"dedup"`
	DedupTTL time.Duration `mapstructure:"dedup_ttl"`
}

// TelegramConfig Telegram配置
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
	APIURL   string `mapstructure:"api_url"` // 为空时使用 https://api.telegram.org
}

// SlackConfig Slack配置
type SlackConfig struct {
	Token   string `mapstructure:"token"`
	Channel string `mapstructure:"channel"`
}

// DingTalkConfig 钉钉配置
type DingTalkConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Secret     string `mapstructure:"secret"`
}

// PushPlusConfig PushPlus配置
type PushPlusConfig struct {
	UserToken string `mapstructure:"user_token"`
	To        string `mapstructure:"to"` // 好友令牌，多人用逗号分隔
}

// RedisConfig Redis配置
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NetworkConfig 网络配置
type NetworkConfig struct {
	Proxy   string        `mapstructure:"proxy"`   // HTTP代理地址，如 http://127.0.0.1:7890
	Timeout time.Duration `mapstructure:"timeout"` // 网络超时时间
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
}

// MySQLConfig MySQL配置
type MySQLConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	OKXEndpoint          string        `mapstructure:"okx_endpoint"`
	ReconnectInterval    time.Duration `mapstructure:"reconnect_interval"`
	PingInterval         time.Duration `mapstructure:"ping_interval"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
}

// MetricsConfig 监控指标配置
type MetricsConfig struct {
	Listen string `mapstructure:"listen"` // 如 :9100，为空时不启动
}
