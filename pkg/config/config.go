package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"macd-sentry/pkg/timeframe"
	"macd-sentry/pkg/types"
)

// 驱动模式
const (
	ModeSleep  = "sleep"
	ModeAlign  = "align"
	ModeStream = "stream"
)

// legacyEnv 兼容旧版部署使用的环境变量名
var legacyEnv = map[string]string{
	"market.symbol":                "SYMBOL",
	"market.timeframe":             "TIMEFRAME",
	"market.limit":                 "LIMIT",
	"signal.stop_loss_percent":     "STOP_LOSS_PERCENT",
	"signal.take_profit_1_percent": "TAKE_PROFIT_1_PERCENT",
	"signal.take_profit_2_percent": "TAKE_PROFIT_2_PERCENT",
	"signal.take_profit_3_percent": "TAKE_PROFIT_3_PERCENT",
	"signal.round_decimal_places":  "ROUND_DECIMAL_PLACES",
	"telegram.bot_token":           "TELEGRAM_BOT_TOKEN",
	"telegram.chat_id":             "TELEGRAM_CHAT_ID",
}

// Load 加载配置
//
// path 为空时依次查找 ./configs 和当前目录下的 config.local.yaml、config.yaml，
// 都不存在时只使用默认值和环境变量。
func Load(path string) (*types.Config, error) {
	// .env 只补充未设置的环境变量
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("读取.env失败: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		name := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, name, env); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	} else if err := readDefaultFiles(v); err != nil {
		return nil, err
	}

	var config types.Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func readDefaultFiles(v *viper.Viper) error {
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// 优先尝试读取本地配置文件
	v.SetConfigName("config.local")
	if err := v.ReadInConfig(); err == nil {
		return nil
	}

	v.SetConfigName("config")
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return err
		}
	}
	return nil
}

// Validate 校验配置取值
func Validate(c *types.Config) error {
	if c.Market.Symbol == "" {
		return errors.New("market.symbol 不能为空")
	}
	if c.Market.Timeframe == "" {
		return errors.New("market.timeframe 不能为空")
	}
	if _, err := timeframe.ToDuration(c.Market.Timeframe); err != nil {
		return fmt.Errorf("market.timeframe 无效: %w", err)
	}
	if c.Market.Limit < 2 || c.Market.Limit > 300 {
		return fmt.Errorf("market.limit 需在2到300之间，当前为%d", c.Market.Limit)
	}
	if !validPercent(c.Signal.StopLossPercent) {
		return fmt.Errorf("signal.stop_loss_percent 需为非负有限数，当前为%v", c.Signal.StopLossPercent)
	}
	for i, p := range c.Signal.TakeProfitPercents() {
		if !validPercent(p) {
			return fmt.Errorf("signal.take_profit_%d_percent 需为非负有限数，当前为%v", i+1, p)
		}
	}
	if c.Signal.RoundDecimalPlaces < 0 {
		return errors.New("signal.round_decimal_places 不能为负数")
	}
	if c.Driver.FallbackInterval <= 0 {
		return fmt.Errorf("driver.fallback_interval 必须大于0，当前为%s", c.Driver.FallbackInterval)
	}

	switch c.Driver.Mode {
	case ModeSleep, ModeAlign, ModeStream:
	default:
		return fmt.Errorf("未知的驱动模式: %q", c.Driver.Mode)
	}
	return nil
}

func validPercent(p float64) bool {
	return p >= 0 && !math.IsInf(p, 0)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_path", "logs")
	v.SetDefault("log.max_size", 200)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.compress", false)

	v.SetDefault("market.endpoint", "")
	v.SetDefault("market.symbol", "BTC-USDT")
	v.SetDefault("market.timeframe", "1H")
	v.SetDefault("market.limit", 300)

	v.SetDefault("signal.fast_period", 12)
	v.SetDefault("signal.slow_period", 26)
	v.SetDefault("signal.signal_period", 9)
	v.SetDefault("signal.stop_loss_percent", 2.0)
	v.SetDefault("signal.take_profit_1_percent", 1.0)
	v.SetDefault("signal.take_profit_2_percent", 2.0)
	v.SetDefault("signal.take_profit_3_percent", 3.0)
	v.SetDefault("signal.round_decimal_places", 2)

	v.SetDefault("fetch.max_retries", 2)
	v.SetDefault("fetch.closed_only", false)

	v.SetDefault("driver.mode", ModeSleep)
	v.SetDefault("driver.fallback_interval", time.Minute)

	v.SetDefault("chart.enabled", true)
	v.SetDefault("chart.output_dir", "charts")
	v.SetDefault("chart.width", 1400)
	v.SetDefault("chart.height", 800)

	v.SetDefault("alert.dedup", true)
	v.SetDefault("alert.dedup_ttl", 24*time.Hour)

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", 0)
	v.SetDefault("telegram.api_url", "")
	v.SetDefault("slack.token", "")
	v.SetDefault("slack.channel", "")
	v.SetDefault("dingtalk.webhook_url", "")
	v.SetDefault("dingtalk.secret", "")
	v.SetDefault("pushplus.user_token", "")
	v.SetDefault("pushplus.to", "")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("network.proxy", "")
	v.SetDefault("network.timeout", 30*time.Second)

	v.SetDefault("database.mysql.enabled", false)
	v.SetDefault("database.mysql.host", "localhost")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.username", "root")
	v.SetDefault("database.mysql.password", "")
	v.SetDefault("database.mysql.database", "macd_sentry")
	v.SetDefault("database.mysql.max_idle_conns", 5)
	v.SetDefault("database.mysql.max_open_conns", 10)

	v.SetDefault("websocket.okx_endpoint", "wss://ws.okx.com:8443/ws/v5/business")
	v.SetDefault("websocket.reconnect_interval", 5*time.Second)
	v.SetDefault("websocket.ping_interval", 20*time.Second)
	v.SetDefault("websocket.max_reconnect_attempts", 10)

	v.SetDefault("metrics.listen", "")
}
