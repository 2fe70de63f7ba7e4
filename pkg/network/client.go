package network

import (
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"macd-sentry/pkg/types"
)

// DefaultTimeout 未配置超时时间时使用
const DefaultTimeout = 30 * time.Second

// NewHTTPClient 按网络配置创建HTTP客户端，支持代理
func NewHTTPClient(cfg types.NetworkConfig) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err == nil && proxyURL.Host != "" {
			transport.Proxy = http.ProxyURL(proxyURL)
			zap.L().Info("✅ 已配置HTTP代理", zap.String("proxy", cfg.Proxy))
		} else {
			zap.L().Warn("⚠️ 代理地址格式错误，忽略代理", zap.String("proxy", cfg.Proxy), zap.Error(err))
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
