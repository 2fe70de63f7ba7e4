package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	okxcommon "github.com/nntaoli-project/goex/v2/okx/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"macd-sentry/pkg/network"
	"macd-sentry/pkg/types"
)

const (
	pingURI = "/api/v5/public/time"

	// MaxLimit OKX单次最多返回的K线数量
	MaxLimit = 300
)

// Provider K线数据来源
type Provider interface {
	FetchKlines(ctx context.Context, symbol, timeframe string, limit int) ([]*types.KLine, error)
	Ping(ctx context.Context) error
}

// APIError OKX接口返回的业务错误
type APIError struct {
	Code string
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("OKX API返回错误: code=%s, msg=%s", e.Code, e.Msg)
}

// okxResponse OKX V5通用响应
type okxResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// OKXFetcher 通过OKX V5 REST接口获取K线
type OKXFetcher struct {
	endpoint   string
	klineURI   string
	httpClient *http.Client
	maxRetries int
	closedOnly bool
	newBackOff func() backoff.BackOff
}

// NewOKXFetcher 创建K线获取器
func NewOKXFetcher(market types.MarketConfig, fetch types.FetchConfig, networkConfig types.NetworkConfig) *OKXFetcher {
	// 使用goex v2 OKX客户端的默认地址
	client := okxcommon.New()

	endpoint := client.UriOpts.Endpoint
	if market.Endpoint != "" {
		endpoint = market.Endpoint
	}

	maxRetries := fetch.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	zap.L().Info("✅ 初始化OKX K线获取器",
		zap.String("endpoint", endpoint),
		zap.Int("max_retries", maxRetries),
		zap.Bool("closed_only", fetch.ClosedOnly))

	return &OKXFetcher{
		endpoint:   strings.TrimRight(endpoint, "/"),
		klineURI:   client.UriOpts.KlineUri,
		httpClient: network.NewHTTPClient(networkConfig),
		maxRetries: maxRetries,
		closedOnly: fetch.ClosedOnly,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// FetchKlines 获取最近 limit 根K线，按时间升序返回
func (f *OKXFetcher) FetchKlines(ctx context.Context, symbol, timeframe string, limit int) ([]*types.KLine, error) {
	if limit <= 0 || limit > MaxLimit {
		limit = MaxLimit
	}

	query := url.Values{}
	query.Set("instId", symbol)
	query.Set("bar", timeframe)
	query.Set("limit", strconv.Itoa(limit))
	requestURL := f.endpoint + f.klineURI + "?" + query.Encode()

	zap.L().Debug("📊 获取K线数据",
		zap.String("symbol", symbol),
		zap.String("timeframe", timeframe),
		zap.Int("limit", limit))

	var rows [][]string
	attempt := 0
	operation := func() error {
		attempt++
		if attempt > 1 {
			zap.L().Info("🔄 重试获取K线", zap.Int("attempt", attempt))
		}

		data, err := f.get(ctx, requestURL)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &rows); err != nil {
			return backoff.Permanent(errors.Wrapf(ErrMalformedSeries, "解析K线数组失败: %v", err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(f.newBackOff(), uint64(f.maxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, errors.Wrapf(err, "获取%s %s K线失败", symbol, timeframe)
	}

	klines, err := parseCandles(symbol, timeframe, rows)
	if err != nil {
		return nil, err
	}

	// OKX返回的数据是从新到旧排序，需要反转为从旧到新
	reverseKlines(klines)

	if f.closedOnly && len(klines) > 0 && !klines[len(klines)-1].Confirmed {
		klines = klines[:len(klines)-1]
	}

	if err := ValidateSeries(klines); err != nil {
		return nil, err
	}

	zap.L().Info("✅ K线数据获取完成",
		zap.String("symbol", symbol),
		zap.Int("requested", limit),
		zap.Int("received", len(klines)))

	return klines, nil
}

// Ping 检查OKX接口连通性
func (f *OKXFetcher) Ping(ctx context.Context) error {
	if _, err := f.get(ctx, f.endpoint+pingURI); err != nil {
		return errors.Wrap(err, "OKX连通性检查失败")
	}
	return nil
}

// get 发送GET请求并返回 data 字段
//
// 返回的错误中，网络错误、5xx 和 429 可以重试，其余包装为 backoff.Permanent。
func (f *OKXFetcher) get(ctx context.Context, requestURL string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, backoff.Permanent(errors.Wrap(err, "创建HTTP请求失败"))
	}
	req.Header.Set("User-Agent", "MACD-Sentry/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, errors.Wrap(err, "HTTP请求失败")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "读取响应体失败")
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("HTTP响应错误: %d", resp.StatusCode)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	var apiResp okxResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, backoff.Permanent(errors.Wrap(err, "解析JSON失败"))
	}
	if apiResp.Code != "0" {
		return nil, backoff.Permanent(&APIError{Code: apiResp.Code, Msg: apiResp.Msg})
	}

	return apiResp.Data, nil
}

func reverseKlines(klines []*types.KLine) {
	for i, j := 0, len(klines)-1; i < j; i, j = i+1, j-1 {
		klines[i], klines[j] = klines[j], klines[i]
	}
}
