package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"macd-sentry/pkg/types"
)

// SignalMarker 某交易对最近一次已推送的信号
type SignalMarker struct {
	Direction  types.Direction `json:"direction"`
	KlineTime  int64           `json:"kline_time"`
	NotifiedAt time.Time       `json:"notified_at"`
}

// Matches 判断信号是否与标记对应同一根K线上的同一方向
func (m *SignalMarker) Matches(signal *types.Signal) bool {
	return m != nil && m.Direction == signal.Direction && m.KlineTime == signal.KlineTime
}

// StateManager 推送去重状态
//
// 每个交易对和周期只保留最后一次推送的标记。配置了Redis时同步写入，重启后仍能去重。
type StateManager struct {
	markers     map[string]*SignalMarker
	mutex       sync.RWMutex
	ttl         time.Duration
	redisClient *redis.Client
	useRedis    bool
	now         func() time.Time
}

func NewStateManager(redisConfig types.RedisConfig, ttl time.Duration) *StateManager {
	sm := &StateManager{
		markers: make(map[string]*SignalMarker),
		ttl:     ttl,
		now:     time.Now,
	}

	// 尝试连接Redis
	if redisConfig.URL == "" {
		zap.L().Info("🔧 未配置Redis，使用纯内存模式")
		return sm
	}

	sm.redisClient = redis.NewClient(&redis.Options{
		Addr:     redisConfig.URL,
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sm.redisClient.Ping(ctx).Err(); err != nil {
		zap.L().Warn("⚠️ Redis连接失败，使用纯内存模式", zap.Error(err))
		_ = sm.redisClient.Close()
		sm.redisClient = nil
		return sm
	}

	zap.L().Info("✅ Redis连接成功", zap.String("addr", redisConfig.URL))
	sm.useRedis = true
	return sm
}

// MarkerKey 去重标记的键
func MarkerKey(symbol, timeframe string) string {
	return fmt.Sprintf("macd:last_signal:%s:%s", symbol, timeframe)
}

// UseRedis 是否启用了Redis同步
func (sm *StateManager) UseRedis() bool {
	return sm.useRedis
}

// IsDuplicate 信号是否已经推送过
func (sm *StateManager) IsDuplicate(ctx context.Context, signal *types.Signal) bool {
	key := MarkerKey(signal.Symbol, signal.Timeframe)

	marker := sm.lookup(key)
	if marker == nil && sm.useRedis {
		marker = sm.loadFromRedis(ctx, key)
		if marker != nil {
			sm.mutex.Lock()
			sm.markers[key] = marker
			sm.mutex.Unlock()
		}
	}

	if marker == nil || sm.expired(marker) {
		return false
	}
	return marker.Matches(signal)
}

// MarkNotified 记录信号已推送，覆盖该交易对之前的标记
func (sm *StateManager) MarkNotified(ctx context.Context, signal *types.Signal) error {
	key := MarkerKey(signal.Symbol, signal.Timeframe)
	marker := &SignalMarker{
		Direction:  signal.Direction,
		KlineTime:  signal.KlineTime,
		NotifiedAt: sm.now(),
	}

	sm.mutex.Lock()
	sm.markers[key] = marker
	sm.mutex.Unlock()

	if !sm.useRedis {
		return nil
	}

	data, err := json.Marshal(marker)
	if err != nil {
		return err
	}
	if err := sm.redisClient.Set(ctx, key, data, sm.ttl).Err(); err != nil {
		return fmt.Errorf("写入Redis失败: %w", err)
	}
	return nil
}

// Close 关闭Redis连接
func (sm *StateManager) Close() error {
	if sm.redisClient == nil {
		return nil
	}
	return sm.redisClient.Close()
}

func (sm *StateManager) lookup(key string) *SignalMarker {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.markers[key]
}

func (sm *StateManager) expired(marker *SignalMarker) bool {
	return sm.ttl > 0 && sm.now().Sub(marker.NotifiedAt) > sm.ttl
}

func (sm *StateManager) loadFromRedis(ctx context.Context, key string) *SignalMarker {
	data, err := sm.redisClient.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		zap.L().Warn("⚠️ 读取Redis去重标记失败", zap.String("key", key), zap.Error(err))
		return nil
	}

	var marker SignalMarker
	if err := json.Unmarshal(data, &marker); err != nil {
		zap.L().Warn("⚠️ 解析Redis去重标记失败", zap.String("key", key), zap.Error(err))
		return nil
	}
	return &marker
}
