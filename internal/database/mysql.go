package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"macd-sentry/pkg/types"
)

const batchSize = 100

// Manager 数据库管理器，负责K线归档
type Manager struct {
	db *gorm.DB
}

// KLine 数据库K线模型
type KLine struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Symbol    string    `gorm:"type:varchar(20);not null;uniqueIndex:uk_symbol_interval_time" json:"symbol"`
	Interval  string    `gorm:"type:varchar(10);not null;uniqueIndex:uk_symbol_interval_time" json:"interval"`
	OpenTime  int64     `gorm:"not null;uniqueIndex:uk_symbol_interval_time" json:"open_time"`
	Open      float64   `gorm:"type:decimal(20,8);not null" json:"open"`
	High      float64   `gorm:"type:decimal(20,8);not null" json:"high"`
	Low       float64   `gorm:"type:decimal(20,8);not null" json:"low"`
	Close     float64   `gorm:"type:decimal(20,8);not null" json:"close"`
	Volume    float64   `gorm:"type:decimal(30,8);not null" json:"volume"`
	Confirmed bool      `gorm:"not null;default:true" json:"confirmed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (KLine) TableName() string {
	return "klines"
}

// NewManager 连接MySQL并迁移表结构
func NewManager(config types.MySQLConfig) (*Manager, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		config.Username,
		config.Password,
		config.Host,
		config.Port,
		config.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %v", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库实例失败: %v", err)
	}
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	manager := NewManagerWithDB(db)
	if err := manager.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %v", err)
	}

	zap.L().Info("✅ MySQL数据库连接成功",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("database", config.Database))

	return manager, nil
}

// NewManagerWithDB 使用已打开的连接，不做迁移
func NewManagerWithDB(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// AutoMigrate 自动迁移表结构
func (m *Manager) AutoMigrate() error {
	return m.db.AutoMigrate(&KLine{})
}

// SaveKlines 批量写入K线，已存在的(交易对, 周期, 开盘时间)会被更新
func (m *Manager) SaveKlines(ctx context.Context, klines []*types.KLine) error {
	if len(klines) == 0 {
		return nil
	}

	rows := make([]KLine, 0, len(klines))
	for _, k := range klines {
		rows = append(rows, KLine{
			Symbol:    k.Symbol,
			Interval:  k.Interval,
			OpenTime:  k.Timestamp,
			Open:      k.Open,
			High:      k.High,
			Low:       k.Low,
			Close:     k.Close,
			Volume:    k.Volume,
			Confirmed: k.Confirmed,
		})
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(rows, batchSize).Error
	})
	if err != nil {
		return fmt.Errorf("批量保存K线数据失败: %v", err)
	}

	zap.L().Debug("✅ 批量保存K线数据完成",
		zap.Int("count", len(klines)),
		zap.String("symbol", klines[0].Symbol))
	return nil
}

// Close 关闭数据库连接
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库连接健康状态
func (m *Manager) Health() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
