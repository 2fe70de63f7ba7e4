package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"macd-sentry/internal/analyzer"
	"macd-sentry/internal/database"
	"macd-sentry/internal/fetcher"
	"macd-sentry/internal/metrics"
	"macd-sentry/internal/notifier"
	"macd-sentry/internal/scheduler"
	"macd-sentry/internal/storage"
	"macd-sentry/internal/strategy/signals"
	"macd-sentry/internal/stream"
	"macd-sentry/internal/visualizer"
	"macd-sentry/pkg/config"
	"macd-sentry/pkg/network"
	"macd-sentry/pkg/types"
)

// App 应用程序管理器
type App struct {
	config       *types.Config
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	fetcher      *fetcher.OKXFetcher
	engine       *analyzer.AnalysisEngine
	stateManager *storage.StateManager
	db           *database.Manager
	metrics      *metrics.Metrics
}

// NewApp 组装各模块
func NewApp(cfg *types.Config) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		config:  cfg,
		ctx:     ctx,
		cancel:  cancel,
		metrics: metrics.New(),
	}

	httpClient := network.NewHTTPClient(cfg.Network)
	notifyService, err := notifier.New(cfg, httpClient)
	if err != nil {
		cancel()
		return nil, err
	}

	app.fetcher = fetcher.NewOKXFetcher(cfg.Market, cfg.Fetch, cfg.Network)
	detector := signals.NewMACDSignalDetector(cfg.Signal, cfg.Market.Symbol, cfg.Market.Timeframe)

	app.engine = analyzer.NewAnalysisEngine(cfg.Market, app.fetcher, detector, notifyService).
		WithMetrics(app.metrics)

	if cfg.Chart.Enabled {
		app.engine.WithVisualizer(visualizer.NewChartVisualizer(cfg.Chart))
	}

	if cfg.Alert.Dedup {
		app.stateManager = storage.NewStateManager(cfg.Redis, cfg.Alert.DedupTTL)
		app.engine.WithDeduplicator(app.stateManager)
	}

	if cfg.Database.MySQL.Enabled {
		db, err := database.NewManager(cfg.Database.MySQL)
		if err != nil {
			// 归档是可选功能，连接失败不影响信号推送
			zap.L().Warn("⚠️ MySQL不可用，跳过K线归档", zap.Error(err))
		} else {
			app.db = db
			app.engine.WithArchiver(db)
		}
	}

	return app, nil
}

// Start 启动应用程序
func (app *App) Start() error {
	zap.L().Info("🚀 MACD Sentry 启动中...",
		zap.String("symbol", app.config.Market.Symbol),
		zap.String("timeframe", app.config.Market.Timeframe),
		zap.String("mode", app.config.Driver.Mode))

	taskScheduler := scheduler.NewScheduler(app.engine, app.config.Driver, app.config.Market.Timeframe)

	if app.config.Driver.Mode == config.ModeStream {
		wsClient := stream.NewClient(app.config.WebSocket, app.config.Network.Proxy,
			app.config.Market.Symbol, app.config.Market.Timeframe)
		taskScheduler.WithTrigger(wsClient)

		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			if err := wsClient.Run(app.ctx); err != nil {
				zap.L().Error("❌ WebSocket已停止，改为按超时轮询", zap.Error(err))
			}
		}()
	}

	if app.config.Metrics.Listen != "" {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			if err := app.metrics.Serve(app.ctx, app.config.Metrics.Listen, app.health); err != nil {
				zap.L().Error("❌ 指标服务异常退出", zap.Error(err))
			}
		}()
	}

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		if err := taskScheduler.Start(app.ctx); err != nil {
			zap.L().Error("❌ 调度器启动失败", zap.Error(err))
		}
	}()

	zap.L().Info("✅ MACD Sentry 已启动")
	return nil
}

// RunOnce 执行一次分析
func (app *App) RunOnce(ctx context.Context) error {
	_, err := app.engine.RunOnce(ctx)
	return err
}

// Ping 检查OKX连通性
func (app *App) Ping(ctx context.Context) error {
	return app.fetcher.Ping(ctx)
}

// Stop 停止应用程序
func (app *App) Stop() {
	zap.L().Info("🛑 收到停止信号，正在优雅关闭...")
	app.cancel()

	// 等待所有goroutine结束，最多等待30秒
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("✅ MACD Sentry 已安全关闭")
	case <-time.After(30 * time.Second):
		zap.L().Warn("⚠️ 强制关闭超时")
	}

	app.Close()
}

// Close 释放外部连接
func (app *App) Close() {
	app.cancel()
	if app.stateManager != nil {
		if err := app.stateManager.Close(); err != nil {
			zap.L().Warn("⚠️ 关闭Redis连接失败", zap.Error(err))
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			zap.L().Warn("⚠️ 关闭数据库连接失败", zap.Error(err))
		}
	}
	_ = zap.L().Sync()
}

// WaitForShutdown 等待关闭信号
func (app *App) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

func (app *App) health() error {
	if app.db == nil {
		return nil
	}
	return app.db.Health()
}
