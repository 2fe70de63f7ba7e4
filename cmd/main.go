package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"macd-sentry/pkg/config"
	"macd-sentry/pkg/logger"
	"macd-sentry/pkg/types"
)

func init() {
	rootCmd.PersistentFlags().String("config", "", "配置文件路径，默认查找 ./configs/config.yaml")
	rootCmd.AddCommand(runCmd, onceCmd, pingCmd)
}

var rootCmd = &cobra.Command{
	Use:   "macd-sentry",
	Short: "OKX K线MACD交叉信号监控",

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "持续运行监控循环",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setup(cmd)
		if err != nil {
			return err
		}

		if err := app.Start(); err != nil {
			app.Stop()
			return err
		}
		app.WaitForShutdown()
		app.Stop()
		return nil
	},
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "执行一次分析后退出",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setup(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		return app.RunOnce(cmd.Context())
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "检查与OKX的连通性",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setup(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		if err := app.Ping(ctx); err != nil {
			return err
		}
		zap.L().Info("✅ OKX连接正常")
		return nil
	},
}

// setup 加载配置、初始化日志并组装应用
func setup(cmd *cobra.Command) (*App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	if _, err := logger.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	return NewApp(cfg)
}

func loadConfig(cmd *cobra.Command) (*types.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
