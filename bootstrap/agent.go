/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-02-10 12:00:00
 * @FilePath: \go-testagent\bootstrap\agent.go
 * @Description: Agent 模式启动器
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kamalyes/go-logger"
	"github.com/kamalyes/go-testagent/agent"
	"github.com/kamalyes/go-testagent/config"
	"github.com/kamalyes/go-testagent/controller"
	"github.com/kamalyes/go-testagent/protocol"
	"github.com/kamalyes/go-testagent/types"
	"github.com/kamalyes/go-toolbox/pkg/osx"
	"github.com/kamalyes/go-toolbox/pkg/units"
)

// AgentOptions Agent 模式选项
type AgentOptions struct {
	ConfigFile     string
	BackendURL     string
	APIKey         string
	SlotCount      int
	ControllerMode types.ControllerMode
	MaxMemory      string
	Logger         logger.ILogger
}

// RunAgent 运行 Agent 模式
func RunAgent(opts AgentOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	ctrl, err := buildController(opts.ControllerMode)
	if err != nil {
		return err
	}

	// 创建协议客户端
	client, err := protocol.NewClient(cfg, opts.Logger)
	if err != nil {
		return fmt.Errorf("创建协议客户端失败: %w", err)
	}

	// 创建 Agent
	ag, err := agent.New(cfg, ctrl, client, opts.Logger)
	if err != nil {
		return fmt.Errorf("创建 Agent 失败: %w", err)
	}
	ag.RegisterHandlers(client)

	// 创建context，支持Ctrl+C中断
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		opts.Logger.Warn("\n\n⚠️  收到中断信号，正在停止...")
		cancel()
	}()

	// 启动进程级内存防护（如果配置了阈值）
	if opts.MaxMemory != "" {
		if err := startMemoryGuard(ctx, opts.MaxMemory, cancel, opts.Logger); err != nil {
			opts.Logger.Warnf("⚠️  %v", err)
		}
	}

	// 启动 Agent 与连接
	if err := ag.Start(ctx); err != nil {
		return fmt.Errorf("启动 Agent 失败: %w", err)
	}
	client.Connect(ctx)

	opts.Logger.Infof("🔗 后端地址: %s", cfg.BackendURL)
	opts.Logger.Info("   按 Ctrl+C 退出程序")

	<-ctx.Done()

	if err := client.Close(); err != nil {
		opts.Logger.Warnf("⚠️  关闭连接失败: %v", err)
	}
	if err := ag.Stop(); err != nil {
		opts.Logger.Warnf("⚠️  停止 Agent 失败: %v", err)
	}

	opts.Logger.Info("\n👋 程序已退出")
	return nil
}

// loadConfig 加载配置并应用命令行覆盖
func loadConfig(opts AgentOptions) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if opts.ConfigFile != "" {
		opts.Logger.Info("📄 加载配置文件: %s", opts.ConfigFile)
		loader := config.NewLoader()
		cfg, err = loader.LoadFromFile(opts.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// 命令行参数覆盖配置文件
	if opts.BackendURL != "" {
		cfg.BackendURL = opts.BackendURL
	}
	if opts.APIKey != "" {
		cfg.APIKey = opts.APIKey
	}
	if opts.SlotCount > 0 {
		cfg.SlotCount = opts.SlotCount
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return cfg, nil
}

// buildController 按模式构建外部程序控制器
func buildController(mode types.ControllerMode) (controller.Controller, error) {
	switch mode {
	case types.ControllerModeSim, "":
		return controller.NewSimController(), nil
	default:
		return nil, fmt.Errorf("未知的控制器模式: %s", mode)
	}
}

// startMemoryGuard 启动进程级内存防护
func startMemoryGuard(ctx context.Context, maxMemory string, cancel context.CancelFunc, log logger.ILogger) error {
	threshold, err := units.ParseBytes(maxMemory)
	if err != nil {
		return fmt.Errorf("内存阈值格式错误: %w,将忽略内存防护", err)
	}

	log.Infof("🔍 启动内存防护，阈值: %s (%d MB)", maxMemory, threshold/(1024*1024))

	monitor := osx.NewAdvancedMonitor().
		AddThreshold(osx.LevelWarning, threshold*80/100).
		AddThreshold(osx.LevelCritical, threshold).
		SetMetricType(osx.MetricAlloc).
		SetCheckOnce(false).
		SetMaxHistory(200).
		EnableGrowthCheck(20.0, 30*time.Second).
		OnWarning(func(snapshot osx.Snapshot) {
			log.Warnf("[⚠️  警告] 内存使用: %s / %s (%.1f%%), Goroutines: %d",
				units.FormatBytes(snapshot.Alloc),
				maxMemory,
				float64(snapshot.Alloc)/float64(threshold)*100,
				snapshot.Goroutines)
		}).
		OnCritical(func(snapshot osx.Snapshot) {
			log.Warnf("\n[🚨 严重] 内存使用超过阈值: %s / %s (%.1f%%)",
				units.FormatBytes(snapshot.Alloc),
				maxMemory,
				float64(snapshot.Alloc)/float64(threshold)*100)
			log.Warn("🛑 自动停止 Agent...")
			cancel()
		}).
		OnGrowthAlert(func(rate osx.GrowthRate, snapshot osx.Snapshot) {
			log.Warnf("[📈 增长告警] 增长率: %.2f%%, 绝对增长: %s, 时间窗口: %v",
				rate.Percentage,
				units.FormatBytes(uint64(rate.Absolute)),
				rate.Duration)
		})

	go monitor.Start(ctx, 5*time.Second)
	return nil
}
