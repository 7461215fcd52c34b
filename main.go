/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-02-10 12:00:00
 * @FilePath: \go-testagent\main.go
 * @Description: 测试 Agent 主入口
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kamalyes/go-testagent/bootstrap"
	"github.com/kamalyes/go-testagent/logger"
	"github.com/kamalyes/go-testagent/types"
)

var (
	// 基础参数
	configFile string
	backendURL string
	apiKey     string
	slotCount  int

	// 控制器
	controllerMode types.ControllerMode

	// 日志配置
	logLevel string
	logFile  string
	quiet    bool
	verbose  bool

	// 内存限制
	maxMemory string
)

func init() {
	controllerMode = types.ControllerModeSim

	// 基础参数
	flag.StringVar(&configFile, "config", "", "配置文件路径 (yaml/json)")
	flag.StringVar(&backendURL, "backend", "", "后端 WebSocket 地址 (如: ws://localhost:8000/ws/agent)")
	flag.StringVar(&apiKey, "api-key", "", "API Key (可选，未设置时握手不附带凭据)")
	flag.IntVar(&slotCount, "slots", 0, "槽位数量 (0表示使用配置文件/默认值)")

	// 控制器
	flag.Var(&controllerMode, "controller", "外部测试程序控制器模式 (sim:内置模拟器)")

	// 日志配置
	flag.StringVar(&logLevel, "log-level", "info", "日志级别 (debug/info/warn/error)")
	flag.StringVar(&logFile, "log-file", "", "日志文件路径")
	flag.BoolVar(&quiet, "quiet", false, "静默模式（仅错误）")
	flag.BoolVar(&verbose, "verbose", false, "详细模式（包含调试信息）")

	// 内存限制
	flag.StringVar(&maxMemory, "max-memory", "", "内存使用阈值，超过后自动停止 Agent (如: 1GB, 512MB)")
}

func main() {
	flag.Parse()

	// 初始化日志器
	initLogger()

	// 处理子命令
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "help", "-h", "--help":
			printBanner()
			printSimpleUsage()
			os.Exit(0)
		case "version", "-v", "--version":
			printVersion()
			os.Exit(0)
		}
	}

	// 打印banner
	printBanner()

	opts := bootstrap.AgentOptions{
		ConfigFile:     configFile,
		BackendURL:     backendURL,
		APIKey:         apiKey,
		SlotCount:      slotCount,
		ControllerMode: controllerMode,
		MaxMemory:      maxMemory,
		Logger:         logger.Default,
	}
	if err := bootstrap.RunAgent(opts); err != nil {
		logger.Default.Fatalf("❌ 运行 Agent 失败: %v", err)
	}
}

// initLogger 初始化日志器
func initLogger() {
	config := logger.DefaultConfig()

	// 优先级：verbose > quiet > logLevel
	switch {
	case verbose:
		config = config.WithLevel(logger.DEBUG).WithShowCaller(true).WithTimeFormat("2006-01-02 15:04:05.000")
	case quiet:
		config = config.WithLevel(logger.ERROR)
	default:
		config = config.WithLevel(logger.ParseLogLevel(logLevel))
	}

	// 配置输出
	if logFile != "" {
		rotateWriter := logger.NewRotateWriter(logFile, 100*1024*1024, 5)
		config = config.WithOutput(rotateWriter).WithColorful(false)
	}

	logger.SetDefault(logger.New(config))
}

// printBanner 打印启动banner
func printBanner() {
	logger.Default.Info(`
╔══════════════════════════════════════════════════════════╗
║                                                          ║
║     🧪 Go Test Agent 🧪                                  ║
║                                                          ║
║     🤖 多槽位测试编排 Agent                               ║
║     🔧 WebSocket 远程指挥 / 批量循环执行                  ║
║     ⚙️  基于 go-toolbox 工具库                           ║
║                                                          ║
╚══════════════════════════════════════════════════════════╝
`)
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Println("go-testagent version 1.0.0")
	fmt.Println("多槽位测试编排 Agent")
}

// printSimpleUsage 打印简化的使用说明
func printSimpleUsage() {
	fmt.Println("\n使用方法:")
	flag.Usage()

	fmt.Println("\n快速开始:")
	fmt.Println("  # 连接后端")
	fmt.Println("  go-testagent -backend ws://localhost:8000/ws/agent")
	fmt.Println("")
	fmt.Println("  # 使用配置文件")
	fmt.Println("  go-testagent -config agent.yaml")
	fmt.Println("")
	fmt.Println("  # 带凭据与内存防护")
	fmt.Println("  go-testagent -backend wss://backend/ws/agent -api-key secret -max-memory 1GB")
}
