/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-02-10 12:00:00
 * @FilePath: \go-testagent\config\config.go
 * @Description: Agent 配置定义
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package config

import (
	"fmt"
	"time"
)

// Config Agent 总配置
type Config struct {
	// 后端连接
	BackendURL string `yaml:"backend_url" json:"backend_url"` // 后端 WebSocket 地址 (ws:// 或 wss://)
	APIKey     string `yaml:"api_key" json:"api_key"`         // 可选 API Key，为空时完全不附带凭据
	AgentID    string `yaml:"agent_id" json:"agent_id"`       // 为空时自动生成

	// 槽位与调度
	SlotCount    int `yaml:"slot_count" json:"slot_count"`         // 槽位数量
	MaxQueueSize int `yaml:"max_queue_size" json:"max_queue_size"` // 待执行任务队列上限（drop-if-full）
	MaxActive    int `yaml:"max_active" json:"max_active"`         // 并发执行槽位上限

	// 重连策略
	Reconnect ReconnectConfig `yaml:"reconnect" json:"reconnect"`

	// 心跳
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" json:"heartbeat_interval"`

	// 进度上报间隔
	ProgressInterval time.Duration `yaml:"progress_interval" json:"progress_interval"`

	// 监控
	Monitor MonitorConfig `yaml:"monitor" json:"monitor"`

	// 批量执行
	Batch BatchConfig `yaml:"batch" json:"batch"`
}

// ReconnectConfig 重连策略配置
type ReconnectConfig struct {
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`     // 初始重连延迟
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"` // 最大重连次数，超过后进入 offline
}

// MonitorConfig 监控配置
type MonitorConfig struct {
	// 挂起检测
	HangInterval  time.Duration `yaml:"hang_interval" json:"hang_interval"`   // 进度轮询间隔
	HangThreshold int           `yaml:"hang_threshold" json:"hang_threshold"` // 进度连续不变多少次判定挂起

	// 内存监控
	MemoryInterval   time.Duration `yaml:"memory_interval" json:"memory_interval"`
	MemoryWarning    string        `yaml:"memory_warning" json:"memory_warning"`   // 告警阈值 (如 512MB)
	MemoryCritical   string        `yaml:"memory_critical" json:"memory_critical"` // 严重阈值 (如 1GB)
	MemoryMaxHistory int           `yaml:"memory_max_history" json:"memory_max_history"`
	AlertCooldown    time.Duration `yaml:"alert_cooldown" json:"alert_cooldown"` // 内存优化动作的最小间隔

	// 进程监控
	ProcessInterval time.Duration `yaml:"process_interval" json:"process_interval"`
}

// BatchConfig 批量执行配置
type BatchConfig struct {
	// 预处理步骤是否计入批次进度。默认不计入：预处理是主循环之前的
	// 准备动作，progress 仅由主循环推进。
	PreconditionCounts bool `yaml:"precondition_counts" json:"precondition_counts"`

	// 单步状态轮询
	StepPollInterval time.Duration `yaml:"step_poll_interval" json:"step_poll_interval"`
	StepTimeout      time.Duration `yaml:"step_timeout" json:"step_timeout"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		BackendURL:   "ws://localhost:8000/ws/agent",
		SlotCount:    4,
		MaxQueueSize: 32,
		MaxActive:    4,
		Reconnect: ReconnectConfig{
			BaseDelay:   2 * time.Second,
			MaxAttempts: 10,
		},
		HeartbeatInterval: 5 * time.Second,
		ProgressInterval:  2 * time.Second,
		Monitor: MonitorConfig{
			HangInterval:     10 * time.Second,
			HangThreshold:    6,
			MemoryInterval:   5 * time.Second,
			MemoryWarning:    "512MB",
			MemoryCritical:   "1GB",
			MemoryMaxHistory: 1000,
			AlertCooldown:    5 * time.Minute,
			ProcessInterval:  3 * time.Second,
		},
		Batch: BatchConfig{
			PreconditionCounts: false,
			StepPollInterval:   500 * time.Millisecond,
			StepTimeout:        30 * time.Minute,
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("backend_url 不能为空")
	}
	if c.SlotCount <= 0 {
		return fmt.Errorf("slot_count 必须大于0")
	}
	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("max_queue_size 必须大于0")
	}
	if c.MaxActive <= 0 {
		return fmt.Errorf("max_active 必须大于0")
	}
	if c.Reconnect.BaseDelay <= 0 {
		return fmt.Errorf("reconnect.base_delay 必须大于0")
	}
	if c.Reconnect.MaxAttempts <= 0 {
		return fmt.Errorf("reconnect.max_attempts 必须大于0")
	}
	if c.Monitor.HangThreshold <= 0 {
		return fmt.Errorf("monitor.hang_threshold 必须大于0")
	}
	return nil
}
