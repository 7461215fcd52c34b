/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-02-10 12:00:00
 * @FilePath: \go-testagent\monitor\memory.go
 * @Description: 进程内存监控器 - 边沿触发告警与定期回收
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package monitor

import (
	"context"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/kamalyes/go-logger"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
	"github.com/kamalyes/go-toolbox/pkg/units"
	"github.com/shirou/gopsutil/v4/process"
)

// MemorySample 一次内存采样
type MemorySample struct {
	RSS       uint64    `json:"rss"`
	Timestamp time.Time `json:"timestamp"`
}

// MemoryCallback 内存阈值回调
type MemoryCallback func(sample MemorySample)

// MemoryMonitor 进程内存监控器。
// warning/critical 阈值为边沿触发：只在越过阈值的那一次采样触发回调，
// 回落后重新武装。采样历史保留在有界环形缓冲中。
type MemoryMonitor struct {
	interval   time.Duration
	warning    uint64
	critical   uint64
	maxHistory int
	cooldown   time.Duration

	sampler func() (uint64, error) // 可注入，便于测试

	mu            *syncx.RWLock
	history       []MemorySample
	aboveWarning  bool
	aboveCritical bool
	lastOptimize  time.Time

	onWarning  MemoryCallback
	onCritical MemoryCallback

	taskManager *syncx.PeriodicTaskManager
	logger      logger.ILogger
}

// NewMemoryMonitor 创建内存监控器。
// warning/critical 为字节阈值字符串（如 512MB / 1GB）。
func NewMemoryMonitor(interval time.Duration, warning, critical string, maxHistory int, cooldown time.Duration, log logger.ILogger) (*MemoryMonitor, error) {
	warnBytes, err := units.ParseBytes(warning)
	if err != nil {
		return nil, err
	}
	critBytes, err := units.ParseBytes(critical)
	if err != nil {
		return nil, err
	}

	return &MemoryMonitor{
		interval:    interval,
		warning:     warnBytes,
		critical:    critBytes,
		maxHistory:  maxHistory,
		cooldown:    cooldown,
		sampler:     processRSS,
		mu:          syncx.NewRWLock(),
		taskManager: syncx.NewPeriodicTaskManager(),
		logger:      log,
	}, nil
}

// processRSS 当前进程的常驻内存
func processRSS() (uint64, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	info, err := p.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return info.RSS, nil
}

// OnWarning 注册告警回调
func (mm *MemoryMonitor) OnWarning(cb MemoryCallback) {
	mm.onWarning = cb
}

// OnCritical 注册严重告警回调
func (mm *MemoryMonitor) OnCritical(cb MemoryCallback) {
	mm.onCritical = cb
}

// SetSampler 注入采样函数（测试用）
func (mm *MemoryMonitor) SetSampler(sampler func() (uint64, error)) {
	mm.sampler = sampler
}

// Start 启动监控循环
func (mm *MemoryMonitor) Start(ctx context.Context) {
	task := syncx.NewPeriodicTask("memory-monitor", mm.interval, func(taskCtx context.Context) error {
		mm.Check()
		return nil
	}).
		SetOnError(func(name string, err error) {
			mm.logger.ErrorKV("Memory monitor task error", "task", name, "error", err)
		}).
		SetOnStart(func(name string) {
			mm.logger.InfoKV("Memory monitor started",
				"interval", mm.interval,
				"warning", units.FormatBytes(mm.warning),
				"critical", units.FormatBytes(mm.critical))
		})

	mm.taskManager.AddTask(task)
	mm.taskManager.StartWithContext(ctx)
}

// Check 执行一次采样与阈值判定
func (mm *MemoryMonitor) Check() {
	rss, err := mm.sampler()
	if err != nil {
		mm.logger.WarnKV("Memory sample failed", "error", err)
		return
	}
	mm.Observe(MemorySample{RSS: rss, Timestamp: time.Now()})
}

// Observe 记录一个采样并做边沿触发判定
func (mm *MemoryMonitor) Observe(sample MemorySample) {
	var fireWarning, fireCritical, optimize bool

	syncx.WithLock(mm.mu, func() {
		mm.history = append(mm.history, sample)
		if len(mm.history) > mm.maxHistory {
			mm.history = mm.history[len(mm.history)-mm.maxHistory:]
		}

		// 边沿触发：只在穿越阈值的采样上报一次
		if sample.RSS >= mm.critical {
			if !mm.aboveCritical {
				mm.aboveCritical = true
				fireCritical = true
			}
		} else {
			mm.aboveCritical = false
		}

		if sample.RSS >= mm.warning {
			if !mm.aboveWarning {
				mm.aboveWarning = true
				fireWarning = true
			}
		} else {
			mm.aboveWarning = false
		}

		if mm.shouldOptimize(sample) && time.Since(mm.lastOptimize) >= mm.cooldown {
			mm.lastOptimize = time.Now()
			optimize = true
		}
	})

	if fireWarning && mm.onWarning != nil {
		mm.logger.WarnKV("⚠️ Memory warning threshold crossed",
			"rss", units.FormatBytes(sample.RSS),
			"threshold", units.FormatBytes(mm.warning))
		mm.onWarning(sample)
	}
	if fireCritical && mm.onCritical != nil {
		mm.logger.WarnKV("🚨 Memory critical threshold crossed",
			"rss", units.FormatBytes(sample.RSS),
			"threshold", units.FormatBytes(mm.critical))
		mm.onCritical(sample)
	}
	if optimize {
		mm.reclaim(sample)
	}
}

// shouldOptimize 判定是否需要主动回收内存（须持有锁）。
// 超过告警阈值，或在采样窗口内持续增长超过 50%，都会触发回收。
func (mm *MemoryMonitor) shouldOptimize(sample MemorySample) bool {
	if sample.RSS >= mm.warning {
		return true
	}

	n := len(mm.history)
	if n < 10 {
		return false
	}
	oldest := mm.history[n-10]
	return oldest.RSS > 0 && sample.RSS > oldest.RSS+oldest.RSS/2
}

// reclaim 尽力而为的内存回收
func (mm *MemoryMonitor) reclaim(sample MemorySample) {
	mm.logger.InfoKV("🧹 Reclaiming memory",
		"rss", units.FormatBytes(sample.RSS),
		"goroutines", runtime.NumGoroutine())
	runtime.GC()
	debug.FreeOSMemory()
}

// History 采样历史快照
func (mm *MemoryMonitor) History() []MemorySample {
	return syncx.WithRLockReturnValue(mm.mu, func() []MemorySample {
		out := make([]MemorySample, len(mm.history))
		copy(out, mm.history)
		return out
	})
}
