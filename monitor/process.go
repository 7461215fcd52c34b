/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-02-10 12:00:00
 * @FilePath: \go-testagent\monitor\process.go
 * @Description: 外部进程退出监控器
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package monitor

import (
	"context"
	"time"

	"github.com/kamalyes/go-logger"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
	"github.com/shirou/gopsutil/v4/process"
)

// TerminationCallback 进程退出回调
type TerminationCallback func(pid int32)

// ProcessMonitor 外部进程退出监控器。
// 每个被监视的 pid 的退出回调恰好触发一次，触发后从监视集合移除；
// 监视一个已退出的进程立即触发回调而不报错。
type ProcessMonitor struct {
	interval time.Duration
	watches  *syncx.ShardedMap[int32, TerminationCallback]

	alive func(pid int32) bool // 可注入，便于测试

	taskManager *syncx.PeriodicTaskManager
	logger      logger.ILogger
}

// NewProcessMonitor 创建进程监控器
func NewProcessMonitor(interval time.Duration, log logger.ILogger) *ProcessMonitor {
	return &ProcessMonitor{
		interval:    interval,
		watches:     syncx.NewShardedMap[int32, TerminationCallback](16),
		alive:       processAlive,
		taskManager: syncx.NewPeriodicTaskManager(),
		logger:      log,
	}
}

// processAlive 进程是否仍在运行（僵尸进程视为已退出）
func processAlive(pid int32) bool {
	exists, err := process.PidExists(pid)
	if err != nil || !exists {
		return false
	}

	p, err := process.NewProcess(pid)
	if err != nil {
		return false
	}
	statuses, err := p.Status()
	if err != nil {
		// 状态读取失败时保守认为仍在运行，等待下一轮确认
		return true
	}
	for _, st := range statuses {
		if st == process.Zombie {
			return false
		}
	}
	return true
}

// SetAliveCheck 注入存活检查函数（测试用）
func (pm *ProcessMonitor) SetAliveCheck(alive func(pid int32) bool) {
	pm.alive = alive
}

// Watch 将进程加入监视集合。
// 进程已经退出时回调立即触发且不加入集合，这不是错误。
func (pm *ProcessMonitor) Watch(pid int32, cb TerminationCallback) {
	if !pm.alive(pid) {
		pm.logger.InfoKV("Process already exited, firing callback immediately", "pid", pid)
		if cb != nil {
			cb(pid)
		}
		return
	}

	pm.watches.Store(pid, cb)
	pm.logger.DebugKV("Process watch added", "pid", pid)
}

// Unwatch 显式移除监视，重复移除是无害的空操作
func (pm *ProcessMonitor) Unwatch(pid int32) {
	pm.watches.Delete(pid)
}

// IsRunning 查询进程是否在运行
func (pm *ProcessMonitor) IsRunning(pid int32) bool {
	return pm.alive(pid)
}

// WatchCount 当前监视集合大小
func (pm *ProcessMonitor) WatchCount() int {
	n := 0
	pm.watches.Range(func(pid int32, cb TerminationCallback) bool {
		n++
		return true
	})
	return n
}

// Start 启动监控循环
func (pm *ProcessMonitor) Start(ctx context.Context) {
	task := syncx.NewPeriodicTask("process-monitor", pm.interval, func(taskCtx context.Context) error {
		pm.CheckAll()
		return nil
	}).
		SetOnError(func(name string, err error) {
			pm.logger.ErrorKV("Process monitor task error", "task", name, "error", err)
		}).
		SetOnStart(func(name string) {
			pm.logger.InfoKV("Process monitor started", "interval", pm.interval)
		})

	pm.taskManager.AddTask(task)
	pm.taskManager.StartWithContext(ctx)
}

// CheckAll 检查所有被监视的进程。
// 退出回调在移除监视项之后触发，保证恰好一次。
func (pm *ProcessMonitor) CheckAll() {
	var exited []int32
	var callbacks []TerminationCallback

	pm.watches.Range(func(pid int32, cb TerminationCallback) bool {
		if !pm.alive(pid) {
			exited = append(exited, pid)
			callbacks = append(callbacks, cb)
		}
		return true
	})

	for i, pid := range exited {
		// 先移除再触发：重复观察到同一退出不会二次触发
		if _, loaded := pm.watches.Load(pid); !loaded {
			continue
		}
		pm.watches.Delete(pid)

		pm.logger.WarnKV("💀 Watched process exited", "pid", pid)
		if callbacks[i] != nil {
			callbacks[i](pid)
		}
	}
}
