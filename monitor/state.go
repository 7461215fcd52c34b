/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-02-10 12:00:00
 * @FilePath: \go-testagent\monitor\state.go
 * @Description: 槽位挂起检测监控器
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package monitor

import (
	"context"
	"time"

	"github.com/kamalyes/go-logger"
	"github.com/kamalyes/go-testagent/slot"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// HangCallback 挂起回调，参数为槽位索引与停滞的进度值
type HangCallback func(slotIdx, progress int)

// hangTrack 单个槽位的挂起追踪状态
type hangTrack struct {
	lastProgress int
	unchanged    int
	alerted      bool
}

// StateMonitor 挂起检测监控器。
// 周期性轮询忙碌槽位的进度值，连续 threshold 次不变判定为挂起，
// 回调只触发一次，进度恢复变化后重新武装。
type StateMonitor struct {
	slots     *slot.Manager
	interval  time.Duration
	threshold int
	onHang    HangCallback

	mu     *syncx.RWLock
	tracks map[int]*hangTrack

	taskManager *syncx.PeriodicTaskManager
	logger      logger.ILogger
}

// NewStateMonitor 创建挂起检测监控器
func NewStateMonitor(slots *slot.Manager, interval time.Duration, threshold int, log logger.ILogger) *StateMonitor {
	return &StateMonitor{
		slots:       slots,
		interval:    interval,
		threshold:   threshold,
		mu:          syncx.NewRWLock(),
		tracks:      make(map[int]*hangTrack),
		taskManager: syncx.NewPeriodicTaskManager(),
		logger:      log,
	}
}

// OnHang 注册挂起回调
func (sm *StateMonitor) OnHang(cb HangCallback) {
	sm.onHang = cb
}

// Start 启动监控循环
func (sm *StateMonitor) Start(ctx context.Context) {
	task := syncx.NewPeriodicTask("hang-monitor", sm.interval, func(taskCtx context.Context) error {
		sm.checkAll()
		return nil
	}).
		SetOnError(func(name string, err error) {
			sm.logger.ErrorKV("Hang monitor task error", "task", name, "error", err)
		}).
		SetOnStart(func(name string) {
			sm.logger.InfoKV("Hang monitor started",
				"interval", sm.interval,
				"threshold", sm.threshold)
		})

	sm.taskManager.AddTask(task)
	sm.taskManager.StartWithContext(ctx)
}

// checkAll 检查所有忙碌槽位
func (sm *StateMonitor) checkAll() {
	for _, s := range sm.slots.All() {
		if s.Busy() {
			sm.CheckSlot(s.Idx(), s.Progress())
		} else {
			sm.clear(s.Idx())
		}
	}
}

// CheckSlot 用一个进度采样推进指定槽位的挂起判定。
// 采样值与上次相等则累计计数，达到阈值时触发一次回调；
// 采样值变化则复位计数并重新武装。
func (sm *StateMonitor) CheckSlot(slotIdx, progress int) {
	var fire bool
	syncx.WithLock(sm.mu, func() {
		t, ok := sm.tracks[slotIdx]
		if !ok {
			sm.tracks[slotIdx] = &hangTrack{lastProgress: progress}
			return
		}

		if progress != t.lastProgress {
			t.lastProgress = progress
			t.unchanged = 0
			t.alerted = false
			return
		}

		t.unchanged++
		if t.unchanged >= sm.threshold && !t.alerted {
			t.alerted = true
			fire = true
		}
	})

	if fire && sm.onHang != nil {
		sm.logger.WarnKV("⚠️ Slot hang detected",
			"slot_idx", slotIdx,
			"progress", progress,
			"polls", sm.threshold)
		sm.onHang(slotIdx, progress)
	}
}

// clear 槽位空闲时清除追踪状态
func (sm *StateMonitor) clear(slotIdx int) {
	syncx.WithLock(sm.mu, func() {
		delete(sm.tracks, slotIdx)
	})
}
