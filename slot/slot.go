/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-02-10 12:00:00
 * @FilePath: \go-testagent\slot\slot.go
 * @Description: 槽位实体
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package slot

import (
	"github.com/kamalyes/go-testagent/types"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// Slot 一个独立可调度的测试执行上下文。
// 槽位状态只在其专属执行通道上被 Batch Executor 修改，
// 监控器与处理器仅做只读快照。
type Slot struct {
	idx     int
	machine *Machine

	mu     *syncx.RWLock
	batch  *BatchContext // 空闲时为 nil
	cancel *syncx.Bool   // 停止请求标志，批次边界处被检查
}

// NewSlot 创建槽位
func NewSlot(idx int) *Slot {
	return &Slot{
		idx:     idx,
		machine: NewMachine(),
		mu:      syncx.NewRWLock(),
		cancel:  syncx.NewBool(false),
	}
}

// Idx 槽位索引
func (s *Slot) Idx() int {
	return s.idx
}

// Machine 槽位状态机
func (s *Slot) Machine() *Machine {
	return s.machine
}

// State 当前状态
func (s *Slot) State() types.SlotState {
	return s.machine.State()
}

// Busy 是否处于非空闲且非终态（即正在运行）
func (s *Slot) Busy() bool {
	state := s.machine.State()
	return state != types.SlotStateIdle && !state.IsTerminal()
}

// SetBatch 绑定批次上下文（运行开始时调用）
func (s *Slot) SetBatch(bc *BatchContext) {
	syncx.WithLock(s.mu, func() {
		s.batch = bc
	})
}

// ClearBatch 清空批次上下文（槽位复位时调用）
func (s *Slot) ClearBatch() {
	syncx.WithLock(s.mu, func() {
		s.batch = nil
	})
}

// BatchSnapshot 批次上下文快照，空闲时返回 nil
func (s *Slot) BatchSnapshot() *BatchContext {
	return syncx.WithRLockReturnValue(s.mu, func() *BatchContext {
		if s.batch == nil {
			return nil
		}
		copied := *s.batch
		return &copied
	})
}

// Progress 当前进度百分比，无批次上下文时为 0
func (s *Slot) Progress() int {
	if bc := s.BatchSnapshot(); bc != nil {
		return bc.ProgressPercent
	}
	return 0
}

// AdvanceBatch 推进批次进度（仅执行通道调用）
func (s *Slot) AdvanceBatch(step int) {
	syncx.WithLock(s.mu, func() {
		if s.batch != nil {
			s.batch.Advance(step)
		}
	})
}

// CompletePrecondition 标记预处理批次完成（仅执行通道调用）
func (s *Slot) CompletePrecondition() {
	syncx.WithLock(s.mu, func() {
		if s.batch != nil {
			s.batch.CompletePrecondition()
		}
	})
}

// RequestCancel 置位停止请求标志
func (s *Slot) RequestCancel() {
	s.cancel.Store(true)
}

// CancelRequested 是否收到停止请求
func (s *Slot) CancelRequested() bool {
	return s.cancel.Load()
}

// Reset 显式复位：回到 IDLE、清空批次上下文与停止标志。
// 终态槽位只有经过 Reset 才能接受下一个 START_TEST。
func (s *Slot) Reset() {
	s.machine.Reset()
	s.ClearBatch()
	s.cancel.Store(false)
}
