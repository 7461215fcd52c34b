/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-02-10 12:00:00
 * @FilePath: \go-testagent\executor\batch.go
 * @Description: 批量执行引擎 - 驱动槽位状态机完成循环测试
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/kamalyes/go-logger"
	"github.com/kamalyes/go-testagent/config"
	"github.com/kamalyes/go-testagent/controller"
	"github.com/kamalyes/go-testagent/slot"
	"github.com/kamalyes/go-testagent/types"
)

// BatchExecutor 批量执行引擎。
// 状态机在运行开始时被驱动 START_TEST→CONFIGURE→RUN，循环期间保持 RUN；
// 停止请求在批次边界被检查，单步内的外部调用不可抢占。
type BatchExecutor struct {
	controller controller.Controller
	cfg        config.BatchConfig
	logger     logger.ILogger
}

// NewBatchExecutor 创建批量执行引擎
func NewBatchExecutor(ctrl controller.Controller, cfg config.BatchConfig, log logger.ILogger) *BatchExecutor {
	return &BatchExecutor{
		controller: ctrl,
		cfg:        cfg,
		logger:     log,
	}
}

// Run 执行一次槽位运行（单次或批量）。
// 返回最终结局 PASS/FAIL/STOP；返回 error 时槽位已被置为 ERROR。
// 批量模式下中间步骤的 PASS 不对外上报，FAIL/STOP 立即终止剩余迭代。
func (e *BatchExecutor) Run(ctx context.Context, s *slot.Slot, req *types.StartTestRequest) (types.Outcome, error) {
	loopCount := req.LoopCount
	if loopCount < 1 {
		loopCount = 1
	}
	loopStep := req.NormalizedLoopStep()

	// 进度按批次推进：TotalBatch = ceil(loop_count / loop_step)。
	// 预处理默认不计入批次进度，可通过 precondition_counts 改变。
	bc := slot.NewBatchContext(loopCount, loopStep)
	if req.NeedsPrecondition && e.cfg.PreconditionCounts {
		bc.AddPreconditionBatch()
	}
	s.SetBatch(bc)

	m := s.Machine()
	if _, err := m.Transition(types.EventStartTest); err != nil {
		return "", err
	}

	e.logger.InfoKV("🚀 Slot run started",
		"slot_idx", s.Idx(),
		"loop_count", loopCount,
		"loop_step", loopStep,
		"method", req.Method,
		"precondition", req.NeedsPrecondition)

	h, err := e.controller.FindWindow(controller.WindowCriteria{SlotIdx: s.Idx()})
	if err != nil {
		m.ForceError()
		return "", fmt.Errorf("find test window for slot %d: %w", s.Idx(), err)
	}

	if _, err := m.Transition(types.EventConfigure); err != nil {
		return "", err
	}
	if err := e.applyConfig(h, req); err != nil {
		m.ForceError()
		return "", fmt.Errorf("configure slot %d: %w", s.Idx(), err)
	}
	if _, err := m.Transition(types.EventRun); err != nil {
		return "", err
	}

	if req.NeedsPrecondition {
		outcome, err := e.precondition(ctx, s, h)
		if err != nil || outcome != "" {
			return outcome, err
		}
		if e.cfg.PreconditionCounts {
			s.CompletePrecondition()
		}
	}

	for i := 1; i <= loopCount; i++ {
		// 停止请求只在批次边界生效
		if s.CancelRequested() || ctx.Err() != nil {
			return e.stop(s, h)
		}

		status, err := e.runStep(ctx, s, h)
		if err != nil {
			m.ForceError()
			return "", fmt.Errorf("slot %d step %d: %w", s.Idx(), i, err)
		}

		switch status {
		case controller.StatusFail:
			s.AdvanceBatch(i)
			if _, terr := m.Transition(types.EventFail); terr != nil {
				e.logger.DebugKV("Fail transition rejected",
					"slot_idx", s.Idx(), "error", terr)
			}
			e.logger.WarnKV("❌ Slot run failed",
				"slot_idx", s.Idx(),
				"step", i,
				"loop_count", loopCount)
			return types.OutcomeFail, nil
		case controller.StatusStopped:
			return e.stopAck(s)
		}

		s.AdvanceBatch(i)
		e.logger.DebugKV("Step passed",
			"slot_idx", s.Idx(),
			"step", i,
			"progress", s.Progress())
	}

	if _, terr := m.Transition(types.EventComplete); terr != nil {
		e.logger.DebugKV("Complete transition rejected",
			"slot_idx", s.Idx(), "error", terr)
	}
	e.logger.InfoKV("✅ Slot run complete",
		"slot_idx", s.Idx(),
		"loop_count", loopCount)
	return types.OutcomePass, nil
}

// applyConfig 将测试配置写入外部程序控件
func (e *BatchExecutor) applyConfig(h controller.Handle, req *types.StartTestRequest) error {
	capacity := req.Capacity
	if req.Preset.IsHot() {
		capacity = types.Capacity4GB // Hot 预设容量固定
	}

	if err := e.controller.SetText(h, controller.ControlMethod, string(req.Method)); err != nil {
		return err
	}
	return e.controller.SetText(h, controller.ControlCapacity, string(capacity))
}

// precondition 执行主循环前的预处理步骤。
// 失败时直接以 FAIL 结束，不进入主循环；返回 "" 表示继续。
func (e *BatchExecutor) precondition(ctx context.Context, s *slot.Slot, h controller.Handle) (types.Outcome, error) {
	status, err := e.runStep(ctx, s, h)
	if err != nil {
		s.Machine().ForceError()
		return "", fmt.Errorf("slot %d precondition: %w", s.Idx(), err)
	}

	switch status {
	case controller.StatusFail:
		if _, terr := s.Machine().Transition(types.EventFail); terr != nil {
			e.logger.DebugKV("Fail transition rejected",
				"slot_idx", s.Idx(), "error", terr)
		}
		e.logger.WarnKV("❌ Precondition failed", "slot_idx", s.Idx())
		return types.OutcomeFail, nil
	case controller.StatusStopped:
		return e.stopAck(s)
	}
	return "", nil
}

// runStep 执行一个测试步骤：点击启动后轮询状态直到出结果或超时。
// 超时按可恢复的步骤失败处理（返回 FAIL 状态），不作为崩溃传播。
func (e *BatchExecutor) runStep(ctx context.Context, s *slot.Slot, h controller.Handle) (controller.Status, error) {
	if err := e.controller.Click(h, controller.ControlStart); err != nil {
		return "", err
	}

	deadline := time.Now().Add(e.cfg.StepTimeout)
	for {
		status, err := e.controller.ReadStatus(h)
		if err != nil {
			return "", err
		}

		switch status {
		case controller.StatusPass, controller.StatusFail, controller.StatusStopped:
			return status, nil
		}

		if time.Now().After(deadline) {
			e.logger.WarnKV("⏰ Step timed out, treated as failure",
				"slot_idx", s.Idx(),
				"timeout", e.cfg.StepTimeout)
			return controller.StatusFail, nil
		}

		select {
		case <-ctx.Done():
			return controller.StatusStopped, nil
		case <-time.After(e.cfg.StepPollInterval):
		}
	}
}

// stop 在批次边界响应停止请求：通知外部程序停止并确认
func (e *BatchExecutor) stop(s *slot.Slot, h controller.Handle) (types.Outcome, error) {
	if _, err := s.Machine().Transition(types.EventStop); err != nil {
		return "", err
	}

	if err := e.controller.Click(h, controller.ControlStop); err != nil {
		// 无法确认外部程序已终止
		s.Machine().ForceError()
		return "", fmt.Errorf("stop slot %d: %w", s.Idx(), err)
	}

	if _, err := s.Machine().Transition(types.EventStopAck); err != nil {
		return "", err
	}

	e.logger.InfoKV("🛑 Slot run stopped", "slot_idx", s.Idx())
	return types.OutcomeStop, nil
}

// stopAck 外部程序已自行停止时的确认路径
func (e *BatchExecutor) stopAck(s *slot.Slot) (types.Outcome, error) {
	m := s.Machine()
	if _, terr := m.Transition(types.EventStop); terr != nil {
		e.logger.DebugKV("Stop transition rejected",
			"slot_idx", s.Idx(), "error", terr)
	}
	if _, err := m.Transition(types.EventStopAck); err != nil {
		return "", err
	}
	e.logger.InfoKV("🛑 Slot run stopped by tool", "slot_idx", s.Idx())
	return types.OutcomeStop, nil
}
