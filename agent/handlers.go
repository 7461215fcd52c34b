/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-02-10 12:00:00
 * @FilePath: \go-testagent\agent\handlers.go
 * @Description: 入站命令处理器 - start_test / stop_test / config_update
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kamalyes/go-testagent/logger"
	"github.com/kamalyes/go-testagent/slot"
	"github.com/kamalyes/go-testagent/types"
	"github.com/kamalyes/go-testagent/worker"
)

// ValidationError 测试配置验证失败
type ValidationError struct {
	Field  string
	Reason string
}

// Error 实现 error 接口
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid test config: %s %s", e.Field, e.Reason)
}

// HandleStartTest 处理 start_test 命令。
// 槽位不存在/忙碌时回以错误状态更新且不做任何转换；
// 配置验证失败时槽位转入 ERROR；通过后提交到工作池执行。
func (a *Agent) HandleStartTest(data json.RawMessage) {
	var req types.StartTestRequest
	if err := json.Unmarshal(data, &req); err != nil {
		a.logger.WarnKV("Malformed start_test payload", "error", err)
		return
	}

	s, err := a.slots.Get(req.SlotIdx)
	if err != nil {
		a.sendStateUpdate(req.SlotIdx, types.SlotStateError, 0, err.Error())
		return
	}

	if s.Busy() {
		// 忙碌拒绝不触碰状态机，槽位保持原状态
		a.logger.WarnKV("start_test rejected: slot busy",
			"slot_idx", req.SlotIdx,
			"state", s.State())
		a.sendStateUpdate(req.SlotIdx, types.SlotStateError, s.Progress(),
			fmt.Sprintf("slot %d is busy (state=%s)", req.SlotIdx, s.State()))
		return
	}

	if err := validateStartRequest(&req); err != nil {
		// 验证失败不静默丢弃：槽位进入 ERROR 并上报
		s.Machine().ForceError()
		a.sendStateUpdate(req.SlotIdx, types.SlotStateError, 0, err.Error())
		return
	}

	submitErr := a.pool.Submit(&worker.Task{
		SlotIdx:  req.SlotIdx,
		Priority: types.PriorityNormal,
		Kind:     worker.TaskStartTest,
		Execute: func(ctx context.Context) {
			a.runTest(ctx, s, &req)
		},
	})
	if submitErr != nil {
		reason := submitErr.Error()
		if errors.Is(submitErr, worker.ErrQueueFull) {
			reason = fmt.Sprintf("task queue full (max %d)", a.cfg.MaxQueueSize)
		}
		a.sendStateUpdate(req.SlotIdx, types.SlotStateError, 0, reason)
		return
	}

	mode := "single"
	if req.IsBatch() {
		mode = "batch"
	}
	a.logger.InfoKV("▶️ start_test accepted",
		"slot_idx", req.SlotIdx,
		"mode", mode,
		"loop_count", req.LoopCount,
		"loop_step", req.NormalizedLoopStep())
}

// runTest 在槽位执行通道上运行一次测试并上报结局。
// 批量模式的中间 PASS 不上报，FAIL/STOP 立即上报。
func (a *Agent) runTest(ctx context.Context, s *slot.Slot, req *types.StartTestRequest) {
	// 终态复位在槽位自身的执行通道上进行：任务排队期间槽位可能已经
	// 结束上一次运行并进入终态，此时复位后照常启动
	if s.State().IsTerminal() {
		s.Reset()
	}

	outcome, err := a.exec.Run(ctx, s, req)
	if err != nil {
		a.logger.ErrorKV("Slot run errored",
			"slot_idx", s.Idx(),
			"error", err)
		a.sendStateUpdate(s.Idx(), types.SlotStateError, s.Progress(), err.Error())
		return
	}

	a.sendStateUpdate(s.Idx(), s.State(), s.Progress(), "")
	if err := a.sender.Send(types.MsgTestCompleted, &types.TestCompletedPayload{
		SlotIdx: s.Idx(),
		Result:  outcome,
	}); err != nil {
		a.logger.WarnKV("test_completed send failed",
			"slot_idx", s.Idx(),
			"error", err)
	}
}

// HandleStopTest 处理 stop_test 命令。
// 不可停止的状态回以错误更新；运行中的槽位置位取消标志，
// 执行引擎在批次边界完成 STOPPING→STOPPED 并上报。
func (a *Agent) HandleStopTest(data json.RawMessage) {
	var req types.StopTestRequest
	if err := json.Unmarshal(data, &req); err != nil {
		a.logger.WarnKV("Malformed stop_test payload", "error", err)
		return
	}

	s, err := a.slots.Get(req.SlotIdx)
	if err != nil {
		a.sendStateUpdate(req.SlotIdx, types.SlotStateError, 0, err.Error())
		return
	}

	if !s.State().IsRunning() {
		a.sendStateUpdate(req.SlotIdx, types.SlotStateError, s.Progress(),
			fmt.Sprintf("slot %d cannot accept stop in state %s", req.SlotIdx, s.State()))
		return
	}

	s.RequestCancel()
	a.logger.InfoKV("🛑 stop_test accepted, cancel flag set",
		"slot_idx", req.SlotIdx,
		"state", s.State())
}

// HandleConfigUpdate 处理 config_update 命令（运行时调整）
func (a *Agent) HandleConfigUpdate(data json.RawMessage) {
	var req types.ConfigUpdateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		a.logger.WarnKV("Malformed config_update payload", "error", err)
		return
	}

	if req.LogLevel != "" {
		level := logger.ParseLogLevel(req.LogLevel)
		logger.SetDefault(logger.New(logger.DefaultConfig().WithLevel(level)))
		a.logger.InfoKV("Log level updated", "level", req.LogLevel)
	}
}

// validateStartRequest 验证测试配置
func validateStartRequest(req *types.StartTestRequest) error {
	if req.LoopCount < 1 {
		return &ValidationError{Field: "loop_count", Reason: "must be >= 1"}
	}
	if req.LoopStep < 0 {
		return &ValidationError{Field: "loop_step", Reason: "must be >= 0 (0 means 1)"}
	}

	switch req.Method {
	case types.TestMethodZeroHR, types.TestMethodRead, types.TestMethodCycle:
	default:
		return &ValidationError{Field: "method", Reason: fmt.Sprintf("unknown value %q", req.Method)}
	}

	switch req.Preset {
	case types.TestPresetFull, types.TestPresetHot:
	default:
		return &ValidationError{Field: "preset", Reason: fmt.Sprintf("unknown value %q", req.Preset)}
	}

	if !req.Preset.IsHot() {
		if _, err := types.ParseCapacity(string(req.Capacity)); err != nil {
			return &ValidationError{Field: "capacity", Reason: err.Error()}
		}
	}
	return nil
}
