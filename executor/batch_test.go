/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-02-10 12:00:00
 * @FilePath: \go-testagent\executor\batch_test.go
 * @Description: 批量执行引擎测试
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package executor

import (
	"context"
	"testing"
	"time"

	"github.com/kamalyes/go-testagent/config"
	"github.com/kamalyes/go-testagent/controller"
	"github.com/kamalyes/go-testagent/logger"
	"github.com/kamalyes/go-testagent/slot"
	"github.com/kamalyes/go-testagent/types"
	"github.com/stretchr/testify/assert"
)

func testBatchConfig() config.BatchConfig {
	return config.BatchConfig{
		PreconditionCounts: false,
		StepPollInterval:   time.Millisecond,
		StepTimeout:        time.Second,
	}
}

func newTestExecutor(ctrl controller.Controller) *BatchExecutor {
	return NewBatchExecutor(ctrl, testBatchConfig(), logger.New(logger.DefaultConfig()))
}

// TestSingleRunPass 测试单次模式成功路径
func TestSingleRunPass(t *testing.T) {
	sim := controller.NewSimController()
	exec := newTestExecutor(sim)
	s := slot.NewSlot(0)

	outcome, err := exec.Run(context.Background(), s, &types.StartTestRequest{
		SlotIdx:   0,
		Method:    types.TestMethodRead,
		Preset:    types.TestPresetFull,
		Capacity:  types.Capacity64GB,
		LoopCount: 1,
	})
	assert.NoError(t, err)
	assert.Equal(t, types.OutcomePass, outcome)
	assert.Equal(t, types.SlotStateComplete, s.State())
	assert.Equal(t, 100, s.Progress())
	assert.Equal(t, 1, sim.Clicks(0))

	// 配置被写入外部程序控件
	assert.Equal(t, string(types.TestMethodRead), sim.Field(0, controller.ControlMethod))
	assert.Equal(t, string(types.Capacity64GB), sim.Field(0, controller.ControlCapacity))
}

// TestBatchFailStopsRemaining 测试批量模式中途失败立即终止剩余迭代
func TestBatchFailStopsRemaining(t *testing.T) {
	sim := controller.NewSimController()
	// 第三次运行失败
	sim.ScriptResults(1, controller.StatusPass, controller.StatusPass, controller.StatusFail)

	exec := newTestExecutor(sim)
	s := slot.NewSlot(1)

	outcome, err := exec.Run(context.Background(), s, &types.StartTestRequest{
		SlotIdx:   1,
		Method:    types.TestMethodCycle,
		Preset:    types.TestPresetFull,
		Capacity:  types.Capacity32GB,
		LoopCount: 5,
	})
	assert.NoError(t, err)
	assert.Equal(t, types.OutcomeFail, outcome)
	assert.Equal(t, types.SlotStateFail, s.State())

	// 失败后剩余两次迭代不再启动
	assert.Equal(t, 3, sim.Clicks(1))

	// 进度反映失败发生的步骤
	snap := s.BatchSnapshot()
	assert.Equal(t, 3, snap.LoopsDone())
	assert.Equal(t, 3, snap.CurrentBatch)
	assert.Equal(t, 60, snap.ProgressPercent)
}

// TestGroupedBatchRun 测试 loop_step 分组运行：循环总数不变，进度按批次推进
func TestGroupedBatchRun(t *testing.T) {
	sim := controller.NewSimController()
	exec := newTestExecutor(sim)
	s := slot.NewSlot(9)

	outcome, err := exec.Run(context.Background(), s, &types.StartTestRequest{
		SlotIdx:   9,
		Method:    types.TestMethodRead,
		Preset:    types.TestPresetFull,
		Capacity:  types.Capacity32GB,
		LoopCount: 6,
		LoopStep:  2,
	})
	assert.NoError(t, err)
	assert.Equal(t, types.OutcomePass, outcome)
	assert.Equal(t, 6, sim.Clicks(9), "分组不改变循环总数")

	snap := s.BatchSnapshot()
	assert.Equal(t, 3, snap.TotalBatch)
	assert.Equal(t, 3, snap.CurrentBatch)
	assert.Equal(t, 100, snap.ProgressPercent)
}

// TestGroupedBatchFailProgress 测试分组运行中途失败：进度停在已完成的批次
func TestGroupedBatchFailProgress(t *testing.T) {
	sim := controller.NewSimController()
	// 第三次循环失败：恰好完成 1 个批次（每批 2 次）
	sim.ScriptResults(10, controller.StatusPass, controller.StatusPass, controller.StatusFail)

	exec := newTestExecutor(sim)
	s := slot.NewSlot(10)

	outcome, err := exec.Run(context.Background(), s, &types.StartTestRequest{
		SlotIdx:   10,
		Method:    types.TestMethodRead,
		Preset:    types.TestPresetFull,
		Capacity:  types.Capacity32GB,
		LoopCount: 6,
		LoopStep:  2,
	})
	assert.NoError(t, err)
	assert.Equal(t, types.OutcomeFail, outcome)
	assert.Equal(t, 3, sim.Clicks(10))

	snap := s.BatchSnapshot()
	assert.Equal(t, 1, snap.CurrentBatch)
	assert.Equal(t, 33, snap.ProgressPercent) // round(1/3*100)
}

// TestBatchAllPass 测试批量模式全部通过
func TestBatchAllPass(t *testing.T) {
	sim := controller.NewSimController()
	exec := newTestExecutor(sim)
	s := slot.NewSlot(2)

	outcome, err := exec.Run(context.Background(), s, &types.StartTestRequest{
		SlotIdx:   2,
		Method:    types.TestMethodZeroHR,
		Preset:    types.TestPresetFull,
		Capacity:  types.Capacity128GB,
		LoopCount: 4,
	})
	assert.NoError(t, err)
	assert.Equal(t, types.OutcomePass, outcome)
	assert.Equal(t, types.SlotStateComplete, s.State())
	assert.Equal(t, 4, sim.Clicks(2))
	assert.Equal(t, 100, s.Progress())
}

// TestStopAtBatchBoundary 测试停止请求在批次边界生效
func TestStopAtBatchBoundary(t *testing.T) {
	sim := controller.NewSimController()
	exec := newTestExecutor(sim)
	s := slot.NewSlot(3)
	s.RequestCancel() // 启动前已请求取消，第一轮边界即停止

	outcome, err := exec.Run(context.Background(), s, &types.StartTestRequest{
		SlotIdx:   3,
		Method:    types.TestMethodRead,
		Preset:    types.TestPresetFull,
		Capacity:  types.Capacity32GB,
		LoopCount: 5,
	})
	assert.NoError(t, err)
	assert.Equal(t, types.OutcomeStop, outcome)
	assert.Equal(t, types.SlotStateStopped, s.State())
	assert.Equal(t, 0, sim.Clicks(3), "取消后不应再启动任何步骤")
}

// TestToolSelfStop 测试外部程序自行停止走确认路径
func TestToolSelfStop(t *testing.T) {
	sim := controller.NewSimController()
	sim.ScriptResults(4, controller.StatusPass, controller.StatusStopped)

	exec := newTestExecutor(sim)
	s := slot.NewSlot(4)

	outcome, err := exec.Run(context.Background(), s, &types.StartTestRequest{
		SlotIdx:   4,
		Method:    types.TestMethodRead,
		Preset:    types.TestPresetFull,
		Capacity:  types.Capacity32GB,
		LoopCount: 5,
	})
	assert.NoError(t, err)
	assert.Equal(t, types.OutcomeStop, outcome)
	assert.Equal(t, types.SlotStateStopped, s.State())
	assert.Equal(t, 2, sim.Clicks(4))
}

// TestPreconditionFailSkipsLoop 测试预处理失败直接以 FAIL 结束，不进入主循环
func TestPreconditionFailSkipsLoop(t *testing.T) {
	sim := controller.NewSimController()
	sim.ScriptResults(5, controller.StatusFail)

	exec := newTestExecutor(sim)
	s := slot.NewSlot(5)

	outcome, err := exec.Run(context.Background(), s, &types.StartTestRequest{
		SlotIdx:           5,
		Method:            types.TestMethodRead,
		Preset:            types.TestPresetFull,
		Capacity:          types.Capacity32GB,
		LoopCount:         3,
		NeedsPrecondition: true,
	})
	assert.NoError(t, err)
	assert.Equal(t, types.OutcomeFail, outcome)
	assert.Equal(t, types.SlotStateFail, s.State())
	assert.Equal(t, 1, sim.Clicks(5), "主循环不应启动")
}

// TestPreconditionPassRunsLoop 测试预处理通过后主循环正常执行
func TestPreconditionPassRunsLoop(t *testing.T) {
	sim := controller.NewSimController()
	exec := newTestExecutor(sim)
	s := slot.NewSlot(6)

	outcome, err := exec.Run(context.Background(), s, &types.StartTestRequest{
		SlotIdx:           6,
		Method:            types.TestMethodRead,
		Preset:            types.TestPresetFull,
		Capacity:          types.Capacity32GB,
		LoopCount:         2,
		NeedsPrecondition: true,
	})
	assert.NoError(t, err)
	assert.Equal(t, types.OutcomePass, outcome)
	// 预处理 1 次 + 主循环 2 次
	assert.Equal(t, 3, sim.Clicks(6))
	// 预处理默认不计入进度
	assert.Equal(t, 2, s.BatchSnapshot().TotalBatch)
}

// TestHotPresetForcesCapacity 测试 Hot 预设强制 4GB 容量
func TestHotPresetForcesCapacity(t *testing.T) {
	sim := controller.NewSimController()
	exec := newTestExecutor(sim)
	s := slot.NewSlot(7)

	outcome, err := exec.Run(context.Background(), s, &types.StartTestRequest{
		SlotIdx:   7,
		Method:    types.TestMethodRead,
		Preset:    types.TestPresetHot,
		Capacity:  types.Capacity256GB, // 被 Hot 预设覆盖
		LoopCount: 1,
	})
	assert.NoError(t, err)
	assert.Equal(t, types.OutcomePass, outcome)
	assert.Equal(t, string(types.Capacity4GB), sim.Field(7, controller.ControlCapacity))
}

// TestContextCancelStopsRun 测试 context 取消在批次边界终止运行
func TestContextCancelStopsRun(t *testing.T) {
	sim := controller.NewSimController()
	exec := newTestExecutor(sim)
	s := slot.NewSlot(8)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := exec.Run(ctx, s, &types.StartTestRequest{
		SlotIdx:   8,
		Method:    types.TestMethodRead,
		Preset:    types.TestPresetFull,
		Capacity:  types.Capacity32GB,
		LoopCount: 3,
	})
	assert.NoError(t, err)
	assert.Equal(t, types.OutcomeStop, outcome)
	assert.Equal(t, types.SlotStateStopped, s.State())
}
