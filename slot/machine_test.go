/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-02-10 12:00:00
 * @FilePath: \go-testagent\slot\machine_test.go
 * @Description: 槽位状态机测试
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package slot

import (
	"testing"

	"github.com/kamalyes/go-testagent/types"
	"github.com/stretchr/testify/assert"
)

var allStates = []types.SlotState{
	types.SlotStateIdle,
	types.SlotStateStartTest,
	types.SlotStateConfigure,
	types.SlotStateRun,
	types.SlotStateStopping,
	types.SlotStateStopped,
	types.SlotStateComplete,
	types.SlotStateFail,
	types.SlotStateError,
}

var allEvents = []types.SlotEvent{
	types.EventStartTest,
	types.EventConfigure,
	types.EventRun,
	types.EventComplete,
	types.EventFail,
	types.EventError,
	types.EventStop,
	types.EventStopAck,
}

// machineInState 构造一个处于指定状态的状态机
func machineInState(t *testing.T, state types.SlotState) *Machine {
	t.Helper()
	m := NewMachine()

	path := map[types.SlotState][]types.SlotEvent{
		types.SlotStateIdle:      {},
		types.SlotStateStartTest: {types.EventStartTest},
		types.SlotStateConfigure: {types.EventStartTest, types.EventConfigure},
		types.SlotStateRun:       {types.EventStartTest, types.EventConfigure, types.EventRun},
		types.SlotStateStopping:  {types.EventStartTest, types.EventStop},
		types.SlotStateStopped:   {types.EventStartTest, types.EventStop, types.EventStopAck},
		types.SlotStateComplete:  {types.EventStartTest, types.EventConfigure, types.EventRun, types.EventComplete},
		types.SlotStateFail:      {types.EventStartTest, types.EventConfigure, types.EventRun, types.EventFail},
		types.SlotStateError:     {types.EventStartTest, types.EventConfigure, types.EventRun, types.EventError},
	}

	for _, ev := range path[state] {
		_, err := m.Transition(ev)
		assert.NoError(t, err)
	}
	assert.Equal(t, state, m.State())
	return m
}

// TestHappyPath 测试完整成功路径
func TestHappyPath(t *testing.T) {
	m := NewMachine()
	assert.Equal(t, types.SlotStateIdle, m.State())

	for _, step := range []struct {
		event types.SlotEvent
		want  types.SlotState
	}{
		{types.EventStartTest, types.SlotStateStartTest},
		{types.EventConfigure, types.SlotStateConfigure},
		{types.EventRun, types.SlotStateRun},
		{types.EventComplete, types.SlotStateComplete},
	} {
		state, err := m.Transition(step.event)
		assert.NoError(t, err)
		assert.Equal(t, step.want, state)
	}
}

// TestStopFromRunningStates 测试运行中任意状态均可进入 STOPPING
func TestStopFromRunningStates(t *testing.T) {
	for _, from := range []types.SlotState{
		types.SlotStateStartTest,
		types.SlotStateConfigure,
		types.SlotStateRun,
	} {
		m := machineInState(t, from)

		state, err := m.Transition(types.EventStop)
		assert.NoError(t, err)
		assert.Equal(t, types.SlotStateStopping, state)

		state, err = m.Transition(types.EventStopAck)
		assert.NoError(t, err)
		assert.Equal(t, types.SlotStateStopped, state)
	}
}

// TestFailAndErrorFromRun 测试 RUN 状态的失败与错误分支
func TestFailAndErrorFromRun(t *testing.T) {
	m := machineInState(t, types.SlotStateRun)
	state, err := m.Transition(types.EventFail)
	assert.NoError(t, err)
	assert.Equal(t, types.SlotStateFail, state)

	m = machineInState(t, types.SlotStateRun)
	state, err = m.Transition(types.EventError)
	assert.NoError(t, err)
	assert.Equal(t, types.SlotStateError, state)
}

// TestInvalidTransitionsSweep 全量扫描：转换表之外的任何 (状态, 事件)
// 组合都返回 InvalidTransitionError 且状态保持不变
func TestInvalidTransitionsSweep(t *testing.T) {
	for _, state := range allStates {
		for _, event := range allEvents {
			_, allowed := transitionTable[state][event]
			if allowed {
				continue
			}

			m := machineInState(t, state)
			next, err := m.Transition(event)

			assert.Error(t, err, "state=%s event=%s", state, event)
			var invalidErr *InvalidTransitionError
			assert.ErrorAs(t, err, &invalidErr, "state=%s event=%s", state, event)
			assert.Equal(t, state, invalidErr.From)
			assert.Equal(t, event, invalidErr.Event)
			assert.Equal(t, state, next, "状态不应被修改")
			assert.Equal(t, state, m.State())
		}
	}
}

// TestTerminalStatesNeedReset 测试终态必须显式复位才能再次启动
func TestTerminalStatesNeedReset(t *testing.T) {
	for _, terminal := range []types.SlotState{
		types.SlotStateComplete,
		types.SlotStateFail,
		types.SlotStateError,
		types.SlotStateStopped,
	} {
		m := machineInState(t, terminal)

		_, err := m.Transition(types.EventStartTest)
		assert.Error(t, err)
		assert.Equal(t, terminal, m.State())

		m.Reset()
		assert.Equal(t, types.SlotStateIdle, m.State())

		_, err = m.Transition(types.EventStartTest)
		assert.NoError(t, err)
	}
}

// TestForceError 测试管理性 ERROR 转入
func TestForceError(t *testing.T) {
	m := NewMachine()
	m.ForceError()
	assert.Equal(t, types.SlotStateError, m.State())

	// 重复调用幂等
	m.ForceError()
	assert.Equal(t, types.SlotStateError, m.State())
}

// TestHistoryBounded 测试历史记录有界
func TestHistoryBounded(t *testing.T) {
	m := NewMachine()
	for i := 0; i < maxHistory+50; i++ {
		m.Transition(types.EventStartTest)
		m.Reset()
	}
	assert.LessOrEqual(t, len(m.History()), maxHistory)
}
