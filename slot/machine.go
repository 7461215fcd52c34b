/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-02-10 12:00:00
 * @FilePath: \go-testagent\slot\machine.go
 * @Description: 槽位生命周期状态机
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package slot

import (
	"fmt"
	"time"

	"github.com/kamalyes/go-testagent/types"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// maxHistory 状态机保留的最近转换记录条数
const maxHistory = 100

// InvalidTransitionError 非法状态转换错误。
// 状态保持不变，调用方将其转换为错误响应，不是致命错误。
type InvalidTransitionError struct {
	From  types.SlotState
	Event types.SlotEvent
}

// Error 实现 error 接口
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: event %q not allowed in state %q", e.Event, e.From)
}

// Transition 一条状态转换历史记录
type Transition struct {
	From  types.SlotState
	To    types.SlotState
	Event types.SlotEvent
	At    time.Time
}

// transitionTable 状态转换表：当前状态 -> 事件 -> 目标状态
var transitionTable = map[types.SlotState]map[types.SlotEvent]types.SlotState{
	types.SlotStateIdle: {
		types.EventStartTest: types.SlotStateStartTest,
	},
	types.SlotStateStartTest: {
		types.EventConfigure: types.SlotStateConfigure,
		types.EventStop:      types.SlotStateStopping,
	},
	types.SlotStateConfigure: {
		types.EventRun:  types.SlotStateRun,
		types.EventStop: types.SlotStateStopping,
	},
	types.SlotStateRun: {
		types.EventComplete: types.SlotStateComplete,
		types.EventFail:     types.SlotStateFail,
		types.EventError:    types.SlotStateError,
		types.EventStop:     types.SlotStateStopping,
	},
	types.SlotStateStopping: {
		types.EventStopAck: types.SlotStateStopped,
	},
}

// Machine 槽位状态机。
// 终态 (COMPLETE/FAIL/ERROR/STOPPED) 只能通过显式 Reset 回到 IDLE。
type Machine struct {
	mu      *syncx.RWLock
	state   types.SlotState
	history []Transition
}

// NewMachine 创建状态机，初始状态 IDLE
func NewMachine() *Machine {
	return &Machine{
		mu:    syncx.NewRWLock(),
		state: types.SlotStateIdle,
	}
}

// State 当前状态
func (m *Machine) State() types.SlotState {
	return syncx.WithRLockReturnValue(m.mu, func() types.SlotState {
		return m.state
	})
}

// Transition 按事件推进状态机。
// 转换表之外的 (状态, 事件) 组合返回 InvalidTransitionError，状态不变。
func (m *Machine) Transition(event types.SlotEvent) (types.SlotState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, ok := transitionTable[m.state][event]
	if !ok {
		return m.state, &InvalidTransitionError{From: m.state, Event: event}
	}

	m.record(m.state, next, event)
	m.state = next
	return next, nil
}

// CanTransition 判断事件在当前状态下是否合法（不推进状态）
func (m *Machine) CanTransition(event types.SlotEvent) bool {
	return syncx.WithRLockReturnValue(m.mu, func() bool {
		_, ok := transitionTable[m.state][event]
		return ok
	})
}

// Reset 强制回到 IDLE，用于终态后的显式复位和批次边界的重新武装
func (m *Machine) Reset() {
	syncx.WithLock(m.mu, func() {
		if m.state == types.SlotStateIdle {
			return
		}
		m.record(m.state, types.SlotStateIdle, "reset")
		m.state = types.SlotStateIdle
	})
}

// ForceError 管理性转入 ERROR，用于配置验证失败、外部程序失联等
// 不经事件表的错误路径（与 Reset 同为表外的显式操作）
func (m *Machine) ForceError() {
	syncx.WithLock(m.mu, func() {
		if m.state == types.SlotStateError {
			return
		}
		m.record(m.state, types.SlotStateError, types.EventError)
		m.state = types.SlotStateError
	})
}

// History 返回最近的转换历史副本
func (m *Machine) History() []Transition {
	return syncx.WithRLockReturnValue(m.mu, func() []Transition {
		out := make([]Transition, len(m.history))
		copy(out, m.history)
		return out
	})
}

// record 追加历史记录，超出上限时淘汰最旧的
func (m *Machine) record(from, to types.SlotState, event types.SlotEvent) {
	m.history = append(m.history, Transition{From: from, To: to, Event: event, At: time.Now()})
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
}
