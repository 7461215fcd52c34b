/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-02-10 12:00:00
 * @FilePath: \go-testagent\types\enums.go
 * @Description: 枚举类型定义
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package types

import "fmt"

// SlotState 槽位状态
type SlotState string

const (
	SlotStateIdle      SlotState = "IDLE"       // 空闲
	SlotStateStartTest SlotState = "START_TEST" // 启动测试
	SlotStateConfigure SlotState = "CONFIGURE"  // 配置中
	SlotStateRun       SlotState = "RUN"        // 运行中
	SlotStateStopping  SlotState = "STOPPING"   // 停止中
	SlotStateStopped   SlotState = "STOPPED"    // 已停止
	SlotStateComplete  SlotState = "COMPLETE"   // 已完成
	SlotStateFail      SlotState = "FAIL"       // 失败
	SlotStateError     SlotState = "ERROR"      // 错误
)

// IsTerminal 是否为本轮运行的终态
func (s SlotState) IsTerminal() bool {
	switch s {
	case SlotStateComplete, SlotStateFail, SlotStateError, SlotStateStopped:
		return true
	}
	return false
}

// IsRunning 是否为运行中状态（可接受停止请求）
func (s SlotState) IsRunning() bool {
	switch s {
	case SlotStateStartTest, SlotStateConfigure, SlotStateRun:
		return true
	}
	return false
}

// SlotEvent 槽位状态机事件
type SlotEvent string

const (
	EventStartTest SlotEvent = "start_test" // IDLE -> START_TEST
	EventConfigure SlotEvent = "configure"  // START_TEST -> CONFIGURE
	EventRun       SlotEvent = "run"        // CONFIGURE -> RUN
	EventComplete  SlotEvent = "complete"   // RUN -> COMPLETE
	EventFail      SlotEvent = "fail"       // RUN -> FAIL
	EventError     SlotEvent = "error"      // RUN -> ERROR
	EventStop      SlotEvent = "stop"       // 运行中任意状态 -> STOPPING
	EventStopAck   SlotEvent = "stop_ack"   // STOPPING -> STOPPED
)

// TaskPriority 任务优先级
type TaskPriority int

const (
	PriorityNormal    TaskPriority = 0 // 普通任务
	PriorityImmediate TaskPriority = 1 // 紧急任务（监控告警等），排在普通任务之前
)

// String 返回优先级的字符串表示
func (p TaskPriority) String() string {
	if p == PriorityImmediate {
		return "IMMEDIATE"
	}
	return "NORMAL"
}

// Outcome 一次测试运行的最终结果
type Outcome string

const (
	OutcomePass Outcome = "PASS" // 通过
	OutcomeFail Outcome = "FAIL" // 失败
	OutcomeStop Outcome = "STOP" // 被停止
)

// TestMethod 测试方法
type TestMethod string

const (
	TestMethodZeroHR TestMethod = "0HR"
	TestMethodRead   TestMethod = "Read"
	TestMethodCycle  TestMethod = "Cycle"
)

// TestPreset 测试预设类型
type TestPreset string

const (
	TestPresetFull TestPreset = "Full" // 容量按驱动器实际容量设置
	TestPresetHot  TestPreset = "Hot"  // 容量固定为 4GB，可附带预处理步骤
)

// IsHot 是否为 Hot 预设
func (p TestPreset) IsHot() bool {
	return p == TestPresetHot
}

// TestCapacity 测试容量
type TestCapacity string

const (
	Capacity1GB   TestCapacity = "1GB"
	Capacity4GB   TestCapacity = "4GB" // Hot 预设使用
	Capacity32GB  TestCapacity = "32GB"
	Capacity64GB  TestCapacity = "64GB"
	Capacity128GB TestCapacity = "128GB"
	Capacity256GB TestCapacity = "256GB"
	Capacity512GB TestCapacity = "512GB"
	Capacity1TB   TestCapacity = "1TB"
)

// capacityGB 容量到 GB 的映射（按升序）
var capacityGB = []struct {
	Capacity TestCapacity
	GB       float64
}{
	{Capacity1GB, 1},
	{Capacity4GB, 4},
	{Capacity32GB, 32},
	{Capacity64GB, 64},
	{Capacity128GB, 128},
	{Capacity256GB, 256},
	{Capacity512GB, 512},
	{Capacity1TB, 1024},
}

// ParseCapacity 从字符串解析容量
func ParseCapacity(value string) (TestCapacity, error) {
	for _, c := range capacityGB {
		if string(c.Capacity) == value {
			return c.Capacity, nil
		}
	}
	return "", fmt.Errorf("invalid capacity: %s", value)
}

// NearestCapacity 根据驱动器实际容量选择最接近的测试容量
// 按绝对差值取最近，例如 59.7GB -> 64GB，100GB -> 128GB
func NearestCapacity(driveGB float64) TestCapacity {
	if driveGB <= 0 {
		return Capacity32GB
	}

	closest := Capacity32GB
	minDiff := -1.0
	for _, c := range capacityGB {
		diff := driveGB - c.GB
		if diff < 0 {
			diff = -diff
		}
		if minDiff < 0 || diff < minDiff {
			minDiff = diff
			closest = c.Capacity
		}
	}
	return closest
}

// ControllerMode 外部测试程序控制器模式
type ControllerMode string

const (
	ControllerModeSim ControllerMode = "sim" // 内置模拟器
)

// ControllerMode 实现 flag.Value 接口
func (m *ControllerMode) String() string {
	if m == nil || *m == "" {
		return string(ControllerModeSim)
	}
	return string(*m)
}

func (m *ControllerMode) Set(value string) error {
	*m = ControllerMode(value)
	return nil
}
