/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-02-10 12:00:00
 * @FilePath: \go-testagent\types\messages.go
 * @Description: 后端协议消息定义
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package types

import "encoding/json"

// 入站消息类型（后端 -> Agent）
const (
	MsgStartTest    = "start_test"
	MsgStopTest     = "stop_test"
	MsgConfigUpdate = "config_update"
)

// 出站消息类型（Agent -> 后端）
const (
	MsgRegister      = "register"
	MsgHeartbeat     = "heartbeat"
	MsgStateUpdate   = "state_update"
	MsgTestCompleted = "test_completed"
	MsgMonitorAlert  = "monitor_alert"
)

// Envelope 协议消息信封，所有消息按 type 路由
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// StartTestRequest start_test 命令负载
type StartTestRequest struct {
	SlotIdx           int          `json:"slot_idx"`
	Method            TestMethod   `json:"method"`
	Preset            TestPreset   `json:"preset"`
	Capacity          TestCapacity `json:"capacity"`
	LoopCount         int          `json:"loop_count"`
	LoopStep          int          `json:"loop_step"` // 每批次循环数，0 视为 1
	NeedsPrecondition bool         `json:"needs_precondition"`
}

// NormalizedLoopStep 规范化后的每批次循环数（未设置时为 1）
func (r *StartTestRequest) NormalizedLoopStep() int {
	if r.LoopStep < 1 {
		return 1
	}
	return r.LoopStep
}

// IsBatch 是否为批量模式：每批次循环数小于循环总数时按批次分组执行，
// loop_step >= loop_count 时整个运行就是单个批次
func (r *StartTestRequest) IsBatch() bool {
	return r.NormalizedLoopStep() < r.LoopCount
}

// StopTestRequest stop_test 命令负载
type StopTestRequest struct {
	SlotIdx int `json:"slot_idx"`
}

// ConfigUpdateRequest config_update 命令负载
type ConfigUpdateRequest struct {
	LogLevel string `json:"log_level,omitempty"`
}

// RegisterPayload register 消息负载
type RegisterPayload struct {
	AgentID string `json:"agent_id"`
	PCName  string `json:"pc_name"`
	IP      string `json:"ip"`
	Slots   int    `json:"slots"`
	Version string `json:"version"`
}

// HeartbeatPayload heartbeat 消息负载
type HeartbeatPayload struct {
	AgentID    string  `json:"agent_id"`
	Timestamp  int64   `json:"timestamp"`
	CPUPercent float64 `json:"cpu_percent"`
	MemPercent float64 `json:"mem_percent"`
	BusySlots  int     `json:"busy_slots"`
}

// StateUpdatePayload state_update 消息负载
type StateUpdatePayload struct {
	SlotIdx  int       `json:"slot_idx"`
	Status   SlotState `json:"status"`
	Progress int       `json:"progress"`
	Error    string    `json:"error,omitempty"`
}

// TestCompletedPayload test_completed 消息负载
type TestCompletedPayload struct {
	SlotIdx int     `json:"slot_idx"`
	Result  Outcome `json:"result"`
}

// MonitorAlertPayload monitor_alert 消息负载
type MonitorAlertPayload struct {
	Kind    string `json:"kind"` // hang / memory_warning / memory_critical / process_exit
	SlotIdx int    `json:"slot_idx,omitempty"`
	Detail  string `json:"detail"`
}

// NewEnvelope 构造消息信封
func NewEnvelope(msgType string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: msgType, Data: data}, nil
}
