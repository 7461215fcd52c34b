/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-02-10 12:00:00
 * @FilePath: \go-testagent\agent\agent.go
 * @Description: Agent 编排上下文 - 组件装配与生命周期
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package agent

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/kamalyes/go-logger"
	"github.com/kamalyes/go-testagent/config"
	"github.com/kamalyes/go-testagent/controller"
	"github.com/kamalyes/go-testagent/executor"
	"github.com/kamalyes/go-testagent/monitor"
	"github.com/kamalyes/go-testagent/protocol"
	"github.com/kamalyes/go-testagent/slot"
	"github.com/kamalyes/go-testagent/types"
	"github.com/kamalyes/go-testagent/worker"
	"github.com/kamalyes/go-toolbox/pkg/netx"
	"github.com/kamalyes/go-toolbox/pkg/osx"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Sender 出站消息发送端。protocol.Client 实现此接口，测试注入伪实现。
type Sender interface {
	Send(msgType string, payload any) error
}

// Info Agent 标识信息
type Info struct {
	AgentID string
	PCName  string
	IP      string
	Version string
}

// Agent 编排上下文：持有工作池、槽位、执行引擎、监控器与协议客户端。
// 显式构造并注入，命令处理器不依赖任何全局查找。
type Agent struct {
	cfg    *config.Config
	info   *Info
	slots  *slot.Manager
	pool   *worker.Pool
	exec   *executor.BatchExecutor
	sender Sender

	stateMon *monitor.StateMonitor
	memMon   *monitor.MemoryMonitor
	procMon  *monitor.ProcessMonitor

	heartbeat *syncx.PeriodicTaskManager
	progress  *syncx.PeriodicTaskManager
	running   *syncx.Bool
	cancel    context.CancelFunc

	logger logger.ILogger
}

// New 创建 Agent
func New(cfg *config.Config, ctrl controller.Controller, sender Sender, log logger.ILogger) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent config: %w", err)
	}

	agentID := cfg.AgentID
	if agentID == "" {
		agentID = uuid.NewString()
	}

	localIP, err := netx.GetPrivateIP()
	if err != nil {
		localIP = "127.0.0.1"
	}

	slots := slot.NewManager(cfg.SlotCount)

	a := &Agent{
		cfg: cfg,
		info: &Info{
			AgentID: agentID,
			PCName:  osx.SafeGetHostName(),
			IP:      localIP,
			Version: "1.0.0",
		},
		slots:     slots,
		exec:      executor.NewBatchExecutor(ctrl, cfg.Batch, log),
		sender:    sender,
		heartbeat: syncx.NewPeriodicTaskManager(),
		progress:  syncx.NewPeriodicTaskManager(),
		running:   syncx.NewBool(false),
		logger:    log,
	}

	a.pool = worker.NewPool(cfg.MaxQueueSize, cfg.MaxActive, func(slotIdx int) bool {
		s, err := slots.Get(slotIdx)
		return err == nil && s.Busy()
	}, log)

	mc := cfg.Monitor
	a.stateMon = monitor.NewStateMonitor(slots, mc.HangInterval, mc.HangThreshold, log)
	a.memMon, err = monitor.NewMemoryMonitor(mc.MemoryInterval, mc.MemoryWarning, mc.MemoryCritical,
		mc.MemoryMaxHistory, mc.AlertCooldown, log)
	if err != nil {
		return nil, fmt.Errorf("invalid memory thresholds: %w", err)
	}
	a.procMon = monitor.NewProcessMonitor(mc.ProcessInterval, log)

	a.wireMonitors()
	return a, nil
}

// Info Agent 标识信息
func (a *Agent) Info() *Info {
	return a.info
}

// Slots 槽位管理器
func (a *Agent) Slots() *slot.Manager {
	return a.slots
}

// Pool 工作池
func (a *Agent) Pool() *worker.Pool {
	return a.pool
}

// ProcessMonitor 进程监控器（外部测试程序进程由上层注册）
func (a *Agent) ProcessMonitor() *monitor.ProcessMonitor {
	return a.procMon
}

// RegisterHandlers 把命令处理器挂到协议客户端
func (a *Agent) RegisterHandlers(client *protocol.Client) {
	client.OnMessage(types.MsgStartTest, a.HandleStartTest)
	client.OnMessage(types.MsgStopTest, a.HandleStopTest)
	client.OnMessage(types.MsgConfigUpdate, a.HandleConfigUpdate)

	client.OnConnect(func() {
		a.register()
		// 重连后立即同步各槽位状态，保持后端视图最终一致
		for _, s := range a.slots.All() {
			a.sendStateUpdate(s.Idx(), s.State(), s.Progress(), "")
		}
	})
	client.OnOffline(func() {
		a.logger.ErrorKV("Backend unreachable, slots keep local state until reconnect",
			"agent_id", a.info.AgentID)
	})
}

// Start 启动 Agent 后台活动
func (a *Agent) Start(ctx context.Context) error {
	if !a.running.CAS(false, true) {
		return fmt.Errorf("agent is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.pool.Start()
	a.stateMon.Start(ctx)
	a.memMon.Start(ctx)
	a.procMon.Start(ctx)
	a.startHeartbeat(ctx)
	a.startProgressReporter(ctx)

	a.logger.InfoKV("🤖 Agent started",
		"agent_id", a.info.AgentID,
		"pc_name", a.info.PCName,
		"slots", a.slots.Count())
	return nil
}

// Stop 停止 Agent
func (a *Agent) Stop() error {
	if !a.running.CAS(true, false) {
		return fmt.Errorf("agent is not running")
	}

	a.logger.InfoMsg("Stopping agent...")
	if a.cancel != nil {
		a.cancel()
	}
	a.pool.Stop()
	a.logger.InfoMsg("Agent stopped")
	return nil
}

// register 向后端注册
func (a *Agent) register() {
	payload := &types.RegisterPayload{
		AgentID: a.info.AgentID,
		PCName:  a.info.PCName,
		IP:      a.info.IP,
		Slots:   a.slots.Count(),
		Version: a.info.Version,
	}
	if err := a.sender.Send(types.MsgRegister, payload); err != nil {
		a.logger.WarnKV("Register failed", "error", err)
		return
	}
	a.logger.InfoKV("📡 Registered to backend",
		"agent_id", a.info.AgentID,
		"slots", a.slots.Count())
}

// startHeartbeat 周期性心跳上报
func (a *Agent) startHeartbeat(ctx context.Context) {
	task := syncx.NewPeriodicTask("heartbeat", a.cfg.HeartbeatInterval, func(taskCtx context.Context) error {
		return a.sendHeartbeat()
	}).SetOnError(func(name string, err error) {
		a.logger.DebugKV("Heartbeat error", "error", err)
	})

	a.heartbeat.AddTask(task)
	a.heartbeat.StartWithContext(ctx)
}

// sendHeartbeat 发送一次心跳
func (a *Agent) sendHeartbeat() error {
	payload := &types.HeartbeatPayload{
		AgentID:   a.info.AgentID,
		Timestamp: time.Now().Unix(),
		BusySlots: a.slots.BusyCount(),
	}

	if cpuPercents, err := cpu.Percent(0, false); err == nil && len(cpuPercents) > 0 {
		payload.CPUPercent = cpuPercents[0]
	}
	if v, err := mem.VirtualMemory(); err == nil {
		payload.MemPercent = v.UsedPercent
	}

	return a.sender.Send(types.MsgHeartbeat, payload)
}

// startProgressReporter 周期性上报忙碌槽位的进度
func (a *Agent) startProgressReporter(ctx context.Context) {
	task := syncx.NewPeriodicTask("progress-reporter", a.cfg.ProgressInterval, func(taskCtx context.Context) error {
		for _, s := range a.slots.All() {
			if s.Busy() {
				a.sendStateUpdate(s.Idx(), s.State(), s.Progress(), "")
			}
		}
		return nil
	})

	a.progress.AddTask(task)
	a.progress.StartWithContext(ctx)
}

// wireMonitors 把监控事件接入出站通道。
// 告警经工作池 IMMEDIATE 优先级转发，不会被排队的测试任务饿死。
func (a *Agent) wireMonitors() {
	a.stateMon.OnHang(func(slotIdx, progress int) {
		a.submitAlert(&types.MonitorAlertPayload{
			Kind:    "hang",
			SlotIdx: slotIdx,
			Detail:  fmt.Sprintf("progress stuck at %d%%", progress),
		})
	})

	a.memMon.OnWarning(func(sample monitor.MemorySample) {
		a.submitAlert(&types.MonitorAlertPayload{
			Kind:   "memory_warning",
			Detail: fmt.Sprintf("rss=%d goroutines=%d", sample.RSS, runtime.NumGoroutine()),
		})
	})
	a.memMon.OnCritical(func(sample monitor.MemorySample) {
		a.submitAlert(&types.MonitorAlertPayload{
			Kind:   "memory_critical",
			Detail: fmt.Sprintf("rss=%d", sample.RSS),
		})
	})

	// 外部测试程序进程退出：对应槽位置 ERROR 并告警
	// (进程由 bootstrap/上层通过 WatchProcess 注册)
}

// WatchProcess 监视外部测试程序进程，退出时将关联槽位置为 ERROR
func (a *Agent) WatchProcess(pid int32, slotIdx int) {
	a.procMon.Watch(pid, func(exited int32) {
		if s, err := a.slots.Get(slotIdx); err == nil && s.Busy() {
			s.Machine().ForceError()
			a.sendStateUpdate(slotIdx, types.SlotStateError, s.Progress(),
				fmt.Sprintf("test process %d exited", exited))
		}
		a.submitAlert(&types.MonitorAlertPayload{
			Kind:    "process_exit",
			SlotIdx: slotIdx,
			Detail:  fmt.Sprintf("pid %d exited", exited),
		})
	})
}

// submitAlert 监控告警经 IMMEDIATE 优先级任务出站
func (a *Agent) submitAlert(alert *types.MonitorAlertPayload) {
	err := a.pool.Submit(&worker.Task{
		SlotIdx:  worker.EventLane,
		Priority: types.PriorityImmediate,
		Kind:     worker.TaskEvent,
		Execute: func(ctx context.Context) {
			if err := a.sender.Send(types.MsgMonitorAlert, alert); err != nil {
				a.logger.WarnKV("Alert send failed", "kind", alert.Kind, "error", err)
			}
		},
	})
	if err != nil {
		a.logger.WarnKV("Alert submit rejected", "kind", alert.Kind, "error", err)
	}
}

// sendStateUpdate 发送槽位状态更新
func (a *Agent) sendStateUpdate(slotIdx int, status types.SlotState, progress int, errDetail string) {
	payload := &types.StateUpdatePayload{
		SlotIdx:  slotIdx,
		Status:   status,
		Progress: progress,
		Error:    errDetail,
	}
	if err := a.sender.Send(types.MsgStateUpdate, payload); err != nil {
		a.logger.DebugKV("State update send failed",
			"slot_idx", slotIdx,
			"status", status,
			"error", err)
	}
}
