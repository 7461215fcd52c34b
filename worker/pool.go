/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-02-10 12:00:00
 * @FilePath: \go-testagent\worker\pool.go
 * @Description: 优先级工作池 - 按槽位串行、跨槽位并发、满则丢弃
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kamalyes/go-logger"
	"github.com/kamalyes/go-testagent/types"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

var (
	// ErrQueueFull 队列已满，任务被丢弃（drop-if-full 策略）
	ErrQueueFull = errors.New("worker pool queue is full, task dropped")
	// ErrSlotBusy 目标槽位正在执行测试，不允许再次启动
	ErrSlotBusy = errors.New("slot is busy")
	// ErrPoolStopped 工作池已停止
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// EventLane 监控事件任务的专用通道索引。
// 事件不挂在任何测试槽位的串行通道上，避免被长测试任务阻塞。
const EventLane = -1

// TaskKind 任务种类
type TaskKind int

const (
	TaskStartTest TaskKind = iota // 启动测试，入队前做忙碌检查
	TaskStopTest                  // 停止测试
	TaskEvent                     // 监控事件等出站消息任务
)

// Task 一个调度单元。出队后所有权移交到对应槽位的执行通道。
type Task struct {
	SlotIdx    int
	Priority   types.TaskPriority
	Kind       TaskKind
	Execute    func(ctx context.Context)
	EnqueuedAt time.Time
	seq        uint64
}

// PoolStats 工作池统计
type PoolStats struct {
	Submitted uint64 `json:"submitted"`
	Dropped   uint64 `json:"dropped"`
	Completed uint64 `json:"completed"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
}

// Pool 优先级工作池。
// 排序规则：IMMEDIATE 先于 NORMAL，同优先级按入队顺序 FIFO。
// 同一槽位的任务严格串行，不同槽位并发执行，受 maxActive 约束。
type Pool struct {
	mu        *syncx.RWLock
	immediate []*Task // IMMEDIATE 待执行队列
	normal    []*Task // NORMAL 待执行队列
	laneBusy  map[int]bool
	active    int

	maxQueue  int
	maxActive int
	busyFunc  func(slotIdx int) bool // START_TEST 入队前的忙碌检查

	seq       *syncx.Uint64
	submitted *syncx.Uint64
	dropped   *syncx.Uint64
	completed *syncx.Uint64

	wake    chan struct{}
	stopped *syncx.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger logger.ILogger
}

// NewPool 创建工作池。
// busyFunc 用于 START_TEST 任务的入队前忙碌检查，可为 nil。
func NewPool(maxQueue, maxActive int, busyFunc func(int) bool, log logger.ILogger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		mu:        syncx.NewRWLock(),
		laneBusy:  make(map[int]bool),
		maxQueue:  maxQueue,
		maxActive: maxActive,
		busyFunc:  busyFunc,
		seq:       syncx.NewUint64(0),
		submitted: syncx.NewUint64(0),
		dropped:   syncx.NewUint64(0),
		completed: syncx.NewUint64(0),
		wake:      make(chan struct{}, 1),
		stopped:   syncx.NewBool(false),
		ctx:       ctx,
		cancel:    cancel,
		logger:    log,
	}
}

// Start 启动调度循环
func (p *Pool) Start() {
	p.wg.Add(1)
	syncx.Go().
		OnPanic(func(r interface{}) {
			p.logger.ErrorKV("Dispatcher panicked", "panic", r)
		}).
		Exec(func() {
			defer p.wg.Done()
			p.dispatchLoop()
		})
}

// Submit 提交任务。
// 返回 nil 表示已接受；ErrSlotBusy / ErrQueueFull 为两类互不混淆的拒绝。
func (p *Pool) Submit(task *Task) error {
	if p.stopped.Load() {
		return ErrPoolStopped
	}

	// 忙碌槽位的启动请求在入队之前就被拒绝，与队列满拒绝区分开
	if task.Kind == TaskStartTest && p.busyFunc != nil && p.busyFunc(task.SlotIdx) {
		p.logger.WarnKV("Task rejected: slot busy",
			"slot_idx", task.SlotIdx,
			"priority", task.Priority.String())
		return ErrSlotBusy
	}

	err := syncx.WithLockReturnValue(p.mu, func() error {
		if len(p.immediate)+len(p.normal) >= p.maxQueue {
			return ErrQueueFull
		}

		task.seq = p.seq.Add(1)
		task.EnqueuedAt = time.Now()
		if task.Priority == types.PriorityImmediate {
			p.immediate = append(p.immediate, task)
		} else {
			p.normal = append(p.normal, task)
		}
		return nil
	})

	if err != nil {
		p.dropped.Add(1)
		p.logger.WarnKV("Task dropped: queue full",
			"slot_idx", task.SlotIdx,
			"max_queue_size", p.maxQueue)
		return err
	}

	p.submitted.Add(1)
	p.logger.DebugKV("Task submitted",
		"slot_idx", task.SlotIdx,
		"priority", task.Priority.String())
	p.signal()
	return nil
}

// signal 唤醒调度器
func (p *Pool) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// dispatchLoop 调度循环：每次唤醒后按优先级挑选通道空闲的任务派发
func (p *Pool) dispatchLoop() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.wake:
			for p.dispatchOne() {
			}
		}
	}
}

// dispatchOne 派发一个可执行任务，返回是否派发成功
func (p *Pool) dispatchOne() bool {
	task := syncx.WithLockReturnValue(p.mu, func() *Task {
		if p.active >= p.maxActive {
			return nil
		}
		if t := p.popEligible(&p.immediate); t != nil {
			return t
		}
		return p.popEligible(&p.normal)
	})
	if task == nil {
		return false
	}

	p.wg.Add(1)
	syncx.Go().
		OnPanic(func(r interface{}) {
			p.logger.ErrorKV("Task panicked",
				"slot_idx", task.SlotIdx,
				"panic", r)
		}).
		Exec(func() {
			defer func() {
				p.finish(task)
				p.wg.Done()
			}()
			task.Execute(p.ctx)
		})
	return true
}

// popEligible 从队列中弹出第一个执行通道空闲的任务（须持有锁）
func (p *Pool) popEligible(queue *[]*Task) *Task {
	for i, t := range *queue {
		if p.laneBusy[t.SlotIdx] {
			continue // 槽位串行：该槽位已有任务在执行
		}
		*queue = append((*queue)[:i], (*queue)[i+1:]...)
		p.laneBusy[t.SlotIdx] = true
		p.active++
		return t
	}
	return nil
}

// finish 任务完成后的通道释放
func (p *Pool) finish(task *Task) {
	syncx.WithLock(p.mu, func() {
		delete(p.laneBusy, task.SlotIdx)
		p.active--
	})
	p.completed.Add(1)
	p.signal()
}

// Pending 当前待执行任务数
func (p *Pool) Pending() int {
	return syncx.WithRLockReturnValue(p.mu, func() int {
		return len(p.immediate) + len(p.normal)
	})
}

// Stats 获取统计快照
func (p *Pool) Stats() *PoolStats {
	stats := &PoolStats{
		Submitted: p.submitted.Load(),
		Dropped:   p.dropped.Load(),
		Completed: p.completed.Load(),
	}
	syncx.WithRLock(p.mu, func() {
		stats.Pending = len(p.immediate) + len(p.normal)
		stats.Active = p.active
	})
	return stats
}

// Stop 停止工作池：不再接受新任务，等待在执行任务结束
func (p *Pool) Stop() {
	if !p.stopped.CAS(false, true) {
		return
	}
	p.cancel()
	p.wg.Wait()
	p.logger.InfoKV("Worker pool stopped",
		"submitted", p.submitted.Load(),
		"completed", p.completed.Load(),
		"dropped", p.dropped.Load())
}
