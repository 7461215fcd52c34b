/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-02-10 12:00:00
 * @FilePath: \go-testagent\worker\pool_test.go
 * @Description: 工作池测试
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kamalyes/go-testagent/logger"
	"github.com/kamalyes/go-testagent/types"
	"github.com/stretchr/testify/assert"
)

func testLogger() logger.ILogger {
	return logger.New(logger.DefaultConfig())
}

// collectN 从通道收集 n 个值，超时则失败
func collectN(t *testing.T, ch <-chan int, n int) []int {
	t.Helper()
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		select {
		case v := <-ch:
			out = append(out, v)
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout waiting for %d results, got %d", n, len(out))
		}
	}
	return out
}

// TestPriorityOrdering 测试 IMMEDIATE 任务先于先入队的 NORMAL 任务执行
func TestPriorityOrdering(t *testing.T) {
	pool := NewPool(10, 1, nil, testLogger())
	order := make(chan int, 2)

	// 先提交 NORMAL，再提交 IMMEDIATE，之后才启动调度
	err := pool.Submit(&Task{
		SlotIdx:  1,
		Priority: types.PriorityNormal,
		Kind:     TaskEvent,
		Execute:  func(ctx context.Context) { order <- 1 },
	})
	assert.NoError(t, err)

	err = pool.Submit(&Task{
		SlotIdx:  2,
		Priority: types.PriorityImmediate,
		Kind:     TaskEvent,
		Execute:  func(ctx context.Context) { order <- 2 },
	})
	assert.NoError(t, err)

	pool.Start()
	defer pool.Stop()

	got := collectN(t, order, 2)
	assert.Equal(t, []int{2, 1}, got, "IMMEDIATE 应先执行")
}

// TestPerSlotSerialOrder 测试同一槽位的任务严格按提交顺序串行执行
func TestPerSlotSerialOrder(t *testing.T) {
	pool := NewPool(64, 4, nil, testLogger())
	pool.Start()
	defer pool.Stop()

	const n = 20
	order := make(chan int, n)
	var running sync.Map

	for i := 0; i < n; i++ {
		seq := i
		err := pool.Submit(&Task{
			SlotIdx:  0,
			Priority: types.PriorityNormal,
			Kind:     TaskEvent,
			Execute: func(ctx context.Context) {
				// 同槽位不允许并发执行
				_, loaded := running.LoadOrStore(0, true)
				assert.False(t, loaded, "同槽位任务并发执行")
				time.Sleep(time.Millisecond)
				running.Delete(0)
				order <- seq
			},
		})
		assert.NoError(t, err)
	}

	got := collectN(t, order, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, i, got[i], "同槽位任务应按提交顺序执行")
	}
}

// TestCrossSlotConcurrency 测试不同槽位的任务可以并发执行
func TestCrossSlotConcurrency(t *testing.T) {
	pool := NewPool(16, 4, nil, testLogger())
	pool.Start()
	defer pool.Stop()

	var wg sync.WaitGroup
	barrier := make(chan struct{})

	// 两个槽位的任务互相等待对方启动，只有并发执行才能完成
	for slotIdx := 0; slotIdx < 2; slotIdx++ {
		wg.Add(1)
		idx := slotIdx
		err := pool.Submit(&Task{
			SlotIdx:  idx,
			Priority: types.PriorityNormal,
			Kind:     TaskEvent,
			Execute: func(ctx context.Context) {
				defer wg.Done()
				if idx == 0 {
					close(barrier)
				} else {
					select {
					case <-barrier:
					case <-time.After(3 * time.Second):
						t.Error("跨槽位任务未并发执行")
					}
				}
			},
		})
		assert.NoError(t, err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout")
	}
}

// TestQueueFullDropsTask 测试队列满时任务被丢弃并返回 ErrQueueFull
func TestQueueFullDropsTask(t *testing.T) {
	const maxQueue = 3
	pool := NewPool(maxQueue, 1, nil, testLogger())
	// 不启动调度器，让任务滞留队列

	noop := func(ctx context.Context) {}
	for i := 0; i < maxQueue; i++ {
		err := pool.Submit(&Task{SlotIdx: i, Kind: TaskEvent, Execute: noop})
		assert.NoError(t, err)
	}
	assert.Equal(t, maxQueue, pool.Pending())

	err := pool.Submit(&Task{SlotIdx: 99, Kind: TaskEvent, Execute: noop})
	assert.ErrorIs(t, err, ErrQueueFull)

	// 队列长度不超过上限，丢弃被计数
	assert.Equal(t, maxQueue, pool.Pending())
	stats := pool.Stats()
	assert.Equal(t, uint64(maxQueue), stats.Submitted)
	assert.Equal(t, uint64(1), stats.Dropped)
}

// TestBusySlotRejection 测试忙碌槽位的启动请求在入队前被拒绝
func TestBusySlotRejection(t *testing.T) {
	busy := map[int]bool{3: true}
	pool := NewPool(10, 1, func(slotIdx int) bool { return busy[slotIdx] }, testLogger())

	noop := func(ctx context.Context) {}

	err := pool.Submit(&Task{SlotIdx: 3, Kind: TaskStartTest, Execute: noop})
	assert.ErrorIs(t, err, ErrSlotBusy)
	assert.Equal(t, 0, pool.Pending(), "忙碌拒绝不应入队")

	// 忙碌拒绝与队列满拒绝是两类错误
	assert.NotErrorIs(t, ErrSlotBusy, ErrQueueFull)

	// 非启动类任务不做忙碌检查
	err = pool.Submit(&Task{SlotIdx: 3, Kind: TaskEvent, Execute: noop})
	assert.NoError(t, err)

	// 空闲槽位的启动请求正常入队
	err = pool.Submit(&Task{SlotIdx: 4, Kind: TaskStartTest, Execute: noop})
	assert.NoError(t, err)
}

// TestSubmitAfterStop 测试停止后拒绝新任务
func TestSubmitAfterStop(t *testing.T) {
	pool := NewPool(10, 1, nil, testLogger())
	pool.Start()
	pool.Stop()

	err := pool.Submit(&Task{SlotIdx: 0, Kind: TaskEvent, Execute: func(ctx context.Context) {}})
	assert.ErrorIs(t, err, ErrPoolStopped)
}

// TestTaskPanicIsolated 测试任务 panic 不影响后续任务执行
func TestTaskPanicIsolated(t *testing.T) {
	pool := NewPool(10, 1, nil, testLogger())
	pool.Start()
	defer pool.Stop()

	done := make(chan int, 1)

	err := pool.Submit(&Task{
		SlotIdx: 0,
		Kind:    TaskEvent,
		Execute: func(ctx context.Context) { panic("boom") },
	})
	assert.NoError(t, err)

	err = pool.Submit(&Task{
		SlotIdx: 0,
		Kind:    TaskEvent,
		Execute: func(ctx context.Context) { done <- 1 },
	})
	assert.NoError(t, err)

	got := collectN(t, done, 1)
	assert.Equal(t, []int{1}, got)
}
