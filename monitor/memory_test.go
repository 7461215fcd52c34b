/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-02-10 12:00:00
 * @FilePath: \go-testagent\monitor\memory_test.go
 * @Description: 内存监控器测试
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const (
	mb = 1024 * 1024
)

func newTestMemoryMonitor(t *testing.T, maxHistory int) *MemoryMonitor {
	t.Helper()
	mm, err := NewMemoryMonitor(time.Second, "512MB", "1GB", maxHistory, time.Hour, testMonLogger())
	assert.NoError(t, err)
	return mm
}

func observeRSS(mm *MemoryMonitor, rss uint64) {
	mm.Observe(MemorySample{RSS: rss, Timestamp: time.Now()})
}

// TestMemoryWarningEdgeTriggered 测试告警为边沿触发：越过阈值只上报一次
func TestMemoryWarningEdgeTriggered(t *testing.T) {
	mm := newTestMemoryMonitor(t, 100)

	warnings := 0
	mm.OnWarning(func(sample MemorySample) { warnings++ })

	observeRSS(mm, 100*mb)
	observeRSS(mm, 600*mb) // 越过 512MB
	observeRSS(mm, 700*mb) // 仍在阈值之上，不再触发
	observeRSS(mm, 800*mb)
	assert.Equal(t, 1, warnings)

	// 回落后重新武装
	observeRSS(mm, 100*mb)
	observeRSS(mm, 600*mb)
	assert.Equal(t, 2, warnings)
}

// TestMemoryCriticalIndependent 测试严重阈值独立触发
func TestMemoryCriticalIndependent(t *testing.T) {
	mm := newTestMemoryMonitor(t, 100)

	warnings, criticals := 0, 0
	mm.OnWarning(func(sample MemorySample) { warnings++ })
	mm.OnCritical(func(sample MemorySample) { criticals++ })

	observeRSS(mm, 600*mb) // 仅越过 warning
	assert.Equal(t, 1, warnings)
	assert.Equal(t, 0, criticals)

	observeRSS(mm, 2048*mb) // 越过 critical
	assert.Equal(t, 1, warnings, "已在 warning 之上，不重复触发")
	assert.Equal(t, 1, criticals)

	observeRSS(mm, 2048*mb)
	assert.Equal(t, 1, criticals)
}

// TestMemoryHistoryBounded 测试采样历史有界
func TestMemoryHistoryBounded(t *testing.T) {
	const maxHistory = 16
	mm := newTestMemoryMonitor(t, maxHistory)

	for i := 0; i < maxHistory*3; i++ {
		observeRSS(mm, uint64(i)*mb)
	}

	history := mm.History()
	assert.Len(t, history, maxHistory)
	// 保留的是最新的采样
	assert.Equal(t, uint64(maxHistory*3-1)*mb, history[len(history)-1].RSS)
}

// TestMemoryCheckUsesSampler 测试 Check 使用注入的采样函数
func TestMemoryCheckUsesSampler(t *testing.T) {
	mm := newTestMemoryMonitor(t, 10)

	mm.SetSampler(func() (uint64, error) { return 600 * mb, nil })

	warnings := 0
	mm.OnWarning(func(sample MemorySample) { warnings++ })

	mm.Check()
	assert.Equal(t, 1, warnings)
	assert.Len(t, mm.History(), 1)
}
