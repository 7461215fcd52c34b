/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-02-10 12:00:00
 * @FilePath: \go-testagent\controller\sim.go
 * @Description: 内置模拟控制器 - 无外部测试程序时的默认实现
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package controller

import (
	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// simWindow 模拟窗口
type simWindow struct {
	slotIdx int
	status  Status
	fields  map[string]string
	// results 预排程的每次点击 start 后的结局，耗尽后默认 PASS
	results []Status
	clicks  int
}

// SimController 内存模拟控制器。
// 每个槽位对应一个虚拟窗口；点击 start 后立刻进入预排程的终局状态，
// 用于本地运行与测试。
type SimController struct {
	mu      *syncx.RWLock
	windows map[int]*simWindow
	nextID  Handle
	handles map[Handle]*simWindow
}

// NewSimController 创建模拟控制器
func NewSimController() *SimController {
	return &SimController{
		mu:      syncx.NewRWLock(),
		windows: make(map[int]*simWindow),
		handles: make(map[Handle]*simWindow),
		nextID:  1,
	}
}

// ScriptResults 预排程某槽位接下来各次运行的结局。
// 例如 []Status{StatusPass, StatusPass, StatusFail} 表示第三次运行失败。
func (c *SimController) ScriptResults(slotIdx int, results ...Status) {
	syncx.WithLock(c.mu, func() {
		w := c.ensureWindow(slotIdx)
		w.results = append(w.results, results...)
	})
}

// ensureWindow 取得或创建槽位窗口（须持有锁）
func (c *SimController) ensureWindow(slotIdx int) *simWindow {
	if w, ok := c.windows[slotIdx]; ok {
		return w
	}
	w := &simWindow{
		slotIdx: slotIdx,
		status:  StatusIdle,
		fields:  make(map[string]string),
	}
	c.windows[slotIdx] = w
	return w
}

// FindWindow 查找窗口，槽位不存在时自动创建（模拟程序总是在运行）
func (c *SimController) FindWindow(criteria WindowCriteria) (Handle, error) {
	return syncx.WithLockReturnValue(c.mu, func() Handle {
		w := c.ensureWindow(criteria.SlotIdx)
		h := c.nextID
		c.nextID++
		c.handles[h] = w
		return h
	}), nil
}

// Click 点击控件。start 推进到下一个预排程结局，stop 置为 STOPPED。
func (c *SimController) Click(h Handle, control string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.handles[h]
	if !ok {
		return ErrWindowNotFound
	}

	switch control {
	case ControlStart:
		if w.clicks < len(w.results) {
			w.status = w.results[w.clicks]
		} else {
			w.status = StatusPass
		}
		w.clicks++
	case ControlStop:
		w.status = StatusStopped
	default:
		return ErrControlDisabled
	}
	return nil
}

// SetText 设置控件文本
func (c *SimController) SetText(h Handle, control, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.handles[h]
	if !ok {
		return ErrWindowNotFound
	}
	w.fields[control] = value
	return nil
}

// ReadStatus 读取窗口状态
func (c *SimController) ReadStatus(h Handle) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.handles[h]
	if !ok {
		return StatusIdle, ErrWindowNotFound
	}
	return w.status, nil
}

// Clicks 读取某槽位 start 控件被点击的次数（测试辅助）
func (c *SimController) Clicks(slotIdx int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if w, ok := c.windows[slotIdx]; ok {
		return w.clicks
	}
	return 0
}

// Field 读取已设置的控件文本（测试辅助）
func (c *SimController) Field(slotIdx int, control string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if w, ok := c.windows[slotIdx]; ok {
		return w.fields[control]
	}
	return ""
}
