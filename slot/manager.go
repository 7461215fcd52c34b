/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-02-10 12:00:00
 * @FilePath: \go-testagent\slot\manager.go
 * @Description: 槽位管理器
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package slot

import "fmt"

// ErrSlotNotFound 槽位索引越界
type ErrSlotNotFound struct {
	Idx int
}

// Error 实现 error 接口
func (e *ErrSlotNotFound) Error() string {
	return fmt.Sprintf("slot %d not found", e.Idx)
}

// Manager 槽位管理器。槽位集合在进程生命周期内固定。
type Manager struct {
	slots []*Slot
}

// NewManager 创建管理器，槽位索引从 0 到 count-1
func NewManager(count int) *Manager {
	slots := make([]*Slot, count)
	for i := range slots {
		slots[i] = NewSlot(i)
	}
	return &Manager{slots: slots}
}

// Get 按索引取槽位
func (m *Manager) Get(idx int) (*Slot, error) {
	if idx < 0 || idx >= len(m.slots) {
		return nil, &ErrSlotNotFound{Idx: idx}
	}
	return m.slots[idx], nil
}

// Count 槽位总数
func (m *Manager) Count() int {
	return len(m.slots)
}

// All 全部槽位
func (m *Manager) All() []*Slot {
	return m.slots
}

// BusyCount 正在运行的槽位数量
func (m *Manager) BusyCount() int {
	n := 0
	for _, s := range m.slots {
		if s.Busy() {
			n++
		}
	}
	return n
}
