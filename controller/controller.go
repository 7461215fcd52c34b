/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-02-10 12:00:00
 * @FilePath: \go-testagent\controller\controller.go
 * @Description: 外部测试程序控制器接口
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package controller

import (
	"errors"
	"fmt"
)

var (
	// ErrWindowNotFound 未找到测试程序窗口，视为可恢复的步骤失败
	ErrWindowNotFound = errors.New("test window not found")
	// ErrControlDisabled 控件不可用
	ErrControlDisabled = errors.New("control is disabled")
)

// TimeoutError 等待外部程序响应超时
type TimeoutError struct {
	Op      string
	SlotIdx int
}

// Error 实现 error 接口
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("controller timeout: op=%s slot=%d", e.Op, e.SlotIdx)
}

// Handle 外部测试程序窗口句柄
type Handle uint64

// Status 外部测试程序报告的运行状态
type Status string

const (
	StatusIdle    Status = "IDLE"
	StatusRunning Status = "RUNNING"
	StatusPass    Status = "PASS"
	StatusFail    Status = "FAIL"
	StatusStopped Status = "STOPPED"
)

// WindowCriteria 窗口查找条件
type WindowCriteria struct {
	SlotIdx      int
	TitlePattern string
}

// 常用控件名
const (
	ControlStart    = "start"
	ControlStop     = "stop"
	ControlMethod   = "method"
	ControlCapacity = "capacity"
)

// Controller 遗留桌面测试程序的自动化边界。
// 所有方法返回确定结果或 "not found / disabled" 类错误；
// 调用方把超时和未找到当作可恢复失败处理，不会崩溃。
type Controller interface {
	// FindWindow 按条件查找测试程序窗口
	FindWindow(criteria WindowCriteria) (Handle, error)
	// Click 点击指定控件
	Click(h Handle, control string) error
	// SetText 设置指定控件文本
	SetText(h Handle, control, value string) error
	// ReadStatus 读取当前测试状态
	ReadStatus(h Handle) (Status, error)
}
