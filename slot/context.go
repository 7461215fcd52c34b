/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-02-10 12:00:00
 * @FilePath: \go-testagent\slot\context.go
 * @Description: 批次执行上下文与进度计算
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package slot

import "math"

// BatchContext 一次槽位运行的批次上下文。
// loop_count 为目标循环总数，loop_step 为每批次的循环数，
// TotalBatch = ceil(loop_count / loop_step)。进度按已完成批次计算，
// 在单次运行内单调不减：开始时为 0，全部循环完成时为 100。
type BatchContext struct {
	CurrentBatch    int `json:"current_batch"` // 已完成的批次数，完成后等于 TotalBatch
	LoopStep        int `json:"loop_step"`     // 每批次循环数
	LoopCount       int `json:"loop_count"`    // 目标循环总数
	TotalBatch      int `json:"total_batch"`   // 批次总数（含计入进度的预处理批次）
	ProgressPercent int `json:"progress_percent"`

	loopsDone    int // 已完成的循环数
	preludeTotal int // 计入进度的预处理批次数（0 或 1）
	preludeDone  int
}

// NewBatchContext 创建批次上下文。
// loopCount <= 1 时视为单次模式；loopStep 规范化到 [1, loopCount]。
func NewBatchContext(loopCount, loopStep int) *BatchContext {
	if loopCount < 1 {
		loopCount = 1
	}
	if loopStep < 1 {
		loopStep = 1
	}
	if loopStep > loopCount {
		loopStep = loopCount
	}
	return &BatchContext{
		LoopCount:  loopCount,
		LoopStep:   loopStep,
		TotalBatch: (loopCount + loopStep - 1) / loopStep,
	}
}

// AddPreconditionBatch 将预处理步骤作为一个额外批次计入进度
func (bc *BatchContext) AddPreconditionBatch() {
	if bc.preludeTotal == 0 {
		bc.preludeTotal = 1
		bc.TotalBatch++
	}
}

// CompletePrecondition 标记预处理批次完成
func (bc *BatchContext) CompletePrecondition() {
	if bc.preludeDone < bc.preludeTotal {
		bc.preludeDone = bc.preludeTotal
		bc.recalc()
	}
}

// Advance 推进到指定的已完成循环数并重新计算进度。
// 进度只增不减，回退值被忽略，越界值被钳制。
func (bc *BatchContext) Advance(loops int) {
	if loops <= bc.loopsDone {
		return // 不允许回退
	}
	if loops > bc.LoopCount {
		loops = bc.LoopCount
	}
	bc.loopsDone = loops
	bc.recalc()
}

// LoopsDone 已完成的循环数
func (bc *BatchContext) LoopsDone() int {
	return bc.loopsDone
}

// recalc 按已完成批次重新计算进度。
// 末尾的不满一批在全部循环完成时计为已完成批次。
func (bc *BatchContext) recalc() {
	batches := bc.loopsDone / bc.LoopStep
	if bc.loopsDone >= bc.LoopCount {
		batches = bc.TotalBatch - bc.preludeTotal
	}
	bc.CurrentBatch = bc.preludeDone + batches

	progress := int(math.Round(float64(bc.CurrentBatch) / float64(bc.TotalBatch) * 100))
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if progress > bc.ProgressPercent {
		bc.ProgressPercent = progress
	}
}

// Done 是否已完成全部循环
func (bc *BatchContext) Done() bool {
	return bc.loopsDone >= bc.LoopCount
}
