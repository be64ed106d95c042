// Package rotation 描述首领战的机制轮换表
//
// 轮换表是一组按偏移排序的机制条目，偏移从战斗开始（或上一次手动清除）起算。
// 表本身不可变，会话中的位置由 encounter 包维护。
package rotation

import (
	"errors"
	"fmt"
	"time"
)

// Entry 轮换表中的一个机制
type Entry struct {
	// ID 机制标识，同一机制可在一轮中出现多次
	ID string `json:"id"`
	// Label 显示名称
	Label string `json:"label"`
	// Offset 相对战斗开始的名义偏移
	Offset time.Duration `json:"offset"`
	// Lead 倒计时提醒提前量，0 表示使用表的默认值
	Lead time.Duration `json:"lead"`
	// Template 用于确认该机制的模板 ID，空表示只按计时推进
	Template string `json:"template,omitempty"`
	// RequiresClear 到达后需要手动确认清除才继续计时
	RequiresClear bool `json:"requires_clear,omitempty"`
}

// Table 轮换表
type Table struct {
	Name        string        `json:"name"`
	Entries     []Entry       `json:"entries"`
	CycleLength time.Duration `json:"cycle_length"`
	Repeat      bool          `json:"repeat"`
	DefaultLead time.Duration `json:"default_lead"`
}

var (
	// ErrEmptyRotation 轮换表为空
	ErrEmptyRotation = errors.New("轮换表为空")
	// ErrInvalidRotation 轮换表不合法
	ErrInvalidRotation = errors.New("轮换表不合法")
)

// Validate 检查轮换表是否满足不变量
func (t *Table) Validate() error {
	if len(t.Entries) == 0 {
		return ErrEmptyRotation
	}

	var prev time.Duration
	for i, e := range t.Entries {
		if e.ID == "" {
			return fmt.Errorf("%w: 第 %d 个机制缺少 ID", ErrInvalidRotation, i)
		}
		if e.Offset < 0 {
			return fmt.Errorf("%w: %s 偏移为负 (%s)", ErrInvalidRotation, e.ID, e.Offset)
		}
		if e.Offset < prev {
			return fmt.Errorf("%w: %s 偏移 %s 小于前一个机制 %s", ErrInvalidRotation, e.ID, e.Offset, prev)
		}
		if e.Lead < 0 {
			return fmt.Errorf("%w: %s 提前量为负", ErrInvalidRotation, e.ID)
		}
		prev = e.Offset
	}

	if t.CycleLength <= 0 {
		return fmt.Errorf("%w: 周期长度必须大于 0", ErrInvalidRotation)
	}
	if t.CycleLength < prev {
		return fmt.Errorf("%w: 周期长度 %s 小于最后一个机制偏移 %s", ErrInvalidRotation, t.CycleLength, prev)
	}
	if t.DefaultLead < 0 {
		return fmt.Errorf("%w: 默认提前量为负", ErrInvalidRotation)
	}
	return nil
}

// Len 机制数量
func (t Table) Len() int {
	return len(t.Entries)
}

// Entry 返回第 index 个机制
func (t Table) Entry(index int) Entry {
	return t.Entries[index]
}

// Nominal 返回第 cycle 轮中第 index 个机制的名义时间（从战斗开始累计）
func (t Table) Nominal(index, cycle int) time.Duration {
	return time.Duration(cycle)*t.CycleLength + t.Entries[index].Offset
}

// Next 返回下一个位置；不循环的表在最后一个机制之后返回 ok=false
func (t Table) Next(index, cycle int) (nextIndex, nextCycle int, ok bool) {
	if index+1 < len(t.Entries) {
		return index + 1, cycle, true
	}
	if !t.Repeat {
		return index, cycle, false
	}
	return 0, cycle + 1, true
}

// LeadFor 返回机制的倒计时提前量
func (t Table) LeadFor(index int) time.Duration {
	if lead := t.Entries[index].Lead; lead > 0 {
		return lead
	}
	return t.DefaultLead
}

// Templates 返回表中引用的全部模板 ID（去重，保持顺序）
func (t Table) Templates() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, e := range t.Entries {
		if e.Template == "" || seen[e.Template] {
			continue
		}
		seen[e.Template] = true
		ids = append(ids, e.Template)
	}
	return ids
}
