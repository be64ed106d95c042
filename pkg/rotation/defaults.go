package rotation

import "time"

// DefaultName 内置轮换表名称
const DefaultName = "croesus"

// DefaultLead 默认倒计时提前量
const DefaultLead = 3 * time.Second

// Default 返回内置的 Croesus 轮换表
// 每 12 秒一个机制，145 秒时需要清除能量菌后重新开始
func Default() Table {
	mk := func(sec int, id, label string) Entry {
		return Entry{
			ID:       id,
			Label:    label,
			Offset:   time.Duration(sec) * time.Second,
			Template: id,
		}
	}

	entries := []Entry{
		mk(13, "red_spore", "Red Spore"),
		mk(25, "fairy_ring", "Fairy Ring"),
		mk(37, "slimes", "Slimes"),
		mk(49, "yellow_spore", "Yellow Spore"),
		mk(61, "stun", "Stun"),
		mk(73, "sticky_fungi", "Sticky Fungi"),
		mk(85, "green_spore", "Green Spore"),
		mk(97, "fairy_ring", "Fairy Ring"),
		mk(109, "slimes", "Slimes"),
		mk(121, "blue_spore", "Blue Spore"),
		mk(133, "stun", "Stun"),
		mk(145, "mid", "MID!"),
	}
	entries[len(entries)-1].RequiresClear = true

	return Table{
		Name:        DefaultName,
		Entries:     entries,
		CycleLength: 145 * time.Second,
		Repeat:      true,
		DefaultLead: DefaultLead,
	}
}
