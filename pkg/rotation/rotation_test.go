package rotation

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultTableValid(t *testing.T) {
	tbl := Default()
	if err := tbl.Validate(); err != nil {
		t.Fatalf("内置轮换表应合法: %v", err)
	}
	if tbl.Len() != 12 {
		t.Errorf("内置轮换表应有 12 个机制, 实际 %d", tbl.Len())
	}

	last := tbl.Entry(tbl.Len() - 1)
	if !last.RequiresClear || last.Offset != 145*time.Second {
		t.Errorf("最后一个机制应在 145s 且需要清除: %+v", last)
	}
	if got := tbl.Templates(); len(got) != 9 {
		t.Errorf("去重后模板数应为 9, 实际 %d: %v", len(got), got)
	}
}

func TestQueriesOnReturnedTable(t *testing.T) {
	// 查询方法可直接用于函数返回值
	if Default().Len() != 12 || len(Default().Templates()) != 9 {
		t.Error("内置表查询结果错误")
	}
	if Default().LeadFor(0) <= 0 {
		t.Error("提前量应为正")
	}
}

func TestValidate(t *testing.T) {
	base := func() Table {
		return Table{
			Entries: []Entry{
				{ID: "a", Offset: 0},
				{ID: "b", Offset: 30 * time.Second},
				{ID: "c", Offset: 90 * time.Second},
			},
			CycleLength: 120 * time.Second,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Table)
		want   error
	}{
		{"合法", func(*Table) {}, nil},
		{"空表", func(t *Table) { t.Entries = nil }, ErrEmptyRotation},
		{"偏移递减", func(t *Table) { t.Entries[2].Offset = 10 * time.Second }, ErrInvalidRotation},
		{"负偏移", func(t *Table) { t.Entries[0].Offset = -time.Second }, ErrInvalidRotation},
		{"缺少 ID", func(t *Table) { t.Entries[1].ID = "" }, ErrInvalidRotation},
		{"周期过短", func(t *Table) { t.CycleLength = 60 * time.Second }, ErrInvalidRotation},
		{"周期为零", func(t *Table) { t.CycleLength = 0 }, ErrInvalidRotation},
		{"相同偏移允许", func(t *Table) { t.Entries[1].Offset = 0 }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := base()
			tt.mutate(&tbl)
			err := tbl.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("不应报错: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("期望 %v, 实际 %v", tt.want, err)
			}
		})
	}
}

func TestNominalAndNext(t *testing.T) {
	tbl := Table{
		Entries: []Entry{
			{ID: "a", Offset: 0},
			{ID: "b", Offset: 30 * time.Second},
		},
		CycleLength: 60 * time.Second,
		Repeat:      true,
	}

	if got := tbl.Nominal(1, 2); got != 150*time.Second {
		t.Errorf("Nominal(1,2) 应为 150s, 实际 %s", got)
	}

	i, c, ok := tbl.Next(1, 0)
	if !ok || i != 0 || c != 1 {
		t.Errorf("循环表应回到下一轮开头, 实际 (%d,%d,%v)", i, c, ok)
	}

	tbl.Repeat = false
	if _, _, ok := tbl.Next(1, 0); ok {
		t.Error("不循环的表在末尾应返回 ok=false")
	}
}

func TestLeadFor(t *testing.T) {
	tbl := Table{
		Entries:     []Entry{{ID: "a"}, {ID: "b", Lead: 5 * time.Second}},
		DefaultLead: 2 * time.Second,
	}
	if tbl.LeadFor(0) != 2*time.Second {
		t.Error("未设置提前量时应使用默认值")
	}
	if tbl.LeadFor(1) != 5*time.Second {
		t.Error("应使用机制自己的提前量")
	}
}

const tomlProfile = `
name = "test"
cycle = 100.0
default_lead = 4.0

[[mechanics]]
id = "slam"
label = "Slam"
at = 10.0

[[mechanics]]
id = "wipe"
at = 95.5
lead = 6.0
template = "wipe_icon"
requires_clear = true
`

const yamlProfile = `
name: test
repeat: false
mechanics:
  - id: slam
    label: Slam
    at: 10
  - id: wipe
    at: 95.5
    requires_clear: true
`

func TestParseTOML(t *testing.T) {
	tbl, err := Parse([]byte(tomlProfile), FormatTOML)
	if err != nil {
		t.Fatalf("解析 TOML 失败: %v", err)
	}
	if tbl.CycleLength != 100*time.Second || !tbl.Repeat || tbl.DefaultLead != 4*time.Second {
		t.Errorf("表属性不正确: %+v", tbl)
	}
	wipe := tbl.Entry(1)
	if wipe.Offset != 95500*time.Millisecond || wipe.Lead != 6*time.Second || !wipe.RequiresClear || wipe.Template != "wipe_icon" {
		t.Errorf("机制属性不正确: %+v", wipe)
	}
	if wipe.Label != "wipe" {
		t.Errorf("缺省 label 应取 ID, 实际 %q", wipe.Label)
	}
}

func TestParseYAML(t *testing.T) {
	tbl, err := Parse([]byte(yamlProfile), FormatYAML)
	if err != nil {
		t.Fatalf("解析 YAML 失败: %v", err)
	}
	if tbl.Repeat {
		t.Error("repeat: false 应生效")
	}
	if tbl.CycleLength != 95500*time.Millisecond {
		t.Errorf("缺省周期应为最后一个机制偏移, 实际 %s", tbl.CycleLength)
	}
	if tbl.DefaultLead != DefaultLead {
		t.Errorf("缺省提前量应为 %s", DefaultLead)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	_, err := Parse([]byte("name = \"x\"\n"), FormatTOML)
	if !errors.Is(err, ErrEmptyRotation) {
		t.Errorf("空表应报 ErrEmptyRotation, 实际 %v", err)
	}
}

func TestMarshalRoundTripFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"rot.toml", "rot.yaml", "rot.json"} {
		path := filepath.Join(dir, name)
		format, err := FormatFromPath(path)
		if err != nil {
			t.Fatal(err)
		}
		data, err := Marshal(Default(), format)
		if err != nil {
			t.Fatalf("%s 编码失败: %v", name, err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			t.Fatal(err)
		}

		loaded, err := LoadFile(path)
		if err != nil {
			t.Fatalf("%s 加载失败: %v", name, err)
		}
		if loaded.Len() != Default().Len() || loaded.CycleLength != Default().CycleLength {
			t.Errorf("%s 内容不一致", name)
		}
	}

	if _, err := FormatFromPath("rot.ini"); err == nil {
		t.Error("未知扩展名应报错")
	}
}

func TestFormatters(t *testing.T) {
	if got := FormatMMSS(13 * time.Second); got != "00:13" {
		t.Errorf("FormatMMSS(13s) = %s", got)
	}
	if got := FormatMMSS(61500 * time.Millisecond); got != "01:02" {
		t.Errorf("FormatMMSS(61.5s) = %s", got)
	}
	if got := FormatMMSS(-time.Second); got != "00:00" {
		t.Errorf("负值应显示 00:00, 实际 %s", got)
	}
	if got := FormatOffset(1200 * time.Millisecond); got != "+1.2s" {
		t.Errorf("FormatOffset = %s", got)
	}
	if got := FormatOffset(-300 * time.Millisecond); got != "-0.3s" {
		t.Errorf("FormatOffset = %s", got)
	}
}
