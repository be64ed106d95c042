package rotation

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// profileFile 轮换表文件格式，时间单位为秒
type profileFile struct {
	Name        string            `json:"name" toml:"name" yaml:"name"`
	Cycle       float64           `json:"cycle" toml:"cycle" yaml:"cycle"`
	Repeat      *bool             `json:"repeat,omitempty" toml:"repeat,omitempty" yaml:"repeat,omitempty"`
	DefaultLead float64           `json:"default_lead,omitempty" toml:"default_lead,omitempty" yaml:"default_lead,omitempty"`
	Mechanics   []profileMechanic `json:"mechanics" toml:"mechanics" yaml:"mechanics"`
}

type profileMechanic struct {
	ID            string  `json:"id" toml:"id" yaml:"id"`
	Label         string  `json:"label,omitempty" toml:"label,omitempty" yaml:"label,omitempty"`
	At            float64 `json:"at" toml:"at" yaml:"at"`
	Lead          float64 `json:"lead,omitempty" toml:"lead,omitempty" yaml:"lead,omitempty"`
	Template      string  `json:"template,omitempty" toml:"template,omitempty" yaml:"template,omitempty"`
	RequiresClear bool    `json:"requires_clear,omitempty" toml:"requires_clear,omitempty" yaml:"requires_clear,omitempty"`
}

// Format 轮换表文件格式
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath 根据扩展名判断文件格式
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("不支持的轮换表格式: %s", path)
	}
}

// LoadFile 从文件加载轮换表
func LoadFile(path string) (Table, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return Table{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("读取轮换表失败: %w", err)
	}
	return Parse(data, format)
}

// Parse 解析轮换表内容并校验
func Parse(data []byte, format Format) (Table, error) {
	var pf profileFile
	var err error
	switch format {
	case FormatTOML:
		err = toml.Unmarshal(data, &pf)
	case FormatYAML:
		err = yaml.Unmarshal(data, &pf)
	case FormatJSON:
		err = json.Unmarshal(data, &pf)
	default:
		return Table{}, fmt.Errorf("不支持的轮换表格式: %s", format)
	}
	if err != nil {
		return Table{}, fmt.Errorf("解析轮换表失败: %w", err)
	}

	t := pf.toTable()
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// Marshal 将轮换表编码为指定格式
func Marshal(t Table, format Format) ([]byte, error) {
	pf := fromTable(t)
	switch format {
	case FormatTOML:
		return toml.Marshal(pf)
	case FormatYAML:
		return yaml.Marshal(pf)
	case FormatJSON:
		return json.MarshalIndent(pf, "", "  ")
	default:
		return nil, fmt.Errorf("不支持的轮换表格式: %s", format)
	}
}

func (pf profileFile) toTable() Table {
	t := Table{
		Name:        pf.Name,
		CycleLength: seconds(pf.Cycle),
		Repeat:      true,
		DefaultLead: DefaultLead,
	}
	if pf.Repeat != nil {
		t.Repeat = *pf.Repeat
	}
	if pf.DefaultLead > 0 {
		t.DefaultLead = seconds(pf.DefaultLead)
	}

	for _, m := range pf.Mechanics {
		label := m.Label
		if label == "" {
			label = m.ID
		}
		t.Entries = append(t.Entries, Entry{
			ID:            m.ID,
			Label:         label,
			Offset:        seconds(m.At),
			Lead:          seconds(m.Lead),
			Template:      m.Template,
			RequiresClear: m.RequiresClear,
		})
	}

	// 未写周期时取最后一个机制的偏移
	if t.CycleLength == 0 && len(t.Entries) > 0 {
		t.CycleLength = t.Entries[len(t.Entries)-1].Offset
	}
	return t
}

func fromTable(t Table) profileFile {
	repeat := t.Repeat
	pf := profileFile{
		Name:        t.Name,
		Cycle:       t.CycleLength.Seconds(),
		Repeat:      &repeat,
		DefaultLead: t.DefaultLead.Seconds(),
	}
	for _, e := range t.Entries {
		pf.Mechanics = append(pf.Mechanics, profileMechanic{
			ID:            e.ID,
			Label:         e.Label,
			At:            e.Offset.Seconds(),
			Lead:          e.Lead.Seconds(),
			Template:      e.Template,
			RequiresClear: e.RequiresClear,
		})
	}
	return pf
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
