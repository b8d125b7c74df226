package layout

import (
	"fmt"
	"strconv"
	"strings"
)

// Unit 是长度值的原始单位。
type Unit int

const (
	UnitPT Unit = iota // 点，模板坐标的默认单位
	UnitMM             // 毫米
	UnitCM             // 厘米
	UnitIN             // 英寸
)

// pt 与 mm 之间的换算常量。
const (
	PtToMm = 0.352777
	MmToPt = 1.0 / PtToMm
)

func (u Unit) String() string {
	switch u {
	case UnitPT:
		return "pt"
	case UnitMM:
		return "mm"
	case UnitCM:
		return "cm"
	case UnitIN:
		return "in"
	default:
		return ""
	}
}

// Length 保留数值及其单位。
type Length struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

// ToMM 换算为毫米。
func (l Length) ToMM() float64 {
	switch l.Unit {
	case UnitMM:
		return l.Value
	case UnitCM:
		return l.Value * 10
	case UnitIN:
		return l.Value * 25.4
	case UnitPT:
		return l.Value * PtToMm
	default:
		return l.Value
	}
}

// ToPT 换算为点。
func (l Length) ToPT() float64 {
	if l.Unit == UnitPT {
		return l.Value
	}
	return l.ToMM() * MmToPt
}

func (l Length) String() string {
	return strconv.FormatFloat(l.Value, 'f', -1, 64) + l.Unit.String()
}

// ParseLength 解析 "595"、"210mm"、"21cm"、"8.5in"、"842pt" 形式的长度，无单位时按点处理。
func ParseLength(value string) (Length, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return Length{}, fmt.Errorf("长度为空")
	}
	unit := UnitPT
	num := v
	for _, suf := range []struct {
		s string
		u Unit
	}{{"mm", UnitMM}, {"cm", UnitCM}, {"in", UnitIN}, {"pt", UnitPT}} {
		if strings.HasSuffix(v, suf.s) {
			unit = suf.u
			num = strings.TrimSpace(strings.TrimSuffix(v, suf.s))
			break
		}
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return Length{}, fmt.Errorf("长度 %q 无法解析: %w", value, err)
	}
	return Length{Value: f, Unit: unit}, nil
}

// Paper 返回常用纸张的纵向尺寸（点）。
func Paper(name string) (width, height float64, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "A4":
		return Length{210, UnitMM}.ToPT(), Length{297, UnitMM}.ToPT(), true
	case "A3":
		return Length{297, UnitMM}.ToPT(), Length{420, UnitMM}.ToPT(), true
	case "B5":
		return Length{182, UnitMM}.ToPT(), Length{257, UnitMM}.ToPT(), true
	case "LETTER":
		return Length{8.5, UnitIN}.ToPT(), Length{11, UnitIN}.ToPT(), true
	default:
		return 0, 0, false
	}
}
