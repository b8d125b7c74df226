package binding

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// NormalizePhone 将全角数字转为半角，并把长音、减号等横线变体统一为 '-'。
func NormalizePhone(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case 'ー', '−', '‐', '－', '―':
			return '-'
		}
		if p := width.LookupRune(r); p.Kind() == width.EastAsianFullwidth {
			if n := p.Narrow(); n >= '0' && n <= '9' {
				return n
			}
		}
		return r
	}, s)
}

// SplitPhoneNumber 拆分电话号码。含 '-' 时按 '-' 原样拆分；否则只保留数字，
// 11 位拆为 3-4-4，03/06 开头的 10 位拆为 2-4-4，其他 10 位拆为 3-3-4，其余整体返回。
func SplitPhoneNumber(raw string) []string {
	v := strings.TrimSpace(NormalizePhone(raw))
	if v == "" {
		return nil
	}
	if strings.Contains(v, "-") {
		parts := strings.Split(v, "-")
		for i, p := range parts {
			parts[i] = strings.TrimSpace(p)
		}
		return parts
	}
	digits := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && unicode.IsDigit(r) {
			return r
		}
		return -1
	}, v)
	switch {
	case len(digits) == 11:
		return []string{digits[:3], digits[3:7], digits[7:]}
	case len(digits) == 10 && (strings.HasPrefix(digits, "03") || strings.HasPrefix(digits, "06")):
		return []string{digits[:2], digits[2:6], digits[6:]}
	case len(digits) == 10:
		return []string{digits[:3], digits[3:6], digits[6:]}
	default:
		return []string{digits}
	}
}
