package binding

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// 长音符与全角减号统一为 '-'。
var dashVariants = strings.NewReplacer("ー", "-", "−", "-")

// toHalfWidthAlnum 将全角拉丁字母与数字转为半角，其他字符保持不变。
func toHalfWidthAlnum(s string) string {
	return strings.Map(func(r rune) rune {
		p := width.LookupRune(r)
		if p.Kind() != width.EastAsianFullwidth {
			return r
		}
		n := p.Narrow()
		if n < unicode.MaxASCII && (unicode.IsLetter(n) || unicode.IsDigit(n)) {
			return n
		}
		return r
	}, s)
}

// NormalizeText 是单行文字的后处理：去掉全部空白，全角字母数字转半角，长音与减号转为 '-'。
func NormalizeText(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return dashVariants.Replace(toHalfWidthAlnum(s))
}

// NormalizeMultiline 与 NormalizeText 相同，但保留空白与换行，供文章欄使用。
func NormalizeMultiline(s string) string {
	return dashVariants.Replace(toHalfWidthAlnum(s))
}
