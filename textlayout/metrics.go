// Package textlayout 提供字宽估算与带日文禁则处理的折行。
//
// 这里的宽度不是字形的真实度量，而是按字符类别估算的近似值。预览画布与批量
// PDF 输出共用同一套估算，保证两边得出完全相同的折行与居中结果。
package textlayout

import "strings"

// 字符类别与宽度系数，按顺序匹配，先命中者生效。
const (
	digitFactor  = 0.65
	narrowFactor = 0.30
	wideFactor   = 1.00
	letterFactor = 0.70
	asciiFactor  = 0.50
	fullFactor   = 1.00
)

const (
	narrowGlyphs = `iIl1.,;:'"!`
	wideGlyphs   = "mwMW@%"
)

// RuneWidth 返回单个字符在 fontSize 下的估算宽度。
func RuneWidth(r rune, fontSize float64) float64 {
	switch {
	case r >= '0' && r <= '9':
		return fontSize * digitFactor
	case strings.ContainsRune(narrowGlyphs, r):
		return fontSize * narrowFactor
	case strings.ContainsRune(wideGlyphs, r):
		return fontSize * wideFactor
	case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		return fontSize * letterFactor
	case r >= ' ' && r <= '~':
		return fontSize * asciiFactor
	default:
		return fontSize * fullFactor
	}
}

// EstimateWidth 返回字符串宽度，即逐字符估算值之和。
func EstimateWidth(text string, fontSize float64) float64 {
	total := 0.0
	for _, r := range text {
		total += RuneWidth(r, fontSize)
	}
	return total
}

// HasWideGlyph 判断文本中是否含有宽字形（m w M W @ %）。
func HasWideGlyph(text string) bool {
	return strings.ContainsAny(text, wideGlyphs)
}
