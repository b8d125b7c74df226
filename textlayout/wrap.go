package textlayout

import "strings"

// 行首禁则字符：折行时这些字符不能出现在新行的开头。
const prohibitedLineStart = "、。，．・：；？！゛゜´｀¨＾ー—‐／＼〜‖｜…‥‘’“”（）〔〕［］｛｝〈〉《》「」『』【】＋−±×÷＝≠＜＞≦≧∞∴♂♀°′″℃￥＄￠￡％＃＆＊＠§☆★○●◎◇"

var paragraphBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// IsProhibitedLineStart 判断 r 是否属于行首禁则字符。
func IsProhibitedLineStart(r rune) bool {
	return strings.ContainsRune(prohibitedLineStart, r)
}

// Wrap 将 text 按 maxWidth 折成多行。
//
// 先按显式换行拆分段落，空段落保留为空行；段内逐字累计估算宽度，放不下时
// 若下一个字符是行首禁则字符，则把当前行最后一个字符带到下一行（追い出し）。
// 单个字符本身超过 maxWidth 时独占一行。
func Wrap(text string, maxWidth, fontSize float64) []string {
	if text == "" {
		return nil
	}
	var lines []string
	for _, paragraph := range strings.Split(paragraphBreaks.Replace(text), "\n") {
		if paragraph == "" {
			lines = append(lines, "")
			continue
		}
		lines = append(lines, wrapParagraph([]rune(paragraph), maxWidth, fontSize)...)
	}
	return lines
}

func wrapParagraph(runes []rune, maxWidth, fontSize float64) []string {
	var lines []string
	var current []rune
	width := 0.0

	for _, r := range runes {
		w := RuneWidth(r, fontSize)
		if width+w <= maxWidth {
			current = append(current, r)
			width += w
			continue
		}
		switch {
		case len(current) == 1 && IsProhibitedLineStart(r):
			// 只有一个字符时不再回退，禁则字符挂在行尾。
			current = append(current, r)
			width += w
		case len(current) > 1 && IsProhibitedLineStart(r):
			last := current[len(current)-1]
			lines = append(lines, string(current[:len(current)-1]))
			current = []rune{last, r}
			width = RuneWidth(last, fontSize) + w
		case len(current) > 0:
			lines = append(lines, string(current))
			current = []rune{r}
			width = w
		default:
			// 空行也放不下的字符独占一行。
			current = []rune{r}
			width = w
		}
	}
	if len(current) > 0 {
		lines = append(lines, string(current))
	}
	return lines
}
