package binding

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ByLCY/formstamp/template"
)

var exprPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Interpolate 将文本中的 ${key} 或 ${key[i]} 替换为回答表中的值，用于文件名与邮件正文。
// 键不存在或下标越界时保留原占位符。
func Interpolate(text string, answers template.Answers) string {
	if len(answers) == 0 {
		return text
	}
	return exprPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := exprPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		expr := strings.TrimSpace(groups[1])
		if expr == "" {
			return match
		}
		if val, ok := lookup(answers, expr); ok {
			return val
		}
		return match
	})
}

func lookup(answers template.Answers, expr string) (string, bool) {
	key, index := parseSegment(expr)
	vals, ok := answers[key]
	if !ok {
		return "", false
	}
	if index == "" {
		if len(vals) == 0 {
			return "", false
		}
		return strings.Join(vals, ","), true
	}
	idx, err := strconv.Atoi(index)
	if err != nil || idx < 0 || idx >= len(vals) {
		return "", false
	}
	return vals[idx], true
}

// parseSegment 拆出末尾的 [i] 下标；键本身可以含任意字符。
func parseSegment(expr string) (string, string) {
	if !strings.HasSuffix(expr, "]") {
		return expr, ""
	}
	i := strings.LastIndex(expr, "[")
	if i <= 0 {
		return expr, ""
	}
	return strings.TrimSpace(expr[:i]), expr[i+1 : len(expr)-1]
}
