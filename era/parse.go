package era

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// ErrUnparsable 表示日期字符串无法识别。
var ErrUnparsable = errors.New("无法识别的日期")

// 不带时区的格式在调用方提供的时区中解释。
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/1/2 15:04:05",
	"2006/1/2 15:04",
	"2006/01/02",
	"2006/1/2",
	"2006-01-02",
	"2006-1-2",
	"2006年1月2日 15時4分",
	"2006年1月2日 15:04",
	"2006年1月2日",
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	// JavaScript Date.prototype.toString()，括号内的时区名称在解析前去掉。
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	time.RFC1123Z,
	time.RFC1123,
}

var jsZoneName = regexp.MustCompile(`\s*\([^)]*\)\s*$`)

// ParseDate 解析表单回答中的日期时间。loc 为空时使用 time.Local。
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	v := strings.TrimSpace(s)
	if v == "" {
		return time.Time{}, ErrUnparsable
	}
	v = jsZoneName.ReplaceAllString(v, "")

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.In(loc), nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrUnparsable
}
