// Package era 计算日期所属的和暦元号与元号年，并生成日期字段使用的分量表。
package era

import (
	"strconv"
	"strings"
	"time"
)

// Era 是闭合的元号枚举，None 表示大正之前（年份保持西历）。
type Era int

const (
	None Era = iota
	Taisho
	Showa
	Heisei
	Reiwa
)

type boundary struct {
	era    Era
	ymd    int
	offset int
}

// 按从新到旧排列，首个满足 ymd >= boundary 的元号生效。
var boundaries = []boundary{
	{Reiwa, 20190501, 2018},
	{Heisei, 19890108, 1988},
	{Showa, 19261225, 1925},
	{Taisho, 19120730, 1911},
}

// YMD 将日期压缩为 year*10000 + month*100 + day。
func YMD(year int, month time.Month, day int) int {
	return year*10000 + int(month)*100 + day
}

// Of 返回 t（按其自身时区的日历日）所属的元号。
func Of(t time.Time) Era {
	return ForYMD(YMD(t.Year(), t.Month(), t.Day()))
}

// ForYMD 按边界表查找元号。
func ForYMD(ymd int) Era {
	for _, b := range boundaries {
		if ymd >= b.ymd {
			return b.era
		}
	}
	return None
}

// Offset 返回元号年换算偏移：和暦年 = 西历年 - Offset。
func (e Era) Offset() int {
	for _, b := range boundaries {
		if b.era == e {
			return b.offset
		}
	}
	return 0
}

// Year 返回西历年 adYear 在该元号下的年数。
func (e Era) Year(adYear int) int {
	return adYear - e.Offset()
}

// Tag 返回元号在 dataPart 中使用的标记（circle-<tag>）。
func (e Era) Tag() string {
	switch e {
	case Reiwa:
		return "reiwa"
	case Heisei:
		return "heisei"
	case Showa:
		return "showa"
	case Taisho:
		return "taisho"
	case None:
		return ""
	default:
		return ""
	}
}

// Kanji 返回元号的汉字名称。
func (e Era) Kanji() string {
	switch e {
	case Reiwa:
		return "令和"
	case Heisei:
		return "平成"
	case Showa:
		return "昭和"
	case Taisho:
		return "大正"
	case None:
		return ""
	default:
		return ""
	}
}

func (e Era) String() string {
	if tag := e.Tag(); tag != "" {
		return tag
	}
	return "none"
}

// ParseTag 解析元号标记，兼容旧模板中的 "taisyou" 写法。
func ParseTag(tag string) (Era, bool) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "reiwa":
		return Reiwa, true
	case "heisei":
		return Heisei, true
	case "showa":
		return Showa, true
	case "taisho", "taisyou":
		return Taisho, true
	default:
		return None, false
	}
}

// Parts 描述一个时间点的全部日期分量；不适用的上午/下午分量为空字符串。
type Parts struct {
	Era        Era
	YearAD     string
	YearWareki string
	Month      string
	Day        string
	Hour24     string
	Hour12     string
	HourAM     string
	HourPM     string
	Minute     string
	MinuteAM   string
	MinutePM   string
}

// Compute 计算 t 的日期分量。
func Compute(t time.Time) Parts {
	e := Of(t)
	hour := t.Hour()
	minute := pad2(strconv.Itoa(t.Minute()))
	hour12 := hour % 12
	if hour12 == 0 {
		hour12 = 12
	}

	p := Parts{
		Era:        e,
		YearAD:     strconv.Itoa(t.Year()),
		YearWareki: strconv.Itoa(e.Year(t.Year())),
		Month:      strconv.Itoa(int(t.Month())),
		Day:        strconv.Itoa(t.Day()),
		Hour24:     strconv.Itoa(hour),
		Hour12:     strconv.Itoa(hour12),
		Minute:     minute,
	}
	if hour < 12 {
		p.HourAM = strconv.Itoa(hour12)
		p.MinuteAM = minute
	} else {
		p.HourPM = strconv.Itoa(hour12)
		p.MinutePM = minute
	}
	return p
}

// Map 以 dataPart 角色名为键返回分量表。
func (p Parts) Map() map[string]string {
	return map[string]string{
		"year-ad":     p.YearAD,
		"year-wareki": p.YearWareki,
		"month":       p.Month,
		"day":         p.Day,
		"hour-24":     p.Hour24,
		"hour-12":     p.Hour12,
		"hour-am":     p.HourAM,
		"hour-pm":     p.HourPM,
		"minute":      p.Minute,
		"minute-am":   p.MinuteAM,
		"minute-pm":   p.MinutePM,
	}
}

// TodayMap 返回 today-* 别名表，全部基于 now。
func TodayMap(now time.Time) map[string]string {
	p := Compute(now)
	return map[string]string{
		"today-year-ad":     p.YearAD,
		"today-year-wareki": p.YearWareki,
		"today-month":       p.Month,
		"today-day":         p.Day,
		"today-hour-24":     p.Hour24,
		"today-hour":        p.Hour24,
		"today-minute":      p.Minute,
	}
}

// PaddedRoles 是拆分显示时需要左补零到两位的角色。
var PaddedRoles = map[string]bool{
	"month":       true,
	"day":         true,
	"year-wareki": true,
	"minute":      true,
	"hour-24":     true,
}

// Pad 在 role 需要补零时将 v 左补 '0' 至至少两位。
func Pad(role string, v string) string {
	if PaddedRoles[strings.TrimPrefix(role, "today-")] {
		return pad2(v)
	}
	return v
}

func pad2(v string) string {
	for len([]rune(v)) < 2 {
		v = "0" + v
	}
	return v
}
