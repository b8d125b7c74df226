// Package prompt 根据模板生成手工输入的问题序列，并把回答收集为 Answers。
package prompt

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/ByLCY/formstamp/binding"
	"github.com/ByLCY/formstamp/dsl"
	"github.com/ByLCY/formstamp/era"
	"github.com/ByLCY/formstamp/template"
)

// ItemKind 是输入项的类别。
type ItemKind int

const (
	// ItemField 是未分组的文字或文章欄字段，以标签为键。
	ItemField ItemKind = iota
	// ItemGroup 是共享 dataSource 的字段组，以组名为键。
	ItemGroup
	// ItemQuestion 是单选或多选问题，以标题为键。
	ItemQuestion
)

// Item 是输入表单中的一项。
type Item struct {
	Kind ItemKind
	Key  string
	// Y 为该项在页面上最靠上的位置，用于排序。
	Y         float64
	Source    template.SourceType
	Multiline bool
	Question  template.Question
}

// Plan 按页面自上而下的顺序列出需要输入的项目。
//
// 已编组的字段按 dataSource 合并（today-* 分量不需要输入）；被选项引用的字段、
// 选项附带的文字字段与设置了 autoFill 的字段不单独提问。没有有效选项的问题排在最后。
func Plan(tpl *template.Template) []Item {
	if tpl == nil {
		return nil
	}
	assigned := map[string]bool{}
	for _, q := range tpl.Questions {
		for _, c := range q.Choices {
			if c.FieldID != "" {
				assigned[c.FieldID] = true
			}
			if c.HasText && c.TextFieldID != "" {
				assigned[c.TextFieldID] = true
			}
		}
	}

	var items []Item
	groups := map[string]int{}
	seenLabel := map[string]bool{}
	for _, f := range tpl.Fields.All() {
		if f.DataSource != "" && f.DataSourceType != template.SourceNone {
			if p, err := dsl.ParsePart(f.DataPart); err == nil && p.Today {
				continue
			}
			if i, ok := groups[f.DataSource]; ok {
				items[i].Y = math.Min(items[i].Y, f.Y)
				continue
			}
			groups[f.DataSource] = len(items)
			items = append(items, Item{Kind: ItemGroup, Key: f.DataSource, Y: f.Y, Source: f.DataSourceType})
			continue
		}
		if f.Type.IsMark() || assigned[f.ID] || f.AutoFill != nil || f.Label == "" || seenLabel[f.Label] {
			continue
		}
		seenLabel[f.Label] = true
		items = append(items, Item{Kind: ItemField, Key: f.Label, Y: f.Y, Multiline: f.Type == template.FieldTextarea})
	}

	for _, q := range tpl.Questions {
		if q.Title == "" || len(q.Choices) == 0 {
			continue
		}
		y := math.Inf(1)
		for _, c := range q.Choices {
			if f, ok := tpl.Fields.Get(c.FieldID); ok {
				y = f.Y
				break
			}
		}
		items = append(items, Item{Kind: ItemQuestion, Key: q.Title, Y: y, Question: q})
	}

	slices.SortStableFunc(items, func(a, b Item) int { return cmp.Compare(a.Y, b.Y) })
	return items
}

// Options 控制输入收集。
type Options struct {
	// Now 为日期项的默认值，为空时使用 time.Now。
	Now      func() time.Time
	Location *time.Location
}

const dateInputLayout = "2006/01/02 15:04"

// Collect 依次提问并返回回答。空回答不写入结果。
func Collect(ctx context.Context, tpl *template.Template, d Driver, opts Options) (template.Answers, error) {
	if d == nil {
		return nil, fmt.Errorf("prompt: 缺少输入驱动")
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	answers := template.Answers{}
	set := func(key string, values ...string) {
		var kept []string
		for _, v := range values {
			if strings.TrimSpace(v) != "" {
				kept = append(kept, v)
			}
		}
		if len(kept) > 0 {
			answers[key] = kept
		}
	}

	for _, it := range Plan(tpl) {
		switch it.Kind {
		case ItemField:
			cfg := InputConfig{Message: it.Key + ":"}
			var (
				v   string
				err error
			)
			if it.Multiline {
				v, err = d.TextArea(ctx, cfg)
			} else {
				v, err = d.Input(ctx, cfg)
			}
			if err != nil {
				return nil, err
			}
			set(it.Key, v)
		case ItemGroup:
			v, err := d.Input(ctx, groupInput(it, now(), opts.Location))
			if err != nil {
				return nil, err
			}
			set(it.Key, v)
		case ItemQuestion:
			picked, err := askQuestion(ctx, d, it.Question)
			if err != nil {
				return nil, err
			}
			set(it.Key, picked...)
			for _, name := range picked {
				c, _ := it.Question.ChoiceByName(name)
				if !c.HasText || c.TextFieldID == "" {
					continue
				}
				key := it.Key + ":" + name
				v, err := d.Input(ctx, InputConfig{Message: key})
				if err != nil {
					return nil, err
				}
				set(key, v)
			}
		}
	}
	return answers, nil
}

func groupInput(it Item, now time.Time, loc *time.Location) InputConfig {
	cfg := InputConfig{Message: it.Key + ":"}
	switch it.Source {
	case template.SourceDatetime:
		if loc != nil {
			now = now.In(loc)
		}
		cfg.Default = now.Format(dateInputLayout)
		cfg.Help = "例: 2023/05/01 10:00"
		cfg.Validator = func(s string) error {
			if strings.TrimSpace(s) == "" {
				return nil
			}
			_, err := era.ParseDate(s, loc)
			return err
		}
	case template.SourcePhoneSplit:
		cfg.Help = "例: 090-1234-5678"
		cfg.Validator = func(s string) error {
			if strings.TrimSpace(s) == "" {
				return nil
			}
			if !strings.ContainsAny(binding.NormalizePhone(s), "0123456789") {
				return fmt.Errorf("无法识别的电话号码 %q", s)
			}
			return nil
		}
	}
	return cfg
}

func askQuestion(ctx context.Context, d Driver, q template.Question) ([]string, error) {
	var options []string
	for _, c := range q.Choices {
		if c.Name != "" {
			options = append(options, c.Name)
		}
	}
	if len(options) == 0 {
		return nil, nil
	}
	cfg := SelectConfig{Message: q.Title, Options: options}
	switch q.Type {
	case template.QuestionCheckbox:
		return d.MultiSelect(ctx, cfg)
	case template.QuestionRadio:
		v, err := d.Select(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return []string{v}, nil
	default:
		return nil, fmt.Errorf("未知的问题类型 %v", q.Type)
	}
}
