package template

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid 表示模板违反结构约束。
var ErrInvalid = errors.New("模板无效")

// ValidationError 汇总一次校验发现的全部问题。
type ValidationError struct {
	Problems []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, p.Error())
	}
	return fmt.Sprintf("%v: %s", ErrInvalid, strings.Join(msgs, "; "))
}

// Unwrap 使 errors.Is(err, ErrInvalid) 与逐条匹配同时成立。
func (e *ValidationError) Unwrap() []error {
	return append([]error{ErrInvalid}, e.Problems...)
}

// Validate 检查 id 唯一与一致、几何尺寸、数据来源与 autoFill 引用，以及 autoFill 环。
func (t *Template) Validate() error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	for _, key := range t.Fields.mismatched() {
		f, _ := t.Fields.Get(key)
		add("字段键 %s 与 id %s 不一致", key, f.ID)
	}

	questionIDs := make(map[string]bool, len(t.Questions))
	for _, q := range t.Questions {
		if q.ID == "" {
			add("问题 %q 缺少 id", q.Title)
			continue
		}
		if questionIDs[q.ID] {
			add("问题 id %s 重复", q.ID)
		}
		if t.Fields.Has(q.ID) {
			add("问题 id %s 与字段 id 冲突", q.ID)
		}
		questionIDs[q.ID] = true
	}

	for id, f := range t.Fields.All() {
		if f.Width <= 0 || f.Height <= 0 {
			add("字段 %s 的宽高必须大于 0", id)
		}
		if f.DataSourceType != SourceNone && strings.TrimSpace(f.DataSource) == "" {
			add("字段 %s 设置了 dataSourceType %s 但缺少 dataSource", id, f.DataSourceType)
		}
		if f.AutoFill == nil || f.AutoFill.SourceID == "" {
			continue
		}
		src := f.AutoFill.SourceID
		switch {
		case src == id:
			add("字段 %s 的 autoFill 引用了自身", id)
		case !t.Fields.Has(src) && !questionIDs[src]:
			add("字段 %s 的 autoFill 引用了不存在的 %s", id, src)
		}
	}

	if cycle := t.autoFillCycle(); len(cycle) > 0 {
		add("autoFill 存在循环引用: %s", strings.Join(cycle, " -> "))
	}

	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}

// AutoFillDeps 返回字段 id 直接依赖的字段 id：autoFill 指向字段时为该字段，
// 指向问题时为该问题各选项标记的字段。
func (t *Template) AutoFillDeps(id string) []string {
	f, ok := t.Fields.Get(id)
	if !ok || f.AutoFill == nil || f.AutoFill.SourceID == "" {
		return nil
	}
	src := f.AutoFill.SourceID
	if t.Fields.Has(src) {
		return []string{src}
	}
	q, ok := t.Question(src)
	if !ok {
		return nil
	}
	var deps []string
	for _, c := range q.Choices {
		if t.Fields.Has(c.FieldID) {
			deps = append(deps, c.FieldID)
		}
	}
	return deps
}

// autoFillCycle 用三色 DFS 查找 autoFill 依赖环，返回环上的 id 序列（首尾相同）。
func (t *Template) autoFillCycle() []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, t.Fields.Len())
	var stack []string
	var found []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = grey
		stack = append(stack, id)
		for _, dep := range t.AutoFillDeps(id) {
			switch color[dep] {
			case grey:
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				found = append(append([]string(nil), stack[start:]...), dep)
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range t.Fields.IDs() {
		if color[id] == white && visit(id) {
			return found
		}
	}
	return nil
}
