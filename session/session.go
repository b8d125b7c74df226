// Package session 实现模板编辑会话：字段的放置、移动、缩放、分组与删除，以及有界撤销。
//
// 会话持有的模板快照不可变；每次编辑生成新的快照并把旧快照压入撤销历史。
// 渲染管线只接收快照，不依赖会话状态。
package session

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ByLCY/formstamp/binding"
	"github.com/ByLCY/formstamp/dsl"
	"github.com/ByLCY/formstamp/layout"
	"github.com/ByLCY/formstamp/logging"
	"github.com/ByLCY/formstamp/template"
)

const (
	// MinSize 是缩放后字段宽高的下限。
	MinSize = 10.0
	// DuplicateMargin 是复制字段与原字段之间的间距。
	DuplicateMargin = 5.0
	// 分组排序时与行首 y 差在该值以内视为同一行。
	rowTolerance = 10.0
)

var (
	// ErrNoField 表示字段 id 不存在。
	ErrNoField = errors.New("字段不存在")
	// ErrNothingToUndo 表示撤销历史为空。
	ErrNothingToUndo = errors.New("没有可撤销的操作")
)

// Size 是某类字段上次使用的尺寸。
type Size struct {
	Width  float64
	Height float64
	Size   float64
}

// DefaultSizes 是各类字段的初始尺寸。
var DefaultSizes = map[template.FieldType]Size{
	template.FieldText:     {Width: 100, Height: 30, Size: 21},
	template.FieldTextarea: {Width: 300, Height: 150, Size: 10.5},
	template.FieldCircle:   {Width: 30, Height: 30},
	template.FieldCheck:    {Width: 30, Height: 30},
}

var labelPrefixes = map[template.FieldType]string{
	template.FieldText:     "テキスト",
	template.FieldTextarea: "文章欄",
	template.FieldCircle:   "丸",
	template.FieldCheck:    "チェック",
}

// Direction 是复制字段时新字段相对原字段的方向。
type Direction int

const (
	Right Direction = iota
	Left
	Below
	Above
)

// EditorSession 是一次编辑会话。非并发安全，由单个 UI 线程持有。
type EditorSession struct {
	tpl       *template.Template
	history   *history
	counter   int
	lastSizes map[template.FieldType]Size
	newID     func() string
}

// Option 配置会话。
type Option func(*EditorSession)

// WithIDGenerator 替换字段 id 生成函数。
func WithIDGenerator(fn func() string) Option {
	return func(s *EditorSession) { s.newID = fn }
}

// WithHistoryLimit 设置撤销历史容量。
func WithHistoryLimit(n int) Option {
	return func(s *EditorSession) { s.history = newHistory(n) }
}

// New 以模板副本开启会话；编号计数器从已有标签的最大数字后缀继续。
func New(tpl *template.Template, opts ...Option) *EditorSession {
	if tpl == nil {
		tpl = &template.Template{}
	}
	s := &EditorSession{
		tpl:       tpl.Clone(),
		history:   newHistory(HistoryLimit),
		lastSizes: make(map[template.FieldType]Size, len(DefaultSizes)),
		newID:     func() string { return "field_" + uuid.NewString() },
	}
	for k, v := range DefaultSizes {
		s.lastSizes[k] = v
	}
	for _, o := range opts {
		o(s)
	}
	s.counter = maxLabelNumber(s.tpl) + 1
	return s
}

var trailingDigits = regexp.MustCompile(`\d+$`)

func maxLabelNumber(tpl *template.Template) int {
	highest := 0
	for _, f := range tpl.Fields.All() {
		if m := trailingDigits.FindString(f.Label); m != "" {
			if n, err := strconv.Atoi(m); err == nil && n > highest {
				highest = n
			}
		}
	}
	return highest
}

// Template 返回当前快照。快照由会话共享，调用方不得修改。
func (s *EditorSession) Template() *template.Template { return s.tpl }

// UndoDepth 返回可撤销的步数。
func (s *EditorSession) UndoDepth() int { return s.history.len() }

// LastSize 返回该类字段下次放置时使用的尺寸。
func (s *EditorSession) LastSize(t template.FieldType) Size { return s.lastSizes[t] }

// Undo 恢复上一个快照。
func (s *EditorSession) Undo() error {
	prev, ok := s.history.pop()
	if !ok {
		return ErrNothingToUndo
	}
	s.tpl = prev
	logging.Logger().Debug("撤销编辑", "remaining", s.history.len())
	return nil
}

// edit 在新快照上执行 fn；fn 失败时当前快照与历史均不变。
func (s *EditorSession) edit(fn func(t *template.Template) error) error {
	next := s.tpl.Clone()
	if err := fn(next); err != nil {
		return err
	}
	s.history.push(s.tpl)
	s.tpl = next
	return nil
}

func get(t *template.Template, id string) (template.Field, error) {
	f, ok := t.Fields.Get(id)
	if !ok {
		return template.Field{}, fmt.Errorf("%w: %s", ErrNoField, id)
	}
	return f, nil
}

// AddField 以 (cx, cy) 为中心放置新字段，尺寸取该类型上次使用的尺寸。
func (s *EditorSession) AddField(typ template.FieldType, cx, cy float64) (template.Field, error) {
	prefix, ok := labelPrefixes[typ]
	if !ok {
		return template.Field{}, fmt.Errorf("未知的字段类型 %v", typ)
	}
	size := s.lastSizes[typ]
	f := template.Field{
		ID:     s.newID(),
		Type:   typ,
		Label:  prefix + strconv.Itoa(s.counter),
		Value:  template.StringValue(""),
		X:      cx - size.Width/2,
		Y:      cy - size.Height/2,
		Width:  size.Width,
		Height: size.Height,
		Size:   size.Size,
	}
	err := s.edit(func(t *template.Template) error {
		if t.Fields.Has(f.ID) {
			return fmt.Errorf("字段 id %s 已存在", f.ID)
		}
		t.Fields.Set(f)
		return nil
	})
	if err != nil {
		return template.Field{}, err
	}
	s.counter++
	return f, nil
}

// Move 把字段左上角移到 (x, y)。
func (s *EditorSession) Move(id string, x, y float64) error {
	return s.edit(func(t *template.Template) error {
		f, err := get(t, id)
		if err != nil {
			return err
		}
		f.X, f.Y = x, y
		t.Fields.Set(f)
		return nil
	})
}

// Nudge 把多个字段平移 (dx, dy)，作为一步编辑。
func (s *EditorSession) Nudge(ids []string, dx, dy float64) error {
	return s.edit(func(t *template.Template) error {
		for _, id := range ids {
			f, err := get(t, id)
			if err != nil {
				return err
			}
			f.X += dx
			f.Y += dy
			t.Fields.Set(f)
		}
		return nil
	})
}

// Resize 设置字段宽高（不小于 MinSize），并记为该类型下次放置的尺寸。
func (s *EditorSession) Resize(id string, width, height float64) error {
	var resized template.Field
	err := s.edit(func(t *template.Template) error {
		f, err := get(t, id)
		if err != nil {
			return err
		}
		f.Width = max(width, MinSize)
		f.Height = max(height, MinSize)
		t.Fields.Set(f)
		resized = f
		return nil
	})
	if err != nil {
		return err
	}
	s.lastSizes[resized.Type] = Size{Width: resized.Width, Height: resized.Height, Size: resized.Size}
	return nil
}

// SetFontSize 设置字段字号；0 表示使用默认字号。
func (s *EditorSession) SetFontSize(id string, size float64) error {
	if size < 0 {
		return fmt.Errorf("字号不能为负数: %g", size)
	}
	return s.edit(func(t *template.Template) error {
		f, err := get(t, id)
		if err != nil {
			return err
		}
		f.Size = size
		t.Fields.Set(f)
		return nil
	})
}

// Relabel 修改字段标签，空白标签被拒绝。
func (s *EditorSession) Relabel(id, label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return fmt.Errorf("标签不能为空")
	}
	return s.edit(func(t *template.Template) error {
		f, err := get(t, id)
		if err != nil {
			return err
		}
		f.Label = label
		t.Fields.Set(f)
		return nil
	})
}

// Duplicate 在原字段旁复制一个字段。以数字结尾的标签取同前缀的下一个编号，否则追加 "_copy"。
func (s *EditorSession) Duplicate(id string, dir Direction) (template.Field, error) {
	var dup template.Field
	err := s.edit(func(t *template.Template) error {
		orig, err := get(t, id)
		if err != nil {
			return err
		}
		dup = orig
		dup.ID = s.newID()
		if t.Fields.Has(dup.ID) {
			return fmt.Errorf("字段 id %s 已存在", dup.ID)
		}
		dup.Label = nextLabel(t, orig.Label)
		switch dir {
		case Right:
			dup.X = orig.X + orig.Width + DuplicateMargin
		case Left:
			dup.X = orig.X - dup.Width - DuplicateMargin
		case Below:
			dup.Y = orig.Y + orig.Height + DuplicateMargin
		case Above:
			dup.Y = orig.Y - dup.Height - DuplicateMargin
		default:
			return fmt.Errorf("未知的复制方向 %d", int(dir))
		}
		t.Fields.Set(dup)
		return nil
	})
	return dup, err
}

func nextLabel(t *template.Template, label string) string {
	loc := trailingDigits.FindStringIndex(label)
	if loc == nil {
		return label + "_copy"
	}
	prefix := label[:loc[0]]
	highest := 0
	for _, f := range t.Fields.All() {
		if !strings.HasPrefix(f.Label, prefix) {
			continue
		}
		if m := trailingDigits.FindString(f.Label); m != "" {
			if n, err := strconv.Atoi(m); err == nil && n > highest {
				highest = n
			}
		}
	}
	return prefix + strconv.Itoa(highest+1)
}

// Delete 删除字段，并移除以这些字段为来源的 autoFill 设置，使模板保持可校验。
func (s *EditorSession) Delete(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.edit(func(t *template.Template) error {
		for _, id := range ids {
			if !t.Fields.Delete(id) {
				return fmt.Errorf("%w: %s", ErrNoField, id)
			}
		}
		for _, f := range t.Fields.All() {
			if f.AutoFill != nil && slices.Contains(ids, f.AutoFill.SourceID) {
				f.AutoFill = nil
				t.Fields.Set(f)
			}
		}
		return nil
	})
}

// SetAutoFill 为 target 设置自动填充；空 key 的规则被忽略，sourceID 为空时清除设置。
// 产生自引用、悬空引用或环的设置被拒绝。
func (s *EditorSession) SetAutoFill(target, sourceID string, rules []template.Rule) error {
	return s.edit(func(t *template.Template) error {
		f, err := get(t, target)
		if err != nil {
			return err
		}
		if sourceID == "" {
			f.AutoFill = nil
		} else {
			var kept []template.Rule
			for _, r := range rules {
				r.Key = strings.TrimSpace(r.Key)
				r.Value = strings.TrimSpace(r.Value)
				if r.Key != "" {
					kept = append(kept, r)
				}
			}
			f.AutoFill = &template.AutoFill{SourceID: sourceID, Rules: kept}
		}
		t.Fields.Set(f)
		return t.Validate()
	})
}

// GroupFields 把字段编为一组共享同一数据源。
// 字段按阅读顺序（先行后列）排序；char-split 与 phone-split 依次分配 char_<i> / split_<i>，
// duplicate 不设置 dataPart；标签改为 <name>[<i>]。
func (s *EditorSession) GroupFields(kind template.SourceType, name string, ids []string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("分组名不能为空")
	}
	var prefix string
	switch kind {
	case template.SourceCharSplit:
		prefix = "char"
	case template.SourcePhoneSplit:
		prefix = "split"
	case template.SourceDuplicate:
	default:
		return fmt.Errorf("分组类型 %v 不能按顺序分组", kind)
	}
	if len(ids) < 2 {
		return fmt.Errorf("分组至少需要 2 个字段，实际 %d", len(ids))
	}
	return s.edit(func(t *template.Template) error {
		fields := make([]template.Field, 0, len(ids))
		for _, id := range ids {
			f, err := get(t, id)
			if err != nil {
				return err
			}
			fields = append(fields, f)
		}
		sortReadingOrder(fields)
		for i, f := range fields {
			f.DataSource = name
			f.DataSourceType = kind
			if prefix != "" {
				f.DataPart = dsl.IndexPart(prefix, i)
			}
			f.Label = fmt.Sprintf("%s[%d]", name, i)
			t.Fields.Set(f)
		}
		return nil
	})
}

// GroupDatetime 把字段编为日期组，roles 为字段 id 到日期分量（dataPart）的映射。
func (s *EditorSession) GroupDatetime(name string, roles map[string]string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("分组名不能为空")
	}
	if len(roles) == 0 {
		return fmt.Errorf("日期分组至少需要 1 个字段")
	}
	return s.edit(func(t *template.Template) error {
		for _, id := range slices.Sorted(maps.Keys(roles)) {
			role := roles[id]
			p, err := dsl.ParsePart(role)
			if err != nil {
				return err
			}
			if p.Kind == dsl.KindIndex {
				return fmt.Errorf("字段 %s: %q 不是日期分量", id, role)
			}
			f, err := get(t, id)
			if err != nil {
				return err
			}
			f.DataSource = name
			f.DataSourceType = template.SourceDatetime
			f.DataPart = p.String()
			t.Fields.Set(f)
		}
		return nil
	})
}

// Ungroup 清除字段的数据源设置。
func (s *EditorSession) Ungroup(ids ...string) error {
	return s.edit(func(t *template.Template) error {
		for _, id := range ids {
			f, err := get(t, id)
			if err != nil {
				return err
			}
			f.DataSource, f.DataSourceType, f.DataPart = "", template.SourceNone, ""
			t.Fields.Set(f)
		}
		return nil
	})
}

// SetQuestion 新增或替换同 id 的问题。
func (s *EditorSession) SetQuestion(q template.Question) error {
	if strings.TrimSpace(q.ID) == "" {
		return fmt.Errorf("问题 id 不能为空")
	}
	q.Choices = slices.Clone(q.Choices)
	return s.edit(func(t *template.Template) error {
		i := slices.IndexFunc(t.Questions, func(x template.Question) bool { return x.ID == q.ID })
		if i < 0 {
			t.Questions = append(t.Questions, q)
		} else {
			t.Questions[i] = q
		}
		return t.Validate()
	})
}

// DeleteQuestion 删除问题。
func (s *EditorSession) DeleteQuestion(id string) error {
	return s.edit(func(t *template.Template) error {
		i := slices.IndexFunc(t.Questions, func(x template.Question) bool { return x.ID == id })
		if i < 0 {
			return fmt.Errorf("问题 %s 不存在", id)
		}
		t.Questions = slices.Delete(t.Questions, i, i+1)
		return nil
	})
}

// PreviewOptions 控制实时预览。
type PreviewOptions struct {
	Resolve binding.Options
	Layout  layout.BuildOptions
}

// Preview 以与批量渲染相同的解析与布局计算当前快照的绘制对象。
// 未指定页面尺寸时依次使用模板记录的尺寸与 A4。
func (s *EditorSession) Preview(answers template.Answers, opts PreviewOptions) (*layout.Result, error) {
	res, err := binding.Resolve(s.tpl, answers, opts.Resolve)
	if err != nil {
		return nil, err
	}
	bo := opts.Layout
	if bo.PageHeight <= 0 {
		if s.tpl.Page != nil && s.tpl.Page.Height > 0 {
			bo.PageWidth, bo.PageHeight = s.tpl.Page.Width, s.tpl.Page.Height
		} else {
			bo.PageWidth, bo.PageHeight, _ = layout.Paper("A4")
		}
	}
	return layout.Build(s.tpl, res, bo)
}

// sortReadingOrder 先按 y 分行再按 x 排序。与行首字段 y 差不超过
// rowTolerance 的字段归入同一行。
func sortReadingOrder(fields []template.Field) {
	slices.SortStableFunc(fields, func(a, b template.Field) int { return cmp.Compare(a.Y, b.Y) })
	for start := 0; start < len(fields); {
		end := start + 1
		for end < len(fields) && fields[end].Y-fields[start].Y <= rowTolerance {
			end++
		}
		slices.SortStableFunc(fields[start:end], func(a, b template.Field) int { return cmp.Compare(a.X, b.X) })
		start = end
	}
}
