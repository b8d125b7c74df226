// Package binding 将回答表解析为每个字段的值。
//
// 解析是一次纯计算：输入模板与回答的快照，按 autoFill 依赖顺序为全部字段求值，
// 输出值表与未解析字段列表，不修改模板。
package binding

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ByLCY/formstamp/dsl"
	"github.com/ByLCY/formstamp/era"
	"github.com/ByLCY/formstamp/logging"
	"github.com/ByLCY/formstamp/template"
)

// DefaultSubmissionKey 是表示“提交时间”的保留回答键。
const DefaultSubmissionKey = "日付"

// Kind 区分文字值与标记值。
type Kind int

const (
	KindText Kind = iota
	KindMark
)

// Branch 记录值由哪个解析分支得出。
type Branch int

const (
	BranchPlain Branch = iota
	BranchDuplicate
	BranchPhoneSplit
	BranchCharSplit
	BranchAutoFill
	BranchDatetime
	BranchQuestion
	BranchCompanion
)

func (b Branch) String() string {
	switch b {
	case BranchPlain:
		return "plain"
	case BranchDuplicate:
		return "duplicate"
	case BranchPhoneSplit:
		return "phone-split"
	case BranchCharSplit:
		return "char-split"
	case BranchAutoFill:
		return "autofill"
	case BranchDatetime:
		return "datetime"
	case BranchQuestion:
		return "question"
	case BranchCompanion:
		return "companion"
	default:
		return fmt.Sprintf("Branch(%d)", int(b))
	}
}

// Value 是一个字段的解析结果。
type Value struct {
	Kind     Kind
	Text     string
	Marked   bool
	Centered bool
	Source   Branch
}

// Empty 表示该值不产生任何绘制对象。
func (v Value) Empty() bool {
	if v.Kind == KindMark {
		return !v.Marked
	}
	return v.Text == ""
}

// Miss 记录一个未能解析出值的字段及原因。
type Miss struct {
	FieldID string
	Reason  string
}

// Resolution 是一次解析的结果。
type Resolution struct {
	// Order 为解析顺序（autoFill 依赖在前）。
	Order  []string
	Values map[string]Value
	Misses []Miss
}

// Value 返回字段的值。
func (r *Resolution) Value(id string) (Value, bool) {
	v, ok := r.Values[id]
	return v, ok
}

// Text 返回字段的文字值，未解析时为空。
func (r *Resolution) Text(id string) string {
	return r.Values[id].Text
}

// Marked 判断标记字段是否被选中。
func (r *Resolution) Marked(id string) bool {
	return r.Values[id].Marked
}

// Options 控制解析时的环境输入。
type Options struct {
	// Now 返回当前时间，为空时使用 time.Now。
	Now func() time.Time
	// Location 用于解释不带时区的日期回答，为空时使用 time.Local。
	Location *time.Location
	// SubmissionKey 是表示提交时间的保留键，为空时使用 DefaultSubmissionKey。
	SubmissionKey string
	Logger        *slog.Logger
}

// Resolve 为模板中全部字段求值。autoFill 存在环时返回 ErrCycle，其余问题只记为 Miss。
func Resolve(tpl *template.Template, answers template.Answers, opts Options) (*Resolution, error) {
	if tpl == nil {
		return nil, fmt.Errorf("模板为空")
	}
	ids, err := order(tpl)
	if err != nil {
		return nil, err
	}
	r := newResolver(tpl, answers, opts)
	r.collectQuestions()
	for _, id := range ids {
		f, _ := tpl.Fields.Get(id)
		r.resolveField(f)
	}
	r.res.Order = ids
	return r.res, nil
}

type selection struct {
	question template.Question
	choice   template.Choice
}

type resolver struct {
	tpl       *template.Template
	answers   template.Answers
	now       time.Time
	loc       *time.Location
	submitKey string
	log       *slog.Logger

	// selected 为被选中选项标记的字段 id。
	selected map[string]selection
	// companions 为选中选项附带的自由文本字段 id。
	companions map[string]selection
	res        *Resolution
}

func newResolver(tpl *template.Template, answers template.Answers, opts Options) *resolver {
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	key := opts.SubmissionKey
	if key == "" {
		key = DefaultSubmissionKey
	}
	if answers == nil {
		answers = template.Answers{}
	}
	return &resolver{
		tpl:        tpl,
		answers:    answers,
		now:        nowFn().In(loc),
		loc:        loc,
		submitKey:  key,
		log:        logging.Or(opts.Logger),
		selected:   make(map[string]selection),
		companions: make(map[string]selection),
		res:        &Resolution{Values: make(map[string]Value, tpl.Fields.Len())},
	}
}

// SelectedChoices 返回问题的选中项：回答先以 ',' 连接再拆分并去空白，兼容数组与预先拼接的字符串。
func SelectedChoices(answers template.Answers, title string) []string {
	raw := answers[title]
	if len(raw) == 0 {
		return nil
	}
	var out []string
	for _, s := range strings.Split(strings.Join(raw, ","), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (r *resolver) collectQuestions() {
	for _, q := range r.tpl.Questions {
		for _, name := range SelectedChoices(r.answers, q.Title) {
			c, ok := q.ChoiceByName(name)
			if !ok {
				r.log.Debug("回答中的选项不存在", "question", q.ID, "choice", name)
				continue
			}
			if _, ok := r.tpl.Fields.Get(c.FieldID); ok {
				r.selected[c.FieldID] = selection{question: q, choice: c}
			} else {
				r.log.Debug("选项引用的字段不存在", "question", q.ID, "choice", name, "field", c.FieldID)
			}
			if c.HasText && c.TextFieldID != "" {
				r.companions[c.TextFieldID] = selection{question: q, choice: c}
			}
		}
	}
}

func (r *resolver) miss(f template.Field, reason string, args ...any) {
	r.res.Misses = append(r.res.Misses, Miss{FieldID: f.ID, Reason: reason})
	r.log.Debug("字段未解析", append([]any{"field", f.ID, "label", f.Label, "reason", reason}, args...)...)
}

func (r *resolver) missed(id string) bool {
	n := len(r.res.Misses)
	return n > 0 && r.res.Misses[n-1].FieldID == id
}

func (r *resolver) resolveField(f template.Field) {
	var v Value
	switch f.Type {
	case template.FieldText, template.FieldTextarea:
		v = r.resolveText(f)
		if f.Type == template.FieldTextarea {
			v.Text = NormalizeMultiline(v.Text)
		} else {
			v.Text = NormalizeText(v.Text)
		}
		if v.Text == "" && !r.missed(f.ID) {
			r.miss(f, "值为空", "branch", v.Source.String())
		}
	case template.FieldCircle, template.FieldCheck:
		v = r.resolveMark(f)
	default:
		r.miss(f, "未知的字段类型")
		return
	}
	r.res.Values[f.ID] = v
}

func (r *resolver) first(key string) string {
	if key == "" {
		return ""
	}
	v, _ := r.answers.First(key)
	return v
}

// resolveText 按 duplicate、phone-split、char-split、autoFill、datetime、plain 的顺序取第一个适用分支。
func (r *resolver) resolveText(f template.Field) Value {
	v := Value{Kind: KindText}
	switch {
	case f.DataSourceType == template.SourceDuplicate:
		v.Source = BranchDuplicate
		v.Text = r.first(f.DataSource)
	case f.DataSourceType == template.SourcePhoneSplit:
		v.Source = BranchPhoneSplit
		v.Centered = true
		idx, ok := r.indexPart(f)
		if !ok {
			return v
		}
		parts := SplitPhoneNumber(r.first(f.DataSource))
		if idx < len(parts) {
			v.Text = parts[idx]
		}
	case f.DataSourceType == template.SourceCharSplit:
		v.Source = BranchCharSplit
		v.Centered = true
		idx, ok := r.indexPart(f)
		if !ok {
			return v
		}
		runes := []rune(r.first(f.DataSource))
		if idx < len(runes) {
			v.Text = string(runes[idx])
		}
	case f.AutoFill != nil && f.AutoFill.SourceID != "":
		v.Source = BranchAutoFill
		source := r.autoFillSource(f.AutoFill.SourceID)
		if val, ok := f.AutoFill.Match(source); ok {
			v.Text = val
		}
	case f.DataSourceType == template.SourceDatetime:
		v.Source = BranchDatetime
		v.Text, v.Centered = r.datetimeText(f)
	case f.DataSourceType == template.SourceNone:
		v.Source = BranchPlain
		if sel, ok := r.companions[f.ID]; ok {
			v.Source = BranchCompanion
			v.Text = r.first(sel.question.Title + ":" + sel.choice.Name)
		}
		if v.Text == "" {
			v.Text = r.first(f.Label)
		}
	default:
		r.miss(f, "未知的数据来源类型")
	}
	return v
}

func (r *resolver) indexPart(f template.Field) (int, bool) {
	p, err := dsl.ParsePart(f.DataPart)
	if err != nil {
		r.miss(f, "dataPart 无法解析", "error", err)
		return 0, false
	}
	if p.Kind != dsl.KindIndex {
		r.miss(f, "dataPart 不是下标形式", "dataPart", f.DataPart)
		return 0, false
	}
	return p.Index, true
}

// autoFillSource 求 autoFill 源的字符串值。源为字段时取其已解析的文字（标记字段取选中它的选项名），
// 没有时回落到该字段 label、dataSource 下的原始回答；源为问题时取第一个选中项。
func (r *resolver) autoFillSource(id string) string {
	if src, ok := r.tpl.Fields.Get(id); ok {
		if sel, ok := r.selected[id]; ok && src.Type.IsMark() {
			return sel.choice.Name
		}
		if v, ok := r.res.Values[id]; ok && v.Kind == KindText && v.Text != "" {
			return v.Text
		}
		if s := r.first(src.Label); s != "" {
			return s
		}
		return r.first(src.DataSource)
	}
	if q, ok := r.tpl.Question(id); ok {
		if names := SelectedChoices(r.answers, q.Title); len(names) > 0 {
			return names[0]
		}
	}
	return ""
}

// targetDate 选择日期：today-* 用当前时间；有回答时解析回答；无回答且 dataSource 是提交时间键时用当前时间。
func (r *resolver) targetDate(f template.Field, p dsl.Part) (time.Time, bool) {
	if p.Today {
		return r.now, true
	}
	if s := r.first(f.DataSource); s != "" {
		t, err := era.ParseDate(s, r.loc)
		if err != nil {
			r.miss(f, "日期无法解析", "answer", s)
			return time.Time{}, false
		}
		return t, true
	}
	if f.DataSource == r.submitKey {
		return r.now, true
	}
	r.miss(f, "缺少日期回答", "dataSource", f.DataSource)
	return time.Time{}, false
}

func (r *resolver) datetimeText(f template.Field) (string, bool) {
	p, err := dsl.ParsePart(f.DataPart)
	if err != nil {
		r.miss(f, "dataPart 无法解析", "error", err)
		return "", false
	}
	switch p.Kind {
	case dsl.KindDateRole, dsl.KindDateSplit:
	case dsl.KindIndex, dsl.KindEraCircle:
		r.miss(f, "dataPart 不适用于文字字段", "dataPart", f.DataPart)
		return "", false
	}
	date, ok := r.targetDate(f, p)
	if !ok {
		return "", false
	}
	parts := era.Compute(date).Map()
	for k, v := range era.TodayMap(r.now) {
		parts[k] = v
	}
	val, ok := parts[p.Role]
	if !ok {
		r.miss(f, "未知的日期分量", "role", p.Role)
		return "", false
	}
	if p.Kind == dsl.KindDateRole {
		return val, false
	}
	runes := []rune(era.Pad(p.Role, val))
	if p.Index >= len(runes) {
		return "", true
	}
	return string(runes[p.Index]), true
}

// resolveMark 求标记字段：被问题选中，或 circle-<元号> 与日期元号一致，或 autoFill 命中非 false 的值。
func (r *resolver) resolveMark(f template.Field) Value {
	v := Value{Kind: KindMark}
	if sel, ok := r.selected[f.ID]; ok {
		v.Marked = true
		v.Source = BranchQuestion
		v.Text = sel.choice.Name
		return v
	}
	switch {
	case f.DataSourceType == template.SourceDatetime:
		v.Source = BranchDatetime
		v.Marked = r.eraMarked(f)
	case f.AutoFill != nil && f.AutoFill.SourceID != "":
		v.Source = BranchAutoFill
		if val, ok := f.AutoFill.Match(r.autoFillSource(f.AutoFill.SourceID)); ok {
			b, err := strconv.ParseBool(val)
			v.Marked = val != "" && (err != nil || b)
		}
	default:
		v.Source = BranchQuestion
	}
	return v
}

func (r *resolver) eraMarked(f template.Field) bool {
	p, err := dsl.ParsePart(f.DataPart)
	if err != nil {
		r.miss(f, "dataPart 无法解析", "error", err)
		return false
	}
	if p.Kind != dsl.KindEraCircle {
		r.miss(f, "标记字段的 dataPart 不是元号标记", "dataPart", f.DataPart)
		return false
	}
	want, ok := era.ParseTag(p.Era)
	if !ok {
		r.miss(f, "未知的元号", "era", p.Era)
		return false
	}
	date, ok := r.targetDate(f, p)
	if !ok {
		return false
	}
	return era.Of(date) == want
}
