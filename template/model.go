// Package template 定义模板文档（字段布局与问题）以及回答表，并负责 JSON/YAML 读写与校验。
package template

import (
	"fmt"
	"math"
	"strings"
)

// FieldType 是字段的闭合类型集合。
type FieldType int

const (
	FieldText FieldType = iota
	FieldTextarea
	FieldCircle
	FieldCheck
)

// FieldTypes 按声明顺序列出全部字段类型。
var FieldTypes = []FieldType{FieldText, FieldTextarea, FieldCircle, FieldCheck}

func (t FieldType) String() string {
	switch t {
	case FieldText:
		return "text"
	case FieldTextarea:
		return "textarea"
	case FieldCircle:
		return "circle"
	case FieldCheck:
		return "check"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// IsMark 表示字段绘制为标记（圆圈或勾选）而非文字。
func (t FieldType) IsMark() bool {
	return t == FieldCircle || t == FieldCheck
}

// ParseFieldType 解析字段类型标记。
func ParseFieldType(s string) (FieldType, error) {
	for _, t := range FieldTypes {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("未知的字段类型 %q", s)
}

// MarshalText 实现 encoding.TextMarshaler。
func (t FieldType) MarshalText() ([]byte, error) {
	switch t {
	case FieldText, FieldTextarea, FieldCircle, FieldCheck:
		return []byte(t.String()), nil
	default:
		return nil, fmt.Errorf("未知的字段类型 %d", int(t))
	}
}

// UnmarshalText 实现 encoding.TextUnmarshaler。
func (t *FieldType) UnmarshalText(b []byte) error {
	v, err := ParseFieldType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// SourceType 选择值解析分支，SourceNone 表示按 label 直接取回答。
type SourceType int

const (
	SourceNone SourceType = iota
	SourceDuplicate
	SourcePhoneSplit
	SourceCharSplit
	SourceDatetime
)

// SourceTypes 列出全部数据来源类型。
var SourceTypes = []SourceType{SourceNone, SourceDuplicate, SourcePhoneSplit, SourceCharSplit, SourceDatetime}

func (s SourceType) String() string {
	switch s {
	case SourceNone:
		return ""
	case SourceDuplicate:
		return "duplicate"
	case SourcePhoneSplit:
		return "phone-split"
	case SourceCharSplit:
		return "char-split"
	case SourceDatetime:
		return "datetime"
	default:
		return fmt.Sprintf("SourceType(%d)", int(s))
	}
}

// ParseSourceType 解析 dataSourceType，空字符串与 "none" 均视为未设置。
func ParseSourceType(s string) (SourceType, error) {
	if s == "none" {
		return SourceNone, nil
	}
	for _, st := range SourceTypes {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("未知的数据来源类型 %q", s)
}

// MarshalText 实现 encoding.TextMarshaler。
func (s SourceType) MarshalText() ([]byte, error) {
	switch s {
	case SourceNone, SourceDuplicate, SourcePhoneSplit, SourceCharSplit, SourceDatetime:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("未知的数据来源类型 %d", int(s))
	}
}

// UnmarshalText 实现 encoding.TextUnmarshaler。
func (s *SourceType) UnmarshalText(b []byte) error {
	v, err := ParseSourceType(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Rule 是一条前缀匹配规则：源值以 Key 开头时取 Value。
type Rule struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// AutoFill 声明字段值由另一字段或问题的值按规则推导。
type AutoFill struct {
	SourceID string `json:"sourceId" yaml:"sourceId"`
	Rules    []Rule `json:"rules" yaml:"rules"`
}

// Match 返回第一条前缀匹配规则的值。
func (a *AutoFill) Match(source string) (string, bool) {
	if a == nil {
		return "", false
	}
	for _, r := range a.Rules {
		if strings.HasPrefix(source, r.Key) {
			return r.Value, true
		}
	}
	return "", false
}

// Field 是页面上的一个放置位置，坐标以模板页面（点）为单位，y 自上而下。
type Field struct {
	ID             string     `json:"id" yaml:"id"`
	Type           FieldType  `json:"type" yaml:"type"`
	Label          string     `json:"label" yaml:"label"`
	X              float64    `json:"x" yaml:"x"`
	Y              float64    `json:"y" yaml:"y"`
	Width          float64    `json:"width" yaml:"width"`
	Height         float64    `json:"height" yaml:"height"`
	Size           float64    `json:"size,omitempty" yaml:"size,omitempty"`
	Value          FieldValue `json:"value,omitzero" yaml:"value,omitempty"`
	DataSourceType SourceType `json:"dataSourceType,omitempty" yaml:"dataSourceType,omitempty"`
	DataSource     string     `json:"dataSource,omitempty" yaml:"dataSource,omitempty"`
	DataPart       string     `json:"dataPart,omitempty" yaml:"dataPart,omitempty"`
	AutoFill       *AutoFill  `json:"autoFill,omitempty" yaml:"autoFill,omitempty"`
	Font           string     `json:"font,omitempty" yaml:"font,omitempty"`
}

// Rounded 返回几何与字号保留两位小数后的副本，保存模板时使用。
func (f Field) Rounded() Field {
	f.X = round2(f.X)
	f.Y = round2(f.Y)
	f.Width = round2(f.Width)
	f.Height = round2(f.Height)
	f.Size = round2(f.Size)
	return f
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// QuestionType 是问题的闭合类型集合。
type QuestionType int

const (
	QuestionRadio QuestionType = iota
	QuestionCheckbox
)

func (q QuestionType) String() string {
	switch q {
	case QuestionRadio:
		return "radio"
	case QuestionCheckbox:
		return "checkbox"
	default:
		return fmt.Sprintf("QuestionType(%d)", int(q))
	}
}

// MarshalText 实现 encoding.TextMarshaler。
func (q QuestionType) MarshalText() ([]byte, error) {
	switch q {
	case QuestionRadio, QuestionCheckbox:
		return []byte(q.String()), nil
	default:
		return nil, fmt.Errorf("未知的问题类型 %d", int(q))
	}
}

// UnmarshalText 实现 encoding.TextUnmarshaler，空值按单选处理。
func (q *QuestionType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "radio", "":
		*q = QuestionRadio
	case "checkbox":
		*q = QuestionCheckbox
	default:
		return fmt.Errorf("未知的问题类型 %q", string(b))
	}
	return nil
}

// Choice 是问题中的一个选项，选中时标记 FieldID 对应的字段。
type Choice struct {
	Name        string `json:"name" yaml:"name"`
	FieldID     string `json:"fieldId" yaml:"fieldId"`
	HasText     bool   `json:"hasText,omitempty" yaml:"hasText,omitempty"`
	TextFieldID string `json:"textFieldId,omitempty" yaml:"textFieldId,omitempty"`
}

// Question 是一组选项，Title 同时是回答表中的键。
type Question struct {
	ID      string       `json:"id" yaml:"id"`
	Title   string       `json:"title" yaml:"title"`
	Type    QuestionType `json:"type" yaml:"type"`
	Choices []Choice     `json:"choices" yaml:"choices"`
}

// ChoiceByName 按名称查找选项。
func (q Question) ChoiceByName(name string) (Choice, bool) {
	for _, c := range q.Choices {
		if c.Name == name {
			return c, true
		}
	}
	return Choice{}, false
}

// PageSize 记录模板页面的原始尺寸（点）。
type PageSize struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Template 是完整的模板文档。
type Template struct {
	Name      string     `json:"name,omitempty" yaml:"name,omitempty"`
	Page      *PageSize  `json:"page,omitempty" yaml:"page,omitempty"`
	Fields    FieldSet   `json:"fieldPositions" yaml:"fieldPositions"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// Question 按 id 查找问题。
func (t *Template) Question(id string) (Question, bool) {
	for _, q := range t.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Clone 返回模板的浅层副本：字段表与问题列表各自独立，规则切片共享且不会被原地修改。
func (t *Template) Clone() *Template {
	if t == nil {
		return nil
	}
	out := *t
	if t.Page != nil {
		p := *t.Page
		out.Page = &p
	}
	out.Fields = t.Fields.Clone()
	out.Questions = append([]Question(nil), t.Questions...)
	return &out
}

// Rounded 返回所有字段几何保留两位小数后的副本。
func (t *Template) Rounded() *Template {
	out := t.Clone()
	for _, f := range t.Fields.All() {
		out.Fields.Set(f.Rounded())
	}
	return out
}
