package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

type valueKind int

const (
	valueNone valueKind = iota
	valueString
	valueBool
)

// FieldValue 是字段最近一次解析出的值：文字字段为字符串，标记字段为布尔值。
// 它只作为编辑器预览的缓存，不参与值解析。
type FieldValue struct {
	kind valueKind
	text string
	flag bool
}

// StringValue 构造字符串值。
func StringValue(s string) FieldValue { return FieldValue{kind: valueString, text: s} }

// BoolValue 构造布尔值。
func BoolValue(b bool) FieldValue { return FieldValue{kind: valueBool, flag: b} }

// IsZero 表示未设置，供 omitzero/omitempty 使用。
func (v FieldValue) IsZero() bool { return v.kind == valueNone }

// IsBool 判断是否为布尔值。
func (v FieldValue) IsBool() bool { return v.kind == valueBool }

// Text 返回字符串形式，布尔值返回 "true"/"false"。
func (v FieldValue) Text() string {
	switch v.kind {
	case valueString:
		return v.text
	case valueBool:
		return strconv.FormatBool(v.flag)
	default:
		return ""
	}
}

// Bool 返回布尔值，字符串值按非空处理。
func (v FieldValue) Bool() bool {
	switch v.kind {
	case valueBool:
		return v.flag
	case valueString:
		return v.text != ""
	default:
		return false
	}
}

func (v FieldValue) payload() any {
	switch v.kind {
	case valueString:
		return v.text
	case valueBool:
		return v.flag
	default:
		return nil
	}
}

// MarshalJSON 实现 json.Marshaler。
func (v FieldValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.payload())
}

// UnmarshalJSON 接受字符串、布尔、数字与 null。
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = FieldValue{}
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		*v = BoolValue(data[0] == 't')
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("value 只能是字符串、布尔或数字: %w", err)
		}
		*v = StringValue(n.String())
	}
	return nil
}

// MarshalYAML 实现 yaml.Marshaler。
func (v FieldValue) MarshalYAML() (interface{}, error) {
	return v.payload(), nil
}

// UnmarshalYAML 实现 yaml.Unmarshaler。
func (v *FieldValue) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("value 必须是标量 (line %d)", node.Line)
	}
	switch node.Tag {
	case "!!null":
		*v = FieldValue{}
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		*v = BoolValue(b)
	default:
		*v = StringValue(node.Value)
	}
	return nil
}
