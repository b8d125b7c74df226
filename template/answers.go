package template

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Answers 是一次提交的回答表：label/title -> 有序的回答值。
type Answers map[string][]string

// First 返回 key 下第一个非空回答。
func (a Answers) First(key string) (string, bool) {
	for _, v := range a[key] {
		if v != "" {
			return v, true
		}
	}
	return "", false
}

// Clone 返回独立副本。
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// UnmarshalJSON 每个键接受字符串数组、单个字符串、数字、布尔或 null。
func (a *Answers) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Answers, len(raw))
	for k, msg := range raw {
		vals, err := decodeJSONAnswer(msg)
		if err != nil {
			return fmt.Errorf("回答 %s: %w", k, err)
		}
		if vals != nil {
			out[k] = vals
		}
	}
	*a = out
	return nil
}

func decodeJSONAnswer(msg json.RawMessage) ([]string, error) {
	var v any
	dec := json.NewDecoder(strings.NewReader(string(msg)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, err := scalarString(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	default:
		s, err := scalarString(x)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
}

func scalarString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		if x {
			return "true", nil
		}
		return "false", nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("不支持的回答类型 %T", v)
	}
}

// UnmarshalYAML 与 JSON 规则一致。
func (a *Answers) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("回答必须是映射 (line %d)", node.Line)
	}
	out := make(Answers, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]
		switch val.Kind {
		case yaml.SequenceNode:
			vals := make([]string, 0, len(val.Content))
			for _, item := range val.Content {
				if item.Kind != yaml.ScalarNode {
					return fmt.Errorf("回答 %s: 只接受标量 (line %d)", key, item.Line)
				}
				vals = append(vals, item.Value)
			}
			out[key] = vals
		case yaml.ScalarNode:
			if val.Tag == "!!null" {
				continue
			}
			out[key] = []string{val.Value}
		default:
			return fmt.Errorf("回答 %s: 不支持的节点类型 (line %d)", key, val.Line)
		}
	}
	*a = out
	return nil
}

// DecodeAnswers 从 r 读取回答表。
func DecodeAnswers(r io.Reader, format Format) (Answers, error) {
	var a Answers
	var err error
	switch format {
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(&a)
	case FormatJSON:
		err = json.NewDecoder(r).Decode(&a)
	default:
		return nil, fmt.Errorf("未知格式 %d", int(format))
	}
	if err == io.EOF {
		return Answers{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: 解析回答失败: %v", ErrMalformed, err)
	}
	if a == nil {
		a = Answers{}
	}
	return a, nil
}

// LoadAnswers 按扩展名读取回答文件。
func LoadAnswers(path string) (Answers, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("读取回答文件失败: %w", err)
	}
	defer f.Close()
	return DecodeAnswers(f, FormatFromPath(path))
}

// EncodeAnswers 写出回答表，键按字典序排列。
func EncodeAnswers(w io.Writer, a Answers, format Format) error {
	if a == nil {
		a = Answers{}
	}
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(map[string][]string(a)); err != nil {
			return fmt.Errorf("写出回答失败: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(map[string][]string(a)); err != nil {
			return fmt.Errorf("写出回答失败: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("未知格式 %d", int(format))
	}
}

// SaveAnswers 按扩展名写出回答文件。
func SaveAnswers(path string, a Answers) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建回答文件失败: %w", err)
	}
	if err := EncodeAnswers(f, a, FormatFromPath(path)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
