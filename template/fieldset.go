package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"slices"

	"gopkg.in/yaml.v3"
)

// FieldSet 是按文档顺序保存的字段表（fieldPositions），键为字段 id。
// 零值可直接使用。
type FieldSet struct {
	keys []string
	byID map[string]Field
}

// NewFieldSet 按给定顺序构造字段表，后出现的同 id 字段覆盖前者但保留首次出现的位置。
func NewFieldSet(fields ...Field) FieldSet {
	var s FieldSet
	for _, f := range fields {
		s.Set(f)
	}
	return s
}

// Len 返回字段数。
func (s FieldSet) Len() int { return len(s.keys) }

// IDs 返回按文档顺序排列的字段 id。
func (s FieldSet) IDs() []string { return slices.Clone(s.keys) }

// Get 按 id 查找字段。
func (s FieldSet) Get(id string) (Field, bool) {
	f, ok := s.byID[id]
	return f, ok
}

// Has 判断 id 是否存在。
func (s FieldSet) Has(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// All 按文档顺序遍历 (id, 字段)。
func (s FieldSet) All() iter.Seq2[string, Field] {
	return func(yield func(string, Field) bool) {
		for _, k := range s.keys {
			if !yield(k, s.byID[k]) {
				return
			}
		}
	}
}

// Set 以 f.ID 为键写入字段；新 id 追加到末尾。
func (s *FieldSet) Set(f Field) {
	s.put(f.ID, f)
}

func (s *FieldSet) put(key string, f Field) {
	if s.byID == nil {
		s.byID = make(map[string]Field)
	}
	if _, ok := s.byID[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.byID[key] = f
}

// Delete 删除字段，返回是否存在。
func (s *FieldSet) Delete(id string) bool {
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	s.keys = slices.DeleteFunc(slices.Clone(s.keys), func(k string) bool { return k == id })
	return true
}

// Clone 返回独立的副本，字段按值复制。
func (s FieldSet) Clone() FieldSet {
	out := FieldSet{keys: slices.Clone(s.keys)}
	if s.byID != nil {
		out.byID = make(map[string]Field, len(s.byID))
		for k, v := range s.byID {
			out.byID[k] = v
		}
	}
	return out
}

// MarshalJSON 按文档顺序输出对象。
func (s FieldSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(s.byID[k])
		if err != nil {
			return nil, fmt.Errorf("字段 %s: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 通过 token 流读取对象，保留键的出现顺序。
func (s *FieldSet) UnmarshalJSON(data []byte) error {
	*s = FieldSet{}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("fieldPositions 必须是对象")
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("fieldPositions 键类型错误: %v", keyTok)
		}
		var f Field
		if err := dec.Decode(&f); err != nil {
			return fmt.Errorf("字段 %s: %w", key, err)
		}
		if err := s.add(key, f); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// MarshalYAML 按文档顺序输出映射节点。
func (s FieldSet) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range s.keys {
		var val yaml.Node
		if err := val.Encode(s.byID[k]); err != nil {
			return nil, fmt.Errorf("字段 %s: %w", k, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			&val,
		)
	}
	return node, nil
}

// UnmarshalYAML 读取映射节点，保留键的出现顺序。
func (s *FieldSet) UnmarshalYAML(node *yaml.Node) error {
	*s = FieldSet{}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("fieldPositions 必须是映射 (line %d)", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		var f Field
		if err := node.Content[i+1].Decode(&f); err != nil {
			return fmt.Errorf("字段 %s: %w", key, err)
		}
		if err := s.add(key, f); err != nil {
			return err
		}
	}
	return nil
}

func (s *FieldSet) add(key string, f Field) error {
	if s.Has(key) {
		return fmt.Errorf("字段 id %s 重复", key)
	}
	if f.ID == "" {
		f.ID = key
	}
	s.put(key, f)
	return nil
}

// mismatched 返回键与字段 id 不一致的键。
func (s FieldSet) mismatched() []string {
	var out []string
	for k, f := range s.All() {
		if k != f.ID {
			out = append(out, k)
		}
	}
	return out
}
