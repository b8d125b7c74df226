package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMalformed 表示模板或回答文档无法按预期结构解析。
var ErrMalformed = errors.New("文档格式错误")

// Format 是文档编码格式。
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// FormatFromPath 依据扩展名判断格式，.yaml/.yml 为 YAML，其余按 JSON。
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Decode 从 r 读取模板并校验。结构错误返回包装 ErrMalformed 的错误，
// 校验失败返回 *ValidationError。
func Decode(r io.Reader, format Format) (*Template, error) {
	var tpl Template
	var err error
	switch format {
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(&tpl)
	case FormatJSON:
		dec := json.NewDecoder(r)
		err = dec.Decode(&tpl)
	default:
		return nil, fmt.Errorf("未知格式 %d", int(format))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// Load 按扩展名读取模板文件。
func Load(path string) (*Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("读取模板失败: %w", err)
	}
	defer f.Close()
	tpl, err := Decode(f, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("加载模板 %s: %w", path, err)
	}
	if tpl.Name == "" {
		tpl.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return tpl, nil
}

// Encode 将模板写入 w，几何与字号保留两位小数。
func Encode(w io.Writer, tpl *Template, format Format) error {
	out := tpl.Rounded()
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("写出模板失败: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("写出模板失败: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("未知格式 %d", int(format))
	}
}

// Save 按扩展名写出模板文件。
func Save(path string, tpl *Template) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建模板文件失败: %w", err)
	}
	if err := Encode(f, tpl, FormatFromPath(path)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
