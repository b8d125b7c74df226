// Package delivery 负责渲染产物的交付：落盘保存、渲染记录与邮件发送。
package delivery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ByLCY/formstamp/binding"
	"github.com/ByLCY/formstamp/template"
)

// Saver 把产物写入目录。文件先写入临时文件再改名，失败时不留下残缺文件。
type Saver struct {
	Dir string
	// Pattern 为文件名模板，支持 ${键} 与 ${键[i]} 引用回答；为空时使用模板名。
	Pattern string
	// Ext 为扩展名，默认 ".pdf"。
	Ext string
	// Overwrite 为 false 时同名文件存在则追加 _2、_3 …
	Overwrite bool
}

var unsafeName = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	"\"", "_", "<", "_", ">", "_", "|", "_", "\x00", "",
)

// FileName 计算不含目录的文件名。
func (s Saver) FileName(name string, answers template.Answers) string {
	base := name
	if s.Pattern != "" {
		base = binding.Interpolate(s.Pattern, answers)
	}
	base = strings.TrimSpace(unsafeName.Replace(base))
	ext := s.Ext
	if ext == "" {
		ext = ".pdf"
	}
	base = strings.TrimSuffix(base, ext)
	if base == "" || base == "." || base == ".." {
		base = "output"
	}
	return base + ext
}

// Save 写入产物并返回最终路径。
func (s Saver) Save(ctx context.Context, name string, answers template.Answers, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("创建输出目录失败: %w", err)
	}
	file := s.FileName(name, answers)
	target := filepath.Join(dir, file)
	if !s.Overwrite {
		target = uniquePath(target)
	}

	tmp, err := os.CreateTemp(dir, ".formstamp-*")
	if err != nil {
		return "", fmt.Errorf("创建临时文件失败: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("写入 %s 失败: %w", file, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("写入 %s 失败: %w", file, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("保存 %s 失败: %w", target, err)
	}
	return target, nil
}

func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 2; ; i++ {
		candidate := stem + "_" + strconv.Itoa(i) + ext
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
