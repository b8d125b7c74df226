package fonts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tdewolff/font"
)

// ErrNotFound 表示逻辑字体名无法映射到任何字体数据。
var ErrNotFound = errors.New("字体未找到")

// Provider 按逻辑字体名提供可嵌入的字体数据。
type Provider interface {
	Font(name string) ([]byte, error)
}

// Registry 是基于文件与内存数据的 Provider 实现，可并发读取。
//
// 查找顺序：别名 -> 内存数据 -> 已登记文件 -> 默认字体。
type Registry struct {
	mu       sync.RWMutex
	files    map[string]string
	blobs    map[string][]byte
	aliases  map[string]string
	fallback string
}

var _ Provider = (*Registry)(nil)

// NewRegistry 创建空的字体注册表。
func NewRegistry() *Registry {
	return &Registry{
		files:   map[string]string{},
		blobs:   map[string][]byte{},
		aliases: map[string]string{},
	}
}

// AddFile 登记字体文件，数据在首次使用时读取。
func (r *Registry) AddFile(name, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[name] = path
	delete(r.blobs, name)
}

// AddBytes 直接登记字体数据，后登记者覆盖先登记者。
func (r *Registry) AddBytes(name string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blobs[name] = data
}

// Alias 让 alias 指向 target。
func (r *Registry) Alias(alias, target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[alias] = target
}

// SetDefault 设置找不到字体时使用的默认字体名。
func (r *Registry) SetDefault(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = name
}

// ScanDir 登记目录下的 .ttf/.otf 文件（不递归）。
// 文件名去掉扩展名作为字体名；"NotoSansJP-Regular" 这类带字重后缀的文件同时以 "NotoSansJP" 登记，
// 同一家族已有登记时不覆盖。返回登记的文件数。
func (r *Registry) ScanDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("读取字体目录 %s 失败: %w", dir, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".ttf" && ext != ".otf" {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		path := filepath.Join(dir, e.Name())
		r.files[name] = path
		n++
		if family, style, ok := strings.Cut(name, "-"); ok && family != "" {
			_, taken := r.files[family]
			if !taken || strings.EqualFold(style, "Regular") {
				r.files[family] = path
			}
		}
	}
	return n, nil
}

// Names 返回已登记的字体名与别名（排序后）。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]bool{}
	for n := range r.files {
		seen[n] = true
	}
	for n := range r.blobs {
		seen[n] = true
	}
	for n := range r.aliases {
		seen[n] = true
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Font 返回逻辑字体名对应的数据；找不到时退回默认字体。
func (r *Registry) Font(name string) ([]byte, error) {
	data, err := r.lookup(name)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	r.mu.RLock()
	fallback := r.fallback
	r.mu.RUnlock()
	if fallback == "" || fallback == name {
		return nil, err
	}
	return r.lookup(fallback)
}

func (r *Registry) lookup(name string) ([]byte, error) {
	r.mu.RLock()
	resolved := name
	for hops := 0; hops < 8; hops++ {
		target, ok := r.aliases[resolved]
		if !ok {
			break
		}
		resolved = target
	}
	if data, ok := r.blobs[resolved]; ok {
		r.mu.RUnlock()
		return data, nil
	}
	path, ok := r.files[resolved]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	data, err := Load(path)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.blobs[resolved] = data
	r.mu.Unlock()
	return data, nil
}

// Load 读取字体文件，并按 TrueType/OpenType 表目录解析校验。
func Load(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取字体 %s 失败: %w", path, err)
	}
	if err := Validate(data); err != nil {
		return nil, fmt.Errorf("文件 %s 不是有效的 TrueType/OpenType 字体: %w", path, err)
	}
	return data, nil
}

// Validate 解析字体的表目录与必需表；TTC 只检查第一个字体。
func Validate(data []byte) error {
	_, err := font.ParseSFNT(data, 0)
	return err
}
