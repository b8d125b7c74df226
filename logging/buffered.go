package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
)

// BufferedHandler 将日志记录以 JSON 行的形式保存在内存中，主要用于测试中断言
// 字段解析失败等调试信息。
type BufferedHandler struct {
	level slog.Leveler
	state *bufferState
	attrs []slog.Attr
	group string
}

type bufferState struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// NewBufferedHandler 创建空缓冲。opts 为 nil 时记录所有级别。
func NewBufferedHandler(opts *slog.HandlerOptions) *BufferedHandler {
	h := &BufferedHandler{state: &bufferState{}}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

func (h *BufferedHandler) Enabled(_ context.Context, level slog.Level) bool {
	if h.level == nil {
		return true
	}
	return level >= h.level.Level()
}

func (h *BufferedHandler) Handle(_ context.Context, r slog.Record) error {
	entry := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	for _, a := range h.attrs {
		entry[a.Key] = a.Value.Resolve().Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		entry[h.qualify(a.Key)] = a.Value.Resolve().Any()
		return true
	})
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	h.state.buf.Write(line)
	h.state.buf.WriteByte('\n')
	return nil
}

func (h *BufferedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]slog.Attr{}, h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, slog.Attr{Key: h.qualify(a.Key), Value: a.Value})
	}
	return &next
}

func (h *BufferedHandler) qualify(key string) string {
	if h.group == "" {
		return key
	}
	return h.group + "." + key
}

func (h *BufferedHandler) WithGroup(name string) slog.Handler {
	next := *h
	if next.group == "" {
		next.group = name
	} else {
		next.group = next.group + "." + name
	}
	return &next
}

// String 返回目前缓冲的全部日志行。
func (h *BufferedHandler) String() string {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	return h.state.buf.String()
}

// Contains 判断缓冲内容是否包含 substr。
func (h *BufferedHandler) Contains(substr string) bool {
	return strings.Contains(h.String(), substr)
}

// Lines 返回按行拆分后的日志。
func (h *BufferedHandler) Lines() []string {
	s := strings.TrimSpace(h.String())
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// Reset 清空缓冲。
func (h *BufferedHandler) Reset() {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	h.state.buf.Reset()
}
