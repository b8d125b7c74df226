// Package logging 为 formstamp 提供包级 *slog.Logger。
package logging

import (
	"log/slog"
	"sync/atomic"
)

// 默认为空，Logger() 在未设置时返回丢弃所有输出的 logger。
var logger atomic.Pointer[slog.Logger]

// SetLogger 设置包级 logger；传入 nil 表示关闭日志输出。可并发调用。
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	logger.Store(l)
}

// Logger 返回当前包级 logger，未设置时返回 discard logger。
func Logger() *slog.Logger {
	l := logger.Load()
	if l == nil {
		l = slog.New(slog.DiscardHandler)
		logger.CompareAndSwap(nil, l)
		return logger.Load()
	}
	return l
}

// Or 在 l 为空时回落到包级 logger，供带可选 Logger 字段的 Options 使用。
func Or(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return Logger()
}
