package session

import "github.com/ByLCY/formstamp/template"

// HistoryLimit 是撤销历史保留的最大快照数。
const HistoryLimit = 50

// history 是固定容量的快照环形缓冲区，满时丢弃最旧的快照。
// 快照一经压入便不再修改，因此只保存指针。
type history struct {
	buf   []*template.Template
	start int
	n     int
}

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = HistoryLimit
	}
	return &history{buf: make([]*template.Template, capacity)}
}

func (h *history) push(t *template.Template) {
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = t
		h.n++
		return
	}
	h.buf[h.start] = t
	h.start = (h.start + 1) % len(h.buf)
}

func (h *history) pop() (*template.Template, bool) {
	if h.n == 0 {
		return nil, false
	}
	h.n--
	i := (h.start + h.n) % len(h.buf)
	t := h.buf[i]
	h.buf[i] = nil
	return t, true
}

func (h *history) len() int { return h.n }
