// Package server 以 HTTP webhook 接收表单提交，每次提交执行一次填写。
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ByLCY/formstamp/delivery"
	"github.com/ByLCY/formstamp/fonts"
	"github.com/ByLCY/formstamp/logging"
	"github.com/ByLCY/formstamp/pipeline"
	"github.com/ByLCY/formstamp/renderer"
	"github.com/ByLCY/formstamp/template"
)

const defaultMaxBody = 1 << 20

// Config 描述 webhook 所需的固定输入。
type Config struct {
	Template *template.Template
	Source   []byte
	Fonts    fonts.Provider
	// Renderer 非空时替换盖印渲染器。
	Renderer renderer.Renderer
	Runner   *pipeline.Runner
	// Log 非空时提供 GET /renders。
	Log        *delivery.Log
	EmailField string
	MaxBody    int64
	Logger     *slog.Logger
}

// Server 处理提交请求。
type Server struct {
	cfg    Config
	logger *slog.Logger
}

// New 创建 Server。
func New(cfg Config) *Server {
	if cfg.Runner == nil {
		cfg.Runner = pipeline.New()
	}
	if cfg.EmailField == "" {
		cfg.EmailField = delivery.DefaultEmailField
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = defaultMaxBody
	}
	return &Server{cfg: cfg, logger: logging.Or(cfg.Logger)}
}

// Handler 返回路由：POST /submit、GET /renders、GET /healthz。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /submit", s.handleSubmit)
	mux.HandleFunc("GET /renders", s.handleRenders)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

type submitResponse struct {
	ID        string `json:"id,omitempty"`
	Output    string `json:"output,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Objects   int    `json:"objects"`
	Misses    int    `json:"misses"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	answers, err := DecodeSubmission(http.MaxBytesReader(w, r.Body, s.cfg.MaxBody), s.cfg.EmailField)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := s.cfg.Runner.Run(r.Context(), pipeline.Request{
		Template: s.cfg.Template.Clone(),
		Answers:  answers,
		Source:   s.cfg.Source,
		Fonts:    s.cfg.Fonts,
		Renderer: s.cfg.Renderer,
	})
	if err != nil {
		s.logger.Error("处理提交失败", "error", err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/pdf") {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
		_, _ = w.Write(res.Data)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{
		ID:        res.LogID,
		Output:    res.Output,
		Recipient: res.Recipient,
		Objects:   len(res.Layout.Objects),
		Misses:    len(res.Resolution.Misses),
	})
}

func (s *Server) handleRenders(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Log == nil {
		http.Error(w, "未启用渲染记录", http.StatusNotFound)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, fmt.Sprintf("limit 无效: %q", v), http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries, err := s.cfg.Log.Recent(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []delivery.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// DecodeSubmission 解析提交体：{"namedValues": {...}} 或扁平的回答表。
// respondentEmail 存在时写入 emailField。
func DecodeSubmission(r io.Reader, emailField string) (template.Answers, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("解析提交失败: %w", err)
	}
	var email string
	if msg, ok := raw["respondentEmail"]; ok {
		if err := json.Unmarshal(msg, &email); err != nil {
			return nil, fmt.Errorf("respondentEmail 必须是字符串: %w", err)
		}
		delete(raw, "respondentEmail")
	}

	body := raw
	if nv, ok := raw["namedValues"]; ok {
		body = nil
		if err := json.Unmarshal(nv, &body); err != nil {
			return nil, fmt.Errorf("namedValues 必须是对象: %w", err)
		}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var answers template.Answers
	if err := json.Unmarshal(data, &answers); err != nil {
		return nil, fmt.Errorf("解析回答失败: %w", err)
	}
	if answers == nil {
		answers = template.Answers{}
	}
	if email = strings.TrimSpace(email); email != "" {
		answers[emailField] = []string{email}
	}
	return answers, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrAnswers):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrOutput):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
