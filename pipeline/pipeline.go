// Package pipeline 串联一次完整的填写：模板与回答 -> 解析 -> 布局 -> 渲染 -> 交付。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ByLCY/formstamp/binding"
	"github.com/ByLCY/formstamp/delivery"
	"github.com/ByLCY/formstamp/fonts"
	"github.com/ByLCY/formstamp/layout"
	"github.com/ByLCY/formstamp/logging"
	"github.com/ByLCY/formstamp/renderer"
	"github.com/ByLCY/formstamp/renderer/stamp"
	"github.com/ByLCY/formstamp/template"
)

// submissionLayout 是注入提交时间时使用的格式。
const submissionLayout = "2006/01/02 15:04"

// Request 描述一次填写。
type Request struct {
	// Template 为空时从 TemplatePath 加载。
	Template     *template.Template
	TemplatePath string
	// Answers 为空时从 AnswersPath 加载（可省略）。
	Answers     template.Answers
	AnswersPath string
	// Source 为底稿 PDF，为空时从 SourcePath 读取；设置 Renderer 时两者都可省略。
	Source     []byte
	SourcePath string
	Fonts      fonts.Provider
	// Renderer 替换默认的盖印渲染器，页面尺寸取 PageWidth/PageHeight、模板 page 或 A4。
	Renderer   renderer.Renderer
	PageWidth  float64
	PageHeight float64
	// Name 为产物名，为空时使用模板名。
	Name     string
	Now      func() time.Time
	Location *time.Location
	// SubmissionKey 为提交时间键，为空时使用 binding.DefaultSubmissionKey。
	SubmissionKey string
	Debug         bool
}

// Result 是一次填写的产物。
type Result struct {
	Template   *template.Template
	Answers    template.Answers
	Resolution *binding.Resolution
	Layout     *layout.Result
	Data       []byte
	// Output 为保存路径，未配置 Saver 时为空。
	Output string
	// Recipient 为实际收件人，未发送时为空。
	Recipient string
	LogID     string
}

// Runner 持有交付相关的可选协作方，可被多个 goroutine 共用。
type Runner struct {
	saver  *delivery.Saver
	log    *delivery.Log
	mailer *delivery.Mailer
	logger *slog.Logger
}

// Option 配置 Runner。
type Option func(*Runner)

// WithSaver 在渲染成功后保存产物。
func WithSaver(s delivery.Saver) Option {
	return func(r *Runner) { r.saver = &s }
}

// WithLog 把每次填写写入渲染记录。
func WithLog(l *delivery.Log) Option {
	return func(r *Runner) { r.log = l }
}

// WithMailer 在回答中有邮箱时发送产物。
func WithMailer(m *delivery.Mailer) Option {
	return func(r *Runner) { r.mailer = m }
}

// WithLogger 指定 logger，默认使用包级 logger。
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// New 创建 Runner。
func New(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run 使用不带交付的 Runner 执行一次填写。
func Run(ctx context.Context, req Request) (*Result, error) {
	return New().Run(ctx, req)
}

// Run 执行一次填写。渲染全部成功后才会保存产物；邮件发送失败时返回已保存的结果与 ErrOutput。
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	logger := logging.Or(r.logger)
	res, err := r.render(ctx, req, logger)
	if err == nil {
		err = r.deliver(ctx, res, logger)
	}
	r.record(ctx, req, res, err, logger)
	if err != nil {
		logger.Error("填写失败", "template", templateName(req, res), "error", err)
		return res, err
	}
	logger.Info("填写完成", "template", res.Template.Name, "objects", len(res.Layout.Objects),
		"misses", len(res.Resolution.Misses), "output", res.Output)
	return res, nil
}

func (r *Runner) render(ctx context.Context, req Request, logger *slog.Logger) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tpl, err := loadTemplate(req)
	if err != nil {
		return nil, fail(CollabTemplate, err)
	}
	res := &Result{Template: tpl}
	answers := req.Answers
	if answers == nil && req.AnswersPath != "" {
		if answers, err = template.LoadAnswers(req.AnswersPath); err != nil {
			return res, fail(CollabAnswers, err)
		}
	}

	now := time.Now
	if req.Now != nil {
		now = req.Now
	}
	loc := req.Location
	if loc == nil {
		loc = time.Local
	}
	key := req.SubmissionKey
	if key == "" {
		key = binding.DefaultSubmissionKey
	}
	res.Answers = withSubmissionTime(answers, key, now().In(loc))

	resolution, err := binding.Resolve(tpl, res.Answers, binding.Options{
		Now:           now,
		Location:      loc,
		SubmissionKey: key,
		Logger:        logger,
	})
	if err != nil {
		return res, fail(CollabTemplate, err)
	}
	res.Resolution = resolution

	sink, width, height, err := sinkFor(req, tpl)
	if err != nil {
		return res, classify(err)
	}
	built, err := layout.Build(tpl, resolution, layout.BuildOptions{
		PageWidth:  width,
		PageHeight: height,
		Title:      firstNonEmpty(req.Name, tpl.Name),
		Debug:      layout.DebugOptions{Geometry: req.Debug},
	})
	if err != nil {
		return res, fail(CollabRender, err)
	}
	res.Layout = built

	if err := ctx.Err(); err != nil {
		return res, err
	}
	data, err := sink.Render(built)
	if err != nil {
		return res, classify(err)
	}
	res.Data = data
	return res, nil
}

func (r *Runner) deliver(ctx context.Context, res *Result, logger *slog.Logger) error {
	name := res.Template.Name
	if res.Layout != nil && res.Layout.Meta.Title != "" {
		name = res.Layout.Meta.Title
	}
	if r.saver != nil {
		path, err := r.saver.Save(ctx, name, res.Answers, res.Data)
		if err != nil {
			return fail(CollabOutput, err)
		}
		res.Output = path
	}
	if r.mailer != nil {
		filename := delivery.Saver{}.FileName(name, res.Answers)
		if r.saver != nil {
			filename = r.saver.FileName(name, res.Answers)
		}
		to, err := r.mailer.Deliver(ctx, res.Answers, filename, res.Data)
		if err != nil {
			return fail(CollabOutput, err)
		}
		res.Recipient = to
		if to == "" {
			logger.Debug("回答中没有邮箱，跳过发送", "field", r.mailer.EmailField())
		}
	}
	return nil
}

func (r *Runner) record(ctx context.Context, req Request, res *Result, runErr error, logger *slog.Logger) {
	if r.log == nil {
		return
	}
	e := delivery.Entry{Template: templateName(req, res), Status: delivery.StatusOK}
	if res != nil {
		e.Output = res.Output
		e.Recipient = res.Recipient
		if res.Layout != nil {
			e.Objects = len(res.Layout.Objects)
		}
		if res.Resolution != nil {
			e.Misses = len(res.Resolution.Misses)
		}
	}
	if runErr != nil {
		e.Status = delivery.StatusFailed
		e.Error = runErr.Error()
	}
	saved, err := r.log.Record(context.WithoutCancel(ctx), e)
	if err != nil {
		logger.Error("写入渲染记录失败", "error", err)
		return
	}
	if res != nil {
		res.LogID = saved.ID
	}
}

func loadTemplate(req Request) (*template.Template, error) {
	if req.Template != nil {
		if err := req.Template.Validate(); err != nil {
			return nil, err
		}
		return req.Template, nil
	}
	if req.TemplatePath == "" {
		return nil, errors.New("未指定模板")
	}
	return template.Load(req.TemplatePath)
}

// withSubmissionTime 在回答缺少提交时间时补上当前时间，不修改调用方的回答表。
func withSubmissionTime(answers template.Answers, key string, now time.Time) template.Answers {
	out := answers.Clone()
	if v, ok := out.First(key); !ok || v == "" {
		out[key] = []string{now.Format(submissionLayout)}
	}
	return out
}

func sinkFor(req Request, tpl *template.Template) (renderer.Renderer, float64, float64, error) {
	if req.Renderer != nil {
		w, h := req.PageWidth, req.PageHeight
		if w <= 0 || h <= 0 {
			if tpl.Page != nil && tpl.Page.Width > 0 && tpl.Page.Height > 0 {
				w, h = tpl.Page.Width, tpl.Page.Height
			} else {
				w, h, _ = layout.Paper("A4")
			}
		}
		return req.Renderer, w, h, nil
	}
	src := req.Source
	if len(src) == 0 {
		if req.SourcePath == "" {
			return nil, 0, 0, fmt.Errorf("%w: 未指定底稿 PDF", renderer.ErrSource)
		}
		data, err := os.ReadFile(req.SourcePath)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("%w: 读取底稿失败: %w", renderer.ErrSource, err)
		}
		src = data
	}
	sink, err := stamp.NewRenderer(src, req.Fonts)
	if err != nil {
		return nil, 0, 0, err
	}
	w, h, err := sink.PageSize()
	if err != nil {
		return nil, 0, 0, err
	}
	return sink, w, h, nil
}

// classify 把渲染器错误归到对应的协作方。
func classify(err error) error {
	switch {
	case errors.Is(err, renderer.ErrSource):
		return fail(CollabTemplate, err)
	case errors.Is(err, renderer.ErrFont):
		return fail(CollabFont, err)
	default:
		return fail(CollabRender, err)
	}
}

func templateName(req Request, res *Result) string {
	if res != nil && res.Template != nil && res.Template.Name != "" {
		return res.Template.Name
	}
	if req.Template != nil && req.Template.Name != "" {
		return req.Template.Name
	}
	return req.TemplatePath
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
