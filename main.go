package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/ByLCY/formstamp/binding"
	"github.com/ByLCY/formstamp/delivery"
	"github.com/ByLCY/formstamp/fonts"
	"github.com/ByLCY/formstamp/layout"
	"github.com/ByLCY/formstamp/logging"
	"github.com/ByLCY/formstamp/pipeline"
	"github.com/ByLCY/formstamp/prompt"
	canvasrenderer "github.com/ByLCY/formstamp/renderer/canvas"
	"github.com/ByLCY/formstamp/server"
	"github.com/ByLCY/formstamp/session"
	"github.com/ByLCY/formstamp/template"
)

const usage = `用法: formstamp <命令> [参数]

命令:
  fill     按回答填写模板 PDF
  preview  不依赖底稿 PDF 输出预览 (pdf/png/svg)
  input    交互式录入回答并保存
  serve    以 HTTP webhook 接收表单提交
  debug    输出解析与布局的调试 JSON
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "fill":
		err = runFill(args)
	case "preview":
		err = runPreview(args)
	case "input":
		err = runInput(args)
	case "serve":
		err = runServe(args)
	case "debug":
		err = runDebug(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "未知命令 %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s 失败: %v", cmd, err)
	}
}

// common 是各子命令共用的参数。
type common struct {
	template   string
	answers    string
	fontDir    string
	fontName   string
	verbose    bool
	timezone   string
	submission string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.template, "template", "template.json", "模板文件 (.json/.yaml)")
	fs.StringVar(&c.answers, "answers", "", "回答文件 (.json/.yaml)")
	fs.StringVar(&c.fontDir, "fonts", envOr("FORMSTAMP_FONT_DIR", "fonts"), "字体目录 (.ttf/.otf)")
	fs.StringVar(&c.fontName, "default-font", layout.DefaultFont, "未指定 font 时使用的字体")
	fs.BoolVar(&c.verbose, "v", false, "输出调试日志")
	fs.StringVar(&c.timezone, "tz", envOr("FORMSTAMP_TZ", "Asia/Tokyo"), "解释日期回答的时区")
	fs.StringVar(&c.submission, "submission-key", binding.DefaultSubmissionKey, "表示提交时间的回答键")
}

func (c *common) setup() {
	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}
	logging.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func (c *common) location() (*time.Location, error) {
	if c.timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.timezone)
	if err != nil {
		return nil, fmt.Errorf("时区 %q 无效: %w", c.timezone, err)
	}
	return loc, nil
}

func (c *common) loadTemplate() (*template.Template, error) {
	tpl, err := template.Load(c.template)
	if err != nil {
		return nil, fmt.Errorf("加载模板 %s 失败: %w", c.template, err)
	}
	if tpl.Name == "" {
		tpl.Name = strings.TrimSuffix(filepath.Base(c.template), filepath.Ext(c.template))
	}
	return tpl, nil
}

func (c *common) loadAnswers() (template.Answers, error) {
	if c.answers == "" {
		return template.Answers{}, nil
	}
	return template.LoadAnswers(c.answers)
}

// loadFonts 扫描字体目录；目录不存在时返回空注册表，缺字时由渲染器报错。
func (c *common) loadFonts() (*fonts.Registry, error) {
	reg := fonts.NewRegistry()
	if c.fontDir != "" {
		n, err := reg.ScanDir(c.fontDir)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logging.Logger().Warn("字体目录不存在", "dir", c.fontDir)
		case err != nil:
			return nil, err
		default:
			logging.Logger().Debug("已加载字体", "dir", c.fontDir, "count", n, "names", reg.Names())
		}
	}
	if c.fontName != "" {
		reg.SetDefault(c.fontName)
	}
	return reg, nil
}

// deliveryFlags 是 fill 与 serve 共用的交付参数。
type deliveryFlags struct {
	outDir    string
	pattern   string
	overwrite bool
	db        string
	smtp      delivery.MailConfig
	mail      bool
}

func (d *deliveryFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&d.outDir, "out", envOr("FORMSTAMP_OUT_DIR", "output"), "输出目录")
	fs.StringVar(&d.pattern, "name", "", "输出文件名模板，可引用 ${回答键}")
	fs.BoolVar(&d.overwrite, "overwrite", false, "覆盖同名输出")
	fs.StringVar(&d.db, "db", envOr("FORMSTAMP_DB", ""), "渲染记录 SQLite 路径，为空时不记录")
	fs.BoolVar(&d.mail, "mail", false, "向回答中的邮箱发送产物")
	fs.StringVar(&d.smtp.Addr, "smtp", envOr("FORMSTAMP_SMTP_ADDR", ""), "SMTP 服务器 host:port")
	fs.StringVar(&d.smtp.From, "smtp-from", envOr("FORMSTAMP_SMTP_FROM", ""), "发件地址")
	fs.StringVar(&d.smtp.Username, "smtp-user", envOr("FORMSTAMP_SMTP_USER", ""), "SMTP 用户名")
	fs.StringVar(&d.smtp.SenderName, "smtp-sender", envOr("FORMSTAMP_SMTP_SENDER", delivery.DefaultSenderName), "发件人名称")
	fs.StringVar(&d.smtp.EmailField, "email-field", delivery.DefaultEmailField, "存放收件地址的回答键")
}

// runner 组装交付协作方，返回的 closer 关闭记录库。
func (d *deliveryFlags) runner() (*pipeline.Runner, *delivery.Log, func(), error) {
	opts := []pipeline.Option{
		pipeline.WithSaver(delivery.Saver{Dir: d.outDir, Pattern: d.pattern, Overwrite: d.overwrite}),
	}
	closer := func() {}
	var renderLog *delivery.Log
	if d.db != "" {
		l, err := delivery.OpenLog(d.db)
		if err != nil {
			return nil, nil, nil, err
		}
		renderLog = l
		closer = func() { l.Close() }
		opts = append(opts, pipeline.WithLog(l))
	}
	if d.mail {
		d.smtp.Password = os.Getenv("FORMSTAMP_SMTP_PASSWORD")
		opts = append(opts, pipeline.WithMailer(delivery.NewMailer(d.smtp)))
	}
	return pipeline.New(opts...), renderLog, closer, nil
}

func runFill(args []string) error {
	fs := flag.NewFlagSet("fill", flag.ExitOnError)
	var c common
	var d deliveryFlags
	c.register(fs)
	d.register(fs)
	source := fs.String("pdf", "template.pdf", "底稿 PDF")
	debugPath := fs.String("debug", "", "布局调试 JSON 输出路径")
	fs.Parse(args)
	c.setup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tpl, err := c.loadTemplate()
	if err != nil {
		return err
	}
	reg, err := c.loadFonts()
	if err != nil {
		return err
	}
	loc, err := c.location()
	if err != nil {
		return err
	}
	runner, _, closeLog, err := d.runner()
	if err != nil {
		return err
	}
	defer closeLog()

	res, err := runner.Run(ctx, pipeline.Request{
		Template:      tpl,
		AnswersPath:   c.answers,
		SourcePath:    *source,
		Fonts:         reg,
		Location:      loc,
		SubmissionKey: c.submission,
		Debug:         *debugPath != "",
	})
	if res != nil && res.Layout != nil && *debugPath != "" {
		if werr := writeDebug(res.Layout, *debugPath); werr != nil {
			return werr
		}
	}
	if err != nil {
		return err
	}
	fmt.Printf("已生成 PDF：%s\n", res.Output)
	if res.Recipient != "" {
		fmt.Printf("已发送至：%s\n", res.Recipient)
	}
	return nil
}

func runPreview(args []string) error {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	var c common
	c.register(fs)
	output := fs.String("out", "output/preview.png", "预览输出路径，扩展名决定格式 (.pdf/.png/.svg)")
	background := fs.String("background", "", "底图 (PNG/JPEG)，通常为模板页的截图")
	boxes := fs.Bool("boxes", false, "绘制字段框")
	page := fs.String("page", "", "页面尺寸，如 A4 或 210mmx297mm；默认取模板记录的尺寸")
	fs.Parse(args)
	c.setup()

	tpl, err := c.loadTemplate()
	if err != nil {
		return err
	}
	answers, err := c.loadAnswers()
	if err != nil {
		return err
	}
	reg, err := c.loadFonts()
	if err != nil {
		return err
	}
	loc, err := c.location()
	if err != nil {
		return err
	}
	format, err := canvasrenderer.FormatFromPath(*output)
	if err != nil {
		return err
	}
	w, h, err := parsePage(*page)
	if err != nil {
		return err
	}

	sess := session.New(tpl)
	result, err := sess.Preview(answers, session.PreviewOptions{
		Resolve: binding.Options{Location: loc, SubmissionKey: c.submission},
		Layout: layout.BuildOptions{
			PageWidth:  w,
			PageHeight: h,
			Title:      tpl.Name,
			Debug:      layout.DebugOptions{Geometry: *boxes},
		},
	})
	if err != nil {
		return fmt.Errorf("生成预览失败: %w", err)
	}
	r := canvasrenderer.NewRenderer(canvasrenderer.Options{
		Fonts:      reg,
		Background: canvasrenderer.Resource{Path: *background},
		Format:     format,
		DebugBoxes: *boxes,
	})
	data, err := r.Render(result)
	if err != nil {
		return fmt.Errorf("渲染预览失败: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		return fmt.Errorf("写入预览失败: %w", err)
	}
	fmt.Printf("已生成预览：%s\n", *output)
	return nil
}

func runInput(args []string) error {
	fs := flag.NewFlagSet("input", flag.ExitOnError)
	var c common
	c.register(fs)
	output := fs.String("out", "answers.json", "回答保存路径 (.json/.yaml)")
	fs.Parse(args)
	c.setup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tpl, err := c.loadTemplate()
	if err != nil {
		return err
	}
	loc, err := c.location()
	if err != nil {
		return err
	}
	answers, err := prompt.Collect(ctx, tpl, prompt.SurveyDriver{}, prompt.Options{Location: loc})
	if errors.Is(err, prompt.ErrAborted) {
		fmt.Println("已取消")
		return nil
	}
	if err != nil {
		return err
	}
	if err := template.SaveAnswers(*output, answers); err != nil {
		return err
	}
	fmt.Printf("已保存回答：%s\n", *output)
	return nil
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var c common
	var d deliveryFlags
	c.register(fs)
	d.register(fs)
	addr := fs.String("addr", envOr("FORMSTAMP_ADDR", ":8080"), "监听地址")
	source := fs.String("pdf", "template.pdf", "底稿 PDF")
	grace := fs.Duration("grace", 5*time.Second, "停机等待时间")
	fs.Parse(args)
	c.setup()

	tpl, err := c.loadTemplate()
	if err != nil {
		return err
	}
	src, err := os.ReadFile(*source)
	if err != nil {
		return fmt.Errorf("读取底稿失败: %w", err)
	}
	reg, err := c.loadFonts()
	if err != nil {
		return err
	}
	runner, renderLog, closeLog, err := d.runner()
	if err != nil {
		return err
	}
	defer closeLog()

	srv := server.New(server.Config{
		Template:   tpl,
		Source:     src,
		Fonts:      reg,
		Runner:     runner,
		Log:        renderLog,
		EmailField: d.smtp.EmailField,
	})
	httpServer := &http.Server{Addr: *addr, Handler: srv.Handler()}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logging.Logger().Info("开始监听", "addr", *addr, "template", tpl.Name)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-errCh:
		return fmt.Errorf("监听失败: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), *grace)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func runDebug(args []string) error {
	fs := flag.NewFlagSet("debug", flag.ExitOnError)
	var c common
	c.register(fs)
	output := fs.String("out", "", "调试 JSON 输出路径，为空时写到标准输出")
	page := fs.String("page", "", "页面尺寸，默认取模板记录的尺寸或 A4")
	fs.Parse(args)
	c.setup()

	tpl, err := c.loadTemplate()
	if err != nil {
		return err
	}
	answers, err := c.loadAnswers()
	if err != nil {
		return err
	}
	loc, err := c.location()
	if err != nil {
		return err
	}
	w, h, err := parsePage(*page)
	if err != nil {
		return err
	}
	result, err := session.New(tpl).Preview(answers, session.PreviewOptions{
		Resolve: binding.Options{Location: loc, SubmissionKey: c.submission},
		Layout: layout.BuildOptions{
			PageWidth:  w,
			PageHeight: h,
			Title:      tpl.Name,
			Debug:      layout.DebugOptions{Geometry: true},
		},
	})
	if err != nil {
		return err
	}
	if *output == "" {
		return layout.EncodeDebugJSON(os.Stdout, result)
	}
	return writeDebug(result, *output)
}

// parsePage 解析 "A4" 或 "<宽>x<高>"，为空时返回 0 由下游决定。
func parsePage(s string) (float64, float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, nil
	}
	if w, h, ok := layout.Paper(s); ok {
		return w, h, nil
	}
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("页面尺寸 %q 无效", s)
	}
	w, err := layout.ParseLength(ws)
	if err != nil {
		return 0, 0, err
	}
	h, err := layout.ParseLength(hs)
	if err != nil {
		return 0, 0, err
	}
	return w.ToPT(), h.ToPT(), nil
}

func writeDebug(result *layout.Result, debugPath string) error {
	if err := os.MkdirAll(filepath.Dir(debugPath), 0o755); err != nil {
		return fmt.Errorf("创建调试目录失败: %w", err)
	}
	if err := layout.WriteDebugJSON(result, debugPath); err != nil {
		return fmt.Errorf("输出调试 JSON 失败: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
