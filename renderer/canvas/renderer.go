package canvasrenderer

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers"
	"github.com/tdewolff/canvas/renderers/pdf"

	"github.com/ByLCY/formstamp/fonts"
	"github.com/ByLCY/formstamp/layout"
	"github.com/ByLCY/formstamp/renderer"
)

// Format 是预览输出格式。
type Format string

const (
	FormatPDF Format = "pdf"
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
)

const (
	defaultDPMM     = 4.0
	debugBoxWidthMM = 0.2
)

// ParseFormat 解析输出格式名，大小写不敏感。
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))); f {
	case FormatPDF, FormatPNG, FormatSVG:
		return f, nil
	case "":
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("不支持的输出格式 %q", s)
	}
}

// FormatFromPath 根据文件扩展名推断输出格式。
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// Renderer draws layout results via github.com/tdewolff/canvas.
//
// 布局对象以点为单位、左下角为原点；canvas 以毫米为单位，使用 CartesianI 坐标系，因此只需换算单位。
type Renderer struct {
	opts Options

	fontMu       sync.Mutex
	fontFamilies map[string]*canvas.FontFamily
}

var _ renderer.Renderer = (*Renderer)(nil)

// Options configures the canvas renderer.
type Options struct {
	Fonts fonts.Provider
	// Background 为可选的底图（PNG/JPEG/GIF），铺满整页。
	Background Resource
	Format     Format
	// DPMM 是 PNG 输出的分辨率（每毫米像素数），默认 4。
	DPMM float64
	// DebugBoxes 为带调试信息的对象额外绘制字段框。
	DebugBoxes bool
}

// Resource can be provided either by Bytes or by Path.
type Resource struct {
	Bytes []byte
	Path  string
}

func (r Resource) load() ([]byte, error) {
	if len(r.Bytes) > 0 {
		return r.Bytes, nil
	}
	if r.Path == "" {
		return nil, nil
	}
	return os.ReadFile(r.Path)
}

// NewRenderer 创建预览渲染器。
func NewRenderer(opts Options) *Renderer {
	if opts.Format == "" {
		opts.Format = FormatPDF
	}
	if opts.DPMM <= 0 {
		opts.DPMM = defaultDPMM
	}
	return &Renderer{
		opts:         opts,
		fontFamilies: map[string]*canvas.FontFamily{},
	}
}

// Render 按配置的格式输出单页预览。
func (r *Renderer) Render(result *layout.Result) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("渲染结果为空")
	}
	if result.Page.Width <= 0 || result.Page.Height <= 0 {
		return nil, fmt.Errorf("缺少可渲染的页面尺寸")
	}
	w, h := toMm(result.Page.Width), toMm(result.Page.Height)
	c := canvas.New(w, h)
	ctx := canvas.NewContext(c)
	ctx.SetCoordSystem(canvas.CartesianI)

	if err := r.drawBackground(ctx, w); err != nil {
		return nil, err
	}
	for _, obj := range result.Objects {
		if err := r.drawObject(ctx, obj); err != nil {
			return nil, err
		}
	}
	if r.opts.DebugBoxes {
		r.drawDebugBoxes(ctx, result)
	}

	var buf bytes.Buffer
	switch r.opts.Format {
	case FormatPNG:
		if err := renderers.PNG(canvas.DPMM(r.opts.DPMM))(&buf, c); err != nil {
			return nil, fmt.Errorf("写入 PNG 失败: %w", err)
		}
	case FormatSVG:
		if err := renderers.SVG()(&buf, c); err != nil {
			return nil, fmt.Errorf("写入 SVG 失败: %w", err)
		}
	default:
		writer := pdf.New(&buf, w, h, nil)
		applyMeta(writer, result.Meta)
		c.RenderTo(writer)
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("写入 PDF 失败: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func applyMeta(writer *pdf.PDF, meta layout.DocumentMeta) {
	if writer == nil {
		return
	}
	writer.SetInfo(meta.Title, "", "", "", meta.Creator)
}

func (r *Renderer) drawBackground(ctx *canvas.Context, widthMM float64) error {
	data, err := r.opts.Background.load()
	if err != nil {
		return fmt.Errorf("%w: 读取底图失败: %w", renderer.ErrSource, err)
	}
	if len(data) == 0 {
		return nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: 解码底图失败: %w", renderer.ErrSource, err)
	}
	dpmm := float64(img.Bounds().Dx()) / widthMM
	if dpmm <= 0 {
		dpmm = 1
	}
	ctx.DrawImage(0, 0, img, canvas.DPMM(dpmm))
	return nil
}

func (r *Renderer) drawObject(ctx *canvas.Context, obj layout.DrawObject) error {
	switch obj.Kind {
	case layout.KindText:
		face, err := r.fontFace(obj.FontName, obj.Size, layout.Black)
		if err != nil {
			return err
		}
		ctx.DrawText(toMm(obj.X), toMm(obj.Y), canvas.NewTextLine(face, obj.Text, canvas.Left))
	case layout.KindEllipse:
		border := layout.Black
		if obj.BorderColor != nil {
			border = *obj.BorderColor
		}
		ctx.SetFillColor(color.RGBA{0, 0, 0, 0})
		ctx.SetStrokeColor(colorFromLayout(border))
		ctx.SetStrokeWidth(toMm(obj.BorderWidth))
		ctx.DrawPath(toMm(obj.X), toMm(obj.Y), canvas.Ellipse(toMm(obj.Width/2), toMm(obj.Height/2)))
	default:
		return fmt.Errorf("未知的绘制对象类型 %q", obj.Kind)
	}
	return nil
}

// drawDebugBoxes 用红色细线画出字段框（模板坐标以左上角为原点）。
func (r *Renderer) drawDebugBoxes(ctx *canvas.Context, result *layout.Result) {
	ctx.SetFillColor(color.RGBA{0, 0, 0, 0})
	ctx.SetStrokeColor(canvas.Red)
	ctx.SetStrokeWidth(debugBoxWidthMM)
	for _, obj := range result.Objects {
		if obj.Debug == nil {
			continue
		}
		b := obj.Debug.Box
		bottom := result.Page.Height - (b.Y + b.Height)
		ctx.DrawPath(toMm(b.X), toMm(bottom), canvas.Rectangle(toMm(b.Width), toMm(b.Height)))
	}
}

// fontFace 以点为单位创建字体面。
func (r *Renderer) fontFace(name string, sizePt float64, col layout.Color) (*canvas.FontFace, error) {
	family, err := r.ensureFontFamily(name)
	if err != nil {
		return nil, err
	}
	return family.Face(sizePt, colorFromLayout(col), canvas.FontRegular, canvas.FontNormal), nil
}

func (r *Renderer) ensureFontFamily(name string) (*canvas.FontFamily, error) {
	r.fontMu.Lock()
	defer r.fontMu.Unlock()

	if family, ok := r.fontFamilies[name]; ok {
		return family, nil
	}
	if r.opts.Fonts == nil {
		return nil, fmt.Errorf("%w: 未配置字体来源，无法加载 %s", renderer.ErrFont, name)
	}
	data, err := r.opts.Fonts.Font(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", renderer.ErrFont, err)
	}
	family := canvas.NewFontFamily(name)
	if err := family.LoadFont(data, 0, canvas.FontRegular); err != nil {
		return nil, fmt.Errorf("%w: 加载字体 %s 失败: %w", renderer.ErrFont, name, err)
	}
	r.fontFamilies[name] = family
	return family, nil
}

func colorFromLayout(c layout.Color) color.Color {
	return canvas.RGBA(float64(c.R)/255.0, float64(c.G)/255.0, float64(c.B)/255.0, 1.0)
}

// toMm 将点(pt)转换为毫米(mm)。
func toMm(pt float64) float64 { return pt * layout.PtToMm }
