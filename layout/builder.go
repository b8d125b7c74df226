package layout

import (
	"fmt"

	"github.com/ByLCY/formstamp/binding"
	"github.com/ByLCY/formstamp/template"
	"github.com/ByLCY/formstamp/textlayout"
)

const (
	// DefaultFont 是字段未指定 font 时的逻辑字体名。
	DefaultFont = "NotoSansJP"

	defaultTextSize     = 14.0
	defaultTextareaSize = 11.0
	lineHeightFactor    = 1.4
	// 文章欄首行基线相对行顶的偏移（× 字号）。
	textareaBaseline = 0.9
	// 单行文字的左内边距。
	leftInset = 5.0
	// 文章欄左右内边距。
	textareaInset   = 1.0
	wideGlyphShrink = 0.95

	circleBorderWidth = 1.5
	checkGlyph        = "✓"
	checkScale        = 0.9
	checkOffsetX      = 0.4
	checkOffsetY      = 0.5
)

// Build 根据模板与解析结果生成一页的绘制对象。
//
// 对象按 文字、文章欄各行、圆圈、勾选 四组输出，组内按模板字段顺序；每个字段最多输出一次。
func Build(tpl *template.Template, res *binding.Resolution, opts BuildOptions) (*Result, error) {
	if tpl == nil {
		return nil, fmt.Errorf("模板为空")
	}
	if res == nil {
		return nil, fmt.Errorf("layout: 缺少解析结果")
	}
	if opts.PageHeight <= 0 {
		return nil, fmt.Errorf("layout: 页面高度必须大于 0，实际 %g", opts.PageHeight)
	}
	if opts.Typesetter == nil {
		opts.Typesetter = Estimator{}
	}
	if opts.DefaultFont == "" {
		opts.DefaultFont = DefaultFont
	}

	b := &builder{
		opts: opts,
		out: &Result{
			Page: Page{Width: opts.PageWidth, Height: opts.PageHeight},
			Meta: DocumentMeta{Title: firstNonEmpty(opts.Title, tpl.Name), Creator: "formstamp"},
		},
		seenFont: make(map[string]bool),
	}

	for _, kind := range template.FieldTypes {
		for id, f := range tpl.Fields.All() {
			if f.Type != kind {
				continue
			}
			v, ok := res.Value(id)
			if !ok || v.Empty() {
				continue
			}
			switch f.Type {
			case template.FieldText:
				b.text(f, v)
			case template.FieldTextarea:
				b.textarea(f, v)
			case template.FieldCircle:
				b.circle(f, v)
			case template.FieldCheck:
				b.check(f, v)
			}
		}
	}
	if b.out.Objects == nil {
		b.out.Objects = []DrawObject{}
	}
	if b.out.Fonts == nil {
		b.out.Fonts = []string{}
	}
	return b.out, nil
}

type builder struct {
	opts     BuildOptions
	out      *Result
	seenFont map[string]bool
}

func (b *builder) font(f template.Field) string {
	name := f.Font
	if name == "" {
		name = b.opts.DefaultFont
	}
	if !b.seenFont[name] {
		b.seenFont[name] = true
		b.out.Fonts = append(b.out.Fonts, name)
	}
	return name
}

func (b *builder) emit(obj DrawObject, f template.Field, v binding.Value, dbg ObjectDebug) {
	if b.opts.Debug.Geometry {
		dbg.Box = Box{X: f.X, Y: f.Y, Width: f.Width, Height: f.Height}
		dbg.Branch = v.Source.String()
		obj.Debug = &dbg
	}
	b.out.Objects = append(b.out.Objects, obj)
}

// text 输出单行文字：基线位于框顶向下一个字号处；含宽字形时字号缩小到 95%；
// 拆分类取值在框内水平居中，其余左缩进 5。
func (b *builder) text(f template.Field, v binding.Value) {
	base := f.Size
	if base <= 0 {
		base = defaultTextSize
	}
	size := base
	if textlayout.HasWideGlyph(v.Text) {
		size = base * wideGlyphShrink
	}
	x := f.X + leftInset
	est := 0.0
	if v.Centered {
		est = b.opts.Typesetter.Measure(v.Text, size)
		x = f.X + (f.Width-est)/2
	}
	b.emit(DrawObject{
		Kind:     KindText,
		FieldID:  f.ID,
		Text:     v.Text,
		X:        x,
		Y:        b.opts.PageHeight - f.Y - base,
		Size:     size,
		FontName: b.font(f),
	}, f, v, ObjectDebug{EstimatedWidth: est})
}

// textarea 按行高 1.4× 折行，超出框高的行直接丢弃。
func (b *builder) textarea(f template.Field, v binding.Value) {
	size := f.Size
	if size <= 0 {
		size = defaultTextareaSize
	}
	lh := size * lineHeightFactor
	lines := b.opts.Typesetter.LayoutLines(v.Text, f.Width-2*textareaInset, size, lh)
	font := b.font(f)
	for i, line := range lines {
		if float64(i+1)*lh > f.Height {
			break
		}
		if line.Content == "" {
			continue
		}
		b.emit(DrawObject{
			Kind:     KindText,
			FieldID:  f.ID,
			Text:     line.Content,
			X:        f.X + textareaInset,
			Y:        b.opts.PageHeight - (f.Y + float64(i)*lh) - size*textareaBaseline,
			Size:     size,
			FontName: font,
		}, f, v, ObjectDebug{Line: i, EstimatedWidth: line.Width})
	}
}

// circle 输出以字段框为外接框的椭圆，线宽 1.5，无填充。
func (b *builder) circle(f template.Field, v binding.Value) {
	border := Black
	b.emit(DrawObject{
		Kind:        KindEllipse,
		FieldID:     f.ID,
		X:           f.X + f.Width/2,
		Y:           b.opts.PageHeight - (f.Y + f.Height/2),
		Width:       f.Width,
		Height:      f.Height,
		BorderColor: &border,
		BorderWidth: circleBorderWidth,
		FillOpacity: 0,
	}, f, v, ObjectDebug{})
}

// check 输出勾选符号，字号为 (size 或框高) × 0.9，并按经验偏移使其在框内居中。
func (b *builder) check(f template.Field, v binding.Value) {
	base := f.Size
	if base <= 0 {
		base = f.Height
	}
	fs := base * checkScale
	b.emit(DrawObject{
		Kind:     KindText,
		FieldID:  f.ID,
		Text:     checkGlyph,
		X:        f.X + f.Width/2 - fs*checkOffsetX,
		Y:        b.opts.PageHeight - (f.Y + f.Height/2) - fs*checkOffsetY,
		Size:     fs,
		FontName: b.font(f),
	}, f, v, ObjectDebug{})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
