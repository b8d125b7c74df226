// Package stamp 把绘制对象盖印到模板 PDF 的第一页上。
package stamp

import (
	"bytes"
	"fmt"
	"io"

	"codeberg.org/go-pdf/fpdf"
	"codeberg.org/go-pdf/fpdf/contrib/gofpdi"

	"github.com/ByLCY/formstamp/fonts"
	"github.com/ByLCY/formstamp/layout"
	"github.com/ByLCY/formstamp/renderer"
)

const pageBox = "/MediaBox"

// Renderer 以 fpdf 导入模板页并在其上绘制对象。每次 Render 使用独立的 fpdf 实例。
type Renderer struct {
	src   []byte
	fonts fonts.Provider
}

var _ renderer.Renderer = (*Renderer)(nil)

// NewRenderer 创建盖印渲染器。src 必须是 PDF 文件内容。
func NewRenderer(src []byte, provider fonts.Provider) (*Renderer, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(src, "\x00\t\r\n "), []byte("%PDF-")) {
		return nil, fmt.Errorf("%w: 模板文件不是 PDF", renderer.ErrSource)
	}
	return &Renderer{src: src, fonts: provider}, nil
}

// PageSize 返回模板第一页的 MediaBox 尺寸（点）。
func (r *Renderer) PageSize() (width, height float64, err error) {
	page, err := r.importFirstPage(fpdf.New("P", "pt", "A4", ""))
	if err != nil {
		return 0, 0, err
	}
	return page.width, page.height, nil
}

type importedPage struct {
	imp           *gofpdi.Importer
	tpl           int
	width, height float64
}

func (r *Renderer) importFirstPage(pdf *fpdf.Fpdf) (page importedPage, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: 导入模板 PDF 失败: %v", renderer.ErrSource, p)
		}
	}()
	page.imp = gofpdi.NewImporter()
	rs := io.ReadSeeker(bytes.NewReader(r.src))
	page.tpl = page.imp.ImportPageFromStream(pdf, &rs, 1, pageBox)
	if dims, ok := page.imp.GetPageSizes()[1]; ok {
		if mb, ok := dims[pageBox]; ok {
			page.width, page.height = mb["w"], mb["h"]
		}
	}
	if pdf.Err() {
		return importedPage{}, fmt.Errorf("%w: %w", renderer.ErrSource, pdf.Error())
	}
	if page.width <= 0 || page.height <= 0 {
		return importedPage{}, fmt.Errorf("%w: 模板 PDF 缺少有效的页面尺寸", renderer.ErrSource)
	}
	return page, nil
}

// place 把导入的模板页铺满当前页。
func (p importedPage) place(pdf *fpdf.Fpdf) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: 放置模板页失败: %v", renderer.ErrSource, r)
		}
	}()
	p.imp.UseImportedTemplate(pdf, p.tpl, 0, 0, p.width, p.height)
	return nil
}

// Render 导入模板第一页并依次绘制对象，返回新的 PDF。
func (r *Renderer) Render(result *layout.Result) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("渲染结果为空")
	}
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	applyMeta(pdf, result.Meta)

	page, err := r.importFirstPage(pdf)
	if err != nil {
		return nil, err
	}
	pdf.AddPageFormat("P", fpdf.SizeType{Wd: page.width, Ht: page.height})
	if err := page.place(pdf); err != nil {
		return nil, err
	}

	if err := r.registerFonts(pdf, result.Fonts); err != nil {
		return nil, err
	}

	// 布局坐标以页面左下角为原点，fpdf 以左上角为原点。
	pageH := page.height
	if result.Page.Height > 0 {
		pageH = result.Page.Height
	}
	for _, obj := range result.Objects {
		switch obj.Kind {
		case layout.KindText:
			pdf.SetFont(obj.FontName, "", obj.Size)
			pdf.SetTextColor(0, 0, 0)
			pdf.Text(obj.X, pageH-obj.Y, obj.Text)
		case layout.KindEllipse:
			c := layout.Black
			if obj.BorderColor != nil {
				c = *obj.BorderColor
			}
			pdf.SetDrawColor(int(c.R), int(c.G), int(c.B))
			pdf.SetLineWidth(obj.BorderWidth)
			pdf.Ellipse(obj.X, pageH-obj.Y, obj.Width/2, obj.Height/2, 0, "D")
		}
	}
	if pdf.Err() {
		return nil, fmt.Errorf("绘制 PDF 失败: %w", pdf.Error())
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("写入 PDF 失败: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) registerFonts(pdf *fpdf.Fpdf, names []string) error {
	for _, name := range names {
		if r.fonts == nil {
			return fmt.Errorf("%w: 未配置字体来源，无法加载 %s", renderer.ErrFont, name)
		}
		data, err := r.fonts.Font(name)
		if err != nil {
			return fmt.Errorf("%w: %w", renderer.ErrFont, err)
		}
		pdf.AddUTF8FontFromBytes(name, "", data)
		if pdf.Err() {
			return fmt.Errorf("%w: 注册字体 %s 失败: %w", renderer.ErrFont, name, pdf.Error())
		}
	}
	return nil
}

func applyMeta(pdf *fpdf.Fpdf, meta layout.DocumentMeta) {
	if meta.Title != "" {
		pdf.SetTitle(meta.Title, true)
	}
	if meta.Creator != "" {
		pdf.SetCreator(meta.Creator, true)
	}
}
