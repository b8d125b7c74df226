package canvasrenderer

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/ByLCY/formstamp/layout"
	"github.com/ByLCY/formstamp/renderer"
)

func ellipseResult() *layout.Result {
	black := layout.Black
	return &layout.Result{
		Page: layout.Page{Width: 200, Height: 100},
		Objects: []layout.DrawObject{{
			Kind: layout.KindEllipse, FieldID: "c", X: 50, Y: 50, Width: 30, Height: 20,
			BorderColor: &black, BorderWidth: 1.5,
			Debug: &layout.ObjectDebug{Box: layout.Box{X: 35, Y: 40, Width: 30, Height: 20}},
		}},
		Meta: layout.DocumentMeta{Title: "preview", Creator: "formstamp"},
	}
}

func TestRenderFormats(t *testing.T) {
	cases := map[Format][]byte{
		FormatPDF: []byte("%PDF"),
		FormatSVG: []byte("<svg"),
		FormatPNG: []byte("\x89PNG"),
	}
	for format, marker := range cases {
		r := NewRenderer(Options{Format: format, DPMM: 1, DebugBoxes: true})
		out, err := r.Render(ellipseResult())
		if err != nil {
			t.Fatalf("%s 渲染失败: %v", format, err)
		}
		if !bytes.Contains(out, marker) {
			t.Fatalf("%s 输出缺少 %q", format, marker)
		}
	}
}

func TestRenderWithBackground(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var bg bytes.Buffer
	if err := png.Encode(&bg, img); err != nil {
		t.Fatalf("编码底图失败: %v", err)
	}
	r := NewRenderer(Options{Format: FormatPNG, DPMM: 1, Background: Resource{Bytes: bg.Bytes()}})
	if _, err := r.Render(ellipseResult()); err != nil {
		t.Fatalf("带底图渲染失败: %v", err)
	}

	bad := NewRenderer(Options{Background: Resource{Bytes: []byte("not an image")}})
	if _, err := bad.Render(ellipseResult()); !errors.Is(err, renderer.ErrSource) {
		t.Fatalf("期望 ErrSource，实际 %v", err)
	}
}

type missingFonts struct{}

func (missingFonts) Font(name string) ([]byte, error) { return nil, errors.New("missing " + name) }

func TestRenderTextRequiresFont(t *testing.T) {
	res := &layout.Result{
		Page:    layout.Page{Width: 100, Height: 100},
		Objects: []layout.DrawObject{{Kind: layout.KindText, Text: "5", X: 10, Y: 10, Size: 14, FontName: "NotoSansJP"}},
	}
	for _, opts := range []Options{{}, {Fonts: missingFonts{}}} {
		if _, err := NewRenderer(opts).Render(res); !errors.Is(err, renderer.ErrFont) {
			t.Fatalf("期望 ErrFont，实际 %v", err)
		}
	}
}

func TestRenderRejectsEmptyPage(t *testing.T) {
	r := NewRenderer(Options{})
	if _, err := r.Render(nil); err == nil {
		t.Fatalf("nil 结果应当失败")
	}
	if _, err := r.Render(&layout.Result{}); err == nil {
		t.Fatalf("缺少页面尺寸应当失败")
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatPDF, "PNG": FormatPNG, ".svg": FormatSVG} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("tiff"); err == nil {
		t.Fatalf("tiff 应当不受支持")
	}
	if f, err := FormatFromPath("out/preview.png"); err != nil || f != FormatPNG {
		t.Fatalf("FormatFromPath = %q, %v", f, err)
	}
}
