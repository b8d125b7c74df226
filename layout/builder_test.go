package layout

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ByLCY/formstamp/binding"
	"github.com/ByLCY/formstamp/template"
	"github.com/ByLCY/formstamp/textlayout"
)

const pageH = 842.0

func build(t *testing.T, tpl *template.Template, values map[string]binding.Value) *Result {
	t.Helper()
	res, err := Build(tpl, &binding.Resolution{Values: values}, BuildOptions{PageWidth: 595, PageHeight: pageH})
	if err != nil {
		t.Fatalf("布局计算失败: %v", err)
	}
	return res
}

func TestBuildDatetimeScenario(t *testing.T) {
	tpl := &template.Template{Fields: template.NewFieldSet(
		template.Field{ID: "F1", Type: template.FieldText, Label: "年", X: 10, Y: 20, Width: 40, Height: 20,
			DataSourceType: template.SourceDatetime, DataSource: "日付", DataPart: "year-wareki"},
		template.Field{ID: "F2", Type: template.FieldCircle, X: 100, Y: 200, Width: 30, Height: 20,
			DataSourceType: template.SourceDatetime, DataSource: "日付", DataPart: "circle-reiwa"},
		template.Field{ID: "F3", Type: template.FieldCircle, X: 140, Y: 200, Width: 30, Height: 20,
			DataSourceType: template.SourceDatetime, DataSource: "日付", DataPart: "circle-heisei"},
	)}
	jst := time.FixedZone("JST", 9*60*60)
	resolution, err := binding.Resolve(tpl, template.Answers{"日付": {"2023-05-01T10:00:00"}}, binding.Options{Location: jst})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	res, err := Build(tpl, resolution, BuildOptions{PageWidth: 595, PageHeight: pageH})
	if err != nil {
		t.Fatalf("布局计算失败: %v", err)
	}

	black := Black
	want := []DrawObject{
		{Kind: KindText, FieldID: "F1", Text: "5", X: 15, Y: pageH - 20 - 14, Size: 14, FontName: DefaultFont},
		{Kind: KindEllipse, FieldID: "F2", X: 115, Y: pageH - 210, Width: 30, Height: 20, BorderColor: &black, BorderWidth: 1.5},
	}
	if diff := cmp.Diff(want, res.Objects); diff != "" {
		t.Fatalf("objects mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{DefaultFont}, res.Fonts); diff != "" {
		t.Fatalf("fonts mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildCenteredAndWideGlyph(t *testing.T) {
	tpl := &template.Template{Fields: template.NewFieldSet(
		template.Field{ID: "p", Type: template.FieldText, X: 100, Y: 50, Width: 60, Height: 20, Size: 10},
		template.Field{ID: "w", Type: template.FieldText, X: 0, Y: 0, Width: 200, Height: 20, Size: 10, Font: "NotoSerifJP"},
	)}
	res := build(t, tpl, map[string]binding.Value{
		"p": {Kind: binding.KindText, Text: "090", Centered: true},
		"w": {Kind: binding.KindText, Text: "a@b.com"},
	})
	if len(res.Objects) != 2 {
		t.Fatalf("期望 2 个对象，实际 %d", len(res.Objects))
	}

	p := res.Objects[0]
	wantX := 100 + (60-textlayout.EstimateWidth("090", 10))/2
	if diff := cmp.Diff(wantX, p.X, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Fatalf("居中 x 错误 (-want +got):\n%s", diff)
	}
	if p.Size != 10 {
		t.Fatalf("无宽字形时不应缩小字号，实际 %g", p.Size)
	}

	w := res.Objects[1]
	if diff := cmp.Diff(9.5, w.Size, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Fatalf("宽字形字号错误 (-want +got):\n%s", diff)
	}
	if w.Y != pageH-10 {
		t.Fatalf("y 以声明字号计算，期望 %g，实际 %g", pageH-10, w.Y)
	}
	if w.X != 5 {
		t.Fatalf("左缩进错误: %g", w.X)
	}
	if diff := cmp.Diff([]string{DefaultFont, "NotoSerifJP"}, res.Fonts); diff != "" {
		t.Fatalf("fonts mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildTextareaTruncates(t *testing.T) {
	tpl := &template.Template{Fields: template.NewFieldSet(
		template.Field{ID: "memo", Type: template.FieldTextarea, X: 20, Y: 100, Width: 102, Height: 100, Size: 10},
	)}
	res := build(t, tpl, map[string]binding.Value{
		"memo": {Kind: binding.KindText, Text: strings.Repeat("あ", 300)},
	})

	lh := 14.0
	if len(res.Objects) == 0 || len(res.Objects) > 1+int(100/lh) {
		t.Fatalf("行数异常: %d", len(res.Objects))
	}
	if float64(len(res.Objects))*lh > 100+lh {
		t.Fatalf("输出行数 %d 超出框高", len(res.Objects))
	}
	if len(res.Objects) != 7 {
		t.Fatalf("期望 7 行，实际 %d", len(res.Objects))
	}
	for i, obj := range res.Objects {
		if w := textlayout.EstimateWidth(obj.Text, 10); w > 100 {
			t.Fatalf("第 %d 行宽度 %g 超出", i, w)
		}
		wantY := pageH - (100 + float64(i)*lh) - 9
		if diff := cmp.Diff(wantY, obj.Y, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
			t.Fatalf("第 %d 行 y 错误 (-want +got):\n%s", i, diff)
		}
		if obj.X != 21 {
			t.Fatalf("文章欄 x 应为 f.x+1，实际 %g", obj.X)
		}
	}
}

func TestBuildTextareaKeepsBlankLineSpacing(t *testing.T) {
	tpl := &template.Template{Fields: template.NewFieldSet(
		template.Field{ID: "memo", Type: template.FieldTextarea, X: 0, Y: 0, Width: 300, Height: 150},
	)}
	res := build(t, tpl, map[string]binding.Value{
		"memo": {Kind: binding.KindText, Text: "一行目\n\n三行目"},
	})
	if len(res.Objects) != 2 {
		t.Fatalf("空行不输出对象，期望 2 个，实际 %d", len(res.Objects))
	}
	lh := 11 * 1.4
	if diff := cmp.Diff(res.Objects[0].Y-2*lh, res.Objects[1].Y, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Fatalf("空行仍占一行高度 (-want +got):\n%s", diff)
	}
}

func TestBuildCheckGlyph(t *testing.T) {
	tpl := &template.Template{Fields: template.NewFieldSet(
		template.Field{ID: "c", Type: template.FieldCheck, X: 10, Y: 10, Width: 30, Height: 30},
		template.Field{ID: "s", Type: template.FieldCheck, X: 10, Y: 10, Width: 30, Height: 30, Size: 20},
	)}
	res := build(t, tpl, map[string]binding.Value{
		"c": {Kind: binding.KindMark, Marked: true},
		"s": {Kind: binding.KindMark, Marked: true},
	})
	want := []DrawObject{
		{Kind: KindText, FieldID: "c", Text: "✓", X: 25 - 27*0.4, Y: pageH - 25 - 27*0.5, Size: 27, FontName: DefaultFont},
		{Kind: KindText, FieldID: "s", Text: "✓", X: 25 - 18*0.4, Y: pageH - 25 - 18*0.5, Size: 18, FontName: DefaultFont},
	}
	if diff := cmp.Diff(want, res.Objects, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Fatalf("objects mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildObjectOrder(t *testing.T) {
	tpl := &template.Template{Fields: template.NewFieldSet(
		template.Field{ID: "chk", Type: template.FieldCheck, Width: 10, Height: 10},
		template.Field{ID: "cir", Type: template.FieldCircle, Width: 10, Height: 10},
		template.Field{ID: "area", Type: template.FieldTextarea, Width: 100, Height: 100},
		template.Field{ID: "t2", Type: template.FieldText, Width: 100, Height: 10},
		template.Field{ID: "t1", Type: template.FieldText, Width: 100, Height: 10},
		template.Field{ID: "blank", Type: template.FieldText, Width: 100, Height: 10},
		template.Field{ID: "off", Type: template.FieldCircle, Width: 10, Height: 10},
	)}
	res := build(t, tpl, map[string]binding.Value{
		"chk":   {Kind: binding.KindMark, Marked: true},
		"cir":   {Kind: binding.KindMark, Marked: true},
		"area":  {Kind: binding.KindText, Text: "メモ"},
		"t2":    {Kind: binding.KindText, Text: "二"},
		"t1":    {Kind: binding.KindText, Text: "一"},
		"blank": {Kind: binding.KindText},
		"off":   {Kind: binding.KindMark},
	})
	var got []string
	for _, o := range res.Objects {
		got = append(got, o.FieldID)
	}
	if diff := cmp.Diff([]string{"t2", "t1", "area", "cir", "chk"}, got); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildDebugGeometry(t *testing.T) {
	tpl := &template.Template{Fields: template.NewFieldSet(
		template.Field{ID: "a", Type: template.FieldText, X: 1, Y: 2, Width: 3, Height: 4},
	)}
	res, err := Build(tpl, &binding.Resolution{Values: map[string]binding.Value{
		"a": {Kind: binding.KindText, Text: "x", Source: binding.BranchDuplicate},
	}}, BuildOptions{PageHeight: pageH, Debug: DebugOptions{Geometry: true}})
	if err != nil {
		t.Fatalf("布局计算失败: %v", err)
	}
	dbg := res.Objects[0].Debug
	if dbg == nil {
		t.Fatalf("缺少 debug 信息")
	}
	if dbg.Branch != "duplicate" || dbg.Box != (Box{X: 1, Y: 2, Width: 3, Height: 4}) {
		t.Fatalf("debug 信息错误: %+v", dbg)
	}

	var buf strings.Builder
	if err := EncodeDebugJSON(&buf, res); err != nil {
		t.Fatalf("EncodeDebugJSON failed: %v", err)
	}
	for _, want := range []string{`"kind": "text"`, `"branch": "duplicate"`, `"fieldId": "a"`} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("调试 JSON 缺少 %s:\n%s", want, buf.String())
		}
	}
}

func TestBuildRejectsMissingInputs(t *testing.T) {
	tpl := &template.Template{}
	if _, err := Build(tpl, &binding.Resolution{}, BuildOptions{}); err == nil {
		t.Fatalf("页面高度为 0 时应当失败")
	}
	if _, err := Build(nil, &binding.Resolution{}, BuildOptions{PageHeight: 1}); err == nil {
		t.Fatalf("模板为空时应当失败")
	}
	if _, err := Build(tpl, nil, BuildOptions{PageHeight: 1}); err == nil {
		t.Fatalf("解析结果为空时应当失败")
	}
	res, err := Build(tpl, &binding.Resolution{}, BuildOptions{PageHeight: 1})
	if err != nil || len(res.Objects) != 0 {
		t.Fatalf("空模板应输出空对象列表: %v %v", res, err)
	}
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#000000")
	if err != nil || c != Black {
		t.Fatalf("ParseColor(#000000) = %v, %v", c, err)
	}
	c, err = ParseColor("#f80")
	if err != nil || c != (Color{R: 255, G: 136, B: 0}) {
		t.Fatalf("ParseColor(#f80) = %v, %v", c, err)
	}
	if c.Hex() != "#ff8800" {
		t.Fatalf("Hex = %s", c.Hex())
	}
	if _, err := ParseColor("#12"); err == nil {
		t.Fatalf("非法颜色应当失败")
	}
}

func TestDebugJSONBorderColor(t *testing.T) {
	red := Color{R: 255}
	res := &Result{Objects: []DrawObject{{Kind: KindEllipse, FieldID: "F2", BorderColor: &red, BorderWidth: 1}}}

	var buf strings.Builder
	if err := EncodeDebugJSON(&buf, res); err != nil {
		t.Fatalf("EncodeDebugJSON failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"borderColor": "#ff0000"`) {
		t.Fatalf("边框颜色应输出为 #rrggbb:\n%s", buf.String())
	}

	var back Result
	if err := json.Unmarshal([]byte(buf.String()), &back); err != nil {
		t.Fatalf("解析调试 JSON 失败: %v", err)
	}
	if got := back.Objects[0].BorderColor; got == nil || *got != red {
		t.Fatalf("BorderColor = %v, want %v", got, red)
	}

	var bad DrawObject
	if err := json.Unmarshal([]byte(`{"borderColor": "#12"}`), &bad); err == nil {
		t.Fatalf("非法颜色应当失败")
	}
}
