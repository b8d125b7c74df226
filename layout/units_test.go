package layout

import (
	"math"
	"testing"
)

// TestPtMmRoundTrip 验证 pt↔mm 换算的往返精度（允许极小的浮点误差）。
func TestPtMmRoundTrip(t *testing.T) {
	samples := []float64{0, 0.001, 1, 12, 14.4, 72, 595.28, 841.89}
	for _, pt := range samples {
		back := Length{Value: Length{Value: pt, Unit: UnitPT}.ToMM(), Unit: UnitMM}.ToPT()
		if diff := math.Abs(back - pt); diff > 1e-9 {
			t.Fatalf("pt→mm→pt 往返误差过大: in=%gpt back=%g diff=%g", pt, back, diff)
		}
	}
}

func TestLengthConversions(t *testing.T) {
	if got := (Length{Value: 1, Unit: UnitIN}).ToMM(); math.Abs(got-25.4) > 1e-9 {
		t.Fatalf("1in 转 mm 期望 25.4，实际 %g", got)
	}
	if got := (Length{Value: 2.54, Unit: UnitCM}).ToMM(); math.Abs(got-25.4) > 1e-9 {
		t.Fatalf("2.54cm 转 mm 期望 25.4，实际 %g", got)
	}
	if got := (Length{Value: 1, Unit: UnitIN}).ToPT(); math.Abs(got-72) > 1e-3 {
		t.Fatalf("1in 转 pt 期望约 72，实际 %g", got)
	}
}

func TestParseLength(t *testing.T) {
	cases := map[string]Length{
		"595":     {Value: 595, Unit: UnitPT},
		"210mm":   {Value: 210, Unit: UnitMM},
		" 21 CM ": {Value: 21, Unit: UnitCM},
		"8.5in":   {Value: 8.5, Unit: UnitIN},
		"842pt":   {Value: 842, Unit: UnitPT},
	}
	for in, want := range cases {
		got, err := ParseLength(in)
		if err != nil {
			t.Fatalf("ParseLength(%q) failed: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLength(%q) = %v, want %v", in, got, want)
		}
	}
	for _, in := range []string{"", "abc", "10px"} {
		if _, err := ParseLength(in); err == nil {
			t.Fatalf("ParseLength(%q) 应当失败", in)
		}
	}
}

func TestPaper(t *testing.T) {
	w, h, ok := Paper("a4")
	if !ok {
		t.Fatalf("A4 应当可识别")
	}
	if math.Abs(w-595.28) > 0.05 || math.Abs(h-841.89) > 0.05 {
		t.Fatalf("A4 尺寸错误: %g x %g", w, h)
	}
	if _, _, ok := Paper("B0"); ok {
		t.Fatalf("B0 不应可识别")
	}
}
