package layout

import "github.com/ByLCY/formstamp/textlayout"

// BuildOptions 配置布局阶段所需的页面尺寸与排版后端。
type BuildOptions struct {
	// PageWidth/PageHeight 为目标页面尺寸（点），PageHeight 用于 y 轴翻转。
	PageWidth  float64
	PageHeight float64
	// Typesetter 为空时使用 Estimator。
	Typesetter Typesetter
	// DefaultFont 为字段未指定 font 时使用的逻辑字体名，为空时为 DefaultFont。
	DefaultFont string
	Title       string
	Debug       DebugOptions
}

// DebugOptions 控制调试相关输出。
type DebugOptions struct {
	Geometry bool // 在调试 JSON 中输出 debug 影子字段
}

// Typesetter 负责测量文字宽度并将文本拆成可绘制的行。
type Typesetter interface {
	Measure(text string, fontSize float64) float64
	LayoutLines(content string, width, fontSize, lineHeight float64) []TextLine
}

// Estimator 用字符类别估算字宽，是预览与批量输出共用的排版后端。
type Estimator struct{}

var _ Typesetter = Estimator{}

// Measure 实现 Typesetter。
func (Estimator) Measure(text string, fontSize float64) float64 {
	return textlayout.EstimateWidth(text, fontSize)
}

// LayoutLines 实现 Typesetter，按禁则规则折行并回填每行估算宽度。
func (Estimator) LayoutLines(content string, width, fontSize, lineHeight float64) []TextLine {
	wrapped := textlayout.Wrap(content, width, fontSize)
	lines := make([]TextLine, 0, len(wrapped))
	for _, s := range wrapped {
		lines = append(lines, TextLine{
			Content: s,
			Width:   textlayout.EstimateWidth(s, fontSize),
			Height:  lineHeight,
		})
	}
	return lines
}
