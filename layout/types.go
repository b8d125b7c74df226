package layout

import (
	"fmt"
	"strconv"
	"strings"
)

// 该文件定义布局结果，供两个渲染端与调试 JSON 共用。坐标单位为点，y 自页面底部向上。

// Result 保存一页的全部绘制对象。
type Result struct {
	Page    Page         `json:"page"`
	Objects []DrawObject `json:"objects"`
	// Fonts 为对象引用到的逻辑字体名，按首次出现顺序。
	Fonts []string     `json:"fonts"`
	Meta  DocumentMeta `json:"meta"`
}

// Page 记录页面尺寸（点）。
type Page struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ObjectKind 是绘制对象的闭合类型集合。
type ObjectKind int

const (
	KindText ObjectKind = iota
	KindEllipse
)

func (k ObjectKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindEllipse:
		return "ellipse"
	default:
		return fmt.Sprintf("ObjectKind(%d)", int(k))
	}
}

// MarshalText 实现 encoding.TextMarshaler。
func (k ObjectKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler。
func (k *ObjectKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "text":
		*k = KindText
	case "ellipse":
		*k = KindEllipse
	default:
		return fmt.Errorf("未知的绘制对象类型 %q", string(b))
	}
	return nil
}

// Color 采用 0-255 的 RGB 数值。
// JSON 中以 #rrggbb 字符串表示。
type Color struct {
	R, G, B int
}

// Black 是标记边框的默认颜色。
var Black = Color{}

// Hex 返回 #rrggbb 形式。
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// MarshalText 实现 encoding.TextMarshaler。
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler。
func (c *Color) UnmarshalText(b []byte) error {
	parsed, err := ParseColor(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseColor 解析 #rgb 或 #rrggbb。
func ParseColor(value string) (Color, error) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(value) == 3 {
		value = string([]byte{value[0], value[0], value[1], value[1], value[2], value[2]})
	}
	if len(value) != 6 {
		return Color{}, fmt.Errorf("颜色值 %s 无法解析", value)
	}
	var out [3]int
	for i := range out {
		n, err := strconv.ParseUint(value[i*2:i*2+2], 16, 8)
		if err != nil {
			return Color{}, fmt.Errorf("颜色值 %s 无法解析: %w", value, err)
		}
		out[i] = int(n)
	}
	return Color{R: out[0], G: out[1], B: out[2]}, nil
}

// DrawObject 是一个已定位的绘制对象。
//
// 文字对象的 (X, Y) 为基线起点；椭圆对象的 (X, Y) 为中心，Width/Height 为外接框尺寸。
type DrawObject struct {
	Kind        ObjectKind   `json:"kind"`
	FieldID     string       `json:"fieldId"`
	Text        string       `json:"text,omitempty"`
	X           float64      `json:"x"`
	Y           float64      `json:"y"`
	Width       float64      `json:"width,omitempty"`
	Height      float64      `json:"height,omitempty"`
	Size        float64      `json:"size,omitempty"`
	FontName    string       `json:"fontName,omitempty"`
	BorderColor *Color       `json:"borderColor,omitempty"`
	BorderWidth float64      `json:"borderWidth,omitempty"`
	FillOpacity float64      `json:"fillOpacity"`
	Debug       *ObjectDebug `json:"debug,omitempty"`
}

// ObjectDebug 记录对象来源，仅在 BuildOptions.Debug.Geometry 开启时输出。
type ObjectDebug struct {
	// Box 为字段在模板坐标（y 向下）中的原始框。
	Box    Box    `json:"box"`
	Branch string `json:"branch"`
	// Line 为文章欄中的行号（从 0 开始）。
	Line int `json:"line,omitempty"`
	// EstimatedWidth 为估算的文字宽度。
	EstimatedWidth float64 `json:"estimatedWidth,omitempty"`
}

// Box 是模板坐标中的矩形。
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// TextLine 表示排版后的一行文本内容及其宽高。
type TextLine struct {
	Content string  `json:"content"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// DocumentMeta 保存输出文档的元信息。
type DocumentMeta struct {
	Title   string `json:"title"`
	Creator string `json:"creator"`
}
