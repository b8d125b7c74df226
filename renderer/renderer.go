package renderer

import (
	"errors"

	"github.com/ByLCY/formstamp/layout"
)

// Renderer 将布局结果输出为最终文件，例如 PDF 或图像。
// Render 返回生成的二进制数据（例如 PDF 字节切片）以及可能的错误。
type Renderer interface {
	Render(result *layout.Result) ([]byte, error)
}

var (
	// ErrSource 表示底稿（模板 PDF 或背景图）无法读取。
	ErrSource = errors.New("底稿不可用")
	// ErrFont 表示绘制对象引用的字体无法加载。
	ErrFont = errors.New("字体不可用")
)
