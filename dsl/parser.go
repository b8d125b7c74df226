// Package dsl 解析字段的 dataPart 选择器，例如 split_1、char_3、year-wareki-split_0、
// circle-reiwa、today-month。
package dsl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// ErrEmpty 表示 dataPart 为空。
var ErrEmpty = errors.New("dataPart 为空")

var (
	partLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Split", Pattern: `-split_`},
		{Name: "Ident", Pattern: `[A-Za-z]+`},
		{Name: "Int", Pattern: `\d+`},
		{Name: "Dash", Pattern: `-`},
		{Name: "Underscore", Pattern: `_`},
	})

	partParser = participle.MustBuild[selector](
		participle.Lexer(partLexer),
		participle.UseLookahead(2),
	)
)

// selector 是 dataPart 的语法树根节点，三个分支互斥。
type selector struct {
	Pos    lexer.Position `parser:""`
	Index  *indexSelector `parser:"  @@"`
	Circle *circleTag     `parser:"| @@"`
	Date   *dateSelector  `parser:"| @@"`
}

// indexSelector 对应 char_<i> 与 split_<i>。
type indexSelector struct {
	Kind  string `parser:"@('char' | 'split')"`
	Index int    `parser:"Underscore @Int"`
}

// circleTag 对应 circle-<era>。
type circleTag struct {
	Era string `parser:"'circle' Dash @Ident"`
}

// dateSelector 对应 [today-]<role>[-split_<i>]，role 由若干以 '-' 连接的词组成。
type dateSelector struct {
	Today bool     `parser:"( @'today' Dash )?"`
	Words []string `parser:"@Ident ( Dash @( Ident | Int ) )*"`
	Split *int     `parser:"( Split @Int )?"`
}

// Kind 是 Part 的闭合分类。
type Kind int

const (
	// KindIndex 是 char_<i> / split_<i> 形式的下标选择。
	KindIndex Kind = iota
	// KindDateRole 直接取日期分量，例如 year-wareki、today-month。
	KindDateRole
	// KindDateSplit 取日期分量补零后的第 i 个字符，例如 month-split_1。
	KindDateSplit
	// KindEraCircle 是元号圈选标记，例如 circle-reiwa。
	KindEraCircle
)

func (k Kind) String() string {
	switch k {
	case KindIndex:
		return "index"
	case KindDateRole:
		return "date-role"
	case KindDateSplit:
		return "date-split"
	case KindEraCircle:
		return "era-circle"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Part 是解析后的 dataPart。
type Part struct {
	Kind Kind
	// Raw 为原始字符串。
	Raw string
	// Index 对 KindIndex、KindDateSplit 有效。
	Index int
	// Split 记录下标前缀（char 或 split），仅 KindIndex 使用。
	Split string
	// Role 为日期分量键，today-* 形式保留前缀，例如 "today-month"。
	Role string
	// Today 表示分量来自当前时间。
	Today bool
	// Era 为 circle-<tag> 中的元号标记，原样保留（例如 taisyou）。
	Era string
}

// BaseRole 返回去掉 today- 前缀后的分量名。
func (p Part) BaseRole() string {
	return strings.TrimPrefix(p.Role, "today-")
}

// ParsePart 解析 dataPart 字符串。
func ParsePart(raw string) (Part, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Part{}, ErrEmpty
	}
	ast, err := partParser.ParseString("", s)
	if err != nil {
		return Part{}, fmt.Errorf("解析 dataPart %q 失败: %w", raw, err)
	}
	switch {
	case ast.Index != nil:
		return Part{Kind: KindIndex, Raw: s, Index: ast.Index.Index, Split: ast.Index.Kind}, nil
	case ast.Circle != nil:
		return Part{Kind: KindEraCircle, Raw: s, Era: strings.ToLower(ast.Circle.Era)}, nil
	case ast.Date != nil:
		role := strings.ToLower(strings.Join(ast.Date.Words, "-"))
		if ast.Date.Today {
			role = "today-" + role
		}
		p := Part{Kind: KindDateRole, Raw: s, Role: role, Today: ast.Date.Today}
		if ast.Date.Split != nil {
			p.Kind = KindDateSplit
			p.Index = *ast.Date.Split
		}
		return p, nil
	default:
		return Part{}, fmt.Errorf("解析 dataPart %q 失败: 无法识别的形式", raw)
	}
}

// String 将 Part 还原为 dataPart 字符串。
func (p Part) String() string {
	switch p.Kind {
	case KindIndex:
		return fmt.Sprintf("%s_%d", p.Split, p.Index)
	case KindDateRole:
		return p.Role
	case KindDateSplit:
		return fmt.Sprintf("%s-split_%d", p.Role, p.Index)
	case KindEraCircle:
		return "circle-" + p.Era
	default:
		return p.Raw
	}
}

// IndexPart 构造 <kind>_<i> 形式的 dataPart，编辑器分组时使用。
func IndexPart(kind string, i int) string {
	return fmt.Sprintf("%s_%d", kind, i)
}
