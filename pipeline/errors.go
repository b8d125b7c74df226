package pipeline

import (
	"errors"
	"fmt"
)

// Collaborator 标识一次渲染中出错的外部协作方。
type Collaborator string

const (
	CollabTemplate Collaborator = "template"
	CollabAnswers  Collaborator = "answers"
	CollabFont     Collaborator = "font"
	CollabRender   Collaborator = "render"
	CollabOutput   Collaborator = "output"
)

// 可用 errors.Is 匹配的哨兵错误。
var (
	ErrTemplate = errors.New("模板不可用")
	ErrAnswers  = errors.New("回答不可用")
	ErrFont     = errors.New("字体不可用")
	ErrRender   = errors.New("渲染失败")
	ErrOutput   = errors.New("输出失败")
)

// Error 记录失败的协作方与底层错误。
type Error struct {
	Collaborator Collaborator
	Err          error
}

func (e *Error) Error() string {
	return fmt.Sprintf("formstamp %s: %v", e.Collaborator, e.Err)
}

// Unwrap 同时暴露协作方哨兵与底层错误。
func (e *Error) Unwrap() []error {
	return []error{e.sentinel(), e.Err}
}

func (e *Error) sentinel() error {
	switch e.Collaborator {
	case CollabTemplate:
		return ErrTemplate
	case CollabAnswers:
		return ErrAnswers
	case CollabFont:
		return ErrFont
	case CollabOutput:
		return ErrOutput
	default:
		return ErrRender
	}
}

func fail(c Collaborator, err error) error {
	return &Error{Collaborator: c, Err: err}
}
