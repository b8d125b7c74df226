package prompt

import (
	"context"
	"errors"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

// ErrAborted 表示用户中断了输入（例如 Ctrl+C）。
var ErrAborted = errors.New("prompt: 输入已中断")

// InputConfig 配置单行输入。
type InputConfig struct {
	Message   string
	Default   string
	Help      string
	Validator func(string) error
}

// SelectConfig 配置单选或多选。
type SelectConfig struct {
	Message string
	Options []string
	Help    string
}

// Driver 抽象终端交互，便于在测试中替换。
type Driver interface {
	Input(ctx context.Context, cfg InputConfig) (string, error)
	TextArea(ctx context.Context, cfg InputConfig) (string, error)
	Select(ctx context.Context, cfg SelectConfig) (string, error)
	MultiSelect(ctx context.Context, cfg SelectConfig) ([]string, error)
}

// SurveyDriver 使用 survey/v2 在终端中提问。
type SurveyDriver struct {
	Opts []survey.AskOpt
}

var _ Driver = SurveyDriver{}

func (d SurveyDriver) ask(ctx context.Context, p survey.Prompt, out any, validator func(string) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := append([]survey.AskOpt(nil), d.Opts...)
	if validator != nil {
		opts = append(opts, survey.WithValidator(func(ans interface{}) error {
			s, _ := ans.(string)
			return validator(s)
		}))
	}
	if err := survey.AskOne(p, out, opts...); err != nil {
		if errors.Is(err, terminal.InterruptErr) {
			return ErrAborted
		}
		return err
	}
	return nil
}

func (d SurveyDriver) Input(ctx context.Context, cfg InputConfig) (string, error) {
	var out string
	p := &survey.Input{Message: cfg.Message, Default: cfg.Default, Help: cfg.Help}
	if err := d.ask(ctx, p, &out, cfg.Validator); err != nil {
		return "", err
	}
	return out, nil
}

func (d SurveyDriver) TextArea(ctx context.Context, cfg InputConfig) (string, error) {
	var out string
	p := &survey.Multiline{Message: cfg.Message, Default: cfg.Default, Help: cfg.Help}
	if err := d.ask(ctx, p, &out, cfg.Validator); err != nil {
		return "", err
	}
	return out, nil
}

func (d SurveyDriver) Select(ctx context.Context, cfg SelectConfig) (string, error) {
	var out string
	p := &survey.Select{Message: cfg.Message, Options: cfg.Options, Help: cfg.Help}
	if err := d.ask(ctx, p, &out, nil); err != nil {
		return "", err
	}
	return out, nil
}

func (d SurveyDriver) MultiSelect(ctx context.Context, cfg SelectConfig) ([]string, error) {
	var out []string
	p := &survey.MultiSelect{Message: cfg.Message, Options: cfg.Options, Help: cfg.Help}
	if err := d.ask(ctx, p, &out, nil); err != nil {
		return nil, err
	}
	return out, nil
}
