package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/ByLCY/formstamp/template"
)

// 邮件默认值。
const (
	DefaultEmailField = "メールアドレス"
	DefaultSubject    = "【自動送信】PDF送信のお知らせ"
	DefaultBody       = "フォームへの回答ありがとうございます。\n作成されたPDFを添付いたします。\nご確認ください。"
	DefaultSenderName = "PDF自動送信システム"
)

// ErrNoSMTP 表示未配置 SMTP 服务器地址。
var ErrNoSMTP = errors.New("未配置 SMTP 服务器")

// SendFunc 投递一封已构造好的邮件，测试时可替换。
type SendFunc func(ctx context.Context, msg *mail.Msg) error

// MailConfig 描述发件配置，零值字段使用默认值。
type MailConfig struct {
	Addr       string // host:port
	From       string
	SenderName string
	Username   string
	Password   string
	Subject    string
	Body       string
	EmailField string
}

// Mailer 把渲染产物作为附件发送给回答者。
type Mailer struct {
	cfg  MailConfig
	send SendFunc
}

// MailOption 调整 Mailer。
type MailOption func(*Mailer)

// WithSendFunc 替换实际的发送函数。
func WithSendFunc(fn SendFunc) MailOption {
	return func(m *Mailer) { m.send = fn }
}

// NewMailer 创建 Mailer。
func NewMailer(cfg MailConfig, opts ...MailOption) *Mailer {
	if cfg.SenderName == "" {
		cfg.SenderName = DefaultSenderName
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.Body == "" {
		cfg.Body = DefaultBody
	}
	if cfg.EmailField == "" {
		cfg.EmailField = DefaultEmailField
	}
	m := &Mailer{cfg: cfg}
	m.send = m.dialAndSend
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EmailField 返回存放收件地址的回答键。
func (m *Mailer) EmailField() string { return m.cfg.EmailField }

// Recipient 从回答中取收件地址；不含 @ 时视为没有地址。
func (m *Mailer) Recipient(answers template.Answers) (string, bool) {
	addr, ok := answers.First(m.cfg.EmailField)
	addr = strings.TrimSpace(addr)
	if !ok || !strings.Contains(addr, "@") {
		return "", false
	}
	return addr, true
}

// Deliver 在回答中有有效地址时发送附件，返回实际收件人；无地址时不发送也不报错。
func (m *Mailer) Deliver(ctx context.Context, answers template.Answers, filename string, pdf []byte) (string, error) {
	to, ok := m.Recipient(answers)
	if !ok {
		return "", nil
	}
	if err := m.Send(ctx, to, filename, pdf); err != nil {
		return to, err
	}
	return to, nil
}

// Send 发送一封带附件的邮件。
func (m *Mailer) Send(ctx context.Context, to, filename string, attachment []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.cfg.Addr == "" {
		return ErrNoSMTP
	}
	msg, err := m.message(to, filename, attachment)
	if err != nil {
		return err
	}
	if err := m.send(ctx, msg); err != nil {
		return fmt.Errorf("发送邮件到 %s 失败: %w", to, err)
	}
	return nil
}

// message 构造正文加 PDF 附件的邮件。
func (m *Mailer) message(to, filename string, attachment []byte) (*mail.Msg, error) {
	from := m.cfg.From
	if from == "" {
		from = m.cfg.Username
	}
	msg := mail.NewMsg()
	if err := msg.FromFormat(m.cfg.SenderName, from); err != nil {
		return nil, fmt.Errorf("解析发件地址 %q 失败: %w", from, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("解析收件地址 %q 失败: %w", to, err)
	}
	msg.Subject(m.cfg.Subject)
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextPlain, m.cfg.Body)
	if err := msg.AttachReader(filename, bytes.NewReader(attachment),
		mail.WithFileContentType("application/pdf")); err != nil {
		return nil, fmt.Errorf("添加附件 %s 失败: %w", filename, err)
	}
	return msg, nil
}

// dialAndSend 按配置连接 SMTP 服务器并投递。
func (m *Mailer) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	host, portStr, err := net.SplitHostPort(m.cfg.Addr)
	if err != nil {
		return fmt.Errorf("解析 SMTP 地址 %q 失败: %w", m.cfg.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("解析 SMTP 端口 %q 失败: %w", portStr, err)
	}
	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return fmt.Errorf("创建 SMTP 客户端失败: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}
