package mail

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/pcbuilder/pkg/config"
)

var Module = fx.Options(
	fx.Provide(New),
)

//go:embed templates/*.html
var templateFS embed.FS

// Sender delivers built messages; *gomail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer renders the merchant mails and delivers them over SMTP.
type Mailer struct {
	cfg    config.MailConfig
	l      *zap.SugaredLogger
	pages  map[string]*template.Template
	sender Sender
	now    func() time.Time
}

// dialTimeout bounds connecting to the relay.
const dialTimeout = 15 * time.Second

func New(cfg *config.Config, l *zap.SugaredLogger) (*Mailer, error) {
	var sender Sender
	if cfg.Mail.Host != "" {
		c, err := newClient(cfg.Mail)
		if err != nil {
			return nil, err
		}
		sender = c
	}
	return NewWithSender(cfg.Mail, l, sender)
}

// newClient uses STARTTLS when the relay offers it and PLAIN auth when a
// username is configured.
func newClient(cfg config.MailConfig) (*gomail.Client, error) {
	opts := []gomail.Option{
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(dialTimeout),
	}
	if cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	c, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}
	return c, nil
}

func NewWithSender(cfg config.MailConfig, l *zap.SugaredLogger, sender Sender) (*Mailer, error) {
	pages := make(map[string]*template.Template, 3)
	for _, name := range []string{"welcome", "goodbye", "support"} {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
		}
		pages[name] = t
	}
	return &Mailer{cfg: cfg, l: l, pages: pages, sender: sender, now: time.Now}, nil
}

// Enabled reports whether an SMTP host is configured.
func (m *Mailer) Enabled() bool {
	return m.cfg.Host != "" && m.sender != nil
}

type pageData struct {
	AppName  string
	Sender   string
	Year     int
	Name     string
	Kind     string
	Subject  string
	ReplyTo  string
	Message  string
	ImageURL string
}

func (m *Mailer) render(page string, d pageData) (string, error) {
	d.AppName = m.cfg.AppName
	d.Sender = m.cfg.Sender
	d.Year = m.now().Year()
	var buf bytes.Buffer
	if err := m.pages[page].ExecuteTemplate(&buf, "layout", d); err != nil {
		return "", fmt.Errorf("failed to render %s mail: %w", page, err)
	}
	return buf.String(), nil
}

func (m *Mailer) SendWelcome(ctx context.Context, to, name string) error {
	body, err := m.render("welcome", pageData{Name: name})
	if err != nil {
		return err
	}
	return m.Send(ctx, Message{To: to, Subject: "Getting started with " + m.cfg.AppName, HTML: body})
}

func (m *Mailer) SendGoodbye(ctx context.Context, to, name string) error {
	body, err := m.render("goodbye", pageData{Name: name})
	if err != nil {
		return err
	}
	return m.Send(ctx, Message{To: to, Subject: "You've uninstalled " + m.cfg.AppName, HTML: body})
}

// SupportMail is a support or feature request forwarded to the team inbox.
type SupportMail struct {
	Kind     string
	From     string
	ReplyTo  string
	Subject  string
	Message  string
	ImageURL string
}

// ForwardsSupport reports whether SendSupport actually delivers mail.
func (m *Mailer) ForwardsSupport() bool {
	return m.Enabled() && m.cfg.SupportInbox != ""
}

func (m *Mailer) SendSupport(ctx context.Context, req SupportMail) error {
	if m.cfg.SupportInbox == "" {
		return nil
	}
	body, err := m.render("support", pageData{
		Name:     req.From,
		Kind:     req.Kind,
		Subject:  req.Subject,
		ReplyTo:  req.ReplyTo,
		Message:  req.Message,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		return err
	}
	return m.Send(ctx, Message{To: m.cfg.SupportInbox, Subject: fmt.Sprintf("[%s] %s", req.Kind, req.Subject), HTML: body})
}

// Send delivers one HTML message. A mailer without a host logs and drops it.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if !m.Enabled() {
		m.l.Infow("mail disabled; message dropped", "to", msg.To, "subject", msg.Subject)
		return nil
	}
	if msg.To == "" {
		return errors.New("mail recipient is empty")
	}

	gm, err := m.build(msg)
	if err != nil {
		return err
	}
	if err := m.sender.DialAndSendWithContext(ctx, gm); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", msg.To, err)
	}
	m.l.Infow("mail sent", "to", msg.To, "subject", msg.Subject)
	return nil
}

func (m *Mailer) build(msg Message) (*gomail.Msg, error) {
	gm := gomail.NewMsg()
	var err error
	if m.cfg.Sender != "" {
		err = gm.FromFormat(m.cfg.Sender, m.cfg.From)
	} else {
		err = gm.From(m.cfg.From)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid mail sender %q: %w", m.cfg.From, err)
	}
	if err := gm.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid mail recipient %q: %w", msg.To, err)
	}
	gm.Subject(msg.Subject)
	gm.SetDateWithValue(m.now())
	gm.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	return gm, nil
}
