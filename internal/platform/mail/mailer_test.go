package mail

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/fatflowers/pcbuilder/pkg/config"
)

// fakeSender keeps what the mailer hands to the SMTP client.
type fakeSender struct {
	msgs []*gomail.Msg
	err  error
}

func (f *fakeSender) DialAndSendWithContext(_ context.Context, msgs ...*gomail.Msg) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func newTestMailer(t *testing.T, cfg config.MailConfig, err error) (*Mailer, *fakeSender) {
	t.Helper()
	sender := &fakeSender{err: err}
	m, e := NewWithSender(cfg, zap.NewNop().Sugar(), sender)
	require.NoError(t, e)
	return m, sender
}

func recipients(t *testing.T, msg *gomail.Msg) []string {
	t.Helper()
	rcpts, err := msg.GetRecipients()
	require.NoError(t, err)
	return rcpts
}

func htmlBody(t *testing.T, msg *gomail.Msg) string {
	t.Helper()
	parts := msg.GetParts()
	require.Len(t, parts, 1)
	require.Equal(t, gomail.TypeTextHTML, parts[0].GetContentType())
	b, err := parts[0].GetContent()
	require.NoError(t, err)
	return string(b)
}

var testMailConfig = config.MailConfig{
	Host:         "smtp.test",
	Port:         587,
	From:         "team@pcbuilder.test",
	Sender:       "PC Builder Team",
	AppName:      "PC Builder",
	SupportInbox: "support@pcbuilder.test",
}

func TestNew(t *testing.T) {
	m, err := New(&config.Config{Mail: testMailConfig}, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.True(t, m.Enabled())

	m, err = New(&config.Config{Mail: config.MailConfig{AppName: "PC Builder"}}, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.False(t, m.Enabled())
}

func TestSendWelcome(t *testing.T) {
	m, out := newTestMailer(t, testMailConfig, nil)
	require.NoError(t, m.SendWelcome(context.Background(), "owner@demo.test", "Demo <Store>"))

	require.Len(t, out.msgs, 1)
	got := out.msgs[0]
	require.Equal(t, []string{"owner@demo.test"}, recipients(t, got))
	require.Contains(t, got.GetFromString()[0], "team@pcbuilder.test")
	require.Equal(t, []string{"Getting started with PC Builder"}, got.GetGenHeader(gomail.HeaderSubject))
	body := htmlBody(t, got)
	require.Contains(t, body, "Welcome to PC Builder")
	require.Contains(t, body, "Demo &lt;Store&gt;")
}

func TestSendGoodbye(t *testing.T) {
	m, out := newTestMailer(t, testMailConfig, nil)
	require.NoError(t, m.SendGoodbye(context.Background(), "owner@demo.test", "Demo"))
	require.Contains(t, htmlBody(t, out.msgs[0]), "has been uninstalled")
}

func TestSendSupport(t *testing.T) {
	m, out := newTestMailer(t, testMailConfig, nil)
	require.NoError(t, m.SendSupport(context.Background(), SupportMail{Kind: "feature", From: "Demo", ReplyTo: "o@demo.test", Subject: "Dark mode", Message: "please"}))
	require.Equal(t, []string{"support@pcbuilder.test"}, recipients(t, out.msgs[0]))
	require.Equal(t, []string{"[feature] Dark mode"}, out.msgs[0].GetGenHeader(gomail.HeaderSubject))

	cfg := testMailConfig
	cfg.SupportInbox = ""
	m, out = newTestMailer(t, cfg, nil)
	require.NoError(t, m.SendSupport(context.Background(), SupportMail{Kind: "support"}))
	require.Empty(t, out.msgs)
}

func TestSend_DisabledAndFailures(t *testing.T) {
	m, out := newTestMailer(t, config.MailConfig{AppName: "PC Builder"}, nil)
	require.False(t, m.Enabled())
	require.NoError(t, m.SendWelcome(context.Background(), "owner@demo.test", "Demo"))
	require.Empty(t, out.msgs)

	m, _ = newTestMailer(t, testMailConfig, errors.New("connection refused"))
	require.ErrorContains(t, m.SendWelcome(context.Background(), "owner@demo.test", "Demo"), "connection refused")

	m, _ = newTestMailer(t, testMailConfig, nil)
	require.Error(t, m.Send(context.Background(), Message{Subject: "x"}))
	require.Error(t, m.Send(context.Background(), Message{To: "not an address", Subject: "x"}))
}
