package smtp

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"time"

	"github.com/go-otp-auth/internal/config"
)

// Mailer sends the one-time code emails.
type Mailer interface {
	SendVerificationCode(to, name, code string, expiresIn time.Duration) error
	SendPasswordResetCode(to, name, code string, expiresIn time.Duration) error
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type mailer struct {
	host     string
	port     string
	from     string
	fromName string
	username string
	password string
	send     sendFunc
}

func NewMailer(cfg *config.Config) Mailer {
	return &mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		from:     cfg.SMTPFrom,
		fromName: cfg.SMTPFromName,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		send:     smtp.SendMail,
	}
}

var codeTemplate = template.Must(template.New("code").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <p>Hi {{if .Name}}{{.Name}}{{else}}there{{end}},</p>
  <p>{{.Intro}}</p>
  <p style="font-size: 32px; font-weight: bold; letter-spacing: 8px;">{{.Code}}</p>
  <p>This code expires in {{.Minutes}} minute(s). If you didn't request it, you can ignore this email.</p>
</body>
</html>`))

type codeData struct {
	Name    string
	Intro   string
	Code    string
	Minutes int
}

func (m *mailer) SendVerificationCode(to, name, code string, expiresIn time.Duration) error {
	return m.sendCode(to, "Verify your email address", codeData{
		Name:    name,
		Intro:   "Use the code below to verify your email address.",
		Code:    code,
		Minutes: minutes(expiresIn),
	})
}

func (m *mailer) SendPasswordResetCode(to, name, code string, expiresIn time.Duration) error {
	return m.sendCode(to, "Reset your password", codeData{
		Name:    name,
		Intro:   "Use the code below to reset your password.",
		Code:    code,
		Minutes: minutes(expiresIn),
	})
}

func (m *mailer) sendCode(to, subject string, data codeData) error {
	var body bytes.Buffer
	if err := codeTemplate.Execute(&body, data); err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s <%s>\r\n", m.fromName, m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n\r\n")
	msg.Write(body.Bytes())

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}
	addr := fmt.Sprintf("%s:%s", m.host, m.port)
	if err := m.send(addr, auth, m.from, []string{to}, msg.Bytes()); err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	return nil
}

func minutes(d time.Duration) int {
	m := int((d + time.Minute - 1) / time.Minute)
	if m < 1 {
		return 1
	}
	return m
}
