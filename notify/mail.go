package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/wansing/pressroom/core"
)

type MailConfig struct {
	Host     string
	Port     int
	From     string
	User     string
	Password string
}

// MailPusher sends messages by SMTP to users whose name is an email address. Other users are skipped.
type MailPusher struct {
	Config MailConfig
	Users  interface {
		GetUser(id int) (core.DBUser, error)
	}

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error // smtp.SendMail, replaced in tests
}

func (p *MailPusher) Push(ctx context.Context, userID int, m Message) error {

	u, err := p.Users.GetUser(userID)
	if err != nil {
		return fmt.Errorf("get user %d: %w", userID, err)
	}
	var to = u.Name()
	if !strings.Contains(to, "@") {
		return nil
	}

	var auth smtp.Auth
	if p.Config.User != "" {
		auth = smtp.PlainAuth("", p.Config.User, p.Config.Password, p.Config.Host)
	}

	var send = p.send
	if send == nil {
		send = smtp.SendMail
	}
	var addr = net.JoinHostPort(p.Config.Host, strconv.Itoa(p.Config.Port))
	return send(addr, auth, p.Config.From, []string{to}, composeMail(p.Config.From, to, m))
}

func composeMail(from, to string, m Message) []byte {
	var b = &strings.Builder{}
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + strings.ReplaceAll(m.Subject, "\n", " ") + "\r\n")
	b.WriteString("Date: " + m.Time.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}
