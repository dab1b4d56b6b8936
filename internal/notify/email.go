package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

type emailNotifier struct {
	host     string
	port     int
	from     string
	to       []string
	username string
	password string
}

// NewEmail builds a plain-text SMTP notifier. to is a comma separated
// recipient list; username and password are optional but go together.
func NewEmail(host string, port int, from, to, username, password string) (Notifier, error) {
	e := &emailNotifier{
		host:     strings.TrimSpace(host),
		port:     port,
		from:     strings.TrimSpace(from),
		to:       splitRecipients(to),
		username: strings.TrimSpace(username),
		password: strings.TrimSpace(password),
	}

	switch {
	case e.host == "":
		return nil, fmt.Errorf("config.smtp_host is required")
	case e.port <= 0:
		return nil, fmt.Errorf("config.smtp_port must be > 0")
	case e.from == "":
		return nil, fmt.Errorf("config.from is required")
	case len(e.to) == 0:
		return nil, fmt.Errorf("config.to must include at least one recipient")
	case (e.username == "") != (e.password == ""):
		return nil, fmt.Errorf("config.username and config.password must be set together")
	}
	return e, nil
}

func (e *emailNotifier) Notify(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(e.host, strconv.Itoa(e.port))
	var auth smtp.Auth
	if e.username != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.host)
	}
	if err := smtp.SendMail(addr, auth, e.from, e.to, e.message(event)); err != nil {
		return fmt.Errorf("send mail for %s: %w", event.Job, err)
	}
	return nil
}

func (e *emailNotifier) message(event Event) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", event.Subject())
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(buildEmailBody(event))
	return []byte(b.String())
}

// buildEmailBody lists the event as "label: value" lines; empty optional
// fields are left out.
func buildEmailBody(event Event) string {
	fields := []struct {
		label, value string
		always       bool
	}{
		{"job", event.Job, true},
		{"storage", event.Storage, true},
		{"target", event.Target(), true},
		{"status", event.Status, true},
		{"dry run", strconv.FormatBool(event.DryRun), true},
		{"found", strconv.Itoa(event.Found), true},
		{"deleted", strconv.Itoa(event.Deleted), true},
		{"failed", strconv.Itoa(event.Failed), true},
		{"duration", event.Duration, true},
		{"state", event.State, false},
		{"manifest", event.Manifest, false},
		{"error", event.Error, false},
	}

	var b strings.Builder
	b.WriteString("Purge event\n")
	for _, f := range fields {
		if f.value == "" && !f.always {
			continue
		}
		fmt.Fprintf(&b, "\n%s: %s", f.label, f.value)
	}
	return b.String()
}

func splitRecipients(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
