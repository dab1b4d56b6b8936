package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dev-tams/s3purge/internal/config"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Event describes one finished purge job.
type Event struct {
	Job      string `json:"job"`
	Storage  string `json:"storage"`
	Bucket   string `json:"bucket"`
	Prefix   string `json:"prefix"`
	Search   string `json:"search,omitempty"`
	Status   string `json:"status"`
	State    string `json:"state,omitempty"`
	DryRun   bool   `json:"dry_run"`
	Found    int    `json:"found"`
	Deleted  int    `json:"deleted"`
	Failed   int    `json:"failed"`
	Manifest string `json:"manifest,omitempty"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

// Target renders bucket/prefix plus the search filter, if any.
func (e Event) Target() string {
	t := e.Bucket + "/" + e.Prefix
	if e.Search != "" {
		t += " (containing " + e.Search + ")"
	}
	return t
}

func (e Event) Subject() string {
	s := fmt.Sprintf("[s3purge] %s: %s", e.Status, e.Job)
	if e.DryRun {
		s += " (dry run)"
	}
	return s
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Trigger selects which job outcomes a notifier receives.
type Trigger uint8

const (
	OnSuccess Trigger = 1 << iota
	OnFailure
	OnBoth = OnSuccess | OnFailure
)

// ParseTrigger reads a notification's `on` list.
func ParseTrigger(raw []string) (Trigger, error) {
	var t Trigger
	for _, v := range raw {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case StatusSuccess:
			t |= OnSuccess
		case StatusFailure:
			t |= OnFailure
		case "both":
			t |= OnBoth
		default:
			return 0, fmt.Errorf("on contains unsupported value %q", v)
		}
	}
	if t == 0 {
		return 0, fmt.Errorf("on must include success, failure, or both")
	}
	return t, nil
}

func (t Trigger) fires(status string) bool {
	switch status {
	case StatusSuccess:
		return t&OnSuccess != 0
	case StatusFailure:
		return t&OnFailure != 0
	}
	return false
}

type route struct {
	kind     string
	when     Trigger
	notifier Notifier
}

// Dispatcher fans an event out to every notifier whose trigger matches the
// event status. A nil Dispatcher sends nothing.
type Dispatcher struct {
	routes []route
}

func NewDispatcher(cfgs []config.NotificationConfig) (*Dispatcher, error) {
	d := &Dispatcher{routes: make([]route, 0, len(cfgs))}
	for i, n := range cfgs {
		when, err := ParseTrigger(n.On)
		if err != nil {
			return nil, fmt.Errorf("notifications[%d]: %w", i, err)
		}
		kind := strings.ToLower(strings.TrimSpace(n.Type))
		nf, err := newNotifier(kind, n.Config)
		if err != nil {
			return nil, fmt.Errorf("notifications[%d] %s: %w", i, kind, err)
		}
		d.routes = append(d.routes, route{kind: kind, when: when, notifier: nf})
	}
	return d, nil
}

func newNotifier(kind string, c config.NotificationDetails) (Notifier, error) {
	switch kind {
	case "webhook":
		return NewWebhook(c.URL, c.Headers)
	case "email":
		return NewEmail(c.SMTPHost, c.SMTPPort, c.From, c.To, c.Username, c.Password)
	default:
		return nil, fmt.Errorf("unsupported notification type %q", kind)
	}
}

// Notify delivers to every matching route and joins the failures. One
// failing notifier does not keep the others from running.
func (d *Dispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}

	var errs []error
	for i, r := range d.routes {
		if !r.when.fires(event.Status) {
			continue
		}
		if err := r.notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("notifications[%d] %s: %w", i, r.kind, err))
		}
	}
	return errors.Join(errs...)
}
