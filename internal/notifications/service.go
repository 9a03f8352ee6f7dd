package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gfimx/internal/config"
	"gfimx/internal/scan"
)

// maxListed caps the paths included in one change alert.
const maxListed = 10

// Service defines the notification surface used by the daemon.
type Service interface {
	NotifyChanges(ctx context.Context, summary scan.Summary) error
	NotifyError(ctx context.Context, err error, where string) error
	TestNotification(ctx context.Context) error
}

// NewService returns an ntfy sender for [notify].ntfy_topic, or a service
// that sends nothing when no topic is set.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notify.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notify.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfy{topic: topic, agent: cfg.Agent.Name, client: &http.Client{Timeout: timeout}}
}

// Enabled reports whether svc sends anything.
func Enabled(svc Service) bool {
	if svc == nil {
		return false
	}
	_, noop := svc.(noopService)
	return !noop
}

// alert is one ntfy publish: the body plus its header fields.
type alert struct {
	body     string
	title    string
	tags     []string
	priority string
}

type ntfy struct {
	topic  string
	agent  string
	client *http.Client
}

func (n *ntfy) NotifyChanges(ctx context.Context, s scan.Summary) error {
	if s.Added == 0 && s.Modified == 0 {
		return nil
	}
	lines := []string{fmt.Sprintf("%s: %d added, %d modified in %s", n.agent, s.Added, s.Modified, s.Target)}
	for _, c := range s.Changes[:min(len(s.Changes), maxListed)] {
		lines = append(lines, string(c.Kind)+" "+c.Identity)
	}
	if extra := len(s.Changes) - maxListed; extra > 0 {
		lines = append(lines, fmt.Sprintf("... and %d more", extra))
	}

	a := alert{
		body:  strings.Join(lines, "\n"),
		title: "gfimx - " + n.agent + " changes",
		tags:  []string{"gfimx", s.Target, "added"},
	}
	if s.Modified > 0 {
		a.tags[2] = "modified"
		a.priority = "high"
	}
	return n.publish(ctx, a)
}

func (n *ntfy) NotifyError(ctx context.Context, err error, where string) error {
	body := n.agent
	if where = strings.TrimSpace(where); where != "" {
		body += ": " + where
	}
	if err != nil {
		body += "\n" + err.Error()
	}
	return n.publish(ctx, alert{
		body:     body,
		title:    "gfimx - Error",
		tags:     []string{"gfimx", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfy) TestNotification(ctx context.Context) error {
	return n.publish(ctx, alert{
		body:     "Notification test from " + n.agent,
		title:    "gfimx - Test",
		tags:     []string{"gfimx", "test"},
		priority: "low",
	})
}

func (n *ntfy) publish(ctx context.Context, a alert) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.topic, strings.NewReader(a.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", "gfimx")
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", a.title)
	req.Header.Set("Tags", strings.Join(a.tags, ","))
	if a.priority != "" {
		req.Header.Set("Priority", a.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type noopService struct{}

func (noopService) NotifyChanges(context.Context, scan.Summary) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error  { return nil }
func (noopService) TestNotification(context.Context) error            { return nil }
