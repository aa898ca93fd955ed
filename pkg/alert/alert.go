// Package alert delivers the rendered daily digest to chat and webhook
// destinations.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/pitchpulse/pkg/digest"
	"github.com/go-resty/resty/v2"
)

// Story is one digest entry as delivered.
type Story struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Origin string `json:"origin"`
	Blurb  string `json:"blurb"`
}

// Notification is the data sent to delivery destinations.
type Notification struct {
	Subject string    `json:"subject"`
	Date    time.Time `json:"date"`
	Text    string    `json:"text"`
	HTML    string    `json:"html"`
	Lead    Story     `json:"lead"`
	Stories []Story   `json:"stories"`
}

// FromDigest builds a notification from a selected and rendered digest.
func FromDigest(d *digest.Digest, r digest.Rendered) *Notification {
	n := &Notification{
		Subject: r.Subject,
		Date:    d.Date,
		Text:    r.Text,
		HTML:    r.HTML,
		Lead:    toStory(d.Lead),
	}
	for _, s := range d.Rest {
		n.Stories = append(n.Stories, toStory(s))
	}
	return n
}

func toStory(s digest.Story) Story {
	return Story{Title: s.Item.Title, URL: s.Item.URL, Origin: s.Item.Origin, Blurb: s.Blurb}
}

// Notifier delivers digests to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new delivery manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Broadcast sends n to every notifier and returns how many accepted it.
// One destination failing does not stop the others.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) (int, error) {
	var (
		sent int
		errs []error
	)
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

func newClient() *resty.Client {
	return resty.New().
		SetTimeout(10*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "pitchpulse/1.0")
}

func post(ctx context.Context, req *resty.Request, url, name string) error {
	resp, err := req.SetContext(ctx).Post(url)
	if err != nil {
		return fmt.Errorf("send %s webhook: %w", name, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("%s webhook status %d", name, resp.StatusCode())
	}
	return nil
}
