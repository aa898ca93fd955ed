package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/elonfeng/pitchpulse/pkg/digest"
	"github.com/elonfeng/pitchpulse/pkg/source"
)

func sampleNotification() *Notification {
	d := &digest.Digest{
		Date: time.Date(2024, 5, 10, 7, 0, 0, 0, time.UTC),
		Lead: digest.Story{
			Item:  source.Item{Title: "Thorns top the table", URL: "https://a", Origin: "Equalizer"},
			Blurb: "Portland moved clear at the top.",
		},
		Rest: []digest.Story{
			{Item: source.Item{Title: "Reign sign keeper", URL: "https://b", Origin: "OLReign"}, Blurb: "A new signing."},
		},
	}
	return FromDigest(d, digest.Rendered{Subject: "NWSL Daily: Thorns top the table", Text: "text", HTML: "<p>html</p>"})
}

func TestFromDigest(t *testing.T) {
	n := sampleNotification()
	if n.Lead.Title != "Thorns top the table" || n.Lead.Blurb == "" {
		t.Errorf("lead = %+v", n.Lead)
	}
	if len(n.Stories) != 1 || n.Stories[0].Origin != "OLReign" {
		t.Errorf("stories = %+v", n.Stories)
	}
	if n.HTML != "<p>html</p>" {
		t.Errorf("html = %q", n.HTML)
	}
}

type stubNotifier struct {
	name string
	err  error
	got  *Notification
}

func (s *stubNotifier) Name() string { return s.name }
func (s *stubNotifier) Send(_ context.Context, n *Notification) error {
	s.got = n
	return s.err
}

func TestManagerBroadcast(t *testing.T) {
	ok1 := &stubNotifier{name: "one"}
	bad := &stubNotifier{name: "two", err: errors.New("410 gone")}
	ok2 := &stubNotifier{name: "three"}
	m := NewManager([]Notifier{ok1, bad, ok2})

	sent, err := m.Broadcast(context.Background(), sampleNotification())
	if sent != 2 {
		t.Errorf("sent = %d, want 2", sent)
	}
	if err == nil || !strings.Contains(err.Error(), "two: 410 gone") {
		t.Errorf("err = %v", err)
	}
	if ok2.got == nil {
		t.Error("failure in one notifier stopped the rest")
	}

	if NewManager(nil).HasNotifiers() {
		t.Error("empty manager reports notifiers")
	}
}

func TestWebhookSignature(t *testing.T) {
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature-256")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	if err := NewWebhook(srv.URL, "topsecret").Send(context.Background(), sampleNotification()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if want := "sha256=" + Sign("topsecret", gotBody); gotSig != want {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}

	var decoded Notification
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("body not json: %v", err)
	}
	if decoded.Subject != "NWSL Daily: Thorns top the table" {
		t.Errorf("subject = %q", decoded.Subject)
	}
}

func TestChatNotifiers(t *testing.T) {
	tests := []struct {
		name     string
		build    func(url string) Notifier
		contains string
	}{
		{"slack", func(u string) Notifier { return NewSlack(u) }, `"blocks"`},
		{"discord", func(u string) Notifier { return NewDiscord(u) }, `"embeds"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				b, _ := io.ReadAll(r.Body)
				body = string(b)
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			n := tt.build(srv.URL)
			if n.Name() != tt.name {
				t.Errorf("name = %q", n.Name())
			}
			if err := n.Send(context.Background(), sampleNotification()); err != nil {
				t.Fatalf("send: %v", err)
			}
			if !strings.Contains(body, tt.contains) || !strings.Contains(body, "Reign sign keeper") {
				t.Errorf("payload = %s", body)
			}
		})
	}
}

func TestNotifierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewSlack(srv.URL).Send(context.Background(), sampleNotification())
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Errorf("err = %v", err)
	}
}
