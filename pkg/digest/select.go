// Package digest picks and renders the daily summary.
package digest

import (
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/elonfeng/pitchpulse/pkg/dedup"
	"github.com/elonfeng/pitchpulse/pkg/rank"
	"github.com/elonfeng/pitchpulse/pkg/relevance"
	"github.com/elonfeng/pitchpulse/pkg/source"
)

// ErrNoStories means nothing qualified; no digest should be sent.
var ErrNoStories = errors.New("no eligible stories")

const (
	// Window is how far back the digest looks.
	Window = 24 * time.Hour
	// MaxStories caps lead plus remainder.
	MaxStories = 8

	blurbLimit  = 200
	ellipsis    = "…"
	placeholder = "Tap through for the full story."
)

// Story is one selected item with its rendered blurb.
type Story struct {
	Item  source.Item `json:"item"`
	Index int         `json:"index"`
	Blurb string      `json:"blurb"`
}

// Digest is a non-empty selection: a lead and up to seven more.
type Digest struct {
	Date time.Time `json:"date"`
	Lead Story     `json:"lead"`
	Rest []Story   `json:"rest"`
}

// Stories returns lead followed by the remainder.
func (d *Digest) Stories() []Story {
	return append([]Story{d.Lead}, d.Rest...)
}

// Select builds the digest from candidate items. It returns ErrNoStories
// rather than an empty digest when nothing survives the window, relevance
// and URL checks.
func Select(items []source.Item, filter *relevance.Filter, now time.Time) (*Digest, error) {
	cutoff := now.Add(-Window)
	recent := make([]source.Item, 0, len(items))
	for _, it := range items {
		if it.PublishedAt.IsZero() || it.PublishedAt.Before(cutoff) || it.PublishedAt.After(now) {
			continue
		}
		recent = append(recent, it)
	}

	if filter != nil {
		recent = filter.Apply(recent)
	}
	recent = dedup.ByURL(recent)
	if len(recent) == 0 {
		return nil, ErrNoStories
	}

	stories := make([]Story, len(recent))
	for i, it := range recent {
		stories[i] = Story{Item: it, Index: rank.Index(it, now), Blurb: Blurb(it)}
	}
	sort.SliceStable(stories, func(i, j int) bool {
		return stories[i].Index > stories[j].Index
	})
	if len(stories) > MaxStories {
		stories = stories[:MaxStories]
	}

	return &Digest{Date: now, Lead: stories[0], Rest: stories[1:]}, nil
}

// Blurb is the short text shown under a story: the summary, else the
// opening sentence(s) of the body, else a placeholder.
func Blurb(it source.Item) string {
	if it.Summary != nil {
		if s := strings.TrimSpace(*it.Summary); s != "" {
			return clip(s, blurbLimit)
		}
	}
	if body := strings.TrimSpace(it.Body); body != "" {
		return leadSentences(body, blurbLimit)
	}
	return placeholder
}

func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return strings.TrimRightFunc(string(r[:limit]), isSpace) + ellipsis
}

// leadSentences accumulates whole sentences while they fit in limit. The
// first sentence is always used, clipped if it alone is too long.
func leadSentences(body string, limit int) string {
	sentences := splitSentences(strings.Join(strings.Fields(body), " "))
	out := sentences[0]
	if utf8.RuneCountInString(out) > limit {
		return clip(out, limit)
	}
	for _, s := range sentences[1:] {
		next := out + " " + s
		if utf8.RuneCountInString(next) > limit {
			break
		}
		out = next
	}
	return out
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && runes[i+1] != ' ' {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		out = append(out, rest)
	}
	if len(out) == 0 {
		out = []string{text}
	}
	return out
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' || r == '\n' }
