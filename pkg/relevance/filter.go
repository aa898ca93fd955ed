// Package relevance decides whether an item belongs in the league feed.
// The decision is a pure function of the keyword tables and the item text,
// so it is applied both at ingestion and again on every read.
package relevance

import (
	"regexp"
	"strings"

	"github.com/elonfeng/pitchpulse/pkg/keywords"
	"github.com/elonfeng/pitchpulse/pkg/source"
)

// Verdict explains a Filter decision.
type Verdict string

const (
	VerdictExempt  Verdict = "exempt"
	VerdictBlocked Verdict = "blocked"
	VerdictTeam    Verdict = "team"
	VerdictNoTeam  Verdict = "no_team"
)

// Keep reports whether the verdict admits the item.
func (v Verdict) Keep() bool {
	return v == VerdictExempt || v == VerdictTeam
}

// Filter holds compiled always-block and team patterns.
type Filter struct {
	block *regexp.Regexp
	teams *regexp.Regexp
}

// New compiles a filter from keyword tables.
func New(t keywords.Tables) *Filter {
	return &Filter{
		block: compile(t.Block),
		teams: compile(t.Teams),
	}
}

// Judge classifies one item. Video items are exempt; an always-block hit
// wins over any team mention; otherwise a team mention is required.
func (f *Filter) Judge(item source.Item) Verdict {
	if item.Kind == source.KindVideo {
		return VerdictExempt
	}

	text := searchText(item)
	if f.block != nil && f.block.MatchString(text) {
		return VerdictBlocked
	}
	if f.teams != nil && f.teams.MatchString(text) {
		return VerdictTeam
	}
	return VerdictNoTeam
}

// Keep reports whether the item belongs in the feed.
func (f *Filter) Keep(item source.Item) bool {
	return f.Judge(item).Keep()
}

// Apply returns the kept items in their original order.
func (f *Filter) Apply(items []source.Item) []source.Item {
	kept := make([]source.Item, 0, len(items))
	for _, item := range items {
		if f.Keep(item) {
			kept = append(kept, item)
		}
	}
	return kept
}

func searchText(item source.Item) string {
	summary := ""
	if item.Summary != nil {
		summary = *item.Summary
	}
	return strings.ToLower(item.Title + " " + summary + " " + item.Body)
}

// compile joins phrases into one case-insensitive alternation bounded by
// non-alphanumerics, so "wsl" never matches inside "nwsl".
func compile(phrases []string) *regexp.Regexp {
	if len(phrases) == 0 {
		return nil
	}
	quoted := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(p)))
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(?:` + strings.Join(quoted, "|") + `)(?:$|[^\p{L}\p{N}])`)
}
