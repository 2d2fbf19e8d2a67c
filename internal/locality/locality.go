// Package locality decides whether an alert's free text names the monitored
// place. Variants and input go through the same normalization so case and
// diacritic handling is uniform across the whole variant set.
package locality

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/gabihorn/beiter-alert-bot/internal/alert"
)

// DefaultName is the display name of the monitored locality.
const DefaultName = "ביתר עילית"

// DefaultVariants lists the spellings of Beitar Illit seen in the feed and in
// the wild: plain, hyphenated, both gershayim forms, Latin and Arabic.
var DefaultVariants = []string{
	"ביתר עילית",
	"ביתר-עילית",
	"בית״ר עילית",
	`בית"ר עילית`,
	"Beitar Illit",
	"Beitar-Illit",
	"Betar Illit",
	"بيتار عيليت",
}

// Config is the explicit matching policy.
type Config struct {
	Name          string
	Variants      []string
	CaseSensitive bool
	// StripMarks removes nonspacing marks (niqqud, accents) before comparing.
	StripMarks bool
}

// DefaultConfig returns the Beitar Illit match set, case-insensitive, marks stripped.
func DefaultConfig() Config {
	return Config{
		Name:       DefaultName,
		Variants:   append([]string(nil), DefaultVariants...),
		StripMarks: true,
	}
}

// Matcher is immutable after New and safe to share.
type Matcher struct {
	name          string
	variants      []string
	caseSensitive bool
	stripMarks    bool
}

// New normalizes the configured variants once. Variants that normalize to the
// empty string are dropped, as are duplicates.
func New(cfg Config) *Matcher {
	m := &Matcher{
		name:          cfg.Name,
		caseSensitive: cfg.CaseSensitive,
		stripMarks:    cfg.StripMarks,
	}
	seen := make(map[string]struct{}, len(cfg.Variants))
	for _, v := range cfg.Variants {
		n := m.normalize(v)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		m.variants = append(m.variants, n)
	}
	return m
}

// Name returns the display name of the locality.
func (m *Matcher) Name() string { return m.name }

// Variants returns the normalized variant set.
func (m *Matcher) Variants() []string {
	return append([]string(nil), m.variants...)
}

// Matches reports whether the record text contains any variant.
func (m *Matcher) Matches(r alert.Record) bool {
	return m.MatchText(r.Data)
}

// MatchText is Matches on bare text.
func (m *Matcher) MatchText(text string) bool {
	text = m.normalize(text)
	if text == "" {
		return false
	}
	for _, v := range m.variants {
		if strings.Contains(text, v) {
			return true
		}
	}
	return false
}

func (m *Matcher) normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if m.stripMarks {
		s = stripMarks(s)
	} else {
		s = norm.NFC.String(s)
	}
	if !m.caseSensitive {
		// Casers carry state; one per call.
		s = cases.Fold().String(s)
	}
	return strings.TrimSpace(s)
}

// remove diacritics and niqqud
func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	res, _, err := transform.String(t, s)
	if err != nil {
		return norm.NFC.String(s)
	}
	return res
}
