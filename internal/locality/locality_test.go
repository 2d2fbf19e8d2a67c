package locality

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gabihorn/beiter-alert-bot/internal/alert"
)

func TestMatches_DefaultVariants(t *testing.T) {
	m := New(DefaultConfig())

	tests := []struct {
		name string
		data string
		want bool
	}{
		{"canonical", "ביתר עילית", true},
		{"canonical among others", "ירושלים, ביתר עילית, צור הדסה", true},
		{"hyphenated", "ביתר-עילית", true},
		{"gershayim", "בית״ר עילית", true},
		{"ascii quote", `בית"ר עילית`, true},
		{"surrounding whitespace", "  ביתר עילית \n", true},
		{"with niqqud", "בֵּיתָר עִילִית", true},
		{"latin lower", "rockets: beitar illit", true},
		{"latin upper", "BEITAR-ILLIT", true},
		{"latin alt spelling", "Betar Illit", true},
		{"arabic", "بيتار عيليت", true},
		{"no alerts", "אין התראות באזורך", false},
		{"other town", "בית שמש", false},
		{"partial name", "ביתר", false},
		{"empty", "", false},
		{"whitespace only", "   ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Matches(alert.Record{Data: tt.data}))
		})
	}
}

func TestMatches_MissingDataNeverMatches(t *testing.T) {
	m := New(DefaultConfig())
	assert.False(t, m.Matches(alert.Record{Date: "2024-01-01T00:00:00"}))
}

func TestMatches_CaseSensitivePolicy(t *testing.T) {
	m := New(Config{Variants: []string{"Beitar Illit"}, CaseSensitive: true})

	assert.True(t, m.MatchText("Beitar Illit"))
	assert.False(t, m.MatchText("beitar illit"))
	assert.False(t, m.MatchText("BEITAR ILLIT"))
}

func TestMatches_CaseInsensitiveAppliesToEveryVariant(t *testing.T) {
	// Variants are folded too, so an upper-case variant still matches lower-case input.
	m := New(Config{Variants: []string{"BEITAR ILLIT", "betar illit"}})

	assert.True(t, m.MatchText("beitar illit"))
	assert.True(t, m.MatchText("BETAR ILLIT"))
}

func TestMatches_MarksKeptWhenNotStripping(t *testing.T) {
	m := New(Config{Variants: []string{"ביתר עילית"}})

	assert.True(t, m.MatchText("ביתר עילית"))
	assert.False(t, m.MatchText("בֵּיתָר עִילִית"))
}

func TestNew_DropsEmptyAndDuplicateVariants(t *testing.T) {
	m := New(Config{Variants: []string{"", "  ", "Beitar Illit", "beitar illit"}})

	assert.Equal(t, []string{"beitar illit"}, m.Variants())
	assert.False(t, m.MatchText("anything"))
}

func TestNew_NoVariantsMatchesNothing(t *testing.T) {
	m := New(Config{})
	assert.False(t, m.MatchText("ביתר עילית"))
}
