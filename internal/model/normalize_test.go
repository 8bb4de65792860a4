package model

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDescription(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "Install RTU-1", "install rtu 1"},
		{"strips punctuation", `Furnish & install 4" pipe`, "furnish install 4 pipe"},
		{"collapses whitespace", "install   rtu    1", "install rtu 1"},
		{"strips accents", "façade repair", "facade repair"},
		{"trims", "  install rtu 1  ", "install rtu 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDescription(tt.input))
		})
	}
}

func TestNormalizeDescription_Truncates(t *testing.T) {
	long := strings.Repeat("a", 150)
	assert.Len(t, NormalizeDescription(long), 100)
}

func TestNormalizeDescription_TruncatesOnRuneBoundary(t *testing.T) {
	// Non-ASCII letters survive the accent strip, so truncation has to
	// count runes, not bytes.
	long := strings.Repeat("管", 150)
	got := NormalizeDescription(long)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 100, utf8.RuneCountInString(got))
}

func TestItemKey(t *testing.T) {
	assert.Equal(t, "MEC:install rtu 1", ItemKey("MEC", "Install RTU-1"))
	// Minor wording differences resolve to the same key.
	assert.Equal(t, ItemKey("MEC", "Install RTU-1"), ItemKey("MEC", "install rtu #1"))
}
