package period

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/basket/internal/testutil"
)

func TestParseRange(t *testing.T) {
	r, err := ParseRange("Monday", "09:00-12:00, 13:00-17:30")
	require.NoError(t, err)
	assert.Equal(t, []Window{{9 * 3600, 12 * 3600}, {13 * 3600, 17*3600 + 30*60}}, r.Windows)

	r, err = ParseRange("2026-12-24", "00:00-24:00")
	require.NoError(t, err)
	assert.Equal(t, 86400, r.Windows[0].End)
}

func TestParseRange_Errors(t *testing.T) {
	tests := []struct{ key, val string }{
		{"someday", "09:00-17:00"},
		{"monday", ""},
		{"monday", "09:00"},
		{"monday", "9-17"},
		{"monday", "17:00-09:00"},
		{"monday", "09:60-10:00"},
		{"monday", "24:30-24:30"},
		{"2026-13-01", "09:00-10:00"},
	}
	for _, tt := range tests {
		t.Run(tt.key+" "+tt.val, func(t *testing.T) {
			_, err := ParseRange(tt.key, tt.val)
			assert.Error(t, err)
		})
	}
}

func TestRange_Contains(t *testing.T) {
	r, err := ParseRange("monday", "09:00-17:00")
	require.NoError(t, err)

	tests := []struct {
		at   string
		want bool
	}{
		{"2026-10-19 09:00", true},
		{"2026-10-19 12:00", true},
		{"2026-10-19 17:00", true},
		{"2026-10-19 17:01", false},
		{"2026-10-19 08:59", false},
		{"2026-10-20 12:00", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.Contains(testutil.Instant(tt.at)), tt.at)
	}
}

func TestRange_ContainsDate(t *testing.T) {
	r, err := ParseRange("2026-12-24", "00:00-24:00")
	require.NoError(t, err)
	assert.True(t, r.Contains(testutil.Instant("2026-12-24 23:59")))
	assert.False(t, r.Contains(testutil.Instant("2025-12-24 12:00")))
}
