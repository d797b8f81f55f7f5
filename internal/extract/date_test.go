package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-07-15", "2024-07-15"},
		{"07/15/2024", "2024-07-15"},
		{"7/5/2024", "2024-07-05"},
		{"07/15/24", "2024-07-15"},
		{"07-15-2024", "2024-07-15"},
		{"Jul 15, 2024", "2024-07-15"},
		{"July 15, 2024", "2024-07-15"},
		{"15 Jul 2024", "2024-07-15"},
		{"20240715", "2024-07-15"},
		// US layout wins the ambiguous case.
		{"03/04/2024", "2024-03-04"},
		// Day > 12 forces the day-first reading.
		{"25/12/2024", "2024-12-25"},
		// Trailing time is dropped.
		{"07/15/2024 14:23:05", "2024-07-15"},
		// Unparseable text passes through verbatim.
		{"sometime last week", "sometime last week"},
		{"", ""},
		{"N/A", "N/A"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDate(tt.in))
		})
	}
}

func TestLooksLikeDate(t *testing.T) {
	assert.True(t, LooksLikeDate("07/15/2024"))
	assert.True(t, LooksLikeDate("2024-07-15"))
	assert.True(t, LooksLikeDate("07/15/2024 14:23:05"))
	assert.False(t, LooksLikeDate("JOE'S DINER"))
	assert.False(t, LooksLikeDate(""))
	assert.False(t, LooksLikeDate("Thanks for visiting"))
}
