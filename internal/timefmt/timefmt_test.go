package timefmt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   int64
		want string
	}{
		{0, "0:00:00"},
		{59, "0:00:59"},
		{60, "0:01:00"},
		{3599, "0:59:59"},
		{3600, "1:00:00"},
		{3661, "1:01:01"},
		{7260 * 60, "121:00:00"},
		{-5, "0:00:00"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.in), "Format(%d)", tt.in)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	t.Parallel()

	for s := int64(0); s <= 2*3600+5; s += 7 {
		got, err := Parse(Format(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	got, err := Parse(Format(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), got)
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "0:15:00", FormatDuration(15*time.Minute))
	assert.Equal(t, "0:00:01", FormatDuration(1900*time.Millisecond))
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "1:00", "a:00:00", "0:60:00", "0:00:60", "0:1:00", "-1:00:00"} {
		_, err := Parse(in)
		assert.Error(t, err, "Parse(%q)", in)
	}
}
