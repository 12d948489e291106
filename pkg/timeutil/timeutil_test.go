package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatISO(t *testing.T) {
	ts := time.Date(2026, 10, 16, 9, 30, 0, 123456789, time.FixedZone("UTC+5", 5*3600))
	assert.Equal(t, "2026-10-16T04:30:00.123Z", FormatISO(ts))
}

func TestParseISO(t *testing.T) {
	got, err := ParseISO("2026-10-16T04:30:00.123Z")
	require.NoError(t, err)
	assert.Equal(t, 123*int(time.Millisecond), got.Nanosecond())

	got, err = ParseISO("2026-10-16T09:30:00+05:00")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Hour())

	_, err = ParseISO("yesterday")
	assert.Error(t, err)
}

func TestFakeClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestTimeAgo(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "just now", TimeAgo(now.Add(-10*time.Second), now))
	assert.Equal(t, "5m ago", TimeAgo(now.Add(-5*time.Minute), now))
	assert.Equal(t, "3h ago", TimeAgo(now.Add(-3*time.Hour), now))
	assert.Equal(t, "1d ago", TimeAgo(now.Add(-25*time.Hour), now))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", FormatDuration(45*time.Second))
	assert.Equal(t, "12m", FormatDuration(12*time.Minute))
	assert.Equal(t, "2h", FormatDuration(2*time.Hour))
	assert.Equal(t, "1h 30m", FormatDuration(90*time.Minute))
}
