package dateparse_test

import (
	"testing"
	"time"

	"github.com/jlefever/cochange-tool/internal/dateparse"
	"github.com/stretchr/testify/require"
)

func TestParseRFC3339(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	got, err := dateparse.Parse("2024-03-05T10:30:00Z", now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC), got)
}

func TestParseISODate(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	got, err := dateparse.Parse("2024-03-05", now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), got)
}

func TestParseCalendarOffsetYearsAndMonths(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	got, err := dateparse.Parse("1year 6months", now)
	require.NoError(t, err)
	require.Equal(t, now.AddDate(-1, -6, 0), got)
}

func TestParseCalendarOffsetIsCalendarAware(t *testing.T) {
	// A literal year is not 365*24h; across a leap year this differs.
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	got, err := dateparse.Parse("1year", now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC), got)
	require.NotEqual(t, now.Add(-365*24*time.Hour), got)
}

func TestParseCalendarOffsetWeeksDays(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	got, err := dateparse.Parse("2weeks 3days", now)
	require.NoError(t, err)
	require.Equal(t, now.AddDate(0, 0, -17), got)
}

func TestParseCalendarOffsetClockUnits(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	got, err := dateparse.Parse("12hours 30minutes", now)
	require.NoError(t, err)
	require.Equal(t, now.Add(-12*time.Hour-30*time.Minute), got)
}

func TestParseCalendarOffsetCaseInsensitiveAndSingular(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	got, err := dateparse.Parse("1Year 1Month", now)
	require.NoError(t, err)
	require.Equal(t, now.AddDate(-1, -1, 0), got)
}

func TestParseUnparseable(t *testing.T) {
	_, err := dateparse.Parse("not a date", time.Now().UTC())
	require.Error(t, err)
}

func TestParseRejectsTrailingGarbage(t *testing.T) {
	_, err := dateparse.Parse("1year and a bit", time.Now().UTC())
	require.Error(t, err)
}
