package timefmt

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Format renders a number of seconds as H:MM:SS.
// Hours are not padded. Negative values are shown as 0:00:00.
func Format(totalSeconds int64) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

// FormatDuration truncates d to whole seconds and formats it.
func FormatDuration(d time.Duration) string {
	return Format(int64(d / time.Second))
}

// Parse is the inverse of Format.
func Parse(s string) (int64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("timefmt: %q is not H:MM:SS", s)
	}

	h, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || h < 0 {
		return 0, fmt.Errorf("timefmt: bad hours in %q", s)
	}
	if len(parts[1]) != 2 || len(parts[2]) != 2 {
		return 0, fmt.Errorf("timefmt: minutes and seconds must be two digits in %q", s)
	}
	m, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("timefmt: bad minutes in %q", s)
	}
	sec, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("timefmt: bad seconds in %q", s)
	}

	return h*3600 + m*60 + sec, nil
}
