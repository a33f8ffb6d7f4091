package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"shift_sms_gateway/internal/domain/shift"
)

// formatRelativeDate renders "Today", "Tomorrow" or "Mon, Jan 2".
func formatRelativeDate(date, now time.Time) string {
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	n := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch int(d.Sub(n).Hours() / 24) {
	case 0:
		return "Today"
	case 1:
		return "Tomorrow"
	}
	return date.Format("Mon, Jan 2")
}

// formatClock turns "14:30" into "2:30 PM". Unparseable input is returned as is.
func formatClock(hhmm string) string {
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return hhmm
	}
	return t.Format("3:04 PM")
}

func formatTimeWindow(s *shift.Shift) string {
	return formatClock(s.StartTime) + " - " + formatClock(s.EndTime)
}

// formatBonus renders "$50 bonus", or "" when there is none.
func formatBonus(s *shift.Shift) string {
	if !s.BonusAmount.Valid || s.BonusAmount.Float64 <= 0 {
		return ""
	}
	amount := s.BonusAmount.Float64
	if amount == float64(int64(amount)) {
		return "$" + strconv.FormatInt(int64(amount), 10) + " bonus"
	}
	return fmt.Sprintf("$%.2f bonus", amount)
}

func formatArea(s *shift.Shift) string {
	if strings.TrimSpace(s.AreaName) == "" {
		return ""
	}
	return "(" + s.AreaName + ")"
}

// shiftSummary is the one-line description used in command replies.
func shiftSummary(s *shift.Shift, now time.Time) string {
	var b strings.Builder
	b.WriteString(formatRelativeDate(s.Date, now))
	b.WriteString(" ")
	b.WriteString(formatTimeWindow(s))
	if s.Location != "" {
		b.WriteString(" at ")
		b.WriteString(s.Location)
	}
	if area := formatArea(s); area != "" {
		b.WriteString(" ")
		b.WriteString(area)
	}
	return b.String()
}
