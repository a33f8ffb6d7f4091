package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"shift_sms_gateway/internal/domain/settings"

	"github.com/sirupsen/logrus"
)

const (
	defaultQuietStart = "22:00"
	defaultQuietEnd   = "07:00"
)

func parseClock(hhmm string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", hhmm, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// IsQuietHours reports whether now falls in [start, end). A window whose start
// is after its end wraps past midnight. Equal bounds mean no quiet period.
func IsQuietHours(start, end string, now time.Time) (bool, error) {
	s, err := parseClock(start)
	if err != nil {
		return false, err
	}
	e, err := parseClock(end)
	if err != nil {
		return false, err
	}
	m := now.Hour()*60 + now.Minute()
	switch {
	case s == e:
		return false, nil
	case s < e:
		return m >= s && m < e, nil
	default:
		return m >= s || m < e, nil
	}
}

// featureFlags reads the SMS toggles from the settings store. Missing keys use
// the given default; read errors are logged and also fall back to it.
type featureFlags struct {
	repo   settings.Repository
	logger *logrus.Entry
}

func (f featureFlags) value(ctx context.Context, key, def string) string {
	if f.repo == nil {
		return def
	}
	v, ok, err := f.repo.Get(ctx, key)
	if err != nil {
		f.logger.WithError(err).WithField("key", key).Warn("Failed to read setting, using default")
		return def
	}
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func (f featureFlags) enabled(ctx context.Context, key string, def bool) bool {
	b, err := strconv.ParseBool(f.value(ctx, key, strconv.FormatBool(def)))
	if err != nil {
		return def
	}
	return b
}

// allows checks the master switch and the category flag.
func (f featureFlags) allows(ctx context.Context, key string) bool {
	return f.enabled(ctx, settings.KeySmsEnabled, true) && f.enabled(ctx, key, true)
}

// quiet reports whether quiet hours are enabled and in effect at now.
func (f featureFlags) quiet(ctx context.Context, now time.Time) bool {
	if !f.enabled(ctx, settings.KeyQuietHoursEnabled, false) {
		return false
	}
	start := f.value(ctx, settings.KeyQuietHoursStart, defaultQuietStart)
	end := f.value(ctx, settings.KeyQuietHoursEnd, defaultQuietEnd)
	q, err := IsQuietHours(start, end, now)
	if err != nil {
		f.logger.WithError(err).Warn("Invalid quiet hours setting, ignoring")
		return false
	}
	return q
}
