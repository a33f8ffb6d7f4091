package ringcentral

import (
	"strconv"
	"strings"

	"shift_sms_gateway/internal/domain/sms"
)

// ClassifyError maps a RingCentral API or delivery error code. Unknown codes
// are permanent.
func (d *Driver) ClassifyError(code string) sms.ErrorType {
	if t, ok := sms.ClassifyLocal(code); ok {
		return t
	}

	switch strings.ToUpper(code) {
	case "CMN-301", "MSG-304":
		return sms.ErrorRateLimit

	// Platform unavailable, expired token (refreshed on the next attempt),
	// carrier temporarily unreachable.
	case "CMN-201", "CMN-211", "OAU-213", "SMS-CAR-104", "SMS-CAR-199", "SMS-RC-500", "SMS-RC-503":
		return sms.ErrorRecoverable

	// Bad parameters, numbers not owned or not SMS capable, invalid or
	// opted-out destinations, spam rejections.
	case "CMN-101", "CMN-102", "CMN-401", "MSG-240", "MSG-242", "MSG-246", "MSG-247",
		"OAU-251", "SMS-UP-410", "SMS-UP-430", "SMS-UP-431", "SMS-CAR-400", "SMS-CAR-411",
		"SMS-CAR-430", "SMS-CAR-431", "SMS-RC-410", "SMS-RC-413":
		return sms.ErrorPermanent
	}

	if status, ok := strings.CutPrefix(code, "HTTP_"); ok {
		n, err := strconv.Atoi(status)
		switch {
		case err != nil:
		case n == 429:
			return sms.ErrorRateLimit
		case n >= 500:
			return sms.ErrorRecoverable
		}
	}
	return sms.ErrorPermanent
}

func (d *Driver) IsRecoverableError(code string) bool {
	return d.ClassifyError(code).Retryable()
}
