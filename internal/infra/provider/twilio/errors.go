package twilio

import (
	"strconv"
	"strings"

	"shift_sms_gateway/internal/domain/sms"
)

// ClassifyError maps a Twilio error code. Unknown codes are permanent.
func (d *Driver) ClassifyError(code string) sms.ErrorType {
	if t, ok := sms.ClassifyLocal(code); ok {
		return t
	}

	switch code {
	// Too many requests, queue limits, A2P throughput caps.
	case "20429", "14107", "30022", "30027":
		return sms.ErrorRateLimit

	// Temporary carrier or platform conditions.
	case "20500", "20503", "30001", "30003", "30008", "30009", "30017":
		return sms.ErrorRecoverable

	// Invalid or unreachable destinations, opt-outs, blocked content, account problems.
	case "20003", "20404", "21211", "21408", "21606", "21610", "21612", "21614", "21617",
		"30002", "30004", "30005", "30006", "30007", "30010", "30034":
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
