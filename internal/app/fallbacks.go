package app

import (
	"database/sql"
	"time"

	"shift_sms_gateway/internal/domain/employee"
	"shift_sms_gateway/internal/domain/shift"
)

// Default bodies used when no active template exists for a category.
const (
	fallbackNewShift     = "New shift available: {{date}} {{time}} at {{location}} {{area}} {{bonus}}. Reply YES {{smsCode}} to claim."
	fallbackConfirmation = "Hi {{firstName}}, you're confirmed for {{date}} {{time}} at {{location}}. Reply CONFIRM to acknowledge or CANCEL to release it."
	fallbackReminder     = "Reminder: your shift is {{date}} {{time}} at {{location}} {{area}}."
	fallbackShiftFilled  = "The {{date}} {{time}} shift at {{location}} has been filled. Thanks for your interest! Reply SHIFTS to see what's open."
)

func sampleRenderContext(now time.Time) RenderContext {
	return RenderContext{
		Employee: &employee.Employee{
			FirstName: "Jordan",
			LastName:  sql.NullString{String: "Rivera", Valid: true},
		},
		Shift: &shift.Shift{
			Date:        now.AddDate(0, 0, 1),
			StartTime:   "09:00",
			EndTime:     "17:00",
			AreaName:    "North Wing",
			Location:    "Main Campus",
			Position:    "Server",
			BonusAmount: sql.NullFloat64{Float64: 25, Valid: true},
			SmsCode:     "AB12CD",
			Notes:       sql.NullString{String: "Wear black", Valid: true},
		},
		Message:      "Staff meeting moved to 3 PM.",
		TrainingName: "Food Safety",
	}
}
