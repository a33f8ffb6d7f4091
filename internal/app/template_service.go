package app

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"shift_sms_gateway/internal/domain/employee"
	"shift_sms_gateway/internal/domain/shift"
	"shift_sms_gateway/internal/domain/template"
	idb "shift_sms_gateway/internal/infra/database"

	"github.com/sirupsen/logrus"
)

// MaxTemplateLength is roughly ten SMS segments.
const MaxTemplateLength = 1600

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

var (
	commonVariables = []string{"employeeName", "firstName"}
	shiftVariables  = []string{"date", "startTime", "endTime", "time", "location", "area", "position", "bonus", "smsCode", "claimLink", "notes"}
)

// allowedVariables returns the whitelist for a category, or nil for an unknown category.
func allowedVariables(category template.Category) map[string]bool {
	var vars []string
	switch category {
	case template.CategoryShiftNotification, template.CategoryShiftRepost, template.CategoryShiftConfirmation,
		template.CategoryShiftReminder, template.CategoryShiftInterest, template.CategoryShiftCancellation:
		vars = append(append(vars, commonVariables...), shiftVariables...)
	case template.CategoryTrainingReminder:
		vars = append(append(vars, commonVariables...), "trainingName", "date", "time", "location")
	case template.CategoryWelcome:
		vars = append(vars, commonVariables...)
	case template.CategoryGeneral:
		vars = append(append(vars, commonVariables...), "message")
	default:
		return nil
	}
	set := make(map[string]bool, len(vars))
	for _, v := range vars {
		set[v] = true
	}
	return set
}

// RenderContext supplies the values a template can reference.
type RenderContext struct {
	Shift        *shift.Shift
	Employee     *employee.Employee
	Message      string
	TrainingName string
}

// ValidationResult reports template problems. Warnings do not make a template invalid.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

type TemplateService struct {
	templateRepo template.Repository
	baseURL      string
	now          func() time.Time
	logger       *logrus.Entry
}

func NewTemplateService(tr template.Repository, baseURL string, logger *logrus.Entry) *TemplateService {
	return &TemplateService{
		templateRepo: tr,
		baseURL:      strings.TrimRight(baseURL, "/"),
		now:          time.Now,
		logger:       logger.WithField("component", "template_service"),
	}
}

func (s *TemplateService) variables(rc RenderContext) map[string]string {
	vars := map[string]string{}
	if e := rc.Employee; e != nil {
		vars["employeeName"] = e.FullName()
		vars["firstName"] = e.FirstName
	}
	if sh := rc.Shift; sh != nil {
		vars["date"] = formatRelativeDate(sh.Date, s.now())
		vars["startTime"] = formatClock(sh.StartTime)
		vars["endTime"] = formatClock(sh.EndTime)
		vars["time"] = formatTimeWindow(sh)
		vars["location"] = sh.Location
		vars["area"] = formatArea(sh)
		vars["position"] = sh.Position
		vars["bonus"] = formatBonus(sh)
		vars["smsCode"] = sh.SmsCode
		if sh.Notes.Valid {
			vars["notes"] = sh.Notes.String
		}
		if s.baseURL != "" && sh.SmsCode != "" {
			vars["claimLink"] = s.baseURL + "/claim/" + sh.SmsCode
		}
	}
	if rc.Message != "" {
		vars["message"] = rc.Message
	}
	if rc.TrainingName != "" {
		vars["trainingName"] = rc.TrainingName
	}
	return vars
}

// RenderTemplate substitutes {{name}} tokens. Tokens without a value are left
// verbatim so broken templates stay visible in the output. A token whose value
// is empty takes one adjoining blank with it; all other text is copied as is.
func (s *TemplateService) RenderTemplate(content string, rc RenderContext) string {
	vars := s.variables(rc)
	out := make([]byte, 0, len(content))
	last := 0
	for _, loc := range placeholderPattern.FindAllStringSubmatchIndex(content, -1) {
		out = append(out, content[last:loc[0]]...)
		last = loc[1]
		v, ok := vars[content[loc[2]:loc[3]]]
		switch {
		case !ok:
			out = append(out, content[loc[0]:loc[1]]...)
		case v != "":
			out = append(out, v...)
		default:
			out, last = dropEmptySlot(out, content, last)
		}
	}
	return string(append(out, content[last:]...))
}

// dropEmptySlot removes the blank that separated an empty value from its
// neighbours: the one before it when the slot is followed by a blank,
// punctuation or a line end, otherwise the one after it at a line start.
func dropEmptySlot(out []byte, content string, next int) ([]byte, int) {
	atLineStart := len(out) == 0 || out[len(out)-1] == '\n'
	if atLineStart {
		for next < len(content) && isBlank(content[next]) {
			next++
		}
		return out, next
	}
	if !isBlank(out[len(out)-1]) {
		return out, next
	}
	if next == len(content) || isBlank(content[next]) || strings.IndexByte(".,!?;:\n\r", content[next]) >= 0 {
		for len(out) > 0 && isBlank(out[len(out)-1]) {
			out = out[:len(out)-1]
		}
	}
	return out, next
}

func isBlank(c byte) bool { return c == ' ' || c == '\t' }

// ValidateTemplate checks variables against the category whitelist and brace balance.
func (s *TemplateService) ValidateTemplate(content string, category template.Category) ValidationResult {
	result := ValidationResult{}

	if strings.TrimSpace(content) == "" {
		result.Errors = append(result.Errors, "template content is empty")
	}

	allowed := allowedVariables(category)
	if allowed == nil {
		result.Errors = append(result.Errors, fmt.Sprintf("unknown template category %q", category))
	}

	if msg := checkBraces(content); msg != "" {
		result.Errors = append(result.Errors, msg)
	}

	if allowed != nil {
		seen := map[string]bool{}
		for _, m := range placeholderPattern.FindAllStringSubmatch(content, -1) {
			name := m[1]
			if !allowed[name] && !seen[name] {
				seen[name] = true
				result.Errors = append(result.Errors, fmt.Sprintf("unknown variable {{%s}} for category %s", name, category))
			}
		}
	}

	if n := len([]rune(content)); n > MaxTemplateLength {
		result.Warnings = append(result.Warnings, fmt.Sprintf("template is %d characters, longer than %d (about 10 SMS segments)", n, MaxTemplateLength))
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func checkBraces(content string) string {
	open := false
	for i := 0; i < len(content)-1; i++ {
		pair := content[i : i+2]
		switch {
		case pair == "{{":
			if open {
				return fmt.Sprintf("nested or unclosed '{{' at position %d", i)
			}
			open = true
			i++
		case pair == "}}":
			if !open {
				return fmt.Sprintf("unmatched '}}' at position %d", i)
			}
			open = false
			i++
		}
	}
	if open {
		return "unclosed '{{' placeholder"
	}
	return ""
}

// GetRenderedTemplate renders the active template of a category. ok is false
// when no template exists, so callers can fall back to a default message.
func (s *TemplateService) GetRenderedTemplate(ctx context.Context, category template.Category, rc RenderContext) (string, bool) {
	t, err := s.templateRepo.GetActiveByCategory(ctx, category)
	if err != nil {
		if !errors.Is(err, idb.ErrTemplateNotFound) {
			s.logger.WithError(err).WithField("category", category).Error("Failed to load SMS template")
		}
		return "", false
	}
	return s.RenderTemplate(t.Content, rc), true
}

// PreviewTemplate renders content against sample data and validates it.
func (s *TemplateService) PreviewTemplate(content string, category template.Category) (string, ValidationResult) {
	return s.RenderTemplate(content, sampleRenderContext(s.now())), s.ValidateTemplate(content, category)
}

// AvailableVariables lists the whitelist for a category in sorted order.
func AvailableVariables(category template.Category) []string {
	allowed := allowedVariables(category)
	out := make([]string, 0, len(allowed))
	for v := range allowed {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
