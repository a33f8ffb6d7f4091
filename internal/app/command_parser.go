package app

import (
	"regexp"
	"strings"
	"unicode"
)

// CommandType is the intent recognized in an inbound SMS.
type CommandType string

const (
	CommandInterestYes CommandType = "interest_yes"
	CommandInterestNo  CommandType = "interest_no"
	CommandConfirm     CommandType = "confirm"
	CommandCancel      CommandType = "cancel"
	CommandStatus      CommandType = "status"
	CommandShifts      CommandType = "shifts"
	CommandHelp        CommandType = "help"
	CommandStop        CommandType = "stop"
	CommandStart       CommandType = "start"
	CommandUnknown     CommandType = "unknown"
)

// ParsedCommand is the result of ParseInboundCommand. ShiftCode is set only
// for interest_yes.
type ParsedCommand struct {
	Type      CommandType
	ShiftCode string
	Raw       string
}

type commandRule struct {
	command CommandType
	pattern *regexp.Regexp
}

// Rules are tried in order against the upper-cased, trimmed message.
var commandRules = []commandRule{
	{CommandInterestYes, regexp.MustCompile(`^(YES|Y|INTERESTED|I WANT IT|CLAIM)\b`)},
	{CommandInterestNo, regexp.MustCompile(`^(NO|N|NOT INTERESTED|PASS|DECLINE)\b`)},
	{CommandConfirm, regexp.MustCompile(`^(CONFIRM|CONFIRMED|OK|OKAY)\b`)},
	{CommandCancel, regexp.MustCompile(`^(CANCEL|DROP|RELEASE)\b`)},
	{CommandStatus, regexp.MustCompile(`^(STATUS|MY SHIFTS|SCHEDULE)\b`)},
	{CommandShifts, regexp.MustCompile(`^(SHIFTS|OPEN|AVAILABLE|LIST)\b`)},
	{CommandHelp, regexp.MustCompile(`^(HELP|INFO|\?)`)},
	{CommandStop, regexp.MustCompile(`^(STOP|STOPALL|UNSUBSCRIBE|END|QUIT|OPTOUT|OPT OUT)\b`)},
	{CommandStart, regexp.MustCompile(`^(START|UNSTOP|SUBSCRIBE|OPTIN|OPT IN)\b`)},
}

var (
	shiftCodePattern = regexp.MustCompile(`\b[A-Za-z0-9]{6}\b`)
	innerSpaces      = regexp.MustCompile(`\s+`)
)

// ParseInboundCommand classifies free text. The first matching rule wins.
func ParseInboundCommand(body string) ParsedCommand {
	normalized := strings.ToUpper(strings.TrimSpace(body))
	normalized = innerSpaces.ReplaceAllString(normalized, " ")
	normalized = strings.TrimLeftFunc(normalized, func(r rune) bool {
		return unicode.IsPunct(r) && r != '?'
	})

	for _, rule := range commandRules {
		if !rule.pattern.MatchString(normalized) {
			continue
		}
		cmd := ParsedCommand{Type: rule.command, Raw: body}
		if rule.command == CommandInterestYes {
			cmd.ShiftCode = findShiftCode(body)
		}
		return cmd
	}
	return ParsedCommand{Type: CommandUnknown, Raw: body}
}

// findShiftCode returns the first six-character alphanumeric token, preferring
// one that contains a digit.
func findShiftCode(body string) string {
	candidates := shiftCodePattern.FindAllString(body, -1)
	for _, c := range candidates {
		if strings.IndexFunc(c, unicode.IsDigit) >= 0 {
			return strings.ToUpper(c)
		}
	}
	if len(candidates) > 0 {
		return strings.ToUpper(candidates[0])
	}
	return ""
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}
