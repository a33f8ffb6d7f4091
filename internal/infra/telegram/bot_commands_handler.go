package telegram

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterBotCommands wires /start and /help.
func RegisterBotCommands(b *telebot.Bot, adminTelegramID int64, baseLogger *logrus.Entry) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		logCtx := startHelpLogger.WithField("command", "/start").WithField("sender_id", c.Sender().ID)
		logCtx.Info("Processing /start command")
		return c.Send(startText(c.Sender().ID, adminTelegramID, c.Sender().FirstName))
	})

	b.Handle("/help", func(c telebot.Context) error {
		logCtx := startHelpLogger.WithField("command", "/help").WithField("sender_id", c.Sender().ID)
		logCtx.Info("Processing /help command")
		if c.Sender().ID != adminTelegramID {
			return c.Send("No commands are available to you.")
		}
		return c.Send(adminHelpText(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	})
}

func startText(senderID, adminTelegramID int64, firstName string) string {
	if senderID == adminTelegramID {
		return fmt.Sprintf("Hi %s! Employee replies that need attention will show up here. Use /help for the command list.", firstName)
	}
	return "Hi! This bot relays staffing SMS to the shift supervisor and only answers the supervisor."
}

func adminHelpText() string {
	var helpText strings.Builder
	helpText.WriteString("Supervisor commands:\n\n")
	helpText.WriteString("`/send_sms <EmployeeID> <text>`\n - Text one employee.\n\n")
	helpText.WriteString("`/broadcast <all|ID,ID,...> <text>`\n - Text several employees, or everyone opted in.\n\n")
	helpText.WriteString("`/test_sms <phone>`\n - Check the provider credentials with a test message.\n\n")
	helpText.WriteString("`/reprocess_reminders [hours]`\n - Send missing reminders for shifts in the next hours (default 24).\n\n")
	helpText.WriteString("`/sms_provider`\n - Show the active SMS provider.\n\n")
	helpText.WriteString("`/sms_provider_switch <twilio|ringcentral>`\n - Switch carrier using the credentials configured on the server.\n\n")
	helpText.WriteString("`/preview_template <category> <content>`\n - Render a template with sample data and validate it.\n\n")
	helpText.WriteString("`/help`\n - Show this message.")
	return helpText.String()
}
