package telegram

import (
	"context"
	"errors"

	"gopkg.in/telebot.v3"
)

// sender is the part of *telebot.Bot used to deliver messages.
type sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// SupervisorNotifier forwards employee replies that need a human to the supervisor chat.
type SupervisorNotifier struct {
	bot          sender
	supervisorID int64
}

func NewSupervisorNotifier(b sender, supervisorID int64) *SupervisorNotifier {
	return &SupervisorNotifier{bot: b, supervisorID: supervisorID}
}

func (n *SupervisorNotifier) NotifySupervisor(_ context.Context, text string) error {
	if n.supervisorID == 0 {
		return errors.New("supervisor chat is not configured")
	}
	recipient := &telebot.User{ID: n.supervisorID}
	_, err := n.bot.Send(recipient, text, &telebot.SendOptions{DisableWebPagePreview: true})
	return err
}
