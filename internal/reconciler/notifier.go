package reconciler

import (
	"log/slog"

	"github.com/slack-go/slack"
)

// A Notifier informs the user of a state change. Notifications are sent once
// per change, never per tick.
type Notifier interface {
	Notify(message string)
}

// Notifiers fans a notification out to multiple Notifiers.
type Notifiers []Notifier

func (n Notifiers) Notify(message string) {
	for _, notifier := range n {
		notifier.Notify(message)
	}
}

// SLogNotifier logs notifications.
type SLogNotifier struct {
	Logger *slog.Logger
}

func (s SLogNotifier) Notify(message string) {
	s.Logger.Info(message)
}

// SlackSender is the part of slackbot.SlackBot used by SlackNotifier.
type SlackSender interface {
	Send(channel string, attachments []slack.Attachment) error
}

// SlackNotifier posts notifications to a Slack channel.
type SlackNotifier struct {
	Bot     SlackSender
	Channel string
	Logger  *slog.Logger
}

func (s SlackNotifier) Notify(message string) {
	if err := s.Bot.Send(s.Channel, []slack.Attachment{{Color: "good", Text: message}}); err != nil {
		s.Logger.Error("failed to send to slack", "err", err)
	}
}
