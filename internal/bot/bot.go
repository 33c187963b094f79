// Package bot implements the Slack commands to inspect and poke the light
// from a chat channel.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clambin/go-common/slackbot"
	"github.com/clambin/meeting-light/internal/reconciler"
	"github.com/slack-go/slack"
)

type Bot struct {
	controller Controller
	reloader   Reloader
	logger     *slog.Logger
}

// Controller is the part of the reconciler the bot talks to.
type Controller interface {
	GetStatus() reconciler.Status
	TestLight(ctx context.Context) error
	Invalidate()
}

// Reloader re-reads the palette and thresholds and pushes them into the
// running reconciler.
type Reloader interface {
	Reload() error
}

// SlackBot registers commands and runs the Slack connection.
type SlackBot interface {
	Register(name string, command slackbot.CommandFunc)
	Run(ctx context.Context) error
	Send(channel string, attachments []slack.Attachment) error
}

func New(slackBot SlackBot, controller Controller, reloader Reloader, logger *slog.Logger) *Bot {
	b := Bot{
		controller: controller,
		reloader:   reloader,
		logger:     logger.With(slog.String("component", "bot")),
	}
	slackBot.Register("status", b.ReportStatus)
	slackBot.Register("test", b.TestLight)
	slackBot.Register("refresh", b.DoRefresh)
	if reloader != nil {
		slackBot.Register("reload", b.Reload)
	}

	return &b
}

func (b *Bot) ReportStatus(_ context.Context, _ ...string) []slack.Attachment {
	status := b.controller.GetStatus()

	text := []string{
		"mode: " + status.Mode.String(),
		"meeting: " + status.State.String(),
		"light: " + status.Applied.String(),
	}
	if !status.NextMeeting.IsZero() {
		text = append(text, "next meeting: "+status.NextMeeting.Format("Mon 15:04"))
	}
	if status.Device.ConsecutiveFailures > 0 {
		text = append(text, fmt.Sprintf("light failures: %d", status.Device.ConsecutiveFailures))
	}

	return []slack.Attachment{{
		Color: "good",
		Title: "status:",
		Text:  strings.Join(text, "\n"),
	}}
}

func (b *Bot) TestLight(ctx context.Context, _ ...string) []slack.Attachment {
	if err := b.controller.TestLight(ctx); err != nil {
		return []slack.Attachment{{
			Color: "bad",
			Text:  "light test failed: " + err.Error(),
		}}
	}
	return []slack.Attachment{{
		Color: "good",
		Text:  "light test succeeded",
	}}
}

func (b *Bot) Reload(_ context.Context, _ ...string) []slack.Attachment {
	if err := b.reloader.Reload(); err != nil {
		return []slack.Attachment{{
			Color: "bad",
			Text:  "reload failed: " + err.Error(),
		}}
	}
	return []slack.Attachment{{
		Color: "good",
		Text:  "settings reloaded",
	}}
}

func (b *Bot) DoRefresh(_ context.Context, _ ...string) []slack.Attachment {
	b.controller.Invalidate()
	return []slack.Attachment{{
		Text: "refreshing calendar data",
	}}
}
