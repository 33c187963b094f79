package bot

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/clambin/go-common/slackbot"
	"github.com/clambin/meeting-light/internal/meeting"
	"github.com/clambin/meeting-light/internal/reconciler"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSlackBot struct {
	commands map[string]slackbot.CommandFunc
}

func (f *fakeSlackBot) Register(name string, command slackbot.CommandFunc) {
	if f.commands == nil {
		f.commands = make(map[string]slackbot.CommandFunc)
	}
	f.commands[name] = command
}

func (f *fakeSlackBot) Run(_ context.Context) error               { return nil }
func (f *fakeSlackBot) Send(_ string, _ []slack.Attachment) error { return nil }

type fakeController struct {
	status      reconciler.Status
	testErr     error
	invalidated bool
}

func (f *fakeController) GetStatus() reconciler.Status      { return f.status }
func (f *fakeController) TestLight(_ context.Context) error { return f.testErr }
func (f *fakeController) Invalidate()                       { f.invalidated = true }

type fakeReloader struct {
	err    error
	called bool
}

func (f *fakeReloader) Reload() error {
	f.called = true
	return f.err
}

func TestBot_ReportStatus(t *testing.T) {
	controller := fakeController{status: reconciler.Status{
		Mode:        reconciler.ModeRunning,
		State:       meeting.StateSoon,
		Applied:     meeting.StateSoon,
		NextMeeting: time.Date(2024, time.November, 5, 9, 0, 0, 0, time.UTC),
	}}
	slackBot := fakeSlackBot{}
	b := New(&slackBot, &controller, &fakeReloader{}, slog.Default())
	require.Contains(t, slackBot.commands, "status")
	require.Contains(t, slackBot.commands, "reload")

	attachments := b.ReportStatus(context.Background())
	require.Len(t, attachments, 1)
	assert.Equal(t, "mode: running\nmeeting: soon\nlight: soon\nnext meeting: Tue 09:00", attachments[0].Text)
}

func TestBot_TestLight(t *testing.T) {
	controller := fakeController{}
	b := New(&fakeSlackBot{}, &controller, nil, slog.Default())

	attachments := b.TestLight(context.Background())
	require.Len(t, attachments, 1)
	assert.Equal(t, "light test succeeded", attachments[0].Text)

	controller.testErr = errors.New("device unreachable")
	attachments = b.TestLight(context.Background())
	require.Len(t, attachments, 1)
	assert.Equal(t, "light test failed: device unreachable", attachments[0].Text)
	assert.Equal(t, "bad", attachments[0].Color)
}

func TestBot_DoRefresh(t *testing.T) {
	controller := fakeController{}
	b := New(&fakeSlackBot{}, &controller, nil, slog.Default())

	attachments := b.DoRefresh(context.Background())
	require.Len(t, attachments, 1)
	assert.Equal(t, "refreshing calendar data", attachments[0].Text)
	assert.True(t, controller.invalidated)
}

func TestBot_Reload(t *testing.T) {
	reloader := fakeReloader{}
	b := New(&fakeSlackBot{}, &fakeController{}, &reloader, slog.Default())

	attachments := b.Reload(context.Background())
	require.Len(t, attachments, 1)
	assert.Equal(t, "settings reloaded", attachments[0].Text)
	assert.True(t, reloader.called)

	reloader.err = errors.New("bad palette")
	attachments = b.Reload(context.Background())
	require.Len(t, attachments, 1)
	assert.Equal(t, "reload failed: bad palette", attachments[0].Text)
	assert.Equal(t, "bad", attachments[0].Color)
}
