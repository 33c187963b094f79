package monitor

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/clambin/go-common/charmer"
	"github.com/clambin/go-common/slackbot"
	"github.com/clambin/go-common/taskmanager"
	"github.com/clambin/go-common/taskmanager/httpserver"
	promserver "github.com/clambin/go-common/taskmanager/prometheus"
	"github.com/clambin/meeting-light/internal/bot"
	"github.com/clambin/meeting-light/internal/calendar"
	"github.com/clambin/meeting-light/internal/collector"
	"github.com/clambin/meeting-light/internal/govee"
	"github.com/clambin/meeting-light/internal/health"
	"github.com/clambin/meeting-light/internal/meeting"
	"github.com/clambin/meeting-light/internal/palette"
	"github.com/clambin/meeting-light/internal/poller"
	"github.com/clambin/meeting-light/internal/probe"
	"github.com/clambin/meeting-light/internal/reconciler"
	"github.com/clambin/meeting-light/pkg/backoff"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Cmd = cobra.Command{
	Use:   "monitor",
	Short: "Monitor the calendar and drive the light",
	RunE:  run,
}

func run(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := charmer.GetLogger(cmd)
	logger.Info("meeting-light starting", "version", cmd.Root().Version)
	defer logger.Info("meeting-light stopped")

	m, err := New(viper.GetViper(), cmd.Root().Version, prometheus.DefaultRegisterer, logger)
	if err != nil {
		return err
	}
	return m.Run(ctx)
}

func New(cfg *viper.Viper, version string, registry prometheus.Registerer, logger *slog.Logger) (*taskmanager.Manager, error) {
	source, err := makeSource(cfg, registry)
	if err != nil {
		return nil, err
	}

	device, err := makeDevice(cfg, registry, logger)
	if err != nil {
		return nil, err
	}

	// Do we have a custom light palette?
	pal, err := maybeLoadPalette(filepath.Join(filepath.Dir(cfg.ConfigFileUsed()), "lights.yaml"))
	if err != nil {
		return nil, err
	}

	return taskmanager.New(makeTasks(cfg, source, device, pal, version, registry, logger)...), nil
}

func makeSource(cfg *viper.Viper, registry prometheus.Registerer) (calendar.Source, error) {
	httpClient := instrumentedClient("calendar", registry)
	switch src := cfg.GetString("calendar.source"); src {
	case "google":
		apiKey := cfg.GetString("calendar.google.apikey")
		calendarID := cfg.GetString("calendar.google.calendarid")
		if apiKey == "" || calendarID == "" {
			return nil, errors.New("calendar: google source needs an api key and a calendar id")
		}
		return &calendar.GoogleClient{APIKey: apiKey, CalendarID: calendarID, HTTPClient: httpClient}, nil
	case "ical":
		feedURL := cfg.GetString("calendar.ical.url")
		if feedURL == "" {
			return nil, errors.New("calendar: ical source needs a feed url")
		}
		return &calendar.FeedClient{URL: feedURL, HTTPClient: httpClient}, nil
	default:
		return nil, fmt.Errorf("calendar: unknown source %q", src)
	}
}

func makeDevice(cfg *viper.Viper, registry prometheus.Registerer, logger *slog.Logger) (*govee.Client, error) {
	apiKey := cfg.GetString("govee.apikey")
	device := cfg.GetString("govee.device")
	model := cfg.GetString("govee.model")
	if apiKey == "" || device == "" || model == "" {
		return nil, errors.New("govee: needs an api key, a device address and a model")
	}

	policy := backoff.Policy{
		MaxAttempts: cfg.GetInt("retry.attempts"),
		BaseDelay:   cfg.GetDuration("retry.delay"),
		MaxDelay:    30 * time.Second,
		Timeout:     cfg.GetDuration("retry.timeout"),
	}

	return govee.NewClient(apiKey, device, model, policy,
		logger.With(slog.String("component", "govee")),
		govee.WithHTTPClient(instrumentedClient("govee", registry)),
	), nil
}

func maybeLoadPalette(path string) (palette.Palette, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return palette.Default(), nil
		}
		return nil, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	return palette.Load(f)
}

// settingsReloader re-reads the palette and thresholds so the bot's reload
// command picks up configuration changes without a restart.
type settingsReloader struct {
	cfg        *viper.Viper
	reconciler *reconciler.Reconciler
}

func (s settingsReloader) Reload() error {
	pal, err := maybeLoadPalette(filepath.Join(filepath.Dir(s.cfg.ConfigFileUsed()), "lights.yaml"))
	if err != nil {
		return err
	}
	s.reconciler.SetTuning(meeting.Thresholds{
		Soon:     s.cfg.GetDuration("meeting.soon"),
		Imminent: s.cfg.GetDuration("meeting.imminent"),
	}, pal)
	s.reconciler.Invalidate()
	return nil
}

func makeTasks(cfg *viper.Viper, source calendar.Source, device *govee.Client, pal palette.Palette, version string, registry prometheus.Registerer, l *slog.Logger) []taskmanager.Task {
	var tasks []taskmanager.Task

	// Poller
	p := poller.New(source, cfg.GetDuration("poller.interval"), l.With("component", "poller"))
	tasks = append(tasks, p)

	// Light health probes
	probes := probe.New(device, cfg.GetDuration("monitor.interval"), l.With("component", "probe"))
	tasks = append(tasks, probes)

	// Slackbot
	var b *slackbot.SlackBot
	notifier := reconciler.Notifiers{reconciler.SLogNotifier{Logger: l.With("component", "notifier")}}
	if cfg.GetBool("slack.enabled") {
		if token := cfg.GetString("slack.token"); token != "" {
			b = slackbot.New(
				token,
				slackbot.WithName("meeting-light "+version),
				slackbot.WithLogger(l.With(slog.String("component", "slackbot"))),
			)
			tasks = append(tasks, b)
			notifier = append(notifier, &reconciler.SlackNotifier{
				Bot:     b,
				Channel: cfg.GetString("slack.channel"),
				Logger:  l.With(slog.String("component", "slack-notifier")),
			})
		} else {
			l.Warn("slack is enabled but no token is set. slack will not run")
		}
	}

	// Reconciler
	thresholds := meeting.Thresholds{
		Soon:     cfg.GetDuration("meeting.soon"),
		Imminent: cfg.GetDuration("meeting.imminent"),
	}
	r := reconciler.New(p, probes, device, cfg.GetDuration("poller.interval"), thresholds, pal, notifier, l.With("component", "reconciler"))
	tasks = append(tasks, r)

	// Slack commands
	if b != nil {
		bot.New(b, r, settingsReloader{cfg: cfg, reconciler: r}, l)
	}

	// Collector
	if registry != nil {
		registry.MustRegister(&collector.Collector{Reporter: r})
	}

	// Prometheus Server
	tasks = append(tasks, promserver.New(promserver.WithAddr(cfg.GetString("exporter.addr"))))

	// Health Endpoint
	mux := http.NewServeMux()
	mux.Handle("/health", &health.Health{Reporter: r})
	tasks = append(tasks, httpserver.New(cfg.GetString("health.addr"), mux))

	return tasks
}
