package cmd

import (
	"log/slog"
	"os"
	"time"

	"github.com/clambin/go-common/charmer"
	"github.com/clambin/meeting-light/internal/cmd/monitor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configFilename string
	RootCmd        = cobra.Command{
		Use:   "meeting-light",
		Short: "Drives a smart light from your meeting calendar",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			charmer.SetJSONLogger(cmd, viper.GetBool("debug"))
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&configFilename, "config", "", "Configuration file")
	RootCmd.PersistentFlags().Bool("debug", false, "Log debug messages")
	_ = viper.BindPFlag("debug", RootCmd.PersistentFlags().Lookup("debug"))

	RootCmd.AddCommand(&monitor.Cmd)
}

var args = charmer.Arguments{
	"debug":                      charmer.Argument{Default: false, Help: "Log debug messages"},
	"poller.interval":            charmer.Argument{Default: 60 * time.Second, Help: "Calendar poll interval"},
	"monitor.interval":           charmer.Argument{Default: 5 * time.Minute, Help: "Light health check interval"},
	"meeting.soon":               charmer.Argument{Default: 10 * time.Minute, Help: "Warn this long before a meeting"},
	"meeting.imminent":           charmer.Argument{Default: time.Minute, Help: "Final warning this long before a meeting"},
	"retry.attempts":             charmer.Argument{Default: 3, Help: "Number of attempts per light command"},
	"retry.delay":                charmer.Argument{Default: 2 * time.Second, Help: "Initial delay between attempts"},
	"retry.timeout":              charmer.Argument{Default: 10 * time.Second, Help: "Timeout per attempt"},
	"calendar.source":            charmer.Argument{Default: "google", Help: "Calendar source (google or ical)"},
	"calendar.google.apikey":     charmer.Argument{Default: "", Help: "Google Calendar API key"},
	"calendar.google.calendarid": charmer.Argument{Default: "", Help: "Google Calendar ID"},
	"calendar.ical.url":          charmer.Argument{Default: "", Help: "iCalendar feed URL"},
	"govee.apikey":               charmer.Argument{Default: "", Help: "Govee API key"},
	"govee.device":               charmer.Argument{Default: "", Help: "Govee device address"},
	"govee.model":                charmer.Argument{Default: "", Help: "Govee device model"},
	"exporter.addr":              charmer.Argument{Default: ":9090", Help: "Address of Prometheus exporter"},
	"health.addr":                charmer.Argument{Default: ":8080", Help: "Address of /health endpoint"},
	"slack.enabled":              charmer.Argument{Default: false, Help: "Enable Slack notifications"},
	"slack.token":                charmer.Argument{Default: "", Help: "Slack token"},
	"slack.channel":              charmer.Argument{Default: "", Help: "Slack channel for notifications"},
}

func initConfig() {
	if configFilename != "" {
		viper.SetConfigFile(configFilename)
	} else {
		viper.AddConfigPath("/etc/meeting-light/")
		viper.AddConfigPath("$HOME/.meeting-light")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
	}

	if err := charmer.SetDefaults(viper.GetViper(), args); err != nil {
		panic("failed to set viper defaults: " + err.Error())
	}

	viper.SetEnvPrefix("MEETING_LIGHT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		slog.Error("failed to read config file", "err", err)
		os.Exit(1)
	}
}
