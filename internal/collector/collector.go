// Package collector exports the reconciler's status as Prometheus metrics.
package collector

import (
	"github.com/clambin/meeting-light/internal/meeting"
	"github.com/clambin/meeting-light/internal/reconciler"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	meetingStateMetric = prometheus.NewDesc(
		prometheus.BuildFQName("meetinglight", "meeting", "state"),
		"Current meeting state. 1 for the active state, 0 for the others",
		[]string{"state"},
		nil,
	)
	loopModeMetric = prometheus.NewDesc(
		prometheus.BuildFQName("meetinglight", "loop", "mode"),
		"Reconciliation loop mode. 1 for the active mode, 0 for the others",
		[]string{"mode"},
		nil,
	)
	consecutiveFailuresMetric = prometheus.NewDesc(
		prometheus.BuildFQName("meetinglight", "device", "consecutive_failures"),
		"Number of consecutive failed device calls",
		nil,
		nil,
	)
	lastSuccessMetric = prometheus.NewDesc(
		prometheus.BuildFQName("meetinglight", "device", "last_success_timestamp_seconds"),
		"Time of the last successful device call",
		nil,
		nil,
	)
	nextMeetingMetric = prometheus.NewDesc(
		prometheus.BuildFQName("meetinglight", "meeting", "next_timestamp_seconds"),
		"Start time of the next (or current) meeting",
		nil,
		nil,
	)
)

var meetingStates = []meeting.State{meeting.StateIdle, meeting.StateSoon, meeting.StateImminent, meeting.StateActive}
var loopModes = []reconciler.Mode{reconciler.ModeRunning, reconciler.ModeDegraded, reconciler.ModeRecovering}

// StatusReporter returns the current reconciler status.
type StatusReporter interface {
	GetStatus() reconciler.Status
}

// Collector implements prometheus.Collector.
type Collector struct {
	Reporter StatusReporter
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- meetingStateMetric
	ch <- loopModeMetric
	ch <- consecutiveFailuresMetric
	ch <- lastSuccessMetric
	ch <- nextMeetingMetric
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	status := c.Reporter.GetStatus()

	for _, state := range meetingStates {
		ch <- prometheus.MustNewConstMetric(meetingStateMetric, prometheus.GaugeValue, boolValue(status.State == state), state.String())
	}
	for _, mode := range loopModes {
		ch <- prometheus.MustNewConstMetric(loopModeMetric, prometheus.GaugeValue, boolValue(status.Mode == mode), mode.String())
	}
	ch <- prometheus.MustNewConstMetric(consecutiveFailuresMetric, prometheus.GaugeValue, float64(status.Device.ConsecutiveFailures))
	if !status.Device.LastSuccess.IsZero() {
		ch <- prometheus.MustNewConstMetric(lastSuccessMetric, prometheus.GaugeValue, float64(status.Device.LastSuccess.Unix()))
	}
	if !status.NextMeeting.IsZero() {
		ch <- prometheus.MustNewConstMetric(nextMeetingMetric, prometheus.GaugeValue, float64(status.NextMeeting.Unix()))
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
