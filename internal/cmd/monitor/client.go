package monitor

import (
	"net/http"

	"github.com/clambin/go-common/http/metrics"
	"github.com/clambin/go-common/http/roundtripper"
	"github.com/prometheus/client_golang/prometheus"
)

func instrumentedClient(application string, registry prometheus.Registerer) *http.Client {
	m := metrics.NewRequestMetrics(metrics.Options{
		Namespace:   "meetinglight",
		Subsystem:   "monitor",
		ConstLabels: prometheus.Labels{"application": application},
	})
	if registry != nil {
		registry.MustRegister(m)
	}
	return &http.Client{
		Transport: roundtripper.New(roundtripper.WithRequestMetrics(m)),
	}
}
