// Package metrics exposes Prometheus instruments for the device link, the
// delayed-action planner and the last polled device status.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sous_vide/internal/device"
	"sous_vide/internal/models"
)

const namespace = "sousvide"

type Collector struct {
	linkOpen         prometheus.Gauge
	linkOpens        prometheus.Counter
	linkCloses       *prometheus.CounterVec
	commands         *prometheus.CounterVec
	actionsScheduled *prometheus.CounterVec
	actionsCancelled prometheus.Counter
	jobsFired        *prometheus.CounterVec
	temperature      *prometheus.GaugeVec
	running          prometheus.Gauge
}

// New creates the instruments and registers them on reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		linkOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_open",
			Help:      "1 while the device link is open.",
		}),
		linkOpens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_opens_total",
			Help:      "Successful link opens.",
		}),
		linkCloses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_closes_total",
			Help:      "Link closes by reason.",
		}, []string{"reason"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Device commands by operation and result.",
		}, []string{"op", "result"}),
		actionsScheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_scheduled_total",
			Help:      "Delayed actions accepted, by kind.",
		}, []string{"kind"}),
		actionsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_cancelled_total",
			Help:      "Delayed actions cancelled.",
		}),
		jobsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_fired_total",
			Help:      "Scheduled jobs run, by operation and result.",
		}, []string{"op", "result"}),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature",
			Help:      "Last polled bath temperature in the device unit.",
		}, []string{"kind", "unit"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_running",
			Help:      "1 while the circulator reports running.",
		}),
	}
	reg.MustRegister(
		c.linkOpen,
		c.linkOpens,
		c.linkCloses,
		c.commands,
		c.actionsScheduled,
		c.actionsCancelled,
		c.jobsFired,
		c.temperature,
		c.running,
	)
	return c
}

// NewRegistry returns a registry carrying the Go runtime and build info
// collectors, ready for New and Handler.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewBuildInfoCollector())
	reg.MustRegister(collectors.NewGoCollector())
	return reg
}

// Handler serves the registry in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// connection.Observer

func (c *Collector) LinkOpened() {
	c.linkOpen.Set(1)
	c.linkOpens.Inc()
}

func (c *Collector) LinkClosed(reason string) {
	c.linkOpen.Set(0)
	c.linkCloses.WithLabelValues(reason).Inc()
}

func (c *Collector) CommandSent(op string, err error) {
	c.commands.WithLabelValues(op, result(err)).Inc()
}

// planner

func (c *Collector) ActionScheduled(kind string) {
	c.actionsScheduled.WithLabelValues(kind).Inc()
}

func (c *Collector) ActionCancelled() {
	c.actionsCancelled.Inc()
}

func (c *Collector) JobFired(op string, err error) {
	c.jobsFired.WithLabelValues(op, result(err)).Inc()
}

// JobMissed counts a job skipped for starting too late.
func (c *Collector) JobMissed(op string) {
	c.jobsFired.WithLabelValues(op, "missed").Inc()
}

// PublishStatus makes the collector a status sink. Fields still at the
// "unknown" sentinel leave the gauges untouched.
func (c *Collector) PublishStatus(_ context.Context, st models.DeviceStatus) error {
	if v, err := strconv.ParseFloat(st.CurrentTemp, 64); err == nil {
		c.temperature.WithLabelValues("current", st.Unit).Set(v)
	}
	if v, err := strconv.ParseFloat(st.SetTemp, 64); err == nil {
		c.temperature.WithLabelValues("set", st.Unit).Set(v)
	}
	switch st.State {
	case device.StateRunning:
		c.running.Set(1)
	case device.StateStopped:
		c.running.Set(0)
	}
	return nil
}

func (c *Collector) Close() error { return nil }
