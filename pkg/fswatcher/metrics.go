package fswatcher

import (
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "fswatch"
	metricsSubsystem = "engine"
)

// diagnostics holds the lifetime counters behind Status and the exported
// metrics.
type diagnostics struct {
	rawNotifications atomic.Uint64
	eventsPublished  atomic.Uint64
	eventsDelivered  atomic.Uint64
	eventsDiscarded  atomic.Uint64
	overflows        atomic.Uint64
	lowLevelErrors   atomic.Uint64
	rehomes          atomic.Uint64
}

func (d *diagnostics) snapshot() Diagnostics {
	return Diagnostics{
		RawNotifications: d.rawNotifications.Load(),
		EventsPublished:  d.eventsPublished.Load(),
		EventsDelivered:  d.eventsDelivered.Load(),
		EventsDiscarded:  d.eventsDiscarded.Load(),
		Overflows:        d.overflows.Load(),
		LowLevelErrors:   d.lowLevelErrors.Load(),
		Rehomes:          d.rehomes.Load(),
	}
}

// collectors builds the metrics of w. Values are read on scrape.
func (w *Watcher) collectors() []prometheus.Collector {
	labels := prometheus.Labels{"watcher": w.id}

	counter := func(name, help string, v *atomic.Uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Subsystem:   metricsSubsystem,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(v.Load()) })
	}
	gauge := func(name, help string, f func(Status) int) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Subsystem:   metricsSubsystem,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(f(w.Status())) })
	}

	return []prometheus.Collector{
		counter("raw_notifications_total", "Raw notifications received from the backend.", &w.diag.rawNotifications),
		counter("events_published_total", "Normalized events published.", &w.diag.eventsPublished),
		counter("events_delivered_total", "Events handed to subscribers.", &w.diag.eventsDelivered),
		counter("events_discarded_total", "Events dropped by unwatch, stop or a closed subscription.", &w.diag.eventsDiscarded),
		counter("overflows_total", "Backend queue overflows.", &w.diag.overflows),
		counter("low_level_errors_total", "Backend failures.", &w.diag.lowLevelErrors),
		counter("rehomes_total", "Watch entries moved between directory monitors.", &w.diag.rehomes),
		gauge("directory_monitors", "Open directory registrations.", func(s Status) int { return s.Monitors }),
		gauge("watched_paths", "Watched paths.", func(s Status) int { return s.Entries }),
		gauge("subscriptions", "Open subscriptions.", func(s Status) int { return s.Subscriptions }),
		gauge("ready", "1 while the watcher is ready.", func(s Status) int {
			if s.State == StateReady {
				return 1
			}
			return 0
		}),
	}
}

func (w *Watcher) registerMetrics(reg prometheus.Registerer) error {
	cs := w.collectors()
	for i, c := range cs {
		if err := reg.Register(c); err != nil {
			for _, done := range cs[:i] {
				reg.Unregister(done)
			}
			return fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	w.registered = cs
	return nil
}

func (w *Watcher) unregisterMetrics() {
	if w.config.Registerer == nil {
		return
	}
	for _, c := range w.registered {
		w.config.Registerer.Unregister(c)
	}
	w.registered = nil
}
