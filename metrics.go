// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package reactorbridge

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the per-bridge instrumentation. Collectors are created per
// Bridge instance and only attached to a prometheus.Registerer when the
// embedder asks for it via WithMetricsRegistry, so multiple bridges in one
// process never fight over registration.
type metrics struct {
	tasksSubmitted    prometheus.Counter
	tasksRejected     prometheus.Counter
	tasksCompleted    prometheus.Counter
	tasksCancelled    prometheus.Counter
	faultsRecovered   prometheus.Counter
	dispatchOverflows prometheus.Counter
	deliveriesDropped prometheus.Counter
	queueDepth        prometheus.Gauge
	pendingDeliveries prometheus.Gauge
}

func newMetrics() *metrics {
	return &metrics{
		tasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reactorbridge_tasks_submitted_total",
			Help: "Tasks accepted by the executor pool.",
		}),
		tasksRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reactorbridge_tasks_rejected_total",
			Help: "Submissions rejected because the work queue was full.",
		}),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reactorbridge_tasks_completed_total",
			Help: "Tasks whose outcome was produced by a worker.",
		}),
		tasksCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reactorbridge_tasks_cancelled_total",
			Help: "Tasks cancelled before they started running.",
		}),
		faultsRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reactorbridge_faults_recovered_total",
			Help: "Panics caught at a boundary crossing and converted to errors.",
		}),
		dispatchOverflows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reactorbridge_dispatch_overflows_total",
			Help: "Completion payloads dropped because the dispatch channel was full.",
		}),
		deliveriesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reactorbridge_deliveries_dropped_total",
			Help: "Deliveries discarded because the callback target was gone.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reactorbridge_work_queue_depth",
			Help: "Tasks currently waiting in the work queue.",
		}),
		pendingDeliveries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reactorbridge_pending_deliveries",
			Help: "Messages currently queued in the dispatch channel.",
		}),
	}
}

// register attaches all collectors to reg.
func (m *metrics) register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.tasksSubmitted,
		m.tasksRejected,
		m.tasksCompleted,
		m.tasksCancelled,
		m.faultsRecovered,
		m.dispatchOverflows,
		m.deliveriesDropped,
		m.queueDepth,
		m.pendingDeliveries,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
