// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus instruments.
//
// # Thread Safety
//
// Safe for concurrent use; Prometheus collectors are internally synchronized.
type Metrics struct {
	AppliesTotal     *prometheus.CounterVec
	RevertsTotal     prometheus.Counter
	ProposalsTotal   prometheus.Counter
	VerifyRunsTotal  *prometheus.CounterVec
	RepairAttempts   prometheus.Counter
	FilesWritten     prometheus.Counter
	ApplyDurationSec prometheus.Histogram
}

// NewMetrics creates and registers the engine metrics. A nil registry uses
// the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		AppliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drydock",
			Name:      "applies_total",
			Help:      "Apply operations by result.",
		}, []string{"result"}),
		RevertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "drydock",
			Name:      "reverts_total",
			Help:      "Revert operations.",
		}),
		ProposalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "drydock",
			Name:      "proposals_admitted_total",
			Help:      "Proposals admitted to the stack.",
		}),
		VerifyRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drydock",
			Name:      "verification_runs_total",
			Help:      "Verification pipeline runs by result.",
		}, []string{"result"}),
		RepairAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "drydock",
			Name:      "repair_attempts_total",
			Help:      "Auto-repair patches generated and applied.",
		}),
		FilesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "drydock",
			Name:      "files_written_total",
			Help:      "Files written by apply operations.",
		}),
		ApplyDurationSec: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "drydock",
			Name:      "apply_duration_seconds",
			Help:      "Wall time of apply operations.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.AppliesTotal,
		m.RevertsTotal,
		m.ProposalsTotal,
		m.VerifyRunsTotal,
		m.RepairAttempts,
		m.FilesWritten,
		m.ApplyDurationSec,
	)
	return m
}
