// Copyright 2025 the original author or authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics holds the prometheus collectors of query execution.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	// RowsScanned counts rows read from storage by table.
	RowsScanned *prometheus.CounterVec
	// Scans counts storage scans by table.
	Scans *prometheus.CounterVec
	// HealthChecks counts cooperative budget checks.
	HealthChecks prometheus.Counter
	// BudgetExceeded counts aborted queries by exhausted resource.
	BudgetExceeded *prometheus.CounterVec
	// Statements counts executed statements by mode and status.
	Statements *prometheus.CounterVec
	// StatementDuration is the latency of statements by mode.
	StatementDuration *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		RowsScanned: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osmrecurse_rows_scanned_total",
				Help: "Total number of rows read from storage",
			},
			[]string{"table"},
		),
		Scans: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osmrecurse_scans_total",
				Help: "Total number of storage scans",
			},
			[]string{"table"},
		),
		HealthChecks: f.NewCounter(prometheus.CounterOpts{
			Name: "osmrecurse_health_checks_total",
			Help: "Total number of cooperative resource checks",
		}),
		BudgetExceeded: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osmrecurse_budget_exceeded_total",
				Help: "Total number of queries aborted for exceeding their budget",
			},
			[]string{"resource"},
		),
		Statements: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "osmrecurse_statements_total",
				Help: "Total number of executed statements",
			},
			[]string{"mode", "status"},
		),
		StatementDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "osmrecurse_statement_duration_seconds",
				Help:    "Statement latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
	}
}
