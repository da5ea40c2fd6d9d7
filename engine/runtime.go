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

// Package engine runs query statements against a store.
package engine

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"m4o.io/osmrecurse/internal/metrics"
	"m4o.io/osmrecurse/model"
	"m4o.io/osmrecurse/resource"
	"m4o.io/osmrecurse/set"
	"m4o.io/osmrecurse/storage"
)

// DefaultSet is the set statements read and write unless told otherwise.
const DefaultSet = "_"

// Statement is a node of a query.
type Statement interface {
	// Name is the name the statement is registered under.
	Name() string

	// Line is the line of the query the statement was read from.
	Line() int

	Execute(ctx context.Context, rt *Runtime) error
}

// Runtime is everything one query execution owns: its sets, its budget and
// its view of the store.
type Runtime struct {
	Store     storage.Store
	Sets      *set.Session
	Timestamp model.Timestamp
	Checker   *resource.Checker
	Metrics   *metrics.Metrics
	SessionID uuid.UUID

	logger *slog.Logger
}

type runtimeOptions struct {
	budget    resource.Budget
	timestamp model.Timestamp
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*runtimeOptions)

// WithBudget bounds the query.
func WithBudget(b resource.Budget) RuntimeOption {
	return func(o *runtimeOptions) {
		o.budget = b
	}
}

// WithTimestamp runs the query as of t instead of the current epoch.
func WithTimestamp(t model.Timestamp) RuntimeOption {
	return func(o *runtimeOptions) {
		o.timestamp = t
	}
}

// WithLogger sets the logger of the query.
func WithLogger(l *slog.Logger) RuntimeOption {
	return func(o *runtimeOptions) {
		o.logger = l
	}
}

// WithMetrics records storage scans and statements in m.
func WithMetrics(m *metrics.Metrics) RuntimeOption {
	return func(o *runtimeOptions) {
		o.metrics = m
	}
}

// NewRuntime prepares the execution of one query against store.
func NewRuntime(store storage.Store, opts ...RuntimeOption) *Runtime {
	o := runtimeOptions{timestamp: model.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.New()
	logger := o.logger.With("session", id.String())

	return &Runtime{
		Store:     storage.Instrument(store, o.metrics),
		Sets:      set.NewSession(),
		Timestamp: o.timestamp,
		Checker:   resource.NewChecker(o.budget, resource.WithMetrics(o.metrics), resource.WithLogger(logger)),
		Metrics:   o.metrics,
		SessionID: id,
		logger:    logger,
	}
}

// Logger returns the logger of the query, tagged with its session id.
func (rt *Runtime) Logger() *slog.Logger {
	return rt.logger
}

// Input returns the named set, or false when no statement produced it.
func (rt *Runtime) Input(name string) (*set.Set, bool) {
	return rt.Sets.Get(name)
}

// Output stores s as the named set.
func (rt *Runtime) Output(name string, s *set.Set) {
	rt.Sets.Put(name, s)
}

// Run executes the statements in order and stops at the first error.
func Run(ctx context.Context, rt *Runtime, stmts ...Statement) error {
	for _, stmt := range stmts {
		if err := stmt.Execute(ctx, rt); err != nil {
			return err
		}
	}

	return nil
}
