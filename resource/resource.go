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

// Package resource enforces the time, row and memory budget of one query.
package resource

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"m4o.io/osmrecurse/internal/metrics"
)

var ErrBudgetExceeded = errors.New("resource budget exceeded")

// Budget bounds a query. A zero limit is unlimited.
type Budget struct {
	MaxDuration time.Duration
	MaxRows     int64
	MaxBytes    int64
}

// ExceededError reports which limit a query ran into, and where.
type ExceededError struct {
	Statement string
	Line      int
	Resource  string
	Limit     int64
	Used      int64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("line %d: %s: %s limit %d exceeded (used %d)",
		e.Line, e.Statement, e.Resource, e.Limit, e.Used)
}

func (e *ExceededError) Unwrap() error {
	return ErrBudgetExceeded
}

// Location identifies the statement performing a check.
type Location interface {
	Name() string
	Line() int
}

type options struct {
	clock   func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Checker.
type Option func(*options)

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithMetrics records checks and exhaustion in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithLogger sets the logger that reports exhaustion.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Checker accumulates the cost of a query and enforces its Budget. It is not
// safe for concurrent use; a query runs on one goroutine.
type Checker struct {
	budget Budget
	start  time.Time
	rows   int64
	bytes  int64
	opts   options
}

// NewChecker starts the clock of a query.
func NewChecker(budget Budget, opts ...Option) *Checker {
	o := options{clock: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Checker{budget: budget, start: o.clock(), opts: o}
}

// Charge adds the cost of retrieved rows.
func (c *Checker) Charge(rows, bytes int64) {
	c.rows += rows
	c.bytes += bytes
}

// Rows returns the rows charged so far.
func (c *Checker) Rows() int64 {
	return c.rows
}

// Bytes returns the bytes charged so far.
func (c *Checker) Bytes() int64 {
	return c.bytes
}

// Elapsed returns the time since the checker was created.
func (c *Checker) Elapsed() time.Duration {
	return c.opts.clock().Sub(c.start)
}

// Check returns an *ExceededError when any limit is exceeded.
func (c *Checker) Check(loc Location) error {
	if c.opts.metrics != nil {
		c.opts.metrics.HealthChecks.Inc()
	}

	var err *ExceededError

	switch {
	case c.budget.MaxDuration > 0 && c.Elapsed() > c.budget.MaxDuration:
		err = c.exceeded(loc, "duration", int64(c.budget.MaxDuration/time.Millisecond), int64(c.Elapsed()/time.Millisecond))
	case c.budget.MaxRows > 0 && c.rows > c.budget.MaxRows:
		err = c.exceeded(loc, "rows", c.budget.MaxRows, c.rows)
	case c.budget.MaxBytes > 0 && c.bytes > c.budget.MaxBytes:
		err = c.exceeded(loc, "bytes", c.budget.MaxBytes, c.bytes)
	default:
		return nil
	}

	c.opts.logger.Warn("query budget exceeded",
		"statement", err.Statement, "line", err.Line, "resource", err.Resource,
		"limit", err.Limit, "used", err.Used)

	if c.opts.metrics != nil {
		c.opts.metrics.BudgetExceeded.WithLabelValues(err.Resource).Inc()
	}

	return err
}

func (c *Checker) exceeded(loc Location, resource string, limit, used int64) *ExceededError {
	return &ExceededError{Statement: loc.Name(), Line: loc.Line(), Resource: resource, Limit: limit, Used: used}
}
