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

package osmrecurse

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// options provides optional configuration parameters for DB construction.
type options struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
}

// Option configures how we set up the DB.
type Option func(*options)

// WithLogger lets you set the logger of imports and queries.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRegisterer lets you collect query metrics in reg. Without it queries
// record nothing.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}
