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

package engine

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var (
	ErrStatic           = errors.New("static error")
	ErrUnknownStatement = errors.New("unknown statement")
)

// StaticError is a mistake in a query found before anything runs.
type StaticError struct {
	Statement string
	Line      int
	Msg       string
}

func (e *StaticError) Error() string {
	return fmt.Sprintf("line %d: static error: %s", e.Line, e.Msg)
}

func (e *StaticError) Unwrap() error {
	return ErrStatic
}

// NewStaticError formats a StaticError.
func NewStaticError(stmt string, line int, format string, args ...any) *StaticError {
	return &StaticError{Statement: stmt, Line: line, Msg: fmt.Sprintf(format, args...)}
}

// EvalAttributes returns the defaults overridden by input. Every input
// attribute without a default is reported as a StaticError.
func EvalAttributes(stmt string, line int, defaults, input map[string]string) (map[string]string, error) {
	attrs := maps.Clone(defaults)

	var errs *multierror.Error

	for _, k := range slices.Sorted(maps.Keys(input)) {
		if _, ok := defaults[k]; !ok {
			errs = multierror.Append(errs, NewStaticError(stmt, line,
				"unknown attribute %q for the element %q; allowed are %s",
				k, stmt, strings.Join(quoted(slices.Sorted(maps.Keys(defaults))), ", ")))

			continue
		}

		attrs[k] = input[k]
	}

	return attrs, errs.ErrorOrNil()
}

func quoted(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}

	return out
}

// Maker builds a statement from the attributes read at line.
type Maker func(line int, attrs map[string]string) (Statement, error)

// Registry maps statement names to their makers. Build one at startup and
// hand it to whatever reads queries.
type Registry struct {
	makers map[string]Maker
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{makers: make(map[string]Maker)}
}

// Register adds a maker. Registering a name twice is an error.
func (r *Registry) Register(name string, m Maker) error {
	if _, ok := r.makers[name]; ok {
		return fmt.Errorf("statement %q already registered", name)
	}

	r.makers[name] = m

	return nil
}

// Names returns the registered names in order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.makers))
}

// Make builds the named statement.
func (r *Registry) Make(name string, line int, attrs map[string]string) (Statement, error) {
	m, ok := r.makers[name]
	if !ok {
		return nil, fmt.Errorf("line %d: %w %q", line, ErrUnknownStatement, name)
	}

	return m(line, attrs)
}
