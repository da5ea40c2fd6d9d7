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

package recurse

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"m4o.io/osmrecurse/engine"
	"m4o.io/osmrecurse/set"
)

// Name is the name the statement is registered under.
const Name = "recurse"

var defaultAttributes = map[string]string{
	"from":            engine.DefaultSet,
	"into":            engine.DefaultSet,
	"type":            "",
	"role":            "",
	"role-restricted": "no",
}

// Statement derives the set into from the set from along one mode.
type Statement struct {
	line   int
	input  string
	output string
	mode   Mode
	role   *string
}

// NewStatement builds a statement from its attributes: from, into, type,
// role and role-restricted. A role, or role-restricted=yes which stands
// for the empty role, is only accepted for modes supporting one.
func NewStatement(line int, attrs map[string]string) (*Statement, error) {
	var errs *multierror.Error

	a, err := engine.EvalAttributes(Name, line, defaultAttributes, attrs)
	if err != nil {
		errs = multierror.Append(errs, err)
	}

	s := &Statement{line: line, input: a["from"], output: a["into"]}

	s.mode, err = ParseMode(a["type"])
	if err != nil {
		errs = multierror.Append(errs, engine.NewStaticError(Name, line,
			"for the attribute \"type\" of the element %q the only allowed values are %s",
			Name, quotedModes()))
	}

	if a["role"] != "" || a["role-restricted"] == "yes" {
		if s.mode.SupportsRole() {
			role := a["role"]
			s.role = &role
		} else if s.mode != 0 {
			errs = multierror.Append(errs, engine.NewStaticError(Name, line,
				"a role can only be specified for the types %s", quotedRoleModes()))
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	return s, nil
}

func quotedModes() string {
	return quoteModes(Modes())
}

func quotedRoleModes() string {
	var modes []Mode
	for _, m := range Modes() {
		if m.SupportsRole() {
			modes = append(modes, m)
		}
	}

	return quoteModes(modes)
}

func quoteModes(modes []Mode) string {
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = `"` + m.String() + `"`
	}

	return strings.Join(names, ", ")
}

// Register makes the statement known to reg.
func Register(reg *engine.Registry) error {
	return reg.Register(Name, func(line int, attrs map[string]string) (engine.Statement, error) {
		s, err := NewStatement(line, attrs)
		if err != nil {
			return nil, err
		}

		return s, nil
	})
}

func (s *Statement) Name() string { return Name }

func (s *Statement) Line() int { return s.line }

// Mode returns the traversal the statement runs.
func (s *Statement) Mode() Mode { return s.mode }

// Input returns the name of the set read.
func (s *Statement) Input() string { return s.input }

// Output returns the name of the set written.
func (s *Statement) Output() string { return s.output }

// Role returns the role the traversal is restricted to, nil for none.
func (s *Statement) Role() *string { return s.role }

// Execute runs the traversal and replaces the output set with its result.
// On error the output set is left untouched.
func (s *Statement) Execute(ctx context.Context, rt *engine.Runtime) (err error) {
	start := time.Now()

	defer func() {
		if rt.Metrics == nil {
			return
		}

		status := "ok"
		if err != nil {
			status = "error"
		}

		rt.Metrics.Statements.WithLabelValues(s.mode.String(), status).Inc()
		rt.Metrics.StatementDuration.WithLabelValues(s.mode.String()).Observe(time.Since(start).Seconds())
	}()

	into := set.New()

	if source, ok := rt.Input(s.input); ok {
		into, err = NewWalker(rt, s).Recurse(ctx, s.mode, source, Options{Role: s.role, Timestamp: rt.Timestamp})
		if err != nil {
			return err
		}
	}

	rt.Output(s.output, into)

	rt.Logger().Debug("statement executed",
		"statement", Name, "line", s.line, "type", s.mode.String(),
		"from", s.input, "into", s.output,
		"nodes", into.Nodes.Count(), "ways", into.Ways.Count(), "relations", into.Relations.Count(),
		"attic_nodes", into.AtticNodes.Count())

	return rt.Checker.Check(s)
}

// Constraint returns the statement in its role as a restriction of another
// query.
func (s *Statement) Constraint() *Constraint {
	return &Constraint{stmt: s}
}
