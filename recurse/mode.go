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
	"errors"
	"fmt"
)

var ErrUnknownMode = errors.New("unknown recurse type")

// Mode is the direction and kinds of a traversal.
type Mode int

const (
	RelationRelation Mode = iota + 1
	RelationBackwards
	RelationWay
	RelationNode
	WayNode
	WayRelation
	NodeRelation
	NodeWay
	Down
	DownRel
	Up
	UpRel
)

var modeNames = map[Mode]string{
	RelationRelation:  "relation-relation",
	RelationBackwards: "relation-backwards",
	RelationWay:       "relation-way",
	RelationNode:      "relation-node",
	WayNode:           "way-node",
	WayRelation:       "way-relation",
	NodeRelation:      "node-relation",
	NodeWay:           "node-way",
	Down:              "down",
	DownRel:           "down-rel",
	Up:                "up",
	UpRel:             "up-rel",
}

// Modes lists every mode in declaration order.
func Modes() []Mode {
	return []Mode{
		RelationRelation, RelationBackwards, RelationWay, RelationNode,
		WayNode, WayRelation, NodeRelation, NodeWay,
		Down, DownRel, Up, UpRel,
	}
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}

	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode returns the mode named s.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// SupportsRole reports whether the traversal can be restricted to members
// with a given role. Only single steps across a relation membership can.
func (m Mode) SupportsRole() bool {
	switch m {
	case RelationRelation, RelationBackwards, RelationWay, RelationNode, WayRelation, NodeRelation:
		return true
	default:
		return false
	}
}
