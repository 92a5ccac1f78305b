// This file is part of Chibi project, available at https://github.com/qrdl/chibi
// Copyright (c) 2024 Ilya Caramishev. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at https://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chibi

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidRule = errors.New("invalid rule")

// FieldKind selects the object attribute a rule matches against.
type FieldKind int

const (
	FieldName FieldKind = iota
	FieldModelCharaID
	FieldModelSkeletonID
	FieldDataID
	FieldObjectID
)

var fieldNames = [...]string{
	FieldName:            "Name",
	FieldModelCharaID:    "ModelCharaID",
	FieldModelSkeletonID: "ModelSkeletonID",
	FieldDataID:          "DataID",
	FieldObjectID:        "ObjectID",
}

// FieldKinds lists all field kinds in their natural order.
func FieldKinds() []FieldKind {
	return []FieldKind{FieldName, FieldModelCharaID, FieldModelSkeletonID, FieldDataID, FieldObjectID}
}

// ParseFieldKind parses field kind name, case-insensitively.
func ParseFieldKind(s string) (FieldKind, error) {
	for i, name := range fieldNames {
		if strings.EqualFold(name, s) {
			return FieldKind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown field %q", ErrInvalidRule, s)
}

func (k FieldKind) Valid() bool {
	return k >= FieldName && int(k) < len(fieldNames)
}

func (k FieldKind) String() string {
	if !k.Valid() {
		return "FieldKind(" + strconv.Itoa(int(k)) + ")"
	}
	return fieldNames[k]
}

func (k FieldKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: unknown field %d", ErrInvalidRule, int(k))
	}
	return []byte(fieldNames[k]), nil
}

func (k *FieldKind) UnmarshalText(text []byte) error {
	v, err := ParseFieldKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Rule overrides scale of every object whose Field equals Value.
type Rule struct {
	Field       FieldKind `json:"type"`
	Value       string    `json:"value"`
	Scale       float32   `json:"scale"`
	ScaleEffect bool      `json:"scaleVfx"`
	Enabled     bool      `json:"enabled"`
}

// Equal reports structural equality: same field, value and scale.
func (r *Rule) Equal(o *Rule) bool {
	return r.Field == o.Field && r.Value == o.Value && r.Scale == o.Scale
}

// Compare orders rules by field, value and scale.
func (r *Rule) Compare(o *Rule) int {
	if c := cmp.Compare(r.Field, o.Field); c != 0 {
		return c
	}
	if c := strings.Compare(r.Value, o.Value); c != 0 {
		return c
	}
	return cmp.Compare(r.Scale, o.Scale)
}

// Validate checks the rule can be applied.
func (r *Rule) Validate() error {
	switch {
	case r == nil:
		return fmt.Errorf("%w: no rule", ErrInvalidRule)
	case !r.Field.Valid():
		return fmt.Errorf("%w: unknown field %d", ErrInvalidRule, int(r.Field))
	case strings.TrimSpace(r.Value) == "":
		return fmt.Errorf("%w: empty value", ErrInvalidRule)
	case !(r.Scale > 0) || math.IsInf(float64(r.Scale), 1):
		return fmt.Errorf("%w: scale %v must be positive", ErrInvalidRule, r.Scale)
	}
	return nil
}

// Matches tests the snapshot field selected by the rule. Names are compared exactly, IDs
// match only their canonical decimal form.
func (r *Rule) Matches(s *Snapshot) bool {
	switch r.Field {
	case FieldName:
		return s.Name == r.Value
	case FieldModelCharaID:
		return idEquals(s.ModelCharaID, r.Value)
	case FieldModelSkeletonID:
		return idEquals(s.ModelSkeletonID, r.Value)
	case FieldDataID:
		return idEquals(s.DataID, r.Value)
	case FieldObjectID:
		return idEquals(s.ObjectID, r.Value)
	}
	return false
}

func (r *Rule) String() string {
	return fmt.Sprintf("%s=%q x%g", r.Field, r.Value, r.Scale)
}

func idEquals(id uint32, text string) bool {
	var buf [10]byte // max uint32 digits
	return string(strconv.AppendUint(buf[:0], uint64(id), 10)) == text
}
