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
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrBadExchange = errors.New("malformed rule exchange text")

// Clipboard is the text exchange collaborator used to share rules.
type Clipboard interface {
	ReadText() (string, error)
	WriteText(text string) error
}

// ExportRule encodes the rule as single-line text suitable for clipboard.
func ExportRule(r *Rule) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("export rule: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// ImportRule decodes text produced by [ExportRule].
func ImportRule(text string) (*Rule, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadExchange, err)
	}
	var r Rule
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadExchange, err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Import adds rule decoded from text. Like [RuleStore.Add] it returns false if equal rule
// is already in the store.
func (s *RuleStore) Import(text string) (bool, error) {
	r, err := ImportRule(text)
	if err != nil {
		return false, err
	}
	return s.Add(r)
}

// ExportTo writes rule at index i to the clipboard.
func (s *RuleStore) ExportTo(cb Clipboard, i int) error {
	r, err := s.At(i)
	if err != nil {
		return err
	}
	text, err := ExportRule(r)
	if err != nil {
		return err
	}
	return cb.WriteText(text)
}

// ImportFrom adds rule read from the clipboard.
func (s *RuleStore) ImportFrom(cb Clipboard) (bool, error) {
	text, err := cb.ReadText()
	if err != nil {
		return false, fmt.Errorf("read clipboard: %w", err)
	}
	return s.Import(text)
}
