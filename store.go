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
	"fmt"
	"slices"

	"github.com/apex/log"
)

// Persister is the configuration storage collaborator.
type Persister interface {
	// Load decodes stored configuration into v, it returns false if nothing is stored yet.
	Load(v any) (bool, error)
	Save(v any) error
}

// Config is the persisted state of the rule store.
type Config struct {
	Rules []*Rule `json:"customizePresets"`
}

/*
RuleStore is an ordered set of rules, no two of them structurally equal. Every change is
persisted. Rules are iterated in store order when applied, [RuleStore.Ordered] gives them in
their natural order for display and export.
*/
type RuleStore struct {
	rules   []*Rule
	persist Persister
	retire  func(*Rule)
	log     log.Interface
}

// NewRuleStore creates empty store, nil persister keeps the rules in memory only.
func NewRuleStore(persist Persister, logger log.Interface) *RuleStore {
	if logger == nil {
		logger = log.Log
	}
	return &RuleStore{persist: persist, log: logger}
}

// OnRetire sets function called with every rule that is removed, disabled or otherwise
// changed in a way that requires its overrides to be undone.
func (s *RuleStore) OnRetire(fn func(*Rule)) {
	s.retire = fn
}

// Load replaces store content with persisted rules. Duplicates and invalid rules are dropped.
func (s *RuleStore) Load() error {
	if s.persist == nil {
		return nil
	}
	var cfg Config
	found, err := s.persist.Load(&cfg)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	if s.retire != nil {
		for _, r := range s.rules {
			s.retire(r)
		}
	}
	s.rules = nil
	if !found {
		return nil
	}
	for _, r := range cfg.Rules {
		if r == nil {
			continue
		}
		if err := r.Validate(); err != nil {
			s.log.WithError(err).Warnf("dropping stored rule %s", r)
			continue
		}
		if s.indexOf(r) >= 0 {
			s.log.Warnf("dropping duplicate stored rule %s", r)
			continue
		}
		s.rules = append(s.rules, r)
	}
	return nil
}

// Save persists the rules.
func (s *RuleStore) Save() error {
	if s.persist == nil {
		return nil
	}
	if err := s.persist.Save(&Config{Rules: s.rules}); err != nil {
		return fmt.Errorf("save rules: %w", err)
	}
	return nil
}

// Len returns the number of rules.
func (s *RuleStore) Len() int { return len(s.rules) }

// Rules returns rules in store order. Rules must be changed with [RuleStore.Update] only.
func (s *RuleStore) Rules() []*Rule { return slices.Clone(s.rules) }

// At returns rule at index i in store order.
func (s *RuleStore) At(i int) (*Rule, error) {
	if i < 0 || i >= len(s.rules) {
		return nil, fmt.Errorf("rule index %d out of range [0, %d)", i, len(s.rules))
	}
	return s.rules[i], nil
}

// Ordered returns rules sorted by field, value and scale.
func (s *RuleStore) Ordered() []*Rule {
	ordered := slices.Clone(s.rules)
	slices.SortStableFunc(ordered, (*Rule).Compare)
	return ordered
}

// Contains reports whether structurally equal rule is in the store.
func (s *RuleStore) Contains(r *Rule) bool { return s.indexOf(r) >= 0 }

func (s *RuleStore) indexOf(r *Rule) int {
	if r == nil {
		return -1
	}
	return slices.IndexFunc(s.rules, r.Equal)
}

// Add appends the rule. It returns false without changing anything if equal rule exists.
func (s *RuleStore) Add(r *Rule) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, err
	}
	if s.Contains(r) {
		return false, nil
	}
	s.rules = append(s.rules, r)
	return true, s.Save()
}

// Remove deletes rule at index i, undoing its overrides.
func (s *RuleStore) Remove(i int) error {
	r, err := s.At(i)
	if err != nil {
		return err
	}
	if s.retire != nil {
		s.retire(r)
	}
	s.rules = slices.Delete(s.rules, i, i+1)
	return s.Save()
}

// RemoveRule deletes the rule equal to r. It returns false if there is no such rule.
func (s *RuleStore) RemoveRule(r *Rule) (bool, error) {
	i := s.indexOf(r)
	if i < 0 {
		return false, nil
	}
	return true, s.Remove(i)
}

/*
Update changes rule at index i with mutator and persists the result. Mutation that makes the
rule invalid or equal to another rule is reverted, and false is returned. Enabling, disabling
or switching effect scaling undoes overrides made by the rule.
*/
func (s *RuleStore) Update(i int, mutator func(*Rule)) (bool, error) {
	r, err := s.At(i)
	if err != nil {
		return false, err
	}

	before := *r
	mutator(r)
	if *r == before {
		return false, nil
	}
	if err := r.Validate(); err != nil {
		*r = before
		return false, err
	}
	if j := s.indexOf(r); j >= 0 && j != i {
		*r = before
		return false, nil
	}

	if s.retire != nil && (r.Enabled != before.Enabled || r.ScaleEffect != before.ScaleEffect) {
		s.retire(r)
	}
	return true, s.Save()
}
