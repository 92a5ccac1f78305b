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
	"strings"
	"time"

	"github.com/apex/log"
)

// DefaultThrottleWindow is how often the same object is re-evaluated.
const DefaultThrottleWindow = time.Second

// Scaler applies rules to intercepted objects and undoes the changes on request.
type Scaler struct {
	rules   *RuleStore
	objects Objects
	gate    *Gate[uintptr]
	window  time.Duration
	history *History
	log     log.Interface
}

// NewScaler creates override engine. Nil gate disables throttling.
func NewScaler(rules *RuleStore, objects Objects, gate *Gate[uintptr], window time.Duration, logger log.Interface) *Scaler {
	if logger == nil {
		logger = log.Log
	}
	return &Scaler{
		rules:   rules,
		objects: objects,
		gate:    gate,
		window:  window,
		history: NewHistory(),
		log:     logger,
	}
}

// History returns overrides currently in effect.
func (s *Scaler) History() *History { return s.history }

/*
Evaluate is called on every interception of the object at addr. It applies every enabled
rule matching the object whose scale differs from the live one, and records the value from
before the first override so it can be restored later. Objects that are no longer valid are
skipped silently, they get re-evaluated on the next call.

Evaluate never panics, as it runs in the middle of intercepted native call.
*/
func (s *Scaler) Evaluate(addr uintptr) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("addr", fmt.Sprintf("%#x", addr)).Errorf("object evaluation failed: %v", r)
		}
	}()

	if s.rules.Len() == 0 || !s.objects.IsCharacter(addr) {
		return
	}
	if s.gate != nil && !s.gate.TryAcquire(addr, s.window) {
		return
	}

	snap, ok := s.objects.Snapshot(addr)
	if !ok {
		return
	}

	for _, rule := range s.rules.rules {
		if !rule.Enabled || !rule.Matches(&snap) {
			continue
		}
		if snap.Scale == rule.Scale && (!rule.ScaleEffect || snap.EffectScale == rule.Scale) {
			continue
		}

		original := snap.Scale
		if !s.objects.WriteScale(addr, rule.Scale, rule.ScaleEffect) {
			return
		}
		if s.history.Record(addr, rule, original) {
			s.log.WithFields(log.Fields{
				"addr": fmt.Sprintf("%#x", addr),
				"name": strings.Clone(snap.Name), // snapshot name aliases object memory
				"rule": rule.String(),
				"from": original,
			}).Debug("scale overridden")
		}
		snap.Scale = rule.Scale
		if rule.ScaleEffect {
			snap.EffectScale = rule.Scale
		}
	}
}

// RollbackRule restores objects overridden by the rule and forgets them. Objects that are
// no longer valid are forgotten without restoring.
func (s *Scaler) RollbackRule(rule *Rule) int {
	if rule == nil {
		return 0
	}
	return s.rollback(s.history.Addrs(rule))
}

// RollbackAll restores every overridden object and forgets them.
func (s *Scaler) RollbackAll() int {
	return s.rollback(s.history.Addrs(nil))
}

func (s *Scaler) rollback(addrs []uintptr) int {
	restored := 0
	for _, addr := range addrs {
		o, ok := s.history.Lookup(addr)
		if !ok {
			continue
		}
		if s.objects.WriteScale(addr, o.Original, true) {
			restored++
		}
		s.history.Remove(addr)
		if s.gate != nil {
			s.gate.Forget(addr)
		}
	}
	if len(addrs) > 0 {
		s.log.WithFields(log.Fields{"restored": restored, "total": len(addrs)}).Debug("scale overrides rolled back")
	}
	return restored
}

// Clear forgets all overrides without restoring, for when objects are gone.
func (s *Scaler) Clear() {
	s.history.Clear()
	if s.gate != nil {
		s.gate.Reset()
	}
}
