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

import "time"

// Gate rate-limits repeated work per key. It is not safe for concurrent use.
type Gate[K comparable] struct {
	next map[K]time.Time
	now  func() time.Time
}

// NewGate creates a gate using clock now, nil means [time.Now].
func NewGate[K comparable](now func() time.Time) *Gate[K] {
	if now == nil {
		now = time.Now
	}
	return &Gate[K]{next: make(map[K]time.Time), now: now}
}

// TryAcquire returns true at most once per window for the key.
func (g *Gate[K]) TryAcquire(key K, window time.Duration) bool {
	now := g.now()
	if next, ok := g.next[key]; ok && now.Before(next) {
		return false
	}
	g.next[key] = now.Add(window)
	return true
}

// Forget drops the state of the key, next acquire succeeds immediately.
func (g *Gate[K]) Forget(key K) {
	delete(g.next, key)
}

// Reset drops the state of all keys.
func (g *Gate[K]) Reset() {
	clear(g.next)
}

// Len returns the number of keys tracked.
func (g *Gate[K]) Len() int {
	return len(g.next)
}
