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

// Override remembers how to undo scale override of one object.
type Override struct {
	Rule     *Rule // not owned
	Original float32
}

// History maps object addresses to overrides applied to them. Addresses are lookup keys
// only, they must be validated before being dereferenced.
type History struct {
	records map[uintptr]Override
}

func NewHistory() *History {
	return &History{records: make(map[uintptr]Override)}
}

// Record stores override for addr unless there is one already, the first one wins as it
// holds the value from before any override.
func (h *History) Record(addr uintptr, rule *Rule, original float32) bool {
	if _, ok := h.records[addr]; ok {
		return false
	}
	h.records[addr] = Override{Rule: rule, Original: original}
	return true
}

func (h *History) Lookup(addr uintptr) (Override, bool) {
	o, ok := h.records[addr]
	return o, ok
}

func (h *History) Remove(addr uintptr) {
	delete(h.records, addr)
}

func (h *History) Len() int {
	return len(h.records)
}

// Clear forgets all overrides without undoing them.
func (h *History) Clear() {
	clear(h.records)
}

// Addrs returns addresses of overrides made by the rule, or of all overrides if rule is nil.
func (h *History) Addrs(rule *Rule) []uintptr {
	var addrs []uintptr
	for addr, o := range h.records {
		if rule == nil || o.Rule == rule {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}
