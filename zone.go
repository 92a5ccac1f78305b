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
	"slices"
	"sync"
)

// ZoneSource notifies about zone changes, after which previously seen objects are gone.
type ZoneSource interface {
	// OnZoneChanged registers fn and returns function to unregister it.
	OnZoneChanged(fn func(zone uint16)) (cancel func())
}

type zoneHandler struct {
	id int
	fn func(zone uint16)
}

// ZoneFeed is a [ZoneSource] the host publishes zone changes to.
type ZoneFeed struct {
	mu       sync.RWMutex
	handlers []zoneHandler
	nextID   int
}

func NewZoneFeed() *ZoneFeed {
	return &ZoneFeed{}
}

func (f *ZoneFeed) OnZoneChanged(fn func(zone uint16)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.handlers = append(f.handlers, zoneHandler{id: id, fn: fn})

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.handlers = slices.DeleteFunc(f.handlers, func(h zoneHandler) bool { return h.id == id })
	}
}

// Publish calls every registered handler, in registration order.
func (f *ZoneFeed) Publish(zone uint16) {
	f.mu.RLock()
	handlers := slices.Clone(f.handlers)
	f.mu.RUnlock()

	for _, h := range handlers {
		h.fn(zone)
	}
}

// Len returns the number of registered handlers.
func (f *ZoneFeed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.handlers)
}
