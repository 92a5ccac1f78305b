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
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
)

// IsTargetableSignature locates the per-frame function deciding whether game object can be
// targeted. It is called for every visible object, which makes it a good interception point.
const IsTargetableSignature = "40 53 48 83 EC 20 F3 0F 10 89 ?? ?? ?? ?? 0F 57 C0 0F 2E C8 48 8B D9 7A 0A"

var ErrState = errors.New("invalid module state")

// Binder intercepts the function at target so that after is called with the object address
// on every call, once the original function has returned. It is the calling convention
// specific part of the hook.
type Binder interface {
	Bind(e *Detours, target uintptr, after func(obj uintptr)) (*Detour, error)
}

// State is the lifecycle state of [Module].
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateTornDown:
		return "torn down"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Services is everything [Module] depends on, constructed by the host once at startup.
type Services struct {
	Locator *Locator
	Detours *Detours
	Binder  Binder
	Rules   *RuleStore
	Objects Objects
	Zones   ZoneSource
	Logger  log.Interface
	// Signature of the intercepted function, [IsTargetableSignature] if empty.
	Signature string
	// ThrottleWindow is how often one object is re-evaluated, [DefaultThrottleWindow] if zero.
	// Negative window disables throttling.
	ThrottleWindow time.Duration
	// Clock for throttling, [time.Now] if nil.
	Clock func() time.Time
}

/*
Module scales game objects matching user rules. It intercepts the function located by the
signature, evaluates rules on every call and undoes overrides when rules are disabled or
removed, and when the module stops. Zone change drops overrides without undoing them, as the
objects are gone by then.

Module is driven from the game update thread only.
*/
type Module struct {
	svc        Services
	scaler     *Scaler
	hook       *Detour
	cancelZone func()
	state      State
	log        log.Interface
}

func NewModule(svc Services) (*Module, error) {
	switch {
	case svc.Locator == nil, svc.Detours == nil, svc.Binder == nil:
		return nil, errors.New("module needs locator, detours and binder")
	case svc.Rules == nil, svc.Objects == nil, svc.Zones == nil:
		return nil, errors.New("module needs rules, objects and zones")
	}
	if svc.Logger == nil {
		svc.Logger = log.Log
	}
	if svc.Signature == "" {
		svc.Signature = IsTargetableSignature
	}
	if svc.ThrottleWindow == 0 {
		svc.ThrottleWindow = DefaultThrottleWindow
	}

	var gate *Gate[uintptr]
	if svc.ThrottleWindow > 0 {
		gate = NewGate[uintptr](svc.Clock)
	}
	logger := svc.Logger.WithField("module", "chibi")
	return &Module{
		svc:    svc,
		scaler: NewScaler(svc.Rules, svc.Objects, gate, svc.ThrottleWindow, logger),
		log:    logger,
	}, nil
}

func (m *Module) State() State { return m.state }

// Hooked reports whether the interception is in place. Active module may be not hooked if
// the target function was not found.
func (m *Module) Hooked() bool { return m.hook.Active() }

func (m *Module) Scaler() *Scaler { return m.scaler }

// Inspect returns snapshot of the object at addr, e.g. current target, to help writing rules.
func (m *Module) Inspect(addr uintptr) (Snapshot, bool) {
	return m.svc.Objects.Snapshot(addr)
}

/*
Start locates and hooks the target function and subscribes to zone changes. If the target
function cannot be found the module still becomes active but does nothing, this is logged.
Failure to install the hook is returned and leaves the module uninitialized.
*/
func (m *Module) Start() error {
	if m.state != StateUninitialized {
		return fmt.Errorf("%w: cannot start %s module", ErrState, m.state)
	}

	addr, err := m.svc.Locator.Locate(m.svc.Signature)
	if err != nil {
		m.log.WithError(err).Warn("target function not found, object scaling disabled")
	} else {
		hook, err := m.svc.Binder.Bind(m.svc.Detours, addr, m.scaler.Evaluate)
		if err != nil {
			return fmt.Errorf("hook target function at %#x: %w", addr, err)
		}
		m.hook = hook
		m.log.WithField("target", fmt.Sprintf("%#x", addr)).Info("target function hooked")
	}

	m.svc.Rules.OnRetire(m.retire)
	m.cancelZone = m.svc.Zones.OnZoneChanged(m.zoneChanged)
	m.state = StateActive
	return nil
}

func (m *Module) retire(r *Rule) {
	if m.state != StateActive {
		return
	}
	if n := m.scaler.RollbackRule(r); n > 0 {
		m.log.WithField("rule", r.String()).Debugf("%d object(s) restored", n)
	}
}

func (m *Module) zoneChanged(zone uint16) {
	m.scaler.Clear()
	m.log.WithField("zone", zone).Debug("zone changed, overrides dropped")
}

/*
Stop undoes all overrides if the player is still in the world, and removes the hook. Hook
removal is attempted even if undoing failed, and all tracked state is dropped regardless.
Stopped module cannot be started again.
*/
func (m *Module) Stop() error {
	if m.state == StateTornDown {
		return nil
	}
	if m.cancelZone != nil {
		m.cancelZone()
		m.cancelZone = nil
	}
	if m.state == StateActive {
		m.svc.Rules.OnRetire(nil)
	}

	m.rollbackAll()
	m.scaler.Clear()
	m.state = StateTornDown

	if err := m.svc.Detours.Uninstall(m.hook); err != nil {
		m.log.WithError(err).Error("cannot remove hook")
		return err
	}
	m.hook = nil
	return nil
}

func (m *Module) rollbackAll() {
	defer func() {
		if r := recover(); r != nil {
			m.log.Errorf("rollback failed: %v", r)
		}
	}()
	if !m.svc.Objects.InWorld() {
		return
	}
	if n := m.scaler.RollbackAll(); n > 0 {
		m.log.Infof("%d object(s) restored", n)
	}
}
