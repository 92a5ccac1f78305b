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
	"reflect"

	"github.com/apex/log"
)

var (
	ErrAlreadyHooked = errors.New("function is already hooked")
	ErrUnsupported   = errors.New("code patching is not supported on this platform")
	ErrNotFunc       = errors.New("target and interceptor must be functions")
	ErrJumpRange     = errors.New("interceptor is out of jump range")
)

// Patcher is the platform code-patching capability the detour engine is built on.
type Patcher interface {
	// Jump encodes the instruction(s) that redirect execution from target to dest.
	Jump(target, dest uintptr) ([]byte, error)
	// Write overwrites the code at target. If prev is not nil, the replaced bytes are copied
	// into it, so it must be at least as long as code.
	Write(target uintptr, code, prev []byte) error
}

// Detour is a single installed interception.
type Detour struct {
	owner   *Detours
	target  uintptr
	dest    uintptr
	saved   []byte // original prologue
	jump    []byte
	depth   int
	removed bool
}

// Target returns the address of the intercepted function.
func (d *Detour) Target() uintptr { return d.target }

// Active reports whether the detour is still installed.
func (d *Detour) Active() bool { return d != nil && !d.removed }

/*
CallOriginal runs fn with the original function prologue restored, so any call to the
intercepted function made from within fn reaches the original code. The jump is re-applied
when fn returns. Nested calls are allowed, only the outermost one touches the code.

Every outermost call costs two code writes. While fn runs the target is not intercepted at
all, so the target must be called from a single thread only.

If the detour was uninstalled, fn is simply executed. If the original prologue cannot be
restored fn is not executed, since calling the target would re-enter the interceptor.
*/
func (d *Detour) CallOriginal(fn func()) error {
	if d.removed {
		fn()
		return nil
	}
	if d.depth == 0 {
		if err := d.owner.patcher.Write(d.target, d.saved, nil); err != nil {
			return fmt.Errorf("suspend detour at %#x: %w", d.target, err)
		}
	}
	d.depth++
	defer func() {
		d.depth--
		if d.depth == 0 && !d.removed {
			if err := d.owner.patcher.Write(d.target, d.jump, nil); err != nil {
				d.owner.log.WithError(err).Errorf("cannot re-apply detour at %#x", d.target)
			}
		}
	}()
	fn()
	return nil
}

// Detours keeps track of every interception installed in the process.
type Detours struct {
	patcher Patcher
	active  map[uintptr]*Detour
	log     log.Interface
}

// NewDetours creates the detour engine. Nil patcher selects the native one for the current
// platform, nil logger selects the apex/log default logger.
func NewDetours(patcher Patcher, logger log.Interface) *Detours {
	if patcher == nil {
		patcher = NativePatcher()
	}
	if logger == nil {
		logger = log.Log
	}
	return &Detours{
		patcher: patcher,
		active:  make(map[uintptr]*Detour),
		log:     logger,
	}
}

// Install redirects calls of the function at target to dest.
func (e *Detours) Install(target, dest uintptr) (*Detour, error) {
	if target == 0 || dest == 0 {
		return nil, fmt.Errorf("install detour %#x -> %#x: nil address", target, dest)
	}
	if _, ok := e.active[target]; ok {
		return nil, fmt.Errorf("%w: %#x", ErrAlreadyHooked, target)
	}

	jump, err := e.patcher.Jump(target, dest)
	if err != nil {
		return nil, fmt.Errorf("install detour %#x -> %#x: %w", target, dest, err)
	}
	saved := make([]byte, len(jump))
	if err := e.patcher.Write(target, jump, saved); err != nil {
		return nil, fmt.Errorf("install detour %#x -> %#x: %w", target, dest, err)
	}

	d := &Detour{
		owner:  e,
		target: target,
		dest:   dest,
		saved:  saved,
		jump:   jump,
	}
	e.active[target] = d
	e.log.WithFields(log.Fields{"target": fmt.Sprintf("%#x", target), "size": len(jump)}).Debug("detour installed")
	return d, nil
}

// Uninstall restores the original code. Uninstalling a removed or nil detour is a no-op.
// A detour that could not be restored stays registered, so [Detours.Close] retries it.
func (e *Detours) Uninstall(d *Detour) error {
	if d == nil || d.removed {
		return nil
	}
	if err := e.patcher.Write(d.target, d.saved, nil); err != nil {
		return fmt.Errorf("uninstall detour %#x: %w", d.target, err)
	}
	d.removed = true
	delete(e.active, d.target)
	e.log.WithField("target", fmt.Sprintf("%#x", d.target)).Debug("detour removed")
	return nil
}

// Len returns the number of installed detours.
func (e *Detours) Len() int { return len(e.active) }

// Close uninstalls every detour. It attempts all of them regardless of failures.
func (e *Detours) Close() error {
	var err error
	for _, d := range e.active {
		err = errors.Join(err, e.Uninstall(d))
	}
	return err
}

/*
Hook installs a detour from Go function target to Go function interceptor. The signatures must
match exactly, which is enforced by the compiler.

Interceptor is entered by a plain jump, so it must not be a closure capturing variables, and
target must not be inlined (mark it with //go:noinline or build with -gcflags=-l).
*/
func Hook[T any](e *Detours, target, interceptor T) (*Detour, error) {
	tv, iv := reflect.ValueOf(target), reflect.ValueOf(interceptor)
	if tv.Kind() != reflect.Func || iv.Kind() != reflect.Func || tv.IsNil() || iv.IsNil() {
		return nil, ErrNotFunc
	}
	return e.Install(uintptr(tv.UnsafePointer()), uintptr(iv.UnsafePointer()))
}

// Original returns function of type T that calls original target, bypassing the detour.
// It should be built once and reused, as it is backed by reflection.
func Original[T any](d *Detour, target T) T {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Func {
		panic("Original() can be called only for function/method")
	}
	typ := v.Type()
	fn := reflect.MakeFunc(typ, func(args []reflect.Value) (ret []reflect.Value) {
		err := d.CallOriginal(func() {
			if typ.IsVariadic() {
				ret = v.CallSlice(args)
			} else {
				ret = v.Call(args)
			}
		})
		if err != nil {
			d.owner.log.WithError(err).Error("original function not called")
			ret = make([]reflect.Value, typ.NumOut())
			for i := range ret {
				ret[i] = reflect.Zero(typ.Out(i))
			}
		}
		return ret
	})

	var original T
	reflect.ValueOf(&original).Elem().Set(fn)
	return original
}
