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

//go:build windows && amd64

package chibi

import (
	"syscall"

	"golang.org/x/sys/windows"
)

/*
HookNative installs a detour on native function at target. Interceptor fn is turned into
a native callback with [windows.NewCallback], so it must follow its rules: every argument and
the result are uintptr-sized. Unlike [Hook], fn may be a closure.

The number of callbacks a process can create is limited, so native hooks should be installed
once per process.
*/
func HookNative(e *Detours, target uintptr, fn any) (*Detour, error) {
	return e.Install(target, windows.NewCallback(fn))
}

// CallNative calls original native function, bypassing the detour. It returns zero if the
// original cannot be reached.
func (d *Detour) CallNative(args ...uintptr) uintptr {
	var ret uintptr
	err := d.CallOriginal(func() {
		ret, _, _ = syscall.SyscallN(d.target, args...)
	})
	if err != nil {
		d.owner.log.WithError(err).Error("original native function not called")
		return 0
	}
	return ret
}

// NativeBinder binds interception of native IsTargetable-like function taking object
// pointer and returning byte-sized result.
type NativeBinder struct{}

func (NativeBinder) Bind(e *Detours, target uintptr, after func(obj uintptr)) (*Detour, error) {
	b := &nativeBinding{after: after}
	d, err := HookNative(e, target, b.callback)
	if err != nil {
		return nil, err
	}
	b.detour = d
	return d, nil
}

type nativeBinding struct {
	detour *Detour
	after  func(obj uintptr)
}

// callback runs on every call of the hooked function. Calls made before the detour is
// registered are dropped, the game retries them on the next frame.
func (b *nativeBinding) callback(obj uintptr) uintptr {
	d := b.detour
	if d == nil {
		return 0
	}
	var ret uintptr
	err := d.CallOriginal(func() {
		ret, _, _ = syscall.SyscallN(d.target, obj)
	})
	if err != nil {
		d.owner.log.WithError(err).Error("original native function not called")
		return 0
	}
	b.after(obj)
	return ret & 0xFF
}
