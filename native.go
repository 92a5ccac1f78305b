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

//go:build ((linux || freebsd || netbsd || openbsd || dragonfly) && (amd64 || arm64)) || (windows && amd64)

package chibi

import (
	"fmt"
	"os"
	"unsafe"
)

// nativePatcher patches code of the current process. Pages, once made writable, are left
// like this to allow cheap restoration of the original prologue on every call.
type nativePatcher struct {
	writable map[uintptr]struct{}
}

// NativePatcher returns the code patcher for the current process.
func NativePatcher() Patcher {
	return &nativePatcher{writable: make(map[uintptr]struct{})}
}

func (p *nativePatcher) Jump(target, dest uintptr) ([]byte, error) {
	return encodeJump(target, dest) // arch-specific
}

func (p *nativePatcher) Write(target uintptr, code, prev []byte) error {
	if len(code) == 0 {
		return nil
	}
	if err := p.unprotect(target, len(code)); err != nil {
		return err
	}

	area := unsafe.Slice((*uint8)(unsafe.Pointer(target)), len(code))
	if prev != nil {
		copy(prev, area)
	}
	copy(area, code)
	flushCode(target, len(code)) // arch-specific
	return nil
}

func (p *nativePatcher) unprotect(addr uintptr, size int) error {
	start, length := calcBoundaries(unsafe.Pointer(addr), size)
	pageSize := uintptr(os.Getpagesize())
	for page := uintptr(start); page < uintptr(start)+length; page += pageSize {
		if _, ok := p.writable[page]; ok {
			continue
		}
		if err := makeMemRWX(unsafe.Pointer(page), pageSize); err != nil { // OS-specific
			return fmt.Errorf("make page %#x writable: %w", page, err)
		}
		p.writable[page] = struct{}{}
	}
	return nil
}

func calcBoundaries(ptr unsafe.Pointer, size int) (unsafe.Pointer, uintptr) {
	pageSize := uintptr(os.Getpagesize())
	areaStart := unsafe.Pointer(uintptr(ptr) &^ (pageSize - 1))
	areaSize := (uintptr(ptr) + uintptr(size)) - uintptr(areaStart)

	return areaStart, areaSize
}
