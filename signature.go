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
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrBadSignature = errors.New("malformed signature")
	ErrNotFound     = errors.New("signature not found")
)

const (
	relCallCode    = uint8(0xE8)
	relJmpCode     = uint8(0xE9)
	relInstrLength = 5
)

// Signature is a byte pattern where some bytes may match anything.
type Signature struct {
	text    string
	pattern []byte
	mask    []bool // true for bytes that must match
}

/*
ParseSignature parses space-separated hex bytes with "?" or "??" wildcards, like this:

	40 53 48 83 EC 20 F3 0F 10 89 ?? ?? ?? ?? 0F 57 C0
*/
func ParseSignature(text string) (Signature, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Signature{}, fmt.Errorf("%w: empty", ErrBadSignature)
	}

	sig := Signature{
		text:    strings.Join(fields, " "),
		pattern: make([]byte, len(fields)),
		mask:    make([]bool, len(fields)),
	}
	for i, f := range fields {
		if f == "?" || f == "??" {
			continue
		}
		b, err := hex.DecodeString(f)
		if err != nil || len(b) != 1 {
			return Signature{}, fmt.Errorf("%w: bad byte %q at position %d", ErrBadSignature, f, i)
		}
		sig.pattern[i] = b[0]
		sig.mask[i] = true
	}
	if !sig.mask[0] {
		return Signature{}, fmt.Errorf("%w: leading wildcard", ErrBadSignature)
	}

	return sig, nil
}

// String returns normalised signature text.
func (s Signature) String() string { return s.text }

// Len returns the number of bytes the signature spans.
func (s Signature) Len() int { return len(s.pattern) }

// Find returns the offset of the first match of the signature in data, or -1.
func (s Signature) Find(data []byte) int {
	n := len(s.pattern)
	for i := 0; i+n <= len(data); i++ {
		if data[i] != s.pattern[0] {
			continue
		}
		found := true
		for j := 1; j < n; j++ {
			if s.mask[j] && data[i+j] != s.pattern[j] {
				found = false
				break
			}
		}
		if found {
			return i
		}
	}

	return -1
}

// Locator resolves signatures to function addresses within a code image. Addresses are
// cached for the image lifetime, call [Locator.Reset] when the image is reloaded.
type Locator struct {
	image    CodeImage
	sections []Section
	loaded   bool
	cache    map[string]uintptr
}

// NewLocator creates a locator over image. Image sections are read on the first lookup.
func NewLocator(image CodeImage) *Locator {
	return &Locator{
		image: image,
		cache: make(map[string]uintptr),
	}
}

/*
Locate returns the address of the code matching the signature. If the matched code is
relative CALL or JMP, its destination is returned instead, so signatures can point to the
call site of a function rather than to the function itself.
*/
func (l *Locator) Locate(text string) (uintptr, error) {
	sig, err := ParseSignature(text)
	if err != nil {
		return 0, err
	}
	if addr, ok := l.cache[sig.text]; ok {
		return addr, nil
	}

	if !l.loaded {
		sections, err := l.image.CodeSections()
		if err != nil {
			return 0, fmt.Errorf("load code image: %w", err)
		}
		l.sections = sections
		l.loaded = true
	}

	for _, sec := range l.sections {
		offset := sig.Find(sec.Data)
		if offset < 0 {
			continue
		}
		addr := sec.Addr + uintptr(offset)
		if code := sec.Data[offset]; (code == relCallCode || code == relJmpCode) && offset+relInstrLength <= len(sec.Data) {
			rel := int32(binary.LittleEndian.Uint32(sec.Data[offset+1:]))
			addr = uintptr(int64(addr) + relInstrLength + int64(rel))
		}
		l.cache[sig.text] = addr
		return addr, nil
	}

	return 0, fmt.Errorf("%w: %s", ErrNotFound, sig.text)
}

// Code returns up to n bytes of code at addr. Only sections already loaded by
// [Locator.Locate] are looked at.
func (l *Locator) Code(addr uintptr, n int) ([]byte, bool) {
	for _, sec := range l.sections {
		if addr >= sec.Addr && addr < sec.Addr+uintptr(len(sec.Data)) {
			off := int(addr - sec.Addr)
			return sec.Data[off:min(off+n, len(sec.Data))], true
		}
	}
	return nil, false
}

// Reset drops cached sections and addresses.
func (l *Locator) Reset() {
	l.sections = nil
	l.loaded = false
	clear(l.cache)
}
