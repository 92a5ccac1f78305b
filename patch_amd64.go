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

//go:build ((linux || freebsd || netbsd || openbsd || dragonfly) && amd64) || (windows && amd64)

package chibi

import (
	"encoding/binary"
	"math"
)

const (
	jmpRelLength = 5 // JMP rel32
	jmpRelCode   = uint8(0xE9)
	jmpAbsLength = 14 // JMP [RIP+0] followed by 64-bit destination
)

func encodeJump(target, dest uintptr) ([]byte, error) {
	rel := int64(dest) - int64(target+jmpRelLength)
	if rel >= math.MinInt32 && rel <= math.MaxInt32 {
		code := make([]byte, jmpRelLength)
		code[0] = jmpRelCode
		binary.LittleEndian.PutUint32(code[1:], uint32(int32(rel)))
		return code, nil
	}

	// far destination, no scratch register is clobbered
	code := make([]byte, jmpAbsLength)
	code[0], code[1] = 0xFF, 0x25
	binary.LittleEndian.PutUint64(code[6:], uint64(dest))
	return code, nil
}

// x86 keeps instruction cache coherent with data writes
func flushCode(uintptr, int) {}
