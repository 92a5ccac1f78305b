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

//go:build (linux || freebsd || netbsd || openbsd || dragonfly) && arm64

package chibi

/*
// ARM doesn't automatically invalidate instruction cache so manual flushing needed
// after changing memory page with executable code

#include <stdint.h>
#include <stddef.h>
void flush_cache(uint64_t addr, size_t len) {
	char *target = (char *)addr;
	__builtin___clear_cache(target, target + len);
}
*/
import "C"

import (
	"encoding/binary"
	"fmt"
)

const (
	instrLength  = 4
	jmpInstrCode = uint8(0x14) // B instruction
	branchRange  = 1 << 27     // imm26 words, +-128MB
)

func encodeJump(target, dest uintptr) ([]byte, error) {
	offset := int64(dest) - int64(target)
	if offset >= branchRange || offset < -branchRange {
		return nil, fmt.Errorf("%w: %#x -> %#x", ErrJumpRange, target, dest)
	}

	code := make([]byte, instrLength)
	binary.LittleEndian.PutUint32(code, uint32(offset/instrLength)&0x03FFFFFF)
	code[3] |= jmpInstrCode
	return code, nil
}

func flushCode(addr uintptr, size int) {
	C.flush_cache(C.uint64_t(addr), C.size_t(size))
}
