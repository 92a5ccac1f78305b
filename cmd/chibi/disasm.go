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

package main

import (
	"fmt"
	"io"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
)

// disassemble prints up to count instructions of code located at addr.
func disassemble(out io.Writer, arch string, addr uintptr, code []byte, count int) error {
	switch arch {
	case "amd64":
		for i := 0; i < count && len(code) > 0; i++ {
			inst, err := x86asm.Decode(code, 64)
			if err != nil || inst.Op == 0 {
				fmt.Fprintf(out, "    %s  %02x  (bad)\n", colorAddr("%#x", addr), code[0])
				return nil
			}
			fmt.Fprintf(out, "    %s  %-30s %s\n", colorAddr("%#x", addr),
				fmt.Sprintf("% x", code[:inst.Len]), x86asm.IntelSyntax(inst, uint64(addr), nil))
			addr += uintptr(inst.Len)
			code = code[inst.Len:]
		}
	case "arm64":
		for i := 0; i < count && len(code) >= 4; i++ {
			text := "(bad)"
			if inst, err := arm64asm.Decode(code[:4]); err == nil {
				text = arm64asm.GNUSyntax(inst)
			}
			fmt.Fprintf(out, "    %s  % x  %s\n", colorAddr("%#x", addr), code[:4], text)
			addr += 4
			code = code[4:]
		}
	default:
		return fmt.Errorf("cannot disassemble %s code", arch)
	}
	return nil
}
