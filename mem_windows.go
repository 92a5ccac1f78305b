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
	"unsafe"

	"golang.org/x/sys/windows"
)

func makeMemRWX(ptr unsafe.Pointer, size uintptr) error {
	var oldPerms uint32
	return windows.VirtualProtect(
		uintptr(ptr),
		size,
		windows.PAGE_EXECUTE_READWRITE,
		&oldPerms)
}
