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

//go:build !(((linux || freebsd || netbsd || openbsd || dragonfly) && (amd64 || arm64)) || (windows && amd64))

package chibi

type unsupportedPatcher struct{}

// NativePatcher returns the code patcher for the current process. On this platform every
// operation fails with [ErrUnsupported].
func NativePatcher() Patcher { return unsupportedPatcher{} }

func (unsupportedPatcher) Jump(uintptr, uintptr) ([]byte, error) { return nil, ErrUnsupported }

func (unsupportedPatcher) Write(uintptr, []byte, []byte) error { return ErrUnsupported }
