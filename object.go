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
	"slices"
	"unsafe"
)

// Snapshot is a read-only view of a live object taken at interception time. It is valid for
// the duration of one interception call only, Name may alias object memory.
type Snapshot struct {
	Addr            uintptr
	Name            string
	DataID          uint32
	ObjectID        uint32
	ModelCharaID    uint32
	ModelSkeletonID uint32
	Scale           float32
	EffectScale     float32
	IsCharacter     bool
}

/*
Objects gives validated access to live game objects. Every method checks the object at addr
is still alive and drawable before touching it, and reports false otherwise. Addresses are
never owned, only looked up.
*/
type Objects interface {
	IsCharacter(addr uintptr) bool
	Snapshot(addr uintptr) (Snapshot, bool)
	// WriteScale sets scale, and effect scale if effect is true, then forces redraw.
	WriteScale(addr uintptr, scale float32, effect bool) bool
	// InWorld reports whether the local player object exists.
	InWorld() bool
}

// DrawControl is the host capability to validate and redraw native objects.
type DrawControl interface {
	ReadyToDraw(addr uintptr) bool
	DisableDraw(addr uintptr)
	EnableDraw(addr uintptr)
	LocalPlayer() uintptr
}

// Field describes a value of type T at fixed offset within native object.
type Field[T any] struct {
	Offset uintptr
}

func (f Field[T]) get(base uintptr) T {
	return *(*T)(unsafe.Pointer(base + f.Offset))
}

func (f Field[T]) set(base uintptr, v T) {
	*(*T)(unsafe.Pointer(base + f.Offset)) = v
}

// NameField describes inline NUL-terminated UTF-8 name buffer.
type NameField struct {
	Offset uintptr
	Size   int
}

// get returns string backed by object memory, no copy is made
func (f NameField) get(base uintptr) string {
	buf := unsafe.Slice((*byte)(unsafe.Pointer(base+f.Offset)), f.Size)
	n := slices.Index(buf, 0)
	if n < 0 {
		n = f.Size
	}
	if n == 0 {
		return ""
	}
	return unsafe.String(&buf[0], n)
}

// Layout is the memory layout of native character object for particular game build.
type Layout struct {
	Name            NameField
	ObjectID        Field[uint32]
	DataID          Field[uint32]
	Kind            Field[uint8]
	Scale           Field[float32]
	EffectScale     Field[float32]
	ModelCharaID    Field[uint32]
	ModelSkeletonID Field[uint32]
	// CharacterKinds lists Kind values of character objects.
	CharacterKinds []uint8
}

// NativeObjects implements [Objects] over raw memory of the current process.
type NativeObjects struct {
	Layout Layout
	Draw   DrawControl
}

func (n *NativeObjects) valid(addr uintptr) bool {
	return addr != 0 && n.Draw.ReadyToDraw(addr)
}

func (n *NativeObjects) IsCharacter(addr uintptr) bool {
	return n.valid(addr) && slices.Contains(n.Layout.CharacterKinds, n.Layout.Kind.get(addr))
}

func (n *NativeObjects) Snapshot(addr uintptr) (Snapshot, bool) {
	if !n.valid(addr) {
		return Snapshot{}, false
	}
	l := &n.Layout
	return Snapshot{
		Addr:            addr,
		Name:            l.Name.get(addr),
		DataID:          l.DataID.get(addr),
		ObjectID:        l.ObjectID.get(addr),
		ModelCharaID:    l.ModelCharaID.get(addr),
		ModelSkeletonID: l.ModelSkeletonID.get(addr),
		Scale:           l.Scale.get(addr),
		EffectScale:     l.EffectScale.get(addr),
		IsCharacter:     slices.Contains(l.CharacterKinds, l.Kind.get(addr)),
	}, true
}

func (n *NativeObjects) WriteScale(addr uintptr, scale float32, effect bool) bool {
	if !n.valid(addr) {
		return false
	}
	n.Layout.Scale.set(addr, scale)
	if effect {
		n.Layout.EffectScale.set(addr, scale)
	}
	n.Draw.DisableDraw(addr)
	n.Draw.EnableDraw(addr)
	return true
}

func (n *NativeObjects) InWorld() bool {
	return n.Draw.LocalPlayer() != 0
}
