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
	"fmt"
	"unsafe"

	"github.com/Binject/debug/elf"
	"github.com/Binject/debug/pe"
)

const imageScnMemExecute = 0x20000000

// Section is a block of executable code and the address it is mapped at.
type Section struct {
	Name string
	Addr uintptr
	Data []byte
}

// CodeImage provides executable sections of a loaded module.
type CodeImage interface {
	CodeSections() ([]Section, error)
}

// MemoryImage is a code image made of explicitly provided sections.
type MemoryImage []Section

func (m MemoryImage) CodeSections() ([]Section, error) {
	return m, nil
}

// LiveSection returns section backed by memory of the current process, no data is copied.
// The memory must stay mapped while the section is in use.
func LiveSection(name string, addr uintptr, size int) Section {
	return Section{
		Name: name,
		Addr: addr,
		Data: unsafe.Slice((*byte)(unsafe.Pointer(addr)), size),
	}
}

type peImage struct {
	path string
	base uintptr
}

// PEImage reads executable sections of PE file at path, as if it was loaded at base.
// Zero base means preferred image base from the file header.
func PEImage(path string, base uintptr) CodeImage {
	return peImage{path: path, base: base}
}

func (p peImage) CodeSections() ([]Section, error) {
	f, err := pe.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("open PE %s: %w", p.path, err)
	}
	defer f.Close()

	base := p.base
	if base == 0 {
		switch hdr := f.OptionalHeader.(type) {
		case *pe.OptionalHeader64:
			base = uintptr(hdr.ImageBase)
		case *pe.OptionalHeader32:
			base = uintptr(hdr.ImageBase)
		}
	}

	var sections []Section
	for _, s := range f.Sections {
		if s.Characteristics&imageScnMemExecute == 0 {
			continue
		}
		data, err := s.Data()
		if err != nil {
			return nil, fmt.Errorf("read PE section %s: %w", s.Name, err)
		}
		sections = append(sections, Section{
			Name: s.Name,
			Addr: base + uintptr(s.VirtualAddress),
			Data: data,
		})
	}
	return sections, nil
}

type elfImage struct {
	path string
	base uintptr
}

// ELFImage reads executable sections of ELF file at path. Base is the load address of
// position-independent images and is ignored for fixed ones.
func ELFImage(path string, base uintptr) CodeImage {
	return elfImage{path: path, base: base}
}

func (e elfImage) CodeSections() ([]Section, error) {
	f, err := elf.Open(e.path)
	if err != nil {
		return nil, fmt.Errorf("open ELF %s: %w", e.path, err)
	}
	defer f.Close()

	var sections []Section
	for _, s := range f.Sections {
		if s.Flags&elf.SHF_EXECINSTR == 0 || s.Type == elf.SHT_NOBITS {
			continue
		}
		data, err := s.Data()
		if err != nil {
			return nil, fmt.Errorf("read ELF section %s: %w", s.Name, err)
		}
		addr := uintptr(s.Addr)
		if f.Type == elf.ET_DYN {
			addr += e.base
		}
		sections = append(sections, Section{Name: s.Name, Addr: addr, Data: data})
	}
	return sections, nil
}
