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
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/cobra"

	"github.com/qrdl/chibi"
)

type scanOptions struct {
	file       string
	process    string
	pid        int32
	base       uint64
	signatures []string
	disasm     int
	arch       string
}

func newScanCmd(a *app) *cobra.Command {
	var opts scanOptions
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Locates function signatures in game executable",
		Long: `Locates function signatures in executable sections of PE or ELF file, or of the
executable of running process. Addresses are reported as if the image was loaded at base,
preferred image base of PE files is used by default.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.scan(cmd.OutOrStdout(), &opts)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "executable file to scan")
	cmd.Flags().StringVarP(&opts.process, "process", "p", "", "name of running process to scan executable of")
	cmd.Flags().Int32Var(&opts.pid, "pid", 0, "ID of running process to scan executable of")
	cmd.Flags().Uint64VarP(&opts.base, "base", "b", 0, "image load address")
	cmd.Flags().StringArrayVarP(&opts.signatures, "sig", "s", []string{chibi.IsTargetableSignature}, "signature to locate, can be repeated")
	cmd.Flags().IntVarP(&opts.disasm, "disasm", "d", 0, "number of instructions to disassemble at found address")
	cmd.Flags().StringVar(&opts.arch, "arch", "amd64", "code architecture for disassembly, amd64 or arm64")
	cmd.MarkFlagsMutuallyExclusive("file", "process", "pid")
	return cmd
}

func (a *app) scan(out io.Writer, opts *scanOptions) error {
	path := opts.file
	var err error
	switch {
	case opts.pid != 0:
		path, err = exeByPid(opts.pid)
	case opts.process != "":
		path, err = exeByName(opts.process)
	case path == "":
		err = errors.New("one of --file, --process or --pid is required")
	}
	if err != nil {
		return err
	}
	a.log.WithField("path", path).Debug("scanning executable")

	image, err := openImage(path, uintptr(opts.base))
	if err != nil {
		return err
	}
	locator := chibi.NewLocator(image)
	var errs error
	for _, sig := range opts.signatures {
		addr, err := locator.Locate(sig)
		if err != nil {
			errs = errors.Join(errs, err)
			fmt.Fprintf(out, "%s  %s\n", colorWarn("not found"), sig)
			continue
		}
		fmt.Fprintf(out, "%s  %s\n", colorAddr("%#x", addr), sig)
		if opts.disasm > 0 {
			code, _ := locator.Code(addr, opts.disasm*16)
			if err := disassemble(out, opts.arch, addr, code, opts.disasm); err != nil {
				return err
			}
		}
	}
	return errs
}

var (
	peMagic  = []byte("MZ")
	elfMagic = []byte("\x7fELF")
)

// openImage detects executable format by its magic number.
func openImage(path string, base uintptr) (chibi.CodeImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	switch {
	case bytes.HasPrefix(magic, peMagic):
		return chibi.PEImage(path, base), nil
	case bytes.Equal(magic, elfMagic):
		return chibi.ELFImage(path, base), nil
	}
	return nil, fmt.Errorf("%s: unknown executable format", path)
}

func exeByPid(pid int32) (string, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return "", fmt.Errorf("process %d: %w", pid, err)
	}
	return p.Exe()
}

func exeByName(name string) (string, error) {
	processes, err := process.Processes()
	if err != nil {
		return "", err
	}
	for _, p := range processes {
		procName, err := p.Name()
		if err == nil && strings.EqualFold(procName, name) {
			return p.Exe()
		}
	}
	return "", fmt.Errorf("process not found: '%s'", name)
}
