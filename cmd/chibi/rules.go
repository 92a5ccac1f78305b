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
	"strconv"

	"github.com/spf13/cobra"

	"github.com/qrdl/chibi"
)

func newRulesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rules",
		Aliases: []string{"r"},
		Short:   "Manages scaling rules",
	}
	cmd.AddCommand(
		newListCmd(a),
		newAddCmd(a),
		newRemoveCmd(a),
		newToggleCmd(a, "enable", true),
		newToggleCmd(a, "disable", false),
		newExportCmd(a),
		newImportCmd(a),
	)
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var sorted bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Lists rules, in the order they are applied",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.store()
			if err != nil {
				return err
			}
			rules := s.Rules()
			if sorted {
				rules = s.Ordered()
			}
			out := cmd.OutOrStdout()
			for i, r := range rules {
				line := fmt.Sprintf("%-16s %-24q x%-6g vfx=%-5t", colorField(r.Field), r.Value, r.Scale, r.ScaleEffect)
				if !r.Enabled {
					line = colorDisabled(line + " (disabled)")
				}
				if sorted {
					fmt.Fprintln(out, line)
				} else {
					fmt.Fprintf(out, "%3d  %s\n", i, line)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&sorted, "sorted", false, "sort by field, value and scale")
	return cmd
}

func newAddCmd(a *app) *cobra.Command {
	var vfx, disabled bool
	cmd := &cobra.Command{
		Use:   "add <field> <value> <scale>",
		Short: "Adds rule scaling objects whose field equals value",
		Long: "Adds rule scaling objects whose field equals value. Field is one of Name, " +
			"ModelCharaID, ModelSkeletonID, DataID and ObjectID.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			field, err := chibi.ParseFieldKind(args[0])
			if err != nil {
				return err
			}
			scale, err := strconv.ParseFloat(args[2], 32)
			if err != nil {
				return fmt.Errorf("%w: scale %q", chibi.ErrInvalidRule, args[2])
			}
			rule := &chibi.Rule{
				Field:       field,
				Value:       args[1],
				Scale:       float32(scale),
				ScaleEffect: vfx,
				Enabled:     !disabled,
			}

			s, err := a.store()
			if err != nil {
				return err
			}
			added, err := s.Add(rule)
			if err != nil {
				return err
			}
			report(cmd, added, rule)
			return nil
		},
	}
	cmd.Flags().BoolVar(&vfx, "vfx", false, "scale visual effects too")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "add rule disabled")
	return cmd
}

func report(cmd *cobra.Command, added bool, r *chibi.Rule) {
	if added {
		fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", r)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", colorWarn("already exists"), r)
	}
}

func parseIndex(arg string) (int, error) {
	i, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid rule index %q", arg)
	}
	return i, nil
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <index>",
		Aliases: []string{"rm"},
		Short:   "Removes rule",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			s, err := a.store()
			if err != nil {
				return err
			}
			r, err := s.At(i)
			if err != nil {
				return err
			}
			if err := s.Remove(i); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", r)
			return nil
		},
	}
}

func newToggleCmd(a *app, verb string, enable bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <index>",
		Short: verb + "s rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			s, err := a.store()
			if err != nil {
				return err
			}
			changed, err := s.Update(i, func(r *chibi.Rule) { r.Enabled = enable })
			if err != nil {
				return err
			}
			if !changed {
				a.log.Infof("rule %d is already %sd", i, verb)
			}
			return nil
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "export <index>",
		Short: "Copies rule to clipboard, to share it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			s, err := a.store()
			if err != nil {
				return err
			}
			if !printOnly {
				return s.ExportTo(a.clipboard, i)
			}
			r, err := s.At(i)
			if err != nil {
				return err
			}
			text, err := chibi.ExportRule(r)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "print instead of copying to clipboard")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import [text]",
		Short: "Adds rule shared by export, from clipboard or argument",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.store()
			if err != nil {
				return err
			}
			var added bool
			if len(args) == 1 {
				added, err = s.Import(args[0])
			} else {
				added, err = s.ImportFrom(a.clipboard)
			}
			if err != nil {
				return err
			}
			if !added {
				fmt.Fprintln(cmd.OutOrStdout(), colorWarn("already exists"))
				return nil
			}
			r, err := s.At(s.Len() - 1)
			if err != nil {
				return err
			}
			report(cmd, true, r)
			return nil
		},
	}
}
