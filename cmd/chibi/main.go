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

// Command chibi manages object scaling rules and checks game function signatures against
// game executables.
package main

import (
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/qrdl/chibi"
	"github.com/qrdl/chibi/clipboard"
	"github.com/qrdl/chibi/config"
)

var (
	colorAddr     = color.New(color.Bold, color.FgHiGreen).SprintfFunc()
	colorField    = color.New(color.FgHiCyan).SprintFunc()
	colorDisabled = color.New(color.Faint).SprintFunc()
	colorWarn     = color.New(color.FgYellow).SprintFunc()
)

type app struct {
	configPath string
	verbose    bool
	clipboard  chibi.Clipboard
	log        *log.Logger
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "chibi",
		Short:         "Scales game characters according to user rules",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.log = &log.Logger{Handler: cli.New(cmd.ErrOrStderr()), Level: log.InfoLevel}
			if a.verbose {
				a.log.Level = log.DebugLevel
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", defaultConfigPath(), "configuration file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	root.AddCommand(newScanCmd(a), newRulesCmd(a))
	return root
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "chibi.json"
	}
	return filepath.Join(dir, "chibi", "chibi.json")
}

// store opens rule store backed by the configuration file.
func (a *app) store() (*chibi.RuleStore, error) {
	s := chibi.NewRuleStore(config.New(a.configPath), a.log)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

func main() {
	a := &app{clipboard: clipboard.System{}}
	if err := newRootCmd(a).Execute(); err != nil {
		if a.log != nil {
			a.log.Error(err.Error())
		} else {
			os.Stderr.WriteString(err.Error() + "\n")
		}
		os.Exit(1)
	}
}
