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

// Package clipboard shares rules through the system clipboard.
package clipboard

import (
	"errors"
	"fmt"
	"sync"

	sysclip "golang.design/x/clipboard"
)

var ErrEmpty = errors.New("clipboard has no text")

var (
	initOnce sync.Once
	initErr  error
)

// System is the system clipboard, it implements chibi.Clipboard.
type System struct{}

func (System) init() error {
	initOnce.Do(func() {
		if err := sysclip.Init(); err != nil {
			initErr = fmt.Errorf("clipboard unavailable: %w", err)
		}
	})
	return initErr
}

func (c System) ReadText() (string, error) {
	if err := c.init(); err != nil {
		return "", err
	}
	text := sysclip.Read(sysclip.FmtText)
	if len(text) == 0 {
		return "", ErrEmpty
	}
	return string(text), nil
}

func (c System) WriteText(text string) error {
	if err := c.init(); err != nil {
		return err
	}
	sysclip.Write(sysclip.FmtText, []byte(text))
	return nil
}
