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

/*
Package chibi scales characters of a running game client according to user rules.

It intercepts a function the game calls for every visible object on every frame, and changes
visual scale of objects matching enabled rules. Every change is remembered, so it can be undone
when the rule is disabled or removed, and when the module stops.

# Platforms supported

The package patches machine code of the running process, therefore is OS- and CPU arch-specific.

Supported OSes:

  - Windows
  - Linux
  - FreeBSD (other BSD flavours should also be ok)

Supported CPU archs:

  - x86-64
  - ARM64 aka Aarch64

Native hooks (calling convention aware interception of non-Go functions) are available on
Windows only. On other platforms Go functions can be intercepted with [Hook], which is what the
tests and the simulated host use.

# Building blocks

  - [Locator] finds function by byte signature in executable sections of a [CodeImage].
  - [Detours] installs jumps to interceptors and lets them call the original function.
  - [Gate] limits how often the same object is evaluated.
  - [RuleStore] keeps user rules and persists them through [Persister].
  - [Scaler] applies rules to live objects, accessed through [Objects], and undoes them.
  - [Module] ties everything together and drives the lifecycle.

# Inlining

Go functions cannot be intercepted once inlined, so mark them with //go:noinline or run tests with
-gcflags=-l:

	go test -gcflags=-l ./...

Example:

	rules := chibi.NewRuleStore(persister, logger)
	if err := rules.Load(); err != nil {
	    return err
	}
	m, err := chibi.NewModule(chibi.Services{
	    Locator: chibi.NewLocator(image),
	    Detours: chibi.NewDetours(nil, logger),
	    Binder:  chibi.NativeBinder{},
	    Rules:   rules,
	    Objects: &chibi.NativeObjects{Layout: layout, Draw: draw},
	    Zones:   zones,
	    Logger:  logger,
	})
	if err != nil {
	    return err
	}
	if err := m.Start(); err != nil {
	    return err
	}
	defer m.Stop()
*/
package chibi
