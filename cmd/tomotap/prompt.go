// tomotap
// Copyright (c) 2025 The tomotap Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of tomotap.
//
// tomotap is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// tomotap is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with tomotap; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/tomotap/tomotap"
)

var (
	stdinOnce  sync.Once
	stdinLines chan string
)

// readLine returns the next stdin line, or false when ctx ends first. A
// single reader goroutine feeds every prompt.
func readLine(ctx context.Context) (string, bool) {
	stdinOnce.Do(func() {
		stdinLines = make(chan string)
		go func() {
			sc := bufio.NewScanner(os.Stdin)
			for sc.Scan() {
				stdinLines <- sc.Text()
			}
			close(stdinLines)
		}()
	})
	select {
	case line, ok := <-stdinLines:
		return line, ok
	case <-ctx.Done():
		return "", false
	}
}

func (a *app) decider() tomotap.Decider {
	if a.yes {
		return tomotap.AlwaysOverwrite
	}
	return func(ctx context.Context, uid string) tomotap.Decision {
		_, _ = fmt.Printf("Tag %s already holds data. Overwrite? [y/N] ", uid)
		line, ok := readLine(ctx)
		if !ok {
			_, _ = fmt.Println()
			return tomotap.DecisionCancel
		}
		if answer := strings.ToLower(strings.TrimSpace(line)); answer == "y" || answer == "yes" {
			return tomotap.DecisionOverwrite
		}
		return tomotap.DecisionCancel
	}
}

// confirm asks a yes/no question on stdin
func confirm(ctx context.Context, question string) bool {
	_, _ = fmt.Printf("%s [y/N] ", question)
	line, ok := readLine(ctx)
	if !ok {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
