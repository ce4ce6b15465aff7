/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// terminal implements the screen capabilities on top of stdin/stdout.
type terminal struct {
	in  *bufio.Reader
	out io.Writer
	err io.Writer
	yes bool
}

func newTerminal(in io.Reader, out, errw io.Writer, yes bool) *terminal {
	return &terminal{in: bufio.NewReader(in), out: out, err: errw, yes: yes}
}

// confirm asks title/message and waits for y/yes. EOF or anything else is no.
func (t *terminal) confirm(ctx context.Context, title, message string) bool {
	if t.yes {
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	_, _ = fmt.Fprintf(t.out, "%s: %s [y/N] ", title, message)
	line, _ := t.in.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func (t *terminal) alert(title, message string) {
	_, _ = fmt.Fprintf(t.err, "%s: %s\n", title, message)
}

// fixedPhoto is a picker that hands out one uri given on the command line.
func fixedPhoto(uri string) func(context.Context) (string, bool, error) {
	return func(context.Context) (string, bool, error) { return uri, true, nil }
}

// printNav reports navigation instead of switching screens.
type printNav struct {
	out   io.Writer
	backs int
}

func (n *printNav) ShowDetail(id int64) { _, _ = fmt.Fprintf(n.out, "-> marker %d\n", id) }
func (n *printNav) Back()               { n.backs++ }
