// minato - your AI companion, in the terminal.
//
// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"os"

	"github.com/ngandimoun/minato-tui/internal/cli"
)

func main() {
	args, err := cli.Parse(os.Args[1:])
	if err != nil {
		cli.Fatal(err)
	}
	if err := cli.Run(args); err != nil {
		cli.Fatal(err)
	}
}
