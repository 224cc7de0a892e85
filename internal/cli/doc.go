// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the minato command line.
//
// The default command launches the chat TUI. The rest are one-shot
// helpers layered on the same turn controller the TUI uses: send and
// voice run a single turn and print the reply, history browses the
// local SQLite cache, and config reads and writes the TOML file.
package cli
