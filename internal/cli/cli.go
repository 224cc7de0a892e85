// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command parsing for the minato binary.
package cli

import (
	"fmt"
	"os"
	"runtime"
)

// Version information (can be overridden at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdSend
	CmdVoice
	CmdHistory
	CmdConfig
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	Command Command

	// Global flags
	Quiet   bool
	Debug   bool
	JSON    bool
	Conv    string // conversation id for send/history subcommands

	// Command-specific
	Text string // send: the message text
	File string // voice: path to the audio clip

	// Parser carries the remaining flags for subcommand handlers.
	Parser *ArgParser
}

const usageText = `minato - your AI companion, in the terminal

Usage:
  minato                      Start the chat TUI (default)
  minato send "message"       One-shot send, prints the reply
  minato voice <clip.wav>     Send a recorded voice clip
  minato history [subcommand] Local conversation history
  minato config [show|set|path]
  minato version
  minato help

History subcommands:
  history list                List saved conversations
  history show <id>           Print a conversation
  history export <id> <file>  Export a conversation as JSON
  history delete <id>         Delete a conversation

Flags:
  --conv <id>     Target an existing conversation (send, history)
  --json          Machine-readable output where supported
  --debug         Verbose logging to the log directory
  --quiet         Suppress non-essential output

Environment:
  MINATO_API_KEY      API key (overrides config)
  MINATO_BASE_URL     API base URL
  MINATO_THEME        dark | light | auto
  MINATO_DEBUG        1 to enable debug logging
`

// Parse turns os.Args-style input into an Args value.
func Parse(argv []string) (*Args, error) {
	p := NewArgParser(argv)

	args := &Args{
		Command: CmdTUI,
		Quiet:   p.BoolFlag("quiet"),
		Debug:   p.BoolFlag("debug"),
		JSON:    p.BoolFlag("json"),
		Conv:    p.Flag("conv"),
		Parser:  p,
	}

	// Flag-style spellings of help and version.
	if p.BoolFlag("help") || p.BoolFlag("h") {
		args.Command = CmdHelp
		return args, nil
	}
	if p.BoolFlag("version") || p.BoolFlag("v") {
		args.Command = CmdVersion
		return args, nil
	}

	switch p.Subcommand() {
	case "", "tui", "chat":
		args.Command = CmdTUI
	case "send", "ask":
		args.Command = CmdSend
		rest := p.Positional()
		if len(rest) == 0 {
			return nil, fmt.Errorf("send: message text required")
		}
		args.Text = rest[0]
	case "voice":
		args.Command = CmdVoice
		rest := p.Positional()
		if len(rest) == 0 {
			return nil, fmt.Errorf("voice: audio file required")
		}
		args.File = rest[0]
	case "history", "sessions":
		args.Command = CmdHistory
	case "config":
		args.Command = CmdConfig
	case "version":
		args.Command = CmdVersion
	case "help":
		args.Command = CmdHelp
	default:
		return nil, fmt.Errorf("unknown command %q (try 'minato help')", p.Subcommand())
	}

	return args, nil
}

// PrintUsage writes the usage text to stdout.
func PrintUsage() {
	fmt.Print(usageText)
}

// PrintVersion writes version details to stdout.
func PrintVersion() {
	fmt.Printf("minato %s (%s, %s, %s/%s)\n",
		Version, GitCommit, BuildDate, runtime.GOOS, runtime.GOARCH)
}

// Fatal prints an error and exits.
func Fatal(err error) {
	fmt.Fprintln(os.Stderr, "minato:", err)
	os.Exit(1)
}
