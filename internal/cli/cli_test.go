// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import "testing"

func TestArgParserFlagFormats(t *testing.T) {
	p := NewArgParser([]string{"show", "--lines", "50", "--since=2026-01-01", "--json", "-v"})

	if p.Subcommand() != "show" {
		t.Errorf("Subcommand() = %q, want show", p.Subcommand())
	}
	if got := p.Flag("lines"); got != "50" {
		t.Errorf("Flag(lines) = %q", got)
	}
	if got := p.Flag("since"); got != "2026-01-01" {
		t.Errorf("Flag(since) = %q", got)
	}
	if !p.BoolFlag("json") {
		t.Error("BoolFlag(json) = false")
	}
	if !p.BoolFlag("v") {
		t.Error("BoolFlag(v) = false")
	}
}

func TestArgParserExplicitBool(t *testing.T) {
	p := NewArgParser([]string{"--json=false", "--debug=true"})
	if p.BoolFlag("json") {
		t.Error("explicit --json=false reported true")
	}
	if !p.BoolFlag("debug") {
		t.Error("explicit --debug=true reported false")
	}
}

func TestArgParserIntFlag(t *testing.T) {
	p := NewArgParser([]string{"--limit", "25", "--bad", "xyz"})
	if got := p.IntFlag("limit", 10); got != 25 {
		t.Errorf("IntFlag(limit) = %d, want 25", got)
	}
	if got := p.IntFlag("bad", 10); got != 10 {
		t.Errorf("IntFlag(bad) = %d, want fallback 10", got)
	}
	if got := p.IntFlag("missing", 7); got != 7 {
		t.Errorf("IntFlag(missing) = %d, want 7", got)
	}
}

func TestParseCommands(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want Command
	}{
		{"default tui", nil, CmdTUI},
		{"explicit chat", []string{"chat"}, CmdTUI},
		{"send", []string{"send", "hello"}, CmdSend},
		{"ask alias", []string{"ask", "hello"}, CmdSend},
		{"voice", []string{"voice", "clip.wav"}, CmdVoice},
		{"history", []string{"history", "list"}, CmdHistory},
		{"config", []string{"config", "show"}, CmdConfig},
		{"version", []string{"version"}, CmdVersion},
		{"version flag", []string{"--version"}, CmdVersion},
		{"short version flag", []string{"-v"}, CmdVersion},
		{"help", []string{"help"}, CmdHelp},
		{"help flag", []string{"--help"}, CmdHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := Parse(tt.argv)
			if err != nil {
				t.Fatalf("Parse(%v) error: %v", tt.argv, err)
			}
			if args.Command != tt.want {
				t.Errorf("Command = %d, want %d", args.Command, tt.want)
			}
		})
	}
}

func TestParseSendRequiresText(t *testing.T) {
	if _, err := Parse([]string{"send"}); err == nil {
		t.Error("Parse(send) without text did not fail")
	}
}

func TestParseRejectsUnknownCommand(t *testing.T) {
	if _, err := Parse([]string{"frobnicate"}); err == nil {
		t.Error("unknown command accepted")
	}
}

func TestParseGlobalFlags(t *testing.T) {
	args, err := Parse([]string{"send", "hi", "--json", "--conv", "conv-9", "--debug"})
	if err != nil {
		t.Fatal(err)
	}
	if !args.JSON || !args.Debug {
		t.Error("global flags not picked up")
	}
	if args.Conv != "conv-9" {
		t.Errorf("Conv = %q", args.Conv)
	}
	if args.Text != "hi" {
		t.Errorf("Text = %q", args.Text)
	}
}
