// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// run.go - Command dispatch and handlers.
package cli

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/ngandimoun/minato-tui/internal/client"
	"github.com/ngandimoun/minato-tui/internal/config"
	"github.com/ngandimoun/minato-tui/internal/history"
	"github.com/ngandimoun/minato-tui/internal/logging"
	"github.com/ngandimoun/minato-tui/internal/model"
	"github.com/ngandimoun/minato-tui/internal/session"
	"github.com/ngandimoun/minato-tui/internal/ui/chat"
	"github.com/ngandimoun/minato-tui/internal/util"
)

// app bundles the shared pieces every command handler needs.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	api    *client.Client
	store  *history.Store // nil when history is disabled
}

// Run dispatches a parsed command.
func Run(args *Args) error {
	switch args.Command {
	case CmdHelp:
		PrintUsage()
		return nil
	case CmdVersion:
		PrintVersion()
		return nil
	}

	a, err := bootstrap(args)
	if err != nil {
		return err
	}
	defer a.shutdown()

	switch args.Command {
	case CmdTUI:
		return a.runTUI(args)
	case CmdSend:
		return a.runSend(args)
	case CmdVoice:
		return a.runVoice(args)
	case CmdHistory:
		return a.runHistory(args)
	case CmdConfig:
		return a.runConfig(args)
	default:
		PrintUsage()
		return nil
	}
}

// =============================================================================
// BOOTSTRAP
// =============================================================================

func bootstrap(args *Args) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if args.Debug {
		cfg.Logging.Debug = true
	}

	logger, err := logging.New(logging.Options{
		Dir:     cfg.Logging.Dir,
		Debug:   cfg.Logging.Debug,
		Console: args.Command != CmdTUI && cfg.Logging.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	if cfg.API.Key == "" {
		logger.Sync()
		return nil, fmt.Errorf("no API key configured (set MINATO_API_KEY or run 'minato config set api.key <key>')")
	}

	api := client.New(cfg.API.Key, logger.Named("client")).
		WithBaseURL(cfg.API.BaseURL).
		WithMaxRetries(cfg.API.MaxRetries).
		WithSendRate(cfg.API.SendsPerMinute, 2)
	if cfg.API.TimeoutSecs > 0 {
		plain := &http.Client{
			Timeout: time.Duration(cfg.API.TimeoutSecs) * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    100,
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		}
		streaming := &http.Client{Transport: plain.Transport}
		api = api.WithHTTPClients(plain, streaming)
	}

	a := &app{cfg: cfg, logger: logger, api: api}

	if cfg.History.Enabled {
		path, err := cfg.HistoryPath()
		if err == nil {
			store, err := history.Open(path, logger.Named("history"))
			if err == nil {
				a.store = store.WithMaxConversations(cfg.History.MaxConversations)
			} else {
				// Chat still works without local history.
				logger.Warn("history store unavailable", zap.Error(err))
			}
		}
	}

	return a, nil
}

func (a *app) shutdown() {
	if a.store != nil {
		a.store.Close()
	}
	a.logger.Sync()
}

// loadOrCreateConversation resumes --conv or starts fresh.
func (a *app) loadOrCreateConversation(ctx context.Context, id string) (*model.Conversation, error) {
	if id == "" || a.store == nil {
		return model.NewConversation(), nil
	}
	conv, err := a.store.LoadConversation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}
	return conv, nil
}

// =============================================================================
// TUI
// =============================================================================

func (a *app) runTUI(args *Args) error {
	ctx := context.Background()
	conv, err := a.loadOrCreateConversation(ctx, args.Conv)
	if err != nil {
		return err
	}

	// Config edits apply on the next launch; a watcher only logs the
	// change so debugging "why did my key stop working" stays possible.
	watcher, err := config.NewWatcher(config.ActivePath(), func(next *config.Config) {
		a.logger.Info("config file changed on disk",
			zap.String("theme", next.UI.Theme))
	}, a.logger.Named("config"))
	if err == nil {
		if werr := watcher.Watch(); werr == nil {
			defer watcher.Close()
		}
	}

	m := chat.New(a.cfg, a.api, conv, a.store, a.logger.Named("chat"))
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// =============================================================================
// ONE-SHOT SEND
// =============================================================================

func (a *app) runSend(args *Args) error {
	ctx := context.Background()
	conv, err := a.loadOrCreateConversation(ctx, args.Conv)
	if err != nil {
		return err
	}

	ctrl := session.NewController(a.api, conv, nil, a.logger.Named("session"))
	if err := ctrl.Start(ctx, args.Text, nil); err != nil {
		return err
	}

	final, err := ctrl.Wait(ctx)
	if err != nil {
		return err
	}
	return a.printTurnResult(args, conv, final)
}

func (a *app) runVoice(args *Args) error {
	audio, err := os.ReadFile(args.File)
	if err != nil {
		return fmt.Errorf("read audio clip: %w", err)
	}

	ctx := context.Background()
	conv, err := a.loadOrCreateConversation(ctx, args.Conv)
	if err != nil {
		return err
	}

	ctrl := session.NewController(a.api, conv, nil, a.logger.Named("session"))
	if err := ctrl.StartVoice(ctx, audio, args.File); err != nil {
		return err
	}

	final, err := ctrl.Wait(ctx)
	if err != nil {
		return err
	}
	return a.printTurnResult(args, conv, final)
}

// printTurnResult prints the assistant's answer and persists the turn.
func (a *app) printTurnResult(args *Args, conv *model.Conversation, final session.Update) error {
	if a.store != nil && a.cfg.History.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.store.SaveConversation(ctx, conv); err != nil {
			a.logger.Warn("local save failed", zap.Error(err))
		}
		cancel()
	}

	switch final.Phase {
	case session.PhaseFinalized:
		for _, m := range final.Messages {
			if m.ID == final.FinalID {
				if args.JSON {
					return json.NewEncoder(os.Stdout).Encode(m)
				}
				fmt.Println(m.Content)
				return nil
			}
		}
		return nil
	case session.PhaseErrored:
		if final.Err != nil {
			return final.Err
		}
		return fmt.Errorf("turn failed")
	default:
		return fmt.Errorf("turn ended in phase %s", final.Phase)
	}
}

// =============================================================================
// HISTORY
// =============================================================================

func (a *app) runHistory(args *Args) error {
	if a.store == nil {
		return fmt.Errorf("local history is disabled")
	}
	ctx := context.Background()
	rest := args.Parser.Positional()

	sub := ""
	if len(rest) > 0 {
		sub = rest[0]
	}

	switch sub {
	case "", "list":
		metas, err := a.store.ListConversations(ctx)
		if err != nil {
			return err
		}
		if args.JSON {
			return json.NewEncoder(os.Stdout).Encode(metas)
		}
		if len(metas) == 0 {
			fmt.Println("No saved conversations.")
			return nil
		}
		for _, meta := range metas {
			title := meta.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%s  %-40s  %3d messages  %s\n",
				meta.ID, util.TruncateRunes(title, 40), meta.MessageCount,
				util.RelativeTime(meta.UpdatedAt))
		}
		return nil

	case "show":
		if len(rest) < 2 {
			return fmt.Errorf("history show: conversation id required")
		}
		conv, err := a.store.LoadConversation(ctx, rest[1])
		if err != nil {
			return err
		}
		if args.JSON {
			return json.NewEncoder(os.Stdout).Encode(conv)
		}
		for _, m := range conv.Messages {
			fmt.Printf("[%s] %s\n", m.Role.DisplayName(), m.DisplayContent())
		}
		return nil

	case "export":
		if len(rest) < 3 {
			return fmt.Errorf("history export: conversation id and output file required")
		}
		conv, err := a.store.LoadConversation(ctx, rest[1])
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(conv, "", "  ")
		if err != nil {
			return err
		}
		if err := util.AtomicWriteFile(rest[2], data, 0o600); err != nil {
			return err
		}
		fmt.Printf("Exported %s to %s\n", rest[1], rest[2])
		return nil

	case "delete":
		if len(rest) < 2 {
			return fmt.Errorf("history delete: conversation id required")
		}
		if err := a.store.DeleteConversation(ctx, rest[1]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", rest[1])
		return nil

	default:
		return fmt.Errorf("unknown history subcommand %q", sub)
	}
}

// =============================================================================
// CONFIG
// =============================================================================

func (a *app) runConfig(args *Args) error {
	rest := args.Parser.Positional()
	sub := ""
	if len(rest) > 0 {
		sub = rest[0]
	}

	switch sub {
	case "", "show":
		shown := *a.cfg
		if shown.API.Key != "" {
			shown.API.Key = util.TruncateRunes(shown.API.Key, 8) + "..."
		}
		data, err := json.MarshalIndent(shown, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil

	case "path":
		fmt.Println(config.ActivePath())
		return nil

	case "set":
		if len(rest) < 3 {
			return fmt.Errorf("config set: key and value required")
		}
		if err := a.cfg.Set(rest[1], rest[2]); err != nil {
			return err
		}
		if err := a.cfg.Validate(); err != nil {
			return err
		}
		if err := config.Save(a.cfg); err != nil {
			return err
		}
		fmt.Printf("Set %s\n", rest[1])
		return nil

	default:
		return fmt.Errorf("unknown config subcommand %q", sub)
	}
}
