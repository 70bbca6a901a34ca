package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/michaelbrown/artoo/internal/bot"
	"github.com/michaelbrown/artoo/internal/config"
	"github.com/michaelbrown/artoo/internal/dispatch"
	"github.com/michaelbrown/artoo/internal/payload"
	"github.com/michaelbrown/artoo/internal/sandbox"
	"github.com/michaelbrown/artoo/internal/server"
	"github.com/michaelbrown/artoo/internal/slack"
	"github.com/michaelbrown/artoo/internal/storage"
	"github.com/michaelbrown/artoo/internal/storage/sqlite"
)

// consoleIdentity stands in for the Slack user ID in console mode.
const consoleIdentity = "artoo"

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Sandbox.Timeout = timeoutFlag
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if listenFlag != "" {
		cfg.Server.Listen = listenFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := sandbox.NewRunner(cfg.Sandbox, cfg.Interpreters, logger)
	if err != nil {
		return fmt.Errorf("creating sandbox: %w", err)
	}
	logger.Info("sandbox ready", zap.String("mode", string(runner.Mode())), zap.Duration("timeout", runner.Timeout()))

	identity := consoleIdentity
	var client *slack.Client
	var creds config.Credentials
	if !consoleFlag || len(args) == 1 {
		creds, err = config.LoadCredentials(args[0])
		if err != nil {
			return err
		}
		identity = creds.ID
	}
	if !consoleFlag {
		client = slack.NewClient(slack.Options{
			Token:     creds.Token,
			APIURL:    cfg.Slack.APIURL,
			FileHosts: cfg.Slack.FileHosts,
		}, logger)
	}

	var fetcher payload.Fetcher
	if client != nil {
		fetcher = client
	}
	resolver := payload.NewResolver(fetcher, logger)

	table, err := buildTable(cfg, runner, resolver)
	if err != nil {
		return err
	}
	dispatcher := dispatch.New(cfg.Bot.Name, dispatch.NewParser(identity), table, logger)

	var ledger storage.Store
	if !consoleFlag && !watchFlag && cfg.Storage.DBPath != "" {
		store, err := sqlite.Open(cfg.Storage.DBPath)
		if err != nil {
			return fmt.Errorf("opening ledger: %w", err)
		}
		defer store.Close()
		ledger = store
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := bot.Options{
		Dispatcher: dispatcher,
		Ledger:     ledger,
		PollDelay:  cfg.Bot.PollDelay,
		Retention:  cfg.Storage.Retention,
	}
	if watchFlag {
		opts.Watcher = bot.NewWatcher(os.Stdout)
	}

	var b *bot.Bot
	if consoleFlag {
		con, err := newConsole(cfg.Bot.Name, identity, !watchFlag, cancel)
		if err != nil {
			return err
		}
		defer con.Close()
		opts.Connector = con
		opts.Poster = con
		b = bot.New(opts, logger)
		con.stats = b.Stats()
	} else {
		opts.Connector = rtmConnector(client, creds.ID)
		opts.Poster = client
		opts.Tagger = client
		b = bot.New(opts, logger)
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return b.Run(gctx)
	})
	if cfg.Server.Listen != "" {
		srv := server.New(server.Info{
			Bot:         cfg.Bot.Name,
			SandboxMode: runner.Mode(),
			Timeout:     runner.Timeout(),
		}, table, b.Stats(), ledger, logger)
		g.Go(func() error {
			return srv.Run(gctx, cfg.Server.Listen)
		})
	}
	return g.Wait()
}

// buildTable binds every configured interpreter to an instruction of the
// same name, plus "help".
func buildTable(cfg *config.Config, exec dispatch.Executor, resolver *payload.Resolver) (*dispatch.HandlerTable, error) {
	handlers := map[dispatch.Instruction]dispatch.Handler{
		"help": dispatch.HelpHandler,
	}
	for name := range cfg.Interpreters {
		instr := dispatch.Instruction(name)
		if instr == "help" {
			return nil, fmt.Errorf("interpreter name %q is reserved", name)
		}
		handlers[instr] = dispatch.NewCodeHandler(name, exec, resolver)
	}
	return dispatch.NewHandlerTable(handlers)
}

func rtmConnector(client *slack.Client, identity string) bot.Connector {
	return bot.ConnectFunc(func(ctx context.Context) (bot.Source, error) {
		rtm, err := client.DialRTM(ctx, nil)
		if err != nil {
			return nil, err
		}
		if rtm.Self() != "" && rtm.Self() != identity {
			logger.Warn("identity file does not match the token's bot user; mentions may be missed",
				zap.String("idfile", identity), zap.String("slack", rtm.Self()))
		}
		return rtm, nil
	})
}
