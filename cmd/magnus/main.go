package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stupiduntilnot/magnus/internal/config"
	"github.com/stupiduntilnot/magnus/internal/console"
	"github.com/stupiduntilnot/magnus/internal/conversation"
	"github.com/stupiduntilnot/magnus/internal/db"
	"github.com/stupiduntilnot/magnus/internal/dummy"
	modelpkg "github.com/stupiduntilnot/magnus/internal/model"
	"github.com/stupiduntilnot/magnus/internal/openai"
	"github.com/stupiduntilnot/magnus/internal/session"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
	exitGateway = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string, stdin, stdout *os.File, stderr io.Writer) int {
	log.SetPrefix("")
	log.SetOutput(io.Discard)

	root := newRootCmd(stdin, stdout)
	root.AddCommand(newEventsCmd())
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(stderr, diagnostic(err))
	}
	return exitCode(err)
}

type chatFlags struct {
	configPath string
	envFile    string
	// envFileSet is true when --env-file was given; only then is a missing file an error.
	envFileSet bool
	verbose    bool
	eventLog   string
	markdown   bool
	provider   string
}

func newRootCmd(stdin, stdout *os.File) *cobra.Command {
	var f chatFlags

	cmd := &cobra.Command{
		Use:           "magnus",
		Short:         "Chat with the Magnus Liber Imperatorum about Roman and Byzantine emperors",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.verbose {
				log.SetOutput(cmd.ErrOrStderr())
			}
			f.envFileSet = cmd.Flags().Changed("env-file")
			return runChat(cmd.Context(), f, overridesFrom(cmd, &f), stdin, stdout, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&f.configPath, "config", "", "Settings file (.json, .toml, .yaml)")
	cmd.Flags().StringVar(&f.envFile, "env-file", ".env", "Environment file loaded before reading settings")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Log diagnostics to stderr")
	cmd.Flags().StringVar(&f.eventLog, "event-log", "", "SQLite turn journal path")
	cmd.Flags().BoolVar(&f.markdown, "markdown", false, "Render replies as markdown on a terminal")
	cmd.Flags().StringVar(&f.provider, "provider", "", "Completion provider: openai or dummy")
	return cmd
}

// overridesFrom keeps only the flags the user actually set.
func overridesFrom(cmd *cobra.Command, f *chatFlags) config.Overrides {
	var o config.Overrides
	flags := cmd.Flags()
	if flags.Changed("provider") {
		o.Provider = &f.provider
	}
	if flags.Changed("event-log") {
		o.EventLog = &f.eventLog
	}
	if flags.Changed("markdown") {
		o.RenderMarkdown = &f.markdown
	}
	if flags.Changed("verbose") {
		o.Verbose = &f.verbose
	}
	return o
}

func runChat(ctx context.Context, f chatFlags, overrides config.Overrides, stdin, stdout *os.File, stderr io.Writer) error {
	if err := config.LoadDotEnv(f.envFile, f.envFileSet); err != nil {
		return err
	}
	cfg, err := config.LoadWithOverrides(f.configPath, overrides)
	if err != nil {
		return err
	}
	if cfg.Verbose {
		log.SetOutput(stderr)
	}
	log.Printf("[magnus] config %s", cfg)

	systemText, err := config.LoadSystemMessage(cfg.SystemMessageFile)
	if err != nil {
		return err
	}
	messages, err := config.LoadMessages(cfg.MessagesFile, cfg.MessagesExplicit())
	if err != nil {
		return err
	}

	provider, err := newModelProvider(&cfg)
	if err != nil {
		return err
	}

	var journal session.Journal
	if cfg.EventLog != "" {
		database, err := db.OpenDB(cfg.EventLog)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		defer database.Close()
		if err := db.InitSchema(database); err != nil {
			return fmt.Errorf("init event log schema: %w", err)
		}
		journal = &db.Journal{DB: database}
		log.Printf("[magnus] journal path=%s", cfg.EventLog)
	}

	reader := console.NewReader(stdin)
	defer reader.Close()

	s, err := session.New(session.Options{
		Reader:        reader,
		Out:           stdout,
		Renderer:      console.NewRenderer(cfg.RenderMarkdown, stdout),
		Messages:      messages,
		SystemMessage: conversation.SystemMessage(systemText),
		Capacity:      cfg.HistoryLength,
		Provider:      provider,
		ProviderName:  cfg.Provider,
		Model:         cfg.Deployment,
		Params:        cfg.Sampling(),
		Journal:       journal,
	})
	if err != nil {
		return err
	}
	log.Printf("[magnus] session id=%s provider=%s history=%d", s.ID(), cfg.Provider, cfg.HistoryLength)
	return s.Run(ctx)
}

func newModelProvider(cfg *config.Config) (modelpkg.Provider, error) {
	switch cfg.Provider {
	case "dummy":
		p, err := dummy.NewProvider(cfg.Deployment, cfg.DummyScript)
		if err != nil {
			return nil, &config.Error{Source: "MAGNUS_DUMMY_SCRIPT", Err: err}
		}
		return p, nil
	default:
		c, err := openai.NewClient(
			openai.Style(cfg.APIStyle),
			cfg.Endpoint,
			cfg.Key,
			cfg.Deployment,
			cfg.APIVersion,
			cfg.RequestTimeout(),
		)
		if err != nil {
			return nil, &config.Error{Source: "openAiUri", Err: err}
		}
		log.Printf("[magnus] gateway url=%s", c.URL())
		return c, nil
	}
}

func exitCode(err error) int {
	var cfgErr *config.Error
	var gwErr *modelpkg.GatewayError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &cfgErr):
		return exitConfig
	case errors.As(err, &gwErr):
		return exitGateway
	default:
		return exitFailure
	}
}

func diagnostic(err error) string {
	var cfgErr *config.Error
	var gwErr *modelpkg.GatewayError
	switch {
	case errors.As(err, &cfgErr):
		return "configuration error: " + err.Error()
	case errors.As(err, &gwErr):
		return "request failed: " + err.Error()
	default:
		return "error: " + err.Error()
	}
}
