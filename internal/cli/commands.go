package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dyike/AnalystCouncil/config"
	"github.com/dyike/AnalystCouncil/consts"
	"github.com/dyike/AnalystCouncil/internal/council"
	"github.com/dyike/AnalystCouncil/internal/display"
	"github.com/dyike/AnalystCouncil/internal/logger"
	"github.com/dyike/AnalystCouncil/internal/server"
	"github.com/dyike/AnalystCouncil/pkg/app"
)

type options struct {
	out       io.Writer
	prompter  Prompter
	buildOpts []app.BuildOption
	resolver  SymbolResolver
}

type Option func(*options)

func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

func WithPrompter(p Prompter) Option {
	return func(o *options) { o.prompter = p }
}

// WithBuildOptions is applied to every engine the CLI builds.
func WithBuildOptions(opts ...app.BuildOption) Option {
	return func(o *options) { o.buildOpts = append(o.buildOpts, opts...) }
}

// WithResolver replaces the symbol search client configured by symbol_search_url.
func WithResolver(r SymbolResolver) Option {
	return func(o *options) { o.resolver = r }
}

type cliApp struct {
	options
	configPath string
	debug      bool
}

// NewRootCmd creates the root command
func NewRootCmd(opts ...Option) *cobra.Command {
	a := &cliApp{options: options{out: os.Stdout, prompter: surveyPrompter{}}}
	for _, opt := range opts {
		opt(&a.options)
	}

	rootCmd := &cobra.Command{
		Use:   "council",
		Short: "Analyst Council - five AI investment experts and a chair",
		Long: `Analyst Council asks five investment personas (value, growth, macro, quant, momentum)
to analyse the same instrument in parallel, then has a chair synthesise a single verdict.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Default behavior: start interactive mode
			return a.runInteractive(cmd.Context())
		},
	}

	rootCmd.AddCommand(a.newAnalyzeCmd())
	rootCmd.AddCommand(a.newServeCmd())
	rootCmd.AddCommand(a.newHistoryCmd())
	rootCmd.AddCommand(a.newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	// Global flags
	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Configuration file path")

	rootCmd.SetOut(a.out)
	return rootCmd
}

func (a *cliApp) manager() (*config.Manager, error) {
	return config.NewManager(config.WithConfigPath(a.configPath), config.WithLogger(logger.New(logger.Options{Level: "warn"})))
}

// loadConfig reads the config file and applies environment overrides.
func (a *cliApp) loadConfig() (config.Config, error) {
	mgr, err := a.manager()
	if err != nil {
		return config.Config{}, err
	}
	cfg := mgr.Get().WithEnv()
	if a.debug {
		cfg.Debug = true
	}
	return cfg, nil
}

func (a *cliApp) buildEngine(cfg config.Config, extra ...app.BuildOption) (*app.Engine, error) {
	opts := append(append([]app.BuildOption{}, a.buildOpts...), extra...)
	return app.BuildEngine(cfg, opts...)
}

// session wires console approval and progress output into a fresh engine.
type session struct {
	engine   *app.Engine
	display  *display.ResultsDisplay
	progress *progress
	resolver SymbolResolver
}

func (a *cliApp) newSession(cfg config.Config) (*session, error) {
	d := display.NewResultsDisplay(a.out)
	p := &progress{display: d}
	engine, err := a.buildEngine(cfg, app.WithCouncilOptions(
		council.WithApprover(consoleApprover{prompter: a.prompter, display: d}),
		council.WithObserver(p.observe),
	))
	if err != nil {
		return nil, err
	}
	s := &session{engine: engine, display: d, progress: p, resolver: a.resolver}
	if s.resolver == nil {
		s.resolver = engine.Resolver
	}
	return s, nil
}

func (s *session) run(ctx context.Context, subject string, approve, asJSON bool, out io.Writer) error {
	s.progress.reset(asJSON)
	if !asJSON {
		s.display.Info(fmt.Sprintf("Convening the council on %s...", subject))
	}
	report, err := s.engine.Analyze(ctx, subject, approve)
	if errors.Is(err, council.ErrApprovalDeclined) {
		s.display.Info(report.StatusMessage)
		if errors.Is(err, errQuit) {
			return errQuit
		}
		return nil
	}
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	s.display.Report(report)
	if s.engine.Config.HistoryFile != "" {
		s.display.Info("Saved to " + s.engine.Config.HistoryFile)
	}
	return nil
}

func (a *cliApp) newAnalyzeCmd() *cobra.Command {
	var (
		noApprove bool
		approve   bool
		asJSON    bool
		yes       bool
	)
	cmd := &cobra.Command{
		Use:   "analyze [SUBJECT]",
		Short: "Run one council session for a ticker or company name",
		Long: `Run a council session for one instrument.
Example: council analyze AAPL --no-approve`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			s, err := a.newSession(cfg)
			if err != nil {
				return err
			}
			defer s.engine.Close()

			requireApproval := cfg.RequireApproval
			if cmd.Flags().Changed("approve") {
				requireApproval = approve
			}
			if noApprove || asJSON {
				requireApproval = false
			}

			ctx := cmd.Context()
			var subject string
			if len(args) == 1 {
				subject = args[0]
			} else {
				if subject, err = PromptForSubject(a.prompter); err != nil {
					if errors.Is(err, errQuit) {
						return nil
					}
					return err
				}
			}
			if !yes && !asJSON {
				if subject, err = ConfirmSubject(ctx, a.prompter, s.resolver, subject); err != nil {
					return err
				}
			}
			return s.run(ctx, subject, requireApproval, asJSON, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&approve, "approve", false, "Ask for approval before the chair synthesises (default from config)")
	cmd.Flags().BoolVar(&noApprove, "no-approve", false, "Skip the approval checkpoint")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON (implies --no-approve --yes)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Use SUBJECT as given without ticker confirmation")
	return cmd
}

// runInteractive loops over subjects until the operator quits.
func (a *cliApp) runInteractive(ctx context.Context) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	s, err := a.newSession(cfg)
	if err != nil {
		return err
	}
	defer s.engine.Close()

	DisplayWelcomeBanner(a.out)
	for {
		input, err := PromptForSubject(a.prompter)
		if errors.Is(err, errQuit) {
			fmt.Fprintln(a.out, "Goodbye.")
			return nil
		}
		if err != nil {
			return err
		}

		subject, err := ConfirmSubject(ctx, a.prompter, s.resolver, input)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			s.display.Error(err)
			continue
		}

		if err := s.run(ctx, subject, cfg.RequireApproval, false, a.out); err != nil {
			if errors.Is(err, errQuit) {
				fmt.Fprintln(a.out, "Goodbye.")
				return nil
			}
			s.display.Error(err)
		}
		fmt.Fprintln(a.out, strings.Repeat("-", 60))
	}
}

func (a *cliApp) newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the council over HTTP, reloading on config changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			log := logger.New(logger.Options{Level: mgr.Get().LogLevel, File: mgr.Get().LogFile})
			rt, err := app.NewRuntime(mgr,
				app.WithRuntimeLogger(log),
				app.WithBuilder(func(cfg config.Config) (*app.Engine, error) {
					cfg = cfg.WithEnv()
					if a.debug {
						cfg.Debug = true
					}
					return a.buildEngine(cfg)
				}),
			)
			if err != nil {
				return err
			}
			defer rt.Close()

			if addr == "" {
				addr = rt.Engine().Config.ServerAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.New(rt, log).Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config server_addr)")
	return cmd
}

func (a *cliApp) newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent council sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			engine, err := a.buildEngine(cfg)
			if err != nil {
				return err
			}
			defer engine.Close()

			records, err := engine.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No sessions recorded yet.")
				return nil
			}
			for _, r := range records {
				verdict := r.Verdict
				if verdict == "" {
					verdict = "no verdict"
				}
				fmt.Fprintf(out, "%s  %-10s  %-10s  %d/%d  %s\n",
					r.CreatedAt.Format("2006-01-02 15:04"), r.Subject, r.SystemStatus, r.Succeeded, consts.ExpertCount, verdict)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of sessions to list")
	return cmd
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Analyst Council %s\n", Version)
		},
	}
}

// newConfigCmd creates the config command
func (a *cliApp) newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			showConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			return validateConfig(cmd.OutOrStdout(), cfg)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set one configuration value by its json key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			if err := mgr.Set(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s updated in %s\n", args[0], mgr.Path())
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), mgr.Path())
			return nil
		},
	})

	return configCmd
}

var secretKeys = map[string]bool{
	"openai_api_key": true, "deepseek_api_key": true, "openrouter_api_key": true,
	"longport_app_key": true, "longport_app_secret": true, "longport_access_token": true,
	"redis_password": true,
}

// showConfig prints every setting, masking secrets.
func showConfig(out io.Writer, cfg config.Config) {
	raw, _ := json.Marshal(cfg)
	var fields map[string]any
	_ = json.Unmarshal(raw, &fields)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintln(out, "Current Analyst Council configuration:")
	for _, k := range keys {
		v := fields[k]
		if secretKeys[k] {
			if s, _ := v.(string); s != "" {
				v = "configured"
			} else {
				v = "not configured"
			}
		}
		fmt.Fprintf(out, "  %-24s %v\n", k, v)
	}
}

// validateConfig checks config values and warns about models no configured provider can reach.
func validateConfig(out io.Writer, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(out, "Configuration is invalid:")
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("directory validation failed: %w", err)
	}

	var warnings []string
	if cfg.OpenRouterAPIKey == "" {
		warnings = append(warnings, "OPENROUTER_API_KEY not set: claude/gemini and vendor/model ids will fail")
	}
	if cfg.OpenAIAPIKey == "" {
		warnings = append(warnings, "OPENAI_API_KEY not set: gpt-* and o-series ids will fail")
	}
	if cfg.DeepSeekAPIKey == "" {
		warnings = append(warnings, "DEEPSEEK_API_KEY not set: deepseek-* ids will fail")
	}
	if cfg.QuoteProvider == config.QuoteProviderLongport && cfg.LongportAppKey == "" {
		warnings = append(warnings, "longport quotes selected but LONGPORT_APP_KEY not set: running without price context")
	}

	for _, w := range warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
	if len(warnings) == 0 {
		fmt.Fprintln(out, "Configuration validation completed successfully.")
	} else {
		fmt.Fprintf(out, "Configuration is valid with %d warnings.\n", len(warnings))
	}
	return nil
}
