package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"predictdash/internal/app"
	"predictdash/internal/config"
	"predictdash/internal/infra/logx"
	"predictdash/internal/mockapi"
	"predictdash/internal/ui"
)

var (
	v          = config.New()
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "predictdash",
	Short: "Operator dashboard for predictions and publishing",
	Long: `predictdash is a terminal dashboard for the prediction service.

It lists operations, fixtures, the publishing queue and models, and runs the
preview and publish workflow for a single fixture.`,
	SilenceUsage: true,
	RunE:         runTUI,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Start the dashboard (default)",
	RunE:  runTUI,
}

var mockCmd = &cobra.Command{
	Use:   "mock-api",
	Short: "Serve an in-memory stand-in of the remote service",
	RunE:  runMock,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", config.DefaultPath(), "Config file (TOML)")
	pf.String("base-url", "", "Base URL of the prediction service")
	pf.String("token", "", "Admin token (otherwise taken from prefs)")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.Bool("verbose", false, "Do not truncate long log fields")

	bind("api.base_url", "base-url")
	bind("api.token", "token")
	bind("log.level", "log-level")
	bind("log.verbose", "verbose")

	mockCmd.Flags().String("addr", ":8089", "Listen address")
	mockCmd.Flags().String("mock-token", "", "Token the mock requires (empty accepts any)")

	rootCmd.AddCommand(tuiCmd, mockCmd)
}

// bind lets a persistent flag override the config key when it is set.
func bind(key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.LoadFrom(v, configPath)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setupLogging routes logx (and the standard logger) to debug.log when
// DEBUG is set. The alt screen owns stdout otherwise, so logs are dropped.
func setupLogging(cfg config.Config) (func(), error) {
	logx.SetMinLevel(logx.ParseLevel(cfg.Log.Level))
	logx.SetVerbose(cfg.Log.Verbose)
	if len(os.Getenv("DEBUG")) == 0 {
		logx.SetOutput(io.Discard)
		return func() {}, nil
	}
	f, err := tea.LogToFile("debug.log", "debug")
	if err != nil {
		return nil, err
	}
	logx.SetMinLevel(logx.LevelDebug)
	logx.SetOutput(f)
	log.SetOutput(logx.StdlogWriter(logx.LevelDebug, f))
	fmt.Println("Debug logging enabled. Run 'tail -f debug.log' to view logs.")
	return func() { _ = f.Close() }, nil
}

func runTUI(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	closeLog, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	a := app.New(ctx, cfg, app.Options{})
	defer func() {
		if err := a.Close(); err != nil {
			logx.Warnw("flush prefs", "err", err)
		}
	}()

	if _, err := tea.NewProgram(ui.New(a), tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}

func runMock(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadFrom(v, configPath)
	if err != nil {
		return err
	}
	logx.SetMinLevel(logx.ParseLevel(cfg.Log.Level))
	logx.SetOutput(os.Stderr)
	gin.SetMode(gin.ReleaseMode)

	addr, _ := cmd.Flags().GetString("addr")
	token, _ := cmd.Flags().GetString("mock-token")
	srv := mockapi.New(mockapi.Options{Token: token, AdminHeader: cfg.API.AdminHeader})
	srv.Seed()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.ListenAndServe(ctx, addr)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
