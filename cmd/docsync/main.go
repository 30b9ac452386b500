package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/docsync/internal/config"
	"github.com/openmined/docsync/internal/utils"
	"github.com/openmined/docsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	home, _        = os.UserHomeDir()
	configFileName = "docsync"
	envPrefix      = "DOCSYNC"
)

var (
	red    = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	cyan   = color.New(color.FgHiCyan).SprintFunc()
)

// keys that can be set from the environment, e.g. DOCSYNC_SERVER_ADDR
var envKeys = []string{
	"session_file",
	"log_dir",
	"fetch_timeout",
	"page_timeout",
	"workers",
	"history_db",
	"server.addr",
	"server.rate_limit",
	"mirror.bucket",
	"mirror.region",
	"mirror.endpoint",
	"mirror.access_key",
	"mirror.secret_key",
	"mirror.prefix",
}

// flag name -> config key
var flagKeys = map[string]string{
	"session":    "session_file",
	"log-dir":    "log_dir",
	"history-db": "history_db",
	"workers":    "workers",
	"addr":       "server.addr",
}

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "docsync",
		Short:         "Keep local copies of vendor documentation PDFs in sync",
		Version:       version.Detailed(),
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringP("config", "c", "", "docsync config file (default: ./docsync.yaml, ~/.docsync, ~/.config/docsync)")
	cmd.PersistentFlags().StringP("session", "s", "", "portal session cookie file")
	cmd.PersistentFlags().String("log-dir", "", "directory for scraping.log and error.log")
	cmd.PersistentFlags().String("history-db", "", "sqlite run history database (empty disables history)")
	cmd.PersistentFlags().IntP("workers", "w", 0, "documents fetched in parallel")
	cmd.PersistentFlags().Bool("debug", false, "debug logging on stdout")

	cmd.AddCommand(
		newRunCmd(),
		newServeCmd(),
		newStatusCmd(),
		newHistoryCmd(),
		newInitCmd(),
		newVersionCmd(),
	)
	return cmd
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}

	// stdout only until a command knows where the log directory is
	setupStdoutLogger(os.Stdout, slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red("Error:"), err)
		stop()
		os.Exit(1)
	}
}

func stdoutHandler(w io.Writer, level slog.Level) slog.Handler {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    noColor,
	})
}

func setupStdoutLogger(w io.Writer, level slog.Level) {
	slog.SetDefault(slog.New(stdoutHandler(w, level)))
}

// setupLogging logs to stdout, to <logDir>/scraping.log and errors only to
// <logDir>/error.log. The returned func closes the log files.
func setupLogging(cmd *cobra.Command, logDir string) (func(), error) {
	level := slog.LevelInfo
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = slog.LevelDebug
	}

	if err := utils.EnsureDir(logDir); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	open := func(name string) (*os.File, error) {
		return os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	}
	scrapingLog, err := open("scraping.log")
	if err != nil {
		return nil, fmt.Errorf("open scraping log: %w", err)
	}
	errorLog, err := open("error.log")
	if err != nil {
		scrapingLog.Close()
		return nil, fmt.Errorf("open error log: %w", err)
	}

	// Do not include time as it is added by the log interceptor.
	noTime := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.TimeKey && len(groups) == 0 {
			return slog.Attr{}
		}
		return a
	}
	scrapingInterceptor := utils.NewLogInterceptor(scrapingLog)
	errorInterceptor := utils.NewLogInterceptor(errorLog)

	handler := utils.NewMultiLogHandler(
		stdoutHandler(cmd.OutOrStdout(), level),
		slog.NewTextHandler(scrapingInterceptor, &slog.HandlerOptions{Level: slog.LevelDebug, ReplaceAttr: noTime}),
		slog.NewTextHandler(errorInterceptor, &slog.HandlerOptions{Level: slog.LevelError, ReplaceAttr: noTime}),
	)
	prev := slog.Default()
	slog.SetDefault(slog.New(handler))

	return func() {
		slog.SetDefault(prev)
		scrapingInterceptor.Close()
		errorInterceptor.Close()
		scrapingLog.Close()
		errorLog.Close()
	}, nil
}

// loadConfig merges the config file, flags and DOCSYNC_* environment variables, applies
// defaults and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()

	if f := cmd.Flag("config"); f != nil && f.Changed {
		v.SetConfigFile(f.Value.String())
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(home, ".docsync"))
		v.AddConfigPath(filepath.Join(home, ".config", "docsync"))
		v.SetConfigName(configFileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	for name, key := range flagKeys {
		if f := cmd.Flag(name); f != nil && f.Changed {
			v.Set(key, f.Value.String())
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	v.AutomaticEnv()

	cfg := &config.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	cfg.Path = v.ConfigFileUsed()
	cfg.ApplyDefaults()
	if err := cfg.ResolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// prepare loads the config and switches logging to the configured log directory.
func prepare(cmd *cobra.Command) (*config.Config, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	closeLogs, err := setupLogging(cmd, cfg.LogDir)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Path != "" {
		slog.Debug("config loaded", "path", cfg.Path)
	}
	cmd.SilenceUsage = true
	return cfg, closeLogs, nil
}
