// Package cli builds the docstore command line: the HTTP server and one-shot
// document commands sharing the service configuration.
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nimburion/docstore/pkg/config"
	"github.com/nimburion/docstore/pkg/observability/logger"
	"github.com/nimburion/docstore/pkg/version"
)

const defaultEnvPrefix = "DOCSTORE"

// CommandOptions configures the root command.
type CommandOptions struct {
	Name        string
	Description string
	ConfigPath  string
	EnvPrefix   string

	// Optional: custom config validation, run after the built-in validation.
	ValidateConfig func(cfg *config.Config) error
}

// globalFlags holds the persistent flag values shared by every subcommand.
type globalFlags struct {
	configPath string
	secretFile string
	output     string
}

// NewServiceCommand creates the docstore CLI with serve, get, set, remove,
// remove-all, healthcheck and version subcommands. Running it without a
// subcommand starts the server.
func NewServiceCommand(opts CommandOptions) *cobra.Command {
	if opts.Name == "" {
		opts.Name = "docstore"
	}
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = defaultEnvPrefix
	}

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := &globalFlags{}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config-file", "c", opts.ConfigPath, "config file path")
	rootCmd.PersistentFlags().StringVar(&flags.secretFile, "secret-file", "", "path to secrets file (sets <PREFIX>_SECRETS_FILE)")
	rootCmd.PersistentFlags().StringVarP(&flags.output, "output", "o", formatJSON, "output format: json or yaml")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format override (json, text)")

	loadConfig := func(cmd *cobra.Command) (*config.Config, logger.Logger, error) {
		return LoadConfigAndLogger(flags.configPath, opts.EnvPrefix, flags.secretFile, opts.ValidateConfig, cmd.Flags(), cmd.ErrOrStderr())
	}

	rootCmd.AddCommand(
		newVersionCommand(opts.Name, flags),
		newServeCommand(loadConfig),
		newGetCommand(loadConfig, flags),
		newSetCommand(loadConfig),
		newRemoveCommand(loadConfig),
		newRemoveAllCommand(loadConfig),
		newHealthcheckCommand(loadConfig),
	)
	serveCmd, _, _ := rootCmd.Find([]string{"serve"})
	rootCmd.RunE = serveCmd.RunE

	return rootCmd
}

func newVersionCommand(name string, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Current(name)
			if cmd.Flags().Changed("output") {
				return writeOutput(cmd.OutOrStdout(), flags.output, info)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Service:    %s\n", info.Service)
			fmt.Fprintf(out, "Version:    %s\n", info.Version)
			fmt.Fprintf(out, "Commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "Build Time: %s\n", info.BuildTime)
			return nil
		},
	}
}

// LoadConfigAndLogger loads the configuration (flags > ENV > secrets file >
// config file > defaults) and builds the zap logger it describes. Log
// output goes to logOut so command output stays parseable.
func LoadConfigAndLogger(
	cfgPath,
	envPrefix,
	secretFilePath string,
	customValidator func(*config.Config) error,
	flags *pflag.FlagSet,
	logOut io.Writer,
) (*config.Config, logger.Logger, error) {
	if err := applySecretFileFlag(envPrefix, secretFilePath); err != nil {
		return nil, nil, err
	}

	cfg, err := config.NewViperLoader(cfgPath, envPrefix).WithFlags(flags).LoadWithSecrets()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	if customValidator != nil {
		if err := customValidator(cfg); err != nil {
			return nil, nil, fmt.Errorf("custom validation failed: %w", err)
		}
	}

	log, err := logger.NewZapLogger(logger.Config{
		Level:   logger.LogLevel(strings.ToLower(cfg.Log.Level)),
		Format:  logger.LogFormat(strings.ToLower(cfg.Log.Format)),
		Service: cfg.Service.Name,
		Output:  logOut,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	logConfigIfDebug(log, cfg)
	return cfg, log, nil
}

func applySecretFileFlag(envPrefix, secretFilePath string) error {
	if secretFilePath == "" {
		return nil
	}
	info, err := os.Stat(secretFilePath)
	if err != nil {
		return fmt.Errorf("secret file %s is not accessible: %w", secretFilePath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("secret file %s must not be a directory", secretFilePath)
	}
	return os.Setenv(resolveEnvPrefix(envPrefix)+"_SECRETS_FILE", filepath.Clean(secretFilePath))
}

// Execute runs the command and exits with appropriate code.
func Execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func logConfigIfDebug(log logger.Logger, cfg *config.Config) {
	if log == nil || cfg == nil {
		return
	}

	if !strings.EqualFold(cfg.Log.Level, string(logger.DebugLevel)) {
		return
	}

	log.Debug("effective configuration",
		"service", cfg.Service.Name,
		"environment", cfg.Service.Environment,
		"store_backend", cfg.Store.Backend,
		"http_port", cfg.HTTP.Port,
		"metrics_enabled", cfg.Observability.Metrics.Enabled,
		"tracing_enabled", cfg.Observability.Tracing.Enabled,
	)
}

func resolveEnvPrefix(prefix string) string {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		return defaultEnvPrefix
	}
	return strings.ToUpper(trimmed)
}
