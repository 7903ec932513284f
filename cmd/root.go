// Package cmd provides the tessera command-line interface.
//
// Configuration is read, highest priority first, from command-line flags,
// TESSERA_<SECTION>_<OPTION> environment variables and a YAML file. The
// file is the --config flag, else TESSERA_CONFIG_FILE, else .tessera.yml in
// the working directory.
package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/tessera/internal/config"
	"github.com/conneroisu/tessera/internal/logging"
)

// configFileEnv names the environment variable holding a config file path.
const configFileEnv = "TESSERA_CONFIG_FILE"

// app is the state shared by the commands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfgErr  error
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().ExecuteContext(context.Background())
}

// NewRootCommand builds the command tree with a fresh configuration.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}
	config.SetDefaults(a.v)

	root := &cobra.Command{
		Use:   "tessera",
		Short: "Render declarative HTML components on the server",
		Long: `Tessera renders custom elements declared with <template name="..."> as
declarative shadow DOM. Components carry mustache markup, directives,
reactive state and event handlers.

Quick Start:
  tessera init                     Write .tessera.yml and an example component
  tessera list                     List the components found under scan paths
  tessera render page.html         Upgrade the components used in a page
  tessera serve                    Start the preview server with live sessions`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.initConfig()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is .tessera.yml, can also use "+configFileEnv+")")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "auto", "log format (text, json, auto)")
	_ = a.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("logging.format", flags.Lookup("log-format"))

	root.AddCommand(
		newRenderCommand(a),
		newListCommand(a),
		newValidateCommand(a),
		newServeCommand(a),
		newInitCommand(a),
		newVersionCommand(),
	)
	return root
}

// initConfig points viper at the config file and enables environment
// overrides. A missing default file is not an error; a missing explicit one
// is reported by loadConfig.
func (a *app) initConfig() {
	switch {
	case a.cfgFile != "":
		a.v.SetConfigFile(a.cfgFile)
	case os.Getenv(configFileEnv) != "":
		a.v.SetConfigFile(os.Getenv(configFileEnv))
	default:
		a.v.AddConfigPath(".")
		a.v.SetConfigType("yaml")
		a.v.SetConfigName(".tessera")
	}
	config.ConfigureEnv(a.v)

	err := a.v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !stderrors.As(err, &notFound) {
		a.cfgErr = err
	}
}

func (a *app) loadConfig() (*config.Config, error) {
	if a.cfgErr != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", a.cfgErr)
	}
	cfg, err := config.LoadFrom(a.v)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newLogger logs to the command's stderr.
func newLogger(cmd *cobra.Command, cfg *config.Config) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Logging.Format,
		Output: cmd.ErrOrStderr(),
	}), nil
}

// setup loads the configuration and the logger every command starts with.
func (a *app) setup(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	if used := a.v.ConfigFileUsed(); used != "" && a.cfgErr == nil {
		logger.Debug(cmd.Context(), "using config file", "path", used)
	}
	return cfg, logger, nil
}
