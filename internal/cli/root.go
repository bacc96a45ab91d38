// Package cli implements the parley command line.
package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/parley/internal/config"
	"github.com/tOgg1/parley/internal/logging"
)

// Execute runs the root command.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

// app carries the global flags and the loaded configuration.
type app struct {
	configFile string
	baseURL    string
	token      string
	tokenEnv   string
	logLevel   string
	jsonOut    bool
	yamlOut    bool
	noCache    bool

	cfg      *config.Config
	contexts *config.ContextStore
}

func newRootCmd(version string) *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "parley",
		Short:         "Conversation sync client",
		Long:          "parley keeps a local view of your chat threads in sync with the server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if !hasTTY() {
				return cmd.Help()
			}
			return a.runTUI(cmd, "", "")
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default: ~/.config/parley/config.yaml)")
	flags.StringVar(&a.baseURL, "base-url", "", "API base URL")
	flags.StringVar(&a.token, "token", "", "API bearer token (prefer --token-env)")
	flags.StringVar(&a.tokenEnv, "token-env", "", "environment variable holding the API token")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVar(&a.jsonOut, "json", false, "output JSON")
	flags.BoolVar(&a.yamlOut, "yaml", false, "output YAML")
	flags.BoolVar(&a.noCache, "no-cache", false, "do not read or write the local snapshot cache")

	cmd.AddCommand(
		newThreadsCmd(a),
		newUseCmd(a),
		newMessagesCmd(a),
		newSendCmd(a),
		newDeleteCmd(a),
		newBlockCmd(a, true),
		newBlockCmd(a, false),
		newSearchCmd(a),
		newStartCmd(a),
		newWatchCmd(a),
		newTUICmd(a),
	)

	return cmd
}

// load reads configuration and applies flag overrides:
// defaults < config file < env vars < CLI flags
func (a *app) load(cmd *cobra.Command) error {
	if a.jsonOut && a.yamlOut {
		return usageError(cmd, "--json and --yaml are mutually exclusive")
	}

	loader := config.NewLoader()
	if a.configFile != "" {
		loader.SetConfigFile(a.configFile)
	}
	if strings.TrimSpace(a.baseURL) != "" {
		loader.Set("api.base_url", strings.TrimSpace(a.baseURL))
	}
	if strings.TrimSpace(a.token) != "" {
		loader.Set("api.token", strings.TrimSpace(a.token))
	}
	if strings.TrimSpace(a.tokenEnv) != "" {
		loader.Set("api.token_env", strings.TrimSpace(a.tokenEnv))
	}
	if a.noCache {
		loader.Set("cache.enabled", false)
	}
	if a.logLevel != "" {
		loader.Set("logging.level", a.logLevel)
	}

	cfg, err := loader.Load()
	if err != nil {
		return Exitf(ExitCodeConfig, "%v", err)
	}
	a.cfg = cfg
	a.contexts = config.NewContextStore("")
	if cfg.Global.ConfigDir != "" {
		a.contexts = config.NewContextStore(filepath.Join(cfg.Global.ConfigDir, "context.yaml"))
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	logCfg.EnableCaller = cfg.Logging.EnableCaller
	if cfg.Logging.File != "" {
		file, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return Exitf(ExitCodeConfig, "open log file: %v", err)
		}
		logCfg.Output = file
	}
	logging.Init(logCfg)
	return nil
}

func (a *app) format() outputFormat {
	switch {
	case a.jsonOut:
		return formatJSON
	case a.yamlOut:
		return formatYAML
	default:
		return formatTable
	}
}
