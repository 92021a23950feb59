// Package cli implements the askdocs command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"askdocs/internal/config"
	"askdocs/internal/logging"
)

var (
	cfgFile       string
	currentConfig *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:           "askdocs",
	Short:         "askdocs answers questions about your documents and analyses them from several angles",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyOverrides(cfg)
		if err := config.Validate(cfg); err != nil {
			return err
		}
		logging.Init(cfg.Log.Level, cfg.Log.Format)
		currentConfig = cfg
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	viper.SetEnvPrefix("ASKDOCS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (default ./askdocs.yaml or ~/.config/askdocs/config.yaml)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text or json")
	pf.Int("top-k", 0, "number of chunks retrieved per question")
	pf.Bool("parallel", false, "run independent pipeline stages concurrently")

	for _, name := range []string{"log-level", "log-format", "top-k", "parallel"} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}
}

func loadConfig() (*config.AppConfig, error) {
	if cfgFile == "" {
		cfgFile = viper.GetString("config")
	}
	if cfgFile != "" {
		return config.Load(cfgFile)
	}
	cfg, _, err := config.LoadDefault()
	return cfg, err
}

// applyOverrides layers flags and ASKDOCS_* environment variables over the file values.
func applyOverrides(cfg *config.AppConfig) {
	if v := viper.GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := viper.GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
	if v := viper.GetInt("top-k"); v > 0 {
		cfg.Retriever.TopK = v
	}
	if viper.IsSet("parallel") && viper.GetBool("parallel") {
		cfg.Pipeline.Parallel = true
	}
}

func getConfig() *config.AppConfig { return currentConfig }
