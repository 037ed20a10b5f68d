package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/maastricht-university/harmon/clients"
	"github.com/maastricht-university/harmon/config"
	"github.com/maastricht-university/harmon/store"
	"github.com/maastricht-university/harmon/types/interfaces"
)

var (
	configPath string
	logLevel   string

	// Set by PersistentPreRunE for every subcommand.
	conf     *config.Root
	logger   *logrus.Logger
	closeLog func() error
)

var rootCmd = &cobra.Command{
	Use:   "harmon",
	Short: "Real-time conversation analysis pipeline",
	Long: `Harmon scores the sentiment of each utterance in a conversation, tracks the
emotional trend to surface interventions, and answers wake-word commands such as
"harmon summarize" or "harmon translate hello to spanish".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath, bindFlag("pipeline.log_level", cmd.Root().PersistentFlags().Lookup("log-level")))
		if err != nil {
			return err
		}
		log, cleanup, err := config.SetupLogger(c.Pipeline)
		if err != nil {
			return err
		}
		conf, logger, closeLog = c, log, cleanup
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if closeLog != nil {
			return closeLog()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: config/$CONFIG_ENV/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd, replayCmd, sentimentCmd, commandCmd)
}

// bindFlag lets an explicitly set flag override the file and environment.
func bindFlag(key string, f *pflag.Flag) config.Option {
	return func(v *viper.Viper) error {
		if f == nil || !f.Changed {
			return nil
		}
		return v.BindPFlag(key, f)
	}
}

// newGenerator builds the configured LLM client. A hosted provider without a
// key still starts: commands then fail and interventions use canned text.
func newGenerator() (interfaces.Generator, error) {
	gen, err := clients.NewGenerator(conf.LLM)
	if errors.Is(err, clients.ErrNoAPIKey) {
		logger.WithField("provider", conf.LLM.Provider).Warn("no LLM API key configured")
		return nil, nil
	}
	return gen, err
}

func openStore(ctx context.Context) (interfaces.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, config.DurSeconds(conf.Store.TimeoutSeconds))
	defer cancel()
	return store.New(ctx, conf.Store)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
