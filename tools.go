package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/maastricht-university/harmon/command"
	"github.com/maastricht-university/harmon/orchestrator"
)

var wakeToken string

var sentimentCmd = &cobra.Command{
	Use:   "sentiment <text>",
	Short: "Score the sentiment of a sentence",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSentiment,
}

var commandCmd = &cobra.Command{
	Use:   "command <text>",
	Short: "Show which wake-word command a sentence triggers",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCommand,
}

func init() {
	commandCmd.Flags().StringVar(&wakeToken, "wake", "", "wake token (default: wake.token)")
}

func runSentiment(cmd *cobra.Command, args []string) error {
	p := orchestrator.NewPipeline(conf, orchestrator.Deps{Log: logger})
	return printJSON(cmd.OutOrStdout(), p.Scorer().Score(strings.Join(args, " ")))
}

func runCommand(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if wakeToken != "" {
		return printJSON(cmd.OutOrStdout(), command.Match(text, wakeToken))
	}
	p := orchestrator.NewPipeline(conf, orchestrator.Deps{Log: logger})
	return printJSON(cmd.OutOrStdout(), p.Matcher().Match(text))
}
