package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/maastricht-university/harmon/clients"
	"github.com/maastricht-university/harmon/orchestrator"
	"github.com/maastricht-university/harmon/types"
)

var (
	replayAudio        string
	replayConversation string
	replayOutputs      string
)

var replayCmd = &cobra.Command{
	Use:   "replay [transcript.txt]",
	Short: "Run a recorded conversation through the pipeline and export the events",
	Long: `Replay feeds a conversation through the pipeline as if it were live and writes
every event to <outputs>/session_<timestamp>/events.json.

The input is either a text file with one utterance per line (blank lines and
lines starting with # are skipped) or, with --audio, a recording sent to the
configured ASR service.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayAudio, "audio", "", "audio file (wav/mp3/m4a) to transcribe instead of a transcript")
	replayCmd.Flags().StringVar(&replayConversation, "conversation", "", "conversation id (default: random)")
	replayCmd.Flags().StringVarP(&replayOutputs, "outputs", "o", "", "outputs directory (default: paths.outputs)")
}

func runReplay(cmd *cobra.Command, args []string) error {
	if (len(args) == 0) == (replayAudio == "") {
		return errors.New("replay needs either a transcript file or --audio")
	}
	ctx := cmd.Context()
	id := replayConversation
	if id == "" {
		id = uuid.NewString()
	}

	var (
		utts   []types.Utterance
		source string
		err    error
	)
	if replayAudio != "" {
		source = replayAudio
		utts, err = transcribe(ctx, replayAudio, id)
	} else {
		source = args[0]
		utts, err = readTranscript(args[0], id, time.Now().UTC())
	}
	if err != nil {
		return err
	}
	if len(utts) == 0 {
		return fmt.Errorf("%s: no utterances", source)
	}

	gen, err := newGenerator()
	if err != nil {
		return err
	}
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	p := orchestrator.NewPipeline(conf, orchestrator.Deps{Generator: gen, Store: st, Log: logger})
	log := logger.WithField("conversation_id", id)
	log.WithField("utterances", len(utts)).Info("replay started")
	events, err := p.Replay(ctx, id, utts)
	if serr := p.Shutdown(context.Background()); serr != nil {
		log.WithError(serr).Warn("pipeline shutdown failed")
	}
	if err != nil {
		return err
	}

	outputs := replayOutputs
	if outputs == "" {
		outputs = conf.Paths.Outputs
	}
	path, err := orchestrator.Export(outputs, id, source, events)
	if err != nil {
		return err
	}
	log.WithField("path", path).Info("replay exported")
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func transcribe(ctx context.Context, audio, conversationID string) ([]types.Utterance, error) {
	url := conf.Services.ASR.URL
	if url == "" {
		return nil, errors.New("--audio needs services.asr.url")
	}
	started := time.Now().UTC()
	resp, err := clients.NewHTTP(10*time.Minute).ASR(ctx, url, audio)
	if err != nil {
		return nil, err
	}
	logger.WithField("language", resp.Language).WithField("segments", len(resp.Segments)).Debug("transcribed")
	return resp.Utterances(conversationID, started), nil
}

// readTranscript loads one utterance per non-blank line, one second apart.
func readTranscript(path, conversationID string, started time.Time) ([]types.Utterance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var utts []types.Utterance
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		n := len(utts)
		utts = append(utts, types.Utterance{
			Text:           line,
			ConversationID: conversationID,
			SequenceIndex:  uint64(n),
			Timestamp:      started.Add(time.Duration(n) * time.Second),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return utts, nil
}
