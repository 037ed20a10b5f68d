package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maastricht-university/harmon/clients"
	"github.com/maastricht-university/harmon/orchestrator"
	"github.com/maastricht-university/harmon/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and the WebSocket conversation endpoint",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen, err := newGenerator()
	if err != nil {
		return err
	}
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.WithError(err).Warn("closing store failed")
		}
	}()

	hub := server.NewHub(logger)
	p := orchestrator.NewPipeline(conf, orchestrator.Deps{Generator: gen, Store: st, Sink: hub, Log: logger})
	dg := clients.NewDeepgram(conf.Transcription.URL, conf.Transcription.APIKey, logger)
	srv := server.New(server.Options{
		Addr:         conf.Server.Addr,
		AllowOrigins: conf.Server.AllowOrigins,
		Pipeline:     p,
		Hub:          hub,
		Transcriber:  dg,
		Services:     services(gen != nil, dg.Enabled()),
		RecentLimit:  conf.Store.RecentLimit,
		Log:          logger,
	})

	logger.WithField("version", conf.Pipeline.Version).Info("harmon starting")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return p.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("harmon stopped")
	return nil
}

func services(llm, transcription bool) map[string]string {
	state := func(ok bool, name string) string {
		if ok {
			return name
		}
		return "unavailable"
	}
	sentiment := "lexicon"
	if conf.Services.Sentiment.URL != "" {
		sentiment = "remote"
	}
	return map[string]string{
		"llm":           state(llm, conf.LLM.Provider),
		"transcription": state(transcription, "deepgram"),
		"store":         conf.Store.Backend,
		"sentiment":     sentiment,
		"wake_token":    conf.Wake.Token,
	}
}
