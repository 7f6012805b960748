// Command lumi is the voice client: it captures microphone audio, segments
// it into utterances, ships each one to lumid over a persistent websocket
// and plays the spoken reply.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/lumivoice/lumi/internal/avatar"
	"github.com/lumivoice/lumi/internal/config"
	"github.com/lumivoice/lumi/internal/logging"
	"github.com/lumivoice/lumi/internal/transport"
	"github.com/lumivoice/lumi/internal/vad"
	"github.com/lumivoice/lumi/pkg/capture"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "lumi.yaml", "path to the YAML configuration file")
	serverURL := flag.String("server", "", "override the server websocket URL")
	saveDir := flag.String("save-replies", "", "write replies to this directory instead of playing them")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lumi: %v\n", err)
		return 1
	}
	if *serverURL != "" {
		cfg.Client.ServerURL = *serverURL
	}
	if cfg.Client.ServerURL == "" {
		fmt.Fprintln(os.Stderr, "lumi: no server URL configured (client.server_url or -server)")
		return 1
	}

	logger := logging.New(string(cfg.Server.LogLevel))
	slog.SetDefault(logger.Logger)

	var player Player
	if *saveDir != "" {
		player, err = NewFilePlayer(*saveDir)
		if err != nil {
			slog.Error("failed to set up reply directory", "err", err)
			return 1
		}
	} else {
		player = NewFFplayPlayer("")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source := capture.NewFFmpegSource(cfg.Client.Capture.SourceOptions()...)
	listener, err := vad.NewListener(source, cfg.Client.VAD.Detector(),
		vad.WithLogger(logger.Logger))
	if err != nil {
		slog.Error("invalid vad configuration", "err", err)
		return 1
	}

	sess, err := transport.NewSession(transport.Config{
		URL:                  cfg.Client.ServerURL,
		RequestTimeout:       cfg.Client.RequestTimeout,
		ReconnectInterval:    cfg.Client.ReconnectInterval,
		MaxReconnectAttempts: cfg.Client.MaxReconnectAttempts,
		Logger:               logger.Logger,
	})
	if err != nil {
		slog.Error("invalid transport configuration", "err", err)
		return 1
	}
	if err := sess.Open(ctx); err != nil {
		slog.Error("cannot reach server", "url", cfg.Client.ServerURL, "err", err)
		return 1
	}
	defer sess.Close()

	tracker := avatar.NewTracker()
	slog.Info("lumi ready", "server", cfg.Client.ServerURL)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := listener.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("capture: %w", err)
		}
		return err
	})

	// Ship each utterance. The transport enforces one in-flight request;
	// speech during a pending exchange is dropped, not queued.
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case utt, ok := <-listener.Utterances():
				if !ok {
					return nil
				}
				tracker.SpeechStarted()
				slog.Debug("utterance detected",
					"duration", utt.Duration(),
					"bytes", len(utt.Audio))
				switch err := sess.Send(ctx, utt.Audio); {
				case err == nil:
					tracker.UtteranceSent()
				case errors.Is(err, transport.ErrRequestInFlight):
					slog.Debug("dropping utterance, request already in flight")
				case errors.Is(err, transport.ErrNotConnected):
					slog.Warn("dropping utterance, not connected")
				case errors.Is(err, transport.ErrClosed):
					return nil
				default:
					slog.Warn("send failed", "err", err)
				}
			}
		}
	})

	// Handle replies.
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case res := <-sess.Results():
				tracker.ObserveResult(res)
				switch {
				case res.Err != nil:
					slog.Warn("request failed", "err", res.Err)
				case len(res.Audio) > 0:
					tracker.PlaybackStarted()
					if err := player.Play(ctx, res.Audio); err != nil {
						slog.Warn("playback failed", "err", err)
					}
					tracker.PlaybackFinished()
				case res.FallbackText != "":
					fmt.Println(res.FallbackText)
					tracker.PlaybackFinished()
				}
			}
		}
	})

	// Watch connection lifecycle; exhausted reconnects end the client.
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev := <-sess.Status():
				tracker.ObserveStatus(ev)
				switch ev.Kind {
				case transport.StatusReconnecting:
					slog.Info("reconnecting", "attempt", ev.Attempt)
				case transport.StatusConnected:
					slog.Info("connected")
				case transport.StatusDisconnected:
					slog.Warn("connection lost", "err", ev.Err)
				case transport.StatusReconnectFailed:
					return fmt.Errorf("transport: %w", ev.Err)
				case transport.StatusClosed:
					return nil
				}
			}
		}
	})

	// Surface avatar state changes for the presentation layer.
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case tr := <-tracker.Transitions():
				slog.Debug("avatar state", "from", tr.From.String(), "to", tr.To.String())
			}
		}
	})

	err = g.Wait()
	source.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("client error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}
