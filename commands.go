package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wa_message_composer/generator"
	"wa_message_composer/preview"
	"wa_message_composer/server"
	"wa_message_composer/sink"
	"wa_message_composer/whatsapp"
)

const shutdownTimeout = 30 * time.Second

var (
	serveAddr string

	genCategory string
	genMedia    string
	genTone     string
	genStrategy string
	genSeeds    []string
	genJSON     bool

	regenSlot int

	normCheck string
	normHTML  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		ctx := cmd.Context()

		p, err := buildPipeline(ctx, cfg, logger)
		if err != nil {
			return err
		}
		store, err := openStore(ctx, cfg.Sink)
		if err != nil {
			return fmt.Errorf("failed to open %s sink: %w", cfg.Sink.Kind, err)
		}
		recorder := sink.NewRecorder(store, logger.Named("sink"), cfg.Sink.WriteTimeout)
		defer func() {
			if err := recorder.Close(); err != nil {
				logger.Warn("sink close failed", zap.Error(err))
			}
		}()

		srv, err := server.New(p.orchestrator, p.regenerator, recorder, server.Options{
			RequestTimeout: cfg.Server.RequestTimeout,
			Logger:         logger.Named("server"),
		})
		if err != nil {
			return err
		}
		httpServer := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           srv.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("listening", zap.String("addr", cfg.Server.Addr), zap.String("sink", cfg.Sink.Kind))
			serverErrors <- httpServer.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		case sig := <-shutdown:
			logger.Info("shutting down", zap.String("signal", sig.String()))
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(sctx); err != nil {
				_ = httpServer.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}
			return nil
		}
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate <idea>",
	Short: "Generate three message variations",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(genSeeds) > 3 {
			return fmt.Errorf("at most 3 --seed values, got %d", len(genSeeds))
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p, err := buildPipeline(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}

		req := generator.GenerationRequest{
			SourceText: strings.Join(args, " "),
			Category:   whatsapp.Category(genCategory),
			Media:      generator.MediaPresentation(genMedia),
			Tone:       generator.VoiceTone(genTone),
		}
		copy(req.SeedFields[:], genSeeds)

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Server.RequestTimeout)
		defer cancel()
		res, err := p.orchestrator.GenerateWith(ctx, genStrategy, req)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if genJSON {
			return printJSON(out, res)
		}
		for i, v := range res.Variations {
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "--- message%d ---\n%s\n", i+1, v)
		}
		return nil
	},
}

var regenerateCmd = &cobra.Command{
	Use:   "regenerate <original text>",
	Short: "Regenerate a single variation slot",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p, err := buildPipeline(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Server.RequestTimeout)
		defer cancel()
		text, err := p.regenerator.Regenerate(ctx, strings.Join(args, " "),
			whatsapp.Category(genCategory), generator.MediaPresentation(genMedia), generator.VoiceTone(genTone), regenSlot)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize [text]",
	Short: "Convert Markdown-style markup to WhatsApp formatting",
	Long: `Normalizes text given as arguments, or read from stdin when none are given.
With --check the result is also checked against a category layout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		if len(args) == 0 {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			text = string(data)
		}

		out := whatsapp.Normalize(text)
		if normHTML {
			html, err := preview.Render(out)
			if err != nil {
				return err
			}
			out = html
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)

		if normCheck != "" {
			category := whatsapp.Category(normCheck)
			if !category.Valid() {
				return fmt.Errorf("unknown category %q", normCheck)
			}
			return whatsapp.CheckPattern(category, whatsapp.Normalize(text))
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")

	for _, c := range []*cobra.Command{generateCmd, regenerateCmd} {
		c.Flags().StringVar(&genCategory, "category", string(whatsapp.Marketing), "message category: marketing, authentication, utility, service")
		c.Flags().StringVar(&genMedia, "media", "", "media presentation: standard, image, video, pdf, carousel, catalog")
		c.Flags().StringVar(&genTone, "tone", "", "voice tone: professional, friendly, empathetic, cheeky, sincere, urgent")
	}
	generateCmd.Flags().StringVar(&genStrategy, "strategy", "", "generation strategy: sequential or fanout (defaults to config)")
	generateCmd.Flags().StringArrayVar(&genSeeds, "seed", nil, "draft to steer a variation (repeatable, up to 3)")
	generateCmd.Flags().BoolVar(&genJSON, "json", false, "print the raw result as JSON")

	regenerateCmd.Flags().IntVar(&regenSlot, "slot", 1, "variation slot to regenerate (1-3)")

	normalizeCmd.Flags().StringVar(&normCheck, "check", "", "check the result against a category layout")
	normalizeCmd.Flags().BoolVar(&normHTML, "html", false, "print an HTML preview instead of text")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
