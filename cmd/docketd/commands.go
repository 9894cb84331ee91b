package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wudi/docketkit/compliance"
	"github.com/wudi/docketkit/extractor"
	"github.com/wudi/docketkit/imaging"
	"github.com/wudi/docketkit/intake"
	"github.com/wudi/docketkit/observability"
	"github.com/wudi/docketkit/ocr"
	"github.com/wudi/docketkit/pipeline"
	"github.com/wudi/docketkit/recovery"
	"github.com/wudi/docketkit/store"
	"github.com/wudi/docketkit/streaming"
	"github.com/wudi/docketkit/watch"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serveCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, g, true)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			srv, err := a.server()
			if err != nil {
				return err
			}
			sc := a.cfg.Server
			return srv.Run(ctx, sc.Addr, sc.ReadTimeout, sc.WriteTimeout, sc.ShutdownTimeout)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

type runFlags struct {
	client    string
	user      string
	priority  string
	batchSize int
	strategy  string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.client, "client", "", "company id the dockets belong to")
	cmd.Flags().StringVar(&f.user, "user", "", "uploading user id")
	cmd.Flags().StringVar(&f.priority, "priority", "medium", "processing priority: high, medium or low")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 0, "files per batch (0 uses pipeline.batch_size)")
	cmd.Flags().StringVar(&f.strategy, "strategy", "", "lenient or strict (overrides pipeline.strategy)")
}

func processCmd(g *globalFlags) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "process FILE...",
		Short: "Bulk-process local docket images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTenant(f.client, f.user); err != nil {
				return err
			}
			priority, err := pipeline.ParsePriority(f.priority)
			if err != nil {
				return err
			}
			var strategy recovery.Strategy
			if f.strategy != "" {
				if strategy, err = recovery.New(f.strategy); err != nil {
					return err
				}
			}
			files := make([]intake.File, 0, len(args))
			for _, p := range args {
				file, err := intake.FromPath(p)
				if err != nil {
					return err
				}
				files = append(files, file)
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, g, true)
			if err != nil {
				return err
			}
			defer a.Close()

			stream := streaming.NewStream(len(files) + 8)
			done := make(chan struct{})
			go func() {
				defer close(done)
				for ev := range stream.Events() {
					if fd, ok := ev.(streaming.FileDoneEvent); ok {
						fmt.Fprintf(cmd.ErrOrStderr(), "[batch %d] %s: %s\n", fd.Batch, fd.File, fd.Status)
					}
				}
			}()
			sum, runErr := a.processor.Process(ctx, pipeline.Request{
				ClientID:  f.client,
				UserID:    f.user,
				Files:     files,
				Priority:  priority,
				BatchSize: f.batchSize,
				Strategy:  strategy,
				Stream:    stream,
			})
			stream.Close()
			<-done
			if sum.RunID != "" {
				if err := printJSON(cmd.OutOrStdout(), sum); err != nil {
					return err
				}
			}
			if runErr != nil {
				return runErr
			}
			if sum.Aborted {
				return fmt.Errorf("run aborted after %d failed files", sum.Failed)
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func watchCmd(g *globalFlags) *cobra.Command {
	var (
		f   runFlags
		dir string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Process images dropped into an inbox directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, g, true)
			if err != nil {
				return err
			}
			defer a.Close()
			wc := a.cfg.Watch
			if dir != "" {
				wc.Dir = dir
			}
			if f.client != "" {
				wc.ClientID = f.client
			}
			if f.user != "" {
				wc.UserID = f.user
			}
			if cmd.Flags().Changed("priority") {
				wc.Priority = f.priority
			}
			priority, err := pipeline.ParsePriority(wc.Priority)
			if err != nil {
				return err
			}
			w, err := watch.New(watch.Config{
				Dir:      wc.Dir,
				ClientID: wc.ClientID,
				UserID:   wc.UserID,
				Debounce: wc.Debounce,
				Priority: priority,
				MaxFiles: a.cfg.Limits.MaxFilesPerRequest,
			}, a.processor, a.log)
			if err != nil {
				return err
			}
			return w.Run(ctx)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&dir, "dir", "", "inbox directory (overrides watch.dir)")
	return cmd
}

func migrateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and report the schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, g, false)
			if err != nil {
				return err
			}
			defer a.Close()
			ran, err := a.store.Migrate(ctx)
			if err != nil {
				return err
			}
			v, err := a.store.Version(ctx)
			if err != nil {
				return err
			}
			a.log.Info("database ready", observability.Int("applied", ran), observability.Int("version", v))
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%d applied)\n", v, ran)
			return nil
		},
	}
}

func statsCmd(g *globalFlags) *cobra.Command {
	var client string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print bulk upload statistics of a company",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if client == "" {
				return fmt.Errorf("--client is required")
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, g, false)
			if err != nil {
				return err
			}
			defer a.Close()
			records, err := a.store.ListDeliveryRecords(ctx, store.RecordFilter{ClientID: client, BulkOnly: true})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pipeline.ComputeStats(records))
		},
	}
	cmd.Flags().StringVar(&client, "client", "", "company id")
	return cmd
}

type extraction struct {
	File       string             `json:"file"`
	Engine     string             `json:"engine,omitempty"`
	Confidence float64            `json:"confidence,omitempty"`
	Fields     extractor.Fields   `json:"fields"`
	Compliance *compliance.Report `json:"compliance"`
}

// extractCmd runs OCR and field extraction without storing anything. Text
// files skip OCR.
func extractCmd(g *globalFlags) *cobra.Command {
	var (
		psm       int
		whitelist string
	)
	cmd := &cobra.Command{
		Use:   "extract FILE...",
		Short: "Show the fields read from docket images or OCR text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			zl, log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer zl.Sync()
			ex := extractor.New(cfg.Extraction)
			now := time.Now()

			var (
				out    []extraction
				inputs []ocr.Input
			)
			for _, p := range args {
				data, err := os.ReadFile(p)
				if err != nil {
					return err
				}
				if !strings.HasPrefix(imaging.DetectContentType(data), "image/") {
					out = append(out, extraction{File: p, Fields: ex.Extract(string(data), now)})
					continue
				}
				var opts []ocr.InputOption
				if psm > 0 {
					opts = append(opts, ocr.WithTesseractPSM(psm))
				}
				if whitelist != "" {
					opts = append(opts, ocr.WithTesseractWhitelist(whitelist))
				}
				in, err := ocr.NewInput(p, p, data, opts...)
				if err != nil {
					return err
				}
				inputs = append(inputs, in)
			}
			if len(inputs) > 0 {
				engine, err := ocr.New(ctx, cfg.OCR, log)
				if err != nil {
					return err
				}
				results, err := ocr.RecognizeAll(ctx, engine, inputs)
				if err != nil {
					return err
				}
				for _, r := range results {
					out = append(out, extraction{
						File:       r.InputID,
						Engine:     engine.Name(),
						Confidence: r.Confidence,
						Fields:     ex.Extract(r.PlainText, now),
					})
				}
			}
			for i := range out {
				fl := out[i].Fields
				out[i].Compliance = cfg.Compliance.Evaluate(compliance.Delivery{ProductType: fl.ProductType, Temperatures: fl.Temperatures})
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().IntVar(&psm, "psm", 0, "tesseract page segmentation mode for these images")
	cmd.Flags().StringVar(&whitelist, "whitelist", "", "restrict tesseract to these characters")
	return cmd
}
