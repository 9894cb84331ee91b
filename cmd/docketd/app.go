package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wudi/docketkit/account"
	"github.com/wudi/docketkit/audit"
	"github.com/wudi/docketkit/champion"
	"github.com/wudi/docketkit/compliance"
	"github.com/wudi/docketkit/config"
	"github.com/wudi/docketkit/configcard"
	"github.com/wudi/docketkit/extractor"
	"github.com/wudi/docketkit/intake"
	"github.com/wudi/docketkit/mail"
	"github.com/wudi/docketkit/observability"
	"github.com/wudi/docketkit/ocr"
	_ "github.com/wudi/docketkit/ocr/documentai"
	_ "github.com/wudi/docketkit/ocr/remote"
	_ "github.com/wudi/docketkit/ocr/tesseract"
	"github.com/wudi/docketkit/pipeline"
	"github.com/wudi/docketkit/server"
	"github.com/wudi/docketkit/stock"
	"github.com/wudi/docketkit/storage"
	"github.com/wudi/docketkit/store"
	"github.com/wudi/docketkit/team"
)

// app holds the wired services of one command invocation.
type app struct {
	cfg       *config.Config
	zap       *zap.Logger
	log       observability.Logger
	store     *store.Store
	audit     *audit.StoreWriter
	accounts  *account.Service
	processor *pipeline.Processor
}

// loadConfig reads and validates the configuration named by the flags.
func loadConfig(g *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(g.config)
	if err != nil {
		return nil, err
	}
	if g.verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, observability.Logger, error) {
	zl, err := observability.BuildZap(observability.ZapOptions{Level: cfg.Logging.Level, Encoding: cfg.Logging.Encoding})
	if err != nil {
		return nil, nil, err
	}
	return zl, observability.NewZap(zl).With(observability.String("service", "docketd")), nil
}

// openApp opens the store and, when withPipeline is set, builds the OCR
// engine and processor.
func openApp(ctx context.Context, g *globalFlags, withPipeline bool) (*app, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}
	zl, log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.Database.Path, log)
	if err != nil {
		_ = zl.Sync()
		return nil, err
	}
	a := &app{cfg: cfg, zap: zl, log: log, store: st, audit: audit.NewStoreWriter(st)}
	a.accounts = account.NewService(cfg.Accounts, st, a.audit, log)
	if withPipeline {
		if a.processor, err = a.newProcessor(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) newProcessor(ctx context.Context) (*pipeline.Processor, error) {
	bucket, err := storage.NewFSBucket(a.cfg.Storage.Root, a.cfg.Storage.Bucket)
	if err != nil {
		return nil, err
	}
	engine, err := ocr.New(ctx, a.cfg.OCR, a.log)
	if err != nil {
		return nil, err
	}
	a.log.Info("ocr engine ready", observability.String("engine", engine.Name()))
	return pipeline.New(a.cfg.Pipeline, pipeline.Deps{
		Uploader:  intake.NewUploader(bucket, a.cfg.Limits, a.cfg.Pipeline.ThumbnailSize, a.log),
		Engine:    engine,
		Store:     a.store,
		Extractor: extractor.New(a.cfg.Extraction),
		Rules:     a.cfg.Compliance,
		Audit:     a.audit,
		Limits:    a.cfg.Limits,
		Logger:    a.log,
		Tracer:    observability.LogTracer(a.log),
	})
}

// server wires every API service around the store.
func (a *app) server() (*server.Server, error) {
	mailer, err := mail.NewSender(a.cfg.Mail, a.log)
	if err != nil {
		return nil, err
	}
	return server.New(server.Deps{
		Store:       a.store,
		Accounts:    a.accounts,
		Team:        team.NewService(a.store, a.accounts, a.audit, mailer, a.cfg.Mail, a.log),
		Processor:   a.processor,
		Audit:       a.audit,
		ConfigCards: configcard.NewService(a.store, a.accounts, a.audit, a.log),
		Champion:    champion.NewService(a.store, a.accounts, a.audit, mailer, a.cfg.Mail, a.log),
		Compliance:  compliance.NewService(a.store, a.accounts, a.cfg.Compliance, a.audit, a.log),
		Stock:       stock.NewService(a.store, a.accounts, a.cfg.Stock, a.log),
		Limits:      a.cfg.Limits,
		Logger:      a.log,
	}, a.cfg.Server.Mode), nil
}

// Close releases the store and flushes the logger.
func (a *app) Close() error {
	err := a.store.Close()
	// Sync on a terminal stderr reports EINVAL; nothing was lost.
	_ = a.zap.Sync()
	return err
}

// requireTenant checks the client and user flags shared by the processing
// commands.
func requireTenant(clientID, userID string) error {
	if clientID == "" || userID == "" {
		return errors.New("--client and --user are required")
	}
	return nil
}
