package main

import (
	"log/slog"

	"github.com/nova-repository/newsrepo/internal/archive"
	"github.com/nova-repository/newsrepo/internal/config"
	"github.com/nova-repository/newsrepo/internal/connector"
	"github.com/nova-repository/newsrepo/internal/logging"
	"github.com/nova-repository/newsrepo/internal/ocr"
	"github.com/nova-repository/newsrepo/internal/ocr/layout"
	"github.com/nova-repository/newsrepo/internal/ocr/shellocr"
	"github.com/nova-repository/newsrepo/internal/pipeline"
	"github.com/nova-repository/newsrepo/internal/pubsub"
	"github.com/nova-repository/newsrepo/internal/queue"
	"github.com/nova-repository/newsrepo/internal/repository/fs"
	"github.com/nova-repository/newsrepo/internal/repository/sqlstore"
	"github.com/nova-repository/newsrepo/internal/searchindex"

	"database/sql"
)

// app lazily wires every component a subcommand might need, closing
// what it opened. One composition root per CLI invocation rather than
// a long-lived DI container, since each newsrepo invocation is a
// short-lived process.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	repoDB *sql.DB
	store  *sqlstore.Store
	q      *queue.Queue

	mainDB *sql.DB
	conn   *connector.Connector

	searchDB *sql.DB
	index    *searchindex.Index

	archiveClient *archive.Client
}

func newApp(cfg config.Config) *app {
	return &app{cfg: cfg, logger: logging.New(cfg.LogLevel)}
}

func (a *app) Store() (*sqlstore.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	db, err := sqlstore.Open(a.cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	layout := fs.New(a.cfg.RepositoryPath)
	if err := layout.EnsureStructure(); err != nil {
		db.Close()
		return nil, err
	}
	a.repoDB = db
	a.store = sqlstore.New(db, layout)
	return a.store, nil
}

func (a *app) Queue() (*queue.Queue, error) {
	if a.q != nil {
		return a.q, nil
	}
	if _, err := a.Store(); err != nil {
		return nil, err
	}
	a.q = queue.New(a.repoDB)
	return a.q, nil
}

func (a *app) Connector() (*connector.Connector, error) {
	if a.conn != nil {
		return a.conn, nil
	}
	store, err := a.Store()
	if err != nil {
		return nil, err
	}
	mainDB, err := connector.OpenMainStore(a.cfg.MainDatabasePath)
	if err != nil {
		return nil, err
	}
	a.mainDB = mainDB
	a.conn = connector.New(store, mainDB)
	return a.conn, nil
}

func (a *app) SearchIndex() (*searchindex.Index, error) {
	if a.index != nil {
		return a.index, nil
	}
	db, err := searchindex.Open(a.cfg.SearchIndexPath)
	if err != nil {
		return nil, err
	}
	a.searchDB = db
	a.index = searchindex.New(db)
	return a.index, nil
}

func (a *app) ArchiveClient() *archive.Client {
	if a.archiveClient == nil {
		a.archiveClient = archive.New(a.logger, archive.WithRateLimit(a.cfg.Downloader.RateLimit), archive.WithMaxAttempts(a.cfg.Downloader.RetryAttempts))
	}
	return a.archiveClient
}

// PipelineService builds a pipeline.Service wired against the
// configured OCR engine (shellocr by default) and layout analyzer.
func (a *app) PipelineService() (*pipeline.Service, error) {
	store, err := a.Store()
	if err != nil {
		return nil, err
	}
	q, err := a.Queue()
	if err != nil {
		return nil, err
	}
	conn, err := a.Connector()
	if err != nil {
		return nil, err
	}

	var engineOpts []shellocr.Option
	if a.cfg.OCR.Engine != "" {
		engineOpts = append(engineOpts, shellocr.WithBinary(a.cfg.OCR.Engine))
	}
	var engine ocr.Engine = shellocr.New(a.logger, engineOpts...)

	return pipeline.New(pipeline.Deps{
		Queue:        q,
		Store:        store,
		OCREngine:    engine,
		Layout:       layout.New(),
		Connector:    conn,
		Publisher:    pubsub.New(a.logger, 64),
		Logger:       a.logger,
		Workers:      a.cfg.OCR.MaxWorkers,
		PollInterval: a.cfg.Queue.PollInterval,
		BatchSize:    a.cfg.Queue.BatchSize,
		ImageLoader:  pipeline.DefaultImageLoader,
		TextLoader:   pipeline.DefaultTextLoader,
	}), nil
}

func (a *app) Close() {
	if a.searchDB != nil {
		a.searchDB.Close()
	}
	if a.mainDB != nil {
		a.mainDB.Close()
	}
	if a.repoDB != nil {
		a.repoDB.Close()
	}
}
