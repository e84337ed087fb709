package server

import (
	"log/slog"

	"github.com/shrtyk/rsm/api"
	"github.com/shrtyk/rsm/pkg/logger"
	"github.com/shrtyk/rsm/storage"
)

type executorBuilder struct {
	// required
	sm   api.StateMachine
	feed api.LogFeed

	// optional with defaults
	cfg       *api.RuntimeConfig
	persister api.Persister
	cmdLog    *storage.WALLog
	logger    *slog.Logger
}

// NewExecutorBuilder starts building an Executor that drives sm off feed.
func NewExecutorBuilder(sm api.StateMachine, feed api.LogFeed) *executorBuilder {
	return &executorBuilder{
		sm:   sm,
		feed: feed,
		cfg:  api.DefaultRuntimeConfig(),
	}
}

// WithCommandLog attaches a command audit log (storage.WALLog). Not part
// of api.ExecutorBuilder since it names a concrete storage type the api
// package cannot import without a cycle; call it before chaining the
// interface-typed With* methods.
func (b *executorBuilder) WithCommandLog(l *storage.WALLog) *executorBuilder {
	b.cmdLog = l
	return b
}

func (b *executorBuilder) Build() (api.Executor, error) {
	log := b.logger
	if log == nil {
		log = logger.NewLogger(toLoggerEnv(b.cfg.Log.Env), false)
	}

	return newExecutor(b.cfg, b.sm, b.feed, b.persister, b.cmdLog, log), nil
}

func (b *executorBuilder) WithConfig(cfg *api.RuntimeConfig) api.ExecutorBuilder {
	b.cfg = cfg
	return b
}

func (b *executorBuilder) WithPersister(p api.Persister) api.ExecutorBuilder {
	b.persister = p
	return b
}

func (b *executorBuilder) WithLogger(l *slog.Logger) api.ExecutorBuilder {
	b.logger = l
	return b
}

// toLoggerEnv maps api.Environment onto pkg/logger's own Enviroment type.
// The two are kept distinct because api.Environment is part of the public
// config surface while logger.Enviroment is an implementation detail
// borrowed from the teacher package as-is.
func toLoggerEnv(env api.Environment) logger.Enviroment {
	switch env {
	case api.Prod:
		return logger.Prod
	case api.Staging:
		return logger.Staging
	default:
		return logger.Dev
	}
}
