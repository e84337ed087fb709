package client

import (
	"log/slog"

	"github.com/shrtyk/rsm/api"
	"github.com/shrtyk/rsm/pkg/logger"
)

type clientBuilder struct {
	transport api.Transport

	cfg    *api.RuntimeConfig
	logger *slog.Logger
}

// NewClientBuilder starts building a client session runtime that talks to
// the cluster over transport.
func NewClientBuilder(transport api.Transport) api.ClientBuilder {
	return &clientBuilder{
		transport: transport,
		cfg:       api.DefaultRuntimeConfig(),
	}
}

func (b *clientBuilder) Build() (api.Client, error) {
	log := b.logger
	if log == nil {
		log = logger.NewLogger(toLoggerEnv(b.cfg.Log.Env), false)
	}

	r := newRuntime(b.cfg, b.transport, log)
	r.start()
	return r, nil
}

func (b *clientBuilder) WithConfig(cfg *api.RuntimeConfig) api.ClientBuilder {
	b.cfg = cfg
	return b
}

func (b *clientBuilder) WithLogger(l *slog.Logger) api.ClientBuilder {
	b.logger = l
	return b
}

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
