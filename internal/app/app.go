// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"time"

	"campaign-client/internal/campaign/archive"
	"campaign-client/internal/campaign/gateway"
	"campaign-client/internal/campaign/notify"
	"campaign-client/internal/campaign/pipeline"
	"campaign-client/internal/campaign/results"
	"campaign-client/internal/campaign/session"
	"campaign-client/internal/common/auth"
	awsclients "campaign-client/internal/common/aws"
	"campaign-client/internal/common/config"
	"campaign-client/internal/common/database"
	httpclient "campaign-client/internal/common/http"
	"campaign-client/internal/common/logger"
	"campaign-client/internal/common/observability"
	"campaign-client/pkg/registry"

	"github.com/google/uuid"
)

const (
	connectAttempts = 5
	connectDelay    = time.Second
)

// App is a fully wired campaign client.
type App struct {
	Config     *config.Config
	Controller *pipeline.Controller
	Gateway    *gateway.Gateway
	Store      *results.Store
	Catalog    *registry.ResolutionCatalog
	Archive    *archive.PostgresArchive
	Obs        *observability.Observability

	logger  logger.Logger
	closers []func()
}

// Build wires every component from cfg. Optional backends (Redis, Postgres,
// SES, SNS, Keycloak) are only connected when configured.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger, notifier gateway.Notifier) (a *App, err error) {
	a = &App{Config: cfg, logger: log}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	a.Obs = observability.New(observability.Options{
		ServiceName:    cfg.Observability.ServiceName,
		JaegerEndpoint: cfg.Observability.JaegerEndpoint,
	}, log)
	a.closers = append(a.closers, a.Obs.Shutdown)

	client := httpclient.NewClient(cfg.HTTP.Timeout)
	if cfg.Auth.Enabled() {
		kc := cfg.Auth.Keycloak
		client.WithTokenSource(auth.NewKeycloakClient(kc.URL, kc.Realm, kc.ClientID, kc.ClientSecret))
		log.Info("keycloak token source enabled", map[string]interface{}{"realm": kc.Realm})
	}

	var cache results.EmailCache
	if cfg.Cache.Redis.Enabled {
		var rc *database.RedisClient
		err = retryWithBackoff(ctx, func() error {
			var err error
			rc, err = database.NewRedis(ctx, cfg.Cache.Redis)
			return err
		}, connectAttempts, connectDelay, log, "Redis connection")
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { rc.Close() })
		cache = results.NewRedisEmailCache(rc.Client, uuid.New().String(), cfg.Cache.TTL)
		log.Info("redis email cache connected", map[string]interface{}{"address": cfg.Cache.Redis.Address})
	}
	a.Store = results.NewStore(cache, log)

	mailer, err := a.buildMailer(ctx)
	if err != nil {
		return nil, err
	}

	a.Catalog, err = registry.LoadCatalog(cfg.Resolutions.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load resolution catalog: %w", err)
	}

	var archiver archive.Archiver
	if cfg.Archive.Postgres.Enabled {
		var pg *database.PostgresClient
		err = retryWithBackoff(ctx, func() error {
			var err error
			pg, err = database.NewPostgres(ctx, cfg.Archive.Postgres)
			return err
		}, connectAttempts, connectDelay, log, "PostgreSQL connection")
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { pg.Close() })
		a.Archive = archive.NewPostgresArchive(pg.DB, log)
		if err = a.Archive.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		archiver = a.Archive
	}

	var publisher notify.CompletionPublisher
	if cfg.Notifications.SNS.Enabled {
		snsClient, err := awsclients.NewSNSClient(ctx, cfg.Notifications.SNS.Region)
		if err != nil {
			return nil, err
		}
		publisher, err = notify.NewSNSPublisher(snsClient, cfg.Notifications.SNS.TopicARN, log)
		if err != nil {
			return nil, err
		}
	}

	a.Gateway, err = gateway.New(gateway.Options{
		Config: &gateway.Config{
			BaseURL:          cfg.Server.ResolvedBaseURL(),
			MaxResponseBytes: gateway.DefaultConfig().MaxResponseBytes,
		},
		Client:   client,
		Store:    a.Store,
		Mailer:   mailer,
		Notifier: notifier,
		Obs:      a.Obs,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}

	sessCfg := &session.Config{
		URL:                  cfg.Server.ResolvedWebSocketURL(),
		HandshakeTimeout:     cfg.Session.HandshakeTimeout,
		ReconnectDelay:       cfg.Session.ReconnectDelay,
		MaxReconnectDelay:    cfg.Session.MaxReconnectDelay,
		BackoffMultiplier:    cfg.Session.BackoffMultiplier,
		MaxReconnectAttempts: cfg.Session.MaxReconnectAttempts,
		ReadLimit:            cfg.Session.ReadLimit,
	}
	if err = sessCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	sessions := func(observer session.Observer) (pipeline.Session, error) {
		m, err := session.NewManager(session.Options{
			Config:   sessCfg,
			Headers:  client,
			Observer: observer,
			Logger:   log,
			Obs:      a.Obs,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	}

	a.Controller, err = pipeline.New(pipeline.Options{
		Gateway:     a.Gateway,
		Store:       a.Store,
		Sessions:    sessions,
		Resolutions: a.Catalog.Resolutions,
		Archiver:    archiver,
		Publisher:   publisher,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Controller.Close)
	return a, nil
}

func (a *App) buildMailer(ctx context.Context) (gateway.Mailer, error) {
	if a.Config.Mail.Transport != config.MailTransportSES {
		return nil, nil
	}
	m := a.Config.Mail.AWS
	sesClient, err := awsclients.NewSESClient(ctx, m.Region)
	if err != nil {
		return nil, err
	}
	return gateway.NewSESMailer(sesClient, m.FromEmail, m.To)
}

// Close releases everything Build acquired, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// retryWithBackoff attempts operation with exponential backoff.
func retryWithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}
		if i == maxRetries-1 {
			break
		}
		log.Warn(operationName+" failed, retrying", map[string]interface{}{
			"error":       err,
			"attempt":     i + 1,
			"maxRetries":  maxRetries,
			"nextRetryIn": delay.String(),
		})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}
