package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/jesadaho/asset-ace-sub000/internal/cleanup"
	"github.com/jesadaho/asset-ace-sub000/internal/clone"
	"github.com/jesadaho/asset-ace-sub000/internal/config"
	"github.com/jesadaho/asset-ace-sub000/internal/database"
	"github.com/jesadaho/asset-ace-sub000/internal/engagement"
	"github.com/jesadaho/asset-ace-sub000/internal/handlers"
	"github.com/jesadaho/asset-ace-sub000/internal/identity"
	"github.com/jesadaho/asset-ace-sub000/internal/importer"
	"github.com/jesadaho/asset-ace-sub000/internal/ledger"
	"github.com/jesadaho/asset-ace-sub000/internal/marketplace"
	"github.com/jesadaho/asset-ace-sub000/internal/notify"
	"github.com/jesadaho/asset-ace-sub000/internal/objectstore"
	"github.com/jesadaho/asset-ace-sub000/internal/profile"
	"github.com/jesadaho/asset-ace-sub000/internal/property"
	"github.com/jesadaho/asset-ace-sub000/internal/ratelimit"
	"github.com/jesadaho/asset-ace-sub000/internal/scheduler"
	"github.com/jesadaho/asset-ace-sub000/internal/search"
	"github.com/redis/go-redis/v9"
)

// app holds the process-wide collaborators. Everything is built once here
// and injected into services.
type app struct {
	cfg        *config.Config
	db         *database.GormDB
	dispatcher *notify.Dispatcher
	nats       *notify.NATSGateway
	redis      *redis.Client
	store      objectstore.Gateway
	index      search.Index
	limiter    *ratelimit.RateLimiter

	properties  *property.Service
	engagements *engagement.Service
	scheduler   *scheduler.Scheduler
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a := &app{cfg: cfg, db: db, index: search.Noop{}}

	var gateway notify.Gateway
	switch cfg.Notification.Driver {
	case "nats":
		gw, err := notify.NewNATSGateway(cfg.Notification.NATSURL, cfg.Notification.Subject)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.nats = gw
		gateway = gw
	default:
		gateway = notify.NewLogGateway(slog.Default())
	}
	a.dispatcher = notify.NewDispatcher(gateway, notify.DispatcherOptions{
		QueueSize:        cfg.Notification.QueueSize,
		Workers:          cfg.Notification.Workers,
		SendTimeout:      cfg.Notification.SendTimeout(),
		FailureThreshold: cfg.Notification.BreakerFailureThreshold,
		ResetTimeout:     cfg.Notification.BreakerReset(),
	})

	if cfg.Storage.Bucket != "" {
		store, err := objectstore.NewS3Gateway(ctx, cfg.Storage)
		if err != nil {
			slog.Warn("object storage disabled", "error", err)
		} else {
			a.store = store
		}
	}

	if ms := cfg.Search.Meilisearch; ms.Host != "" {
		client := search.NewSearchClient(ms.Host, ms.APIKey, ms.Index)
		if err := client.InitIndex(); err != nil {
			slog.Warn("failed to initialize search index", "error", err)
		}
		a.index = client
	}

	a.limiter = ratelimit.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.RequestsPerHour, cfg.RateLimit.Enabled)

	a.properties = property.NewService(db.DB(), a.dispatcher, property.WithIndex(a.index))
	a.engagements = engagement.NewService(db.DB(), a.dispatcher,
		engagement.WithInvites(cfg.Invite.BaseURL, cfg.Invite.TTL()))
	a.scheduler = scheduler.NewScheduler(cfg.Scheduler, a.engagements, cleanup.NewService(db.DB()), a.limiter)
	return a, nil
}

func (a *app) router() (*gin.Engine, error) {
	verifier, err := identity.NewJWTVerifier(a.cfg.Identity.ChannelID, a.cfg.Identity.ChannelSecret, a.cfg.Identity.Issuer)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}

	marketOpts := []marketplace.Option{marketplace.WithIndex(a.index)}
	if a.store != nil {
		marketOpts = append(marketOpts, marketplace.WithPhotoStore(a.store))
	}
	if a.cfg.Cache.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Cache.RedisAddr,
			Password: a.cfg.Cache.RedisPassword,
		})
		marketOpts = append(marketOpts, marketplace.WithCountCache(marketplace.NewRedisCountCache(a.redis, a.cfg.Cache.CountTTL())))
	}

	gin.SetMode(gin.ReleaseMode)
	db := a.db.DB()
	return handlers.NewRouter(handlers.RouterConfig{
		Verifier:     verifier,
		Limiter:      a.limiter,
		AllowOrigins: a.cfg.Server.AllowOrigins,
		AdminToken:   a.cfg.Admin.Token,
		LogRequests:  a.cfg.Logging.LogRequests,
		Health:       a.db.Ping,

		Properties: handlers.NewPropertyHandler(a.properties, ledger.NewService(db), clone.NewService(db),
			importer.NewImporter(a.cfg.Importer), a.store),
		Engagement:  handlers.NewEngagementHandler(a.engagements),
		Marketplace: handlers.NewMarketplaceHandler(marketplace.NewService(db, marketOpts...)),
		Profiles:    handlers.NewProfileHandler(profile.NewService(db)),
		Uploads:     handlers.NewUploadHandler(a.store),
		Admin:       handlers.NewAdminHandler(db, a.scheduler, a.properties, a.dispatcher, a.limiter),
	}), nil
}

// Close stops background work and releases connections. Queued notifications
// are flushed before the transport closes.
func (a *app) Close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.dispatcher != nil {
		a.dispatcher.Stop()
	}
	if a.nats != nil {
		if err := a.nats.Close(); err != nil {
			slog.Warn("failed to drain NATS connection", "error", err)
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if err := a.db.Close(); err != nil {
		slog.Warn("failed to close database", "error", err)
	}
}
