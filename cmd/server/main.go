package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/api/option"

	"github.com/focusnest/challenge-service/internal/challenge"
	"github.com/focusnest/challenge-service/internal/config"
	"github.com/focusnest/challenge-service/internal/health"
	"github.com/focusnest/challenge-service/internal/httpapi"
	"github.com/focusnest/challenge-service/internal/notify"
	"github.com/focusnest/challenge-service/internal/photo"
	"github.com/focusnest/challenge-service/internal/profile"
	"github.com/focusnest/challenge-service/internal/session"
	sharedauth "github.com/focusnest/challenge-service/internal/shared/auth"
	"github.com/focusnest/challenge-service/internal/shared/docstore"
	"github.com/focusnest/challenge-service/internal/shared/envconfig"
	"github.com/focusnest/challenge-service/internal/shared/logging"
	"github.com/focusnest/challenge-service/internal/shared/metrics"
	"github.com/focusnest/challenge-service/internal/shared/ratelimit"
	sharedserver "github.com/focusnest/challenge-service/internal/shared/server"
)

const (
	serviceName      = "challenge-service"
	mediaPrefix      = "/v1/media"
	sessionSweepTick = 5 * time.Minute
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := envconfig.LoadDotEnv(); err != nil {
		panic(fmt.Errorf("dotenv error: %w", err))
	}
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("config error: %w", err))
	}

	logger := logging.NewLogger(serviceName)

	repos, cleanup, err := newRepositories(ctx, cfg)
	if err != nil {
		panic(fmt.Errorf("repository init error: %w", err))
	}
	defer cleanup()

	photos, media, err := newPhotoStore(ctx, cfg)
	if err != nil {
		panic(fmt.Errorf("photo storage init error: %w", err))
	}
	defer photos.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	clock := challenge.NewSystemClock()
	ids := challenge.NewUUIDGenerator()

	opts := []challenge.Option{
		challenge.WithRecorder(m),
		challenge.WithPhotoUploader(photos),
	}
	if cfg.SeedDefaultChallenge {
		opts = append(opts, challenge.WithDefaultTemplate(challenge.DefaultTemplate()))
	}
	challengeService, err := challenge.NewService(repos.challenges, clock, ids, opts...)
	if err != nil {
		panic(fmt.Errorf("challenge service init error: %w", err))
	}

	healthService, err := health.NewService(repos.health, clock, ids)
	if err != nil {
		panic(fmt.Errorf("health service init error: %w", err))
	}

	profileService, err := profile.NewService(challengeService, healthService)
	if err != nil {
		panic(fmt.Errorf("profile service init error: %w", err))
	}

	app, err := newFirebaseApp(ctx, cfg)
	if err != nil {
		panic(fmt.Errorf("firebase init error: %w", err))
	}

	authCfg := sharedauth.Config{
		Mode:     cfg.Auth.Mode,
		JWKSURL:  cfg.Auth.JWKSURL,
		Audience: cfg.Auth.Audience,
		Issuer:   cfg.Auth.Issuer,
	}
	if cfg.Auth.Mode == sharedauth.ModeFirebase {
		client, err := app.Auth(ctx)
		if err != nil {
			panic(fmt.Errorf("firebase auth client error: %w", err))
		}
		authCfg.Firebase = client
	}
	verifier, err := sharedauth.NewVerifier(authCfg)
	if err != nil {
		panic(fmt.Errorf("auth verifier error: %w", err))
	}

	pusher, err := newPusher(ctx, cfg, app, logger)
	if err != nil {
		panic(fmt.Errorf("push init error: %w", err))
	}

	sessions := session.NewStore(cfg.Session.TTL)
	go sessions.Run(ctx, sessionSweepTick)

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.RPS > 0 {
		limiter = ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, m.RateLimited)
		go limiter.Run(ctx)
	}

	router := sharedserver.NewRouter(serviceName, func(r chi.Router) {
		r.Handle("/metrics", m.Handler(cfg.Metrics.User, cfg.Metrics.Password))

		httpapi.RegisterRoutes(r, httpapi.Deps{
			Challenges:  challengeService,
			Sessions:    sessions,
			Health:      healthService,
			Profiles:    profileService,
			Photos:      photos,
			PhotoURLTTL: cfg.Storage.URLTTL,
			Notices:     notify.NewBuilder(cfg.NotificationDismiss),
			Push:        notify.NewDispatcher(pusher, logger),
			Verifier:    verifier,
			Limiter:     limiter,
			Media:       media,
			Logger:      logger,
		})
	}, sharedserver.WithRequestTimeout(0), sharedserver.WithMiddleware(m.Middleware))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if err := sharedserver.Run(ctx, srv, logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic(err)
	}
}

type repositories struct {
	challenges challenge.Repository
	health     health.Repository
}

func newRepositories(ctx context.Context, cfg config.Config) (repositories, func(), error) {
	switch cfg.DataStore {
	case config.DataStoreFirestore:
		if cfg.Firestore.EmulatorHost != "" {
			if err := os.Setenv("FIRESTORE_EMULATOR_HOST", cfg.Firestore.EmulatorHost); err != nil {
				return repositories{}, nil, fmt.Errorf("set FIRESTORE_EMULATOR_HOST: %w", err)
			}
		}

		var (
			client *firestore.Client
			err    error
		)
		if cfg.Firestore.DatabaseID != "" {
			client, err = firestore.NewClientWithDatabase(ctx, cfg.GCPProjectID, cfg.Firestore.DatabaseID)
		} else {
			client, err = firestore.NewClient(ctx, cfg.GCPProjectID)
		}
		if err != nil {
			return repositories{}, nil, fmt.Errorf("firestore client: %w", err)
		}

		repos := repositories{
			challenges: challenge.NewFirestoreRepository(client),
			health:     health.NewFirestoreRepository(client),
		}
		cleanup := func() {
			_ = client.Close()
		}
		return repos, cleanup, nil
	case config.DataStoreSQLite:
		docs, err := docstore.Open(cfg.SQLite.Path)
		if err != nil {
			return repositories{}, nil, fmt.Errorf("sqlite: %w", err)
		}
		repos := repositories{
			challenges: challenge.NewSQLiteRepository(docs),
			health:     health.NewSQLiteRepository(docs),
		}
		cleanup := func() {
			_ = docs.Close()
		}
		return repos, cleanup, nil
	default:
		repos := repositories{
			challenges: challenge.NewMemoryRepository(),
			health:     health.NewMemoryRepository(),
		}
		return repos, func() {}, nil
	}
}

// newPhotoStore also returns the memory store when it must be served by this process.
func newPhotoStore(ctx context.Context, cfg config.Config) (photo.Store, *photo.MemoryStore, error) {
	switch cfg.Storage.Backend {
	case config.PhotoStorageGCS:
		store, err := photo.NewGCSStore(ctx, cfg.Storage.Bucket)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		store := photo.NewMemoryStore(mediaPrefix)
		return store, store, nil
	}
}

// newFirebaseApp returns nil when nothing needs Firebase.
func newFirebaseApp(ctx context.Context, cfg config.Config) (*firebase.App, error) {
	if cfg.Auth.Mode != sharedauth.ModeFirebase && !cfg.Push.Enabled {
		return nil, nil
	}
	var opts []option.ClientOption
	switch {
	case len(cfg.Firebase.CredentialsJSON) > 0:
		opts = append(opts, option.WithCredentialsJSON(cfg.Firebase.CredentialsJSON))
	case cfg.Firebase.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
	}
	var fbCfg *firebase.Config
	if cfg.GCPProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.GCPProjectID}
	}
	return firebase.NewApp(ctx, fbCfg, opts...)
}

func newPusher(ctx context.Context, cfg config.Config, app *firebase.App, logger *slog.Logger) (notify.Pusher, error) {
	if !cfg.Push.Enabled || app == nil {
		return notify.LogPusher{Logger: logger}, nil
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging client: %w", err)
	}
	return notify.NewFCMPusher(client), nil
}
