package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	sharedauth "github.com/focusnest/challenge-service/internal/shared/auth"
	"github.com/focusnest/challenge-service/internal/shared/envconfig"
)

// Config encapsulates the runtime configuration for the challenge service.
type Config struct {
	Port         string `validate:"required"`
	GCPProjectID string
	DataStore    DataStore
	Auth         AuthConfig
	Firestore    FirestoreConfig
	SQLite       SQLiteConfig
	Storage      StorageConfig
	Firebase     FirebaseConfig
	Push         PushConfig
	Session      SessionConfig
	RateLimit    RateLimitConfig
	Metrics      MetricsConfig
	// SeedDefaultChallenge gives first-time users the built-in template.
	SeedDefaultChallenge bool
	NotificationDismiss  time.Duration `validate:"gt=0"`
}

// DataStore enumerates supported persistence backends.
type DataStore string

const (
	// DataStoreMemory keeps everything in-memory (useful for local development/testing).
	DataStoreMemory DataStore = "memory"
	// DataStoreFirestore stores documents in Google Cloud Firestore.
	DataStoreFirestore DataStore = "firestore"
	// DataStoreSQLite stores documents in a local SQLite file.
	DataStoreSQLite DataStore = "sqlite"
)

// PhotoStorage enumerates supported photo backends.
type PhotoStorage string

const (
	PhotoStorageMemory PhotoStorage = "memory"
	PhotoStorageGCS    PhotoStorage = "gcs"
)

// AuthConfig stores authentication middleware setup.
type AuthConfig struct {
	Mode     sharedauth.Mode
	JWKSURL  string
	Audience string
	Issuer   string
}

// FirestoreConfig tailors Firestore client behavior.
type FirestoreConfig struct {
	EmulatorHost string
	DatabaseID   string
}

// SQLiteConfig locates the database file.
type SQLiteConfig struct {
	Path string
}

// StorageConfig contains photo storage settings.
type StorageConfig struct {
	Backend PhotoStorage
	Bucket  string
	URLTTL  time.Duration `validate:"gt=0"`
}

// FirebaseConfig holds service account credentials. CredentialsJSON is decoded from
// base64.
type FirebaseConfig struct {
	CredentialsFile string
	CredentialsJSON []byte
}

// Configured reports whether any credentials were supplied.
func (f FirebaseConfig) Configured() bool {
	return f.CredentialsFile != "" || len(f.CredentialsJSON) > 0
}

// PushConfig toggles FCM delivery.
type PushConfig struct {
	Enabled bool
}

// SessionConfig controls idle session eviction.
type SessionConfig struct {
	TTL time.Duration `validate:"gte=0"`
}

// RateLimitConfig bounds per-user request rates. RPS 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64 `validate:"gte=0"`
	Burst int     `validate:"gte=0"`
}

// MetricsConfig protects /metrics with basic auth when both fields are set.
type MetricsConfig struct {
	User     string
	Password string
}

// Load reads environment variables into Config with validation.
func Load() (Config, error) {
	credentialsJSON, err := decodeCredentials(envconfig.Get("FIREBASE_CREDENTIALS_JSON", ""))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:         envconfig.Get("PORT", "8080"),
		GCPProjectID: envconfig.Get("GCP_PROJECT_ID", ""),
		DataStore:    DataStore(strings.ToLower(envconfig.Get("DATASTORE", string(DataStoreMemory)))),
		Auth: AuthConfig{
			Mode:     sharedauth.Mode(strings.ToLower(envconfig.Get("AUTH_MODE", string(sharedauth.ModeNoop)))),
			JWKSURL:  envconfig.Get("CLERK_JWKS_URL", ""),
			Audience: envconfig.Get("CLERK_AUDIENCE", ""),
			Issuer:   envconfig.Get("CLERK_ISSUER", ""),
		},
		Firestore: FirestoreConfig{
			EmulatorHost: envconfig.Get("FIRESTORE_EMULATOR_HOST", ""),
			DatabaseID:   envconfig.Get("FIRESTORE_DATABASE", ""),
		},
		SQLite: SQLiteConfig{
			Path: envconfig.Get("SQLITE_PATH", "challenges.db"),
		},
		Storage: StorageConfig{
			Backend: PhotoStorage(strings.ToLower(envconfig.Get("PHOTO_STORAGE", string(PhotoStorageMemory)))),
			Bucket:  envconfig.Get("PHOTO_BUCKET", ""),
			URLTTL:  envconfig.GetDuration("PHOTO_URL_TTL", 24*time.Hour),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: envconfig.Get("FIREBASE_CREDENTIALS_FILE", ""),
			CredentialsJSON: credentialsJSON,
		},
		Push: PushConfig{
			Enabled: envconfig.GetBool("PUSH_ENABLED", false),
		},
		Session: SessionConfig{
			TTL: envconfig.GetDuration("SESSION_TTL", 12*time.Hour),
		},
		RateLimit: RateLimitConfig{
			RPS:   envconfig.GetFloat("RATE_LIMIT_RPS", 10),
			Burst: envconfig.GetInt("RATE_LIMIT_BURST", 20),
		},
		Metrics: MetricsConfig{
			User:     envconfig.Get("METRICS_USER", ""),
			Password: envconfig.Get("METRICS_PASS", ""),
		},
		SeedDefaultChallenge: envconfig.GetBool("SEED_DEFAULT_CHALLENGE", true),
		NotificationDismiss:  envconfig.GetDuration("NOTIFICATION_DISMISS", 3*time.Second),
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func decodeCredentials(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	out, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("FIREBASE_CREDENTIALS_JSON must be base64 encoded: %w", err)
	}
	return out, nil
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return fmt.Errorf("port must be specified")
	}
	if err := envconfig.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	switch cfg.DataStore {
	case DataStoreMemory:
		// no-op
	case DataStoreFirestore:
		if cfg.GCPProjectID == "" {
			return fmt.Errorf("gcp project id required when datastore=firestore")
		}
	case DataStoreSQLite:
		if strings.TrimSpace(cfg.SQLite.Path) == "" {
			return fmt.Errorf("SQLITE_PATH is required when datastore=sqlite")
		}
	default:
		return fmt.Errorf("unsupported datastore: %s", cfg.DataStore)
	}

	switch cfg.Storage.Backend {
	case PhotoStorageMemory:
		// no-op
	case PhotoStorageGCS:
		if strings.TrimSpace(cfg.Storage.Bucket) == "" {
			return fmt.Errorf("PHOTO_BUCKET is required when PHOTO_STORAGE=gcs")
		}
	default:
		return fmt.Errorf("unsupported photo storage: %s", cfg.Storage.Backend)
	}

	switch cfg.Auth.Mode {
	case sharedauth.ModeClerk:
		if cfg.Auth.JWKSURL == "" {
			return fmt.Errorf("CLERK_JWKS_URL is required when AUTH_MODE=clerk")
		}
	case sharedauth.ModeFirebase:
		if !cfg.Firebase.Configured() && cfg.GCPProjectID == "" {
			return fmt.Errorf("firebase credentials or GCP_PROJECT_ID are required when AUTH_MODE=firebase")
		}
	case sharedauth.ModeNoop:
		// no-op
	default:
		return fmt.Errorf("unsupported auth mode: %s", cfg.Auth.Mode)
	}

	if cfg.Push.Enabled && !cfg.Firebase.Configured() && cfg.GCPProjectID == "" {
		return fmt.Errorf("PUSH_ENABLED requires firebase credentials or GCP_PROJECT_ID")
	}

	return nil
}
