package testutil

import (
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/dom/dataroom/internal/api"
	"github.com/dom/dataroom/internal/config"
	"github.com/dom/dataroom/internal/events"
	"github.com/dom/dataroom/internal/logging"
	"github.com/dom/dataroom/internal/repository"
	"github.com/dom/dataroom/internal/repository/database"
	"github.com/dom/dataroom/internal/service"
	"github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB manages a testcontainers PostgreSQL instance
type TestDB struct {
	Container testcontainers.Container
	DB        *gorm.DB
	DSN       string
}

// NewTestDB creates a new PostgreSQL testcontainer and returns a connection
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	container, err := tcPostgres.Run(ctx,
		"postgres:15-alpine",
		tcPostgres.WithDatabase("test_dataroom"),
		tcPostgres.WithUsername("test"),
		tcPostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	testDB := &TestDB{Container: container}
	t.Cleanup(testDB.Cleanup)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	testDB.DSN = dsn

	db, err := gorm.Open(gormPostgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	testDB.DB = db

	return testDB
}

// Cleanup terminates the container
func (tdb *TestDB) Cleanup() {
	if tdb.Container != nil {
		tdb.Container.Terminate(context.Background())
	}
}

// Truncate clears all tables for test isolation
func (tdb *TestDB) Truncate(t *testing.T) {
	t.Helper()

	for _, table := range []string{"imported_files", "sessions"} {
		if err := tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)).Error; err != nil {
			t.Logf("warning: failed to truncate %s: %v", table, err)
		}
	}
}

// NewSQLiteDB opens a migrated SQLite database in a temp dir. It needs no
// container and suits service-level tests.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	url := "sqlite://" + filepath.Join(t.TempDir(), "test.db")
	db, err := database.NewConnection(url, logger.Silent)
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// TestConfig returns a configuration suitable for testing. Provider URLs
// point at fg.
func TestConfig(t *testing.T, fg *FakeGoogle) *config.Config {
	t.Helper()

	return &config.Config{
		Port:                   "0",
		Environment:            "test",
		UploadDir:              filepath.Join(t.TempDir(), "uploads"),
		MaxFileSize:            1 << 20,
		GoogleClientID:         "test-client-id",
		GoogleClientSecret:     "test-client-secret",
		RedirectURI:            "http://localhost:5001/auth/google/callback",
		FrontendURL:            "http://localhost:5173",
		GoogleAuthURL:          fg.AuthURL(),
		GoogleTokenURL:         fg.TokenURL(),
		GoogleDriveURL:         fg.DriveURL(),
		GoogleIssuer:           fg.Server.URL,
		GoogleJWKSURL:          fg.Server.URL + "/certs",
		SessionTTL:             7 * 24 * time.Hour,
		TokenRefreshBuffer:     5 * time.Minute,
		OAuthStateTTL:          10 * time.Minute,
		OAuthStateSecret:       "test-state-secret",
		ProviderTimeout:        5 * time.Second,
		TransferTimeout:        10 * time.Second,
		AuthRateLimitPerMinute: 1000,
		LogLevel:               "error",
	}
}

// TestEnv is a fully wired service layer on top of a given database.
type TestEnv struct {
	DB       *gorm.DB
	Repos    *repository.Repositories
	Infra    service.Infrastructure
	Services *service.Services
	Config   *config.Config
	Google   *FakeGoogle
	// Log is shared by every service; attach hooks to inspect entries.
	Log *logrus.Logger
}

// NewTestEnv wires services against db and a fresh FakeGoogle. A nil
// publisher discards events.
func NewTestEnv(t *testing.T, db *gorm.DB, publisher events.Publisher) *TestEnv {
	t.Helper()

	fg := NewFakeGoogle(t)
	cfg := TestConfig(t, fg)
	log := logging.Discard()

	infra, err := service.NewInfrastructure(context.Background(), cfg, publisher, log)
	if err != nil {
		t.Fatalf("failed to build infrastructure: %v", err)
	}

	repos := database.NewRepositories(db)

	return &TestEnv{
		DB:       db,
		Repos:    repos,
		Infra:    infra,
		Services: service.NewServices(repos, infra, cfg, log),
		Config:   cfg,
		Google:   fg,
		Log:      log,
	}
}

// TestServer holds all components for integration testing
type TestServer struct {
	*TestEnv
	Server *httptest.Server
	TestDB *TestDB
	Hub    *events.Hub
}

// NewTestServer creates a complete test server backed by PostgreSQL
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	testDB := NewTestDB(t)
	hub := events.NewHub(logging.Discard())
	go hub.Run()
	t.Cleanup(hub.Stop)

	env := NewTestEnv(t, testDB.DB, hub)
	router := api.NewRouter(env.Services, hub, env.Config, logging.Discard())

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &TestServer{
		TestEnv: env,
		Server:  server,
		TestDB:  testDB,
		Hub:     hub,
	}
}

// URL returns the full URL for a given path
func (ts *TestServer) URL(path string) string {
	return ts.Server.URL + path
}

// WebSocketURL returns the websocket URL for a given path
func (ts *TestServer) WebSocketURL(path string) string {
	return "ws" + ts.Server.URL[len("http"):] + path
}
