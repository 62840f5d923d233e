// Package integration runs the fee engine against real PostgreSQL and Redis
// containers started with testcontainers.
package integration

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/feesettle/backend/internal/infrastructure/migration"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	postgresImage  = "postgres:16-alpine"
	redisImage     = "redis:7-alpine"
	startupTimeout = time.Minute
)

// containerPool holds the containers shared by every test of the package.
// They start on first use and are terminated from TestMain.
type containerPool struct {
	mu        sync.Mutex
	postgres  testcontainers.Container
	dsn       string
	redis     testcontainers.Container
	redisAddr string
}

var pool containerPool

// TestDB is a gorm connection to a test database
type TestDB struct {
	DB *gorm.DB
	t  *testing.T
}

// NewTestDB starts a private, empty PostgreSQL container. No migration is
// applied, so the caller controls the schema version.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	container, dsn := runPostgres(t, "fees_private")
	t.Cleanup(func() { terminate(t, container) })
	return openTestDB(t, dsn)
}

// NewSharedTestDB connects to the package-wide database, migrated to the
// latest version. Tests keep their rows apart by using a fresh school.
func NewSharedTestDB(t *testing.T) *TestDB {
	t.Helper()
	return openTestDB(t, pool.postgresDSN(t))
}

// NewSharedRedis returns a client of the package-wide Redis, flushed
func NewSharedRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: pool.redisAddress(t)})
	require.NoError(t, client.FlushDB(t.Context()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// CleanupSharedContainers terminates the package-wide containers
func CleanupSharedContainers() {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, c := range []testcontainers.Container{pool.postgres, pool.redis} {
		if c != nil {
			_ = c.Terminate(ctx)
		}
	}
	pool.postgres, pool.dsn = nil, ""
	pool.redis, pool.redisAddr = nil, ""
}

func (p *containerPool) postgresDSN(t *testing.T) string {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.postgres == nil {
		container, dsn := runPostgres(t, "fees_shared")
		tdb := openTestDB(t, dsn)
		require.NoError(t, tdb.Migrator().Up(), "migrate shared database")
		p.postgres, p.dsn = container, dsn
	}
	return p.dsn
}

func (p *containerPool) redisAddress(t *testing.T) string {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.redis == nil {
		ctx := context.Background()
		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        redisImage,
				ExposedPorts: []string{"6379/tcp"},
				WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(startupTimeout),
			},
			Started: true,
		})
		require.NoError(t, err, "start redis")

		host, err := container.Host(ctx)
		require.NoError(t, err)
		port, err := container.MappedPort(ctx, "6379/tcp")
		require.NoError(t, err)
		p.redis, p.redisAddr = container, net.JoinHostPort(host, port.Port())
	}
	return p.redisAddr
}

func runPostgres(t *testing.T, dbName string) (testcontainers.Container, string) {
	t.Helper()
	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, postgresImage,
		tcpostgres.WithDatabase(dbName),
		tcpostgres.WithUsername("fees"),
		tcpostgres.WithPassword("fees"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(startupTimeout)),
	)
	require.NoError(t, err, "start postgres")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return container, dsn
}

func terminate(t *testing.T, c testcontainers.Container) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.Terminate(ctx); err != nil {
		t.Logf("terminate container: %v", err)
	}
}

// openTestDB connects with SQL logging silenced unless TEST_DB_DEBUG is set.
// The connection closes with the test.
func openTestDB(t *testing.T, dsn string) *TestDB {
	t.Helper()
	level := gormlogger.Silent
	if os.Getenv("TEST_DB_DEBUG") != "" {
		level = gormlogger.Info
	}
	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(level),
		TranslateError: true,
	})
	require.NoError(t, err, "connect to %s", dsn)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(10)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return &TestDB{DB: db, t: t}
}

// Migrator opens a migrator over the database
func (tdb *TestDB) Migrator() *migration.Migrator {
	tdb.t.Helper()
	sqlDB, err := tdb.DB.DB()
	require.NoError(tdb.t, err)
	m, err := migration.New(sqlDB, migrationsDir(tdb.t), zap.NewNop())
	require.NoError(tdb.t, err)
	return m
}

// TableExists reports whether the public schema has the table
func (tdb *TestDB) TableExists(name string) bool {
	tdb.t.Helper()
	var exists bool
	require.NoError(tdb.t, tdb.DB.Raw(
		`SELECT EXISTS (SELECT 1 FROM pg_tables WHERE schemaname = 'public' AND tablename = ?)`, name,
	).Scan(&exists).Error)
	return exists
}

// migrationsDir finds migrations/ above this source file
func migrationsDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)

	for dir := filepath.Dir(file); dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}
	t.Fatal("migrations directory not found")
	return ""
}
