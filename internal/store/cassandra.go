package store

import (
	"context"
	"fmt"
	"path/filepath"

	config "example.com/blogger/internal/init"
	"github.com/gocql/gocql"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/cassandra"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// --- Interfaces ---

// Statement is one CQL statement with its bind values.
type Statement struct {
	CQL    string
	Values []interface{}
}

// Scanner walks result rows. *gocql.Iter satisfies it.
type Scanner interface {
	Scan(dest ...interface{}) bool
	Close() error
}

// SessionInterface is the statement-level surface the Cassandra store needs.
type SessionInterface interface {
	Exec(ctx context.Context, stmt string, values ...interface{}) error
	// ExecCAS runs a conditional statement and reports whether it applied.
	ExecCAS(ctx context.Context, stmt string, values ...interface{}) (bool, error)
	Iter(ctx context.Context, stmt string, values ...interface{}) Scanner
	// ExecBatch runs stmts as one logged batch.
	ExecBatch(ctx context.Context, stmts []Statement) error
	Close()
}

// gocqlSession adapts *gocql.Session to SessionInterface.
type gocqlSession struct {
	s *gocql.Session
}

func (g gocqlSession) Exec(ctx context.Context, stmt string, values ...interface{}) error {
	return g.s.Query(stmt, values...).WithContext(ctx).Exec()
}

func (g gocqlSession) ExecCAS(ctx context.Context, stmt string, values ...interface{}) (bool, error) {
	return g.s.Query(stmt, values...).WithContext(ctx).MapScanCAS(make(map[string]interface{}))
}

func (g gocqlSession) Iter(ctx context.Context, stmt string, values ...interface{}) Scanner {
	return g.s.Query(stmt, values...).WithContext(ctx).Iter()
}

func (g gocqlSession) ExecBatch(ctx context.Context, stmts []Statement) error {
	batch := g.s.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for _, st := range stmts {
		batch.Query(st.CQL, st.Values...)
	}
	return g.s.ExecuteBatch(batch)
}

func (g gocqlSession) Close() { g.s.Close() }

// --- Store Implementation ---

// Store is the Cassandra-backed StoreInterface.
type Store struct {
	Session SessionInterface
}

// NewCassandraWithSession wraps an existing session without touching schema.
func NewCassandraWithSession(sess SessionInterface) *Store {
	return &Store{Session: sess}
}

// NewCassandra initializes the Cassandra connection and schema.
func NewCassandra(cfg *config.Config) (StoreInterface, error) {
	if err := ensureKeyspace(cfg); err != nil {
		return nil, fmt.Errorf("failed to ensure keyspace: %w", err)
	}

	if err := runCassandraMigrations(cfg); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cluster := gocql.NewCluster(cfg.CassandraHost)
	cluster.Keyspace = cfg.CassandraKeyspace
	cluster.Consistency = gocql.Quorum
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.Timeout = cfg.CassandraTimeout
	cluster.ConnectTimeout = cfg.CassandraTimeout

	if cfg.CassandraUsername != "" && cfg.CassandraPassword != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.CassandraUsername,
			Password: cfg.CassandraPassword,
		}
	}

	if cfg.CassandraDC != "" {
		cluster.HostFilter = gocql.DataCentreHostFilter(cfg.CassandraDC)
	}

	sess, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create Cassandra session: %w", err)
	}

	logg.Info("store", "Connected to Cassandra keyspace (host anonymized)")
	return NewCassandraWithSession(gocqlSession{s: sess}), nil
}

// --- Ensure keyspace exists before migrations ---

func ensureKeyspace(cfg *config.Config) error {
	cluster := gocql.NewCluster(cfg.CassandraHost)
	cluster.Keyspace = "system"
	cluster.Timeout = cfg.CassandraTimeout
	sess, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("failed to connect to Cassandra system keyspace: %w", err)
	}
	defer sess.Close()

	query := fmt.Sprintf(`
        CREATE KEYSPACE IF NOT EXISTS %s
        WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1};
    `, cfg.CassandraKeyspace)

	if err := sess.Query(query).Exec(); err != nil {
		return fmt.Errorf("failed to create keyspace: %w", err)
	}

	logg.Info("store", "Ensured Cassandra keyspace exists (keyspace name anonymized)")
	return nil
}

// --- Migration runner ---

func runCassandraMigrations(cfg *config.Config) error {
	sourceURL := "file://" + filepath.Join(cfg.MigrationsDir, "cassandra")
	dbURL := fmt.Sprintf(
		"cassandra://%s/%s?x-migrations-table=schema_migrations&x-multi-statement=true",
		cfg.CassandraHost, cfg.CassandraKeyspace,
	)
	return applyMigrations(sourceURL, dbURL)
}

// applyMigrations runs every pending up migration from sourceURL against dbURL.
func applyMigrations(sourceURL, dbURL string) error {
	m, err := migrate.New(sourceURL, dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up failed: %w", err)
	}

	if err == migrate.ErrNoChange {
		logg.Info("store", "No new migrations to apply")
	} else {
		logg.Info("store", "Migrations applied successfully")
	}
	return nil
}

// Close gracefully closes Cassandra session.
func (s *Store) Close() {
	if s.Session != nil {
		s.Session.Close()
		logg.Info("store", "Cassandra session closed")
	}
}
