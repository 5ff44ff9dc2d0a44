package repository

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/opensource-finance/screener/internal/domain"
)

// openPostgres opens a PostgreSQL database connection.
func openPostgres(cfg domain.RepositoryConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		orDefault(cfg.PostgresHost, "localhost"),
		portOrDefault(cfg.PostgresPort),
		cfg.PostgresUser,
		cfg.PostgresPassword,
		orDefault(cfg.PostgresDB, "screener"),
		orDefault(cfg.PostgresSSLMode, "disable"),
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}

	return db, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func portOrDefault(port int) int {
	if port == 0 {
		return 5432
	}
	return port
}
