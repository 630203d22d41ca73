// internal/infrastructure/persistence/postgres/connection.go
package postgres

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"perp-trading-terminal/internal/infrastructure/config"
	"perp-trading-terminal/pkg/logger"
)

// Connect открывает подключение к PostgreSQL и разворачивает схему журнала
func Connect(cfg *config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("открытие подключения к postgres: %w", err)
	}

	// Настройки пула соединений
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 10
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(10 * time.Minute)

	// Проверка подключения
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("проверка подключения к postgres: %w", err)
	}

	logger.Info("✅ Подключение к PostgreSQL установлено")

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("развёртывание схемы журнала: %w", err)
	}

	return db, nil
}

// ensureSchema создает таблицы журнала, если их нет
func ensureSchema(db *sqlx.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS trade_journal (
		id          BIGSERIAL PRIMARY KEY,
		trade_id    TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		price       DOUBLE PRECISION NOT NULL,
		quantity    DOUBLE PRECISION NOT NULL,
		side        TEXT NOT NULL,
		executed_at BIGINT NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (trade_id, symbol)
	);
	CREATE INDEX IF NOT EXISTS idx_trade_journal_symbol_time
		ON trade_journal (symbol, executed_at DESC);

	CREATE TABLE IF NOT EXISTS candle_journal (
		id          BIGSERIAL PRIMARY KEY,
		symbol      TEXT NOT NULL,
		interval    TEXT NOT NULL,
		open_time   BIGINT NOT NULL,
		open        DOUBLE PRECISION NOT NULL,
		high        DOUBLE PRECISION NOT NULL,
		low         DOUBLE PRECISION NOT NULL,
		close       DOUBLE PRECISION NOT NULL,
		volume      DOUBLE PRECISION NOT NULL,
		trades      INTEGER NOT NULL DEFAULT 0,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (symbol, interval, open_time)
	);
	`

	if _, err := db.Exec(schema); err != nil {
		return err
	}

	logger.Info("✅ Схема журнала актуальна")
	return nil
}
