package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS plates (
		id              BIGSERIAL PRIMARY KEY,
		number          TEXT NOT NULL,
		normalized      TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_plates_normalized ON plates(normalized);`,
	`CREATE TABLE IF NOT EXISTS confirmations (
		id              UUID PRIMARY KEY,
		plate_id        BIGINT REFERENCES plates(id),
		plate           TEXT NOT NULL,
		mode            TEXT NOT NULL,
		frame           BIGINT NOT NULL,
		registered      BOOLEAN NOT NULL DEFAULT false,
		hit             BOOLEAN NOT NULL DEFAULT false,
		warped_box      JSONB,
		confirmed_at    TIMESTAMPTZ NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_confirmations_plate_id ON confirmations(plate_id);`,
	`CREATE INDEX IF NOT EXISTS idx_confirmations_confirmed_at ON confirmations(confirmed_at);`,
	`CREATE INDEX IF NOT EXISTS idx_confirmations_hit ON confirmations(hit) WHERE hit;`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
