package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// recordSchemaState stores the applied schema version and the checksum of
// the embedded migrations so a running server can detect drift.
func recordSchemaState(ctx context.Context, db *sql.DB, schemaVersion string, checksum string) error {
	if db == nil {
		return errors.New("schema state requires database handle")
	}

	version := strings.TrimSpace(schemaVersion)
	if version == "" {
		return errors.New("schema version is required")
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO schema_state (id, schema_version, checksum, applied_at)
		VALUES (TRUE, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET schema_version = EXCLUDED.schema_version,
		    checksum = EXCLUDED.checksum,
		    applied_at = EXCLUDED.applied_at
	`, version, nullIfEmpty(checksum), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record schema state: %w", err)
	}
	return nil
}

func nullIfEmpty(value string) any {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return trimmed
}

// EnforceSchemaGate refuses to start against a postgres schema that was
// migrated from a different set of embedded migrations.
func EnforceSchemaGate(conn *gorm.DB, log *zap.Logger) error {
	if conn.Dialector.Name() != "postgres" {
		return nil
	}

	var state struct {
		SchemaVersion string
		Checksum      *string
	}
	err := conn.Raw(`SELECT schema_version, checksum FROM schema_state WHERE id = TRUE`).Scan(&state).Error
	if err != nil {
		return fmt.Errorf("read schema state: %w", err)
	}
	if state.SchemaVersion == "" {
		return errors.New("schema is not migrated, run the migrate command first")
	}

	latest, err := LatestMigrationVersion()
	if err != nil {
		return err
	}
	checksum, err := MigrationsChecksum()
	if err != nil {
		return err
	}
	if state.SchemaVersion != fmt.Sprintf("%d", latest) || state.Checksum == nil || *state.Checksum != checksum {
		return fmt.Errorf("schema drift: database at version %s, binary expects %d", state.SchemaVersion, latest)
	}

	log.Info("schema gate passed", zap.String("schema_version", state.SchemaVersion))
	return nil
}
