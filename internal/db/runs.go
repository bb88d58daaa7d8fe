package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ProcessingRun is one attempt to load a file's response archive. The row
// with the latest fecha_recepcion is the current run for its file.
type ProcessingRun struct {
	FileID       int64
	RunID        int64
	ZipName      string
	ResponseType string
	ReceivedAt   time.Time
	State        string
	LoadAttempts int16
	ErrorCode    *string
	ErrorDetail  *string
}

// InsertRun opens a new processing run in INICIADO with the next sequence
// number for the file. The insert is suppressed while the file's latest run
// still sits in PENDIENTE_REPROCESO: that run owns the next attempt.
func (s *Store) InsertRun(ctx context.Context, fileID int64, zipName, responseType string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		WITH ultimo AS (
			SELECT COALESCE(MAX(id_rta_procesamiento), 0) AS max_id
			FROM cgd_rta_procesamiento
			WHERE id_archivo = $1
		)
		INSERT INTO cgd_rta_procesamiento (
			id_rta_procesamiento, id_archivo, nombre_archivo_zip,
			tipo_respuesta, fecha_recepcion, estado, contador_intentos_cargue
		)
		SELECT ultimo.max_id + 1, $1, $2, $3, $4, $5, 1
		FROM ultimo
		WHERE ultimo.max_id = 0
		   OR (SELECT estado FROM cgd_rta_procesamiento
		       WHERE id_archivo = $1
		       ORDER BY fecha_recepcion DESC
		       LIMIT 1) <> $6`,
		fileID, zipName, responseType, at, RunStateStarted, RunStateReprocessPending)
	if err != nil {
		return fmt.Errorf("failed to open processing run for file %d: %w", fileID, err)
	}
	return nil
}

// CurrentRun returns the file's latest run by reception timestamp, or
// (nil, nil) when the file has none.
func (s *Store) CurrentRun(ctx context.Context, fileID int64) (*ProcessingRun, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id_archivo, id_rta_procesamiento, nombre_archivo_zip, tipo_respuesta,
		       fecha_recepcion, estado, contador_intentos_cargue, codigo_error, detalle_error
		FROM cgd_rta_procesamiento
		WHERE id_archivo = $1
		ORDER BY fecha_recepcion DESC
		LIMIT 1`, fileID)

	var r ProcessingRun
	err := row.Scan(&r.FileID, &r.RunID, &r.ZipName, &r.ResponseType,
		&r.ReceivedAt, &r.State, &r.LoadAttempts, &r.ErrorCode, &r.ErrorDetail)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch current run for file %d: %w", fileID, err)
	}
	return &r, nil
}

// MarkRunStarted flips the current run back to INICIADO and bumps its load
// attempt counter; the re-drive path calls this before resuming.
func (s *Store) MarkRunStarted(ctx context.Context, fileID int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE cgd_rta_procesamiento
		SET estado = $2,
		    contador_intentos_cargue = contador_intentos_cargue + 1
		WHERE id_archivo = $1
		  AND fecha_recepcion = (
		      SELECT MAX(fecha_recepcion) FROM cgd_rta_procesamiento WHERE id_archivo = $1)`,
		fileID, RunStateStarted)
	if err != nil {
		return fmt.Errorf("failed to restart run for file %d: %w", fileID, err)
	}
	return nil
}

// SetRunState moves the file's current run to the given state.
func (s *Store) SetRunState(ctx context.Context, fileID int64, state string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE cgd_rta_procesamiento
		SET estado = $2
		WHERE id_archivo = $1
		  AND fecha_recepcion = (
		      SELECT MAX(fecha_recepcion) FROM cgd_rta_procesamiento WHERE id_archivo = $1)`,
		fileID, state)
	if err != nil {
		return fmt.Errorf("failed to set run state %s for file %d: %w", state, fileID, err)
	}
	return nil
}

// SetRunError records the failure code and detail on the current run.
func (s *Store) SetRunError(ctx context.Context, fileID int64, code, detail string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE cgd_rta_procesamiento
		SET codigo_error = $2, detalle_error = $3
		WHERE id_archivo = $1
		  AND fecha_recepcion = (
		      SELECT MAX(fecha_recepcion) FROM cgd_rta_procesamiento WHERE id_archivo = $1)`,
		fileID, code, detail)
	if err != nil {
		return fmt.Errorf("failed to record error %s on run for file %d: %w", code, fileID, err)
	}
	return nil
}

// MarkRunConsolidated flips the current run to ENVIADO, guarded so an
// already-consolidated run is left untouched. Reports whether a row changed.
func (s *Store) MarkRunConsolidated(ctx context.Context, fileID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE cgd_rta_procesamiento
		SET estado = $2
		WHERE id_archivo = $1
		  AND estado <> $2
		  AND fecha_recepcion = (
		      SELECT MAX(fecha_recepcion) FROM cgd_rta_procesamiento WHERE id_archivo = $1)`,
		fileID, RunStateSent)
	if err != nil {
		return false, fmt.Errorf("failed to consolidate run for file %d: %w", fileID, err)
	}
	return tag.RowsAffected() > 0, nil
}
