package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// FileRecord is one row of cgd_archivos: the file the switch's response
// refers back to. Created on first sighting, mutated at every stage, never
// deleted.
type FileRecord struct {
	ID               int64
	Name             string
	Platform         string
	FileType         string
	PlatformSequence int16
	NameDate         string
	State            string
	ReceivedAt       time.Time
	CycleDate        time.Time
	LoadAttempts     int16
	RecordKey        string
	ErrorCode        *string
	ErrorDetail      *string
}

const fileColumns = `id_archivo, nombre_archivo, plataforma_origen, tipo_archivo,
	consecutivo_plataforma_origen, fecha_nombre_archivo, estado, fecha_recepcion,
	fecha_ciclo, contador_intentos_cargue, COALESCE(acg_nombre_archivo, ''),
	codigo_error, detalle_error`

func scanFile(row pgx.Row) (*FileRecord, error) {
	var f FileRecord
	err := row.Scan(&f.ID, &f.Name, &f.Platform, &f.FileType, &f.PlatformSequence,
		&f.NameDate, &f.State, &f.ReceivedAt, &f.CycleDate, &f.LoadAttempts,
		&f.RecordKey, &f.ErrorCode, &f.ErrorDetail)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// GetFile fetches a file record by id. Returns (nil, nil) when absent.
func (s *Store) GetFile(ctx context.Context, id int64) (*FileRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM cgd_archivos WHERE id_archivo = $1`, id)
	f, err := scanFile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch file %d: %w", id, err)
	}
	return f, nil
}

// GetFileByRecordKey looks a file up by its normalized archive name.
// Returns (nil, nil) on a clean miss.
func (s *Store) GetFileByRecordKey(ctx context.Context, recordKey string) (*FileRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM cgd_archivos WHERE acg_nombre_archivo = $1`, recordKey)
	f, err := scanFile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch file by record key %s: %w", recordKey, err)
	}
	return f, nil
}

// GetFileByRecordKeyAndType narrows the lookup to one file type; the special
// flow only ever matches type 05 records.
func (s *Store) GetFileByRecordKeyAndType(ctx context.Context, recordKey, fileType string) (*FileRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM cgd_archivos WHERE acg_nombre_archivo = $1 AND tipo_archivo = $2`,
		recordKey, fileType)
	f, err := scanFile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch file by record key %s type %s: %w", recordKey, fileType, err)
	}
	return f, nil
}

// InsertFile registers a brand new file record (the special-flow
// self-bootstrap is the only caller).
func (s *Store) InsertFile(ctx context.Context, f *FileRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cgd_archivos (
			id_archivo, nombre_archivo, plataforma_origen, tipo_archivo,
			consecutivo_plataforma_origen, fecha_nombre_archivo, estado,
			fecha_recepcion, fecha_ciclo, contador_intentos_cargue,
			contador_intentos_generacion, contador_intentos_empaquetado,
			acg_nombre_archivo
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, 0, 0, $10)`,
		f.ID, f.Name, f.Platform, f.FileType, f.PlatformSequence, f.NameDate,
		f.State, f.ReceivedAt, f.CycleDate, f.RecordKey)
	if err != nil {
		return fmt.Errorf("failed to insert file %d: %w", f.ID, err)
	}
	return nil
}

// InsertStateTransition appends one audit row to cgd_archivo_estados.
func (s *Store) InsertStateTransition(ctx context.Context, id int64, from, to string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cgd_archivo_estados (id_archivo, estado_inicial, estado_final, fecha_cambio_estado)
		VALUES ($1, $2, $3, $4)`,
		id, from, to, at)
	if err != nil {
		return fmt.Errorf("failed to append state transition for file %d: %w", id, err)
	}
	return nil
}

// MarkFileLoading moves the file to CARGANDO_RTA_PROCESAMIENTO, refreshes its
// reception timestamps and bumps the load attempt counter.
func (s *Store) MarkFileLoading(ctx context.Context, id int64, at time.Time) error {
	return s.touchFile(ctx, id, FileStateLoading, at)
}

// MarkFileRejected is the same mutation with the terminal-reject state.
func (s *Store) MarkFileRejected(ctx context.Context, id int64, at time.Time) error {
	return s.touchFile(ctx, id, FileStateRejected, at)
}

func (s *Store) touchFile(ctx context.Context, id int64, state string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE cgd_archivos
		SET estado = $2,
		    fecha_recepcion = $3,
		    fecha_ciclo = $3::date,
		    contador_intentos_cargue = contador_intentos_cargue + 1
		WHERE id_archivo = $1`,
		id, state, at)
	if err != nil {
		return fmt.Errorf("failed to set file %d state %s: %w", id, state, err)
	}
	return nil
}

// SetFileState changes only the lifecycle state, leaving counters alone.
func (s *Store) SetFileState(ctx context.Context, id int64, state string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE cgd_archivos SET estado = $2 WHERE id_archivo = $1`, id, state)
	if err != nil {
		return fmt.Errorf("failed to set file %d state %s: %w", id, state, err)
	}
	return nil
}

// SetFileError records the last error code and detail on the file record.
func (s *Store) SetFileError(ctx context.Context, id int64, code, detail string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE cgd_archivos SET codigo_error = $2, detalle_error = $3 WHERE id_archivo = $1`,
		id, code, detail)
	if err != nil {
		return fmt.Errorf("failed to record error %s on file %d: %w", code, id, err)
	}
	return nil
}
