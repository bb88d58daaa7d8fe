package db

import (
	"context"
	"fmt"
)

// MemberFile is one file extracted from a response archive, keyed by the run
// it was registered under.
type MemberFile struct {
	FileID       int64
	RunID        int64
	Name         string
	MemberType   string
	State        string
	LoadAttempts int16
	ErrorCode    *string
	ErrorDetail  *string
}

// InsertMember registers an archive member in PENDIENTE_INICIO against the
// file's current run.
func (s *Store) InsertMember(ctx context.Context, fileID, runID int64, name, memberType string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cgd_rta_pro_archivos (
			id_rta_procesamiento, id_archivo, nombre_archivo,
			tipo_archivo_rta, estado, contador_intentos_cargue
		) VALUES ($1, $2, $3, $4, $5, 0)`,
		runID, fileID, name, memberType, MemberStatePending)
	if err != nil {
		return fmt.Errorf("failed to register member %s for file %d: %w", name, fileID, err)
	}
	return nil
}

// CountMembers reports how many members are registered for one run.
func (s *Store) CountMembers(ctx context.Context, fileID, runID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(1) FROM cgd_rta_pro_archivos
		WHERE id_archivo = $1 AND id_rta_procesamiento = $2`,
		fileID, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count members for file %d run %d: %w", fileID, runID, err)
	}
	return n, nil
}

// ListMembers returns the registered members of one run.
func (s *Store) ListMembers(ctx context.Context, fileID, runID int64) ([]MemberFile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id_archivo, id_rta_procesamiento, nombre_archivo, tipo_archivo_rta,
		       estado, contador_intentos_cargue, codigo_error, detalle_error
		FROM cgd_rta_pro_archivos
		WHERE id_archivo = $1 AND id_rta_procesamiento = $2
		ORDER BY nombre_archivo`, fileID, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members for file %d run %d: %w", fileID, runID, err)
	}
	defer rows.Close()

	var members []MemberFile
	for rows.Next() {
		var m MemberFile
		if err := rows.Scan(&m.FileID, &m.RunID, &m.Name, &m.MemberType,
			&m.State, &m.LoadAttempts, &m.ErrorCode, &m.ErrorDetail); err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate member rows: %w", err)
	}
	return members, nil
}

// MarkMembersSent bulk-flips every PENDIENTE_INICIO member of the file to
// ENVIADO. Members already flipped are untouched, so re-drives are safe.
func (s *Store) MarkMembersSent(ctx context.Context, fileID int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE cgd_rta_pro_archivos
		SET estado = $2
		WHERE id_archivo = $1 AND estado = $3`,
		fileID, MemberStateSent, MemberStatePending)
	if err != nil {
		return fmt.Errorf("failed to flip members to sent for file %d: %w", fileID, err)
	}
	return nil
}
