package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// StateTransition is one audit row joined with the file's archive name, for
// operator-facing views.
type StateTransition struct {
	FileID    int64
	FileName  string
	FromState string
	ToState   string
	ChangedAt time.Time
}

// RunSummary is the operator view of a processing run.
type RunSummary struct {
	FileID       int64
	RunID        int64
	ZipName      string
	ResponseType string
	State        string
	LoadAttempts int16
	ReceivedAt   time.Time
}

// RecentTransitions returns the newest state-history rows, optionally
// filtered by final state.
func (s *Store) RecentTransitions(ctx context.Context, stateFilter string, limit int) ([]StateTransition, error) {
	query := `
		SELECT e.id_archivo, a.nombre_archivo, COALESCE(e.estado_inicial, ''), e.estado_final, e.fecha_cambio_estado
		FROM cgd_archivo_estados e
		JOIN cgd_archivos a ON a.id_archivo = e.id_archivo`
	args := []any{limit}
	if stateFilter != "" {
		query += ` WHERE e.estado_final = $2`
		args = append(args, stateFilter)
	}
	query += ` ORDER BY e.fecha_cambio_estado DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query state history: %w", err)
	}
	defer rows.Close()

	var out []StateTransition
	for rows.Next() {
		var t StateTransition
		if err := rows.Scan(&t.FileID, &t.FileName, &t.FromState, &t.ToState, &t.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan state history row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RecentRuns returns the newest processing runs, optionally filtered by state.
func (s *Store) RecentRuns(ctx context.Context, stateFilter string, limit int) ([]RunSummary, error) {
	query := `
		SELECT id_archivo, id_rta_procesamiento, nombre_archivo_zip, tipo_respuesta,
		       estado, contador_intentos_cargue, fecha_recepcion
		FROM cgd_rta_procesamiento`
	args := []any{limit}
	if stateFilter != "" {
		query += ` WHERE estado = $2`
		args = append(args, stateFilter)
	}
	query += ` ORDER BY fecha_recepcion DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.FileID, &r.RunID, &r.ZipName, &r.ResponseType,
			&r.State, &r.LoadAttempts, &r.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DisplayHistory prints recent state transitions as a plain table.
func (s *Store) DisplayHistory(ctx context.Context, stateFilter string, limit int) error {
	transitions, err := s.RecentTransitions(ctx, stateFilter, limit)
	if err != nil {
		return err
	}

	fmt.Printf("--- File State History (limit %d) ---\n", limit)
	fmt.Printf("%-18s | %-40s | %-28s | %-28s | %s\n", "File ID", "File", "From", "To", "Changed At")
	fmt.Println(strings.Repeat("-", 140))
	for _, t := range transitions {
		fmt.Printf("%-18d | %-40s | %-28s | %-28s | %s\n",
			t.FileID, t.FileName, t.FromState, t.ToState, t.ChangedAt.Format(time.RFC3339))
	}
	fmt.Printf("Displayed %d records.\n", len(transitions))
	return nil
}

// DisplayRuns prints recent processing runs as a plain table.
func (s *Store) DisplayRuns(ctx context.Context, stateFilter string, limit int) error {
	runs, err := s.RecentRuns(ctx, stateFilter, limit)
	if err != nil {
		return err
	}

	fmt.Printf("--- Processing Runs (limit %d) ---\n", limit)
	fmt.Printf("%-18s | %-4s | %-44s | %-4s | %-22s | %-8s | %s\n",
		"File ID", "Run", "Archive", "Type", "State", "Attempts", "Received At")
	fmt.Println(strings.Repeat("-", 140))
	for _, r := range runs {
		fmt.Printf("%-18d | %-4d | %-44s | %-4s | %-22s | %-8d | %s\n",
			r.FileID, r.RunID, r.ZipName, r.ResponseType, r.State, r.LoadAttempts,
			r.ReceivedAt.Format(time.RFC3339))
	}
	fmt.Printf("Displayed %d records.\n", len(runs))
	return nil
}

// DisplayMembers prints the registered members of a file's runs.
func (s *Store) DisplayMembers(ctx context.Context, fileID int64) error {
	run, err := s.CurrentRun(ctx, fileID)
	if err != nil {
		return err
	}
	if run == nil {
		fmt.Printf("File %d has no processing runs.\n", fileID)
		return nil
	}

	members, err := s.ListMembers(ctx, fileID, run.RunID)
	if err != nil {
		return err
	}

	fmt.Printf("--- Members of file %d, run %d (%s) ---\n", fileID, run.RunID, run.State)
	fmt.Printf("%-50s | %-10s | %-18s | %s\n", "Member", "Type", "State", "Attempts")
	fmt.Println(strings.Repeat("-", 100))
	for _, m := range members {
		fmt.Printf("%-50s | %-10s | %-18s | %d\n", m.Name, m.MemberType, m.State, m.LoadAttempts)
	}
	fmt.Printf("Displayed %d records.\n", len(members))
	return nil
}
