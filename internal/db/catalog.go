package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CatalogEntry is one row of the static error taxonomy: what the code means,
// which process owns it and whether the failure may be rescheduled.
type CatalogEntry struct {
	Code        string
	Description string
	Process     string
	Retryable   bool
}

// GetCatalogEntry resolves an error code. A code missing from the catalog is
// itself an error: every code the pipeline emits must be seeded.
func (s *Store) GetCatalogEntry(ctx context.Context, code string) (*CatalogEntry, error) {
	var e CatalogEntry
	err := s.pool.QueryRow(ctx, `
		SELECT codigo_error, descripcion, proceso, aplica_reprogramar
		FROM cgd_catalogo_errores
		WHERE codigo_error = $1`, code).
		Scan(&e.Code, &e.Description, &e.Process, &e.Retryable)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("error code %s is not in the catalog", code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog entry %s: %w", code, err)
	}
	return &e, nil
}

// MailTemplateParams returns the parameter names a mail template requires, in
// message order.
func (s *Store) MailTemplateParams(ctx context.Context, templateID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id_parametro FROM cgd_correos_parametros
		WHERE id_plantilla = $1
		ORDER BY orden`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mail parameters for template %s: %w", templateID, err)
	}
	defer rows.Close()

	var params []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan mail parameter row: %w", err)
		}
		params = append(params, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mail parameter rows: %w", err)
	}
	return params, nil
}
