package db

import (
	"context"
	"fmt"
)

// Lifecycle vocabularies. These are compile-time constants rather than
// configuration: every guarded transition predicate depends on the exact
// strings, so late-binding them from the environment only hides typos.
const (
	FileStateSent         = "ENVIADO"
	FileStatePrevalidated = "PREVALIDADO"
	FileStateLoading      = "CARGANDO_RTA_PROCESAMIENTO"
	FileStateRejected     = "PROCESAMIENTO_RECHAZADO"
	FileStateFailed       = "PROCESAMIENTO_FALLIDO"
	FileStateRetryPending = "PROCESA_PENDIENTE_REINTENTO"
)

const (
	RunStateStarted          = "INICIADO"
	RunStateSent             = "ENVIADO"
	RunStateRetryPending     = "PENDIENTE_REINTENTO"
	RunStateReprocessPending = "PENDIENTE_REPROCESO"
	RunStateFailed           = "FALLIDO"
	RunStateRejected         = "RECHAZADO"
)

const (
	MemberStatePending = "PENDIENTE_INICIO"
	MemberStateSent    = "ENVIADO"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cgd_catalogo_errores (
    codigo_error       VARCHAR(30) PRIMARY KEY,
    descripcion        VARCHAR(1000) NOT NULL,
    proceso            VARCHAR(500) NOT NULL,
    aplica_reprogramar BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS cgd_archivos (
    id_archivo                      BIGINT PRIMARY KEY,
    nombre_archivo                  VARCHAR(100) NOT NULL,
    plataforma_origen               CHAR(2) NOT NULL,
    tipo_archivo                    CHAR(2) NOT NULL,
    consecutivo_plataforma_origen   SMALLINT NOT NULL,
    fecha_nombre_archivo            CHAR(8) NOT NULL,
    estado                          VARCHAR(50) NOT NULL,
    fecha_recepcion                 TIMESTAMP NOT NULL,
    fecha_ciclo                     DATE NOT NULL,
    contador_intentos_cargue        SMALLINT NOT NULL DEFAULT 0,
    contador_intentos_generacion    SMALLINT NOT NULL DEFAULT 0,
    contador_intentos_empaquetado   SMALLINT NOT NULL DEFAULT 0,
    acg_nombre_archivo              VARCHAR(100),
    codigo_error                    VARCHAR(30) REFERENCES cgd_catalogo_errores (codigo_error),
    detalle_error                   VARCHAR(2000)
);
CREATE INDEX IF NOT EXISTS idx_cgd_archivos_acg_nombre ON cgd_archivos (acg_nombre_archivo);

CREATE TABLE IF NOT EXISTS cgd_archivo_estados (
    id_archivo          BIGINT NOT NULL REFERENCES cgd_archivos (id_archivo),
    estado_inicial      VARCHAR(50),
    estado_final        VARCHAR(50) NOT NULL,
    fecha_cambio_estado TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cgd_archivo_estados_archivo ON cgd_archivo_estados (id_archivo, fecha_cambio_estado);

CREATE TABLE IF NOT EXISTS cgd_rta_procesamiento (
    id_rta_procesamiento     BIGINT NOT NULL,
    id_archivo               BIGINT NOT NULL REFERENCES cgd_archivos (id_archivo),
    nombre_archivo_zip       VARCHAR(100) NOT NULL,
    tipo_respuesta           CHAR(2) NOT NULL,
    fecha_recepcion          TIMESTAMP NOT NULL,
    estado                   VARCHAR(50) NOT NULL,
    contador_intentos_cargue SMALLINT NOT NULL DEFAULT 0,
    codigo_error             VARCHAR(30) REFERENCES cgd_catalogo_errores (codigo_error),
    detalle_error            VARCHAR(2000),
    PRIMARY KEY (id_archivo, id_rta_procesamiento)
);

CREATE TABLE IF NOT EXISTS cgd_rta_pro_archivos (
    id_rta_procesamiento     BIGINT NOT NULL,
    id_archivo               BIGINT NOT NULL,
    nombre_archivo           VARCHAR(100) NOT NULL,
    tipo_archivo_rta         VARCHAR(30) NOT NULL,
    estado                   VARCHAR(50) NOT NULL,
    contador_intentos_cargue SMALLINT NOT NULL DEFAULT 0,
    codigo_error             VARCHAR(30) REFERENCES cgd_catalogo_errores (codigo_error),
    detalle_error            VARCHAR(2000),
    PRIMARY KEY (id_archivo, id_rta_procesamiento, nombre_archivo),
    FOREIGN KEY (id_archivo, id_rta_procesamiento)
        REFERENCES cgd_rta_procesamiento (id_archivo, id_rta_procesamiento)
);

CREATE TABLE IF NOT EXISTS cgd_correos_parametros (
    id_plantilla CHAR(5) NOT NULL,
    id_parametro VARCHAR(50) NOT NULL,
    orden        SMALLINT NOT NULL DEFAULT 0,
    descripcion  VARCHAR(500),
    PRIMARY KEY (id_plantilla, id_parametro)
);
`

// InitializeSchema creates every ledger table. Safe to run repeatedly.
func (s *Store) InitializeSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create ledger schema: %w", err)
	}
	return nil
}

// catalogSeed is the closed error taxonomy of the pipeline. Only EICP006 and
// EPGA001 reschedule; the rest describe conditions a retry cannot fix.
var catalogSeed = []CatalogEntry{
	{Code: "EICP001", Description: "No existe registro previo del archivo de respuesta", Process: "CARGUE", Retryable: false},
	{Code: "EICP002", Description: "Estado del archivo no permite iniciar el cargue de la respuesta", Process: "CARGUE", Retryable: false},
	{Code: "EICP003", Description: "Fallo la descompresion del archivo de respuesta", Process: "CARGUE", Retryable: false},
	{Code: "EICP004", Description: "El contenido del archivo no corresponde al tipo de respuesta registrado", Process: "CARGUE", Retryable: false},
	{Code: "EICP005", Description: "La verificacion del contenido del archivo de respuesta fallo", Process: "CARGUE", Retryable: false},
	{Code: "EICP006", Description: "Fallo de persistencia o de infraestructura durante el cargue", Process: "CARGUE", Retryable: true},
	{Code: "EICP007", Description: "El nombre del archivo especial esta mal formado", Process: "CARGUE", Retryable: false},
	{Code: "EPGA001", Description: "Fallo la actualizacion del estado del proceso en el reintento", Process: "CARGUE", Retryable: true},
}

// mailParamSeed lists, per template, the parameter names the notifier must
// resolve and the order they appear in the outbound message.
var mailParamSeed = map[string][]string{
	"PC009": {"codigo_rechazo", "descripcion_rechazo", "fecha_recepcion", "hora_recepcion", "nombre_respuesta_pro_tu"},
	"PC012": {"nombre_archivo_rta", "plataforma_origen", "fecha_recepcion", "hora_recepcion", "codigo_falla", "descripcion_falla", "nombre_proceso"},
	"PC013": {"nombre_archivo_rta", "plataforma_origen", "fecha_recepcion", "hora_recepcion", "codigo_falla", "detalle_falla", "nombre_proceso"},
}

// SeedReferenceData upserts the error catalog and the mail template
// parameters. Idempotent so `setup` can run on every deploy.
func (s *Store) SeedReferenceData(ctx context.Context) error {
	for _, entry := range catalogSeed {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO cgd_catalogo_errores (codigo_error, descripcion, proceso, aplica_reprogramar)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (codigo_error) DO UPDATE
			SET descripcion = EXCLUDED.descripcion,
			    proceso = EXCLUDED.proceso,
			    aplica_reprogramar = EXCLUDED.aplica_reprogramar`,
			entry.Code, entry.Description, entry.Process, entry.Retryable)
		if err != nil {
			return fmt.Errorf("failed to seed catalog entry %s: %w", entry.Code, err)
		}
	}

	for template, params := range mailParamSeed {
		for i, param := range params {
			_, err := s.pool.Exec(ctx, `
				INSERT INTO cgd_correos_parametros (id_plantilla, id_parametro, orden)
				VALUES ($1, $2, $3)
				ON CONFLICT (id_plantilla, id_parametro) DO UPDATE
				SET orden = EXCLUDED.orden`,
				template, param, i)
			if err != nil {
				return fmt.Errorf("failed to seed mail parameter %s/%s: %w", template, param, err)
			}
		}
	}
	return nil
}
