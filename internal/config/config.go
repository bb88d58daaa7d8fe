package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
)

var (
	// Default number of concurrent message handlers, often set to CPU count.
	DefaultNumWorkers = runtime.NumCPU()
)

const (
	// DefaultMaxLoadAttempts bounds how often a retryable failure re-drives
	// the same file before it fails terminally.
	DefaultMaxLoadAttempts = 3

	// DefaultRetryDelaySeconds is the queue delay applied to re-drive
	// messages (SQS caps this at 900).
	DefaultRetryDelaySeconds = 5
)

// Config holds application settings. Values come from the environment (an
// optional .env file is honored); flags may override a few of them.
type Config struct {
	ServiceName string
	Region      string

	DatabaseURL string

	Bucket           string
	FolderProcessing string
	FolderRejected   string

	QueueProcessURL     string
	QueueValidateURL    string
	QueueConsolidateURL string
	QueueEmailsURL      string

	// Verification keyword sets, one per supported response profile.
	DebitReversalKeywords []string
	ReintegroKeywords     []string
	EspecialesKeywords    []string

	// Fixed blocks a special archive name must carry.
	SpecialNameStart string
	SpecialNameEnd   string

	MaxLoadAttempts   int
	RetryDelaySeconds int

	NumWorkers int

	// Endpoint override for local stacks; empty in real deployments.
	EndpointURL string
}

// Load reads configuration from the environment. When envFile is nonempty it
// is loaded first (missing file is an error); otherwise a ./.env is loaded
// when present.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else {
		// Best effort: local runs keep settings in ./.env.
		_ = godotenv.Load()
	}

	cfg := Config{
		ServiceName:         getEnv("SERVICE_NAME", "rtaingest"),
		Region:              getEnv("REGION_ZONE", "us-east-1"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		Bucket:              os.Getenv("BUCKET"),
		FolderProcessing:    getEnv("FOLDER_PROCESSING", "procesando/"),
		FolderRejected:      getEnv("FOLDER_REJECTED", "rechazados/"),
		QueueProcessURL:     os.Getenv("SQS_URL_PRO_RESPONSE_TO_PROCESS"),
		QueueValidateURL:    os.Getenv("SQS_URL_PRO_RESPONSE_TO_VALIDATE"),
		QueueConsolidateURL: os.Getenv("SQS_URL_PRO_RESPONSE_TO_CONSOLIDATE"),
		QueueEmailsURL:      os.Getenv("SQS_URL_EMAILS"),
		SpecialNameStart:    os.Getenv("START_SPECIAL_FILES"),
		SpecialNameEnd:      os.Getenv("END_SPECIAL_FILES"),
		EndpointURL:         os.Getenv("ENDPOINT_URL"),
	}

	var err error
	if cfg.DebitReversalKeywords, err = getListEnv("CONSTANTE_TU_DEBITO_REVERSO"); err != nil {
		return Config{}, err
	}
	if cfg.ReintegroKeywords, err = getListEnv("CONSTANTES_TU_REINTEGROS"); err != nil {
		return Config{}, err
	}
	if cfg.EspecialesKeywords, err = getListEnv("CONSTANTES_TU_ESPECIALES"); err != nil {
		return Config{}, err
	}
	if cfg.MaxLoadAttempts, err = getIntEnv("NUMBER_RETRIES", DefaultMaxLoadAttempts); err != nil {
		return Config{}, err
	}
	if cfg.RetryDelaySeconds, err = getIntEnv("TIME_BETWEEN_RETRY", DefaultRetryDelaySeconds); err != nil {
		return Config{}, err
	}
	if cfg.NumWorkers, err = getIntEnv("NUM_WORKERS", DefaultNumWorkers); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate fails fast on anything the pipeline cannot run without.
func (c Config) Validate() error {
	var errs []error
	required := []struct {
		name  string
		value string
	}{
		{"DATABASE_URL", c.DatabaseURL},
		{"BUCKET", c.Bucket},
		{"FOLDER_PROCESSING", c.FolderProcessing},
		{"FOLDER_REJECTED", c.FolderRejected},
		{"SQS_URL_PRO_RESPONSE_TO_PROCESS", c.QueueProcessURL},
		{"SQS_URL_PRO_RESPONSE_TO_VALIDATE", c.QueueValidateURL},
		{"SQS_URL_PRO_RESPONSE_TO_CONSOLIDATE", c.QueueConsolidateURL},
		{"SQS_URL_EMAILS", c.QueueEmailsURL},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("missing required setting %s", r.name))
		}
	}

	if len(c.DebitReversalKeywords) == 0 {
		errs = append(errs, errors.New("CONSTANTE_TU_DEBITO_REVERSO must list at least one keyword"))
	}
	if len(c.ReintegroKeywords) == 0 {
		errs = append(errs, errors.New("CONSTANTES_TU_REINTEGROS must list at least one keyword"))
	}
	if len(c.EspecialesKeywords) == 0 {
		errs = append(errs, errors.New("CONSTANTES_TU_ESPECIALES must list at least one keyword"))
	}
	if c.MaxLoadAttempts < 1 {
		errs = append(errs, errors.New("NUMBER_RETRIES must be at least 1"))
	}
	if c.RetryDelaySeconds < 0 || c.RetryDelaySeconds > 900 {
		errs = append(errs, errors.New("TIME_BETWEEN_RETRY must be between 0 and 900 seconds"))
	}
	if c.NumWorkers < 1 {
		errs = append(errs, errors.New("NUM_WORKERS must be at least 1"))
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return n, nil
}

// getListEnv parses a JSON string array, e.g. ["CONTROLTX","DEBITOS"].
func getListEnv(key string) ([]string, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return nil, fmt.Errorf("invalid JSON list for %s: %w", key, err)
	}
	return out, nil
}
