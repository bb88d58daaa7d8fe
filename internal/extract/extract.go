// Package extract expands a response archive in place: download the zip from
// the processing prefix, decompress it, republish every member under a
// timestamped working folder and delete the original.
package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cgdops/rtaingest/internal/util"
)

// ObjectStore is the slice of the storage client the expander needs.
type ObjectStore interface {
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Download(ctx context.Context, bucket, key string) ([]byte, error)
	Upload(ctx context.Context, bucket, key string, body []byte) error
	Delete(ctx context.Context, bucket, key string) error
}

// Expander performs archive expansion against an object store.
type Expander struct {
	store ObjectStore
	log   *slog.Logger
	now   func() time.Time
}

func New(store ObjectStore, logger *slog.Logger) *Expander {
	return &Expander{store: store, log: logger, now: util.NowBogota}
}

// Expand locates the .zip under processingPrefix whose basename starts with
// zipBase, expands it and republishes the members under
// <processingPrefix><zipBase>_<14-digit timestamp>/. The original zip is
// deleted afterwards. Returns the created working folder name.
func (e *Expander) Expand(ctx context.Context, bucket, processingPrefix, zipBase string) (string, error) {
	keys, err := e.store.List(ctx, bucket, processingPrefix+zipBase)
	if err != nil {
		return "", fmt.Errorf("failed to locate archive %s: %w", zipBase, err)
	}
	var zipKey string
	for _, key := range keys {
		if strings.HasSuffix(key, ".zip") {
			zipKey = key
			break
		}
	}
	if zipKey == "" {
		return "", fmt.Errorf("no zip archive found under %s%s", processingPrefix, zipBase)
	}

	data, err := e.store.Download(ctx, bucket, zipKey)
	if err != nil {
		return "", err
	}

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open archive %s: %w", zipKey, err)
	}

	workingFolder := zipBase + "_" + util.Timestamp14(e.now())
	uploaded := 0
	for _, member := range reader.File {
		if member.FileInfo().IsDir() {
			continue
		}
		rc, err := member.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open member %s: %w", member.Name, err)
		}
		contents, err := io.ReadAll(rc)
		closeErr := rc.Close()
		if err != nil {
			return "", fmt.Errorf("failed to read member %s: %w", member.Name, err)
		}
		if closeErr != nil {
			return "", fmt.Errorf("failed to close member %s: %w", member.Name, closeErr)
		}

		key := processingPrefix + workingFolder + "/" + strings.ReplaceAll(member.Name, "\\", "/")
		if err := e.store.Upload(ctx, bucket, key, contents); err != nil {
			return "", err
		}
		uploaded++
	}

	if err := e.store.Delete(ctx, bucket, zipKey); err != nil {
		return "", err
	}

	e.log.Info("archive expanded",
		slog.String("archive", zipKey),
		slog.String("working_folder", workingFolder),
		slog.Int("members", uploaded))
	return workingFolder, nil
}

// FindWorkingFolder locates the newest working folder for zipBase (lexically
// greatest timestamp suffix) and lists its member basenames. Both returns
// are empty when no expansion has materialized yet.
func (e *Expander) FindWorkingFolder(ctx context.Context, bucket, processingPrefix, zipBase string) (string, []string, error) {
	keys, err := e.store.List(ctx, bucket, processingPrefix+zipBase+"_")
	if err != nil {
		return "", nil, fmt.Errorf("failed to list working folders for %s: %w", zipBase, err)
	}

	latest := ""
	for _, key := range keys {
		rest := strings.TrimPrefix(key, processingPrefix)
		folder, _, found := strings.Cut(rest, "/")
		if !found || !strings.Contains(folder, "_") {
			continue
		}
		if folder > latest {
			latest = folder
		}
	}
	if latest == "" {
		return "", nil, nil
	}

	folderPrefix := processingPrefix + latest + "/"
	var members []string
	for _, key := range keys {
		if !strings.HasPrefix(key, folderPrefix) || strings.HasSuffix(key, "/") {
			continue
		}
		if idx := strings.LastIndex(key, "/"); idx >= 0 {
			members = append(members, key[idx+1:])
		}
	}
	sort.Strings(members)
	return latest, members, nil
}
