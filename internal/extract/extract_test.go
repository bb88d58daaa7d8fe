package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore is an in-memory object store for expansion tests.
type memoryStore struct {
	objects map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string][]byte)}
}

func (s *memoryStore) List(_ context.Context, _, prefix string) ([]string, error) {
	var keys []string
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *memoryStore) Download(_ context.Context, _, key string) ([]byte, error) {
	return s.objects[key], nil
}

func (s *memoryStore) Upload(_ context.Context, _, key string, body []byte) error {
	s.objects[key] = body
	return nil
}

func (s *memoryStore) Delete(_ context.Context, _, key string) error {
	delete(s.objects, key)
	return nil
}

func buildZip(t *testing.T, members map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, contents := range members {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(f, contents)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func testExpander(store ObjectStore) *Expander {
	e := New(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.now = func() time.Time { return time.Date(2024, 8, 2, 10, 15, 30, 0, time.UTC) }
	return e
}

func TestExpand(t *testing.T) {
	t.Run("Expect: members republished under the working folder and the zip deleted", func(t *testing.T) {
		store := newMemoryStore()
		store.objects["procesando/RE_PRO_X-0001.zip"] = buildZip(t, map[string]string{
			"RE_PRO_X-0001-CONTROLTX.txt": "control",
			"RE_PRO_X-0001-DEBITOS.txt":   "debitos",
		})

		folder, err := testExpander(store).Expand(context.Background(), "bucket", "procesando/", "RE_PRO_X-0001")
		require.NoError(t, err)

		assert.Equal(t, "RE_PRO_X-0001_20240802101530", folder)
		assert.Contains(t, store.objects, "procesando/RE_PRO_X-0001_20240802101530/RE_PRO_X-0001-CONTROLTX.txt")
		assert.Contains(t, store.objects, "procesando/RE_PRO_X-0001_20240802101530/RE_PRO_X-0001-DEBITOS.txt")
		assert.NotContains(t, store.objects, "procesando/RE_PRO_X-0001.zip", "original archive must be removed")
	})

	t.Run("Expect: a missing archive is an error", func(t *testing.T) {
		_, err := testExpander(newMemoryStore()).Expand(context.Background(), "bucket", "procesando/", "RE_PRO_X-0001")
		assert.ErrorContains(t, err, "no zip archive found")
	})

	t.Run("Expect: corrupt archive data is an error", func(t *testing.T) {
		store := newMemoryStore()
		store.objects["procesando/RE_PRO_X-0001.zip"] = []byte("not a zip")
		_, err := testExpander(store).Expand(context.Background(), "bucket", "procesando/", "RE_PRO_X-0001")
		assert.Error(t, err)
	})
}

func TestFindWorkingFolder(t *testing.T) {
	t.Run("Expect: the newest timestamped folder wins", func(t *testing.T) {
		store := newMemoryStore()
		store.objects["procesando/RE_PRO_X-0001_20240801090000/RE_PRO_X-0001-CONTROLTX.txt"] = nil
		store.objects["procesando/RE_PRO_X-0001_20240802101530/RE_PRO_X-0001-CONTROLTX.txt"] = nil
		store.objects["procesando/RE_PRO_X-0001_20240802101530/RE_PRO_X-0001-DEBITOS.txt"] = nil

		folder, members, err := testExpander(store).FindWorkingFolder(context.Background(), "bucket", "procesando/", "RE_PRO_X-0001")
		require.NoError(t, err)

		assert.Equal(t, "RE_PRO_X-0001_20240802101530", folder)
		assert.Equal(t, []string{"RE_PRO_X-0001-CONTROLTX.txt", "RE_PRO_X-0001-DEBITOS.txt"}, members)
	})

	t.Run("Expect: no folder yields empty results without error", func(t *testing.T) {
		folder, members, err := testExpander(newMemoryStore()).FindWorkingFolder(context.Background(), "bucket", "procesando/", "RE_PRO_X-0001")
		require.NoError(t, err)
		assert.Empty(t, folder)
		assert.Empty(t, members)
	})
}
