package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("Expect: storage event yields the object key", func(t *testing.T) {
		body := `{"Records":[{"s3":{"object":{"key":"Recibidos/RE_PRO_TUTGMF0001003920240802-0001.zip"}}}]}`
		env, err := Parse([]byte(body))
		require.NoError(t, err)

		assert.Equal(t, "Recibidos/RE_PRO_TUTGMF0001003920240802-0001.zip", env.ObjectKey())
		assert.False(t, env.IsReprocessing)
		fileID, runID := env.RedriveIDs()
		assert.Zero(t, fileID)
		assert.Zero(t, runID)
	})

	t.Run("Expect: re-drive envelope carries ids and the reprocessing flag", func(t *testing.T) {
		body := `{"bucket_name":"bucket","file_name":"Recibidos/RE_PRO_X-0001.zip","file_id":"20240802010539","response_processing_id":"2","is_reprocessing":true}`
		env, err := Parse([]byte(body))
		require.NoError(t, err)

		assert.True(t, env.IsReprocessing)
		assert.Equal(t, "Recibidos/RE_PRO_X-0001.zip", env.ObjectKey())
		fileID, runID := env.RedriveIDs()
		assert.Equal(t, int64(20240802010539), fileID)
		assert.Equal(t, int64(2), runID)
	})

	t.Run("Expect: a Records wrapper on a re-drive supplies the key", func(t *testing.T) {
		body := `{"Records":[{"s3":{"object":{"key":"Recibidos/a.zip"}}}],"file_name":"Recibidos/b.zip","is_reprocessing":true}`
		env, err := Parse([]byte(body))
		require.NoError(t, err)
		assert.Equal(t, "Recibidos/a.zip", env.ObjectKey())
	})

	t.Run("Expect: malformed JSON is an error", func(t *testing.T) {
		_, err := Parse([]byte("{not json"))
		assert.Error(t, err)
	})
}

func TestEncodeValidateRequest(t *testing.T) {
	body, err := Encode(ValidateRequest{
		BucketName:           "bucket",
		FolderName:           "procesando/RE_PRO_X-0001_20240802101530/",
		FileName:             "RE_PRO_TUTGMF0001003920240802-0001-CONTROLTX.txt",
		FileID:               "20240802010239",
		ResponseProcessingID: 3,
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &decoded))
	assert.Equal(t, "20240802010239", decoded["file_id"], "file id must travel as a string")
	assert.Equal(t, float64(3), decoded["response_processing_id"], "run id must travel as a number")
}
