// Package event defines the JSON shapes crossing the queue boundary: the
// inbound notification envelope and the outbound validate, consolidate,
// re-drive and mail messages.
package event

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Envelope is the body of one inbound queue message. Two shapes arrive on
// the same queue: a storage created-event wrapper carrying an object key,
// and a self-published re-drive carrying file and run ids. A re-drive may
// also carry the Records wrapper, which then supplies the key.
type Envelope struct {
	Records []StorageRecord `json:"Records,omitempty"`

	BucketName           string `json:"bucket_name,omitempty"`
	FileName             string `json:"file_name,omitempty"`
	FileID               string `json:"file_id,omitempty"`
	ResponseProcessingID string `json:"response_processing_id,omitempty"`
	IsReprocessing       bool   `json:"is_reprocessing,omitempty"`
}

// StorageRecord mirrors the object-store notification wrapper down to the
// only field the pipeline reads: the object key.
type StorageRecord struct {
	S3 struct {
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

// Parse decodes one message body into an Envelope.
func Parse(body []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(body, &e); err != nil {
		return Envelope{}, fmt.Errorf("failed to parse inbound envelope: %w", err)
	}
	return e, nil
}

// ObjectKey resolves the archive's object key: the storage record wins, the
// re-drive file_name is the fallback.
func (e Envelope) ObjectKey() string {
	if len(e.Records) > 0 && e.Records[0].S3.Object.Key != "" {
		return e.Records[0].S3.Object.Key
	}
	return e.FileName
}

// RedriveIDs parses the file and run ids a re-drive envelope carries. Both
// are zero on a first-arrival envelope or when the strings do not parse.
func (e Envelope) RedriveIDs() (fileID, runID int64) {
	fileID, _ = strconv.ParseInt(e.FileID, 10, 64)
	runID, _ = strconv.ParseInt(e.ResponseProcessingID, 10, 64)
	return fileID, runID
}

// ValidateRequest asks the downstream validator to pick up one member.
// file_id travels as a string and the run id as a number, matching the
// consumer's contract.
type ValidateRequest struct {
	BucketName           string `json:"bucket_name"`
	FolderName           string `json:"folder_name"`
	FileName             string `json:"file_name"`
	FileID               string `json:"file_id"`
	ResponseProcessingID int64  `json:"response_processing_id"`
}

// ConsolidateRequest signals that every member of a run has been handed off.
type ConsolidateRequest struct {
	FileID               string `json:"file_id"`
	ResponseProcessingID int64  `json:"response_processing_id"`
	BucketName           string `json:"bucket_name"`
	FolderName           string `json:"folder_name"`
}

// Redrive is the self-published retry envelope.
type Redrive struct {
	BucketName           string `json:"bucket_name"`
	FileName             string `json:"file_name"`
	IsReprocessing       bool   `json:"is_reprocessing"`
	FileID               string `json:"file_id,omitempty"`
	ResponseProcessingID string `json:"response_processing_id,omitempty"`
}

// Notification is a templated operator mail request.
type Notification struct {
	Template   string              `json:"id_plantilla"`
	Parameters []NotificationParam `json:"parametros"`
}

// NotificationParam is one name/value pair of a mail template.
type NotificationParam struct {
	Name  string `json:"nombre"`
	Value string `json:"valor"`
}

// Encode renders any outbound message as its JSON body.
func Encode(msg any) (string, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to encode outbound message: %w", err)
	}
	return string(raw), nil
}
