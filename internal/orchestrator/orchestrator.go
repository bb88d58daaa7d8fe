// Package orchestrator drives one inbound archive notification through the
// response lifecycle: dispatch, classification, the normal flow state
// machine, and the error/retry policy engine that arbitrates every failure.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/cgdops/rtaingest/internal/config"
	"github.com/cgdops/rtaingest/internal/db"
	"github.com/cgdops/rtaingest/internal/queue"
	"github.com/cgdops/rtaingest/internal/util"
	"github.com/cgdops/rtaingest/internal/verify"
)

// Ledger is the slice of the Postgres store the pipeline mutates.
type Ledger interface {
	GetFile(ctx context.Context, id int64) (*db.FileRecord, error)
	GetFileByRecordKey(ctx context.Context, recordKey string) (*db.FileRecord, error)
	GetFileByRecordKeyAndType(ctx context.Context, recordKey, fileType string) (*db.FileRecord, error)
	InsertFile(ctx context.Context, f *db.FileRecord) error
	InsertStateTransition(ctx context.Context, id int64, from, to string, at time.Time) error
	MarkFileLoading(ctx context.Context, id int64, at time.Time) error
	MarkFileRejected(ctx context.Context, id int64, at time.Time) error
	SetFileState(ctx context.Context, id int64, state string) error
	SetFileError(ctx context.Context, id int64, code, detail string) error

	InsertRun(ctx context.Context, fileID int64, zipName, responseType string, at time.Time) error
	CurrentRun(ctx context.Context, fileID int64) (*db.ProcessingRun, error)
	MarkRunStarted(ctx context.Context, fileID int64) error
	SetRunState(ctx context.Context, fileID int64, state string) error
	SetRunError(ctx context.Context, fileID int64, code, detail string) error
	MarkRunConsolidated(ctx context.Context, fileID int64) (bool, error)

	InsertMember(ctx context.Context, fileID, runID int64, name, memberType string) error
	CountMembers(ctx context.Context, fileID, runID int64) (int, error)
	ListMembers(ctx context.Context, fileID, runID int64) ([]db.MemberFile, error)
	MarkMembersSent(ctx context.Context, fileID int64) error

	GetCatalogEntry(ctx context.Context, code string) (*db.CatalogEntry, error)
}

// ObjectStore is the slice of the storage client the flow touches directly;
// archive expansion goes through the Expander.
type ObjectStore interface {
	Exists(ctx context.Context, bucket, key string) (bool, error)
	Move(ctx context.Context, bucket, srcKey, dstKey string) error
	MoveFolder(ctx context.Context, bucket, srcPrefix, dstPrefix string) error
}

// QueueClient sends, receives and acknowledges queue messages.
type QueueClient interface {
	Send(ctx context.Context, queueURL, body string, delaySeconds int32) error
	Receive(ctx context.Context, queueURL string, max, waitSeconds int32) ([]queue.Message, error)
	Delete(ctx context.Context, queueURL, receiptHandle string) error
}

// Notifier publishes templated operator mails.
type Notifier interface {
	Send(ctx context.Context, templateID string, values map[string]string) error
}

// Expander expands archives and rediscovers working folders.
type Expander interface {
	Expand(ctx context.Context, bucket, processingPrefix, zipBase string) (string, error)
	FindWorkingFolder(ctx context.Context, bucket, processingPrefix, zipBase string) (string, []string, error)
}

// Orchestrator owns one message's journey through the pipeline. Collaborators
// are injected so the flow logic tests against mocks.
type Orchestrator struct {
	cfg      config.Config
	ledger   Ledger
	store    ObjectStore
	queue    QueueClient
	notifier Notifier
	expander Expander
	log      *slog.Logger
	now      func() time.Time
}

func New(cfg config.Config, ledger Ledger, store ObjectStore, queueClient QueueClient,
	notifier Notifier, expander Expander, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		ledger:   ledger,
		store:    store,
		queue:    queueClient,
		notifier: notifier,
		expander: expander,
		log:      logger,
		now:      util.NowBogota,
	}
}

func (o *Orchestrator) profiles() verify.Profiles {
	return verify.Profiles{
		DebitReversal: o.cfg.DebitReversalKeywords,
		Reintegros:    o.cfg.ReintegroKeywords,
		Especiales:    o.cfg.EspecialesKeywords,
	}
}
