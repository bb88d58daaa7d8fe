package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/cgdops/rtaingest/internal/config"
	"github.com/cgdops/rtaingest/internal/db"
	"github.com/cgdops/rtaingest/internal/queue"
)

// MockLedger is a mock implementation of the Ledger interface.
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) GetFile(ctx context.Context, id int64) (*db.FileRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.FileRecord), args.Error(1)
}

func (m *MockLedger) GetFileByRecordKey(ctx context.Context, recordKey string) (*db.FileRecord, error) {
	args := m.Called(ctx, recordKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.FileRecord), args.Error(1)
}

func (m *MockLedger) GetFileByRecordKeyAndType(ctx context.Context, recordKey, fileType string) (*db.FileRecord, error) {
	args := m.Called(ctx, recordKey, fileType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.FileRecord), args.Error(1)
}

func (m *MockLedger) InsertFile(ctx context.Context, f *db.FileRecord) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}

func (m *MockLedger) InsertStateTransition(ctx context.Context, id int64, from, to string, at time.Time) error {
	args := m.Called(ctx, id, from, to, at)
	return args.Error(0)
}

func (m *MockLedger) MarkFileLoading(ctx context.Context, id int64, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockLedger) MarkFileRejected(ctx context.Context, id int64, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockLedger) SetFileState(ctx context.Context, id int64, state string) error {
	args := m.Called(ctx, id, state)
	return args.Error(0)
}

func (m *MockLedger) SetFileError(ctx context.Context, id int64, code, detail string) error {
	args := m.Called(ctx, id, code, detail)
	return args.Error(0)
}

func (m *MockLedger) InsertRun(ctx context.Context, fileID int64, zipName, responseType string, at time.Time) error {
	args := m.Called(ctx, fileID, zipName, responseType, at)
	return args.Error(0)
}

func (m *MockLedger) CurrentRun(ctx context.Context, fileID int64) (*db.ProcessingRun, error) {
	args := m.Called(ctx, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.ProcessingRun), args.Error(1)
}

func (m *MockLedger) MarkRunStarted(ctx context.Context, fileID int64) error {
	args := m.Called(ctx, fileID)
	return args.Error(0)
}

func (m *MockLedger) SetRunState(ctx context.Context, fileID int64, state string) error {
	args := m.Called(ctx, fileID, state)
	return args.Error(0)
}

func (m *MockLedger) SetRunError(ctx context.Context, fileID int64, code, detail string) error {
	args := m.Called(ctx, fileID, code, detail)
	return args.Error(0)
}

func (m *MockLedger) MarkRunConsolidated(ctx context.Context, fileID int64) (bool, error) {
	args := m.Called(ctx, fileID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedger) InsertMember(ctx context.Context, fileID, runID int64, name, memberType string) error {
	args := m.Called(ctx, fileID, runID, name, memberType)
	return args.Error(0)
}

func (m *MockLedger) CountMembers(ctx context.Context, fileID, runID int64) (int, error) {
	args := m.Called(ctx, fileID, runID)
	return args.Int(0), args.Error(1)
}

func (m *MockLedger) ListMembers(ctx context.Context, fileID, runID int64) ([]db.MemberFile, error) {
	args := m.Called(ctx, fileID, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]db.MemberFile), args.Error(1)
}

func (m *MockLedger) MarkMembersSent(ctx context.Context, fileID int64) error {
	args := m.Called(ctx, fileID)
	return args.Error(0)
}

func (m *MockLedger) GetCatalogEntry(ctx context.Context, code string) (*db.CatalogEntry, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.CatalogEntry), args.Error(1)
}

// MockObjectStore is a mock implementation of the ObjectStore interface.
type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	args := m.Called(ctx, bucket, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockObjectStore) Move(ctx context.Context, bucket, srcKey, dstKey string) error {
	args := m.Called(ctx, bucket, srcKey, dstKey)
	return args.Error(0)
}

func (m *MockObjectStore) MoveFolder(ctx context.Context, bucket, srcPrefix, dstPrefix string) error {
	args := m.Called(ctx, bucket, srcPrefix, dstPrefix)
	return args.Error(0)
}

// MockQueue is a mock implementation of the QueueClient interface.
type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Send(ctx context.Context, queueURL, body string, delaySeconds int32) error {
	args := m.Called(ctx, queueURL, body, delaySeconds)
	return args.Error(0)
}

func (m *MockQueue) Receive(ctx context.Context, queueURL string, max, waitSeconds int32) ([]queue.Message, error) {
	args := m.Called(ctx, queueURL, max, waitSeconds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]queue.Message), args.Error(1)
}

func (m *MockQueue) Delete(ctx context.Context, queueURL, receiptHandle string) error {
	args := m.Called(ctx, queueURL, receiptHandle)
	return args.Error(0)
}

// MockNotifier is a mock implementation of the Notifier interface.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, templateID string, values map[string]string) error {
	args := m.Called(ctx, templateID, values)
	return args.Error(0)
}

// MockExpander is a mock implementation of the Expander interface.
type MockExpander struct {
	mock.Mock
}

func (m *MockExpander) Expand(ctx context.Context, bucket, processingPrefix, zipBase string) (string, error) {
	args := m.Called(ctx, bucket, processingPrefix, zipBase)
	return args.String(0), args.Error(1)
}

func (m *MockExpander) FindWorkingFolder(ctx context.Context, bucket, processingPrefix, zipBase string) (string, []string, error) {
	args := m.Called(ctx, bucket, processingPrefix, zipBase)
	if args.Get(1) == nil {
		return args.String(0), nil, args.Error(2)
	}
	return args.String(0), args.Get(1).([]string), args.Error(2)
}

type testHarness struct {
	orch     *Orchestrator
	ledger   *MockLedger
	store    *MockObjectStore
	queue    *MockQueue
	notifier *MockNotifier
	expander *MockExpander
}

var testNow = time.Date(2024, 8, 2, 10, 15, 30, 0, time.FixedZone("COT", -5*60*60))

func testConfig() config.Config {
	return config.Config{
		Bucket:                "bucket",
		FolderProcessing:      "procesando/",
		FolderRejected:        "rechazados/",
		QueueProcessURL:       "q-process",
		QueueValidateURL:      "q-validate",
		QueueConsolidateURL:   "q-consolidate",
		QueueEmailsURL:        "q-emails",
		DebitReversalKeywords: []string{"DEBITO", "REVERSO"},
		ReintegroKeywords:     []string{"REINTEGRO"},
		EspecialesKeywords:    []string{"ESP"},
		SpecialNameStart:      "RE_ESP_TUTGMF00010039",
		SpecialNameEnd:        "-0001",
		MaxLoadAttempts:       3,
		RetryDelaySeconds:     5,
		NumWorkers:            2,
	}
}

func newTestHarness() *testHarness {
	h := &testHarness{
		ledger:   &MockLedger{},
		store:    &MockObjectStore{},
		queue:    &MockQueue{},
		notifier: &MockNotifier{},
		expander: &MockExpander{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.orch = New(testConfig(), h.ledger, h.store, h.queue, h.notifier, h.expander, logger)
	h.orch.now = func() time.Time { return testNow }
	return h
}

func (h *testHarness) assertExpectations(t mock.TestingT) {
	h.ledger.AssertExpectations(t)
	h.store.AssertExpectations(t)
	h.queue.AssertExpectations(t)
	h.notifier.AssertExpectations(t)
	h.expander.AssertExpectations(t)
}
