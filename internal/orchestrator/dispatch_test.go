package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cgdops/rtaingest/internal/db"
	"github.com/cgdops/rtaingest/internal/queue"
)

func redriveEvent(key string, fileID, runID int64) queue.Message {
	return queue.Message{
		Body: fmt.Sprintf(
			`{"bucket_name":"bucket","file_name":"%s","is_reprocessing":true,"file_id":"%d","response_processing_id":"%d"}`,
			key, fileID, runID),
		ReceiptHandle: "rh-1",
	}
}

func TestRedrive(t *testing.T) {
	t.Run("Expect: registered members resume with republish and consolidation only", func(t *testing.T) {
		h := newTestHarness()
		ctx := context.Background()
		folder := standardBase + "_20240801090000"
		run := &db.ProcessingRun{FileID: 7, RunID: 2, State: db.RunStateStarted}
		registered := []db.MemberFile{
			{FileID: 7, RunID: 2, Name: debitMembers()[0], MemberType: "ANULACION", State: db.MemberStatePending},
			{FileID: 7, RunID: 2, Name: debitMembers()[1], MemberType: "CONTROLTX", State: db.MemberStateSent},
		}

		h.ledger.On("MarkRunStarted", ctx, int64(7)).Return(nil)
		h.ledger.On("CountMembers", ctx, int64(7), int64(2)).Return(2, nil)
		h.expander.On("FindWorkingFolder", ctx, "bucket", "procesando/", standardBase).
			Return(folder, debitMembers()[:2], nil)
		h.ledger.On("ListMembers", ctx, int64(7), int64(2)).Return(registered, nil)
		h.queue.On("Send", ctx, "q-validate", mock.MatchedBy(func(body string) bool {
			return strings.Contains(body, debitMembers()[0])
		}), int32(0)).Return(nil).Once()
		h.ledger.On("MarkMembersSent", ctx, int64(7)).Return(nil)
		h.ledger.On("CurrentRun", ctx, int64(7)).Return(run, nil)
		h.queue.On("Send", ctx, "q-consolidate", mock.Anything, int32(0)).Return(nil)
		h.ledger.On("MarkRunConsolidated", ctx, int64(7)).Return(true, nil)
		h.queue.On("Delete", ctx, "q-process", "rh-1").Return(nil)

		err := h.orch.HandleMessage(ctx, redriveEvent(standardKey, 7, 2))

		require.NoError(t, err)
		h.ledger.AssertNotCalled(t, "InsertMember", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		h.expander.AssertNotCalled(t, "Expand", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		h.assertExpectations(t)
	})

	t.Run("Expect: surviving working folder skips the move and re-extraction", func(t *testing.T) {
		h := newTestHarness()
		ctx := context.Background()
		folder := standardBase + "_20240801090000"
		file := &db.FileRecord{ID: 7, State: db.FileStateRetryPending, ReceivedAt: testNow}
		run := &db.ProcessingRun{FileID: 7, RunID: 2, ResponseType: "01", State: db.RunStateStarted}

		h.ledger.On("MarkRunStarted", ctx, int64(7)).Return(nil)
		h.ledger.On("CountMembers", ctx, int64(7), int64(2)).Return(0, nil)
		h.expander.On("FindWorkingFolder", ctx, "bucket", "procesando/", standardBase).
			Return(folder, debitMembers(), nil)
		h.ledger.On("GetFile", ctx, int64(7)).Return(file, nil)
		h.ledger.On("InsertStateTransition", ctx, int64(7), db.FileStateRetryPending, db.FileStateLoading, testNow).Return(nil)
		h.ledger.On("MarkFileLoading", ctx, int64(7), testNow).Return(nil)
		h.ledger.On("InsertRun", ctx, int64(7), standardZip, "01", testNow).Return(nil)
		h.ledger.On("CurrentRun", ctx, int64(7)).Return(run, nil)
		h.ledger.On("InsertMember", ctx, int64(7), int64(2), mock.Anything, mock.Anything).Return(nil).Times(5)
		h.queue.On("Send", ctx, "q-validate", mock.Anything, int32(0)).Return(nil).Times(5)
		h.ledger.On("MarkMembersSent", ctx, int64(7)).Return(nil)
		h.queue.On("Send", ctx, "q-consolidate", mock.Anything, int32(0)).Return(nil)
		h.ledger.On("MarkRunConsolidated", ctx, int64(7)).Return(true, nil)
		h.queue.On("Delete", ctx, "q-process", "rh-1").Return(nil)

		err := h.orch.HandleMessage(ctx, redriveEvent(standardKey, 7, 2))

		require.NoError(t, err)
		h.store.AssertNotCalled(t, "Move", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		h.expander.AssertNotCalled(t, "Expand", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		h.assertExpectations(t)
	})

	t.Run("Expect: no folder and no inbox object drops the re-drive cleanly", func(t *testing.T) {
		h := newTestHarness()
		ctx := context.Background()

		h.ledger.On("MarkRunStarted", ctx, int64(7)).Return(nil)
		h.ledger.On("CountMembers", ctx, int64(7), int64(2)).Return(0, nil)
		h.expander.On("FindWorkingFolder", ctx, "bucket", "procesando/", standardBase).
			Return("", nil, nil)
		h.store.On("Exists", ctx, "bucket", standardKey).Return(false, nil)
		h.queue.On("Delete", ctx, "q-process", "rh-1").Return(nil)

		err := h.orch.HandleMessage(ctx, redriveEvent(standardKey, 7, 2))

		require.NoError(t, err)
		h.ledger.AssertNotCalled(t, "GetFile", mock.Anything, mock.Anything)
		h.assertExpectations(t)
	})
}

func TestConsolidate(t *testing.T) {
	t.Run("Expect: run already sent is a no-op beyond draining the source", func(t *testing.T) {
		h := newTestHarness()
		ctx := context.Background()
		st := &flowState{
			invocation: &invocation{
				objectKey:     standardKey,
				zipName:       standardZip,
				zipBase:       standardBase,
				receiptHandle: "rh-1",
			},
			fileID: 7,
		}

		h.ledger.On("CurrentRun", ctx, int64(7)).
			Return(&db.ProcessingRun{FileID: 7, RunID: 2, State: db.RunStateSent}, nil)
		h.queue.On("Delete", ctx, "q-process", "rh-1").Return(nil)

		err := h.orch.consolidate(ctx, st)

		require.NoError(t, err)
		h.queue.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		h.ledger.AssertNotCalled(t, "MarkRunConsolidated", mock.Anything, mock.Anything)
		h.assertExpectations(t)
	})
}

func TestHandleMessage_Unclassified(t *testing.T) {
	t.Run("Expect: malformed body surfaces the error and leaves the message", func(t *testing.T) {
		h := newTestHarness()

		err := h.orch.HandleMessage(context.Background(), queue.Message{Body: "{not json", ReceiptHandle: "rh-1"})

		require.Error(t, err)
		h.queue.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
	})
}
