package orchestrator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cgdops/rtaingest/internal/db"
	"github.com/cgdops/rtaingest/internal/notify"
	"github.com/cgdops/rtaingest/internal/queue"
)

const (
	standardKey  = "Recibidos/RE_PRO_TUTGMF0001003920240801-0001.zip"
	standardZip  = "RE_PRO_TUTGMF0001003920240801-0001.zip"
	standardBase = "RE_PRO_TUTGMF0001003920240801-0001"
	recordKey    = "TUTGMF0001003920240801-0001"

	specialKey = "Recibidos/RE_ESP_TUTGMF0001003920240801-0001.zip"
)

func storageEvent(key string) queue.Message {
	return queue.Message{
		Body:          fmt.Sprintf(`{"Records":[{"s3":{"object":{"key":"%s"}}}]}`, key),
		ReceiptHandle: "rh-1",
	}
}

func debitMembers() []string {
	return []string{
		"RE_TUTGMF0001003920240801-0001-ANULACION.txt",
		"RE_TUTGMF0001003920240801-0001-CONTROLTX.txt",
		"RE_TUTGMF0001003920240801-0001-DEBITO.txt",
		"RE_TUTGMF0001003920240801-0001-EXCEPCION.txt",
		"RE_TUTGMF0001003920240801-0001-REVERSO.txt",
	}
}

func TestHandleMessage_NormalFlow(t *testing.T) {
	t.Run("Expect: standard archive runs the full flow through consolidation", func(t *testing.T) {
		h := newTestHarness()
		ctx := context.Background()
		file := &db.FileRecord{ID: 7, State: db.FileStateSent, ReceivedAt: testNow}
		run := &db.ProcessingRun{FileID: 7, RunID: 1, ResponseType: "01", State: db.RunStateStarted}
		folder := standardBase + "_20240802101530"

		h.store.On("Exists", ctx, "bucket", standardKey).Return(true, nil)
		h.ledger.On("GetFileByRecordKey", ctx, recordKey).Return(file, nil)
		h.store.On("Move", ctx, "bucket", standardKey, "procesando/"+standardZip).Return(nil)
		h.ledger.On("GetFile", ctx, int64(7)).Return(file, nil)
		h.ledger.On("InsertStateTransition", ctx, int64(7), db.FileStateSent, db.FileStateLoading, testNow).Return(nil)
		h.ledger.On("MarkFileLoading", ctx, int64(7), testNow).Return(nil)
		h.ledger.On("InsertRun", ctx, int64(7), standardZip, "01", testNow).Return(nil)
		h.expander.On("Expand", ctx, "bucket", "procesando/", standardBase).Return(folder, nil)
		h.expander.On("FindWorkingFolder", ctx, "bucket", "procesando/", standardBase).
			Return(folder, debitMembers(), nil)
		h.ledger.On("CurrentRun", ctx, int64(7)).Return(run, nil)
		for _, member := range debitMembers() {
			h.ledger.On("InsertMember", ctx, int64(7), int64(1), member, mock.Anything).Return(nil)
		}
		h.queue.On("Send", ctx, "q-validate", mock.Anything, int32(0)).Return(nil).Times(5)
		h.ledger.On("MarkMembersSent", ctx, int64(7)).Return(nil)
		h.queue.On("Send", ctx, "q-consolidate", mock.Anything, int32(0)).Return(nil)
		h.ledger.On("MarkRunConsolidated", ctx, int64(7)).Return(true, nil)
		h.queue.On("Delete", ctx, "q-process", "rh-1").Return(nil)

		err := h.orch.HandleMessage(ctx, storageEvent(standardKey))

		require.NoError(t, err)
		h.assertExpectations(t)
	})

	t.Run("Expect: special archive bootstraps its own record and consolidates", func(t *testing.T) {
		h := newTestHarness()
		ctx := context.Background()
		const specialID = int64(2024080101050001)
		run := &db.ProcessingRun{FileID: specialID, RunID: 1, ResponseType: "03", State: db.RunStateStarted}
		members := []string{
			"RE_TUTGMF0001003920240801-0001-ESP001.txt",
			"RE_TUTGMF0001003920240801-0001-ESP002.txt",
		}
		specialBase := "RE_ESP_TUTGMF0001003920240801-0001"
		folder := specialBase + "_20240802101530"

		h.store.On("Exists", ctx, "bucket", specialKey).Return(true, nil)
		h.ledger.On("GetFileByRecordKeyAndType", ctx, specialBase, "05").Return(nil, nil)
		h.ledger.On("InsertFile", ctx, mock.MatchedBy(func(f *db.FileRecord) bool {
			return f.ID == specialID && f.Platform == "01" && f.FileType == "05" &&
				f.State == db.FileStateSent && f.NameDate == "20240801"
		})).Return(nil)
		h.store.On("Move", ctx, "bucket", specialKey, "procesando/"+specialBase+".zip").Return(nil)
		h.ledger.On("GetFile", ctx, specialID).
			Return(&db.FileRecord{ID: specialID, State: db.FileStateSent, ReceivedAt: testNow}, nil)
		h.ledger.On("InsertStateTransition", ctx, specialID, db.FileStateSent, db.FileStateLoading, testNow).Return(nil)
		h.ledger.On("MarkFileLoading", ctx, specialID, testNow).Return(nil)
		h.ledger.On("InsertRun", ctx, specialID, specialBase+".zip", "03", testNow).Return(nil)
		h.expander.On("Expand", ctx, "bucket", "procesando/", specialBase).Return(folder, nil)
		h.expander.On("FindWorkingFolder", ctx, "bucket", "procesando/", specialBase).
			Return(folder, members, nil)
		h.ledger.On("CurrentRun", ctx, specialID).Return(run, nil)
		h.ledger.On("InsertMember", ctx, specialID, int64(1), mock.Anything, mock.Anything).Return(nil).Times(2)
		h.queue.On("Send", ctx, "q-validate", mock.Anything, int32(0)).Return(nil).Times(2)
		h.ledger.On("MarkMembersSent", ctx, specialID).Return(nil)
		h.queue.On("Send", ctx, "q-consolidate", mock.Anything, int32(0)).Return(nil)
		h.ledger.On("MarkRunConsolidated", ctx, specialID).Return(true, nil)
		h.queue.On("Delete", ctx, "q-process", "rh-1").Return(nil)

		err := h.orch.HandleMessage(ctx, storageEvent(specialKey))

		require.NoError(t, err)
		h.assertExpectations(t)
	})

	t.Run("Expect: missing inbox object drains the message without touching the ledger", func(t *testing.T) {
		h := newTestHarness()
		ctx := context.Background()

		h.store.On("Exists", ctx, "bucket", standardKey).Return(false, nil)
		h.queue.On("Delete", ctx, "q-process", "rh-1").Return(nil)

		err := h.orch.HandleMessage(ctx, storageEvent(standardKey))

		require.NoError(t, err)
		h.ledger.AssertNotCalled(t, "GetFileByRecordKey", mock.Anything, mock.Anything)
		h.assertExpectations(t)
	})
}

func TestHandleMessage_Rejections(t *testing.T) {
	t.Run("Expect: unknown archive rejects with EICP001 and no ledger writes", func(t *testing.T) {
		h := newTestHarness()
		ctx := context.Background()

		h.store.On("Exists", ctx, "bucket", standardKey).Return(true, nil)
		h.ledger.On("GetFileByRecordKey", ctx, recordKey).Return(nil, nil)
		h.ledger.On("GetCatalogEntry", ctx, CodeNoRecord).
			Return(&db.CatalogEntry{Code: CodeNoRecord, Description: "sin registro"}, nil)
		h.store.On("Move", ctx, "bucket", standardKey, "rechazados/202408/"+standardZip).Return(nil)
		h.notifier.On("Send", ctx, notify.TemplateRejected, mock.MatchedBy(func(v map[string]string) bool {
			return v["codigo_rechazo"] == CodeNoRecord && v["nombre_respuesta_pro_tu"] == standardZip
		})).Return(nil)
		h.queue.On("Delete", ctx, "q-process", "rh-1").Return(nil)

		err := h.orch.HandleMessage(ctx, storageEvent(standardKey))

		require.NoError(t, err)
		h.ledger.AssertNotCalled(t, "InsertStateTransition", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		h.ledger.AssertNotCalled(t, "SetFileState", mock.Anything, mock.Anything, mock.Anything)
		h.assertExpectations(t)
	})

	t.Run("Expect: bad entry state rejects with EICP002 and no ledger writes", func(t *testing.T) {
		h := newTestHarness()
		ctx := context.Background()
		file := &db.FileRecord{ID: 7, State: db.FileStateLoading}

		h.store.On("Exists", ctx, "bucket", standardKey).Return(true, nil)
		h.ledger.On("GetFileByRecordKey", ctx, recordKey).Return(file, nil)
		h.ledger.On("GetCatalogEntry", ctx, CodeBadEntryState).
			Return(&db.CatalogEntry{Code: CodeBadEntryState, Description: "estado invalido"}, nil)
		h.store.On("Move", ctx, "bucket", standardKey, "rechazados/202408/"+standardZip).Return(nil)
		h.notifier.On("Send", ctx, notify.TemplateRejected, mock.Anything).Return(nil)
		h.queue.On("Delete", ctx, "q-process", "rh-1").Return(nil)

		err := h.orch.HandleMessage(ctx, storageEvent(standardKey))

		require.NoError(t, err)
		h.ledger.AssertNotCalled(t, "MarkFileLoading", mock.Anything, mock.Anything, mock.Anything)
		h.ledger.AssertNotCalled(t, "InsertRun", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		h.assertExpectations(t)
	})

	t.Run("Expect: malformed special name rejects with EICP007 before any lookup", func(t *testing.T) {
		h := newTestHarness()
		ctx := context.Background()
		malformed := "Recibidos/RE_ESP_WRONGBLOCK0001003920240801-0001.zip"

		h.store.On("Exists", ctx, "bucket", malformed).Return(true, nil)
		h.ledger.On("GetCatalogEntry", ctx, CodeMalformedSpecial).
			Return(&db.CatalogEntry{Code: CodeMalformedSpecial, Description: "nombre invalido"}, nil)
		h.store.On("Move", ctx, "bucket", malformed, mock.Anything).Return(nil)
		h.notifier.On("Send", ctx, notify.TemplateRejected, mock.Anything).Return(nil)
		h.queue.On("Delete", ctx, "q-process", "rh-1").Return(nil)

		err := h.orch.HandleMessage(ctx, storageEvent(malformed))

		require.NoError(t, err)
		h.ledger.AssertNotCalled(t, "GetFileByRecordKeyAndType", mock.Anything, mock.Anything, mock.Anything)
		h.assertExpectations(t)
	})
}
