package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cgdops/rtaingest/internal/event"
	"github.com/cgdops/rtaingest/internal/names"
	"github.com/cgdops/rtaingest/internal/queue"
)

// invocation is the per-message context shared by every stage of one
// handling attempt.
type invocation struct {
	objectKey     string
	zipName       string // archive basename, extension kept
	zipBase       string // archive basename, extension dropped
	receiptHandle string
}

// HandleMessage runs one inbound message to completion. Classified failures
// are resolved by the policy engine and consume the message; only
// unclassified errors surface, leaving the message for redelivery.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg queue.Message) error {
	env, err := event.Parse([]byte(msg.Body))
	if err != nil {
		return err
	}

	key := env.ObjectKey()
	inv := &invocation{
		objectKey:     key,
		zipName:       names.Basename(key),
		zipBase:       names.TrimExtension(names.Basename(key)),
		receiptHandle: msg.ReceiptHandle,
	}

	err = o.dispatch(ctx, inv, env)
	var fe *FlowError
	if errors.As(err, &fe) {
		o.log.Warn("classified failure, applying policy",
			slog.String("code", fe.Code),
			slog.Int64("file_id", fe.FileID),
			slog.String("object_key", inv.objectKey),
			slog.Any("error", fe.Err))
		return o.applyPolicy(ctx, inv, fe)
	}
	return err
}

func (o *Orchestrator) dispatch(ctx context.Context, inv *invocation, env event.Envelope) error {
	if !env.IsReprocessing {
		o.log.Info("archive notification received", slog.String("object_key", inv.objectKey))
		ok, err := o.inboxObjectPresent(ctx, inv)
		if err != nil {
			return err
		}
		if !ok {
			// Nothing to process; consume the message so it stops circling.
			o.drainSource(ctx, inv.receiptHandle)
			return nil
		}
		return o.classify(ctx, inv)
	}

	fileID, runID := env.RedriveIDs()
	if fileID == 0 || runID == 0 {
		// A re-drive without ids restarts from classification.
		o.log.Info("re-drive without ids, reclassifying", slog.String("object_key", inv.objectKey))
		return o.classify(ctx, inv)
	}
	return o.redrive(ctx, inv, fileID, runID)
}

// redrive resumes a previously started file at the furthest point the ledger
// and object store agree it reached.
func (o *Orchestrator) redrive(ctx context.Context, inv *invocation, fileID, runID int64) error {
	o.log.Info("re-drive received",
		slog.Int64("file_id", fileID), slog.Int64("run_id", runID))

	if err := o.ledger.MarkRunStarted(ctx, fileID); err != nil {
		return classified(CodeRestartFailed, fileID, "", err)
	}

	count, err := o.ledger.CountMembers(ctx, fileID, runID)
	if err != nil {
		return classified(CodeRestartFailed, fileID, "", err)
	}

	folder, members, err := o.expander.FindWorkingFolder(ctx, o.cfg.Bucket, o.cfg.FolderProcessing, inv.zipBase)
	if err != nil {
		return classified(CodeInfrastructure, fileID, "", err)
	}

	st := &flowState{
		invocation:     inv,
		fileID:         fileID,
		workingFolder:  folder,
		members:        members,
		stateValidated: true,
	}

	if count > 0 {
		// Members were already registered; only the hand-off is pending.
		return o.resumePendingMembers(ctx, st, runID)
	}

	if folder == "" {
		// The archive never made it to extraction; start over from the inbox.
		ok, err := o.inboxObjectPresent(ctx, inv)
		if err != nil {
			return classified(CodeInfrastructure, fileID, "", err)
		}
		if !ok {
			o.log.Warn("re-drive has neither working folder nor inbox object, dropping",
				slog.Int64("file_id", fileID))
			o.drainSource(ctx, inv.receiptHandle)
			return nil
		}
		return o.runNormalFlow(ctx, st)
	}

	// Extraction survived the failed attempt: re-register the load and skip
	// straight to verification.
	if err := o.registerLoading(ctx, st); err != nil {
		return err
	}
	st.moved, st.extracted = true, true
	return o.runNormalFlow(ctx, st)
}

// inboxObjectPresent reports whether the notified object still sits in the
// inbox. Missing keys are a clean false, store failures are errors.
func (o *Orchestrator) inboxObjectPresent(ctx context.Context, inv *invocation) (bool, error) {
	if inv.objectKey == "" {
		o.log.Error("envelope carries no object key")
		return false, nil
	}
	ok, err := o.store.Exists(ctx, o.cfg.Bucket, inv.objectKey)
	if err != nil {
		return false, fmt.Errorf("failed to probe inbox object %s: %w", inv.objectKey, err)
	}
	if !ok {
		o.log.Error("notified object is gone from the inbox", slog.String("object_key", inv.objectKey))
	}
	return ok, nil
}

// drainSource consumes the message that triggered this invocation. With a
// receipt handle in hand the delete is direct; without one (CLI replays) a
// single message is pulled and dropped. Best effort either way.
func (o *Orchestrator) drainSource(ctx context.Context, receiptHandle string) {
	if receiptHandle != "" {
		if err := o.queue.Delete(ctx, o.cfg.QueueProcessURL, receiptHandle); err != nil {
			o.log.Warn("failed to delete source message", slog.Any("error", err))
		}
		return
	}
	msgs, err := o.queue.Receive(ctx, o.cfg.QueueProcessURL, 1, 0)
	if err != nil || len(msgs) == 0 {
		return
	}
	if err := o.queue.Delete(ctx, o.cfg.QueueProcessURL, msgs[0].ReceiptHandle); err != nil {
		o.log.Warn("failed to delete source message", slog.Any("error", err))
	}
}
