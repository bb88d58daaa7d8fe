package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cgdops/rtaingest/internal/db"
	"github.com/cgdops/rtaingest/internal/event"
	"github.com/cgdops/rtaingest/internal/names"
	"github.com/cgdops/rtaingest/internal/notify"
	"github.com/cgdops/rtaingest/internal/util"
)

// applyPolicy resolves a classified failure. Three reactions exist: the full
// retry policy for infrastructure-grade failures, a simple reject for
// failures with no usable file context, and a ledger reject for content
// failures that must be persisted before the rejection. Every variant
// terminates the invocation.
func (o *Orchestrator) applyPolicy(ctx context.Context, inv *invocation, fe *FlowError) error {
	switch fe.Code {
	case CodeNoRecord, CodeBadEntryState, CodeMalformedSpecial:
		return o.simpleReject(ctx, inv, fe)
	case CodeExtractFailed, CodeContentMismatch, CodeVerificationFailed:
		return o.ledgerReject(ctx, inv, fe)
	default:
		return o.fullPolicy(ctx, inv, fe)
	}
}

// fullPolicy arbitrates between a scheduled retry and a terminal failure,
// based on the catalog's retryable flag and the file's load attempt budget.
func (o *Orchestrator) fullPolicy(ctx context.Context, inv *invocation, fe *FlowError) error {
	if fe.FileID == 0 {
		// No file context to hang the policy on; surface as unclassified so
		// the message redelivers and eventually reaches the dead letter queue.
		return fmt.Errorf("classified failure %s carries no file id: %w", fe.Code, fe.Err)
	}

	file, err := o.ledger.GetFile(ctx, fe.FileID)
	if err != nil || file == nil {
		return fmt.Errorf("failed to load file %d for policy: %w", fe.FileID, err)
	}

	entry, err := o.ledger.GetCatalogEntry(ctx, fe.Code)
	if err != nil {
		return err
	}

	run, err := o.ledger.CurrentRun(ctx, fe.FileID)
	if err != nil {
		o.log.Warn("failed to resolve current run for policy", slog.Any("error", err))
		run = nil
	}

	if run != nil {
		if err := o.ledger.SetRunError(ctx, fe.FileID, entry.Code, entry.Description); err != nil {
			o.log.Warn("failed to record error on run", slog.Any("error", err))
		}
	} else {
		if err := o.ledger.SetFileError(ctx, fe.FileID, entry.Code, entry.Description); err != nil {
			o.log.Warn("failed to record error on file", slog.Any("error", err))
		}
	}

	values := failureValues(inv.zipName, file.ReceivedAt, entry)

	if entry.Retryable && int(file.LoadAttempts) < o.cfg.MaxLoadAttempts {
		return o.scheduleRetry(ctx, inv, file, run, entry, values)
	}
	return o.failTerminally(ctx, inv, file, run, values)
}

func (o *Orchestrator) scheduleRetry(ctx context.Context, inv *invocation, file *db.FileRecord,
	run *db.ProcessingRun, entry *db.CatalogEntry, values map[string]string) error {
	now := o.now()

	if err := o.ledger.SetFileState(ctx, file.ID, db.FileStateRetryPending); err != nil {
		o.log.Warn("failed to park file for retry", slog.Any("error", err))
	}
	if err := o.ledger.InsertStateTransition(ctx, file.ID, file.State, db.FileStateRetryPending, now); err != nil {
		o.log.Warn("failed to append retry transition", slog.Any("error", err))
	}

	redrive := event.Redrive{
		BucketName:     o.cfg.Bucket,
		FileName:       inv.objectKey,
		IsReprocessing: true,
	}
	if run != nil {
		if err := o.ledger.SetRunState(ctx, file.ID, db.RunStateRetryPending); err != nil {
			o.log.Warn("failed to park run for retry", slog.Any("error", err))
		}
		redrive.FileID = strconv.FormatInt(file.ID, 10)
		redrive.ResponseProcessingID = strconv.FormatInt(run.RunID, 10)
	}

	o.drainSource(ctx, inv.receiptHandle)

	body, err := event.Encode(redrive)
	if err != nil {
		return err
	}
	if err := o.queue.Send(ctx, o.cfg.QueueProcessURL, body, int32(o.cfg.RetryDelaySeconds)); err != nil {
		return fmt.Errorf("failed to publish re-drive for file %d: %w", file.ID, err)
	}

	if err := o.notifier.Send(ctx, notify.TemplateRetryPlanned, values); err != nil {
		o.log.Warn("failed to send retry notification", slog.Any("error", err))
	}

	o.log.Info("retry scheduled",
		slog.Int64("file_id", file.ID),
		slog.String("code", entry.Code),
		slog.Int("attempt", int(file.LoadAttempts)),
		slog.Int("delay_seconds", o.cfg.RetryDelaySeconds))
	return nil
}

func (o *Orchestrator) failTerminally(ctx context.Context, inv *invocation, file *db.FileRecord,
	run *db.ProcessingRun, values map[string]string) error {
	now := o.now()

	if err := o.ledger.SetFileState(ctx, file.ID, db.FileStateFailed); err != nil {
		o.log.Warn("failed to mark file failed", slog.Any("error", err))
	}
	if err := o.ledger.InsertStateTransition(ctx, file.ID, file.State, db.FileStateFailed, now); err != nil {
		o.log.Warn("failed to append failure transition", slog.Any("error", err))
	}
	if run != nil {
		if err := o.ledger.SetRunState(ctx, file.ID, db.RunStateFailed); err != nil {
			o.log.Warn("failed to mark run failed", slog.Any("error", err))
		}
	}

	if err := o.notifier.Send(ctx, notify.TemplateLoadingFailed, values); err != nil {
		o.log.Warn("failed to send failure notification", slog.Any("error", err))
	}

	o.moveArchiveToRejected(ctx, inv, now)
	o.drainSource(ctx, inv.receiptHandle)

	o.log.Error("file failed terminally",
		slog.Int64("file_id", file.ID),
		slog.Int("attempts", int(file.LoadAttempts)))
	return nil
}

// simpleReject disposes of an archive no valid file context exists for: the
// object leaves the inbox for the rejected partition and the operators get a
// rejection mail. The ledger is untouched.
func (o *Orchestrator) simpleReject(ctx context.Context, inv *invocation, fe *FlowError) error {
	entry, err := o.ledger.GetCatalogEntry(ctx, fe.Code)
	if err != nil {
		return err
	}

	now := o.now()
	dst := o.rejectedKey(inv.zipName, now)
	if err := o.store.Move(ctx, o.cfg.Bucket, inv.objectKey, dst); err != nil {
		return fmt.Errorf("failed to move rejected archive %s: %w", inv.objectKey, err)
	}

	return o.finishReject(ctx, inv, entry, now)
}

// ledgerReject persists a content rejection before disposing of the archive:
// the run and file records flip to their rejected states, the working folder
// (when one exists) moves to the rejected partition, and the simple-reject
// tail closes the invocation. Ledger failures escalate to the full policy as
// infrastructure errors.
func (o *Orchestrator) ledgerReject(ctx context.Context, inv *invocation, fe *FlowError) error {
	now := o.now()

	if err := o.ledger.SetRunState(ctx, fe.FileID, db.RunStateRejected); err != nil {
		return o.fullPolicy(ctx, inv, classified(CodeInfrastructure, fe.FileID, fe.State, err))
	}

	file, err := o.ledger.GetFile(ctx, fe.FileID)
	if err != nil || file == nil {
		return o.fullPolicy(ctx, inv, classified(CodeInfrastructure, fe.FileID, fe.State,
			fmt.Errorf("failed to reload file %d: %w", fe.FileID, err)))
	}
	if err := o.ledger.InsertStateTransition(ctx, fe.FileID, file.State, db.FileStateRejected, now); err != nil {
		return o.fullPolicy(ctx, inv, classified(CodeInfrastructure, fe.FileID, fe.State, err))
	}
	if err := o.ledger.MarkFileRejected(ctx, fe.FileID, now); err != nil {
		return o.fullPolicy(ctx, inv, classified(CodeInfrastructure, fe.FileID, fe.State, err))
	}

	entry, err := o.ledger.GetCatalogEntry(ctx, fe.Code)
	if err != nil {
		return err
	}
	if err := o.ledger.SetRunError(ctx, fe.FileID, entry.Code, entry.Description); err != nil {
		o.log.Warn("failed to record rejection on run", slog.Any("error", err))
	}

	folder, _, err := o.expander.FindWorkingFolder(ctx, o.cfg.Bucket, o.cfg.FolderProcessing, inv.zipBase)
	if err != nil {
		o.log.Warn("failed to locate working folder for rejection", slog.Any("error", err))
	} else if folder != "" {
		src := o.cfg.FolderProcessing + folder + "/"
		dst := o.cfg.FolderRejected + util.MonthPartition(now) + "/" + folder + "/"
		if err := o.store.MoveFolder(ctx, o.cfg.Bucket, src, dst); err != nil {
			o.log.Warn("failed to move rejected working folder", slog.Any("error", err))
		}
	}

	// The archive itself already left the inbox during the flow, so unlike
	// the simple reject there is no object move here.
	return o.finishReject(ctx, inv, entry, now)
}

// finishReject is the shared rejection tail: rejection mail, source drain.
func (o *Orchestrator) finishReject(ctx context.Context, inv *invocation, entry *db.CatalogEntry, now time.Time) error {
	values := map[string]string{
		"codigo_rechazo":          entry.Code,
		"descripcion_rechazo":     entry.Description,
		"fecha_recepcion":         util.NotificationDate(now),
		"hora_recepcion":          util.NotificationTime(now),
		"nombre_respuesta_pro_tu": inv.zipName,
	}
	if err := o.notifier.Send(ctx, notify.TemplateRejected, values); err != nil {
		o.log.Warn("failed to send rejection notification", slog.Any("error", err))
	}

	o.drainSource(ctx, inv.receiptHandle)
	o.log.Info("archive rejected",
		slog.String("code", entry.Code), slog.String("archive", inv.zipName))
	return nil
}

// moveArchiveToRejected relocates the failed archive to the month partition
// under the rejected prefix. The archive may sit in processing (post-move
// failures) or still in the inbox; both spots are tried, best effort.
func (o *Orchestrator) moveArchiveToRejected(ctx context.Context, inv *invocation, now time.Time) {
	dst := o.rejectedKey(inv.zipName, now)
	for _, src := range []string{o.cfg.FolderProcessing + inv.zipName, inv.objectKey} {
		ok, err := o.store.Exists(ctx, o.cfg.Bucket, src)
		if err != nil || !ok {
			continue
		}
		if err := o.store.Move(ctx, o.cfg.Bucket, src, dst); err != nil {
			o.log.Warn("failed to move failed archive",
				slog.String("src", src), slog.Any("error", err))
		}
		return
	}
	o.log.Warn("failed archive not found in processing or inbox",
		slog.String("archive", inv.zipName))
}

func (o *Orchestrator) rejectedKey(zipName string, now time.Time) string {
	return o.cfg.FolderRejected + util.MonthPartition(now) + "/" + zipName
}

// failureValues builds the display values PC012 and PC013 draw from.
func failureValues(zipName string, receivedAt time.Time, entry *db.CatalogEntry) map[string]string {
	process := entry.Process
	if process == "" {
		process = "CARGUE"
	}
	return map[string]string{
		"nombre_archivo_rta": zipName,
		"plataforma_origen":  names.PlatformName,
		"fecha_recepcion":    util.NotificationDate(receivedAt),
		"hora_recepcion":     util.NotificationTime(receivedAt),
		"codigo_falla":       entry.Code,
		"descripcion_falla":  entry.Description,
		"detalle_falla":      entry.Description,
		"nombre_proceso":     process,
	}
}
