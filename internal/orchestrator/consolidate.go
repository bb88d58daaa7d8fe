package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/cgdops/rtaingest/internal/db"
	"github.com/cgdops/rtaingest/internal/event"
)

// consolidate closes a fully handed-off run: one consolidate-request
// downstream, then the run flips to ENVIADO. A run already in ENVIADO is a
// no-op success, so replaying the tail of the flow writes nothing twice.
func (o *Orchestrator) consolidate(ctx context.Context, st *flowState) error {
	run, err := o.ledger.CurrentRun(ctx, st.fileID)
	if err != nil || run == nil {
		return classified(CodeInfrastructure, st.fileID, st.state,
			fmt.Errorf("no current run to consolidate for file %d: %w", st.fileID, err))
	}

	if run.State == db.RunStateSent {
		o.log.Info("run already consolidated",
			slog.Int64("file_id", st.fileID), slog.Int64("run_id", run.RunID))
		o.drainSource(ctx, st.receiptHandle)
		return nil
	}

	body, err := event.Encode(event.ConsolidateRequest{
		FileID:               strconv.FormatInt(st.fileID, 10),
		ResponseProcessingID: run.RunID,
		BucketName:           o.cfg.Bucket,
		FolderName:           o.cfg.FolderProcessing + st.workingFolder,
	})
	if err != nil {
		return err
	}
	if err := o.queue.Send(ctx, o.cfg.QueueConsolidateURL, body, 0); err != nil {
		return fmt.Errorf("failed to publish consolidate request for file %d: %w", st.fileID, err)
	}

	changed, err := o.ledger.MarkRunConsolidated(ctx, st.fileID)
	if err != nil {
		return classified(CodeInfrastructure, st.fileID, st.state, err)
	}
	if !changed {
		o.log.Warn("run was consolidated concurrently", slog.Int64("file_id", st.fileID))
	}

	o.log.Info("run consolidated",
		slog.Int64("file_id", st.fileID), slog.Int64("run_id", run.RunID))
	o.drainSource(ctx, st.receiptHandle)
	return nil
}
