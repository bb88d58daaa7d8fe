package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/cgdops/rtaingest/internal/db"
	"github.com/cgdops/rtaingest/internal/event"
	"github.com/cgdops/rtaingest/internal/names"
	"github.com/cgdops/rtaingest/internal/verify"
)

// flowState tracks one file's progress through the normal flow. The booleans
// let a re-drive rejoin the sequence past the steps that already happened.
type flowState struct {
	*invocation

	fileID        int64
	state         string // file state at entry, informational past validation
	workingFolder string
	members       []string

	stateValidated bool
	moved          bool
	extracted      bool
}

// File states a fresh notification may arrive in.
func allowedEntryState(state string) bool {
	switch state {
	case db.FileStateSent, db.FileStatePrevalidated, db.FileStateFailed,
		db.FileStateRetryPending, db.FileStateRejected:
		return true
	}
	return false
}

// runNormalFlow walks the state machine: entry validation, archive move,
// loading registration, expansion, verification, member registration, member
// hand-off and the consolidation check.
func (o *Orchestrator) runNormalFlow(ctx context.Context, st *flowState) error {
	if !st.stateValidated {
		if !allowedEntryState(st.state) {
			return classified(CodeBadEntryState, st.fileID, st.state,
				fmt.Errorf("file %d cannot be processed from state %s", st.fileID, st.state))
		}
		st.stateValidated = true
	}

	if !st.moved {
		dst := o.cfg.FolderProcessing + st.zipName
		if err := o.store.Move(ctx, o.cfg.Bucket, st.objectKey, dst); err != nil {
			return classified(CodeInfrastructure, st.fileID, st.state, err)
		}
		o.log.Info("archive moved to processing",
			slog.Int64("file_id", st.fileID), slog.String("key", dst))

		if err := o.registerLoading(ctx, st); err != nil {
			return err
		}
		st.moved = true
	}

	if !st.extracted {
		folder, err := o.expander.Expand(ctx, o.cfg.Bucket, o.cfg.FolderProcessing, st.zipBase)
		if err != nil {
			return classified(CodeExtractFailed, st.fileID, st.state, err)
		}
		st.workingFolder = folder

		_, members, err := o.expander.FindWorkingFolder(ctx, o.cfg.Bucket, o.cfg.FolderProcessing, st.zipBase)
		if err != nil {
			return classified(CodeInfrastructure, st.fileID, st.state, err)
		}
		st.members = members
		st.extracted = true
	}

	run, err := o.verifyContents(ctx, st)
	if err != nil {
		return err
	}

	if err := o.registerMembers(ctx, st, run); err != nil {
		return err
	}

	if err := o.ledger.MarkMembersSent(ctx, st.fileID); err != nil {
		return classified(CodeInfrastructure, st.fileID, st.state, err)
	}

	return o.consolidate(ctx, st)
}

// registerLoading records that a load attempt has begun: one history row into
// CARGANDO_RTA_PROCESAMIENTO, the file touched, and a processing run opened.
func (o *Orchestrator) registerLoading(ctx context.Context, st *flowState) error {
	now := o.now()

	file, err := o.ledger.GetFile(ctx, st.fileID)
	if err != nil || file == nil {
		return classified(CodeInfrastructure, st.fileID, st.state,
			fmt.Errorf("failed to reload file %d: %w", st.fileID, err))
	}

	if err := o.ledger.InsertStateTransition(ctx, st.fileID, file.State, db.FileStateLoading, now); err != nil {
		return classified(CodeInfrastructure, st.fileID, st.state, err)
	}
	if err := o.ledger.MarkFileLoading(ctx, st.fileID, now); err != nil {
		return classified(CodeInfrastructure, st.fileID, st.state, err)
	}

	responseType := names.ResponseType(st.zipName)
	if err := o.ledger.InsertRun(ctx, st.fileID, st.zipName, responseType, now); err != nil {
		return classified(CodeInfrastructure, st.fileID, st.state, err)
	}

	o.log.Info("load attempt registered",
		slog.Int64("file_id", st.fileID), slog.String("response_type", responseType))
	return nil
}

// verifyContents classifies the working folder listing and checks it against
// the run's recorded response type.
func (o *Orchestrator) verifyContents(ctx context.Context, st *flowState) (*db.ProcessingRun, error) {
	run, err := o.ledger.CurrentRun(ctx, st.fileID)
	if err != nil || run == nil {
		return nil, classified(CodeInfrastructure, st.fileID, st.state,
			fmt.Errorf("no current run for file %d: %w", st.fileID, err))
	}

	res := verify.Classify(st.members, o.profiles())
	if res.ResponseType != names.TypeInvalid && res.ResponseType != run.ResponseType {
		return nil, classified(CodeContentMismatch, st.fileID, st.state,
			fmt.Errorf("archive contents are type %s but the run expects %s",
				res.ResponseType, run.ResponseType))
	}
	if !res.Valid || !res.AllMarked || len(res.Matches) == 0 {
		return nil, classified(CodeVerificationFailed, st.fileID, st.state,
			fmt.Errorf("working folder %s failed verification (%d members)",
				st.workingFolder, len(st.members)))
	}

	o.log.Info("archive contents verified",
		slog.Int64("file_id", st.fileID),
		slog.String("response_type", res.ResponseType),
		slog.Int("members", len(st.members)))
	return run, nil
}

// registerMembers persists every extracted member under the run and hands
// each one to the validator queue. Messages already published before a later
// failure stay published; the downstream consumer tolerates replays.
func (o *Orchestrator) registerMembers(ctx context.Context, st *flowState, run *db.ProcessingRun) error {
	archiveToken := names.GroupToken(st.zipName)
	for _, member := range st.members {
		if names.GroupToken(member) != archiveToken {
			return classified(CodeContentMismatch, st.fileID, st.state,
				fmt.Errorf("member %s does not belong to archive group %s", member, archiveToken))
		}
	}

	for _, member := range st.members {
		if err := o.ledger.InsertMember(ctx, st.fileID, run.RunID, member, names.MemberType(member)); err != nil {
			return classified(CodeInfrastructure, st.fileID, st.state, err)
		}
		if err := o.publishValidate(ctx, st, run.RunID, member); err != nil {
			return err
		}
	}

	o.log.Info("members registered",
		slog.Int64("file_id", st.fileID), slog.Int("count", len(st.members)))
	return nil
}

func (o *Orchestrator) publishValidate(ctx context.Context, st *flowState, runID int64, member string) error {
	body, err := event.Encode(event.ValidateRequest{
		BucketName:           o.cfg.Bucket,
		FolderName:           o.cfg.FolderProcessing + st.workingFolder,
		FileName:             member,
		FileID:               strconv.FormatInt(st.fileID, 10),
		ResponseProcessingID: runID,
	})
	if err != nil {
		return err
	}
	if err := o.queue.Send(ctx, o.cfg.QueueValidateURL, body, 0); err != nil {
		return fmt.Errorf("failed to publish validate request for %s: %w", member, err)
	}
	return nil
}
