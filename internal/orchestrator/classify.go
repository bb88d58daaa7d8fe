package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cgdops/rtaingest/internal/db"
	"github.com/cgdops/rtaingest/internal/names"
	"github.com/cgdops/rtaingest/internal/util"
)

// classify resolves a first-arrival notification to a file record and routes
// it into the normal flow. Standard archives must already be registered;
// special archives may bootstrap their own record.
func (o *Orchestrator) classify(ctx context.Context, inv *invocation) error {
	recordKey, known := names.RecordKey(inv.objectKey)
	if !known {
		return classified(CodeNoRecord, 0, "",
			fmt.Errorf("object %s carries no recognized archive prefix", inv.objectKey))
	}

	if names.IsSpecial(inv.objectKey) {
		return o.classifySpecial(ctx, inv, recordKey)
	}
	return o.classifyStandard(ctx, inv, recordKey)
}

func (o *Orchestrator) classifyStandard(ctx context.Context, inv *invocation, recordKey string) error {
	file, err := o.ledger.GetFileByRecordKey(ctx, recordKey)
	if err != nil {
		return classified(CodeInfrastructure, 0, "", err)
	}
	if file == nil {
		return classified(CodeNoRecord, 0, "",
			fmt.Errorf("no file record for archive %s", recordKey))
	}

	o.log.Info("standard archive classified",
		slog.Int64("file_id", file.ID), slog.String("state", file.State))
	return o.runNormalFlow(ctx, &flowState{
		invocation: inv,
		fileID:     file.ID,
		state:      file.State,
	})
}

func (o *Orchestrator) classifySpecial(ctx context.Context, inv *invocation, recordKey string) error {
	if !names.WellFormedSpecial(inv.objectKey, o.cfg.SpecialNameStart, o.cfg.SpecialNameEnd, o.now()) {
		return classified(CodeMalformedSpecial, 0, "",
			fmt.Errorf("special archive %s is malformed", inv.zipName))
	}

	file, err := o.ledger.GetFileByRecordKeyAndType(ctx, recordKey, "05")
	if err != nil {
		return classified(CodeInfrastructure, 0, "", err)
	}
	if file != nil {
		o.log.Info("special archive classified",
			slog.Int64("file_id", file.ID), slog.String("state", file.State))
		return o.runNormalFlow(ctx, &flowState{
			invocation: inv,
			fileID:     file.ID,
			state:      file.State,
		})
	}

	// First sighting: the special flow registers its own record.
	file, err = o.ensureSpecialRecord(ctx, recordKey)
	if err != nil {
		return classified(CodeInfrastructure, 0, "", err)
	}
	o.log.Info("special archive registered", slog.Int64("file_id", file.ID))
	return o.runNormalFlow(ctx, &flowState{
		invocation:     inv,
		fileID:         file.ID,
		state:          file.State,
		stateValidated: true,
	})
}

// ensureSpecialRecord bootstraps the file record a well-formed special
// archive implies: id synthesized from the name, platform 01, type 05.
func (o *Orchestrator) ensureSpecialRecord(ctx context.Context, recordKey string) (*db.FileRecord, error) {
	id, err := names.SpecialFileID(recordKey)
	if err != nil {
		return nil, err
	}
	nameDate := names.NameDate(recordKey)
	cycle, err := util.ParseNameDate(nameDate)
	if err != nil {
		return nil, err
	}

	rec := &db.FileRecord{
		ID:               id,
		Name:             recordKey,
		Platform:         "01",
		FileType:         "05",
		PlatformSequence: 1,
		NameDate:         nameDate,
		State:            db.FileStateSent,
		ReceivedAt:       o.now(),
		CycleDate:        cycle,
		RecordKey:        recordKey,
	}
	if err := o.ledger.InsertFile(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
