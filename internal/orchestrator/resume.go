package orchestrator

import (
	"context"
	"log/slog"

	"github.com/cgdops/rtaingest/internal/db"
	"github.com/cgdops/rtaingest/internal/names"
)

// resumePendingMembers finishes a run whose members were registered before a
// crash: every member still PENDIENTE_INICIO gets its validate-request
// republished, the batch is flipped to ENVIADO, and consolidation follows.
func (o *Orchestrator) resumePendingMembers(ctx context.Context, st *flowState, runID int64) error {
	registered, err := o.ledger.ListMembers(ctx, st.fileID, runID)
	if err != nil {
		return classified(CodeInfrastructure, st.fileID, st.state, err)
	}

	pending := make(map[string]db.MemberFile, len(registered))
	for _, m := range registered {
		if m.State == db.MemberStatePending {
			pending[m.Name] = m
		}
	}

	republished := 0
	for _, member := range st.members {
		m, ok := pending[member]
		if !ok {
			continue
		}
		if m.MemberType != names.MemberType(member) {
			o.log.Warn("registered member type disagrees with its name, skipping",
				slog.String("member", member), slog.String("registered_type", m.MemberType))
			continue
		}
		if err := o.publishValidate(ctx, st, runID, member); err != nil {
			return err
		}
		republished++
	}

	if err := o.ledger.MarkMembersSent(ctx, st.fileID); err != nil {
		return classified(CodeInfrastructure, st.fileID, st.state, err)
	}

	o.log.Info("pending members resumed",
		slog.Int64("file_id", st.fileID),
		slog.Int("republished", republished),
		slog.Int("registered", len(registered)))
	return o.consolidate(ctx, st)
}
