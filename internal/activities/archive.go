package activities

import (
	"context"

	"go.uber.org/zap"
)

// ArchiveSession hands a terminal session to the archive writer. Archival
// is best effort: a full queue drops the record and the workflow moves on.
func (a *Activities) ArchiveSession(ctx context.Context, input ArchiveInput) (ArchiveResult, error) {
	if a.archiver == nil {
		return ArchiveResult{}, nil
	}

	sess, err := a.sessions.Get(ctx, input.SessionID)
	if err != nil {
		return ArchiveResult{}, err
	}

	if !a.archiver.Enqueue(sess) {
		a.logger.Warn("Archive queue full, session record dropped",
			zap.String("session_id", input.SessionID),
		)
		return ArchiveResult{}, nil
	}

	a.logger.Debug("Session queued for archival", zap.String("session_id", input.SessionID))
	return ArchiveResult{Archived: true}, nil
}
