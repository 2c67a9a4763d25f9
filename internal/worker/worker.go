// Package worker consumes workspace facts from the event queue and records
// them in the audit trail.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-collab/backend/internal/audit"
	"github.com/atlas-collab/backend/internal/models"
	"github.com/atlas-collab/backend/pkg/events"
)

// Auditor processes workspace event envelopes into audit log entries.
type Auditor struct {
	repo   *audit.Repository
	queue  *events.Queue
	logger *zap.Logger
}

// NewAuditor creates an audit worker.
func NewAuditor(repo *audit.Repository, q *events.Queue, logger *zap.Logger) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{repo: repo, queue: q, logger: logger}
}

// Process records one event. Redeliveries are absorbed by the insert's
// conflict clause.
func (a *Auditor) Process(ctx context.Context, env *events.Envelope) error {
	payload, err := json.Marshal(env.Event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	entry := &models.AuditEntry{
		WorkspaceUUID: env.Event.WorkspaceUUID,
		EventType:     string(env.Event.Type),
		Payload:       payload,
		OccurredAt:    env.Event.OccurredAt,
	}
	if err := a.repo.Insert(ctx, env.Event.ID, entry); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (a *Auditor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("audit worker stopping")
			return
		default:
		}

		env, err := a.queue.Dequeue(ctx)
		if err != nil {
			a.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(events.RetryBackoff)
			continue
		}
		if env == nil {
			continue
		}

		a.logger.Debug("processing event",
			zap.String("event_id", env.Event.ID.String()),
			zap.String("type", string(env.Event.Type)),
		)
		if err := a.Process(ctx, env); err != nil {
			a.logger.Error("event failed", zap.String("event_id", env.Event.ID.String()), zap.Error(err))
			if reErr := a.queue.Retry(ctx, env); reErr != nil {
				a.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(events.RetryBackoff)
			continue
		}
	}
}
