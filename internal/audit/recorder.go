package audit

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/smallbiznis/valora-bff/internal/domain"
	"github.com/smallbiznis/valora-bff/internal/repository"
)

// Event is an action worth keeping in audit_logs.
type Event struct {
	ActorID      string
	Action       string
	ResourceType string
	ResourceID   string
	Metadata     map[string]any
}

// Recorder appends audit entries. Failures are logged and never surface to
// the caller. A nil Recorder discards events.
type Recorder struct {
	repo   repository.AuditRepository
	logger *zap.Logger
}

func NewRecorder(repo repository.AuditRepository, logger *zap.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

type ctxKey struct{}

// WithClientIP stores the caller address for entries recorded under ctx.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, ip)
}

func clientIP(ctx context.Context) *string {
	if ip, ok := ctx.Value(ctxKey{}).(string); ok && ip != "" {
		return &ip
	}
	return nil
}

func (r *Recorder) Record(ctx context.Context, ev Event) {
	if r == nil || r.repo == nil {
		return
	}
	entry := domain.AuditEntry{
		Action:       ev.Action,
		ResourceType: ev.ResourceType,
		IPAddress:    clientIP(ctx),
	}
	if ev.ActorID != "" {
		entry.ActorID = &ev.ActorID
	}
	if ev.ResourceID != "" {
		entry.ResourceID = &ev.ResourceID
	}
	if len(ev.Metadata) > 0 {
		raw, err := json.Marshal(ev.Metadata)
		if err != nil {
			r.log().Warn("encode audit metadata", zap.String("action", ev.Action), zap.Error(err))
		} else {
			entry.Metadata = raw
		}
	}
	// Detached so a cancelled request still leaves its trail.
	if err := r.repo.Record(context.WithoutCancel(ctx), entry); err != nil {
		r.log().Error("record audit entry", zap.String("action", ev.Action), zap.Error(err))
	}
}

func (r *Recorder) log() *zap.Logger {
	if r.logger != nil {
		return r.logger
	}
	return zap.L()
}
