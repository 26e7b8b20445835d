package server

import (
	"context"
	"sync"
	"time"

	"github.com/npezzotti/go-livechat/internal/database"
	"github.com/rs/zerolog"
)

// Presence persists admin availability through the repository.
type Presence struct {
	db      database.ChatRepository
	log     zerolog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewPresence(db database.ChatRepository, l zerolog.Logger, timeout time.Duration) *Presence {
	return &Presence{
		db:      db,
		log:     l.With().Str("component", "presence").Logger(),
		timeout: timeout,
	}
}

// SetStatus upserts the admin's status and stamps lastSeenAt.
func (p *Presence) SetStatus(ctx context.Context, adminId int, status string, statusMessage *string) (database.AdminChatStatus, error) {
	now := Now()
	return p.db.UpsertAdminChatStatus(ctx, adminId, database.AdminChatStatusPatch{
		Status:        &status,
		StatusMessage: statusMessage,
		LastSeenAt:    &now,
	})
}

func (p *Presence) AvailableAdmins(ctx context.Context) ([]database.AdminChatStatus, error) {
	return p.db.GetAvailableAdmins(ctx)
}

// MarkOfflineAsync records the admin as offline without blocking the caller.
// Failures are logged and not retried.
func (p *Presence) MarkOfflineAsync(adminId int) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		if _, err := p.SetStatus(ctx, adminId, database.AdminStatusOffline, nil); err != nil {
			p.log.Error().Err(err).Int("admin_id", adminId).Msg("failed to mark admin offline")
			return
		}
		p.log.Debug().Int("admin_id", adminId).Msg("admin marked offline")
	}()
}

// Wait blocks until pending offline writes complete.
func (p *Presence) Wait() {
	p.wg.Wait()
}
