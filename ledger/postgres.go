package ledger

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"x402-gateway/clock"
	"x402-gateway/models"
)

// Postgres is a shared-store Ledger riding the unique index on
// used_intents.key. A single upsert statement is the atomic primitive:
// the insert wins, or the conflict branch revives a row whose previous
// reservation has expired. Expired rows are deleted by the sweep.
type Postgres struct {
	db  *gorm.DB
	clk clock.Clock

	stopOnce sync.Once
	stop     chan struct{}
}

// NewPostgres wraps a gorm handle. Call Start/Stop for the sweep.
func NewPostgres(db *gorm.DB, clk clock.Clock) *Postgres {
	return &Postgres{db: db, clk: clk, stop: make(chan struct{})}
}

// Reserve runs one conditional upsert; RowsAffected tells us whether this
// caller won. The WHERE on the conflict branch only lets an expired
// reservation be replaced, so a live id can never be taken twice.
func (p *Postgres) Reserve(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	now := p.clk.Now()
	if !expiresAt.After(now) {
		return true, nil
	}

	res := p.db.WithContext(ctx).Exec(`
		INSERT INTO used_intents (key, expires_at, created_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at
		WHERE used_intents.expires_at <= ?`,
		id, expiresAt, now, now)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IsReserved reports a live reservation for id.
func (p *Postgres) IsReserved(ctx context.Context, id string) (bool, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Model(&models.UsedIntent{}).
		Where("key = ? AND expires_at > ?", id, p.clk.Now()).
		Count(&count).Error
	return count > 0, err
}

// Sweep deletes expired rows. Garbage collection only; IsReserved and
// Reserve already treat expired rows as absent.
func (p *Postgres) Sweep(ctx context.Context) error {
	return p.db.WithContext(ctx).
		Where("expires_at <= ?", p.clk.Now()).
		Delete(&models.UsedIntent{}).Error
}

// Start launches the periodic sweep. Stop cancels it.
func (p *Postgres) Start(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = p.Sweep(context.Background())
			case <-p.stop:
				return
			}
		}
	}()
}

// Stop cancels the sweep goroutine.
func (p *Postgres) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}
