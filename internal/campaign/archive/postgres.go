// internal/campaign/archive/postgres.go
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"campaign-client/internal/common/errors"
	"campaign-client/internal/common/logger"
	"campaign-client/internal/models"

	"github.com/lib/pq"
)

// Archiver persists completed campaigns.
type Archiver interface {
	Archive(ctx context.Context, record models.CampaignRecord) error
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS campaigns (
	id           UUID PRIMARY KEY,
	session_id   TEXT NOT NULL,
	prompt       TEXT NOT NULL,
	request      JSONB NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS campaign_target_results (
	campaign_id UUID NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
	segment     TEXT NOT NULL,
	accepted    TEXT[] NOT NULL,
	rejected    TEXT[] NOT NULL,
	PRIMARY KEY (campaign_id, segment)
);`

const (
	insertCampaignSQL = `INSERT INTO campaigns (id, session_id, prompt, request, completed_at) VALUES ($1, $2, $3, $4, $5)`
	insertTargetSQL   = `INSERT INTO campaign_target_results (campaign_id, segment, accepted, rejected) VALUES ($1, $2, $3, $4)`
	recentSQL         = `SELECT c.id, c.prompt, c.completed_at, COUNT(t.segment)
FROM campaigns c LEFT JOIN campaign_target_results t ON t.campaign_id = c.id
GROUP BY c.id, c.prompt, c.completed_at
ORDER BY c.completed_at DESC
LIMIT $1`
)

// Summary is one row of the campaign history.
type Summary struct {
	ID          string
	Prompt      string
	CompletedAt time.Time
	Targets     int
}

type PostgresArchive struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgresArchive(db *sql.DB, log logger.Logger) *PostgresArchive {
	return &PostgresArchive{db: db, logger: logger.ForComponent(log, "archive")}
}

// EnsureSchema creates the archive tables when missing.
func (a *PostgresArchive) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("create archive schema: %w", err)
	}
	return nil
}

// Archive writes the campaign and its per-segment results in one transaction.
func (a *PostgresArchive) Archive(ctx context.Context, record models.CampaignRecord) (err error) {
	request, err := json.Marshal(record.Request)
	if err != nil {
		return errors.NewArchiveFailedError(fmt.Errorf("encode request: %w", err))
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewArchiveFailedError(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, insertCampaignSQL,
		record.ID, record.SessionID, record.Request.Prompt, request, record.CompletedAt.UTC(),
	); err != nil {
		return errors.NewArchiveFailedError(err)
	}

	for _, segment := range record.Request.TargetAudiences {
		imgs := record.Results[segment].Clone()
		if _, err = tx.ExecContext(ctx, insertTargetSQL,
			record.ID, segment, pq.Array(imgs.Accepted), pq.Array(imgs.Rejected),
		); err != nil {
			return errors.NewArchiveFailedError(err)
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.NewArchiveFailedError(err)
	}

	a.logger.Info("campaign archived", map[string]interface{}{
		"campaignId": record.ID,
		"targets":    len(record.Request.TargetAudiences),
	})
	return nil
}

// Recent lists the latest archived campaigns, newest first.
func (a *PostgresArchive) Recent(ctx context.Context, limit int) ([]Summary, error) {
	rows, err := a.db.QueryContext(ctx, recentSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Prompt, &s.CompletedAt, &s.Targets); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
