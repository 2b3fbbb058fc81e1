package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"eeg-decoder-service/internal/core/domain"
	"eeg-decoder-service/internal/core/ports/output"
)

type sessionRepo struct {
	db DBTX
}

func NewSessionRepository(db DBTX) ports.SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) Create(ctx context.Context, s *domain.Session) error {
	stats, err := json.Marshal(s.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	query := `
		INSERT INTO sessions (id, project_id, decoder_id, state, started_at, stopped_at, stats)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`
	_, err = r.db.Exec(ctx, query, s.ID, s.ProjectID, s.DecoderID, string(s.State), s.StartedAt, s.StoppedAt, stats)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *sessionRepo) GetByID(ctx context.Context, projectID uuid.UUID, id uuid.UUID) (*domain.Session, error) {
	query := `
		SELECT id, project_id, decoder_id, state, started_at, stopped_at, stats
		FROM sessions
		WHERE id = $1 AND project_id = $2
	`
	var (
		s     domain.Session
		state string
		stats []byte
	)
	err := r.db.QueryRow(ctx, query, id, projectID).Scan(&s.ID, &s.ProjectID, &s.DecoderID, &state, &s.StartedAt, &s.StoppedAt, &stats)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session by id: %w", err)
	}
	s.State = domain.SessionState(state)
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &s.Stats); err != nil {
			return nil, fmt.Errorf("unmarshal stats: %w", err)
		}
	}
	return &s, nil
}

func (r *sessionRepo) Update(ctx context.Context, s *domain.Session) error {
	stats, err := json.Marshal(s.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	result, err := r.db.Exec(ctx,
		`UPDATE sessions SET state=$1, stopped_at=$2, stats=$3 WHERE id=$4 AND project_id=$5`,
		string(s.State), s.StoppedAt, stats, s.ID, s.ProjectID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *sessionRepo) CountActiveByDecoder(ctx context.Context, decoderID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM sessions WHERE decoder_id = $1 AND state = $2`,
		decoderID, string(domain.SessionStateActive),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return n, nil
}
