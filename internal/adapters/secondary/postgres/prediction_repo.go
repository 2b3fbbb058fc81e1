package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"eeg-decoder-service/internal/core/domain"
	"eeg-decoder-service/internal/core/ports/output"
)

type predictionRepo struct {
	db DBTX
}

func NewPredictionRepository(db DBTX) ports.PredictionRepository {
	return &predictionRepo{db: db}
}

var predictionColumns = []string{
	"session_id", "seq", "window_start", "window_end", "ts",
	"class", "label", "probabilities", "rejected", "reject_reason", "latency_us",
}

// InsertBatch streams the batch with COPY.
func (r *predictionRepo) InsertBatch(ctx context.Context, predictions []domain.Prediction) error {
	if len(predictions) == 0 {
		return nil
	}
	rows := make([][]any, len(predictions))
	for i, p := range predictions {
		rows[i] = []any{
			p.SessionID, int64(p.Seq), p.WindowStart, p.WindowEnd, p.Timestamp,
			p.Class, p.Label, p.Probabilities, p.Rejected, p.RejectReason, p.Latency.Microseconds(),
		}
	}
	n, err := r.db.CopyFrom(ctx, pgx.Identifier{"predictions"}, predictionColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("insert predictions: %w", err)
	}
	if int(n) != len(predictions) {
		return fmt.Errorf("insert predictions: copied %d of %d rows", n, len(predictions))
	}
	return nil
}

func (r *predictionRepo) ListBySession(ctx context.Context, sessionID uuid.UUID, afterSeq uint64, limit int) ([]domain.Prediction, error) {
	query := `
		SELECT session_id, seq, window_start, window_end, ts, class, label,
			   probabilities, rejected, reject_reason, latency_us
		FROM predictions
		WHERE session_id = $1 AND seq > $2
		ORDER BY seq
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, sessionID, int64(afterSeq), limit)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	out := []domain.Prediction{}
	for rows.Next() {
		var (
			p         domain.Prediction
			seq       int64
			latencyUs int64
		)
		if err := rows.Scan(&p.SessionID, &seq, &p.WindowStart, &p.WindowEnd, &p.Timestamp, &p.Class, &p.Label,
			&p.Probabilities, &p.Rejected, &p.RejectReason, &latencyUs); err != nil {
			return nil, fmt.Errorf("scan prediction row: %w", err)
		}
		p.Seq = uint64(seq)
		p.Latency = time.Duration(latencyUs) * time.Microsecond
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prediction rows: %w", err)
	}
	return out, nil
}
