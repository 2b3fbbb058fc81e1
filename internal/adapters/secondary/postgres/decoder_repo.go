package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"eeg-decoder-service/internal/core/domain"
	"eeg-decoder-service/internal/core/ports/output"
)

type decoderRepo struct {
	db DBTX
}

func NewDecoderRepository(db DBTX) ports.DecoderRepository {
	return &decoderRepo{db: db}
}

const decoderColumns = `id, created_at, updated_at, project_id, name, description, kind, state,
	montage, classes, pipeline, artifact, model, report, labels, published, error`

// sortable columns of List
var decoderSortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"name":       "name",
	"kind":       "kind",
	"state":      "state",
}

type decoderJSON struct {
	montage, classes, pipeline, artifact, model, report, labels []byte
}

func encodeDecoder(d *domain.Decoder) (*decoderJSON, error) {
	var (
		out decoderJSON
		err error
	)
	if out.montage, err = json.Marshal(d.Montage); err != nil {
		return nil, fmt.Errorf("marshal montage: %w", err)
	}
	if out.classes, err = json.Marshal(nonNil(d.Classes)); err != nil {
		return nil, fmt.Errorf("marshal classes: %w", err)
	}
	if out.pipeline, err = json.Marshal(d.Pipeline); err != nil {
		return nil, fmt.Errorf("marshal pipeline: %w", err)
	}
	if d.Artifact != nil {
		if out.artifact, err = json.Marshal(d.Artifact); err != nil {
			return nil, fmt.Errorf("marshal artifact: %w", err)
		}
	}
	if len(d.Model) > 0 {
		out.model = d.Model
	}
	if d.Report != nil {
		if out.report, err = json.Marshal(d.Report); err != nil {
			return nil, fmt.Errorf("marshal report: %w", err)
		}
	}
	labels := d.Labels
	if labels == nil {
		labels = map[string]string{}
	}
	if out.labels, err = json.Marshal(labels); err != nil {
		return nil, fmt.Errorf("marshal labels: %w", err)
	}
	return &out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (r *decoderRepo) Create(ctx context.Context, d *domain.Decoder) error {
	enc, err := encodeDecoder(d)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO decoders
			(id, created_at, updated_at, project_id, name, description, kind, state,
			 montage, classes, pipeline, artifact, model, report, labels, published, error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`
	_, err = r.db.Exec(ctx, query,
		d.ID, d.CreatedAt, d.UpdatedAt, d.ProjectID, d.Name, d.Description,
		string(d.Kind), string(d.State),
		enc.montage, enc.classes, enc.pipeline, enc.artifact, enc.model, enc.report, enc.labels,
		d.Published, d.Error,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDecoderNameConflict
		}
		return fmt.Errorf("create decoder: %w", err)
	}
	return nil
}

func (r *decoderRepo) GetByID(ctx context.Context, projectID uuid.UUID, id uuid.UUID) (*domain.Decoder, error) {
	query := `SELECT ` + decoderColumns + ` FROM decoders WHERE id = $1 AND project_id = $2`
	d, err := scanDecoder(r.db.QueryRow(ctx, query, id, projectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDecoderNotFound
		}
		return nil, fmt.Errorf("get decoder by id: %w", err)
	}
	return d, nil
}

func (r *decoderRepo) Update(ctx context.Context, projectID uuid.UUID, d *domain.Decoder) error {
	enc, err := encodeDecoder(d)
	if err != nil {
		return err
	}

	query := `
		UPDATE decoders
		SET name=$1, description=$2, state=$3, classes=$4, pipeline=$5,
			artifact=$6, model=$7, report=$8, labels=$9, published=$10, error=$11,
			updated_at=NOW()
		WHERE id=$12 AND project_id=$13
	`
	result, err := r.db.Exec(ctx, query,
		d.Name, d.Description, string(d.State), enc.classes, enc.pipeline,
		enc.artifact, enc.model, enc.report, enc.labels, d.Published, d.Error,
		d.ID, projectID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDecoderNameConflict
		}
		return fmt.Errorf("update decoder: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrDecoderNotFound
	}
	return nil
}

func (r *decoderRepo) Delete(ctx context.Context, projectID uuid.UUID, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM decoders WHERE id = $1 AND project_id = $2`, id, projectID)
	if err != nil {
		return fmt.Errorf("delete decoder: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrDecoderNotFound
	}
	return nil
}

func (r *decoderRepo) List(ctx context.Context, filter ports.DecoderListFilter) ([]*domain.Decoder, int, error) {
	conditions := []string{"project_id = $1"}
	args := []interface{}{filter.ProjectID}
	argPos := 2

	if filter.Kind != "" {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", argPos))
		args = append(args, filter.Kind)
		argPos++
	}
	if filter.State != "" {
		conditions = append(conditions, fmt.Sprintf("state = $%d", argPos))
		args = append(args, filter.State)
		argPos++
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", argPos))
		args = append(args, "%"+filter.Search+"%")
		argPos++
	}
	whereClause := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM decoders WHERE " + whereClause
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count decoders: %w", err)
	}

	orderBy := "created_at DESC"
	if col, ok := decoderSortColumns[filter.SortBy]; ok {
		dir := "DESC"
		if filter.Order == "asc" {
			dir = "ASC"
		}
		orderBy = col + " " + dir
	}

	query := fmt.Sprintf(`SELECT %s FROM decoders WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		decoderColumns, whereClause, orderBy, argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list decoders: %w", err)
	}
	defer rows.Close()

	decoders := []*domain.Decoder{}
	for rows.Next() {
		d, err := scanDecoder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan decoder row: %w", err)
		}
		decoders = append(decoders, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate decoder rows: %w", err)
	}
	return decoders, total, nil
}

func scanDecoder(row pgx.Row) (*domain.Decoder, error) {
	var (
		d           domain.Decoder
		kind, state string
		enc         decoderJSON
	)
	err := row.Scan(
		&d.ID, &d.CreatedAt, &d.UpdatedAt, &d.ProjectID, &d.Name, &d.Description, &kind, &state,
		&enc.montage, &enc.classes, &enc.pipeline, &enc.artifact, &enc.model, &enc.report, &enc.labels,
		&d.Published, &d.Error,
	)
	if err != nil {
		return nil, err
	}
	d.Kind = domain.DecoderKind(kind)
	d.State = domain.DecoderState(state)

	if err := json.Unmarshal(enc.montage, &d.Montage); err != nil {
		return nil, fmt.Errorf("unmarshal montage: %w", err)
	}
	if err := json.Unmarshal(enc.classes, &d.Classes); err != nil {
		return nil, fmt.Errorf("unmarshal classes: %w", err)
	}
	if err := json.Unmarshal(enc.pipeline, &d.Pipeline); err != nil {
		return nil, fmt.Errorf("unmarshal pipeline: %w", err)
	}
	if len(enc.artifact) > 0 {
		d.Artifact = &domain.ArtifactModel{}
		if err := json.Unmarshal(enc.artifact, d.Artifact); err != nil {
			return nil, fmt.Errorf("unmarshal artifact: %w", err)
		}
	}
	if len(enc.model) > 0 {
		d.Model = json.RawMessage(enc.model)
	}
	if len(enc.report) > 0 {
		d.Report = &domain.EvaluationReport{}
		if err := json.Unmarshal(enc.report, d.Report); err != nil {
			return nil, fmt.Errorf("unmarshal report: %w", err)
		}
	}
	if err := json.Unmarshal(enc.labels, &d.Labels); err != nil {
		return nil, fmt.Errorf("unmarshal labels: %w", err)
	}
	return &d, nil
}
