package demand

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the demand does not exist (or no longer exists).
var ErrNotFound = errors.New("demand: not found")

// CurationUpdate is the column set touched by a curation transition.
type CurationUpdate struct {
	Status         Status
	Curated        bool
	StampCuratedAt bool // set curated_at to now() (cleared otherwise)
	Publish        bool // set published_at to now() (cleared otherwise)
	Notes          string
}

// Repository is the persistence surface the service depends on.
type Repository interface {
	GetByID(ctx context.Context, id string) (Demand, error)
	List(ctx context.Context, f Filters) ([]Demand, int, error)
	Update(ctx context.Context, id string, p UpdateParams, maskedWhatsApp string, digits string) (Demand, error)
	SetCuration(ctx context.Context, id string, c CurationUpdate) error
	Delete(ctx context.Context, id string) error
}

const demandColumns = `
	id::text, user_id::text, title, description, category, subcategory,
	state, city, deadline, budget, notes, tags, images, pdf_url,
	contact_name, contact_email, contact_whatsapp, contact_whatsapp_mask,
	default_price_cents, currency, unlock_cap, unlock_count, unlocked_for,
	status, curated, curation_notes, curated_at, published_at, last_sent_at, created_at, updated_at`

// PGRepository implements Repository over pgxpool.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Demand, error) {
	query := `SELECT ` + demandColumns + ` FROM demands WHERE id::text = $1`
	d, err := scanDemand(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Demand{}, ErrNotFound
		}
		return Demand{}, fmt.Errorf("demand: get by id: %w", err)
	}
	return d, nil
}

func (r *PGRepository) List(ctx context.Context, f Filters) ([]Demand, int, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 || f.PageSize > 100 {
		f.PageSize = 20
	}

	where := []string{"1=1"}
	args := []any{}
	if f.Status != "" {
		where = append(where, fmt.Sprintf("status=$%d", len(args)+1))
		args = append(args, f.Status)
	}
	if f.Category != "" {
		where = append(where, fmt.Sprintf("category=$%d", len(args)+1))
		args = append(args, f.Category)
	}
	if f.State != "" {
		where = append(where, fmt.Sprintf("state=$%d", len(args)+1))
		args = append(args, f.State)
	}
	whereClause := " WHERE " + strings.Join(where, " AND ")

	query := fmt.Sprintf(
		`SELECT %s FROM demands%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		demandColumns, whereClause, f.PageSize, (f.Page-1)*f.PageSize,
	)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("demand: list: %w", err)
	}
	defer rows.Close()

	list := []Demand{}
	for rows.Next() {
		d, err := scanDemand(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("demand: scan list row: %w", err)
		}
		list = append(list, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("demand: iterate list: %w", err)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM demands" + whereClause
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("demand: count list: %w", err)
	}
	return list, total, nil
}

func (r *PGRepository) Update(ctx context.Context, id string, p UpdateParams, maskedWhatsApp, digits string) (Demand, error) {
	query := `
		UPDATE demands
		SET title=$2, description=$3, category=$4, subcategory=$5,
		    state=$6, city=$7, deadline=$8, budget=$9, notes=$10,
		    tags=$11, images=$12, pdf_url=$13,
		    contact_name=$14, contact_email=$15,
		    contact_whatsapp=$16, contact_whatsapp_mask=$17,
		    default_price_cents=$18, unlock_cap=$19,
		    updated_at=now()
		WHERE id::text = $1
		RETURNING ` + demandColumns

	d, err := scanDemand(r.pool.QueryRow(ctx, query, id,
		p.Title, p.Description, p.Category, p.Subcategory,
		p.State, p.City, p.Deadline, p.Budget, p.Notes,
		p.Tags, p.Images, p.PDFURL,
		p.ContactName, strings.ToLower(strings.TrimSpace(p.ContactEmail)),
		digits, maskedWhatsApp,
		p.DefaultPriceCents, p.UnlockCap,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Demand{}, ErrNotFound
		}
		return Demand{}, fmt.Errorf("demand: update: %w", err)
	}
	return d, nil
}

func (r *PGRepository) SetCuration(ctx context.Context, id string, c CurationUpdate) error {
	query := `
		UPDATE demands
		SET status=$2,
		    curated=$3,
		    curated_at=CASE WHEN $4 THEN now() ELSE NULL END,
		    published_at=CASE WHEN $5 THEN now() ELSE NULL END,
		    curation_notes=$6,
		    updated_at=now()
		WHERE id::text = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, c.Status, c.Curated, c.StampCuratedAt, c.Publish, c.Notes)
	if err != nil {
		return fmt.Errorf("demand: set curation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the demand and cascades over its assignments and access
// side-records in one transaction.
func (r *PGRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("demand: begin delete tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM demand_accesses WHERE demand_id::text = $1`, id); err != nil {
		return fmt.Errorf("demand: delete accesses: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM demand_assignments WHERE demand_id::text = $1`, id); err != nil {
		return fmt.Errorf("demand: delete assignments: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM demands WHERE id::text = $1`, id)
	if err != nil {
		return fmt.Errorf("demand: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("demand: commit delete: %w", err)
	}
	return nil
}

func scanDemand(row pgx.Row) (Demand, error) {
	var d Demand
	return d, row.Scan(
		&d.ID, &d.UserID, &d.Title, &d.Description, &d.Category, &d.Subcategory,
		&d.State, &d.City, &d.Deadline, &d.Budget, &d.Notes, &d.Tags, &d.Images, &d.PDFURL,
		&d.ContactName, &d.ContactEmail, &d.ContactWhatsApp, &d.ContactWhatsAppMask,
		&d.DefaultPriceCents, &d.Currency, &d.UnlockCap, &d.UnlockCount, &d.UnlockedFor,
		&d.Status, &d.Curated, &d.CurationNotes, &d.CuratedAt, &d.PublishedAt, &d.LastSentAt, &d.CreatedAt, &d.UpdatedAt,
	)
}
