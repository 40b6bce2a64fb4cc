package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"Prospector/internal/domain"
	"Prospector/internal/ports"
)

//go:embed schema.sql
var schema string

// uniqueViolation is the Postgres SQLSTATE for duplicate keys.
const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// ErrDuplicate is returned when an insert-only row already exists.
var ErrDuplicate = errors.New("record already exists")

// PostgresStore persists sessions, businesses and pipeline records into
// Postgres. Per-business records are written with a single
// INSERT .. ON CONFLICT statement keyed by business_id.
type PostgresStore struct {
	db *sql.DB
}

var _ ports.RemoteStore = (*PostgresStore)(nil)

// NewPostgresStore wires a sql.DB implementation.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects with the lib/pq driver and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgresStore(db), nil
}

// EnsureSchema creates the tables when they are missing.
func (r *PostgresStore) EnsureSchema(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (r *PostgresStore) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Enabled reports whether a database is attached.
func (r *PostgresStore) Enabled() bool {
	return r.db != nil
}

// CreateSession inserts the session and returns its id. Sessions are
// insert-only.
func (r *PostgresStore) CreateSession(ctx context.Context, session domain.Session) (string, error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if r.db == nil {
		return session.ID, nil
	}
	if err := r.exec(ctx, insertSessionQuery(session)); err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return session.ID, nil
}

// CreateBusinesses inserts discovered businesses in one statement.
func (r *PostgresStore) CreateBusinesses(ctx context.Context, businesses []domain.Business) error {
	if r.db == nil || len(businesses) == 0 {
		return nil
	}
	query, err := insertBusinessesQuery(businesses)
	if err != nil {
		return err
	}
	if err := r.exec(ctx, query); err != nil {
		return fmt.Errorf("insert businesses: %w", err)
	}
	return nil
}

// UpdateBusiness rewrites the mutable business columns, including enrichment.
func (r *PostgresStore) UpdateBusiness(ctx context.Context, business domain.Business) error {
	if r.db == nil {
		return nil
	}
	query, err := updateBusinessQuery(business)
	if err != nil {
		return err
	}
	if err := r.exec(ctx, query); err != nil {
		return fmt.Errorf("update business %s: %w", business.ID, err)
	}
	return nil
}

// UpsertPrompt stores the blueprint of a business.
func (r *PostgresStore) UpsertPrompt(ctx context.Context, rec domain.PromptRecord) error {
	if r.db == nil {
		return nil
	}
	if err := r.exec(ctx, upsertPromptQuery(rec)); err != nil {
		return fmt.Errorf("upsert prompt %s: %w", rec.BusinessID, err)
	}
	return nil
}

// UpsertWebsite stores the generated site of a business.
func (r *PostgresStore) UpsertWebsite(ctx context.Context, rec domain.WebsiteRecord) error {
	if r.db == nil {
		return nil
	}
	if err := r.exec(ctx, upsertWebsiteQuery(rec)); err != nil {
		return fmt.Errorf("upsert website %s: %w", rec.BusinessID, err)
	}
	return nil
}

// UpsertReview stores the critique of a business' site as a JSON document.
func (r *PostgresStore) UpsertReview(ctx context.Context, businessID string, review domain.WebsiteReview) error {
	if r.db == nil {
		return nil
	}
	query, err := upsertReviewQuery(businessID, review)
	if err != nil {
		return err
	}
	if err := r.exec(ctx, query); err != nil {
		return fmt.Errorf("upsert review %s: %w", businessID, err)
	}
	return nil
}

// UpsertOutreach stores the outreach package as a JSON document.
func (r *PostgresStore) UpsertOutreach(ctx context.Context, businessID string, pkg domain.OutreachPackage) error {
	if r.db == nil {
		return nil
	}
	query, err := upsertOutreachQuery(businessID, pkg)
	if err != nil {
		return err
	}
	if err := r.exec(ctx, query); err != nil {
		return fmt.Errorf("upsert outreach %s: %w", businessID, err)
	}
	return nil
}

func (r *PostgresStore) exec(ctx context.Context, query sq.Sqlizer) error {
	text, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, text, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Detail)
		}
		return err
	}
	return nil
}

func insertSessionQuery(s domain.Session) sq.InsertBuilder {
	status := s.Status
	if status == "" {
		status = domain.SessionActive
	}
	return psql.Insert("sessions").
		Columns("id", "category", "location", "min_rating", "max_rating",
			"website_filter", "min_reviews", "include_media", "status").
		Values(s.ID, s.Category, s.Location, s.MinRating, s.MaxRating,
			string(s.WebsiteFilter), s.MinReviews, s.IncludeMedia, string(status))
}

func insertBusinessesQuery(businesses []domain.Business) (sq.InsertBuilder, error) {
	query := psql.Insert("businesses").
		Columns("id", "session_id", "name", "address", "rating", "review_count",
			"website_status", "description", "phone", "maps_uri", "notes", "enriched_data")
	for _, b := range businesses {
		enriched, err := enrichedJSON(b.Enriched)
		if err != nil {
			return query, err
		}
		query = query.Values(b.ID, b.SessionID, b.Name, b.Address, b.Rating, b.ReviewCount,
			string(b.WebsiteStatus), b.Description, b.Phone, b.MapsURI, b.Notes, enriched)
	}
	return query, nil
}

func updateBusinessQuery(b domain.Business) (sq.UpdateBuilder, error) {
	enriched, err := enrichedJSON(b.Enriched)
	if err != nil {
		return sq.UpdateBuilder{}, err
	}
	return psql.Update("businesses").
		Set("name", b.Name).
		Set("address", b.Address).
		Set("rating", b.Rating).
		Set("review_count", b.ReviewCount).
		Set("website_status", string(b.WebsiteStatus)).
		Set("description", b.Description).
		Set("phone", b.Phone).
		Set("maps_uri", b.MapsURI).
		Set("notes", b.Notes).
		Set("enriched_data", enriched).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": b.ID}), nil
}

func upsertPromptQuery(rec domain.PromptRecord) sq.InsertBuilder {
	return psql.Insert("prompts").
		Columns("business_id", "blueprint", "approved").
		Values(rec.BusinessID, rec.Blueprint, rec.Approved).
		Suffix(`ON CONFLICT (business_id) DO UPDATE
SET blueprint = EXCLUDED.blueprint,
    approved = EXCLUDED.approved,
    updated_at = NOW()`)
}

func upsertWebsiteQuery(rec domain.WebsiteRecord) sq.InsertBuilder {
	return psql.Insert("websites").
		Columns("business_id", "url", "markup", "screenshot").
		Values(rec.BusinessID, rec.URL, rec.Markup, rec.Screenshot).
		Suffix(`ON CONFLICT (business_id) DO UPDATE
SET url = EXCLUDED.url,
    markup = EXCLUDED.markup,
    screenshot = EXCLUDED.screenshot,
    updated_at = NOW()`)
}

func upsertReviewQuery(businessID string, review domain.WebsiteReview) (sq.InsertBuilder, error) {
	payload, err := json.Marshal(review)
	if err != nil {
		return sq.InsertBuilder{}, fmt.Errorf("marshal review: %w", err)
	}
	return psql.Insert("reviews").
		Columns("business_id", "approved", "payload").
		Values(businessID, review.Approved, string(payload)).
		Suffix(`ON CONFLICT (business_id) DO UPDATE
SET approved = EXCLUDED.approved,
    payload = EXCLUDED.payload,
    updated_at = NOW()`), nil
}

func upsertOutreachQuery(businessID string, pkg domain.OutreachPackage) (sq.InsertBuilder, error) {
	payload, err := json.Marshal(pkg)
	if err != nil {
		return sq.InsertBuilder{}, fmt.Errorf("marshal outreach: %w", err)
	}
	return psql.Insert("outreach").
		Columns("business_id", "payload").
		Values(businessID, string(payload)).
		Suffix(`ON CONFLICT (business_id) DO UPDATE
SET payload = EXCLUDED.payload,
    updated_at = NOW()`), nil
}

// enrichedJSON encodes enrichment for a JSONB column; empty data is NULL.
func enrichedJSON(e *domain.EnrichedData) (any, error) {
	if e.Empty() {
		return nil, nil
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal enriched data: %w", err)
	}
	return string(raw), nil
}
