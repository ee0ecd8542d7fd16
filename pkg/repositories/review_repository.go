package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
)

// ReviewRepository defines the interface for review data access.
type ReviewRepository interface {
	// InsertBatch inserts reviews, skipping any (business, platform, external id) already stored.
	// It returns the number of rows inserted.
	InsertBatch(ctx context.Context, reviews []*models.Review) (int, error)
	GetByID(ctx context.Context, organizationID, id uuid.UUID) (*models.Review, error)
	// ExistingExternalIDs returns which of externalIDs are already stored for the business and platform.
	ExistingExternalIDs(ctx context.Context, businessID uuid.UUID, platform string, externalIDs []string) (map[string]bool, error)
	List(ctx context.Context, organizationID uuid.UUID, filter *models.ReviewFilter) ([]*models.Review, int, error)
	// Unanswered returns reviews without a response, oldest first.
	Unanswered(ctx context.Context, businessID uuid.UUID, platforms []string, minRating, limit int) ([]*models.Review, error)
	// Recent returns the newest reviews of a business for AI prompts.
	Recent(ctx context.Context, businessID uuid.UUID, limit int) ([]*models.Review, error)
	SetResponse(ctx context.Context, organizationID, id uuid.UUID, text string, byAI bool, at time.Time) error
	UpdateSentiment(ctx context.Context, organizationID, id uuid.UUID, sentiment string) error
	Stats(ctx context.Context, organizationID, businessID uuid.UUID, locationIDs []uuid.UUID) (*models.ReviewStats, error)
}

type reviewRepository struct{}

// NewReviewRepository creates a new review repository.
func NewReviewRepository() ReviewRepository {
	return &reviewRepository{}
}

const reviewColumns = `id, organization_id, business_id, location_id, platform, external_id, reviewer_name,
	reviewer_avatar_url, rating, text, review_url, posted_at, sentiment, response_text, response_date,
	responded_by_ai, created_at, updated_at`

func scanReview(row pgx.Row) (*models.Review, error) {
	var rv models.Review
	err := row.Scan(&rv.ID, &rv.OrganizationID, &rv.BusinessID, &rv.LocationID, &rv.Platform, &rv.ExternalID,
		&rv.ReviewerName, &rv.ReviewerAvatarURL, &rv.Rating, &rv.Text, &rv.ReviewURL, &rv.PostedAt,
		&rv.Sentiment, &rv.ResponseText, &rv.ResponseDate, &rv.RespondedByAI, &rv.CreatedAt, &rv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rv, nil
}

func collectReviews(rows pgx.Rows) ([]*models.Review, error) {
	defer rows.Close()
	reviews := make([]*models.Review, 0)
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviews: %w", err)
	}
	return reviews, nil
}

func (r *reviewRepository) InsertBatch(ctx context.Context, reviews []*models.Review) (int, error) {
	if len(reviews) == 0 {
		return 0, nil
	}

	scope, err := scopeConn(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	batch := &pgx.Batch{}
	query := `
		INSERT INTO reviews (id, organization_id, business_id, location_id, platform, external_id,
			reviewer_name, reviewer_avatar_url, rating, text, review_url, posted_at, sentiment,
			response_text, response_date, responded_by_ai, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, false, $16, $16)
		ON CONFLICT (business_id, platform, external_id) DO NOTHING`

	for _, rv := range reviews {
		if rv.ID == uuid.Nil {
			rv.ID = uuid.New()
		}
		if rv.Sentiment == "" {
			rv.Sentiment = models.SentimentFromRating(rv.Rating)
		}
		rv.CreatedAt = now
		rv.UpdatedAt = now
		batch.Queue(query,
			rv.ID, rv.OrganizationID, rv.BusinessID, rv.LocationID, rv.Platform, rv.ExternalID,
			rv.ReviewerName, rv.ReviewerAvatarURL, rv.Rating, rv.Text, rv.ReviewURL, rv.PostedAt,
			rv.Sentiment, rv.ResponseText, rv.ResponseDate, now)
	}

	results := scope.Conn.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range reviews {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("failed to insert review: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (r *reviewRepository) GetByID(ctx context.Context, organizationID, id uuid.UUID) (*models.Review, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	rv, err := scanReview(scope.Conn.QueryRow(ctx, `
		SELECT `+reviewColumns+` FROM reviews
		WHERE organization_id = $1 AND id = $2`, organizationID, id))
	if err != nil {
		return nil, notFound(err, "review")
	}
	return rv, nil
}

func (r *reviewRepository) ExistingExternalIDs(ctx context.Context, businessID uuid.UUID, platform string, externalIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(externalIDs) == 0 {
		return existing, nil
	}

	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT external_id FROM reviews
		WHERE business_id = $1 AND platform = $2 AND external_id = ANY($3)`,
		businessID, platform, externalIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing reviews: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan external id: %w", err)
		}
		existing[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating external ids: %w", err)
	}
	return existing, nil
}

// buildReviewWhere renders the filter into a WHERE clause starting at placeholder $1.
// Columns are qualified with alias when it is non-empty.
func buildReviewWhere(alias string, organizationID uuid.UUID, f *models.ReviewFilter) (string, []any) {
	col := func(name string) string {
		if alias == "" {
			return name
		}
		return alias + "." + name
	}
	conds := []string{col("organization_id") + " = $1"}
	args := []any{organizationID}
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(args))))
	}

	if f.BusinessID != uuid.Nil {
		add(col("business_id")+" = ?", f.BusinessID)
	}
	if f.LocationIDs != nil {
		add(col("location_id")+" = ANY(?)", f.LocationIDs)
	}
	if f.Platform != "" {
		add(col("platform")+" = ?", f.Platform)
	}
	if f.MinRating > 0 {
		add(col("rating")+" >= ?", f.MinRating)
	}
	if f.MaxRating > 0 {
		add(col("rating")+" <= ?", f.MaxRating)
	}
	if f.Sentiment != "" {
		add(col("sentiment")+" = ?", f.Sentiment)
	}
	if f.Responded != nil {
		if *f.Responded {
			conds = append(conds, col("response_text")+" IS NOT NULL")
		} else {
			conds = append(conds, col("response_text")+" IS NULL")
		}
	}
	if f.Search != "" {
		add("("+col("text")+" ILIKE ? OR "+col("reviewer_name")+" ILIKE ?)", "%"+escapeLike(f.Search)+"%")
	}
	return strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *reviewRepository) List(ctx context.Context, organizationID uuid.UUID, filter *models.ReviewFilter) ([]*models.Review, int, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, 0, err
	}

	where, args := buildReviewWhere("", organizationID, filter)

	var total int
	if err := scope.Conn.QueryRow(ctx, `SELECT COUNT(*) FROM reviews WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count reviews: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := max(filter.Offset, 0)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM reviews WHERE %s ORDER BY posted_at DESC, id LIMIT $%d OFFSET $%d`,
		reviewColumns, where, len(args)-1, len(args))

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reviews: %w", err)
	}
	reviews, err := collectReviews(rows)
	if err != nil {
		return nil, 0, err
	}
	return reviews, total, nil
}

func (r *reviewRepository) Unanswered(ctx context.Context, businessID uuid.UUID, platforms []string, minRating, limit int) ([]*models.Review, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT `+reviewColumns+` FROM reviews
		WHERE business_id = $1 AND response_text IS NULL AND platform = ANY($2) AND rating >= $3
		ORDER BY posted_at
		LIMIT $4`, businessID, platforms, minRating, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unanswered reviews: %w", err)
	}
	return collectReviews(rows)
}

func (r *reviewRepository) Recent(ctx context.Context, businessID uuid.UUID, limit int) ([]*models.Review, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT `+reviewColumns+` FROM reviews
		WHERE business_id = $1
		ORDER BY posted_at DESC
		LIMIT $2`, businessID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent reviews: %w", err)
	}
	return collectReviews(rows)
}

func (r *reviewRepository) SetResponse(ctx context.Context, organizationID, id uuid.UUID, text string, byAI bool, at time.Time) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE reviews
		SET response_text = $3, response_date = $4, responded_by_ai = $5, updated_at = now()
		WHERE organization_id = $1 AND id = $2`, organizationID, id, text, at, byAI)
	if err != nil {
		return fmt.Errorf("failed to store review response: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *reviewRepository) UpdateSentiment(ctx context.Context, organizationID, id uuid.UUID, sentiment string) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE reviews SET sentiment = $3, updated_at = now()
		WHERE organization_id = $1 AND id = $2`, organizationID, id, sentiment)
	if err != nil {
		return fmt.Errorf("failed to update sentiment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *reviewRepository) Stats(ctx context.Context, organizationID, businessID uuid.UUID, locationIDs []uuid.UUID) (*models.ReviewStats, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	where, args := buildReviewWhere("", organizationID, &models.ReviewFilter{BusinessID: businessID, LocationIDs: locationIDs})
	stats := &models.ReviewStats{
		RatingDistribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
		Sentiment: map[string]int{
			models.SentimentPositive: 0,
			models.SentimentNeutral:  0,
			models.SentimentNegative: 0,
		},
		ByPlatform:   make(map[string]*models.PlatformStats),
		ByLocation:   make([]*models.LocationStats, 0),
		MonthlyTrend: make([]*models.MonthlyStats, 0),
	}

	var responded int
	err = scope.Conn.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(AVG(rating), 0)::float8, COUNT(*) FILTER (WHERE response_text IS NOT NULL)
		FROM reviews WHERE `+where, args...).Scan(&stats.TotalReviews, &stats.AverageRating, &responded)
	if err != nil {
		return nil, fmt.Errorf("failed to compute review totals: %w", err)
	}
	if stats.TotalReviews > 0 {
		stats.ResponseRate = float64(responded) / float64(stats.TotalReviews)
	}

	if err := r.groupCounts(ctx, scope.Conn, `SELECT rating, COUNT(*) FROM reviews WHERE `+where+` GROUP BY rating`, args,
		func(rows pgx.Rows) error {
			var rating, n int
			if err := rows.Scan(&rating, &n); err != nil {
				return err
			}
			stats.RatingDistribution[rating] = n
			return nil
		}); err != nil {
		return nil, err
	}

	if err := r.groupCounts(ctx, scope.Conn, `SELECT sentiment, COUNT(*) FROM reviews WHERE `+where+` GROUP BY sentiment`, args,
		func(rows pgx.Rows) error {
			var s string
			var n int
			if err := rows.Scan(&s, &n); err != nil {
				return err
			}
			stats.Sentiment[s] = n
			return nil
		}); err != nil {
		return nil, err
	}

	if err := r.groupCounts(ctx, scope.Conn, `
		SELECT platform, COUNT(*), AVG(rating)::float8 FROM reviews WHERE `+where+` GROUP BY platform`, args,
		func(rows pgx.Rows) error {
			var p string
			ps := &models.PlatformStats{}
			if err := rows.Scan(&p, &ps.Count, &ps.AverageRating); err != nil {
				return err
			}
			stats.ByPlatform[p] = ps
			return nil
		}); err != nil {
		return nil, err
	}

	locWhere, _ := buildReviewWhere("r", organizationID, &models.ReviewFilter{BusinessID: businessID, LocationIDs: locationIDs})
	if err := r.groupCounts(ctx, scope.Conn, `
		SELECT l.id, l.name, COUNT(*), AVG(r.rating)::float8
		FROM reviews r JOIN locations l ON l.id = r.location_id
		WHERE `+locWhere+`
		GROUP BY l.id, l.name
		ORDER BY l.name`, args,
		func(rows pgx.Rows) error {
			ls := &models.LocationStats{}
			if err := rows.Scan(&ls.LocationID, &ls.Name, &ls.Count, &ls.AverageRating); err != nil {
				return err
			}
			stats.ByLocation = append(stats.ByLocation, ls)
			return nil
		}); err != nil {
		return nil, err
	}

	if err := r.groupCounts(ctx, scope.Conn, `
		SELECT to_char(date_trunc('month', posted_at AT TIME ZONE 'UTC'), 'YYYY-MM') AS month,
		       COUNT(*), AVG(rating)::float8
		FROM reviews
		WHERE `+where+` AND posted_at >= date_trunc('month', now() AT TIME ZONE 'UTC') - interval '11 months'
		GROUP BY month
		ORDER BY month`, args,
		func(rows pgx.Rows) error {
			ms := &models.MonthlyStats{}
			if err := rows.Scan(&ms.Month, &ms.Count, &ms.AverageRating); err != nil {
				return err
			}
			stats.MonthlyTrend = append(stats.MonthlyTrend, ms)
			return nil
		}); err != nil {
		return nil, err
	}

	return stats, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *reviewRepository) groupCounts(ctx context.Context, q querier, query string, args []any, scan func(pgx.Rows) error) error {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to compute review stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("failed to scan review stats: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating review stats: %w", err)
	}
	return nil
}

var _ ReviewRepository = (*reviewRepository)(nil)
