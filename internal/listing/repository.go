package listing

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	pkgerrors "certpipe/pkg/errors"
	"certpipe/pkg/metrics"
)

type Repository interface {
	Insert(ctx context.Context, listing *TradeListing) error
	ExistsByContent(ctx context.Context, originalText string) (bool, error)
	QueryByGroup(ctx context.Context, groupID string, limit int) ([]TradeListing, error)
	QueryByCertificate(ctx context.Context, certificate string, limit int) ([]TradeListing, error)
	Stats(ctx context.Context) (*Stats, error)
	PurgeOlderThan(ctx context.Context, days int) (int64, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, listing *TradeListing) error {
	start := time.Now()
	defer func() {
		metrics.ObserveDatabaseQueryDuration("listing", "postgres", "insert_listing", time.Since(start))
	}()

	if listing.ID == "" {
		listing.ID = uuid.New().String()
	}
	if listing.CreatedAt.IsZero() {
		listing.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO trade_listings (
			id, deal_type, certificates_raw, split_certificates,
			social_security_terms, location, price, other_info,
			original_text, group_id, sender_id, message_id,
			group_name, sender_nickname, received_at, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.db.ExecContext(ctx, query,
		listing.ID, listing.DealType, listing.CertificatesRaw, pq.Array(listing.SplitCertificates),
		listing.SocialSecurityTerms, listing.Location, listing.Price, listing.OtherInfo,
		listing.OriginalText, listing.GroupID, listing.SenderID, listing.MessageID,
		listing.GroupName, listing.SenderNickname, listing.ReceivedAt, listing.CreatedAt,
	)
	if err != nil {
		metrics.IncDatabaseQuery("listing", "postgres", "insert_listing", "error")
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" {
				return pkgerrors.ErrConflict.WithCause(err).WithDetail("message", fmt.Sprintf("listing '%s' already exists", listing.ID))
			}
		}
		if strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "unique constraint") {
			return pkgerrors.ErrConflict.WithCause(err).WithDetail("message", fmt.Sprintf("listing '%s' already exists", listing.ID))
		}
		return fmt.Errorf("failed to insert listing: %w", err)
	}

	metrics.IncDatabaseQuery("listing", "postgres", "insert_listing", "success")
	return nil
}

func (r *PostgresRepository) ExistsByContent(ctx context.Context, originalText string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM trade_listings WHERE original_text = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, originalText).Scan(&exists); err != nil {
		metrics.IncDatabaseQuery("listing", "postgres", "exists_by_content", "error")
		return false, fmt.Errorf("failed to check listing content: %w", err)
	}

	metrics.IncDatabaseQuery("listing", "postgres", "exists_by_content", "success")
	return exists, nil
}

func (r *PostgresRepository) QueryByGroup(ctx context.Context, groupID string, limit int) ([]TradeListing, error) {
	query := selectColumns + `
		WHERE group_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, groupID, limit)
	if err != nil {
		metrics.IncDatabaseQuery("listing", "postgres", "query_by_group", "error")
		return nil, fmt.Errorf("failed to query listings by group: %w", err)
	}
	defer rows.Close()

	listings, err := scanListings(ctx, rows)
	if err != nil {
		metrics.IncDatabaseQuery("listing", "postgres", "query_by_group", "error")
		return nil, err
	}

	metrics.IncDatabaseQuery("listing", "postgres", "query_by_group", "success")
	return listings, nil
}

func (r *PostgresRepository) QueryByCertificate(ctx context.Context, certificate string, limit int) ([]TradeListing, error) {
	query := selectColumns + `
		WHERE $1 = ANY(split_certificates)
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, certificate, limit)
	if err != nil {
		metrics.IncDatabaseQuery("listing", "postgres", "query_by_certificate", "error")
		return nil, fmt.Errorf("failed to query listings by certificate: %w", err)
	}
	defer rows.Close()

	listings, err := scanListings(ctx, rows)
	if err != nil {
		metrics.IncDatabaseQuery("listing", "postgres", "query_by_certificate", "error")
		return nil, err
	}

	metrics.IncDatabaseQuery("listing", "postgres", "query_by_certificate", "success")
	return listings, nil
}

func (r *PostgresRepository) Stats(ctx context.Context) (*Stats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(DISTINCT group_id),
			COUNT(DISTINCT sender_id),
			COUNT(*) FILTER (WHERE array_length(split_certificates, 1) > 0),
			COALESCE(AVG(price) FILTER (WHERE price > 0), 0),
			MAX(created_at)
		FROM trade_listings
	`

	var stats Stats
	var latest sql.NullTime
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalListings, &stats.UniqueGroups, &stats.UniqueSenders,
		&stats.ListingsWithCertificates, &stats.AveragePrice, &latest,
	)
	if err != nil {
		metrics.IncDatabaseQuery("listing", "postgres", "listing_stats", "error")
		return nil, fmt.Errorf("failed to compute listing stats: %w", err)
	}
	if latest.Valid {
		t := latest.Time
		stats.LatestListingAt = &t
	}

	metrics.IncDatabaseQuery("listing", "postgres", "listing_stats", "success")
	return &stats, nil
}

func (r *PostgresRepository) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, pkgerrors.ErrValidation.WithDetail("message", "retention days must be positive")
	}

	query := `DELETE FROM trade_listings WHERE created_at < NOW() - ($1 || ' days')::INTERVAL`

	res, err := r.db.ExecContext(ctx, query, days)
	if err != nil {
		metrics.IncDatabaseQuery("listing", "postgres", "purge_listings", "error")
		return 0, fmt.Errorf("failed to purge old listings: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged listings: %w", err)
	}

	metrics.IncDatabaseQuery("listing", "postgres", "purge_listings", "success")
	return deleted, nil
}

const selectColumns = `
	SELECT id, deal_type, certificates_raw, split_certificates,
		social_security_terms, location, price, other_info,
		original_text, group_id, sender_id, message_id,
		group_name, sender_nickname, received_at, created_at
	FROM trade_listings
`

func scanListings(ctx context.Context, rows *sql.Rows) ([]TradeListing, error) {
	var listings []TradeListing
	for rows.Next() {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		var l TradeListing
		if err := rows.Scan(
			&l.ID, &l.DealType, &l.CertificatesRaw, pq.Array(&l.SplitCertificates),
			&l.SocialSecurityTerms, &l.Location, &l.Price, &l.OtherInfo,
			&l.OriginalText, &l.GroupID, &l.SenderID, &l.MessageID,
			&l.GroupName, &l.SenderNickname, &l.ReceivedAt, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read listings: %w", err)
	}
	return listings, nil
}
