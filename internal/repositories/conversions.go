package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/melodari/internal/models"
	"github.com/desertthunder/melodari/internal/shared"
)

// DefaultHistoryLimit bounds [ConversionRepository.List] when no limit is given.
const DefaultHistoryLimit = 20

// ConversionRepository records the history of playlist conversions per profile.
type ConversionRepository struct {
	db *sql.DB
}

// NewConversionRepository creates a new [ConversionRepository] with the given database connection
func NewConversionRepository(db *sql.DB) *ConversionRepository {
	return &ConversionRepository{db: db}
}

// Create inserts a conversion with a generated ID and sequence.
func (r *ConversionRepository) Create(ctx context.Context, c *models.Conversion) error {
	if c.ProfileID == "" {
		return fmt.Errorf("%w: profile id", shared.ErrMissingArgument)
	}

	sequence, err := NextSequence(ctx, r.db, "conversions")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	c.ID = shared.GenerateID()
	c.Sequence = sequence
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO conversions (
			id, sequence, profile_id, source, target, source_playlist_id,
			target_playlist_id, title, matched, total, success, error, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		c.ID,
		c.Sequence,
		c.ProfileID,
		string(c.Source),
		string(c.Target),
		c.SourcePlaylistID,
		c.TargetPlaylistID,
		c.Title,
		c.Matched,
		c.Total,
		c.Success,
		c.Error,
		c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversion: %w", err)
	}
	return nil
}

// List returns the most recent conversions of a profile, newest first.
func (r *ConversionRepository) List(ctx context.Context, profileID string, limit int) ([]*models.Conversion, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := `
		SELECT id, sequence, profile_id, source, target, source_playlist_id,
			target_playlist_id, title, matched, total, success, error, created_at
		FROM conversions
		WHERE profile_id = ?
		ORDER BY sequence DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversions: %w", err)
	}
	defer rows.Close()

	conversions := []*models.Conversion{}
	for rows.Next() {
		c, err := scanConversion(rows)
		if err != nil {
			return nil, err
		}
		conversions = append(conversions, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversions: %w", err)
	}
	return conversions, nil
}

func scanConversion(row scanner) (*models.Conversion, error) {
	var (
		c              models.Conversion
		source, target string
	)

	err := row.Scan(&c.ID, &c.Sequence, &c.ProfileID, &source, &target, &c.SourcePlaylistID,
		&c.TargetPlaylistID, &c.Title, &c.Matched, &c.Total, &c.Success, &c.Error, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan conversion: %w", err)
	}

	c.Source = models.Provider(source)
	c.Target = models.Provider(target)
	return &c, nil
}
