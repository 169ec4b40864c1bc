package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"storybook-server/internal/models"
)

// Compile-time check to ensure pgStoryRepository implements StoryRepository
var _ StoryRepository = (*pgStoryRepository)(nil)

type pgStoryRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgStoryRepository creates a new PostgreSQL-backed StoryRepository.
func NewPgStoryRepository(db DBTX, logger *zap.Logger) StoryRepository {
	return &pgStoryRepository{
		db:     db,
		logger: logger.Named("PgStoryRepo"),
	}
}

// storyRow mirrors the stories table; pages stays raw JSONB until decoded.
type storyRow struct {
	ID         uuid.UUID  `db:"id"`
	UserID     *uuid.UUID `db:"user_id"`
	Title      string     `db:"title"`
	ChildName  string     `db:"child_name"`
	ChildAge   int        `db:"child_age"`
	Theme      string     `db:"theme"`
	Language   string     `db:"language"`
	Pages      []byte     `db:"pages"`
	Status     string     `db:"status"`
	Visibility string     `db:"visibility"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
}

func (row *storyRow) toModel() (*models.Story, error) {
	pages := make([]models.StoryPage, 0)
	if len(row.Pages) > 0 {
		if err := json.Unmarshal(row.Pages, &pages); err != nil {
			return nil, fmt.Errorf("failed to decode story pages: %w", err)
		}
	}
	return &models.Story{
		ID:         row.ID,
		UserID:     row.UserID,
		Title:      row.Title,
		ChildName:  row.ChildName,
		ChildAge:   row.ChildAge,
		Theme:      row.Theme,
		Language:   row.Language,
		Pages:      pages,
		Status:     models.StoryStatus(row.Status),
		Visibility: models.StoryVisibility(row.Visibility),
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}, nil
}

const storyColumns = `id, user_id, title, child_name, child_age, theme, language, pages, status, visibility, created_at, updated_at`

// CreateStory inserts a new story record.
func (r *pgStoryRepository) CreateStory(ctx context.Context, story *models.Story) error {
	pages, err := json.Marshal(story.Pages)
	if err != nil {
		return fmt.Errorf("failed to encode story pages: %w", err)
	}
	query := `INSERT INTO stories (id, user_id, title, child_name, child_age, theme, language, pages, status, visibility)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	          RETURNING created_at, updated_at`
	err = r.db.QueryRow(ctx, query,
		story.ID, story.UserID, story.Title, story.ChildName, story.ChildAge,
		story.Theme, story.Language, pages, string(story.Status), string(story.Visibility),
	).Scan(&story.CreatedAt, &story.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create story in postgres", zap.Error(err), zap.String("storyID", story.ID.String()))
		return fmt.Errorf("failed to create story in postgres: %w", err)
	}
	return nil
}

// UpdateStory persists the mutable parts of a story: title, pages, status,
// visibility.
func (r *pgStoryRepository) UpdateStory(ctx context.Context, story *models.Story) error {
	pages, err := json.Marshal(story.Pages)
	if err != nil {
		return fmt.Errorf("failed to encode story pages: %w", err)
	}
	query := `UPDATE stories
	          SET title = $2, pages = $3, status = $4, visibility = $5, updated_at = now()
	          WHERE id = $1
	          RETURNING updated_at`
	err = r.db.QueryRow(ctx, query,
		story.ID, story.Title, pages, string(story.Status), string(story.Visibility),
	).Scan(&story.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrStoryNotFound
		}
		r.logger.Error("Failed to update story in postgres", zap.Error(err), zap.String("storyID", story.ID.String()))
		return fmt.Errorf("failed to update story in postgres: %w", err)
	}
	return nil
}

// GetStoryByID retrieves a single story.
func (r *pgStoryRepository) GetStoryByID(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	query := `SELECT ` + storyColumns + ` FROM stories WHERE id = $1`
	var row storyRow
	if err := pgxscan.Get(ctx, r.db, &row, query, id); err != nil {
		if pgxscan.NotFound(err) {
			return nil, models.ErrStoryNotFound
		}
		r.logger.Error("Failed to get story from postgres", zap.Error(err), zap.String("storyID", id.String()))
		return nil, fmt.Errorf("failed to get story from postgres: %w", err)
	}
	return row.toModel()
}

// ListStoriesByUser returns a user's stories, newest first.
func (r *pgStoryRepository) ListStoriesByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Story, error) {
	query := `SELECT ` + storyColumns + ` FROM stories WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	var rows []storyRow
	if err := pgxscan.Select(ctx, r.db, &rows, query, userID, limit, offset); err != nil {
		r.logger.Error("Failed to list stories from postgres", zap.Error(err), zap.String("userID", userID.String()))
		return nil, fmt.Errorf("failed to list stories from postgres: %w", err)
	}

	stories := make([]models.Story, 0, len(rows))
	for i := range rows {
		story, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		stories = append(stories, *story)
	}
	return stories, nil
}
