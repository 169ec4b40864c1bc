package models

import (
	"time"

	"github.com/google/uuid"
)

// StoryStatus is the lifecycle state of a generated story.
type StoryStatus string

const (
	StoryStatusPending  StoryStatus = "pending"
	StoryStatusComplete StoryStatus = "complete"
	StoryStatusFailed   StoryStatus = "failed"
)

// StoryVisibility controls whether a story shows up in public listings.
type StoryVisibility string

const (
	StoryVisibilityListed   StoryVisibility = "listed"
	StoryVisibilityUnlisted StoryVisibility = "unlisted"
)

// PageStatus records how the page's illustration was obtained.
type PageStatus string

const (
	PageStatusGenerated   PageStatus = "generated"
	PageStatusPlaceholder PageStatus = "placeholder"
)

// StoryRequest carries the user's input for one generation run.
type StoryRequest struct {
	ChildName string `json:"childName" binding:"required"`
	ChildAge  int    `json:"childAge" binding:"required,min=1,max=14"`
	Theme     string `json:"theme" binding:"required"`
	Language  string `json:"language"`
	PageCount int    `json:"pageCount" binding:"required,min=1,max=20"`
}

// StoryPage is one finalized page of a story. ImageURL is never empty once
// the page is finalized: it is either a real illustration or a placeholder.
type StoryPage struct {
	PageNumber int        `json:"pageNumber"` // 1-based, contiguous
	Text       string     `json:"text"`
	ImageURL   string     `json:"imageUrl"`
	Status     PageStatus `json:"status"`
}

// Story is a generated illustrated story. UserID is nullable to keep legacy
// content whose author account no longer exists readable.
type Story struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	UserID     *uuid.UUID      `db:"user_id" json:"userId,omitempty"`
	Title      string          `db:"title" json:"title"`
	ChildName  string          `db:"child_name" json:"childName"`
	ChildAge   int             `db:"child_age" json:"childAge"`
	Theme      string          `db:"theme" json:"theme"`
	Language   string          `db:"language" json:"language"`
	Pages      []StoryPage     `db:"pages" json:"pages"`
	Status     StoryStatus     `db:"status" json:"status"`
	Visibility StoryVisibility `db:"visibility" json:"visibility"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updatedAt"`
}
