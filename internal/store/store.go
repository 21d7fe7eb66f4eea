// Package store persists intake history and the specialty-recommendation
// cache behind a driver-agnostic interface.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/theyagu56/pathways-agent/internal/model"
)

// IntakeFilter specifies criteria for listing intakes.
type IntakeFilter struct {
	Status model.IntakeStatus `json:"status,omitempty"`
	Source model.IntakeSource `json:"source,omitempty"`
	Limit  int                `json:"limit,omitempty"`
	Offset int                `json:"offset,omitempty"`
}

// Store defines persistence for the intake pipeline.
type Store interface {
	// Intakes
	CreateIntake(ctx context.Context, source model.IntakeSource, rawText string) (*model.Intake, error)
	UpdateIntakeStatus(ctx context.Context, intakeID string, status model.IntakeStatus) error
	UpdateIntakeResult(ctx context.Context, intakeID string, result *model.IntakeResult) error
	GetIntake(ctx context.Context, intakeID string) (*model.Intake, error)
	ListIntakes(ctx context.Context, filter IntakeFilter) ([]model.Intake, error)

	// Specialty recommendation cache
	GetCachedRecommendation(ctx context.Context, key string) ([]string, error)
	SetCachedRecommendation(ctx context.Context, key string, specialties []string, ttl time.Duration) error
	DeleteExpiredRecommendations(ctx context.Context) (int, error)
	ClearRecommendationCache(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// RecommendationKey derives a stable cache key from an injury description.
// Case and surrounding whitespace do not change the key.
func RecommendationKey(injury string) string {
	normalized := strings.ToLower(strings.TrimSpace(injury))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
