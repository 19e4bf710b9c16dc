// Package testutil provides shared test helpers for the trigger engine.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Annas82200/mizan-backend-sub010/internal/domain"
)

// FakeClock provides deterministic time for testing.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
}

// NewFakeClock creates a FakeClock set to the given time.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{current: t}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// TestContext returns a context with a 5-second timeout.
// The context is cancelled when the test completes.
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// MustParseUUID parses a UUID string and panics on error.
// Only for use in tests.
func MustParseUUID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		panic("testutil.MustParseUUID: " + err.Error())
	}
	return id
}

// SnapshotBuilder assembles snapshot fixtures.
type SnapshotBuilder struct {
	snap domain.Snapshot
}

// NewSnapshot starts a builder for a tenant with a fresh snapshot ID.
func NewSnapshot(tenantID uuid.UUID) *SnapshotBuilder {
	return &SnapshotBuilder{snap: domain.Snapshot{
		ID:       uuid.New(),
		TenantID: tenantID,
		TakenAt:  time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Scores:   make(map[string]domain.CategoryScore),
	}}
}

// WithScore sets a category's overall score.
func (b *SnapshotBuilder) WithScore(category string, overall float64) *SnapshotBuilder {
	s := b.snap.Scores[category]
	s.Overall = overall
	b.snap.Scores[category] = s
	return b
}

// WithMetric sets one metric within a category.
func (b *SnapshotBuilder) WithMetric(category, metric string, value float64) *SnapshotBuilder {
	s := b.snap.Scores[category]
	if s.Metrics == nil {
		s.Metrics = make(map[string]float64)
	}
	s.Metrics[metric] = value
	b.snap.Scores[category] = s
	return b
}

// WithRecommendation appends a recommendation.
func (b *SnapshotBuilder) WithRecommendation(category, title string) *SnapshotBuilder {
	b.snap.Recommendations = append(b.snap.Recommendations, domain.Recommendation{
		Category: category,
		Title:    title,
	})
	return b
}

// Build returns the assembled snapshot.
func (b *SnapshotBuilder) Build() domain.Snapshot {
	return b.snap
}
