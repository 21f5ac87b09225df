package scraper

import (
	"context"

	"subscraper/pkg/models"
	"subscraper/pkg/pushshift"
)

// SearchClient defines the bulk search operation the walker depends on
type SearchClient interface {
	Search(ctx context.Context, q pushshift.Query) (*pushshift.SearchResult, error)
}

// LiveLookup defines the live lookup operation the enricher depends on.
// It accepts at most 100 fullnames and may return things in any order,
// omitting those that no longer exist.
type LiveLookup interface {
	Info(ctx context.Context, fullnames []string) ([]models.Thing, error)
}
