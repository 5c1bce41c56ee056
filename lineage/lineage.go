// Package lineage answers "who uploaded this content, and in what order".
package lineage

import (
	"context"
	"strings"

	"credify/apperr"
	"credify/models"
)

// TreeSource builds lineage trees from the graph.
type TreeSource interface {
	ResolveLineageTree(ctx context.Context, contentHash string) (*models.Lineage, error)
}

// Resolver is a read-through wrapper over the graph. Nothing is cached.
type Resolver struct {
	Source TreeSource
}

func NewResolver(src TreeSource) *Resolver {
	return &Resolver{Source: src}
}

// GetLineage returns nil, nil when no content has that hash.
func (r *Resolver) GetLineage(ctx context.Context, contentHash string) (*models.Lineage, error) {
	contentHash = strings.TrimSpace(contentHash)
	if contentHash == "" {
		return nil, apperr.Validation("lineage.GetLineage", "contentHash is required")
	}
	return r.Source.ResolveLineageTree(ctx, contentHash)
}
