package repository

import (
	"context"

	"imgsquare/internal/model"
)

// ImageRepository persists upload history using SQL queries only.
type ImageRepository interface {
	// Create inserts a new image record and returns the stored row.
	Create(ctx context.Context, img *model.Image) (*model.Image, error)

	// FindByID returns an image by its ID.
	FindByID(ctx context.Context, id string) (*model.Image, error)

	// List returns a paginated list of images, newest first, and the total row count.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.Image], error)

	// Delete removes an image by ID. It returns nil if the row was deleted or did not exist.
	Delete(ctx context.Context, id string) error
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
type PageResult[T any] struct {
	Items []T
	Total int
}
