package postgres

import (
	"context"
	"database/sql"

	"imgsquare/internal/model"
	"imgsquare/internal/repository"
)

const imageColumns = `id, public_id, url, source, original_name, width, height, size, content_type, backend, created_at`

// ImagePostgres is a PostgreSQL implementation of repository.ImageRepository.
type ImagePostgres struct {
	db *sql.DB
}

// NewImagePostgres creates a new ImagePostgres repository.
func NewImagePostgres(db *sql.DB) *ImagePostgres {
	return &ImagePostgres{db: db}
}

var _ repository.ImageRepository = (*ImagePostgres)(nil)

type scanner interface {
	Scan(dest ...any) error
}

func scanImage(s scanner) (*model.Image, error) {
	var img model.Image
	if err := s.Scan(
		&img.ID,
		&img.PublicID,
		&img.URL,
		&img.Source,
		&img.OriginalName,
		&img.Width,
		&img.Height,
		&img.Size,
		&img.ContentType,
		&img.Backend,
		&img.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &img, nil
}

// Create inserts a new image row and returns the stored record.
func (r *ImagePostgres) Create(ctx context.Context, img *model.Image) (*model.Image, error) {
	const q = `
		INSERT INTO images (` + imageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + imageColumns
	row := r.db.QueryRowContext(ctx, q,
		img.ID,
		img.PublicID,
		img.URL,
		img.Source,
		img.OriginalName,
		img.Width,
		img.Height,
		img.Size,
		img.ContentType,
		img.Backend,
		img.CreatedAt,
	)
	return scanImage(row)
}

// FindByID fetches a single image by its ID. sql.ErrNoRows is returned unchanged.
func (r *ImagePostgres) FindByID(ctx context.Context, id string) (*model.Image, error) {
	const q = `SELECT ` + imageColumns + ` FROM images WHERE id = $1`
	return scanImage(r.db.QueryRowContext(ctx, q, id))
}

// List returns images using LIMIT/OFFSET pagination and a total count.
func (r *ImagePostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Image], error) {
	const qCount = `SELECT COUNT(*) FROM images`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT ` + imageColumns + `
		FROM images
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, qList, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Image, 0)
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *img)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Image]{
		Items: items,
		Total: total,
	}, nil
}

// Delete removes an image by ID. It does not return an error if the row does not exist.
func (r *ImagePostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM images WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}
