package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"imgsquare/internal/fetch"
	"imgsquare/internal/imageproc"
	"imgsquare/internal/metrics"
	"imgsquare/internal/model"
	"imgsquare/internal/repository"
	"imgsquare/internal/storage"
)

const (
	DefaultMaxFiles     = 10
	DefaultMaxFileBytes = int64(10 * 1024 * 1024)

	keyPrefix = "squares/"
)

var (
	ErrNoInput         = errors.New("no file or image url provided")
	ErrTooManyFiles    = errors.New("too many files")
	ErrSourceURL       = errors.New("source url could not be processed")
	ErrFileTooLarge    = errors.New("file exceeds size limit")
	ErrHistoryDisabled = errors.New("upload history is disabled")
	ErrIDRequired      = errors.New("id is required")
	ErrNotFound        = errors.New("image not found")
	ErrBackendMismatch = errors.New("image is hosted on a different backend")
)

var tracer = otel.Tracer("imgsquare/internal/service")

// FileInput is one uploaded file. Open is called at most once.
type FileInput struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// ProcessRequest carries everything a single POST /upload submitted.
type ProcessRequest struct {
	Files     []FileInput
	SourceURL string
}

// ImageListResult is the service-level DTO for paginated upload history.
type ImageListResult struct {
	Items []model.Image `json:"data"`
	Total int           `json:"total"`
}

// ImageService defines the use cases for normalizing and hosting images.
type ImageService interface {
	// Process normalizes and hosts every file, then the source URL if present.
	// A failing file is reported in UploadResult.Failures and does not stop the
	// remaining files. A failing source URL fails the whole call with ErrSourceURL.
	Process(ctx context.Context, req ProcessRequest) (*model.UploadResult, error)

	// List returns upload history using limit/offset and a total count.
	List(ctx context.Context, limit, offset int) (*ImageListResult, error)

	// Get returns a single history record by its ID.
	Get(ctx context.Context, id string) (*model.Image, error)

	// Delete removes an image from the hosting backend and from history.
	Delete(ctx context.Context, id string) error
}

// Deps are the collaborators of the image service. Repo and Metrics may be nil.
type Deps struct {
	Store       storage.Storage
	Repo        repository.ImageRepository
	Transformer imageproc.Transformer
	Fetcher     fetch.Fetcher
	Metrics     *metrics.Pipeline
}

// Options bound the work done per request.
type Options struct {
	MaxFiles     int
	MaxFileBytes int64
}

type imageService struct {
	store       storage.Storage
	repo        repository.ImageRepository
	transformer imageproc.Transformer
	fetcher     fetch.Fetcher
	metrics     *metrics.Pipeline
	opts        Options
}

// NewImageService constructs a new ImageService.
func NewImageService(d Deps, opts Options) ImageService {
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultMaxFiles
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = DefaultMaxFileBytes
	}
	return &imageService{
		store:       d.Store,
		repo:        d.Repo,
		transformer: d.Transformer,
		fetcher:     d.Fetcher,
		metrics:     d.Metrics,
		opts:        opts,
	}
}

func (s *imageService) Process(ctx context.Context, req ProcessRequest) (*model.UploadResult, error) {
	sourceURL := strings.TrimSpace(req.SourceURL)
	if len(req.Files) == 0 && sourceURL == "" {
		return nil, ErrNoInput
	}
	if len(req.Files) > s.opts.MaxFiles {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyFiles, len(req.Files), s.opts.MaxFiles)
	}

	res := &model.UploadResult{Links: make([]string, 0, len(req.Files)+1)}

	for _, f := range req.Files {
		link, err := s.processFile(ctx, f)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("file", f.Name).Msg("error processing file")
			s.metrics.Processed(model.SourceUpload, metrics.OutcomeFailure)
			res.Failures = append(res.Failures, model.ItemFailure{
				Source: model.SourceUpload,
				Name:   f.Name,
				Reason: failureReason(err),
			})
			continue
		}
		s.metrics.Processed(model.SourceUpload, metrics.OutcomeSuccess)
		res.Links = append(res.Links, link)
	}

	if sourceURL != "" {
		link, err := s.processURL(ctx, sourceURL)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("url", sourceURL).Msg("error processing url")
			s.metrics.Processed(model.SourceURL, metrics.OutcomeFailure)
			return nil, fmt.Errorf("%w: %w", ErrSourceURL, err)
		}
		s.metrics.Processed(model.SourceURL, metrics.OutcomeSuccess)
		res.Links = append(res.Links, link)
	}

	if n := len(res.Links); n > 0 {
		last := res.Links[n-1]
		res.ImageURL = &last
	}
	return res, nil
}

func (s *imageService) processFile(ctx context.Context, f FileInput) (string, error) {
	if f.Size > s.opts.MaxFileBytes {
		return "", ErrFileTooLarge
	}
	if f.Open == nil {
		return "", errors.New("file is not readable")
	}

	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, s.opts.MaxFileBytes+1))
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) > s.opts.MaxFileBytes {
		return "", ErrFileTooLarge
	}

	return s.host(ctx, model.SourceUpload, f.Name, data)
}

func (s *imageService) processURL(ctx context.Context, sourceURL string) (string, error) {
	data, err := s.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	return s.host(ctx, model.SourceURL, sourceURL, data)
}

// host normalizes data, uploads it, and records it in history when enabled.
// If the history insert fails the hosted object is removed again.
func (s *imageService) host(ctx context.Context, source, name string, data []byte) (string, error) {
	ctx, span := tracer.Start(ctx, "image.host")
	defer span.End()
	span.SetAttributes(
		attribute.String("image.source", source),
		attribute.Int("image.input_bytes", len(data)),
		attribute.String("storage.backend", s.store.Name()),
	)

	sq, err := s.transformer.Square(ctx, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "normalize")
		return "", fmt.Errorf("normalize image: %w", err)
	}

	key := keyPrefix + uuid.NewString() + ".jpg"
	start := time.Now()
	obj, err := s.store.Put(ctx, key, bytes.NewReader(sq.Data), storage.PutObjectOptions{
		Size:        int64(len(sq.Data)),
		ContentType: sq.ContentType,
		Metadata: map[string]string{
			"source":            source,
			"original-filename": sanitizeMetadata(name),
		},
	})
	s.metrics.ObserveUpload(s.store.Name(), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload")
		return "", fmt.Errorf("upload to storage: %w", err)
	}

	if s.repo != nil {
		size := obj.Size
		if size <= 0 {
			size = int64(len(sq.Data))
		}
		ct := obj.ContentType
		if ct == "" {
			ct = sq.ContentType
		}
		_, err := s.repo.Create(ctx, &model.Image{
			ID:           uuid.New().String(),
			PublicID:     obj.Key,
			URL:          obj.URL,
			Source:       source,
			OriginalName: name,
			Width:        sq.Width,
			Height:       sq.Height,
			Size:         size,
			ContentType:  ct,
			Backend:      s.store.Name(),
			CreatedAt:    time.Now().UTC(),
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "record")
			if delErr := s.store.Delete(ctx, obj.Key); delErr != nil {
				return "", fmt.Errorf("db save failed: %v; rollback delete failed: %v", err, delErr)
			}
			return "", fmt.Errorf("db save failed: %w", err)
		}
	}

	log.Ctx(ctx).Info().
		Str("source", source).
		Str("key", obj.Key).
		Str("backend", s.store.Name()).
		Msg("image hosted")
	return obj.URL, nil
}

// List returns paginated history without exposing repository types.
func (s *imageService) List(ctx context.Context, limit, offset int) (*ImageListResult, error) {
	if s.repo == nil {
		return nil, ErrHistoryDisabled
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.repo.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &ImageListResult{Items: res.Items, Total: res.Total}, nil
}

// Get returns a history record by ID.
func (s *imageService) Get(ctx context.Context, id string) (*model.Image, error) {
	if s.repo == nil {
		return nil, ErrHistoryDisabled
	}
	if id == "" {
		return nil, ErrIDRequired
	}
	img, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return img, nil
}

// Delete removes the hosted object first, then its history row.
func (s *imageService) Delete(ctx context.Context, id string) error {
	img, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if img.Backend != "" && img.Backend != s.store.Name() {
		return fmt.Errorf("%w: %s", ErrBackendMismatch, img.Backend)
	}
	// If the host delete fails the row is kept so the object is not orphaned.
	if err := s.store.Delete(ctx, img.PublicID); err != nil {
		return fmt.Errorf("delete storage: %w", err)
	}
	return s.repo.Delete(ctx, id)
}

// failureReason maps an item error to a message that is safe to show callers.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrFileTooLarge):
		return "file exceeds size limit"
	case errors.Is(err, imageproc.ErrEmptyImage):
		return "file is empty"
	case errors.Is(err, imageproc.ErrUnsupportedImage):
		return "unsupported image format"
	default:
		return "upload failed"
	}
}

// sanitizeMetadata strips characters that some hosts treat as separators.
func sanitizeMetadata(v string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '=', '|', '\n', '\r':
			return '_'
		}
		return r
	}, v)
}
