package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"imgsquare/internal/config"
)

const cloudinaryResourceType = "image"

// cloudinaryAPI is the subset of *uploader.API used here.
type cloudinaryAPI interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
	Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error)
}

// cloudinaryStorage uploads through the Cloudinary upload API. Cloudinary applies
// the configured incoming transformation, so the stored asset is normalized even
// if the local crop was skipped.
type cloudinaryStorage struct {
	api            cloudinaryAPI
	folder         string
	transformation string
}

// NewCloudinary creates a Cloudinary-backed Storage from API credentials.
func NewCloudinary(cfg config.CloudinaryConfig) (Storage, error) {
	if cfg.CloudName == "" {
		return nil, fmt.Errorf("%w: cloudinary cloud name is required", ErrNotConfigured)
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("%w: cloudinary credentials are required", ErrNotConfigured)
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("create cloudinary client: %w", err)
	}
	cld.Config.URL.Secure = true

	return newCloudinaryStorage(&cld.Upload, cfg), nil
}

func newCloudinaryStorage(a cloudinaryAPI, cfg config.CloudinaryConfig) *cloudinaryStorage {
	return &cloudinaryStorage{
		api:            a,
		folder:         strings.Trim(cfg.Folder, "/"),
		transformation: cfg.Transformation,
	}
}

func (c *cloudinaryStorage) Name() string { return config.DriverCloudinary }

// Put uploads the image and returns its secure URL. The returned key is the
// Cloudinary public id, which already includes the folder.
func (c *cloudinaryStorage) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	if r == nil {
		return ObjectInfo{}, errors.New("reader is nil")
	}

	params := uploader.UploadParams{
		PublicID:       strings.TrimSuffix(key, path.Ext(key)),
		Folder:         c.folder,
		ResourceType:   cloudinaryResourceType,
		Transformation: c.transformation,
		Overwrite:      api.Bool(false),
	}
	if len(opt.Metadata) > 0 {
		params.Context = api.CldAPIMap(opt.Metadata)
	}

	res, err := c.api.Upload(ctx, r, params)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("cloudinary upload: %w", err)
	}
	if res == nil {
		return ObjectInfo{}, errors.New("cloudinary upload: empty response")
	}
	if res.Error.Message != "" {
		return ObjectInfo{}, fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}
	if res.SecureURL == "" {
		return ObjectInfo{}, errors.New("cloudinary upload: missing secure_url")
	}

	ct := opt.ContentType
	switch res.Format {
	case "":
	case "jpg":
		ct = "image/jpeg"
	default:
		ct = "image/" + res.Format
	}
	return ObjectInfo{
		Key:         res.PublicID,
		URL:         res.SecureURL,
		Size:        int64(res.Bytes),
		ContentType: ct,
		Metadata:    opt.Metadata,
	}, nil
}

// Delete destroys the asset identified by its public id.
func (c *cloudinaryStorage) Delete(ctx context.Context, key string) error {
	res, err := c.api.Destroy(ctx, uploader.DestroyParams{
		PublicID:     key,
		ResourceType: cloudinaryResourceType,
	})
	if err != nil {
		return fmt.Errorf("cloudinary destroy: %w", err)
	}
	if res != nil && res.Error.Message != "" {
		return fmt.Errorf("cloudinary destroy: %s", res.Error.Message)
	}
	return nil
}
