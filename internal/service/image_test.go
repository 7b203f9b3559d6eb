package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"

	fetchMocks "imgsquare/internal/fetch/mocks"
	"imgsquare/internal/imageproc"
	procMocks "imgsquare/internal/imageproc/mocks"
	"imgsquare/internal/model"
	"imgsquare/internal/repository"
	repoMocks "imgsquare/internal/repository/mocks"
	"imgsquare/internal/storage"
	storeMocks "imgsquare/internal/storage/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store   *storeMocks.MockStorage
	repo    *repoMocks.MockImageRepository
	proc    *procMocks.MockTransformer
	fetcher *fetchMocks.MockFetcher
}

func newFixture() *fixture {
	f := &fixture{
		store:   new(storeMocks.MockStorage),
		repo:    new(repoMocks.MockImageRepository),
		proc:    new(procMocks.MockTransformer),
		fetcher: new(fetchMocks.MockFetcher),
	}
	f.store.On("Name").Return("cloudinary").Maybe()
	return f
}

func (f *fixture) service(withRepo bool, opts Options) ImageService {
	d := Deps{Store: f.store, Transformer: f.proc, Fetcher: f.fetcher}
	if withRepo {
		d.Repo = f.repo
	}
	return NewImageService(d, opts)
}

func (f *fixture) assertExpectations(t *testing.T) {
	f.store.AssertExpectations(t)
	f.repo.AssertExpectations(t)
	f.proc.AssertExpectations(t)
	f.fetcher.AssertExpectations(t)
}

func fileInput(name, content string) FileInput {
	return FileInput{
		Name:        name,
		ContentType: "image/png",
		Size:        int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func squared(tag string) imageproc.Result {
	return imageproc.Result{Data: []byte("jpeg-" + tag), Width: 500, Height: 500, ContentType: imageproc.ContentTypeJPEG}
}

// hostedAt makes Put return an ObjectInfo whose URL is derived from the uploaded key.
func hostedAt(url string) func(context.Context, string, io.Reader, storage.PutObjectOptions) storage.ObjectInfo {
	return func(_ context.Context, key string, _ io.Reader, opt storage.PutObjectOptions) storage.ObjectInfo {
		return storage.ObjectInfo{Key: key, URL: url, Size: opt.Size, ContentType: opt.ContentType}
	}
}

func TestImageService_Process_Validation(t *testing.T) {
	ctx := context.Background()

	t.Run("no input", func(t *testing.T) {
		f := newFixture()
		res, err := f.service(false, Options{}).Process(ctx, ProcessRequest{})
		assert.ErrorIs(t, err, ErrNoInput)
		assert.Nil(t, res)
		f.assertExpectations(t)
	})

	t.Run("blank url only", func(t *testing.T) {
		f := newFixture()
		_, err := f.service(false, Options{}).Process(ctx, ProcessRequest{SourceURL: "   "})
		assert.ErrorIs(t, err, ErrNoInput)
	})

	t.Run("too many files", func(t *testing.T) {
		f := newFixture()
		req := ProcessRequest{Files: []FileInput{fileInput("a.png", "a"), fileInput("b.png", "b")}}
		_, err := f.service(false, Options{MaxFiles: 1}).Process(ctx, req)
		assert.ErrorIs(t, err, ErrTooManyFiles)
		f.assertExpectations(t)
	})
}

func TestImageService_Process_Files(t *testing.T) {
	ctx := context.Background()

	t.Run("all files hosted in order", func(t *testing.T) {
		f := newFixture()
		f.proc.On("Square", mock.Anything, []byte("one")).Return(squared("one"), nil).Once()
		f.proc.On("Square", mock.Anything, []byte("two")).Return(squared("two"), nil).Once()
		f.store.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
			return strings.HasPrefix(key, "squares/") && strings.HasSuffix(key, ".jpg")
		}), mock.Anything, mock.MatchedBy(func(opt storage.PutObjectOptions) bool {
			return opt.Size == int64(len("jpeg-one")) && opt.Metadata["original-filename"] == "one.png"
		})).Return(hostedAt("https://host/one.jpg"), nil).Once()
		f.store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.MatchedBy(func(opt storage.PutObjectOptions) bool {
			return opt.Metadata["original-filename"] == "two.png"
		})).Return(hostedAt("https://host/two.jpg"), nil).Once()

		res, err := f.service(false, Options{}).Process(ctx, ProcessRequest{
			Files: []FileInput{fileInput("one.png", "one"), fileInput("two.png", "two")},
		})

		require.NoError(t, err)
		assert.Equal(t, []string{"https://host/one.jpg", "https://host/two.jpg"}, res.Links)
		require.NotNil(t, res.ImageURL)
		assert.Equal(t, "https://host/two.jpg", *res.ImageURL)
		assert.Empty(t, res.Failures)
		f.assertExpectations(t)
	})

	t.Run("failing file does not stop the rest", func(t *testing.T) {
		f := newFixture()
		f.proc.On("Square", mock.Anything, []byte("bad")).
			Return(imageproc.Result{}, imageproc.ErrUnsupportedImage).Once()
		f.proc.On("Square", mock.Anything, []byte("good")).Return(squared("good"), nil).Once()
		f.store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(hostedAt("https://host/good.jpg"), nil).Once()

		res, err := f.service(false, Options{}).Process(ctx, ProcessRequest{
			Files: []FileInput{fileInput("bad.txt", "bad"), fileInput("good.png", "good")},
		})

		require.NoError(t, err)
		assert.Equal(t, []string{"https://host/good.jpg"}, res.Links)
		require.Len(t, res.Failures, 1)
		assert.Equal(t, model.ItemFailure{Source: model.SourceUpload, Name: "bad.txt", Reason: "unsupported image format"}, res.Failures[0])
		f.assertExpectations(t)
	})

	t.Run("every file fails", func(t *testing.T) {
		f := newFixture()
		f.proc.On("Square", mock.Anything, []byte("x")).Return(squared("x"), nil).Once()
		f.store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(storage.ObjectInfo{}, errors.New("quota exceeded")).Once()

		res, err := f.service(false, Options{}).Process(ctx, ProcessRequest{
			Files: []FileInput{fileInput("x.png", "x")},
		})

		require.NoError(t, err)
		assert.Empty(t, res.Links)
		assert.Nil(t, res.ImageURL)
		require.Len(t, res.Failures, 1)
		assert.Equal(t, "upload failed", res.Failures[0].Reason)
		f.assertExpectations(t)
	})

	t.Run("oversized file is rejected before reading", func(t *testing.T) {
		f := newFixture()
		big := fileInput("big.png", "0123456789")

		res, err := f.service(false, Options{MaxFileBytes: 4}).Process(ctx, ProcessRequest{Files: []FileInput{big}})

		require.NoError(t, err)
		require.Len(t, res.Failures, 1)
		assert.Equal(t, "file exceeds size limit", res.Failures[0].Reason)
		f.assertExpectations(t)
	})

	t.Run("size header lies", func(t *testing.T) {
		f := newFixture()
		big := fileInput("big.png", "0123456789")
		big.Size = 1

		res, err := f.service(false, Options{MaxFileBytes: 4}).Process(ctx, ProcessRequest{Files: []FileInput{big}})

		require.NoError(t, err)
		require.Len(t, res.Failures, 1)
		assert.Equal(t, "file exceeds size limit", res.Failures[0].Reason)
	})

	t.Run("open error", func(t *testing.T) {
		f := newFixture()
		in := FileInput{Name: "broken.png", Open: func() (io.ReadCloser, error) { return nil, errors.New("gone") }}

		res, err := f.service(false, Options{}).Process(ctx, ProcessRequest{Files: []FileInput{in}})

		require.NoError(t, err)
		require.Len(t, res.Failures, 1)
		assert.Equal(t, "broken.png", res.Failures[0].Name)
	})
}

func TestImageService_Process_URL(t *testing.T) {
	ctx := context.Background()

	t.Run("url appended after files", func(t *testing.T) {
		f := newFixture()
		f.proc.On("Square", mock.Anything, []byte("file")).Return(squared("file"), nil).Once()
		f.fetcher.On("Fetch", mock.Anything, "https://example.com/cat.png").Return([]byte("remote"), nil).Once()
		f.proc.On("Square", mock.Anything, []byte("remote")).Return(squared("remote"), nil).Once()
		f.store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.MatchedBy(func(opt storage.PutObjectOptions) bool {
			return opt.Metadata["source"] == model.SourceUpload
		})).Return(hostedAt("https://host/file.jpg"), nil).Once()
		f.store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.MatchedBy(func(opt storage.PutObjectOptions) bool {
			return opt.Metadata["source"] == model.SourceURL
		})).Return(hostedAt("https://host/remote.jpg"), nil).Once()

		res, err := f.service(false, Options{}).Process(ctx, ProcessRequest{
			Files:     []FileInput{fileInput("file.png", "file")},
			SourceURL: "  https://example.com/cat.png ",
		})

		require.NoError(t, err)
		assert.Equal(t, []string{"https://host/file.jpg", "https://host/remote.jpg"}, res.Links)
		assert.Equal(t, "https://host/remote.jpg", *res.ImageURL)
		f.assertExpectations(t)
	})

	t.Run("url failure fails the request", func(t *testing.T) {
		f := newFixture()
		f.proc.On("Square", mock.Anything, []byte("file")).Return(squared("file"), nil).Once()
		f.store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(hostedAt("https://host/file.jpg"), nil).Once()
		f.fetcher.On("Fetch", mock.Anything, "https://example.com/404.png").
			Return(nil, errors.New("unexpected status code: 404")).Once()

		res, err := f.service(false, Options{}).Process(ctx, ProcessRequest{
			Files:     []FileInput{fileInput("file.png", "file")},
			SourceURL: "https://example.com/404.png",
		})

		assert.ErrorIs(t, err, ErrSourceURL)
		assert.ErrorContains(t, err, "404")
		assert.Nil(t, res)
		f.assertExpectations(t)
	})
}

func TestImageService_Process_History(t *testing.T) {
	ctx := context.Background()

	t.Run("records hosted image", func(t *testing.T) {
		f := newFixture()
		f.proc.On("Square", mock.Anything, []byte("a")).Return(squared("a"), nil).Once()
		f.store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(hostedAt("https://host/a.jpg"), nil).Once()
		f.repo.On("Create", mock.Anything, mock.MatchedBy(func(img *model.Image) bool {
			return img.ID != "" &&
				strings.HasPrefix(img.PublicID, "squares/") &&
				img.URL == "https://host/a.jpg" &&
				img.Source == model.SourceUpload &&
				img.OriginalName == "a.png" &&
				img.Width == 500 && img.Height == 500 &&
				img.Backend == "cloudinary"
		})).Return(&model.Image{ID: "id"}, nil).Once()

		res, err := f.service(true, Options{}).Process(ctx, ProcessRequest{Files: []FileInput{fileInput("a.png", "a")}})

		require.NoError(t, err)
		assert.Equal(t, []string{"https://host/a.jpg"}, res.Links)
		f.assertExpectations(t)
	})

	t.Run("record failure rolls back the upload", func(t *testing.T) {
		f := newFixture()
		f.proc.On("Square", mock.Anything, []byte("a")).Return(squared("a"), nil).Once()
		f.store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(hostedAt("https://host/a.jpg"), nil).Once()
		f.repo.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("db fail")).Once()
		f.store.On("Delete", mock.Anything, mock.MatchedBy(func(key string) bool {
			return strings.HasPrefix(key, "squares/")
		})).Return(nil).Once()

		res, err := f.service(true, Options{}).Process(ctx, ProcessRequest{Files: []FileInput{fileInput("a.png", "a")}})

		require.NoError(t, err)
		assert.Empty(t, res.Links)
		require.Len(t, res.Failures, 1)
		f.assertExpectations(t)
	})
}

func TestImageService_List(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		limit   int
		offset  int
		want    repository.PageQuery
		repoErr error
	}{
		{name: "happy path", limit: 5, offset: 10, want: repository.PageQuery{Limit: 5, Offset: 10}},
		{name: "defaults", limit: 0, offset: -3, want: repository.PageQuery{Limit: 10, Offset: 0}},
		{name: "clamped", limit: 1000, want: repository.PageQuery{Limit: 100}},
		{name: "repository error", limit: 10, want: repository.PageQuery{Limit: 10}, repoErr: errors.New("db fail")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.repoErr != nil {
				f.repo.On("List", ctx, tt.want).Return(nil, tt.repoErr).Once()
			} else {
				f.repo.On("List", ctx, tt.want).Return(&repository.PageResult[model.Image]{
					Items: []model.Image{{ID: "1"}},
					Total: 1,
				}, nil).Once()
			}

			res, err := f.service(true, Options{}).List(ctx, tt.limit, tt.offset)
			if tt.repoErr != nil {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, 1, res.Total)
				assert.Len(t, res.Items, 1)
			}
			f.assertExpectations(t)
		})
	}

	t.Run("history disabled", func(t *testing.T) {
		_, err := newFixture().service(false, Options{}).List(ctx, 10, 0)
		assert.ErrorIs(t, err, ErrHistoryDisabled)
	})
}

func TestImageService_Get(t *testing.T) {
	ctx := context.Background()

	f := newFixture()
	svc := f.service(true, Options{})

	f.repo.On("FindByID", ctx, "valid-id").Return(&model.Image{ID: "valid-id"}, nil).Once()
	img, err := svc.Get(ctx, "valid-id")
	require.NoError(t, err)
	assert.Equal(t, "valid-id", img.ID)

	_, err = svc.Get(ctx, "")
	assert.ErrorIs(t, err, ErrIDRequired)

	f.repo.On("FindByID", ctx, "missing").Return(nil, sql.ErrNoRows).Once()
	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	f.repo.On("FindByID", ctx, "broken").Return(nil, errors.New("db fail")).Once()
	_, err = svc.Get(ctx, "broken")
	assert.EqualError(t, err, "db fail")

	f.assertExpectations(t)
}

func TestImageService_Delete(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		setup   func(f *fixture)
		wantErr error
		wantMsg string
	}{
		{
			name: "happy path",
			setup: func(f *fixture) {
				f.repo.On("FindByID", ctx, "id").Return(&model.Image{ID: "id", PublicID: "squares/a", Backend: "cloudinary"}, nil)
				f.store.On("Delete", ctx, "squares/a").Return(nil)
				f.repo.On("Delete", ctx, "id").Return(nil)
			},
		},
		{
			name: "not found",
			setup: func(f *fixture) {
				f.repo.On("FindByID", ctx, "id").Return(nil, sql.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "other backend",
			setup: func(f *fixture) {
				f.repo.On("FindByID", ctx, "id").Return(&model.Image{ID: "id", PublicID: "squares/a", Backend: "minio"}, nil)
			},
			wantErr: ErrBackendMismatch,
		},
		{
			name: "storage delete error keeps the row",
			setup: func(f *fixture) {
				f.repo.On("FindByID", ctx, "id").Return(&model.Image{ID: "id", PublicID: "squares/a", Backend: "cloudinary"}, nil)
				f.store.On("Delete", ctx, "squares/a").Return(errors.New("storage fail"))
			},
			wantMsg: "delete storage: storage fail",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f)

			err := f.service(true, Options{}).Delete(ctx, "id")
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantMsg != "":
				assert.ErrorContains(t, err, tt.wantMsg)
			default:
				assert.NoError(t, err)
			}
			f.assertExpectations(t)
		})
	}
}

func TestSanitizeMetadata(t *testing.T) {
	assert.Equal(t, "a_b_c_d", sanitizeMetadata("a=b|c\nd"))
	assert.Equal(t, "cat.png", sanitizeMetadata("cat.png"))
}
