package handler

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"imgsquare/internal/service"
)

// Form fields accepted by POST /upload.
const (
	FieldPhotos   = "photos"
	FieldImageURL = "imageUrl"
)

// User-facing messages for POST /upload.
const (
	MsgNoInput      = "Please select a file or enter an image URL."
	MsgSourceURL    = "Error processing URL. Please check if the URL is valid and accessible."
	MsgUploadFailed = "An error occurred during upload. Please try again."
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// db may be nil when upload history is disabled.
func RegisterRoutes(app *fiber.App, db Pinger, imgSvc service.ImageService) {
	app.Get("/api/health", HealthStatus())
	app.Get("/healthz", LivenessProbe())
	app.Get("/readyz", ReadinessProbe(db))

	app.Post("/upload", UploadImages(imgSvc))

	app.Get("/api/images", ListImages(imgSvc))
	app.Get("/api/images/:id", GetImage(imgSvc))
	app.Delete("/api/images/:id", DeleteImage(imgSvc))
}

// HealthStatus reports that the process is up.
//
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/health [get]
func HealthStatus() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "OK",
			"timestamp": time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
}

// LivenessProbe is a bare 200 for orchestrators.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// ReadinessProbe checks DB connectivity when a database is configured.
func ReadinessProbe(db Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if db == nil {
			return c.JSON(fiber.Map{"status": "healthy", "database": "disabled"})
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.JSON(fiber.Map{"status": "healthy", "database": "up"})
	}
}

// UploadImages normalizes and hosts uploaded files and/or a remote image URL.
//
// @Summary Upload images
// @Description Crops every image to a 500x500 square and hosts it. Files that fail are listed in failures.
// @Tags images
// @Accept multipart/form-data
// @Produce json
// @Param photos formData file false "image files"
// @Param imageUrl formData string false "remote image URL"
// @Success 200 {object} model.UploadResult
// @Failure 400 {object} errorPayload
// @Failure 422 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /upload [post]
func UploadImages(svc service.ImageService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := service.ProcessRequest{SourceURL: c.FormValue(FieldImageURL)}

		// A request without a multipart body simply has no files.
		if form, err := c.MultipartForm(); err == nil {
			for _, fh := range form.File[FieldPhotos] {
				req.Files = append(req.Files, fileInput(fh))
			}
		}

		res, err := svc.Process(c.UserContext(), req)
		switch {
		case err == nil:
			return c.JSON(res)
		case errors.Is(err, service.ErrNoInput):
			return writeError(c, fiber.StatusBadRequest, "NO_INPUT", MsgNoInput)
		case errors.Is(err, service.ErrTooManyFiles):
			return writeError(c, fiber.StatusBadRequest, "TOO_MANY_FILES", "too many files in one request")
		case errors.Is(err, service.ErrSourceURL):
			return writeError(c, fiber.StatusUnprocessableEntity, "SOURCE_URL_FAILED", MsgSourceURL)
		default:
			return writeError(c, fiber.StatusInternalServerError, "UPLOAD_FAILED", MsgUploadFailed)
		}
	}
}

func fileInput(fh *multipart.FileHeader) service.FileInput {
	return service.FileInput{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// ListImages returns upload history with limit & offset.
//
// @Summary List hosted images
// @Tags images
// @Produce json
// @Param limit query int false "page size" default(10)
// @Param offset query int false "offset" default(0)
// @Success 200 {object} service.ImageListResult
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /api/images [get]
func ListImages(svc service.ImageService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.List(c.UserContext(), limit, offset)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// GetImage returns one history record.
//
// @Summary Get a hosted image
// @Tags images
// @Produce json
// @Param id path string true "image id"
// @Success 200 {object} model.Image
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /api/images/{id} [get]
func GetImage(svc service.ImageService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		img, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(img)
	}
}

// DeleteImage removes an image from the host and from history.
//
// @Summary Delete a hosted image
// @Tags images
// @Param id path string true "image id"
// @Success 204
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Router /api/images/{id} [delete]
func DeleteImage(svc service.ImageService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := svc.Delete(c.UserContext(), id); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// writeServiceError translates history errors into the standard envelope.
func writeServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrHistoryDisabled):
		return writeError(c, fiber.StatusNotFound, "HISTORY_DISABLED", "upload history is not enabled")
	case errors.Is(err, service.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "image not found")
	case errors.Is(err, service.ErrBackendMismatch):
		return writeError(c, fiber.StatusConflict, "BACKEND_MISMATCH", "image is hosted on a different backend")
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
