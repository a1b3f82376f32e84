package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/imagecheck/internal/healthcheck"
	"github.com/example/imagecheck/internal/imagehost"
	"github.com/example/imagecheck/internal/usecase"
)

// MaxUploadSize bounds a single uploaded image.
const MaxUploadSize = imagehost.MaxImageSize

const (
	multipartOverhead    = 1 << 20
	maxFaceImages        = 3
	DefaultHealthTimeout = 2 * time.Second
)

// Services bundles the use cases behind the HTTP surface.
type Services struct {
	CheckResults *usecase.CheckResultUseCase
	Faces        *usecase.FaceUseCase
	Media        *usecase.MediaUseCase
	// Health is pinged by GET /health; nil always reports ok.
	Health healthcheck.PingFunc
	// HealthTimeout bounds the ping; zero means two seconds.
	HealthTimeout time.Duration
}

type imageSourceRequest struct {
	ImageSrc string `json:"imageSrc"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router. authMiddleware
// guards the routes that write or call paid upstreams.
func RegisterRoutes(router *gin.Engine, svc Services, authMiddleware gin.HandlerFunc) {
	h := &handler{svc: svc}

	router.GET("/health", h.health)

	router.POST("/results", authMiddleware, h.submitResult)
	router.POST("/save-result-data", authMiddleware, h.submitResult)
	router.GET("/results", h.history)
	router.GET("/results/count", h.countResults)

	router.GET("/stats", h.stats)
	router.GET("/stats/validity", h.validityStats)
	router.GET("/validity-stats", h.validityStats)
	router.GET("/stats/social-media", h.socialMediaStats)
	router.GET("/social-media-stats", h.socialMediaStats)

	router.POST("/faces", authMiddleware, h.registerFace)
	router.GET("/faces", h.listFaces)
	router.POST("/check-face", authMiddleware, h.checkFace)

	router.POST("/find-related", authMiddleware, h.findRelated)
	router.POST("/images", authMiddleware, h.uploadImage)
}

type handler struct {
	svc Services
}

func (h *handler) health(c *gin.Context) {
	if h.svc.Health != nil {
		timeout := h.svc.HealthTimeout
		if timeout <= 0 {
			timeout = DefaultHealthTimeout
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		if err := h.svc.Health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) submitResult(c *gin.Context) {
	var in usecase.SubmitInput
	if err := c.ShouldBindJSON(&in); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "request body must be a JSON object"})
		return
	}

	record, err := h.svc.CheckResults.Submit(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Data saved successfully", "id": record.ID})
}

func (h *handler) history(c *gin.Context) {
	records, err := h.svc.CheckResults.History(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": records})
}

func (h *handler) countResults(c *gin.Context) {
	result := c.Query("result")
	count, err := h.svc.CheckResults.CountByResult(c.Request.Context(), result)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": strings.ToUpper(strings.TrimSpace(result)), "count": count})
}

func (h *handler) stats(c *gin.Context) {
	stats, err := h.svc.CheckResults.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *handler) validityStats(c *gin.Context) {
	stats, err := h.svc.CheckResults.ValidityStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *handler) socialMediaStats(c *gin.Context) {
	counts, err := h.svc.CheckResults.SocialMediaStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (h *handler) registerFace(c *gin.Context) {
	if err := parseMultipart(c, maxFaceImages*MaxUploadSize+multipartOverhead); err != nil {
		writeError(c, err)
		return
	}

	label := c.PostForm("label")
	images := make([][]byte, 0, maxFaceImages)
	for _, field := range []string{"File1", "File2", "File3"} {
		file, err := c.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			writeError(c, err)
			return
		}
		data, err := readImage(file)
		if err != nil {
			writeError(c, err)
			return
		}
		images = append(images, data)
	}

	if _, err := h.svc.Faces.Register(c.Request.Context(), label, images); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Face data stored successfully"})
}

func (h *handler) listFaces(c *gin.Context) {
	sets, err := h.svc.Faces.Labels(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"faces": sets})
}

func (h *handler) checkFace(c *gin.Context) {
	var (
		check *usecase.FaceCheck
		err   error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if perr := parseMultipart(c, MaxUploadSize+multipartOverhead); perr != nil {
			writeError(c, perr)
			return
		}
		file, ferr := c.FormFile("image")
		if ferr != nil {
			writeError(c, missingImage(ferr))
			return
		}
		data, rerr := readImage(file)
		if rerr != nil {
			writeError(c, rerr)
			return
		}
		check, err = h.svc.Faces.CheckImage(c.Request.Context(), data)
	} else {
		var req imageSourceRequest
		if berr := c.ShouldBindJSON(&req); berr != nil && !errors.Is(berr, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "request body must be a JSON object"})
			return
		}
		check, err = h.svc.Faces.CheckURL(c.Request.Context(), req.ImageSrc)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, check)
}

func (h *handler) findRelated(c *gin.Context) {
	var req imageSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "request body must be a JSON object"})
		return
	}

	payload, err := h.svc.Media.FindRelated(c.Request.Context(), req.ImageSrc)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

func (h *handler) uploadImage(c *gin.Context) {
	if err := parseMultipart(c, MaxUploadSize+multipartOverhead); err != nil {
		writeError(c, err)
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		writeError(c, missingImage(err))
		return
	}
	contentType := file.Header.Get("Content-Type")
	if err := imagehost.ValidateImage(file.Size, contentType); err != nil {
		writeError(c, err)
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "unable to open image"})
		return
	}
	defer src.Close()

	url, err := h.svc.Media.UploadImage(c.Request.Context(), src, file.Size, contentType)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imageUrl": url})
}

func readImage(file *multipart.FileHeader) ([]byte, error) {
	if err := imagehost.ValidateImage(file.Size, file.Header.Get("Content-Type")); err != nil {
		return nil, err
	}
	src, err := file.Open()
	if err != nil {
		return nil, &usecase.ValidationError{Field: file.Filename, Message: "unable to open image"}
	}
	defer src.Close()
	return io.ReadAll(src)
}

// parseMultipart bounds the request body by limit and parses the form.
func parseMultipart(c *gin.Context, limit int64) error {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	if _, err := c.MultipartForm(); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			return imagehost.ErrFileTooBig
		}
		return &usecase.ValidationError{Field: "image", Message: "request must be multipart/form-data"}
	}
	return nil
}

func missingImage(err error) error {
	if errors.Is(err, http.ErrMissingFile) {
		return &usecase.ValidationError{Field: "image", Message: "image file is required"}
	}
	return err
}
