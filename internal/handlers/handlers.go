package handlers

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/leaf-api/internal/flagging"
	"github.com/Brownie44l1/leaf-api/internal/inference"
	"github.com/Brownie44l1/leaf-api/internal/metrics"
)

// Handler serves the prediction API and UI.
type Handler struct {
	pipeline  *inference.Pipeline
	flags     flagging.Store
	examples  map[string]string
	maxUpload int64
	logger    *zap.Logger
}

// Options configures a Handler.
type Options struct {
	Pipeline *inference.Pipeline
	// Flags may be nil, which disables the flag endpoints
	Flags flagging.Store
	// Examples maps a gallery name to an image path on the server
	Examples       map[string]string
	MaxUploadBytes int64
	Logger         *zap.Logger
}

// NewHandler builds a Handler.
func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &Handler{
		pipeline:  opts.Pipeline,
		flags:     opts.Flags,
		examples:  opts.Examples,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// PredictionRequest is the body of POST /predict.
type PredictionRequest struct {
	Image []float32 `json:"image"`
	K     int       `json:"k,omitempty"`
}

// PredictionResponse carries the ranked classes and their rendered text.
type PredictionResponse struct {
	Text        string           `json:"text"`
	Predictions inference.Result `json:"predictions"`
}

// FlagRequest is the body of POST /flags.
type FlagRequest struct {
	Option    string `json:"option" binding:"required"`
	ImageName string `json:"image_name"`
	Output    string `json:"output"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string   `json:"status"`
	ModelLoaded bool     `json:"model_loaded"`
	Classes     []string `json:"classes,omitempty"`
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	if h.pipeline == nil {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "healthy",
		ModelLoaded: true,
		Classes:     h.pipeline.Catalog().Labels(),
	})
}

// Predict handles POST /predict with an already preprocessed tensor.
func (h *Handler) Predict(c *gin.Context) {
	if !h.limitBody(c) {
		return
	}

	var req PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if isTooLarge(err) {
			respondTooLarge(c)
			return
		}
		HandleInvalidRequest(c, "invalid JSON")
		return
	}
	if req.K == 0 {
		k, ok := h.queryK(c)
		if !ok {
			return
		}
		req.K = k
	}

	h.classify(c, "tensor", "", func() (inference.Result, error) {
		return h.pipeline.ClassifyTensor(req.Image, req.K)
	})
}

// PredictFromImage handles POST /predict/image with a multipart "image" field.
func (h *Handler) PredictFromImage(c *gin.Context) {
	if !h.limitBody(c) {
		return
	}

	header, err := c.FormFile("image")
	if err != nil {
		if isTooLarge(err) {
			respondTooLarge(c)
			return
		}
		HandleInvalidRequest(c, "no image file provided. Use 'image' as the form field name")
		return
	}

	k, ok := h.formK(c)
	if !ok {
		return
	}

	file, err := header.Open()
	if err != nil {
		HandleInvalidRequest(c, "failed to read upload")
		return
	}
	defer file.Close()

	h.logger.Debug("Received file",
		zap.String("filename", header.Filename),
		zap.Int64("size", header.Size))

	h.classify(c, "upload", header.Filename, func() (inference.Result, error) {
		return h.pipeline.ClassifyReader(file, k)
	})
}

// PredictExample handles POST /predict/example/:name for a gallery image.
func (h *Handler) PredictExample(c *gin.Context) {
	name := c.Param("name")
	path, found := h.examples[name]
	if !found {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "example not found")
		return
	}

	k, ok := h.queryK(c)
	if !ok {
		return
	}

	h.classify(c, "example", name, func() (inference.Result, error) {
		return h.pipeline.Classify(path, k)
	})
}

// ListExamples handles GET /examples
func (h *Handler) ListExamples(c *gin.Context) {
	respondSuccess(c, http.StatusOK, h.exampleNames())
}

// CreateFlag handles POST /flags
func (h *Handler) CreateFlag(c *gin.Context) {
	if h.flags == nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "flagging is disabled")
		return
	}

	if !h.limitBody(c) {
		return
	}

	var req FlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if isTooLarge(err) {
			respondTooLarge(c)
			return
		}
		HandleInvalidRequest(c, "invalid flag request")
		return
	}

	flag := &flagging.Flag{
		Option:    req.Option,
		ImageName: req.ImageName,
		Output:    req.Output,
		RequestID: c.GetString(requestIDKey),
	}
	if err := h.flags.Save(c.Request.Context(), flag); err != nil {
		if !errors.Is(err, flagging.ErrInvalidOption) {
			h.logger.Error("Failed to save flag", zap.Error(err))
		}
		HandleError(c, err)
		return
	}
	metrics.FlagsTotal.WithLabelValues(flag.Option).Inc()

	respondSuccess(c, http.StatusCreated, flag)
}

// ListFlags handles GET /flags
func (h *Handler) ListFlags(c *gin.Context) {
	if h.flags == nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "flagging is disabled")
		return
	}

	flags, err := h.flags.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list flags", zap.Error(err))
		HandleError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, flags)
}

// classify runs fn, records metrics and writes the result as JSON, or as
// plain text when ?format=text is given.
func (h *Handler) classify(c *gin.Context, source, imageName string, fn func() (inference.Result, error)) {
	if h.pipeline == nil {
		respondError(c, http.StatusServiceUnavailable, "MODEL_UNAVAILABLE", "model not loaded")
		return
	}

	start := time.Now()
	result, err := fn()
	elapsed := time.Since(start)

	topLabel := ""
	if err == nil && len(result) > 0 {
		topLabel = result[0].Label
	}
	metrics.ObservePrediction(source, outcome(err), topLabel, elapsed)

	if err != nil {
		if errResp := MapError(err); errResp.StatusCode >= http.StatusInternalServerError {
			h.logger.Error("Prediction failed",
				zap.String("source", source),
				zap.String("image", imageName),
				zap.Error(err))
		}
		HandleError(c, err)
		return
	}

	h.logger.Info("Prediction complete",
		zap.String("source", source),
		zap.String("image", imageName),
		zap.String("top_label", topLabel),
		zap.Duration("elapsed", elapsed))

	text := result.Text()
	if c.Query("format") == "text" {
		c.String(http.StatusOK, text)
		return
	}
	respondSuccess(c, http.StatusOK, PredictionResponse{Text: text, Predictions: result})
}

// limitBody caps the request body at the upload limit. A declared length over
// the limit is answered right away with 413 and false.
func (h *Handler) limitBody(c *gin.Context) bool {
	if c.Request.ContentLength > h.maxUpload {
		respondTooLarge(c)
		return false
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	return true
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func respondTooLarge(c *gin.Context) {
	respondError(c, http.StatusRequestEntityTooLarge, "INVALID_REQUEST", "request body too large")
}

func (h *Handler) queryK(c *gin.Context) (int, bool) {
	return parseK(c, c.Query("k"))
}

func (h *Handler) formK(c *gin.Context) (int, bool) {
	raw := c.PostForm("k")
	if raw == "" {
		raw = c.Query("k")
	}
	return parseK(c, raw)
}

// parseK returns 0 for an empty value so the pipeline default applies.
func parseK(c *gin.Context, raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	k, err := strconv.Atoi(raw)
	if err != nil {
		HandleInvalidRequest(c, "k must be an integer")
		return 0, false
	}
	return k, true
}

func (h *Handler) exampleNames() []string {
	names := make([]string, 0, len(h.examples))
	for name := range h.examples {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
