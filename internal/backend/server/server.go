package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/slok/wrapperctl/internal/backend"
	"github.com/slok/wrapperctl/internal/backend/api"
	"github.com/slok/wrapperctl/internal/log"
	"github.com/slok/wrapperctl/internal/model"
)

// HandlerConfig is the configuration for the backend HTTP handler.
type HandlerConfig struct {
	// Backend is the backend that serves the requests, normally the fake one.
	Backend backend.Client
	Logger  log.Logger
}

func (c *HandlerConfig) defaults() error {
	if c.Backend == nil {
		return fmt.Errorf("backend is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "backend.Server"})
	return nil
}

type handler struct {
	backend backend.Client
	logger  log.Logger
}

// NewHandler returns an HTTP handler that serves the backend REST API.
func NewHandler(cfg HandlerConfig) (http.Handler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	h := handler{backend: cfg.Backend, logger: cfg.Logger}

	r := gin.New()
	r.Use(gin.Recovery(), h.logRequests())

	r.GET("/healthcheck", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	wrappers := r.Group("/resources/wrappers")
	{
		wrappers.POST("/files/upload", h.uploadFile)
		wrappers.POST("/generate", h.generateWrapper)
		wrappers.GET("/:wrapperID", h.getWrapper)
	}

	r.DELETE("/resources/:resourceID", h.deleteResource)

	indicators := r.Group("/indicators/:indicatorID")
	{
		indicators.GET("", h.getIndicator)
		indicators.POST("/resources", h.linkResource)
		indicators.DELETE("/resources/:resourceID", h.unlinkResource)
	}

	return r, nil
}

func (h handler) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debugf("%s %s %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func (h handler) uploadFile(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		respondError(c, fmt.Errorf("missing file: %w", model.ErrNotValid))
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, fmt.Errorf("could not open file: %w", err))
		return
	}
	defer f.Close()

	id, err := h.backend.UploadFile(c.Request.Context(), fh.Filename, f)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.UploadResponse{FileID: id})
}

func (h handler) generateWrapper(c *gin.Context) {
	var req api.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("invalid body: %s: %w", err, model.ErrNotValid))
		return
	}

	w, err := h.backend.GenerateWrapper(c.Request.Context(), req.ToModel())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.FromModelWrapper(*w))
}

func (h handler) getWrapper(c *gin.Context) {
	w, err := h.backend.GetWrapper(c.Request.Context(), c.Param("wrapperID"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.FromModelWrapper(*w))
}

func (h handler) getIndicator(c *gin.Context) {
	ind, err := h.backend.GetIndicator(c.Request.Context(), c.Param("indicatorID"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.FromModelIndicator(*ind))
}

func (h handler) linkResource(c *gin.Context) {
	var req api.LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ResourceID == "" {
		respondError(c, fmt.Errorf("resource_id is required: %w", model.ErrNotValid))
		return
	}

	if err := h.backend.LinkResource(c.Request.Context(), c.Param("indicatorID"), req.ResourceID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h handler) unlinkResource(c *gin.Context) {
	err := h.backend.UnlinkResource(c.Request.Context(), c.Param("indicatorID"), c.Param("resourceID"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h handler) deleteResource(c *gin.Context) {
	if err := h.backend.DeleteResource(c.Request.Context(), c.Param("resourceID")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func respondError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, model.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrNotValid):
		status, code = http.StatusBadRequest, "invalid"
	case errors.Is(err, model.ErrAlreadyExists):
		status, code = http.StatusConflict, "already_exists"
	}

	c.JSON(status, api.ErrorEnvelope{Error: api.APIError{Message: err.Error(), Code: code}})
}

// Serve serves the handler on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errC := make(chan error, 1)
	go func() { errC <- srv.ListenAndServe() }()

	select {
	case err := <-errC:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("could not shutdown server: %w", err)
	}
	return nil
}
