package scan

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ecgcare/vault-api/internal/handler"
	"github.com/ecgcare/vault-api/internal/middleware"
	"github.com/ecgcare/vault-api/internal/service/ml"
	"github.com/ecgcare/vault-api/internal/service/scan"
)

type Handler struct {
	scans *scan.Service
	ml    *ml.Service
}

func NewHandler(scanSvc *scan.Service, mlSvc *ml.Service) *Handler {
	return &Handler{scans: scanSvc, ml: mlSvc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/records/:id/scans", h.Upload)
	r.GET("/records/:id/scans", h.ListByRecord)

	scans := r.Group("/scans")
	{
		scans.GET("/:id", h.Get)
		scans.GET("/:id/content", h.Download)
		scans.DELETE("/:id", h.Delete)
		scans.POST("/:id/predict", h.Predict)
		scans.GET("/:id/results", h.Results)
	}
}

func (h *Handler) Upload(c *gin.Context) {
	doctorID, ok := middleware.DoctorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication failed"))
		return
	}
	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid record id"))
		return
	}

	file, header, err := c.Request.FormFile("scan")
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("missing scan file"))
		return
	}
	defer file.Close()

	mimetype := header.Header.Get("Content-Type")
	if mimetype == "" {
		mimetype = "application/octet-stream"
	}

	uploaded, err := h.scans.Upload(c.Request.Context(), recordID, doctorID, mimetype, file, nil)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(uploaded))
}

func (h *Handler) Get(c *gin.Context) {
	doctorID, scanID, ok := h.params(c)
	if !ok {
		return
	}

	result, err := h.scans.Get(c.Request.Context(), scanID, doctorID)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) Download(c *gin.Context) {
	doctorID, scanID, ok := h.params(c)
	if !ok {
		return
	}

	meta, body, err := h.scans.Download(c.Request.Context(), scanID, doctorID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	defer body.Close()

	c.DataFromReader(http.StatusOK, -1, meta.Mimetype, body, nil)
}

func (h *Handler) ListByRecord(c *gin.Context) {
	doctorID, ok := middleware.DoctorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication failed"))
		return
	}
	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid record id"))
		return
	}

	scans, err := h.scans.ListByRecord(c.Request.Context(), recordID, doctorID)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(scans))
}

func (h *Handler) Delete(c *gin.Context) {
	doctorID, scanID, ok := h.params(c)
	if !ok {
		return
	}

	if err := h.scans.Delete(c.Request.Context(), scanID, doctorID); err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse("scan deleted"))
}

func (h *Handler) Predict(c *gin.Context) {
	doctorID, scanID, ok := h.params(c)
	if !ok {
		return
	}

	result, err := h.ml.Predict(c.Request.Context(), scanID, doctorID)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) Results(c *gin.Context) {
	doctorID, scanID, ok := h.params(c)
	if !ok {
		return
	}

	results, err := h.ml.Results(c.Request.Context(), scanID, doctorID)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(results))
}

func (h *Handler) params(c *gin.Context) (doctorID, scanID uuid.UUID, ok bool) {
	doctorID, found := middleware.DoctorID(c)
	if !found {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication failed"))
		return uuid.Nil, uuid.Nil, false
	}
	scanID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid scan id"))
		return uuid.Nil, uuid.Nil, false
	}
	return doctorID, scanID, true
}
