// Package record exposes the vault over HTTP: record CRUD, sharing and
// drafts. Operations that touch key material read the caller's passphrase
// from the X-Vault-Passphrase header; it is never logged or persisted.
package record

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ecgcare/vault-api/internal/handler"
	"github.com/ecgcare/vault-api/internal/middleware"
	"github.com/ecgcare/vault-api/internal/model"
	"github.com/ecgcare/vault-api/internal/service/draft"
	"github.com/ecgcare/vault-api/internal/service/vault"
)

const PassphraseHeader = "X-Vault-Passphrase"

type Handler struct {
	vault  *vault.Service
	drafts *draft.Service
}

func NewHandler(vaultSvc *vault.Service, draftSvc *draft.Service) *Handler {
	return &Handler{vault: vaultSvc, drafts: draftSvc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	records := r.Group("/records")
	{
		records.POST("", h.Create)
		records.GET("", h.List)
		records.GET("/:id", h.Read)
		records.PUT("/:id", h.Update)
		records.DELETE("/:id", h.Delete)

		records.GET("/:id/access", h.ListAccess)
		records.POST("/:id/access", h.Share)
		records.PUT("/:id/access/:doctorId", h.UpdateRole)
		records.DELETE("/:id/access/:doctorId", h.Revoke)

		records.GET("/:id/draft", h.LoadDraft)
		records.PUT("/:id/draft", h.SaveDraft)
		records.DELETE("/:id/draft", h.DiscardDraft)
	}
}

type createRequest struct {
	Payload string `json:"payload" binding:"required"`
}

type updateRequest struct {
	Payload string `json:"payload" binding:"required"`
}

type shareRequest struct {
	DoctorID uuid.UUID `json:"doctor_id" binding:"required"`
	Role     string    `json:"role" binding:"required,access_role"`
}

type roleRequest struct {
	Role string `json:"role" binding:"required,access_role"`
}

type draftRequest struct {
	Content string `json:"content" binding:"required"`
}

type recordResponse struct {
	ID             uuid.UUID `json:"id"`
	AnonymizedCode string    `json:"anonymized_code"`
	Payload        string    `json:"payload,omitempty"`
	CreatedAt      string    `json:"created_at"`
	UpdatedAt      string    `json:"updated_at"`
}

func (h *Handler) Create(c *gin.Context) {
	doctorID, ok := middleware.DoctorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication failed"))
		return
	}

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	record, err := h.vault.Create(c.Request.Context(), doctorID, []byte(req.Payload))
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(toResponse(record, nil)))
}

func (h *Handler) Read(c *gin.Context) {
	doctorID, recordID, passphrase, ok := h.cryptoParams(c)
	if !ok {
		return
	}

	record, payload, err := h.vault.Read(c.Request.Context(), recordID, doctorID, passphrase)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(toResponse(record, payload)))
}

func (h *Handler) Update(c *gin.Context) {
	doctorID, recordID, passphrase, ok := h.cryptoParams(c)
	if !ok {
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.vault.Update(c.Request.Context(), recordID, doctorID, passphrase, []byte(req.Payload)); err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse("record updated"))
}

func (h *Handler) Delete(c *gin.Context) {
	doctorID, recordID, ok := h.params(c)
	if !ok {
		return
	}

	if err := h.vault.Delete(c.Request.Context(), recordID, doctorID); err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse("record deleted"))
}

func (h *Handler) List(c *gin.Context) {
	doctorID, ok := middleware.DoctorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication failed"))
		return
	}

	var p model.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	records, err := h.vault.List(c.Request.Context(), doctorID, p)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(records))
}

func (h *Handler) Share(c *gin.Context) {
	doctorID, recordID, passphrase, ok := h.cryptoParams(c)
	if !ok {
		return
	}

	var req shareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.vault.Share(c.Request.Context(), recordID, doctorID, req.DoctorID, role, passphrase); err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse("access granted"))
}

func (h *Handler) UpdateRole(c *gin.Context) {
	doctorID, recordID, ok := h.params(c)
	if !ok {
		return
	}
	recipientID, err := uuid.Parse(c.Param("doctorId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid doctor id"))
		return
	}

	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.vault.UpdateRole(c.Request.Context(), recordID, doctorID, recipientID, role); err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse("role updated"))
}

func (h *Handler) Revoke(c *gin.Context) {
	doctorID, recordID, ok := h.params(c)
	if !ok {
		return
	}
	recipientID, err := uuid.Parse(c.Param("doctorId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid doctor id"))
		return
	}

	if err := h.vault.Revoke(c.Request.Context(), recordID, doctorID, recipientID); err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse("access revoked"))
}

func (h *Handler) ListAccess(c *gin.Context) {
	doctorID, recordID, ok := h.params(c)
	if !ok {
		return
	}

	entries, err := h.vault.ListAccess(c.Request.Context(), recordID, doctorID)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(entries))
}

func (h *Handler) SaveDraft(c *gin.Context) {
	doctorID, recordID, passphrase, ok := h.cryptoParams(c)
	if !ok {
		return
	}

	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.drafts.Save(c.Request.Context(), recordID, doctorID, passphrase, []byte(req.Content)); err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse("draft saved"))
}

func (h *Handler) LoadDraft(c *gin.Context) {
	doctorID, recordID, passphrase, ok := h.cryptoParams(c)
	if !ok {
		return
	}

	content, err := h.drafts.Load(c.Request.Context(), recordID, doctorID, passphrase)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"content": string(content)}))
}

func (h *Handler) DiscardDraft(c *gin.Context) {
	doctorID, recordID, ok := h.params(c)
	if !ok {
		return
	}

	if err := h.drafts.Discard(c.Request.Context(), recordID, doctorID); err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse("draft discarded"))
}

func (h *Handler) params(c *gin.Context) (doctorID, recordID uuid.UUID, ok bool) {
	doctorID, found := middleware.DoctorID(c)
	if !found {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication failed"))
		return uuid.Nil, uuid.Nil, false
	}
	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid record id"))
		return uuid.Nil, uuid.Nil, false
	}
	return doctorID, recordID, true
}

func (h *Handler) cryptoParams(c *gin.Context) (doctorID, recordID uuid.UUID, passphrase string, ok bool) {
	doctorID, recordID, ok = h.params(c)
	if !ok {
		return uuid.Nil, uuid.Nil, "", false
	}
	passphrase = c.GetHeader(PassphraseHeader)
	if passphrase == "" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("missing passphrase header"))
		return uuid.Nil, uuid.Nil, "", false
	}
	return doctorID, recordID, passphrase, true
}

func toResponse(record *model.Record, payload []byte) recordResponse {
	resp := recordResponse{
		ID:             record.ID,
		AnonymizedCode: record.AnonymizedCode,
		CreatedAt:      record.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:      record.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if payload != nil {
		resp.Payload = string(payload)
	}
	return resp
}
