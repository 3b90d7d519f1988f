package httpapi

import (
	"net/http"
	"time"

	"contestplane/pkg/errutil"
	"contestplane/pkg/middleware"
	"contestplane/services/campaign"

	"github.com/gin-gonic/gin"
)

type createCampaignRequest struct {
	Name        string     `json:"name" binding:"required"`
	Description string     `json:"description"`
	StartAt     *time.Time `json:"start_at"`
	EndAt       *time.Time `json:"end_at"`
}

func (h *Handler) CreateCampaign(c *gin.Context) {
	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	out, err := h.campaigns.CreateCampaign(c.Request.Context(), campaign.CreateCampaignParams{
		Name:        req.Name,
		Description: req.Description,
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, out)
}

func (h *Handler) GetCampaign(c *gin.Context) {
	out, err := h.campaigns.GetCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) ListCampaigns(c *gin.Context) {
	out, err := h.campaigns.ListCampaigns(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": out})
}

type addEventRequest struct {
	Title  string `json:"title" binding:"required"`
	Type   string `json:"type" binding:"required"`
	Points int64  `json:"points" binding:"required"`
}

func (h *Handler) AddEvent(c *gin.Context) {
	var req addEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	out, err := h.campaigns.AddEvent(c.Request.Context(), campaign.AddEventParams{
		CampaignID: c.Param("id"),
		Title:      req.Title,
		Type:       campaign.EventType(req.Type),
		Points:     req.Points,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, out)
}

func (h *Handler) GetEvent(c *gin.Context) {
	out, err := h.campaigns.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) ListEvents(c *gin.Context) {
	out, err := h.campaigns.ListEvents(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

type submitPredictionRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Value  string `json:"value" binding:"required"`
}

func (h *Handler) SubmitPrediction(c *gin.Context) {
	var req submitPredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	out, err := h.campaigns.SubmitPrediction(c.Request.Context(), campaign.SubmitPredictionParams{
		EventID: c.Param("id"),
		UserID:  req.UserID,
		Value:   req.Value,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, out)
}

func (h *Handler) ListParticipations(c *gin.Context) {
	out, err := h.campaigns.ListParticipations(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participations": out})
}

type recordOutcomeRequest struct {
	Outcome string `json:"outcome" binding:"required"`
	Notes   string `json:"notes"`
}

func (h *Handler) RecordOutcome(c *gin.Context) {
	var req recordOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	actor := middleware.GetActor(c.Request.Context())
	out, err := h.results.RecordOutcome(c.Request.Context(), c.Param("id"), req.Outcome, req.Notes, actor)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, out)
}

func (h *Handler) VerifyOutcome(c *gin.Context) {
	actor := middleware.GetActor(c.Request.Context())
	out, err := h.results.Verify(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) ApproveOutcome(c *gin.Context) {
	actor := middleware.GetActor(c.Request.Context())
	out, err := h.results.Approve(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}
