package httpapi

import (
	"net/http"

	"contestplane/pkg/errutil"
	"contestplane/pkg/middleware"
	"contestplane/services/adjustment"
	"contestplane/services/ledger"

	"github.com/gin-gonic/gin"
)

func (h *Handler) CanDistribute(c *gin.Context) {
	out, err := h.distributions.CanDistribute(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Distribute(c *gin.Context) {
	actor := middleware.GetActor(c.Request.Context())
	out, err := h.distributions.Distribute(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type adjustRequest struct {
	Amount        int64          `json:"amount" binding:"required"`
	Reason        string         `json:"reason" binding:"required"`
	Type          string         `json:"type"`
	Metadata      map[string]any `json:"metadata"`
	AllowNegative bool           `json:"allow_negative"`
}

func (h *Handler) Adjust(c *gin.Context) {
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	actor := middleware.GetActor(c.Request.Context())
	out, err := h.adjustments.Adjust(c.Request.Context(), adjustment.AdjustParams{
		UserID:        c.Param("id"),
		Amount:        req.Amount,
		Reason:        req.Reason,
		Type:          ledger.EntryType(req.Type),
		Metadata:      req.Metadata,
		AllowNegative: req.AllowNegative,
		ActorID:       actor,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetBalance(c *gin.Context) {
	userID := c.Param("id")
	balance, err := h.ledger.GetBalance(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "balance": balance})
}

func (h *Handler) ListTransactions(c *gin.Context) {
	out, err := h.ledger.ListEntries(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out})
}

func (h *Handler) VerifyLedger(c *gin.Context) {
	userID := c.Param("id")
	valid, err := h.ledger.VerifyChain(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "valid": valid})
}
