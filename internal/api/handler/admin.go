package handler

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"zahra/backend/internal/ledger"
	"zahra/backend/internal/users"

	"github.com/gin-gonic/gin"
)

const healthTimeout = 2 * time.Second

type pardonRequest struct {
	CommunityID string `json:"community_id" binding:"required"`
}

func (h *Handler) GetCase(c *gin.Context) {
	cs, err := h.Cases.GetCase(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, cs)
}

func (h *Handler) ListCases(c *gin.Context) {
	cases, err := h.Cases.ListCasesForUser(c.Request.Context(), c.Param("community"), c.Param("user"))
	if err != nil {
		h.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cases": cases})
}

func (h *Handler) PardonCase(c *gin.Context) {
	var req pardonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "community_id is required"})
		return
	}
	cs, err := h.Cases.Pardon(c.Request.Context(), c.Param("id"), req.CommunityID)
	if err != nil {
		h.apiError(c, err)
		return
	}
	h.Logger.Info("case pardoned via api", "case_id", cs.CaseID, "by", c.GetString(subjectKey))
	c.JSON(http.StatusOK, cs)
}

func (h *Handler) GetUser(c *gin.Context) {
	p, err := h.Users.GetProfile(c.Request.Context(), c.Param("user"))
	if err != nil {
		h.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": p.User, "links": p.Links})
}

// Health pings every registered dependency.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	failing := []string{}
	for name, p := range h.Checks {
		if err := p.Ping(ctx); err != nil {
			h.Logger.Warn("health check failed", "check", name, "error", err)
			failing = append(failing, name)
		}
	}
	if len(failing) > 0 {
		sort.Strings(failing)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "failing": failing})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) apiError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "case not found"})
	case errors.Is(err, ledger.ErrWrongScope):
		c.JSON(http.StatusForbidden, gin.H{"error": "case belongs to another community"})
	case errors.Is(err, ledger.ErrAlreadyInactive):
		c.JSON(http.StatusConflict, gin.H{"error": "case is already inactive"})
	case errors.Is(err, users.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	default:
		h.Logger.Error("api request failed", "path", c.Request.URL.Path, "error", err, "request_id", requestID(c))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
