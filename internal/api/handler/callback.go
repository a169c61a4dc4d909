package handler

import (
	"context"
	"errors"
	"net/http"

	"zahra/backend/internal/linking"
	"zahra/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type page struct {
	Title   string
	Body    string
	Hint    string
	Outcome string
}

// OAuthCallback finishes a linking attempt and renders a small result page.
// The requester is told the outcome in chat by the linking service; the page
// only mirrors it.
func (h *Handler) OAuthCallback(c *gin.Context) {
	platform, err := models.ParsePlatform(c.Param("platform"))
	if err != nil {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	cb := linking.Callback{
		Platform: platform,
		Code:     c.Query("code"),
		State:    c.Query("state"),
		Error:    c.Query("error"),
	}
	// closing the tab must not abort a verification that already spent the token
	ctx := context.WithoutCancel(c.Request.Context())

	res, err := h.Links.Complete(ctx, cb)
	switch {
	case errors.Is(err, linking.ErrMissingParams):
		h.render(c, http.StatusBadRequest, page{
			Title:   h.Texts.T("page_failed_title"),
			Body:    h.Texts.T("page_missing_params"),
			Outcome: "failure",
		})
		return
	case errors.Is(err, linking.ErrPlatformMismatch):
		h.render(c, http.StatusBadRequest, page{
			Title:   h.Texts.T("page_failed_title"),
			Body:    h.Texts.T("link_reason_platform_mismatch"),
			Outcome: "failure",
		})
		return
	case errors.Is(err, linking.ErrUnknownPlatform):
		c.AbortWithStatus(http.StatusNotFound)
		return
	case err != nil:
		h.Logger.Error("oauth callback failed", "platform", platform, "error", err, "request_id", requestID(c))
		h.render(c, http.StatusInternalServerError, page{
			Title:   h.Texts.T("page_error_title"),
			Body:    h.Texts.T("error_generic"),
			Outcome: "failure",
		})
		return
	}

	switch res.Status {
	case linking.StatusLinked:
		username := ""
		if res.Identity != nil {
			username = res.Identity.Username
		}
		h.render(c, http.StatusOK, page{
			Title:   h.Texts.T("page_verified_title"),
			Body:    h.Texts.T("page_verified_body", res.Platform.Label(), username),
			Outcome: "success",
		})
	case linking.StatusFailed:
		h.render(c, http.StatusOK, page{
			Title:   h.Texts.T("page_failed_title"),
			Body:    h.Links.ReasonText(res.Platform, res.Reason, res.Username),
			Outcome: "failure",
		})
	case linking.StatusCancelled:
		h.render(c, http.StatusOK, page{
			Title:   h.Texts.T("page_cancelled_title"),
			Body:    h.Texts.T("link_cancelled_body"),
			Outcome: "info",
		})
	default:
		h.render(c, http.StatusBadRequest, page{
			Title:   h.Texts.T("page_expired_title"),
			Body:    h.Texts.T("link_expired_body"),
			Outcome: "failure",
		})
	}
}

func (h *Handler) render(c *gin.Context, status int, p page) {
	p.Hint = h.Texts.T("page_hint")
	c.HTML(status, "callback.html", p)
}
