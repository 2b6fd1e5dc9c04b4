package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PhillipSMartin/StJames/internal/domain/event"
	"github.com/PhillipSMartin/StJames/internal/transition"
)

// TransitionStatus performs exactly one status transition for an (event,
// website) pair. Parameters arrive as query parameters: sort-key, website,
// new-status, and optional old-status. Every failure kind reports 400 with a
// human-readable reason.
func (r *Router) TransitionStatus(c *gin.Context) {
	sortKey := c.Query("sort-key")
	website := c.Query("website")
	newStatus := c.Query("new-status")
	oldStatus := c.Query("old-status")

	if sortKey == "" || website == "" || newStatus == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "sort-key, new-status, and website parameters are required"})
		return
	}

	target, err := parseStatus(newStatus)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	var expected *event.Status
	if oldStatus != "" {
		parsed, err := parseStatus(oldStatus)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
		expected = &parsed
	}

	err = r.transitions.Transition(c.Request.Context(), sortKey, event.Website(website), expected, target)
	if err != nil {
		switch {
		case errors.Is(err, event.ErrNotFound),
			errors.Is(err, transition.ErrStatusMismatch),
			errors.Is(err, transition.ErrConcurrencyExhausted):
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		default:
			var validationErr *event.ValidationError
			if errors.As(err, &validationErr) {
				c.JSON(http.StatusBadRequest, gin.H{"message": validationErr.Reason})
				return
			}
			r.logger.Error("status_transition_failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		}
		return
	}

	msg := fmt.Sprintf("Successfully updated status of %s to %s for %s", sortKey, target, website)
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func parseStatus(s string) (event.Status, error) {
	switch event.Status(s) {
	case event.StatusPost, event.StatusPosting, event.StatusPosted:
		return event.Status(s), nil
	default:
		return event.StatusUnknown, fmt.Errorf("status %q must be one of post/posting/posted", s)
	}
}
