package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PhillipSMartin/StJames/internal/domain/event"
)

type eventPayload struct {
	Access      event.AccessScope `json:"access"`
	DateID      string            `json:"date_id"`
	Title       string            `json:"title"`
	Time        string            `json:"time,omitempty"`
	Description string            `json:"description,omitempty"`
	Post        []event.Website   `json:"post"`
	Posting     []event.Website   `json:"posting"`
	Posted      []event.Website   `json:"posted"`
	Version     int64             `json:"version"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func eventResponse(ev *event.Event) eventPayload {
	return eventPayload{
		Access:      ev.Access,
		DateID:      ev.DateID,
		Title:       ev.Title,
		Time:        ev.Time,
		Description: ev.Description,
		Post:        emptyIfNil(ev.Post),
		Posting:     emptyIfNil(ev.Posting),
		Posted:      emptyIfNil(ev.Posted),
		Version:     ev.Version,
		CreatedAt:   ev.CreatedAt,
		UpdatedAt:   ev.UpdatedAt,
	}
}

func emptyIfNil(list []event.Website) []event.Website {
	if list == nil {
		return []event.Website{}
	}
	return list
}

type createEventRequest struct {
	Access      string          `json:"access"`
	Title       string          `json:"title"`
	Date        string          `json:"date"`
	DateID      string          `json:"date_id"`
	Time        string          `json:"time"`
	Description string          `json:"description"`
	Post        []event.Website `json:"post"`
	Posting     []event.Website `json:"posting"`
	Posted      []event.Website `json:"posted"`
}

func (r *Router) CreateEvent(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid JSON body"})
		return
	}

	if !event.ValidAccess(req.Access) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "access must be 'public' or 'private'"})
		return
	}

	// Accept either a pre-built date_id or a bare date.
	dateID := req.DateID
	switch {
	case dateID != "":
		if !event.ValidDateID(dateID) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "date_id must match 'YYYY-MM-DD#GUID'"})
			return
		}
	case req.Date != "":
		generated, err := event.NewDateID(req.Date)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"message": err.Error()})
			return
		}
		dateID = generated
	default:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "provide either 'date_id' as 'YYYY-MM-DD#GUID' or 'date' as 'YYYY-MM-DD'"})
		return
	}

	ev := &event.Event{
		Access:      event.AccessScope(req.Access),
		DateID:      dateID,
		Title:       req.Title,
		Time:        req.Time,
		Description: req.Description,
		Post:        req.Post,
		Posting:     req.Posting,
		Posted:      req.Posted,
	}
	if err := ev.ValidateBuckets(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": err.Error()})
		return
	}

	if err := r.repo.Create(c.Request.Context(), ev); err != nil {
		if errors.Is(err, event.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"message": "Item already exists"})
			return
		}
		r.logger.Error("event_create_failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	location := fmt.Sprintf("/events/%s/%s", ev.Access, ev.DateID)
	c.Header("Location", location)
	c.JSON(http.StatusCreated, gin.H{
		"message":  "Created",
		"item":     eventResponse(ev),
		"location": location,
	})
}

func (r *Router) ListEvents(c *gin.Context) {
	access := c.Param("access")
	if !event.ValidAccess(access) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "access must be 'public' or 'private'"})
		return
	}

	limit := r.cfg.ListPageSize
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "limit must be a positive integer"})
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}

	events, err := r.repo.List(c.Request.Context(), event.AccessScope(access), limit)
	if err != nil {
		r.logger.Error("event_list_failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	items := make([]eventPayload, 0, len(events))
	for _, ev := range events {
		items = append(items, eventResponse(ev))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (r *Router) GetEvent(c *gin.Context) {
	access, dateID, ok := r.eventKey(c)
	if !ok {
		return
	}

	ev, err := r.repo.Get(c.Request.Context(), access, dateID)
	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
			return
		}
		r.logger.Error("event_get_failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": eventResponse(ev)})
}

// updateEventRequest restricts mutation to the field allowlist. Pointers
// distinguish "absent" from "set to empty".
type updateEventRequest struct {
	Title       *string          `json:"title"`
	Time        *string          `json:"time"`
	Description *string          `json:"description"`
	Post        *[]event.Website `json:"post"`
	Posting     *[]event.Website `json:"posting"`
	Posted      *[]event.Website `json:"posted"`
}

func (r *Router) UpdateEvent(c *gin.Context) {
	access, dateID, ok := r.eventKey(c)
	if !ok {
		return
	}

	var req updateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid JSON body"})
		return
	}

	existing, err := r.repo.Get(c.Request.Context(), access, dateID)
	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
			return
		}
		r.logger.Error("event_read_before_update_failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	if req.Title != nil {
		existing.Title = *req.Title
	}
	if req.Time != nil {
		existing.Time = *req.Time
	}
	if req.Description != nil {
		existing.Description = *req.Description
	}
	if req.Post != nil {
		existing.Post = *req.Post
	}
	if req.Posting != nil {
		existing.Posting = *req.Posting
	}
	if req.Posted != nil {
		existing.Posted = *req.Posted
	}

	if err := existing.ValidateBuckets(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": err.Error()})
		return
	}

	// The update shares the version guard with status transitions, so a
	// claim landing between our read and this write makes the stale update
	// lose rather than silently erase bucket membership.
	if err := r.repo.SaveConditioned(c.Request.Context(), existing, existing.Version); err != nil {
		switch {
		case errors.Is(err, event.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
		case errors.Is(err, event.ErrVersionConflict):
			c.JSON(http.StatusConflict, gin.H{"message": "Item was modified concurrently; re-read and retry"})
		default:
			r.logger.Error("event_update_failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Updated", "item": eventResponse(existing)})
}

func (r *Router) DeleteEvent(c *gin.Context) {
	access, dateID, ok := r.eventKey(c)
	if !ok {
		return
	}

	if err := r.repo.Delete(c.Request.Context(), access, dateID); err != nil {
		if errors.Is(err, event.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
			return
		}
		r.logger.Error("event_delete_failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Deleted"})
}

func (r *Router) eventKey(c *gin.Context) (event.AccessScope, string, bool) {
	access := c.Param("access")
	dateID := c.Param("date_id")

	if !event.ValidAccess(access) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "access must be 'public' or 'private'"})
		return "", "", false
	}
	if !event.ValidDateID(dateID) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "date_id must match 'YYYY-MM-DD#GUID'"})
		return "", "", false
	}
	return event.AccessScope(access), dateID, true
}
