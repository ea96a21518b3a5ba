package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marketboard/mbsync/internal/api"
	"github.com/marketboard/mbsync/internal/market"
	"github.com/marketboard/mbsync/internal/world"
)

func (s *Server) getHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	components := gin.H{}
	for _, hc := range s.checks {
		if err := hc.check(ctx); err != nil {
			status = "unhealthy"
			components[hc.name] = gin.H{"status": "down", "error": err.Error()}
			continue
		}
		components[hc.name] = gin.H{"status": "up"}
	}
	components["push"] = gin.H{"connected": s.coord.IsConnected()}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "components": components})
}

func (s *Server) getStatus(c *gin.Context) {
	resp := gin.H{
		"connected":     s.coord.IsConnected(),
		"watched":       len(s.coord.Watched()),
		"uptimeSeconds": int64(time.Since(s.started).Seconds()),
	}

	if s.conn != nil {
		st := s.conn.Stats()
		resp["connection"] = gin.H{
			"state":             st.State.String(),
			"sessionId":         st.SessionID,
			"subscriptions":     st.Subscriptions,
			"connects":          st.Connects,
			"connectFailures":   st.ConnectFailures,
			"drops":             st.Drops,
			"framesReceived":    st.FramesReceived,
			"reconnectAttempts": st.ReconnectAttempts,
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) listWatched(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": s.coord.Watched()})
}

func (s *Server) listWorlds(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"regions": world.Regions()})
}

func (s *Server) getItem(c *gin.Context) {
	itemID, ok := parseItemID(c)
	if !ok {
		return
	}

	snap, found := s.coord.Query(itemID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot for item"})
		return
	}
	c.JSON(http.StatusOK, toSnapshotJSON(snap, s.coord.IsWatched(itemID)))
}

func (s *Server) watchItem(c *gin.Context) {
	itemID, ok := parseItemID(c)
	if !ok {
		return
	}

	snap, err := s.coord.Watch(c.Request.Context(), itemID, c.Query("world"))
	if err != nil {
		s.writeError(c, itemID, err)
		return
	}
	c.JSON(http.StatusOK, toSnapshotJSON(snap, true))
}

func (s *Server) unwatchItem(c *gin.Context) {
	itemID, ok := parseItemID(c)
	if !ok {
		return
	}

	if err := s.coord.Unwatch(itemID); err != nil {
		s.writeError(c, itemID, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) refreshItem(c *gin.Context) {
	itemID, ok := parseItemID(c)
	if !ok {
		return
	}

	snap, err := s.coord.Refresh(c.Request.Context(), itemID)
	if err != nil {
		s.writeError(c, itemID, err)
		return
	}
	c.JSON(http.StatusOK, toSnapshotJSON(snap, true))
}

func parseItemID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return 0, false
	}
	return id, true
}

// writeError maps coordinator errors to HTTP responses. A failed fetch
// leaves the watch in place, so the response says whether the item is still
// watched.
func (s *Server) writeError(c *gin.Context, itemID int, err error) {
	status := http.StatusInternalServerError
	body := gin.H{"error": err.Error()}

	var fe *api.FetchError
	switch {
	case errors.Is(err, market.ErrInvalidItem), errors.Is(err, world.ErrUnknownWorld):
		status = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.As(err, &fe):
		status = http.StatusBadGateway
		body["kind"] = fe.Kind.String()
		body["retryable"] = fe.IsRetryable()
		if fe.StatusCode != 0 {
			body["upstreamStatus"] = fe.StatusCode
		}
	case errors.Is(err, market.ErrNotWatched):
		status = http.StatusNotFound
		if s.coord.IsWatched(itemID) {
			// The watch was replaced while the fetch ran.
			status = http.StatusConflict
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", "item_id", itemID, "status", status, "error", err)
	}
	if status == http.StatusBadGateway || status == http.StatusGatewayTimeout {
		body["watched"] = s.coord.IsWatched(itemID)
	}
	c.JSON(status, body)
}
