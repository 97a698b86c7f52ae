// Package api is the benchmark monitor surface: a small gin router serving
// recorded observations plus a websocket hub streaming completions live to
// dashboards.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nislab/gensync/internal/bench"
	"github.com/nislab/gensync/internal/db"
)

type APIHandler struct {
	dbStore *db.PostgresStore
	wsHub   *Hub
}

// SetupRouter wires the monitor endpoints. dbStore may be nil; the
// history endpoints then answer 503 while the live hub still works.
func SetupRouter(dbStore *db.PostgresStore, wsHub *Hub) *gin.Engine {
	r := gin.Default()
	h := &APIHandler{dbStore: dbStore, wsHub: wsHub}

	r.GET("/healthz", h.health)
	r.GET("/observations", h.observations)
	r.GET("/summaries", h.summaries)
	r.GET("/ws", wsHub.Subscribe)

	return r
}

func (h *APIHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"persisted": h.dbStore != nil,
	})
}

func (h *APIHandler) observations(c *gin.Context) {
	if h.dbStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no observation store configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	obs, err := h.dbStore.RecentObservations(c.Request.Context(), limit)
	if err != nil {
		log.Printf("Warning: listing observations: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, obs)
}

func (h *APIHandler) summaries(c *gin.Context) {
	if h.dbStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no observation store configured"})
		return
	}
	sums, err := h.dbStore.Summaries(c.Request.Context())
	if err != nil {
		log.Printf("Warning: summarizing observations: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, sums)
}

// BroadcastObservation pushes a completed observation to every dashboard.
func BroadcastObservation(hub *Hub, o *bench.BenchObserv) {
	if hub == nil {
		return
	}
	payload, err := json.Marshal(o)
	if err != nil {
		log.Printf("Warning: marshaling observation: %v", err)
		return
	}
	hub.Broadcast(payload)
}
