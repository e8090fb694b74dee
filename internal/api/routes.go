package api

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/dag-consensus/internal/consensus"
	"github.com/rawblock/dag-consensus/internal/pubsub"
	"github.com/rawblock/dag-consensus/internal/quarantine"
	"github.com/rawblock/dag-consensus/pkg/dag"
)

// APIHandler exposes the DAG inspector HTTP surface: read-only record and
// tip lookups, plus operator admin endpoints over the soft-void registry.
type APIHandler struct {
	storage    consensus.Storage
	quarantine *quarantine.Registry
	hub        *pubsub.Hub
}

// SetupRouter wires every inspector endpoint, mirroring the teacher's
// public/protected group split and CORS middleware.
func SetupRouter(storage consensus.Storage, reg *quarantine.Registry, hub *pubsub.Hub) *gin.Engine {
	r := gin.Default()

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{storage: storage, quarantine: reg, hub: hub}

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/stream", hub.Subscribe)
		pub.GET("/records/:hash", handler.handleGetRecord)
		pub.GET("/tips", handler.handleGetTips)
	}

	auth := r.Group("/api/v1")
	auth.Use(AuthMiddleware())
	auth.Use(NewRateLimiter(30, 5).Middleware())
	{
		auth.GET("/quarantine", handler.handleListQuarantine)
		auth.POST("/quarantine/:hash", handler.handleAddQuarantine)
		auth.DELETE("/quarantine/:hash", handler.handleRemoveQuarantine)
	}

	return r
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	height, tip, err := h.storage.HeightIndex().GetHeightTip()
	status := "operational"
	if err != nil {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      status,
		"engine":      "dag-consensus",
		"bestHeight":  height,
		"bestTip":     tip.String(),
		"quarantined": h.quarantine.Size(),
	})
}

// handleGetRecord returns a record and its current metadata by hash.
func (h *APIHandler) handleGetRecord(c *gin.Context) {
	hash, err := dag.HashFromHex(c.Param("hash"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hash", "details": err.Error()})
		return
	}

	record, err := h.storage.GetRecord(hash)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found", "details": err.Error()})
		return
	}
	meta, err := h.storage.GetMetadata(hash)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "metadata lookup failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"record":   record,
		"metadata": metadataView(meta),
	})
}

// handleGetTips reports the current best-chain height/tip and the best
// block-tip set (including tied, voided heads pending resolution).
func (h *APIHandler) handleGetTips(c *gin.Context) {
	height, tip, err := h.storage.HeightIndex().GetHeightTip()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "height tip lookup failed", "details": err.Error()})
		return
	}
	tips, err := h.storage.BestBlockTips(false)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "best tip lookup failed", "details": err.Error()})
		return
	}

	tipStrs := make([]string, len(tips))
	for i, t := range tips {
		tipStrs[i] = t.String()
	}

	c.JSON(http.StatusOK, gin.H{
		"bestHeight": height,
		"bestTip":    tip.String(),
		"bestTips":   tipStrs,
	})
}

func (h *APIHandler) handleListQuarantine(c *gin.Context) {
	ids := h.quarantine.List()
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	c.JSON(http.StatusOK, gin.H{"soft_voided": strs})
}

func (h *APIHandler) handleAddQuarantine(c *gin.Context) {
	hash, err := dag.HashFromHex(c.Param("hash"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hash", "details": err.Error()})
		return
	}
	h.quarantine.Add(hash)
	c.JSON(http.StatusOK, gin.H{"soft_voided": hash.String()})
}

func (h *APIHandler) handleRemoveQuarantine(c *gin.Context) {
	hash, err := dag.HashFromHex(c.Param("hash"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hash", "details": err.Error()})
		return
	}
	h.quarantine.Remove(hash)
	c.JSON(http.StatusOK, gin.H{"removed": hash.String()})
}

// metadataView renders dag.Metadata's hash-keyed sets as hex strings,
// since JSON object keys must be strings and Hash has no natural one.
func metadataView(m *dag.Metadata) gin.H {
	voidedBy := make([]string, 0, m.VoidedBy.Len())
	for _, h := range m.VoidedBy.Slice() {
		voidedBy = append(voidedBy, h.String())
	}
	conflictWith := make([]string, len(m.ConflictWith))
	for i, h := range m.ConflictWith {
		conflictWith[i] = h.String()
	}

	return gin.H{
		"voided_by":          voidedBy,
		"conflict_with":      conflictWith,
		"executed":           m.IsExecuted(),
		"score":              m.Score,
		"score_set":          m.ScoreSet(),
		"accumulated_weight": m.AccumulatedWeight,
		"height":             m.Height,
		"first_block":        m.FirstBlock.String(),
	}
}
