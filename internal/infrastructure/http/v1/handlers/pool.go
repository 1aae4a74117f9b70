package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"cardvault/internal/core/apperror"
	"cardvault/internal/domain/cardpool"
	"cardvault/internal/infrastructure/http/v1/dto"
)

// NumberPool is the cache surface exposed to administrators.
type NumberPool interface {
	Stats() cardpool.Stats
	Refill(ctx context.Context) (bool, error)
}

// PoolStock counts numbers waiting in the durable store.
type PoolStock interface {
	Count(ctx context.Context) (int, error)
}

// PoolHandler exposes card number pool statistics and manual top-ups.
type PoolHandler struct {
	*BaseHandler
	pool  NumberPool
	stock PoolStock
}

// NewPoolHandler creates a new pool handler.
func NewPoolHandler(base *BaseHandler, pool NumberPool, stock PoolStock) *PoolHandler {
	return &PoolHandler{BaseHandler: base, pool: pool, stock: stock}
}

// Stats handles GET /admin/pool
func (h *PoolHandler) Stats(c *gin.Context) {
	stats, err := h.stats(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, stats)
}

// Fill handles POST /admin/pool/fill. It tops the buffer up to capacity
// unless another refill is already running.
func (h *PoolHandler) Fill(c *gin.Context) {
	ctx := c.Request.Context()

	ran, err := h.pool.Refill(ctx)
	if err != nil {
		h.Error(c, apperror.NewCardGenerationFailed(err))
		return
	}

	stats, err := h.stats(ctx)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.PoolFillResponse{Ran: ran, Stats: stats})
}

func (h *PoolHandler) stats(ctx context.Context) (dto.PoolStatsResponse, error) {
	stored, err := h.stock.Count(ctx)
	if err != nil {
		return dto.PoolStatsResponse{}, err
	}
	return dto.FromPoolStats(h.pool.Stats(), stored), nil
}

// RegisterRoutes registers pool routes.
func (h *PoolHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.Stats)
	rg.POST("/fill", h.Fill)
}
