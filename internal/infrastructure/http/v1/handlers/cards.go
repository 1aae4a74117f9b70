package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"cardvault/internal/core/apperror"
	"cardvault/internal/core/id"
	"cardvault/internal/domain/cards"
	"cardvault/internal/infrastructure/http/v1/dto"
)

// CardService is the card use-case surface the HTTP API needs.
type CardService interface {
	Issue(ctx context.Context, holderID id.ID) (*cards.View, error)
	Block(ctx context.Context, cardID id.ID) (*cards.View, error)
	Activate(ctx context.Context, cardID id.ID) (*cards.View, error)
	Delete(ctx context.Context, cardID id.ID) error
	ListAll(ctx context.Context, filter cards.ListFilter) (*cards.List, error)
	ListMine(ctx context.Context, page cards.Page, search string) (*cards.List, error)
	Balance(ctx context.Context, cardID id.ID) (*cards.Balance, error)
	FullNumber(ctx context.Context, cardID id.ID) (*cards.FullNumber, error)
	RequestBlock(ctx context.Context, cardID id.ID) (*cards.View, error)
	Transfer(ctx context.Context, req cards.TransferRequest) (*cards.TransferResult, error)
}

var _ CardService = (*cards.Service)(nil)

// CardHandler handles administrator and holder card endpoints.
type CardHandler struct {
	*BaseHandler
	service CardService
}

// NewCardHandler creates a new card handler.
func NewCardHandler(base *BaseHandler, service CardService) *CardHandler {
	return &CardHandler{BaseHandler: base, service: service}
}

// Issue handles POST /admin/cards
func (h *CardHandler) Issue(c *gin.Context) {
	var req dto.IssueCardRequest
	if !h.BindJSON(c, &req) {
		return
	}
	holderID, err := id.Parse(req.HolderID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid holderId"))
		return
	}

	view, err := h.service.Issue(c.Request.Context(), holderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromCardView(view))
}

// ListAll handles GET /admin/cards
func (h *CardHandler) ListAll(c *gin.Context) {
	var q dto.AdminCardsQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	list, err := h.service.ListAll(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromCardList(list))
}

// Block handles POST /admin/cards/:id/block
func (h *CardHandler) Block(c *gin.Context) {
	h.changeStatus(c, h.service.Block)
}

// Activate handles POST /admin/cards/:id/activate
func (h *CardHandler) Activate(c *gin.Context) {
	h.changeStatus(c, h.service.Activate)
}

// RequestBlock handles POST /cards/:id/block
func (h *CardHandler) RequestBlock(c *gin.Context) {
	h.changeStatus(c, h.service.RequestBlock)
}

func (h *CardHandler) changeStatus(c *gin.Context, fn func(context.Context, id.ID) (*cards.View, error)) {
	cardID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	view, err := fn(c.Request.Context(), cardID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromCardView(view))
}

// Delete handles DELETE /admin/cards/:id
func (h *CardHandler) Delete(c *gin.Context) {
	cardID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), cardID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// ListMine handles GET /cards
func (h *CardHandler) ListMine(c *gin.Context) {
	var q dto.MyCardsQuery
	if !h.BindQuery(c, &q) {
		return
	}

	list, err := h.service.ListMine(c.Request.Context(), cards.Page{Limit: q.Limit, Offset: q.Offset}, q.Search)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromCardList(list))
}

// Balance handles GET /cards/:id/balance
func (h *CardHandler) Balance(c *gin.Context) {
	cardID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	balance, err := h.service.Balance(c.Request.Context(), cardID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromBalance(balance))
}

// FullNumber handles GET /cards/:id/number
func (h *CardHandler) FullNumber(c *gin.Context) {
	cardID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	number, err := h.service.FullNumber(c.Request.Context(), cardID)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	h.OK(c, dto.CardNumberResponse{CardID: number.CardID.String(), Number: number.Number})
}

// Transfer handles POST /cards/transfer
func (h *CardHandler) Transfer(c *gin.Context) {
	var req dto.TransferRequest
	if !h.BindJSON(c, &req) {
		return
	}
	transfer, err := req.ToDomain()
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.service.Transfer(c.Request.Context(), transfer)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromTransfer(result))
}

// RegisterAdminRoutes registers administrator card routes.
func (h *CardHandler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Issue)
	rg.GET("", h.ListAll)
	rg.POST("/:id/block", h.Block)
	rg.POST("/:id/activate", h.Activate)
	rg.DELETE("/:id", h.Delete)
}

// RegisterHolderRoutes registers card holder routes.
func (h *CardHandler) RegisterHolderRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.ListMine)
	rg.GET("/:id/balance", h.Balance)
	rg.GET("/:id/number", h.FullNumber)
	rg.POST("/:id/block", h.RequestBlock)
	rg.POST("/transfer", h.Transfer)
}
