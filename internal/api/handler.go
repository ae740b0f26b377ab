package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront-service/internal/backend"
	"storefront-service/internal/cart"
	"storefront-service/internal/models"
	"storefront-service/internal/session"
	"storefront-service/internal/shipping"
	"storefront-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SessionHeader carries the storefront session id. The handler issues
// one when the client arrives without it.
const SessionHeader = "X-Session-ID"

// DraftStore persists in-progress checkout form snapshots
type DraftStore interface {
	SaveDraft(ctx context.Context, sessionID string, draft models.CheckoutDraft, ttl time.Duration) error
	LoadDraft(ctx context.Context, sessionID string) (*models.CheckoutDraft, error)
	ClearDraft(ctx context.Context, sessionID string) error
}

// CheckoutPublisher publishes checkout completion events
type CheckoutPublisher interface {
	PublishCheckoutCompleted(ctx context.Context, event *models.CheckoutCompletedEvent) error
}

// Handler contains the storefront HTTP handlers
type Handler struct {
	sessions *session.Manager
	quoter   *shipping.Quoter
	drafts   DraftStore
	events   CheckoutPublisher
	draftTTL time.Duration
	logger   *zap.Logger
}

// NewHandler creates the storefront HTTP handler
func NewHandler(sessions *session.Manager, quoter *shipping.Quoter, drafts DraftStore, events CheckoutPublisher, draftTTL time.Duration) *Handler {
	return &Handler{
		sessions: sessions,
		quoter:   quoter,
		drafts:   drafts,
		events:   events,
		draftTTL: draftTTL,
		logger:   util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/cart", h.getCart)
		v1.POST("/cart/items", h.addItem)
		v1.PUT("/cart/items/:productID", h.updateQuantity)
		v1.DELETE("/cart/items/:productID", h.removeItem)
		v1.DELETE("/cart", h.clearCart)

		v1.PUT("/checkout/contact", h.setContact)
		v1.GET("/checkout/draft", h.getDraft)
		v1.PUT("/checkout/draft", h.saveDraft)
		v1.DELETE("/checkout/draft", h.clearDraft)
		v1.POST("/checkout/complete", h.completeCheckout)

		v1.POST("/shipping/quote", h.shippingQuote)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// sessionOf resolves the visitor's session, issuing a fresh id when
// the request carries none
func (h *Handler) sessionOf(c *gin.Context) *session.Session {
	id := c.GetHeader(SessionHeader)
	if id == "" {
		id = uuid.New().String()
	}
	c.Header(SessionHeader, id)
	return h.sessions.Get(id)
}

// getCart loads the cart, falling back to the snapshot cache when the
// backend is unreachable
func (h *Handler) getCart(c *gin.Context) {
	s := h.sessionOf(c)

	res, err := s.Controller.Load(c.Request.Context())
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type addItemRequest struct {
	ProductID int64   `json:"product_id" binding:"required"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Stock     int     `json:"stock"`
	Quantity  *int    `json:"quantity"`
}

// addItem adds a product line to the session cart
func (h *Handler) addItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	s := h.sessionOf(c)
	product := models.ProductSnapshot{
		ID:        req.ProductID,
		Name:      req.Name,
		UnitPrice: req.UnitPrice,
		Stock:     req.Stock,
	}

	res, err := s.Controller.AddItem(c.Request.Context(), product, quantity)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type updateQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

// updateQuantity replaces a line quantity; zero removes the line
func (h *Handler) updateQuantity(c *gin.Context) {
	productID, ok := h.productIDParam(c)
	if !ok {
		return
	}

	var req updateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	s := h.sessionOf(c)
	res, err := s.Controller.UpdateQuantity(c.Request.Context(), productID, *req.Quantity)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// removeItem removes a product line; removing an absent line succeeds
func (h *Handler) removeItem(c *gin.Context) {
	productID, ok := h.productIDParam(c)
	if !ok {
		return
	}

	s := h.sessionOf(c)
	res, err := s.Controller.RemoveItem(c.Request.Context(), productID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// clearCart empties the cart
func (h *Handler) clearCart(c *gin.Context) {
	s := h.sessionOf(c)

	res, err := s.Controller.Clear(c.Request.Context())
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// setContact records checkout contact fields and feeds the
// abandoned-cart watcher
func (h *Handler) setContact(c *gin.Context) {
	var contact models.Contact
	if err := c.ShouldBindJSON(&contact); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	s := h.sessionOf(c)
	s.Watcher.SetContact(contact)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type draftRequest struct {
	Contact models.Contact    `json:"contact"`
	Fields  map[string]string `json:"fields"`
}

// saveDraft stores the in-progress checkout form with a fixed expiry
func (h *Handler) saveDraft(c *gin.Context) {
	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	s := h.sessionOf(c)
	draft := models.CheckoutDraft{
		Contact: req.Contact,
		Fields:  req.Fields,
		SavedAt: time.Now(),
	}
	if err := h.drafts.SaveDraft(c.Request.Context(), s.ID, draft, h.draftTTL); err != nil {
		h.logger.Warn("Failed to save checkout draft", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save draft"})
		return
	}

	if req.Contact.Phone != "" {
		s.Watcher.SetContact(req.Contact)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// getDraft returns the stored checkout draft, if any
func (h *Handler) getDraft(c *gin.Context) {
	s := h.sessionOf(c)

	draft, err := h.drafts.LoadDraft(c.Request.Context(), s.ID)
	if err != nil {
		h.logger.Warn("Failed to load checkout draft", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load draft"})
		return
	}
	if draft == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No draft"})
		return
	}
	c.JSON(http.StatusOK, draft)
}

// clearDraft drops the stored checkout draft
func (h *Handler) clearDraft(c *gin.Context) {
	s := h.sessionOf(c)

	if err := h.drafts.ClearDraft(c.Request.Context(), s.ID); err != nil {
		h.logger.Warn("Failed to clear checkout draft", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// completeCheckout finishes the order flow: the pending abandoned-cart
// report is cancelled, the cart and draft are cleared and the
// completion event goes out for other instances
func (h *Handler) completeCheckout(c *gin.Context) {
	s := h.sessionOf(c)
	ctx := c.Request.Context()

	total := s.Controller.Current().Cart.TotalPrice

	var contact models.Contact
	_ = c.ShouldBindJSON(&contact)

	s.Watcher.CheckoutCompleted(ctx)

	res, err := s.Controller.Clear(ctx)
	if err != nil {
		h.renderError(c, err)
		return
	}

	if err := h.drafts.ClearDraft(ctx, s.ID); err != nil {
		h.logger.Warn("Failed to clear checkout draft", zap.Error(err))
	}

	if h.events != nil {
		event := &models.CheckoutCompletedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeCheckoutCompleted,
				Timestamp: time.Now(),
			},
			SessionID:  s.ID,
			Phone:      contact.Phone,
			TotalPrice: total,
		}
		if err := h.events.PublishCheckoutCompleted(ctx, event); err != nil {
			h.logger.Error("Failed to publish CheckoutCompleted event", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, res)
}

type quoteRequest struct {
	Destination models.Coordinate `json:"destination" binding:"required"`
	Method      string            `json:"shipping_method" binding:"required"`
	OrderAmount float64           `json:"order_amount"`
}

// shippingQuote prices a delivery to the given destination
func (h *Handler) shippingQuote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	quote, err := h.quoter.Quote(c.Request.Context(), req.Destination, req.Method, req.OrderAmount)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *Handler) productIDParam(c *gin.Context) (int64, bool) {
	idStr := c.Param("productID")
	productID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return 0, false
	}
	return productID, true
}

// renderError maps the error taxonomy onto HTTP statuses: validation
// errors are 400, backend rejections keep their status, contract
// violations and connectivity problems surface as 502 with the
// previous state retained server-side
func (h *Handler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, cart.ErrInsufficientStock):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, backend.ErrBadResponse):
		c.JSON(http.StatusBadGateway, gin.H{"error": "The shop backend returned an unexpected response"})
	case backend.IsUnavailable(err):
		c.JSON(http.StatusBadGateway, gin.H{"error": "The shop backend is unreachable"})
	default:
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) {
			c.JSON(apiErr.Status, gin.H{"error": apiErr.Message})
			return
		}
		h.logger.Error("Unhandled error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
