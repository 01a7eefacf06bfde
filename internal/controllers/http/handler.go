package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/repository"
	"marketplace-orders/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	trackingCacheKey = "shipping:track:"
	trackingCacheTTL = 10 * time.Second
)

type Services struct {
	Orders   *services.OrderService
	Payments *services.PaymentService
	Shipping *services.ShippingService
	Chat     *services.ChatService
}

type Handler struct {
	svc         Services
	rdb         *redis.Client
	frontendURL string
	limits      map[string]*RateLimiter
}

// NewHandler wires the routes to svc. rdb may be nil, in which case
// tracking lookups are not cached.
func NewHandler(svc Services, rdb *redis.Client, frontendURL string) *Handler {
	h := &Handler{svc: svc, rdb: rdb, frontendURL: frontendURL, limits: map[string]*RateLimiter{}}
	for _, p := range []RateProfile{ProfileGeneral, ProfileStrict, ProfileVeryStrict, ProfilePublic} {
		h.limits[p.Name] = NewRateLimiter(p)
	}
	return h
}

func (h *Handler) limit(p RateProfile) gin.HandlerFunc {
	return h.limits[p.Name].Middleware()
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/payments/paypal/callback", h.limit(ProfilePublic), h.PayPalCallback)
	api.GET("/shipping/track/:trackingNumber", h.limit(ProfilePublic), h.TrackShipment)

	general := h.limit(ProfileGeneral)

	buyers := api.Group("/buyers", Identity())
	buyers.POST("/orders", general, h.CreateOrder)
	buyers.GET("/orders", general, h.ListOrders)
	buyers.GET("/orders/:id", general, h.GetOrder)
	buyers.PUT("/orders/:id/cancel", general, h.CancelOrder)
	buyers.POST("/payments", h.limit(ProfileStrict), h.CreatePayment)
	buyers.GET("/payments/status/:orderId", general, h.GetPaymentStatus)
	buyers.POST("/chatbot/chat", h.limit(ProfileVeryStrict), h.Chat)

	sellers := api.Group("/sellers", Identity())
	sellers.GET("/orders/items", general, h.ListSellerItems)
	sellers.PUT("/orders/items/:id/status", general, h.UpdateItemStatus)
	sellers.POST("/shipping", general, h.CreateTracking)
	sellers.GET("/shipping", general, h.ListShipments)
	sellers.GET("/shipping/stats", general, h.ShippingStats)
	sellers.PUT("/shipping/:id/status", general, h.UpdateShippingStatus)
}

func paramID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}

func pageQuery(c *gin.Context) (repository.Page, bool) {
	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return repository.Page{}, false
	}
	return repository.Page{Page: q.Page, Limit: q.Limit, Status: q.Status}, true
}

func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	in := services.CreateOrderInput{
		BuyerID:     userID(c),
		AddressID:   req.AddressID,
		VoucherCode: req.VoucherCode,
	}
	for _, it := range req.Items {
		in.Lines = append(in.Lines, services.OrderLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	receipt, err := h.svc.Orders.CreateOrder(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, receipt)
}

func (h *Handler) ListOrders(c *gin.Context) {
	page, valid := pageQuery(c)
	if !valid {
		return
	}
	res, err := h.svc.Orders.ListOrders(c.Request.Context(), userID(c), page)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func (h *Handler) GetOrder(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	view, err := h.svc.Orders.GetOrderById(c.Request.Context(), userID(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, view)
}

func (h *Handler) CancelOrder(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	if err := h.svc.Orders.CancelOrder(c.Request.Context(), userID(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "order cancelled"})
}

func (h *Handler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.svc.Payments.CreatePayment(c.Request.Context(), services.CreatePaymentInput{
		UserID:          userID(c),
		OrderID:         req.OrderID,
		Method:          req.Method,
		ReplaceExisting: req.ReplaceExisting,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, res)
}

func (h *Handler) GetPaymentStatus(c *gin.Context) {
	orderID, valid := paramID(c, "orderId")
	if !valid {
		return
	}
	p, err := h.svc.Payments.GetPaymentStatus(c.Request.Context(), userID(c), orderID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// PayPalCallback settles the payment and sends the buyer to the frontend
// result page. It always redirects, even on failure.
func (h *Handler) PayPalCallback(c *gin.Context) {
	orderID, _ := strconv.ParseUint(c.Query("orderId"), 10, 64)
	success, _ := strconv.ParseBool(c.Query("success"))

	res, err := h.svc.Payments.HandleCallback(c.Request.Context(), services.CallbackInput{
		OrderID: orderID,
		Token:   c.Query("token"),
		Success: success,
	})

	status, reason := "failed", "error"
	switch {
	case errors.Is(err, domain.ErrNotFound):
		reason = services.OutcomeNotFound
	case errors.Is(err, domain.ErrValidation):
		reason = "invalid_request"
	case err != nil:
		log.Printf("[http] paypal callback order %d: %v", orderID, err)
	default:
		reason = res.Outcome
		if res.Outcome == services.OutcomePaid {
			status = "success"
		}
	}

	q := url.Values{}
	q.Set("orderId", strconv.FormatUint(orderID, 10))
	q.Set("status", status)
	q.Set("reason", reason)
	c.Redirect(http.StatusFound, h.frontendURL+"/payment-result?"+q.Encode())
}

func (h *Handler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	resp, err := h.svc.Chat.Chat(c.Request.Context(), userID(c), req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) UpdateItemStatus(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req UpdateItemStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	item, err := h.svc.Orders.UpdateItemStatus(c.Request.Context(), userID(c), id, req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, item)
}

func (h *Handler) ListSellerItems(c *gin.Context) {
	page, valid := pageQuery(c)
	if !valid {
		return
	}
	res, err := h.svc.Shipping.ListSellerItems(c.Request.Context(), userID(c), page)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func (h *Handler) CreateTracking(c *gin.Context) {
	var req CreateTrackingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	info, err := h.svc.Shipping.CreateTracking(c.Request.Context(), services.CreateTrackingInput{
		SellerID:         userID(c),
		OrderItemID:      req.OrderItemID,
		Carrier:          req.Carrier,
		EstimatedArrival: req.EstimatedArrival,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, info)
}

func (h *Handler) UpdateShippingStatus(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req UpdateShippingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	info, err := h.svc.Shipping.UpdateShippingStatus(c.Request.Context(), services.UpdateShippingInput{
		SellerID:   userID(c),
		ShippingID: id,
		Status:     req.Status,
		Location:   req.Location,
		Notes:      req.Notes,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	if h.rdb != nil {
		h.rdb.Del(context.Background(), trackingCacheKey+info.TrackingNumber)
	}
	ok(c, http.StatusOK, info)
}

func (h *Handler) ListShipments(c *gin.Context) {
	page, valid := pageQuery(c)
	if !valid {
		return
	}
	res, err := h.svc.Shipping.ListShipments(c.Request.Context(), userID(c), page)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func (h *Handler) ShippingStats(c *gin.Context) {
	stats, err := h.svc.Shipping.Stats(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, stats)
}

// TrackShipment is public and answers from a short-lived redis copy when
// one exists.
func (h *Handler) TrackShipment(c *gin.Context) {
	number := c.Param("trackingNumber")
	cacheKey := trackingCacheKey + number
	ctx := c.Request.Context()

	if h.rdb != nil {
		if b, err := h.rdb.Get(ctx, cacheKey).Bytes(); err == nil {
			var info domain.ShippingInfo
			if json.Unmarshal(b, &info) == nil {
				ok(c, http.StatusOK, info)
				return
			}
		}
	}

	info, err := h.svc.Shipping.Track(ctx, number)
	if err != nil {
		writeError(c, err)
		return
	}

	if h.rdb != nil {
		data, _ := json.Marshal(info)
		h.rdb.Set(ctx, cacheKey, data, trackingCacheTTL)
	}
	ok(c, http.StatusOK, info)
}
