package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"rental-service/internal/auth"
	"rental-service/internal/models"
	"rental-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency checked by the readiness check
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the HTTP layer
type Options struct {
	AllowedOrigins  []string
	RateLimitPerSec float64
	RateLimitBurst  int
	ListingCacheTTL time.Duration
	// Readiness maps a dependency name to its check
	Readiness map[string]Pinger
}

// Handler contains HTTP handlers
type Handler struct {
	accounts *service.AccountService
	listings *service.ListingService
	bookings *service.BookingService
	tokens   *auth.TokenManager
	opts     Options
	cache    *cache.Cache
}

// NewHandler creates a new HTTP handler. Cached listing responses are dropped
// whenever a listing or booking changes.
func NewHandler(
	accounts *service.AccountService,
	listings *service.ListingService,
	bookings *service.BookingService,
	tokens *auth.TokenManager,
	opts Options,
) *Handler {
	h := &Handler{
		accounts: accounts,
		listings: listings,
		bookings: bookings,
		tokens:   tokens,
		opts:     opts,
		cache:    cache.New(opts.ListingCacheTTL, 2*opts.ListingCacheTTL+time.Minute),
	}
	listings.OnChange(h.FlushCache)
	bookings.OnChange(h.FlushCache)
	return h
}

// FlushCache drops every cached listing response
func (h *Handler) FlushCache() {
	h.cache.Flush()
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())
	router.Use(corsMiddleware(h.opts.AllowedOrigins))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limited := rateLimitMiddleware(h.opts.RateLimitPerSec, h.opts.RateLimitBurst)
	cached := cacheMiddleware(h.cache, h.opts.ListingCacheTTL)
	authenticated := authMiddleware(h.tokens)
	farmer := requireRole(models.RoleFarmer)
	owner := requireRole(models.RoleOwner)

	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth", limited)
		authGroup.POST("/register/farmer", h.register(models.RoleFarmer))
		authGroup.POST("/register/owner", h.register(models.RoleOwner))
		authGroup.POST("/login", h.login)

		v1.GET("/listings", limited, cached, h.searchListings)
		v1.GET("/listings/:id", limited, cached, h.getListing)

		me := v1.Group("/me", authenticated)
		me.GET("", h.getProfile)
		me.PUT("", h.updateProfile)
		me.PUT("/password", h.changePassword)
		me.GET("/summary", h.summary)

		v1.POST("/listings", authenticated, owner, h.createListing)
		v1.PUT("/listings/:id", authenticated, owner, h.updateListing)
		v1.DELETE("/listings/:id", authenticated, owner, h.deleteListing)
		v1.GET("/owner/listings", authenticated, owner, h.ownerListings)
		v1.GET("/owner/bookings", authenticated, owner, h.ownerBookings)

		v1.POST("/listings/:id/bookings", authenticated, farmer, h.createBooking)
		v1.GET("/farmer/bookings", authenticated, farmer, h.farmerBookings)

		v1.GET("/bookings/:id", authenticated, h.getBooking)
		v1.GET("/bookings/:id/history", authenticated, h.bookingHistory)
		v1.POST("/bookings/:id/status", authenticated, owner, h.transitionBooking)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports not ready while any dependency fails its ping
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.opts.Readiness))
	for name, p := range h.opts.Readiness {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Invalid ID", nil)
		return 0, false
	}
	return id, true
}

// register handles sign-up for one role
func (h *Handler) register(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body", err)
			return
		}
		req.Role = role

		account, err := h.accounts.Register(c.Request.Context(), &req)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"message": "Registration successful! Please login.",
			"account": account,
		})
	}
}

type loginRequest struct {
	Email    string      `json:"email" binding:"required,email"`
	Password string      `json:"password" binding:"required"`
	Role     models.Role `json:"role" binding:"required,oneof=farmer owner"`
}

// login exchanges credentials for an access token
func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	resp, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getProfile(c *gin.Context) {
	account, err := h.accounts.GetProfile(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *Handler) updateProfile(c *gin.Context) {
	var req service.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	account, err := h.accounts.UpdateProfile(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=72"`
}

func (h *Handler) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	if err := h.accounts.ChangePassword(c.Request.Context(), currentUser(c), req.OldPassword, req.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Your password was successfully updated!"})
}

// summary returns the dashboard figures for the caller's role
func (h *Handler) summary(c *gin.Context) {
	summary, err := h.accounts.Summary(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// searchListings handles the public equipment search
func (h *Handler) searchListings(c *gin.Context) {
	var req service.SearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "Invalid query", err)
		return
	}

	listings, err := h.listings.SearchListings(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"listings": listings,
		"count":    len(listings),
	})
}

func (h *Handler) getListing(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	detail, err := h.listings.GetListing(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) createListing(c *gin.Context) {
	var in service.ListingInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	listing, err := h.listings.CreateListing(c.Request.Context(), currentUser(c), &in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, listing)
}

func (h *Handler) updateListing(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in service.ListingInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	listing, err := h.listings.UpdateListing(c.Request.Context(), currentUser(c), id, &in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *Handler) deleteListing(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.listings.DeleteListing(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Equipment deleted successfully!"})
}

func (h *Handler) ownerListings(c *gin.Context) {
	listings, err := h.listings.ListOwnerListings(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listings": listings})
}

// createBooking handles a farmer's booking request
func (h *Handler) createBooking(c *gin.Context) {
	listingID, ok := pathID(c)
	if !ok {
		return
	}
	var req service.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	req.FarmerID = currentUser(c)
	req.ListingID = listingID
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	resp, err := h.bookings.CreateBooking(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) farmerBookings(c *gin.Context) {
	bookings, err := h.bookings.ListBookingsForFarmer(c.Request.Context(), currentUser(c), c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

func (h *Handler) ownerBookings(c *gin.Context) {
	bookings, err := h.bookings.ListBookingsForOwner(c.Request.Context(), currentUser(c), c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

func (h *Handler) getBooking(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	booking, err := h.bookings.GetBooking(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *Handler) bookingHistory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	history, err := h.bookings.BookingHistory(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

// transitionBooking handles an owner's approve, reject or complete action
func (h *Handler) transitionBooking(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	req.BookingID = id
	req.ActorID = currentUser(c)

	resp, err := h.bookings.TransitionBooking(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
