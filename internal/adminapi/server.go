// Package adminapi exposes the pool's operational surface over HTTP and
// websocket: a read-only dashboard feed plus a Bearer-token-protected set
// of admin routes that drive the draw state machine and reconciliation.
// The pool core itself never touches the network; this package is the
// external collaborator spec §7 delegates that job to.
package adminapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tos-network/prizepool/internal/config"
	"github.com/tos-network/prizepool/internal/domain"
	"github.com/tos-network/prizepool/internal/events"
	"github.com/tos-network/prizepool/internal/fixedpoint"
	"github.com/tos-network/prizepool/internal/pool"
	"github.com/tos-network/prizepool/internal/util"
)

// Server is the admin HTTP+WS surface. The pool has no internal locking
// of its own (every mutating method assumes a single caller), so every
// handler that touches it serializes through mu.
type Server struct {
	cfg  *config.APIConfig
	pool *pool.Pool
	hub  *eventHub

	mu     sync.Mutex
	router *gin.Engine
	server *http.Server
}

// NewServer builds a Server around an existing pool. The caller still
// owns the pool's lifecycle; the server only reads and mutates it under
// mu.
func NewServer(cfg *config.APIConfig, p *pool.Pool) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:    cfg,
		pool:   p,
		hub:    newEventHub(),
		router: router,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.corsMiddleware())

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.router.Group("/api")
	{
		api.GET("/pool", s.handlePoolSnapshot)
		api.GET("/receivers/:id", s.handleReceiver)
		api.GET("/ws", s.handleWebsocket)
	}

	admin := s.router.Group("/admin")
	admin.Use(s.adminAuthMiddleware())
	{
		admin.POST("/draw/start", s.handleDrawStart)
		admin.POST("/draw/batch", s.handleDrawBatch)
		admin.POST("/draw/complete", s.handleDrawComplete)
		admin.POST("/reconcile", s.handleReconcile)
	}
}

// corsMiddleware mirrors the teacher's permissive-by-default CORS
// handling, scoped to the configured origin list.
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := "*"
		if len(s.cfg.CORSOrigins) > 0 {
			origin = strings.Join(s.cfg.CORSOrigins, ", ")
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// adminAuthMiddleware requires a Bearer token matching the configured
// admin token. An empty configured token disables every admin route
// rather than accepting any request.
func (s *Server) adminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminToken == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin API disabled: no admin_token configured"})
			c.Abort()
			return
		}
		auth := c.GetHeader("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if token == "" || token != s.cfg.AdminToken {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing admin token"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// Start begins serving on cfg.Bind. It returns immediately; errors from
// the listener are logged, matching the teacher's fire-and-forget
// ListenAndServe pattern.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.cfg.Bind,
		Handler: s.router,
	}
	util.Infof("adminapi: listening on %s", s.cfg.Bind)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Errorf("adminapi: server error: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Broadcast pushes ev to every connected websocket subscriber and, for
// the subset of kinds notify.Notifier also cares about, is safe to call
// from the same code path that feeds that notifier.
func (s *Server) Broadcast(ev events.Event) {
	s.hub.Broadcast(ev)
}

func (s *Server) handleWebsocket(c *gin.Context) {
	s.hub.upgrade(c.Writer, c.Request)
}

// poolSnapshot is the /api/pool response shape.
type poolSnapshot struct {
	ID                   string            `json:"id"`
	State                string            `json:"state"`
	TotalAssets          fixedpoint.Amount `json:"total_assets"`
	TotalShares          fixedpoint.Amount `json:"total_shares"`
	Rewards              fixedpoint.Amount `json:"rewards"`
	PrizeYield           fixedpoint.Amount `json:"prize_yield"`
	ProtocolFee          fixedpoint.Amount `json:"protocol_fee"`
	PrizePool            fixedpoint.Amount `json:"prize_pool"`
	HealthScore          float64           `json:"health_score"`
	ReceiverCount        int               `json:"receiver_count"`
	ActiveRoundID        uint64            `json:"active_round_id,omitempty"`
	HasActiveRound       bool              `json:"has_active_round"`
	PendingDraw          bool              `json:"pending_draw"`
}

func (s *Server) handlePoolSnapshot(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := poolSnapshot{
		ID:            s.pool.ID,
		State:         s.pool.State.String(),
		TotalAssets:   s.pool.Ledger.TotalAssets(),
		TotalShares:   s.pool.Ledger.TotalShares(),
		Rewards:       s.pool.Book.Rewards(),
		PrizeYield:    s.pool.Book.PrizeYield(),
		ProtocolFee:   s.pool.Book.ProtocolFee(),
		PrizePool:     s.pool.PrizePool,
		HealthScore:   s.pool.HealthScore(),
		ReceiverCount: len(s.pool.RegisteredReceiverList),
		PendingDraw:   s.pool.PendingDraw != nil,
	}
	if s.pool.ActiveRound != nil {
		snap.ActiveRoundID = s.pool.ActiveRound.RoundID()
		snap.HasActiveRound = true
	}
	c.JSON(http.StatusOK, snap)
}

// receiverSnapshot is the /api/receivers/:id response shape.
type receiverSnapshot struct {
	ID         uint64            `json:"id"`
	Shares     fixedpoint.Amount `json:"shares"`
	AssetValue fixedpoint.Amount `json:"asset_value"`
	IsSponsor  bool              `json:"is_sponsor"`
}

func (s *Server) handleReceiver(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid receiver id"})
		return
	}
	receiver := domain.ReceiverID(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	assetValue, err := s.pool.Ledger.UserAssetValue(receiver)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, receiverSnapshot{
		ID:         id,
		Shares:     s.pool.Ledger.UserShares(receiver),
		AssetValue: assetValue,
		IsSponsor:  s.pool.IsSponsor(receiver),
	})
}

func (s *Server) handleDrawStart(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evs, err := s.pool.StartDraw(domain.Timestamp(time.Now().Unix()))
	s.respondEvents(c, evs, err)
}

type batchRequest struct {
	Limit int `json:"limit"`
}

func (s *Server) handleDrawBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Limit <= 0 {
		req.Limit = 100
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	evs, err := s.pool.ProcessBatch(req.Limit)
	s.respondEvents(c, evs, err)
}

func (s *Server) handleDrawComplete(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evs, err := s.pool.CompleteDraw(domain.Timestamp(time.Now().Unix()))
	s.respondEvents(c, evs, err)
}

func (s *Server) handleReconcile(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evs, err := s.pool.Reconcile()
	s.respondEvents(c, evs, err)
}

func (s *Server) respondEvents(c *gin.Context, evs []events.Event, err error) {
	for _, ev := range evs {
		s.hub.Broadcast(ev)
	}
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "events": evs})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}
