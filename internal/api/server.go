// Package api 只读状态接口，以及手动触发 compare / 全量同步的运维入口。
package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/ordersync/internal/reconcile"
	"github.com/betbot/ordersync/pkg/journal"
	"github.com/betbot/ordersync/pkg/ledger"
)

var apiLog = logrus.WithField("component", "api")

// FillSource 成交记录查询
type FillSource interface {
	Fills(ctx context.Context, symbol string, limit int) ([]journal.Record, error)
}

// PositionSource 策略持仓账本查询
type PositionSource interface {
	Entries() ([]ledger.Entry, error)
}

// Server 状态 API
type Server struct {
	registry  *reconcile.Registry
	fills     FillSource     // 可选
	positions PositionSource // 可选
}

// Option 配置 Server
type Option func(*Server)

// WithFills 启用 /api/fills
func WithFills(src FillSource) Option {
	return func(s *Server) { s.fills = src }
}

// WithPositions 启用 /api/positions
func WithPositions(src PositionSource) Option {
	return func(s *Server) { s.positions = src }
}

// New 创建状态 API
func New(registry *reconcile.Registry, opts ...Option) *Server {
	s := &Server{registry: registry}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router 路由
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")
	api.GET("/symbols", s.handleSymbols)

	symbol := api.Group("/symbols/:symbol")
	symbol.GET("", s.handleSnapshot)
	symbol.POST("/compare", s.handleCompare)
	symbol.POST("/resync", s.handleResync)
	symbol.POST("/sync_position", s.handleSyncPosition)

	api.GET("/fills", s.handleFills)
	api.GET("/positions", s.handlePositions)
	return r
}

type symbolSummary struct {
	Symbol          string `json:"symbol"`
	ActualPosition  int64  `json:"actual_position"`
	DesiredPosition int64  `json:"desired_position"`
	Synced          bool   `json:"synced"`
	PhysicalOrders  int    `json:"physical_orders"`
	LogicalOrders   int    `json:"logical_orders"`
}

func (s *Server) handleSymbols(c *gin.Context) {
	symbols := s.registry.Symbols()
	out := make([]symbolSummary, 0, len(symbols))
	for _, sym := range symbols {
		w, ok := s.registry.Lookup(sym)
		if !ok {
			continue
		}
		snap, err := w.Snapshot(c.Request.Context())
		if err != nil {
			out = append(out, symbolSummary{Symbol: sym})
			continue
		}
		out = append(out, symbolSummary{
			Symbol:          sym,
			ActualPosition:  snap.ActualPosition,
			DesiredPosition: snap.DesiredPosition,
			Synced:          snap.Synced,
			PhysicalOrders:  len(snap.PhysicalOrders),
			LogicalOrders:   len(snap.LogicalOrders),
		})
	}
	c.JSON(http.StatusOK, gin.H{"symbols": out})
}

func (s *Server) worker(c *gin.Context) (*reconcile.Worker, bool) {
	sym := c.Param("symbol")
	w, ok := s.registry.Lookup(sym)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol: " + sym})
		return nil, false
	}
	return w, true
}

func (s *Server) handleSnapshot(c *gin.Context) {
	w, ok := s.worker(c)
	if !ok {
		return
	}
	snap, err := w.Snapshot(c.Request.Context())
	if err != nil {
		writeWorkerError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleCompare(c *gin.Context) {
	w, ok := s.worker(c)
	if !ok {
		return
	}
	w.Trigger()
	c.JSON(http.StatusAccepted, gin.H{"symbol": w.Symbol(), "requested": "compare"})
}

func (s *Server) handleResync(c *gin.Context) {
	w, ok := s.worker(c)
	if !ok {
		return
	}
	w.RequestResync()
	c.JSON(http.StatusAccepted, gin.H{"symbol": w.Symbol(), "requested": "resync"})
}

func (s *Server) handleSyncPosition(c *gin.Context) {
	w, ok := s.worker(c)
	if !ok {
		return
	}
	if err := w.SyncPosition(c.Request.Context()); err != nil {
		writeWorkerError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"symbol": w.Symbol(), "requested": "sync_position"})
}

func (s *Server) handleFills(c *gin.Context) {
	if s.fills == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "fill journal disabled"})
		return
	}
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	records, err := s.fills.Fills(c.Request.Context(), c.Query("symbol"), limit)
	if err != nil {
		apiLog.WithError(err).Warn("查询成交记录失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"fills": records})
}

func (s *Server) handlePositions(c *gin.Context) {
	if s.positions == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "position ledger disabled"})
		return
	}
	entries, err := s.positions.Entries()
	if err != nil {
		apiLog.WithError(err).Warn("查询持仓账本失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": entries})
}

func writeWorkerError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, reconcile.ErrWorkerStopped) {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// StartAsync 非阻塞启动 API 服务，ctx 取消时优雅关闭
func (s *Server) StartAsync(ctx context.Context, addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			apiLog.WithError(err).Error("API 服务异常退出")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	apiLog.Infof("API 服务已启动: %s", ln.Addr())
	return srv, nil
}
