// Package server exposes the recommenders over HTTP. The API layer is a thin
// adapter: it binds requests, pulls history snapshots out of the cache, calls
// the pure heuristics, and maps contract violations to 400s. No business logic
// lives here.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/mitra-labs/mitra-quant/internal/amm"
	"github.com/mitra-labs/mitra-quant/internal/cache"
	"github.com/mitra-labs/mitra-quant/internal/logger"
	"github.com/mitra-labs/mitra-quant/internal/quant"
)

// HealthChecker reports backend reachability.
type HealthChecker interface {
	Health(ctx context.Context) bool
}

// Server hosts the HTTP API.
type Server struct {
	cache      *cache.Cache
	predictor  *quant.PricePredictor
	optimizer  *quant.LiquidityOptimizer
	forecaster *quant.DemandForecaster
	backend    HealthChecker
	httpServer *http.Server
}

// New constructs the server and its router.
func New(
	address string,
	c *cache.Cache,
	predictor *quant.PricePredictor,
	optimizer *quant.LiquidityOptimizer,
	forecaster *quant.DemandForecaster,
	backendHealth HealthChecker,
) *Server {
	s := &Server{
		cache:      c,
		predictor:  predictor,
		optimizer:  optimizer,
		forecaster: forecaster,
		backend:    backendHealth,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/predict-prices", s.handlePredictPrices)
	router.POST("/adjust-liquidity", s.handleAdjustLiquidity)
	router.POST("/forecast-demand", s.handleForecastDemand)
	router.POST("/provision-market", s.handleProvisionMarket)
	router.GET("/health", s.handleHealth)
	router.GET("/", s.handleRoot)

	s.httpServer = &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Run starts the HTTP server and blocks until the context is cancelled or the
// server exits with an error. Shutdown is graceful with a 5s drain deadline.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// priceRequest asks for a price recommendation for one event.
type priceRequest struct {
	EventID           string             `json:"event_id" binding:"required"`
	CurrentPrices     map[string]float64 `json:"current_prices"`
	TotalVolume       float64            `json:"total_volume"`
	BetCount          int                `json:"bet_count"`
	TimeSinceCreation float64            `json:"time_since_creation"`
}

type priceResponse struct {
	EventID           string             `json:"event_id"`
	RecommendedPrices map[string]float64 `json:"recommended_prices"`
	Confidence        float64            `json:"confidence"`
	AdjustmentReason  string             `json:"adjustment_reason"`
}

func (s *Server) handlePredictPrices(c *gin.Context) {
	var req priceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	history := s.cache.History(req.EventID, 0)

	rec, err := s.predictor.Predict(req.CurrentPrices, req.TotalVolume, req.BetCount, req.TimeSinceCreation, history)
	if errors.Is(err, quant.ErrNoPrices) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		logger.Error("Price prediction failed for event %s: %v", req.EventID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, priceResponse{
		EventID:           req.EventID,
		RecommendedPrices: rec.Prices,
		Confidence:        rec.Confidence,
		AdjustmentReason:  rec.Reason,
	})
}

// liquidityRequest asks for a liquidity parameter adjustment. A negative
// price_volatility means "not supplied"; the server derives it from cached
// history in that case.
type liquidityRequest struct {
	EventID          string             `json:"event_id" binding:"required"`
	CurrentLiquidity float64            `json:"current_liquidity"`
	CurrentPrices    map[string]float64 `json:"current_prices"`
	TotalVolume      float64            `json:"total_volume"`
	PriceVolatility  float64            `json:"price_volatility"`
}

type liquidityResponse struct {
	EventID              string  `json:"event_id"`
	RecommendedLiquidity float64 `json:"recommended_liquidity"`
	AdjustmentAmount     float64 `json:"adjustment_amount"`
	Reason               string  `json:"reason"`
}

func (s *Server) handleAdjustLiquidity(c *gin.Context) {
	var req liquidityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	volatility := req.PriceVolatility
	if volatility < 0 {
		volatility = quant.PriceVolatility(s.cache.History(req.EventID, 0))
	}

	result := s.optimizer.Optimize(req.CurrentLiquidity, req.CurrentPrices, req.TotalVolume, volatility)

	c.JSON(http.StatusOK, liquidityResponse{
		EventID:              req.EventID,
		RecommendedLiquidity: result.RecommendedLiquidity,
		AdjustmentAmount:     result.AdjustmentAmount,
		Reason:               result.Reason,
	})
}

type demandRequest struct {
	EventID     string  `json:"event_id" binding:"required"`
	TimeHorizon float64 `json:"time_horizon"`
}

type demandResponse struct {
	EventID     string             `json:"event_id"`
	Demand      map[string]float64 `json:"demand"`
	VolumeTrend float64            `json:"volume_trend"`
}

func (s *Server) handleForecastDemand(c *gin.Context) {
	var req demandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	history := s.cache.History(req.EventID, 0)
	volumes := make([]float64, 0, len(history))
	prices := make([]map[string]float64, 0, len(history))
	for _, snap := range history {
		volumes = append(volumes, snap.TotalVolume)
		prices = append(prices, snap.Prices)
	}

	c.JSON(http.StatusOK, demandResponse{
		EventID:     req.EventID,
		Demand:      s.forecaster.Forecast(volumes, prices, req.TimeHorizon),
		VolumeTrend: s.forecaster.VolumeTrend(volumes),
	})
}

// provisionRequest asks for initial AMM parameters for a brand-new market.
type provisionRequest struct {
	EventID              string   `json:"event_id" binding:"required"`
	Outcomes             []string `json:"outcomes" binding:"required,min=2"`
	ExpectedVolume       float64  `json:"expected_volume"`
	TargetPriceStability float64  `json:"target_price_stability"`
}

type provisionResponse struct {
	EventID              string             `json:"event_id"`
	RecommendedLiquidity float64            `json:"recommended_liquidity"`
	InitialPrices        map[string]float64 `json:"initial_prices"`
}

func (s *Server) handleProvisionMarket(c *gin.Context) {
	var req provisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stability := req.TargetPriceStability
	if stability <= 0 {
		stability = 0.1
	}
	liquidity := s.optimizer.OptimalLiquidity(req.ExpectedVolume, len(req.Outcomes), stability)

	market, err := amm.New(decimal.NewFromFloat(liquidity), req.Outcomes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	initialPrices := make(map[string]float64, len(req.Outcomes))
	for outcome, price := range market.Prices() {
		initialPrices[outcome] = price.InexactFloat64()
	}

	c.JSON(http.StatusOK, provisionResponse{
		EventID:              req.EventID,
		RecommendedLiquidity: liquidity,
		InitialPrices:        initialPrices,
	})
}

type healthResponse struct {
	Status           string `json:"status"`
	BackendConnected bool   `json:"backend_connected"`
	ModelsLoaded     bool   `json:"models_loaded"`
	CacheSize        int    `json:"cache_size"`
	EventCount       int    `json:"event_count"`
	LastUpdate       string `json:"last_update,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	backendConnected := false
	if s.backend != nil {
		backendConnected = s.backend.Health(c.Request.Context())
	}

	modelsLoaded := s.predictor != nil && s.optimizer != nil && s.forecaster != nil

	status := "degraded"
	if backendConnected && modelsLoaded {
		status = "healthy"
	}

	lastUpdate, _ := s.cache.LastUpdate()

	c.JSON(http.StatusOK, healthResponse{
		Status:           status,
		BackendConnected: backendConnected,
		ModelsLoaded:     modelsLoaded,
		CacheSize:        s.cache.Size(),
		EventCount:       s.cache.EventCount(),
		LastUpdate:       lastUpdate,
	})
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "mitra-quant",
		"endpoints": gin.H{
			"predict_prices":   "/predict-prices",
			"adjust_liquidity": "/adjust-liquidity",
			"forecast_demand":  "/forecast-demand",
			"provision_market": "/provision-market",
			"health":           "/health",
		},
	})
}
