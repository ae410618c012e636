package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"prompt-comparator/internal/config"
	"prompt-comparator/internal/export"
	"prompt-comparator/internal/models"
	"prompt-comparator/internal/orchestrator"
	"prompt-comparator/internal/provider"
	"prompt-comparator/internal/session"
	"prompt-comparator/internal/settings"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	// Sends wait for two vendor calls.
	writeTimeout = 150 * time.Second
	idleTimeout  = 120 * time.Second
)

type Server struct {
	cfg     config.Config
	orch    *orchestrator.Orchestrator
	app     *echo.Echo
	address string
	now     func() time.Time
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, orch *orchestrator.Orchestrator) (*Server, error) {
	if orch == nil {
		return nil, errors.New("orchestrator must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = jsonErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogError:     true,
		LogRequestID: true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := log.Info()
			if v.Error != nil {
				event = log.Warn().Err(v.Error)
			}
			event.
				Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Int64("latency_ms", v.Latency.Milliseconds()).
				Msg("request")
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
	}))

	srv := &Server{
		cfg:     cfg,
		orch:    orch,
		app:     e,
		address: fmt.Sprintf(":%d", cfg.Server.Port),
		now:     time.Now,
	}

	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the routed echo instance.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	printStartupBanner(s.cfg.Server.Port)
	log.Info().Str("addr", s.address).Msg("starting server")

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.orch.Wait()
		log.Info().Msg("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)

	api := s.app.Group("/api")
	api.GET("/state", s.handleState)
	api.POST("/messages", s.handleSendBoth)
	api.POST("/sides/:side/messages", s.handleSendSide)
	api.PUT("/sides/:side", s.handleConfigureSide)
	api.POST("/clear", s.handleClear)
	api.GET("/catalog", s.handleCatalog)
	api.POST("/catalog/refresh", s.handleRefreshCatalog)
	api.GET("/settings", s.handleGetSettings)
	api.PUT("/settings", s.handlePutSettings)
	api.GET("/export", s.handleExport)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type stateResponse struct {
	Sides []orchestrator.SideState `json:"sides"`
}

func (s *Server) handleState(c echo.Context) error {
	return c.JSON(http.StatusOK, stateResponse{Sides: s.orch.State()})
}

type messageRequest struct {
	Text  string `json:"text"`
	Async bool   `json:"async"`
}

type outcomeResponse struct {
	Side      models.Side    `json:"side"`
	Reply     models.Message `json:"reply"`
	Error     string         `json:"error,omitempty"`
	LatencyMs int64          `json:"latencyMs"`
	Discarded bool           `json:"discarded,omitempty"`
}

func newOutcomeResponse(side models.Side, res session.Result, err error) outcomeResponse {
	out := outcomeResponse{
		Side:      side,
		Reply:     res.Reply,
		LatencyMs: res.Latency.Milliseconds(),
		Discarded: res.Discarded,
	}
	switch {
	case err != nil:
		out.Error = err.Error()
	case res.Err != nil:
		out.Error = res.Err.Error()
	}
	return out
}

func (s *Server) handleSendBoth(c echo.Context) error {
	var req messageRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	if req.Async {
		if err := s.orch.Dispatch(req.Text); err != nil {
			return toHTTPError(err)
		}
		return c.JSON(http.StatusAccepted, map[string]string{"status": "dispatched"})
	}

	outcomes, err := s.orch.SendToBoth(c.Request().Context(), req.Text)
	if err != nil {
		return toHTTPError(err)
	}
	resp := make([]outcomeResponse, 0, len(outcomes))
	for _, o := range outcomes {
		resp = append(resp, newOutcomeResponse(o.Side, o.Result, o.Err))
	}
	return c.JSON(http.StatusOK, map[string]any{"outcomes": resp})
}

func (s *Server) handleSendSide(c echo.Context) error {
	side, err := models.ParseSide(c.Param("side"))
	if err != nil {
		return toHTTPError(err)
	}

	var req messageRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	res, err := s.orch.Send(c.Request().Context(), side, req.Text)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, newOutcomeResponse(side, res, nil))
}

func (s *Server) handleConfigureSide(c echo.Context) error {
	side, err := models.ParseSide(c.Param("side"))
	if err != nil {
		return toHTTPError(err)
	}

	var upd orchestrator.SideUpdate
	if err := decodeRequestBody(c, &upd); err != nil {
		return err
	}

	cfg, err := s.orch.ConfigureSide(c.Request().Context(), side, upd)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleClear(c echo.Context) error {
	if raw := c.QueryParam("side"); raw != "" {
		side, err := models.ParseSide(raw)
		if err != nil {
			return toHTTPError(err)
		}
		if err := s.orch.Clear(side); err != nil {
			return toHTTPError(err)
		}
	} else {
		s.orch.ClearBoth()
	}
	return c.JSON(http.StatusOK, stateResponse{Sides: s.orch.State()})
}

type catalogResponse struct {
	Providers []models.CatalogEntry `json:"providers"`
}

func (s *Server) handleCatalog(c echo.Context) error {
	return c.JSON(http.StatusOK, catalogResponse{Providers: s.orch.Catalog().Entries()})
}

func (s *Server) handleRefreshCatalog(c echo.Context) error {
	if err := s.orch.RefreshCatalog(c.Request().Context()); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, catalogResponse{Providers: s.orch.Catalog().Entries()})
}

func (s *Server) handleGetSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, s.orch.Settings().Masked())
}

func (s *Server) handlePutSettings(c echo.Context) error {
	var next settings.Settings
	if err := decodeRequestBody(c, &next); err != nil {
		return err
	}

	merged := next.Merge(s.orch.Settings())
	if err := s.orch.SaveSettings(c.Request().Context(), merged); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, s.orch.Settings().Masked())
}

func (s *Server) handleExport(c echo.Context) error {
	raw := c.QueryParam("format")
	if raw == "" {
		raw = string(export.FormatCSV)
	}
	format, err := export.ParseFormat(raw)
	if err != nil {
		return toHTTPError(err)
	}

	file, err := s.orch.Export(format, s.now())
	if err != nil {
		return toHTTPError(err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": file.Name}))
	return c.Blob(http.StatusOK, file.ContentType, file.Data)
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return requestError{
				Status:  http.StatusBadRequest,
				Message: "request body is required",
				Type:    "invalid_request_error",
			}
		}
		return requestError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("invalid JSON payload: %v", err),
			Type:    "invalid_request_error",
		}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "request body must contain a single JSON object",
			Type:    "invalid_request_error",
		}
	}
	return nil
}

type requestError struct {
	Status  int
	Message string
	Type    string
	Code    string
}

func (e requestError) Error() string {
	return e.Message
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

func writeError(c echo.Context, status int, message, errType, code string) error {
	var payload errorBody
	payload.Error.Message = message
	payload.Error.Type = errType
	payload.Error.Code = code
	return c.JSON(status, payload)
}

func jsonErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Type, reqErr.Code)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = writeError(c, he.Code, fmt.Sprint(he.Message), "invalid_request_error", "")
		return
	}

	_ = writeError(c, http.StatusInternalServerError, "internal server error", "server_error", "")
}

func toHTTPError(err error) error {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	switch {
	case errors.Is(err, provider.ErrUnknownProvider),
		errors.Is(err, provider.ErrUnknownModel),
		errors.Is(err, models.ErrUnknownSide),
		errors.Is(err, session.ErrEmptyMessage),
		errors.Is(err, export.ErrUnsupportedFormat):
		return requestError{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
			Type:    "invalid_request_error",
		}
	case errors.Is(err, session.ErrBusy):
		return requestError{
			Status:  http.StatusConflict,
			Message: err.Error(),
			Type:    "conflict_error",
			Code:    "side_busy",
		}
	}

	log.Error().Err(err).Msg("request failed")
	return requestError{
		Status:  http.StatusInternalServerError,
		Message: err.Error(),
		Type:    "server_error",
	}
}

func printStartupBanner(port int) {
	host := "127.0.0.1"
	fmt.Println()
	fmt.Println("prompt-comparator ready")
	fmt.Printf("Listening on http://%s:%d\n", host, port)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  GET  /api/state")
	fmt.Println("  POST /api/messages")
	fmt.Println("  POST /api/sides/:side/messages")
	fmt.Println("  PUT  /api/sides/:side")
	fmt.Println("  POST /api/clear")
	fmt.Println("  GET  /api/catalog")
	fmt.Println("  POST /api/catalog/refresh")
	fmt.Println("  GET  /api/settings")
	fmt.Println("  PUT  /api/settings")
	fmt.Println("  GET  /api/export?format=csv|xlsx|json|yaml")
	fmt.Printf("Example:\n  curl http://%s:%d/api/messages -H 'Content-Type: application/json' -d '{\"text\":\"hello\"}'\n\n", host, port)
}
