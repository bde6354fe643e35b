// Package api exposes the orchestration engine over HTTP: subscription
// management, query submission, the websocket event stream, capability
// discovery, and the operator-facing HITL decision surface.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/codeready-toolchain/agentflow/pkg/coordination"
	"github.com/codeready-toolchain/agentflow/pkg/eventbus"
	"github.com/codeready-toolchain/agentflow/pkg/execution"
	"github.com/codeready-toolchain/agentflow/pkg/hitl"
	"github.com/codeready-toolchain/agentflow/pkg/model"
	"github.com/codeready-toolchain/agentflow/pkg/orcherr"
	"github.com/codeready-toolchain/agentflow/pkg/version"
)

// Capabilities backs GET /capabilities: agent types, tool names, and feature
// flags available in this deployment, plus live task-status counts from the
// Coordination Manager.
type Capabilities struct {
	AgentTypes []model.AgentType       `json:"agentTypes"`
	ToolNames  []string                `json:"toolNames"`
	Version    string                  `json:"version"`
	TaskStats  coordination.Statistics `json:"taskStatistics"`
}

// Server wraps the Execution Manager façade with an echo v5 router.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	exec       *execution.Manager
	bus        *eventbus.Registry
	coord      *coordination.Manager
	gate       *hitl.Gate
	agentTypes []model.AgentType
	toolNames  []string
}

// New builds a Server with all routes registered. coord and gate may be nil,
// in which case /capabilities reports a zero Statistics and the /hitl routes
// 404.
func New(exec *execution.Manager, bus *eventbus.Registry, coord *coordination.Manager, gate *hitl.Gate, agentTypes []model.AgentType, toolNames []string) *Server {
	e := echo.New()
	// Comfortably above any single StatusEvent/query payload.
	e.Use(middleware.BodyLimit(2 * 1024 * 1024))

	s := &Server{echo: e, exec: exec, bus: bus, coord: coord, gate: gate, agentTypes: agentTypes, toolNames: toolNames}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.POST("/subscribe", s.handleSubscribe)
	s.echo.GET("/subscribe/:id", s.handleSubscriptionStatus)
	s.echo.POST("/query", s.handleQuery)
	s.echo.GET("/stream/:id", s.handleStream)
	s.echo.GET("/capabilities", s.handleCapabilities)
	s.echo.GET("/health", s.handleHealth)
	// Operator-facing surface for the HITL Gate's approval queue; decisions
	// posted here resolve pending requests.
	s.echo.GET("/hitl/pending", s.handleHitlPending)
	s.echo.POST("/hitl/:requestId/decide", s.handleHitlDecide)
}

// Start serves on addr until Shutdown. A plain *http.Server wraps the echo
// handler so shutdown timing stays under the caller's control.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type subscribeRequest struct {
	ClientID string `json:"clientId"`
}

type subscribeResponseBody struct {
	SubscriptionID model.SubscriptionID `json:"subscriptionId"`
	StreamURL      string               `json:"streamUrl"`
	ExpiresAt      time.Time            `json:"expiresAt"`
}

func (s *Server) handleSubscribe(c *echo.Context) error {
	// An empty or absent body just means an anonymous subscription, so Bind
	// errors are ignored.
	var req subscribeRequest
	_ = c.Bind(&req)
	resp := s.exec.CreateSubscription(req.ClientID)
	return c.JSON(http.StatusOK, subscribeResponseBody{
		SubscriptionID: resp.SubscriptionID,
		StreamURL:      "/stream/" + string(resp.SubscriptionID),
		ExpiresAt:      resp.ExpiresAt,
	})
}

type subscriptionStatusBody struct {
	ID         model.SubscriptionID `json:"id"`
	Connected  bool                 `json:"connected"`
	ExpiresAt  time.Time            `json:"expiresAt"`
	BufferSize int                  `json:"bufferSize"`
}

func (s *Server) handleSubscriptionStatus(c *echo.Context) error {
	id := model.SubscriptionID(c.Param("id"))
	status, err := s.exec.GetSubscriptionStatus(id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, subscriptionStatusBody{
		ID: status.ID, Connected: status.Connected, ExpiresAt: status.ExpiresAt, BufferSize: status.BufferSize,
	})
}

type queryRequest struct {
	Query          string             `json:"query"`
	ProjectScope   model.ProjectScope `json:"projectScope"`
	SubscriptionID string             `json:"subscriptionId"`
}

type queryResponseBody struct {
	ConversationID model.ConversationID `json:"conversationId"`
	StreamURL      string               `json:"streamUrl"`
	Status         string               `json:"status"`
}

func (s *Server) handleQuery(c *echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, orcherr.New(orcherr.KindInternal, "api.Query", err))
	}
	subID := model.SubscriptionID(req.SubscriptionID)
	resp, err := s.exec.ExecuteQuery(c.Request().Context(), req.Query, req.ProjectScope, subID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, queryResponseBody{
		ConversationID: resp.ConversationID,
		StreamURL:      "/stream/" + req.SubscriptionID,
		Status:         resp.Status,
	})
}

// handleStream upgrades to a unidirectional websocket carrying StatusEvent
// JSON frames. The replay buffer is drained in order before any live event,
// matching eventbus.Attach's contract.
func (s *Server) handleStream(c *echo.Context) error {
	id := model.SubscriptionID(c.Param("id"))
	replay, live, detach, err := s.bus.Attach(id)
	if err != nil {
		return writeError(c, err)
	}
	defer detach()

	conn, err := websocket.Accept(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}
	defer conn.CloseNow()

	ctx := c.Request().Context()
	for _, ev := range replay {
		if err := wsjson.Write(ctx, conn, ev); err != nil {
			return nil
		}
	}
	for ev := range live {
		if err := wsjson.Write(ctx, conn, ev); err != nil {
			return nil
		}
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
	return nil
}

func (s *Server) handleCapabilities(c *echo.Context) error {
	var stats coordination.Statistics
	if s.coord != nil {
		stats = s.coord.Statistics()
	}
	return c.JSON(http.StatusOK, Capabilities{
		AgentTypes: s.agentTypes,
		ToolNames:  s.toolNames,
		Version:    version.Full(),
		TaskStats:  stats,
	})
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHitlPending(c *echo.Context) error {
	if s.gate == nil {
		return writeError(c, orcherr.New(orcherr.KindNotFound, "api.HitlPending", orcherr.ErrNotFound))
	}
	return c.JSON(http.StatusOK, s.gate.Pending())
}

type hitlDecideRequest struct {
	Approved        bool   `json:"approved"`
	Feedback        string `json:"feedback,omitempty"`
	ModifiedContent string `json:"modifiedContent,omitempty"`
	Reasoning       string `json:"reasoning,omitempty"`
}

func (s *Server) handleHitlDecide(c *echo.Context) error {
	if s.gate == nil {
		return writeError(c, orcherr.New(orcherr.KindNotFound, "api.HitlDecide", orcherr.ErrNotFound))
	}
	var req hitlDecideRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, orcherr.New(orcherr.KindInternal, "api.HitlDecide", err))
	}
	requestID := model.HitlRequestID(c.Param("requestId"))
	decision := model.HitlDecision{
		Approved:        req.Approved,
		Feedback:        req.Feedback,
		ModifiedContent: req.ModifiedContent,
		Reasoning:       req.Reasoning,
	}
	if err := s.gate.Decide(requestID, decision); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "recorded"})
}

// errorResponse is the wire shape for every failed request.
type errorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

// statusFor maps an orcherr.Kind to an HTTP status.
func statusFor(kind orcherr.Kind) int {
	switch kind {
	case orcherr.KindNotFound:
		return http.StatusNotFound
	case orcherr.KindConfig, orcherr.KindDagConstruction:
		return http.StatusBadRequest
	case orcherr.KindHitlRejected:
		return http.StatusConflict
	case orcherr.KindFileLockTimeout, orcherr.KindModelInfrastructure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *echo.Context, err error) error {
	var oe *orcherr.Error
	if errors.As(err, &oe) {
		return c.JSON(statusFor(oe.Kind), errorResponse{Error: err.Error(), Code: oe.Kind.String(), Timestamp: time.Now().UTC()})
	}
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error(), Code: "Internal", Timestamp: time.Now().UTC()})
}
