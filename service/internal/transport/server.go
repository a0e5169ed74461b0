// internal/transport/server.go
package transport

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/enaribe/startup-ludo/service/internal/auth"
	"github.com/enaribe/startup-ludo/service/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	helloTimeout = 10 * time.Second
	claimsKey    = "claims"
)

// Server exposes the hub over HTTP and websockets.
type Server struct {
	hub    *Hub
	auth   *auth.Authenticator
	logger *logrus.Logger
}

func NewServer(hub *Hub, a *auth.Authenticator, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{hub: hub, auth: a, logger: logger}
}

// Router builds the gin engine. Routes that read session state require the
// bearer token of one of its seats.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", func(ctx *gin.Context) { ctx.String(http.StatusOK, "ok") })
	router.GET("/ws", s.serveWS)

	api := router.Group("/v1")
	{
		public := api.Group("/sessions")
		public.POST("", s.createSession)
		public.GET("", s.listSessions)
		public.GET("/results", s.recentResults)
		public.POST("/:id/join", s.joinSeat)
		public.GET("/:id/result", s.result)
	}
	{
		protected := api.Group("/sessions")
		protected.Use(s.authorize())
		protected.GET("/:id/checkpoint", s.checkpoint)
	}
	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		s.logger.WithFields(logrus.Fields{
			"method":   ctx.Request.Method,
			"path":     ctx.FullPath(),
			"status":   ctx.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("http request")
	}
}

// authorize checks the bearer token and that it belongs to the :id session.
func (s *Server) authorize() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tok := auth.BearerToken(ctx.GetHeader("Authorization"), ctx.Query("token"))
		claims, err := s.auth.Verify(tok)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		if id := ctx.Param("id"); id != "" && id != claims.SessionID.String() {
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": ErrWrongSession.Error()})
			return
		}
		ctx.Set(claimsKey, claims)
		ctx.Next()
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrSeatUnavailable):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrWrongPassword):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken), errors.Is(err, ErrWrongSession):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(ctx *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", ctx.FullPath()).Error("request failed")
		ctx.JSON(code, gin.H{"error": "internal error"})
		return
	}
	ctx.JSON(code, gin.H{"error": err.Error()})
}

func sessionID(ctx *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) createSession(ctx *gin.Context) {
	var req CreateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := s.hub.CreateSession(ctx.Request.Context(), req)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, resp)
}

func (s *Server) listSessions(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"sessions": s.hub.ListRooms()})
}

type joinRequest struct {
	Seat     *uint8 `json:"seat" binding:"required"`
	Password string `json:"password"`
}

func (s *Server) joinSeat(ctx *gin.Context) {
	id, ok := sessionID(ctx)
	if !ok {
		return
	}
	var req joinRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := s.hub.JoinSeat(ctx.Request.Context(), id, *req.Seat, req.Password)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, st)
}

// checkpoint answers with the same envelope peers exchange, so a client can
// hand the body straight to its decoder.
func (s *Server) checkpoint(ctx *gin.Context) {
	id, ok := sessionID(ctx)
	if !ok {
		return
	}
	cp, seq, err := s.hub.Checkpoint(ctx.Request.Context(), id)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	b, err := protocol.EncodeCheckpoint(cp, seq)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	ctx.Data(http.StatusOK, "application/json", b)
}

func (s *Server) result(ctx *gin.Context) {
	id, ok := sessionID(ctx)
	if !ok {
		return
	}
	res, err := s.hub.Result(ctx.Request.Context(), id)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, res)
}

func (s *Server) recentResults(ctx *gin.Context) {
	limit, err := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 100 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
		return
	}
	res, err := s.hub.RecentResults(ctx.Request.Context(), limit)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"results": res})
}

// serveWS upgrades the connection and expects a hello as the first frame.
// Every later frame is handed to the room's loop.
func (s *Server) serveWS(ctx *gin.Context) {
	ws, err := websocket.Accept(ctx.Writer, ctx.Request, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.logger.WithError(err).Debug("websocket upgrade failed")
		return
	}
	c := newWSConn(ws)
	defer c.Close()
	reqCtx := ctx.Request.Context()

	helloCtx, cancel := context.WithTimeout(reqCtx, helloTimeout)
	data, err := c.read(helloCtx)
	cancel()
	if err != nil {
		return
	}
	env, err := protocol.DecodeEnvelope(data)
	if err != nil || env.T != protocol.MsgHello {
		s.reject(c, "expected_hello", "first message must be a hello")
		return
	}
	hello, err := protocol.DecodePayload[protocol.Hello](env)
	if err != nil {
		s.reject(c, "malformed", err.Error())
		return
	}

	attachCtx, cancel := context.WithTimeout(reqCtx, helloTimeout)
	room, seat, err := s.hub.Attach(attachCtx, c, hello)
	cancel()
	if err != nil {
		s.logger.WithError(err).Info("hello rejected")
		s.reject(c, "join_failed", err.Error())
		return
	}
	defer room.post(Leave{Seat: seat, Conn: c})

	for {
		data, err := c.read(reqCtx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 {
				s.logger.WithError(err).WithField("seat", seat).Debug("peer read ended")
			}
			return
		}
		if !room.post(Inbound{Seat: seat, Conn: c, Data: data}) {
			return
		}
	}
}

func (s *Server) reject(c *wsConn, code, msg string) {
	if b, err := protocol.Encode(protocol.MsgError, protocol.ErrorMsg{Code: code, Message: msg}); err == nil {
		_ = c.Send(b)
	}
}
