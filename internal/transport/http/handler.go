package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"
	apperrors "live-quiz-service/internal/errors"
)

const qrSize = 320

// Handler exposes the session commands over HTTP.
type Handler struct {
	gateway   *app.Gateway
	gate      *auth.Gate
	ws        *WSHandler
	publicURL string
	now       func() time.Time
}

func NewHandler(gateway *app.Gateway, gate *auth.Gate, publicURL string) *Handler {
	return &Handler{
		gateway:   gateway,
		gate:      gate,
		ws:        NewWSHandler(gateway),
		publicURL: strings.TrimSuffix(publicURL, "/"),
		now:       time.Now,
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/api/health", h.health)
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.POST("/login", h.login)

	games := r.Group("/games")
	games.POST("", h.createSession)
	games.GET("/:id", h.getSession)
	games.DELETE("/:id", h.gate.Middleware(), h.evictSession)
	games.POST("/:id/join", h.joinSession)
	games.POST("/:id/start", h.command(h.gateway.StartSession))
	games.POST("/:id/answer", h.submitAnswer)
	games.POST("/:id/results", h.command(h.gateway.RevealResults))
	games.POST("/:id/next", h.command(h.gateway.Advance))
	games.POST("/:id/restart", h.command(h.gateway.RestartSession))
	games.GET("/:id/qr", h.qr)
	games.GET("/:id/ws", h.ws.ServeWS)
}

type createSessionRequest struct {
	QuizID string `json:"quizId" binding:"required"`
}

type joinSessionRequest struct {
	PlayerName string `json:"playerName" binding:"required"`
}

type joinSessionResponse struct {
	Player  domain.Player   `json:"player"`
	Session domain.Snapshot `json:"session"`
}

type submitAnswerRequest struct {
	PlayerID    string `json:"playerId" binding:"required"`
	AnswerIndex *int   `json:"answerIndex" binding:"required"`
}

type loginRequest struct {
	Password string `json:"password"`
}

// unsavedResponse reports a write-through failure along with the state the command
// produced; the mutation itself was applied.
type unsavedResponse struct {
	Code    apperrors.Code   `json:"code"`
	Message string           `json:"message"`
	Player  *domain.Player   `json:"player,omitempty"`
	Session *domain.Snapshot `json:"session,omitempty"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": h.now().UTC()})
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.InvalidArgument("invalid request body"))
		return
	}
	token, expiresAt, err := h.gate.Login(req.Password)
	if errors.Is(err, auth.ErrBadPassword) {
		writeError(c, apperrors.Unauthenticated("invalid password"))
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

func (h *Handler) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.InvalidArgument("quizId is required"))
		return
	}
	snap, err := h.gateway.CreateSession(c.Request.Context(), req.QuizID)
	if err != nil {
		writeCommandError(c, err, nil, snap)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

func (h *Handler) getSession(c *gin.Context) {
	snap, err := h.gateway.Session(c.Request.Context(), normalizeID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) evictSession(c *gin.Context) {
	if err := h.gateway.EvictSession(c.Request.Context(), normalizeID(c.Param("id"))); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) joinSession(c *gin.Context) {
	var req joinSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.InvalidArgument("playerName is required"))
		return
	}
	player, snap, err := h.gateway.JoinSession(c.Request.Context(), normalizeID(c.Param("id")), req.PlayerName)
	if err != nil {
		writeCommandError(c, err, &player, snap)
		return
	}
	c.JSON(http.StatusOK, joinSessionResponse{Player: player, Session: snap})
}

func (h *Handler) submitAnswer(c *gin.Context) {
	var req submitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.InvalidArgument("playerId and answerIndex are required"))
		return
	}
	snap, err := h.gateway.SubmitAnswer(c.Request.Context(), normalizeID(c.Param("id")), req.PlayerID, *req.AnswerIndex)
	if err != nil {
		writeCommandError(c, err, nil, snap)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// command adapts a payload-less gateway command to a handler.
func (h *Handler) command(run func(ctx context.Context, sessionID string) (domain.Snapshot, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, err := run(c.Request.Context(), normalizeID(c.Param("id")))
		if err != nil {
			writeCommandError(c, err, nil, snap)
			return
		}
		c.JSON(http.StatusOK, snap)
	}
}

// qr renders a PNG QR code pointing players at the join page of the session.
func (h *Handler) qr(c *gin.Context) {
	sessionID := normalizeID(c.Param("id"))
	if _, err := h.gateway.Session(c.Request.Context(), sessionID); err != nil {
		writeError(c, err)
		return
	}

	base := h.publicURL
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + c.Request.Host
	}

	png, err := qrcode.Encode(base+"/join/"+sessionID, qrcode.Medium, qrSize)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// writeCommandError is writeError for mutating commands: when only the write-through
// failed, the body still carries the resulting session and player.
func writeCommandError(c *gin.Context, err error, player *domain.Player, snap domain.Snapshot) {
	if !errors.Is(err, domain.ErrPersistence) {
		writeError(c, err)
		return
	}
	e := apperrors.Convert(err)
	resp := unsavedResponse{Code: e.Code, Message: e.Message, Session: &snap}
	if player != nil && player.ID != "" {
		resp.Player = player
	}
	c.AbortWithStatusJSON(e.HTTPStatusCode(), resp)
}

func writeError(c *gin.Context, err error) {
	e := apperrors.Convert(err)
	if e.Code == apperrors.CodeInternal {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}
