// Voice coach API handlers
package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/KyahWill/journal-app-sub001/pkg/models"
	"github.com/KyahWill/journal-app-sub001/pkg/service"
	"github.com/KyahWill/journal-app-sub001/pkg/utils"
)

// VoiceCoachHandler handles the /voice-coach API surface
type VoiceCoachHandler struct {
	db            *gorm.DB
	sessions      *service.VoiceSessionService
	conversations *service.ConversationService
	personalities *service.PersonalityService
	chat          *service.CoachChatService
	metrics       *service.MetricsService
	logger        *slog.Logger

	voiceConfigured  bool
	retrievalEnabled bool
}

// NewVoiceCoachHandler creates a new voice coach handler. chat may be nil
// when no chat model is configured; the chat endpoint then responds 503.
func NewVoiceCoachHandler(
	database *gorm.DB,
	sessions *service.VoiceSessionService,
	conversations *service.ConversationService,
	personalities *service.PersonalityService,
	chat *service.CoachChatService,
	metrics *service.MetricsService,
	voiceConfigured bool,
	retrievalEnabled bool,
) *VoiceCoachHandler {
	return &VoiceCoachHandler{
		db:               database,
		sessions:         sessions,
		conversations:    conversations,
		personalities:    personalities,
		chat:             chat,
		metrics:          metrics,
		logger:           utils.GetLogger(),
		voiceConfigured:  voiceConfigured,
		retrievalEnabled: retrievalEnabled,
	}
}

// RegisterRoutes registers the voice coach routes
func (h *VoiceCoachHandler) RegisterRoutes(r *gin.RouterGroup) {
	vc := r.Group("/voice-coach")
	{
		vc.POST("/session", h.CreateSession)
		vc.GET("/signed-url", h.GetSignedURL)
		vc.POST("/conversation", h.SaveConversation)
		vc.GET("/history", h.GetHistory)
		vc.GET("/conversation/:id", h.GetConversation)
		vc.DELETE("/conversation/:id", h.DeleteConversation)
		vc.GET("/personalities", h.ListPersonalities)
		vc.POST("/chat", h.Chat)
		vc.GET("/metrics", h.GetMetrics)
	}
}

// Health reports liveness, dependency status and the current aggregated
// pipeline metrics. Registered outside the authenticated group.
// GET /voice-coach/health
func (h *VoiceCoachHandler) Health(c *gin.Context) {
	dbStatus := "ok"
	if sqlDB, err := h.db.DB(); err != nil {
		dbStatus = "unreachable"
	} else if err := sqlDB.Ping(); err != nil {
		dbStatus = "unreachable"
	}

	status := "ok"
	if dbStatus != "ok" {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"time":   time.Now().UTC().Format(time.RFC3339),
		"dependencies": gin.H{
			"database":      dbStatus,
			"voicePlatform": statusWord(h.voiceConfigured, "configured", "not_configured"),
			"chatModel":     statusWord(h.chat != nil, "configured", "not_configured"),
			"retrieval":     statusWord(h.retrievalEnabled, "enabled", "disabled"),
		},
		"metrics": h.metrics.Aggregate(nil, nil),
	})
}

func statusWord(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

// CreateSession starts a new coaching session
// POST /voice-coach/session
func (h *VoiceCoachHandler) CreateSession(c *gin.Context) {
	userID := CurrentUser(c)

	var req models.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
		return
	}

	resp, err := h.sessions.CreateSession(c.Request.Context(), userID, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// GetSignedURL issues a connection credential for the voice platform. An
// optional context parameter focuses the session on that topic.
// GET /voice-coach/signed-url?personalityId=...&context=...
func (h *VoiceCoachHandler) GetSignedURL(c *gin.Context) {
	userID := CurrentUser(c)
	personalityID := c.Query("personalityId")
	customContext := c.Query("context")

	resp, err := h.sessions.GetSignedURL(c.Request.Context(), userID, personalityID, customContext)
	if err != nil {
		h.writeError(c, err)
		return
	}
	// The signed URL is a credential; never log it.
	c.JSON(http.StatusOK, resp)
}

// SaveConversation persists a finished conversation
// POST /voice-coach/conversation
func (h *VoiceCoachHandler) SaveConversation(c *gin.Context) {
	userID := CurrentUser(c)

	var req models.SaveConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
		return
	}

	resp, err := h.sessions.SaveConversation(c.Request.Context(), userID, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetHistory lists stored conversations
// GET /voice-coach/history?startDate=...&endDate=...&search=...&sortBy=...&limit=...
func (h *VoiceCoachHandler) GetHistory(c *gin.Context) {
	userID := CurrentUser(c)

	q := service.HistoryQuery{
		Search: c.Query("search"),
		SortBy: c.Query("sortBy"),
	}
	if v := c.Query("startDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid startDate, expected RFC3339"})
			return
		}
		q.StartDate = &t
	}
	if v := c.Query("endDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid endDate, expected RFC3339"})
			return
		}
		q.EndDate = &t
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		q.Limit = n
	}

	conversations, err := h.conversations.History(c.Request.Context(), userID, q)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.HistoryResponse{
		Conversations: conversations,
		Total:         len(conversations),
	})
}

// GetConversation fetches one conversation by its client-supplied id
// GET /voice-coach/conversation/:id
func (h *VoiceCoachHandler) GetConversation(c *gin.Context) {
	userID := CurrentUser(c)

	conversation, err := h.conversations.Load(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversation)
}

// DeleteConversation removes one conversation
// DELETE /voice-coach/conversation/:id
func (h *VoiceCoachHandler) DeleteConversation(c *gin.Context) {
	userID := CurrentUser(c)

	if err := h.conversations.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListPersonalities lists the user's coaching personalities
// GET /voice-coach/personalities
func (h *VoiceCoachHandler) ListPersonalities(c *gin.Context) {
	userID := CurrentUser(c)

	personalities, err := h.personalities.ListPersonalities(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"personalities": personalities})
}

// Chat streams a text-coaching response over SSE
// POST /voice-coach/chat
func (h *VoiceCoachHandler) Chat(c *gin.Context) {
	if h.chat == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat model is not configured"})
		return
	}
	userID := CurrentUser(c)

	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
		return
	}

	chunks, err := h.chat.ChatStream(c.Request.Context(), userID, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Stream(func(w io.Writer) bool {
		chunk, ok := <-chunks
		if !ok {
			c.SSEvent("done", "")
			return false
		}
		c.SSEvent("message", chunk)
		return true
	})
}

// GetMetrics reports aggregated pipeline metrics
// GET /voice-coach/metrics?startDate=...&endDate=...
func (h *VoiceCoachHandler) GetMetrics(c *gin.Context) {
	var start, end *time.Time
	if v := c.Query("startDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid startDate, expected RFC3339"})
			return
		}
		start = &t
	}
	if v := c.Query("endDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid endDate, expected RFC3339"})
			return
		}
		end = &t
	}

	c.JSON(http.StatusOK, gin.H{
		"summary":      h.metrics.Aggregate(start, end),
		"recentErrors": h.metrics.RecentErrors(20),
	})
}

// writeError maps typed failures to their status and payload. Unexpected
// errors become an opaque 500.
func (h *VoiceCoachHandler) writeError(c *gin.Context, err error) {
	if ce, ok := service.AsCoachError(err); ok {
		status := ce.Kind.HTTPStatus()
		body := gin.H{"error": ce.Message, "code": string(ce.Kind)}
		if ce.ResetAt != nil {
			body["resetAt"] = ce.ResetAt.Format(time.RFC3339)
		}
		if status >= 500 {
			h.logger.Error("Request failed",
				"userID", CurrentUser(c), "path", c.FullPath(), "kind", string(ce.Kind), "error", err)
		} else {
			h.logger.Warn("Request rejected",
				"userID", CurrentUser(c), "path", c.FullPath(), "kind", string(ce.Kind))
		}
		c.JSON(status, body)
		return
	}

	h.logger.Error("Request failed", "userID", CurrentUser(c), "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
