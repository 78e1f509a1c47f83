package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Lectern/internal/adapters/signal"
	"github.com/dkeye/Lectern/internal/app/lifecycle"
	"github.com/dkeye/Lectern/internal/app/orch"
	"github.com/dkeye/Lectern/internal/app/recording"
	"github.com/dkeye/Lectern/internal/config"
	"github.com/dkeye/Lectern/internal/core"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Deps are the services the router exposes.
type Deps struct {
	Orch       *orch.Orchestrator
	Meetings   *lifecycle.Service
	Recordings *recording.Pipeline
	Auth       core.Authenticator
	Signal     *signal.SignalWSController
	// Blobs serves signed filesystem objects; nil when storage is remote.
	Blobs gin.HandlerFunc
}

type handlers struct {
	orch       *orch.Orchestrator
	meetings   *lifecycle.Service
	recordings *recording.Pipeline
	auth       core.Authenticator
	maxChunk   int
	ice        []string
}

func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions(sessionName, store))

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	h := &handlers{
		orch:       d.Orch,
		meetings:   d.Meetings,
		recordings: d.Recordings,
		auth:       d.Auth,
		maxChunk:   cfg.Recording.MaxChunkBytes,
		ice:        cfg.ICEServers,
	}
	if h.maxChunk <= 0 {
		h.maxChunk = 10 << 20
	}

	api := r.Group("/api")
	api.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	api.POST("/session", h.createSession)
	api.DELETE("/session", h.deleteSession)

	// The channel authenticates itself from the admission bundle.
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("remote", c.ClientIP()).Msg("ws signal endpoint hit")
		d.Signal.HandleSignal(ctx, c)
	})
	if d.Blobs != nil {
		api.GET("/blobs/*key", d.Blobs)
	}

	authed := api.Group("", AuthMiddleware(d.Auth))
	authed.GET("/signal/ice-servers", h.iceServers)

	meetings := authed.Group("/meetings")
	meetings.POST("", h.createMeeting)
	meetings.GET("/:id", h.getMeeting)
	meetings.POST("/:id/activate", h.meetingAction(d.Meetings.Activate))
	meetings.POST("/:id/pause", h.meetingAction(d.Meetings.Pause))
	meetings.POST("/:id/cancel", h.meetingAction(d.Meetings.Cancel))
	meetings.POST("/:id/end", h.meetingAction(d.Meetings.End))
	meetings.POST("/:id/join", h.meetingAction(d.Meetings.Join))
	meetings.POST("/:id/leave", h.meetingAction(d.Meetings.Leave))
	meetings.POST("/:id/mode", h.switchMode)
	meetings.POST("/:id/private-chat", h.startPrivateChat)
	meetings.DELETE("/:id/private-chat", h.endPrivateChat)

	recordings := authed.Group("/recordings")
	recordings.POST("/start", h.startRecording)
	recordings.POST("/stream/:id", h.streamRecording)
	recordings.POST("/end/:id", h.endRecording)
	recordings.GET("/url/:id", h.recordingURL)

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}

func (h *handlers) iceServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"iceServers": []gin.H{{"urls": h.ice}}})
}
