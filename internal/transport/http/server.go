package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"agentchat/internal/app"
	"agentchat/internal/bootstrap"
	"agentchat/internal/transport/http/handler"
	"agentchat/internal/transport/http/middleware"
)

type Services struct {
	Auth    *app.AuthService
	Chat    *app.ChatService
	APIKeys *app.APIKeyService
}

type Options struct {
	GinMode     string
	ServiceName string
	Origins     []string
	Probes      handler.Probes
}

func NewRouter(a *bootstrap.App) *gin.Engine {
	return NewEngine(Services{
		Auth:    a.AuthService,
		Chat:    a.ChatService,
		APIKeys: a.APIKeyService,
	}, Options{
		GinMode:     a.Config.App.GinMode,
		ServiceName: a.Config.Tracing.ServiceName,
		Origins:     a.Config.Origins(),
		Probes: handler.Probes{
			AppName:   a.Config.App.Name,
			Env:       a.Config.App.Env,
			StartedAt: a.StartedAt,
			DB:        a.DB,
			Redis:     a.Redis,
			MQConn:    a.MQConn,
		},
	}, a.Logger)
}

func NewEngine(svc Services, opts Options, logger *zap.Logger) *gin.Engine {
	if opts.GinMode != "" {
		gin.SetMode(opts.GinMode)
	}
	handler.RegisterValidators()

	router := gin.New()
	router.Use(
		middleware.Recovery(logger),
		middleware.Tracing(opts.ServiceName),
		middleware.RequestLogger(logger),
		middleware.CORS(opts.Origins),
	)

	healthHandler := handler.NewHealthHandler(opts.Probes)
	router.GET("/healthz", healthHandler.Check)

	authHandler := handler.NewAuthHandler(svc.Auth)
	chatHandler := handler.NewChatHandler(svc.Chat)
	requireUser := middleware.AuthBearer(svc.Auth)

	v1 := router.Group("/api/v1")

	authGroup := v1.Group("/auth")
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/refresh-token", authHandler.RefreshToken)
	authGroup.POST("/logout", requireUser, authHandler.Logout)
	authGroup.POST("/password-reset", requireUser, authHandler.ResetPassword)
	authGroup.GET("/me", requireUser, authHandler.Me)

	// Shared sessions are readable without credentials.
	v1.GET("/chat/share/:session_id", chatHandler.GetSharedSession)

	chatGroup := v1.Group("/chat", requireUser)
	chatGroup.POST("", chatHandler.Invoke)
	chatGroup.GET("", chatHandler.ListSessions)
	chatGroup.GET("/search", chatHandler.SearchSessions)
	chatGroup.GET("/:session_id", chatHandler.GetSession)
	chatGroup.DELETE("/:session_id", chatHandler.DeleteSession)
	chatGroup.POST("/title", chatHandler.GenerateTitle)
	chatGroup.POST("/edit-title", chatHandler.EditTitle)
	chatGroup.POST("/resubmit", chatHandler.Resubmit)
	chatGroup.POST("/feedback", chatHandler.Feedback)
	chatGroup.POST("/share/:session_id", chatHandler.ShareSession)

	serviceGroup := v1.Group("/service", middleware.RequireAPIKey(svc.APIKeys))
	serviceGroup.GET("/users/:user_id/chat", chatHandler.ServiceListSessions)
	serviceGroup.GET("/chat/:session_id", chatHandler.ServiceGetSession)

	return router
}
