package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/api/handlers"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/middleware"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/service"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/pkg/config"
)

func SetupRoutes(r *gin.Engine, services *service.Services, cfg *config.Config, log zerolog.Logger) {
	// 初始化 handlers
	authHandler := handlers.NewAuthHandler(services.User, services.Tokens, cfg.Auth.WSTokenTTL, log)
	roomHandler := handlers.NewRoomHandler(services.Room, log)
	quizHandler := handlers.NewQuizHandler(services.Ledger, log)
	wsHandler := handlers.NewWebSocketHandler(services.WebSocket, services.Sessions, cfg.Server.AllowedOrigins, log)

	// 處理 404 錯誤
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "NOT_FOUND",
			"error": "找不到該路徑",
		})
	})

	// WebSocket 以 query 中的短效憑證驗證，不經過 Bearer 中間件
	r.GET("/ws", wsHandler.HandleWebSocket)

	api := r.Group("/api")

	// 基本的健康檢查
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// 需要驗證的路由
	authorized := api.Group("")
	authorized.Use(middleware.AuthMiddleware(services.Tokens))
	{
		authorized.POST("/ws-token", authHandler.IssueWSToken)

		rooms := authorized.Group("/rooms")
		{
			// 基本操作
			rooms.GET("", roomHandler.ListRooms)
			rooms.POST("", roomHandler.CreateRoom)
			rooms.GET("/:id", roomHandler.GetRoom)
			rooms.GET("/:id/players", roomHandler.GetPlayers)

			// 房間參與
			rooms.POST("/:id/join", roomHandler.JoinRoom)
			rooms.POST("/:id/leave", roomHandler.LeaveRoom)
			rooms.POST("/:id/ready", roomHandler.ToggleReady)

			// 遊戲流程（房主）
			rooms.POST("/:id/start", roomHandler.StartGame)
			rooms.POST("/:id/end", roomHandler.EndGame)

			// 黑名單（房主）
			rooms.POST("/:id/blacklist/:memberId", roomHandler.AddToBlacklist)
			rooms.DELETE("/:id/blacklist/:memberId", roomHandler.RemoveFromBlacklist)
		}

		quizzes := authorized.Group("/quizzes")
		{
			quizzes.GET("/:quizId", quizHandler.GetRound)
			quizzes.POST("/:quizId/questions/:n/submissions", quizHandler.Submit)
		}
	}
}
