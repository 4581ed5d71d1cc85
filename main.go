package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/Jahangir-Hossain99/Job-Site/routes"
	"github.com/Jahangir-Hossain99/Job-Site/services"
	"github.com/Jahangir-Hossain99/Job-Site/storage"
	"github.com/Jahangir-Hossain99/Job-Site/utils"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

func main() {
	// Only load .env in development
	if os.Getenv("RENDER") == "" {
		godotenv.Load()
	}

	// Initialize services
	db := storage.InitializeDB()
	storage.InitializeRedis()

	app := iris.New()
	app.Validator = validator.New()

	// CORS configuration
	app.AllowMethods(iris.MethodOptions)
	app.UseRouter(func(ctx iris.Context) {
		ctx.Header("Access-Control-Allow-Origin", ctx.GetHeader("Origin"))
		ctx.Header("Vary", "Origin")
		ctx.Header("Access-Control-Allow-Credentials", "true")
		ctx.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Requested-With")
		ctx.Header("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		if ctx.Method() == iris.MethodOptions {
			ctx.StatusCode(iris.StatusNoContent)
			return
		}
		ctx.Next()
	})

	// Minimal middleware - compression only
	app.Use(iris.Compression)

	// JWT Verifiers
	accessTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	accessTokenVerifier.WithDefaultBlocklist()
	accessTokenVerifierMiddleware := accessTokenVerifier.Verify(func() interface{} {
		return new(utils.AccessToken)
	})

	refreshTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("REFRESH_TOKEN_SECRET")))
	refreshTokenVerifier.WithDefaultBlocklist()
	refreshTokenVerifierMiddleware := refreshTokenVerifier.Verify(func() interface{} {
		return new(jwt.Claims)
	})

	refreshTokenVerifier.Extractors = append(refreshTokenVerifier.Extractors, func(ctx iris.Context) string {
		var tokenInput utils.RefreshTokenInput
		err := ctx.ReadJSON(&tokenInput)
		if err != nil {
			return ""
		}
		return tokenInput.RefreshToken
	})

	// Chat hub: sessions authenticate with the same access tokens the REST
	// routes use.
	hub := services.NewChatHub(
		services.NewMessageStore(db),
		services.NewIdentityResolver(db),
		func(token string) (services.PartyRef, error) {
			claims, err := utils.VerifyAccessToken(token)
			if err != nil {
				return services.PartyRef{}, err
			}
			return services.PartyRef{ID: claims.ID, Kind: claims.Kind}, nil
		},
		storage.Redis,
	)
	hub.SetNotifier(services.NewNotificationService())
	go hub.Run(context.Background())
	routes.UseChatDB(db)
	routes.UseChatHub(hub)

	// Health check endpoint
	app.Get("/health", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"status": "ok"})
	})

	// Routes
	user := app.Party("/api/user")
	{
		user.Post("/register", routes.Register)
		user.Post("/login", routes.Login)
		user.Post("/google", routes.GoogleLoginOrSignUp)
		user.Get("/search", accessTokenVerifierMiddleware, routes.SearchUsers)
		user.Get("/{id}", accessTokenVerifierMiddleware, routes.GetUser)
		user.Patch("/{id}/pushtoken", accessTokenVerifierMiddleware, utils.UserIDMiddleware, routes.AlterPushToken)
		user.Patch("/{id}/settings/notifications", accessTokenVerifierMiddleware, utils.UserIDMiddleware, routes.AllowsNotifications)
	}

	company := app.Party("/api/company")
	{
		company.Post("/register", routes.RegisterCompany)
		company.Post("/login", routes.LoginCompany)
		company.Get("/{id}", routes.GetCompany)
	}

	chat := app.Party("/api/chat")
	{
		chat.Get("/ws", routes.ChatSocket)
		chat.Get("/conversations", accessTokenVerifierMiddleware, routes.GetConversations)
		chat.Get("/history/{kind}/{id:uint}", accessTokenVerifierMiddleware, routes.GetChatHistory)
		chat.Post("/messages", accessTokenVerifierMiddleware, routes.SendMessage)
		chat.Post("/typing/{kind}/{id:uint}", accessTokenVerifierMiddleware, routes.Typing)
		chat.Get("/typing/{kind}/{id:uint}", accessTokenVerifierMiddleware, routes.ListTyping)
	}

	app.Post("/api/refresh", refreshTokenVerifierMiddleware, utils.RefreshToken)

	// Get port from environment
	port := os.Getenv("PORT")
	if port == "" {
		port = "4000"
	}
	addr := "0.0.0.0:" + port

	fmt.Printf("🚀 Server starting on %s\n", addr)

	// Start server
	if err := app.Listen(addr); err != nil {
		log.Fatalf("❌ Server failed: %v", err)
	}
}
