package main

import (
	"log"
	"net/http"
	"time"

	"MetaGatewayAPI/config"
	"MetaGatewayAPI/database"
	"MetaGatewayAPI/handlers"
	"MetaGatewayAPI/meta"
	"MetaGatewayAPI/middleware"
	"MetaGatewayAPI/services"

	"github.com/gorilla/mux"
)

func main() {
	cfg := config.Load()

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	storage, err := services.NewStorageService(cfg.UploadDir, cfg.BaseURL)
	if err != nil {
		log.Fatal("Failed to initialize storage:", err)
	}

	resolver := meta.NewCredentialResolver(meta.Credentials{
		PageAccessToken: cfg.MetaPageAccessToken,
		IGAccessToken:   cfg.MetaIGAccessToken,
		WhatsAppToken:   cfg.MetaWhatsAppToken,
		IGPolicy:        meta.IGTokenPolicy(cfg.MetaIGTokenPolicy),
	})
	graph := meta.NewClient(meta.Settings{APIVersion: cfg.MetaAPIVersion}, resolver)

	authService := services.NewAuthService(db, cfg.JWTSecret)
	publisher := services.NewPublisherService(db, storage, graph, services.NewHTTPImageProber(nil), cfg)
	chat := services.NewChatService(graph, cfg)
	webhook := services.NewWebhookService(cfg.MetaWebhookVerifyToken, cfg.MetaAppSecret)

	janitor := services.NewJanitor(storage.TempDir(), 24*time.Hour)
	janitor.Start()
	defer janitor.Stop()

	handler := handlers.NewHandler(publisher, chat, webhook, authService)

	r := setupRoutes(handler, authService, cfg)

	log.Printf("Server starting on port %s...", cfg.Port)
	log.Printf("Upload directory: %s", cfg.UploadDir)
	printEndpoints()

	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal(err)
	}
}

func setupRoutes(h *handlers.Handler, authService *services.AuthService, cfg *config.Config) *mux.Router {
	r := mux.NewRouter()

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = []string{"*"}
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.BodyLimit(cfg.MaxUploadSize))

	// Public routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/api/auth/register", h.Register).Methods("POST")
	r.HandleFunc("/api/auth/login", h.Login).Methods("POST")

	// Webhook endpoints are authenticated by verify token and payload
	// signature, never by JWT.
	r.HandleFunc("/api/socialmedia/webhook", h.VerifyWebhook).Methods("GET")
	r.HandleFunc("/api/socialmedia/webhook", h.ReceiveWebhook).Methods("POST")

	// Static file serving so published media is reachable by Meta's fetchers
	r.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/",
		http.FileServer(http.Dir(cfg.UploadDir))))

	// Protected routes
	protected := r.PathPrefix("/api/v1/marketing/socialmedia").Subrouter()
	protected.Use(middleware.AuthMiddleware(authService))

	protected.HandleFunc("/posts/facebook", h.PublishFacebook).Methods("POST")
	protected.HandleFunc("/posts/instagram", h.PublishInstagram).Methods("POST")
	protected.HandleFunc("/chats/send", h.SendChatMessage).Methods("POST")

	return r
}

func printEndpoints() {
	log.Println("Endpoints available:")
	log.Println("  POST   /api/auth/register                             - Register new user")
	log.Println("  POST   /api/auth/login                                - Login")
	log.Println("  POST   /api/v1/marketing/socialmedia/posts/facebook   - Publish Facebook post (auth)")
	log.Println("  POST   /api/v1/marketing/socialmedia/posts/instagram  - Publish Instagram post (auth)")
	log.Println("  POST   /api/v1/marketing/socialmedia/chats/send       - Send chat message (auth)")
	log.Println("  GET    /api/socialmedia/webhook                       - Webhook verify handshake")
	log.Println("  POST   /api/socialmedia/webhook                       - Webhook delivery (signed)")
	log.Println("  GET    /health                                        - Health check")
	log.Println("  GET    /uploads/*                                     - Serve uploaded files")
}
