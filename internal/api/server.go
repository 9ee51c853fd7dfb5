package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/countplus7/wbot-backend-sub001/internal/credentials"
	"github.com/countplus7/wbot-backend-sub001/internal/faq"
	"github.com/countplus7/wbot-backend-sub001/internal/pipeline"
	"github.com/countplus7/wbot-backend-sub001/internal/tenant"
)

// Server represents the API server
type Server struct {
	echo *echo.Echo
	port int

	webhookVerifyToken string
	webhookAppSecret   string

	tenants    *tenant.Store
	creds      *credentials.Store
	faqs       *faq.Store
	pipeline   *pipeline.Pipeline
	exchangers map[credentials.Provider]Exchanger
}

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Port               int
	WebhookVerifyToken string
	WebhookAppSecret   string
	Tenants            *tenant.Store
	Credentials        *credentials.Store
	FAQs               *faq.Store
	Pipeline           *pipeline.Pipeline
	Exchangers         map[credentials.Provider]Exchanger
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:               e,
		port:               deps.Port,
		webhookVerifyToken: deps.WebhookVerifyToken,
		webhookAppSecret:   deps.WebhookAppSecret,
		tenants:            deps.Tenants,
		creds:              deps.Credentials,
		faqs:               deps.FAQs,
		pipeline:           deps.Pipeline,
		exchangers:         deps.Exchangers,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	// Messaging platform webhook
	s.echo.GET("/webhook", s.verifyWebhook)
	s.echo.POST("/webhook", s.receiveWebhook)

	// API v1 group
	v1 := s.echo.Group("/api/v1")

	// Tenant management
	v1.POST("/businesses", s.createBusiness)
	v1.GET("/businesses", s.listBusinesses)
	v1.GET("/businesses/:id", s.getBusiness)
	v1.PUT("/businesses/:id/status", s.setBusinessStatus)

	// Integration credentials
	v1.GET("/businesses/:id/oauth/:provider/callback", s.oauthCallback)
	v1.PUT("/businesses/:id/credentials/:provider", s.upsertCredential)
	v1.GET("/businesses/:id/credentials/:provider", s.getCredential)
	v1.DELETE("/businesses/:id/credentials/:provider", s.deleteCredential)

	// FAQ entries
	v1.POST("/businesses/:id/faqs", s.createFAQ)
	v1.GET("/businesses/:id/faqs", s.listFAQs)
	v1.PUT("/businesses/:id/faqs/:faqID", s.updateFAQ)
	v1.DELETE("/businesses/:id/faqs/:faqID", s.deleteFAQ)
}

// Start begins the API server and blocks until interrupted.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Fatal("shutting down the server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}
