package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/countplus7/wbot-backend-sub001/internal/api"
	"github.com/countplus7/wbot-backend-sub001/internal/compose"
	"github.com/countplus7/wbot-backend-sub001/internal/config"
	"github.com/countplus7/wbot-backend-sub001/internal/conversation"
	"github.com/countplus7/wbot-backend-sub001/internal/credentials"
	"github.com/countplus7/wbot-backend-sub001/internal/database"
	"github.com/countplus7/wbot-backend-sub001/internal/dispatch"
	"github.com/countplus7/wbot-backend-sub001/internal/events"
	"github.com/countplus7/wbot-backend-sub001/internal/faq"
	"github.com/countplus7/wbot-backend-sub001/internal/intent"
	"github.com/countplus7/wbot-backend-sub001/internal/jobqueue"
	"github.com/countplus7/wbot-backend-sub001/internal/llm"
	"github.com/countplus7/wbot-backend-sub001/internal/logging"
	"github.com/countplus7/wbot-backend-sub001/internal/oauth"
	"github.com/countplus7/wbot-backend-sub001/internal/pipeline"
	"github.com/countplus7/wbot-backend-sub001/internal/providers"
	"github.com/countplus7/wbot-backend-sub001/internal/providers/google"
	"github.com/countplus7/wbot-backend-sub001/internal/providers/hubspot"
	"github.com/countplus7/wbot-backend-sub001/internal/providers/odoo"
	"github.com/countplus7/wbot-backend-sub001/internal/providers/zoho"
	"github.com/countplus7/wbot-backend-sub001/internal/tenant"
)

// ServeCommand returns the CLI command for starting the API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the assistant backend",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if port := c.Int("port"); port > 0 {
		cfg.Server.Port = port
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)

	ctx := context.Background()

	db, err := database.NewDB()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	sealer, err := credentials.NewSealer(cfg.Credentials.SealKey)
	if err != nil {
		return fmt.Errorf("failed to initialize credential sealer: %w", err)
	}

	tenants := tenant.NewStore(db)
	creds := credentials.NewStore(db, sealer)
	turns := conversation.NewStore(db)
	faqs := faq.NewStore(db)

	oauthApps := buildOAuthApps(cfg)
	refreshers := make(map[credentials.Provider]credentials.Refresher, len(oauthApps))
	exchangers := make(map[credentials.Provider]api.Exchanger, len(oauthApps))
	for provider, app := range oauthApps {
		refreshers[provider] = app
		exchangers[provider] = app
	}
	lifecycle := credentials.NewLifecycle(creds, refreshers)

	classifierModel, err := llm.NewModel(ctx, cfg.Classifier.Provider, cfg.Classifier.APIKey, cfg.Classifier.Model, cfg.Classifier.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to create classifier model: %w", err)
	}
	composerModel := classifierModel
	if cfg.Composer.Model != "" && cfg.Composer.Model != cfg.Classifier.Model {
		composerModel, err = llm.NewModel(ctx, cfg.Classifier.Provider, cfg.Classifier.APIKey, cfg.Composer.Model, cfg.Classifier.BaseURL)
		if err != nil {
			return fmt.Errorf("failed to create composer model: %w", err)
		}
	}

	classifier := intent.NewClassifier(classifierModel, cfg.Classifier.Timeout)
	composer := compose.New(composerModel, cfg.Composer.Timeout)

	dispatcher := dispatch.New(lifecycle,
		[]providers.Handler{google.New(), hubspot.New(), zoho.New(), odoo.New()}...)

	var publisher *events.Publisher
	if cfg.Events.AMQPURL != "" {
		publisher, err = events.NewPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			// Events are best effort end to end; run without them.
			log.Warn().Err(err).Msg("event broker unavailable, outcome events disabled")
			publisher = nil
		} else {
			defer publisher.Close()
		}
	}

	pipe := pipeline.New(classifier, dispatcher, composer, turns, faqs, publisher, cfg.Classifier.ConfidenceThreshold)

	if cfg.Queue.Enabled {
		pool, err := database.NewPool(ctx)
		if err != nil {
			return fmt.Errorf("failed to create pgx pool: %w", err)
		}
		defer pool.Close()

		queue, err := jobqueue.NewJobQueue(pool, creds, lifecycle, cfg.Queue.SweepInterval)
		if err != nil {
			return fmt.Errorf("failed to create job queue: %w", err)
		}
		if err := queue.Start(ctx); err != nil {
			return fmt.Errorf("failed to start job queue: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			queue.Stop(stopCtx)
		}()
	}

	log.Info().Int("port", cfg.Server.Port).Msg("starting server")

	server := api.NewServer(api.Deps{
		Port:               cfg.Server.Port,
		WebhookVerifyToken: cfg.Webhook.VerifyToken,
		WebhookAppSecret:   cfg.Webhook.AppSecret,
		Tenants:            tenants,
		Credentials:        creds,
		FAQs:               faqs,
		Pipeline:           pipe,
		Exchangers:         exchangers,
	})
	return server.Start()
}

// buildOAuthApps wires one token client per configured OAuth app; each
// serves both refresh and the onboarding code exchange. Providers without
// an app entry simply cannot refresh or connect until an admin configures
// the app.
func buildOAuthApps(cfg *config.Config) map[credentials.Provider]*oauth.Refresher {
	apps := make(map[credentials.Provider]*oauth.Refresher)
	for name, app := range cfg.OAuth {
		provider := credentials.Provider(name)
		if !provider.Valid() || !provider.RequiresOAuth() {
			log.Warn().Str("provider", name).Msg("ignoring oauth app for unknown provider")
			continue
		}
		apps[provider] = oauth.NewRefresher(provider, oauth.App{
			ClientID:     app.ClientID,
			ClientSecret: app.ClientSecret,
			TokenURL:     app.TokenURL,
		})
	}
	return apps
}
