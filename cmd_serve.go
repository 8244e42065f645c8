package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"siege-coordinator/handlers"
	"siege-coordinator/middleware"
	"siege-coordinator/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

func newServeCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reminder scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, *envFile)
		},
	}
}

func runServe(ctx context.Context, envFile string) error {
	clock := clockwork.NewRealClock()
	scheduler, err := services.NewReminderScheduler(clock)
	if err != nil {
		return err
	}
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			log.Printf("[Reminder] Scheduler shutdown: %v", err)
		}
	}()

	a, err := openApp(ctx, envFile, scheduler, clock)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.ServiceToken == "" {
		return errors.New("SIEGE_SERVICE_TOKEN is required to serve")
	}

	rearmed := a.service.RearmReminders()
	log.Printf("[Reminder] Re-armed %d reminder(s)", rearmed)

	server := fiber.New(fiber.Config{
		AppName:               "siege-coordinator",
		DisableStartupMessage: true,
		Immutable:             true,
	})

	origins := strings.Split(a.cfg.AllowedOrigins, ",")
	for i, origin := range origins {
		origins[i] = strings.TrimSpace(origin)
	}
	server.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(origins, ","),
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID, X-User-Name",
		MaxAge:       86400,
	}))
	server.Use(middleware.GatewayAuthMiddleware(a.cfg.ServiceToken))

	handlers.SetupSiegeRoutes(server, &handlers.SiegeHandler{Service: a.service, Territories: a.territories})

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- server.Listen(a.cfg.ListenAddr)
	}()
	log.Printf("✅ Siege coordinator listening on %s (%s store)", a.cfg.ListenAddr, a.cfg.Store)

	select {
	case err := <-listenErr:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.ShutdownWithContext(shutdownCtx)
}
