package routes

import (
	"log/slog"
	"net/http"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/lmslocal/lms-server/docs"
	"github.com/lmslocal/lms-server/handlers"
	"github.com/lmslocal/lms-server/metrics"
	"github.com/lmslocal/lms-server/middleware"
)

type Handlers struct {
	Health      *handlers.HealthHandler
	Auth        *handlers.AuthHandler
	Competition *handlers.CompetitionHandler
	Round       *handlers.RoundHandler
	Device      *handlers.DeviceHandler
	WebSocket   *handlers.WebSocketHandler
	// Uploads is nil when logos live in R2.
	Uploads *handlers.UploadsHandler
}

type Options struct {
	JWTSecret      string
	AllowedOrigins []string
	APILimiter     *middleware.RateLimiter
	AuthLimiter    *middleware.RateLimiter
	Logger         *slog.Logger
}

func SetupRoutes(h Handlers, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true, Timeout: 2 * time.Second}).Handle)
	r.Use(metrics.Instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	if h.Uploads != nil {
		r.Get("/uploads/*", h.Uploads.ServeObject)
	}

	r.With(middleware.AuthenticateWebSocket(opts.JWTSecret, opts.Logger)).
		Get("/ws/competitions/{competitionID}", h.WebSocket.ServeWs)

	r.Group(func(r chi.Router) {
		if opts.APILimiter != nil {
			r.Use(opts.APILimiter.Handler)
		}

		r.Route("/auth", func(r chi.Router) {
			if opts.AuthLimiter != nil {
				r.Use(opts.AuthLimiter.Handler)
			}
			r.Post("/register", h.Auth.Register)
			r.Post("/login", h.Auth.Login)
			r.Post("/forgot-password", h.Auth.ForgotPassword)
			r.Post("/reset-password", h.Auth.ResetPassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(opts.JWTSecret, opts.Logger))

			r.Route("/competitions", func(r chi.Router) {
				r.Post("/", h.Competition.CreateCompetition)
				r.Get("/", h.Competition.ListMyCompetitions)
				r.Post("/join", h.Competition.JoinCompetition)

				r.Route("/{competitionID}", func(r chi.Router) {
					r.Get("/", h.Competition.GetCompetition)
					r.Post("/permissions", h.Competition.GrantPermissions)
					r.Post("/reset", h.Competition.ResetCompetition)
					r.Post("/logo", h.Competition.UploadLogo)
					r.Get("/standings", h.Competition.GetStandings)
					r.Post("/rounds", h.Round.CreateRound)
					r.Get("/rounds", h.Round.ListRounds)
				})
			})

			r.Route("/rounds/{roundID}", func(r chi.Router) {
				r.Post("/fixtures", h.Round.ReplaceFixtures)
				r.Post("/picks", h.Round.SubmitPick)
				r.Post("/picks/override", h.Round.OverridePick)
			})

			r.Post("/fixtures/{fixtureID}/result", h.Round.ApplyResult)
			r.Post("/devices", h.Device.RegisterDevice)
		})
	})

	return r
}
