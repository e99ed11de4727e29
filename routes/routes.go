package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Dosada05/tournament-groups/handlers"
	"github.com/Dosada05/tournament-groups/middleware"
	"github.com/Dosada05/tournament-groups/models"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const requestTimeout = 30 * time.Second

type Options struct {
	JWTSecret      []byte
	AllowedOrigins []string
	Logger         *slog.Logger
}

func SetupRoutes(
	router chi.Router,
	opts Options,
	tournamentHandler *handlers.TournamentHandler,
	teamHandler *handlers.TeamHandler,
	groupHandler *handlers.GroupHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(requestLogger(opts.Logger))
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate(opts.JWTSecret, opts.Logger)
	adminOnly := middleware.Authorize(string(models.RoleAdmin))

	// Websocket connections must outlive the request timeout.
	router.Get("/ws/tournaments/{tournamentID}", webSocketHandler.ServeWs)

	router.Group(func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(requestTimeout))

		r.Route("/tournaments", func(r chi.Router) {
			r.Get("/", tournamentHandler.ListHandler)
			r.With(authenticate, adminOnly).Post("/", tournamentHandler.CreateHandler)

			r.Route("/{tournamentID}", func(r chi.Router) {
				r.Get("/", tournamentHandler.GetByIDHandler)
				r.Get("/teams", teamHandler.ListTournamentTeams)
				r.Get("/groups", groupHandler.ListByTournament)

				r.Group(func(r chi.Router) {
					r.Use(authenticate, adminOnly)
					r.Put("/", tournamentHandler.UpdateDetailsHandler)
					r.Patch("/status", tournamentHandler.UpdateStatusHandler)
					r.Delete("/", tournamentHandler.DeleteHandler)
					r.Delete("/groups", groupHandler.ResetByTournament)
				})
			})
		})

		r.Route("/teams", func(r chi.Router) {
			r.With(authenticate).Post("/", teamHandler.CreateTeam)
			r.With(authenticate).Get("/my", teamHandler.ListMyTeams)

			r.Route("/{teamID}", func(r chi.Router) {
				r.Get("/", teamHandler.GetTeamByID)
				r.With(authenticate).Put("/", teamHandler.UpdateTeamDetails)
				r.With(authenticate).Delete("/", teamHandler.DeleteTeam)
			})
		})

		r.With(authenticate, adminOnly).Post("/groups/assign", groupHandler.AssignTeamsToGroups)
	})
}

// requestLogger writes one structured line per request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.InfoContext(r.Context(), "http request",
					slog.String("request_id", chiMiddleware.GetReqID(r.Context())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", ww.Status()),
					slog.Int("bytes", ww.BytesWritten()),
					slog.Duration("duration", time.Since(start)))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
