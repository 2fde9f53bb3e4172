package main

import (
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-messenger/internal/admin"
	"go-messenger/internal/channel"
	"go-messenger/internal/config"
	"go-messenger/internal/contact"
	"go-messenger/internal/group"
	"go-messenger/internal/logging"
	"go-messenger/internal/media"
	"go-messenger/internal/middleware"
	"go-messenger/internal/realtime"
	"go-messenger/internal/user"
)

type routes struct {
	cfg     *config.Config
	authMW  *middleware.AuthMiddleware
	hub     *realtime.Hub
	files   *media.DiskStore
	upload  *media.Handler
	user    *user.Handler
	admin   *admin.Handler
	contact *contact.Handler
	group   *group.Handler
	channel *channel.Handler
}

func newRouter(rt routes) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(logging.RequestLogger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	limitAuth := httprate.LimitByIP(rt.cfg.RateLimit.Requests, rt.cfg.RateLimit.Window)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle(rt.cfg.Uploads.URLPrefix+"/*",
		http.StripPrefix(rt.cfg.Uploads.URLPrefix, http.FileServer(http.Dir(rt.files.Dir()))))

	r.With(rt.authMW.RequireUser).Get("/ws", rt.hub.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(limitAuth)
				r.Post("/sign-up", rt.user.SignUp)
				r.Post("/sign-in", rt.user.SignIn)
				r.Post("/forget-password", rt.user.ForgotPassword)
				r.Post("/verify-code", rt.user.VerifyCode)
				r.Put("/reset-password", rt.user.ResetPassword)
			})
			r.Group(func(r chi.Router) {
				r.Use(rt.authMW.RequireUser)
				r.Get("/me", rt.user.Me)
				r.Put("/me", rt.user.Update)
				r.Delete("/me", rt.user.Delete)
				r.Get("/search", rt.user.Search)
			})
		})

		r.Route("/admins", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(limitAuth)
				r.With(rt.authMW.OptionalIdentity).Post("/sign-up", rt.admin.SignUp)
				r.Post("/sign-in", rt.admin.SignIn)
			})
			r.Group(func(r chi.Router) {
				r.Use(rt.authMW.RequireAdmin)
				r.Get("/", rt.admin.List)
				r.Get("/me", rt.admin.Me)
				r.Put("/me", rt.admin.Update)
				r.Delete("/me", rt.admin.Delete)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(rt.authMW.RequireUser)

			r.Post("/uploads/{kind}", rt.upload.Upload)

			r.Route("/contacts", func(r chi.Router) {
				r.Post("/", rt.contact.Start)
				r.Route("/{chatID}", func(r chi.Router) {
					r.Delete("/", rt.contact.Delete)
					r.Get("/search", rt.contact.Search)
					r.Get("/messages", rt.contact.Messages)
					r.Post("/messages", rt.contact.Send)
					r.Put("/messages/{messageID}", rt.contact.Edit)
					r.Delete("/messages/{messageID}", rt.contact.DeleteMessage)
				})
			})

			r.Route("/groups", func(r chi.Router) {
				r.Post("/", rt.group.Create)
				r.Route("/{groupID}", func(r chi.Router) {
					r.Get("/", rt.group.Biography)
					r.Delete("/", rt.group.Delete)
					r.Post("/members", rt.group.AddMembers)
					r.Delete("/members", rt.group.RemoveMembers)
					r.Delete("/membership", rt.group.Leave)
					r.Get("/search", rt.group.Search)
					r.Get("/messages", rt.group.Messages)
					r.Post("/messages", rt.group.Send)
					r.Delete("/messages", rt.group.DeleteMessages)
					r.Put("/messages/{messageID}", rt.group.Edit)
					r.Delete("/messages/{messageID}", rt.group.DeleteMessage)
				})
			})

			r.Route("/channels", func(r chi.Router) {
				r.Post("/", rt.channel.Create)
				r.Route("/{channelID}", func(r chi.Router) {
					r.Get("/", rt.channel.Get)
					r.Put("/", rt.channel.Update)
					r.Delete("/", rt.channel.Delete)
					r.Post("/admins", rt.channel.AddAdmins)
					r.Post("/follow", rt.channel.Follow)
					r.Delete("/follow", rt.channel.Unfollow)
					r.Get("/search", rt.channel.Search)
					r.Get("/contents", rt.channel.Contents)
					r.Post("/contents", rt.channel.Post)
					r.Put("/contents/{contentID}", rt.channel.Edit)
					r.Delete("/contents/{contentID}", rt.channel.DeleteContent)
				})
			})
		})
	})

	return r
}

// originChecker vets WebSocket upgrades against the CORS allow list. A "*"
// entry, or no list at all, admits every origin.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return slices.ContainsFunc(allowed, func(a string) bool {
			return strings.EqualFold(strings.TrimSuffix(a, "/"), u.Scheme+"://"+u.Host)
		})
	}
}
