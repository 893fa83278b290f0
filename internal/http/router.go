package http

import (
	"net/http"

	"remindly/internal/auth"
	"remindly/internal/config"
	"remindly/internal/http/handler"
	mw "remindly/internal/http/middleware"
	"remindly/internal/notify"
	"remindly/internal/reminder"
	"remindly/internal/scheduler"
	"remindly/internal/task"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

func NewRouter(
	cfg config.Config,
	log zerolog.Logger,
	db *gorm.DB,
	jwtSvc *auth.JWT,
	store *reminder.Store,
	sched *scheduler.Scheduler,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Logging(log)...)
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ah := &handler.AuthHandler{DB: db, JWT: jwtSvc}
	r.Post("/auth/register", ah.Register)
	r.Post("/auth/login", ah.Login)

	me := &handler.MeHandler{DB: db}
	r.With(auth.RequireAuth(jwtSvc)).Get("/me", me.Me)

	rh := &handler.ReminderHandler{Store: store, Clock: store.Clock}
	r.Route("/reminders", func(r chi.Router) {
		r.Use(auth.RequireAuth(jwtSvc))

		r.Get("/", rh.List)
		r.Post("/", rh.Create)

		r.Get("/due", rh.Due)
		r.Get("/upcoming", rh.Upcoming)
		r.Get("/stats", rh.Stats)

		r.Get("/{id}", rh.Get)
		r.Put("/{id}", rh.Update)
		r.Delete("/{id}", rh.Delete)
		r.Put("/{id}/complete", rh.Complete)
		r.Put("/{id}/snooze", rh.Snooze)
	})

	th := &handler.TaskHandler{Store: &task.Store{DB: db}}
	r.Route("/tasks", func(r chi.Router) {
		r.Use(auth.RequireAuth(jwtSvc))

		r.Get("/", th.List)
		r.Post("/", th.Create)
		r.Put("/{id}", th.Update)
		r.Delete("/{id}", th.Delete)
	})

	nh := &handler.NotificationHandler{Inbox: &notify.Inbox{DB: db}}
	r.Route("/notifications", func(r chi.Router) {
		r.Use(auth.RequireAuth(jwtSvc))

		r.Get("/", nh.List)
		r.Post("/{id}/read", nh.MarkRead)
	})

	sh := &handler.SchedulerHandler{Scheduler: sched}
	r.Route("/scheduler", func(r chi.Router) {
		r.Use(auth.RequireAuth(jwtSvc))

		r.Get("/status", sh.Status)
		r.Post("/trigger", sh.Trigger)
		r.Put("/cadence", sh.SetCadence)
	})

	return r
}
