package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/studycircle/studycircle/internal/config"
	"github.com/studycircle/studycircle/internal/database"
	"github.com/studycircle/studycircle/internal/server"
	"github.com/studycircle/studycircle/internal/stats"
)

type StudyCircleApp struct {
	log            *log.Logger
	db             database.StudyCircleRepository
	mux            *http.Server
	cs             *server.ChatServer
	stats          stats.StatsProvider
	signingKey     []byte
	allowedOrigins []string
}

func NewStudyCircleApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.StudyCircleRepository, statsUpdater stats.StatsProvider, cfg *config.Config) *StudyCircleApp {
	s := &StudyCircleApp{
		log:            logger,
		db:             db,
		cs:             cs,
		stats:          statsUpdater,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.HandleFunc("POST /api/groups", s.authMiddleware(s.createGroup))
	mux.HandleFunc("GET /api/groups", s.authMiddleware(s.listGroups))
	mux.HandleFunc("GET /api/groups/my-groups", s.authMiddleware(s.myGroups))
	mux.HandleFunc("GET /api/groups/{id}", s.authMiddleware(s.getGroup))
	mux.HandleFunc("PUT /api/groups/{id}", s.authMiddleware(s.updateGroup))
	mux.HandleFunc("DELETE /api/groups/{id}", s.authMiddleware(s.deleteGroup))
	mux.HandleFunc("POST /api/groups/{id}/join", s.authMiddleware(s.joinGroup))
	mux.HandleFunc("POST /api/groups/{id}/leave", s.authMiddleware(s.leaveGroup))
	mux.HandleFunc("GET /api/groups/{id}/members", s.authMiddleware(s.groupMembers))
	mux.HandleFunc("GET /api/notifications", s.authMiddleware(s.listNotifications))
	mux.HandleFunc("GET /api/notifications/unread-count", s.authMiddleware(s.unreadNotificationCount))
	mux.HandleFunc("PUT /api/notifications/read-all", s.authMiddleware(s.markAllNotificationsRead))
	mux.HandleFunc("PUT /api/notifications/{id}/read", s.authMiddleware(s.markNotificationRead))
	mux.HandleFunc("DELETE /api/notifications/{id}", s.authMiddleware(s.deleteNotification))
	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *StudyCircleApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *StudyCircleApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
