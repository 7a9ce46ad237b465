package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"VibeMelody/cache"
	"VibeMelody/config"
	"VibeMelody/core/relay"
	"VibeMelody/db"
	"VibeMelody/logger"
	"VibeMelody/model"
	"VibeMelody/repository"

	"github.com/gorilla/mux"
)

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Relay         *relay.Relay
	Messages      repository.MessageRepository
	Notifications repository.NotificationRepository
	Users         repository.UserRepository
	EventRate     float64 // per connection; zero disables limiting
	EventBurst    int
}

// NewRouter builds the REST and websocket routes.
func NewRouter(d Deps) *mux.Router {
	router := mux.NewRouter()

	// CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+userHeader)
			w.Header().Set("Access-Control-Max-Age", "86400")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	chat := NewChatHandler(d.Users, d.Messages)
	notifications := NewNotificationHandler(d.Notifications, d.Relay)
	ws := NewRealtimeHandler(d.Relay, d.EventRate, d.EventBurst)

	router.HandleFunc("/ws", ws.ServeWS).Methods(http.MethodGet)
	router.HandleFunc("/api/chat/users", RequireUser(chat.GetUsersHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/chat/messages/{peer}", RequireUser(chat.GetMessagesHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/notifications", RequireUser(notifications.ListHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/notifications", notifications.PushHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/notifications/read", RequireUser(notifications.MarkReadHandler)).Methods(http.MethodPost)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	return router
}

// Start runs the relay server until SIGINT or SIGTERM. With inMemory set no
// MySQL or Redis is needed.
func Start(cfg *config.Config, inMemory bool) error {
	hub := relay.NewHub()
	go hub.Run()
	defer hub.Stop()

	var (
		deps     Deps
		presence relay.PresenceStore
	)
	if inMemory {
		store := repository.NewMemoryStore()
		deps.Messages, deps.Notifications, deps.Users = store.Messages(), store.Notifications(), store.Users()
		presence = relay.NewMemoryPresence()
	} else {
		if err := db.ConnectGormDB(cfg); err != nil {
			return err
		}
		defer db.CloseGormDB()
		if err := db.AutoMigrateModels(&model.User{}, &model.Message{}, &model.Notification{}); err != nil {
			return err
		}
		if err := cache.ConnectRedis(cfg); err != nil {
			return err
		}
		defer cache.CloseRedis()

		pc := cache.NewPresenceCache(cache.RedisClient)
		// no connections survive a restart
		if err := pc.Reset(context.Background()); err != nil {
			logger.Warn("reset presence", logger.ErrorField(err))
		}
		presence = pc
		deps.Messages = repository.NewGormMessageRepository(db.GormDB)
		deps.Notifications = repository.NewGormNotificationRepository(db.GormDB)
		deps.Users = repository.NewGormUserRepository(db.GormDB)
	}
	deps.Relay = relay.New(hub, presence, deps.Messages, deps.Notifications, deps.Users)
	deps.EventRate = cfg.ClientEventRate
	deps.EventBurst = cfg.ClientEventBurst

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      NewRouter(deps),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay server starting", logger.String("addr", cfg.ServerAddr), logger.Bool("inMemory", inMemory))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-stop:
	}
	logger.Info("shutting down relay server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("relay server stopped")
	return nil
}
