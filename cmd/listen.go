package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"VibeMelody/cache"
	"VibeMelody/core/api"
	"VibeMelody/core/player"
	"VibeMelody/core/realtime"
	"VibeMelody/core/session"
	"VibeMelody/db"
	"VibeMelody/logger"

	"github.com/spf13/cobra"
)

var (
	listenUser  string
	listenStore string
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "以指定用户连接 relay 并打印实时事件",
	RunE: func(cmd *cobra.Command, args []string) error {
		if listenUser == "" {
			return errors.New("--user is required")
		}

		store, closeStore, err := openStateStore(listenStore, listenUser)
		if err != nil {
			return err
		}
		defer closeStore()

		ch := realtime.NewWSChannel(cfg.WebSocketURL)
		for _, t := range []realtime.EventType{
			realtime.EventUserConnected, realtime.EventUserDisconnected,
			realtime.EventActivityUpdated, realtime.EventReceiveMessage,
			realtime.EventNewNotification, realtime.EventError,
		} {
			t := t
			ch.Subscribe(t, func(evt realtime.Event) {
				logger.Info("event", logger.String("type", string(t)), logger.String("data", string(evt.Data)))
			})
		}

		s := session.New(ch, api.NewClient(cfg.APIBaseURL), session.Options{
			Store:          store,
			PendingTimeout: cfg.PendingTimeout,
		})
		defer s.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err = s.Connect(ctx, listenUser)
		cancel()
		if err != nil {
			return err
		}
		logger.Info("connected",
			logger.String("user", listenUser),
			logger.String("player", s.Player().State().String()),
			logger.Int("peers", len(s.Peers())),
			logger.Int("unread", s.Unread()))

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

		var tick <-chan time.Time
		if cfg.PresenceRefresh > 0 {
			ticker := time.NewTicker(cfg.PresenceRefresh)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			select {
			case <-tick:
				if err := s.RefreshPresence(); err != nil {
					logger.Warn("refresh presence", logger.ErrorField(err))
				}
				for _, p := range s.ExpirePending(time.Now()) {
					logger.Warn("message not acknowledged",
						logger.String("clientId", p.ClientID),
						logger.String("receiver", p.ReceiverID))
				}
				logger.Debug("presence", logger.Strings("online", s.OnlineUsers()))
			case <-stop:
				logger.Info("disconnecting", logger.String("user", listenUser))
				return s.Disconnect()
			}
		}
	},
}

// openStateStore picks where the player record of userID lives.
func openStateStore(kind, userID string) (player.StateStore, func(), error) {
	switch kind {
	case "bolt":
		store, err := db.OpenBoltStateStore(cfg.StateFile)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case "redis":
		if err := cache.ConnectRedis(cfg); err != nil {
			return nil, nil, err
		}
		return cache.NewPlayerCache(cache.RedisClient, userID), func() { cache.CloseRedis() }, nil
	case "none":
		return nil, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q (bolt, redis or none)", kind)
	}
}

func init() {
	listenCmd.Flags().StringVar(&listenUser, "user", "", "user id to connect as")
	listenCmd.Flags().StringVar(&listenStore, "store", "bolt", "player state store: bolt, redis or none")
	rootCmd.AddCommand(listenCmd)
}
