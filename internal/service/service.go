package service

import (
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/repository"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/storage"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/utils"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/pkg/config"
)

type Services struct {
	User        *UserService
	Room        *RoomService
	Ledger      *SubmissionLedger
	Sessions    *SessionRegistry
	Locks       *LockCoordinator
	Broadcaster *Broadcaster
	WebSocket   *WebSocketManager
	Tokens      *utils.TokenManager
}

// NewServices 組裝所有服務；bus 決定廣播走共享儲存還是 NATS
func NewServices(cfg *config.Config, repos *repository.Repositories, store storage.SharedStore, bus Bus,
	clock clockwork.Clock, log zerolog.Logger) (*Services, error) {
	dir, err := NewSessionDirectory(cfg.Session.Directory, store, clock)
	if err != nil {
		return nil, err
	}

	tokens := utils.NewTokenManager(cfg.Auth.JWTSecret)
	signer := utils.NewSessionSigner(cfg.Auth.SigningKey)

	broadcaster := NewBroadcaster(bus, clock, log)
	locks := NewLockCoordinator(store, clock, cfg.Lock.RetryInterval, log)
	sessions := NewSessionRegistry(dir, tokens, signer, clock, cfg.Session, log)
	ledger := NewSubmissionLedger(store, broadcaster, clock, cfg.Quiz.KeyTTL, log)
	userService := NewUserService(repos.Member, log)

	var questions QuestionSource
	if repos.Question != nil {
		questions = repos.Question
	}
	roomService := NewRoomService(repos.Room, locks, broadcaster, userService, ledger, questions, clock, cfg.Lock, log)
	wsManager := NewWebSocketManager(sessions, broadcaster, bus, store, clock, cfg.Session.Heartbeat, log)

	return &Services{
		User:        userService,
		Room:        roomService,
		Ledger:      ledger,
		Sessions:    sessions,
		Locks:       locks,
		Broadcaster: broadcaster,
		WebSocket:   wsManager,
		Tokens:      tokens,
	}, nil
}
