package service

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/models"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/utils"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/pkg/apperr"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/pkg/config"
)

// SessionRegistry 追蹤每個身分的即時連線。
// 新連線註冊時，同一身分的舊連線會被標記終止，由舊連線自行斷線。
type SessionRegistry struct {
	dir       SessionDirectory
	tokens    *utils.TokenManager
	signer    *utils.SessionSigner
	clock     clockwork.Clock
	ttl       time.Duration
	markerTTL time.Duration
	log       zerolog.Logger

	mu        sync.RWMutex
	onExpired func(models.SessionInfo)
}

func NewSessionRegistry(dir SessionDirectory, tokens *utils.TokenManager, signer *utils.SessionSigner,
	clock clockwork.Clock, cfg config.SessionConfig, log zerolog.Logger) *SessionRegistry {
	return &SessionRegistry{
		dir:       dir,
		tokens:    tokens,
		signer:    signer,
		clock:     clock,
		ttl:       cfg.TTL,
		markerTTL: cfg.MarkerTTL,
		log:       log.With().Str("component", "sessions").Logger(),
	}
}

// OnExpired 設定清掃到過期會話時的通知
func (r *SessionRegistry) OnExpired(fn func(models.SessionInfo)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpired = fn
}

// Handshake 驗證短效憑證並簽出 identity + expiry 的簽章
func (r *SessionRegistry) Handshake(credential string) (*models.Handshake, error) {
	claims, err := r.tokens.ParseToken(credential)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrInvalidCredential)
	}

	expiry := r.clock.Now().Add(r.ttl).Truncate(time.Millisecond)
	return &models.Handshake{
		Identity:  claims.UserID,
		Expiry:    expiry,
		Signature: r.signer.Sign(claims.UserID, expiry),
	}, nil
}

// VerifyHandshake 檢查附在連線上的三元組是否被竄改
func (r *SessionRegistry) VerifyHandshake(h models.Handshake) bool {
	return r.signer.Verify(h.Identity, h.Expiry, h.Signature)
}

// Register 保存會話，並標記同一身分的其他會話終止；回傳被標記的 sessionId
func (r *SessionRegistry) Register(ctx context.Context, identity, sessionID, token string, expiry time.Time) ([]string, error) {
	existing, err := r.dir.List(ctx, identity)
	if err != nil {
		return nil, err
	}

	info := models.SessionInfo{
		Identity:  identity,
		SessionID: sessionID,
		AuthToken: token,
		Expiry:    expiry,
		Signature: r.signer.Sign(identity, expiry),
	}
	if err := r.dir.Put(ctx, info); err != nil {
		return nil, err
	}

	var marked []string
	for _, old := range existing {
		if old.SessionID == sessionID {
			continue
		}
		if err := r.dir.MarkTerminated(ctx, old.SessionID, r.markerTTL); err != nil {
			return marked, err
		}
		marked = append(marked, old.SessionID)
	}

	if len(marked) > 0 {
		r.log.Info().Str("identity", identity).Str("session_id", sessionID).
			Strs("terminated", marked).Msg("newer session registered, older sessions marked")
	}
	return marked, nil
}

// Validate 會話存在且尚未過期時為 true
func (r *SessionRegistry) Validate(ctx context.Context, identity, sessionID string) (bool, error) {
	info, err := r.dir.Get(ctx, identity, sessionID)
	if err != nil || info == nil {
		return false, err
	}
	return !info.Expired(r.clock.Now()), nil
}

// Refresh 將仍有效的會話到期時間往後延；會話不存在或已過期時回傳 false
func (r *SessionRegistry) Refresh(ctx context.Context, identity, sessionID string) (bool, error) {
	info, err := r.dir.Get(ctx, identity, sessionID)
	if err != nil || info == nil {
		return false, err
	}

	now := r.clock.Now()
	if info.Expired(now) {
		return false, nil
	}

	info.Expiry = now.Add(r.ttl).Truncate(time.Millisecond)
	info.Signature = r.signer.Sign(identity, info.Expiry)
	if err := r.dir.Put(ctx, *info); err != nil {
		return false, err
	}
	return true, nil
}

// ShouldTerminate 回報會話是否已被較新的連線取代
func (r *SessionRegistry) ShouldTerminate(ctx context.Context, sessionID string) (bool, error) {
	return r.dir.IsTerminated(ctx, sessionID)
}

// HasSessions 回報身分是否仍有任何已註冊的會話
func (r *SessionRegistry) HasSessions(ctx context.Context, identity string) (bool, error) {
	sessions, err := r.dir.List(ctx, identity)
	if err != nil {
		return false, err
	}
	return len(sessions) > 0, nil
}

// Remove 移除會話；不存在時不做任何事
func (r *SessionRegistry) Remove(ctx context.Context, identity, sessionID string) error {
	_, err := r.dir.Delete(ctx, identity, sessionID)
	return err
}

// Sweep 清除在 now 時已過期的會話，並對每一筆呼叫通知
func (r *SessionRegistry) Sweep(ctx context.Context, now time.Time) (int, error) {
	identities, err := r.dir.Identities(ctx)
	if err != nil {
		return 0, err
	}

	r.mu.RLock()
	notify := r.onExpired
	r.mu.RUnlock()

	evicted := 0
	for _, identity := range identities {
		sessions, err := r.dir.List(ctx, identity)
		if err != nil {
			return evicted, err
		}
		for _, info := range sessions {
			if !info.Expired(now) {
				continue
			}
			deleted, err := r.dir.Delete(ctx, identity, info.SessionID)
			if err != nil {
				return evicted, err
			}
			// 其他節點可能已經清掉同一筆
			if !deleted {
				continue
			}
			evicted++
			if notify != nil {
				notify(info)
			}
		}
	}

	if evicted > 0 {
		r.log.Info().Int("evicted", evicted).Msg("expired sessions swept")
	}
	return evicted, nil
}

// Run 每隔 interval 清掃一次，直到 ctx 結束
func (r *SessionRegistry) Run(ctx context.Context, interval time.Duration) {
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if _, err := r.Sweep(ctx, r.clock.Now()); err != nil {
				r.log.Error().Err(err).Msg("session sweep failed")
			}
		}
	}
}
