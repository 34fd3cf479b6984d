package models

import "time"

// SessionInfo 一條已註冊的連線會話
type SessionInfo struct {
	Identity  string    `json:"identity"`
	SessionID string    `json:"sessionId"`
	AuthToken string    `json:"authToken"`
	Expiry    time.Time `json:"expiry"`
	Signature string    `json:"signature"`
}

// Expired 在 now 不早於 Expiry 時為 true
func (s SessionInfo) Expired(now time.Time) bool {
	return !now.Before(s.Expiry)
}

// Handshake 握手成功後附加在連線上的身分資訊
type Handshake struct {
	Identity  string
	Expiry    time.Time
	Signature string
}
