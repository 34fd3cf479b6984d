package models

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/pkg/apperr"
)

const (
	MinCapacity = 2
	MaxCapacity = 8

	// bcrypt 只處理前 72 bytes
	maxPasswordLen = 72
)

// PasswordCost 房間密碼雜湊成本
var PasswordCost = bcrypt.DefaultCost

// RoomStatus 定義房間狀態的類型
type RoomStatus string

const (
	RoomStatusWaiting  RoomStatus = "WAITING"
	RoomStatusInGame   RoomStatus = "IN_GAME"
	RoomStatusFinished RoomStatus = "FINISHED"
)

// RoomEvent 觸發狀態轉移的事件
type RoomEvent string

const (
	RoomEventStart RoomEvent = "start"
	RoomEventEnd   RoomEvent = "end"
)

// 每個狀態允許的轉移；不在表內的組合一律拒絕
var roomTransitions = map[RoomStatus]map[RoomEvent]RoomStatus{
	RoomStatusWaiting:  {RoomEventStart: RoomStatusInGame},
	RoomStatusInGame:   {RoomEventEnd: RoomStatusWaiting},
	RoomStatusFinished: {RoomEventEnd: RoomStatusWaiting},
}

// Next 回傳事件發生後的狀態
func (s RoomStatus) Next(ev RoomEvent) (RoomStatus, bool) {
	next, ok := roomTransitions[s][ev]
	return next, ok
}

// Room 表示一個遊戲房間。
// 成員集合以加入順序保存，房主轉移時取最早加入的玩家。
type Room struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	OwnerID      string     `json:"ownerId"`
	Capacity     int        `json:"capacity"`
	Status       RoomStatus `json:"status"`
	Players      []string   `json:"players"`
	ReadyPlayers []string   `json:"readyPlayers"`
	Blacklist    []string   `json:"blacklist"`
	PasswordHash string     `json:"passwordHash,omitempty"`
	QuizSetID    string     `json:"quizSetId,omitempty"`
	QuizID       string     `json:"quizId,omitempty"`
	Version      int64      `json:"version"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// RoomSummary 房間列表使用的公開視圖
type RoomSummary struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	OwnerID     string     `json:"ownerId"`
	Capacity    int        `json:"capacity"`
	PlayerCount int        `json:"playerCount"`
	Status      RoomStatus `json:"status"`
	Locked      bool       `json:"locked"`
	QuizID      string     `json:"quizId,omitempty"`
}

// LeaveResult 描述離開房間造成的結果
type LeaveResult struct {
	WasOwner   bool
	NewOwnerID string
	Deleted    bool
}

// NewRoom 建立只有房主的房間；password 為空代表公開房間
func NewRoom(id, title, ownerID string, capacity int, password string, now time.Time) (*Room, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.ErrInvalidTitle
	}
	if capacity < MinCapacity || capacity > MaxCapacity {
		return nil, apperr.ErrInvalidCapacity.WithDetails("got %d", capacity)
	}

	room := &Room{
		ID:        id,
		Title:     title,
		OwnerID:   ownerID,
		Capacity:  capacity,
		Status:    RoomStatusWaiting,
		Players:   []string{ownerID},
		CreatedAt: now,
	}

	if password != "" {
		if len(password) > maxPasswordLen || strings.TrimSpace(password) == "" {
			return nil, apperr.ErrInvalidPassword
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
		if err != nil {
			return nil, apperr.ErrInvalidPassword
		}
		room.PasswordHash = string(hash)
	}

	return room, nil
}

// CheckPassword 驗證入場密碼；公開房間永遠通過
func (r *Room) CheckPassword(password string) bool {
	if r.PasswordHash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(r.PasswordHash), []byte(password)) == nil
}

func (r *Room) HasPlayer(memberID string) bool     { return contains(r.Players, memberID) }
func (r *Room) IsReady(memberID string) bool       { return contains(r.ReadyPlayers, memberID) }
func (r *Room) IsBlacklisted(memberID string) bool { return contains(r.Blacklist, memberID) }
func (r *Room) IsOwner(memberID string) bool       { return r.OwnerID == memberID }

// Join 加入房間；已在房內時不做任何事並回傳 false
func (r *Room) Join(memberID, password string) (bool, error) {
	if r.HasPlayer(memberID) {
		return false, nil
	}
	if r.IsBlacklisted(memberID) {
		return false, apperr.ErrMemberBlacklisted
	}
	if !r.CheckPassword(password) {
		return false, apperr.ErrWrongPassword
	}
	if len(r.Players) >= r.Capacity {
		return false, apperr.ErrRoomFull
	}
	if r.Status != RoomStatusWaiting {
		return false, apperr.ErrGameAlreadyStarted
	}

	r.Players = append(r.Players, memberID)
	return true, nil
}

// Leave 離開房間。房主離開時由最早加入的玩家接任並清除其準備狀態；
// 房間沒有玩家時 Deleted 為 true。
func (r *Room) Leave(memberID string) (LeaveResult, error) {
	if !r.HasPlayer(memberID) {
		return LeaveResult{}, apperr.ErrMemberNotInRoom
	}

	r.Players = without(r.Players, memberID)
	r.ReadyPlayers = without(r.ReadyPlayers, memberID)

	if !r.IsOwner(memberID) {
		return LeaveResult{}, nil
	}

	res := LeaveResult{WasOwner: true}
	if len(r.Players) == 0 {
		res.Deleted = true
		return res, nil
	}

	r.OwnerID = r.Players[0]
	r.ReadyPlayers = without(r.ReadyPlayers, r.OwnerID)
	res.NewOwnerID = r.OwnerID
	return res, nil
}

// ToggleReady 切換準備狀態。房主永遠視為已準備，呼叫會被忽略（changed 為 false）。
func (r *Room) ToggleReady(memberID string) (ready bool, changed bool, err error) {
	if !r.HasPlayer(memberID) {
		return false, false, apperr.ErrMemberNotInRoom
	}
	if r.IsOwner(memberID) {
		return true, false, nil
	}
	if r.Status != RoomStatusWaiting {
		return false, false, apperr.ErrGameAlreadyStarted
	}

	if r.IsReady(memberID) {
		r.ReadyPlayers = without(r.ReadyPlayers, memberID)
		return false, true, nil
	}
	r.ReadyPlayers = append(r.ReadyPlayers, memberID)
	return true, true, nil
}

// IsAllReady 只有房主一人時為 true；否則每個非房主玩家都必須已準備
func (r *Room) IsAllReady() bool {
	if len(r.Players) == 1 && r.IsOwner(r.Players[0]) {
		return true
	}
	for _, p := range r.Players {
		if r.IsOwner(p) {
			continue
		}
		if !r.IsReady(p) {
			return false
		}
	}
	return true
}

// Start 開始遊戲。readyAtCheck 是呼叫端先前檢查時看到的準備名單；
// 其中已經不在房內的成員視為過期，會被移除並回傳 ErrPlayerLeftDuringStart，
// 此時 Room 已被修改，呼叫端應保存後要求重試。
func (r *Room) Start(memberID string, readyAtCheck []string) error {
	if !r.IsOwner(memberID) {
		return apperr.ErrNotRoomOwner
	}
	next, ok := r.Status.Next(RoomEventStart)
	if !ok {
		return apperr.ErrGameAlreadyStarted
	}
	if len(r.Players) == 0 {
		return apperr.ErrRoomEmpty
	}

	stale := r.staleReady(readyAtCheck)
	if len(stale) > 0 {
		for _, id := range stale {
			r.ReadyPlayers = without(r.ReadyPlayers, id)
		}
		return apperr.ErrPlayerLeftDuringStart.WithDetails("left: %s", strings.Join(stale, ","))
	}

	if !r.IsAllReady() {
		return apperr.ErrNotAllReady
	}

	r.Status = next
	return nil
}

// staleReady 回傳準備名單中已不在房內的成員
func (r *Room) staleReady(readyAtCheck []string) []string {
	var stale []string
	for _, id := range append(append([]string{}, readyAtCheck...), r.ReadyPlayers...) {
		if !r.HasPlayer(id) && !contains(stale, id) {
			stale = append(stale, id)
		}
	}
	return stale
}

// End 結束遊戲回到等待狀態
func (r *Room) End() error {
	next, ok := r.Status.Next(RoomEventEnd)
	if !ok {
		return apperr.ErrGameNotStarted
	}
	r.Status = next
	r.ReadyPlayers = nil
	r.QuizID = ""
	return nil
}

// AddToBlacklist 由房主將成員加入黑名單，若成員在房內則一併移出
func (r *Room) AddToBlacklist(requesterID, memberID string) (evicted bool, err error) {
	if !r.IsOwner(requesterID) {
		return false, apperr.ErrNotRoomOwner
	}
	if r.IsOwner(memberID) {
		return false, apperr.ErrCannotBlacklistOwner
	}
	if r.IsBlacklisted(memberID) {
		return false, apperr.ErrAlreadyBlacklisted
	}

	r.Blacklist = append(r.Blacklist, memberID)
	if r.HasPlayer(memberID) {
		r.Players = without(r.Players, memberID)
		r.ReadyPlayers = without(r.ReadyPlayers, memberID)
		evicted = true
	}
	return evicted, nil
}

// RemoveFromBlacklist 由房主移除黑名單項目
func (r *Room) RemoveFromBlacklist(requesterID, memberID string) error {
	if !r.IsOwner(requesterID) {
		return apperr.ErrNotRoomOwner
	}
	if !r.IsBlacklisted(memberID) {
		return apperr.ErrNotBlacklisted
	}
	r.Blacklist = without(r.Blacklist, memberID)
	return nil
}

// Clone 深拷貝，避免共用切片
func (r *Room) Clone() *Room {
	cp := *r
	cp.Players = append([]string(nil), r.Players...)
	cp.ReadyPlayers = append([]string(nil), r.ReadyPlayers...)
	cp.Blacklist = append([]string(nil), r.Blacklist...)
	return &cp
}

func (r *Room) Summary() RoomSummary {
	return RoomSummary{
		ID:          r.ID,
		Title:       r.Title,
		OwnerID:     r.OwnerID,
		Capacity:    r.Capacity,
		PlayerCount: len(r.Players),
		Status:      r.Status,
		Locked:      r.PasswordHash != "",
		QuizID:      r.QuizID,
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func without(list []string, v string) []string {
	out := list[:0:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
