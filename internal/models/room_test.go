package models_test

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/models"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/pkg/apperr"
)

func init() {
	models.PasswordCost = bcrypt.MinCost
}

func newRoom(t *testing.T, capacity int, players ...string) *models.Room {
	t.Helper()
	room, err := models.NewRoom("r1", "quiz night", "owner", capacity, "", time.Now())
	require.NoError(t, err)
	for _, p := range players {
		_, err := room.Join(p, "")
		require.NoError(t, err)
	}
	return room
}

func TestNewRoom(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		capacity int
		password string
		wantErr  error
	}{
		{name: "public room", title: "t", capacity: 2},
		{name: "locked room", title: "t", capacity: 8, password: "secret"},
		{name: "capacity too small", title: "t", capacity: 1, wantErr: apperr.ErrInvalidCapacity},
		{name: "capacity too large", title: "t", capacity: 9, wantErr: apperr.ErrInvalidCapacity},
		{name: "blank title", title: "  ", capacity: 4, wantErr: apperr.ErrInvalidTitle},
		{name: "blank password", title: "t", capacity: 4, password: "   ", wantErr: apperr.ErrInvalidPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room, err := models.NewRoom("r1", tt.title, "owner", tt.capacity, tt.password, time.Now())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"owner"}, room.Players)
			assert.Equal(t, models.RoomStatusWaiting, room.Status)
			assert.Equal(t, tt.password != "", room.PasswordHash != "")
			assert.NotEqual(t, tt.password, room.PasswordHash)
		})
	}
}

func TestRoom_Join(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(r *models.Room)
		member     string
		password   string
		wantJoined bool
		wantErr    error
	}{
		{name: "joins", member: "a", wantJoined: true},
		{
			name:   "already in room is a no-op",
			setup:  func(r *models.Room) { r.Players = append(r.Players, "a") },
			member: "a",
		},
		{
			name:    "blacklisted",
			setup:   func(r *models.Room) { r.Blacklist = []string{"a"} },
			member:  "a",
			wantErr: apperr.ErrMemberBlacklisted,
		},
		{
			name:    "full",
			setup:   func(r *models.Room) { r.Players = append(r.Players, "x") },
			member:  "a",
			wantErr: apperr.ErrRoomFull,
		},
		{
			name: "wrong password",
			setup: func(r *models.Room) {
				hash, _ := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
				r.PasswordHash = string(hash)
			},
			member:   "a",
			password: "nope",
			wantErr:  apperr.ErrWrongPassword,
		},
		{
			name: "right password",
			setup: func(r *models.Room) {
				hash, _ := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
				r.PasswordHash = string(hash)
			},
			member:     "a",
			password:   "pw",
			wantJoined: true,
		},
		{
			name:    "game in progress",
			setup:   func(r *models.Room) { r.Status = models.RoomStatusInGame },
			member:  "a",
			wantErr: apperr.ErrGameAlreadyStarted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room := newRoom(t, 2)
			if tt.setup != nil {
				tt.setup(room)
			}
			joined, err := room.Join(tt.member, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantJoined, joined)
			assert.True(t, room.HasPlayer(tt.member))
		})
	}
}

func TestRoom_Leave(t *testing.T) {
	t.Run("non-owner leaves", func(t *testing.T) {
		room := newRoom(t, 4, "a", "b")
		_, _, err := room.ToggleReady("a")
		require.NoError(t, err)

		res, err := room.Leave("a")
		require.NoError(t, err)
		assert.False(t, res.WasOwner)
		assert.Equal(t, []string{"owner", "b"}, room.Players)
		assert.Empty(t, room.ReadyPlayers)
	})

	t.Run("owner leaves, earliest player promoted with ready flag cleared", func(t *testing.T) {
		room := newRoom(t, 2, "a")
		_, _, err := room.ToggleReady("a")
		require.NoError(t, err)

		res, err := room.Leave("owner")
		require.NoError(t, err)
		assert.True(t, res.WasOwner)
		assert.False(t, res.Deleted)
		assert.Equal(t, "a", res.NewOwnerID)
		assert.Equal(t, "a", room.OwnerID)
		assert.Empty(t, room.ReadyPlayers)
	})

	t.Run("last player leaves", func(t *testing.T) {
		room := newRoom(t, 2)
		res, err := room.Leave("owner")
		require.NoError(t, err)
		assert.True(t, res.Deleted)
		assert.Empty(t, room.Players)
	})

	t.Run("not a member", func(t *testing.T) {
		room := newRoom(t, 2)
		_, err := room.Leave("ghost")
		assert.ErrorIs(t, err, apperr.ErrMemberNotInRoom)
	})
}

func TestRoom_ToggleReady(t *testing.T) {
	room := newRoom(t, 3, "a")

	ready, changed, err := room.ToggleReady("owner")
	require.NoError(t, err)
	assert.True(t, ready)
	assert.False(t, changed, "owner calls are ignored")
	assert.Empty(t, room.ReadyPlayers)

	ready, changed, err = room.ToggleReady("a")
	require.NoError(t, err)
	assert.True(t, ready)
	assert.True(t, changed)

	ready, _, err = room.ToggleReady("a")
	require.NoError(t, err)
	assert.False(t, ready)

	_, _, err = room.ToggleReady("ghost")
	assert.ErrorIs(t, err, apperr.ErrMemberNotInRoom)
}

func TestRoom_IsAllReady(t *testing.T) {
	tests := []struct {
		name    string
		players []string
		ready   []string
		want    bool
	}{
		{name: "solo owner", players: []string{"owner"}, want: true},
		{name: "one guest not ready", players: []string{"owner", "a"}, want: false},
		{name: "every guest ready", players: []string{"owner", "a", "b"}, ready: []string{"a", "b"}, want: true},
		{name: "one of two ready", players: []string{"owner", "a", "b"}, ready: []string{"b"}, want: false},
		{name: "solo non-owner", players: []string{"a"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room := &models.Room{OwnerID: "owner", Players: tt.players, ReadyPlayers: tt.ready}
			assert.Equal(t, tt.want, room.IsAllReady())
		})
	}
}

// 隨機驗證：isAllReady ⟺ (單人且為房主) ∨ (所有非房主玩家都已準備)
func TestRoom_IsAllReadyEquivalence(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ids := []string{"owner", "a", "b", "c", "d"}

	for i := 0; i < 500; i++ {
		room := &models.Room{OwnerID: "owner"}
		for _, id := range ids {
			if id == "owner" || rng.Intn(2) == 0 {
				room.Players = append(room.Players, id)
				if id != "owner" && rng.Intn(2) == 0 {
					room.ReadyPlayers = append(room.ReadyPlayers, id)
				}
			}
		}

		want := true
		if !(len(room.Players) == 1 && room.Players[0] == room.OwnerID) {
			for _, p := range room.Players {
				if p != room.OwnerID && !room.IsReady(p) {
					want = false
				}
			}
		}
		assert.Equal(t, want, room.IsAllReady(), "players=%v ready=%v", room.Players, room.ReadyPlayers)
	}
}

func TestRoom_Start(t *testing.T) {
	t.Run("not owner", func(t *testing.T) {
		room := newRoom(t, 2, "a")
		assert.ErrorIs(t, room.Start("a", nil), apperr.ErrNotRoomOwner)
	})

	t.Run("not all ready", func(t *testing.T) {
		room := newRoom(t, 2, "a")
		assert.ErrorIs(t, room.Start("owner", nil), apperr.ErrNotAllReady)
		assert.Equal(t, models.RoomStatusWaiting, room.Status)
	})

	t.Run("solo owner may start", func(t *testing.T) {
		room := newRoom(t, 2)
		require.NoError(t, room.Start("owner", nil))
		assert.Equal(t, models.RoomStatusInGame, room.Status)
	})

	t.Run("already started", func(t *testing.T) {
		room := newRoom(t, 2)
		require.NoError(t, room.Start("owner", nil))
		assert.ErrorIs(t, room.Start("owner", nil), apperr.ErrGameAlreadyStarted)
	})

	t.Run("player left between check and start", func(t *testing.T) {
		room := newRoom(t, 3, "a", "b")
		_, _, _ = room.ToggleReady("a")
		_, _, _ = room.ToggleReady("b")
		readyAtCheck := append([]string(nil), room.ReadyPlayers...)
		require.True(t, room.IsAllReady())

		_, err := room.Leave("b")
		require.NoError(t, err)

		err = room.Start("owner", readyAtCheck)
		assert.ErrorIs(t, err, apperr.ErrPlayerLeftDuringStart)
		assert.Equal(t, models.RoomStatusWaiting, room.Status)
		assert.Equal(t, []string{"a"}, room.ReadyPlayers)
	})

	t.Run("stale ready entry in stored state is stripped", func(t *testing.T) {
		room := newRoom(t, 3, "a")
		room.ReadyPlayers = []string{"a", "ghost"}

		err := room.Start("owner", nil)
		assert.ErrorIs(t, err, apperr.ErrPlayerLeftDuringStart)
		assert.Equal(t, []string{"a"}, room.ReadyPlayers)
		assert.Equal(t, models.RoomStatusWaiting, room.Status)

		require.NoError(t, room.Start("owner", room.ReadyPlayers))
		assert.Equal(t, models.RoomStatusInGame, room.Status)
	})
}

func TestRoom_End(t *testing.T) {
	room := newRoom(t, 2, "a")
	assert.ErrorIs(t, room.End(), apperr.ErrGameNotStarted)

	_, _, _ = room.ToggleReady("a")
	require.NoError(t, room.Start("owner", room.ReadyPlayers))
	room.QuizID = "q1"

	require.NoError(t, room.End())
	assert.Equal(t, models.RoomStatusWaiting, room.Status)
	assert.Empty(t, room.ReadyPlayers)
	assert.Empty(t, room.QuizID)

	room.Status = models.RoomStatusFinished
	require.NoError(t, room.End())
	assert.Equal(t, models.RoomStatusWaiting, room.Status)
}

func TestRoom_Blacklist(t *testing.T) {
	room := newRoom(t, 3, "a")
	_, _, _ = room.ToggleReady("a")

	_, err := room.AddToBlacklist("a", "owner")
	assert.ErrorIs(t, err, apperr.ErrNotRoomOwner)

	_, err = room.AddToBlacklist("owner", "owner")
	assert.ErrorIs(t, err, apperr.ErrCannotBlacklistOwner)

	evicted, err := room.AddToBlacklist("owner", "a")
	require.NoError(t, err)
	assert.True(t, evicted)
	assert.False(t, room.HasPlayer("a"))
	assert.False(t, room.IsReady("a"))

	_, err = room.AddToBlacklist("owner", "a")
	assert.ErrorIs(t, err, apperr.ErrAlreadyBlacklisted)

	_, err = room.Join("a", "")
	assert.ErrorIs(t, err, apperr.ErrMemberBlacklisted)

	require.NoError(t, room.RemoveFromBlacklist("owner", "a"))
	assert.ErrorIs(t, room.RemoveFromBlacklist("owner", "a"), apperr.ErrNotBlacklisted)

	joined, err := room.Join("a", "")
	require.NoError(t, err)
	assert.True(t, joined)
}

// 隨機的加入/離開/黑名單序列下，人數不超過上限且黑名單成員不會在房內
func TestRoom_MembershipInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	members := []string{"a", "b", "c", "d", "e", "f"}

	for round := 0; round < 200; round++ {
		capacity := models.MinCapacity + rng.Intn(models.MaxCapacity-models.MinCapacity+1)
		room, err := models.NewRoom(fmt.Sprintf("r%d", round), "t", "owner", capacity, "", time.Now())
		require.NoError(t, err)

		for step := 0; step < 40; step++ {
			m := members[rng.Intn(len(members))]
			switch rng.Intn(4) {
			case 0, 1:
				_, _ = room.Join(m, "")
			case 2:
				res, _ := room.Leave(m)
				if res.Deleted {
					step = 40
				}
			case 3:
				_, _ = room.AddToBlacklist(room.OwnerID, m)
			}

			require.LessOrEqual(t, len(room.Players), room.Capacity)
			for _, b := range room.Blacklist {
				require.False(t, room.HasPlayer(b), "blacklisted %s in players", b)
			}
			if len(room.Players) > 0 {
				require.True(t, room.HasPlayer(room.OwnerID))
				require.False(t, room.IsReady(room.OwnerID))
			}
		}
	}
}
