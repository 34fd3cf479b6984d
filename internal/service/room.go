package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/models"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/repository"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/pkg/apperr"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/pkg/config"
)

// QuestionSource 提供題組內容，依題號排序
type QuestionSource interface {
	FindByQuizSetID(ctx context.Context, quizSetID string) ([]models.QuizQuestion, error)
}

// CreateRoomInput 建立房間的參數
type CreateRoomInput struct {
	Title     string
	Capacity  int
	Password  string
	QuizSetID string
}

// RoomService 讀取、修改並以版本檢查保存 Room，成功後廣播最新的名單快照
type RoomService struct {
	rooms       repository.RoomRepository
	locks       *LockCoordinator
	broadcaster *Broadcaster
	members     MemberLookup
	ledger      *SubmissionLedger
	questions   QuestionSource
	clock       clockwork.Clock
	lockWait    time.Duration
	lockLease   time.Duration
	log         zerolog.Logger
}

// NewRoomService questions 可以為 nil，此時開始遊戲不會建立測驗
func NewRoomService(rooms repository.RoomRepository, locks *LockCoordinator, broadcaster *Broadcaster,
	members MemberLookup, ledger *SubmissionLedger, questions QuestionSource, clock clockwork.Clock,
	lockCfg config.LockConfig, log zerolog.Logger) *RoomService {
	s := &RoomService{
		rooms:       rooms,
		locks:       locks,
		broadcaster: broadcaster,
		members:     members,
		ledger:      ledger,
		questions:   questions,
		clock:       clock,
		lockWait:    lockCfg.WaitTime,
		lockLease:   lockCfg.LeaseTime,
		log:         log.With().Str("component", "rooms").Logger(),
	}

	ledger.OnSubmitted(s.onSubmitted)
	ledger.OnFinished(s.onQuizFinished)
	return s
}

// mutate 在房間鎖內讀取最新的房間並交給 fn 修改；用於開始、結束與黑名單這類複合操作
func (s *RoomService) mutate(ctx context.Context, roomID string, fn func(ctx context.Context, room *models.Room) error) error {
	return s.locks.WithLock(ctx, roomLockKey(roomID), s.lockWait, s.lockLease, func(ctx context.Context) error {
		room, err := s.rooms.FindByID(ctx, roomID)
		if err != nil {
			return err
		}
		return fn(ctx, room)
	})
}

func (s *RoomService) CreateRoom(ctx context.Context, ownerID string, in CreateRoomInput) (*models.Room, error) {
	room, err := models.NewRoom(uuid.NewString(), in.Title, ownerID, in.Capacity, in.Password, s.clock.Now())
	if err != nil {
		return nil, err
	}
	room.QuizSetID = in.QuizSetID

	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, err
	}

	s.log.Info().Str("room_id", room.ID).Str("owner_id", ownerID).Int("capacity", room.Capacity).Msg("room created")
	return room, nil
}

func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*models.RoomSummary, error) {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	summary := room.Summary()
	return &summary, nil
}

func (s *RoomService) ListRooms(ctx context.Context) ([]models.RoomSummary, error) {
	rooms, err := s.rooms.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]models.RoomSummary, 0, len(rooms))
	for i := range rooms {
		summaries = append(summaries, rooms[i].Summary())
	}
	return summaries, nil
}

// JoinRoom 已在房內時視為成功且不廣播。
// join/leave/ready 不取房間鎖，只靠保存時的版本檢查；衝突時回傳可重試的 VERSION_CONFLICT
func (s *RoomService) JoinRoom(ctx context.Context, roomID, memberID, password string) error {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	added, err := room.Join(memberID, password)
	if err != nil || !added {
		return err
	}
	if err := s.rooms.Update(ctx, room); err != nil {
		return err
	}

	s.publish(ctx, room, models.MessageJoin, memberID, memberID)
	return nil
}

// LeaveRoom 房主離開時由最早加入的玩家接任並廣播 OWNER_CHANGED，其他人離開廣播 LEAVE；
// 最後一人離開時刪除房間
func (s *RoomService) LeaveRoom(ctx context.Context, roomID, memberID string) error {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	result, err := room.Leave(memberID)
	if err != nil {
		return err
	}
	if result.Deleted {
		err = s.rooms.Delete(ctx, room)
	} else {
		err = s.rooms.Update(ctx, room)
	}
	if err != nil {
		return err
	}

	if result.Deleted {
		s.log.Info().Str("room_id", roomID).Msg("last player left, room deleted")
		if room.QuizID != "" {
			if err := s.ledger.Close(ctx, room.QuizID); err != nil {
				s.log.Error().Err(err).Str("quiz_id", room.QuizID).Msg("failed to close quiz of deleted room")
			}
		}
		s.publish(ctx, room, models.MessageRoomDeleted, memberID, "")
		return nil
	}

	if result.WasOwner {
		s.publish(ctx, room, models.MessageOwnerChanged, memberID, result.NewOwnerID)
	} else {
		s.publish(ctx, room, models.MessageLeave, memberID, memberID)
	}
	s.dropParticipant(ctx, room, memberID)
	return nil
}

// ToggleReady 回傳切換後的準備狀態；房主呼叫時不做任何事
func (s *RoomService) ToggleReady(ctx context.Context, roomID, memberID string) (bool, error) {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return false, err
	}
	ready, changed, err := room.ToggleReady(memberID)
	if err != nil {
		return false, err
	}
	if !changed {
		return ready, nil
	}
	if err := s.rooms.Update(ctx, room); err != nil {
		return false, err
	}

	typ := models.MessageUnready
	if ready {
		typ = models.MessageReady
	}
	s.publish(ctx, room, typ, memberID, memberID)
	return ready, nil
}

// StartGame 分兩階段：先以快照檢查是否全員準備，再於鎖內重新讀取房間後保存。
// 檢查之後離開的玩家會讓這次開始失敗並回傳 ErrPlayerLeftDuringStart。
func (s *RoomService) StartGame(ctx context.Context, roomID, memberID string) (*models.Room, error) {
	snapshot, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !snapshot.IsOwner(memberID) {
		return nil, apperr.ErrNotRoomOwner
	}
	if snapshot.Status != models.RoomStatusWaiting {
		return nil, apperr.ErrGameAlreadyStarted
	}
	if !snapshot.IsAllReady() {
		return nil, apperr.ErrNotAllReady
	}
	readyAtCheck := append([]string(nil), snapshot.ReadyPlayers...)

	var answers []string
	if snapshot.QuizSetID != "" && s.questions != nil {
		questions, err := s.questions.FindByQuizSetID(ctx, snapshot.QuizSetID)
		if err != nil {
			return nil, err
		}
		for _, q := range questions {
			answers = append(answers, q.Answer)
		}
	}

	var started *models.Room
	err = s.mutate(ctx, roomID, func(ctx context.Context, room *models.Room) error {
		startErr := room.Start(memberID, readyAtCheck)
		if errors.Is(startErr, apperr.ErrPlayerLeftDuringStart) {
			if err := s.rooms.Update(ctx, room); err != nil {
				return err
			}
			s.log.Warn().Str("room_id", roomID).Err(startErr).Msg("player left during start, stale ready entries stripped")
			return startErr
		}
		if startErr != nil {
			return startErr
		}

		if len(answers) > 0 {
			room.QuizID = uuid.NewString()
		}
		if err := s.rooms.Update(ctx, room); err != nil {
			return err
		}
		started = room
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("room_id", roomID).Str("quiz_id", started.QuizID).Int("players", len(started.Players)).Msg("game started")
	s.publish(ctx, started, models.MessageGameStart, memberID, started.QuizID)

	if started.QuizID != "" {
		if _, err := s.ledger.Open(ctx, started.QuizID, roomID, started.Players, answers); err != nil {
			s.log.Error().Err(err).Str("room_id", roomID).Str("quiz_id", started.QuizID).Msg("failed to open quiz, ending game")
			if endErr := s.endGame(ctx, roomID, started.QuizID, ""); endErr != nil {
				s.log.Error().Err(endErr).Str("room_id", roomID).Msg("failed to end game after quiz open failure")
			}
			return nil, err
		}
	}
	return started, nil
}

// EndGame 由房主結束遊戲
func (s *RoomService) EndGame(ctx context.Context, roomID, memberID string) error {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsOwner(memberID) {
		return apperr.ErrNotRoomOwner
	}
	return s.endGame(ctx, roomID, "", memberID)
}

// endGame quizID 不為空時只結束仍在進行該測驗的遊戲
func (s *RoomService) endGame(ctx context.Context, roomID, quizID, senderID string) error {
	var (
		ended    *models.Room
		prevQuiz string
	)
	err := s.mutate(ctx, roomID, func(ctx context.Context, room *models.Room) error {
		if quizID != "" && room.QuizID != quizID {
			return nil
		}
		prevQuiz = room.QuizID
		if err := room.End(); err != nil {
			return err
		}
		if err := s.rooms.Update(ctx, room); err != nil {
			return err
		}
		ended = room
		return nil
	})
	if err != nil || ended == nil {
		return err
	}

	if prevQuiz != "" {
		if err := s.ledger.Close(ctx, prevQuiz); err != nil {
			s.log.Error().Err(err).Str("quiz_id", prevQuiz).Msg("failed to close quiz")
		}
	}
	s.log.Info().Str("room_id", roomID).Msg("game ended")
	s.publish(ctx, ended, models.MessageGameEnd, senderID, "")
	return nil
}

// AddToBlacklist 加入黑名單，若成員在房內則一併踢出
func (s *RoomService) AddToBlacklist(ctx context.Context, roomID, requesterID, memberID string) error {
	var (
		updated *models.Room
		evicted bool
	)
	err := s.mutate(ctx, roomID, func(ctx context.Context, room *models.Room) error {
		ev, err := room.AddToBlacklist(requesterID, memberID)
		if err != nil {
			return err
		}
		if err := s.rooms.Update(ctx, room); err != nil {
			return err
		}
		updated, evicted = room, ev
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("room_id", roomID).Str("member_id", memberID).Bool("evicted", evicted).Msg("member blacklisted")
	s.publish(ctx, updated, models.MessageBlacklisted, requesterID, memberID)
	if evicted {
		s.dropParticipant(ctx, updated, memberID)
	}
	return nil
}

func (s *RoomService) RemoveFromBlacklist(ctx context.Context, roomID, requesterID, memberID string) error {
	return s.mutate(ctx, roomID, func(ctx context.Context, room *models.Room) error {
		if err := room.RemoveFromBlacklist(requesterID, memberID); err != nil {
			return err
		}
		return s.rooms.Update(ctx, room)
	})
}

// Snapshot 目前的名單快照
func (s *RoomService) Snapshot(ctx context.Context, roomID string) ([]models.PlayerSnapshot, error) {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return s.snapshot(ctx, room), nil
}

// snapshot 房主永遠顯示為已準備；測驗進行中附上目前這題是否已提交
func (s *RoomService) snapshot(ctx context.Context, room *models.Room) []models.PlayerSnapshot {
	names := s.members.DisplayNames(ctx, room.Players)

	var submitted map[string]bool
	if room.Status == models.RoomStatusInGame && room.QuizID != "" {
		submitted = s.submittedNow(ctx, room.QuizID)
	}

	players := make([]models.PlayerSnapshot, 0, len(room.Players))
	for _, id := range room.Players {
		p := models.PlayerSnapshot{
			ID:      id,
			Name:    names[id],
			IsReady: room.IsOwner(id) || room.IsReady(id),
			IsOwner: room.IsOwner(id),
		}
		if submitted != nil {
			done := submitted[id]
			p.IsSubmitted = &done
		}
		players = append(players, p)
	}
	return players
}

func (s *RoomService) submittedNow(ctx context.Context, quizID string) map[string]bool {
	out := map[string]bool{}
	round, err := s.ledger.Round(ctx, quizID)
	if err != nil {
		s.log.Warn().Err(err).Str("quiz_id", quizID).Msg("quiz round unavailable for snapshot")
		return out
	}
	if round.CurrentQuestion > round.TotalQuestions {
		return out
	}
	members, err := s.ledger.Submitted(ctx, quizID, round.CurrentQuestion)
	if err != nil {
		s.log.Warn().Err(err).Str("quiz_id", quizID).Msg("submitted set unavailable for snapshot")
		return out
	}
	for _, m := range members {
		out[m] = true
	}
	return out
}

// publish 廣播失敗只記錄，不影響已保存的變更
func (s *RoomService) publish(ctx context.Context, room *models.Room, typ models.MessageType, senderID, content string) {
	msg := models.RoomMessage{
		Type:     typ,
		Content:  content,
		SenderID: senderID,
		RoomID:   room.ID,
	}
	if typ != models.MessageRoomDeleted {
		msg.PlayersSnapshot = s.snapshot(ctx, room)
	}
	if senderID != "" {
		msg.SenderName = s.members.DisplayNames(ctx, []string{senderID})[senderID]
	}
	_ = s.broadcaster.Room(ctx, msg)
}

// dropParticipant 測驗進行中離開的玩家不再計入之後的題目
func (s *RoomService) dropParticipant(ctx context.Context, room *models.Room, memberID string) {
	if room.Status != models.RoomStatusInGame || room.QuizID == "" {
		return
	}
	if err := s.ledger.RemoveParticipant(ctx, room.QuizID, memberID); err != nil {
		s.log.Error().Err(err).Str("quiz_id", room.QuizID).Str("member_id", memberID).Msg("failed to drop quiz participant")
	}
}

func (s *RoomService) onSubmitted(ctx context.Context, roomID, memberID string) {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		s.log.Warn().Err(err).Str("room_id", roomID).Msg("room unavailable for submission broadcast")
		return
	}
	s.publish(ctx, room, models.MessageSubmitted, memberID, "")
}

func (s *RoomService) onQuizFinished(ctx context.Context, round models.QuizRound) {
	if err := s.endGame(ctx, round.RoomID, round.QuizID, ""); err != nil {
		s.log.Error().Err(err).Str("room_id", round.RoomID).Str("quiz_id", round.QuizID).Msg("failed to end finished game")
	}
}
