package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/models"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/storage"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/pkg/apperr"
)

// quizMeta 存在 quiz:{id}:meta
type quizMeta struct {
	QuizID         string   `json:"quizId"`
	RoomID         string   `json:"roomId"`
	TotalQuestions int      `json:"totalQuestions"`
	Participants   []string `json:"participants"`
}

func quizKey(quizID, suffix string) string { return "quiz:" + quizID + ":" + suffix }

func logKey(quizID, memberID string) string { return quizKey(quizID, "log:"+memberID) }

func questionKey(quizID string, q int, suffix string) string {
	return fmt.Sprintf("quiz:%s:q:%d:%s", quizID, q, suffix)
}

// SubmissionLedger 記錄並評分每題作答，去除重複提交，並保證每題只推進一次。
//
// 所有 quiz 相關的 key 都帶 TTL，被放棄的測驗會自行清除。
type SubmissionLedger struct {
	store       storage.SharedStore
	broadcaster *Broadcaster
	clock       clockwork.Clock
	ttl         time.Duration
	log         zerolog.Logger

	mu          sync.RWMutex
	onSubmitted func(ctx context.Context, roomID, memberID string)
	onFinished  func(ctx context.Context, round models.QuizRound)
}

func NewSubmissionLedger(store storage.SharedStore, broadcaster *Broadcaster, clock clockwork.Clock,
	ttl time.Duration, log zerolog.Logger) *SubmissionLedger {
	return &SubmissionLedger{
		store:       store,
		broadcaster: broadcaster,
		clock:       clock,
		ttl:         ttl,
		log:         log.With().Str("component", "ledger").Logger(),
	}
}

// OnSubmitted 每筆作答記錄成功後呼叫
func (l *SubmissionLedger) OnSubmitted(fn func(ctx context.Context, roomID, memberID string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onSubmitted = fn
}

// OnFinished 最後一題完成時呼叫一次
func (l *SubmissionLedger) OnFinished(fn func(ctx context.Context, round models.QuizRound)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onFinished = fn
}

// Open 建立一場測驗；answers[i] 是第 i+1 題的標準答案
func (l *SubmissionLedger) Open(ctx context.Context, quizID, roomID string, participants, answers []string) (*models.QuizRound, error) {
	if len(answers) == 0 {
		return nil, apperr.ErrQuestionNotFound
	}
	if len(participants) == 0 {
		return nil, apperr.ErrRoomEmpty
	}

	meta := quizMeta{QuizID: quizID, RoomID: roomID, TotalQuestions: len(answers), Participants: participants}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrInternal)
	}

	ok, err := l.store.SetNX(ctx, quizKey(quizID, "meta"), string(raw), l.ttl)
	if err != nil {
		return nil, apperr.Infra(err)
	}
	if !ok {
		return nil, apperr.ErrQuizAlreadyOpen
	}

	answersKey := quizKey(quizID, "answers")
	for i, answer := range answers {
		if err := l.store.HSet(ctx, answersKey, strconv.Itoa(i+1), answer); err != nil {
			return nil, apperr.Infra(err)
		}
	}
	if err := l.store.Expire(ctx, answersKey, l.ttl); err != nil {
		return nil, apperr.Infra(err)
	}

	for q := 1; q <= len(answers); q++ {
		key := questionKey(quizID, q, "participants")
		if _, err := l.store.SAdd(ctx, key, participants...); err != nil {
			return nil, apperr.Infra(err)
		}
		if err := l.store.Expire(ctx, key, l.ttl); err != nil {
			return nil, apperr.Infra(err)
		}
	}

	if err := l.store.Set(ctx, quizKey(quizID, "current"), "1", l.ttl); err != nil {
		return nil, apperr.Infra(err)
	}

	l.log.Info().Str("quiz_id", quizID).Str("room_id", roomID).
		Int("questions", len(answers)).Int("participants", len(participants)).Msg("quiz opened")

	_ = l.broadcaster.Quiz(ctx, models.QuizEvent{
		Type:           models.MessageQuestionOpened,
		QuizID:         quizID,
		RoomID:         roomID,
		QuestionNumber: 1,
		TotalQuestions: len(answers),
	})

	return &models.QuizRound{
		QuizID:          quizID,
		RoomID:          roomID,
		TotalQuestions:  len(answers),
		CurrentQuestion: 1,
		Participants:    participants,
	}, nil
}

func (l *SubmissionLedger) loadMeta(ctx context.Context, quizID string) (*quizMeta, error) {
	raw, err := l.store.Get(ctx, quizKey(quizID, "meta"))
	if errors.Is(err, storage.ErrNil) {
		return nil, apperr.ErrQuizNotFound
	}
	if err != nil {
		return nil, apperr.Infra(err)
	}
	var meta quizMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, apperr.Wrap(err, apperr.ErrInternal)
	}
	return &meta, nil
}

// currentQuestion 目前開放的題號；大於總題數代表測驗已結束
func (l *SubmissionLedger) currentQuestion(ctx context.Context, quizID string) (int, error) {
	raw, err := l.store.Get(ctx, quizKey(quizID, "current"))
	if errors.Is(err, storage.ErrNil) {
		return 0, apperr.ErrQuizNotFound
	}
	if err != nil {
		return 0, apperr.Infra(err)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Wrap(err, apperr.ErrInternal)
	}
	return n, nil
}

// Round 讀取測驗目前的狀態
func (l *SubmissionLedger) Round(ctx context.Context, quizID string) (*models.QuizRound, error) {
	meta, err := l.loadMeta(ctx, quizID)
	if err != nil {
		return nil, err
	}
	current, err := l.currentQuestion(ctx, quizID)
	if err != nil {
		return nil, err
	}

	q := current
	if q > meta.TotalQuestions {
		q = meta.TotalQuestions
	}
	participants, err := l.store.SMembers(ctx, questionKey(quizID, q, "participants"))
	if err != nil {
		return nil, apperr.Infra(err)
	}

	return &models.QuizRound{
		QuizID:          quizID,
		RoomID:          meta.RoomID,
		TotalQuestions:  meta.TotalQuestions,
		CurrentQuestion: current,
		Participants:    participants,
	}, nil
}

// Submit 記錄一筆作答並回傳評分結果。
// 讓已提交人數達到參與人數的那一次呼叫，會發布唯一一次推進（或結束）事件。
func (l *SubmissionLedger) Submit(ctx context.Context, quizID, memberID string, questionNumber int, answer string) (*models.SubmissionResult, error) {
	meta, err := l.loadMeta(ctx, quizID)
	if err != nil {
		return nil, err
	}

	if questionNumber < 1 || questionNumber > meta.TotalQuestions {
		return nil, apperr.ErrInvalidQuestionNumber.WithDetails("question %d of %d", questionNumber, meta.TotalQuestions)
	}

	canonical, err := l.store.HGet(ctx, quizKey(quizID, "answers"), strconv.Itoa(questionNumber))
	if errors.Is(err, storage.ErrNil) {
		l.log.Error().Str("quiz_id", quizID).Int("question", questionNumber).Msg("canonical answer missing")
		return nil, apperr.ErrInternal.WithDetails("no answer for question %d", questionNumber)
	}
	if err != nil {
		return nil, apperr.Infra(err)
	}

	current, err := l.currentQuestion(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if questionNumber != current {
		return nil, apperr.ErrQuestionNotOpen.WithDetails("open question is %d", current)
	}

	participantsKey := questionKey(quizID, questionNumber, "participants")
	isParticipant, err := l.store.SIsMember(ctx, participantsKey, memberID)
	if err != nil {
		return nil, apperr.Infra(err)
	}
	if !isParticipant {
		return nil, apperr.ErrNotParticipant
	}

	submittedKey := questionKey(quizID, questionNumber, "submitted")
	if err := l.checkDuplicate(ctx, quizID, memberID, questionNumber, submittedKey); err != nil {
		if errors.Is(err, apperr.ErrAlreadySubmitted) {
			l.settleQuietly(ctx, meta, questionNumber, memberID)
		}
		return nil, err
	}

	correct := gradeAnswer(answer, canonical)
	record := models.SubmissionRecord{
		QuizID:          quizID,
		MemberID:        memberID,
		QuestionNumber:  questionNumber,
		SubmittedAnswer: answer,
		Correct:         correct,
		Timestamp:       l.clock.Now(),
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrInternal)
	}

	// 加入已提交集合、寫入作答紀錄與讀取參與人數是同一個儲存操作
	written, err := l.store.SAddAppend(ctx, storage.SetAppend{
		SetKey:   submittedKey,
		Member:   memberID,
		ListKey:  logKey(quizID, memberID),
		Entry:    string(raw),
		CountKey: participantsKey,
		TTL:      l.ttl,
	})
	if err != nil {
		return nil, apperr.Infra(err)
	}
	if !written.Added {
		// 兩個幾乎同時的提交都通過了前面的檢查，較晚的一方在這裡被擋下
		l.settleQuietly(ctx, meta, questionNumber, memberID)
		return nil, apperr.ErrAlreadySubmitted
	}

	l.mu.RLock()
	onSubmitted := l.onSubmitted
	l.mu.RUnlock()
	if onSubmitted != nil {
		onSubmitted(ctx, meta.RoomID, memberID)
	}

	result := &models.SubmissionResult{
		QuestionNumber: questionNumber,
		Correct:        correct,
		CorrectAnswer:  canonical,
	}
	if written.SetSize >= written.CountSize {
		done, err := l.complete(ctx, meta, questionNumber, memberID)
		if err != nil {
			// 作答已保存；重試會得到 ALREADY_SUBMITTED 並再次嘗試推進
			return nil, err
		}
		result.RoundComplete = done
	}

	return result, nil
}

// checkDuplicate 同時檢查作答紀錄與已提交集合
func (l *SubmissionLedger) checkDuplicate(ctx context.Context, quizID, memberID string, questionNumber int, submittedKey string) error {
	records, err := l.Records(ctx, quizID, memberID)
	if err != nil {
		return err
	}
	for _, r := range records {
		if r.QuestionNumber == questionNumber {
			return apperr.ErrAlreadySubmitted
		}
	}

	submitted, err := l.store.SIsMember(ctx, submittedKey, memberID)
	if err != nil {
		return apperr.Infra(err)
	}
	if submitted {
		return apperr.ErrAlreadySubmitted
	}
	return nil
}

// settle 重新比較已提交與參與人數，人數到齊時嘗試完成這一題
func (l *SubmissionLedger) settle(ctx context.Context, meta *quizMeta, questionNumber int, completedBy string) (bool, error) {
	participants, err := l.store.SCard(ctx, questionKey(meta.QuizID, questionNumber, "participants"))
	if err != nil {
		return false, apperr.Infra(err)
	}
	if participants == 0 {
		return false, nil
	}
	submitted, err := l.store.SCard(ctx, questionKey(meta.QuizID, questionNumber, "submitted"))
	if err != nil {
		return false, apperr.Infra(err)
	}
	if submitted < participants {
		return false, nil
	}
	return l.complete(ctx, meta, questionNumber, completedBy)
}

func (l *SubmissionLedger) settleQuietly(ctx context.Context, meta *quizMeta, questionNumber int, completedBy string) {
	if _, err := l.settle(ctx, meta, questionNumber, completedBy); err != nil {
		l.log.Error().Err(err).Str("quiz_id", meta.QuizID).Int("question", questionNumber).Msg("failed to settle round")
	}
}

// complete 以 SETNX 取得這一題的完成權，推進題號成功後才發布事件。
// 推進失敗時釋放完成權，之後的提交、重試或離開可以再次完成這一題。
func (l *SubmissionLedger) complete(ctx context.Context, meta *quizMeta, questionNumber int, completedBy string) (bool, error) {
	closedKey := questionKey(meta.QuizID, questionNumber, "closed")
	won, err := l.store.SetNX(ctx, closedKey, completedBy, l.ttl)
	if err != nil {
		return false, apperr.Infra(err)
	}
	if !won {
		return false, nil
	}

	currentKey := quizKey(meta.QuizID, "current")
	next := questionNumber + 1
	swapped, err := l.store.CompareAndSwap(ctx, currentKey, strconv.Itoa(questionNumber), strconv.Itoa(next), l.ttl)
	if err != nil {
		if delErr := l.store.Del(ctx, closedKey); delErr != nil {
			l.log.Error().Err(delErr).Str("quiz_id", meta.QuizID).Int("question", questionNumber).Msg("failed to release completion claim")
		}
		return false, apperr.Infra(err)
	}
	if !swapped {
		l.log.Warn().Str("quiz_id", meta.QuizID).Int("question", questionNumber).Msg("question already advanced")
		return false, nil
	}

	ev := models.QuizEvent{
		QuizID:         meta.QuizID,
		RoomID:         meta.RoomID,
		TotalQuestions: meta.TotalQuestions,
		CompletedBy:    completedBy,
	}
	finished := questionNumber == meta.TotalQuestions
	if finished {
		ev.Type = models.MessageQuizFinished
		ev.QuestionNumber = questionNumber
	} else {
		ev.Type = models.MessageAdvance
		ev.QuestionNumber = next
	}
	_ = l.broadcaster.Quiz(ctx, ev)

	l.log.Info().Str("quiz_id", meta.QuizID).Int("question", questionNumber).
		Str("completed_by", completedBy).Bool("finished", finished).Msg("round completed")

	if finished {
		l.mu.RLock()
		onFinished := l.onFinished
		l.mu.RUnlock()
		if onFinished != nil {
			onFinished(ctx, models.QuizRound{
				QuizID:          meta.QuizID,
				RoomID:          meta.RoomID,
				TotalQuestions:  meta.TotalQuestions,
				CurrentQuestion: next,
				Participants:    meta.Participants,
			})
		}
	}
	return true, nil
}

// Submitted 回傳某題已提交的成員
func (l *SubmissionLedger) Submitted(ctx context.Context, quizID string, questionNumber int) ([]string, error) {
	members, err := l.store.SMembers(ctx, questionKey(quizID, questionNumber, "submitted"))
	if err != nil {
		return nil, apperr.Infra(err)
	}
	return members, nil
}

// Records 回傳成員在這場測驗的作答紀錄，依提交順序
func (l *SubmissionLedger) Records(ctx context.Context, quizID, memberID string) ([]models.SubmissionRecord, error) {
	raws, err := l.store.LRange(ctx, logKey(quizID, memberID), 0, -1)
	if err != nil {
		return nil, apperr.Infra(err)
	}
	records := make([]models.SubmissionRecord, 0, len(raws))
	for _, raw := range raws {
		var r models.SubmissionRecord
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, apperr.Wrap(err, apperr.ErrInternal)
		}
		records = append(records, r)
	}
	return records, nil
}

// RemoveParticipant 將中途離開的成員從目前及之後的題目移除；
// 剩下的人若都已提交，目前這題會立即完成。
func (l *SubmissionLedger) RemoveParticipant(ctx context.Context, quizID, memberID string) error {
	meta, err := l.loadMeta(ctx, quizID)
	if err != nil {
		return err
	}
	current, err := l.currentQuestion(ctx, quizID)
	if err != nil {
		return err
	}
	if current > meta.TotalQuestions {
		return nil
	}

	for q := current; q <= meta.TotalQuestions; q++ {
		if _, err := l.store.SRem(ctx, questionKey(quizID, q, "participants"), memberID); err != nil {
			return apperr.Infra(err)
		}
		if _, err := l.store.SRem(ctx, questionKey(quizID, q, "submitted"), memberID); err != nil {
			return apperr.Infra(err)
		}
	}

	_, err = l.settle(ctx, meta, current, "")
	return err
}

// Close 刪除測驗的所有 key
func (l *SubmissionLedger) Close(ctx context.Context, quizID string) error {
	meta, err := l.loadMeta(ctx, quizID)
	if errors.Is(err, apperr.ErrQuizNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	keys := []string{quizKey(quizID, "meta"), quizKey(quizID, "answers"), quizKey(quizID, "current")}
	for q := 1; q <= meta.TotalQuestions; q++ {
		keys = append(keys,
			questionKey(quizID, q, "participants"),
			questionKey(quizID, q, "submitted"),
			questionKey(quizID, q, "closed"))
	}
	for _, m := range meta.Participants {
		keys = append(keys, logKey(quizID, m))
	}
	return apperr.Infra(l.store.Del(ctx, keys...))
}

// gradeAnswer 去除前後空白、合併連續空白並忽略大小寫後比較
func gradeAnswer(submitted, canonical string) bool {
	return strings.EqualFold(normalizeAnswer(submitted), normalizeAnswer(canonical))
}

func normalizeAnswer(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
