package models

import (
	"time"

	"gorm.io/gorm"
)

// QuizQuestion 題庫中的一題
type QuizQuestion struct {
	gorm.Model
	QuizSetID string `gorm:"index:idx_quiz_set_number,unique;not null" json:"quizSetId"`
	Number    int    `gorm:"index:idx_quiz_set_number,unique;not null" json:"number"`
	Prompt    string `gorm:"type:text" json:"prompt"`
	Answer    string `gorm:"not null" json:"-"`
}

// QuizRound 一場進行中的測驗
type QuizRound struct {
	QuizID          string   `json:"quizId"`
	RoomID          string   `json:"roomId"`
	TotalQuestions  int      `json:"totalQuestions"`
	CurrentQuestion int      `json:"currentQuestion"`
	Participants    []string `json:"participants"`
}

// SubmissionRecord 一筆作答紀錄；每個 (quizId, memberId, questionNumber) 至多一筆
type SubmissionRecord struct {
	QuizID          string    `json:"quizId"`
	MemberID        string    `json:"memberId"`
	QuestionNumber  int       `json:"questionNumber"`
	SubmittedAnswer string    `json:"submittedAnswer"`
	Correct         bool      `json:"correct"`
	Timestamp       time.Time `json:"timestamp"`
}

// SubmissionResult 回給作答者的評分結果
type SubmissionResult struct {
	QuestionNumber int    `json:"questionNumber"`
	Correct        bool   `json:"correct"`
	CorrectAnswer  string `json:"correctAnswer"`
	RoundComplete  bool   `json:"roundComplete"`
}
