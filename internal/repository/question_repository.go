package repository

import (
	"context"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/models"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/storage"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/pkg/apperr"
)

// QuestionRepository 讀取題庫內容
type QuestionRepository interface {
	FindByQuizSetID(ctx context.Context, quizSetID string) ([]models.QuizQuestion, error)
}

type questionRepository struct {
	db *storage.PostgresDB
}

func NewQuestionRepository(db *storage.PostgresDB) QuestionRepository {
	return &questionRepository{db: db}
}

// FindByQuizSetID 依題號排序回傳整組題目；沒有題目時回傳 ErrQuestionNotFound
func (r *questionRepository) FindByQuizSetID(ctx context.Context, quizSetID string) ([]models.QuizQuestion, error) {
	var questions []models.QuizQuestion
	err := r.db.WithContext(ctx).Where("quiz_set_id = ?", quizSetID).Order("number asc").Find(&questions).Error
	if err != nil {
		return nil, apperr.Infra(err)
	}
	if len(questions) == 0 {
		return nil, apperr.ErrQuestionNotFound.WithDetails("quiz set %s", quizSetID)
	}
	return questions, nil
}
