package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/models"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/storage"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/pkg/apperr"
)

type MemberRepository interface {
	FindByMemberID(ctx context.Context, memberID string) (*models.Member, error)
	FindByMemberIDs(ctx context.Context, memberIDs []string) ([]models.Member, error)
}

type memberRepository struct {
	db *storage.PostgresDB
}

func NewMemberRepository(db *storage.PostgresDB) MemberRepository {
	return &memberRepository{db: db}
}

func (r *memberRepository) FindByMemberID(ctx context.Context, memberID string) (*models.Member, error) {
	var member models.Member
	err := r.db.WithContext(ctx).Where("member_id = ?", memberID).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrMemberNotFound
	}
	if err != nil {
		return nil, apperr.Infra(err)
	}
	return &member, nil
}

func (r *memberRepository) FindByMemberIDs(ctx context.Context, memberIDs []string) ([]models.Member, error) {
	var members []models.Member
	if len(memberIDs) == 0 {
		return members, nil
	}
	err := r.db.WithContext(ctx).Where("member_id IN ?", memberIDs).Find(&members).Error
	if err != nil {
		return nil, apperr.Infra(err)
	}
	return members, nil
}
