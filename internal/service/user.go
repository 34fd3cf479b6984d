package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/repository"
)

// MemberLookup 查詢顯示名稱；找不到的成員以 id 代替
type MemberLookup interface {
	DisplayNames(ctx context.Context, memberIDs []string) map[string]string
}

type UserService struct {
	memberRepo repository.MemberRepository
	log        zerolog.Logger
}

func NewUserService(memberRepo repository.MemberRepository, log zerolog.Logger) *UserService {
	return &UserService{memberRepo: memberRepo, log: log}
}

// DisplayNames 查詢失敗時不影響廣播，只記錄後以 id 作為名稱
func (s *UserService) DisplayNames(ctx context.Context, memberIDs []string) map[string]string {
	names := make(map[string]string, len(memberIDs))
	for _, id := range memberIDs {
		names[id] = id
	}
	if s.memberRepo == nil || len(memberIDs) == 0 {
		return names
	}

	members, err := s.memberRepo.FindByMemberIDs(ctx, memberIDs)
	if err != nil {
		s.log.Warn().Err(err).Int("count", len(memberIDs)).Msg("member lookup failed, falling back to ids")
		return names
	}
	for _, m := range members {
		if m.Nickname != "" {
			names[m.MemberID] = m.Nickname
		}
	}
	return names
}

// EnsureMember 確認成員存在；未設定資料庫時一律通過
func (s *UserService) EnsureMember(ctx context.Context, memberID string) error {
	if s.memberRepo == nil {
		return nil
	}
	_, err := s.memberRepo.FindByMemberID(ctx, memberID)
	return err
}
