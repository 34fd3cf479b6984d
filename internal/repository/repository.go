package repository

import "github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/storage"

type Repositories struct {
	Member   MemberRepository
	Question QuestionRepository
	Room     RoomRepository
}

// NewRepositories db 為 nil 時只提供房間儲存，成員與題庫查詢停用
func NewRepositories(db *storage.PostgresDB, store storage.SharedStore) *Repositories {
	repos := &Repositories{Room: NewRoomRepository(store)}
	if db != nil {
		repos.Member = NewMemberRepository(db)
		repos.Question = NewQuestionRepository(db)
	}
	return repos
}
