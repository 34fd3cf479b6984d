package models

import (
	"gorm.io/gorm"
)

// Member 表示系統中的會員資料，僅用於查詢顯示名稱
type Member struct {
	gorm.Model        // 內嵌 gorm.Model，提供 ID、CreatedAt、UpdatedAt 和 DeletedAt 字段
	MemberID   string `gorm:"uniqueIndex;not null" json:"memberId"` // 與 JWT 中的 user_id 對應
	Nickname   string `gorm:"not null" json:"nickname"`
}
