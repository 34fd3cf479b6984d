package models

// MessageType 廣播訊息類型
type MessageType string

const (
	// 房間
	MessageJoin         MessageType = "JOIN"
	MessageLeave        MessageType = "LEAVE"
	MessageReady        MessageType = "READY"
	MessageUnready      MessageType = "UNREADY"
	MessageOwnerChanged MessageType = "OWNER_CHANGED"
	MessageRoomDeleted  MessageType = "ROOM_DELETED"
	MessageGameStart    MessageType = "GAME_START"
	MessageGameEnd      MessageType = "GAME_END"
	MessageBlacklisted  MessageType = "BLACKLISTED"
	MessageSubmitted    MessageType = "SUBMITTED"

	// 測驗
	MessageQuestionOpened MessageType = "QUESTION_OPENED"
	MessageAdvance        MessageType = "ADVANCE"
	MessageQuizFinished   MessageType = "QUIZ_FINISHED"

	// 大廳
	MessageUserOnline  MessageType = "USER_ONLINE"
	MessageUserOffline MessageType = "USER_OFFLINE"

	// 連線閘道
	MessageSessionTerminated MessageType = "SESSION_TERMINATED"
	MessageSessionExpired    MessageType = "SESSION_EXPIRED"
	MessageError             MessageType = "ERROR"
	MessagePong              MessageType = "PONG"
)

// PlayerSnapshot 名單快照中的一位玩家；IsSubmitted 只在測驗進行中出現
type PlayerSnapshot struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsReady     bool   `json:"isReady"`
	IsOwner     bool   `json:"isOwner"`
	IsSubmitted *bool  `json:"isSubmitted,omitempty"`
}

// RoomMessage 發送到 room.{roomId} 的訊息
type RoomMessage struct {
	Type            MessageType      `json:"type"`
	Content         string           `json:"content"`
	PlayersSnapshot []PlayerSnapshot `json:"playersSnapshot,omitempty"`
	SenderID        string           `json:"senderId"`
	SenderName      string           `json:"senderName"`
	TimestampMillis int64            `json:"timestampMillis"`
	RoomID          string           `json:"roomId"`
}

// QuizEvent 發送到 quiz.{quizId}.updates 的訊息
type QuizEvent struct {
	Type            MessageType `json:"type"`
	QuizID          string      `json:"quizId"`
	RoomID          string      `json:"roomId"`
	QuestionNumber  int         `json:"questionNumber,omitempty"`
	TotalQuestions  int         `json:"totalQuestions"`
	CompletedBy     string      `json:"completedBy,omitempty"`
	TimestampMillis int64       `json:"timestampMillis"`
}

// LobbyMessage 發送到 lobby.users 的在線名單
type LobbyMessage struct {
	Type            MessageType `json:"type"`
	MemberID        string      `json:"memberId"`
	Users           []string    `json:"users"`
	TimestampMillis int64       `json:"timestampMillis"`
}

// Notice 閘道直接送給單一連線的通知
type Notice struct {
	Type            MessageType `json:"type"`
	Content         string      `json:"content,omitempty"`
	Topic           string      `json:"topic,omitempty"`
	TimestampMillis int64       `json:"timestampMillis"`
}

// 客戶端可送出的動作
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"
)

// ClientFrame 客戶端送往閘道的訊框
type ClientFrame struct {
	Action string `json:"action"`
	Topic  string `json:"topic,omitempty"`
}
