package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/service"
)

// RoomHandler 處理與房間相關的請求
type RoomHandler struct {
	roomService *service.RoomService
	log         zerolog.Logger
}

func NewRoomHandler(roomService *service.RoomService, log zerolog.Logger) *RoomHandler {
	return &RoomHandler{roomService: roomService, log: log}
}

type createRoomInput struct {
	Title     string `json:"title" binding:"required"`
	Capacity  int    `json:"capacity" binding:"required"`
	Password  string `json:"password"`
	QuizSetID string `json:"quizSetId"`
}

type joinRoomInput struct {
	Password string `json:"password"`
}

// CreateRoom 建立房間，建立者成為房主
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var input createRoomInput
	if err := bindJSON(c, &input, false); err != nil {
		respondError(c, h.log, err)
		return
	}

	room, err := h.roomService.CreateRoom(c.Request.Context(), memberID(c), service.CreateRoomInput{
		Title:     input.Title,
		Capacity:  input.Capacity,
		Password:  input.Password,
		QuizSetID: input.QuizSetID,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": room.ID})
}

func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := h.roomService.ListRooms(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, err := h.roomService.GetRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// GetPlayers 回傳目前的名單快照
func (h *RoomHandler) GetPlayers(c *gin.Context) {
	players, err := h.roomService.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, players)
}

func (h *RoomHandler) JoinRoom(c *gin.Context) {
	var input joinRoomInput
	if err := bindJSON(c, &input, true); err != nil {
		respondError(c, h.log, err)
		return
	}

	if err := h.roomService.JoinRoom(c.Request.Context(), c.Param("id"), memberID(c), input.Password); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	if err := h.roomService.LeaveRoom(c.Request.Context(), c.Param("id"), memberID(c)); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RoomHandler) ToggleReady(c *gin.Context) {
	ready, err := h.roomService.ToggleReady(c.Request.Context(), c.Param("id"), memberID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": ready})
}

func (h *RoomHandler) StartGame(c *gin.Context) {
	room, err := h.roomService.StartGame(c.Request.Context(), c.Param("id"), memberID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": room.Status, "quizId": room.QuizID})
}

func (h *RoomHandler) EndGame(c *gin.Context) {
	if err := h.roomService.EndGame(c.Request.Context(), c.Param("id"), memberID(c)); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RoomHandler) AddToBlacklist(c *gin.Context) {
	err := h.roomService.AddToBlacklist(c.Request.Context(), c.Param("id"), memberID(c), c.Param("memberId"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RoomHandler) RemoveFromBlacklist(c *gin.Context) {
	err := h.roomService.RemoveFromBlacklist(c.Request.Context(), c.Param("id"), memberID(c), c.Param("memberId"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
