package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/service"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/pkg/apperr"
)

// QuizHandler 處理作答提交
type QuizHandler struct {
	ledger *service.SubmissionLedger
	log    zerolog.Logger
}

func NewQuizHandler(ledger *service.SubmissionLedger, log zerolog.Logger) *QuizHandler {
	return &QuizHandler{ledger: ledger, log: log}
}

type submitInput struct {
	Answer string `json:"answer" binding:"required"`
}

// Submit 提交一題的答案並立即回傳評分
func (h *QuizHandler) Submit(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil {
		respondError(c, h.log, apperr.ErrInvalidQuestionNumber.WithDetails("%q", c.Param("n")))
		return
	}

	var input submitInput
	if err := bindJSON(c, &input, false); err != nil {
		respondError(c, h.log, err)
		return
	}

	result, err := h.ledger.Submit(c.Request.Context(), c.Param("quizId"), memberID(c), n, input.Answer)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetRound 測驗目前進行到哪一題
func (h *QuizHandler) GetRound(c *gin.Context) {
	round, err := h.ledger.Round(c.Request.Context(), c.Param("quizId"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, round)
}
