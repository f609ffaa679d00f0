package controller

import (
	"errors"
	"net/http"
	"strconv"

	"exam_online_backend/internal/service"
	"exam_online_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type StudentExamController struct {
	ParticipantService *service.ParticipantService
	AnswerBuffer       *service.AnswerBufferService
	AnswerService      *service.AnswerService
}

func NewStudentExamController(
	participantService *service.ParticipantService,
	answerBuffer *service.AnswerBufferService,
	answerService *service.AnswerService,
) *StudentExamController {
	return &StudentExamController{
		ParticipantService: participantService,
		AnswerBuffer:       answerBuffer,
		AnswerService:      answerService,
	}
}

// ExamEnterResponse 进入考试响应
type ExamEnterResponse struct {
	Token         string `json:"token"`
	ParticipantID uint   `json:"participantId"`
}

// SaveAnswerRequest 保存答题请求
type SaveAnswerRequest struct {
	SortOrder int    `json:"sortOrder" binding:"required,min=1"`
	Answer    string `json:"answer" binding:"required"`
}

// Enter 进入考试
func (c *StudentExamController) Enter(ctx *gin.Context) {
	examID, ok := examIDParam(ctx)
	if !ok {
		return
	}
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	participant, err := c.ParticipantService.Enter(ctx.Request.Context(), examID, claims.UserID)
	if err != nil {
		c.rejectEnter(ctx, err)
		return
	}

	util.SuccessWithMessage(ctx, "进入考试成功", ExamEnterResponse{
		Token:         participant.AccessToken,
		ParticipantID: participant.ID,
	})
}

// SaveAnswer 保存答题记录（带合并窗口缓冲）
func (c *StudentExamController) SaveAnswer(ctx *gin.Context) {
	examID, ok := examIDParam(ctx)
	if !ok {
		return
	}
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req SaveAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	c.AnswerBuffer.Buffer(examID, claims.UserID, req.SortOrder, req.Answer)

	util.SuccessWithMessage(ctx, "答题记录已保存", nil)
}

// GetAnswers 查询当前已保存的答题快照
func (c *StudentExamController) GetAnswers(ctx *gin.Context) {
	examID, ok := examIDParam(ctx)
	if !ok {
		return
	}
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	answers, err := c.AnswerService.GetAllAnswers(ctx.Request.Context(), examID, claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, answers)
}

// Submit 提交考试
func (c *StudentExamController) Submit(ctx *gin.Context) {
	examID, ok := examIDParam(ctx)
	if !ok {
		return
	}
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	err := c.ParticipantService.Submit(ctx.Request.Context(), examID, claims.UserID)
	if err != nil {
		c.rejectSubmit(ctx, err)
		return
	}

	util.SuccessWithMessage(ctx, "考试提交成功", nil)
}

func (c *StudentExamController) rejectEnter(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrDuplicateEntry):
		util.Conflict(ctx, err.Error())
	case errors.Is(err, util.ErrEntryInFlight):
		util.Error(ctx, http.StatusConflict, err.Error())
	case errors.Is(err, util.ErrUserNotFound),
		errors.Is(err, util.ErrNotStudent),
		errors.Is(err, util.ErrExamNotFound),
		errors.Is(err, util.ErrExamNotStarted),
		errors.Is(err, util.ErrExamEnded):
		util.BadRequest(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

func (c *StudentExamController) rejectSubmit(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrSubmissionInFlight):
		util.Conflict(ctx, err.Error())
	case errors.Is(err, util.ErrParticipantNotFound):
		util.BadRequest(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

func examIDParam(ctx *gin.Context) (uint, bool) {
	raw := ctx.Param("examId")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		util.BadRequest(ctx, "invalid examId")
		return 0, false
	}
	return uint(id), true
}
