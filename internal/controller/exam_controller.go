package controller

import (
	"encoding/json"
	"errors"
	"strconv"

	"exam_platform_backend/internal/service"
	"exam_platform_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// ExamController 学生侧的试卷浏览与作答生命周期接口
type ExamController struct {
	ExamService    *service.ExamService
	AttemptService *service.AttemptService
	RegradeService *service.RegradeService
}

func NewExamController(
	examService *service.ExamService,
	attemptService *service.AttemptService,
	regradeService *service.RegradeService,
) *ExamController {
	return &ExamController{
		ExamService:    examService,
		AttemptService: attemptService,
		RegradeService: regradeService,
	}
}

func parsePagination(ctx *gin.Context) (int, int) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "10"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	return page, limit
}

// ListExams godoc
// @Summary 获取可作答试卷列表
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/exams [get]
func (c *ExamController) ListExams(ctx *gin.Context) {
	page, limit := parsePagination(ctx)

	exams, total, err := c.ExamService.ListExams(page, limit, false)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{List: exams, Total: total, Page: page, Limit: limit})
}

// GetExam godoc
// @Summary 获取试卷详情（学生视角，不含答案）
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Param examId path int true "试卷ID"
// @Success 200 {object} util.Response{data=model.Exam} "成功"
// @Failure 404 {object} util.Response "试卷不存在"
// @Router /api/exams/{examId} [get]
func (c *ExamController) GetExam(ctx *gin.Context) {
	examID, err := util.ParseUintParam(ctx.Param("examId"))
	if err != nil {
		util.BadRequest(ctx, "invalid exam id")
		return
	}

	exam, err := c.ExamService.GetExamForStudent(ctx.Request.Context(), examID)
	if err != nil {
		if errors.Is(err, util.ErrExamNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, exam)
}

// StartAttempt godoc
// @Summary 开始作答
// @Description 已有未完成作答时原样返回（幂等续答）
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Param examId path int true "试卷ID"
// @Success 200 {object} util.Response{data=model.ExamResult} "成功"
// @Failure 400 {object} util.Response "试卷没有题目"
// @Failure 403 {object} util.Response "试卷已锁定"
// @Failure 404 {object} util.Response "试卷不存在"
// @Router /api/exams/{examId}/start [post]
func (c *ExamController) StartAttempt(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	examID, err := util.ParseUintParam(ctx.Param("examId"))
	if err != nil {
		util.BadRequest(ctx, "invalid exam id")
		return
	}

	result, err := c.AttemptService.Start(claims.UserID, examID)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrExamNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrExamLocked):
			util.Error(ctx, 403, "试卷已锁定，无法开始作答")
		case errors.Is(err, util.ErrNoQuestions):
			util.BadRequest(ctx, "试卷没有题目")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, result)
}

// swagger:model SubmitAnswerRequest
type SubmitAnswerRequest struct {
	Response json.RawMessage `json:"response" binding:"required"`
}

// SubmitAnswer godoc
// @Summary 提交单题作答
// @Description 落库即生效；有标记答案的选择/判断题同步返回对错
// @Tags 考试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param examId path int true "试卷ID"
// @Param questionId path int true "题目ID"
// @Param body body SubmitAnswerRequest true "作答内容"
// @Success 200 {object} util.Response{data=service.AnswerAck} "成功"
// @Failure 400 {object} util.Response "作答内容非法"
// @Failure 404 {object} util.Response "作答记录或题目不存在"
// @Router /api/exams/{examId}/questions/{questionId}/answer [post]
func (c *ExamController) SubmitAnswer(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	examID, err := util.ParseUintParam(ctx.Param("examId"))
	if err != nil {
		util.BadRequest(ctx, "invalid exam id")
		return
	}
	questionID, err := util.ParseUintParam(ctx.Param("questionId"))
	if err != nil {
		util.BadRequest(ctx, "invalid question id")
		return
	}

	var req SubmitAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	ack, err := c.AttemptService.SubmitAnswer(ctx.Request.Context(), claims.UserID, examID, questionID, req.Response)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrAttemptNotFound), errors.Is(err, util.ErrQuestionNotFound):
			util.NotFound(ctx)
		default:
			util.BadRequest(ctx, err.Error())
		}
		return
	}

	util.Success(ctx, ack)
}

// swagger:model ToggleSelectionRequest
type ToggleSelectionRequest struct {
	Selected *bool `json:"selected" binding:"required"`
}

// ToggleSelection godoc
// @Summary 切换选答题目的选中状态
// @Description 取消选择导致该大题低于最低选答数时拒绝
// @Tags 考试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param examId path int true "试卷ID"
// @Param questionId path int true "题目ID"
// @Param body body ToggleSelectionRequest true "选中状态"
// @Success 200 {object} util.Response "成功"
// @Failure 400 {object} util.Response "低于最低选答数或试卷不支持选答"
// @Failure 404 {object} util.Response "作答记录或题目不存在"
// @Router /api/exams/{examId}/questions/{questionId}/select [post]
func (c *ExamController) ToggleSelection(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	examID, err := util.ParseUintParam(ctx.Param("examId"))
	if err != nil {
		util.BadRequest(ctx, "invalid exam id")
		return
	}
	questionID, err := util.ParseUintParam(ctx.Param("questionId"))
	if err != nil {
		util.BadRequest(ctx, "invalid question id")
		return
	}

	var req ToggleSelectionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.AttemptService.ToggleSelection(claims.UserID, examID, questionID, *req.Selected); err != nil {
		switch {
		case errors.Is(err, util.ErrAttemptNotFound), errors.Is(err, util.ErrQuestionNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrSelectionNotAllowed):
			util.BadRequest(ctx, "该试卷或大题不支持选答")
		case errors.Is(err, util.ErrBelowMinimumSelected):
			util.BadRequest(ctx, "取消后将低于该大题最低选答数")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, nil)
}

// CompleteAttempt godoc
// @Summary 提交整卷
// @Description 触发整卷评分并返回成绩摘要；重复提交返回 409 与既有成绩
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Param examId path int true "试卷ID"
// @Success 200 {object} util.Response{data=service.CompletionSummary} "成功"
// @Failure 404 {object} util.Response "没有可提交的作答"
// @Failure 409 {object} util.Response{data=service.CompletionSummary} "已提交过，返回既有成绩"
// @Failure 429 {object} util.Response "提交正在处理中"
// @Router /api/exams/{examId}/complete [post]
func (c *ExamController) CompleteAttempt(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	examID, err := util.ParseUintParam(ctx.Param("examId"))
	if err != nil {
		util.BadRequest(ctx, "invalid exam id")
		return
	}

	summary, err := c.AttemptService.Complete(ctx.Request.Context(), claims.UserID, examID)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrAttemptNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrSubmissionInProgress):
			util.TooManyRequests(ctx, "提交正在处理中，请稍后重试")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	if summary.AlreadyCompleted {
		util.Conflict(ctx, "该作答已提交", summary)
		return
	}

	util.Success(ctx, summary)
}

// GetResult godoc
// @Summary 获取作答详情
// @Description 学生只能查看自己的记录；进行中的作答不展示答案与评分
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Param resultId path int true "作答记录ID"
// @Success 200 {object} util.Response{data=service.ResultView} "成功"
// @Failure 403 {object} util.Response "无权查看"
// @Failure 404 {object} util.Response "记录不存在"
// @Router /api/results/{resultId} [get]
func (c *ExamController) GetResult(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	resultID, err := util.ParseUintParam(ctx.Param("resultId"))
	if err != nil {
		util.BadRequest(ctx, "invalid result id")
		return
	}

	view, err := c.AttemptService.GetResult(resultID, claims)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrAttemptNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrPermissionDenied):
			util.Forbidden(ctx)
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, view)
}

// ListMyResults godoc
// @Summary 获取本人历史成绩列表
// @Tags 考试
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/results [get]
func (c *ExamController) ListMyResults(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	page, limit := parsePagination(ctx)

	results, total, err := c.ExamService.ListUserResults(claims.UserID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{List: results, Total: total, Page: page, Limit: limit})
}

// swagger:model RegradeRequest
type RegradeRequest struct {
	ForceRegrade bool `json:"forceRegrade"`
}

// RequestRegrade godoc
// @Summary 申请重新评分
// @Description 学生可对自己已完成的作答申请后台重评（仅重评兜底评分的题目）
// @Tags 考试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param resultId path int true "作答记录ID"
// @Param body body RegradeRequest false "重评选项"
// @Success 200 {object} util.Response "已加入重评队列"
// @Failure 403 {object} util.Response "无权操作"
// @Failure 404 {object} util.Response "记录不存在或未完成"
// @Router /api/results/{resultId}/regrade [post]
func (c *ExamController) RequestRegrade(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	resultID, err := util.ParseUintParam(ctx.Param("resultId"))
	if err != nil {
		util.BadRequest(ctx, "invalid result id")
		return
	}

	view, err := c.AttemptService.GetResult(resultID, claims)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrAttemptNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrPermissionDenied):
			util.Forbidden(ctx)
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	if !view.Result.IsCompleted {
		util.NotFound(ctx)
		return
	}

	c.RegradeService.Enqueue(resultID)
	util.Success(ctx, gin.H{"queued": true})
}
