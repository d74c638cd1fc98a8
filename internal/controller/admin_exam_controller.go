package controller

import (
	"errors"

	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/service"
	"exam_platform_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// AdminExamController 教师/管理员侧的试卷管理接口
type AdminExamController struct {
	ExamService    *service.ExamService
	RegradeService *service.RegradeService
}

func NewAdminExamController(examService *service.ExamService, regradeService *service.RegradeService) *AdminExamController {
	return &AdminExamController{
		ExamService:    examService,
		RegradeService: regradeService,
	}
}

// CreateExam godoc
// @Summary 创建试卷
// @Tags 试卷管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body service.CreateExamInput true "试卷信息"
// @Success 201 {object} util.Response{data=model.Exam} "创建成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Router /api/admin/exams [post]
func (c *AdminExamController) CreateExam(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	var input service.CreateExamInput
	if err := ctx.ShouldBindJSON(&input); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	exam, err := c.ExamService.CreateExam(claims.UserID, input)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Created(ctx, exam)
}

// UpdateExam godoc
// @Summary 更新试卷基础信息与选答配置
// @Tags 试卷管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param examId path int true "试卷ID"
// @Param body body service.CreateExamInput true "试卷信息"
// @Success 200 {object} util.Response{data=model.Exam} "成功"
// @Failure 404 {object} util.Response "试卷不存在"
// @Router /api/admin/exams/{examId} [put]
func (c *AdminExamController) UpdateExam(ctx *gin.Context) {
	examID, err := util.ParseUintParam(ctx.Param("examId"))
	if err != nil {
		util.BadRequest(ctx, "invalid exam id")
		return
	}

	var input service.CreateExamInput
	if err := ctx.ShouldBindJSON(&input); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	exam, err := c.ExamService.UpdateExam(examID, input)
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

// DeleteExam godoc
// @Summary 删除试卷
// @Tags 试卷管理
// @Produce json
// @Security ApiKeyAuth
// @Param examId path int true "试卷ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/admin/exams/{examId} [delete]
func (c *AdminExamController) DeleteExam(ctx *gin.Context) {
	examID, err := util.ParseUintParam(ctx.Param("examId"))
	if err != nil {
		util.BadRequest(ctx, "invalid exam id")
		return
	}

	if err := c.ExamService.DeleteExam(examID); err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, nil)
}

// swagger:model SetLockRequest
type SetLockRequest struct {
	Locked *bool `json:"locked" binding:"required"`
}

// SetLock godoc
// @Summary 锁定或解锁试卷
// @Description 锁定后学生无法开始新作答
// @Tags 试卷管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param examId path int true "试卷ID"
// @Param body body SetLockRequest true "锁定状态"
// @Success 200 {object} util.Response{data=model.Exam} "成功"
// @Failure 404 {object} util.Response "试卷不存在"
// @Router /api/admin/exams/{examId}/lock [put]
func (c *AdminExamController) SetLock(ctx *gin.Context) {
	examID, err := util.ParseUintParam(ctx.Param("examId"))
	if err != nil {
		util.BadRequest(ctx, "invalid exam id")
		return
	}

	var req SetLockRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	exam, err := c.ExamService.SetLocked(examID, *req.Locked)
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

// GetExamFull godoc
// @Summary 获取试卷完整详情（含标准答案）
// @Tags 试卷管理
// @Produce json
// @Security ApiKeyAuth
// @Param examId path int true "试卷ID"
// @Success 200 {object} util.Response{data=model.Exam} "成功"
// @Failure 404 {object} util.Response "试卷不存在"
// @Router /api/admin/exams/{examId} [get]
func (c *AdminExamController) GetExamFull(ctx *gin.Context) {
	examID, err := util.ParseUintParam(ctx.Param("examId"))
	if err != nil {
		util.BadRequest(ctx, "invalid exam id")
		return
	}

	exam, err := c.ExamService.GetExamDetail(ctx.Request.Context(), examID)
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

// ListAllExams godoc
// @Summary 获取全部试卷（含已锁定）
// @Tags 试卷管理
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/admin/exams [get]
func (c *AdminExamController) ListAllExams(ctx *gin.Context) {
	page, limit := parsePagination(ctx)

	exams, total, err := c.ExamService.ListExams(page, limit, true)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{List: exams, Total: total, Page: page, Limit: limit})
}

// swagger:model AddSectionRequest
type AddSectionRequest struct {
	Name        model.SectionName `json:"name" binding:"required,oneof=A B C"`
	Description string            `json:"description"`
	Order       int               `json:"order"`
}

// AddSection godoc
// @Summary 添加大题
// @Tags 试卷管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param examId path int true "试卷ID"
// @Param body body AddSectionRequest true "大题信息"
// @Success 201 {object} util.Response{data=model.ExamSection} "创建成功"
// @Failure 404 {object} util.Response "试卷不存在"
// @Router /api/admin/exams/{examId}/sections [post]
func (c *AdminExamController) AddSection(ctx *gin.Context) {
	examID, err := util.ParseUintParam(ctx.Param("examId"))
	if err != nil {
		util.BadRequest(ctx, "invalid exam id")
		return
	}

	var req AddSectionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	section, err := c.ExamService.AddSection(examID, req.Name, req.Description, req.Order)
	if err != nil {
		if errors.Is(err, util.ErrExamNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Created(ctx, section)
}

// AddQuestion godoc
// @Summary 添加题目
// @Tags 试卷管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param examId path int true "试卷ID"
// @Param body body service.QuestionInput true "题目信息"
// @Success 201 {object} util.Response{data=model.Question} "创建成功"
// @Failure 404 {object} util.Response "试卷或大题不存在"
// @Router /api/admin/exams/{examId}/questions [post]
func (c *AdminExamController) AddQuestion(ctx *gin.Context) {
	examID, err := util.ParseUintParam(ctx.Param("examId"))
	if err != nil {
		util.BadRequest(ctx, "invalid exam id")
		return
	}

	var input service.QuestionInput
	if err := ctx.ShouldBindJSON(&input); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	q, err := c.ExamService.AddQuestion(examID, input)
	if err != nil {
		if errors.Is(err, util.ErrQuestionNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Created(ctx, q)
}

// UpdateQuestion godoc
// @Summary 更新题目
// @Tags 试卷管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param questionId path int true "题目ID"
// @Param body body service.QuestionInput true "题目信息"
// @Success 200 {object} util.Response{data=model.Question} "成功"
// @Failure 404 {object} util.Response "题目不存在"
// @Router /api/admin/questions/{questionId} [put]
func (c *AdminExamController) UpdateQuestion(ctx *gin.Context) {
	questionID, err := util.ParseUintParam(ctx.Param("questionId"))
	if err != nil {
		util.BadRequest(ctx, "invalid question id")
		return
	}

	var input service.QuestionInput
	if err := ctx.ShouldBindJSON(&input); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	q, err := c.ExamService.UpdateQuestion(questionID, input)
	if err != nil {
		if errors.Is(err, util.ErrQuestionNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, q)
}

// DeleteQuestion godoc
// @Summary 删除题目
// @Tags 试卷管理
// @Produce json
// @Security ApiKeyAuth
// @Param questionId path int true "题目ID"
// @Success 200 {object} util.Response "成功"
// @Failure 404 {object} util.Response "题目不存在"
// @Router /api/admin/questions/{questionId} [delete]
func (c *AdminExamController) DeleteQuestion(ctx *gin.Context) {
	questionID, err := util.ParseUintParam(ctx.Param("questionId"))
	if err != nil {
		util.BadRequest(ctx, "invalid question id")
		return
	}

	if err := c.ExamService.DeleteQuestion(questionID); err != nil {
		if errors.Is(err, util.ErrQuestionNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, nil)
}

// ImportExam godoc
// @Summary 上传试卷文档并解析建卷
// @Description 支持 pdf/doc/docx/txt，解析由 AI 完成
// @Tags 试卷管理
// @Accept multipart/form-data
// @Produce json
// @Security ApiKeyAuth
// @Param file formData file true "试卷文档"
// @Success 201 {object} util.Response{data=model.Exam} "创建成功"
// @Failure 400 {object} util.Response "文件类型不支持或解析失败"
// @Router /api/admin/exams/import [post]
func (c *AdminExamController) ImportExam(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "缺少上传文件")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = util.MimeOctetStream
	}

	exam, err := c.ExamService.ImportExam(ctx.Request.Context(), claims.UserID,
		fileHeader.Filename, file, fileHeader.Size, contentType)
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	util.Created(ctx, exam)
}

// ListExamResults godoc
// @Summary 获取某试卷的全部作答记录
// @Tags 试卷管理
// @Produce json
// @Security ApiKeyAuth
// @Param examId path int true "试卷ID"
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/admin/exams/{examId}/results [get]
func (c *AdminExamController) ListExamResults(ctx *gin.Context) {
	examID, err := util.ParseUintParam(ctx.Param("examId"))
	if err != nil {
		util.BadRequest(ctx, "invalid exam id")
		return
	}
	page, limit := parsePagination(ctx)

	results, total, err := c.ExamService.ListResults(examID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{List: results, Total: total, Page: page, Limit: limit})
}

// ForceRegrade godoc
// @Summary 同步强制重评
// @Description 立即重评并返回新成绩；forceRegrade 为 true 时重评全部已作答题目
// @Tags 试卷管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param resultId path int true "作答记录ID"
// @Param body body RegradeRequest false "重评选项"
// @Success 200 {object} util.Response{data=service.CompletionSummary} "成功"
// @Failure 404 {object} util.Response "记录不存在或未完成"
// @Router /api/admin/results/{resultId}/regrade [post]
func (c *AdminExamController) ForceRegrade(ctx *gin.Context) {
	resultID, err := util.ParseUintParam(ctx.Param("resultId"))
	if err != nil {
		util.BadRequest(ctx, "invalid result id")
		return
	}

	var req RegradeRequest
	_ = ctx.ShouldBindJSON(&req)

	summary, err := c.RegradeService.RegradeNow(resultID, req.ForceRegrade)
	if err != nil {
		if errors.Is(err, util.ErrAttemptNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, summary)
}
