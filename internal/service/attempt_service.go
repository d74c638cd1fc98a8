package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"exam_platform_backend/internal/config"
	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/util"
	"exam_platform_backend/pkg/logger"
	"exam_platform_backend/pkg/monitoring"
	"exam_platform_backend/pkg/tracing"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RegradeEnqueuer 后台重评队列的提交边界
type RegradeEnqueuer interface {
	Enqueue(resultID uint)
}

// AttemptResultStore 作答生命周期依赖的作答存储面
type AttemptResultStore interface {
	FindActive(userID, examID uint) (*model.ExamResult, error)
	FindLatestCompleted(userID, examID uint) (*model.ExamResult, error)
	FindByID(id uint) (*model.ExamResult, error)
	FindAnswer(resultID, questionID uint) (*model.StudentAnswer, error)
	CreateWithAnswers(result *model.ExamResult, answers []model.StudentAnswer) error
	UpdateAnswer(answer *model.StudentAnswer) error
	SaveCompletion(result *model.ExamResult, answers []model.StudentAnswer) error
}

// AttemptExamStore 作答生命周期依赖的试卷存储面
type AttemptExamStore interface {
	FindByIDWithQuestions(id uint) (*model.Exam, error)
	FindQuestionByID(id uint) (*model.Question, error)
}

// AttemptService 管理一次作答的完整生命周期：
// 开始（幂等续答）→ 逐题提交 → 选答切换 → 提交整卷评分 → 后台重评
type AttemptService struct {
	ResultRepo AttemptResultStore
	ExamRepo   AttemptExamStore
	Grading    *GradingService
	Locks      *SubmissionLockManager
	Regrader   RegradeEnqueuer
	Cfg        config.GradingConfig
}

func NewAttemptService(
	resultRepo AttemptResultStore,
	examRepo AttemptExamStore,
	grading *GradingService,
	locks *SubmissionLockManager,
	cfg config.GradingConfig,
) *AttemptService {
	return &AttemptService{
		ResultRepo: resultRepo,
		ExamRepo:   examRepo,
		Grading:    grading,
		Locks:      locks,
		Cfg:        cfg,
	}
}

// CompletionSummary 提交整卷后的成绩摘要
type CompletionSummary struct {
	ResultID         uint    `json:"resultId"`
	TotalScore       float64 `json:"totalScore"`
	MaxPossibleScore float64 `json:"maxPossibleScore"`
	Percentage       float64 `json:"percentage"`
	AlreadyCompleted bool    `json:"alreadyCompleted"`
}

func summaryOf(result *model.ExamResult, already bool) *CompletionSummary {
	return &CompletionSummary{
		ResultID:         result.ID,
		TotalScore:       result.TotalScore,
		MaxPossibleScore: result.MaxPossibleScore,
		Percentage:       result.Percentage(),
		AlreadyCompleted: already,
	}
}

// Start 开始作答。已有未完成记录时原样返回（幂等续答）；
// 上一次已完成则创建新记录（重考），题目快照与默认选答完全可复现
func (s *AttemptService) Start(userID, examID uint) (*model.ExamResult, error) {
	exam, err := s.ExamRepo.FindByIDWithQuestions(examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrExamNotFound
		}
		return nil, err
	}
	if exam.IsLocked {
		return nil, util.ErrExamLocked
	}

	if active, err := s.ResultRepo.FindActive(userID, examID); err == nil {
		return active, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	questions := collectQuestions(exam)
	if len(questions) == 0 {
		return nil, util.ErrNoQuestions
	}

	result := &model.ExamResult{
		ExamID:          examID,
		UserID:          userID,
		StartedAt:       time.Now(),
		AIGradingStatus: model.AIGradingNotStarted,
	}
	answers := buildAnswerSnapshot(exam, questions)
	if err := s.ResultRepo.CreateWithAnswers(result, answers); err != nil {
		return nil, err
	}

	logger.Log.Info("attempt started",
		zap.Uint("userId", userID),
		zap.Uint("examId", examID),
		zap.Uint("resultId", result.ID))
	return result, nil
}

// collectQuestions 展平快照题目，保持大题顺序
func collectQuestions(exam *model.Exam) []model.Question {
	var questions []model.Question
	for _, sec := range exam.Sections {
		questions = append(questions, sec.Questions...)
	}
	return questions
}

// buildAnswerSnapshot 为每道题建一条答案行。选答模式下 B/C 大题按
// 题目 ID 的字符串序取前 required 道默认选中——排序键与存储顺序无关，
// 保证重考时默认选答完全一致
func buildAnswerSnapshot(exam *model.Exam, questions []model.Question) []model.StudentAnswer {
	sectionByID := make(map[uint]*model.ExamSection, len(exam.Sections))
	for i := range exam.Sections {
		sectionByID[exam.Sections[i].ID] = &exam.Sections[i]
	}

	defaultSelected := make(map[uint]bool, len(questions))
	for i := range questions {
		defaultSelected[questions[i].ID] = true
	}

	if exam.AllowSelectiveAnswering {
		bySection := make(map[model.SectionName][]*model.Question)
		for i := range questions {
			sec, ok := sectionByID[questions[i].SectionID]
			if !ok || !sec.IsOptional() {
				continue
			}
			bySection[sec.Name] = append(bySection[sec.Name], &questions[i])
		}
		for name, secQuestions := range bySection {
			required := exam.RequiredForSection(name)
			if required <= 0 || required >= len(secQuestions) {
				continue
			}
			sort.Slice(secQuestions, func(i, j int) bool {
				return strconv.FormatUint(uint64(secQuestions[i].ID), 10) <
					strconv.FormatUint(uint64(secQuestions[j].ID), 10)
			})
			for i, q := range secQuestions {
				defaultSelected[q.ID] = i < required
			}
		}
	}

	answers := make([]model.StudentAnswer, 0, len(questions))
	for i := range questions {
		answers = append(answers, model.StudentAnswer{
			QuestionID:    questions[i].ID,
			IsSelected:    defaultSelected[questions[i].ID],
			GradingMethod: model.GradingNotGraded,
		})
	}
	return answers
}

// AnswerAck 提交单题后的即时回执。选择/判断题同步返回对错
type AnswerAck struct {
	AnswerID  uint  `json:"answerId"`
	IsCorrect *bool `json:"isCorrect,omitempty"`
}

// SubmitAnswer 保存单题作答。落库即生效，不做缓冲；
// 只有有标记答案的选择/判断题会在此路径上同步判分
func (s *AttemptService) SubmitAnswer(ctx context.Context, userID, examID, questionID uint, payload json.RawMessage) (*AnswerAck, error) {
	result, err := s.ResultRepo.FindActive(userID, examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}

	answer, err := s.ResultRepo.FindAnswer(result.ID, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrQuestionNotFound
		}
		return nil, err
	}

	normalized, err := normalizePayload(payload)
	if err != nil {
		return nil, err
	}
	answer.Response = normalized

	ack := &AnswerAck{}

	// 选择/判断题即时反馈：仅依赖选项标记，纯确定性，不触发 AI
	question, qErr := s.ExamRepo.FindQuestionByID(questionID)
	if qErr == nil && (question.Type == model.MultipleChoice || question.Type == model.TrueFalse) {
		if hasFlaggedCorrectOption(question) {
			outcome := s.Grading.Grade(ctx, question, answer.Response)
			answer.Score = outcome.Score
			answer.IsCorrect = outcome.IsCorrect
			answer.Feedback = outcome.Feedback
			answer.CorrectedAnswer = outcome.CorrectedAnswer
			answer.GradingMethod = outcome.Method
			correct := outcome.IsCorrect
			ack.IsCorrect = &correct
		}
	}

	if err := s.ResultRepo.UpdateAnswer(answer); err != nil {
		return nil, err
	}
	ack.AnswerID = answer.ID
	return ack, nil
}

func hasFlaggedCorrectOption(q *model.Question) bool {
	for _, opt := range q.ParsedOptions() {
		if opt.IsCorrect {
			return true
		}
	}
	return false
}

// normalizePayload 校验并紧凑化作答负载，保证存进库的是合法 JSON
func normalizePayload(payload json.RawMessage) (string, error) {
	if len(payload) == 0 {
		return "", errors.New("empty answer payload")
	}
	var v interface{}
	if err := json.Unmarshal(payload, &v); err != nil {
		return "", errors.New("malformed answer payload")
	}
	compact, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(compact), nil
}

// ToggleSelection 切换 B/C 题目的选答状态。取消选择会使该大题已选数
// 跌破最低要求时拒绝（计数不含正在切换的这道题，避免差一错误）
func (s *AttemptService) ToggleSelection(userID, examID, questionID uint, selected bool) error {
	result, err := s.ResultRepo.FindActive(userID, examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrAttemptNotFound
		}
		return err
	}

	answer, err := s.ResultRepo.FindAnswer(result.ID, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrQuestionNotFound
		}
		return err
	}

	exam, err := s.ExamRepo.FindByIDWithQuestions(examID)
	if err != nil {
		return err
	}
	if !exam.AllowSelectiveAnswering {
		return util.ErrSelectionNotAllowed
	}

	question, section := findQuestionSection(exam, questionID)
	if question == nil {
		return util.ErrQuestionNotFound
	}
	if section == nil || !section.IsOptional() {
		return util.ErrSelectionNotAllowed
	}

	if !selected {
		required := exam.RequiredForSection(section.Name)
		remaining := countSelectedInSection(result.Answers, section, questionID)
		if remaining < required {
			return util.ErrBelowMinimumSelected
		}
	}

	answer.IsSelected = selected
	return s.ResultRepo.UpdateAnswer(answer)
}

func findQuestionSection(exam *model.Exam, questionID uint) (*model.Question, *model.ExamSection) {
	for i := range exam.Sections {
		for j := range exam.Sections[i].Questions {
			if exam.Sections[i].Questions[j].ID == questionID {
				return &exam.Sections[i].Questions[j], &exam.Sections[i]
			}
		}
	}
	return nil, nil
}

// countSelectedInSection 统计某大题当前已选数量，排除指定题目
func countSelectedInSection(answers []model.StudentAnswer, section *model.ExamSection, excludeQuestionID uint) int {
	inSection := make(map[uint]bool, len(section.Questions))
	for i := range section.Questions {
		inSection[section.Questions[i].ID] = true
	}
	count := 0
	for i := range answers {
		if answers[i].QuestionID == excludeQuestionID {
			continue
		}
		if inSection[answers[i].QuestionID] && answers[i].IsSelected {
			count++
		}
	}
	return count
}

// Complete 提交整卷。同一 (student, exam) 的并发提交被提交锁拒绝；
// 已完成的记录重放时返回既有成绩并带 alreadyCompleted 标记。
// 整卷评分有总超时，超时后带着已算出的部分分数完成，绝不让学生无限等待
func (s *AttemptService) Complete(ctx context.Context, userID, examID uint) (*CompletionSummary, error) {
	if !s.Locks.TryAcquire(userID, examID) {
		return nil, util.ErrSubmissionInProgress
	}
	defer s.Locks.Release(userID, examID)

	result, err := s.ResultRepo.FindActive(userID, examID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		// 没有进行中的作答：重放已完成的那次
		completed, cErr := s.ResultRepo.FindLatestCompleted(userID, examID)
		if cErr != nil {
			return nil, util.ErrAttemptNotFound
		}
		return summaryOf(completed, true), nil
	}

	start := time.Now()
	ctx, span := tracing.Tracer.Start(ctx, "attempt.complete")
	defer span.End()
	defer func() {
		monitoring.CompletionDuration.Observe(time.Since(start).Seconds())
	}()

	gradeCtx, cancel := context.WithTimeout(ctx, s.Cfg.AttemptTimeout())
	defer cancel()

	exam, err := s.ExamRepo.FindByIDWithQuestions(examID)
	if err != nil {
		return nil, err
	}
	questions := collectQuestions(exam)
	questionByID := make(map[uint]*model.Question, len(questions))
	for i := range questions {
		questionByID[questions[i].ID] = &questions[i]
	}

	needsRegrade := false
	for i := range result.Answers {
		answer := &result.Answers[i]
		if !answer.IsSelected || !answer.HasResponse() {
			continue
		}
		question, ok := questionByID[answer.QuestionID]
		if !ok {
			continue
		}

		// 总超时已到：余下题目保留现有分数，部分评分好过阻塞
		if gradeCtx.Err() != nil {
			logger.Log.Warn("attempt grading deadline exceeded, completing with partial scores",
				zap.Uint("resultId", result.ID))
			needsRegrade = true
			if answer.GradingMethod == model.GradingNotGraded {
				answer.GradingMethod = model.GradingDefaultFallback
				answer.Feedback = "评分超时，该题稍后会重新评分"
			}
			continue
		}

		outcome := s.Grading.Grade(gradeCtx, question, answer.Response)
		answer.Score = outcome.Score
		answer.IsCorrect = outcome.IsCorrect
		answer.Feedback = outcome.Feedback
		answer.CorrectedAnswer = outcome.CorrectedAnswer
		answer.GradingMethod = outcome.Method
		if outcome.Method.NeedsRegrade() {
			needsRegrade = true
		}
	}

	agg := AggregateScores(exam, exam.Sections, questions, result.Answers)

	now := time.Now()
	result.TotalScore = agg.TotalScore
	result.MaxPossibleScore = agg.MaxPossibleScore
	result.IsCompleted = true
	result.EndedAt = &now
	if needsRegrade {
		result.AIGradingStatus = model.AIGradingInProgress
	} else {
		result.AIGradingStatus = model.AIGradingCompleted
	}

	if err := s.ResultRepo.SaveCompletion(result, result.Answers); err != nil {
		return nil, err
	}

	if needsRegrade && s.Regrader != nil {
		s.Regrader.Enqueue(result.ID)
	}

	logger.Log.Info("attempt completed",
		zap.Uint("resultId", result.ID),
		zap.Float64("totalScore", result.TotalScore),
		zap.Float64("maxScore", result.MaxPossibleScore),
		zap.Bool("needsRegrade", needsRegrade))

	return summaryOf(result, false), nil
}

// ResultView 作答详情。学生在未完成时查看会抹掉答案相关字段
type ResultView struct {
	Result *model.ExamResult `json:"result"`
	Exam   *model.Exam       `json:"exam"`
}

// GetResult 返回作答详情。进行中的作答对学生隐藏标准答案与判分信息
func (s *AttemptService) GetResult(resultID uint, viewer *util.Claims) (*ResultView, error) {
	result, err := s.ResultRepo.FindByID(resultID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}

	isOwner := result.UserID == viewer.UserID
	isStaff := viewer.Role == model.Teacher || viewer.Role == model.Admin
	if !isOwner && !isStaff {
		return nil, util.ErrPermissionDenied
	}

	exam, err := s.ExamRepo.FindByIDWithQuestions(result.ExamID)
	if err != nil {
		return nil, err
	}

	if isOwner && !isStaff && !result.IsCompleted {
		redactResult(result, exam)
	}

	return &ResultView{Result: result, Exam: exam}, nil
}

// redactResult 考试进行中不向学生泄露标准答案与评分
func redactResult(result *model.ExamResult, exam *model.Exam) {
	for i := range result.Answers {
		result.Answers[i].Score = 0
		result.Answers[i].IsCorrect = false
		result.Answers[i].Feedback = ""
		result.Answers[i].CorrectedAnswer = ""
		result.Answers[i].GradingMethod = model.GradingNotGraded
	}
	for i := range exam.Sections {
		for j := range exam.Sections[i].Questions {
			exam.Sections[i].Questions[j].ModelAnswer = ""
			opts := exam.Sections[i].Questions[j].ParsedOptions()
			for k := range opts {
				opts[k].IsCorrect = false
			}
			if len(opts) > 0 {
				b, _ := json.Marshal(opts)
				exam.Sections[i].Questions[j].Options = string(b)
			}
		}
	}
}
