package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"exam_platform_backend/internal/config"
	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/repository"
	"exam_platform_backend/internal/util"
	"exam_platform_backend/pkg/logger"
	"exam_platform_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 分数变化小于该阈值时不回写，避免无意义的抖动
const scoreEpsilon = 0.001

// RegradeService 在提交返回之后异步复核低置信度的兜底评分
// （关键词匹配和默认兜底），不会重新打开已完成的作答，也不会把
// 自身的失败暴露给学生——只反映在 aiGradingStatus 上
type RegradeService struct {
	ResultRepo *repository.ResultRepository
	ExamRepo   *repository.ExamRepository
	Grading    *GradingService
	Cfg        config.GradingConfig

	queue chan uint
	stop  chan struct{}
}

func NewRegradeService(
	resultRepo *repository.ResultRepository,
	examRepo *repository.ExamRepository,
	grading *GradingService,
	cfg config.GradingConfig,
) *RegradeService {
	size := cfg.RegradeQueueSize
	if size <= 0 {
		size = 256
	}
	return &RegradeService{
		ResultRepo: resultRepo,
		ExamRepo:   examRepo,
		Grading:    grading,
		Cfg:        cfg,
		queue:      make(chan uint, size),
		stop:       make(chan struct{}),
	}
}

// Enqueue 只捕获 resultID，处理时重新加载，避免闭包里的过期对象
func (s *RegradeService) Enqueue(resultID uint) {
	select {
	case s.queue <- resultID:
		monitoring.RegradeQueueDepth.Set(float64(len(s.queue)))
	default:
		logger.Log.Warn("regrade queue full, dropping task", zap.Uint("resultId", resultID))
		s.markFailed(resultID)
	}
}

// Run 队列消费循环，由 app 启动时作为 goroutine 运行
func (s *RegradeService) Run() {
	for {
		select {
		case resultID := <-s.queue:
			monitoring.RegradeQueueDepth.Set(float64(len(s.queue)))
			if err := s.process(resultID, false); err != nil {
				logger.Log.Error("background regrade failed",
					zap.Uint("resultId", resultID), zap.Error(err))
				s.markFailed(resultID)
			}
		case <-s.stop:
			return
		}
	}
}

func (s *RegradeService) Stop() {
	close(s.stop)
}

// RegradeNow 管理员同步重评。force 为 true 时重评全部已作答题目，
// 否则只碰低置信度的兜底评分
func (s *RegradeService) RegradeNow(resultID uint, force bool) (*CompletionSummary, error) {
	if err := s.process(resultID, force); err != nil {
		return nil, err
	}
	result, err := s.ResultRepo.FindByID(resultID)
	if err != nil {
		return nil, err
	}
	return summaryOf(result, false), nil
}

func (s *RegradeService) markFailed(resultID uint) {
	if result, err := s.ResultRepo.FindByID(resultID); err == nil {
		result.AIGradingStatus = model.AIGradingFailed
		if err := s.ResultRepo.Update(result); err != nil {
			logger.Log.Error("failed to persist regrade status", zap.Error(err))
		}
	}
}

func (s *RegradeService) process(resultID uint, force bool) error {
	// 乐观重读：提交响应发出后状态可能已变化，不复用旧对象
	result, err := s.ResultRepo.FindByID(resultID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrAttemptNotFound
		}
		return err
	}
	if !result.IsCompleted {
		return util.ErrAttemptNotFound
	}

	result.AIGradingStatus = model.AIGradingInProgress
	if err := s.ResultRepo.Update(result); err != nil {
		return err
	}

	exam, err := s.ExamRepo.FindByIDWithQuestions(result.ExamID)
	if err != nil {
		return err
	}
	questions := collectQuestions(exam)
	questionByID := make(map[uint]*model.Question, len(questions))
	for i := range questions {
		questionByID[questions[i].ID] = &questions[i]
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.Cfg.AttemptTimeout())
	defer cancel()

	changed := false
	for i := range result.Answers {
		answer := &result.Answers[i]
		if !answer.IsSelected || !answer.HasResponse() {
			continue
		}
		if !force && !answer.GradingMethod.NeedsRegrade() {
			continue
		}
		question, ok := questionByID[answer.QuestionID]
		if !ok {
			continue
		}

		outcome := s.Grading.Grade(ctx, question, answer.Response)
		if outcome.Method == model.GradingDefaultFallback && !force {
			// 复核依然只能兜底，保留原值
			continue
		}
		if math.Abs(outcome.Score-answer.Score) < scoreEpsilon && outcome.Method == answer.GradingMethod {
			continue
		}

		// 降分必须给学生留下说明
		if outcome.Score < answer.Score {
			outcome.Feedback = fmt.Sprintf("%s（复核调整：%.1f → %.1f 分）",
				outcome.Feedback, answer.Score, outcome.Score)
		}

		answer.Score = outcome.Score
		answer.IsCorrect = outcome.IsCorrect
		answer.Feedback = outcome.Feedback
		answer.CorrectedAnswer = outcome.CorrectedAnswer
		answer.GradingMethod = outcome.Method
		changed = true
	}

	if changed {
		agg := AggregateScores(exam, exam.Sections, questions, result.Answers)
		if math.Abs(agg.TotalScore-result.TotalScore) >= scoreEpsilon {
			result.TotalScore = agg.TotalScore
			result.MaxPossibleScore = agg.MaxPossibleScore
		}
	}

	result.AIGradingStatus = model.AIGradingCompleted
	if err := s.ResultRepo.SaveCompletion(result, result.Answers); err != nil {
		return err
	}

	logger.Log.Info("regrade finished",
		zap.Uint("resultId", resultID),
		zap.Bool("changed", changed),
		zap.Bool("force", force))
	return nil
}
