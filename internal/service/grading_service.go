package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"exam_platform_backend/internal/config"
	"exam_platform_backend/internal/model"
	"exam_platform_backend/pkg/logger"
	"exam_platform_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// GradeOutcome 单题评分结果。评分器保证永远返回结果而不是错误，
// 单题的任何内部故障都降级为兜底分数，不能拖垮整卷提交
type GradeOutcome struct {
	Score           float64
	MaxScore        float64
	IsCorrect       bool
	Feedback        string
	CorrectedAnswer string
	Method          model.GradingMethod
}

type GradingService struct {
	AI  ContentGenerator
	Cfg config.GradingConfig
}

func NewGradingService(ai ContentGenerator, cfg config.GradingConfig) *GradingService {
	return &GradingService{AI: ai, Cfg: cfg}
}

// Grade 按题型分发到对应评分器。response 是学生作答的 JSON 负载
func (s *GradingService) Grade(ctx context.Context, q *model.Question, response string) (out GradeOutcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("grader panic",
				zap.Uint("questionId", q.ID),
				zap.Any("panic", r))
			out = s.defaultOutcome(q, "该题自动评分失败，已记 0 分待复核")
		}
		monitoring.GradingMethodCounter.WithLabelValues(string(q.Type), string(out.Method)).Inc()
	}()

	switch q.Type {
	case model.MultipleChoice, model.TrueFalse:
		return s.gradeChoice(ctx, q, response)
	case model.FillBlank:
		return s.gradeFillBlank(ctx, q, response)
	case model.OpenEnded:
		return s.gradeOpenEnded(ctx, q, response)
	case model.Matching:
		return s.gradeMatching(q, response)
	case model.Ordering:
		return s.gradeOrdering(q, response)
	case model.DragDrop:
		return s.gradeDragDrop(q, response)
	default:
		return s.defaultOutcome(q, "未知题型，无法自动评分")
	}
}

func (s *GradingService) defaultOutcome(q *model.Question, feedback string) GradeOutcome {
	return GradeOutcome{
		Score:           0,
		MaxScore:        float64(q.Points),
		Feedback:        feedback,
		CorrectedAnswer: q.ModelAnswerText(),
		Method:          model.GradingDefaultFallback,
	}
}

// gradeChoice 选择/判断题：先比对标记为正确的选项，没有标记时
// 退到与标准答案的等价判断链（全等 → 包含 → 缩写表 → 模型语义判断）
func (s *GradingService) gradeChoice(ctx context.Context, q *model.Question, response string) GradeOutcome {
	selected := decodeTextResponse(response)
	options := q.ParsedOptions()

	var correctOpt *model.QuestionOption
	var selectedOpt *model.QuestionOption
	for i := range options {
		if options[i].IsCorrect && correctOpt == nil {
			correctOpt = &options[i]
		}
		if strings.EqualFold(options[i].Letter, selected) ||
			normalizeAnswer(options[i].Text) == normalizeAnswer(selected) {
			selectedOpt = &options[i]
		}
	}

	// 有标记答案：确定性精确比对
	if correctOpt != nil {
		corrected := fmt.Sprintf("%s. %s", correctOpt.Letter, correctOpt.Text)
		if selectedOpt != nil && selectedOpt.Letter == correctOpt.Letter {
			return GradeOutcome{
				Score:           float64(q.Points),
				MaxScore:        float64(q.Points),
				IsCorrect:       true,
				Feedback:        "回答正确",
				CorrectedAnswer: corrected,
				Method:          model.GradingExactMatch,
			}
		}
		return GradeOutcome{
			MaxScore:        float64(q.Points),
			Feedback:        "回答不正确",
			CorrectedAnswer: corrected,
			Method:          model.GradingExactMatch,
		}
	}

	// 无标记答案时用选项文本参与等价判断
	studentText := selected
	if selectedOpt != nil {
		studentText = selectedOpt.Text
	}
	return s.gradeByEquivalence(ctx, q, studentText, 3)
}

// gradeFillBlank 填空题走同一条等价判断链，但允许很短的正确答案（≥2 字符）
func (s *GradingService) gradeFillBlank(ctx context.Context, q *model.Question, response string) GradeOutcome {
	return s.gradeByEquivalence(ctx, q, decodeTextResponse(response), 2)
}

// gradeByEquivalence 等价判断链。确定性层命中记 semantic_match，
// 需要模型裁决的记 ai_graded，模型失败兜底 0 分
func (s *GradingService) gradeByEquivalence(ctx context.Context, q *model.Question, studentText string, minLen int) GradeOutcome {
	reference := q.ModelAnswerText()
	if reference == "" {
		return s.defaultOutcome(q, "该题缺少标准答案，无法自动评分")
	}
	if strings.TrimSpace(studentText) == "" {
		return GradeOutcome{
			MaxScore:        float64(q.Points),
			Feedback:        "未作答",
			CorrectedAnswer: reference,
			Method:          model.GradingExactMatch,
		}
	}

	if normalizeAnswer(studentText) == normalizeAnswer(reference) {
		return GradeOutcome{
			Score:           float64(q.Points),
			MaxScore:        float64(q.Points),
			IsCorrect:       true,
			Feedback:        "回答正确",
			CorrectedAnswer: reference,
			Method:          model.GradingExactMatch,
		}
	}

	if equivalentAnswers(studentText, reference, minLen) {
		return GradeOutcome{
			Score:           float64(q.Points),
			MaxScore:        float64(q.Points),
			IsCorrect:       true,
			Feedback:        "回答与标准答案等价",
			CorrectedAnswer: reference,
			Method:          model.GradingSemanticMatch,
		}
	}

	equivalent, err := s.askEquivalence(ctx, q.Text, studentText, reference)
	if err != nil {
		logger.Log.Warn("AI equivalence check failed, falling back",
			zap.Uint("questionId", q.ID), zap.Error(err))
		return s.defaultOutcome(q, "自动评分暂不可用，该题记 0 分，稍后会重新评分")
	}
	out := GradeOutcome{
		MaxScore:        float64(q.Points),
		CorrectedAnswer: reference,
		Method:          model.GradingAIGraded,
	}
	if equivalent {
		out.Score = float64(q.Points)
		out.IsCorrect = true
		out.Feedback = "回答与标准答案语义等价"
	} else {
		out.Feedback = "回答与标准答案不一致"
	}
	return out
}

func (s *GradingService) askEquivalence(ctx context.Context, questionText, studentText, reference string) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.Cfg.QuestionTimeout())
	defer cancel()

	system := "你是一名阅卷助手。判断学生答案与标准答案是否语义等价，只输出 JSON。"
	prompt := fmt.Sprintf(
		"题目：%s\n标准答案：%s\n学生答案：%s\n\n它们是否表达同一含义？只输出 {\"equivalent\": true} 或 {\"equivalent\": false}",
		questionText, reference, studentText)

	raw, err := s.AI.Generate(callCtx, system, prompt)
	if err != nil {
		return false, err
	}
	var parsed struct {
		Equivalent bool `json:"equivalent"`
	}
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &parsed); err != nil {
		return false, fmt.Errorf("parse equivalence response: %w", err)
	}
	return parsed.Equivalent, nil
}

// gradeOpenEnded 主观题三段式管线：提取要点 → 按要点打分 → 生成讲评和范例。
// 每段独立超时，任何一段失败都降级到关键词重合评分，而不是让整题失败
func (s *GradingService) gradeOpenEnded(ctx context.Context, q *model.Question, response string) GradeOutcome {
	studentText := decodeTextResponse(response)
	reference := q.ModelAnswerText()

	if strings.TrimSpace(studentText) == "" {
		return GradeOutcome{
			MaxScore:        float64(q.Points),
			Feedback:        "未作答",
			CorrectedAnswer: reference,
			Method:          model.GradingExactMatch,
		}
	}

	concepts := s.extractConcepts(ctx, q, reference)

	score, feedback, err := s.scoreAgainstConcepts(ctx, q, studentText, concepts)
	if err != nil {
		logger.Log.Warn("AI concept scoring failed, using keyword overlap",
			zap.Uint("questionId", q.ID), zap.Error(err))
		return s.keywordFallback(q, studentText, reference)
	}

	exemplar := s.generateExemplar(ctx, q, reference)

	return GradeOutcome{
		Score:           score,
		MaxScore:        float64(q.Points),
		IsCorrect:       score >= float64(q.Points)*0.6,
		Feedback:        feedback,
		CorrectedAnswer: exemplar,
		Method:          model.GradingAIGraded,
	}
}

// extractConcepts 从标准答案（缺失时从题干）提取评分要点；模型不可用时本地抽关键词
func (s *GradingService) extractConcepts(ctx context.Context, q *model.Question, reference string) []string {
	source := reference
	instruction := "从下面的标准答案中提取评分要点"
	if source == "" {
		source = q.Text
		instruction = "没有标准答案，请根据题目本身推断一个好答案应包含的要点"
	}

	callCtx, cancel := context.WithTimeout(ctx, s.Cfg.QuestionTimeout())
	defer cancel()

	system := "你是一名阅卷助手。输出 JSON 字符串数组，每个元素是一个简短要点。"
	prompt := fmt.Sprintf("%s（3 到 8 条）：\n题目：%s\n内容：%s", instruction, q.Text, source)

	raw, err := s.AI.Generate(callCtx, system, prompt)
	if err == nil {
		var concepts []string
		if json.Unmarshal([]byte(ExtractJSON(raw)), &concepts) == nil && len(concepts) > 0 {
			return concepts
		}
	}

	// 本地兜底：内容词当作要点
	words := contentWords(source)
	if len(words) > 8 {
		words = words[:8]
	}
	return words
}

func (s *GradingService) scoreAgainstConcepts(ctx context.Context, q *model.Question, studentText string, concepts []string) (float64, string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.Cfg.QuestionTimeout())
	defer cancel()

	system := "你是一名阅卷老师。按要点覆盖程度给学生答案打分，允许部分得分，只输出 JSON。"
	prompt := fmt.Sprintf(
		"题目：%s\n满分：%d\n评分要点：%s\n学生答案：%s\n\n只输出 {\"score\": <0 到满分的数字>, \"feedback\": \"<一两句中文讲评>\"}",
		q.Text, q.Points, strings.Join(concepts, "；"), studentText)

	raw, err := s.AI.Generate(callCtx, system, prompt)
	if err != nil {
		return 0, "", err
	}
	var parsed struct {
		Score    float64 `json:"score"`
		Feedback string  `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &parsed); err != nil {
		return 0, "", fmt.Errorf("parse scoring response: %w", err)
	}
	if parsed.Score < 0 {
		parsed.Score = 0
	}
	if parsed.Score > float64(q.Points) {
		parsed.Score = float64(q.Points)
	}
	return parsed.Score, parsed.Feedback, nil
}

// generateExemplar 生成展示给学生的范例答案，失败时直接用标准答案
func (s *GradingService) generateExemplar(ctx context.Context, q *model.Question, reference string) string {
	callCtx, cancel := context.WithTimeout(ctx, s.Cfg.QuestionTimeout())
	defer cancel()

	system := "你是一名教师。用简洁的中文写出这道题的范例答案，不要附加解释。"
	prompt := fmt.Sprintf("题目：%s\n参考内容：%s", q.Text, reference)

	exemplar, err := s.AI.Generate(callCtx, system, prompt)
	if err != nil || strings.TrimSpace(exemplar) == "" {
		return reference
	}
	return strings.TrimSpace(exemplar)
}

func (s *GradingService) keywordFallback(q *model.Question, studentText, reference string) GradeOutcome {
	source := reference
	if source == "" {
		source = q.Text
	}
	score, matched, total := keywordOverlapScore(studentText, source, q.Points)
	return GradeOutcome{
		Score:           score,
		MaxScore:        float64(q.Points),
		IsCorrect:       total > 0 && matched*2 >= total,
		Feedback:        fmt.Sprintf("基于关键词匹配的初步评分（命中 %d/%d 个要点），稍后可能会复核调整", matched, total),
		CorrectedAnswer: reference,
		Method:          model.GradingKeywordMatch,
	}
}

// gradeMatching 连线题：完全正确的配对数 / 总配对数
func (s *GradingService) gradeMatching(q *model.Question, response string) GradeOutcome {
	var key []model.MatchingPair
	if err := json.Unmarshal([]byte(q.ModelAnswer), &key); err != nil || len(key) == 0 {
		return s.defaultOutcome(q, "该题答案配置有误，无法自动评分")
	}
	var submitted []model.MatchingPair
	_ = json.Unmarshal([]byte(response), &submitted)

	expected := make(map[string]string, len(key))
	for _, p := range key {
		expected[normalizeAnswer(p.Left)] = normalizeAnswer(p.Right)
	}
	correct := 0
	for _, p := range submitted {
		if expected[normalizeAnswer(p.Left)] == normalizeAnswer(p.Right) {
			correct++
		}
	}
	return s.structuralOutcome(q, correct, len(key), "配对")
}

// gradeOrdering 排序题：位置完全一致的项数 / 总项数
func (s *GradingService) gradeOrdering(q *model.Question, response string) GradeOutcome {
	var key []string
	if err := json.Unmarshal([]byte(q.ModelAnswer), &key); err != nil || len(key) == 0 {
		return s.defaultOutcome(q, "该题答案配置有误，无法自动评分")
	}
	var submitted []string
	_ = json.Unmarshal([]byte(response), &submitted)

	correct := 0
	for i, item := range key {
		if i < len(submitted) && normalizeAnswer(submitted[i]) == normalizeAnswer(item) {
			correct++
		}
	}
	return s.structuralOutcome(q, correct, len(key), "位置")
}

// gradeDragDrop 拖拽题：放置正确的项数 / 总放置位数
func (s *GradingService) gradeDragDrop(q *model.Question, response string) GradeOutcome {
	var key []model.DragDropPlacement
	if err := json.Unmarshal([]byte(q.ModelAnswer), &key); err != nil || len(key) == 0 {
		return s.defaultOutcome(q, "该题答案配置有误，无法自动评分")
	}
	var submitted []model.DragDropPlacement
	_ = json.Unmarshal([]byte(response), &submitted)

	expected := make(map[string]string, len(key))
	for _, p := range key {
		expected[normalizeAnswer(p.Zone)] = normalizeAnswer(p.Item)
	}
	correct := 0
	for _, p := range submitted {
		if expected[normalizeAnswer(p.Zone)] == normalizeAnswer(p.Item) {
			correct++
		}
	}
	return s.structuralOutcome(q, correct, len(key), "放置")
}

func (s *GradingService) structuralOutcome(q *model.Question, correct, total int, unit string) GradeOutcome {
	score := 0.0
	if total > 0 {
		score = float64(q.Points) * float64(correct) / float64(total)
	}
	return GradeOutcome{
		Score:           score,
		MaxScore:        float64(q.Points),
		IsCorrect:       correct == total && total > 0,
		Feedback:        fmt.Sprintf("%s正确 %d/%d", unit, correct, total),
		CorrectedAnswer: q.ModelAnswerText(),
		Method:          model.GradingStructuralMatch,
	}
}

// decodeTextResponse 学生文本作答可能是 JSON 字符串，也可能是裸文本
func decodeTextResponse(response string) string {
	var s string
	if err := json.Unmarshal([]byte(response), &s); err == nil {
		return s
	}
	return response
}
