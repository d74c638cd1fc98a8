package service

import (
	"exam_platform_backend/internal/model"
)

// AggregateResult 整卷汇总分
type AggregateResult struct {
	TotalScore       float64 `json:"totalScore"`
	MaxPossibleScore float64 `json:"maxPossibleScore"`
}

// Percentage 分母兜底为 1 防止除零
func (r AggregateResult) Percentage() float64 {
	denom := r.MaxPossibleScore
	if denom < 1 {
		denom = 1
	}
	return r.TotalScore / denom * 100
}

// AggregateScores 把逐题得分汇总为整卷成绩，处理 B/C 大题的选答配额。
//
// 不开选答时：分子是全部得分之和，分母是全部题目分值之和。
// 开选答时：A 大题全量计入；B/C 各自独立结算——选答数不足最低要求的大题
// 分子记 0（刻意的惩罚，而不是悄悄跳过该大题），分母仍计 required × 单题分值；
// 达标的大题分子取已选题目的得分和，分母同样封顶在 required × 单题分值，
// 多选的题目不会抬高分母。
func AggregateScores(exam *model.Exam, sections []model.ExamSection, questions []model.Question, answers []model.StudentAnswer) AggregateResult {
	answerByQuestion := make(map[uint]*model.StudentAnswer, len(answers))
	for i := range answers {
		answerByQuestion[answers[i].QuestionID] = &answers[i]
	}

	sectionByID := make(map[uint]*model.ExamSection, len(sections))
	for i := range sections {
		sectionByID[sections[i].ID] = &sections[i]
	}

	if !exam.AllowSelectiveAnswering {
		var total, max float64
		for i := range questions {
			points := questions[i].Points
			if points < 1 {
				points = 1
			}
			max += float64(points)
			if a, ok := answerByQuestion[questions[i].ID]; ok {
				total += a.Score
			}
		}
		if max < 1 {
			max = 1
		}
		return AggregateResult{TotalScore: total, MaxPossibleScore: max}
	}

	questionsBySection := make(map[model.SectionName][]*model.Question)
	for i := range questions {
		name := model.SectionA
		if sec, ok := sectionByID[questions[i].SectionID]; ok {
			name = sec.Name
		}
		questionsBySection[name] = append(questionsBySection[name], &questions[i])
	}

	var total, max float64

	// A 大题必答，全量计入
	for _, q := range questionsBySection[model.SectionA] {
		points := q.Points
		if points < 1 {
			points = 1
		}
		max += float64(points)
		if a, ok := answerByQuestion[q.ID]; ok {
			total += a.Score
		}
	}

	for _, name := range []model.SectionName{model.SectionB, model.SectionC} {
		sectionQuestions := questionsBySection[name]
		if len(sectionQuestions) == 0 {
			continue
		}

		required := exam.RequiredForSection(name)
		if required <= 0 || required > len(sectionQuestions) {
			// 未配置配额（或配置超出题量）时按必答处理
			for _, q := range sectionQuestions {
				points := q.Points
				if points < 1 {
					points = 1
				}
				max += float64(points)
				if a, ok := answerByQuestion[q.ID]; ok {
					total += a.Score
				}
			}
			continue
		}

		// 代表性单题分值取该大题第一题（题目快照顺序稳定）
		repPoints := sectionQuestions[0].Points
		if repPoints < 1 {
			repPoints = 1
		}
		sectionMax := float64(required * repPoints)

		selectedCount := 0
		var selectedScore float64
		for _, q := range sectionQuestions {
			a, ok := answerByQuestion[q.ID]
			if !ok || !a.IsSelected || !a.HasResponse() {
				continue
			}
			selectedCount++
			selectedScore += a.Score
		}

		max += sectionMax
		if selectedCount >= required {
			total += selectedScore
		}
		// 选答不足：该大题分子记 0，分母保留，构成惩罚
	}

	if max < 1 {
		max = 1
	}
	return AggregateResult{TotalScore: total, MaxPossibleScore: max}
}
