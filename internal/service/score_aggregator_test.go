package service

import (
	"math"
	"testing"

	"exam_platform_backend/internal/model"
)

// buildSelectiveExam 组一张 A(2题) + B(5题,选3) 的选答试卷
func buildSelectiveExam(sectionBRequired int) (*model.Exam, []model.ExamSection, []model.Question) {
	exam := &model.Exam{
		AllowSelectiveAnswering: true,
		SectionBRequired:        sectionBRequired,
	}

	sections := []model.ExamSection{
		{BaseModel: model.BaseModel{ID: 1}, Name: model.SectionA},
		{BaseModel: model.BaseModel{ID: 2}, Name: model.SectionB},
	}

	questions := []model.Question{
		{BaseModel: model.BaseModel{ID: 101}, SectionID: 1, Points: 2},
		{BaseModel: model.BaseModel{ID: 102}, SectionID: 1, Points: 2},
		{BaseModel: model.BaseModel{ID: 201}, SectionID: 2, Points: 5},
		{BaseModel: model.BaseModel{ID: 202}, SectionID: 2, Points: 5},
		{BaseModel: model.BaseModel{ID: 203}, SectionID: 2, Points: 5},
		{BaseModel: model.BaseModel{ID: 204}, SectionID: 2, Points: 5},
		{BaseModel: model.BaseModel{ID: 205}, SectionID: 2, Points: 5},
	}
	return exam, sections, questions
}

func answered(questionID uint, score float64) model.StudentAnswer {
	return model.StudentAnswer{
		QuestionID: questionID,
		IsSelected: true,
		Response:   `"some answer"`,
		Score:      score,
	}
}

func TestAggregateScoresNonSelective(t *testing.T) {
	exam := &model.Exam{}
	questions := []model.Question{
		{BaseModel: model.BaseModel{ID: 1}, Points: 3},
		{BaseModel: model.BaseModel{ID: 2}, Points: 7},
	}
	answers := []model.StudentAnswer{
		answered(1, 3),
		answered(2, 4.5),
	}

	agg := AggregateScores(exam, nil, questions, answers)
	if agg.TotalScore != 7.5 || agg.MaxPossibleScore != 10 {
		t.Errorf("got %v/%v, want 7.5/10", agg.TotalScore, agg.MaxPossibleScore)
	}
}

func TestAggregateScoresSelectiveQuotaMet(t *testing.T) {
	exam, sections, questions := buildSelectiveExam(3)

	// A 大题全对，B 大题选 3 答 3，每题 4 分
	answers := []model.StudentAnswer{
		answered(101, 2),
		answered(102, 2),
		answered(201, 4),
		answered(202, 4),
		answered(203, 4),
		{QuestionID: 204, IsSelected: false},
		{QuestionID: 205, IsSelected: false},
	}

	agg := AggregateScores(exam, sections, questions, answers)

	// 分母：A 4 分 + B required(3)×单题分值(5)=15 → 19
	if agg.MaxPossibleScore != 19 {
		t.Errorf("max = %v, want 19", agg.MaxPossibleScore)
	}
	if agg.TotalScore != 16 {
		t.Errorf("total = %v, want 16", agg.TotalScore)
	}
}

func TestAggregateScoresSelectiveUnderQuota(t *testing.T) {
	exam, sections, questions := buildSelectiveExam(3)

	// B 大题只答了 2 道：该大题分子记 0，分母仍是 15
	answers := []model.StudentAnswer{
		answered(101, 2),
		answered(102, 1),
		answered(201, 5),
		answered(202, 5),
		{QuestionID: 203, IsSelected: false},
		{QuestionID: 204, IsSelected: false},
		{QuestionID: 205, IsSelected: false},
	}

	agg := AggregateScores(exam, sections, questions, answers)

	if agg.MaxPossibleScore != 19 {
		t.Errorf("max = %v, want 19", agg.MaxPossibleScore)
	}
	// 只剩 A 大题的 3 分，B 的 10 分被惩罚清零
	if agg.TotalScore != 3 {
		t.Errorf("total = %v, want 3 (section B zeroed)", agg.TotalScore)
	}
}

func TestAggregateScoresSelectedButUnanswered(t *testing.T) {
	exam, sections, questions := buildSelectiveExam(3)

	// 勾选了 3 道但其中 1 道没有作答内容：有效选答只有 2，不达标
	answers := []model.StudentAnswer{
		answered(101, 2),
		answered(102, 2),
		answered(201, 5),
		answered(202, 5),
		{QuestionID: 203, IsSelected: true, Response: ""},
		{QuestionID: 204, IsSelected: false},
		{QuestionID: 205, IsSelected: false},
	}

	agg := AggregateScores(exam, sections, questions, answers)
	if agg.TotalScore != 4 {
		t.Errorf("total = %v, want 4 (B under quota after dropping blank answer)", agg.TotalScore)
	}
}

func TestAggregateScoresQuotaZeroTreatedAsMandatory(t *testing.T) {
	exam, sections, questions := buildSelectiveExam(0)

	answers := []model.StudentAnswer{
		answered(101, 2), answered(102, 2),
		answered(201, 5), answered(202, 5), answered(203, 5),
		answered(204, 5), answered(205, 5),
	}

	agg := AggregateScores(exam, sections, questions, answers)
	// 没有配额：B 大题按必答处理，分母 4 + 25
	if agg.MaxPossibleScore != 29 {
		t.Errorf("max = %v, want 29", agg.MaxPossibleScore)
	}
	if agg.TotalScore != 29 {
		t.Errorf("total = %v, want 29", agg.TotalScore)
	}
}

func TestAggregateScoresQuotaBeyondQuestionCount(t *testing.T) {
	exam, sections, questions := buildSelectiveExam(9)

	answers := []model.StudentAnswer{
		answered(101, 1), answered(102, 1),
		answered(201, 2), answered(202, 2), answered(203, 2),
		answered(204, 2), answered(205, 2),
	}

	agg := AggregateScores(exam, sections, questions, answers)
	// 配额超出题量视同必答
	if agg.MaxPossibleScore != 29 {
		t.Errorf("max = %v, want 29", agg.MaxPossibleScore)
	}
	if agg.TotalScore != 12 {
		t.Errorf("total = %v, want 12", agg.TotalScore)
	}
}

func TestAggregateScoresEmptyExam(t *testing.T) {
	agg := AggregateScores(&model.Exam{}, nil, nil, nil)
	if agg.MaxPossibleScore != 1 {
		t.Errorf("empty exam denominator = %v, want floor of 1", agg.MaxPossibleScore)
	}
	if agg.Percentage() != 0 {
		t.Errorf("percentage = %v, want 0", agg.Percentage())
	}
}

func TestPercentage(t *testing.T) {
	r := AggregateResult{TotalScore: 16, MaxPossibleScore: 19}
	want := 16.0 / 19.0 * 100
	if math.Abs(r.Percentage()-want) > 1e-9 {
		t.Errorf("percentage = %v, want %v", r.Percentage(), want)
	}

	zero := AggregateResult{TotalScore: 0, MaxPossibleScore: 0}
	if zero.Percentage() != 0 {
		t.Errorf("zero denominator percentage = %v, want 0", zero.Percentage())
	}
}
