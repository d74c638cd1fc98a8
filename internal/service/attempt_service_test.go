package service

import (
	"testing"

	"exam_platform_backend/internal/model"
)

func snapshotExam(required int, ids ...uint) (*model.Exam, []model.Question) {
	exam := &model.Exam{
		AllowSelectiveAnswering: true,
		SectionBRequired:        required,
		Sections: []model.ExamSection{
			{BaseModel: model.BaseModel{ID: 1}, Name: model.SectionB},
		},
	}
	questions := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		questions = append(questions, model.Question{
			BaseModel: model.BaseModel{ID: id},
			SectionID: 1,
		})
	}
	return exam, questions
}

func selectedIDs(answers []model.StudentAnswer) map[uint]bool {
	out := make(map[uint]bool)
	for _, a := range answers {
		if a.IsSelected {
			out[a.QuestionID] = true
		}
	}
	return out
}

func TestBuildAnswerSnapshotDefaultSelection(t *testing.T) {
	// 题目 ID 的字符串序："10" < "2" < "9"，默认选中前 2 道
	exam, questions := snapshotExam(2, 9, 2, 10)

	answers := buildAnswerSnapshot(exam, questions)
	if len(answers) != 3 {
		t.Fatalf("answer rows = %d, want 3", len(answers))
	}

	sel := selectedIDs(answers)
	if !sel[10] || !sel[2] {
		t.Errorf("string-ordered first two (10, 2) should be selected, got %v", sel)
	}
	if sel[9] {
		t.Error("question 9 sorts last in string order and must start unselected")
	}
}

func TestBuildAnswerSnapshotDeterministic(t *testing.T) {
	exam1, q1 := snapshotExam(2, 9, 2, 10)
	exam2, q2 := snapshotExam(2, 10, 9, 2) // 存储顺序不同

	sel1 := selectedIDs(buildAnswerSnapshot(exam1, q1))
	sel2 := selectedIDs(buildAnswerSnapshot(exam2, q2))

	if len(sel1) != len(sel2) {
		t.Fatalf("selection sizes differ: %v vs %v", sel1, sel2)
	}
	for id := range sel1 {
		if !sel2[id] {
			t.Errorf("default selection depends on storage order: %v vs %v", sel1, sel2)
		}
	}
}

func TestBuildAnswerSnapshotQuotaEdgeCases(t *testing.T) {
	t.Run("no quota selects everything", func(t *testing.T) {
		exam, questions := snapshotExam(0, 1, 2, 3)
		sel := selectedIDs(buildAnswerSnapshot(exam, questions))
		if len(sel) != 3 {
			t.Errorf("selected %d, want all 3", len(sel))
		}
	})

	t.Run("quota equal to question count selects everything", func(t *testing.T) {
		exam, questions := snapshotExam(3, 1, 2, 3)
		sel := selectedIDs(buildAnswerSnapshot(exam, questions))
		if len(sel) != 3 {
			t.Errorf("selected %d, want all 3", len(sel))
		}
	})

	t.Run("non-selective exam selects everything", func(t *testing.T) {
		exam, questions := snapshotExam(1, 1, 2, 3)
		exam.AllowSelectiveAnswering = false
		sel := selectedIDs(buildAnswerSnapshot(exam, questions))
		if len(sel) != 3 {
			t.Errorf("selected %d, want all 3", len(sel))
		}
	})
}

func TestCountSelectedInSection(t *testing.T) {
	section := &model.ExamSection{
		Questions: []model.Question{
			{BaseModel: model.BaseModel{ID: 1}},
			{BaseModel: model.BaseModel{ID: 2}},
			{BaseModel: model.BaseModel{ID: 3}},
		},
	}
	answers := []model.StudentAnswer{
		{QuestionID: 1, IsSelected: true},
		{QuestionID: 2, IsSelected: true},
		{QuestionID: 3, IsSelected: false},
		{QuestionID: 99, IsSelected: true}, // 其他大题，不计
	}

	if got := countSelectedInSection(answers, section, 0); got != 2 {
		t.Errorf("count = %d, want 2", got)
	}
	// 正在切换的题目被排除，避免把它自己算进剩余数
	if got := countSelectedInSection(answers, section, 1); got != 1 {
		t.Errorf("count excluding question 1 = %d, want 1", got)
	}
}

func TestNormalizePayload(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"compacts whitespace", `{ "a" : 1 }`, `{"a":1}`, false},
		{"plain string", `"B"`, `"B"`, false},
		{"array", `[1, 2]`, `[1,2]`, false},
		{"empty payload", ``, "", true},
		{"malformed", `{oops`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizePayload([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Errorf("normalizePayload(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("normalizePayload(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("normalizePayload(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestHasFlaggedCorrectOption(t *testing.T) {
	flagged := &model.Question{Options: `[{"letter":"A","text":"x","isCorrect":true}]`}
	unflagged := &model.Question{Options: `[{"letter":"A","text":"x","isCorrect":false}]`}
	empty := &model.Question{}

	if !hasFlaggedCorrectOption(flagged) {
		t.Error("flagged option not detected")
	}
	if hasFlaggedCorrectOption(unflagged) {
		t.Error("unflagged options reported as flagged")
	}
	if hasFlaggedCorrectOption(empty) {
		t.Error("empty options reported as flagged")
	}
}
