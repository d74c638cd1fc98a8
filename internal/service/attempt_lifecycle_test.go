package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"exam_platform_backend/internal/config"
	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/util"

	"gorm.io/gorm"
)

// fakeResultStore 内存版作答存储，驱动生命周期测试
type fakeResultStore struct {
	active    *model.ExamResult
	completed *model.ExamResult
	saveCalls int
	updated   []*model.StudentAnswer
}

func (f *fakeResultStore) FindActive(userID, examID uint) (*model.ExamResult, error) {
	if f.active == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.active, nil
}

func (f *fakeResultStore) FindLatestCompleted(userID, examID uint) (*model.ExamResult, error) {
	if f.completed == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.completed, nil
}

func (f *fakeResultStore) FindByID(id uint) (*model.ExamResult, error) {
	for _, r := range []*model.ExamResult{f.active, f.completed} {
		if r != nil && r.ID == id {
			return r, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeResultStore) FindAnswer(resultID, questionID uint) (*model.StudentAnswer, error) {
	if f.active != nil && f.active.ID == resultID {
		for i := range f.active.Answers {
			if f.active.Answers[i].QuestionID == questionID {
				return &f.active.Answers[i], nil
			}
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeResultStore) CreateWithAnswers(result *model.ExamResult, answers []model.StudentAnswer) error {
	result.ID = 1
	result.Answers = answers
	f.active = result
	return nil
}

func (f *fakeResultStore) UpdateAnswer(answer *model.StudentAnswer) error {
	f.updated = append(f.updated, answer)
	return nil
}

func (f *fakeResultStore) SaveCompletion(result *model.ExamResult, answers []model.StudentAnswer) error {
	f.saveCalls++
	return nil
}

type fakeExamStore struct {
	exam *model.Exam
}

func (f *fakeExamStore) FindByIDWithQuestions(id uint) (*model.Exam, error) {
	if f.exam == nil || f.exam.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return f.exam, nil
}

func (f *fakeExamStore) FindQuestionByID(id uint) (*model.Question, error) {
	for i := range f.exam.Sections {
		for j := range f.exam.Sections[i].Questions {
			if f.exam.Sections[i].Questions[j].ID == id {
				return &f.exam.Sections[i].Questions[j], nil
			}
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func newLifecycleService(exam *model.Exam, store *fakeResultStore) *AttemptService {
	grading := newTestGrader(&fakeGenerator{err: errors.New("ai offline")})
	return NewAttemptService(store, &fakeExamStore{exam: exam}, grading,
		NewSubmissionLockManager(time.Minute),
		config.GradingConfig{QuestionTimeoutSeconds: 1, AttemptTimeoutSeconds: 5})
}

// choiceOnlyExam 一道有标记答案的选择题，评分路径纯确定性
func choiceOnlyExam() *model.Exam {
	return &model.Exam{
		BaseModel: model.BaseModel{ID: 5},
		Sections: []model.ExamSection{
			{
				BaseModel: model.BaseModel{ID: 1},
				Name:      model.SectionA,
				Questions: []model.Question{
					{
						BaseModel: model.BaseModel{ID: 101},
						SectionID: 1,
						Type:      model.MultipleChoice,
						Points:    5,
						Options:   `[{"letter":"A","text":"WAN","isCorrect":true},{"letter":"B","text":"LAN","isCorrect":false}]`,
					},
				},
			},
		},
	}
}

func TestCompleteIdempotentReplay(t *testing.T) {
	store := &fakeResultStore{
		active: &model.ExamResult{
			BaseModel: model.BaseModel{ID: 77},
			ExamID:    5,
			UserID:    9,
			Answers: []model.StudentAnswer{
				{QuestionID: 101, IsSelected: true, Response: `"A"`},
			},
		},
	}
	svc := newLifecycleService(choiceOnlyExam(), store)

	first, err := svc.Complete(context.Background(), 9, 5)
	if err != nil {
		t.Fatalf("first Complete: %v", err)
	}
	if first.AlreadyCompleted {
		t.Error("first completion must not be flagged as replay")
	}
	if first.TotalScore != 5 || first.MaxPossibleScore != 5 {
		t.Errorf("first completion got %v/%v, want 5/5", first.TotalScore, first.MaxPossibleScore)
	}
	if store.saveCalls != 1 {
		t.Fatalf("saveCalls = %d, want 1", store.saveCalls)
	}

	// 提交成功后没有进行中的作答了，重复提交走重放分支
	store.completed = store.active
	store.active = nil

	second, err := svc.Complete(context.Background(), 9, 5)
	if err != nil {
		t.Fatalf("replay Complete: %v", err)
	}
	if !second.AlreadyCompleted {
		t.Error("replay must carry the alreadyCompleted tag")
	}
	if second.ResultID != first.ResultID ||
		second.TotalScore != first.TotalScore ||
		second.MaxPossibleScore != first.MaxPossibleScore {
		t.Errorf("replay summary %+v differs from original %+v", second, first)
	}
	if store.saveCalls != 1 {
		t.Errorf("replay must not rewrite scores, saveCalls = %d", store.saveCalls)
	}
}

func TestCompleteWithoutAttempt(t *testing.T) {
	svc := newLifecycleService(choiceOnlyExam(), &fakeResultStore{})
	if _, err := svc.Complete(context.Background(), 9, 5); !errors.Is(err, util.ErrAttemptNotFound) {
		t.Errorf("err = %v, want ErrAttemptNotFound", err)
	}
}

func TestCompleteRejectsConcurrentSubmission(t *testing.T) {
	store := &fakeResultStore{
		active: &model.ExamResult{
			BaseModel: model.BaseModel{ID: 77},
			ExamID:    5,
			UserID:    9,
		},
	}
	svc := newLifecycleService(choiceOnlyExam(), store)

	if !svc.Locks.TryAcquire(9, 5) {
		t.Fatal("could not pre-acquire submission lock")
	}
	defer svc.Locks.Release(9, 5)

	if _, err := svc.Complete(context.Background(), 9, 5); !errors.Is(err, util.ErrSubmissionInProgress) {
		t.Errorf("err = %v, want ErrSubmissionInProgress", err)
	}
	if store.saveCalls != 0 {
		t.Errorf("rejected submission must not persist, saveCalls = %d", store.saveCalls)
	}
}

// selectiveExam B 大题 3 道选 2
func selectiveExam() *model.Exam {
	return &model.Exam{
		BaseModel:               model.BaseModel{ID: 6},
		AllowSelectiveAnswering: true,
		SectionBRequired:        2,
		Sections: []model.ExamSection{
			{
				BaseModel: model.BaseModel{ID: 2},
				Name:      model.SectionB,
				Questions: []model.Question{
					{BaseModel: model.BaseModel{ID: 201}, SectionID: 2, Type: model.OpenEnded, Points: 5},
					{BaseModel: model.BaseModel{ID: 202}, SectionID: 2, Type: model.OpenEnded, Points: 5},
					{BaseModel: model.BaseModel{ID: 203}, SectionID: 2, Type: model.OpenEnded, Points: 5},
				},
			},
		},
	}
}

func TestToggleSelectionQuotaFloor(t *testing.T) {
	store := &fakeResultStore{
		active: &model.ExamResult{
			BaseModel: model.BaseModel{ID: 88},
			ExamID:    6,
			UserID:    9,
			Answers: []model.StudentAnswer{
				{QuestionID: 201, IsSelected: true},
				{QuestionID: 202, IsSelected: true},
				{QuestionID: 203, IsSelected: false},
			},
		},
	}
	svc := newLifecycleService(selectiveExam(), store)

	// 已选数恰好等于最低要求，取消任何一道都要被拒绝
	if err := svc.ToggleSelection(9, 6, 201, false); !errors.Is(err, util.ErrBelowMinimumSelected) {
		t.Fatalf("deselect at quota floor: err = %v, want ErrBelowMinimumSelected", err)
	}
	if len(store.updated) != 0 {
		t.Error("rejected toggle must not persist")
	}

	// 多选一道之后再取消就有余量了
	if err := svc.ToggleSelection(9, 6, 203, true); err != nil {
		t.Fatalf("select extra question: %v", err)
	}
	if err := svc.ToggleSelection(9, 6, 201, false); err != nil {
		t.Fatalf("deselect above the floor: %v", err)
	}

	ans, err := store.FindAnswer(88, 201)
	if err != nil {
		t.Fatalf("FindAnswer: %v", err)
	}
	if ans.IsSelected {
		t.Error("deselect above the floor must persist")
	}
}
