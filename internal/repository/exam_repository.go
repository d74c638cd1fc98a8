package repository

import (
	"exam_platform_backend/internal/model"

	"gorm.io/gorm"
)

type ExamRepository struct {
	DB *gorm.DB
}

func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: db}
}

func (r *ExamRepository) Create(exam *model.Exam) error {
	return r.DB.Create(exam).Error
}

func (r *ExamRepository) Update(exam *model.Exam) error {
	return r.DB.Save(exam).Error
}

func (r *ExamRepository) Delete(id uint) error {
	return r.DB.Delete(&model.Exam{}, id).Error
}

func (r *ExamRepository) FindByID(id uint) (*model.Exam, error) {
	var exam model.Exam
	if err := r.DB.First(&exam, id).Error; err != nil {
		return nil, err
	}
	return &exam, nil
}

// FindByIDWithQuestions 预加载全部大题与题目，按 order 排序
func (r *ExamRepository) FindByIDWithQuestions(id uint) (*model.Exam, error) {
	var exam model.Exam
	err := r.DB.
		Preload("Sections", func(db *gorm.DB) *gorm.DB {
			return db.Order("exam_sections.order ASC")
		}).
		Preload("Sections.Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("questions.order ASC")
		}).
		First(&exam, id).Error
	if err != nil {
		return nil, err
	}
	return &exam, nil
}

func (r *ExamRepository) List(page, limit int) ([]model.Exam, int64, error) {
	var exams []model.Exam
	var total int64
	if err := r.DB.Model(&model.Exam{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := r.DB.Offset((page - 1) * limit).Limit(limit).Order("id DESC").Find(&exams).Error
	return exams, total, err
}

func (r *ExamRepository) ListUnlocked(page, limit int) ([]model.Exam, int64, error) {
	var exams []model.Exam
	var total int64
	q := r.DB.Model(&model.Exam{}).Where("is_locked = ?", false)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Offset((page - 1) * limit).Limit(limit).Order("id DESC").Find(&exams).Error
	return exams, total, err
}

func (r *ExamRepository) CreateSection(section *model.ExamSection) error {
	return r.DB.Create(section).Error
}

func (r *ExamRepository) FindSectionByID(id uint) (*model.ExamSection, error) {
	var section model.ExamSection
	if err := r.DB.First(&section, id).Error; err != nil {
		return nil, err
	}
	return &section, nil
}

func (r *ExamRepository) CreateQuestion(q *model.Question) error {
	return r.DB.Create(q).Error
}

func (r *ExamRepository) CreateQuestions(questions []model.Question) error {
	if len(questions) == 0 {
		return nil
	}
	return r.DB.Create(&questions).Error
}

func (r *ExamRepository) UpdateQuestion(q *model.Question) error {
	return r.DB.Save(q).Error
}

func (r *ExamRepository) DeleteQuestion(id uint) error {
	return r.DB.Delete(&model.Question{}, id).Error
}

func (r *ExamRepository) FindQuestionByID(id uint) (*model.Question, error) {
	var q model.Question
	if err := r.DB.First(&q, id).Error; err != nil {
		return nil, err
	}
	return &q, nil
}
