package repository

import (
	"exam_platform_backend/internal/model"

	"gorm.io/gorm"
)

type ResultRepository struct {
	DB *gorm.DB
}

func NewResultRepository(db *gorm.DB) *ResultRepository {
	return &ResultRepository{DB: db}
}

// CreateWithAnswers 在一个事务里创建作答记录和题目快照对应的答案行
func (r *ResultRepository) CreateWithAnswers(result *model.ExamResult, answers []model.StudentAnswer) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(result).Error; err != nil {
			return err
		}
		for i := range answers {
			answers[i].ResultID = result.ID
		}
		if len(answers) > 0 {
			if err := tx.Create(&answers).Error; err != nil {
				return err
			}
		}
		result.Answers = answers
		return nil
	})
}

func (r *ResultRepository) Update(result *model.ExamResult) error {
	return r.DB.Save(result).Error
}

func (r *ResultRepository) FindByID(id uint) (*model.ExamResult, error) {
	var result model.ExamResult
	if err := r.DB.Preload("Answers").First(&result, id).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

// FindActive 查找某学生在某试卷上未完成的作答（同一时刻至多一条）
func (r *ResultRepository) FindActive(userID, examID uint) (*model.ExamResult, error) {
	var result model.ExamResult
	err := r.DB.Preload("Answers").
		Where("user_id = ? AND exam_id = ? AND is_completed = ?", userID, examID, false).
		Order("id DESC").
		First(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// FindLatestCompleted 最近一次已完成的作答，用于 Complete 的幂等重放
func (r *ResultRepository) FindLatestCompleted(userID, examID uint) (*model.ExamResult, error) {
	var result model.ExamResult
	err := r.DB.Preload("Answers").
		Where("user_id = ? AND exam_id = ? AND is_completed = ?", userID, examID, true).
		Order("id DESC").
		First(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *ResultRepository) UpdateAnswer(answer *model.StudentAnswer) error {
	return r.DB.Save(answer).Error
}

func (r *ResultRepository) FindAnswer(resultID, questionID uint) (*model.StudentAnswer, error) {
	var answer model.StudentAnswer
	err := r.DB.Where("result_id = ? AND question_id = ?", resultID, questionID).First(&answer).Error
	if err != nil {
		return nil, err
	}
	return &answer, nil
}

// SaveCompletion 整卷判分结果与答案在一个事务内落库
func (r *ResultRepository) SaveCompletion(result *model.ExamResult, answers []model.StudentAnswer) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(result).Error; err != nil {
			return err
		}
		for i := range answers {
			if err := tx.Save(&answers[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ResultRepository) ListByExam(examID uint, page, limit int) ([]model.ExamResult, int64, error) {
	var results []model.ExamResult
	var total int64
	q := r.DB.Model(&model.ExamResult{}).Where("exam_id = ?", examID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Offset((page - 1) * limit).Limit(limit).Order("id DESC").Find(&results).Error
	return results, total, err
}

func (r *ResultRepository) ListByUser(userID uint, page, limit int) ([]model.ExamResult, int64, error) {
	var results []model.ExamResult
	var total int64
	q := r.DB.Model(&model.ExamResult{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Offset((page - 1) * limit).Limit(limit).Order("id DESC").Find(&results).Error
	return results, total, err
}
