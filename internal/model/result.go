package model

import (
	"encoding/json"
	"time"
)

// AIGradingStatus 后台重评任务的状态，只作为展示字段，不影响主流程
type AIGradingStatus string

const (
	AIGradingNotStarted AIGradingStatus = "not_started"
	AIGradingInProgress AIGradingStatus = "in_progress"
	AIGradingCompleted  AIGradingStatus = "completed"
	AIGradingFailed     AIGradingStatus = "failed"
)

// GradingMethod 记录每个答案最终由哪一层评分策略给出结果（审计用）
type GradingMethod string

const (
	GradingNotGraded       GradingMethod = "not_graded"
	GradingExactMatch      GradingMethod = "exact_match"
	GradingSemanticMatch   GradingMethod = "semantic_match"
	GradingAIGraded        GradingMethod = "ai_graded"
	GradingStructuralMatch GradingMethod = "structural_match"
	GradingKeywordMatch    GradingMethod = "keyword_match"
	GradingDefaultFallback GradingMethod = "default_fallback"
)

// NeedsRegrade 低置信度的兜底评分才会被后台重评
func (m GradingMethod) NeedsRegrade() bool {
	return m == GradingKeywordMatch || m == GradingDefaultFallback
}

// ExamResult 一个学生对一份试卷的一次作答（含重考产生的历史记录）
// swagger:model ExamResult
type ExamResult struct {
	BaseModel

	ExamID           uint            `gorm:"index;type:bigint unsigned" json:"examId"`
	UserID           uint            `gorm:"index;type:bigint unsigned" json:"userId"`
	StartedAt        time.Time       `json:"startedAt"`
	EndedAt          *time.Time      `json:"endedAt,omitempty"`
	IsCompleted      bool            `gorm:"default:false" json:"isCompleted"`
	TotalScore       float64         `json:"totalScore"`
	MaxPossibleScore float64         `json:"maxPossibleScore"`
	AIGradingStatus  AIGradingStatus `gorm:"size:20;default:'not_started'" json:"aiGradingStatus"`

	Answers []StudentAnswer `gorm:"foreignKey:ResultID" json:"answers,omitempty"`
}

func (ExamResult) TableName() string {
	return "exam_results"
}

// Percentage 百分制成绩，分母兜底为 1 防止除零
func (r *ExamResult) Percentage() float64 {
	denom := r.MaxPossibleScore
	if denom < 1 {
		denom = 1
	}
	return r.TotalScore / denom * 100
}

// swagger:model StudentAnswer
type StudentAnswer struct {
	BaseModel

	ResultID   uint   `gorm:"index;type:bigint unsigned" json:"resultId"`
	QuestionID uint   `gorm:"index;type:bigint unsigned" json:"questionId"`
	Response   string `gorm:"type:json" json:"response"` // JSON，形态随题型

	// IsSelected 仅对选答模式下的 B/C 题目有意义；A 题恒为 true
	IsSelected bool `gorm:"default:true" json:"isSelected"`

	Score           float64       `json:"score"`
	IsCorrect       bool          `gorm:"default:false" json:"isCorrect"`
	Feedback        string        `gorm:"type:text" json:"feedback,omitempty"`
	CorrectedAnswer string        `gorm:"type:text" json:"correctedAnswer,omitempty"`
	GradingMethod   GradingMethod `gorm:"size:30;default:'not_graded'" json:"gradingMethod"`
}

func (StudentAnswer) TableName() string {
	return "student_answers"
}

// HasResponse 空响应（未作答）不参与选答配额统计
func (a *StudentAnswer) HasResponse() bool {
	if a.Response == "" || a.Response == "null" || a.Response == `""` {
		return false
	}
	var v interface{}
	if err := json.Unmarshal([]byte(a.Response), &v); err != nil {
		return a.Response != ""
	}
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	}
	return true
}
