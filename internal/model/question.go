package model

import "encoding/json"

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	FillBlank      QuestionType = "fill_blank"
	OpenEnded      QuestionType = "open_ended"
	Matching       QuestionType = "matching"
	Ordering       QuestionType = "ordering"
	DragDrop       QuestionType = "drag_drop"
)

// QuestionOption 选择类题目的单个选项
type QuestionOption struct {
	Letter    string `json:"letter"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// MatchingPair 连线题的一组对应关系
type MatchingPair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// DragDropPlacement 拖拽题的一个放置位
type DragDropPlacement struct {
	Zone string `json:"zone"`
	Item string `json:"item"`
}

// swagger:model Question
type Question struct {
	BaseModel

	ExamID      uint         `gorm:"index;type:bigint unsigned" json:"examId"`
	SectionID   uint         `gorm:"index;type:bigint unsigned" json:"sectionId"`
	Text        string       `gorm:"type:text;not null" json:"text"`
	Type        QuestionType `gorm:"size:50;not null" json:"type"`
	Options     string       `gorm:"type:json" json:"options,omitempty"`     // JSON []QuestionOption
	ModelAnswer string       `gorm:"type:json" json:"modelAnswer,omitempty"` // 标准答案，形态随题型
	Points      int          `gorm:"default:1" json:"points"`
	Order       int          `gorm:"default:0" json:"order"`
}

func (Question) TableName() string {
	return "questions"
}

// ParsedOptions 解析 Options JSON，损坏时返回空列表而不是报错
func (q *Question) ParsedOptions() []QuestionOption {
	if q.Options == "" {
		return nil
	}
	var opts []QuestionOption
	if err := json.Unmarshal([]byte(q.Options), &opts); err != nil {
		return nil
	}
	return opts
}

// ModelAnswerText 返回标准答案的纯文本形式（JSON 字符串会被解包）
func (q *Question) ModelAnswerText() string {
	if q.ModelAnswer == "" {
		return ""
	}
	var s string
	if err := json.Unmarshal([]byte(q.ModelAnswer), &s); err == nil {
		return s
	}
	return q.ModelAnswer
}
