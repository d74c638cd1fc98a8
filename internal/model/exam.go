package model

// SectionName 固定的三段式试卷结构：A 客观题、B 简答题、C 论述题
type SectionName string

const (
	SectionA SectionName = "A"
	SectionB SectionName = "B"
	SectionC SectionName = "C"
)

// swagger:model Exam
type Exam struct {
	BaseModel

	Title            string `gorm:"size:255;not null" json:"title"`
	Description      string `gorm:"type:text" json:"description"`
	CreatorID        uint   `gorm:"index;type:bigint unsigned" json:"creatorId"`
	TimeLimitMinutes int    `gorm:"default:60" json:"timeLimitMinutes"`
	PassingScore     int    `gorm:"default:60" json:"passingScore"`
	IsLocked         bool   `gorm:"default:false" json:"isLocked"` // 锁定后学生不可开始/继续作答

	// 选答策略：B/C 大题允许学生从 N 道题中选答 required 道
	AllowSelectiveAnswering bool `gorm:"default:false" json:"allowSelectiveAnswering"`
	SectionBRequired        int  `gorm:"default:0" json:"sectionBRequired"`
	SectionCRequired        int  `gorm:"default:0" json:"sectionCRequired"`

	SourceFileURL string `gorm:"size:512" json:"sourceFileUrl,omitempty"` // 上传的原始试卷文档

	Sections []ExamSection `gorm:"foreignKey:ExamID" json:"sections,omitempty"`
}

func (Exam) TableName() string {
	return "exams"
}

// RequiredForSection 返回某大题在选答模式下的最低选答数，0 表示不设限
func (e *Exam) RequiredForSection(name SectionName) int {
	switch name {
	case SectionB:
		return e.SectionBRequired
	case SectionC:
		return e.SectionCRequired
	default:
		return 0
	}
}

// swagger:model ExamSection
type ExamSection struct {
	BaseModel

	ExamID      uint        `gorm:"index;type:bigint unsigned" json:"examId"`
	Name        SectionName `gorm:"type:enum('A','B','C');not null" json:"name"`
	Description string      `gorm:"size:512" json:"description"`
	Order       int         `gorm:"default:0" json:"order"`

	Questions []Question `gorm:"foreignKey:SectionID" json:"questions,omitempty"`
}

func (ExamSection) TableName() string {
	return "exam_sections"
}

// IsOptional A 大题必答，只有 B/C 参与选答
func (s *ExamSection) IsOptional() bool {
	return s.Name == SectionB || s.Name == SectionC
}
