package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"exam_platform_backend/internal/config"
	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/repository"
	"exam_platform_backend/internal/util"
	"exam_platform_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const examCacheTTL = 10 * time.Minute

// ParsedQuestion 解析器从试卷文档中抽取的一道题。
// ModelAnswer 保留原始 JSON：文本答案是字符串字面量，
// 连线/排序/拖拽的答案键是数组，入库时不能再包一层字符串
type ParsedQuestion struct {
	Text        string                 `json:"text"`
	Type        model.QuestionType     `json:"type"`
	Options     []model.QuestionOption `json:"options,omitempty"`
	ModelAnswer json.RawMessage        `json:"modelAnswer,omitempty"`
	Points      int                    `json:"points"`
}

type ParsedSection struct {
	Name        model.SectionName `json:"name"`
	Description string            `json:"description,omitempty"`
	Questions   []ParsedQuestion  `json:"questions"`
}

type ParsedExam struct {
	Title            string          `json:"title"`
	Description      string          `json:"description,omitempty"`
	TimeLimitMinutes int             `json:"timeLimitMinutes,omitempty"`
	Sections         []ParsedSection `json:"sections"`
}

// ExamParser 把试卷文档的文本内容解析为结构化试卷
type ExamParser interface {
	Parse(ctx context.Context, content string) (*ParsedExam, error)
}

// AIExamParser 基于大模型的默认解析实现
type AIExamParser struct {
	AI ContentGenerator
}

func NewAIExamParser(ai ContentGenerator) *AIExamParser {
	return &AIExamParser{AI: ai}
}

func (p *AIExamParser) Parse(ctx context.Context, content string) (*ParsedExam, error) {
	systemPrompt := "你是一个试卷结构化助手。把用户提供的试卷文本解析为 JSON，" +
		"格式：{\"title\":string,\"timeLimitMinutes\":number,\"sections\":[{\"name\":\"A|B|C\"," +
		"\"questions\":[{\"text\":string,\"type\":\"multiple_choice|true_false|fill_blank|open_ended|matching|ordering|drag_drop\"," +
		"\"options\":[{\"letter\":string,\"text\":string,\"isCorrect\":bool}],\"modelAnswer\":string,\"points\":number}]}]}。" +
		"客观题放入 A 大题，简答题放入 B，论述题放入 C。只返回 JSON。"

	raw, err := p.AI.Generate(ctx, systemPrompt, content)
	if err != nil {
		return nil, err
	}

	var parsed ParsedExam
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("解析试卷结构失败: %w", err)
	}
	if parsed.Title == "" || len(parsed.Sections) == 0 {
		return nil, errors.New("解析结果缺少标题或大题")
	}
	return &parsed, nil
}

// ExamService 试卷管理：增删改查、锁定、选答配置、文档导入与详情缓存
type ExamService struct {
	ExamRepo   *repository.ExamRepository
	ResultRepo *repository.ResultRepository
	Storage    *StorageService
	Parser     ExamParser
	Redis      *redis.Client
	Cfg        *config.Config
}

func NewExamService(
	examRepo *repository.ExamRepository,
	resultRepo *repository.ResultRepository,
	storage *StorageService,
	parser ExamParser,
	rdb *redis.Client,
	cfg *config.Config,
) *ExamService {
	return &ExamService{
		ExamRepo:   examRepo,
		ResultRepo: resultRepo,
		Storage:    storage,
		Parser:     parser,
		Redis:      rdb,
		Cfg:        cfg,
	}
}

type CreateExamInput struct {
	Title                   string `json:"title" binding:"required"`
	Description             string `json:"description"`
	TimeLimitMinutes        int    `json:"timeLimitMinutes"`
	PassingScore            int    `json:"passingScore"`
	AllowSelectiveAnswering bool   `json:"allowSelectiveAnswering"`
	SectionBRequired        int    `json:"sectionBRequired"`
	SectionCRequired        int    `json:"sectionCRequired"`
}

func (s *ExamService) CreateExam(creatorID uint, input CreateExamInput) (*model.Exam, error) {
	exam := &model.Exam{
		Title:                   input.Title,
		Description:             input.Description,
		CreatorID:               creatorID,
		TimeLimitMinutes:        input.TimeLimitMinutes,
		PassingScore:            input.PassingScore,
		AllowSelectiveAnswering: input.AllowSelectiveAnswering,
		SectionBRequired:        input.SectionBRequired,
		SectionCRequired:        input.SectionCRequired,
	}
	if exam.TimeLimitMinutes <= 0 {
		exam.TimeLimitMinutes = 60
	}
	if err := s.ExamRepo.Create(exam); err != nil {
		return nil, err
	}
	return exam, nil
}

func (s *ExamService) UpdateExam(examID uint, input CreateExamInput) (*model.Exam, error) {
	exam, err := s.ExamRepo.FindByID(examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrExamNotFound
		}
		return nil, err
	}

	exam.Title = input.Title
	exam.Description = input.Description
	if input.TimeLimitMinutes > 0 {
		exam.TimeLimitMinutes = input.TimeLimitMinutes
	}
	exam.PassingScore = input.PassingScore
	exam.AllowSelectiveAnswering = input.AllowSelectiveAnswering
	exam.SectionBRequired = input.SectionBRequired
	exam.SectionCRequired = input.SectionCRequired

	if err := s.ExamRepo.Update(exam); err != nil {
		return nil, err
	}
	s.invalidateCache(examID)
	return exam, nil
}

// SetLocked 锁定/解锁试卷。锁定后学生无法开始新作答
func (s *ExamService) SetLocked(examID uint, locked bool) (*model.Exam, error) {
	exam, err := s.ExamRepo.FindByID(examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrExamNotFound
		}
		return nil, err
	}
	exam.IsLocked = locked
	if err := s.ExamRepo.Update(exam); err != nil {
		return nil, err
	}
	s.invalidateCache(examID)
	return exam, nil
}

func (s *ExamService) DeleteExam(examID uint) error {
	if err := s.ExamRepo.Delete(examID); err != nil {
		return err
	}
	s.invalidateCache(examID)
	return nil
}

// GetExamDetail 带 Redis 缓存的试卷详情（含大题与题目）。
// 缓存命中直接反序列化返回，任何写操作都会使缓存失效
func (s *ExamService) GetExamDetail(ctx context.Context, examID uint) (*model.Exam, error) {
	cacheKey := fmt.Sprintf("exam:detail:%d", examID)

	if s.Redis != nil {
		if val, err := s.Redis.Get(ctx, cacheKey).Result(); err == nil {
			var exam model.Exam
			if err := json.Unmarshal([]byte(val), &exam); err == nil {
				return &exam, nil
			}
		}
	}

	exam, err := s.ExamRepo.FindByIDWithQuestions(examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrExamNotFound
		}
		return nil, err
	}

	if s.Redis != nil {
		if data, err := json.Marshal(exam); err == nil {
			if err := s.Redis.Set(ctx, cacheKey, data, examCacheTTL).Err(); err != nil {
				logger.Log.Warn("failed to cache exam detail", zap.Error(err))
			}
		}
	}
	return exam, nil
}

// GetExamForStudent 学生视角的试卷详情：剥离选项正误标记与标准答案
func (s *ExamService) GetExamForStudent(ctx context.Context, examID uint) (*model.Exam, error) {
	exam, err := s.GetExamDetail(ctx, examID)
	if err != nil {
		return nil, err
	}

	redacted := *exam
	redacted.Sections = make([]model.ExamSection, len(exam.Sections))
	for i, sec := range exam.Sections {
		redacted.Sections[i] = sec
		redacted.Sections[i].Questions = make([]model.Question, len(sec.Questions))
		for j, q := range sec.Questions {
			q.ModelAnswer = ""
			opts := q.ParsedOptions()
			for k := range opts {
				opts[k].IsCorrect = false
			}
			if len(opts) > 0 {
				if data, err := json.Marshal(opts); err == nil {
					q.Options = string(data)
				}
			}
			redacted.Sections[i].Questions[j] = q
		}
	}
	return &redacted, nil
}

func (s *ExamService) ListExams(page, limit int, includeLocked bool) ([]model.Exam, int64, error) {
	if includeLocked {
		return s.ExamRepo.List(page, limit)
	}
	return s.ExamRepo.ListUnlocked(page, limit)
}

func (s *ExamService) AddSection(examID uint, name model.SectionName, description string, order int) (*model.ExamSection, error) {
	if _, err := s.ExamRepo.FindByID(examID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrExamNotFound
		}
		return nil, err
	}
	section := &model.ExamSection{
		ExamID:      examID,
		Name:        name,
		Description: description,
		Order:       order,
	}
	if err := s.ExamRepo.CreateSection(section); err != nil {
		return nil, err
	}
	s.invalidateCache(examID)
	return section, nil
}

type QuestionInput struct {
	SectionID   uint                   `json:"sectionId" binding:"required"`
	Text        string                 `json:"text" binding:"required"`
	Type        model.QuestionType     `json:"type" binding:"required"`
	Options     []model.QuestionOption `json:"options"`
	ModelAnswer string                 `json:"modelAnswer"`
	Points      int                    `json:"points"`
	Order       int                    `json:"order"`
}

func (s *ExamService) AddQuestion(examID uint, input QuestionInput) (*model.Question, error) {
	section, err := s.ExamRepo.FindSectionByID(input.SectionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrQuestionNotFound
		}
		return nil, err
	}
	if section.ExamID != examID {
		return nil, util.ErrQuestionNotFound
	}

	q := &model.Question{
		ExamID:      examID,
		SectionID:   input.SectionID,
		Text:        input.Text,
		Type:        input.Type,
		ModelAnswer: input.ModelAnswer,
		Points:      input.Points,
		Order:       input.Order,
	}
	if q.Points <= 0 {
		q.Points = 1
	}
	if len(input.Options) > 0 {
		data, err := json.Marshal(input.Options)
		if err != nil {
			return nil, err
		}
		q.Options = string(data)
	}
	if err := s.ExamRepo.CreateQuestion(q); err != nil {
		return nil, err
	}
	s.invalidateCache(examID)
	return q, nil
}

func (s *ExamService) UpdateQuestion(questionID uint, input QuestionInput) (*model.Question, error) {
	q, err := s.ExamRepo.FindQuestionByID(questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrQuestionNotFound
		}
		return nil, err
	}

	q.Text = input.Text
	q.Type = input.Type
	q.ModelAnswer = input.ModelAnswer
	if input.Points > 0 {
		q.Points = input.Points
	}
	q.Order = input.Order
	if len(input.Options) > 0 {
		data, err := json.Marshal(input.Options)
		if err != nil {
			return nil, err
		}
		q.Options = string(data)
	}
	if err := s.ExamRepo.UpdateQuestion(q); err != nil {
		return nil, err
	}
	s.invalidateCache(q.ExamID)
	return q, nil
}

func (s *ExamService) DeleteQuestion(questionID uint) error {
	q, err := s.ExamRepo.FindQuestionByID(questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrQuestionNotFound
		}
		return err
	}
	if err := s.ExamRepo.DeleteQuestion(questionID); err != nil {
		return err
	}
	s.invalidateCache(q.ExamID)
	return nil
}

// ImportExam 上传试卷文档并由解析器生成结构化试卷。
// 文件先落存储，解析失败时保留文件但不建卷
func (s *ExamService) ImportExam(ctx context.Context, creatorID uint, filename string, reader io.Reader, size int64, contentType string) (*model.Exam, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !util.IsAllowedExamFileExtension(ext) {
		return nil, fmt.Errorf("不支持的文件类型: %s", ext)
	}
	if contentType == "" || contentType == util.MimeOctetStream {
		switch ext {
		case ".pdf":
			contentType = util.MimePDF
		case ".docx":
			contentType = util.MimeWord
		}
	}

	content, err := io.ReadAll(io.LimitReader(reader, util.MaxExamFileSize))
	if err != nil {
		return nil, err
	}

	objectName := fmt.Sprintf("exams/%s%s", uuid.New().String(), ext)
	fileURL, err := s.Storage.Upload(ctx, objectName, bytes.NewReader(content), int64(len(content)), contentType)
	if err != nil {
		return nil, err
	}

	parsed, err := s.Parser.Parse(ctx, string(content))
	if err != nil {
		logger.Log.Error("exam import parse failed",
			zap.String("file", filename), zap.Error(err))
		return nil, err
	}

	exam := &model.Exam{
		Title:            parsed.Title,
		Description:      parsed.Description,
		CreatorID:        creatorID,
		TimeLimitMinutes: parsed.TimeLimitMinutes,
		SourceFileURL:    fileURL,
	}
	if exam.TimeLimitMinutes <= 0 {
		exam.TimeLimitMinutes = 60
	}
	if err := s.ExamRepo.Create(exam); err != nil {
		return nil, err
	}

	for i, ps := range parsed.Sections {
		section := &model.ExamSection{
			ExamID:      exam.ID,
			Name:        ps.Name,
			Description: ps.Description,
			Order:       i,
		}
		if err := s.ExamRepo.CreateSection(section); err != nil {
			return nil, err
		}

		questions := make([]model.Question, 0, len(ps.Questions))
		for j, pq := range ps.Questions {
			q, err := questionFromParsed(exam.ID, section.ID, j, pq)
			if err != nil {
				return nil, err
			}
			questions = append(questions, q)
		}
		if err := s.ExamRepo.CreateQuestions(questions); err != nil {
			return nil, err
		}
	}

	return s.ExamRepo.FindByIDWithQuestions(exam.ID)
}

// questionFromParsed 把解析结果转为题目行。答案键原样落库：
// 结构化题型的数组保持可反序列化，文本答案保持字符串字面量
func questionFromParsed(examID, sectionID uint, order int, pq ParsedQuestion) (model.Question, error) {
	q := model.Question{
		ExamID:      examID,
		SectionID:   sectionID,
		Text:        pq.Text,
		Type:        pq.Type,
		ModelAnswer: string(pq.ModelAnswer),
		Points:      pq.Points,
		Order:       order,
	}
	if q.Points <= 0 {
		q.Points = 1
	}
	if len(pq.Options) > 0 {
		data, err := json.Marshal(pq.Options)
		if err != nil {
			return model.Question{}, err
		}
		q.Options = string(data)
	}
	return q, nil
}

func (s *ExamService) ListResults(examID uint, page, limit int) ([]model.ExamResult, int64, error) {
	return s.ResultRepo.ListByExam(examID, page, limit)
}

func (s *ExamService) ListUserResults(userID uint, page, limit int) ([]model.ExamResult, int64, error) {
	return s.ResultRepo.ListByUser(userID, page, limit)
}

func (s *ExamService) invalidateCache(examID uint) {
	if s.Redis == nil {
		return
	}
	key := fmt.Sprintf("exam:detail:%d", examID)
	if err := s.Redis.Del(context.Background(), key).Err(); err != nil {
		logger.Log.Warn("failed to invalidate exam cache", zap.Error(err))
	}
}
