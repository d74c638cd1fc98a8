package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"exam_platform_backend/internal/model"
)

func TestAIExamParserParse(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		ai := &fakeGenerator{responses: []string{"```json\n" + `{
			"title": "计算机网络期末考试",
			"timeLimitMinutes": 90,
			"sections": [
				{"name": "A", "questions": [
					{"text": "WAN 是什么的缩写？", "type": "multiple_choice",
					 "options": [{"letter":"A","text":"广域网","isCorrect":true}], "points": 2}
				]},
				{"name": "B", "questions": [
					{"text": "简述 TCP 三次握手", "type": "open_ended", "modelAnswer": "SYN, SYN-ACK, ACK", "points": 10}
				]}
			]
		}` + "\n```"}}

		parsed, err := NewAIExamParser(ai).Parse(context.Background(), "试卷原文...")
		if err != nil {
			t.Fatalf("Parse error: %v", err)
		}
		if parsed.Title != "计算机网络期末考试" || parsed.TimeLimitMinutes != 90 {
			t.Errorf("header parsed wrong: %+v", parsed)
		}
		if len(parsed.Sections) != 2 {
			t.Fatalf("sections = %d, want 2", len(parsed.Sections))
		}
		if parsed.Sections[0].Name != model.SectionA {
			t.Errorf("section name = %s, want A", parsed.Sections[0].Name)
		}
		q := parsed.Sections[0].Questions[0]
		if q.Type != model.MultipleChoice || len(q.Options) != 1 || !q.Options[0].IsCorrect {
			t.Errorf("question parsed wrong: %+v", q)
		}
	})

	t.Run("missing title rejected", func(t *testing.T) {
		ai := &fakeGenerator{responses: []string{`{"sections":[{"name":"A","questions":[]}]}`}}
		if _, err := NewAIExamParser(ai).Parse(context.Background(), "x"); err == nil {
			t.Error("expected error for missing title")
		}
	})

	t.Run("generator failure propagates", func(t *testing.T) {
		ai := &fakeGenerator{err: errors.New("upstream down")}
		if _, err := NewAIExamParser(ai).Parse(context.Background(), "x"); err == nil {
			t.Error("expected error when generator fails")
		}
	})

	t.Run("garbage output rejected", func(t *testing.T) {
		ai := &fakeGenerator{responses: []string{"抱歉，我无法解析这份文档。"}}
		if _, err := NewAIExamParser(ai).Parse(context.Background(), "x"); err == nil {
			t.Error("expected error for non-JSON output")
		}
	})
}

func TestQuestionFromParsedAnswerKey(t *testing.T) {
	t.Run("structural key stays gradable", func(t *testing.T) {
		pq := ParsedQuestion{
			Text:        "协议连线",
			Type:        model.Matching,
			Points:      6,
			ModelAnswer: json.RawMessage(`[{"left":"TCP","right":"可靠传输"},{"left":"UDP","right":"无连接"}]`),
		}
		q, err := questionFromParsed(1, 2, 0, pq)
		if err != nil {
			t.Fatalf("questionFromParsed: %v", err)
		}

		var pairs []model.MatchingPair
		if err := json.Unmarshal([]byte(q.ModelAnswer), &pairs); err != nil {
			t.Fatalf("imported answer key does not unmarshal: %v", err)
		}
		if len(pairs) != 2 || pairs[0].Left != "TCP" {
			t.Errorf("answer key parsed wrong: %+v", pairs)
		}

		out := newTestGrader(nil).Grade(context.Background(), &q,
			`[{"left":"TCP","right":"可靠传输"}]`)
		if out.Method != model.GradingStructuralMatch {
			t.Errorf("imported matching question graded via %s, want structural_match", out.Method)
		}
		if out.Score != 3 {
			t.Errorf("score = %v, want 3 (1/2 of 6)", out.Score)
		}
	})

	t.Run("text answer keeps plain form", func(t *testing.T) {
		pq := ParsedQuestion{
			Text:        "简述 TCP 三次握手",
			Type:        model.OpenEnded,
			Points:      10,
			ModelAnswer: json.RawMessage(`"SYN, SYN-ACK, ACK"`),
		}
		q, err := questionFromParsed(1, 2, 1, pq)
		if err != nil {
			t.Fatalf("questionFromParsed: %v", err)
		}
		if got := q.ModelAnswerText(); got != "SYN, SYN-ACK, ACK" {
			t.Errorf("ModelAnswerText = %q", got)
		}
	})

	t.Run("points floor of one", func(t *testing.T) {
		q, err := questionFromParsed(1, 2, 2, ParsedQuestion{Text: "x", Type: model.FillBlank})
		if err != nil {
			t.Fatalf("questionFromParsed: %v", err)
		}
		if q.Points != 1 {
			t.Errorf("points = %d, want floor of 1", q.Points)
		}
	})
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"markdown fenced", "```json\n{\"a\":1}\n```", "{\"a\":1}"},
		{"surrounding prose", `好的，结果如下：{"a":1}，请查收`, `{"a":1}`},
		{"array", `说明 [1,2,3] 结束`, `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSON(tt.input); got != tt.want {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
