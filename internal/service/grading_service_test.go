package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"exam_platform_backend/internal/config"
	"exam_platform_backend/internal/model"
)

// fakeGenerator 按调用顺序返回预置应答，模拟大模型
type fakeGenerator struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeGenerator) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", errors.New("no fake response configured")
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

func newTestGrader(ai ContentGenerator) *GradingService {
	return NewGradingService(ai, config.GradingConfig{QuestionTimeoutSeconds: 1})
}

func choiceQuestion(points int) *model.Question {
	return &model.Question{
		Type:    model.MultipleChoice,
		Text:    "下列哪项是广域网的缩写？",
		Points:  points,
		Options: `[{"letter":"A","text":"WAN","isCorrect":true},{"letter":"B","text":"LAN","isCorrect":false}]`,
	}
}

func TestGradeChoiceFlaggedOption(t *testing.T) {
	g := newTestGrader(&fakeGenerator{err: errors.New("should not be called")})
	q := choiceQuestion(5)

	t.Run("correct letter", func(t *testing.T) {
		out := g.Grade(context.Background(), q, `"A"`)
		if !out.IsCorrect || out.Score != 5 {
			t.Errorf("got score=%v correct=%v, want 5/true", out.Score, out.IsCorrect)
		}
		if out.Method != model.GradingExactMatch {
			t.Errorf("method = %s, want exact_match", out.Method)
		}
	})

	t.Run("wrong letter", func(t *testing.T) {
		out := g.Grade(context.Background(), q, `"B"`)
		if out.IsCorrect || out.Score != 0 {
			t.Errorf("got score=%v correct=%v, want 0/false", out.Score, out.IsCorrect)
		}
		if out.CorrectedAnswer == "" {
			t.Error("wrong answer should carry the corrected answer")
		}
	})

	t.Run("option text instead of letter", func(t *testing.T) {
		out := g.Grade(context.Background(), q, `"wan"`)
		if !out.IsCorrect {
			t.Errorf("selecting by option text should match, got %+v", out)
		}
	})
}

func TestGradeFillBlankLadder(t *testing.T) {
	mkQuestion := func() *model.Question {
		return &model.Question{
			Type:        model.FillBlank,
			Text:        "WAN 的全称是什么？",
			Points:      4,
			ModelAnswer: `"Wide Area Network"`,
		}
	}

	t.Run("exact match short-circuits before AI", func(t *testing.T) {
		ai := &fakeGenerator{err: errors.New("must not be reached")}
		out := newTestGrader(ai).Grade(context.Background(), mkQuestion(), `"wide area network"`)
		if !out.IsCorrect || out.Method != model.GradingExactMatch {
			t.Errorf("got method=%s correct=%v, want exact_match/true", out.Method, out.IsCorrect)
		}
		if ai.calls != 0 {
			t.Errorf("AI called %d times on exact match", ai.calls)
		}
	})

	t.Run("abbreviation resolves as semantic match", func(t *testing.T) {
		ai := &fakeGenerator{err: errors.New("must not be reached")}
		out := newTestGrader(ai).Grade(context.Background(), mkQuestion(), `"WAN"`)
		if !out.IsCorrect || out.Method != model.GradingSemanticMatch {
			t.Errorf("got method=%s correct=%v, want semantic_match/true", out.Method, out.IsCorrect)
		}
	})

	t.Run("AI equivalence verdict", func(t *testing.T) {
		ai := &fakeGenerator{responses: []string{`{"equivalent": true}`}}
		out := newTestGrader(ai).Grade(context.Background(), mkQuestion(), `"a network spanning large regions"`)
		if !out.IsCorrect || out.Method != model.GradingAIGraded {
			t.Errorf("got method=%s correct=%v, want ai_graded/true", out.Method, out.IsCorrect)
		}
	})

	t.Run("AI failure degrades to default fallback", func(t *testing.T) {
		ai := &fakeGenerator{err: errors.New("upstream down")}
		out := newTestGrader(ai).Grade(context.Background(), mkQuestion(), `"a network spanning large regions"`)
		if out.Score != 0 || out.Method != model.GradingDefaultFallback {
			t.Errorf("got score=%v method=%s, want 0/default_fallback", out.Score, out.Method)
		}
	})

	t.Run("blank answer gets zero without AI", func(t *testing.T) {
		ai := &fakeGenerator{err: errors.New("must not be reached")}
		out := newTestGrader(ai).Grade(context.Background(), mkQuestion(), `"  "`)
		if out.Score != 0 || out.IsCorrect {
			t.Errorf("blank answer got %+v", out)
		}
	})
}

func TestGradeOpenEnded(t *testing.T) {
	q := &model.Question{
		Type:        model.OpenEnded,
		Text:        "简述路由器的作用",
		Points:      10,
		ModelAnswer: `"路由器在不同网络之间转发数据包并选择最优路径"`,
	}

	t.Run("full AI pipeline", func(t *testing.T) {
		ai := &fakeGenerator{responses: []string{
			`["转发数据包","选择路径","连接不同网络"]`,
			`{"score": 7.5, "feedback": "覆盖了大部分要点"}`,
			`路由器负责在网络间转发数据包，并根据路由表选择最优路径。`,
		}}
		out := newTestGrader(ai).Grade(context.Background(), q, `"路由器转发数据包"`)
		if math.Abs(out.Score-7.5) > 1e-9 {
			t.Errorf("score = %v, want 7.5", out.Score)
		}
		if out.Method != model.GradingAIGraded {
			t.Errorf("method = %s, want ai_graded", out.Method)
		}
		if out.Feedback != "覆盖了大部分要点" {
			t.Errorf("feedback = %q", out.Feedback)
		}
	})

	t.Run("AI outage falls back to keyword overlap", func(t *testing.T) {
		ai := &fakeGenerator{err: errors.New("timeout")}
		out := newTestGrader(ai).Grade(context.Background(), q, `"forwards packets"`)
		if out.Method != model.GradingKeywordMatch {
			t.Errorf("method = %s, want keyword_match", out.Method)
		}
		if out.Score <= 0 {
			t.Errorf("non-empty answer must score above zero, got %v", out.Score)
		}
	})

	t.Run("score clamped to max points", func(t *testing.T) {
		ai := &fakeGenerator{responses: []string{
			`["要点"]`,
			`{"score": 99, "feedback": "超额"}`,
			`范例`,
		}}
		out := newTestGrader(ai).Grade(context.Background(), q, `"作答"`)
		if out.Score != 10 {
			t.Errorf("score = %v, want clamped to 10", out.Score)
		}
	})
}

func TestGradeStructuralTypes(t *testing.T) {
	t.Run("matching partial credit", func(t *testing.T) {
		q := &model.Question{
			Type:        model.Matching,
			Points:      6,
			ModelAnswer: `[{"left":"TCP","right":"可靠传输"},{"left":"UDP","right":"无连接"},{"left":"IP","right":"寻址"}]`,
		}
		out := newTestGrader(nil).Grade(context.Background(), q,
			`[{"left":"TCP","right":"可靠传输"},{"left":"UDP","right":"寻址"}]`)
		if math.Abs(out.Score-2) > 1e-9 {
			t.Errorf("score = %v, want 2 (1/3 of 6)", out.Score)
		}
		if out.Method != model.GradingStructuralMatch {
			t.Errorf("method = %s, want structural_match", out.Method)
		}
		if out.IsCorrect {
			t.Error("partial credit must not be marked correct")
		}
	})

	t.Run("ordering positional scoring", func(t *testing.T) {
		q := &model.Question{
			Type:        model.Ordering,
			Points:      4,
			ModelAnswer: `["接收","解析","处理","响应"]`,
		}
		out := newTestGrader(nil).Grade(context.Background(), q, `["接收","处理","解析","响应"]`)
		if math.Abs(out.Score-2) > 1e-9 {
			t.Errorf("score = %v, want 2 (2/4 positions)", out.Score)
		}
	})

	t.Run("drag drop full credit", func(t *testing.T) {
		q := &model.Question{
			Type:        model.DragDrop,
			Points:      2,
			ModelAnswer: `[{"zone":"左","item":"输入"},{"zone":"右","item":"输出"}]`,
		}
		out := newTestGrader(nil).Grade(context.Background(), q,
			`[{"zone":"右","item":"输出"},{"zone":"左","item":"输入"}]`)
		if !out.IsCorrect || out.Score != 2 {
			t.Errorf("got score=%v correct=%v, want 2/true", out.Score, out.IsCorrect)
		}
	})

	t.Run("broken answer key degrades to fallback", func(t *testing.T) {
		q := &model.Question{
			Type:        model.Matching,
			Points:      3,
			ModelAnswer: `not valid json`,
		}
		out := newTestGrader(nil).Grade(context.Background(), q, `[]`)
		if out.Method != model.GradingDefaultFallback || out.Score != 0 {
			t.Errorf("got %+v, want default_fallback with zero score", out)
		}
	})
}

func TestGradeUnknownType(t *testing.T) {
	q := &model.Question{Type: "essay_v2", Points: 5}
	out := newTestGrader(nil).Grade(context.Background(), q, `"anything"`)
	if out.Method != model.GradingDefaultFallback {
		t.Errorf("method = %s, want default_fallback", out.Method)
	}
}

func TestDecodeTextResponse(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`plain text`, "plain text"},
		{`"带引号的 JSON"`, "带引号的 JSON"},
	}
	for _, tt := range tests {
		if got := decodeTextResponse(tt.input); got != tt.want {
			t.Errorf("decodeTextResponse(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
