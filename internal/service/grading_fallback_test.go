package service

import (
	"math"
	"testing"
)

func TestNormalizeAnswer(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase", "Wide Area Network", "wide area network"},
		{"punctuation stripped", "W.A.N!", "w a n"},
		{"whitespace collapsed", "  wide   area\tnetwork ", "wide area network"},
		{"leading punctuation", "...answer", "answer"},
		{"empty", "", ""},
		{"only punctuation", "?!.", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeAnswer(tt.input); got != tt.want {
				t.Errorf("normalizeAnswer(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEquivalentAnswers(t *testing.T) {
	tests := []struct {
		name      string
		student   string
		reference string
		minLen    int
		want      bool
	}{
		{"exact after normalization", "Wide Area Network", "wide area network", 3, true},
		{"abbreviation to full", "WAN", "Wide Area Network", 3, true},
		{"full to abbreviation", "wide area network", "WAN", 3, true},
		{"substring containment", "the central processing unit of a computer", "central processing unit", 3, true},
		{"short strings below minLen", "ab", "abc", 3, false},
		{"unrelated", "local bus", "wide area network", 3, false},
		{"empty student", "", "wan", 3, false},
		{"empty reference", "wan", "", 3, false},
		{"unknown abbreviation", "xyz", "some long expansion", 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := equivalentAnswers(tt.student, tt.reference, tt.minLen)
			if got != tt.want {
				t.Errorf("equivalentAnswers(%q, %q, %d) = %v, want %v",
					tt.student, tt.reference, tt.minLen, got, tt.want)
			}
		})
	}
}

func TestContentWords(t *testing.T) {
	words := contentWords("The routers are forwarding packets to the network")
	want := map[string]bool{"router": true, "forward": true, "packet": true, "network": true}
	if len(words) != len(want) {
		t.Fatalf("contentWords returned %v, want %d words", words, len(want))
	}
	for _, w := range words {
		if !want[w] {
			t.Errorf("unexpected content word %q in %v", w, words)
		}
	}
}

func TestKeywordOverlapScore(t *testing.T) {
	reference := "routers forward packets between networks"

	t.Run("full overlap gives full points", func(t *testing.T) {
		score, matched, total := keywordOverlapScore(reference, reference, 10)
		if matched != total {
			t.Fatalf("matched = %d, total = %d, want equal", matched, total)
		}
		if math.Abs(score-10) > 1e-9 {
			t.Errorf("score = %v, want 10", score)
		}
	})

	t.Run("zero overlap still gives 20 percent floor", func(t *testing.T) {
		score, matched, _ := keywordOverlapScore("completely unrelated reply", reference, 10)
		if matched != 0 {
			t.Fatalf("matched = %d, want 0", matched)
		}
		if math.Abs(score-2) > 1e-9 {
			t.Errorf("score = %v, want 2 (20%% floor)", score)
		}
	})

	t.Run("empty answer gives zero", func(t *testing.T) {
		score, _, _ := keywordOverlapScore("   ", reference, 10)
		if score != 0 {
			t.Errorf("score = %v, want 0 for blank answer", score)
		}
	})

	t.Run("partial overlap lands inside the band", func(t *testing.T) {
		score, matched, total := keywordOverlapScore("routers forward things", reference, 10)
		if matched == 0 || matched == total {
			t.Fatalf("expected partial match, got %d/%d", matched, total)
		}
		if score <= 2 || score >= 10 {
			t.Errorf("score = %v, want strictly between 2 and 10", score)
		}
	})
}

func TestStemWord(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"forwarding", "forward"},
		{"packets", "packet"},
		{"copies", "cop"},
		{"was", "was"},
		{"go", "go"},
	}
	for _, tt := range tests {
		if got := stemWord(tt.input); got != tt.want {
			t.Errorf("stemWord(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
