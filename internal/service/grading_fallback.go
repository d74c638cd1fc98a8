package service

import (
	"strings"
	"unicode"
)

// 缩写与全称的等价表，命中即按语义等价给分
// 大小写不敏感，两个方向都查
var abbreviationTable = map[string]string{
	"wan":   "wide area network",
	"lan":   "local area network",
	"cpu":   "central processing unit",
	"ram":   "random access memory",
	"rom":   "read only memory",
	"os":    "operating system",
	"db":    "database",
	"dbms":  "database management system",
	"http":  "hypertext transfer protocol",
	"https": "hypertext transfer protocol secure",
	"html":  "hypertext markup language",
	"url":   "uniform resource locator",
	"ip":    "internet protocol",
	"tcp":   "transmission control protocol",
	"udp":   "user datagram protocol",
	"dns":   "domain name system",
	"api":   "application programming interface",
	"gui":   "graphical user interface",
	"sql":   "structured query language",
	"io":    "input output",
	"ai":    "artificial intelligence",
	"vpn":   "virtual private network",
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "of": true, "to": true, "in": true,
	"on": true, "at": true, "by": true, "for": true, "with": true, "and": true,
	"or": true, "not": true, "it": true, "its": true, "this": true, "that": true,
	"as": true, "from": true, "which": true, "can": true, "will": true,
	"has": true, "have": true, "had": true, "do": true, "does": true,
}

// normalizeAnswer 小写化并去掉标点，空白折叠为单个空格
func normalizeAnswer(s string) string {
	out := make([]rune, 0, len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			space = true
		default:
			if space && len(out) > 0 {
				out = append(out, ' ')
			}
			space = false
			out = append(out, unicode.ToLower(r))
		}
	}
	return string(out)
}

// equivalentAnswers 确定性等价判断：归一后全等、双向包含、缩写表
// minLen 限制参与包含判断的最短长度，防止单字符误判
func equivalentAnswers(student, reference string, minLen int) bool {
	a := normalizeAnswer(student)
	b := normalizeAnswer(reference)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if len(a) >= minLen && len(b) >= minLen {
		if strings.Contains(a, b) || strings.Contains(b, a) {
			return true
		}
	}
	if full, ok := abbreviationTable[a]; ok && full == b {
		return true
	}
	if full, ok := abbreviationTable[b]; ok && full == a {
		return true
	}
	return false
}

// stemWord 极简词干化，只削常见英文后缀，够用于关键词重合统计
func stemWord(w string) string {
	for _, suffix := range []string{"ing", "edly", "ed", "ies", "es", "s", "ly"} {
		if strings.HasSuffix(w, suffix) && len(w)-len(suffix) >= 3 {
			return w[:len(w)-len(suffix)]
		}
	}
	return w
}

// contentWords 提取内容词：归一、去停用词、去短词、词干化后去重
func contentWords(s string) []string {
	fields := strings.Fields(normalizeAnswer(s))
	seen := make(map[string]bool, len(fields))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopWords[f] {
			continue
		}
		w := stemWord(f)
		if seen[w] {
			continue
		}
		seen[w] = true
		words = append(words, w)
	}
	return words
}

// keywordOverlapScore 关键词重合兜底评分
// 命中比例映射到 20%–100% 分数带；非空作答永远不会得 0
func keywordOverlapScore(studentAnswer, referenceText string, points int) (score float64, matched, total int) {
	keywords := contentWords(referenceText)
	total = len(keywords)
	if strings.TrimSpace(studentAnswer) == "" {
		return 0, 0, total
	}

	answerSet := make(map[string]bool)
	for _, w := range contentWords(studentAnswer) {
		answerSet[w] = true
	}
	for _, k := range keywords {
		if answerSet[k] {
			matched++
		}
	}

	ratio := 0.0
	if total > 0 {
		ratio = float64(matched) / float64(total)
	}
	score = float64(points) * (0.2 + 0.8*ratio)
	return score, matched, total
}
