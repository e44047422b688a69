package processing

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dyike/AnalystCouncil/consts"
)

// StanceProcessor reads the investment stance out of free-form analysis text.
type StanceProcessor struct {
	declared     *regexp.Regexp
	buyPatterns  []*regexp.Regexp
	sellPatterns []*regexp.Regexp
	holdPatterns []*regexp.Regexp
}

// Signal is the stance extracted from one analysis.
type Signal struct {
	Stance     string  `json:"stance"`
	Declared   bool    `json:"declared"`   // taken from an explicit opinion line
	Confidence float64 `json:"confidence"` // 0.0 to 1.0
	Reasoning  string  `json:"reasoning,omitempty"`
}

func NewStanceProcessor() *StanceProcessor {
	return &StanceProcessor{
		declared: regexp.MustCompile(`(?im)(?:investment opinion|final opinion|opinion|recommendation|verdict)\**\s*[:：]\s*\**\s*(?:a\s+)?((?:cautious|moderate|strong)\s+)?(buy|sell|hold)\b`),
		buyPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(buy|accumulate|long|bullish|upside|undervalued)\b`),
			regexp.MustCompile(`(?i)\b(strong buy|margin of safety|growth potential|opportunity)\b`),
		},
		sellPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(sell|short|bearish|downside|overvalued|avoid)\b`),
			regexp.MustCompile(`(?i)\b(strong sell|overbought|deteriorat\w*|breakdown)\b`),
		},
		holdPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(hold|neutral|wait|sideways|fair value)\b`),
			regexp.MustCompile(`(?i)\b(no action|stay put|keep position|watch list)\b`),
		},
	}
}

var defaultProcessor = NewStanceProcessor()

// Stance returns the stance of text using the shared processor.
func Stance(text string) string {
	return defaultProcessor.Extract(text).Stance
}

// Extract prefers an explicit opinion line and falls back to keyword scoring.
func (sp *StanceProcessor) Extract(text string) Signal {
	if strings.TrimSpace(text) == "" {
		return Signal{Stance: consts.StanceUnknown}
	}
	if m := sp.declared.FindStringSubmatch(text); m != nil {
		return Signal{
			Stance:     declaredStance(m[1], m[2]),
			Declared:   true,
			Confidence: 1.0,
			Reasoning:  sp.extractReasoning(text, strings.ToLower(m[2])),
		}
	}

	action, score, total := sp.score(text)
	if total == 0 {
		return Signal{Stance: consts.StanceUnknown}
	}
	confidence := float64(score) / float64(total)
	if confidence < 0.1 {
		confidence = 0.1
	}
	return Signal{
		Stance:     stanceName(action),
		Confidence: confidence,
		Reasoning:  sp.extractReasoning(text, action),
	}
}

func declaredStance(modifier, action string) string {
	modifier = strings.ToLower(strings.TrimSpace(modifier))
	action = strings.ToLower(action)
	if modifier == "strong" {
		switch action {
		case "buy":
			return consts.StanceStrongBuy
		case "sell":
			return consts.StanceStrongSell
		}
	}
	return stanceName(action)
}

func stanceName(action string) string {
	switch action {
	case "buy":
		return consts.StanceBuy
	case "sell":
		return consts.StanceSell
	case "hold":
		return consts.StanceHold
	}
	return consts.StanceUnknown
}

// score counts pattern hits and returns the winning action, its hits and all hits.
func (sp *StanceProcessor) score(text string) (string, int, int) {
	count := func(patterns []*regexp.Regexp) int {
		n := 0
		for _, p := range patterns {
			n += len(p.FindAllString(text, -1))
		}
		return n
	}
	buy, sell, hold := count(sp.buyPatterns), count(sp.sellPatterns), count(sp.holdPatterns)
	total := buy + sell + hold

	switch {
	case buy > sell && buy > hold:
		return "buy", buy, total
	case sell > buy && sell > hold:
		return "sell", sell, total
	}
	return "hold", hold, total
}

// extractReasoning keeps up to three sentences that mention the chosen action.
func (sp *StanceProcessor) extractReasoning(text string, action string) string {
	actionWords := map[string][]string{
		"buy":  {"buy", "bullish", "upside", "growth", "opportunity", "undervalued"},
		"sell": {"sell", "bearish", "downside", "risk", "decline", "overvalued"},
		"hold": {"hold", "neutral", "wait", "fair value", "uncertain"},
	}

	var relevant []string
	for _, sentence := range strings.FieldsFunc(text, func(r rune) bool { return r == '.' || r == '\n' }) {
		sentence = strings.Trim(strings.TrimSpace(sentence), "*#-| ")
		if len(sentence) < 10 {
			continue
		}
		lower := strings.ToLower(sentence)
		for _, word := range actionWords[action] {
			if strings.Contains(lower, word) {
				relevant = append(relevant, sentence)
				break
			}
		}
		if len(relevant) >= 3 {
			break
		}
	}
	return strings.Join(relevant, ". ")
}

// OneLine collapses whitespace and cuts text to at most n runes.
func OneLine(text string, n int) string {
	s := strings.Join(strings.Fields(text), " ")
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}
