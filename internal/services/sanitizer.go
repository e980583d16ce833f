package services

import (
	"context"
	"regexp"
	"strings"

	"github.com/dx-junkyard/plura/internal/platform/logger"
	"github.com/dx-junkyard/plura/internal/platform/openai"
)

// Sanitizer removes personally identifying tokens from raw entry text
// while keeping enough context for a downstream reader. Two passes: a
// deterministic regex pass that always runs, then an LLM generalization
// pass for names and employer/project proper nouns the patterns miss.
// The regex result stands alone when the gateway is down.
type Sanitizer interface {
	Sanitize(ctx context.Context, text string) (*SanitizeResult, error)
	// CountPII reports how many identifying patterns remain in text.
	CountPII(text string) int
}

type SanitizeResult struct {
	Text           string `json:"text"`
	RemovedEmails  int    `json:"removed_emails"`
	RemovedPhones  int    `json:"removed_phones"`
	RemovedNames   int    `json:"removed_names"`
	LLMGeneralized bool   `json:"llm_generalized"`
}

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	// Domestic numbers like 03-1234-5678 / 09012345678.
	jpPhonePattern   = regexp.MustCompile(`0\d{1,4}-?\d{1,4}-?\d{3,4}`)
	intlPhonePattern = regexp.MustCompile(`\+\d{1,3}[- ]?\d{1,4}[- ]?\d{3,4}[- ]?\d{3,4}`)
	// A short run of name characters followed by an honorific.
	honorificPattern = regexp.MustCompile(`[\p{Han}\p{Hiragana}\p{Katakana}ーA-Za-z]{1,10}(さん|様|氏|君|部長|課長|社長|先生)`)
)

type sanitizer struct {
	log *logger.Logger
	ai  openai.Client
}

func NewSanitizer(baseLog *logger.Logger, ai openai.Client) Sanitizer {
	return &sanitizer{
		log: baseLog.With("service", "Sanitizer"),
		ai:  ai,
	}
}

func (s *sanitizer) CountPII(text string) int {
	n := len(emailPattern.FindAllString(text, -1))
	n += len(intlPhonePattern.FindAllString(text, -1))
	n += len(jpPhonePattern.FindAllString(text, -1))
	n += len(honorificPattern.FindAllString(text, -1))
	return n
}

func scrub(text string) (string, *SanitizeResult) {
	res := &SanitizeResult{}

	out := emailPattern.ReplaceAllStringFunc(text, func(string) string {
		res.RemovedEmails++
		return "[メールアドレス]"
	})
	// International first so the +81 prefix is not half-eaten by the
	// domestic pattern.
	out = intlPhonePattern.ReplaceAllStringFunc(out, func(string) string {
		res.RemovedPhones++
		return "[電話番号]"
	})
	out = jpPhonePattern.ReplaceAllStringFunc(out, func(string) string {
		res.RemovedPhones++
		return "[電話番号]"
	})
	out = honorificPattern.ReplaceAllStringFunc(out, func(string) string {
		res.RemovedNames++
		return "[名前]"
	})
	return out, res
}

const sanitizeSystemPrompt = `次のテキストから個人・組織を特定できる情報を取り除いてください。
- 人名は役割 (同僚、上司、友人など) に置き換える
- 会社名・プロジェクト名・商品名は一般的な言い方に置き換える
- 状況が第三者に伝わるだけの文脈は必ず残す
- それ以外の内容は変えない
書き換えたテキストのみを返してください。`

func (s *sanitizer) Sanitize(ctx context.Context, text string) (*SanitizeResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &InvalidInputError{Reason: "empty text"}
	}

	scrubbed, res := scrub(text)
	res.Text = scrubbed

	generalized, err := s.ai.WithTier(openai.TierBalanced).GenerateText(ctx, sanitizeSystemPrompt, scrubbed)
	if err != nil {
		s.log.Warn("generalization pass failed, keeping regex result", "error", err)
		return res, nil
	}
	generalized = strings.TrimSpace(generalized)
	if generalized == "" || !lengthPlausible(scrubbed, generalized) {
		s.log.Warn("generalization output rejected by length heuristic",
			"in_len", len([]rune(scrubbed)), "out_len", len([]rune(generalized)))
		return res, nil
	}

	res.Text = generalized
	res.LLMGeneralized = true
	return res, nil
}

// lengthPlausible is the ~50%..~150% regression heuristic on rune length.
func lengthPlausible(in, out string) bool {
	il := len([]rune(in))
	ol := len([]rune(out))
	if il == 0 {
		return false
	}
	ratio := float64(ol) / float64(il)
	return ratio >= 0.5 && ratio <= 1.5
}
