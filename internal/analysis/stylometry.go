package analysis

import (
	"math"
	"strings"
	"unicode"
)

// Metric names, in canonical order. Threshold maps are keyed by exactly this
// set; consumers diff rewrites against it.
const (
	MetricAvgSentenceLength    = "avg_sentence_length"
	MetricSentenceLengthStdDev = "sentence_length_stddev"
	MetricVocabularyDiversity  = "vocabulary_diversity"
	MetricToneFormal           = "tone_formal"
	MetricToneCasual           = "tone_casual"
	MetricToneTechnical        = "tone_technical"
	MetricToneCreative         = "tone_creative"
	MetricPassiveVoiceRatio    = "passive_voice_ratio"
	MetricComplexSentenceRatio = "complex_sentence_ratio"
	MetricPunctPeriod          = "punct_period"
	MetricPunctComma           = "punct_comma"
	MetricPunctSemicolon       = "punct_semicolon"
	MetricPunctExclaim         = "punct_exclaim"
)

func MetricNames() []string {
	return []string{
		MetricAvgSentenceLength,
		MetricSentenceLengthStdDev,
		MetricVocabularyDiversity,
		MetricToneFormal,
		MetricToneCasual,
		MetricToneTechnical,
		MetricToneCreative,
		MetricPassiveVoiceRatio,
		MetricComplexSentenceRatio,
		MetricPunctPeriod,
		MetricPunctComma,
		MetricPunctSemicolon,
		MetricPunctExclaim,
	}
}

// Metrics is the deterministic numeric feature vector extracted from the
// concatenated corpus text. Insufficient marks the fixed sentinel returned
// for corpora below the minimum token count; all values are then zero.
type Metrics struct {
	Insufficient bool `json:"insufficient,omitempty"`

	AvgSentenceLength    float64 `json:"avg_sentence_length"`
	SentenceLengthStdDev float64 `json:"sentence_length_stddev"`
	VocabularyDiversity  float64 `json:"vocabulary_diversity"`
	ToneFormal           float64 `json:"tone_formal"`
	ToneCasual           float64 `json:"tone_casual"`
	ToneTechnical        float64 `json:"tone_technical"`
	ToneCreative         float64 `json:"tone_creative"`
	PassiveVoiceRatio    float64 `json:"passive_voice_ratio"`
	ComplexSentenceRatio float64 `json:"complex_sentence_ratio"`
	PunctPeriod          float64 `json:"punct_period"`
	PunctComma           float64 `json:"punct_comma"`
	PunctSemicolon       float64 `json:"punct_semicolon"`
	PunctExclaim         float64 `json:"punct_exclaim"`
}

// Values returns the vector as a map keyed by MetricNames.
func (m Metrics) Values() map[string]float64 {
	return map[string]float64{
		MetricAvgSentenceLength:    m.AvgSentenceLength,
		MetricSentenceLengthStdDev: m.SentenceLengthStdDev,
		MetricVocabularyDiversity:  m.VocabularyDiversity,
		MetricToneFormal:           m.ToneFormal,
		MetricToneCasual:           m.ToneCasual,
		MetricToneTechnical:        m.ToneTechnical,
		MetricToneCreative:         m.ToneCreative,
		MetricPassiveVoiceRatio:    m.PassiveVoiceRatio,
		MetricComplexSentenceRatio: m.ComplexSentenceRatio,
		MetricPunctPeriod:          m.PunctPeriod,
		MetricPunctComma:           m.PunctComma,
		MetricPunctSemicolon:       m.PunctSemicolon,
		MetricPunctExclaim:         m.PunctExclaim,
	}
}

var beForms = map[string]struct{}{
	"am": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "being": {}, "gets": {}, "got": {},
}

var irregularParticiples = map[string]struct{}{
	"done": {}, "made": {}, "seen": {}, "known": {}, "given": {},
	"taken": {}, "written": {}, "shown": {}, "found": {}, "held": {},
	"kept": {}, "left": {}, "lost": {}, "meant": {}, "put": {},
	"read": {}, "said": {}, "sent": {}, "set": {}, "told": {},
	"thought": {}, "understood": {}, "built": {}, "brought": {}, "chosen": {},
}

var subordinators = map[string]struct{}{
	"although": {}, "because": {}, "since": {}, "unless": {}, "whereas": {},
	"while": {}, "though": {}, "whenever": {}, "wherever": {}, "which": {},
	"whose": {}, "whom": {}, "if": {}, "until": {}, "after": {}, "before": {},
}

var toneLexicons = map[string]map[string]struct{}{
	MetricToneFormal: wordSet("moreover furthermore consequently therefore regarding accordingly " +
		"notwithstanding thus hence nevertheless whom shall ought pursuant herein thereby"),
	MetricToneCasual: wordSet("gonna wanna kinda sorta stuff okay ok yeah yep nope pretty really " +
		"just like totally guys cool awesome basically honestly anyway"),
	MetricToneTechnical: wordSet("system data function algorithm process interface module server " +
		"database protocol component implementation parameter configuration runtime latency " +
		"throughput pipeline schema query framework"),
	MetricToneCreative: wordSet("shimmering whisper whispered dream dreams crimson velvet echo " +
		"echoes dance danced bloom blossom moonlight storm heart silence golden amber twilight " +
		"fragile luminous"),
}

// toneSaturation is the lexicon hit rate (per 100 tokens) at which a tone
// weight reaches 1.0. Axes are estimated independently and need not sum to 1.
const toneSaturation = 3.0

func wordSet(words string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(words) {
		set[w] = struct{}{}
	}
	return set
}

// Extract computes the stylometric feature vector over the concatenated
// corpus. Pure and deterministic: equal input yields bit-identical output.
// Corpora under minCorpusTokens produce the insufficient-data sentinel, not
// an error; empty text yields zeroes throughout.
func Extract(text string, minCorpusTokens int) Metrics {
	sentences := splitSentences(text)

	var tokens []string
	sentenceLengths := make([]int, 0, len(sentences))
	for _, s := range sentences {
		st := tokenize(s)
		sentenceLengths = append(sentenceLengths, len(st))
		tokens = append(tokens, st...)
	}

	if len(tokens) < minCorpusTokens {
		return Metrics{Insufficient: true}
	}

	m := Metrics{}
	m.AvgSentenceLength, m.SentenceLengthStdDev = sentenceLengthStats(sentenceLengths)
	m.VocabularyDiversity = vocabularyDiversity(tokens)
	m.ToneFormal = toneWeight(tokens, toneLexicons[MetricToneFormal])
	m.ToneCasual = toneWeight(tokens, toneLexicons[MetricToneCasual])
	m.ToneTechnical = toneWeight(tokens, toneLexicons[MetricToneTechnical])
	m.ToneCreative = toneWeight(tokens, toneLexicons[MetricToneCreative])
	m.PassiveVoiceRatio = sentenceRatio(sentences, isPassive)
	m.ComplexSentenceRatio = sentenceRatio(sentences, isComplex)
	m.PunctPeriod, m.PunctComma, m.PunctSemicolon, m.PunctExclaim = punctuationDistribution(text)
	return m
}

// splitSentences splits on runs of terminal punctuation. Fragments without a
// terminator (trailing text) count as one sentence.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	flush := func() {
		s := strings.TrimSpace(b.String())
		b.Reset()
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			flush()
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return sentences
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(strings.ToLower(f), "'")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func sentenceLengthStats(lengths []int) (avg, stddev float64) {
	n := 0
	sum := 0
	for _, l := range lengths {
		if l == 0 {
			continue
		}
		n++
		sum += l
	}
	if n == 0 {
		return 0, 0
	}
	avg = float64(sum) / float64(n)
	var sq float64
	for _, l := range lengths {
		if l == 0 {
			continue
		}
		d := float64(l) - avg
		sq += d * d
	}
	stddev = math.Sqrt(sq / float64(n))
	return avg, stddev
}

func vocabularyDiversity(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	unique := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		unique[t] = struct{}{}
	}
	return clamp01(float64(len(unique)) / float64(len(tokens)))
}

func toneWeight(tokens []string, lexicon map[string]struct{}) float64 {
	if len(tokens) == 0 {
		return 0
	}
	hits := 0
	for _, t := range tokens {
		if _, ok := lexicon[t]; ok {
			hits++
		}
	}
	per100 := float64(hits) / float64(len(tokens)) * 100
	return clamp01(per100 / toneSaturation)
}

func sentenceRatio(sentences []string, pred func([]string) bool) float64 {
	n := 0
	hits := 0
	for _, s := range sentences {
		tokens := tokenize(s)
		if len(tokens) == 0 {
			continue
		}
		n++
		if pred(tokens) {
			hits++
		}
	}
	if n == 0 {
		return 0
	}
	return clamp01(float64(hits) / float64(n))
}

// isPassive flags a sentence containing a be-form followed within two tokens
// by a past participle. A heuristic, but a deterministic one.
func isPassive(tokens []string) bool {
	for i, t := range tokens {
		if _, ok := beForms[t]; !ok {
			continue
		}
		for j := i + 1; j < len(tokens) && j <= i+2; j++ {
			if isParticiple(tokens[j]) {
				return true
			}
		}
	}
	return false
}

func isParticiple(token string) bool {
	if _, ok := irregularParticiples[token]; ok {
		return true
	}
	return len(token) > 4 && (strings.HasSuffix(token, "ed") || strings.HasSuffix(token, "en"))
}

// isComplex flags sentences with a subordinating conjunction or beyond 20
// tokens.
func isComplex(tokens []string) bool {
	if len(tokens) > 20 {
		return true
	}
	for _, t := range tokens {
		if _, ok := subordinators[t]; ok {
			return true
		}
	}
	return false
}

// punctuationDistribution returns each mark's share among the four tracked
// marks, zero for all when none occur.
func punctuationDistribution(text string) (period, comma, semicolon, exclaim float64) {
	var p, c, s, e int
	for _, r := range text {
		switch r {
		case '.':
			p++
		case ',':
			c++
		case ';':
			s++
		case '!':
			e++
		}
	}
	total := p + c + s + e
	if total == 0 {
		return 0, 0, 0, 0
	}
	return float64(p) / float64(total), float64(c) / float64(total),
		float64(s) / float64(total), float64(e) / float64(total)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
