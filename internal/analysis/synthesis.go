package analysis

import (
	"fmt"
	"strings"
	"vfd/internal/models"
)

// TolerancePolicy controls how target thresholds are derived from measured
// metrics. For avg_sentence_length the band half-width is
// max(MinSentenceWidth, Factor × measured sentence-length stddev); every
// other metric uses Factor × its fixed base width. The policy is stable for
// equal inputs — downstream consumers diff against the resulting bands.
type TolerancePolicy struct {
	Factor           float64
	MinSentenceWidth float64
}

func DefaultTolerancePolicy(factor float64) TolerancePolicy {
	if factor <= 0 {
		factor = 1.5
	}
	return TolerancePolicy{Factor: factor, MinSentenceWidth: 2.0}
}

// baseWidths are per-metric half-widths at Factor 1.0 for metrics whose
// variance we do not measure directly.
var baseWidths = map[string]float64{
	MetricSentenceLengthStdDev: 1.5,
	MetricVocabularyDiversity:  0.08,
	MetricToneFormal:           0.12,
	MetricToneCasual:           0.12,
	MetricToneTechnical:        0.12,
	MetricToneCreative:         0.12,
	MetricPassiveVoiceRatio:    0.07,
	MetricComplexSentenceRatio: 0.10,
	MetricPunctPeriod:          0.06,
	MetricPunctComma:           0.06,
	MetricPunctSemicolon:       0.03,
	MetricPunctExclaim:         0.03,
}

// ratioMetrics clamp their bands into [0,1].
var ratioMetrics = map[string]struct{}{
	MetricVocabularyDiversity:  {},
	MetricToneFormal:           {},
	MetricToneCasual:           {},
	MetricToneTechnical:        {},
	MetricToneCreative:         {},
	MetricPassiveVoiceRatio:    {},
	MetricComplexSentenceRatio: {},
	MetricPunctPeriod:          {},
	MetricPunctComma:           {},
	MetricPunctSemicolon:       {},
	MetricPunctExclaim:         {},
}

type ruleKind uint8

const (
	kindTrait ruleKind = iota
	kindPitfall
)

type ruleOp uint8

const (
	opBelow ruleOp = iota
	opAbove
)

type bandRule struct {
	metric string
	op     ruleOp
	bound  float64
	kind   ruleKind
	text   string
}

// bandRules are the fixed reference bands traits and pitfalls derive from.
// Evaluated in order; output lists preserve this order.
var bandRules = []bandRule{
	{MetricAvgSentenceLength, opBelow, 10, kindTrait, "frequent short declarative sentences"},
	{MetricAvgSentenceLength, opAbove, 22, kindTrait, "long, elaborate sentences"},
	{MetricAvgSentenceLength, opAbove, 28, kindPitfall, "run-on sentence risk"},
	{MetricVocabularyDiversity, opAbove, 0.7, kindTrait, "wide vocabulary range"},
	{MetricVocabularyDiversity, opBelow, 0.4, kindPitfall, "limited vocabulary range"},
	{MetricPassiveVoiceRatio, opBelow, 0.1, kindTrait, "strong active voice"},
	{MetricPassiveVoiceRatio, opAbove, 0.3, kindPitfall, "passive voice overuse"},
	{MetricComplexSentenceRatio, opAbove, 0.6, kindPitfall, "dense subordinate clauses"},
	{MetricToneFormal, opAbove, 0.6, kindTrait, "consistently formal register"},
	{MetricToneCasual, opAbove, 0.6, kindTrait, "relaxed conversational register"},
	{MetricToneTechnical, opAbove, 0.6, kindTrait, "precise technical vocabulary"},
	{MetricToneCreative, opAbove, 0.6, kindTrait, "vivid figurative language"},
	{MetricPunctSemicolon, opAbove, 0.08, kindTrait, "deliberate semicolon use"},
	{MetricPunctExclaim, opAbove, 0.15, kindPitfall, "exclamation overuse"},
}

// Semantic consistency bands.
const (
	consistencyTightBound     = 0.8
	consistencyScatteredBound = 0.45
)

const insufficientPitfall = "evidence base too small for reliable analysis"

// TraitSynthesis bundles the derived output of one computation cycle.
type TraitSynthesis struct {
	SignatureTraits  []string
	Pitfalls         []string
	TargetThresholds map[string]models.Threshold
	Summary          string
}

// Synthesize converts measured metrics and the semantic signature into
// traits, pitfalls and per-metric target thresholds. Pure: equal inputs
// yield equal outputs, and the threshold key set is exactly MetricNames.
func Synthesize(m Metrics, sig models.SemanticSignature, pol TolerancePolicy) TraitSynthesis {
	if m.Insufficient {
		return TraitSynthesis{
			SignatureTraits:  []string{},
			Pitfalls:         []string{insufficientPitfall},
			TargetThresholds: defaultThresholds(),
			Summary:          "Not enough writing evidence yet for a stable voice profile.",
		}
	}

	values := m.Values()
	traits := make([]string, 0, 4)
	pitfalls := make([]string, 0, 4)

	for _, r := range bandRules {
		v := values[r.metric]
		hit := (r.op == opBelow && v < r.bound) || (r.op == opAbove && v > r.bound)
		if !hit {
			continue
		}
		if r.kind == kindTrait {
			traits = append(traits, r.text)
		} else {
			pitfalls = append(pitfalls, r.text)
		}
	}

	if !sig.Fallback {
		if sig.Consistency >= consistencyTightBound {
			traits = append(traits, "tight thematic focus")
		} else if sig.Consistency < consistencyScatteredBound {
			pitfalls = append(pitfalls, "scattered topical range")
		}
	}

	return TraitSynthesis{
		SignatureTraits:  traits,
		Pitfalls:         pitfalls,
		TargetThresholds: thresholds(m, values, pol),
		Summary:          summarize(traits, pitfalls),
	}
}

func thresholds(m Metrics, values map[string]float64, pol TolerancePolicy) map[string]models.Threshold {
	out := make(map[string]models.Threshold, len(baseWidths)+1)

	width := pol.Factor * m.SentenceLengthStdDev
	if width < pol.MinSentenceWidth {
		width = pol.MinSentenceWidth
	}
	out[MetricAvgSentenceLength] = models.Threshold{
		Min: max(0, m.AvgSentenceLength-width),
		Max: m.AvgSentenceLength + width,
	}

	for metric, base := range baseWidths {
		v := values[metric]
		w := pol.Factor * base
		lo, hi := v-w, v+w
		if _, ratio := ratioMetrics[metric]; ratio {
			lo, hi = clamp01(lo), clamp01(hi)
		} else if lo < 0 {
			lo = 0
		}
		out[metric] = models.Threshold{Min: lo, Max: hi}
	}
	return out
}

// defaultThresholds are maximally permissive bands used for the
// insufficient-data sentinel, still keyed by the full metric set.
func defaultThresholds() map[string]models.Threshold {
	out := make(map[string]models.Threshold, len(baseWidths)+1)
	for _, name := range MetricNames() {
		if _, ratio := ratioMetrics[name]; ratio {
			out[name] = models.Threshold{Min: 0, Max: 1}
		} else {
			out[name] = models.Threshold{Min: 0, Max: 120}
		}
	}
	return out
}

func summarize(traits, pitfalls []string) string {
	var b strings.Builder
	if len(traits) > 0 {
		fmt.Fprintf(&b, "Voice profile: %s.", strings.Join(top(traits, 3), "; "))
	} else {
		b.WriteString("Voice profile: no dominant traits detected.")
	}
	if len(pitfalls) > 0 {
		fmt.Fprintf(&b, " Watch for: %s.", strings.Join(top(pitfalls, 3), "; "))
	}
	return b.String()
}

func top(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
