package output

import "encoding/json"

// Pipeline combines field selection, compact abbreviation, and token-budget
// truncation into a single token-efficient output processor.
type Pipeline struct {
	Selector  FieldSelector
	Compact   *CompactConfig
	MaxTokens int // 0 means unbounded
	estimator TokenEstimator
}

// NewPipeline builds a Pipeline with the default (standard) field selector
// and no compacting or truncation.
func NewPipeline() Pipeline {
	return Pipeline{Selector: DefaultFieldSelector(), estimator: NewTokenEstimator()}
}

// WithFields sets the field selector.
func (p Pipeline) WithFields(s FieldSelector) Pipeline {
	p.Selector = s
	return p
}

// WithCompact enables compact output with the given config.
func (p Pipeline) WithCompact(c CompactConfig) Pipeline {
	p.Compact = &c
	return p
}

// WithMaxTokens sets the token budget truncation kicks in at.
func (p Pipeline) WithMaxTokens(max int) Pipeline {
	p.MaxTokens = max
	return p
}

// Processed is the result of running a value through the pipeline.
type Processed struct {
	Value             any
	OutputString      string
	TokenCount        int
	Truncated         bool
	ContinuationToken string
	RemainingCount    int
}

// Process runs value (typically a map[string]any decoded from a scan or
// decision result) through field selection, compacting, and truncation,
// then serializes it.
func (p Pipeline) Process(value any) Processed {
	result := p.Selector.FilterValue(value)

	if p.Compact != nil {
		result = p.Compact.CompactValue(result)
	}

	estimator := p.estimator
	if estimator == (TokenEstimator{}) {
		estimator = NewTokenEstimator()
	}

	trunc := TruncationResult{Value: result}
	if p.MaxTokens > 0 {
		trunc = TruncateToTokens(result, p.MaxTokens, estimator)
	}

	var outputString string
	if data, err := json.Marshal(trunc.Value); err == nil {
		outputString = string(data)
	}

	return Processed{
		Value:             trunc.Value,
		OutputString:      outputString,
		TokenCount:        estimator.EstimateTokens(outputString),
		Truncated:         trunc.Truncated,
		ContinuationToken: trunc.ContinuationToken,
		RemainingCount:    trunc.RemainingCount,
	}
}
