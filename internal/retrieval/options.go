package retrieval

const (
	defaultSimilarityThreshold = 0.6
	defaultTopK                = 5
	defaultMaxRewrites         = 2
	defaultDecomposeMinWords   = 12
	defaultMinRelevancy        = 0.5
	defaultRerankTarget        = 5
	defaultExtractEvery        = 6
	defaultTemperature         = 0.3
	defaultMaxTokens           = 1024
	defaultMaxResponseLength   = 4000
	defaultValidationWorkers   = 5
)

// Options tunes the pipeline. Zero values take defaults; a negative
// MaxRewrites or ExtractEvery disables that stage. MinRelevancy and
// Temperature are pointers because zero is a meaningful setting for both;
// nil takes the default.
type Options struct {
	SimilarityThreshold float64
	TopK                int
	MaxRewrites         int
	DecomposeMinWords   int
	MinRelevancy        *float64
	RerankTarget        int
	ExtractEvery        int
	Temperature         *float64
	MaxTokens           int
	MaxResponseLength   int
	ValidationWorkers   int
	Keywords            []string
}

func (o *Options) applyDefaults() {
	if o.SimilarityThreshold <= 0 {
		o.SimilarityThreshold = defaultSimilarityThreshold
	}
	if o.TopK <= 0 {
		o.TopK = defaultTopK
	}
	if o.MaxRewrites == 0 {
		o.MaxRewrites = defaultMaxRewrites
	}
	if o.MaxRewrites < 0 {
		o.MaxRewrites = 0
	}
	if o.DecomposeMinWords <= 0 {
		o.DecomposeMinWords = defaultDecomposeMinWords
	}
	if o.MinRelevancy == nil {
		o.MinRelevancy = Float(defaultMinRelevancy)
	}
	if o.RerankTarget <= 0 {
		o.RerankTarget = defaultRerankTarget
	}
	if o.ExtractEvery == 0 {
		o.ExtractEvery = defaultExtractEvery
	}
	if o.Temperature == nil {
		o.Temperature = Float(defaultTemperature)
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = defaultMaxTokens
	}
	if o.MaxResponseLength <= 0 {
		o.MaxResponseLength = defaultMaxResponseLength
	}
	if o.ValidationWorkers <= 0 {
		o.ValidationWorkers = defaultValidationWorkers
	}
	if len(o.Keywords) == 0 {
		o.Keywords = DefaultKeywords
	}
}

// Float returns a pointer to v, for the optional Options fields.
func Float(v float64) *float64 {
	return &v
}
