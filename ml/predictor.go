package ml

import "strings"

const (
	// DecisionThreshold is fixed; it is not a per-request option.
	DecisionThreshold = 0.5

	severalSubdomains = 2
	veryLongURL       = 100
)

// PredictionResult is the response for one classified URL.
type PredictionResult struct {
	URL                 string   `json:"url"`
	PhishingProbability float64  `json:"phishing_probability"`
	Label               int      `json:"label"`
	Explanation         []string `json:"explanation"`
}

type explanationRule struct {
	applies func(URLFeatures) bool
	message string
}

// explanationRules are evaluated in order over the raw features; each one
// contributes at most one message.
var explanationRules = []explanationRule{
	{func(f URLFeatures) bool { return f.HasIP }, "Uses IP address"},
	{func(f URLFeatures) bool { return f.SuspiciousKeyword }, "Suspicious keyword"},
	{func(f URLFeatures) bool { return f.SubdomainCount >= severalSubdomains }, "Several subdomains"},
	{func(f URLFeatures) bool { return f.URLLength > veryLongURL }, "Very long URL"},
}

// Predict scores url against the loaded artifact. It returns ErrEmptyURL
// for blank input and is safe to call concurrently.
func Predict(ictx *InferenceContext, url string) (*PredictionResult, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, ErrEmptyURL
	}
	if ictx == nil {
		return nil, ErrModelNotTrained
	}

	features := ExtractURLFeatures(url)
	x := ictx.schema.Project(features)
	proba := clampProbability(ictx.classifier.PredictProba(x))

	return &PredictionResult{
		URL:                 url,
		PhishingProbability: proba,
		Label:               decide(proba),
		Explanation:         Explain(features),
	}, nil
}

// Explain returns the messages of every rule that holds, in rule order.
// The result is never nil.
func Explain(features URLFeatures) []string {
	explanation := make([]string, 0, len(explanationRules))
	for _, rule := range explanationRules {
		if rule.applies(features) {
			explanation = append(explanation, rule.message)
		}
	}
	return explanation
}

func decide(proba float64) int {
	if proba >= DecisionThreshold {
		return 1
	}
	return 0
}
