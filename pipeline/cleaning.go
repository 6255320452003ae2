package pipeline

import (
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Record is one raw dataset row on its way to the cleaned table.
type Record struct {
	Line     int
	URL      string
	RawLabel string
	Label    int
}

// CleaningRule normalizes a record in place. Returning ErrDropRecord
// removes the record without counting it as an issue.
type CleaningRule interface {
	Apply(*Record) error
	Name() string
}

var ErrDropRecord = errors.New("record dropped")

// QualityIssue describes a rejected record.
type QualityIssue struct {
	Rule    string `json:"rule"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// PreparationStats summarizes one cleaning pass.
type PreparationStats struct {
	Total      int64            `json:"total"`
	Kept       int64            `json:"kept"`
	Duplicates int64            `json:"duplicates"`
	Malformed  int64            `json:"malformed"`
	Rejected   int64            `json:"rejected"`
	Phishing   int64            `json:"phishing"`
	Issues     map[string]int64 `json:"issues"`
	LastClean  time.Time        `json:"last_clean"`
}

// DataCleaner runs every record through its rules in order.
type DataCleaner struct {
	rules  []CleaningRule
	logger *zap.Logger

	issues []QualityIssue

	stats     PreparationStats
	statsLock sync.RWMutex
}

// NewDataCleaner returns a cleaner with the default rule chain: label
// normalization, scheme normalization, then dedup by url.
func NewDataCleaner(logger *zap.Logger) *DataCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	cleaner := &DataCleaner{
		logger: logger,
		stats:  PreparationStats{Issues: make(map[string]int64)},
	}
	cleaner.AddRule(NewLabelNormalizationRule())
	cleaner.AddRule(NewURLSchemeRule())
	cleaner.AddRule(NewDuplicateURLRule())
	return cleaner
}

func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
	dc.logger.Debug("added cleaning rule", zap.String("rule", rule.Name()))
}

// Clean returns the surviving records in input order.
func (dc *DataCleaner) Clean(records []*Record) []*Record {
	dc.statsLock.Lock()
	defer dc.statsLock.Unlock()

	cleaned := make([]*Record, 0, len(records))
	for _, record := range records {
		dc.stats.Total++
		if dc.apply(record) {
			dc.stats.Kept++
			if record.Label == 1 {
				dc.stats.Phishing++
			}
			cleaned = append(cleaned, record)
		}
	}
	dc.stats.LastClean = time.Now()
	return cleaned
}

func (dc *DataCleaner) apply(record *Record) bool {
	for _, rule := range dc.rules {
		err := rule.Apply(record)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrDropRecord) {
			dc.stats.Duplicates++
			return false
		}
		dc.stats.Rejected++
		dc.stats.Issues[rule.Name()]++
		dc.issues = append(dc.issues, QualityIssue{Rule: rule.Name(), Line: record.Line, Message: err.Error()})
		return false
	}
	return true
}

func (dc *DataCleaner) recordMalformed() {
	dc.statsLock.Lock()
	dc.stats.Malformed++
	dc.statsLock.Unlock()
}

func (dc *DataCleaner) GetStats() PreparationStats {
	dc.statsLock.RLock()
	defer dc.statsLock.RUnlock()

	stats := dc.stats
	stats.Issues = make(map[string]int64, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

// GetIssues returns up to limit of the most recent issues.
func (dc *DataCleaner) GetIssues(limit int) []QualityIssue {
	dc.statsLock.RLock()
	defer dc.statsLock.RUnlock()

	if limit <= 0 || limit > len(dc.issues) {
		limit = len(dc.issues)
	}
	issues := make([]QualityIssue, limit)
	copy(issues, dc.issues[len(dc.issues)-limit:])
	return issues
}

// ============ rules ============

// LabelNormalizationRule maps any of the phishing markers to 1 and
// everything else to 0.
type LabelNormalizationRule struct {
	PhishingMarkers map[string]bool
}

func NewLabelNormalizationRule() *LabelNormalizationRule {
	return &LabelNormalizationRule{
		PhishingMarkers: map[string]bool{
			"bad":       true,
			"phish":     true,
			"phishing":  true,
			"malicious": true,
			"1":         true,
		},
	}
}

func (r *LabelNormalizationRule) Name() string {
	return "label_normalization"
}

func (r *LabelNormalizationRule) Apply(record *Record) error {
	if r.PhishingMarkers[strings.ToLower(strings.TrimSpace(record.RawLabel))] {
		record.Label = 1
	} else {
		record.Label = 0
	}
	return nil
}

// URLSchemeRule trims the url and prefixes http:// when it does not
// already start with "http".
type URLSchemeRule struct {
	DefaultScheme string
}

func NewURLSchemeRule() *URLSchemeRule {
	return &URLSchemeRule{DefaultScheme: "http://"}
}

func (r *URLSchemeRule) Name() string {
	return "url_scheme"
}

func (r *URLSchemeRule) Apply(record *Record) error {
	u := strings.TrimSpace(record.URL)
	if !strings.HasPrefix(u, "http") {
		u = r.DefaultScheme + u
	}
	record.URL = u
	return nil
}

// DuplicateURLRule keeps the first record for each normalized url.
type DuplicateURLRule struct {
	seen map[string]bool
}

func NewDuplicateURLRule() *DuplicateURLRule {
	return &DuplicateURLRule{seen: make(map[string]bool)}
}

func (r *DuplicateURLRule) Name() string {
	return "duplicate_url"
}

func (r *DuplicateURLRule) Apply(record *Record) error {
	if r.seen[record.URL] {
		return ErrDropRecord
	}
	r.seen[record.URL] = true
	return nil
}
