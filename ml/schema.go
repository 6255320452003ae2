package ml

import "fmt"

// FeatureSchema is the ordered list of feature names a classifier was
// trained against. Every inference vector is projected into this order.
type FeatureSchema []string

// Project aligns features to the schema. Names the features do not carry
// are filled with zero; features the schema does not list are dropped.
func (s FeatureSchema) Project(features URLFeatures) []float64 {
	x := make([]float64, len(s))
	for i, name := range s {
		if v, ok := features.Value(name); ok {
			x[i] = v
		}
	}
	return x
}

// Restore is the inverse of Project for the names both sides know about.
func (s FeatureSchema) Restore(x []float64) URLFeatures {
	var features URLFeatures
	for i, name := range s {
		if i >= len(x) {
			break
		}
		features.set(name, x[i])
	}
	return features
}

// schemaFromRows builds the first-seen union of feature names across rows.
// URLFeatures always emits the full fixed set, so any non-empty input
// yields FeatureNames() in emission order.
func schemaFromRows(rows []URLFeatures) FeatureSchema {
	if len(rows) == 0 {
		return nil
	}
	return FeatureSchema(FeatureNames())
}

// Validate rejects empty schemas and duplicate names.
func (s FeatureSchema) Validate() error {
	if len(s) == 0 {
		return ErrEmptySchema
	}
	seen := make(map[string]bool, len(s))
	for _, name := range s {
		if seen[name] {
			return fmt.Errorf("duplicate feature %q in schema", name)
		}
		seen[name] = true
	}
	return nil
}
