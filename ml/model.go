package ml

// Classifier is the only capability prediction needs from a trained
// model: map a schema-aligned vector to P(label == 1).
// Implementations must not mutate state while scoring.
type Classifier interface {
	PredictProba(x []float64) float64
}

// InferenceContext bundles a classifier with the schema it was trained on.
// It is built once at startup and shared read-only by every prediction.
type InferenceContext struct {
	classifier Classifier
	schema     FeatureSchema
}

// NewInferenceContext pairs a classifier with its schema. The schema is
// copied so later changes to the caller's slice cannot leak in.
func NewInferenceContext(classifier Classifier, schema FeatureSchema) (*InferenceContext, error) {
	if classifier == nil {
		return nil, ErrModelNotTrained
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if sized, ok := classifier.(interface{ FeatureCount() int }); ok && sized.FeatureCount() != len(schema) {
		return nil, ErrSchemaMismatch
	}
	return &InferenceContext{
		classifier: classifier,
		schema:     append(FeatureSchema(nil), schema...),
	}, nil
}

// Schema returns a copy of the feature schema.
func (c *InferenceContext) Schema() FeatureSchema {
	return append(FeatureSchema(nil), c.schema...)
}

// TreeCount is the forest size, or 0 for classifiers that are not forests.
func (c *InferenceContext) TreeCount() int {
	if rf, ok := c.classifier.(*RandomForest); ok {
		return len(rf.Trees)
	}
	return 0
}

// FeatureCount reports how many inputs the forest was trained with.
func (rf *RandomForest) FeatureCount() int {
	return rf.NumFeatures
}
