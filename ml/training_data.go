package ml

import (
	"math"
	"math/rand"
)

// LabeledExample is one row of the cleaned dataset. Label 1 means phishing.
type LabeledExample struct {
	URL   string `json:"url"`
	Label int    `json:"label"`
}

type Dataset []LabeledExample

const DefaultTestRatio = 0.3

// BuildTrainingSet extracts features for every example and projects them
// into the schema derived from those rows.
func BuildTrainingSet(dataset Dataset) (features [][]float64, labels []int, schema FeatureSchema, err error) {
	if len(dataset) == 0 {
		return nil, nil, nil, &DatasetError{Reason: "no usable rows"}
	}

	rows := make([]URLFeatures, len(dataset))
	labels = make([]int, len(dataset))
	for i, example := range dataset {
		if example.Label != 0 && example.Label != 1 {
			return nil, nil, nil, &DatasetError{Reason: "label must be 0 or 1 for url " + example.URL}
		}
		rows[i] = ExtractURLFeatures(example.URL)
		labels[i] = example.Label
	}

	schema = schemaFromRows(rows)
	features = make([][]float64, len(rows))
	for i, row := range rows {
		features[i] = schema.Project(row)
	}
	return features, labels, schema, nil
}

// splitDataset shuffles with a fixed seed and holds out ceil(testRatio*n)
// rows, so the same input always yields the same partitions.
func splitDataset(features [][]float64, labels []int, testRatio float64, seed int64) (trainX [][]float64, trainY []int, testX [][]float64, testY []int) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = DefaultTestRatio
	}
	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(len(features))

	testCount := int(math.Ceil(float64(len(features)) * testRatio))
	split := len(features) - testCount
	for i, idx := range indices {
		if i < split {
			trainX = append(trainX, features[idx])
			trainY = append(trainY, labels[idx])
		} else {
			testX = append(testX, features[idx])
			testY = append(testY, labels[idx])
		}
	}
	return trainX, trainY, testX, testY
}
