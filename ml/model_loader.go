package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	ModelFileName  = "phish_model.json"
	SchemaFileName = "feature_columns.json"
)

// ArtifactPaths returns the classifier and schema paths inside dir.
func ArtifactPaths(dir string) (modelPath, schemaPath string) {
	return filepath.Join(dir, ModelFileName), filepath.Join(dir, SchemaFileName)
}

// SaveArtifact writes the forest and its schema as a pair. Both files are
// written to temporaries first and renamed into place. If the schema rename
// fails, the previous model is restored, so dir never holds a new model
// next to an old schema.
func SaveArtifact(dir string, forest *RandomForest, schema FeatureSchema) error {
	if forest == nil || len(forest.Trees) == 0 {
		return ErrModelNotTrained
	}
	if err := schema.Validate(); err != nil {
		return err
	}
	if forest.NumFeatures != len(schema) {
		return ErrSchemaMismatch
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	modelPath, schemaPath := ArtifactPaths(dir)
	modelPayload, err := json.Marshal(forest)
	if err != nil {
		return err
	}
	schemaPayload, err := json.Marshal(schema)
	if err != nil {
		return err
	}

	modelTmp, err := writeTemp(dir, ModelFileName, modelPayload)
	if err != nil {
		return err
	}
	schemaTmp, err := writeTemp(dir, SchemaFileName, schemaPayload)
	if err != nil {
		os.Remove(modelTmp)
		return err
	}
	cleanup := func() {
		os.Remove(modelTmp)
		os.Remove(schemaTmp)
	}

	// Keep a hard link to the current model for rollback. modelPath itself
	// stays in place throughout.
	backup := modelPath + ".prev"
	os.Remove(backup)
	hadPrevious := false
	if err := os.Link(modelPath, backup); err == nil {
		hadPrevious = true
	} else if !errors.Is(err, os.ErrNotExist) {
		cleanup()
		return fmt.Errorf("back up model: %w", err)
	}
	defer os.Remove(backup)

	if err := os.Rename(modelTmp, modelPath); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(schemaTmp, schemaPath); err != nil {
		cleanup()
		if hadPrevious {
			if rbErr := os.Rename(backup, modelPath); rbErr != nil {
				return fmt.Errorf("%w (restoring previous model: %v)", err, rbErr)
			}
		} else {
			os.Remove(modelPath)
		}
		return err
	}
	return nil
}

// LoadInferenceContext reads the forest and schema from dir. Any missing,
// unreadable or mismatched file is reported as *ArtifactMissingError.
func LoadInferenceContext(dir string) (*InferenceContext, error) {
	modelPath, schemaPath := ArtifactPaths(dir)

	forest, err := LoadForest(modelPath)
	if err != nil {
		return nil, &ArtifactMissingError{Path: modelPath, Err: err}
	}
	schema, err := LoadSchema(schemaPath)
	if err != nil {
		return nil, &ArtifactMissingError{Path: schemaPath, Err: err}
	}

	ictx, err := NewInferenceContext(forest, schema)
	if err != nil {
		return nil, &ArtifactMissingError{Path: dir, Err: err}
	}
	return ictx, nil
}

func LoadForest(path string) (*RandomForest, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var forest RandomForest
	if err := json.Unmarshal(payload, &forest); err != nil {
		return nil, fmt.Errorf("decode classifier: %w", err)
	}
	if err := forest.Validate(); err != nil {
		return nil, err
	}
	return &forest, nil
}

func LoadSchema(path string) (FeatureSchema, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var schema FeatureSchema
	if err := json.Unmarshal(payload, &schema); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return schema, nil
}

func writeTemp(dir, name string, payload []byte) (string, error) {
	f, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// IsArtifactMissing reports whether err came from a failed artifact load.
func IsArtifactMissing(err error) bool {
	var target *ArtifactMissingError
	return errors.As(err, &target)
}
