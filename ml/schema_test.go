package ml

import (
	"reflect"
	"testing"
)

func TestSchemaProjectOrderAndDefaults(t *testing.T) {
	f := ExtractURLFeatures("http://192.168.0.1/login")
	schema := FeatureSchema{"has_ip", "url_length", "num_slashes", "suspicious_keyword"}

	x := schema.Project(f)
	want := []float64{1, 24, 0, 1}
	if !reflect.DeepEqual(x, want) {
		t.Fatalf("project = %v, want %v", x, want)
	}
}

func TestSchemaRoundTrip(t *testing.T) {
	urls := []string{
		"",
		"https://accounts.google.com",
		"http://a.b.c-d@e.example.co.uk/?f=g&h=i",
		"http://192.168.0.1/login",
	}
	schemas := []FeatureSchema{
		FeatureSchema(FeatureNames()),
		{"num_equal", "has_ip", "subdomain_count"},
		{"unknown", "num_dots"},
	}
	for _, u := range urls {
		f := ExtractURLFeatures(u)
		for _, schema := range schemas {
			restored := schema.Restore(schema.Project(f))
			for _, name := range schema {
				want, ok := f.Value(name)
				if !ok {
					continue
				}
				got, _ := restored.Value(name)
				if got != want {
					t.Errorf("%q: %s round-trip = %v, want %v", u, name, got, want)
				}
			}
		}
	}
}

func TestSchemaFromRows(t *testing.T) {
	if schema := schemaFromRows(nil); schema != nil {
		t.Fatalf("expected nil schema, got %v", schema)
	}
	schema := schemaFromRows([]URLFeatures{ExtractURLFeatures("https://github.com")})
	if !reflect.DeepEqual([]string(schema), FeatureNames()) {
		t.Fatalf("unexpected schema: %v", schema)
	}
}

func TestSchemaValidate(t *testing.T) {
	if err := (FeatureSchema{}).Validate(); err != ErrEmptySchema {
		t.Fatalf("expected ErrEmptySchema, got %v", err)
	}
	if err := (FeatureSchema{"a", "a"}).Validate(); err == nil {
		t.Fatal("expected duplicate error")
	}
	if err := FeatureSchema(FeatureNames()).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
