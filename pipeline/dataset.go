package pipeline

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"phishguard/ml"
)

const (
	urlColumn   = "url"
	labelColumn = "label"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DatasetPreparer turns a raw url/label CSV into the cleaned table the
// trainer consumes.
type DatasetPreparer struct {
	logger *zap.Logger
}

func NewDatasetPreparer(logger *zap.Logger) *DatasetPreparer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DatasetPreparer{logger: logger}
}

// Prepare reads raw rows from in and writes the cleaned url,label CSV to
// out. Malformed lines are skipped and counted.
func (p *DatasetPreparer) Prepare(in io.Reader, out io.Writer) (PreparationStats, error) {
	cleaner := NewDataCleaner(p.logger)

	records, err := readRecords(in, cleaner)
	if err != nil {
		return PreparationStats{}, err
	}
	cleaned := cleaner.Clean(records)

	w := csv.NewWriter(out)
	if err := w.Write([]string{urlColumn, labelColumn}); err != nil {
		return PreparationStats{}, fmt.Errorf("write header: %w", err)
	}
	for _, record := range cleaned {
		if err := w.Write([]string{record.URL, strconv.Itoa(record.Label)}); err != nil {
			return PreparationStats{}, fmt.Errorf("write row %d: %w", record.Line, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return PreparationStats{}, fmt.Errorf("flush csv: %w", err)
	}

	stats := cleaner.GetStats()
	p.logger.Info("dataset prepared",
		zap.Int64("total", stats.Total),
		zap.Int64("kept", stats.Kept),
		zap.Int64("duplicates", stats.Duplicates),
		zap.Int64("malformed", stats.Malformed),
		zap.Int64("phishing", stats.Phishing),
	)
	return stats, nil
}

// PrepareFile is Prepare over files. The output is written to a temp file
// next to outPath and renamed into place.
func (p *DatasetPreparer) PrepareFile(inPath, outPath string) (PreparationStats, error) {
	in, err := os.Open(inPath)
	if err != nil {
		return PreparationStats{}, &ml.DatasetError{Reason: "open " + inPath, Err: err}
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return PreparationStats{}, fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(outPath), ".prepare-*.csv")
	if err != nil {
		return PreparationStats{}, fmt.Errorf("create temp output: %w", err)
	}
	defer os.Remove(tmp.Name())

	stats, err := p.Prepare(in, tmp)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return PreparationStats{}, err
	}
	if err := os.Rename(tmp.Name(), outPath); err != nil {
		return PreparationStats{}, fmt.Errorf("rename output: %w", err)
	}
	return stats, nil
}

// LoadDataset reads a cleaned url,label CSV. Rows whose label is not 0 or
// 1 are skipped; a file with no usable rows is a DatasetError.
func LoadDataset(path string) (ml.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ml.DatasetError{Reason: "open " + path, Err: err}
	}
	defer f.Close()
	return ReadDataset(f)
}

func ReadDataset(r io.Reader) (ml.Dataset, error) {
	records, err := readRecords(r, nil)
	if err != nil {
		return nil, err
	}

	dataset := make(ml.Dataset, 0, len(records))
	for _, record := range records {
		url := strings.TrimSpace(record.URL)
		if url == "" {
			continue
		}
		label, err := strconv.Atoi(strings.TrimSpace(record.RawLabel))
		if err != nil || (label != 0 && label != 1) {
			continue
		}
		dataset = append(dataset, ml.LabeledExample{URL: url, Label: label})
	}
	if len(dataset) == 0 {
		return nil, &ml.DatasetError{Reason: "no usable rows"}
	}
	return dataset, nil
}

// FindInputCSV returns the first *.csv in dir, in name order, skipping
// exclude. It mirrors dropping a raw export into the data folder.
func FindInputCSV(dir, exclude string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", &ml.DatasetError{Reason: "read data dir " + dir, Err: err}
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		if exclude != "" && entry.Name() == filepath.Base(exclude) {
			continue
		}
		names = append(names, entry.Name())
	}
	if len(names) == 0 {
		return "", &ml.DatasetError{Reason: "no CSV file found in " + dir}
	}
	sort.Strings(names)
	return filepath.Join(dir, names[0]), nil
}

// readRecords decodes in (UTF-8 when valid, Latin-1 otherwise) and returns
// one Record per well-formed row. cleaner may be nil.
func readRecords(in io.Reader, cleaner *DataCleaner) ([]*Record, error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, &ml.DatasetError{Reason: "read input", Err: err}
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	var src io.Reader = bytes.NewReader(data)
	if !utf8.Valid(data) {
		src = transform.NewReader(src, charmap.ISO8859_1.NewDecoder())
	}

	reader := csv.NewReader(src)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ml.DatasetError{Reason: "input is empty"}
		}
		return nil, &ml.DatasetError{Reason: "read header", Err: err}
	}
	urlIdx, labelIdx := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case urlColumn:
			if urlIdx < 0 {
				urlIdx = i
			}
		case labelColumn:
			if labelIdx < 0 {
				labelIdx = i
			}
		}
	}
	if urlIdx < 0 || labelIdx < 0 {
		return nil, &ml.DatasetError{Reason: "CSV must contain url and label columns"}
	}

	var records []*Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				if cleaner != nil {
					cleaner.recordMalformed()
				}
				continue
			}
			return nil, &ml.DatasetError{Reason: "read row", Err: err}
		}
		line, _ := reader.FieldPos(0)
		records = append(records, &Record{
			Line:     line,
			URL:      row[urlIdx],
			RawLabel: row[labelIdx],
		})
	}
	return records, nil
}

// WriteDataset writes dataset as a url,label CSV, creating parent dirs.
func WriteDataset(path string, dataset ml.Dataset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	w.Write([]string{urlColumn, labelColumn})
	for _, example := range dataset {
		w.Write([]string{example.URL, strconv.Itoa(example.Label)})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
