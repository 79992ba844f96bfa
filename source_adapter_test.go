package main

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/clearbalance/revcycle-pipeline/processor"
)

type captureProcessor struct {
	messages []processor.Message
}

func (c *captureProcessor) Process(ctx context.Context, msg processor.Message) error {
	c.messages = append(c.messages, msg)
	return nil
}

func (c *captureProcessor) Subscribe(processor.Processor) {}

func writeCSV(t *testing.T, dir, name string, rows [][]string) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, csv.NewWriter(f).WriteAll(rows))
}

func writeRegistry(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func adapterConfig(t *testing.T, registryFile, sourceDir string) map[string]interface{} {
	dataDir := t.TempDir()
	return map[string]interface{}{
		"registry_file": registryFile,
		"watermark_db":  filepath.Join(dataDir, "watermark.db"),
		"raw_dir":       filepath.Join(dataDir, "raw"),
		"archive_dir":   filepath.Join(dataDir, "archive"),
		"sources": map[interface{}]interface{}{
			"hospital_a": map[interface{}]interface{}{
				"kind":     "csv",
				"base_dir": sourceDir,
			},
		},
	}
}

func TestNewRegistrySourceAdapterRejectsBadSources(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]interface{}
	}{
		{"missing registry_file", map[string]interface{}{}},
		{
			"unsupported kind",
			map[string]interface{}{
				"registry_file": "registry.yaml",
				"watermark_db":  "wm.db",
				"raw_dir":       "raw",
				"archive_dir":   "archive",
				"sources": map[interface{}]interface{}{
					"hospital_a": map[interface{}]interface{}{"kind": "ftp"},
				},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistrySourceAdapter(tt.config)
			assert.Error(t, err)
		})
	}
}

func TestRegistrySourceAdapterEmitsTaggedRows(t *testing.T) {
	sourceDir := t.TempDir()
	writeCSV(t, sourceDir, "patients.csv", [][]string{
		{"patient_id", "fname", "lname"},
		{"101", "Ada", "Byron"},
		{"102", "Grace", "Hopper"},
	})

	registryFile := writeRegistry(t, t.TempDir(), `
datasets:
  - dataset_name: patients
    source_id: hospital_a
    extraction_mode: full
    target_path: silver_patient
    active: true
`)

	adapter, err := NewRegistrySourceAdapter(adapterConfig(t, registryFile, sourceDir))
	require.NoError(t, err)

	capture := &captureProcessor{}
	adapter.Subscribe(capture)
	require.NoError(t, adapter.Run(context.Background()))

	require.Len(t, capture.messages, 2)

	payload, ok := capture.messages[0].Payload.([]byte)
	require.True(t, ok)
	assert.Equal(t, "101", gjson.GetBytes(payload, "patient_id").String())
	assert.Equal(t, "Ada", gjson.GetBytes(payload, "fname").String())

	meta, ok := capture.messages[0].GetSourceMetadata()
	require.True(t, ok)
	assert.Equal(t, "hospital_a", meta.SourceID)
	assert.Equal(t, "patients", meta.DatasetName)
	assert.False(t, meta.IngestedAt.IsZero())
}

func TestRegistrySourceAdapterReportsDatasetFailures(t *testing.T) {
	sourceDir := t.TempDir()
	// No CSV file for the registered dataset: extraction fails, and the
	// run must surface it rather than report success.
	registryFile := writeRegistry(t, t.TempDir(), `
datasets:
  - dataset_name: patients
    source_id: hospital_a
    extraction_mode: full
    target_path: silver_patient
    active: true
`)

	adapter, err := NewRegistrySourceAdapter(adapterConfig(t, registryFile, sourceDir))
	require.NoError(t, err)

	adapter.Subscribe(&captureProcessor{})
	err = adapter.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "patients")
}
