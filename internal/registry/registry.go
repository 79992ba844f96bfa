package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// ExtractionMode selects full or incremental extraction for a dataset.
type ExtractionMode string

const (
	ModeFull        ExtractionMode = "full"
	ModeIncremental ExtractionMode = "incremental"
)

// Entry is one dataset in the load registry. Entries are immutable
// during a run; operators edit the registry file between runs.
type Entry struct {
	DatasetName     string         `yaml:"dataset_name"`
	SourceID        string         `yaml:"source_id"`
	ExtractionMode  ExtractionMode `yaml:"extraction_mode"`
	WatermarkColumn string         `yaml:"watermark_column"`
	TargetPath      string         `yaml:"target_path"`
	Active          bool           `yaml:"active"`
}

type registryFile struct {
	Datasets []Entry `yaml:"datasets"`
}

// Load reads and validates the registry file.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry file %s: %w", path, err)
	}
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing registry file %s: %w", path, err)
	}

	seen := make(map[string]bool)
	for i, e := range file.Datasets {
		if err := validate(e); err != nil {
			return nil, fmt.Errorf("registry entry %d (%s/%s): %w", i, e.SourceID, e.DatasetName, err)
		}
		key := e.SourceID + "/" + e.DatasetName
		if seen[key] {
			return nil, fmt.Errorf("duplicate registry entry for %s", key)
		}
		seen[key] = true
	}
	return file.Datasets, nil
}

func validate(e Entry) error {
	if e.DatasetName == "" {
		return fmt.Errorf("dataset_name is required")
	}
	if e.SourceID == "" {
		return fmt.Errorf("source_id is required")
	}
	switch e.ExtractionMode {
	case ModeFull:
	case ModeIncremental:
		if e.WatermarkColumn == "" {
			return fmt.Errorf("incremental extraction requires watermark_column")
		}
	default:
		return fmt.Errorf("unknown extraction_mode %q", e.ExtractionMode)
	}
	return nil
}

// Active filters the registry down to active entries.
func Active(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Active {
			out = append(out, e)
		}
	}
	return out
}
