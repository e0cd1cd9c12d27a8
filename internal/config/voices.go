package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"nexus-voice/internal/usecase/synthesis"
)

// VoiceCatalogFile is the YAML layout of VOICE_CATALOG_FILE.
//
//	voices:
//	  default: zh-CN-XiaoxiaoNeural
//	  available:
//	    - zh-CN-XiaoxiaoNeural
//	    - zh-CN-YunxiNeural
type VoiceCatalogFile struct {
	Voices struct {
		Default   string   `yaml:"default"`
		Available []string `yaml:"available"`
	} `yaml:"voices"`
}

// LoadVoiceCatalog reads the voice catalog from path. An empty path returns
// the built-in catalog.
// The path comes from the operator environment, not from requests.
func LoadVoiceCatalog(path string) (*synthesis.Catalog, error) {
	if path == "" {
		return synthesis.DefaultCatalog(), nil
	}

	// #nosec G304 -- path is operator configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read voice catalog: %w", err)
	}

	var file VoiceCatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse voice catalog: %w", err)
	}
	if err := validateVoiceCatalog(&file); err != nil {
		return nil, fmt.Errorf("voice catalog validation failed: %w", err)
	}

	return synthesis.NewCatalog(file.Voices.Available, file.Voices.Default)
}

func validateVoiceCatalog(file *VoiceCatalogFile) error {
	if len(file.Voices.Available) == 0 {
		return errors.New("at least one voice is required")
	}
	if file.Voices.Default == "" {
		file.Voices.Default = synthesis.DefaultVoice
	}
	return nil
}
