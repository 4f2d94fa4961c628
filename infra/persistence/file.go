package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/core/strategy"
)

// FilePersister keeps the plant model in a single YAML or JSON file. The
// format follows the file extension; anything but .json is YAML.
type FilePersister struct {
	path string
}

var _ strategy.ModelPersister = (*FilePersister)(nil)

func NewFilePersister(path string) (*FilePersister, error) {
	if path == "" {
		return nil, fmt.Errorf("file persister: path is required")
	}
	return &FilePersister{path: path}, nil
}

// SaveModel writes m to a temporary file and renames it over the target.
func (p *FilePersister) SaveModel(_ context.Context, m model.PlantModel) error {
	data, err := EncodeModel(m, p.path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p.path), filepath.Base(p.path)+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p.path)
}

func (p *FilePersister) LoadModel(context.Context) (model.PlantModel, error) {
	m, err := ReadModelFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.PlantModel{}, errNoModel()
	}
	return m, err
}

func (p *FilePersister) HasModel(context.Context) (bool, error) {
	_, err := os.Stat(p.path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// ReadModelFile reads a plant model from a YAML or JSON file.
func ReadModelFile(path string) (model.PlantModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.PlantModel{}, err
	}
	m, err := DecodeModel(data, path)
	if err != nil {
		return model.PlantModel{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// DecodeModel parses data in the format implied by name.
func DecodeModel(data []byte, name string) (model.PlantModel, error) {
	var m model.PlantModel
	if isJSON(name) {
		if err := json.Unmarshal(data, &m); err != nil {
			return m, fmt.Errorf("decode json: %w", err)
		}
		return m, nil
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode yaml: %w", err)
	}
	return m, nil
}

// EncodeModel serializes m in the format implied by name.
func EncodeModel(m model.PlantModel, name string) ([]byte, error) {
	if isJSON(name) {
		return json.MarshalIndent(m, "", "  ")
	}
	return yaml.Marshal(m)
}
