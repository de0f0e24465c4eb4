// Package questionset reads and writes raw question files, so a set extracted
// once can be reshuffled and exported again without calling the AI.
package questionset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/exam-shuffler/internal/exam"
)

// ErrUnsupportedFormat is returned for files that are neither YAML nor JSON.
var ErrUnsupportedFormat = errors.New("unsupported question file format")

// File is the on-disk layout of a question set.
type File struct {
	Source    string             `yaml:"source,omitempty" json:"source,omitempty"`
	Questions []exam.RawQuestion `yaml:"questions" json:"questions"`
}

// Load reads raw questions from a .yaml, .yml or .json file. The file holds
// either a document with a "questions" list or a bare list.
func Load(path string) ([]exam.RawQuestion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading question file: %w", err)
	}

	var questions []exam.RawQuestion
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		questions, err = decodeYAML(data)
	case ".json":
		questions, err = decodeJSON(data)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	for i, q := range questions {
		if len(q.Options) == 0 {
			return nil, fmt.Errorf("%s: question %d (%s) has no options", path, i+1, q.Number)
		}
	}
	return questions, nil
}

// LoadDir loads every question file under dir in lexical path order and
// concatenates the results. Files with other extensions are ignored.
func LoadDir(dir string) ([]exam.RawQuestion, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml", ".json":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(paths)

	var all []exam.RawQuestion
	for _, path := range paths {
		qs, err := Load(path)
		if err != nil {
			return nil, err
		}
		all = append(all, qs...)
	}

	slog.Info("question set loaded", "dir", dir, "files", len(paths), "questions", len(all))
	return all, nil
}

// Save writes raw questions as YAML, or JSON when path ends in .json.
func Save(path string, questions []exam.RawQuestion) error {
	file := File{Source: filepath.Base(path), Questions: questions}

	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(file, "", "  ")
	} else {
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err = enc.Encode(file); err == nil {
			err = enc.Close()
		}
		data = buf.Bytes()
	}
	if err != nil {
		return fmt.Errorf("encoding question set: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing question set: %w", err)
	}
	return nil
}

func decodeYAML(data []byte) ([]exam.RawQuestion, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	if root.Content[0].Kind == yaml.SequenceNode {
		var qs []exam.RawQuestion
		err := root.Content[0].Decode(&qs)
		return qs, err
	}
	var f File
	err := root.Content[0].Decode(&f)
	return f.Questions, err
}

func decodeJSON(data []byte) ([]exam.RawQuestion, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var qs []exam.RawQuestion
		err := json.Unmarshal(trimmed, &qs)
		return qs, err
	}
	var f File
	err := json.Unmarshal(trimmed, &f)
	return f.Questions, err
}
