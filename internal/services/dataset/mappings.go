package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// MappingStore reads the operator-maintained title→subject-id override file.
// The file is reloaded when its modification time changes, so operators can
// edit it without restarting the daemon.
type MappingStore struct {
	path   string
	logger *logrus.Logger

	mu       sync.Mutex
	mappings map[string]string
	modTime  time.Time
}

type mappingFile struct {
	Comment  string            `json:"_comment,omitempty"`
	Format   string            `json:"_format,omitempty"`
	Examples map[string]string `json:"_examples,omitempty"`
	Mappings map[string]string `json:"mappings"`
}

// NewMappingStore creates a mapping store backed by the given JSON file,
// writing a default file when none exists
func NewMappingStore(path string, logger *logrus.Logger) (*MappingStore, error) {
	s := &MappingStore{
		path:   path,
		logger: logger,
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.writeDefaultFile(); err != nil {
			return nil, err
		}
		logger.WithField("path", path).Info("Created default custom mapping file")
	}

	return s, nil
}

// Lookup returns the mapped subject id for an exact title, or "" when the
// title has no override
func (s *MappingStore) Lookup(title string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reloadIfChanged(); err != nil {
		s.logger.WithError(err).Warn("Failed to load custom mappings")
		return ""
	}
	return s.mappings[title]
}

// reloadIfChanged re-reads the mapping file when its mtime moved
func (s *MappingStore) reloadIfChanged() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return err
	}

	if s.mappings != nil && info.ModTime().Equal(s.modTime) {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var file mappingFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("invalid mapping file %s: %w", s.path, err)
	}

	s.mappings = file.Mappings
	if s.mappings == nil {
		s.mappings = map[string]string{}
	}
	s.modTime = info.ModTime()

	s.logger.WithFields(logrus.Fields{
		"path":  s.path,
		"count": len(s.mappings),
	}).Debug("Custom mappings loaded")
	return nil
}

func (s *MappingStore) writeDefaultFile() error {
	file := mappingFile{
		Comment: "Custom title overrides for shows the automatic matchers cannot resolve",
		Format:  "title: bangumi subject id (of the first season; later seasons are found by traversal)",
		Examples: map[string]string{
			"我推的孩子": "386809",
		},
		Mappings: map[string]string{},
	}

	data, err := json.MarshalIndent(&file, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}
