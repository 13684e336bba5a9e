package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SkillsStore reads and writes the per-agent skills and identity documents.
// Both are free-text markdown files under <dir>/<agent_id>/, injected
// verbatim into every structured-response acquisition as steering context.
type SkillsStore struct {
	dir string
}

// NewSkillsStore creates a SkillsStore rooted at dir.
func NewSkillsStore(dir string) *SkillsStore {
	return &SkillsStore{dir: dir}
}

// Read returns the skills document for an agent. Satisfies llm.SkillsReader.
func (s *SkillsStore) Read(agentID string) (string, error) {
	return s.readFile(agentID, "skills.md")
}

// Identity returns the identity document for an agent.
func (s *SkillsStore) Identity(agentID string) (string, error) {
	return s.readFile(agentID, "identity.md")
}

// Write replaces the skills document for an agent.
func (s *SkillsStore) Write(agentID, content string) error {
	path := filepath.Join(s.dir, agentID, "skills.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("agent.SkillsStore.Write: %w", err)
	}
	return nil
}

// AppendTraining appends one training instruction as a "Training Update"
// section and returns the updated document.
func (s *SkillsStore) AppendTraining(agentID, instruction string) (string, error) {
	content, err := s.Read(agentID)
	if err != nil {
		return "", err
	}
	updated := strings.TrimRight(content, " \t\n") + "\n\n## Training Update\n- " + strings.TrimSpace(instruction) + "\n"
	if err := s.Write(agentID, updated); err != nil {
		return "", err
	}
	return updated, nil
}

func (s *SkillsStore) readFile(agentID, name string) (string, error) {
	path := filepath.Join(s.dir, agentID, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("agent.SkillsStore: read %s for %s: %w", name, agentID, err)
	}
	return string(data), nil
}
