// Package prompts parses the repository's agents instructions file into the
// named sections the CTO and Coder agents use as their base system prompt,
// and computes a stable digest used to detect when a job's plan was made
// against a different prompt revision than the one currently checked out.
package prompts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// AgentsFile is a parsed "agents.md"-style instructions document, keyed by
// uppercase section heading (e.g. "CTO-AI", "CODER-AI").
type AgentsFile struct {
	Sections map[string]string
	Digest   string
}

var headingPattern = regexp.MustCompile(`(?m)^#{1,2}\s+([A-Za-z0-9_-]+)\s*$`)

// Parse splits raw markdown into named sections. A section runs from its
// heading line to the next heading (or EOF). Text before the first heading
// is discarded.
func Parse(raw string) *AgentsFile {
	sections := make(map[string]string)

	locs := headingPattern.FindAllStringSubmatchIndex(raw, -1)
	for i, loc := range locs {
		name := strings.ToUpper(raw[loc[2]:loc[3]])
		bodyStart := loc[1]
		bodyEnd := len(raw)
		if i+1 < len(locs) {
			bodyEnd = locs[i+1][0]
		}
		sections[name] = strings.TrimSpace(raw[bodyStart:bodyEnd])
	}

	return &AgentsFile{
		Sections: sections,
		Digest:   digest(raw),
	}
}

// Load reads and parses the agents file at path.
func Load(path string) (*AgentsFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading agents file %s: %w", path, err)
	}
	return Parse(string(raw)), nil
}

// Section returns the named section's body, or an error if it is missing
// (both agent roles require their section to be present before a job can
// build its base prompt).
func (f *AgentsFile) Section(name string) (string, error) {
	body, ok := f.Sections[strings.ToUpper(name)]
	if !ok {
		return "", fmt.Errorf("prompts: missing section %q", name)
	}
	return body, nil
}

func digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
