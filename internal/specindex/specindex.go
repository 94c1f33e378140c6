// Package specindex validates and summarizes task spec files: plain
// markdown documents at tasks/specs/<task_id>.md, required by the
// Readiness Evaluator before a task can be started.
package specindex

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/jaycho46/codex-teams/internal/layout"
)

// Status is the outcome of validating one task spec.
type Status int

const (
	Missing Status = iota
	Invalid
	Valid
)

func (s Status) String() string {
	switch s {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "missing"
	}
}

var requiredHeadings = []string{"## Goal", "## In Scope", "## Acceptance Criteria"}

// Result is the outcome of Validate: a status, a reason when invalid, and
// per-section one-line summaries when valid.
type Result struct {
	Status    Status
	Reason    string
	Summaries map[string]string
}

// Validate checks the spec file for taskID under repoRoot's tasks/specs
// tree. A spec is Valid iff it exists and every required
// heading appears exactly once, with at least one non-blank line beneath
// it before the next "##" heading.
func Validate(repoRoot, taskID string) Result {
	path := layout.TaskSpecPath(repoRoot, taskID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Status: Missing, Reason: "spec file not found"}
		}
		return Result{Status: Invalid, Reason: fmt.Sprintf("reading spec file: %v", err)}
	}

	sections := splitSections(string(data))
	summaries := make(map[string]string, len(requiredHeadings))
	for _, h := range requiredHeadings {
		lines, ok := sections[h]
		if !ok {
			return Result{Status: Invalid, Reason: fmt.Sprintf("missing required heading %q", h)}
		}
		summary := firstNonBlankLine(lines)
		if summary == "" {
			return Result{Status: Invalid, Reason: fmt.Sprintf("section %q has no content", h)}
		}
		summaries[h] = truncate(summary, 120)
	}
	return Result{Status: Valid, Summaries: summaries}
}

// splitSections maps each "## Heading" occurring at column 0 to the lines
// beneath it, up to (not including) the next such heading. A heading that
// occurs more than once is left out of the map entirely, so Validate
// rejects a duplicated required heading as missing.
func splitSections(content string) map[string][]string {
	sections := make(map[string][]string)
	seen := make(map[string]int)
	var current string

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "## ") {
			current = strings.TrimRight(line, " \t")
			seen[current]++
			continue
		}
		if current != "" {
			sections[current] = append(sections[current], line)
		}
	}
	for h, count := range seen {
		if count > 1 {
			delete(sections, h)
		}
	}
	return sections
}

func firstNonBlankLine(lines []string) string {
	for _, l := range lines {
		if t := strings.TrimSpace(l); t != "" {
			return t
		}
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
