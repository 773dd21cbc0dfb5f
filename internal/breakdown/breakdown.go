// Package breakdown expands a story type's task templates across a list of
// parent work items.
package breakdown

import (
	"errors"
	"strconv"
	"strings"

	"github.com/joescharf/ado/internal/models"
)

// ErrNoTargets is returned when no usable parent id remains after filtering.
var ErrNoTargets = errors.New("no valid work item IDs provided")

// Unit is one task to create under one parent.
type Unit struct {
	ParentID int
	Task     models.TaskTemplate
}

// Expand returns targets × tasks: every task of st for the first target, in
// task order, then every task for the second target, and so on.
func Expand(st models.StoryType, targets []int) []Unit {
	units := make([]Unit, 0, len(targets)*len(st.Tasks))
	for _, id := range targets {
		for _, task := range st.Tasks {
			units = append(units, Unit{ParentID: id, Task: task})
		}
	}
	return units
}

// ParseTargetIDs keeps the entries that parse as positive integers, in
// first-seen order and without duplicates. Other entries are dropped
// silently. An empty result is ErrNoTargets.
func ParseTargetIDs(raw []string) ([]int, error) {
	seen := make(map[int]bool, len(raw))
	ids := make([]int, 0, len(raw))
	for _, r := range raw {
		id, ok := ParseID(r)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, ErrNoTargets
	}
	return ids, nil
}

// ParseID parses a single work item id.
func ParseID(s string) (int, bool) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// SplitIDs splits free-form input on commas and whitespace, so "10, 20 30"
// and repeated flags both work.
func SplitIDs(args ...string) []string {
	var out []string
	for _, a := range args {
		out = append(out, strings.FieldsFunc(a, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
		})...)
	}
	return out
}

// Plan validates targets and expands st across them.
func Plan(st models.StoryType, rawTargets []string) ([]Unit, []int, error) {
	ids, err := ParseTargetIDs(rawTargets)
	if err != nil {
		return nil, nil, err
	}
	return Expand(st, ids), ids, nil
}

// SplitTitles splits a title list on newlines, trimming each line and
// dropping blanks.
func SplitTitles(text string) []string {
	var titles []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			titles = append(titles, line)
		}
	}
	return titles
}
