package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a stage, step or scenario does not exist
var ErrNotFound = errors.New("content not found")

// LoadError is returned when a content document cannot be read or parsed
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load content %q: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Tree is an immutable, indexed snapshot of the content document
type Tree struct {
	doc       Document
	stages    map[int]*Stage
	order     []int
	scenarios map[string]*Scenario
}

// Format of a content document
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the decoder from the file extension
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads and parses a content file
func Load(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	tree, err := Parse(data, FormatFor(path))
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return tree, nil
}

// Parse decodes a content document and builds its indexes
func Parse(data []byte, format Format) (*Tree, error) {
	var doc Document
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	}
	return NewTree(doc)
}

// NewTree indexes a decoded document. A document without stages, or
// with duplicate stage or step ids, is rejected.
func NewTree(doc Document) (*Tree, error) {
	stages := doc.PracticeStructure.Stages
	if len(stages) == 0 {
		return nil, errors.New("practice_structure has no stages")
	}

	t := &Tree{
		doc:       doc,
		stages:    make(map[int]*Stage, len(stages)),
		scenarios: make(map[string]*Scenario),
	}
	for i := range t.doc.PracticeStructure.Stages {
		st := &t.doc.PracticeStructure.Stages[i]
		if st.StageID <= 0 {
			return nil, fmt.Errorf("stage #%d has invalid stage_id %d", i, st.StageID)
		}
		if _, dup := t.stages[st.StageID]; dup {
			return nil, fmt.Errorf("duplicate stage_id %d", st.StageID)
		}
		seen := make(map[int]bool, len(st.Steps))
		for _, step := range st.Steps {
			if seen[step.StepID] {
				return nil, fmt.Errorf("stage %d: duplicate step_id %d", st.StageID, step.StepID)
			}
			seen[step.StepID] = true
		}
		t.stages[st.StageID] = st
		t.order = append(t.order, st.StageID)
	}
	sort.Ints(t.order)

	for name, sc := range map[string]*Scenario{
		ScenarioReplant:     t.doc.Replant,
		ScenarioMold:        t.doc.Mold,
		ScenarioMoldSprouts: t.doc.MoldSprouts,
		ScenarioAllDead:     t.doc.AllDead,
	} {
		if sc != nil {
			t.scenarios[name] = sc
		}
	}
	return t, nil
}

// Stage returns a stage by id
func (t *Tree) Stage(id int) (*Stage, bool) {
	st, ok := t.stages[id]
	return st, ok
}

// Step returns a step of a stage
func (t *Tree) Step(stageID, stepID int) (*Step, bool) {
	st, ok := t.stages[stageID]
	if !ok {
		return nil, false
	}
	return st.Step(stepID)
}

// DailyPractice returns the practice of a cycle day in a stage
func (t *Tree) DailyPractice(stageID, day int) (*DailyPractice, bool) {
	st, ok := t.stages[stageID]
	if !ok {
		return nil, false
	}
	return st.DailyPractice(day)
}

// Scenario returns a side scenario by document key
func (t *Tree) Scenario(name string) (*Scenario, bool) {
	sc, ok := t.scenarios[name]
	return sc, ok
}

// TotalStages returns the number of stages
func (t *Tree) TotalStages() int {
	return len(t.order)
}

// StageIDs returns stage ids in ascending order
func (t *Tree) StageIDs() []int {
	return append([]int(nil), t.order...)
}
