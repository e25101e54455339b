package content

import "github.com/example/sogretobot/pkg/models"

// Scenario names understood by Tree.Scenario
const (
	ScenarioReplant     = "replant_scenario"
	ScenarioMold        = "mold_scenario"
	ScenarioMoldSprouts = "mold_scenario_sprouts"
	ScenarioAllDead     = "all_dead_scenario"
)

// Document mirrors the practices file
type Document struct {
	PracticeStructure struct {
		Stages []Stage `json:"stages" yaml:"stages"`
	} `json:"practice_structure" yaml:"practice_structure"`

	Replant     *Scenario `json:"replant_scenario,omitempty" yaml:"replant_scenario,omitempty"`
	Mold        *Scenario `json:"mold_scenario,omitempty" yaml:"mold_scenario,omitempty"`
	MoldSprouts *Scenario `json:"mold_scenario_sprouts,omitempty" yaml:"mold_scenario_sprouts,omitempty"`
	AllDead     *Scenario `json:"all_dead_scenario,omitempty" yaml:"all_dead_scenario,omitempty"`
}

// Button is a content-defined inline button
type Button struct {
	Text   string `json:"text" yaml:"text"`
	Action string `json:"action" yaml:"action"`
}

// Stage is a top-level phase of the program
type Stage struct {
	StageID        int             `json:"stage_id" yaml:"stage_id"`
	StageName      string          `json:"stage_name" yaml:"stage_name"`
	Day            int             `json:"day,omitempty" yaml:"day,omitempty"`
	Steps          []Step          `json:"steps" yaml:"steps"`
	DailyPractices []DailyPractice `json:"daily_practices,omitempty" yaml:"daily_practices,omitempty"`
}

// Step is an addressable unit of content within a stage
type Step struct {
	StepID  int      `json:"step_id" yaml:"step_id"`
	Title   string   `json:"title" yaml:"title"`
	Message string   `json:"message" yaml:"message"`
	Buttons []Button `json:"buttons,omitempty" yaml:"buttons,omitempty"`
}

// DailyPractice is the content of one day of a daily cycle. Sub-steps
// come either keyed by id (Substeps) or keyed by type (Steps).
type DailyPractice struct {
	Day      int       `json:"day" yaml:"day"`
	Title    string    `json:"title,omitempty" yaml:"title,omitempty"`
	Theme    string    `json:"theme,omitempty" yaml:"theme,omitempty"`
	Message  string    `json:"message,omitempty" yaml:"message,omitempty"`
	Buttons  []Button  `json:"buttons,omitempty" yaml:"buttons,omitempty"`
	Substeps []Substep `json:"substeps,omitempty" yaml:"substeps,omitempty"`
	Steps    []Substep `json:"steps,omitempty" yaml:"steps,omitempty"`
	Reminder *Reminder `json:"reminder,omitempty" yaml:"reminder,omitempty"`
}

// Substep is the finest unit of interaction inside a day
type Substep struct {
	SubstepID    string   `json:"substep_id,omitempty" yaml:"substep_id,omitempty"`
	Type         string   `json:"type,omitempty" yaml:"type,omitempty"`
	Title        string   `json:"title,omitempty" yaml:"title,omitempty"`
	Message      string   `json:"message,omitempty" yaml:"message,omitempty"`
	Text         string   `json:"text,omitempty" yaml:"text,omitempty"`
	Buttons      []Button `json:"buttons,omitempty" yaml:"buttons,omitempty"`
	AutoProceed  bool     `json:"auto_proceed,omitempty" yaml:"auto_proceed,omitempty"`
	AutoComplete bool     `json:"auto_complete,omitempty" yaml:"auto_complete,omitempty"`
}

// Reminder is the condensed push sent instead of the full day content
type Reminder struct {
	Message string   `json:"message" yaml:"message"`
	Buttons []Button `json:"buttons,omitempty" yaml:"buttons,omitempty"`
}

// Scenario is a side branch such as replanting or mold handling
type Scenario struct {
	Title   string   `json:"title,omitempty" yaml:"title,omitempty"`
	Message string   `json:"message,omitempty" yaml:"message,omitempty"`
	Buttons []Button `json:"buttons,omitempty" yaml:"buttons,omitempty"`
	Steps   []Step   `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// Step returns the step with the given id
func (s *Stage) Step(id int) (*Step, bool) {
	for i := range s.Steps {
		if s.Steps[i].StepID == id {
			return &s.Steps[i], true
		}
	}
	return nil, false
}

// FirstStep returns the first listed step of the stage
func (s *Stage) FirstStep() (*Step, bool) {
	if len(s.Steps) == 0 {
		return nil, false
	}
	return &s.Steps[0], true
}

// LastStepID returns the largest step id in the stage
func (s *Stage) LastStepID() int {
	last := 0
	for _, st := range s.Steps {
		if st.StepID > last {
			last = st.StepID
		}
	}
	return last
}

// DailyPractice returns the practice of the given cycle day
func (s *Stage) DailyPractice(day int) (*DailyPractice, bool) {
	for i := range s.DailyPractices {
		if s.DailyPractices[i].Day == day {
			return &s.DailyPractices[i], true
		}
	}
	return nil, false
}

// CycleLength is the number of days in the stage's daily cycle, zero when
// the stage has none
func (s *Stage) CycleLength() int {
	last := 0
	for _, p := range s.DailyPractices {
		if p.Day > last {
			last = p.Day
		}
	}
	return last
}

// Substep finds a sub-step by id, falling back to the typed steps list
func (p *DailyPractice) Substep(key string) (*Substep, bool) {
	for i := range p.Substeps {
		if p.Substeps[i].SubstepID == key {
			return &p.Substeps[i], true
		}
	}
	return p.StepByType(key)
}

// StepByType finds a typed sub-step
func (p *DailyPractice) StepByType(kind string) (*Substep, bool) {
	for i := range p.Steps {
		if p.Steps[i].Type == kind {
			return &p.Steps[i], true
		}
	}
	return nil, false
}

// Body returns the sub-step text, whichever field carries it
func (s *Substep) Body() string {
	if s.Message != "" {
		return s.Message
	}
	return s.Text
}

// Step returns the scenario step with the given id
func (s *Scenario) Step(id int) (*Step, bool) {
	for i := range s.Steps {
		if s.Steps[i].StepID == id {
			return &s.Steps[i], true
		}
	}
	return nil, false
}

// Buttons converts content buttons into render buttons
func Buttons(in []Button) []models.Button {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.Button, 0, len(in))
	for _, b := range in {
		if b.Text == "" || b.Action == "" {
			continue
		}
		out = append(out, models.Button{Label: b.Text, Action: b.Action})
	}
	return out
}

// Render turns a step into a render instruction
func (s *Step) Render() models.Render {
	return models.Render{Title: s.Title, Message: s.Message, Buttons: Buttons(s.Buttons)}
}

// Render turns a sub-step into a render instruction
func (s *Substep) Render() models.Render {
	return models.Render{Title: s.Title, Message: s.Body(), Buttons: Buttons(s.Buttons)}
}

// Render turns a scenario into a render instruction
func (s *Scenario) Render() models.Render {
	return models.Render{Title: s.Title, Message: s.Message, Buttons: Buttons(s.Buttons)}
}
