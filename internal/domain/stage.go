package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Stage is one phase of the per-business workflow. Stages are ordered.
type Stage int

const (
	StagePrompt Stage = iota
	StageBuild
	StageReview
	StageOutreach
	StageSummary
)

var stageNames = [...]string{"PROMPT", "BUILD", "REVIEW", "OUTREACH", "SUMMARY"}

// Stages lists every stage in workflow order.
func Stages() []Stage {
	return []Stage{StagePrompt, StageBuild, StageReview, StageOutreach, StageSummary}
}

func (s Stage) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	return s >= StagePrompt && s <= StageSummary
}

// Next returns the following stage; SUMMARY is terminal.
func (s Stage) Next() Stage {
	if s >= StageSummary {
		return StageSummary
	}
	return s + 1
}

// ParseStage resolves a stage name case-insensitively.
func ParseStage(value string) (Stage, error) {
	name := upper(value)
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return StagePrompt, fmt.Errorf("unknown stage %q", value)
}

func (s Stage) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("marshal stage: invalid value %d", int(s))
	}
	return json.Marshal(s.String())
}

func (s *Stage) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("stage must be a string: %w", err)
	}
	parsed, err := ParseStage(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func upper(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}
