package matching

import (
	"fmt"

	"github.com/biolinkhq/vcmatch/internal/airtable"

	"github.com/mitchellh/mapstructure"
)

// DimensionSet carries the five compatibility-dimension values of a profile.
type DimensionSet struct {
	Modality  string
	Disease   string
	Stage     string
	Geography string
	Amount    string
}

// Subject is a startup seeking matches.
type Subject struct {
	ID           string
	Name         string
	Profile      DimensionSet
	RunMatch     bool
	MatchingDone bool
}

type subjectFields struct {
	Name         any `mapstructure:"Startup Name"`
	Modality     any `mapstructure:"Drug Modality"`
	Disease      any `mapstructure:"Disease Focus"`
	Stage        any `mapstructure:"Investment Stage"`
	Geography    any `mapstructure:"Geography"`
	Amount       any `mapstructure:"Investment Amount"`
	RunMatch     any `mapstructure:"Run Match"`
	MatchingDone any `mapstructure:"Matching Done?"`
}

// SubjectFromRecord normalizes one store row into a Subject.
func SubjectFromRecord(record airtable.Record) (*Subject, error) {
	var fields subjectFields
	if err := mapstructure.Decode(record.Fields, &fields); err != nil {
		return nil, fmt.Errorf("decode subject record %s: %w", record.ID, err)
	}

	name := FieldText(fields.Name)
	if name == "" {
		name = "Startup"
	}

	return &Subject{
		ID:   record.ID,
		Name: name,
		Profile: DimensionSet{
			Modality:  FieldText(fields.Modality),
			Disease:   FieldText(fields.Disease),
			Stage:     FieldText(fields.Stage),
			Geography: FieldText(fields.Geography),
			Amount:    FieldText(fields.Amount),
		},
		RunMatch:     ParseTriState(fields.RunMatch).IsTrue(),
		MatchingDone: ParseTriState(fields.MatchingDone).IsTrue(),
	}, nil
}
