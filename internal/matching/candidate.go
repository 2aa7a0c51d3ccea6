package matching

import (
	"fmt"

	"github.com/biolinkhq/vcmatch/internal/airtable"

	"github.com/mitchellh/mapstructure"
)

// Candidate is an investment firm evaluated against a subject. Stated values
// come from the firm's own materials; the portfolio values for modality,
// disease and geography are observed from its actual historical investments.
type Candidate struct {
	ID      string
	Name    string
	Website string

	Stated             DimensionSet
	PortfolioModality  string
	PortfolioDisease   string
	PortfolioGeography string
	PortfolioCompanies string

	RequiresRevenue     TriState
	TherapeuticInvestor TriState
	EquityInvestor      TriState

	ProfileCrawled    bool
	PortfolioAnalyzed bool
}

type candidateFields struct {
	Name               any `mapstructure:"VC/Investor Name"`
	Website            any `mapstructure:"Website URL"`
	Modality           any `mapstructure:"Drug Modality"`
	Disease            any `mapstructure:"Disease Focus"`
	Stage              any `mapstructure:"Investment Stage"`
	Geography          any `mapstructure:"Geography"`
	Amount             any `mapstructure:"Investment Amount"`
	PortfolioModality  any `mapstructure:"Drug Modality (Portfolio)"`
	PortfolioDisease   any `mapstructure:"Disease Focus (Portfolio)"`
	PortfolioGeography any `mapstructure:"Geography (Portfolio)"`
	PortfolioCompanies any `mapstructure:"Portfolio Companies"`
	RequiresRevenue    any `mapstructure:"Requires Startup Revenue Generation?"`
	Therapeutic        any `mapstructure:"Therapeutic Investor?"`
	Equity             any `mapstructure:"Equity Investor?"`
	Crawled            any `mapstructure:"Crawled?"`
	PortfolioApplied   any `mapstructure:"Portfolio Scraper Applied?"`
}

// CandidateFromRecord normalizes one store row into a Candidate.
func CandidateFromRecord(record airtable.Record) (*Candidate, error) {
	var fields candidateFields
	if err := mapstructure.Decode(record.Fields, &fields); err != nil {
		return nil, fmt.Errorf("decode candidate record %s: %w", record.ID, err)
	}

	name := FieldText(fields.Name)
	if name == "" {
		name = "Unnamed firm"
	}

	return &Candidate{
		ID:      record.ID,
		Name:    name,
		Website: FieldText(fields.Website),
		Stated: DimensionSet{
			Modality:  FieldText(fields.Modality),
			Disease:   FieldText(fields.Disease),
			Stage:     FieldText(fields.Stage),
			Geography: FieldText(fields.Geography),
			Amount:    FieldText(fields.Amount),
		},
		PortfolioModality:   FieldText(fields.PortfolioModality),
		PortfolioDisease:    FieldText(fields.PortfolioDisease),
		PortfolioGeography:  FieldText(fields.PortfolioGeography),
		PortfolioCompanies:  FieldText(fields.PortfolioCompanies),
		RequiresRevenue:     ParseTriState(fields.RequiresRevenue),
		TherapeuticInvestor: ParseTriState(fields.Therapeutic),
		EquityInvestor:      ParseTriState(fields.Equity),
		ProfileCrawled:      ParseTriState(fields.Crawled).IsTrue(),
		PortfolioAnalyzed:   ParseTriState(fields.PortfolioApplied).IsTrue(),
	}, nil
}
