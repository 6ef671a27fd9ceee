package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"linkedin-outreach/internal/models"
)

// Fixture is a YAML file of records to load for local runs
type Fixture struct {
	Accounts  []*models.Account       `yaml:"accounts" validate:"dive,required"`
	Proxies   []*models.ProxyResource `yaml:"proxies" validate:"dive,required"`
	Sequences []*models.Sequence      `yaml:"sequences" validate:"dive,required"`
	Campaigns []*models.Campaign      `yaml:"campaigns" validate:"dive,required"`
	Leads     []*models.Lead          `yaml:"leads" validate:"dive,required"`
}

// SeedResult counts what a seed run stored
type SeedResult struct {
	Accounts, Proxies, Sequences, Campaigns, Leads int
}

func newSeedCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Load accounts, proxies, sequences, campaigns and leads from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := LoadFixture(args[0])
			if err != nil {
				return err
			}
			return withApp(opts, func(app *App) error {
				res, err := app.Seed(f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d accounts, %d proxies, %d sequences, %d campaigns, %d leads\n",
					res.Accounts, res.Proxies, res.Sequences, res.Campaigns, res.Leads)
				return nil
			})
		},
	}
}

// LoadFixture reads and validates a fixture file. Leads without an id get one
// and proxies without a protocol use http.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}

	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}

	for _, l := range f.Leads {
		if l != nil && l.ID == "" {
			l.ID = uuid.NewString()
		}
	}

	for _, p := range f.Proxies {
		if p != nil && p.Protocol == "" {
			p.Protocol = "http"
		}
	}

	if err := validateFixture(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

func validateFixture(f *Fixture) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(f); err != nil {
		return fmt.Errorf("invalid fixture: %w", err)
	}

	var errs []error
	for _, seq := range f.Sequences {
		if err := checkSequence(seq); err != nil {
			errs = append(errs, err)
		}
	}

	sequences := make(map[string]bool, len(f.Sequences))
	for _, seq := range f.Sequences {
		sequences[seq.ID] = true
	}
	accounts := make(map[string]bool, len(f.Accounts))
	for _, a := range f.Accounts {
		accounts[a.ID] = true
	}
	lists := make(map[string]bool)
	for _, l := range f.Leads {
		lists[l.ListID] = true
	}

	for _, c := range f.Campaigns {
		if !sequences[c.SequenceID] {
			errs = append(errs, fmt.Errorf("campaign %s: unknown sequence %q", c.ID, c.SequenceID))
		}
		if !accounts[c.AccountID] {
			errs = append(errs, fmt.Errorf("campaign %s: unknown account %q", c.ID, c.AccountID))
		}
		for _, id := range c.LeadListIDs {
			if !lists[id] {
				errs = append(errs, fmt.Errorf("campaign %s: lead list %q has no leads", c.ID, id))
			}
		}
	}

	return errors.Join(errs...)
}

// checkSequence rejects edges to unknown nodes and duplicate node ids
func checkSequence(seq *models.Sequence) error {
	nodes := make(map[string]bool, len(seq.Nodes))
	for _, n := range seq.Nodes {
		if nodes[n.ID] {
			return fmt.Errorf("sequence %s: duplicate node %q", seq.ID, n.ID)
		}
		nodes[n.ID] = true
	}
	for _, e := range seq.Edges {
		if !nodes[e.Source] || !nodes[e.Target] {
			return fmt.Errorf("sequence %s: edge %s -> %s references an unknown node", seq.ID, e.Source, e.Target)
		}
	}
	return nil
}

// Seed stores every fixture record. Accounts start with a valid session so
// the first worker validates it against the site.
func (app *App) Seed(f *Fixture) (SeedResult, error) {
	var res SeedResult

	for _, a := range f.Accounts {
		a.SessionValid = true
		if err := app.accounts.Save(a); err != nil {
			return res, err
		}
		res.Accounts++
	}
	for _, p := range f.Proxies {
		if err := app.proxies.Save(p); err != nil {
			return res, err
		}
		res.Proxies++
	}
	for _, seq := range f.Sequences {
		if err := app.sequences.Save(seq); err != nil {
			return res, err
		}
		res.Sequences++
	}
	for _, c := range f.Campaigns {
		if err := app.campaigns.Save(c); err != nil {
			return res, err
		}
		res.Campaigns++
	}
	for _, l := range f.Leads {
		if err := app.leads.Save(l); err != nil {
			return res, err
		}
		res.Leads++
	}

	app.logger.Info().
		Int("accounts", res.Accounts).
		Int("proxies", res.Proxies).
		Int("sequences", res.Sequences).
		Int("campaigns", res.Campaigns).
		Int("leads", res.Leads).
		Msg("Fixture seeded")
	return res, nil
}
