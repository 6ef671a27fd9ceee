package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"linkedin-outreach/internal/actions"
	"linkedin-outreach/internal/models"
)

// statusReport is what the status command prints
type statusReport struct {
	Engine    actions.Status          `json:"engine"`
	Campaigns []*models.Campaign      `json:"campaigns"`
	Proxies   []*models.ProxyResource `json:"proxies"`
}

func newStatusCommand(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pending work, campaigns and proxy usage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEngine(opts, func(e *Engine) error {
				report, err := e.report()
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(report)
				}
				printStatus(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func (e *Engine) report() (*statusReport, error) {
	st, err := e.service.Status()
	if err != nil {
		return nil, err
	}
	campaigns, err := e.app.campaigns.List()
	if err != nil {
		return nil, err
	}
	proxies, err := e.app.proxies.List()
	if err != nil {
		return nil, err
	}
	return &statusReport{Engine: st, Campaigns: campaigns, Proxies: proxies}, nil
}

func printStatus(w io.Writer, r *statusReport) {
	fmt.Fprintln(w, "\n=== Outreach Status ===")
	fmt.Fprintf(w, "\nPending actions: %d\n", r.Engine.PendingActions)

	fmt.Fprintf(w, "\nCampaigns (%d):\n", len(r.Campaigns))
	for _, c := range r.Campaigns {
		a := c.Analytics
		fmt.Fprintf(w, "  %-20s %-10s invites %d  messages %d  acceptance %.0f%%  reply %.0f%%\n",
			c.ID, c.Status, a.InvitesSent, a.MessagesSent, a.AcceptanceRate, a.ReplyRate)
		if c.PauseReason != "" {
			fmt.Fprintf(w, "  %-20s paused: %s\n", "", c.PauseReason)
		}
	}

	sort.Slice(r.Proxies, func(i, j int) bool { return r.Proxies[i].ID < r.Proxies[j].ID })
	fmt.Fprintf(w, "\nProxies (%d):\n", len(r.Proxies))
	for _, p := range r.Proxies {
		fmt.Fprintf(w, "  %-12s %-6s %-12s usage %d  issues %d\n", p.ID, p.Region, p.Status, p.UsageCount, p.IssueCount)
	}

	fmt.Fprintln(w, "\n=======================")
}
