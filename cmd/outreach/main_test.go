package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkedin-outreach/internal/actions"
	"linkedin-outreach/internal/models"
)

const exampleFixture = "../../config/seed.example.yaml"

func testOptions(t *testing.T) *options {
	t.Helper()

	dir := t.TempDir()
	cfg := "storage:\n  database_path: " + filepath.Join(dir, "outreach.db") + "\nlog_level: error\n"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return &options{configPath: path}
}

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFixtureExample(t *testing.T) {
	f, err := LoadFixture(exampleFixture)
	require.NoError(t, err)

	require.Len(t, f.Accounts, 1)
	require.Len(t, f.Proxies, 1)
	assert.Equal(t, "http", f.Proxies[0].Protocol)
	require.Len(t, f.Sequences, 1)
	assert.Len(t, f.Sequences[0].Nodes, 6)
	require.Len(t, f.Leads, 2)
	assert.NotEmpty(t, f.Leads[0].ID)
	assert.NotEqual(t, f.Leads[0].ID, f.Leads[1].ID)
}

func TestLoadFixtureRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "bad profile url",
			body: `
leads:
  - list_id: l1
    profile_url: not a url
`,
			want: "ProfileURL",
		},
		{
			name: "edge to unknown node",
			body: `
sequences:
  - id: s1
    nodes:
      - {id: start, type: start}
    edges:
      - {source: start, target: invite}
`,
			want: "unknown node",
		},
		{
			name: "campaign references",
			body: `
campaigns:
  - id: c1
    sequence_id: nope
    account_id: nobody
    lead_list_ids: [empty]
`,
			want: "unknown sequence",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFixture(writeFixture(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSeedThenStartCampaign(t *testing.T) {
	opts := testOptions(t)

	f, err := LoadFixture(exampleFixture)
	require.NoError(t, err)

	require.NoError(t, withApp(opts, func(app *App) error {
		res, err := app.Seed(f)
		require.NoError(t, err)
		assert.Equal(t, SeedResult{Accounts: 1, Proxies: 1, Sequences: 1, Campaigns: 1, Leads: 2}, res)

		acc, err := app.accounts.Get("acc-1")
		require.NoError(t, err)
		require.NotNil(t, acc)
		assert.True(t, acc.SessionValid)
		assert.Equal(t, 40, acc.Limits.Invites)
		return nil
	}))

	require.NoError(t, withEngine(opts, func(e *Engine) error {
		created, err := e.service.StartCampaign(context.Background(), "founders-q3")
		require.NoError(t, err)
		assert.Equal(t, 2, created)

		list, err := e.app.actions.ListByCampaign("founders-q3")
		require.NoError(t, err)
		require.Len(t, list, 2)
		for _, a := range list {
			assert.Equal(t, models.ActionProfileViewed, a.Type)
			assert.Equal(t, models.ActionPending, a.Status)
		}

		report, err := e.report()
		require.NoError(t, err)
		assert.Equal(t, 2, report.Engine.PendingActions)
		require.Len(t, report.Campaigns, 1)
		assert.Equal(t, models.CampaignRunning, report.Campaigns[0].Status)
		return nil
	}))
}

func TestCampaignCommands(t *testing.T) {
	opts := testOptions(t)
	f, err := LoadFixture(exampleFixture)
	require.NoError(t, err)
	require.NoError(t, withApp(opts, func(app *App) error {
		_, err := app.Seed(f)
		return err
	}))

	run := func(args ...string) (string, error) {
		root := newRootCommand()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetErr(&out)
		root.SetArgs(append([]string{"--config", opts.configPath}, args...))
		err := root.Execute()
		return out.String(), err
	}

	out, err := run("campaign", "start", "founders-q3")
	require.NoError(t, err)
	assert.Contains(t, out, "2 actions scheduled")

	out, err = run("campaign", "pause", "founders-q3", "--reason", "holiday")
	require.NoError(t, err)
	assert.Contains(t, out, "paused")

	_, err = run("campaign", "pause", "founders-q3")
	assert.ErrorIs(t, err, actions.ErrInvalidTransition)

	out, err = run("campaign", "resume", "founders-q3")
	require.NoError(t, err)
	assert.Contains(t, out, "resumed")

	out, err = run("status")
	require.NoError(t, err)
	assert.Contains(t, out, "founders-q3")
	assert.Contains(t, out, "Pending actions: 2")

	_, err = run("campaign", "stop", "missing")
	assert.ErrorIs(t, err, actions.ErrCampaignNotFound)

	out, err = run("status", "--json")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "{"))
}
