package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cosmo-local-credit/doug/publish/history"
)

func (a *app) newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded deployments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runHistory(cmd)
		},
	}
	fs := cmd.Flags()
	fs.String("history-db", "", "SQLite database written by deploy --history-db")
	fs.Int("limit", 20, "number of sessions to list, zero for all")
	fs.String("session", "", "show the contracts of one session")
	return cmd
}

func (a *app) runHistory(cmd *cobra.Command) error {
	path := a.v.GetString("history-db")
	if path == "" {
		return fmt.Errorf("--history-db is required")
	}
	store, err := history.Open(cmd.Context(), path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	t := table.New().Border(lipgloss.NormalBorder())
	if raw := a.v.GetString("session"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse session id: %w", err)
		}
		contracts, err := store.Contracts(cmd.Context(), id)
		if err != nil {
			return err
		}
		t.Headers("CONTRACT", "ROLE", "STATUS", "ADDRESS", "ERROR")
		for _, c := range contracts {
			t.Row(c.Name, c.Role, c.Status, c.Address, c.Error)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		return err
	}

	sessions, err := store.ListSessions(cmd.Context(), a.v.GetInt("limit"))
	if err != nil {
		return err
	}
	t.Headers("SESSION", "STARTED", "MODE", "REGISTRY", "DEPLOYED", "FAILED")
	for _, s := range sessions {
		t.Row(s.ID.String(), s.StartedAt.Format(time.DateTime), s.Mode, s.RegistryAddress,
			strconv.Itoa(s.Completed), strconv.Itoa(s.Failed))
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return err
}
