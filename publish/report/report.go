// Package report renders a deployment session for people and for machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/cosmo-local-credit/doug/publish/deploy"
)

type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

const (
	StatusCreated  = "created"
	StatusAttached = "attached"
	StatusDeployed = "deployed"
	StatusFailed   = "failed"
)

var (
	successColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	errorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}
	mutedColor   = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#999999"}

	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	successStyle = cellStyle.Foreground(successColor)
	errorStyle   = cellStyle.Foreground(errorColor)
	borderStyle  = lipgloss.NewStyle().Foreground(mutedColor)
)

type (
	Row struct {
		Contract string  `json:"contract" yaml:"contract"`
		Role     string  `json:"role" yaml:"role"`
		Address  string  `json:"address,omitempty" yaml:"address,omitempty"`
		Block    *uint64 `json:"block,omitempty" yaml:"block,omitempty"`
		TxHash   string  `json:"tx_hash,omitempty" yaml:"tx_hash,omitempty"`
		Status   string  `json:"status" yaml:"status"`
		Error    string  `json:"error,omitempty" yaml:"error,omitempty"`
	}

	Document struct {
		Session     uuid.UUID `json:"session" yaml:"session"`
		Mode        string    `json:"mode" yaml:"mode"`
		MarkerBlock *uint64   `json:"marker_block,omitempty" yaml:"marker_block,omitempty"`
		Registry    Row       `json:"registry" yaml:"registry"`
		Contracts   []Row     `json:"contracts" yaml:"contracts"`
		Completed   int       `json:"completed" yaml:"completed"`
		Failed      int       `json:"failed" yaml:"failed"`
		StartedAt   time.Time `json:"started_at" yaml:"started_at"`
		FinishedAt  time.Time `json:"finished_at" yaml:"finished_at"`
	}
)

// ParseFormat accepts table, json and yaml case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}

// Build flattens s into rows, children in the order they were requested.
func Build(s *deploy.Session) Document {
	doc := Document{
		Session:     s.ID,
		MarkerBlock: s.RegistryBlock,
		Completed:   len(s.Completed),
		Failed:      len(s.Failures),
		StartedAt:   s.StartedAt,
		FinishedAt:  s.FinishedAt,
		Contracts:   make([]Row, 0, len(s.Pending)),
	}
	if s.Mode != nil {
		doc.Mode = s.Mode.String()
	}

	doc.Registry = contractRow(s.Registry)
	doc.Registry.Status = StatusAttached
	if s.RegistryCreated {
		doc.Registry.Status = StatusCreated
	}

	for _, name := range s.Pending {
		if c, ok := s.Completed[name]; ok {
			row := contractRow(c)
			row.Status = StatusDeployed
			doc.Contracts = append(doc.Contracts, row)
			continue
		}
		row := Row{Contract: name, Status: StatusFailed}
		if r, ok := s.Roles[name]; ok {
			row.Role = r.String()
		}
		if f, ok := s.Failures[name]; ok {
			row.Error = f.Error()
		}
		doc.Contracts = append(doc.Contracts, row)
	}
	return doc
}

func contractRow(c deploy.DeployedContract) Row {
	row := Row{
		Contract: c.Name,
		Role:     c.Role.String(),
		Address:  c.Address.Hex(),
		Block:    c.DeployedAtBlock,
	}
	if c.TxHash != (common.Hash{}) {
		row.TxHash = c.TxHash.Hex()
	}
	return row
}

// Write renders s to w in the given format.
func Write(w io.Writer, s *deploy.Session, format Format) error {
	doc := Build(s)
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode yaml report: %w", err)
		}
		return enc.Close()
	case FormatTable, "":
		_, err := fmt.Fprintln(w, Table(doc))
		return err
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// Table renders the registry and its children with a status column.
func Table(doc Document) string {
	rows := append([]Row{doc.Registry}, doc.Contracts...)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("CONTRACT", "ROLE", "ADDRESS", "STATUS")
	for _, r := range rows {
		t.Row(r.Contract, r.Role, r.Address, r.Status)
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		if col == 3 && row >= 0 && row < len(rows) {
			if rows[row].Status == StatusFailed {
				return errorStyle
			}
			return successStyle
		}
		return cellStyle
	})

	var b strings.Builder
	b.WriteString(t.Render())
	for _, r := range doc.Contracts {
		if r.Error != "" {
			b.WriteString("\n")
			b.WriteString(errorStyle.Render(r.Error))
		}
	}
	fmt.Fprintf(&b, "\n%d deployed, %d failed", doc.Completed, doc.Failed)
	return b.String()
}
