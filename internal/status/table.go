package status

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jandubois/rsvctl/internal/probe"
)

// Width selects the column layout of the local listing.
type Width int

const (
	WidthDefault Width = iota
	WidthWide
	WidthFull
)

var (
	defaultColumns = []int{42, 15, 20}
	wideColumns    = []int{80, 20, 40}
	headers        = []string{"Metric", "Service", "Hostname"}

	enabledStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	disabledStyle = lipgloss.NewStyle().Faint(true)
	unknownStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Table renders local-format rows as aligned columns.
type Table struct {
	width Width
	color bool
}

// NewTable creates a Table. color enables styled status cells.
func NewTable(width Width, color bool) *Table {
	return &Table{width: width, color: color}
}

func (t *Table) columns(rows []Row) []int {
	switch t.width {
	case WidthWide:
		return wideColumns
	case WidthFull:
		cols := make([]int, len(headers))
		for i, h := range headers {
			cols[i] = len(h)
		}
		for _, row := range rows {
			for i, cell := range cells(row) {
				cols[i] = max(cols[i], lipgloss.Width(cell))
			}
		}
		return cols
	default:
		return defaultColumns
	}
}

func cells(row Row) []string {
	return []string{row.Metric, row.Service, row.Endpoint}
}

// truncateLeft keeps the end of s, which is the distinguishing part of
// dotted metric names and FQDNs. Widths count runes.
func truncateLeft(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 2 {
		return string(r[len(r)-width:])
	}
	return ".." + string(r[len(r)-width+2:])
}

// Render writes the header and one line per row.
func (t *Table) Render(w io.Writer, rows []Row) error {
	cols := t.columns(rows)

	line := func(values []string, status string) string {
		parts := make([]string, len(values))
		for i, v := range values {
			if t.width != WidthFull {
				v = truncateLeft(v, cols[i])
			}
			cell := fmt.Sprintf("%-*s", cols[i], v)
			if i == len(values)-1 {
				cell = strings.TrimRight(cell, " ")
				cell = t.style(status, cell)
			}
			parts[i] = cell
		}
		return strings.Join(parts, " ")
	}

	out := []string{line(headers, "")}
	underline := make([]string, len(cols))
	for i, c := range cols {
		underline[i] = strings.Repeat("-", c)
	}
	out = append(out, strings.Join(underline, " "))

	for _, row := range rows {
		out = append(out, line(cells(row), row.Status))
	}

	_, err := fmt.Fprintln(w, strings.Join(out, "\n"))
	return err
}

func (t *Table) style(status, cell string) string {
	if !t.color {
		return cell
	}
	switch probe.State(status) {
	case probe.StateEnabled:
		return enabledStyle.Render(cell)
	case probe.StateDisabled:
		return disabledStyle.Render(cell)
	case probe.StateUnknown:
		return unknownStyle.Render(cell)
	default:
		return cell
	}
}

// RenderByKey writes non-local listings: one key header per probe followed
// by an indented line per endpoint.
func RenderByKey(w io.Writer, rows []Row) error {
	var b strings.Builder
	var lastKey string
	for _, row := range rows {
		if row.Key != lastKey {
			b.WriteString(row.Key + "\n")
			lastKey = row.Key
		}
		fmt.Fprintf(&b, "               %-30s : %s\n", row.Endpoint, row.Status)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
