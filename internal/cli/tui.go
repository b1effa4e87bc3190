package cli

import (
	"fmt"
	"image"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/atlaspack/pkg/atlas"
	"github.com/matzehuels/atlaspack/pkg/pipeline"
)

// List styles
var (
	listDimStyle   = lipgloss.NewStyle().Foreground(colorDim)
	listLabelStyle = lipgloss.NewStyle().Foreground(colorGray).Width(10)
	detailBox      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1)
)

// =============================================================================
// SlotRow - One slot of a finished build
// =============================================================================

// SlotRow is what the inspector shows for one slot.
type SlotRow struct {
	Index  int
	Label  string
	Source string
	Kind   atlas.Kind
	Origin image.Point
	UV     [4]float64
	Detail string
}

// slotRows joins the grid geometry of a build with its diagnostics.
func slotRows(res *pipeline.Result, sources, labels []string) []SlotRow {
	diags := make(map[int]atlas.Diagnostic, len(res.Diagnostics()))
	for _, d := range res.Diagnostics() {
		diags[d.Slot] = d
	}

	rows := make([]SlotRow, 0, res.Grid.SlotCount())
	for _, s := range res.Grid.Slots() {
		row := SlotRow{
			Index:  s.Index,
			Origin: s.Origin,
			UV:     res.Grid.UV(s.Index),
		}
		if s.Index < len(sources) {
			row.Source = sources[s.Index]
		}
		if s.Index < len(labels) {
			row.Label = labels[s.Index]
		}
		if d, ok := diags[s.Index]; ok {
			row.Kind = d.Kind
			row.Detail = d.Detail
		}
		rows = append(rows, row)
	}
	return rows
}

// =============================================================================
// SlotListModel - Interactive slot browser
// =============================================================================

// SlotListModel is the bubbletea model for browsing build results.
type SlotListModel struct {
	Rows       []SlotRow
	Cursor     int
	Height     int
	Offset     int
	FailedOnly bool
}

// NewSlotListModel creates a new slot list model.
func NewSlotListModel(rows []SlotRow) SlotListModel {
	return SlotListModel{
		Rows:   rows,
		Height: 12,
	}
}

// visible returns the indices into Rows currently shown.
func (m SlotListModel) visible() []int {
	idx := make([]int, 0, len(m.Rows))
	for i, r := range m.Rows {
		if m.FailedOnly && !r.Kind.Failed() {
			continue
		}
		idx = append(idx, i)
	}
	return idx
}

func (m SlotListModel) Init() tea.Cmd {
	return nil
}

func (m SlotListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		n := len(m.visible())
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < n-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "f":
			m.FailedOnly = !m.FailedOnly
			m.Cursor, m.Offset = 0, 0
		}
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 14
		if m.Height < 5 {
			m.Height = 5
		}
	}
	return m, nil
}

func (m SlotListModel) View() string {
	var b strings.Builder

	failed := 0
	for _, r := range m.Rows {
		if r.Kind.Failed() {
			failed++
		}
	}

	b.WriteString(StyleTitle.Render("Atlas Slots"))
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  %d composited, %d failed", len(m.Rows)-failed, failed)))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  f failed only  q quit"))
	b.WriteString("\n\n")

	vis := m.visible()
	if len(vis) == 0 {
		b.WriteString(StyleSuccess.Render("No failed slots"))
		b.WriteString("\n")
		return b.String()
	}

	end := min(m.Offset+m.Height, len(vis))
	rows := make([][]string, 0, end-m.Offset)
	for i := m.Offset; i < end; i++ {
		r := m.Rows[vis[i]]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		rows = append(rows, []string{cursor, strconv.Itoa(r.Index), r.Label, r.Kind.String(), r.Source})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Slot", "Label", "Status", "Source").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return styleHeader
			}
			i := m.Offset + row
			if i >= len(vis) {
				return lipgloss.NewStyle()
			}
			r := m.Rows[vis[i]]
			base := lipgloss.NewStyle()
			if i == m.Cursor {
				base = base.Bold(true)
			}
			if r.Kind.Failed() {
				return base.Foreground(colorRed)
			}
			return base.Foreground(colorGreen)
		})

	b.WriteString(t.Render())
	b.WriteString("\n")
	b.WriteString(detailBox.Render(m.detail(m.Rows[vis[m.Cursor]])))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(vis))))

	return b.String()
}

func (m SlotListModel) detail(r SlotRow) string {
	lines := []string{
		listLabelStyle.Render("Origin") + fmt.Sprintf("%d, %d", r.Origin.X, r.Origin.Y),
		listLabelStyle.Render("UV") + fmt.Sprintf("%.4f %.4f %.4f %.4f", r.UV[0], r.UV[1], r.UV[2], r.UV[3]),
	}
	if r.Detail != "" {
		lines = append(lines, listLabelStyle.Render("Error")+StyleError.Render(r.Detail))
	}
	return strings.Join(lines, "\n")
}
