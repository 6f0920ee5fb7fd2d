package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/depcheck/pkg/resolver"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// OutdatedListModel - Interactive caveat selection
// =============================================================================

// outdatedItem is one row of the selection list.
type outdatedItem struct {
	Group string
	Dep   resolver.Outdated
}

// OutdatedListModel is the bubbletea model for picking the outdated
// dependencies that should get a caveat.
type OutdatedListModel struct {
	Items     []outdatedItem
	Cursor    int
	Checked   map[int]bool
	Confirmed bool
	Height    int
	Offset    int
}

// NewOutdatedListModel creates a new selection model with nothing checked.
func NewOutdatedListModel(items []outdatedItem) OutdatedListModel {
	return OutdatedListModel{
		Items:   items,
		Checked: make(map[int]bool),
		Height:  15,
	}
}

// Selected returns the checked items in list order, or nil if the user quit.
func (m OutdatedListModel) Selected() []outdatedItem {
	if !m.Confirmed {
		return nil
	}
	var out []outdatedItem
	for i, item := range m.Items {
		if m.Checked[i] {
			out = append(out, item)
		}
	}
	return out
}

func (m OutdatedListModel) Init() tea.Cmd {
	return nil
}

func (m OutdatedListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
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
			if m.Cursor < len(m.Items)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case " ", "x":
			if len(m.Items) > 0 {
				m.Checked[m.Cursor] = !m.Checked[m.Cursor]
			}
		case "a":
			all := !m.allChecked()
			for i := range m.Items {
				m.Checked[i] = all
			}
		case "enter":
			m.Confirmed = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 6
		if m.Height < 5 {
			m.Height = 5
		}
	}
	return m, nil
}

func (m OutdatedListModel) allChecked() bool {
	for i := range m.Items {
		if !m.Checked[i] {
			return false
		}
	}
	return true
}

func (m OutdatedListModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Accept Outdated Dependencies"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  space toggle  a all  ⏎ save  q quit"))
	b.WriteString("\n\n")

	end := min(m.Offset+m.Height, len(m.Items))

	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		item := m.Items[i]

		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		box := "[ ]"
		if m.Checked[i] {
			box = "[x]"
		}
		rows = append(rows, []string{cursor + box, item.Dep.Name, item.Group, item.Dep.Required, item.Dep.Stable})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Package", "Group", "Requires", "Stable").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			idx := m.Offset + row
			switch {
			case idx == m.Cursor:
				return listSelectedStyle
			case m.Checked[idx]:
				return listNormalStyle.Foreground(colorGreen)
			case col == 2:
				return listDimStyle
			}
			return listNormalStyle
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d] %d selected", m.Cursor+1, len(m.Items), len(m.checkedIndexes()))))

	return b.String()
}

func (m OutdatedListModel) checkedIndexes() []int {
	var out []int
	for i := range m.Items {
		if m.Checked[i] {
			out = append(out, i)
		}
	}
	return out
}
