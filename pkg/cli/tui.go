package cli

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color scheme for the TUI.
type Theme struct {
	Primary lipgloss.Color // Borders, title and labels
	Dim     lipgloss.Color // Help and status text
	Alert   lipgloss.Color // Status while recording
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Alert:   lipgloss.Color("#ff5f5f"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Border lipgloss.Style
	Help   lipgloss.Style
	Alert  lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border: lipgloss.NewStyle().Foreground(t.Primary),
		Help:   lipgloss.NewStyle().Foreground(t.Dim),
		Alert:  lipgloss.NewStyle().Bold(true).Foreground(t.Alert),
	}
}

// Section is a labeled block of lines. Weight sets its share of the
// available height relative to the other sections; zero counts as one.
type Section struct {
	Label   string
	Weight  int
	Content func() []string
}

// Frame renders a bordered screen: title and status, the sections, and a
// help line under the bottom border.
type Frame struct {
	Styles   Styles
	Title    string
	Status   string
	Alert    bool // render Status with the alert style
	Sections []Section
	Help     string
}

// Render renders the frame to a string of exactly height lines.
func (f Frame) Render(width, height int) string {
	if width < 8 || height < 6 {
		return "Loading..."
	}

	bc := f.Styles.Border
	inner := width - 4

	lines := []string{bc.Render("╭" + strings.Repeat("─", width-2) + "╮")}

	title := f.Styles.Title.Render(f.Title)
	statusStyle := f.Styles.Help
	if f.Alert {
		statusStyle = f.Styles.Alert
	}
	status := statusStyle.Render("[" + f.Status + "]")
	padding := max(0, width-5-lipgloss.Width(title)-lipgloss.Width(status))
	lines = append(lines, bc.Render("│")+" "+title+" "+status+strings.Repeat(" ", padding)+" "+bc.Render("│"))

	heights := f.Heights(height)
	for i, sec := range f.Sections {
		lines = append(lines, f.renderSection(bc, sec, heights[i], width, inner)...)
	}

	lines = append(lines, bc.Render("╰"+strings.Repeat("─", width-2)+"╯"))
	lines = append(lines, f.Styles.Help.Render(truncate(f.Help, width)))
	return strings.Join(lines, "\n")
}

// Heights returns the content rows each section gets when the frame is
// rendered height lines tall.
func (f Frame) Heights(height int) []int {
	// top, title, one label per section, bottom, help
	return splitHeights(height-4-len(f.Sections), f.Sections)
}

// splitHeights divides total rows among sections by weight. Every section
// gets at least one row; rounding leftovers go to the last section.
func splitHeights(total int, sections []Section) []int {
	out := make([]int, len(sections))
	if len(sections) == 0 {
		return out
	}
	weights := 0
	for _, s := range sections {
		weights += max(1, s.Weight)
	}
	used := 0
	for i, s := range sections {
		out[i] = max(1, total*max(1, s.Weight)/weights)
		used += out[i]
	}
	out[len(out)-1] = max(1, out[len(out)-1]+total-used)
	return out
}

func (f Frame) renderSection(bc lipgloss.Style, sec Section, height, width, inner int) []string {
	label := f.Styles.Label.Render(sec.Label)
	padding := max(0, width-3-lipgloss.Width(label))
	lines := []string{bc.Render("├") + bc.Render("─") + label + bc.Render(strings.Repeat("─", padding)) + bc.Render("┤")}

	var content []string
	if sec.Content != nil {
		content = sec.Content()
	}
	// Keep the newest lines.
	start := max(0, len(content)-height)
	for i := range height {
		text := ""
		if start+i < len(content) {
			text = content[start+i]
		}
		if lipgloss.Width(text) > inner {
			text = truncate(text, inner-1) + "…"
		}
		lines = append(lines, bc.Render("│")+" "+text+
			strings.Repeat(" ", max(0, inner-lipgloss.Width(text)))+" "+bc.Render("│"))
	}
	return lines
}

// truncate cuts s to at most width display cells.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	w := 0
	for i, r := range s {
		rw := lipgloss.Width(string(r))
		if w+rw > width {
			return s[:i]
		}
		w += rw
	}
	return s
}

// Wrap breaks text into lines of at most width cells at word boundaries.
// Words longer than width are cut.
func Wrap(text string, width int) []string {
	if width <= 0 {
		return nil
	}
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		line := ""
		for _, word := range strings.Fields(para) {
			for lipgloss.Width(word) > width {
				if line != "" {
					lines = append(lines, line)
					line = ""
				}
				head := truncate(word, width)
				if head == "" {
					_, n := utf8.DecodeRuneInString(word)
					head = word[:n]
				}
				lines = append(lines, head)
				word = word[len(head):]
			}
			if word == "" {
				continue
			}
			switch {
			case line == "":
				line = word
			case lipgloss.Width(line)+1+lipgloss.Width(word) <= width:
				line += " " + word
			default:
				lines = append(lines, line)
				line = word
			}
		}
		lines = append(lines, line)
	}
	return lines
}

var barRunes = []rune(" ▁▂▃▄▅▆▇█")

// Waveform draws samples in [-1, 1] as width columns of vertical bars,
// height rows tall. Each column shows the peak magnitude of its slice of
// samples. Empty input draws a flat line.
func Waveform(samples []float32, width, height int) []string {
	if width <= 0 || height <= 0 {
		return nil
	}
	levels := len(barRunes) - 1
	cols := make([]int, width) // bar height in eighths of a row
	if len(samples) > 0 {
		for c := range width {
			lo := c * len(samples) / width
			hi := max(lo+1, (c+1)*len(samples)/width)
			peak := 0.0
			for _, s := range samples[lo:min(hi, len(samples))] {
				peak = max(peak, math.Abs(float64(s)))
			}
			cols[c] = int(math.Round(min(peak, 1) * float64(height*levels)))
		}
	}

	rows := make([]string, height)
	for r := range height {
		// r counts from the top row.
		base := (height - 1 - r) * levels
		var b strings.Builder
		for _, v := range cols {
			fill := min(levels, max(0, v-base))
			if r == height-1 && fill == 0 {
				b.WriteRune('▁')
				continue
			}
			b.WriteRune(barRunes[fill])
		}
		rows[r] = b.String()
	}
	return rows
}
