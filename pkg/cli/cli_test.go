package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
)

func TestFrameRender(t *testing.T) {
	f := Frame{
		Styles: NewStyles(DefaultTheme),
		Title:  "EduTalk",
		Status: "recording",
		Alert:  true,
		Sections: []Section{
			{Label: "Wave", Content: func() []string { return []string{"▁▁▁"} }},
			{Label: "Conversation", Weight: 3, Content: func() []string {
				var lines []string
				for i := range 50 {
					lines = append(lines, fmt.Sprintf("line %d", i))
				}
				return lines
			}},
			{Label: "Logs"},
		},
		Help: "space talk/stop · q quit",
	}

	out := f.Render(60, 30)
	lines := strings.Split(out, "\n")
	if len(lines) != 30 {
		t.Fatalf("rendered %d lines, want 30", len(lines))
	}
	for i, l := range lines[:len(lines)-1] {
		if w := lipgloss.Width(l); w != 60 {
			t.Errorf("line %d width = %d: %q", i, w, l)
		}
	}
	if !strings.Contains(out, "line 49") || strings.Contains(out, "line 0 ") {
		t.Errorf("conversation section should show the newest lines")
	}
	if !strings.Contains(out, "[recording]") {
		t.Errorf("status missing")
	}
	if h := f.Heights(30); h[0]+h[1]+h[2] != 30-4-3 || h[1] <= h[0] {
		t.Errorf("Heights = %v", h)
	}
	if f.Render(0, 0) != "Loading..." {
		t.Errorf("zero size should render placeholder")
	}
}

func TestSplitHeights(t *testing.T) {
	got := splitHeights(10, []Section{{}, {Weight: 3}})
	if got[0]+got[1] != 10 || got[1] <= got[0] {
		t.Fatalf("splitHeights = %v", got)
	}
	got = splitHeights(1, []Section{{}, {}, {}})
	for _, h := range got {
		if h < 1 {
			t.Fatalf("splitHeights gave empty section: %v", got)
		}
	}
}

func TestWrap(t *testing.T) {
	tests := []struct {
		text  string
		width int
		want  []string
	}{
		{"the quick brown fox", 9, []string{"the quick", "brown fox"}},
		{"a\nb c", 10, []string{"a", "b c"}},
		{"abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"", 5, []string{""}},
	}
	for _, tt := range tests {
		got := Wrap(tt.text, tt.width)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("Wrap(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
		}
	}
	if got := Wrap("日本", 1); len(got) != 2 {
		t.Errorf("Wrap wide runes = %q", got)
	}
}

func TestWaveform(t *testing.T) {
	flat := Waveform(nil, 8, 2)
	if len(flat) != 2 || flat[1] != strings.Repeat("▁", 8) || strings.TrimSpace(flat[0]) != "" {
		t.Fatalf("flat waveform = %q", flat)
	}

	samples := []float32{0, 0, 1, -1}
	rows := Waveform(samples, 2, 2)
	if []rune(rows[0])[1] != '█' || []rune(rows[1])[1] != '█' {
		t.Fatalf("full-scale column not full: %q", rows)
	}
	if []rune(rows[0])[0] != ' ' {
		t.Fatalf("silent column drew a bar: %q", rows)
	}

	half := Waveform([]float32{0.5}, 1, 2)
	if half[0] != " " || half[1] != "█" {
		t.Fatalf("half-scale = %q", half)
	}
}

func TestLogWriter(t *testing.T) {
	w := NewLogWriter(3)
	fmt.Fprintln(w, "one")
	fmt.Fprint(w, "two\nthree\n")
	if got := w.Lines(); strings.Join(got, ",") != "one,two,three" {
		t.Fatalf("Lines = %q", got)
	}
	fmt.Fprintln(w, "four")
	if got := w.Lines(); strings.Join(got, ",") != "two,three,four" {
		t.Fatalf("Lines after wrap = %q", got)
	}
	if got := <-w.Channel(); got != "one" {
		t.Fatalf("first channel line = %q", got)
	}
}

func TestPaths(t *testing.T) {
	p := &Paths{AppName: "edutalk", ConfigRoot: t.TempDir()}
	if got := p.ConfigFile(); got != filepath.Join(p.ConfigRoot, "edutalk", "config.yaml") {
		t.Errorf("ConfigFile = %q", got)
	}
	if got := p.DataDir(); got != filepath.Join(p.ConfigRoot, "edutalk", "data") {
		t.Errorf("DataDir = %q", got)
	}
	if err := p.EnsureAppDir(); err != nil {
		t.Fatalf("EnsureAppDir: %v", err)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{999 * time.Millisecond, "999ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m30.0s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
	if got := FormatBytes(1536); got != "1.50 KB" {
		t.Errorf("FormatBytes = %q", got)
	}
	if got := MaskAPIKey("sk-1234567890"); got != "sk-1*****7890" {
		t.Errorf("MaskAPIKey = %q", got)
	}
	if got := MaskAPIKey("short"); got != "*****" {
		t.Errorf("MaskAPIKey short = %q", got)
	}
}

func TestOutput(t *testing.T) {
	data := map[string]any{"name": "test", "value": 123}

	var buf bytes.Buffer
	if err := Output(&buf, data, FormatJSON); err != nil {
		t.Fatalf("Output json: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil || back["name"] != "test" {
		t.Fatalf("json output = %s (%v)", buf.String(), err)
	}

	buf.Reset()
	if err := Output(&buf, data, ""); err != nil {
		t.Fatalf("Output yaml: %v", err)
	}
	if !strings.Contains(buf.String(), "name: test") {
		t.Fatalf("yaml output = %s", buf.String())
	}

	if err := Output(&buf, data, "xml"); err == nil {
		t.Fatal("unsupported format accepted")
	}
}
