package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input string
		want  Format
	}{
		{"text", FormatText},
		{"JSON", FormatJSON},
		{"md", FormatMarkdown},
		{"markdown", FormatMarkdown},
		{"toon", FormatTOON},
		{"yml", FormatYAML},
		{"YAML", FormatYAML},
		{"", FormatText},
		{"xml", FormatText},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseFormat(tt.input); got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatMachine(t *testing.T) {
	for _, f := range []Format{FormatJSON, FormatTOON, FormatYAML} {
		if !f.Machine() {
			t.Errorf("%s should be a machine format", f)
		}
	}
	for _, f := range []Format{FormatText, FormatMarkdown} {
		if f.Machine() {
			t.Errorf("%s should not be a machine format", f)
		}
	}
}

type moduleRow struct {
	Module string `json:"module"`
	Action string `json:"action"`
}

func sampleTable() *Table {
	return NewTable(
		"Tree Shake",
		[]string{"Module", "Action"},
		[][]string{{"app.util", "rewritten"}, {"app.dead", "deleted"}},
		[]string{"Files: 2", ""},
		[]moduleRow{{"app.util", "rewritten"}, {"app.dead", "deleted"}},
	)
}

func render(t *testing.T, format Format, data any) string {
	t.Helper()
	var buf bytes.Buffer
	f, err := NewFormatterTo(&buf, format, "", false)
	if err != nil {
		t.Fatalf("NewFormatterTo() error: %v", err)
	}
	if err := f.Output(data); err != nil {
		t.Fatalf("Output() error: %v", err)
	}
	return buf.String()
}

func TestTableRenderText(t *testing.T) {
	out := render(t, FormatText, sampleTable())
	for _, want := range []string{"Tree Shake", "MODULE", "ACTION", "app.util", "deleted"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestTableRenderMarkdown(t *testing.T) {
	out := render(t, FormatMarkdown, sampleTable())
	for _, want := range []string{"## Tree Shake", "| Module | Action |", "| --- | --- |", "| app.dead | deleted |"} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown output missing %q:\n%s", want, out)
		}
	}
}

func TestTableRenderJSON(t *testing.T) {
	out := render(t, FormatJSON, sampleTable())

	var rows []moduleRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(rows) != 2 || rows[1].Action != "deleted" {
		t.Errorf("JSON rows = %+v", rows)
	}
}

func TestTableRenderYAML(t *testing.T) {
	out := render(t, FormatYAML, sampleTable())

	var rows []map[string]string
	if err := yaml.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("invalid YAML: %v\n%s", err, out)
	}
	if len(rows) != 2 || rows[0]["module"] != "app.util" {
		t.Errorf("YAML rows = %v, want keys named by json tags", rows)
	}
}

func TestTableRenderTOON(t *testing.T) {
	out := render(t, FormatTOON, sampleTable())
	for _, want := range []string{"app.util", "rewritten", "deleted"} {
		if !strings.Contains(out, want) {
			t.Errorf("TOON output missing %q:\n%s", want, out)
		}
	}
}

func TestTableRenderDataWithoutData(t *testing.T) {
	table := NewTable("", []string{"A", "B"}, [][]string{{"1", "2"}}, nil, nil)
	rows, ok := table.RenderData().([]map[string]string)
	if !ok || len(rows) != 1 || rows[0]["B"] != "2" {
		t.Errorf("RenderData() = %v", table.RenderData())
	}
}

func TestSectionAndReport(t *testing.T) {
	report := &Report{
		Title: "Bundle",
		Sections: []Renderable{
			&Section{Title: "Destination", Content: "/tmp/out"},
			sampleTable(),
		},
	}

	text := render(t, FormatText, report)
	for _, want := range []string{"Bundle", "Destination", "/tmp/out", "app.util"} {
		if !strings.Contains(text, want) {
			t.Errorf("text report missing %q:\n%s", want, text)
		}
	}

	md := render(t, FormatMarkdown, report)
	if !strings.Contains(md, "# Bundle") || !strings.Contains(md, "## Destination") {
		t.Errorf("markdown report headings missing:\n%s", md)
	}
}

func TestOutputRawMarkdownFencesJSON(t *testing.T) {
	out := render(t, FormatMarkdown, map[string]int{"sweeps": 3})
	if !strings.HasPrefix(out, "```json\n") || !strings.Contains(out, `"sweeps": 3`) {
		t.Errorf("markdown raw output = %q", out)
	}
}

func TestNewFormatterWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	f, err := NewFormatterTo(os.Stdout, FormatJSON, path, true)
	if err != nil {
		t.Fatalf("NewFormatterTo() error: %v", err)
	}
	if f.Colored() {
		t.Error("file output should never be colored")
	}
	if err := f.Output(map[string]string{"k": "v"}); err != nil {
		t.Fatalf("Output() error: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"k": "v"`) {
		t.Errorf("file content = %s", data)
	}
}

func TestNewFormatterInvalidPath(t *testing.T) {
	if _, err := NewFormatterTo(os.Stdout, FormatText, filepath.Join(t.TempDir(), "missing", "out.txt"), false); err == nil {
		t.Error("NewFormatterTo() should fail for an unwritable path")
	}
}

func TestMessageMethodsPlain(t *testing.T) {
	var buf bytes.Buffer
	f, _ := NewFormatterTo(&buf, FormatText, "", false)
	f.Warning("module %s unchanged", "app.broken")
	f.Info("sweep %d converged", 3)

	out := buf.String()
	if out != "WARNING: module app.broken unchanged\nsweep 3 converged\n" {
		t.Errorf("plain messages = %q", out)
	}
}

func TestActionColor(t *testing.T) {
	for _, action := range []string{"deleted", "rewritten", "truncated", "unchanged", "other"} {
		if !strings.Contains(ActionColor(action), action) {
			t.Errorf("ActionColor(%s) lost its text", action)
		}
	}
}

func TestStripColor(t *testing.T) {
	if got := StripColor("\x1b[31mdeleted\x1b[0m"); got != "deleted" {
		t.Errorf("StripColor() = %q", got)
	}
	if got := StripColor("plain"); got != "plain" {
		t.Errorf("StripColor() = %q", got)
	}
}

func TestTableRenderMarkdownEscapesCells(t *testing.T) {
	table := NewTable("", []string{"Module", "Action"}, [][]string{{"a|b", "\x1b[31mdeleted\x1b[0m"}}, nil, nil)
	out := render(t, FormatMarkdown, table)
	if !strings.Contains(out, `| a\|b | deleted |`) {
		t.Errorf("markdown cells not escaped:\n%s", out)
	}

	rows := table.RenderData().([]map[string]string)
	if rows[0]["Action"] != "deleted" {
		t.Errorf("RenderData() kept color: %q", rows[0]["Action"])
	}
}
