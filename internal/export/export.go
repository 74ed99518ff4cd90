package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agentdeck/internal/api"
	"agentdeck/internal/transcript"
)

type Exporter struct {
	overrideDir string
	cwd         string
}

func New(overrideDir string) (*Exporter, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve cwd: %w", err)
	}
	return &Exporter{overrideDir: strings.TrimSpace(overrideDir), cwd: cwd}, nil
}

func (e *Exporter) Export(session api.Session, entries []*transcript.Entry) (string, error) {
	path, err := e.outputPath(session)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	body := BuildTranscriptMarkdown(entries)
	md := BuildSessionMarkdown(session, body, time.Now().UTC())
	if err := os.WriteFile(path, []byte(md), 0o644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	return path, nil
}

// BuildTranscriptMarkdown renders reconciled entries as markdown. The same
// builder backs both file export and the on-screen transcript pane.
func BuildTranscriptMarkdown(entries []*transcript.Entry) string {
	var b strings.Builder
	for _, e := range entries {
		writeEntryMarkdown(&b, e)
	}
	return strings.TrimSpace(b.String()) + "\n"
}

func writeEntryMarkdown(b *strings.Builder, e *transcript.Entry) {
	text := strings.TrimSpace(e.Text)

	switch e.Kind {
	case transcript.KindSummary:
		if text == "" {
			return
		}
		b.WriteString("## Summary\n\n")
		b.WriteString("> " + strings.ReplaceAll(text, "\n", "\n> ") + "\n\n")
		return
	case transcript.KindLocalCommand:
		if text == "" {
			return
		}
		b.WriteString("## Local command\n\n")
		b.WriteString("```text\n" + text + "\n```\n\n")
		return
	case transcript.KindContext:
		if text == "" {
			return
		}
		b.WriteString("_" + firstLine(text) + "_\n\n")
		return
	}

	if text == "" && len(e.Tools) == 0 {
		return
	}

	switch e.Role {
	case transcript.RoleUser:
		header := "## You"
		if e.Provisional {
			header += " (sending...)"
		}
		b.WriteString(header + "\n\n")
		if text != "" {
			b.WriteString(text + "\n\n")
		}
	case transcript.RoleAssistant:
		b.WriteString("## Agent\n\n")
		if text != "" {
			b.WriteString(text + "\n\n")
		}
	default:
		b.WriteString("## System\n\n")
		if text != "" {
			b.WriteString("```text\n" + text + "\n```\n\n")
		}
	}

	for _, tool := range e.Tools {
		writeToolMarkdown(b, tool)
	}
}

func writeToolMarkdown(b *strings.Builder, tool *transcript.ToolInvocation) {
	b.WriteString("**" + toolLabel(tool) + "**\n\n")
	if summary := toolInputSummary(tool); summary != "" {
		b.WriteString("`" + summary + "`\n\n")
	}
	if tool.HasResult && strings.TrimSpace(tool.Result) != "" {
		b.WriteString("```text\n" + strings.TrimSpace(tool.Result) + "\n```\n\n")
	}
}

func toolLabel(tool *transcript.ToolInvocation) string {
	name := strings.TrimSpace(tool.Name)
	if name == "" {
		name = "tool"
	}
	switch tool.State {
	case transcript.ToolPending, transcript.ToolRunning:
		return name + " (running)"
	case transcript.ToolError:
		return name + " (error)"
	default:
		return name
	}
}

// toolInputSummary pulls a one-line gloss out of the raw input: the command
// for shell tools, a path for file tools, otherwise nothing.
func toolInputSummary(tool *transcript.ToolInvocation) string {
	if len(tool.Input) == 0 {
		return ""
	}
	fields := map[string]string{}
	if err := jsonStringFields(tool.Input, fields); err != nil {
		return ""
	}
	for _, key := range []string{"command", "file_path", "path", "pattern", "url"} {
		if v := strings.TrimSpace(fields[key]); v != "" {
			return firstLine(shorten(v, 120))
		}
	}
	return ""
}

func jsonStringFields(raw []byte, out map[string]string) error {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return err
	}
	for k, v := range obj {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return nil
}

func BuildSessionMarkdown(session api.Session, transcript string, now time.Time) string {
	var b strings.Builder
	b.WriteString("# Session " + session.ID + "\n\n")
	b.WriteString("Exported: " + now.Format(time.RFC3339) + "\n\n")
	b.WriteString("```text\n")
	b.WriteString("title: " + safeValue(session.Title) + "\n")
	b.WriteString("project: " + safeValue(session.ProjectPath) + "\n")
	if !session.LastActivity.IsZero() {
		b.WriteString("last_activity: " + session.LastActivity.UTC().Format(time.RFC3339) + "\n")
	}
	b.WriteString("```\n\n")
	b.WriteString(transcript)
	if !strings.HasSuffix(transcript, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

func (e *Exporter) outputPath(session api.Session) (string, error) {
	if e.overrideDir != "" {
		dir := e.overrideDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(e.cwd, dir)
		}
		return filepath.Join(dir, safeFileName(session.ID)+".md"), nil
	}

	root := e.cwd
	if session.ProjectPath != "" {
		if repoRoot := findRepoRoot(session.ProjectPath); repoRoot != "" {
			root = repoRoot
		}
	}
	return filepath.Join(root, "docs", "sessions", safeFileName(session.ID)+".md"), nil
}

func findRepoRoot(start string) string {
	if start == "" {
		return ""
	}
	path := filepath.Clean(start)
	for {
		if st, err := os.Stat(filepath.Join(path, ".git")); err == nil && st != nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return ""
		}
		path = parent
	}
}

func safeFileName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "session"
	}
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return replacer.Replace(s)
}

func safeValue(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "n/a"
	}
	return s
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func shorten(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
