package ui

import (
	"fmt"
	"strings"

	"agentdeck/internal/api"
	"agentdeck/internal/config"
	"agentdeck/internal/export"
	"agentdeck/internal/highlight"
	"agentdeck/internal/transcript"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

const (
	// Transcript tail window grows one page at a time toward the head.
	pageSize = 40
	// Scrolling within this many lines of the top reveals another page.
	nearTopLines = 3
	// Auto-scroll on live entries only when the view sits within this many
	// lines of the bottom.
	bottomThreshold = 4

	composerHeight = 3
)

type renderReason int

const (
	// renderReset repaints and jumps to the newest entry.
	renderReset renderReason = iota
	// renderOlder repaints after a load-older, keeping the previously
	// visible entries at the same screen position.
	renderOlder
	// renderLive repaints for new content, auto-scrolling only when the
	// view was already pinned near the bottom.
	renderLive
)

// visibleEntries returns the current tail window for the open session and
// whether older entries remain beyond it. Until the authoritative history
// lands, the cached snapshot heads the window; it is never part of the
// reconciler.
func (m *Model) visibleEntries() ([]*transcript.Entry, bool) {
	all := append([]*transcript.Entry(nil), m.cached[m.selectedID]...)
	if rec := m.recs[m.selectedID]; rec != nil {
		all = append(all, rec.Materialize()...)
	}
	if len(all) == 0 {
		return nil, false
	}
	n := m.shown[m.selectedID]
	if n <= 0 {
		n = pageSize
	}
	if n >= len(all) {
		return all, false
	}
	return all[len(all)-n:], true
}

// maybeLoadOlder grows the window by one page when the view has scrolled
// into the top margin and more history exists.
func (m *Model) maybeLoadOlder() tea.Cmd {
	if m.selectedID == "" || m.loadingOld {
		return nil
	}
	if m.viewport.YOffset > nearTopLines {
		return nil
	}
	_, hasMore := m.visibleEntries()
	if !hasMore {
		return nil
	}
	m.loadingOld = true
	m.shown[m.selectedID] += pageSize
	return m.renderTranscript(renderOlder)
}

func (m *Model) renderTranscript(reason renderReason) tea.Cmd {
	if m.selectedID == "" {
		return nil
	}
	entries, hasMore := m.visibleEntries()
	if len(entries) == 0 {
		if m.histLoaded[m.selectedID] {
			m.viewport.SetContent("No transcript yet. Press i to write the first message.")
		}
		return nil
	}

	md := export.BuildTranscriptMarkdown(entries)
	if hasMore {
		md = "_Older entries above. Scroll up to load._\n\n" + md
	}

	m.rendering = true
	m.renderNonce++
	nonce := m.renderNonce
	sessionID := m.selectedID
	wrap := m.viewport.Width - 2
	if wrap < 20 {
		wrap = 20
	}

	return func() tea.Msg {
		rendered := md
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(config.DefaultGlamourStyle),
			glamour.WithWordWrap(wrap),
		)
		if err == nil {
			if out, renderErr := r.Render(md); renderErr == nil {
				rendered = out
			}
		}
		return renderMsg{sessionID: sessionID, rendered: rendered, reason: reason, nonce: nonce}
	}
}

type renderMsg struct {
	sessionID string
	rendered  string
	reason    renderReason
	nonce     int
}

// applyRendered swaps the viewport content and repositions the view
// according to why the repaint happened.
func (m *Model) applyRendered(rendered string, reason renderReason) {
	oldTotal := m.viewport.TotalLineCount()
	oldOffset := m.viewport.YOffset
	wasNearBottom := oldTotal <= m.viewport.Height ||
		oldOffset >= oldTotal-m.viewport.Height-bottomThreshold

	content := rendered
	if q := strings.TrimSpace(m.searchQuery); q != "" {
		res := highlight.Search(rendered, q, func(s string) string {
			return searchMatchStyle.Render(s)
		})
		content = res.Text
		m.setMatchMeta(res)
	} else {
		m.clearMatches()
	}

	m.viewport.SetContent(content)
	newTotal := m.viewport.TotalLineCount()

	switch reason {
	case renderReset:
		m.viewport.GotoBottom()
	case renderOlder:
		delta := newTotal - oldTotal
		if delta < 0 {
			delta = 0
		}
		m.viewport.SetYOffset(m.clampOffset(oldOffset + delta))
		m.loadingOld = false
	case renderLive:
		if wasNearBottom {
			m.viewport.GotoBottom()
		} else {
			m.viewport.SetYOffset(m.clampOffset(oldOffset))
		}
	}
	m.lastRender = rendered
}

func (m *Model) clampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	maxOffset := m.viewport.TotalLineCount() - m.viewport.Height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if offset > maxOffset {
		return maxOffset
	}
	return offset
}

func (m *Model) setMatchMeta(res highlight.Result) {
	if res.Count == 0 || len(res.Lines) == 0 {
		m.clearMatches()
		return
	}
	m.matchCount = res.Count
	m.matchLines = append(m.matchLines[:0], res.Lines...)
	if m.matchIndex < 0 || m.matchIndex >= len(m.matchLines) {
		m.matchIndex = 0
	}
}

func (m *Model) clearMatches() {
	m.matchLines = nil
	m.matchCount = 0
	m.matchIndex = -1
}

func (m *Model) jumpToMatch(delta int) {
	if len(m.matchLines) == 0 {
		m.status = "No search matches in transcript"
		return
	}

	if m.matchIndex < 0 || m.matchIndex >= len(m.matchLines) {
		m.matchIndex = 0
	} else if delta > 0 {
		m.matchIndex = (m.matchIndex + 1) % len(m.matchLines)
	} else if delta < 0 {
		m.matchIndex = (m.matchIndex - 1 + len(m.matchLines)) % len(m.matchLines)
	}

	m.viewport.SetYOffset(m.clampOffset(m.matchLines[m.matchIndex]))
	m.status = fmt.Sprintf("Match %d/%d", m.matchIndex+1, m.matchCount)
}

func buildSessionSnippet(sess api.Session, entries []*transcript.Entry) string {
	var b strings.Builder
	b.WriteString("### Agent session\n\n")
	b.WriteString("- Session: `" + strings.TrimSpace(sess.ID) + "`\n")
	if sess.ProjectPath != "" {
		b.WriteString("- Project: `" + sess.ProjectPath + "`\n")
	}
	b.WriteString("- Notes: " + snippetNotes(sess, entries) + "\n")
	return b.String()
}

func snippetNotes(sess api.Session, entries []*transcript.Entry) string {
	note := strings.TrimSpace(sess.Preview)
	if note == "" {
		for _, e := range entries {
			if e.Role != transcript.RoleUser || e.Kind != transcript.KindMessage {
				continue
			}
			if note = strings.TrimSpace(e.Text); note != "" {
				break
			}
		}
	}
	if note == "" {
		return "n/a"
	}
	note = strings.Join(strings.Fields(note), " ")
	return shorten(note, 120)
}
