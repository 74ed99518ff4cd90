package ui

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"agentdeck/internal/api"
	"agentdeck/internal/approval"
	"agentdeck/internal/cache"
	"agentdeck/internal/clipboard"
	"agentdeck/internal/config"
	"agentdeck/internal/export"
	"agentdeck/internal/status"
	"agentdeck/internal/stream"
	"agentdeck/internal/transcript"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
)

type Model struct {
	cfg      config.AppConfig
	client   *api.Client
	store    *cache.Store // nil when -no-cache
	exporter *export.Exporter
	log      *slog.Logger

	list     list.Model
	viewport viewport.Model
	composer textarea.Model
	rename   textinput.Model
	search   textinput.Model
	help     help.Model
	spinner  spinner.Model
	keys     keyMap

	width  int
	height int

	focusOnList   bool
	composing     bool
	searchMode    bool
	renameMode    bool
	confirmDelete bool
	loading       bool
	searchQuery   string

	sessions map[string]api.Session
	listed   map[string]bool

	selectedID string
	recs       map[string]*transcript.Reconciler
	cached     map[string][]*transcript.Entry
	shown      map[string]int
	histLoaded map[string]bool
	loadedOnce bool
	loadingOld bool

	poller *status.Poller
	flow   *approval.Workflow

	sub        *stream.Subscription
	streamUp   bool
	needResync bool

	sending   bool
	pendingID string

	rendering   bool
	renderNonce int
	lastRender  string
	matchLines  []int
	matchCount  int
	matchIndex  int

	status string
	err    error
}

type sessionsMsg struct {
	sessions  []api.Session
	fromCache bool
	err       error
}
type historyMsg struct {
	sessionID string
	entries   []*transcript.Entry
	fromCache bool
	err       error
}
type streamMsg struct {
	ev stream.Event
	ok bool
}
type pollTickMsg time.Time
type pollDoneMsg struct {
	started time.Time
	results map[string]status.SessionStatus
	err     error
}
type sendDoneMsg struct {
	sessionID string
	localID   string
	text      string
	err       error
}
type resumeDoneMsg struct {
	sessionID string
	err       error
}
type deleteDoneMsg struct {
	sessionID string
	err       error
}
type renameDoneMsg struct {
	sessionID string
	title     string
	err       error
}
type exportMsg struct {
	path string
	err  error
}
type copyMsg struct {
	what string
	err  error
}
type persistedMsg struct{}

type sessionItem struct {
	s     api.Session
	badge string
}

func (i sessionItem) Title() string {
	name := shorten(i.s.DisplayName(), 28)
	if i.badge != "" {
		return name + "  " + i.badge
	}
	return name
}

func (i sessionItem) Description() string {
	meta := "last " + formatRelative(i.s.LastActivity)
	if i.s.Preview == "" {
		return meta
	}
	return meta + " | " + shorten(i.s.Preview, 48)
}

func (i sessionItem) FilterValue() string {
	return strings.ToLower(i.s.ID + " " + i.s.Title + " " + i.s.ProjectPath + " " + i.s.Preview)
}

func NewModel(cfg config.AppConfig, client *api.Client, store *cache.Store, exporter *export.Exporter, log *slog.Logger) Model {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 40, 20)
	l.Title = "Sessions"
	l.SetShowFilter(false)
	l.SetFilteringEnabled(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.DisableQuitKeybindings()

	vp := viewport.New(60, 20)
	vp.SetContent("Connecting to backend...")

	ta := textarea.New()
	ta.Placeholder = "Message the agent..."
	ta.SetHeight(composerHeight)
	ta.ShowLineNumbers = false
	ta.CharLimit = 0

	ri := textinput.New()
	ri.Placeholder = "Session title"
	ri.CharLimit = 120

	si := textinput.New()
	si.Placeholder = "Search transcript..."
	si.Prompt = "/ "
	si.CharLimit = 256

	h := help.New()
	h.ShowAll = false

	sp := spinner.New()
	sp.Spinner = spinner.Points

	return Model{
		cfg:      cfg,
		client:   client,
		store:    store,
		exporter: exporter,
		log:      log,

		list:     l,
		viewport: vp,
		composer: ta,
		rename:   ri,
		search:   si,
		help:     h,
		spinner:  sp,
		keys:     defaultKeys(),

		focusOnList: true,
		loading:     true,

		sessions:   make(map[string]api.Session),
		listed:     make(map[string]bool),
		recs:       make(map[string]*transcript.Reconciler),
		cached:     make(map[string][]*transcript.Entry),
		shown:      make(map[string]int),
		histLoaded: make(map[string]bool),

		poller: status.NewPoller(),
		flow:   approval.NewWorkflow(),

		matchIndex: -1,
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.sessionsCmd(), m.pollTickCmd()}
	if m.store != nil {
		cmds = append(cmds, m.cachedSessionsCmd())
	}
	return tea.Batch(cmds...)
}

func (m Model) sessionsCmd() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s, err := client.ListSessions(ctx)
		return sessionsMsg{sessions: s, err: err}
	}
}

func (m Model) cachedSessionsCmd() tea.Cmd {
	store := m.store
	return func() tea.Msg {
		s, err := store.Sessions()
		return sessionsMsg{sessions: s, fromCache: true, err: err}
	}
}

func (m Model) historyCmd(sessionID string) tea.Cmd {
	if sessionID == "" {
		return nil
	}
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		entries, err := client.History(ctx, sessionID)
		return historyMsg{sessionID: sessionID, entries: entries, err: err}
	}
}

func (m Model) cachedHistoryCmd(sessionID string) tea.Cmd {
	if m.store == nil || sessionID == "" {
		return nil
	}
	store := m.store
	return func() tea.Msg {
		entries, ok, err := store.Transcript(sessionID)
		if err != nil || !ok {
			return historyMsg{sessionID: sessionID, fromCache: true, err: err}
		}
		return historyMsg{sessionID: sessionID, entries: entries, fromCache: true}
	}
}

func (m Model) pollTickCmd() tea.Cmd {
	return tea.Tick(m.cfg.PollInterval, func(t time.Time) tea.Msg {
		return pollTickMsg(t)
	})
}

func (m Model) pollCmd(ids []string, started time.Time) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		results, err := client.SessionStatuses(ctx, ids)
		return pollDoneMsg{started: started, results: results, err: err}
	}
}

func (m Model) sendCmd(sessionID, projectPath, localID, text string) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := client.SendMessage(ctx, sessionID, projectPath, text)
		return sendDoneMsg{sessionID: sessionID, localID: localID, text: text, err: err}
	}
}

func (m Model) resumeCmd(req approval.Request, alwaysAllow bool) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		pattern := ""
		if alwaysAllow {
			pattern = req.Pattern
		}
		err := client.Resume(ctx, req.SessionID, req.ProjectPath, pattern, alwaysAllow)
		return resumeDoneMsg{sessionID: req.SessionID, err: err}
	}
}

func (m Model) deleteCmd(sess api.Session) tea.Cmd {
	client := m.client
	store := m.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := client.DeleteSession(ctx, projectFolder(sess.ProjectPath), sess.ID); err != nil {
			return deleteDoneMsg{sessionID: sess.ID, err: err}
		}
		if store != nil {
			_ = store.Forget(sess.ID)
		}
		return deleteDoneMsg{sessionID: sess.ID}
	}
}

func (m Model) renameCmd(sessionID, title string) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := client.RenameSession(ctx, sessionID, title)
		return renameDoneMsg{sessionID: sessionID, title: title, err: err}
	}
}

func (m Model) exportCmd(sessionID string) tea.Cmd {
	rec := m.recs[sessionID]
	sess, ok := m.sessions[sessionID]
	if rec == nil || !ok {
		return nil
	}
	exporter := m.exporter
	entries := rec.Materialize()
	return func() tea.Msg {
		path, err := exporter.Export(sess, entries)
		return exportMsg{path: path, err: err}
	}
}

func (m Model) copyCmd(text, what string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := clipboard.Copy(ctx, text); err != nil {
			return copyMsg{what: what, err: err}
		}
		return copyMsg{what: what}
	}
}

func (m Model) persistCmd(sessionID string) tea.Cmd {
	if m.store == nil || sessionID == "" || !m.histLoaded[sessionID] {
		return nil
	}
	rec := m.recs[sessionID]
	if rec == nil {
		return nil
	}
	store := m.store
	entries := rec.Materialize()
	return func() tea.Msg {
		_ = store.SaveTranscript(sessionID, entries)
		return persistedMsg{}
	}
}

func waitForStream(sub *stream.Subscription) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub.Events()
		return streamMsg{ev: ev, ok: ok}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		cmds = append(cmds, m.renderTranscript(renderLive))

	case sessionsMsg:
		if msg.err != nil {
			if !msg.fromCache {
				m.loading = false
				m.err = msg.err
				m.status = "Session list failed: " + msg.err.Error()
			}
			break
		}
		if msg.fromCache && m.loadedOnce {
			break
		}
		if !msg.fromCache {
			m.loading = false
			m.loadedOnce = true
			m.err = nil
			if m.store != nil {
				store, sessions := m.store, msg.sessions
				cmds = append(cmds, func() tea.Msg {
					_ = store.SaveSessions(sessions)
					return persistedMsg{}
				})
			}
		}
		m.applySessions(msg.sessions)

	case historyMsg:
		if msg.err != nil {
			if !msg.fromCache {
				m.err = msg.err
				m.status = "History load failed: " + msg.err.Error()
			}
			break
		}
		if msg.fromCache {
			// A snapshot stores merged turns under the first turn's
			// identity, so it seeds the display only; the reconciler
			// sees nothing but authoritative entries.
			if !m.histLoaded[msg.sessionID] && len(msg.entries) > 0 {
				m.cached[msg.sessionID] = msg.entries
				if m.selectedID == msg.sessionID {
					cmds = append(cmds, m.renderTranscript(renderReset))
				}
			}
			break
		}
		rec := m.rec(msg.sessionID)
		for _, e := range msg.entries {
			rec.Ingest(e)
		}
		delete(m.cached, msg.sessionID)
		m.histLoaded[msg.sessionID] = true
		cmds = append(cmds, m.persistCmd(msg.sessionID))
		if m.selectedID == msg.sessionID {
			cmds = append(cmds, m.renderTranscript(renderReset))
		}

	case streamMsg:
		// Events from a subscription torn down by a session switch are
		// stale; only the open session's stream keeps a waiter armed.
		if !msg.ok || msg.ev.SessionID != m.selectedID {
			break
		}
		if m.sub != nil {
			cmds = append(cmds, waitForStream(m.sub))
		}
		switch msg.ev.Kind {
		case stream.Connected:
			m.streamUp = true
			if m.needResync {
				m.needResync = false
				cmds = append(cmds, m.historyCmd(m.selectedID))
			}
		case stream.Disconnected:
			m.streamUp = false
			m.needResync = true
		case stream.Entry:
			m.rec(m.selectedID).Ingest(msg.ev.Entry)
			cmds = append(cmds, m.renderTranscript(renderLive))
		}

	case pollTickMsg:
		if ids, started, ok := m.poller.BeginPoll(time.Time(msg)); ok {
			cmds = append(cmds, m.pollCmd(ids, started))
		}
		cmds = append(cmds, m.pollTickCmd())

	case pollDoneMsg:
		m.poller.FinishPoll(msg.started, msg.results, msg.err)
		if msg.err != nil {
			m.status = "Status poll failed; badges may be stale"
			m.log.Warn("status poll failed", "err", msg.err)
		}
		m.syncApproval()
		m.refreshBadges()
		m.syncComposer()

	case sendDoneMsg:
		m.sending = false
		m.pendingID = ""
		if msg.err != nil {
			if rec := m.recs[msg.sessionID]; rec != nil {
				rec.Remove(msg.localID)
			}
			m.poller.ClearLocal(msg.sessionID)
			m.syncComposer()
			m.err = msg.err
			m.status = "Send failed: " + msg.err.Error()
			if m.selectedID == msg.sessionID && strings.TrimSpace(m.composer.Value()) == "" {
				m.composer.SetValue(msg.text)
			}
		} else {
			m.status = "Sent"
			cmds = append(cmds, m.refreshStatuses())
		}
		if m.selectedID == msg.sessionID {
			cmds = append(cmds, m.renderTranscript(renderLive))
		}

	case resumeDoneMsg:
		m.flow.Finish(msg.err)
		if msg.err != nil {
			m.status = "Approval failed: " + msg.err.Error()
		} else {
			m.status = "Approved"
			m.poller.MarkLocal(msg.sessionID, status.Working, time.Now())
			m.refreshBadges()
			cmds = append(cmds, m.refreshStatuses())
		}
		m.resize()

	case deleteDoneMsg:
		m.confirmDelete = false
		if msg.err != nil {
			m.err = msg.err
			m.status = "Delete failed: " + msg.err.Error()
			break
		}
		m.status = "Session deleted"
		m.forgetSession(msg.sessionID)
		cmds = append(cmds, m.sessionsCmd())

	case renameDoneMsg:
		if msg.err != nil {
			m.err = msg.err
			m.status = "Rename failed: " + msg.err.Error()
			break
		}
		if sess, ok := m.sessions[msg.sessionID]; ok {
			sess.Title = msg.title
			m.sessions[msg.sessionID] = sess
		}
		m.status = "Renamed"
		m.refreshBadges()

	case renderMsg:
		if msg.nonce != m.renderNonce || msg.sessionID != m.selectedID {
			break
		}
		m.rendering = false
		m.applyRendered(msg.rendered, msg.reason)

	case exportMsg:
		if msg.err != nil {
			m.err = msg.err
			m.status = "Export failed: " + msg.err.Error()
		} else {
			m.status = "Exported: " + msg.path
		}

	case copyMsg:
		if msg.err != nil {
			m.err = msg.err
			m.status = "Could not copy: " + msg.err.Error()
		} else {
			m.status = "Copied " + msg.what
		}

	case persistedMsg:
		// cache writes are best effort

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.loading || m.rendering {
		var spin tea.Cmd
		m.spinner, spin = m.spinner.Update(msg)
		cmds = append(cmds, spin)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	if msg.Type == tea.KeyCtrlC {
		return m, tea.Sequence(m.persistCmd(m.selectedID), tea.Quit)
	}

	if m.searchMode {
		return m.handleSearchKey(msg)
	}
	if m.renameMode {
		return m.handleRenameKey(msg)
	}
	if m.confirmDelete {
		if msg.String() == "y" {
			if sess, ok := m.sessions[m.selectedID]; ok {
				return m, m.deleteCmd(sess)
			}
		}
		m.confirmDelete = false
		m.status = ""
		return m, nil
	}
	if m.composing {
		return m.handleComposerKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Sequence(m.persistCmd(m.selectedID), tea.Quit)

	case key.Matches(msg, m.keys.Tab):
		if m.selectedID != "" {
			m.focusOnList = !m.focusOnList
		}
		return m, nil
	case key.Matches(msg, m.keys.FocusLeft):
		m.focusOnList = true
		return m, nil
	case key.Matches(msg, m.keys.FocusRight):
		if m.selectedID != "" {
			m.focusOnList = false
		}
		return m, nil

	case key.Matches(msg, m.keys.Search):
		if m.selectedID == "" {
			return m, nil
		}
		m.searchMode = true
		m.search.SetValue(m.searchQuery)
		m.search.CursorEnd()
		m.search.Focus()
		return m, nil

	case key.Matches(msg, m.keys.Compose):
		if !m.focusOnList && m.selectedID != "" {
			m.composing = true
			cmds = append(cmds, m.composer.Focus())
		}
		return m, tea.Batch(cmds...)

	case key.Matches(msg, m.keys.ApproveOnce):
		if !m.focusOnList {
			return m, m.startApproval(false)
		}
	case key.Matches(msg, m.keys.ApproveAlways):
		if !m.focusOnList {
			return m, m.startApproval(true)
		}

	case key.Matches(msg, m.keys.Refresh):
		if m.selectedID != "" {
			m.needResync = false
			cmds = append(cmds, m.historyCmd(m.selectedID))
		}
		cmds = append(cmds, m.sessionsCmd(), m.refreshStatuses())
		m.status = "Refreshing..."
		return m, tea.Batch(cmds...)

	case key.Matches(msg, m.keys.Export):
		return m, m.exportCmd(m.selectedID)

	case key.Matches(msg, m.keys.Copy):
		return m, m.startCopy()

	case key.Matches(msg, m.keys.Rename):
		if sess, ok := m.sessions[m.selectedID]; ok {
			m.renameMode = true
			m.rename.SetValue(sess.Title)
			m.rename.CursorEnd()
			m.rename.Focus()
		}
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		if m.selectedID != "" {
			m.confirmDelete = true
			m.status = "Delete session? y to confirm, any other key to cancel"
		}
		return m, nil

	case key.Matches(msg, m.keys.NextMatch):
		if !m.focusOnList {
			m.jumpToMatch(1)
		}
		return m, nil
	case key.Matches(msg, m.keys.PrevMatch):
		if !m.focusOnList {
			m.jumpToMatch(-1)
		}
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		if !m.focusOnList {
			m.viewport.HalfViewUp()
			cmds = append(cmds, m.maybeLoadOlder())
		}
		return m, tea.Batch(cmds...)
	case key.Matches(msg, m.keys.PageDown):
		if !m.focusOnList {
			m.viewport.HalfViewDown()
		}
		return m, nil

	case key.Matches(msg, m.keys.Bottom):
		if !m.focusOnList {
			m.viewport.GotoBottom()
		}
		return m, nil
	}

	if m.focusOnList {
		prev := m.selectedID
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		cmds = append(cmds, cmd)
		if id := m.currentSelectedID(); id != prev {
			cmds = append(cmds, m.openSession(id, prev)...)
		}
		if msg.Type == tea.KeyEnter && m.selectedID != "" {
			m.focusOnList = false
		}
	} else {
		switch msg.String() {
		case "up", "k":
			m.viewport.LineUp(1)
			cmds = append(cmds, m.maybeLoadOlder())
		case "down", "j":
			m.viewport.LineDown(1)
		}
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleComposerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.composing = false
		m.composer.Blur()
		return m, nil
	case tea.KeyEnter:
		return m.startSend()
	}
	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	return m, cmd
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.searchMode = false
		m.searchQuery = ""
		m.search.SetValue("")
		m.search.Blur()
		return m, m.renderTranscript(renderLive)
	case "enter":
		m.searchMode = false
		m.search.Blur()
		m.searchQuery = strings.TrimSpace(m.search.Value())
		return m, m.renderTranscript(renderLive)
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

func (m Model) handleRenameKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.renameMode = false
		m.rename.Blur()
		return m, nil
	case "enter":
		m.renameMode = false
		m.rename.Blur()
		title := strings.TrimSpace(m.rename.Value())
		if title == "" || m.selectedID == "" {
			return m, nil
		}
		return m, m.renameCmd(m.selectedID, title)
	}
	var cmd tea.Cmd
	m.rename, cmd = m.rename.Update(msg)
	return m, cmd
}

// openSession switches the detail pane to id. The previous session's
// transcript is persisted and its extra status interest released.
func (m *Model) openSession(id, prev string) []tea.Cmd {
	var cmds []tea.Cmd

	if prev != "" && prev != id {
		cmds = append(cmds, m.persistCmd(prev))
		m.poller.Unregister(prev)
	}
	if m.sub != nil {
		m.sub.Close()
		m.sub = nil
	}

	m.selectedID = id
	m.streamUp = false
	m.needResync = false
	m.flow = approval.NewWorkflow()
	m.sending = false
	m.pendingID = ""
	m.searchQuery = ""
	m.clearMatches()
	if id == "" {
		m.viewport.SetContent("No session selected")
		return cmds
	}

	m.poller.Register(id)
	m.shown[id] = pageSize
	if m.recs[id] == nil {
		m.recs[id] = transcript.NewReconciler()
	}

	m.viewport.SetContent("Loading transcript...")
	if !m.histLoaded[id] {
		cmds = append(cmds, m.cachedHistoryCmd(id))
	}
	cmds = append(cmds, m.historyCmd(id))

	m.sub = stream.Subscribe(context.Background(), m.client.StreamURL(id), id, m.log)
	cmds = append(cmds, waitForStream(m.sub))
	m.syncApproval()
	m.syncComposer()
	return cmds
}

func (m *Model) forgetSession(id string) {
	if m.listed[id] {
		delete(m.listed, id)
		m.poller.Unregister(id)
	}
	delete(m.sessions, id)
	delete(m.recs, id)
	delete(m.cached, id)
	delete(m.shown, id)
	delete(m.histLoaded, id)
	if m.selectedID == id {
		if m.sub != nil {
			m.sub.Close()
			m.sub = nil
		}
		m.poller.Unregister(id)
		m.selectedID = ""
		m.focusOnList = true
		m.viewport.SetContent("No session selected")
	}
}

func (m Model) startSend() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.composer.Value())
	if text == "" || m.sending || m.selectedID == "" {
		return m, nil
	}
	if st, ok := m.poller.Status(m.selectedID); ok && st.State == status.Working {
		m.status = "Agent is working; wait for the turn to finish"
		return m, nil
	}
	sess := m.sessions[m.selectedID]

	localID := "local-" + uuid.NewString()
	m.rec(m.selectedID).Ingest(&transcript.Entry{
		ID:          localID,
		Role:        transcript.RoleUser,
		Timestamp:   time.Now(),
		Text:        text,
		Provisional: true,
	})
	m.sending = true
	m.pendingID = localID
	m.composer.Reset()
	m.poller.MarkLocal(m.selectedID, status.Working, time.Now())
	m.refreshBadges()
	m.syncComposer()

	return m, tea.Batch(
		m.renderTranscript(renderLive),
		m.sendCmd(m.selectedID, sess.ProjectPath, localID, text),
	)
}

func (m *Model) startApproval(alwaysAllow bool) tea.Cmd {
	req, err := m.flow.Begin(alwaysAllow)
	if err != nil {
		return nil
	}
	m.status = "Approving..."
	return m.resumeCmd(req, alwaysAllow)
}

func (m *Model) startCopy() tea.Cmd {
	if req, ok := m.flow.Pending(); ok {
		return m.copyCmd(req.Command, "pending command")
	}
	rec := m.recs[m.selectedID]
	sess, ok := m.sessions[m.selectedID]
	if rec == nil || !ok {
		return nil
	}
	return m.copyCmd(buildSessionSnippet(sess, rec.Materialize()), "session snippet")
}

// syncApproval feeds the latest polled signal for the open session into the
// approval workflow.
func (m *Model) syncApproval() {
	if m.selectedID == "" {
		return
	}
	st, ok := m.poller.Status(m.selectedID)
	if ok && st.State == status.NeedsApproval && st.Command != "" {
		sess := m.sessions[m.selectedID]
		m.flow.Observe(approval.Request{
			SessionID:   m.selectedID,
			ProjectPath: sess.ProjectPath,
			Command:     st.Command,
			Pattern:     st.Pattern,
			ReceivedAt:  time.Now(),
		})
	} else {
		m.flow.ObserveCleared()
	}
	m.resize()
}

// syncComposer mirrors the send gate in the composer prompt. Sends are
// rejected while the open session is working, so the placeholder says so.
func (m *Model) syncComposer() {
	if st, ok := m.poller.Status(m.selectedID); ok && st.State == status.Working {
		m.composer.Placeholder = "Agent is working..."
		return
	}
	m.composer.Placeholder = "Message the agent..."
}

// refreshStatuses starts a batched poll immediately, outside the tick
// cadence. No-op while a poll is already outstanding.
func (m *Model) refreshStatuses() tea.Cmd {
	if ids, started, ok := m.poller.BeginPoll(time.Now()); ok {
		return m.pollCmd(ids, started)
	}
	return nil
}

func (m *Model) applySessions(in []api.Session) {
	next := make(map[string]bool, len(in))
	for _, s := range in {
		next[s.ID] = true
		m.sessions[s.ID] = s
		if !m.listed[s.ID] {
			m.listed[s.ID] = true
			m.poller.Register(s.ID)
		}
	}
	for id := range m.listed {
		if !next[id] {
			delete(m.listed, id)
			m.poller.Unregister(id)
			delete(m.sessions, id)
		}
	}
	m.setListItems(in)
}

func (m *Model) setListItems(in []api.Session) {
	items := make([]list.Item, 0, len(in))
	for _, s := range in {
		items = append(items, sessionItem{s: s, badge: m.badgeFor(s.ID)})
	}
	m.list.SetItems(items)

	if len(in) == 0 {
		if m.selectedID != "" {
			m.forgetSession(m.selectedID)
		}
		m.viewport.SetContent("No sessions found.")
		return
	}

	selectIdx := 0
	for idx, s := range in {
		if s.ID == m.selectedID {
			selectIdx = idx
			break
		}
	}
	m.list.Select(selectIdx)
}

func (m *Model) refreshBadges() {
	items := m.list.Items()
	ordered := make([]api.Session, 0, len(items))
	for _, it := range items {
		if si, ok := it.(sessionItem); ok {
			if s, ok := m.sessions[si.s.ID]; ok {
				ordered = append(ordered, s)
			}
		}
	}
	m.setListItems(ordered)
}

func (m *Model) currentSelectedID() string {
	item, ok := m.list.SelectedItem().(sessionItem)
	if !ok {
		return ""
	}
	return item.s.ID
}

func (m *Model) rec(sessionID string) *transcript.Reconciler {
	if m.recs[sessionID] == nil {
		m.recs[sessionID] = transcript.NewReconciler()
	}
	return m.recs[sessionID]
}

func projectFolder(projectPath string) string {
	trimmed := strings.TrimRight(projectPath, "/")
	if idx := strings.LastIndexByte(trimmed, '/'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	return trimmed
}

func formatRelative(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return d.Round(time.Minute).String() + " ago"
	case d < 24*time.Hour:
		return d.Round(time.Hour).String() + " ago"
	default:
		return t.Format("Jan 2 15:04")
	}
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
