package transcript

import "strings"

// ResultLimit caps the stored length of a folded tool result. The cap is a
// display bound only; the backend keeps the full payload.
const ResultLimit = 4000

// Reconciler merges historical and live entries for one session into an
// ordered, de-duplicated transcript. It is not safe for concurrent use; the
// owning view drives it from a single control flow.
type Reconciler struct {
	entries []*Entry
	seen    map[string]struct{}
	dropped int
}

func NewReconciler() *Reconciler {
	return &Reconciler{seen: make(map[string]struct{})}
}

// Ingest applies one entry to the transcript. Malformed input (nil entry,
// missing identity, missing role, unrecognized kind) is dropped, never fatal.
// Duplicate identities are dropped. Tool-result entries are folded into the
// invocation that produced them and never appended standalone.
func (r *Reconciler) Ingest(e *Entry) {
	if e == nil || e.ID == "" || e.Role == "" || !knownKind(e.Kind) {
		r.dropped++
		return
	}
	if _, ok := r.seen[e.ID]; ok {
		return
	}
	r.seen[e.ID] = struct{}{}

	if e.Kind == KindToolResult {
		if !r.foldResult(e.Text) {
			// The result arrived for an invocation outside the working
			// set. Folding is display enrichment, not the source of
			// truth, so the payload is discarded.
			r.dropped++
		}
		return
	}

	if e.toolOnly() {
		if last := r.lastEntry(); last != nil && last.toolOnly() {
			last.Tools = append(last.Tools, e.Tools...)
			return
		}
	}

	r.entries = append(r.entries, e)
}

// foldResult attaches text as the result of the most recent invocation
// without one, searching newest entry first. Reports whether a target existed.
func (r *Reconciler) foldResult(text string) bool {
	for i := len(r.entries) - 1; i >= 0; i-- {
		tools := r.entries[i].Tools
		for j := len(tools) - 1; j >= 0; j-- {
			inv := tools[j]
			if inv.HasResult {
				continue
			}
			inv.Result = truncateResult(text)
			inv.HasResult = true
			if inv.State == ToolPending || inv.State == ToolRunning || inv.State == "" {
				inv.State = ToolComplete
			}
			return true
		}
	}
	return false
}

// Materialize returns the display-ready transcript in ingest order. The
// returned slice is a copy; the entries are shared.
func (r *Reconciler) Materialize() []*Entry {
	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Reconciler) Len() int { return len(r.entries) }

// Dropped reports how many events were discarded as malformed, duplicate-free
// unmatched results included. Diagnostic only.
func (r *Reconciler) Dropped() int { return r.dropped }

// Remove deletes the entry with the given identity, forgetting the identity
// so a later authoritative entry could reuse it. Used to roll back a
// provisional entry after a failed send.
func (r *Reconciler) Remove(id string) bool {
	for i, e := range r.entries {
		if e.ID == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			delete(r.seen, id)
			return true
		}
	}
	return false
}

func (r *Reconciler) lastEntry() *Entry {
	if len(r.entries) == 0 {
		return nil
	}
	return r.entries[len(r.entries)-1]
}

func truncateResult(s string) string {
	if len(s) <= ResultLimit {
		return s
	}
	trimmed := strings.TrimRight(s[:ResultLimit], "\n")
	return trimmed + "\n... [result truncated]"
}
