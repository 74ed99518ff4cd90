package highlight

import (
	"regexp"
	"strings"
)

// Transcript panes hold glamour output, so matches must be found in the
// visible text without disturbing the escape sequences around it.
var csiSeq = regexp.MustCompile(`\x1b\[[0-?]*[ -/]*[@-~]`)

type Result struct {
	Text  string
	Count int
	Lines []int
}

// Search wraps every case-insensitive occurrence of query in mark, skipping
// ANSI escape sequences. Lines holds the zero-based line numbers that
// contain at least one match, for jump navigation.
func Search(input, query string, mark func(string) string) Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{Text: input}
	}
	if mark == nil {
		mark = func(s string) string { return s }
	}

	var out strings.Builder
	res := Result{}

	for lineNo, line := range strings.Split(input, "\n") {
		if lineNo > 0 {
			out.WriteByte('\n')
		}
		marked, n := markLine(line, query, mark)
		out.WriteString(marked)
		if n > 0 {
			res.Lines = append(res.Lines, lineNo)
			res.Count += n
		}
	}

	res.Text = out.String()
	return res
}

// markLine walks the line segment by segment, passing ANSI sequences
// through untouched and marking matches in the plain text between them.
func markLine(line, query string, mark func(string) string) (string, int) {
	seqs := csiSeq.FindAllStringIndex(line, -1)
	if len(seqs) == 0 {
		return markPlain(line, query, mark)
	}

	var out strings.Builder
	total := 0
	pos := 0
	for _, seq := range seqs {
		if seq[0] > pos {
			marked, n := markPlain(line[pos:seq[0]], query, mark)
			out.WriteString(marked)
			total += n
		}
		out.WriteString(line[seq[0]:seq[1]])
		pos = seq[1]
	}
	if pos < len(line) {
		marked, n := markPlain(line[pos:], query, mark)
		out.WriteString(marked)
		total += n
	}
	return out.String(), total
}

func markPlain(s, query string, mark func(string) string) (string, int) {
	lower := strings.ToLower(s)
	q := strings.ToLower(query)
	if q == "" || !strings.Contains(lower, q) {
		return s, 0
	}

	var out strings.Builder
	count := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], q)
		if rel < 0 {
			out.WriteString(s[pos:])
			break
		}
		at := pos + rel
		out.WriteString(s[pos:at])
		out.WriteString(mark(s[at : at+len(q)]))
		count++
		pos = at + len(q)
	}
	return out.String(), count
}
