package tools

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestSearchFiles(t *testing.T) {
	e := newExecutor(t)
	writeRaw(t, e, "a.go", []byte("package a\n// TODO fix\nfunc A() {}\n"))
	writeRaw(t, e, "b.txt", []byte("todo: nothing\n"))
	writeRaw(t, e, "vendor/c.go", []byte("// TODO vendored\n"))
	writeRaw(t, e, "bin.dat", []byte("TODO\x00binary"))

	res := exec(t, e, SearchFiles, map[string]any{"pattern": "todo"})
	require.True(t, res.OK(), res.Error)
	s := res.Result.(SearchResult)
	assert.Equal(t, 3, s.TotalMatches)
	assert.Equal(t, 3, s.FilesMatched)

	res = exec(t, e, SearchFiles, map[string]any{
		"pattern":          "TODO",
		"case_sensitive":   true,
		"file_extensions":  []any{"go"},
		"exclude_patterns": []any{"vendor"},
		"context_lines":    1,
	})
	require.True(t, res.OK(), res.Error)
	s = res.Result.(SearchResult)
	require.Len(t, s.Results, 1)
	m := s.Results[0]
	assert.Equal(t, "a.go", m.File)
	assert.Equal(t, 2, m.LineNumber)
	assert.Equal(t, []Span{{Start: 3, End: 7, MatchedText: "TODO"}}, m.Matches)
	assert.Equal(t, []ContextLine{{LineNumber: 1, Content: "package a"}}, m.ContextBefore)
	assert.Equal(t, []ContextLine{{LineNumber: 3, Content: "func A() {}"}}, m.ContextAfter)
}

func TestSearchRegexAndLimit(t *testing.T) {
	e := newExecutor(t)
	writeRaw(t, e, "n.txt", []byte("a1\nb22\nc333\n"))

	res := exec(t, e, SearchFiles, map[string]any{"pattern": `\d{2,}`, "use_regex": true, "max_matches": 1})
	require.True(t, res.OK(), res.Error)
	s := res.Result.(SearchResult)
	assert.Equal(t, 1, s.TotalMatches)
	assert.True(t, s.Truncated)
	assert.Equal(t, "22", s.Results[0].Matches[0].MatchedText)

	res = exec(t, e, SearchFiles, map[string]any{"pattern": "(", "use_regex": true})
	assert.False(t, res.OK())

	res = exec(t, e, SearchFiles, map[string]any{"pattern": "x", "path": "../.."})
	assert.False(t, res.OK())
}
