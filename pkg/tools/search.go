package tools

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const binarySniffSize = 1024

type Span struct {
	Start       int    `json:"start"`
	End         int    `json:"end"`
	MatchedText string `json:"matched_text"`
}

type ContextLine struct {
	LineNumber int    `json:"line_number"`
	Content    string `json:"content"`
}

type SearchMatch struct {
	File          string        `json:"file"`
	LineNumber    int           `json:"line_number"`
	LineContent   string        `json:"line_content"`
	Matches       []Span        `json:"matches"`
	ContextBefore []ContextLine `json:"context_before,omitempty"`
	ContextAfter  []ContextLine `json:"context_after,omitempty"`
}

type SearchResult struct {
	Pattern       string        `json:"pattern"`
	Path          string        `json:"path"`
	Results       []SearchMatch `json:"results"`
	TotalMatches  int           `json:"total_matches"`
	FilesSearched int           `json:"files_searched"`
	FilesMatched  int           `json:"files_matched"`
	Truncated     bool          `json:"truncated,omitempty"`
}

func (r SearchResult) Summary() string {
	if r.TotalMatches == 0 {
		return fmt.Sprintf("no matches for %q in %d files under %s", r.Pattern, r.FilesSearched, r.Path)
	}
	lines := make([]string, 0, 10)
	for i, m := range r.Results {
		if i == 10 {
			lines = append(lines, "...")
			break
		}
		lines = append(lines, fmt.Sprintf("%s:%d: %s", m.File, m.LineNumber, strings.TrimSpace(m.LineContent)))
	}
	return fmt.Sprintf("found %d matching lines in %d of %d files: %s", r.TotalMatches, r.FilesMatched, r.FilesSearched, strings.Join(lines, " | "))
}

type searchFiles struct{}

func (searchFiles) Name() string { return SearchFiles }

func (searchFiles) Description() string {
	return "Search file contents for text or a regular expression, returning matching lines with context."
}

func (searchFiles) Schema() Schema {
	return Schema{Params: []Param{
		{Name: "pattern", Type: TypeString, Description: "text or regular expression to look for", Required: true},
		{Name: "path", Type: TypeString, Description: "file or directory to search", Default: "."},
		{Name: "use_regex", Type: TypeBoolean, Description: "treat pattern as a regular expression", Default: false},
		{Name: "case_sensitive", Type: TypeBoolean, Description: "match case", Default: false},
		{Name: "context_lines", Type: TypeInteger, Description: "lines of context around each match (0-10)", Default: 2},
		{Name: "max_matches", Type: TypeInteger, Description: "stop after this many matching lines (1-1000)", Default: 100},
		{Name: "file_extensions", Type: TypeArray, Description: "only search files with these extensions, e.g. [\".go\"]"},
		{Name: "exclude_patterns", Type: TypeArray, Description: "glob patterns of files or directories to skip"},
	}}
}

type searchOptions struct {
	re         *regexp.Regexp
	context    int
	max        int
	extensions map[string]struct{}
	excludes   []string
	maxSize    int64
}

func (searchFiles) Execute(ctx context.Context, ws *Workspace, params Params) (any, error) {
	pattern := params.String("pattern", "")
	if pattern == "" {
		return nil, &ValidationError{Tool: SearchFiles, Invalid: []string{"pattern must not be empty"}}
	}
	expr := pattern
	if !params.Bool("use_regex", false) {
		expr = regexp.QuoteMeta(pattern)
	}
	if !params.Bool("case_sensitive", false) {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, &ValidationError{Tool: SearchFiles, Invalid: []string{fmt.Sprintf("pattern: %v", err)}}
	}

	opts := searchOptions{
		re:         re,
		context:    clamp(params.Int("context_lines", 2), 0, 10),
		max:        clamp(params.Int("max_matches", 100), 1, 1000),
		extensions: make(map[string]struct{}),
		excludes:   params.Strings("exclude_patterns"),
		maxSize:    ws.Limits.MaxReadSize,
	}
	for _, ext := range params.Strings("file_extensions") {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		opts.extensions[ext] = struct{}{}
	}

	path := params.String("path", ".")
	start, err := ws.Sandbox.SanitizePath(path)
	if err != nil {
		return nil, err
	}
	res := SearchResult{Pattern: pattern, Path: path, Results: make([]SearchMatch, 0)}

	err = filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == start {
				return err
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel := ws.Sandbox.RelativeToRoot(p)
		if d.IsDir() {
			if p != start && (d.Name() == ".git" || opts.excluded(d.Name(), rel)) {
				return filepath.SkipDir
			}
			return nil
		}
		if opts.excluded(d.Name(), rel) || !opts.wanted(d.Name()) {
			return nil
		}
		// Symlinked files are followed only while they stay in the workspace.
		resolved, err := ws.Sandbox.ValidatePath(p)
		if err != nil {
			return nil
		}
		matches, searched := searchFile(resolved, rel, opts, opts.max-res.TotalMatches)
		if !searched {
			return nil
		}
		res.FilesSearched++
		if len(matches) > 0 {
			res.FilesMatched++
			res.Results = append(res.Results, matches...)
			res.TotalMatches += len(matches)
		}
		if res.TotalMatches >= opts.max {
			res.Truncated = true
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk: %w", err)
	}
	return res, nil
}

func (o searchOptions) excluded(name, rel string) bool {
	for _, pattern := range o.excludes {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func (o searchOptions) wanted(name string) bool {
	if len(o.extensions) == 0 {
		return true
	}
	_, ok := o.extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// searchFile returns up to limit matching lines. Binary and oversized files are skipped.
func searchFile(path, rel string, opts searchOptions, limit int) ([]SearchMatch, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || (opts.maxSize > 0 && info.Size() > opts.maxSize) {
		return nil, false
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	head := raw
	if len(head) > binarySniffSize {
		head = head[:binarySniffSize]
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return nil, false
	}

	lines := strings.Split(strings.ReplaceAll(string(raw), "\r\n", "\n"), "\n")
	res := make([]SearchMatch, 0)
	for i, line := range lines {
		if len(res) >= limit {
			break
		}
		locs := opts.re.FindAllStringIndex(line, -1)
		if len(locs) == 0 {
			continue
		}
		m := SearchMatch{File: rel, LineNumber: i + 1, LineContent: line, Matches: make([]Span, 0, len(locs))}
		for _, loc := range locs {
			if loc[0] == loc[1] {
				continue
			}
			m.Matches = append(m.Matches, Span{Start: loc[0], End: loc[1], MatchedText: line[loc[0]:loc[1]]})
		}
		if len(m.Matches) == 0 {
			continue
		}
		for j := max(0, i-opts.context); j < i; j++ {
			m.ContextBefore = append(m.ContextBefore, ContextLine{LineNumber: j + 1, Content: lines[j]})
		}
		for j := i + 1; j <= min(len(lines)-1, i+opts.context); j++ {
			m.ContextAfter = append(m.ContextAfter, ContextLine{LineNumber: j + 1, Content: lines[j]})
		}
		res = append(res, m)
	}
	return res, true
}
