package tools

import (
	"context"
	"errors"
	"fmt"
	"go-autoagent/pkg/security"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const maxListEntries = 2000

// Builtins returns the filesystem and search tools.
func Builtins() []Tool {
	return []Tool{
		listDirectory{},
		readFile{},
		writeFile{},
		editFile{},
		searchFiles{},
		fileMetadata{},
	}
}

type ListResult struct {
	Path      string           `json:"path"`
	Entries   []security.Entry `json:"entries"`
	Total     int              `json:"total"`
	Truncated bool             `json:"truncated,omitempty"`
}

func (r ListResult) Summary() string {
	names := make([]string, 0, 20)
	for i, e := range r.Entries {
		if i == 20 {
			names = append(names, "...")
			break
		}
		if e.IsDir {
			names = append(names, e.Path+"/")
		} else {
			names = append(names, e.Path)
		}
	}
	return fmt.Sprintf("listed %d entries in %s: %s", r.Total, r.Path, strings.Join(names, ", "))
}

type listDirectory struct{}

func (listDirectory) Name() string { return ListDirectory }

func (listDirectory) Description() string {
	return "List files and directories at a path inside the workspace."
}

func (listDirectory) Schema() Schema {
	return Schema{Params: []Param{
		{Name: "path", Type: TypeString, Description: "directory relative to the workspace root, '.' for the root", Required: true},
		{Name: "include_hidden", Type: TypeBoolean, Description: "include dot files", Default: false},
		{Name: "recursive", Type: TypeBoolean, Description: "descend into subdirectories", Default: false},
	}}
}

func (listDirectory) Execute(ctx context.Context, ws *Workspace, params Params) (any, error) {
	path := params.String("path", ".")
	hidden := params.Bool("include_hidden", false)
	res := ListResult{Path: path, Entries: make([]security.Entry, 0)}

	if !params.Bool("recursive", false) {
		entries, err := ws.Sandbox.ListDir(path)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if hidden || !strings.HasPrefix(e.Name, ".") {
				res.Entries = append(res.Entries, e)
			}
		}
		res.Total = len(res.Entries)
		return res, nil
	}

	dir, err := ws.Sandbox.SanitizePath(path)
	if err != nil {
		return nil, err
	}
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == dir {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !hidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		res.Total++
		if len(res.Entries) >= maxListEntries {
			res.Truncated = true
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		res.Entries = append(res.Entries, security.Entry{
			Name:    d.Name(),
			Path:    ws.Sandbox.RelativeToRoot(p),
			IsDir:   d.IsDir(),
			Size:    sizeOf(info),
			Mode:    info.Mode().String(),
			ModTime: info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk: %w", err)
	}
	security.SortEntries(res.Entries)
	return res, nil
}

func sizeOf(info fs.FileInfo) int64 {
	if info.IsDir() {
		return 0
	}
	return info.Size()
}

type ReadResult struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	Size     int64  `json:"size"`
	Lines    int    `json:"lines"`
}

func (r ReadResult) Summary() string {
	preview := r.Content
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	return fmt.Sprintf("read %s (%d bytes, %d lines, %s): %s", r.Path, r.Size, r.Lines, r.Encoding, preview)
}

type readFile struct{}

func (readFile) Name() string { return ReadFile }

func (readFile) Description() string {
	return "Read the whole content of a text file. The encoding is detected unless given."
}

func (readFile) Schema() Schema {
	return Schema{Params: []Param{
		{Name: "path", Type: TypeString, Description: "file relative to the workspace root", Required: true},
		{Name: "encoding", Type: TypeString, Description: "text encoding, 'auto' to detect", Default: autoEncoding},
		{Name: "max_size", Type: TypeInteger, Description: "largest file size in bytes that will be read"},
	}}
}

func (readFile) Execute(_ context.Context, ws *Workspace, params Params) (any, error) {
	path := params.String("path", "")
	resolved, err := ws.Sandbox.SanitizePath(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	limit := int64(params.Int("max_size", int(ws.Limits.MaxReadSize)))
	if limit > 0 && info.Size() > limit {
		return nil, fmt.Errorf("%s is %d bytes, larger than the %d byte limit", path, info.Size(), limit)
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	text, enc, err := decode(raw, params.String("encoding", autoEncoding))
	if err != nil {
		return nil, err
	}
	return ReadResult{
		Path:     ws.Sandbox.RelativeToRoot(resolved),
		Content:  text,
		Encoding: enc,
		Size:     info.Size(),
		Lines:    countLines(text),
	}, nil
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}

type WriteResult struct {
	Path         string `json:"path"`
	BytesWritten int    `json:"bytes_written"`
	Encoding     string `json:"encoding"`
	Created      bool   `json:"created"`
}

func (r WriteResult) Summary() string {
	verb := "overwrote"
	if r.Created {
		verb = "created"
	}
	return fmt.Sprintf("%s %s (%d bytes)", verb, r.Path, r.BytesWritten)
}

type writeFile struct{}

func (writeFile) Name() string { return WriteFile }

func (writeFile) Description() string {
	return "Write content to a file, replacing it atomically. Parent directories are created by default."
}

func (writeFile) Schema() Schema {
	return Schema{Params: []Param{
		{Name: "path", Type: TypeString, Description: "file relative to the workspace root", Required: true},
		{Name: "content", Type: TypeString, Description: "full new content of the file", Required: true},
		{Name: "encoding", Type: TypeString, Description: "text encoding", Default: "utf-8"},
		{Name: "create_dirs", Type: TypeBoolean, Description: "create missing parent directories", Default: true},
	}}
}

func (writeFile) Execute(_ context.Context, ws *Workspace, params Params) (any, error) {
	path := params.String("path", "")
	resolved, err := ws.Sandbox.SanitizePath(path)
	if err != nil {
		return nil, err
	}
	if resolved == ws.Sandbox.Root() {
		return nil, errors.New("path must name a file")
	}
	data, enc, err := encode(params.String("content", ""), params.String("encoding", "utf-8"))
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(resolved)
	if params.Bool("create_dirs", true) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	} else if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("parent directory: %w", err)
	}

	_, statErr := os.Stat(resolved)
	if err := writeAtomic(resolved, data); err != nil {
		return nil, err
	}
	return WriteResult{
		Path:         ws.Sandbox.RelativeToRoot(resolved),
		BytesWritten: len(data),
		Encoding:     enc,
		Created:      errors.Is(statErr, fs.ErrNotExist),
	}, nil
}

const (
	OpReplace    = "replace"
	OpInsertLine = "insert_line"
	OpDeleteLine = "delete_line"
)

type EditResult struct {
	Path      string `json:"path"`
	Operation string `json:"operation"`
	Changes   int    `json:"changes"`
	Lines     int    `json:"lines"`
}

func (r EditResult) Summary() string {
	if r.Changes == 0 {
		return fmt.Sprintf("%s on %s made no changes", r.Operation, r.Path)
	}
	return fmt.Sprintf("%s on %s made %d change(s), file now has %d lines", r.Operation, r.Path, r.Changes, r.Lines)
}

type editFile struct{}

func (editFile) Name() string { return EditFile }

func (editFile) Description() string {
	return "Edit an existing file: replace text, insert a line, or delete a line."
}

func (editFile) Schema() Schema {
	return Schema{Params: []Param{
		{Name: "path", Type: TypeString, Description: "file relative to the workspace root", Required: true},
		{Name: "operation", Type: TypeString, Description: "edit to perform", Required: true, Enum: []string{OpReplace, OpInsertLine, OpDeleteLine}},
		{Name: "find", Type: TypeString, Description: "text to replace (replace)"},
		{Name: "replace", Type: TypeString, Description: "replacement text (replace)"},
		{Name: "line_number", Type: TypeInteger, Description: "1-based line (insert_line, delete_line)"},
		{Name: "content", Type: TypeString, Description: "line to insert (insert_line)"},
	}}
}

func (editFile) Execute(_ context.Context, ws *Workspace, params Params) (any, error) {
	path := params.String("path", "")
	resolved, err := ws.Sandbox.SanitizePath(path)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	text, enc, err := decode(raw, autoEncoding)
	if err != nil {
		return nil, err
	}

	op := params.String("operation", "")
	edited, changes, err := applyEdit(text, op, params)
	if err != nil {
		return nil, err
	}
	if changes > 0 {
		data, _, err := encode(edited, enc)
		if err != nil {
			return nil, err
		}
		if err := writeAtomic(resolved, data); err != nil {
			return nil, err
		}
	}
	return EditResult{
		Path:      ws.Sandbox.RelativeToRoot(resolved),
		Operation: op,
		Changes:   changes,
		Lines:     countLines(edited),
	}, nil
}

func applyEdit(text, op string, params Params) (string, int, error) {
	if op == OpReplace {
		find := params.String("find", "")
		if find == "" {
			return "", 0, &ValidationError{Tool: EditFile, Missing: []string{"find"}}
		}
		n := strings.Count(text, find)
		return strings.ReplaceAll(text, find, params.String("replace", "")), n, nil
	}

	if !params.Has("line_number") {
		return "", 0, &ValidationError{Tool: EditFile, Missing: []string{"line_number"}}
	}
	line := params.Int("line_number", 0)
	if line < 1 {
		return "", 0, &ValidationError{Tool: EditFile, Invalid: []string{"line_number must be at least 1"}}
	}

	trailing := text == "" || strings.HasSuffix(text, "\n")
	lines := []string{}
	if body := strings.TrimSuffix(text, "\n"); text != "" {
		lines = strings.Split(body, "\n")
	}

	switch op {
	case OpInsertLine:
		content := params.String("content", "")
		if line > len(lines) {
			lines = append(lines, content)
		} else {
			lines = append(lines[:line-1], append([]string{content}, lines[line-1:]...)...)
		}
	case OpDeleteLine:
		if line > len(lines) {
			return "", 0, fmt.Errorf("line %d does not exist, file has %d lines", line, len(lines))
		}
		lines = append(lines[:line-1], lines[line:]...)
	default:
		return "", 0, &ValidationError{Tool: EditFile, Invalid: []string{"unknown operation " + op}}
	}

	out := strings.Join(lines, "\n")
	if trailing && len(lines) > 0 {
		out += "\n"
	}
	return out, 1, nil
}

type Metadata struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	IsDir     bool      `json:"is_dir"`
	Size      int64     `json:"size"`
	Mode      string    `json:"mode"`
	Modified  time.Time `json:"modified"`
	Extension string    `json:"extension,omitempty"`
	MimeType  string    `json:"mime_type,omitempty"`
}

func (m Metadata) Summary() string {
	if m.IsDir {
		return fmt.Sprintf("%s is a directory (%s)", m.Path, m.Mode)
	}
	return fmt.Sprintf("%s is a %s file of %d bytes, modified %s", m.Path, m.MimeType, m.Size, m.Modified.Format(time.RFC3339))
}

type fileMetadata struct{}

func (fileMetadata) Name() string { return GetFileMetadata }

func (fileMetadata) Description() string {
	return "Report size, type and modification time of a file or directory."
}

func (fileMetadata) Schema() Schema {
	return Schema{Params: []Param{
		{Name: "path", Type: TypeString, Description: "path relative to the workspace root", Required: true},
	}}
}

func (fileMetadata) Execute(_ context.Context, ws *Workspace, params Params) (any, error) {
	resolved, err := ws.Sandbox.SanitizePath(params.String("path", ""))
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	m := Metadata{
		Path:     ws.Sandbox.RelativeToRoot(resolved),
		Name:     info.Name(),
		IsDir:    info.IsDir(),
		Size:     sizeOf(info),
		Mode:     info.Mode().String(),
		Modified: info.ModTime(),
	}
	if !m.IsDir {
		m.Extension = filepath.Ext(m.Name)
		m.MimeType = sniffMime(resolved, m.Extension)
	}
	return m, nil
}

func sniffMime(path, ext string) string {
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	f, err := os.Open(path)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()
	head := make([]byte, 512)
	n, _ := f.Read(head)
	return http.DetectContentType(head[:n])
}
