// Package fs implements a local document library: text documents discovered
// on disk with a glob pattern, split into pages, searchable and resolvable
// by document id and page number.
package fs

import (
	"cmp"
	"context"
	"fmt"
	iofs "io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fwojciec/cite"
)

// Interface compliance checks.
var (
	_ cite.Retriever        = (*Library)(nil)
	_ cite.DocumentResolver = (*Library)(nil)
)

// DefaultPattern matches plain-text and markdown documents at any depth.
const DefaultPattern = "**/*.{txt,md}"

// PageBreak separates pages within a document file.
const PageBreak = "\f"

const (
	excerptBefore = 12 // words of context before the first match
	excerptAfter  = 28 // words after it
)

// Document is a file in the library.
type Document struct {
	ID    string // slash-separated path relative to the library root
	Title string
	Path  string // absolute path on disk
	Pages []string
}

// Library is an immutable, in-memory index of the documents under a
// directory. It is safe for concurrent use.
type Library struct {
	root string
	docs []Document
	byID map[string]int
}

// Open loads every file under dir that matches pattern. An empty pattern
// means DefaultPattern.
func Open(dir, pattern string) (*Library, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("fs: invalid glob pattern: %s", pattern)
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("fs: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("fs: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("fs: %s is not a directory", dir)
	}

	fsys := os.DirFS(root)
	lib := &Library{root: root, byID: make(map[string]int)}
	err = doublestar.GlobWalk(fsys, pattern, func(p string, d iofs.DirEntry) error {
		if d.IsDir() {
			return nil
		}
		data, err := iofs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		lib.docs = append(lib.docs, Document{
			ID:    p,
			Title: titleFromPath(p),
			Path:  filepath.Join(root, filepath.FromSlash(p)),
			Pages: splitPages(string(data)),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fs: load documents: %w", err)
	}
	slices.SortFunc(lib.docs, func(a, b Document) int { return cmp.Compare(a.ID, b.ID) })
	for i, d := range lib.docs {
		lib.byID[d.ID] = i
	}
	return lib, nil
}

// Root returns the absolute library directory.
func (l *Library) Root() string { return l.root }

// Documents returns the documents sorted by id.
func (l *Library) Documents() []Document {
	return slices.Clone(l.docs)
}

// Document returns the document with the given id.
func (l *Library) Document(id string) (Document, bool) {
	i, ok := l.byID[id]
	if !ok {
		return Document{}, false
	}
	return l.docs[i], true
}

// Search scores every page by how often the query terms occur in it and
// returns up to limit matching pages, best first. Ties keep library order.
// A non-positive limit returns all matches.
func (l *Library) Search(ctx context.Context, query string, limit int) ([]cite.Passage, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}
	var out []cite.Passage
	for _, d := range l.docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i, page := range d.Pages {
			words := tokenize(page)
			score := 0
			for _, w := range words {
				if slices.Contains(terms, w) {
					score++
				}
			}
			if score == 0 {
				continue
			}
			out = append(out, cite.Passage{
				DocumentID: d.ID,
				Title:      d.Title,
				PageNumber: i + 1,
				Text:       page,
				Excerpt:    Excerpt(page, terms),
				Score:      score,
			})
		}
	}
	slices.SortStableFunc(out, func(a, b cite.Passage) int { return cmp.Compare(b.Score, a.Score) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Resolve returns the file backing a document page.
func (l *Library) Resolve(_ context.Context, documentID string, pageNumber int) (cite.Document, error) {
	d, ok := l.Document(documentID)
	if !ok {
		return cite.Document{}, fmt.Errorf("fs: %s: %w", documentID, cite.ErrDocumentNotFound)
	}
	if pageNumber < 0 || pageNumber > len(d.Pages) {
		return cite.Document{}, fmt.Errorf("fs: %s has no page %d: %w", documentID, pageNumber, cite.ErrDocumentNotFound)
	}
	return cite.Document{
		ID:         d.ID,
		Title:      d.Title,
		PageNumber: pageNumber,
		Location:   d.Path,
	}, nil
}

// Excerpt returns a window of words around the first occurrence of any of
// terms in text, or the start of text when none occurs. Elided ends are
// marked with "...".
func Excerpt(text string, terms []string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	hit := slices.IndexFunc(words, func(w string) bool {
		return slices.ContainsFunc(tokenize(w), func(t string) bool { return slices.Contains(terms, t) })
	})
	hit = max(hit, 0)
	start := max(hit-excerptBefore, 0)
	end := min(hit+excerptAfter, len(words))
	s := strings.Join(words[start:end], " ")
	if start > 0 {
		s = "..." + s
	}
	if end < len(words) {
		s += "..."
	}
	return s
}

func splitPages(text string) []string {
	pages := strings.Split(text, PageBreak)
	// A trailing page break does not start an empty page.
	if n := len(pages); n > 1 && strings.TrimSpace(pages[n-1]) == "" {
		pages = pages[:n-1]
	}
	for i, p := range pages {
		pages[i] = strings.TrimSpace(p)
	}
	return pages
}

func titleFromPath(p string) string {
	base := path.Base(p)
	name := strings.TrimSuffix(base, path.Ext(base))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

// tokenize lowercases s and splits it into words of at least three letters
// or digits.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return slices.DeleteFunc(fields, func(f string) bool { return len([]rune(f)) < 3 })
}
