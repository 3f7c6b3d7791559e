// Package importer resolves @import locators and include paths into markup.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"codeless/internal/html"
)

// ErrUnreadableImport reports a locator that points nowhere readable
var ErrUnreadableImport = errors.New("unreadable import")

// UnreadableImportError carries the failing locator and the element it was bound to
type UnreadableImportError struct {
	Locator string
	Element string
	Err     error
}

func (e *UnreadableImportError) Error() string {
	msg := fmt.Sprintf("unreadable import %q", e.Locator)
	if e.Element != "" {
		msg += " for " + e.Element
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnreadableImportError) Is(target error) bool { return target == ErrUnreadableImport }

func (e *UnreadableImportError) Unwrap() error { return e.Err }

// Kind tells where a locator reads from
type Kind int

const (
	Internal Kind = iota
	File
	URL
)

func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case URL:
		return "url"
	default:
		return "internal"
	}
}

// Locator is a parsed import location
type Locator struct {
	Raw      string
	Kind     Kind
	Target   string // path, URL or selector
	Fragment string // element id inside an external document
}

// ParseLocator reads url:, file:, url(...), file(...) or an internal selector
func ParseLocator(raw string) Locator {
	s := strings.TrimSpace(raw)
	loc := Locator{Raw: raw, Kind: Internal, Target: s}

	for _, k := range []Kind{URL, File} {
		prefix := k.String()
		lower := strings.ToLower(s)
		var target string
		switch {
		case strings.HasPrefix(lower, prefix+"(") && strings.HasSuffix(s, ")"):
			target = s[len(prefix)+1 : len(s)-1]
		case strings.HasPrefix(lower, prefix+":"):
			target = s[len(prefix)+1:]
		default:
			continue
		}
		loc.Kind = k
		loc.Target, loc.Fragment, _ = strings.Cut(strings.TrimSpace(target), "#")
		return loc
	}
	return loc
}

// Selector resolves an internal locator against the current document
type Selector interface {
	Select(selector string, context html.Node) ([]html.Node, error)
}

// Importer reads markup from files, URLs and the current document
type Importer struct {
	fs     billy.Filesystem
	dir    string
	client *http.Client
}

// Option configures an Importer
type Option func(*Importer)

// WithBaseDir resolves relative file paths against dir
func WithBaseDir(dir string) Option {
	return func(i *Importer) { i.dir = dir }
}

// WithHTTPClient replaces the client used for url: locators
func WithHTTPClient(c *http.Client) Option {
	return func(i *Importer) { i.client = c }
}

// New creates an importer reading files from fs
func New(fs billy.Filesystem, opts ...Option) *Importer {
	i := &Importer{fs: fs, client: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Import resolves locator to markup. element is the node the content is bound to and
// only names the failure.
func (i *Importer) Import(ctx context.Context, locator string, doc html.Document, sel Selector, element html.Node) (string, error) {
	if strings.TrimSpace(locator) == "" {
		return "", nil
	}
	loc := ParseLocator(locator)

	var (
		content string
		err     error
	)
	switch loc.Kind {
	case File, URL:
		content, err = i.external(ctx, loc)
	default:
		content, err = i.internal(loc, doc, sel)
	}
	if err != nil {
		fail := &UnreadableImportError{Locator: locator, Err: err}
		if element != nil {
			fail.Element = element.Path()
		}
		return "", fail
	}

	log.Debugf("importer: %s %q resolved %d bytes", loc.Kind, loc.Target, len(content))
	return content, nil
}

// Include reads an include file verbatim
func (i *Importer) Include(filename string) (string, error) {
	raw, err := i.readFile(filename)
	if err != nil {
		return "", &UnreadableImportError{Locator: filename, Err: err}
	}
	return string(raw), nil
}

func (i *Importer) external(ctx context.Context, loc Locator) (string, error) {
	var (
		raw []byte
		err error
	)
	if loc.Kind == URL {
		raw, err = i.fetch(ctx, loc.Target)
	} else {
		raw, err = i.readFile(loc.Target)
	}
	if err != nil {
		return "", err
	}

	if loc.Fragment == "" {
		return string(raw), nil
	}

	doc, err := html.NewParser(nil).Parse(string(raw))
	if err != nil {
		return "", err
	}
	node := doc.ElementByID(loc.Fragment)
	if node == nil {
		return "", fmt.Errorf("no element with id %q in %s", loc.Fragment, loc.Target)
	}
	return doc.Serialize(node)
}

func (i *Importer) internal(loc Locator, doc html.Document, sel Selector) (string, error) {
	if doc == nil || sel == nil {
		return "", fmt.Errorf("no document to resolve %q against", loc.Target)
	}
	nodes, err := sel.Select(loc.Target, doc.Root())
	if err != nil {
		return "", err
	}
	if len(nodes) == 0 {
		return "", fmt.Errorf("selector %q matched nothing", loc.Target)
	}
	return doc.Serialize(nodes[0])
}

func (i *Importer) readFile(filename string) ([]byte, error) {
	if i.fs == nil {
		return nil, fmt.Errorf("no filesystem configured to read %s", filename)
	}
	if i.dir != "" && !path.IsAbs(filename) {
		filename = i.fs.Join(i.dir, filename)
	}
	return util.ReadFile(i.fs, filename)
}

func (i *Importer) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}
