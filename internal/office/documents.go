package office

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"lawdesk.org/internal/apperr"
	"lawdesk.org/internal/audit"
	"lawdesk.org/internal/auth"
	"lawdesk.org/internal/ids"
	"lawdesk.org/internal/summarize"
)

const (
	entityDocument = "document"

	DefaultMaxUploadBytes int64 = 10 << 20
)

// AllowedExtensions lists the accepted upload file types.
var AllowedExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".txt": true, ".rtf": true,
	".odt": true, ".jpg": true, ".jpeg": true, ".png": true,
}

var (
	ErrFileType         = apperr.Validation("invalid_file_type", "file type not allowed")
	ErrFileTooLarge     = apperr.Validation("file_too_large", "file exceeds the upload limit")
	ErrEmptyFile        = apperr.Validation("empty_file", "file is empty")
	errUploadLimitReach = errors.New("upload limit reached")
)

// Document is an uploaded file attached (optionally) to a case.
type Document struct {
	ID           string    `json:"id" db:"id"`
	CaseID       string    `json:"case_id,omitempty" db:"case_id"`
	Title        string    `json:"title" db:"title"`
	OriginalName string    `json:"original_name" db:"original_name"`
	StoredName   string    `json:"stored_name" db:"stored_name"`
	ContentType  string    `json:"content_type" db:"content_type"`
	Size         int64     `json:"size" db:"size"`
	StorageKey   string    `json:"-" db:"storage_key"`
	Summary      string    `json:"summary,omitempty" db:"summary"`
	UploadedBy   string    `json:"uploaded_by,omitempty" db:"uploaded_by"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// UploadInput describes one incoming file. Size is the declared size, or -1
// when unknown; the body is capped independently.
type UploadInput struct {
	CaseID      string
	Title       string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// DocumentPatch replaces the editable metadata of a document.
type DocumentPatch struct {
	Title  string `json:"title"`
	CaseID string `json:"case_id"`
}

type DocumentFilter struct {
	CaseID string
	Search string
	Offset int
	Limit  int
}

type DocumentStore interface {
	Create(ctx context.Context, d *Document) error
	Get(ctx context.Context, id string) (Document, error)
	Update(ctx context.Context, d Document) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f DocumentFilter) ([]Document, int, error)
	CountByCase(ctx context.Context, caseID string) (int, error)
}

// FileStore keeps document contents. Delete of a missing key is not an error.
type FileStore interface {
	Save(ctx context.Context, key string, r io.Reader, contentType string) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Summarizer produces a short text summary of a document.
type Summarizer interface {
	Summarize(ctx context.Context, req summarize.Request) (string, error)
}

// DocumentDeps groups the collaborators of Documents. Summarizer may be nil.
type DocumentDeps struct {
	Store          DocumentStore
	Cases          CaseStore
	Files          FileStore
	Summarizer     Summarizer
	MaxUploadBytes int64
}

// Documents manages uploads, downloads and summaries.
type Documents struct {
	base
	store      DocumentStore
	cases      CaseStore
	files      FileStore
	summarizer Summarizer
	maxBytes   int64
}

func NewDocuments(deps DocumentDeps, auditor Auditor, opts ...Option) *Documents {
	d := &Documents{
		base:       newBase("documents", auditor, opts),
		store:      deps.Store,
		cases:      deps.Cases,
		files:      deps.Files,
		summarizer: deps.Summarizer,
		maxBytes:   deps.MaxUploadBytes,
	}
	if d.maxBytes <= 0 {
		d.maxBytes = DefaultMaxUploadBytes
	}
	return d
}

// MaxUploadBytes reports the configured upload limit.
func (s *Documents) MaxUploadBytes() int64 { return s.maxBytes }

// SanitizeFilename reduces name to a safe base name of letters, digits, dot,
// dash and underscore.
func SanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}

func (s *Documents) checkCase(ctx context.Context, caseID string) error {
	if caseID == "" {
		return nil
	}
	_, err := s.cases.Get(ctx, caseID)
	return classify(err, "get case")
}

func (s *Documents) Upload(ctx context.Context, in UploadInput) (Document, error) {
	in.CaseID = strings.TrimSpace(in.CaseID)
	in.Title = strings.TrimSpace(in.Title)
	if in.Body == nil || in.Filename == "" {
		return Document{}, apperr.Validation("missing_file", "file is required")
	}
	ext := strings.ToLower(filepath.Ext(in.Filename))
	if !AllowedExtensions[ext] {
		return Document{}, ErrFileType
	}
	if in.Size > s.maxBytes {
		return Document{}, ErrFileTooLarge
	}
	if in.Size == 0 {
		return Document{}, ErrEmptyFile
	}
	if err := s.checkCase(ctx, in.CaseID); err != nil {
		return Document{}, err
	}

	now := s.clock()
	original := filepath.Base(strings.ReplaceAll(in.Filename, `\`, "/"))
	stored := fmt.Sprintf("%d-%s", now.UnixMilli(), SanitizeFilename(original))
	id := ids.NewAt(now)
	// stored names can repeat within a millisecond; the id keeps keys distinct
	key := id + "-" + stored
	contentType := in.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		if t := mime.TypeByExtension(ext); t != "" {
			contentType = t
		} else {
			contentType = "application/octet-stream"
		}
	}

	size, err := s.files.Save(ctx, key, &capReader{r: in.Body, left: s.maxBytes}, contentType)
	if err != nil {
		s.discard(key)
		if errors.Is(err, errUploadLimitReach) {
			return Document{}, ErrFileTooLarge
		}
		return Document{}, classify(err, "save file")
	}
	if size == 0 {
		s.discard(key)
		return Document{}, ErrEmptyFile
	}

	doc := Document{
		ID:           id,
		CaseID:       in.CaseID,
		Title:        in.Title,
		OriginalName: original,
		StoredName:   stored,
		ContentType:  contentType,
		Size:         size,
		StorageKey:   key,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if doc.Title == "" {
		doc.Title = original
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		doc.UploadedBy = p.ID
	}
	if err := s.store.Create(ctx, &doc); err != nil {
		s.discard(key)
		return Document{}, classify(err, "create document")
	}
	s.record(ctx, audit.ActionUpload, entityDocument, doc.ID, map[string]any{
		"filename": doc.OriginalName,
		"size":     doc.Size,
		"case_id":  doc.CaseID,
	})
	return doc, nil
}

func (s *Documents) discard(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.files.Delete(ctx, key); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("discard upload failed")
	}
}

func (s *Documents) Get(ctx context.Context, id string) (Document, error) {
	d, err := s.store.Get(ctx, id)
	return d, classify(err, "get document")
}

// Open returns the document and a reader over its contents. The caller closes
// the reader.
func (s *Documents) Open(ctx context.Context, id string) (Document, io.ReadCloser, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return Document{}, nil, classify(err, "get document")
	}
	rc, err := s.files.Open(ctx, d.StorageKey)
	if err != nil {
		return Document{}, nil, classify(err, "open file")
	}
	s.record(ctx, audit.ActionDownload, entityDocument, d.ID, nil)
	return d, rc, nil
}

func (s *Documents) Update(ctx context.Context, id string, patch DocumentPatch) (Document, error) {
	patch.Title = strings.TrimSpace(patch.Title)
	patch.CaseID = strings.TrimSpace(patch.CaseID)
	if err := required(patch.Title, "title"); err != nil {
		return Document{}, err
	}
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return Document{}, classify(err, "get document")
	}
	if err := s.checkCase(ctx, patch.CaseID); err != nil {
		return Document{}, err
	}
	d.Title, d.CaseID = patch.Title, patch.CaseID
	d.UpdatedAt = s.clock()
	if err := s.store.Update(ctx, d); err != nil {
		return Document{}, classify(err, "update document")
	}
	s.record(ctx, audit.ActionUpdate, entityDocument, d.ID, nil)
	return d, nil
}

// Delete removes the stored file, then the row.
func (s *Documents) Delete(ctx context.Context, id string) error {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return classify(err, "get document")
	}
	if err := s.files.Delete(ctx, d.StorageKey); err != nil {
		return classify(err, "delete file")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return classify(err, "delete document")
	}
	s.record(ctx, audit.ActionDelete, entityDocument, id, map[string]any{"filename": d.OriginalName})
	return nil
}

// Summarize sends the document to the summarizer and stores the result.
func (s *Documents) Summarize(ctx context.Context, id string) (Document, error) {
	if s.summarizer == nil {
		return Document{}, summarize.ErrNotConfigured
	}
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return Document{}, classify(err, "get document")
	}
	rc, err := s.files.Open(ctx, d.StorageKey)
	if err != nil {
		return Document{}, classify(err, "open file")
	}
	content, err := io.ReadAll(io.LimitReader(rc, s.maxBytes))
	rc.Close()
	if err != nil {
		return Document{}, classify(err, "read file")
	}
	summary, err := s.summarizer.Summarize(ctx, summarize.Request{
		DocumentID:  d.ID,
		Filename:    d.OriginalName,
		ContentType: d.ContentType,
		Content:     content,
	})
	if err != nil {
		return Document{}, classify(err, "summarize")
	}
	d.Summary = summary
	d.UpdatedAt = s.clock()
	if err := s.store.Update(ctx, d); err != nil {
		return Document{}, classify(err, "store summary")
	}
	s.record(ctx, audit.ActionSummarize, entityDocument, d.ID, map[string]any{"chars": len(summary)})
	return d, nil
}

type DocumentListQuery struct {
	ListQuery
	CaseID string
}

func (s *Documents) List(ctx context.Context, q DocumentListQuery) (Page[Document], error) {
	req := q.normalize()
	items, total, err := s.store.List(ctx, DocumentFilter{
		CaseID: q.CaseID,
		Search: strings.TrimSpace(q.Search),
		Offset: req.Offset(),
		Limit:  req.Limit,
	})
	if err != nil {
		return Page[Document]{}, classify(err, "list documents")
	}
	return newPage(items, req, total), nil
}

// capReader fails once more than left bytes have been read.
type capReader struct {
	r    io.Reader
	left int64
}

func (c *capReader) Read(p []byte) (int, error) {
	if c.left < 0 {
		return 0, errUploadLimitReach
	}
	if int64(len(p)) > c.left+1 {
		p = p[:c.left+1]
	}
	n, err := c.r.Read(p)
	c.left -= int64(n)
	if c.left < 0 {
		return n, errUploadLimitReach
	}
	return n, err
}
