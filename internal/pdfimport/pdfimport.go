// Package pdfimport turns an uploaded exam paper PDF into question drafts.
// The upload is spooled to a temporary file, its text extracted, and the
// text handed to a QuestionParser. Drafts are returned for review and are
// never stored here.
package pdfimport

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/pavelanni/academy/internal/model"
	"github.com/pavelanni/academy/internal/store"
)

// DefaultWeight is applied to drafts without a positive score weight.
const DefaultWeight = 5

var pdfMagic = []byte("%PDF-")

// QuestionParser structures plain exam text into drafts.
type QuestionParser interface {
	ParseQuestions(ctx context.Context, text string) ([]model.QuestionDraft, error)
}

// Registry remembers the content hashes of imported files.
type Registry interface {
	GetImportedFile(ctx context.Context, hash string) (*store.ImportedFile, error)
	RecordImportedFile(ctx context.Context, f store.ImportedFile) error
}

// Importer runs the upload, extract, parse pipeline.
type Importer struct {
	dir      string
	parser   QuestionParser
	registry Registry
	extract  func(path string) (string, error)
}

// Option configures an Importer.
type Option func(*Importer)

// WithExtractor replaces the PDF text extractor.
func WithExtractor(fn func(path string) (string, error)) Option {
	return func(im *Importer) { im.extract = fn }
}

// New creates an Importer that spools uploads under dir. parser may be nil,
// in which case Import fails with model.ErrUnavailable.
func New(dir string, parser QuestionParser, registry Registry, opts ...Option) *Importer {
	im := &Importer{
		dir:      dir,
		parser:   parser,
		registry: registry,
		extract:  ExtractText,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Upload is one uploaded file.
type Upload struct {
	Filename  string
	TeacherID string
	Body      io.Reader
	// Force parses the file even if the same content was imported before.
	Force bool
}

// Result is the outcome of an import.
type Result struct {
	Filename       string                `json:"filename"`
	Hash           string                `json:"hash"`
	Duplicate      bool                  `json:"duplicate"`
	PreviousImport *time.Time            `json:"previous_import,omitempty"`
	Questions      []model.QuestionDraft `json:"questions"`
	TotalQuestions int                   `json:"total_questions"`
	Skipped        int                   `json:"skipped"`
}

// Import spools the upload, extracts its text and parses question drafts.
// A file whose content was imported before is reported as a duplicate and
// not parsed again unless Force is set. The temporary file is removed
// whether or not the import succeeds.
func (im *Importer) Import(ctx context.Context, up Upload) (*Result, error) {
	if im.parser == nil {
		return nil, fmt.Errorf("%w: question parser not configured", model.ErrUnavailable)
	}

	path, hash, err := im.spool(up.Body)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			slog.Warn("failed to remove uploaded file", "path", path, "error", err)
		}
	}()

	res := &Result{Filename: up.Filename, Hash: hash, Questions: []model.QuestionDraft{}}
	if im.registry != nil {
		prev, err := im.registry.GetImportedFile(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("look up import: %w", err)
		}
		if prev != nil {
			res.Duplicate = true
			res.PreviousImport = &prev.ImportedAt
			if !up.Force {
				return res, nil
			}
		}
	}

	text, err := im.extract(path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		// Image-only PDFs have no text layer.
		return nil, model.Invalid("pdf", "no_text")
	}
	slog.Info("extracted pdf text", "filename", up.Filename, "chars", len(text))

	drafts, err := im.parser.ParseQuestions(ctx, text)
	if err != nil {
		return nil, err
	}
	res.Questions, res.Skipped = Normalize(drafts)
	res.TotalQuestions = len(res.Questions)

	if im.registry != nil {
		if err := im.registry.RecordImportedFile(ctx, store.ImportedFile{
			Hash:          hash,
			Filename:      up.Filename,
			TeacherID:     up.TeacherID,
			QuestionCount: res.TotalQuestions,
		}); err != nil {
			slog.Warn("failed to record imported file", "hash", hash, "error", err)
		}
	}
	slog.Info("parsed questions from pdf", "filename", up.Filename,
		"questions", res.TotalQuestions, "skipped", res.Skipped)
	return res, nil
}

// spool writes body to a temporary file under the import directory and
// returns its path and SHA-256.
func (im *Importer) spool(body io.Reader) (string, string, error) {
	br := bufio.NewReader(body)
	head, err := br.Peek(len(pdfMagic))
	if err != nil || !bytes.Equal(head, pdfMagic) {
		return "", "", model.Invalid("pdf", "pdf_file")
	}

	if err := os.MkdirAll(im.dir, 0o750); err != nil {
		return "", "", fmt.Errorf("create upload dir: %w", err)
	}
	f, err := os.CreateTemp(im.dir, "upload-*.pdf")
	if err != nil {
		return "", "", fmt.Errorf("create temp file: %w", err)
	}
	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(f, h), br); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", "", fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", "", fmt.Errorf("close upload: %w", err)
	}
	return f.Name(), hex.EncodeToString(h.Sum(nil)), nil
}

// ExtractText returns the plain text of every page of the PDF at path.
func ExtractText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", model.Invalid("pdf", "pdf_file")
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return string(b), nil
}

// Normalize fills defaults into drafts and drops those that cannot become
// questions. It returns the kept drafts and the number dropped.
func Normalize(drafts []model.QuestionDraft) ([]model.QuestionDraft, int) {
	out := make([]model.QuestionDraft, 0, len(drafts))
	for _, d := range drafts {
		d.Text = strings.TrimSpace(d.Text)
		if !d.Type.Valid() || d.Text == "" {
			continue
		}
		if d.Type.HasOptions() && len(d.Options) < 2 {
			continue
		}
		if !d.Type.HasOptions() {
			d.Options = nil
		}
		switch d.Difficulty {
		case model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard:
		default:
			d.Difficulty = model.DifficultyMedium
		}
		if d.ScoreWeight <= 0 {
			d.ScoreWeight = DefaultWeight
		}
		if d.Type == model.TrueFalse {
			d.CorrectAnswer = strings.ToLower(d.CorrectAnswer)
		}
		if d.Tags == nil {
			d.Tags = []string{}
		}
		out = append(out, d)
	}
	return out, len(drafts) - len(out)
}
