// Package document inspects local report files before they are uploaded.
// It applies the same type and size limits the upload form advertises
// ("PDF, JPG, or PNG (MAX. 10MB)") so obvious mistakes never reach the
// network.
package document

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

// DefaultMaxSize is the advertised upload limit.
const DefaultMaxSize int64 = 10 << 20

// Kind identifies a supported document format.
type Kind string

// Supported document kinds.
const (
	KindPDF  Kind = "pdf"
	KindJPEG Kind = "jpeg"
	KindPNG  Kind = "png"
)

var (
	// ErrUnsupportedType is returned for files outside the accepted formats.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrEmptyFile is returned for zero-byte files.
	ErrEmptyFile = errors.New("file is empty")
	// ErrTooLarge is returned when a file exceeds the configured maximum.
	ErrTooLarge = errors.New("file too large")
	// ErrNotRegular is returned for directories and special files.
	ErrNotRegular = errors.New("not a regular file")
)

var extensionKinds = map[string]Kind{
	".pdf":  KindPDF,
	".jpg":  KindJPEG,
	".jpeg": KindJPEG,
	".png":  KindPNG,
}

var kindContentTypes = map[Kind]string{
	KindPDF:  "application/pdf",
	KindJPEG: "image/jpeg",
	KindPNG:  "image/png",
}

// KindFromName returns the document kind for a file name. The extension
// match is case-insensitive.
func KindFromName(name string) (Kind, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
	if kind, ok := extensionKinds[ext]; ok {
		return kind, nil
	}
	return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedType, filepath.Base(name), strings.Join(SupportedExtensions(), ", "))
}

// SupportedExtensions returns the accepted file extensions.
func SupportedExtensions() []string {
	return []string{".pdf", ".jpg", ".jpeg", ".png"}
}

// ContentType returns the canonical MIME type for the kind.
func (k Kind) ContentType() string {
	return kindContentTypes[k]
}

// File is a local document that passed inspection.
type File struct {
	Path        string
	Name        string
	Size        int64
	Kind        Kind
	ContentType string
	// Pages is the PDF page count, or 0 when unknown or not a PDF.
	Pages int
}

// Open opens the file for reading.
func (f *File) Open() (io.ReadCloser, error) {
	return os.Open(f.Path)
}

// HumanSize returns the size in human readable form (e.g. "1.2 MB").
func (f *File) HumanSize() string {
	return humanize.Bytes(uint64(f.Size))
}

// String describes the file for prompts and logs.
func (f *File) String() string {
	desc := fmt.Sprintf("%s (%s, %s", f.Name, strings.ToUpper(string(f.Kind)), f.HumanSize())
	if f.Pages > 0 {
		desc += fmt.Sprintf(", %d pages", f.Pages)
	}
	return desc + ")"
}

// Inspector validates local files.
type Inspector struct {
	// MaxSize is the largest accepted file in bytes; 0 means unlimited.
	MaxSize int64
	Logger  *slog.Logger
}

// NewInspector returns an inspector with the default size limit.
func NewInspector() *Inspector {
	return &Inspector{MaxSize: DefaultMaxSize}
}

// Inspect checks that path names an acceptable document and describes it.
func (in *Inspector) Inspect(path string) (*File, error) {
	kind, err := KindFromName(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotRegular, path)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}
	if in.MaxSize > 0 && info.Size() > in.MaxSize {
		return nil, fmt.Errorf("%w: %s is %s, limit is %s", ErrTooLarge, filepath.Base(path),
			humanize.Bytes(uint64(info.Size())), humanize.Bytes(uint64(in.MaxSize)))
	}

	f := &File{
		Path:        path,
		Name:        filepath.Base(path),
		Size:        info.Size(),
		Kind:        kind,
		ContentType: kind.ContentType(),
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !mt.Is(f.ContentType) {
		// The service decides what it can read; a mismatch is only a hint.
		in.logger().Warn("file content does not match extension",
			"file", f.Name, "extension", kind, "detected", mt.String())
	}

	if kind == KindPDF {
		f.Pages = pageCount(path)
	}
	return f, nil
}

func (in *Inspector) logger() *slog.Logger {
	if in.Logger != nil {
		return in.Logger
	}
	return slog.Default()
}

// pageCount returns the number of pages of a PDF, or 0 when it cannot be
// parsed. The PDF reader panics on some malformed inputs.
func pageCount(path string) (n int) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("pdf page count failed", "file", path, "panic", r)
			n = 0
		}
	}()
	fh, r, err := pdf.Open(path)
	if err != nil {
		slog.Debug("pdf open failed", "file", path, "error", err)
		return 0
	}
	defer fh.Close()
	return r.NumPage()
}
