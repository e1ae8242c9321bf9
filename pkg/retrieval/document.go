package retrieval

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrUnsupported is returned by ReadDocument for files with no text
// extractor, such as scanned images.
var ErrUnsupported = errors.New("retrieval: document type not supported")

var imageExts = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff"}

const pageDelim = "####################"

// ReadDocument returns the text of the file at path. PDF files are read
// page by page; anything that is not an image is read as plain text.
func ReadDocument(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".pdf":
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		st, err := f.Stat()
		if err != nil {
			return "", err
		}
		return ReadPDF(f, st.Size())
	case slices.Contains(imageExts, ext):
		return "", fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadPDF extracts the text of every page. Each page is wrapped in
// START PAGE n / END PAGE n delimiter lines. Pages without a text layer
// contribute only their delimiters.
func ReadPDF(r io.ReaderAt, size int64) (string, error) {
	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("retrieval: open pdf: %w", err)
	}
	var b strings.Builder
	for i := 1; i <= doc.NumPage(); i++ {
		var text string
		if p := doc.Page(i); !p.V.IsNull() {
			text, err = p.GetPlainText(nil)
			if err != nil {
				return "", fmt.Errorf("retrieval: pdf page %d: %w", i, err)
			}
		}
		fmt.Fprintf(&b, "%s START PAGE %d %s\n\n", pageDelim, i, pageDelim)
		b.WriteString(text)
		fmt.Fprintf(&b, "\n\n%s END PAGE %d %s\n\n", pageDelim, i, pageDelim)
	}
	return b.String(), nil
}
