// Package pdfinfo counts the pages of the source PDFs shipped inside
// document archives.
package pdfinfo

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/ledongthuc/pdf"

	"labelqc/internal/archive"
	"labelqc/internal/logger"
)

const (
	pdfExt         = ".pdf"
	originalFolder = "original/"
	archivePrefix  = "visualcontent-"
)

// CountPages returns the number of pages of the PDF at path.
func CountPages(path string) (n int, err error) {
	defer recoverPDF(&err)

	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	return r.NumPage(), nil
}

// Count returns the number of pages of an in-memory PDF.
func Count(data []byte) (n int, err error) {
	defer recoverPDF(&err)

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("read pdf: %w", err)
	}
	return r.NumPage(), nil
}

// CountArchivePages counts the pages of the source PDF of an archive: the
// first PDF in its original/ folder, or else the first PDF anywhere in it.
func CountArchivePages(zipPath string) (int, error) {
	data, name, err := archive.ReadMatch(zipPath, func(name string) bool {
		return isPDF(name) && strings.HasPrefix(path.Clean(name), originalFolder)
	})
	if err != nil {
		data, name, err = archive.ReadFirst(zipPath, pdfExt)
	}
	if err != nil {
		return 0, err
	}
	n, err := Count(data)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

func isPDF(name string) bool {
	return strings.EqualFold(path.Ext(name), pdfExt)
}

// recoverPDF turns a panic in the PDF parser into an error.
func recoverPDF(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("malformed pdf: %v", r)
	}
}

// DocumentName derives the document name from an archive path by dropping
// the extension and the visualcontent- export prefix.
func DocumentName(zipPath string) string {
	return strings.TrimPrefix(archive.Stem(zipPath), archivePrefix)
}

// DocumentPages is the page count of one archive.
type DocumentPages struct {
	Document  string `json:"document"`
	Archive   string `json:"archive"`
	Pages     int    `json:"pages"`
	Estimated bool   `json:"estimated,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Summary aggregates page counts over a set of archives.
type Summary struct {
	TotalDocuments int             `json:"total_documents"`
	TotalPages     int             `json:"total_pages"`
	EstimatedPages int             `json:"estimated_pages"`
	Documents      []DocumentPages `json:"documents"`
}

// Analyze counts the pages of every archive. An archive whose PDF is missing
// or unreadable counts as one estimated page.
func Analyze(archives []string) Summary {
	log := logger.WithComponent("pdfinfo")

	summary := Summary{Documents: make([]DocumentPages, 0, len(archives))}
	for _, zipPath := range archives {
		doc := DocumentPages{Document: DocumentName(zipPath), Archive: zipPath}
		n, err := CountArchivePages(zipPath)
		if err != nil {
			log.Warn().Err(err).Str("archive", zipPath).Msg("Could not count pages, assuming one")
			doc.Pages, doc.Estimated, doc.Error = 1, true, err.Error()
			summary.EstimatedPages++
		} else {
			doc.Pages = n
		}
		summary.TotalPages += doc.Pages
		summary.Documents = append(summary.Documents, doc)
	}
	summary.TotalDocuments = len(summary.Documents)
	return summary
}
