package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"
)

// Library is reported to clients as the text extraction backend.
const Library = "ledongthuc/pdf"

// ErrInvalidPDF is returned when the uploaded bytes cannot be parsed as a PDF.
var ErrInvalidPDF = errors.New("invalid PDF")

// Result is the immutable outcome of extracting one uploaded file.
type Result struct {
	Filename    string     `json:"filename"`
	TotalPages  int        `json:"total_pages"`
	TotalWords  int        `json:"total_words"`
	Pages       []PageText `json:"content"`
	Library     string     `json:"library"`
	SourcePages int        `json:"source_pages"`
}

// Summarize builds a Result from reconstructed pages. TotalPages counts only
// pages that carry text.
func Summarize(filename string, pages []PageText) Result {
	words := 0
	for _, p := range pages {
		words += CountWords(p.Text)
	}
	return Result{
		Filename:   filename,
		TotalPages: len(pages),
		TotalWords: words,
		Pages:      pages,
		Library:    Library,
	}
}

// Text returns the concatenated page text.
func (r *Result) Text() string {
	return JoinText(r.Pages)
}

// Extractor reads positioned text runs out of PDF bytes.
type Extractor struct {
	LineTolerance float64
}

// NewExtractor returns an Extractor using DefaultLineTolerance.
func NewExtractor() *Extractor {
	return &Extractor{LineTolerance: DefaultLineTolerance}
}

// Extract validates data as a PDF and reconstructs its text. Any parser-level
// failure fails the whole document.
func (e *Extractor) Extract(ctx context.Context, filename string, data []byte) (*Result, error) {
	logger := log.WithFields(logrus.Fields{
		"filename": filename,
		"size":     len(data),
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if mtype := mimetype.Detect(data); !mtype.Is("application/pdf") {
		logger.WithField("detected", mtype.String()).Warn("Upload is not a PDF")
		return nil, fmt.Errorf("%w: detected content type %s", ErrInvalidPDF, mtype.String())
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		logger.WithError(err).Warn("PDF validation failed")
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	sourcePages, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: counting pages: %v", ErrInvalidPDF, err)
	}

	pages, err := readPages(data)
	if err != nil {
		logger.WithError(err).Error("Failed to read PDF text")
		return nil, err
	}

	content := Reconstruct(pages, Options{LineTolerance: e.LineTolerance, Decode: Verbatim})
	result := Summarize(filename, content)
	result.SourcePages = sourcePages

	logger.WithFields(logrus.Fields{
		"pages_with_text": result.TotalPages,
		"pages_total":     sourcePages,
		"pages_empty":     sourcePages - result.TotalPages,
		"words":           result.TotalWords,
	}).Info("Extracted PDF text")
	return &result, nil
}

// readPages collects positioned runs for every page. A page whose content
// stream cannot be interpreted is skipped.
func readPages(data []byte) (pages []Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidPDF, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	numPages := reader.NumPage()
	pages = make([]Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		fragments, err := pageFragments(p)
		if err != nil {
			log.WithError(err).WithField("page", i).Warn("Skipping unreadable page")
			continue
		}
		pages = append(pages, Page{Number: i, Fragments: fragments})
	}
	return pages, nil
}

// tjWordGap is the TJ adjustment, in thousandths of an em, from which a
// backward kern is read as a word space.
const tjWordGap = -200

// pageFragments walks the page content stream and returns one fragment per
// text-showing operator, in stream order. The pieces of a TJ array form a
// single fragment. PDF user space grows upward, so Y is negated.
func pageFragments(p pdf.Page) (fragments []Fragment, err error) {
	defer func() {
		if r := recover(); r != nil {
			fragments, err = nil, fmt.Errorf("content stream: %v", r)
		}
	}()

	contents := p.V.Key("Contents")
	if contents.Kind() == pdf.Null {
		return nil, nil
	}

	encoders := make(map[string]pdf.TextEncoding)
	for _, name := range p.Fonts() {
		encoders[name] = p.Font(name).Encoder()
	}
	var enc pdf.TextEncoding
	decode := func(v pdf.Value) string {
		if enc == nil {
			return v.RawString()
		}
		return enc.Decode(v.RawString())
	}

	var lineX, lineY, leading float64
	scaleX, scaleY := 1.0, 1.0
	moveLine := func(tx, ty float64) {
		lineX += tx * scaleX
		lineY += ty * scaleY
	}
	emit := func(s string) {
		if strings.TrimSpace(s) != "" {
			fragments = append(fragments, Fragment{X: lineX, Y: -lineY, Text: s})
		}
	}

	pdf.Interpret(contents, func(stk *pdf.Stack, op string) {
		n := stk.Len()
		args := make([]pdf.Value, n)
		for i := n - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}

		switch op {
		case "BT":
			lineX, lineY, scaleX, scaleY = 0, 0, 1, 1
		case "Tf":
			if n == 2 {
				enc = encoders[args[0].Name()]
			}
		case "TL":
			if n == 1 {
				leading = args[0].Float64()
			}
		case "Tm":
			if n == 6 {
				scaleX, scaleY = args[0].Float64(), args[3].Float64()
				lineX, lineY = args[4].Float64(), args[5].Float64()
			}
		case "Td":
			if n == 2 {
				moveLine(args[0].Float64(), args[1].Float64())
			}
		case "TD":
			if n == 2 {
				leading = -args[1].Float64()
				moveLine(args[0].Float64(), args[1].Float64())
			}
		case "T*":
			moveLine(0, -leading)
		case "Tj":
			if n == 1 {
				emit(decode(args[0]))
			}
		case "'":
			if n == 1 {
				moveLine(0, -leading)
				emit(decode(args[0]))
			}
		case "\"":
			if n == 3 {
				moveLine(0, -leading)
				emit(decode(args[2]))
			}
		case "TJ":
			if n == 1 {
				emit(joinTJ(args[0], decode))
			}
		}
	})
	return fragments, nil
}

// joinTJ concatenates the strings of a TJ array. Large backward kerns become
// a single space; smaller ones are glyph kerning inside a word.
func joinTJ(array pdf.Value, decode func(pdf.Value) string) string {
	var sb strings.Builder
	for i := 0; i < array.Len(); i++ {
		item := array.Index(i)
		switch item.Kind() {
		case pdf.String:
			sb.WriteString(decode(item))
		case pdf.Integer, pdf.Real:
			if item.Float64() <= tjWordGap {
				sb.WriteByte(' ')
			}
		}
	}
	return sb.String()
}
