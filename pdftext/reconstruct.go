package pdftext

import (
	"net/url"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// DefaultLineTolerance is the largest vertical distance between two fragments
// that still places them on the same line.
const DefaultLineTolerance = 0.1

// Fragment is a positioned run of text on a page. Y grows downward, so the top
// of the page sorts first.
type Fragment struct {
	X    float64
	Y    float64
	Text string
}

// Page is the raw output of a fragment source for a single page.
type Page struct {
	Number    int
	Fragments []Fragment
}

// PageText is a reconstructed, non-empty page.
type PageText struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// DecodeFunc turns the raw text of a fragment into display text.
type DecodeFunc func(string) string

// Options controls Reconstruct.
type Options struct {
	// LineTolerance defaults to DefaultLineTolerance when zero.
	LineTolerance float64
	// Decode defaults to PercentDecode when nil.
	Decode DecodeFunc
}

// PercentDecode reverses percent-encoding the way pdf2json style sources emit
// runs. Malformed escapes leave the run unchanged.
func PercentDecode(s string) string {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// Verbatim returns the run as is.
func Verbatim(s string) string { return s }

// Reconstruct orders every page's fragments into reading order and returns the
// pages that have text left after trimming.
func Reconstruct(pages []Page, opts Options) []PageText {
	tolerance := opts.LineTolerance
	if tolerance <= 0 {
		tolerance = DefaultLineTolerance
	}
	decode := opts.Decode
	if decode == nil {
		decode = PercentDecode
	}

	out := make([]PageText, 0, len(pages))
	for _, page := range pages {
		text := reconstructPage(page.Fragments, tolerance, decode)
		if text == "" {
			log.WithField("page", page.Number).Debug("Page is empty after reconstruction, dropping it")
			continue
		}
		out = append(out, PageText{Page: page.Number, Text: text})
	}
	return out
}

func reconstructPage(fragments []Fragment, tolerance float64, decode DecodeFunc) string {
	if len(fragments) == 0 {
		return ""
	}

	sorted := make([]Fragment, len(fragments))
	copy(sorted, fragments)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if dy := a.Y - b.Y; dy > tolerance || dy < -tolerance {
			return a.Y < b.Y
		}
		return a.X < b.X
	})

	var sb strings.Builder
	for _, f := range sorted {
		sb.WriteString(decode(f.Text))
		sb.WriteByte(' ')
	}
	return strings.TrimSpace(sb.String())
}

// CountWords counts whitespace separated tokens.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// JoinText concatenates page texts with a blank line between pages.
func JoinText(pages []PageText) string {
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}
	return strings.Join(texts, "\n\n")
}

// SetLogLevel sets the logging level for the pdftext package
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}
