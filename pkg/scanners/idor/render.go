package idor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fatih/color"
)

var headerColor = color.New(color.FgCyan, color.Bold)

// Prettify parses body as exactly one JSON value and re-serializes it with two-space indentation.
// Object keys come out sorted and number literals are kept as written.
func Prettify(body []byte) (string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return "", fmt.Errorf("%w: empty body", ErrInvalidJSON)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return "", fmt.Errorf("%w: trailing data after top-level value", ErrInvalidJSON)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		return "", fmt.Errorf("%w: %w", ErrPrettify, err)
	}

	return unescapeLineSeparators(strings.TrimSuffix(buf.String(), "\n")), nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes encoding/json always
// emits back into raw characters. Every backslash in encoder output starts an
// escape, so skipping escapes pairwise never misreads an escaped backslash.
func unescapeLineSeparators(s string) string {
	if !strings.Contains(s, `\u202`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		switch {
		case strings.HasPrefix(s[i:], `\u2028`):
			b.WriteRune('\u2028')
			i += 5
		case strings.HasPrefix(s[i:], `\u2029`):
			b.WriteRune('\u2029')
			i += 5
		case i+1 < len(s):
			b.WriteString(s[i : i+2])
			i++
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// WriteResult prints the header line, a blank line, then the pretty JSON.
func WriteResult(w io.Writer, url, pretty string) error {
	_, err := fmt.Fprintf(w, "%s\n\n%s\n", headerColor.Sprintf("Results for %s:", url), pretty)
	return err
}

// describeNonJSON names the page title when a non-JSON body turns out to be HTML,
// which is the usual shape of login redirects and error pages.
func describeNonJSON(contentType string, body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if !strings.Contains(strings.ToLower(contentType), "html") && !bytes.HasPrefix(trimmed, []byte("<")) {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(trimmed))
	if err != nil {
		return ""
	}

	title := strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
	if title == "" {
		return ""
	}
	return fmt.Sprintf("received HTML page %q", title)
}
