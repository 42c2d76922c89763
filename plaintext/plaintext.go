// Package plaintext derives the text/plain alternative of an HTML email.
package plaintext

import (
	"html"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jaytaylor/html2text"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mitchellh/go-wordwrap"
)

// DefaultWidth is the word-wrap column of generated text.
const DefaultWidth = 130

// Converter turns HTML into wrapped plain text. Safe for concurrent use.
type Converter struct {
	width   uint
	convert func(string) (string, error)
	strip   *bluemonday.Policy
	logger  *slog.Logger
}

// Option configures a Converter.
type Option func(*Converter)

// WithWidth overrides DefaultWidth.
func WithWidth(width uint) Option {
	return func(c *Converter) {
		if width > 0 {
			c.width = width
		}
	}
}

// WithLogger sets the logger used to report fallbacks.
func WithLogger(l *slog.Logger) Option {
	return func(c *Converter) {
		c.logger = l
	}
}

// New creates a Converter.
func New(opts ...Option) *Converter {
	c := &Converter{
		width:   DefaultWidth,
		convert: fromHTML,
		strip:   bluemonday.StrictPolicy(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Convert never fails: when the HTML cannot be converted it falls back to
// stripping tags.
func (c *Converter) Convert(src string) string {
	text, err := c.convert(src)
	if err != nil {
		c.logger.Warn("html to text conversion failed, stripping tags", "error", err.Error())
		text = c.stripTags(src)
	}
	return wordwrap.WrapString(text, c.width)
}

func fromHTML(src string) (string, error) {
	return html2text.FromString(src, html2text.Options{})
}

var (
	blockBreak = regexp.MustCompile(`(?i)<\s*(br\s*/?|/p|/div|/h[1-6]|/li|/tr)\s*>`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

func (c *Converter) stripTags(src string) string {
	text := blockBreak.ReplaceAllString(src, "$0\n")
	text = html.UnescapeString(c.strip.Sanitize(text))
	text = strings.ReplaceAll(text, "\u00a0", " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}
