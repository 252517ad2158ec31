package filesystem

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultSampleSize is the number of leading bytes inspected for content checks
const DefaultSampleSize = 512

// knownTextFiles are dotfiles that are always text regardless of content
var knownTextFiles = map[string]bool{
	".bashrc":       true,
	".bash_profile": true,
	".bash_logout":  true,
	".bash_history": true,
	".profile":      true,
	".xprofile":     true,
	".rpmmacros":    true,
	".lpoptions":    true,
}

// Reasons reported in a Verdict
const (
	ReasonBinaryExtension = "binary extension"
	ReasonKnownTextFile   = "known text file"
	ReasonTextSuffix      = "text suffix"
	ReasonMIMEText        = "mime type"
	ReasonTooLarge        = "exceeds max text size"
	ReasonNulByte         = "contains NUL byte"
	ReasonInvalidUTF8     = "invalid utf-8"
	ReasonUnreadable      = "unreadable"
	ReasonContent         = "content"
)

// Verdict is the classification of one file
type Verdict struct {
	IsText bool
	Reason string
}

// Classifier decides whether a file is text or binary
type Classifier struct {
	binaryExts   map[string]bool
	textSuffixes []string
	maxTextSize  int64
	sampleSize   int
}

// NewClassifier creates a classifier. binaryExts and textSuffixes carry the leading dot.
func NewClassifier(binaryExts, textSuffixes []string, maxTextSize int64, sampleSize int) *Classifier {
	c := &Classifier{
		binaryExts:  make(map[string]bool, len(binaryExts)),
		maxTextSize: maxTextSize,
		sampleSize:  sampleSize,
	}
	for _, ext := range binaryExts {
		c.binaryExts[strings.ToLower(ext)] = true
	}
	for _, s := range textSuffixes {
		c.textSuffixes = append(c.textSuffixes, strings.ToLower(s))
	}
	if c.sampleSize <= 0 {
		c.sampleSize = DefaultSampleSize
	}
	return c
}

// SampleSize returns the number of bytes read by ClassifyFile
func (c *Classifier) SampleSize() int {
	return c.sampleSize
}

// Classify runs the full cascade. It depends only on its arguments.
func (c *Classifier) Classify(name string, size int64, sample []byte) Verdict {
	if v, ok := c.classifyName(name, size); ok {
		return v
	}
	return classifyContent(sample, c.sampleSize)
}

// ClassifyFile classifies a file on disk. The sample is read only when the
// name and size checks are inconclusive; an unreadable file is binary.
func (c *Classifier) ClassifyFile(path string, size int64) Verdict {
	if v, ok := c.classifyName(filepath.Base(path), size); ok {
		return v
	}
	sample, err := ReadSample(path, c.sampleSize)
	if err != nil {
		return Verdict{IsText: false, Reason: ReasonUnreadable}
	}
	return classifyContent(sample, c.sampleSize)
}

// classifyName covers the cascade steps that need no file content
func (c *Classifier) classifyName(name string, size int64) (Verdict, bool) {
	lower := strings.ToLower(name)
	ext := filepath.Ext(lower)

	if ext != "" && c.binaryExts[ext] {
		return Verdict{IsText: false, Reason: ReasonBinaryExtension}, true
	}
	if knownTextFiles[lower] {
		return Verdict{IsText: true, Reason: ReasonKnownTextFile}, true
	}
	for _, suffix := range c.textSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return Verdict{IsText: true, Reason: ReasonTextSuffix}, true
		}
	}
	if ext != "" && strings.HasPrefix(mime.TypeByExtension(ext), "text/") {
		return Verdict{IsText: true, Reason: ReasonMIMEText}, true
	}
	if size > c.maxTextSize {
		return Verdict{IsText: false, Reason: ReasonTooLarge}, true
	}
	return Verdict{}, false
}

func classifyContent(sample []byte, sampleSize int) Verdict {
	if bytes.IndexByte(sample, 0) >= 0 {
		return Verdict{IsText: false, Reason: ReasonNulByte}
	}
	if !utf8.Valid(sample) {
		// A full sample may end inside a multi-byte rune
		if len(sample) < sampleSize || !utf8.Valid(trimPartialRune(sample)) {
			return Verdict{IsText: false, Reason: ReasonInvalidUTF8}
		}
	}
	return Verdict{IsText: true, Reason: ReasonContent}
}

// trimPartialRune drops an incomplete UTF-8 sequence at the end of b
func trimPartialRune(b []byte) []byte {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		if utf8.RuneStart(b[len(b)-i]) {
			if !utf8.FullRune(b[len(b)-i:]) {
				return b[:len(b)-i]
			}
			break
		}
	}
	return b
}

// ReadSample reads up to n leading bytes of a file
func ReadSample(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:read], nil
}

// Sniff returns the MIME type detected from content. Diagnostic only.
func Sniff(sample []byte) string {
	return mimetype.Detect(sample).String()
}
