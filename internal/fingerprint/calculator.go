package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/aleister1102/codetriage/internal/models"

	"github.com/rs/zerolog"
)

// Confidence describes how much context went into a fingerprint.
type Confidence string

const (
	// ConfidenceScope means the enclosing lexical scope was resolved and is
	// part of the identity.
	ConfidenceScope Confidence = "scope"
	// ConfidenceLine means scope resolution failed and the identity fell
	// back to checker id plus line content only.
	ConfidenceLine Confidence = "line"
)

// Fingerprint is the stable identity of a finding. Value is an opaque hex
// string; two findings with equal Value are the same bug regardless of
// line number, run or file path.
type Fingerprint struct {
	Value      string
	Confidence Confidence
}

// CalculatorConfig holds configuration for the fingerprint calculator
type CalculatorConfig struct {
	HashLength int
}

// DefaultCalculatorConfig returns default configuration
func DefaultCalculatorConfig() CalculatorConfig {
	return CalculatorConfig{HashLength: 32}
}

// Calculator derives stable fingerprints from findings and their source text.
type Calculator struct {
	config CalculatorConfig
	logger zerolog.Logger
}

// NewCalculator creates a new fingerprint calculator
func NewCalculator(logger zerolog.Logger) *Calculator {
	return NewCalculatorWithConfig(DefaultCalculatorConfig(), logger)
}

// NewCalculatorWithConfig creates a new fingerprint calculator with a custom config
func NewCalculatorWithConfig(cfg CalculatorConfig, logger zerolog.Logger) *Calculator {
	if cfg.HashLength <= 0 || cfg.HashLength > 64 {
		cfg.HashLength = 32
	}
	return &Calculator{
		config: cfg,
		logger: logger.With().Str("component", "FingerprintCalculator").Logger(),
	}
}

// Calculate computes the fingerprint of one finding given the source text of
// its file at analysis time. The identity is built from the checker id, the
// whitespace-normalized text of the flagged line and the enclosing lexical
// scope signature. When the scope cannot be determined (top-level context,
// missing source) the identity degrades to checker id + line text and is
// marked with line confidence; it never fails.
func (c *Calculator) Calculate(finding models.Finding, source []byte) Fingerprint {
	lines := splitSourceLines(source)
	lineText := flaggedLineText(lines, finding.Line)

	scope, ok := scopeSignature(lines, finding.Line)
	if !ok {
		c.logger.Debug().
			Str("checker", finding.CheckerID).
			Str("file", finding.FilePath).
			Int("line", finding.Line).
			Msg("Scope unresolvable, using line-confidence fingerprint")
		return Fingerprint{
			Value:      c.hash(finding.CheckerID, "", lineText),
			Confidence: ConfidenceLine,
		}
	}

	return Fingerprint{
		Value:      c.hash(finding.CheckerID, scope, lineText),
		Confidence: ConfidenceScope,
	}
}

// hash produces the opaque fingerprint value
func (c *Calculator) hash(checkerID, scope, lineText string) string {
	hasher := sha256.New()
	hasher.Write([]byte(checkerID))
	hasher.Write([]byte{'|'})
	hasher.Write([]byte(scope))
	hasher.Write([]byte{'|'})
	hasher.Write([]byte(lineText))
	return hex.EncodeToString(hasher.Sum(nil))[:c.config.HashLength]
}

// splitSourceLines normalizes encoding artifacts (UTF-8 BOM, CRLF) and
// splits the source into lines.
func splitSourceLines(source []byte) []string {
	source = bytes.TrimPrefix(source, []byte{0xEF, 0xBB, 0xBF})
	normalized := strings.ReplaceAll(string(source), "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	return strings.Split(normalized, "\n")
}

// flaggedLineText returns the whitespace-normalized content of the 1-based
// line, or an empty string when the line is out of range.
func flaggedLineText(lines []string, line int) string {
	if line < 1 || line > len(lines) {
		return ""
	}
	return collapseWhitespace(lines[line-1])
}

// collapseWhitespace trims the string and folds internal whitespace runs
// into single spaces so formatting-only edits do not change identity.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
