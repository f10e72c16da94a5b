// Package normalizer rewrites raw log lines with an ordered list of
// regular-expression rules so that lines of the same shape embed alike.
package normalizer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultRulesFile is read when no rules file is configured.
const DefaultRulesFile = "patterns.txt"

// Separator splits a rule line into pattern and replacement.
const Separator = " :: "

// Rule is a compiled pattern and its replacement template.
type Rule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// Normalizer applies rules in order.
type Normalizer struct {
	rules      []Rule
	replaceAll bool
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithReplaceAll makes every rule rewrite all of its matches instead of the first one.
func WithReplaceAll(enabled bool) Option { return func(n *Normalizer) { n.replaceAll = enabled } }

// New builds a normalizer from already compiled rules.
func New(rules []Rule, opts ...Option) *Normalizer {
	n := &Normalizer{rules: rules}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Load reads the rules file at path, which must exist.
func Load(path string, opts ...Option) (*Normalizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rules file: %w", err)
	}
	defer f.Close()
	rules, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return New(rules, opts...), nil
}

// LoadDefault reads DefaultRulesFile from the working directory. When that
// file does not exist the normalizer has no rules.
func LoadDefault(opts ...Option) (*Normalizer, error) {
	n, err := Load(DefaultRulesFile, opts...)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", DefaultRulesFile).Msg("Rules file not found, lines are used as is")
		return New(nil, opts...), nil
	}
	return n, err
}

// Open loads the rules file at path, or the default one when path is empty.
func Open(path string, opts ...Option) (*Normalizer, error) {
	if path == "" {
		return LoadDefault(opts...)
	}
	return Load(path, opts...)
}

// Parse reads rules in the form "regex :: replacement", one per line.
// Blank lines and lines starting with '#' are ignored, as are lines without a separator.
func Parse(r io.Reader) ([]Rule, error) {
	var rules []Rule
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		pattern, replacement, ok := strings.Cut(line, Separator)
		if !ok {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		rules = append(rules, Rule{Pattern: re, Replacement: replacement})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

// Len returns the number of rules.
func (n *Normalizer) Len() int { return len(n.rules) }

// Normalize applies every rule in order to line.
func (n *Normalizer) Normalize(line string) string {
	out := line
	for _, r := range n.rules {
		if n.replaceAll {
			out = r.Pattern.ReplaceAllString(out, r.Replacement)
			continue
		}
		loc := r.Pattern.FindStringSubmatchIndex(out)
		if loc == nil {
			continue
		}
		var dst []byte
		dst = r.Pattern.ExpandString(dst, r.Replacement, out, loc)
		out = out[:loc[0]] + string(dst) + out[loc[1]:]
	}
	return out
}
