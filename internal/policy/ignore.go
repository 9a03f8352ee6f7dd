package policy

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

// Filter is a compiled Ignore. A nil Filter ignores nothing.
type Filter struct {
	prefixes []string
	patterns []*regexp.Regexp
}

// Compile percent-decodes and compiles every pattern. A nil Ignore compiles
// to a nil Filter.
func (i *Ignore) Compile() (*Filter, error) {
	if i == nil || (len(i.Patterns) == 0 && len(i.Paths) == 0) {
		return nil, nil
	}
	f := &Filter{}
	for _, p := range i.Paths {
		if p = strings.TrimSpace(p); p != "" {
			f.prefixes = append(f.prefixes, filepath.Clean(p))
		}
	}
	for _, raw := range i.Patterns {
		decoded, err := url.PathUnescape(raw)
		if err != nil {
			return nil, fmt.Errorf("decode pattern %q: %w", raw, err)
		}
		re, err := regexp.Compile(decoded)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", decoded, err)
		}
		f.patterns = append(f.patterns, re)
	}
	return f, nil
}

// MustCompile is Compile for literals known to be valid.
func MustCompile(i Ignore) *Filter {
	f, err := i.Compile()
	if err != nil {
		panic(err)
	}
	return f
}

// IgnoreFile reports whether a file path is excluded: it lies under a listed
// path or its base name matches a pattern.
func (f *Filter) IgnoreFile(path string) bool {
	if f == nil {
		return false
	}
	return f.hasPrefix(path) || f.matches(filepath.Base(path))
}

// IgnoreDir reports whether a directory is excluded: it lies under a listed
// path or the full directory path matches a pattern. An excluded directory
// is pruned with everything below it.
func (f *Filter) IgnoreDir(path string) bool {
	if f == nil {
		return false
	}
	return f.hasPrefix(path) || f.matches(path)
}

// hasPrefix compares whole path components, so /var/log covers
// /var/log/syslog but not /var/logs.
func (f *Filter) hasPrefix(path string) bool {
	for _, prefix := range f.prefixes {
		if path == prefix {
			return true
		}
		if !strings.HasSuffix(prefix, string(filepath.Separator)) {
			prefix += string(filepath.Separator)
		}
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (f *Filter) matches(subject string) bool {
	for _, re := range f.patterns {
		if re.MatchString(subject) {
			return true
		}
	}
	return false
}

// Empty reports whether the filter has no rules.
func (f *Filter) Empty() bool {
	return f == nil || (len(f.prefixes) == 0 && len(f.patterns) == 0)
}
