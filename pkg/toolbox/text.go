package toolbox

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// LineMatch is one regex hit in a file.
type LineMatch struct {
	LineNumber int    `json:"line_number"`
	Content    string `json:"content"`
}

func compile(pattern string, caseSensitive bool) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("pattern is required")
	}
	if !caseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	return re, nil
}

// SearchText returns every match of pattern in path with its 1-based line.
func SearchText(path, pattern string, caseSensitive bool) ([]LineMatch, error) {
	re, err := compile(pattern, caseSensitive)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(clean(path))
	if err != nil {
		return nil, err
	}
	content := string(data)
	lines := strings.Split(content, "\n")
	matches := []LineMatch{}
	for _, loc := range re.FindAllStringIndex(content, -1) {
		n := strings.Count(content[:loc[0]], "\n") + 1
		matches = append(matches, LineMatch{LineNumber: n, Content: strings.TrimSpace(lines[n-1])})
	}
	return matches, nil
}

// ReplaceResult reports a replace_text_in_file run.
type ReplaceResult struct {
	Replacements int    `json:"replacements"`
	BackupPath   string `json:"backup_path,omitempty"`
}

// ReplaceText substitutes every match of pattern in path. With backup the
// original is first copied to path + ".backup". In replacement, \1 and
// \g<name> refer to groups, \\ is a backslash and $ is literal.
func ReplaceText(path, pattern, replacement string, caseSensitive, backup bool) (ReplaceResult, error) {
	re, err := compile(pattern, caseSensitive)
	if err != nil {
		return ReplaceResult{}, err
	}
	p := clean(path)
	fi, err := os.Stat(p)
	if err != nil {
		return ReplaceResult{}, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return ReplaceResult{}, err
	}

	var res ReplaceResult
	if backup {
		res.BackupPath = p + ".backup"
		if err := os.WriteFile(res.BackupPath, data, fi.Mode().Perm()); err != nil {
			return ReplaceResult{}, fmt.Errorf("write backup: %w", err)
		}
	}
	res.Replacements = len(re.FindAllIndex(data, -1))
	if res.Replacements == 0 {
		return res, nil
	}
	if err := os.WriteFile(p, re.ReplaceAll(data, []byte(replacementTemplate(replacement))), fi.Mode().Perm()); err != nil {
		return ReplaceResult{}, err
	}
	return res, nil
}

// replacementTemplate rewrites a backslash style replacement into the
// template syntax regexp.Expand understands.
func replacementTemplate(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '$':
			b.WriteString("$$")
		case c == '\\' && i+1 < len(s):
			next := s[i+1]
			switch {
			case next >= '0' && next <= '9':
				j := i + 1
				for j < len(s) && s[j] >= '0' && s[j] <= '9' {
					j++
				}
				b.WriteString("${" + s[i+1:j] + "}")
				i = j - 1
			case next == 'g' && i+2 < len(s) && s[i+2] == '<':
				if end := strings.IndexByte(s[i+3:], '>'); end >= 0 {
					b.WriteString("${" + s[i+3:i+3+end] + "}")
					i += 3 + end
				} else {
					b.WriteByte(c)
				}
			case next == '\\':
				b.WriteByte('\\')
				i++
			case next == 'n':
				b.WriteByte('\n')
				i++
			case next == 't':
				b.WriteByte('\t')
				i++
			default:
				b.WriteByte(c)
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
