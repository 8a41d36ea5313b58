package smartmouse

import (
	"strconv"
	"strings"
)

// Word is one recognised word from tesseract's TSV output.
type Word struct {
	Block      int     `json:"-"`
	Paragraph  int     `json:"-"`
	Line       int     `json:"-"`
	Left       int     `json:"left"`
	Top        int     `json:"top"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"`
	Text       string  `json:"text"`
}

// Box is a bounding rectangle in image pixels.
type Box struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the middle of the box.
func (b Box) Center() (float64, float64) {
	return float64(b.Left) + float64(b.Width)/2, float64(b.Top) + float64(b.Height)/2
}

// Match is a located text target.
type Match struct {
	Text       string  `json:"text"`
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
}

// ParseTSV reads `tesseract <img> - tsv`:
// level page_num block_num par_num line_num word_num left top width height conf text.
// Only word rows (level 5) with text are kept.
func ParseTSV(out string) []Word {
	var words []Word
	for i, line := range strings.Split(out, "\n") {
		if i == 0 && strings.HasPrefix(line, "level") {
			continue
		}
		cols := strings.Split(strings.TrimRight(line, "\r"), "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		text := strings.TrimSpace(strings.Join(cols[11:], "\t"))
		if text == "" {
			continue
		}
		w := Word{Text: text}
		w.Block, _ = strconv.Atoi(cols[2])
		w.Paragraph, _ = strconv.Atoi(cols[3])
		w.Line, _ = strconv.Atoi(cols[4])
		w.Left, _ = strconv.Atoi(cols[6])
		w.Top, _ = strconv.Atoi(cols[7])
		w.Width, _ = strconv.Atoi(cols[8])
		w.Height, _ = strconv.Atoi(cols[9])
		w.Confidence, _ = strconv.ParseFloat(cols[10], 64)
		words = append(words, w)
	}
	return words
}

func sameLine(a, b Word) bool {
	return a.Block == b.Block && a.Paragraph == b.Paragraph && a.Line == b.Line
}

// FindText returns the first word, or run of consecutive words on one
// line, whose text contains needle.
func FindText(words []Word, needle string, caseSensitive bool) (Match, bool) {
	norm := func(s string) string {
		if caseSensitive {
			return s
		}
		return strings.ToLower(s)
	}
	want := norm(strings.TrimSpace(needle))
	if want == "" {
		return Match{}, false
	}

	for i := range words {
		if strings.Contains(norm(words[i].Text), want) {
			return matchOf(words[i : i+1]), true
		}
		// Grow a run along the line. Joined with and without spaces so
		// CJK text split into single glyphs still matches.
		spaced, tight := words[i].Text, words[i].Text
		for j := i + 1; j < len(words) && sameLine(words[i], words[j]); j++ {
			spaced += " " + words[j].Text
			tight += words[j].Text
			if strings.Contains(norm(spaced), want) || strings.Contains(norm(tight), want) {
				return matchOf(words[i : j+1]), true
			}
			if len(spaced) > len(want)*4+16 {
				break
			}
		}
	}
	return Match{}, false
}

func matchOf(run []Word) Match {
	left, top := run[0].Left, run[0].Top
	right, bottom := left+run[0].Width, top+run[0].Height
	texts := make([]string, len(run))
	var conf float64
	for i, w := range run {
		left = min(left, w.Left)
		top = min(top, w.Top)
		right = max(right, w.Left+w.Width)
		bottom = max(bottom, w.Top+w.Height)
		texts[i] = w.Text
		conf += w.Confidence
	}
	return Match{
		Text:       strings.Join(texts, " "),
		Box:        Box{Left: left, Top: top, Width: right - left, Height: bottom - top},
		Confidence: conf / float64(len(run)),
	}
}
