package browser

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var searchEngines = map[string]string{
	"google":     "https://www.google.com/search?q=%s&udm=14",
	"bing":       "https://www.bing.com/search?q=%s",
	"duckduckgo": "https://duckduckgo.com/?q=%s",
}

// SearchEngines lists the engines Search accepts.
func SearchEngines() []string {
	names := make([]string, 0, len(searchEngines))
	for name := range searchEngines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SearchURL builds the results URL of query on engine.
func SearchURL(engine, query string) (string, error) {
	pattern, ok := searchEngines[strings.ToLower(engine)]
	if !ok {
		return "", fmt.Errorf("unsupported search engine %q (supported: %s)", engine, strings.Join(SearchEngines(), ", "))
	}
	return fmt.Sprintf(pattern, url.QueryEscape(query)), nil
}

// Search opens the results page of query in the active tab.
func (s *Session) Search(ctx context.Context, engine, query string) (*ActionResult, error) {
	u, err := SearchURL(engine, query)
	if err != nil {
		return nil, err
	}
	res, err := s.Navigate(ctx, u, false)
	if err != nil {
		return nil, err
	}
	res.Action = "search"
	res.Data["query"] = query
	res.Data["engine"] = strings.ToLower(engine)
	return res, nil
}

// ExtractContent returns the visible text of the page, or of the elements
// matching selector.
func (s *Session) ExtractContent(ctx context.Context, selector string) (*ActionResult, error) {
	page, err := s.page(ctx)
	if err != nil {
		return nil, err
	}
	res, err := page.Eval(`(sel) => {
		if (!sel) return document.body ? document.body.innerText : '';
		return Array.from(document.querySelectorAll(sel)).map(e => e.innerText).join('\n\n');
	}`, selector)
	if err != nil {
		return nil, fmt.Errorf("extract content failed: %w", err)
	}
	text := res.Value.Str()
	data := map[string]any{"content": text, "length": len([]rune(text))}
	if selector != "" {
		data["selector"] = selector
	}
	return &ActionResult{Action: "extract_content", Success: true, Data: data}, nil
}

const markdownJS = `(extractLinks) => {
	const convert = (element) => {
		let out = '';
		for (const node of element.childNodes) {
			if (node.nodeType === Node.TEXT_NODE) {
				out += node.textContent;
				continue;
			}
			if (node.nodeType !== Node.ELEMENT_NODE) continue;
			const tag = node.tagName.toLowerCase();
			switch (tag) {
				case 'h1': out += '\n# ' + node.innerText + '\n'; break;
				case 'h2': out += '\n## ' + node.innerText + '\n'; break;
				case 'h3': out += '\n### ' + node.innerText + '\n'; break;
				case 'h4': out += '\n#### ' + node.innerText + '\n'; break;
				case 'p': out += '\n' + convert(node) + '\n'; break;
				case 'a':
					out += (extractLinks && node.href) ? '[' + node.innerText + '](' + node.href + ')' : node.innerText;
					break;
				case 'strong': case 'b': out += '**' + node.innerText + '**'; break;
				case 'em': case 'i': out += '*' + node.innerText + '*'; break;
				case 'code': out += '` + "`" + `' + node.innerText + '` + "`" + `'; break;
				case 'pre': out += '\n` + "```" + `\n' + node.innerText + '\n` + "```" + `\n'; break;
				case 'ul': case 'ol': out += '\n' + convert(node) + '\n'; break;
				case 'li': out += '- ' + convert(node) + '\n'; break;
				case 'br': out += '\n'; break;
				case 'script': case 'style': case 'noscript': break;
				default: out += convert(node);
			}
		}
		return out;
	};
	return document.body ? convert(document.body) : '';
}`

var blankLines = regexp.MustCompile(`\n{3,}`)

func tidyMarkdown(md string) string {
	return strings.TrimSpace(blankLines.ReplaceAllString(md, "\n\n"))
}

// Markdown converts the active tab to Markdown in the page.
func (s *Session) Markdown(ctx context.Context, links bool) (*ActionResult, error) {
	page, err := s.page(ctx)
	if err != nil {
		return nil, err
	}
	res, err := page.Eval(markdownJS, links)
	if err != nil {
		return nil, fmt.Errorf("extract markdown failed: %w", err)
	}
	md := tidyMarkdown(res.Value.Str())
	return &ActionResult{
		Action:  "extract_markdown",
		Success: true,
		Data:    map[string]any{"markdown": md, "length": len([]rune(md))},
	}, nil
}
