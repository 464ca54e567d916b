package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	assignedURLRe = regexp.MustCompile(`(?i)(?:href|url|link|location\.href|window\.location|window\.open|location)\s*[=:.(]\s*['"]([^'"]+)['"]`)
	callURLRe     = regexp.MustCompile(`(?i)(?:fetch|axios(?:\.\w+)?|ajax|XMLHttpRequest|\.get|\.post|\.put|\.delete)\s*\(\s*['"]([^'"]+)['"]`)
	literalURLRe  = regexp.MustCompile(`['"](https?://[^'"\s]+|/[^/'"\s][^'"\s]*)['"]`)
	bareURLRe     = regexp.MustCompile(`https?://[^\s"'<>()\\]+`)
	cssURLRe      = regexp.MustCompile(`(?i)url\(\s*['"]?([^'")\s]+)['"]?\s*\)`)
	cssImportRe   = regexp.MustCompile(`(?i)@import\s+['"]([^'"]+)['"]`)
	metaRefreshRe = regexp.MustCompile(`(?i)url\s*=\s*['"]?([^'";\s]+)`)
	dataAttrRe    = regexp.MustCompile(`(?i)href|url|link|action|path|route`)
)

// Static parses an HTML document and returns every candidate URL string it
// finds, deduplicated in first-encountered order. Returned strings are raw
// tokens, not yet normalized or filtered. docURL is the address the document
// was fetched from; it scopes the script-src same-origin rule.
func Static(htmlText string, docURL *url.URL, opts Options) []string {
	set := newURLSet()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err == nil {
		extractFromDocument(doc, docURL, opts, set)
	}

	// A second pass with the raw tokenizer reaches what goquery does not
	// surface: comment nodes and text-node URLs.
	scanRawNodes(htmlText, opts, set)

	return set.order
}

func extractFromDocument(doc *goquery.Document, docURL *url.URL, opts Options, set *urlSet) {
	doc.Find("a").Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			set.add(strings.TrimSpace(href))
		}
		if opts.IncludeDataAttributes {
			if v, ok := sel.Attr("data-href"); ok {
				set.add(strings.TrimSpace(v))
			}
			if v, ok := sel.Attr("data-url"); ok {
				set.add(strings.TrimSpace(v))
			}
		}
	})

	if opts.IncludeOnClick {
		doc.Find("[onclick]").Each(func(_ int, sel *goquery.Selection) {
			if js, ok := sel.Attr("onclick"); ok {
				set.addAll(scanScriptText(js))
			}
		})
	}

	if opts.IncludeForms {
		doc.Find("form[action]").Each(func(_ int, sel *goquery.Selection) {
			if action, ok := sel.Attr("action"); ok {
				set.add(strings.TrimSpace(action))
			}
		})
	}

	if opts.IncludeDataAttributes {
		doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
			for _, attr := range sel.Nodes[0].Attr {
				if !strings.HasPrefix(attr.Key, "data-") {
					continue
				}
				if dataAttrRe.MatchString(attr.Key[len("data-"):]) {
					set.add(strings.TrimSpace(attr.Val))
				}
			}
		})
	}

	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		typ, _ := sel.Attr("type")
		typ = strings.ToLower(typ)

		if src, ok := sel.Attr("src"); ok {
			if sameOriginRef(src, docURL) {
				set.add(strings.TrimSpace(src))
			}
			return
		}

		text := sel.Text()
		switch {
		case strings.Contains(typ, "ld+json") || typ == "application/json":
			set.addAll(JSONURLs([]byte(text)))
		default:
			set.addAll(scanScriptText(text))
		}
	})

	doc.Find("style").Each(func(_ int, sel *goquery.Selection) {
		set.addAll(scanStyleText(sel.Text()))
	})
	doc.Find("[style]").Each(func(_ int, sel *goquery.Selection) {
		if css, ok := sel.Attr("style"); ok {
			set.addAll(scanStyleText(css))
		}
	})

	doc.Find("img[srcset]").Each(func(_ int, sel *goquery.Selection) {
		if srcset, ok := sel.Attr("srcset"); ok {
			set.addAll(splitSrcset(srcset))
		}
	})
	doc.Find("source").Each(func(_ int, sel *goquery.Selection) {
		if src, ok := sel.Attr("src"); ok {
			set.add(strings.TrimSpace(src))
		}
		if srcset, ok := sel.Attr("srcset"); ok {
			set.addAll(splitSrcset(srcset))
		}
	})
	doc.Find("video[poster]").Each(func(_ int, sel *goquery.Selection) {
		if poster, ok := sel.Attr("poster"); ok {
			set.add(strings.TrimSpace(poster))
		}
	})
	doc.Find("object[data]").Each(func(_ int, sel *goquery.Selection) {
		if data, ok := sel.Attr("data"); ok {
			set.add(strings.TrimSpace(data))
		}
	})
	doc.Find("embed[src]").Each(func(_ int, sel *goquery.Selection) {
		if src, ok := sel.Attr("src"); ok {
			set.add(strings.TrimSpace(src))
		}
	})

	doc.Find(`meta[property="og:url"], meta[property="og:image"], meta[name="twitter:url"], meta[name="twitter:image"]`).Each(func(_ int, sel *goquery.Selection) {
		if content, ok := sel.Attr("content"); ok {
			set.add(strings.TrimSpace(content))
		}
	})

	rels := []string{"manifest", "prefetch", "preload", "dns-prefetch", "prerender"}
	if opts.IncludeCanonical {
		rels = append(rels, "canonical")
	}
	for _, rel := range rels {
		doc.Find(`link[rel="` + rel + `"]`).Each(func(_ int, sel *goquery.Selection) {
			if href, ok := sel.Attr("href"); ok {
				set.add(strings.TrimSpace(href))
			}
		})
	}

	if opts.IncludeMetaRefresh {
		doc.Find(`meta[http-equiv]`).Each(func(_ int, sel *goquery.Selection) {
			equiv, _ := sel.Attr("http-equiv")
			if !strings.EqualFold(equiv, "refresh") {
				return
			}
			content, _ := sel.Attr("content")
			if m := metaRefreshRe.FindStringSubmatch(content); m != nil {
				set.add(strings.TrimSpace(m[1]))
			}
		})
	}

	if opts.IncludeInteractiveElements {
		doc.Find(`button, [role="button"], [role="link"]`).Each(func(_ int, sel *goquery.Selection) {
			for _, attr := range sel.Nodes[0].Attr {
				if strings.HasPrefix(attr.Key, "data-") && dataAttrRe.MatchString(attr.Key[len("data-"):]) {
					set.add(strings.TrimSpace(attr.Val))
				}
			}
		})
	}

	doc.Find("area[href]").Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			set.add(strings.TrimSpace(href))
		}
	})
	doc.Find("base[href]").Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			set.add(strings.TrimSpace(href))
		}
	})
}

// scanRawNodes tokenizes the document to reach comment nodes and text-node
// URLs. iframe subtrees are skipped entirely.
func scanRawNodes(htmlText string, opts Options, set *urlSet) {
	tokenizer := html.NewTokenizer(strings.NewReader(htmlText))
	skipDepth := 0
	inScript := false
	inStyle := false

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return
		case html.CommentToken:
			if skipDepth == 0 {
				set.addAll(bareURLRe.FindAllString(string(tokenizer.Text()), -1))
				set.addAll(matchGroups(literalURLRe, string(tokenizer.Text())))
			}
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "iframe":
				skipDepth++
			case "script":
				inScript = true
			case "style":
				inStyle = true
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "iframe":
				if skipDepth > 0 {
					skipDepth--
				}
			case "script":
				inScript = false
			case "style":
				inStyle = false
			}
		case html.TextToken:
			if skipDepth > 0 || inScript || inStyle {
				continue
			}
			set.addAll(bareURLRe.FindAllString(string(tokenizer.Text()), -1))
		}
	}
}

// scanScriptText pulls URL tokens out of inline JavaScript.
func scanScriptText(js string) []string {
	var out []string
	out = append(out, matchGroups(assignedURLRe, js)...)
	out = append(out, matchGroups(callURLRe, js)...)
	out = append(out, matchGroups(literalURLRe, js)...)
	return out
}

// scanStyleText pulls URL tokens out of CSS.
func scanStyleText(css string) []string {
	var out []string
	out = append(out, matchGroups(cssURLRe, css)...)
	out = append(out, matchGroups(cssImportRe, css)...)
	return out
}

func matchGroups(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

// splitSrcset extracts URL halves of a srcset attribute.
func splitSrcset(srcset string) []string {
	var out []string
	for _, candidate := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(candidate))
		if len(fields) > 0 {
			out = append(out, fields[0])
		}
	}
	return out
}

// sameOriginRef reports whether ref resolves to the document's hostname.
// Relative refs are always same-origin.
func sameOriginRef(ref string, docURL *url.URL) bool {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return false
	}
	if parsed.Host == "" {
		return true
	}
	return strings.EqualFold(parsed.Hostname(), docURL.Hostname())
}
