package extract

import (
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// maxRevealClicks caps how many elements of each interactive category are
// clicked during reveal.
const maxRevealClicks = 3

var revealSelectors = []string{
	`[data-toggle="dropdown"], .dropdown-toggle, [aria-haspopup="true"]`,
	`[role="tab"], [data-toggle="tab"], .nav-tabs a`,
	`[data-toggle="collapse"], .accordion-toggle, [aria-expanded="false"]`,
	`.load-more, .show-more, [data-load-more]`,
}

var revealTextButtons = []string{"load more", "show more", "xem thêm"}

// Dynamic performs interactive reveal on a live page, then serializes the DOM
// and runs the static catalogue over it. Output semantics are identical to
// Static by construction. Reveal failures are tolerated: a page that refuses
// to scroll or click still gets its settled DOM extracted.
func Dynamic(page *rod.Page, docURL *url.URL, opts Options, wait time.Duration) []string {
	reveal(page, wait)

	htmlText, err := page.HTML()
	if err != nil {
		return nil
	}
	return Static(htmlText, docURL, opts)
}

func reveal(page *rod.Page, wait time.Duration) {
	defer func() { recover() }()

	// Scroll through the full document height in viewport increments, then
	// jump to mid and back to top.
	_, _ = page.Eval(`() => {
		const step = window.innerHeight;
		const height = document.body ? document.body.scrollHeight : 0;
		for (let y = 0; y <= height; y += step) {
			window.scrollTo(0, y);
		}
		window.scrollTo(0, height / 2);
		window.scrollTo(0, 0);
		if (document.body && document.body.scrollWidth > window.innerWidth) {
			window.scrollTo(document.body.scrollWidth, 0);
			window.scrollTo(0, 0);
		}
	}`)

	for _, selector := range revealSelectors {
		clickFirst(page, selector, maxRevealClicks)
	}
	clickByText(page, revealTextButtons, maxRevealClicks)
	hoverTooltips(page)

	if wait > 0 {
		time.Sleep(wait)
	}
}

func clickFirst(page *rod.Page, selector string, limit int) {
	elements, err := page.Elements(selector)
	if err != nil {
		return
	}
	for i, el := range elements {
		if i >= limit {
			break
		}
		_ = el.Click(proto.InputMouseButtonLeft, 1)
	}
}

func clickByText(page *rod.Page, labels []string, limit int) {
	for _, label := range labels {
		elements, err := page.ElementsX(`//button[contains(translate(., 'ABCDEFGHIJKLMNOPQRSTUVWXYZ', 'abcdefghijklmnopqrstuvwxyz'), '` + label + `')]`)
		if err != nil {
			continue
		}
		for i, el := range elements {
			if i >= limit {
				break
			}
			_ = el.Click(proto.InputMouseButtonLeft, 1)
		}
	}
}

func hoverTooltips(page *rod.Page) {
	elements, err := page.Elements(`[title], [data-tooltip], [aria-describedby]`)
	if err != nil {
		return
	}
	for i, el := range elements {
		if i >= maxRevealClicks {
			break
		}
		_ = el.Hover()
	}
}
