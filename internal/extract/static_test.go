package extract

import (
	"net/url"
	"testing"
)

func docURL(t *testing.T) *url.URL {
	t.Helper()
	u, err := url.Parse("https://example.test/page")
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

func TestStaticAnchors(t *testing.T) {
	htmlText := `<html><body>
		<a href="/about">About</a>
		<a href="https://example.test/contact">Contact</a>
		<a data-href="/data-h" data-url="/data-u">x</a>
	</body></html>`

	got := Static(htmlText, docURL(t), DefaultOptions())

	for _, want := range []string{"/about", "https://example.test/contact", "/data-h", "/data-u"} {
		if !contains(got, want) {
			t.Errorf("missing %q in %v", want, got)
		}
	}
}

func TestStaticDeduplicatesFirstSeen(t *testing.T) {
	htmlText := `<a href="/a">1</a><a href="/b">2</a><a href="/a">3</a>`

	got := Static(htmlText, docURL(t), DefaultOptions())

	count := 0
	for _, v := range got {
		if v == "/a" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("/a appears %d times", count)
	}

	aIdx, bIdx := -1, -1
	for i, v := range got {
		switch v {
		case "/a":
			aIdx = i
		case "/b":
			bIdx = i
		}
	}
	if aIdx == -1 || bIdx == -1 || aIdx > bIdx {
		t.Errorf("order not preserved: %v", got)
	}
}

func TestStaticOnClickAndScripts(t *testing.T) {
	htmlText := `<html><body>
		<button onclick="window.location.href='/onclick-target'">go</button>
		<div onclick="fetch('/api/items')">load</div>
		<script>
			var next = "/script-literal";
			axios.get('/api/axios');
			window.open('https://example.test/popup');
		</script>
	</body></html>`

	got := Static(htmlText, docURL(t), DefaultOptions())

	for _, want := range []string{"/onclick-target", "/api/items", "/script-literal", "/api/axios", "https://example.test/popup"} {
		if !contains(got, want) {
			t.Errorf("missing %q in %v", want, got)
		}
	}
}

func TestStaticFormsAndMedia(t *testing.T) {
	htmlText := `<html><body>
		<form action="/submit"><input name="q"></form>
		<img srcset="/img-1x.png 1x, /img-2x.png 2x">
		<source src="/video.webm" srcset="/still.jpg 1x">
		<video poster="/poster.jpg"></video>
		<object data="/thing.svg"></object>
		<embed src="/embed.swf">
		<area href="/map-area">
	</body></html>`

	got := Static(htmlText, docURL(t), DefaultOptions())

	for _, want := range []string{"/submit", "/img-1x.png", "/img-2x.png", "/video.webm", "/still.jpg", "/poster.jpg", "/thing.svg", "/embed.swf", "/map-area"} {
		if !contains(got, want) {
			t.Errorf("missing %q in %v", want, got)
		}
	}
}

func TestStaticMetaAndLinks(t *testing.T) {
	htmlText := `<html><head>
		<meta property="og:url" content="https://example.test/og">
		<meta name="twitter:image" content="/tw.png">
		<link rel="canonical" href="https://example.test/canonical">
		<link rel="manifest" href="/manifest.json">
		<meta http-equiv="refresh" content="5; url=/redirected">
	</head></html>`

	got := Static(htmlText, docURL(t), DefaultOptions())

	for _, want := range []string{"https://example.test/og", "/tw.png", "https://example.test/canonical", "/manifest.json", "/redirected"} {
		if !contains(got, want) {
			t.Errorf("missing %q in %v", want, got)
		}
	}
}

func TestStaticCommentsAndText(t *testing.T) {
	htmlText := `<html><body>
		<!-- hidden endpoint: https://example.test/secret -->
		<p>Docs live at https://example.test/docs for now.</p>
	</body></html>`

	got := Static(htmlText, docURL(t), DefaultOptions())

	if !contains(got, "https://example.test/secret") {
		t.Errorf("missing comment URL in %v", got)
	}
	if !contains(got, "https://example.test/docs") {
		t.Errorf("missing text URL in %v", got)
	}
}

func TestStaticJSONScripts(t *testing.T) {
	htmlText := `<script type="application/ld+json">
		{"@type":"Thing","url":"https://example.test/ld","nested":{"path":"/ld-path"},"num":5}
	</script>`

	got := Static(htmlText, docURL(t), DefaultOptions())

	if !contains(got, "https://example.test/ld") || !contains(got, "/ld-path") {
		t.Errorf("missing JSON URLs in %v", got)
	}
}

func TestStaticScriptSrcSameOriginOnly(t *testing.T) {
	htmlText := `<script src="/local.js"></script>
		<script src="https://example.test/also-local.js"></script>
		<script src="https://cdn.other.test/remote.js"></script>`

	got := Static(htmlText, docURL(t), DefaultOptions())

	if !contains(got, "/local.js") || !contains(got, "https://example.test/also-local.js") {
		t.Errorf("missing same-origin scripts in %v", got)
	}
	if contains(got, "https://cdn.other.test/remote.js") {
		t.Errorf("cross-origin script src leaked into %v", got)
	}
}

func TestStaticIframeExcluded(t *testing.T) {
	htmlText := `<iframe src="/framed"><a href="/inside-frame">x</a></iframe><a href="/outside">y</a>`

	got := Static(htmlText, docURL(t), DefaultOptions())

	if contains(got, "/framed") {
		t.Errorf("iframe src leaked into %v", got)
	}
	if !contains(got, "/outside") {
		t.Errorf("missing /outside in %v", got)
	}
}

func TestStaticStyles(t *testing.T) {
	htmlText := `<style>
		.hero { background: url('/bg.png'); }
		@import '/extra.css';
	</style>
	<div style="background-image: url(/inline-bg.jpg)">x</div>`

	got := Static(htmlText, docURL(t), DefaultOptions())

	for _, want := range []string{"/bg.png", "/extra.css", "/inline-bg.jpg"} {
		if !contains(got, want) {
			t.Errorf("missing %q in %v", want, got)
		}
	}
}

func TestStaticToggles(t *testing.T) {
	htmlText := `<html><body>
		<a data-href="/data-h">a</a>
		<div onclick="location.href='/clicked'">b</div>
		<form action="/form-action"></form>
		<meta http-equiv="refresh" content="0; url=/refresh">
		<link rel="canonical" href="/canon">
		<button data-url="/btn-url">c</button>
	</body></html>`

	got := Static(htmlText, docURL(t), Options{})

	for _, banned := range []string{"/data-h", "/clicked", "/form-action", "/refresh", "/canon", "/btn-url"} {
		if contains(got, banned) {
			t.Errorf("toggle-gated URL %q extracted with all toggles off: %v", banned, got)
		}
	}
}

func TestJSONURLs(t *testing.T) {
	raw := []byte(`{
		"a": "https://example.test/one",
		"b": ["/two", "not-a-url", "//protocol-relative"],
		"c": {"d": "/three", "e": 42, "f": null}
	}`)

	got := JSONURLs(raw)

	for _, want := range []string{"https://example.test/one", "/two", "/three"} {
		if !contains(got, want) {
			t.Errorf("missing %q in %v", want, got)
		}
	}
	if contains(got, "not-a-url") || contains(got, "//protocol-relative") {
		t.Errorf("non-URL strings leaked into %v", got)
	}

	if JSONURLs([]byte("not json")) != nil {
		t.Error("invalid JSON should yield nil")
	}
}
