package reviewer

import (
	"strings"

	"golang.org/x/net/html"
)

// heuristicReport carries code-quality findings from the static scan
// that runs independently of the architect's own critique.
type heuristicReport struct {
	critical  []string
	potential []string
}

// libraryRef pairs a usage token with the loader substring expected in
// a script src when the library is actually used.
type libraryRef struct {
	usage  string
	loader string
	name   string
}

var knownLibraries = []libraryRef{
	{usage: "THREE.", loader: "three", name: "three.js"},
	{usage: "new Chart(", loader: "chart", name: "Chart.js"},
	{usage: "d3.", loader: "d3", name: "D3"},
	{usage: "gsap.", loader: "gsap", name: "GSAP"},
}

// nontrivialScriptLen is the inline-script size past which a missing
// try/catch is worth flagging.
const nontrivialScriptLen = 300

// scanContent runs the fixed code-quality heuristics over an answer:
// doctype presence on HTML documents, library usage without a loader,
// literal runtime-error text, blocking external scripts, and error
// handling in nontrivial scripts.
func scanContent(content string) heuristicReport {
	var report heuristicReport
	if strings.TrimSpace(content) == "" {
		return report
	}

	if strings.Contains(content, "ReferenceError") {
		report.critical = append(report.critical,
			"The solution contains literal \"ReferenceError\" text, suggesting it embeds a runtime failure.")
	}

	lower := strings.ToLower(content)
	isHTMLDoc := strings.Contains(lower, "<html")

	if isHTMLDoc && !strings.Contains(lower, "<!doctype") {
		report.critical = append(report.critical,
			"HTML document is missing a doctype declaration.")
	}

	scripts := collectScripts(content)

	for _, lib := range knownLibraries {
		if !strings.Contains(content, lib.usage) {
			continue
		}
		if !hasLoaderFor(scripts, lib.loader) {
			report.critical = append(report.critical,
				"Code uses "+lib.name+" but no script reference loads it.")
		}
	}

	for _, s := range scripts {
		if s.src != "" && !s.async && !s.deferred {
			report.potential = append(report.potential,
				"External script "+s.src+" loads without async or defer and will block rendering.")
		}
		if s.src == "" && len(s.body) > nontrivialScriptLen &&
			!strings.Contains(s.body, "try") && !strings.Contains(s.body, "catch") {
			report.potential = append(report.potential,
				"A nontrivial inline script has no try/catch error handling.")
		}
	}

	return report
}

// scriptTag is one <script> element found in the answer's HTML.
type scriptTag struct {
	src      string
	async    bool
	deferred bool
	body     string
}

// collectScripts parses any HTML in the content and gathers its script
// elements. Parse failures yield no scripts rather than an error; the
// scan is best-effort.
func collectScripts(content string) []scriptTag {
	if !strings.Contains(strings.ToLower(content), "<script") {
		return nil
	}

	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil
	}

	var scripts []scriptTag
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" {
			var tag scriptTag
			for _, attr := range n.Attr {
				switch attr.Key {
				case "src":
					tag.src = attr.Val
				case "async":
					tag.async = true
				case "defer":
					tag.deferred = true
				}
			}
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				tag.body = n.FirstChild.Data
			}
			scripts = append(scripts, tag)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return scripts
}

func hasLoaderFor(scripts []scriptTag, loader string) bool {
	for _, s := range scripts {
		if s.src != "" && strings.Contains(strings.ToLower(s.src), loader) {
			return true
		}
	}
	return false
}
