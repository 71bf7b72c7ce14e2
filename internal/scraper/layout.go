package scraper

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Entry is one absolute link found on a page. Stream is set when the
// link points at a playable stream rather than another page.
type Entry struct {
	Label  string
	URL    string
	Stream bool
}

// Layout extracts entries from a document. Layouts must not report the
// same link twice so the union of all layouts is the page's entry list.
type Layout struct {
	Name    string
	Extract func(doc *goquery.Document) []Entry
}

// DefaultLayouts returns the layouts tried on every page, in order
func DefaultLayouts() []Layout {
	return []Layout{
		{Name: "table_rows", Extract: tableRows},
		{Name: "anchor_list", Extract: anchorList},
	}
}

// tableRows reads pages listing one stream per table row, the label in
// the first cell and the link anywhere in the row
func tableRows(doc *goquery.Document) []Entry {
	var out []Entry
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		label := cleanText(row.Find("td, th").First().Text())
		row.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			if !isLink(href) {
				return
			}
			l := label
			if l == "" {
				l = cleanText(a.Text())
			}
			out = append(out, newEntry(l, href))
		})
	})
	return out
}

// anchorList reads free-standing links outside any table, labelled by
// their own text or title attribute
func anchorList(doc *goquery.Document) []Entry {
	var out []Entry
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if a.ParentsFiltered("table").Length() > 0 {
			return
		}
		href, _ := a.Attr("href")
		if !isLink(href) {
			return
		}
		label := cleanText(a.Text())
		if label == "" {
			label, _ = a.Attr("title")
			label = cleanText(label)
		}
		out = append(out, newEntry(label, href))
	})
	return out
}

func newEntry(label, href string) Entry {
	href = strings.TrimSpace(href)
	return Entry{Label: label, URL: href, Stream: IsStreamLink(href)}
}

// isLink accepts acestream links and absolute http(s) URLs. Relative
// links are site navigation.
func isLink(href string) bool {
	href = strings.TrimSpace(href)
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "acestream://") {
		return len(href) > len("acestream://")
	}
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}
	u, err := url.Parse(href)
	return err == nil && u.Host != ""
}

// IsStreamLink accepts acestream links and HTTP links that point at a
// stream rather than a page
func IsStreamLink(href string) bool {
	if !isLink(href) {
		return false
	}
	href = strings.TrimSpace(href)
	if strings.HasPrefix(strings.ToLower(href), "acestream://") {
		return true
	}
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	return strings.HasSuffix(path, ".m3u8") || strings.HasPrefix(path, "/ace/")
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
