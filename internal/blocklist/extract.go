package blocklist

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
)

// Attribute names used to cache extracted values on a row during a prior
// pass, so re-extraction is idempotent and cheap.
const (
	AttrUsername  = "data-username"
	AttrBlockDate = "data-block-date"
)

var (
	userLinkRe     = regexp.MustCompile(`/user/([^/?#]+)`)
	voteTitleRe    = regexp.MustCompile(`(?i)(\d+)\s*upvotes?[,\s]*(\d+)\s*downvotes?`)
	voteBracketRe  = regexp.MustCompile(`\[(-?\d+)\]`)
	dateTextLayout = []string{
		time.RFC3339,
		"2 Jan 2006",
		"Jan 2, 2006",
		"January 2, 2006",
		"2006-01-02",
		"01/02/2006",
	}
)

// Extractor parses row elements into Records.
type Extractor struct{}

// NewExtractor returns an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract normalizes a table-row node into a Record. It returns
// ErrMissingUsername when no source yields a valid username; such rows must
// be skipped by the caller. A missing or unparseable date or vote weight is
// not an error: the date stays nil and the weight defaults to 0.
func (e *Extractor) Extract(row *html.Node) (Record, error) {
	username := extractUsername(row)
	if !ValidUsername(username) {
		if username != "" {
			log.Warn().Str("username", username).Msg("blocklist: rejecting username outside length contract")
		}
		return Record{}, ErrMissingUsername
	}

	rec := Record{
		Username:   username,
		BlockedAt:  extractBlockDate(row),
		VoteWeight: extractVoteWeight(row),
		Tag:        extractTag(row),
	}
	return rec, nil
}

// extractUsername tries the cached attribute first, then the profile link.
func extractUsername(row *html.Node) string {
	if v := attr(row, AttrUsername); v != "" {
		return v
	}
	var found string
	walk(row, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "a" {
			return true
		}
		href := attr(n, "href")
		if m := userLinkRe.FindStringSubmatch(href); m != nil {
			found = m[1]
			return false
		}
		return true
	})
	return found
}

// extractBlockDate tries, in order: the cached attribute, a structured
// <time datetime=...> annotation, and a free-text parse of a date-bearing
// cell. Returns nil when every source fails or parses to an invalid date.
func extractBlockDate(row *html.Node) *time.Time {
	if v := attr(row, AttrBlockDate); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return &t
		}
	}

	var dt string
	walk(row, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "time" {
			dt = attr(n, "datetime")
			return false
		}
		return true
	})
	if dt != "" {
		if t, err := parseAnyDate(dt); err == nil {
			return &t
		}
	}

	// Free-text fallback: first cell whose trimmed text parses as a date.
	var parsed *time.Time
	walk(row, func(n *html.Node) bool {
		if parsed != nil {
			return false
		}
		if n.Type != html.ElementNode || n.Data != "td" {
			return true
		}
		text := strings.TrimSpace(nodeText(n))
		if text == "" {
			return true
		}
		if t, err := parseAnyDate(text); err == nil {
			parsed = &t
			return false
		}
		return true
	})
	return parsed
}

func parseAnyDate(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateTextLayout {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// extractVoteWeight parses the vote-weight annotation. The tooltip pattern
// "<label> +<up> -<down>" wins; downvotes contribute negatively to the net
// weight. A bracketed signed integer in visible text is the fallback.
func extractVoteWeight(row *html.Node) int {
	weight := 0
	walk(row, func(n *html.Node) bool {
		if n.Type != html.ElementNode || !hasClass(n, "voteWeight") {
			return true
		}
		if title := attr(n, "title"); title != "" {
			if m := voteTitleRe.FindStringSubmatch(title); m != nil {
				up, _ := strconv.Atoi(m[1])
				down, _ := strconv.Atoi(m[2])
				weight = up - down
				return false
			}
		}
		if m := voteBracketRe.FindStringSubmatch(nodeText(n)); m != nil {
			weight, _ = strconv.Atoi(m[1])
			return false
		}
		return true
	})
	return weight
}

// extractTag captures the text of a user-tag annotation, used for
// tag-driven auto-locking.
func extractTag(row *html.Node) string {
	var tag string
	walk(row, func(n *html.Node) bool {
		if n.Type == html.ElementNode && hasClass(n, "userTagLink") && hasClass(n, "hasTag") {
			tag = strings.TrimSpace(nodeText(n))
			return false
		}
		return true
	})
	return tag
}

// ParseRows parses an HTML fragment and returns its <tr> nodes in document
// order. The fragment is wrapped in a table first: the HTML5 parser
// foster-parents bare <tr> elements out of existence otherwise. Fragments
// come from the row collaborator, so parse errors are treated as "no rows"
// rather than fatal.
func ParseRows(fragment string) []*html.Node {
	doc, err := html.Parse(strings.NewReader("<table><tbody>" + fragment + "</tbody></table>"))
	if err != nil {
		log.Error().Err(err).Msg("blocklist: failed to parse row fragment")
		return nil
	}
	var rows []*html.Node
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "tr" {
			rows = append(rows, n)
			return false // don't descend into nested tables
		}
		return true
	})
	return rows
}

// walk traverses n depth-first, stopping a branch when fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
		return true
	})
	return sb.String()
}
