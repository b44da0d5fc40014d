// Package extract maps detail-page HTML to listings through a declarative
// rule table interpreted by a single routine.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Field names a listing attribute a rule fills.
type Field string

// Listing fields populated by rules.
const (
	FieldTitle       Field = "title"
	FieldPriceUSD    Field = "price_usd"
	FieldOdometer    Field = "odometer"
	FieldUsername    Field = "username"
	FieldPhoneNumber Field = "phone_number"
	FieldImageURL    Field = "image_url"
	FieldImagesCount Field = "images_count"
	FieldCarNumber   Field = "car_number"
	FieldCarVIN      Field = "car_vin"
)

// Transform converts the matched text into the field value.
type Transform func(string) (any, error)

// Rule describes how to obtain one field from a document.
//
// The first element matching Selector is read: Attr if set, otherwise its
// stripped text with non-breaking spaces removed. Pattern, when set, must
// match and its first group becomes the value. Transform converts the value;
// without one the field is a string. An empty Selector makes the rule a
// constant yielding Fallback.
type Rule struct {
	Field     Field
	Selector  string
	Attr      string
	Pattern   *regexp.Regexp
	Transform Transform
	// Fallback is used when the rule does not match. Nil leaves the field null.
	Fallback any
}

// Apply evaluates the rule against doc. The boolean is false when the field
// should be stored as null.
func (r Rule) Apply(doc *goquery.Document) (any, bool) {
	v, ok := r.match(doc)
	if ok {
		return v, true
	}
	if r.Fallback != nil {
		return r.Fallback, true
	}
	return nil, false
}

func (r Rule) match(doc *goquery.Document) (any, bool) {
	if r.Selector == "" {
		return nil, false
	}
	sel := doc.Find(r.Selector).First()
	if sel.Length() == 0 {
		return nil, false
	}
	var text string
	if r.Attr != "" {
		v, ok := sel.Attr(r.Attr)
		if !ok || v == "" {
			return nil, false
		}
		text = v
	} else {
		text = strippedText(sel)
	}
	text = strings.ReplaceAll(text, "\u00a0", "")
	if r.Pattern != nil {
		m := r.Pattern.FindStringSubmatch(text)
		if len(m) < 2 {
			return nil, false
		}
		text = m[1]
	}
	if r.Transform == nil {
		return text, true
	}
	v, err := r.Transform(text)
	if err != nil {
		return nil, false
	}
	return v, true
}

// strippedText concatenates every text node under sel with surrounding
// whitespace trimmed from each node.
func strippedText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(strings.TrimSpace(n.Data))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}

// Integer parses digits, ignoring any whitespace between digit groups, and
// multiplies the result by scale.
func Integer(scale int64) Transform {
	return func(s string) (any, error) {
		digits := strings.Join(strings.Fields(s), "")
		n, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse integer %q: %w", s, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("negative integer %q", s)
		}
		return n * scale, nil
	}
}

var (
	groupedDigits = regexp.MustCompile(`(\d[\d\s]*)`)
	plainDigits   = regexp.MustCompile(`(\d+)`)
)

// DefaultRules returns the rule table for the car listing detail page.
// The phone rule depends on strategy: "static" reads the visible phone
// element, anything else yields an empty string (the browser strategy fills
// the number later).
func DefaultRules(phoneStrategy string) []Rule {
	phone := Rule{Field: FieldPhoneNumber, Fallback: ""}
	if phoneStrategy == "static" {
		phone = Rule{Field: FieldPhoneNumber, Selector: "span.phone"}
	}
	return []Rule{
		{Field: FieldTitle, Selector: "h1.head"},
		{Field: FieldPriceUSD, Selector: "div.price_value strong", Pattern: groupedDigits, Transform: Integer(1)},
		{Field: FieldOdometer, Selector: "div.base-information.bold", Pattern: plainDigits, Transform: Integer(1000)},
		{Field: FieldUsername, Selector: "div.seller_info_name"},
		phone,
		{Field: FieldImageURL, Selector: ".carousel-inner img", Attr: "src", Fallback: ""},
		{Field: FieldImagesCount, Selector: "a.show-all.link-dotted", Pattern: plainDigits, Transform: Integer(1)},
		{Field: FieldCarNumber, Selector: "span.state-num"},
		{Field: FieldCarVIN, Selector: "span.label-vin"},
	}
}
