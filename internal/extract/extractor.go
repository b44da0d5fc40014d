package extract

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/car-listing-crawler/internal/crawler"
)

// Extractor interprets a rule table against detail pages.
type Extractor struct {
	rules []Rule
	clock crawler.Clock
}

// New creates an Extractor. Rules for unknown fields are rejected.
func New(rules []Rule, clock crawler.Clock) (*Extractor, error) {
	for _, r := range rules {
		if _, ok := setters[r.Field]; !ok {
			return nil, fmt.Errorf("rule for unknown field %q", r.Field)
		}
	}
	return &Extractor{rules: rules, clock: clock}, nil
}

// ExtractHTML parses body and extracts a listing from it.
func (e *Extractor) ExtractHTML(url string, body []byte) (crawler.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.Listing{}, fmt.Errorf("parse detail html: %w", err)
	}
	return e.Extract(url, doc), nil
}

// Extract maps a parsed document to a listing stamped with the current time.
// Fields whose rules miss stay null.
func (e *Extractor) Extract(url string, doc *goquery.Document) crawler.Listing {
	listing := crawler.Listing{URL: url, DatetimeFound: e.clock.Now()}
	for _, r := range e.rules {
		if v, ok := r.Apply(doc); ok {
			setters[r.Field](&listing, v)
		}
	}
	return listing
}

var setters = map[Field]func(*crawler.Listing, any){
	FieldTitle:       func(l *crawler.Listing, v any) { l.Title = asString(v) },
	FieldPriceUSD:    func(l *crawler.Listing, v any) { l.PriceUSD = asInt(v) },
	FieldOdometer:    func(l *crawler.Listing, v any) { l.Odometer = asInt(v) },
	FieldUsername:    func(l *crawler.Listing, v any) { l.Username = asString(v) },
	FieldPhoneNumber: func(l *crawler.Listing, v any) { l.PhoneNumber = asString(v) },
	FieldImageURL:    func(l *crawler.Listing, v any) { l.ImageURL = asString(v) },
	FieldImagesCount: func(l *crawler.Listing, v any) { l.ImagesCount = asInt(v) },
	FieldCarNumber:   func(l *crawler.Listing, v any) { l.CarNumber = asString(v) },
	FieldCarVIN:      func(l *crawler.Listing, v any) { l.CarVIN = asString(v) },
}

func asString(v any) *string {
	switch t := v.(type) {
	case string:
		return crawler.StringPtr(t)
	case fmt.Stringer:
		return crawler.StringPtr(t.String())
	default:
		return crawler.StringPtr(fmt.Sprint(t))
	}
}

func asInt(v any) *int64 {
	switch t := v.(type) {
	case int64:
		return crawler.Int64Ptr(t)
	case int:
		return crawler.Int64Ptr(int64(t))
	default:
		return nil
	}
}
