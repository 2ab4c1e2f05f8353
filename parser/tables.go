package parser

import (
	"fmt"
	"regexp"
)

// TitleRules matches the product title region, most specific first.
func TitleRules() []Rule {
	return []Rule{
		{Priority: 10, Name: "title/selector", Matcher: Selector{Query: "span#productTitle"}, Post: CleanTitle},
		{Priority: 20, Name: "title/span", Matcher: Pattern{Re: regexp.MustCompile(`<span[^>]*id="productTitle"[^>]*>\s*([^<]+)\s*</span>`)}, Post: CleanTitle},
		{Priority: 30, Name: "title/id", Matcher: Pattern{Re: regexp.MustCompile(`id="productTitle"[^>]*>([^<]+)<`)}, Post: CleanTitle},
		{Priority: 40, Name: "title/loose", Matcher: Pattern{Re: regexp.MustCompile(`productTitle[^>]*>([^<]+)<`)}, Post: CleanTitle},
		{Priority: 50, Name: "title/meta", Matcher: Pattern{Re: regexp.MustCompile(`<meta[^>]*name="title"[^>]*content="[^":]*:\s*([^:"]+):`)}, Post: CleanTitle},
	}
}

// AuthorRules tries profile links, then "(Author)" bylines, metadata,
// embedded structured data, and finally a "by <name>" phrase.
func AuthorRules() []Rule {
	return []Rule{
		{Priority: 10, Name: "author/profile-selector", Matcher: Selector{Query: `#bylineInfo a[href*="/e/"]`}, Post: CleanAuthor},
		{Priority: 11, Name: "author/profile-marked", Matcher: Pattern{Re: regexp.MustCompile(`<a[^>]*class="[^"]*a-link-normal[^"]*"[^>]*href="[^"]*/[^/"]+/e/[^"]*"[^>]*>([^<]+)</a>[^<]*<span[^>]*class="[^"]*a-color-secondary[^"]*"[^>]*>\(Author\)</span>`)}, Post: CleanAuthor},
		{Priority: 12, Name: "author/profile-link", Matcher: Pattern{Re: regexp.MustCompile(`<a[^>]*href="[^"]*/[^/"]+/e/[^"]*"[^>]*>([^<]+)</a>`)}, Post: CleanAuthor},
		{Priority: 20, Name: "author/byline-selector", Matcher: Selector{Query: "#bylineInfo .author", Contains: "(Author)", Child: "a"}, Post: CleanAuthor},
		{Priority: 21, Name: "author/byline-ref", Matcher: Pattern{Re: regexp.MustCompile(`<a[^>]*href="[^"]*dp_byline_cont_book_1[^"]*"[^>]*>([^<]+)</a>`)}, Post: CleanAuthor},
		{Priority: 22, Name: "author/byline-marker", Matcher: Pattern{Re: regexp.MustCompile(`<a[^>]*>([^<]+)</a>[^<]*<span[^>]*>\s*\(Author\)\s*</span>`)}, Post: CleanAuthor},
		{Priority: 30, Name: "author/meta-author", Matcher: Selector{Query: `meta[name="author"]`, Attr: "content"}, Post: CleanAuthor},
		{Priority: 31, Name: "author/meta-title", Matcher: Pattern{Re: regexp.MustCompile(`<meta[^>]*name="title"[^>]*content="[^":]*:\s*[^:"]+:\s*([^:"]+):`)}, Post: CleanAuthor},
		{Priority: 40, Name: "author/ld-json", Matcher: JSONLD{Key: "author"}, Post: CleanAuthor},
		{Priority: 50, Name: "author/by-phrase", Matcher: TextPattern{Re: regexp.MustCompile(`\b[Bb]y\s+([A-Z][^<>\n,|()]{1,98})`)}, Post: CleanAuthor},
	}
}

// SubtitleRules matches the subtitle region that names the edition format.
func SubtitleRules() []Rule {
	return []Rule{
		{Priority: 10, Name: "subtitle/selector", Matcher: Selector{Query: "#productSubtitle"}},
		{Priority: 20, Name: "subtitle/span", Matcher: Pattern{Re: regexp.MustCompile(`<span[^>]*id="productSubtitle"[^>]*>\s*([^<]+)\s*</span>`)}},
	}
}

// CoverRules prefers the dynamic-image map and falls back to any CDN image.
func CoverRules(cdnPrefix string) []Rule {
	rules := []Rule{
		{Priority: 10, Name: "cover/dynamic-selector", Matcher: Selector{Query: "img#landingImage", Attr: "data-a-dynamic-image"}, Post: FirstJSONKey},
		{Priority: 20, Name: "cover/dynamic-pattern", Matcher: Pattern{Re: regexp.MustCompile(`<img[^>]*id="landingImage"[^>]*data-a-dynamic-image="([^"]*)"`)}, Post: FirstJSONKey},
	}
	if cdnPrefix == "" {
		return rules
	}
	return append(rules,
		Rule{Priority: 30, Name: "cover/cdn-selector", Matcher: Selector{Query: fmt.Sprintf(`img[src^=%q]`, cdnPrefix), Attr: "src"}},
		Rule{Priority: 40, Name: "cover/cdn-pattern", Matcher: Pattern{Re: regexp.MustCompile(`<img[^>]*src="(` + regexp.QuoteMeta(cdnPrefix) + `[^"]*)"[^>]*>`)}},
	)
}

// RankRules prefers ranks anchored to the "Best Sellers Rank" label over a bare match.
func RankRules() []Rule {
	return []Rule{
		{Priority: 10, Name: "rank/bold-label", Matcher: Pattern{Re: regexp.MustCompile(`<span[^>]*class="[^"]*a-text-bold[^"]*"[^>]*>\s*Best Sellers Rank:\s*</span>\s*#([0-9,]+)\s+in\s+Books`)}, Post: ParseRank},
		{Priority: 20, Name: "rank/label", Matcher: Pattern{Re: regexp.MustCompile(`Best Sellers Rank:\s*</span>\s*#([0-9,]+)\s+in\s+Books`)}, Post: ParseRank},
		{Priority: 30, Name: "rank/label-text", Matcher: TextPattern{Re: regexp.MustCompile(`Best Sellers Rank:?\s*#([0-9,]+)\s+in\s+Books`)}, Post: ParseRank},
		{Priority: 40, Name: "rank/bare", Matcher: Pattern{Re: regexp.MustCompile(`#([0-9,]+)\s+in\s+Books`)}, Post: ParseRank},
	}
}
