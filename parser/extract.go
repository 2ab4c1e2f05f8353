package parser

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

var (
	bracketedRe   = regexp.MustCompile(`[\(\[].*?[\)\]]`)
	subtitleTail  = regexp.MustCompile(`[:;].*$`)
	thousandsSepR = strings.NewReplacer(",", "")
)

// Fields holds the best-effort values recovered from one page.
// Nil means the field was not found.
type Fields struct {
	Title           *string
	Author          *string
	FormatConfirmed bool
	CoverURL        *string
	Rank            *int
}

// Empty reports whether none of the critical fields were recovered.
func (f Fields) Empty() bool {
	return f.Title == nil && f.Author == nil && f.Rank == nil
}

// Partial reports whether at least one critical field is missing.
func (f Fields) Partial() bool {
	return f.Title == nil || f.Author == nil || f.Rank == nil
}

// ExtractorConfig parameterises the site-specific parts of the rule tables.
type ExtractorConfig struct {
	FormatKeyword  string
	MediaCDNPrefix string
}

// Extractor applies ordered rule tables per field.
type Extractor struct {
	Title    []Rule
	Author   []Rule
	Subtitle []Rule
	Cover    []Rule
	Rank     []Rule

	formatKeyword string
	logger        *slog.Logger
}

// NewExtractor builds the rule tables for product-detail pages.
func NewExtractor(cfg ExtractorConfig, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	keyword := strings.ToLower(strings.TrimSpace(cfg.FormatKeyword))
	if keyword == "" {
		keyword = "paperback"
	}
	return &Extractor{
		Title:         SortRules(TitleRules()),
		Author:        SortRules(AuthorRules()),
		Subtitle:      SortRules(SubtitleRules()),
		Cover:         SortRules(CoverRules(cfg.MediaCDNPrefix)),
		Rank:          SortRules(RankRules()),
		formatKeyword: keyword,
		logger:        logger,
	}
}

// Extract parses body and evaluates every field's rules.
func (e *Extractor) Extract(body string) Fields {
	return e.ExtractDocument(NewDocument(body))
}

// ExtractDocument evaluates every field's rules over an already parsed document.
func (e *Extractor) ExtractDocument(doc *Document) Fields {
	var f Fields

	if v, rule, ok := FirstMatch(e.Title, doc); ok {
		f.Title = &v
		e.trace("title", rule)
	}
	if v, rule, ok := FirstMatch(e.Author, doc); ok {
		f.Author = &v
		e.trace("author", rule)
	}
	if v, rule, ok := FirstMatch(e.Subtitle, doc); ok {
		f.FormatConfirmed = strings.Contains(strings.ToLower(v), e.formatKeyword)
		e.trace("subtitle", rule)
	}
	if v, rule, ok := FirstMatch(e.Cover, doc); ok {
		f.CoverURL = &v
		e.trace("cover", rule)
	}
	if v, rule, ok := FirstMatch(e.Rank, doc); ok {
		if n, err := strconv.Atoi(v); err == nil {
			f.Rank = &n
			e.trace("rank", rule)
		}
	}
	return f
}

func (e *Extractor) trace(field, rule string) {
	e.logger.Debug("extraction rule matched", slog.String("field", field), slog.String("rule", rule))
}

// CleanTitle drops bracketed fragments and any subtitle after a colon or semicolon.
func CleanTitle(raw string) (string, bool) {
	title := bracketedRe.ReplaceAllString(raw, "")
	title = subtitleTail.ReplaceAllString(strings.TrimSpace(title), "")
	title = collapseSpace(title)
	return title, title != ""
}

// CleanAuthor accepts names longer than one and shorter than 100 characters.
func CleanAuthor(raw string) (string, bool) {
	name := collapseSpace(raw)
	n := len([]rune(name))
	return name, n > 1 && n < 100
}

// ParseRank strips thousands separators and requires a positive integer.
func ParseRank(raw string) (string, bool) {
	digits := thousandsSepR.Replace(strings.TrimSpace(raw))
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return "", false
	}
	return strconv.Itoa(n), true
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
