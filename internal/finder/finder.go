// Package finder drives a chrome session against the listing site to locate
// company card URLs matching a name and optional website.
package finder

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/egoscan/egoscan/internal/chrome"
)

// Session is the subset of the chrome session the finder drives.
type Session interface {
	Navigate(url, referer string, timeout time.Duration) error
	ExecuteScript(expression string, args ...any) (any, error)
	WaitForSelector(selector string, timeout time.Duration) (bool, error)
	GetDocument(full bool) (*chrome.Node, error)
	Stop()
}

// Config holds the site-specific knobs. The class-name sets exist because
// the listing markup shifts between several conventions; any member of a set
// counts as a hit, there is no precedence among them.
type Config struct {
	BaseURL string `json:"baseUrl" yaml:"baseUrl"`

	SearchInputSelector  string        `json:"searchInputSelector" yaml:"searchInputSelector"`
	WebsiteInputSelector string        `json:"websiteInputSelector" yaml:"websiteInputSelector"`
	SearchButtonSelector string        `json:"searchButtonSelector" yaml:"searchButtonSelector"`
	ResultListSelector   string        `json:"resultListSelector" yaml:"resultListSelector"`
	CardClasses          []string      `json:"cardClasses" yaml:"cardClasses"`
	LinkClasses          []string      `json:"linkClasses" yaml:"linkClasses"`
	NameClasses          []string      `json:"nameClasses" yaml:"nameClasses"`
	WebsiteClasses       []string      `json:"websiteClasses" yaml:"websiteClasses"`
	ResponsePatterns     []string      `json:"responsePatterns" yaml:"responsePatterns"`
	ResultsTimeout       Duration      `json:"resultsTimeout" yaml:"resultsTimeout"`
}

// DefaultConfig targets 2gis.ru with the class conventions the site has been
// seen using.
func DefaultConfig() Config {
	return Config{
		BaseURL:              "https://2gis.ru/",
		SearchInputSelector:  `input[data-testid="search-input"]`,
		WebsiteInputSelector: `input[data-testid="search-input-website"]`,
		SearchButtonSelector: `button[data-testid="search-button"], .button-search`,
		ResultListSelector:   `div[data-testid="search-results-list"], .search-results-list, [data-qa="results-list"]`,
		CardClasses:          []string{"company-card", "search-result-card", "item-card"},
		LinkClasses:          []string{"firm-card__link", "result-link", "company-link"},
		NameClasses:          []string{"company-name", "org-name", "title"},
		WebsiteClasses:       []string{"company-website", "website-link", "link-site"},
		ResponsePatterns:     []string{"*.2gis.ru/api/*"},
		ResultsTimeout:       Duration(20 * time.Second),
	}
}

// Finder locates company cards. Each FindCompanyCards call runs on a fresh
// session that is torn down before returning.
type Finder struct {
	cfg  Config
	opts chrome.Options
	log  logrus.FieldLogger

	// newSession is swapped in tests.
	newSession func() (Session, error)
}

func New(opts chrome.Options, cfg Config, log logrus.FieldLogger) *Finder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	f := &Finder{
		cfg:  cfg,
		opts: opts,
		log:  log.WithField("component", "finder"),
	}
	f.newSession = func() (Session, error) {
		remote := chrome.NewRemote(opts, cfg.ResponsePatterns, log)
		if err := remote.Start(); err != nil {
			return nil, err
		}
		return remote, nil
	}
	return f
}

// FindCompanyCards searches the listing site and returns the card URLs whose
// name and website match. Per-page failures come back as errors the caller
// can skip on; an empty result with nil error means the search ran but
// nothing matched.
func (f *Finder) FindCompanyCards(companyName, website string) ([]string, error) {
	if companyName == "" {
		return nil, fmt.Errorf("company name is required")
	}

	session, err := f.newSession()
	if err != nil {
		return nil, err
	}
	defer session.Stop()

	return f.findURLs(session, companyName, website)
}

func (f *Finder) findURLs(session Session, companyName, website string) ([]string, error) {
	f.log.WithField("url", f.cfg.BaseURL).Info("navigating to listing site")
	if err := session.Navigate(f.cfg.BaseURL, "", 0); err != nil {
		return nil, err
	}

	present, err := session.ExecuteScript(existsScript(f.cfg.SearchInputSelector))
	if err != nil {
		return nil, err
	}
	if ok, _ := present.(bool); !ok {
		return nil, fmt.Errorf("search input not found with selector %q", f.cfg.SearchInputSelector)
	}

	setValue := fmt.Sprintf("document.querySelector(%q).value = arguments[0];", f.cfg.SearchInputSelector)
	if _, err := session.ExecuteScript(setValue, companyName); err != nil {
		return nil, err
	}
	f.log.WithField("company", companyName).Debug("entered company name")

	if website != "" {
		present, _ := session.ExecuteScript(existsScript(f.cfg.WebsiteInputSelector))
		if ok, _ := present.(bool); ok {
			setSite := fmt.Sprintf("document.querySelector(%q).value = arguments[0];", f.cfg.WebsiteInputSelector)
			if _, err := session.ExecuteScript(setSite, website); err != nil {
				return nil, err
			}
		} else {
			f.log.Debug("website field absent, searching by name only")
		}
	}

	if err := f.submitSearch(session); err != nil {
		return nil, err
	}

	f.log.Info("waiting for search results")
	found, err := session.WaitForSelector(f.cfg.ResultListSelector, time.Duration(f.cfg.ResultsTimeout))
	if err != nil {
		return nil, err
	}
	if !found {
		f.log.Warn("search results container never appeared")
		return nil, nil
	}

	tree, err := session.GetDocument(true)
	if err != nil {
		return nil, err
	}
	return f.matchingCardURLs(tree, companyName, website), nil
}

// submitSearch clicks the search button when one is clickable, otherwise
// falls back to an Enter keypress in the search input.
func (f *Finder) submitSearch(session Session) error {
	clicked := false
	if found, _ := session.WaitForSelector(f.cfg.SearchButtonSelector, 5*time.Second); found {
		click := fmt.Sprintf(`
			var button = document.querySelector(%q);
			if (button) {
				button.scrollIntoView({ block: "center", behavior: "instant" });
				button.click();
				return true;
			}
			return false;
		`, f.cfg.SearchButtonSelector)
		if v, err := session.ExecuteScript(click); err == nil {
			clicked, _ = v.(bool)
		}
	}

	if !clicked {
		f.log.Debug("search button not clickable, sending Enter")
		enter := fmt.Sprintf(
			"document.querySelector(%q).focus(); document.dispatchEvent(new KeyboardEvent('keydown', {key: 'Enter'}));",
			f.cfg.SearchInputSelector)
		if _, err := session.ExecuteScript(enter); err != nil {
			return err
		}
	}
	return nil
}

// matchingCardURLs scans a DOM snapshot for company cards and keeps the ones
// whose name and website pass the matching contract.
func (f *Finder) matchingCardURLs(tree *chrome.Node, companyName, website string) []string {
	cards := tree.Search(func(n *chrome.Node) bool {
		return n.Name == "div" && anyClass(n, f.cfg.CardClasses)
	})
	if len(cards) == 0 {
		f.log.Warn("no company cards identified in results")
		return nil
	}

	var urls []string
	for _, card := range cards {
		link := card.SearchFirst(func(n *chrome.Node) bool {
			return n.Name == "a" && anyClass(n, f.cfg.LinkClasses)
		})
		if link == nil || link.Attr("href") == "" {
			continue
		}
		url := link.Attr("href")
		if !strings.HasPrefix(url, "http") {
			url = strings.TrimSuffix(f.cfg.BaseURL, "/") + url
		}

		cardName := ""
		if nameNode := card.SearchFirst(func(n *chrome.Node) bool {
			return isNameTag(n.Name) && anyClass(n, f.cfg.NameClasses)
		}); nameNode != nil {
			cardName = nameNode.Text()
		}

		cardSite := ""
		if siteNode := card.SearchFirst(func(n *chrome.Node) bool {
			return n.Name == "a" && anyClass(n, f.cfg.WebsiteClasses)
		}); siteNode != nil {
			cardSite = siteNode.Attr("href")
		}

		if !nameMatches(companyName, cardName) {
			continue
		}
		if website != "" && !websiteMatches(website, cardSite) {
			continue
		}

		f.log.WithFields(logrus.Fields{"name": cardName, "url": url}).Debug("matched company card")
		urls = append(urls, url)
	}

	if len(urls) == 0 {
		f.log.WithField("cards", len(cards)).Warn("no cards matched the search criteria")
	}
	return urls
}

func existsScript(selector string) string {
	return fmt.Sprintf("return document.querySelector(%q) !== null;", selector)
}

func isNameTag(name string) bool {
	switch name {
	case "span", "div", "a", "h3", "h4":
		return true
	}
	return false
}

func anyClass(n *chrome.Node, classes []string) bool {
	for _, c := range classes {
		if n.HasClass(c) {
			return true
		}
	}
	return false
}

// nameMatches is a case-insensitive substring check of the query against the
// card's displayed name.
func nameMatches(query, candidate string) bool {
	return strings.Contains(strings.ToLower(candidate), strings.ToLower(query))
}

var domainRe = regexp.MustCompile(`(?:https?://)?(?:www\.)?([^/]+)`)

// websiteMatches compares domains only, stripping scheme and a leading www.
// When either side yields no domain it falls back to substring containment.
func websiteMatches(query, candidate string) bool {
	queryDomain := domainOf(query)
	candidateDomain := domainOf(candidate)
	if queryDomain != "" && candidateDomain != "" {
		return strings.EqualFold(candidateDomain, queryDomain)
	}
	return strings.Contains(strings.ToLower(candidate), strings.ToLower(query))
}

func domainOf(raw string) string {
	m := domainRe.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return m[1]
}
