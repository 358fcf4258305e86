package finder

import (
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egoscan/egoscan/internal/chrome"
)

// fakeSession scripts the answers a live page would give.
type fakeSession struct {
	navigated []string
	scripts   []string
	document  *chrome.Node
	selectors map[string]bool
	stopped   bool
}

func (s *fakeSession) Navigate(url, referer string, timeout time.Duration) error {
	s.navigated = append(s.navigated, url)
	return nil
}

func (s *fakeSession) ExecuteScript(expression string, args ...any) (any, error) {
	s.scripts = append(s.scripts, expression)
	if strings.Contains(expression, "!== null") {
		// Existence probes: the search input exists, the website input does not.
		return !strings.Contains(expression, "search-input-website"), nil
	}
	if strings.Contains(expression, "button.click()") {
		return true, nil
	}
	return nil, nil
}

func (s *fakeSession) WaitForSelector(selector string, timeout time.Duration) (bool, error) {
	return s.selectors[selector], nil
}

func (s *fakeSession) GetDocument(full bool) (*chrome.Node, error) {
	return s.document, nil
}

func (s *fakeSession) Stop() { s.stopped = true }

func elem(name string, attrs map[string]string, children ...*cdp.Node) *cdp.Node {
	var flat []string
	for k, v := range attrs {
		flat = append(flat, k, v)
	}
	return &cdp.Node{
		NodeName:   strings.ToUpper(name),
		NodeType:   cdp.NodeTypeElement,
		Attributes: flat,
		Children:   children,
	}
}

func text(value string) *cdp.Node {
	return &cdp.Node{NodeName: "#text", NodeType: cdp.NodeTypeText, NodeValue: value}
}

func card(class, name, href, site string) *cdp.Node {
	children := []*cdp.Node{
		elem("a", map[string]string{"class": "firm-card__link", "href": href},
			elem("span", map[string]string{"class": "company-name"}, text(name))),
	}
	if site != "" {
		children = append(children,
			elem("a", map[string]string{"class": "company-website", "href": site}))
	}
	return elem("div", map[string]string{"class": class}, children...)
}

func resultsDocument(cards ...*cdp.Node) *chrome.Node {
	body := elem("body", nil, cards...)
	return chrome.NodeFromCDP(elem("html", nil, body))
}

func newTestFinder(session *fakeSession) *Finder {
	cfg := DefaultConfig()
	f := New(chrome.Options{}, cfg, nil)
	f.newSession = func() (Session, error) { return session, nil }
	return f
}

func TestFindCompanyCardsMatchesByName(t *testing.T) {
	session := &fakeSession{
		selectors: map[string]bool{
			DefaultConfig().SearchButtonSelector: true,
			DefaultConfig().ResultListSelector:   true,
		},
		document: resultsDocument(
			card("company-card", "Acme Widgets LLC", "/firm/1", ""),
			card("search-result-card", "Unrelated Shop", "/firm/2", ""),
		),
	}

	urls, err := newTestFinder(session).FindCompanyCards("acme widgets", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://2gis.ru/firm/1"}, urls)
	assert.True(t, session.stopped, "session must be torn down")
}

func TestFindCompanyCardsComparesDomainsOnly(t *testing.T) {
	session := &fakeSession{
		selectors: map[string]bool{DefaultConfig().ResultListSelector: true},
		document: resultsDocument(
			card("company-card", "Acme", "/firm/1", "https://www.acme.test/about"),
			card("company-card", "Acme", "/firm/2", "https://other.test"),
		),
	}

	urls, err := newTestFinder(session).FindCompanyCards("acme", "http://acme.test")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://2gis.ru/firm/1"}, urls)
}

func TestFindCompanyCardsAbsoluteHrefKept(t *testing.T) {
	session := &fakeSession{
		selectors: map[string]bool{DefaultConfig().ResultListSelector: true},
		document: resultsDocument(
			card("item-card", "Acme", "https://elsewhere.test/firm/9", ""),
		),
	}

	urls, err := newTestFinder(session).FindCompanyCards("acme", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://elsewhere.test/firm/9"}, urls)
}

func TestFindCompanyCardsNoResultsContainer(t *testing.T) {
	session := &fakeSession{
		selectors: map[string]bool{},
		document:  resultsDocument(),
	}

	urls, err := newTestFinder(session).FindCompanyCards("acme", "")
	require.NoError(t, err)
	assert.Empty(t, urls)
}

func TestFindCompanyCardsRequiresName(t *testing.T) {
	_, err := newTestFinder(&fakeSession{}).FindCompanyCards("", "")
	assert.Error(t, err)
}

func TestNameMatches(t *testing.T) {
	assert.True(t, nameMatches("acme", "Acme Widgets LLC"))
	assert.True(t, nameMatches("ACME WIDGETS", "acme widgets"))
	assert.False(t, nameMatches("acme", "Widget Co"))
}

func TestWebsiteMatches(t *testing.T) {
	assert.True(t, websiteMatches("http://acme.test", "https://www.acme.test/about"))
	assert.True(t, websiteMatches("acme.test", "https://acme.test"))
	assert.False(t, websiteMatches("acme.test", "https://other.test"))
	assert.False(t, websiteMatches("acme.test", ""))
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "acme.test", domainOf("https://www.acme.test/path"))
	assert.Equal(t, "acme.test", domainOf("acme.test/path"))
	assert.Equal(t, "", domainOf(""))
}
