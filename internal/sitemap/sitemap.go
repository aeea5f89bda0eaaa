// Package sitemap fetches regional recipe sitemaps and turns them into the
// catalog the matcher runs against.
package sitemap

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/joelkehle/recipe-importer/internal/matcher"
)

// Regional recipe sitemap URLs.
var regionURLs = map[string]string{
	"au": "https://www.hellofresh.com.au/sitemap_recipe_pages.xml",
	"uk": "https://www.hellofresh.co.uk/sitemap_recipe_pages.xml",
	"us": "https://www.hellofresh.com/sitemap_recipe_pages.xml",
	"de": "https://www.hellofresh.de/sitemap_recipe_pages.xml",
	"nz": "https://www.hellofresh.co.nz/sitemap_recipe_pages.xml",
}

// Regions lists the supported region codes.
func Regions() []string {
	return []string{"au", "uk", "us", "de", "nz"}
}

// Recipe is one catalog entry as parsed from a sitemap.
type Recipe struct {
	URL     string `json:"url"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	LastMod string `json:"lastmod,omitempty"`
	Region  string `json:"region,omitempty"`
}

// Client fetches and caches regional sitemaps.
type Client struct {
	httpClient *http.Client
	baseURLs   map[string]string
	cache      *Cache
	maxAge     time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithCache attaches a catalog cache with the given entry TTL.
func WithCache(cache *Cache, maxAge time.Duration) ClientOption {
	return func(c *Client) {
		c.cache = cache
		c.maxAge = maxAge
	}
}

// WithBaseURLs overrides the region → sitemap URL table (tests).
func WithBaseURLs(urls map[string]string) ClientOption {
	return func(c *Client) { c.baseURLs = urls }
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURLs:   regionURLs,
		maxAge:     24 * time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the recipes of one region, served from the cache when fresh.
func (c *Client) Fetch(ctx context.Context, region string) ([]Recipe, error) {
	url, ok := c.baseURLs[region]
	if !ok {
		return nil, fmt.Errorf("unsupported region %q (supported: %s)", region, strings.Join(Regions(), ", "))
	}

	if c.cache != nil {
		recipes, hit, err := c.cache.Get(region, c.maxAge)
		if err != nil {
			log.Printf("sitemap cache_read_failed region=%s err=%q", region, err.Error())
		} else if hit {
			log.Printf("sitemap cache_hit region=%s recipes=%d", region, len(recipes))
			return recipes, nil
		}
	}

	body, err := c.fetchWithRetry(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap %s: %w", region, err)
	}
	recipes, err := Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse sitemap %s: %w", region, err)
	}
	for i := range recipes {
		recipes[i].Region = region
	}
	log.Printf("sitemap fetched region=%s recipes=%d", region, len(recipes))

	if c.cache != nil {
		if err := c.cache.Put(region, recipes); err != nil {
			log.Printf("sitemap cache_write_failed region=%s err=%q", region, err.Error())
		}
	}
	return recipes, nil
}

// FetchAll fetches and concatenates several regions. A region that fails is
// logged and skipped; the fetch is fatal only when every region fails.
func (c *Client) FetchAll(ctx context.Context, regions []string) ([]Recipe, error) {
	if len(regions) == 0 {
		regions = Regions()
	}
	var all []Recipe
	var lastErr error
	fetched := 0
	for _, region := range regions {
		recipes, err := c.Fetch(ctx, region)
		if err != nil {
			log.Printf("sitemap region_failed region=%s err=%q", region, err.Error())
			lastErr = err
			continue
		}
		fetched++
		all = append(all, recipes...)
	}
	if fetched == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("all regions failed: %w", lastErr)
		}
		return nil, errors.New("no regions fetched")
	}
	return all, nil
}

func (c *Client) fetchWithRetry(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		body, status, err := c.fetchOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if status >= 400 && status < 500 {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < 3 {
			t := time.NewTimer(time.Duration(attempt) * time.Second)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}
	}
	return nil, lastErr
}

func (c *Client) fetchOnce(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		io.Copy(io.Discard, io.LimitReader(res.Body, 4<<10))
		return nil, res.StatusCode, fmt.Errorf("status code: %d", res.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, 64<<20))
	if err != nil {
		return nil, res.StatusCode, err
	}
	return body, res.StatusCode, nil
}

type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc     string `xml:"loc"`
		LastMod string `xml:"lastmod"`
	} `xml:"url"`
}

var slugRe = regexp.MustCompile(`/recipes/(.+)$`)

// Parse extracts recipes from sitemap XML. Both the http and https sitemap
// namespace variants decode; encoding/xml matches on local element names.
func Parse(xmlContent []byte) ([]Recipe, error) {
	var set urlSet
	if err := xml.Unmarshal(xmlContent, &set); err != nil {
		return nil, err
	}
	recipes := make([]Recipe, 0, len(set.URLs))
	for _, u := range set.URLs {
		loc := strings.TrimSpace(u.Loc)
		if loc == "" {
			continue
		}
		slug := ""
		if m := slugRe.FindStringSubmatch(loc); m != nil {
			slug = m[1]
		}
		recipes = append(recipes, Recipe{
			URL:     loc,
			Name:    NameFromURL(loc),
			Slug:    slug,
			LastMod: strings.TrimSpace(u.LastMod),
		})
	}
	return recipes, nil
}

var (
	hexSuffixRe      = regexp.MustCompile(`^[a-f0-9]{24}$`)
	fancifyPrefixRe  = regexp.MustCompile(`^fancify-r\d+-\d+-`)
	sixIngredientsRe = regexp.MustCompile(`^6-ingredients-`)
	titleCaser       = cases.Title(language.English)
)

// NameFromURL derives a display name from a recipe URL slug. Slugs look like
// /recipes/6-ingredients-texan-chicken-pita-pockets-68be74849f91a82a63be9274:
// a hyphenated name, sometimes a campaign prefix, and a 24-hex id suffix.
func NameFromURL(url string) string {
	m := slugRe.FindStringSubmatch(url)
	if m == nil {
		return url
	}
	slug := m[1]

	if i := strings.LastIndex(slug, "-"); i >= 0 && hexSuffixRe.MatchString(slug[i+1:]) {
		slug = slug[:i]
	}
	slug = fancifyPrefixRe.ReplaceAllString(slug, "")
	slug = sixIngredientsRe.ReplaceAllString(slug, "6-ingredients ")

	name := strings.ReplaceAll(slug, "-", " ")
	return titleCaser.String(name)
}

// Dedupe removes duplicate recipes by case-insensitive name, keeping the
// first occurrence. Regional catalogs overlap heavily.
func Dedupe(recipes []Recipe) []Recipe {
	seen := make(map[string]struct{}, len(recipes))
	out := make([]Recipe, 0, len(recipes))
	for _, r := range recipes {
		key := strings.ToLower(r.Name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	if len(out) < len(recipes) {
		log.Printf("sitemap deduplicated from=%d to=%d", len(recipes), len(out))
	}
	return out
}

// Catalog assigns stable positions and converts to the matcher's catalog
// type. Call after Dedupe; positions index into the returned slice.
func Catalog(recipes []Recipe) []matcher.CatalogEntry {
	out := make([]matcher.CatalogEntry, len(recipes))
	for i, r := range recipes {
		out[i] = matcher.CatalogEntry{Name: r.Name, URL: r.URL, Position: i}
	}
	return out
}
