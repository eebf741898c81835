// Package importer pre-fills a Draft property from a public listing page by
// reading its OpenGraph and meta tags.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jesadaho/asset-ace-sub000/internal/config"
	"github.com/jesadaho/asset-ace-sub000/internal/models"
	"github.com/jesadaho/asset-ace-sub000/internal/property"
)

// ErrInvalidURL is returned for non-http(s) or host-less URLs, and for hosts
// that resolve to loopback, private or link-local addresses.
var ErrInvalidURL = errors.New("listing url must be an absolute http(s) url on a public host")

// carrier-grade NAT, not covered by net.IP.IsPrivate
var sharedAddressSpace = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

const maxBodyBytes = 4 << 20

var (
	pricePattern    = regexp.MustCompile(`(?i)(?:฿|THB|baht)\s*([0-9][0-9,]*(?:\.[0-9]+)?)|([0-9][0-9,]*(?:\.[0-9]+)?)\s*(?:฿|THB|baht)`)
	bedroomPattern  = regexp.MustCompile(`(?i)(\d+)\s*(?:bed(?:room)?s?|br)\b`)
	bathroomPattern = regexp.MustCompile(`(?i)(\d+)\s*(?:bath(?:room)?s?)\b`)
	areaPattern     = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:sq\.?\s*m|sqm|m²|m2)`)
)

// Listing is what could be read from the page.
type Listing struct {
	SourceURL   string              `json:"source_url"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Address     string              `json:"address"`
	ImageURL    string              `json:"image_url,omitempty"`
	Price       float64             `json:"price"`
	Type        models.PropertyType `json:"type"`
	Bedrooms    string              `json:"bedrooms,omitempty"`
	Bathrooms   string              `json:"bathrooms,omitempty"`
	Area        string              `json:"area,omitempty"`
}

// CreateRequest converts the listing into a Draft create request.
func (l *Listing) CreateRequest() property.CreateRequest {
	name := l.Title
	if name == "" {
		name = "Imported listing"
	}
	return property.CreateRequest{
		Name:        name,
		Type:        l.Type,
		Address:     l.Address,
		Price:       l.Price,
		Description: l.Description,
		Bedrooms:    l.Bedrooms,
		Bathrooms:   l.Bathrooms,
		Area:        l.Area,
	}
}

type Importer struct {
	client       *http.Client
	userAgent    string
	allowPrivate bool
	maxRetries   int
	retryDelay   time.Duration
}

func NewImporter(cfg config.ImporterConfig) *Importer {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "AssetAceImporter/1.0"
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.AllowPrivateHosts {
		// a proxy would dial on our behalf and skip the address check
		transport.Proxy = nil
		dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second, Control: guardDial}
		transport.DialContext = dialer.DialContext
	}
	return &Importer{
		client:       &http.Client{Timeout: timeout, Transport: transport},
		userAgent:    ua,
		allowPrivate: cfg.AllowPrivateHosts,
		maxRetries:   2,
		retryDelay:   time.Second,
	}
}

// guardDial runs after DNS resolution, so redirects and rebinding are checked too.
func guardDial(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return ErrInvalidURL
	}
	ip := net.ParseIP(host)
	if ip == nil || blockedIP(ip) {
		return ErrInvalidURL
	}
	return nil
}

func blockedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		sharedAddressSpace.Contains(ip)
}

// Fetch downloads and parses rawURL.
func (im *Importer) Fetch(ctx context.Context, rawURL string) (*Listing, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return nil, ErrInvalidURL
	}
	if ip := net.ParseIP(u.Hostname()); ip != nil && !im.allowPrivate && blockedIP(ip) {
		return nil, ErrInvalidURL
	}

	resp, err := im.doRequestWithRetry(ctx, u.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return Parse(io.LimitReader(resp.Body, maxBodyBytes), u.String())
}

func (im *Importer) doRequestWithRetry(ctx context.Context, target string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= im.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * im.retryDelay
			slog.Debug("import retry", "attempt", attempt, "backoff", backoff, "url", target)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", im.userAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")

		resp, err := im.client.Do(req)
		if err != nil {
			if errors.Is(err, ErrInvalidURL) {
				return nil, ErrInvalidURL
			}
			lastErr = err
			continue
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}
		resp.Body.Close()
		lastErr = fmt.Errorf("status code %d", resp.StatusCode)

		// Don't retry on client errors (4xx except 429)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			break
		}
	}
	return nil, fmt.Errorf("failed to fetch listing: %w", lastErr)
}

// Parse extracts a Listing from an HTML document.
func Parse(r io.Reader, sourceURL string) (*Listing, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing html: %w", err)
	}

	l := &Listing{SourceURL: sourceURL}
	l.Title = firstNonEmpty(meta(doc, "og:title"), strings.TrimSpace(doc.Find("title").First().Text()))
	l.Description = firstNonEmpty(meta(doc, "og:description"), meta(doc, "description"))
	l.ImageURL = meta(doc, "og:image")
	l.Address = firstNonEmpty(
		meta(doc, "og:street-address"),
		strings.TrimSpace(doc.Find("[itemprop=streetAddress]").First().Text()),
		strings.TrimSpace(doc.Find("address").First().Text()),
	)

	if amount := firstNonEmpty(meta(doc, "product:price:amount"), meta(doc, "og:price:amount")); amount != "" {
		l.Price = parseAmount(amount)
	}

	text := l.Title + " " + l.Description + " " + doc.Find("body").Text()
	if l.Price == 0 {
		l.Price = extractPrice(text)
	}
	l.Bedrooms = firstMatch(bedroomPattern, text)
	l.Bathrooms = firstMatch(bathroomPattern, text)
	l.Area = firstMatch(areaPattern, text)
	l.Type = detectType(l.Title + " " + l.Description)

	if l.Title == "" && l.Description == "" {
		return nil, errors.New("listing page has no title or description")
	}
	return l, nil
}

func meta(doc *goquery.Document, name string) string {
	sel := doc.Find(fmt.Sprintf(`meta[property="%s"], meta[name="%s"]`, name, name)).First()
	content, _ := sel.Attr("content")
	return strings.TrimSpace(content)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstMatch(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) > 1 {
		return m[1]
	}
	return ""
}

func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// extractPrice reads the first baht amount in text.
func extractPrice(text string) float64 {
	m := pricePattern.FindStringSubmatch(text)
	if len(m) < 3 {
		return 0
	}
	return parseAmount(firstNonEmpty(m[1], m[2]))
}

func detectType(text string) models.PropertyType {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "condo"):
		return models.PropertyTypeCondo
	case strings.Contains(lower, "house") || strings.Contains(lower, "townhome") || strings.Contains(lower, "villa"):
		return models.PropertyTypeHouse
	default:
		return models.PropertyTypeApartment
	}
}
