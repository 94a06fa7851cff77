package carsheet

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"carsheet-backend/lib/htmlutil"
	"carsheet-backend/lib/restyutil"
	"carsheet-backend/lib/textutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	browser "github.com/EDDYCJY/fake-useragent"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultBaseUrl is the listing set the dashboard was built around:
// the 2024 two-door models of a handful of brands.
const DefaultBaseUrl = "https://carsheet.io/aston-martin,audi,bentley,bmw,ferrari,ford,mercedes-benz/2024/2-door/"

// Entry is one car record parsed from a listing row. Brand, Model and
// Year are pulled out of the row when the table labels them; every
// other labeled cell lands in Specs under its column name. The source
// guarantees no fixed schema, so Specs keys vary across entries.
type Entry struct {
	Brand string `json:"brand"`
	Model string `json:"model"`
	// zero when the listing carries no parsable year
	Year  int               `json:"year,omitempty"`
	Specs map[string]string `json:"specs"`
}

// Field returns the entry's value for a column name: the fixed fields
// when the name looks like a brand/model/year header, otherwise the
// spec cell under that key (exact match first, then normalized).
// Missing fields come back as "".
func (e Entry) Field(name string) string {
	switch classifyHeader(name) {
	case fieldBrand:
		return e.Brand
	case fieldModel:
		return e.Model
	case fieldYear:
		if e.Year == 0 {
			return ""
		}
		return strconv.Itoa(e.Year)
	}

	if value, ok := e.Specs[name]; ok {
		return value
	}
	normalized := textutil.NormalizeHeader(name)
	for key, value := range e.Specs {
		if textutil.NormalizeHeader(key) == normalized {
			return value
		}
	}
	return ""
}

// Page is the outcome of fetching one listing page. HasMore reports
// whether pagination continues past this page.
type Page struct {
	Entries []Entry
	HasMore bool
}

// FetchError is a transport-level failure (timeout, refused
// connection) for a single page. It is recoverable: the caller keeps
// whatever it gathered from earlier pages.
type FetchError struct {
	Page int
	Url  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch page %d (%s): %s", e.Page, e.Url, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client
}

type ClientOptions struct {
	BaseUrl string
	// defaults to a random desktop chrome user agent
	UserAgent string
	// defaults to 15 seconds
	Timeout time.Duration
}

func NewClient(opts ClientOptions) (*Client, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	if baseUrl.Hostname() == "" {
		return nil, fmt.Errorf("base url %q has no host", opts.BaseUrl)
	}

	if opts.UserAgent == "" {
		opts.UserAgent = browser.Chrome()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second * 15
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", opts.UserAgent)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(opts.Timeout)

	restyutil.InstrumentClient(client, tracer, restyInstrumentOutput)

	return &Client{
		BaseUrl: baseUrl,
		Http:    client,
	}, nil
}

// PageUrl builds the deterministic url of one listing page.
func (c *Client) PageUrl(page int) string {
	link := *c.BaseUrl
	query := link.Query()
	query.Set("page", strconv.Itoa(page))
	link.RawQuery = query.Encode()
	return link.String()
}

// FetchPage retrieves one listing page and extracts its entries.
// Page indices start at 1.
//
// An error status (4xx/5xx) or a page without listing rows signals the
// end of pagination, not a failure: both return HasMore == false with
// a nil error. Only transport-level problems come back as *FetchError.
func (c *Client) FetchPage(ctx context.Context, page int) (Page, error) {
	ctx, span := tracer.Start(ctx, "client:FetchPage", trace.WithAttributes(
		attribute.Int("page", page),
	))
	defer span.End()

	if page < 1 {
		err := fmt.Errorf("page index must be >= 1, got %d", page)
		span.SetStatus(codes.Error, err.Error())
		return Page{}, err
	}

	link := c.PageUrl(page)
	res, err := c.Http.R().
		SetContext(ctx).
		Get(link)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch listing page")
		return Page{}, &FetchError{Page: page, Url: link, Err: err}
	}
	if res.StatusCode() >= 400 {
		// out-of-range pages surface as error statuses on the site,
		// treat them as the end of pagination
		slog.WarnContext(
			ctx, "listing page returned error status",
			"page", page, "status", res.StatusCode(),
		)
		span.AddEvent("error status", trace.WithAttributes(
			attribute.Int("status", res.StatusCode()),
		))
		return Page{HasMore: false}, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return Page{}, &FetchError{Page: page, Url: link, Err: err}
	}

	entries := parseEntries(ctx, doc)
	if len(entries) == 0 {
		return Page{HasMore: false}, nil
	}
	return Page{Entries: entries, HasMore: hasNextPage(doc)}, nil
}

var brandMatchers = []string{"brand", "make", "manufacturer"}

type fieldKind int

const (
	fieldSpec fieldKind = iota
	fieldBrand
	fieldModel
	fieldYear
)

func classifyHeader(name string) fieldKind {
	switch textutil.NormalizeHeader(name) {
	case "model":
		return fieldModel
	case "year", "modelyear":
		return fieldYear
	}
	if textutil.MatchHeader(name, brandMatchers) {
		return fieldBrand
	}
	return fieldSpec
}

// parseEntries walks the first listing table on the page: one header
// row (th cells, or the first row when the table has none) naming the
// columns, then one row per listing. Unparsable individual fields are
// dropped from their entry, never the entry itself.
func parseEntries(ctx context.Context, doc *goquery.Document) []Entry {
	ctx, span := tracer.Start(ctx, "parseEntries")
	defer span.End()

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil
	}

	var headers []string
	headerTaken := false
	var entries []Entry

	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if !headerTaken {
			cells := row.Find("th")
			if cells.Length() == 0 {
				cells = row.Find("td")
			}
			cells.Each(func(_ int, cell *goquery.Selection) {
				headers = append(headers, htmlutil.CellText(cell))
			})
			headerTaken = true
			return
		}

		cells := row.Find("td")
		if cells.Length() == 0 {
			return
		}
		entries = append(entries, parseRow(ctx, headers, cells))
	})

	span.SetAttributes(attribute.Int("entries", len(entries)))
	return entries
}

func parseRow(ctx context.Context, headers []string, cells *goquery.Selection) Entry {
	entry := Entry{Specs: map[string]string{}}

	cells.Each(func(i int, cell *goquery.Selection) {
		value := htmlutil.CellText(cell)
		if i >= len(headers) || headers[i] == "" {
			if value != "" {
				slog.WarnContext(
					ctx, "dropping cell with no column header",
					"index", i, "value", value,
				)
			}
			return
		}

		switch classifyHeader(headers[i]) {
		case fieldBrand:
			entry.Brand = value
		case fieldModel:
			entry.Model = value
		case fieldYear:
			if value == "" {
				return
			}
			year, err := strconv.Atoi(value)
			if err != nil {
				slog.WarnContext(
					ctx, "unparsable year on listing row",
					"value", value,
				)
				return
			}
			entry.Year = year
		default:
			if value != "" {
				entry.Specs[headers[i]] = value
			}
		}
	})

	return entry
}

// the "next" pagination control; its absence or a disabled class means
// the last page was reached
func hasNextPage(doc *goquery.Document) bool {
	next := doc.Find("li.paginate_button.page-item.next")
	if next.Length() == 0 {
		return false
	}
	return !next.HasClass("disabled")
}
