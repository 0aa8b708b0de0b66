// Package plexapi is a thin client for the Plex Media Server HTTP API,
// covering the refresh endpoints the benchmark suite needs after a
// database migration. Responses are XML but nothing here parses them;
// only the status code matters.
package plexapi

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// DefaultBaseURL is where a local Plex Media Server listens.
const DefaultBaseURL = "http://localhost:32400"

// ErrTokenRequired is returned by NewClient when no authentication token
// was supplied through the flag or the PLEX_TOKEN environment variable.
var ErrTokenRequired = errors.New("plex token required: set PLEX_TOKEN or pass --token")

// Client issues authenticated requests against one Plex server. Methods
// report success as a boolean and write their outcome to the configured
// writer; transport and HTTP failures never escape as errors because the
// caller has nothing to do with them beyond the exit code.
type Client struct {
	baseURL string
	token   string
	http    *fasthttp.Client
	timeout time.Duration
	out     io.Writer
}

// NewClient builds a Client for the given server. The token is mandatory;
// every Plex endpoint rejects unauthenticated requests.
func NewClient(baseURL, token string, out io.Writer) (*Client, error) {
	if token == "" {
		return nil, ErrTokenRequired
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &fasthttp.Client{},
		timeout: 10 * time.Second,
		out:     out,
	}, nil
}

// do sends one authenticated request and returns the response status.
func (c *Client) do(method, path string) (int, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	res := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(res)

	req.Header.SetMethod(method)
	req.SetRequestURI(fmt.Sprintf("%s%s?X-Plex-Token=%s", c.baseURL, path, url.QueryEscape(c.token)))

	if err := c.http.DoTimeout(req, res, c.timeout); err != nil {
		return 0, err
	}
	return res.StatusCode(), nil
}

func (c *Client) reportTransport(err error) {
	if errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, fasthttp.ErrDialTimeout) {
		fmt.Fprintf(c.out, "✗ Request timed out\n")
		return
	}
	fmt.Fprintf(c.out, "✗ Could not connect to Plex at %s\n", c.baseURL)
	fmt.Fprintf(c.out, "   Is Plex Media Server running?\n")
}

// RefreshItem asks the server to refresh one metadata item, the call to
// make after rewriting its row in the database.
func (c *Client) RefreshItem(itemID int) bool {
	fmt.Fprintf(c.out, "Refreshing item %d...\n", itemID)

	status, err := c.do(fasthttp.MethodPut, fmt.Sprintf("/library/metadata/%d/refresh", itemID))
	switch {
	case err != nil:
		c.reportTransport(err)
		return false
	case status == fasthttp.StatusNotFound:
		fmt.Fprintf(c.out, "✗ Item %d not found\n", itemID)
		return false
	case status == fasthttp.StatusUnauthorized:
		fmt.Fprintf(c.out, "✗ Authentication failed - check your Plex token\n")
		return false
	case status >= 200 && status < 300:
		fmt.Fprintf(c.out, "✓ Item %d successfully refreshed\n", itemID)
		return true
	default:
		fmt.Fprintf(c.out, "✗ HTTP error: status %d\n", status)
		return false
	}
}

// RefreshSection kicks off a rescan of a whole library section.
func (c *Client) RefreshSection(sectionID int) bool {
	fmt.Fprintf(c.out, "Refreshing library section %d...\n", sectionID)

	status, err := c.do(fasthttp.MethodGet, fmt.Sprintf("/library/sections/%d/refresh", sectionID))
	switch {
	case err != nil:
		c.reportTransport(err)
		return false
	case status == fasthttp.StatusNotFound:
		fmt.Fprintf(c.out, "✗ Library section %d not found\n", sectionID)
		return false
	case status == fasthttp.StatusUnauthorized:
		fmt.Fprintf(c.out, "✗ Authentication failed - check your Plex token\n")
		return false
	case status >= 200 && status < 300:
		fmt.Fprintf(c.out, "✓ Library section %d refresh initiated\n", sectionID)
		return true
	default:
		fmt.Fprintf(c.out, "✗ Failed to refresh library section: status %d\n", status)
		return false
	}
}

// ItemInfo checks whether a metadata item exists on the server. The XML
// body is not inspected; a 2xx means the item is there.
func (c *Client) ItemInfo(itemID int) bool {
	status, err := c.do(fasthttp.MethodGet, fmt.Sprintf("/library/metadata/%d", itemID))
	if err != nil {
		c.reportTransport(err)
		return false
	}
	return status >= 200 && status < 300
}

// TokenInstructions explains how to find a Plex authentication token.
const TokenInstructions = `
How to get a Plex authentication token:

1. Log in to the Plex Web App (http://localhost:32400/web)
2. Open your browser's developer tools (F12)
3. Go to the Network tab and refresh the page
4. Pick any request to the Plex server
5. In the request headers, find 'X-Plex-Token'
6. Copy the token value

Then set the token as an environment variable:
    export PLEX_TOKEN="your-token-here"

Or pass it on the command line:
    plexbench refresh --token "your-token-here" <item-id>
`
