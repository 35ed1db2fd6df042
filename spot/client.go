package spot

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Client fetches day-ahead publication documents from the ENTSO-E API.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a client with default settings.
func NewClient(userAgent string) *Client {
	if userAgent == "" {
		userAgent = "home-mpc/1.0"
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  userAgent,
	}
}

// DownloadDayAhead fetches the publication document covering today in the
// given location. Day-ahead prices publish around 13:00 CET; from 13:00
// local time onward tomorrow's document is fetched as well and merged in.
//
// urlFormat carries two %s time placeholders (period start, period end)
// followed by a %s for the security token.
func (c *Client) DownloadDayAhead(ctx context.Context, securityToken, urlFormat string, location *time.Location) (*Document, error) {
	now := time.Now().In(location)

	doc, err := c.download(ctx, buildDocumentURL(securityToken, urlFormat, now))
	if err != nil {
		return nil, err
	}

	if now.Hour() >= 13 {
		next, err := c.download(ctx, buildDocumentURL(securityToken, urlFormat, now.AddDate(0, 0, 1)))
		if err != nil {
			return nil, fmt.Errorf("next-day document: %w", err)
		}
		doc = Merge(doc, next)
	}

	return doc, nil
}

func (c *Client) download(ctx context.Context, url string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/xml, text/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("document request failed: %s", resp.Status)
	}

	return Decode(resp.Body)
}

// buildDocumentURL formats the request URL for the calendar day of t.
func buildDocumentURL(securityToken, urlFormat string, t time.Time) string {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return fmt.Sprintf(urlFormat, utcStamp(start), utcStamp(start.AddDate(0, 0, 1)), securityToken)
}

// utcStamp formats t in the API's YYYYMMDDHHmm form.
func utcStamp(t time.Time) string {
	return t.UTC().Format("200601021504")
}
