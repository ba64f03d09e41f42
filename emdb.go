package emmap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Response body size limit. EMDB .map.gz entries are typically a few MB
// to a few hundred MB compressed; the cap prevents OOM if a misbehaving
// server sends an unbounded body.
const maxMapGzBytes = 4 << 30 // 4 GB

// EMDBClient fetches compressed density maps from the EBI EMDB archive.
type EMDBClient struct {
	HTTPClient *http.Client
	BaseURL    string // default: "https://ftp.ebi.ac.uk/pub/databases/emdb"
	Options    Options
}

// NewEMDBClient returns a client with sensible defaults.
func NewEMDBClient() *EMDBClient {
	return &EMDBClient{
		HTTPClient: &http.Client{Timeout: 10 * time.Minute},
		BaseURL:    "https://ftp.ebi.ac.uk/pub/databases/emdb",
	}
}

var emdIDPattern = regexp.MustCompile(`^[0-9]{4,5}$`)

// MapURL returns the archive URL of an entry's primary map. id is the
// numeric accession ("1234" or "EMD-1234").
func (c *EMDBClient) MapURL(id string) (string, error) {
	id = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(id)), "EMD-")
	if !emdIDPattern.MatchString(id) {
		return "", fmt.Errorf("invalid EMDB accession %q", id)
	}
	return fmt.Sprintf("%s/structures/EMD-%s/map/emd_%s.map.gz", c.BaseURL, id, id), nil
}

// FetchMap downloads and decodes an entry's primary map. The response
// body is streamed through the decoder chunk by chunk, so decode work
// overlaps the transfer and nothing beyond the decoded map is retained.
func (c *EMDBClient) FetchMap(ctx context.Context, id string) (*DensityMap, error) {
	url, err := c.MapURL(id)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, url)
	}

	m, err := DecodeMap(io.LimitReader(resp.Body, maxMapGzBytes), c.Options)
	if err != nil {
		return nil, fmt.Errorf("decoding EMD-%s: %w", strings.TrimPrefix(id, "EMD-"), err)
	}
	return m, nil
}
