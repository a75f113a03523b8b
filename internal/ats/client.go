// Package ats retrieves the authoritative set of active records for named
// collections from the remote applicant tracking system. The remote API
// exposes two differently paginated surfaces for collection membership that
// frequently disagree on totals; this package reconciles them without ever
// silently dropping or duplicating records.
package ats

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/jonathan/feedsync/internal/types"
)

// DefaultPageSize is the fixed pagination window for both query surfaces.
const DefaultPageSize = 20

// DefaultTimeout is the per-request HTTP timeout.
const DefaultTimeout = 30 * time.Second

// smallCollectionThreshold: an association total at or below this is trusted
// directly, with no cross-check against the search surface.
const smallCollectionThreshold = 5

// searchFields is the field selection for the search surface, which carries
// the richer per-record payload needed for mapping.
const searchFields = "id,title,publicDescription,address,employmentType,onSite,owner,responseUser,assignedUsers,dateLastModified,isOpen,isDeleted,status"

// Config holds the connection settings for the remote system.
type Config struct {
	BaseURL      string
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
	PageSize     int
	Timeout      time.Duration
	// ExcludedIDs is the operator override: these external ids never appear
	// in output regardless of source state.
	ExcludedIDs []string
}

// Client talks to the remote system. It authenticates lazily on the first
// fetch and reuses the session token afterwards.
type Client struct {
	cfg        Config
	httpClient *http.Client
	excluded   map[string]bool

	restToken string
	restURL   string
}

// NewClient creates a client from config, applying defaults for page size
// and timeout.
func NewClient(cfg Config) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	excluded := make(map[string]bool, len(cfg.ExcludedIDs))
	for _, id := range cfg.ExcludedIDs {
		excluded[id] = true
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		excluded:   excluded,
	}
}

// FetchResult is the outcome of fetching one collection.
type FetchResult struct {
	Records []types.Record
	// OrphanedByAssociation lists search-surface ids dropped because the
	// association surface, holding the smaller total, did not contain them.
	OrphanedByAssociation []string
	// CrossCheckAborted is set when the association surface under-collected
	// against its own reported total and the cross-check was abandoned.
	CrossCheckAborted bool
	// Partial is set when a page request failed and pagination stopped early.
	Partial bool
}

// FetchCollection returns the deduplicated, filtered set of active records
// for a named collection. It never fails on partial retrieval: gaps are
// logged and reflected in the result flags. Only authentication failure
// returns an error.
func (c *Client) FetchCollection(ctx context.Context, collectionID string) (FetchResult, error) {
	var result FetchResult

	if c.restToken == "" {
		if err := c.authenticate(ctx); err != nil {
			return result, err
		}
	}

	assocIDs, assocTotal, err := c.fetchAssociationIDs(ctx, collectionID)
	if err != nil {
		// The association surface is unreachable; fall back to the search
		// surface alone and skip membership filtering.
		log.Printf("warning: association query for collection %s failed, skipping cross-check: %v", collectionID, err)
		result.CrossCheckAborted = true
	}

	crossCheck := !result.CrossCheckAborted
	if crossCheck && assocTotal > smallCollectionThreshold && len(assocIDs) < assocTotal {
		// The surface's own total could not be collected; treating it as
		// authoritative could delete valid records.
		log.Printf("warning: collection %s: %v (collected %d of %d)", collectionID, ErrPaginationInconsistency, len(assocIDs), assocTotal)
		result.CrossCheckAborted = true
		crossCheck = false
	}

	records, partial := c.searchRecords(ctx, collectionID)
	result.Partial = partial

	if crossCheck && (assocTotal <= smallCollectionThreshold || assocTotal < len(records)) {
		// The association surface holds the smaller membership; it is
		// authoritative, and search results outside it are orphans.
		member := make(map[string]bool, len(assocIDs))
		for _, id := range assocIDs {
			member[id] = true
		}
		kept := records[:0]
		for _, rec := range records {
			if member[rec.ExternalID] {
				kept = append(kept, rec)
			} else {
				result.OrphanedByAssociation = append(result.OrphanedByAssociation, rec.ExternalID)
			}
		}
		records = kept
	}
	// A larger association total means a search-surface pagination gap;
	// nothing is removed on the strength of the mismatch.

	result.Records = c.applyFilters(records)
	return result, nil
}

// applyFilters drops excluded and inactive records and deduplicates by
// external id, first seen wins.
func (c *Client) applyFilters(records []types.Record) []types.Record {
	seen := make(map[string]bool, len(records))
	kept := make([]types.Record, 0, len(records))
	for _, rec := range records {
		if c.excluded[rec.ExternalID] || !rec.IsActive || seen[rec.ExternalID] {
			continue
		}
		seen[rec.ExternalID] = true
		kept = append(kept, rec)
	}
	return kept
}

// associationPage is the response shape of the entity-association surface.
type associationPage struct {
	Total int `json:"total"`
	Data  []struct {
		ID int64 `json:"id"`
	} `json:"data"`
}

// fetchAssociationIDs paginates the association surface to collect the
// complete member id set, plus the surface's own reported total.
func (c *Client) fetchAssociationIDs(ctx context.Context, collectionID string) ([]string, int, error) {
	var ids []string
	total := 0

	for start := 0; ; start += c.cfg.PageSize {
		endpoint := fmt.Sprintf("%s/entity/Tearsheet/%s/jobOrders?fields=id&start=%d&count=%d",
			c.restURL, url.PathEscape(collectionID), start, c.cfg.PageSize)

		var page associationPage
		if err := c.getJSON(ctx, endpoint, &page); err != nil {
			return nil, 0, &TransientFetchError{Surface: "association", Start: start, Cause: err}
		}

		total = page.Total
		for _, item := range page.Data {
			ids = append(ids, fmt.Sprintf("%d", item.ID))
		}

		if len(page.Data) < c.cfg.PageSize || len(ids) >= total {
			break
		}
	}

	return ids, total, nil
}

// searchPage is the response shape of the full-text search surface.
type searchPage struct {
	Total int         `json:"total"`
	Data  []apiRecord `json:"data"`
}

// searchRecords paginates the search surface, sorted by recency descending.
// A page failure stops pagination and returns the partial set collected so
// far; the bool return reports whether that happened.
func (c *Client) searchRecords(ctx context.Context, collectionID string) ([]types.Record, bool) {
	query := fmt.Sprintf("tearsheets.id:%s AND isOpen:1 AND isDeleted:0", collectionID)

	var records []types.Record
	for start := 0; ; start += c.cfg.PageSize {
		endpoint := fmt.Sprintf("%s/search/JobOrder?query=%s&fields=%s&start=%d&count=%d&sort=-dateLastModified",
			c.restURL, url.QueryEscape(query), url.QueryEscape(searchFields), start, c.cfg.PageSize)

		var page searchPage
		if err := c.getJSON(ctx, endpoint, &page); err != nil {
			fetchErr := &TransientFetchError{Surface: "search", Start: start, Cause: err}
			log.Printf("warning: collection %s: %v; returning %d records collected so far", collectionID, fetchErr, len(records))
			return records, true
		}

		for _, raw := range page.Data {
			records = append(records, mapRecord(raw))
		}

		if len(page.Data) < c.cfg.PageSize || len(records) >= page.Total {
			break
		}
	}

	return records, false
}

// getJSON performs an authenticated GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("BhRestToken", c.restToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
