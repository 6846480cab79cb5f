package azure

import (
	"context"
	"fmt"
)

// ListResponse is the common shape of management API list endpoints.
type ListResponse struct {
	Value    []map[string]any `json:"value"`
	NextLink string           `json:"nextLink"`
}

// PartialError is returned when pagination fails mid-sequence. Items holds
// everything fetched before the failure so callers can decide whether a
// partial result is still useful.
type PartialError struct {
	Items []map[string]any
	Err   error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("pagination failed after %d items: %v", len(e.Items), e.Err)
}

func (e *PartialError) Unwrap() error {
	return e.Err
}

// Pager lazily walks a nextLink-paginated list endpoint. Each Next call
// fetches exactly one page.
type Pager struct {
	client        *Client
	azureTenantID string
	nextURL       string
	done          bool
}

// NewPager creates a pager starting at the given list URL.
func (c *Client) NewPager(azureTenantID, url string) *Pager {
	return &Pager{
		client:        c,
		azureTenantID: azureTenantID,
		nextURL:       url,
	}
}

// More reports whether another page remains.
func (p *Pager) More() bool {
	return !p.done
}

// Next fetches the next page of items.
func (p *Pager) Next(ctx context.Context) ([]map[string]any, error) {
	if p.done {
		return nil, nil
	}

	var resp ListResponse
	if err := p.client.GetJSON(ctx, p.azureTenantID, p.nextURL, &resp); err != nil {
		p.done = true
		return nil, err
	}

	if resp.NextLink == "" {
		p.done = true
	} else {
		p.nextURL = resp.NextLink
	}
	return resp.Value, nil
}

// All drains the pager. On a mid-sequence failure it returns a PartialError
// carrying the items fetched so far.
func (p *Pager) All(ctx context.Context) ([]map[string]any, error) {
	var items []map[string]any
	for p.More() {
		page, err := p.Next(ctx)
		if err != nil {
			if len(items) > 0 {
				return items, &PartialError{Items: items, Err: err}
			}
			return nil, err
		}
		items = append(items, page...)
	}
	return items, nil
}
