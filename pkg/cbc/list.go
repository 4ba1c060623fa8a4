package cbc

import (
	"context"
	"fmt"
	"net/url"
)

// List fetches a GET collection endpoint and wraps every row with ctor.
// List rows are treated as partial documents and load lazily on demand.
func List[T any](ctx context.Context, api Transport, info *ResourceInfo, ctor func(*Model) T, query url.Values) ([]T, error) {
	if info.ListURL == "" {
		return nil, fmt.Errorf("listing %s: %w", info.name(), ErrNoListEndpoint)
	}

	path := FormatPath(info.ListURL, api.OrgKey(), nil)

	raw, err := api.GetObject(ctx, path, query)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", info.name(), err)
	}

	rows, _, err := decodeRows(raw, info.listKey())
	if err != nil {
		return nil, &APIError{Path: path, Message: "malformed list response", Err: err}
	}

	out := make([]T, 0, len(rows))
	for _, row := range rows {
		out = append(out, ctor(NewModelFromDocument(api, info, row, false)))
	}

	return out, nil
}
