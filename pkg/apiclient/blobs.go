package apiclient

import (
	"context"
	"net/url"

	"github.com/marmos91/dittobin/pkg/blob"
)

// ListBlobs returns every record, or only those in state when it is not
// empty.
func (c *Client) ListBlobs(ctx context.Context, state string) ([]blob.RecordInfo, error) {
	path := "/blobs"
	if state != "" {
		path += "?state=" + url.QueryEscape(state)
	}
	var records []blob.RecordInfo
	if err := c.get(ctx, path, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// BlobInfo returns the record of id.
func (c *Client) BlobInfo(ctx context.Context, id blob.ID) (*blob.RecordInfo, error) {
	var info blob.RecordInfo
	if err := c.get(ctx, "/blobs/"+url.PathEscape(id.String())+"/info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ResetBlob clears a failed record so the next upload starts over.
func (c *Client) ResetBlob(ctx context.Context, id blob.ID) error {
	return c.post(ctx, "/blobs/"+url.PathEscape(id.String())+"/reset", nil)
}
