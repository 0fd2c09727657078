// ABOUTME: Object storage upload against the hosted backend
// ABOUTME: Returns the public retrieval URL for uploaded attachments

package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// attachmentBucket is the storage bucket holding message/report images.
const attachmentBucket = "attachments"

// UploadAttachment stores an object and returns its public URL.
func (c *Client) UploadAttachment(ctx context.Context, token, path, contentType string, data []byte) (string, error) {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, attachmentBucket, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return "", c.statusError(resp.StatusCode, body)
	}

	publicURL := fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL, attachmentBucket, path)
	c.logger.Debug("uploaded attachment", "path", path, "size", len(data))
	return publicURL, nil
}
