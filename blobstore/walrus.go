// Package blobstore provides a client for a Walrus-style content-addressed
// blob storage network. Uploads go to a publisher endpoint; reads go to an
// aggregator endpoint. Blobs are identified by a content-derived blob ID.
package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sealflow/sealflow/interfaces"
)

// Config holds the storage network endpoints and the number of storage
// epochs to reserve on upload.
type Config struct {
	PublisherURL  string
	AggregatorURL string
	Epochs        int
}

// Client implements interfaces.BlobStore over the storage network's HTTP API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates a blob store client. A nil httpClient falls back to
// http.DefaultClient.
func NewClient(cfg Config, httpClient *http.Client, log *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{cfg: cfg, httpClient: httpClient, log: log}
}

// uploadResponse is the publisher's response union: exactly one of
// NewlyCreated or AlreadyCertified is set.
type uploadResponse struct {
	NewlyCreated *struct {
		BlobObject struct {
			BlobID  string `json:"blobId"`
			Size    uint64 `json:"size"`
			Storage struct {
				StorageSize uint64 `json:"storageSize"`
			} `json:"storage"`
		} `json:"blobObject"`
	} `json:"newlyCreated"`
	AlreadyCertified *struct {
		BlobID string `json:"blobId"`
	} `json:"alreadyCertified"`
}

// Store uploads data to the publisher and returns the storage record.
// Content the network already holds resolves to the existing blob ID with
// zero sizes, matching the publisher's alreadyCertified response.
func (c *Client) Store(ctx context.Context, data []byte) (*interfaces.StoredBlob, error) {
	start := time.Now()
	uploadURL := fmt.Sprintf("%s/v1/blobs?epochs=%d", c.cfg.PublisherURL, c.cfg.Epochs)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not request blob upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("blob upload returned error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var parsed uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("could not parse upload response: %w", err)
	}

	var stored interfaces.StoredBlob
	switch {
	case parsed.NewlyCreated != nil:
		stored.BlobID = interfaces.BlobID(parsed.NewlyCreated.BlobObject.BlobID)
		stored.Size = parsed.NewlyCreated.BlobObject.Size
		stored.StorageSize = parsed.NewlyCreated.BlobObject.Storage.StorageSize
	case parsed.AlreadyCertified != nil:
		stored.BlobID = interfaces.BlobID(parsed.AlreadyCertified.BlobID)
	default:
		return nil, fmt.Errorf("invalid upload response: neither newlyCreated nor alreadyCertified")
	}
	stored.AccessURL = c.BlobURL(stored.BlobID)

	c.log.Debug("Stored blob",
		slog.String("blob_id", stored.BlobID.String()),
		slog.Uint64("size", stored.Size),
		slog.Duration("duration", time.Since(start)))

	return &stored, nil
}

// Fetch retrieves blob content from the aggregator by its identifier.
func (c *Client) Fetch(ctx context.Context, id interfaces.BlobID) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BlobURL(id), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not request blob download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, interfaces.ErrBlobNotFound
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("blob download returned error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read blob content: %w", err)
	}

	return data, nil
}

// BlobInfo holds aggregator-side metadata about a stored blob.
type BlobInfo struct {
	BlobID        string `json:"blobId"`
	UnencodedSize uint64 `json:"unencodedSize"`
	EncodedSize   uint64 `json:"encodedSize"`
	Certified     bool   `json:"certified"`
	EndEpoch      uint64 `json:"endEpoch"`
}

// Info fetches aggregator metadata for a blob.
func (c *Client) Info(ctx context.Context, id interfaces.BlobID) (*BlobInfo, error) {
	infoURL := fmt.Sprintf("%s/v1/blobs/%s/info", c.cfg.AggregatorURL, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, infoURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not request blob info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, interfaces.ErrBlobNotFound
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("blob info returned error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var info BlobInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("could not parse blob info: %w", err)
	}

	return &info, nil
}

// BlobURL returns the aggregator URL a blob's content can be fetched from.
func (c *Client) BlobURL(id interfaces.BlobID) string {
	return fmt.Sprintf("%s/v1/blobs/%s", c.cfg.AggregatorURL, id)
}
