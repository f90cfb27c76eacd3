package keyserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sealflow/sealflow/interfaces"
)

// Client talks to one remote key server. It implements cipher.ShareServer.
type Client struct {
	// ServerAddr is the base URL of the key server.
	ServerAddr string

	// HTTPClient defaults to http.DefaultClient when nil.
	HTTPClient *http.Client
}

// Name identifies the server for logging.
func (c *Client) Name() string {
	return c.ServerAddr
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// RegisterShare stores one key share with the server.
func (c *Client) RegisterShare(ctx context.Context, id interfaces.EnvelopeID, share []byte, threshold int, authorized []interfaces.AccountAddress) error {
	addrs := make([]string, len(authorized))
	for i, a := range authorized {
		addrs[i] = a.String()
	}

	body, err := json.Marshal(RegisterShareRequest{
		EnvelopeID: id.Hex(),
		Share:      share,
		Threshold:  threshold,
		Authorized: addrs,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/v1/shares/register", c.ServerAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("could not request share registration: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("share registration returned error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	return nil
}

// FetchShare requests the stored share using the credential's challenge
// message and signature plus the serialized authorization transaction.
func (c *Client) FetchShare(ctx context.Context, id interfaces.EnvelopeID, cred interfaces.Credential, txProof []byte) ([]byte, error) {
	body, err := json.Marshal(FetchShareRequest{
		EnvelopeID: id.Hex(),
		Message:    cred.ChallengeMessage(),
		Signature:  cred.Signature(),
		TxBytes:    txProof,
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/v1/shares/fetch", c.ServerAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not request share fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("share fetch returned error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var parsed FetchShareResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("could not parse share fetch response: %w", err)
	}

	return parsed.Share, nil
}
