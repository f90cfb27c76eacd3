package attestation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sealflow/sealflow/interfaces"
)

// DefaultProcessTimeout bounds the enclave processing call.
const DefaultProcessTimeout = 120 * time.Second

// ProcessingClient delegates computation over a sealed file to an external
// TEE execution service. It implements interfaces.EnclaveProcessor. The
// service runs the computation inside the enclave, registers the attestation
// itself, and returns the attestation record plus the derived artifact's
// identifiers; no effects polling is needed.
type ProcessingClient struct {
	// BaseURL is the processing service endpoint.
	BaseURL string

	// Timeout bounds the request; zero falls back to
	// DefaultProcessTimeout.
	Timeout time.Duration

	// HTTPClient defaults to http.DefaultClient when nil.
	HTTPClient *http.Client

	Log *slog.Logger
}

type processPayload struct {
	TimeoutSecs int      `json:"timeout_secs"`
	Args        []string `json:"args"`
}

type processRequestBody struct {
	Payload processPayload `json:"payload"`
}

type processResponseBody struct {
	Status string `json:"status"`
	Data   struct {
		AttestationObjID string `json:"attestationObjId"`
		BlobID           string `json:"blobId"`
		OnChainFileObjID string `json:"onChainFileObjId"`
		AccessURL        string `json:"walrusUrl"`
	} `json:"data"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

func (c *ProcessingClient) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Process submits the sealed file's identifiers to the processing service
// and returns the attestation record and derived artifact identifiers.
func (c *ProcessingClient) Process(ctx context.Context, req interfaces.ProcessRequest) (*interfaces.ProcessResult, error) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultProcessTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(processRequestBody{
		Payload: processPayload{
			TimeoutSecs: int(timeout.Seconds()),
			Args: []string{
				req.Account.String(),
				req.BlobID.String(),
				req.OnChainFileID.String(),
				req.PolicyID.String(),
				strconv.Itoa(req.Threshold),
			},
		},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/process_data", c.BaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("could not request enclave processing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("processing service returned error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var parsed processResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("could not parse processing response: %w", err)
	}

	if parsed.ExitCode != 0 {
		return nil, fmt.Errorf("enclave processing failed with exit code %d: %s", parsed.ExitCode, parsed.Stderr)
	}

	attestationID, err := interfaces.NewObjectIDFromHex(parsed.Data.AttestationObjID)
	if err != nil {
		return nil, fmt.Errorf("processing service returned malformed attestation ID: %w", err)
	}
	derivedFileID, err := interfaces.NewObjectIDFromHex(parsed.Data.OnChainFileObjID)
	if err != nil {
		return nil, fmt.Errorf("processing service returned malformed file object ID: %w", err)
	}

	c.Log.Info("Enclave processing complete",
		slog.String("attestation_id", attestationID.String()),
		slog.String("derived_blob_id", parsed.Data.BlobID),
		slog.Duration("duration", time.Since(start)))

	return &interfaces.ProcessResult{
		AttestationID:        attestationID,
		DerivedBlobID:        interfaces.BlobID(parsed.Data.BlobID),
		DerivedOnChainFileID: derivedFileID,
	}, nil
}
