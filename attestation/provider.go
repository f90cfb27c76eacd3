// Package attestation covers the TEE attestation concerns of the workflow:
// quote providers for the local enclave, on-chain registration of an
// attestation record bound to a ciphertext, and the client for the external
// enclave processing service.
package attestation

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"

	tdx_abi "github.com/google/go-tdx-guest/abi"
	tdx_client "github.com/google/go-tdx-guest/client"
	tdx_pb "github.com/google/go-tdx-guest/proto/tdx"
	"github.com/google/go-tdx-guest/verify"
)

// Provider produces attestation evidence for the local enclave.
type Provider interface {
	// EnclaveIdentity is the identity string bound into the on-chain
	// attestation record.
	EnclaveIdentity() string

	// Attest produces a quote over the given report data.
	Attest(reportData [64]byte) ([]byte, error)
}

// DCAPProvider obtains TDX quotes from the local enclave, preferring the
// configfs interface and falling back to the quote device.
type DCAPProvider struct{}

func (DCAPProvider) EnclaveIdentity() string { return "qemu-tdx" }

func (DCAPProvider) Attest(reportData [64]byte) ([]byte, error) {
	qp := &tdx_client.LinuxConfigFsQuoteProvider{}
	if qp.IsSupported() == nil {
		return qp.GetRawQuote(reportData)
	}

	qd, err := tdx_client.OpenDevice()
	if err != nil {
		return nil, err
	}
	defer qd.Close()

	return tdx_client.GetRawQuote(qd, reportData)
}

// RemoteProvider fetches quotes from a remote quote provider endpoint, for
// setups where the quoting device is not directly accessible.
type RemoteProvider struct {
	Address string
}

func (*RemoteProvider) EnclaveIdentity() string { return "qemu-tdx" }

func (p *RemoteProvider) Attest(reportData [64]byte) ([]byte, error) {
	url := fmt.Sprintf("%s/attest/%s", p.Address, hex.EncodeToString(reportData[:]))
	resp, err := http.DefaultClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("calling remote quote provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("remote quote provider returned status %d: %s", resp.StatusCode, string(body))
	}

	rawQuote, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading quote from response: %w", err)
	}
	return rawQuote, nil
}

// DummyProvider produces unverifiable evidence for development and testing.
type DummyProvider struct{}

func (DummyProvider) EnclaveIdentity() string { return "dummy" }

func (DummyProvider) Attest(reportData [64]byte) ([]byte, error) {
	return []byte(fmt.Sprintf("Attestation for %x", reportData)), nil
}

// VerifyDCAPQuote verifies a TDX quote against the expected report data and
// returns the quote's measurement registers.
func VerifyDCAPQuote(reportData [64]byte, quote []byte) (map[int]string, error) {
	protoQuote, err := tdx_abi.QuoteToProto(quote)
	if err != nil {
		return nil, fmt.Errorf("could not parse quote: %w", err)
	}

	v4Quote, ok := protoQuote.(*tdx_pb.QuoteV4)
	if !ok {
		return nil, fmt.Errorf("unsupported quote type: %T", protoQuote)
	}

	if err := verify.TdxQuote(protoQuote, verify.DefaultOptions()); err != nil {
		return nil, fmt.Errorf("quote verification failed: %w", err)
	}

	if !bytes.Equal(v4Quote.TdQuoteBody.ReportData, reportData[:]) {
		return nil, fmt.Errorf("invalid report data %x, expected %x", v4Quote.TdQuoteBody.ReportData, reportData[:])
	}

	measurements := map[int]string{
		0: hex.EncodeToString(v4Quote.TdQuoteBody.MrTd),
		1: hex.EncodeToString(v4Quote.TdQuoteBody.Rtmrs[0]),
		2: hex.EncodeToString(v4Quote.TdQuoteBody.Rtmrs[1]),
		3: hex.EncodeToString(v4Quote.TdQuoteBody.Rtmrs[2]),
		4: hex.EncodeToString(v4Quote.TdQuoteBody.Rtmrs[3]),
	}

	return measurements, nil
}
