package blobstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sealflow/sealflow/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStoreNewlyCreated(t *testing.T) {
	publisher := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/v1/blobs", r.URL.Path)
		require.Equal(t, "3", r.URL.Query().Get("epochs"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Equal(t, []byte("ciphertext"), body)

		fmt.Fprint(w, `{"newlyCreated":{"blobObject":{"blobId":"blob-abc","size":10,"storage":{"storageSize":4096}}}}`)
	}))
	defer publisher.Close()

	client := NewClient(Config{
		PublisherURL:  publisher.URL,
		AggregatorURL: "http://aggregator.local",
		Epochs:        3,
	}, nil, testLogger())

	stored, err := client.Store(context.Background(), []byte("ciphertext"))
	require.NoError(t, err)
	require.Equal(t, interfaces.BlobID("blob-abc"), stored.BlobID)
	require.Equal(t, uint64(10), stored.Size)
	require.Equal(t, uint64(4096), stored.StorageSize)
	require.Equal(t, "http://aggregator.local/v1/blobs/blob-abc", stored.AccessURL)
}

func TestStoreAlreadyCertified(t *testing.T) {
	publisher := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"alreadyCertified":{"blobId":"blob-dup"}}`)
	}))
	defer publisher.Close()

	client := NewClient(Config{PublisherURL: publisher.URL, AggregatorURL: "http://a", Epochs: 1}, nil, testLogger())

	stored, err := client.Store(context.Background(), []byte("same bytes again"))
	require.NoError(t, err)
	require.Equal(t, interfaces.BlobID("blob-dup"), stored.BlobID)
	require.Zero(t, stored.Size)
}

func TestStoreRejectsMalformedResponse(t *testing.T) {
	publisher := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer publisher.Close()

	client := NewClient(Config{PublisherURL: publisher.URL, AggregatorURL: "http://a", Epochs: 1}, nil, testLogger())

	_, err := client.Store(context.Background(), []byte("x"))
	require.ErrorContains(t, err, "invalid upload response")
}

func TestFetch(t *testing.T) {
	aggregator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/blobs/blob-abc":
			w.Write([]byte("ciphertext"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer aggregator.Close()

	client := NewClient(Config{PublisherURL: "http://p", AggregatorURL: aggregator.URL, Epochs: 1}, nil, testLogger())

	data, err := client.Fetch(context.Background(), "blob-abc")
	require.NoError(t, err)
	require.Equal(t, []byte("ciphertext"), data)

	_, err = client.Fetch(context.Background(), "blob-missing")
	require.ErrorIs(t, err, interfaces.ErrBlobNotFound)
}

func TestInfo(t *testing.T) {
	aggregator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/blobs/blob-abc/info", r.URL.Path)
		fmt.Fprint(w, `{"blobId":"blob-abc","unencodedSize":10,"encodedSize":4096,"certified":true,"endEpoch":42}`)
	}))
	defer aggregator.Close()

	client := NewClient(Config{PublisherURL: "http://p", AggregatorURL: aggregator.URL, Epochs: 1}, nil, testLogger())

	info, err := client.Info(context.Background(), "blob-abc")
	require.NoError(t, err)
	require.True(t, info.Certified)
	require.Equal(t, uint64(42), info.EndEpoch)
}
