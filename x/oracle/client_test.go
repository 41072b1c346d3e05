package oracle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/wormhole-keeper/x/bridge"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func word(v int64) string {
	return fmt.Sprintf("%064x", v)
}

func packedEvent() string {
	source := bridge.MustParseDomain("GOERLI-SLAVE-STARKNET-1").L1Hash()
	target := bridge.MustParseDomain("GOERLI-MASTER-1").L1Hash()
	return common.Bytes2Hex(source.Bytes()) +
		common.Bytes2Hex(target.Bytes()) +
		word(0xaa) + word(0xbb) + word(500) + word(3) + word(1650000000)
}

func TestDecodeWormholeGUID(t *testing.T) {
	guid, err := DecodeWormholeGUID("0x" + packedEvent())
	require.NoError(t, err)
	require.Equal(t, bridge.MustParseDomain("GOERLI-SLAVE-STARKNET-1").L1Hash(), guid.SourceDomain)
	require.Equal(t, bridge.MustParseDomain("GOERLI-MASTER-1").L1Hash(), guid.TargetDomain)
	require.Equal(t, common.BigToHash(big.NewInt(0xaa)), guid.Receiver)
	require.Equal(t, int64(500), guid.Amount.Int64())
	require.Equal(t, int64(3), guid.Nonce.Int64())
	require.Equal(t, int64(1650000000), guid.Timestamp.Int64())

	_, err = DecodeWormholeGUID("0x1234")
	require.ErrorIs(t, err, ErrMalformedEvent)

	_, err = DecodeWormholeGUID(strings.Repeat("zz", 7*32))
	require.ErrorIs(t, err, ErrMalformedEvent)
}

func TestClient_FetchAttestations(t *testing.T) {
	body := fmt.Sprintf(`[
		{"data":{"event":"0x%s","hash":"0x01"},"signatures":{"ethereum":{"signature":"0xaaaa"}}},
		{"data":{"event":"0x%s","hash":"0x01"},"signatures":{"ethereum":{"signature":"bbbb"}}}
	]`, packedEvent(), packedEvent())

	mock := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		require.Equal(t, "wormhole", req.URL.Query().Get("type"))
		require.Equal(t, "0xabc", req.URL.Query().Get("index"))
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte(body))),
			Header:     make(http.Header),
		}, nil
	})

	c, err := NewClient(DefaultConfig(), &http.Client{Transport: mock}, zerolog.Nop())
	require.NoError(t, err)

	att, err := c.FetchAttestations(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Equal(t, "0xaaaabbbb", att.Signatures)
	require.Equal(t, 2, att.Count)
	require.NotNil(t, att.WormholeGUID)
	require.Equal(t, int64(500), att.WormholeGUID.Amount.Int64())
}

func TestClient_FetchAttestations_Empty(t *testing.T) {
	mock := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte(`[]`))),
			Header:     make(http.Header),
		}, nil
	})
	c, err := NewClient(DefaultConfig(), &http.Client{Transport: mock}, zerolog.Nop())
	require.NoError(t, err)

	att, err := c.FetchAttestations(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Equal(t, "0x", att.Signatures)
	require.Nil(t, att.WormholeGUID)
}

func TestClient_FetchAttestations_Errors(t *testing.T) {
	mock := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusServiceUnavailable,
			Status:     "503 Service Unavailable",
			Body:       io.NopCloser(bytes.NewReader([]byte(`down`))),
			Header:     make(http.Header),
		}, nil
	})
	c, err := NewClient(DefaultConfig(), &http.Client{Transport: mock}, zerolog.Nop())
	require.NoError(t, err)

	_, err = c.FetchAttestations(context.Background(), "0xabc")
	require.ErrorIs(t, err, bridge.ErrRemoteQueryFailed)

	_, err = c.FetchAttestations(context.Background(), "")
	require.Error(t, err)

	_, err = NewClient(Config{}, nil, zerolog.Nop())
	require.ErrorIs(t, err, bridge.ErrMissingConfiguration)
}
