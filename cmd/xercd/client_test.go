package xercd

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chains/80001/balances/0xabc/1", r.URL.Path)
		_, _ = io.WriteString(w, `{"owner":"0xabc","id":"1","balance":"42"}`)
	}))
	defer srv.Close()

	bal, err := newAPIClient(srv.URL+"/").balance("80001", "0xabc", "1")
	require.NoError(t, err)
	assert.Equal(t, "42", bal)
}

func TestClientErrorCarriesKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"error":"ERC1155: burn amount exceeds balance","kind":"InsufficientBalance","requestId":"x"}`)
	}))
	defer srv.Close()

	_, err := newAPIClient(srv.URL).transfer("80001", map[string]interface{}{})
	assert.EqualError(t, err, "ERC1155: burn amount exceeds balance (InsufficientBalance, HTTP 409)")
}

func TestClientPlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	_, err := newAPIClient(srv.URL).pending()
	assert.EqualError(t, err, "HTTP 405: nope")
}

func TestClientTransferSendsHex(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"requestId":7}`)
	}))
	defer srv.Close()

	*transferData = "beef"
	*transferMetadata = ""
	defer func() { *transferData = "" }()
	body, err := transferBody()
	require.NoError(t, err)

	id, err := newAPIClient(srv.URL).transfer("80001", body)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), id)
	assert.Equal(t, "0xbeef", got["data"])
	assert.Contains(t, got, "metadataParams")
	assert.NotContains(t, got, "metadata")
}

func TestClientPendingAndDeliver(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/gateway/pending", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"nonce":1,"srcChainId":"80001","destChainId":"43113","destContract":"0xdef"},`+
			`{"nonce":2,"srcChainId":"80001","destChainId":"5","destContract":"0x123","attempts":3,"lastError":"no route"}]`)
	})
	mux.HandleFunc("/v1/gateway/deliver/1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		_, _ = io.WriteString(w, `{"nonce":1,"success":true,"acked":true}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newAPIClient(srv.URL)
	lines, err := c.pending()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"1\t80001 -> 43113\t0xdef",
		"2\t80001 -> 5\t0x123\tattempts=3 lastError=\"no route\"",
	}, lines)

	msg, err := c.deliver("1")
	require.NoError(t, err)
	assert.Equal(t, "delivered (acked: true)", msg)
}
