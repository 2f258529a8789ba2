package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"dualinbox/internal/crypto"
	"dualinbox/internal/index"
	"dualinbox/internal/retry"
)

func TestDigestFromURL(t *testing.T) {
	require := require.New(t)
	d := strings.Repeat("ab", 32)

	got, err := DigestFromURL("https://blobs.test" + BlobPath + d)
	require.NoError(err)
	require.Equal(d, got)

	_, err = DigestFromURL("https://blobs.test/other/" + d)
	require.Error(err)
	_, err = DigestFromURL("https://blobs.test" + BlobPath + "short")
	require.Error(err)
}

func TestMemory_Lag(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	m := NewMemory("https://blobs.test/")

	u, err := m.Upload(ctx, []byte("blob"))
	require.NoError(err)
	require.Equal("https://blobs.test"+BlobPath+crypto.Digest([]byte("blob")), u)

	m.SetLag(1, nil)
	_, err = m.Download(ctx, u)
	require.ErrorIs(err, ErrNotYetAvailable)
	require.True(retry.IsTransientError(err))

	m.SetLag(1, []byte("stale"))
	b, err := m.Download(ctx, u)
	require.NoError(err)
	require.Equal("stale", string(b))

	b, err = m.Download(ctx, u)
	require.NoError(err)
	require.Equal("blob", string(b))

	uploads, downloads := m.Calls()
	require.Equal(1, uploads)
	require.Equal(3, downloads)
}

func TestHTTP_ServerError(t *testing.T) {
	require := require.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL, 0).Upload(context.Background(), []byte("x"))
	var se *index.StatusError
	require.ErrorAs(err, &se)
	require.Equal(http.StatusBadGateway, se.Code)
	require.True(retry.IsTransientError(err))
}
