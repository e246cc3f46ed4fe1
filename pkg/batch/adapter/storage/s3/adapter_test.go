package s3_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/salesync/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/salesync/pkg/batch/adapter/storage/s3"
)

const listResponse = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>sales</Name>
  <Prefix>2025</Prefix>
  <KeyCount>2</KeyCount>
  <MaxKeys>1000</MaxKeys>
  <IsTruncated>false</IsTruncated>
  <Contents>
    <Key>2025/01.csv</Key>
    <LastModified>2025-01-31T10:00:00.000Z</LastModified>
    <ETag>"a1"</ETag>
    <Size>120</Size>
    <StorageClass>STANDARD</StorageClass>
  </Contents>
  <Contents>
    <Key>2025/02.csv</Key>
    <LastModified>2025-02-28T10:00:00.000Z</LastModified>
    <ETag>"b2"</ETag>
    <Size>240</Size>
    <StorageClass>STANDARD</StorageClass>
  </Contents>
</ListBucketResult>`

func TestStore_ListObjects(t *testing.T) {
	var gotPath, gotPrefix string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Query().Get("list-type") != "2" {
			http.NotFound(w, r)
			return
		}
		gotPath = r.URL.Path
		gotPrefix = r.URL.Query().Get("prefix")
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(listResponse))
	}))
	defer srv.Close()

	store, err := s3.NewStore(config.S3Config{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		Region:    "us-east-1",
		AccessKey: "test",
		SecretKey: "test-secret",
	})
	require.NoError(t, err)
	defer store.Close()

	objs, err := store.ListObjects(context.Background(), "sales", "2025")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(gotPath, "/sales"))
	assert.Equal(t, "2025", gotPrefix)
	require.Len(t, objs, 2)
	assert.Equal(t, "2025/02.csv", objs[1].Key)
	assert.Equal(t, int64(240), objs[1].Size)
	assert.Equal(t, 2025, objs[1].LastModified.Year())
}
