package importer

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	llama "github.com/gamazeps/encode-llama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const annotation = "##format: gtf\n" +
	"chrM\tENSEMBL\tgene\t15956\t16023\t.\t-\t.\tgene_id \"ENSG00000210196.2\"; gene_type \"Mt_tRNA\"; gene_name \"MT-TP\"; level 3;\n" +
	"chrM\tENSEMBL\ttranscript\t15956\t16023\t.\t-\t.\tgene_id \"ENSG00000210196.2\"; transcript_id \"ENST00000387461.2\"; gene_name \"MT-TP\"; transcript_name \"MT-TP-201\"; tag \"basic\"; tag \"Ensembl_canonical\";\n"

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func annotationServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	body := gzipped(t, annotation)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestLoad_DownloadsThenUsesCache(t *testing.T) {
	srv, hits := annotationServer(t)
	dir := t.TempDir()
	opts := Options{Version: 40, DataDir: dir, URL: srv.URL + "/gencode.v40.annotation.gtf.gz"}
	ctx := context.Background()

	store, err := Load(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, "40", store.Version())
	assert.Equal(t, 2, store.Len())
	assert.FileExists(t, filepath.Join(dir, "gencode.v40.annotation.db"))

	cached, err := Load(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	var first, second []llama.Record
	for r := range store.All() {
		first = append(first, r)
	}
	for r := range cached.All() {
		second = append(second, r)
	}
	assert.Equal(t, first, second)
	assert.Equal(t, "basic,Ensembl_canonical", second[1].Tag)
	assert.Equal(t, int64(15956), second[1].Start)
}

func TestLoad_Refresh(t *testing.T) {
	srv, hits := annotationServer(t)
	opts := Options{Version: 40, DataDir: t.TempDir(), URL: srv.URL}
	ctx := context.Background()

	_, err := Load(ctx, opts)
	require.NoError(t, err)
	opts.Refresh = true
	_, err = Load(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestLoad_InvalidVersion(t *testing.T) {
	_, err := Load(context.Background(), Options{DataDir: t.TempDir()})
	require.Error(t, err)
}

func TestDownload_Errors(t *testing.T) {
	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()
	_, err := Download(context.Background(), nil, notFound.URL)
	require.ErrorContains(t, err, "status 404")

	plain := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(annotation))
	}))
	defer plain.Close()
	_, err = Download(context.Background(), nil, plain.URL)
	require.ErrorContains(t, err, "gunzip")
}

func TestCache_EmptyHasNoVersion(t *testing.T) {
	ctx := context.Background()
	c, err := OpenCache(ctx, filepath.Join(t.TempDir(), "sub", "cache.db"))
	require.NoError(t, err)
	defer c.Close()

	v, err := c.Version(ctx)
	require.NoError(t, err)
	assert.Empty(t, v)

	recs, err := c.Records(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestReleaseURL(t *testing.T) {
	assert.Equal(t,
		"https://ftp.ebi.ac.uk/pub/databases/gencode/Gencode_human/release_40/gencode.v40.annotation.gtf.gz",
		ReleaseURL(40))
}
