package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/erp/catalogcache/internal/domain/catalog"
	"github.com/erp/catalogcache/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectClient struct {
	objects map[string][]byte
	err     error
	gets    []string
}

func (f *fakeObjectClient) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(params.Key)
	f.gets = append(f.gets, key)
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeObjectClient) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	if _, ok := f.objects[aws.ToString(params.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestNewS3SourceExportReader_Validation(t *testing.T) {
	t.Run("nil config returns error", func(t *testing.T) {
		_, err := NewS3SourceExportReader(context.Background(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration is required")
	})

	t.Run("missing bucket returns error", func(t *testing.T) {
		_, err := NewS3SourceExportReader(context.Background(), &config.StorageConfig{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("valid config creates reader", func(t *testing.T) {
		r, err := NewS3SourceExportReader(context.Background(), &config.StorageConfig{
			Bucket:          "catalog",
			Prefix:          "/exports/",
			Endpoint:        "localhost:9000",
			AccessKeyID:     "key",
			SecretAccessKey: "secret",
			UsePathStyle:    true,
		})
		require.NoError(t, err)
		assert.Equal(t, "exports/ErpStock.json", r.ObjectKey(catalog.SourceKeyErpStock))
	})
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.local", normalizeEndpoint("s3.local"))
	assert.Equal(t, "http://minio:9000", normalizeEndpoint("http://minio:9000"))
}

func TestObjectKey_NoPrefix(t *testing.T) {
	r := NewS3SourceExportReaderWithClient(&fakeObjectClient{}, "b", "")
	assert.Equal(t, "Lots.json", r.ObjectKey(catalog.SourceKeyLots))
}

func TestExportFetch(t *testing.T) {
	client := &fakeObjectClient{objects: map[string][]byte{
		"exports/ErpStock.json": []byte(`[{"product_code":"P100","product_name":"Cream","stock":"12.5"}]`),
		"exports/Lots.json":     []byte(`{not json`),
	}}
	r := NewS3SourceExportReaderWithClient(client, "catalog", "exports")

	t.Run("decodes typed records", func(t *testing.T) {
		records, err := ExportFetch(r, catalog.ErpStock)(context.Background())
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "P100", records[0].ProductCode)
		assert.Equal(t, "12.5", records[0].Stock.String())
	})

	t.Run("invalid payload", func(t *testing.T) {
		_, err := ExportFetch(r, catalog.Lots)(context.Background())
		assert.ErrorIs(t, err, catalog.ErrInvalidRecords)
	})

	t.Run("missing export", func(t *testing.T) {
		_, err := ExportFetch(r, catalog.Planned)(context.Background())
		assert.ErrorIs(t, err, ErrExportNotFound)
	})
}

func TestRead_ClientError(t *testing.T) {
	r := NewS3SourceExportReaderWithClient(&fakeObjectClient{err: errors.New("access denied")}, "catalog", "exports")

	_, err := r.Read(context.Background(), catalog.SourceKeyErpPrices)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrExportNotFound)
	assert.Contains(t, err.Error(), "access denied")
}

func TestExists(t *testing.T) {
	client := &fakeObjectClient{objects: map[string][]byte{"exports/Lots.json": []byte(`[]`)}}
	r := NewS3SourceExportReaderWithClient(client, "catalog", "exports")

	ok, err := r.Exists(context.Background(), catalog.SourceKeyLots)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Exists(context.Background(), catalog.SourceKeyReserved)
	require.NoError(t, err)
	assert.False(t, ok)
}
