package catalog

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storefront/internal/model"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func gzipLines(t *testing.T, lines []string) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	for _, line := range lines {
		_, err := w.Write([]byte(line + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// createTestCatalogFile writes a gzipped JSON-lines snapshot.
func createTestCatalogFile(t *testing.T, filename string, lines []string) string {
	path := filepath.Join(t.TempDir(), filename)
	require.NoError(t, os.WriteFile(path, gzipLines(t, lines), 0o644))
	return path
}

func TestFileLoader_Load_Success(t *testing.T) {
	path := createTestCatalogFile(t, "catalog.jsonl.gz", []string{
		`{"id":"phone-1","name":"Phone","price":"1199.00","images":["https://img/phone.png"],"category":"electronics"}`,
		``,
		`{"id":"case-1","name":"  Case ","price":19.5,"active":false}`,
	})

	products, err := NewFileLoader(zerolog.Nop()).Load(context.Background(), path)

	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "phone-1", products[0].ID)
	assert.True(t, products[0].Price.Equal(decimal.RequireFromString("1199")))
	assert.True(t, products[0].IsActive)
	assert.Equal(t, []string{"https://img/phone.png"}, products[0].Images)
	assert.Equal(t, "Case", products[1].Name)
	assert.True(t, products[1].Price.Equal(decimal.RequireFromString("19.50")))
	assert.False(t, products[1].IsActive)
}

func TestFileLoader_Load_Errors(t *testing.T) {
	loader := NewFileLoader(zerolog.Nop())
	ctx := context.Background()

	t.Run("Missing file", func(t *testing.T) {
		_, err := loader.Load(ctx, filepath.Join(t.TempDir(), "missing.gz"))
		assert.ErrorContains(t, err, "failed to open catalog file")
	})

	t.Run("Not gzipped", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "plain.jsonl")
		require.NoError(t, os.WriteFile(path, []byte(`{"id":"a"}`), 0o644))
		_, err := loader.Load(ctx, path)
		assert.ErrorContains(t, err, "gzip")
	})

	t.Run("Malformed line", func(t *testing.T) {
		path := createTestCatalogFile(t, "bad.gz", []string{`{"id":"a","name":"A","price":"1"}`, `{oops`})
		_, err := loader.Load(ctx, path)
		assert.ErrorContains(t, err, "line 2")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		product model.Product
		wantErr string
	}{
		{"Valid", model.Product{ID: "a", Name: "A", Price: decimal.RequireFromString("1.25")}, ""},
		{"Free item", model.Product{ID: "a", Name: "A", Price: decimal.Zero}, ""},
		{"Missing id", model.Product{Name: "A"}, "id is required"},
		{"Missing name", model.Product{ID: "a"}, "name is required"},
		{"Negative price", model.Product{ID: "a", Name: "A", Price: decimal.RequireFromString("-1")}, "negative"},
		{"Sub-cent price", model.Product{ID: "a", Name: "A", Price: decimal.RequireFromString("1.005")}, "decimal places"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.product)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

type MockObjectGetter struct {
	mock.Mock
}

func (m *MockObjectGetter) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, *params.Bucket, *params.Key)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func TestS3Loader_Load(t *testing.T) {
	ctx := context.Background()
	body := gzipLines(t, []string{`{"id":"s3-1","name":"From S3","price":"5.00"}`})

	client := new(MockObjectGetter)
	client.On("GetObject", ctx, "catalog-bucket", "catalog/a.gz").
		Return(&s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil)
	client.On("GetObject", ctx, "catalog-bucket", "catalog/missing.gz").
		Return(nil, errors.New("NoSuchKey"))

	loader := newS3Loader(client, "catalog-bucket", zerolog.Nop())

	products, err := loader.Load(ctx, "catalog/a.gz")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "From S3", products[0].Name)

	_, err = loader.Load(ctx, "catalog/missing.gz")
	assert.ErrorContains(t, err, "NoSuchKey")
}

type stubLoader struct {
	products map[string][]model.Product
	err      map[string]error
	calls    []string
}

func (s *stubLoader) Load(ctx context.Context, path string) ([]model.Product, error) {
	s.calls = append(s.calls, path)
	if err := s.err[path]; err != nil {
		return nil, err
	}
	return s.products[path], nil
}

func TestFallbackLoader(t *testing.T) {
	ctx := context.Background()
	s3Product := []model.Product{{ID: "s3"}}
	localProduct := []model.Product{{ID: "local"}}

	t.Run("S3 succeeds", func(t *testing.T) {
		s3l := &stubLoader{products: map[string][]model.Product{"catalog/a.gz": s3Product}}
		local := &stubLoader{}

		products, err := NewFallbackLoader(s3l, local, "catalog/", true, zerolog.Nop()).Load(ctx, "a.gz")

		require.NoError(t, err)
		assert.Equal(t, s3Product, products)
		assert.Empty(t, local.calls)
	})

	t.Run("S3 fails, local used", func(t *testing.T) {
		s3l := &stubLoader{err: map[string]error{"catalog/a.gz": errors.New("access denied")}}
		local := &stubLoader{products: map[string][]model.Product{"a.gz": localProduct}}

		products, err := NewFallbackLoader(s3l, local, "catalog/", true, zerolog.Nop()).Load(ctx, "a.gz")

		require.NoError(t, err)
		assert.Equal(t, localProduct, products)
	})

	t.Run("S3 disabled", func(t *testing.T) {
		s3l := &stubLoader{}
		local := &stubLoader{products: map[string][]model.Product{"a.gz": localProduct}}

		products, err := NewFallbackLoader(s3l, local, "catalog/", false, zerolog.Nop()).Load(ctx, "a.gz")

		require.NoError(t, err)
		assert.Equal(t, localProduct, products)
		assert.Empty(t, s3l.calls)
	})

	t.Run("No S3 loader", func(t *testing.T) {
		local := &stubLoader{products: map[string][]model.Product{"a.gz": localProduct}}

		products, err := NewFallbackLoader(nil, local, "", true, zerolog.Nop()).Load(ctx, "a.gz")

		require.NoError(t, err)
		assert.Equal(t, localProduct, products)
	})
}

func TestDecode_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lines := strings.Repeat(`{"id":"x","name":"X","price":"1"}`+"\n", 10_000)
	_, err := decode(ctx, strings.NewReader(lines), "test")

	assert.ErrorIs(t, err, context.Canceled)
}
