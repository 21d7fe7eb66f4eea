package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

func collect[T any](outCh <-chan T, errCh <-chan error) ([]T, error) {
	var items []T
	for it := range outCh {
		items = append(items, it)
	}
	return items, <-errCh
}

func TestDecodeJSONArray(t *testing.T) {
	r := strings.NewReader(`[{"name":"a","n":1},{"name":"b","n":2}]`)
	items, err := collect(DecodeJSONArray[item](context.Background(), r))
	require.NoError(t, err)
	assert.Equal(t, []item{{"a", 1}, {"b", 2}}, items)
}

func TestDecodeJSONArrayEmpty(t *testing.T) {
	items, err := collect(DecodeJSONArray[item](context.Background(), strings.NewReader(`[]`)))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDecodeJSONArrayNotAnArray(t *testing.T) {
	_, err := collect(DecodeJSONArray[item](context.Background(), strings.NewReader(`{"name":"a"}`)))
	assert.ErrorContains(t, err, "expected '['")
}

func TestDecodeJSONArrayTruncated(t *testing.T) {
	_, err := collect(DecodeJSONArray[item](context.Background(), strings.NewReader(`[{"name":"a"}`)))
	assert.Error(t, err)
}

func TestDecodeJSONArrayCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := collect(DecodeJSONArray[item](ctx, strings.NewReader(`[{"name":"a","n":1}]`)))
	assert.ErrorContains(t, err, "context cancelled")
}
