package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lender_directory/internal/domain"
	"lender_directory/internal/shared"
	"lender_directory/internal/storage/memory"
)

func TestStore_MemoryAndUnknown(t *testing.T) {
	ctx := context.Background()

	b, err := Store(ctx, shared.Config{StoreDriver: "memory"})
	require.NoError(t, err)
	assert.Nil(t, b.Ready)
	_, err = b.Store.Insert(ctx, domain.TableLenders, domain.Row{"name": "Acme"})
	require.NoError(t, err)
	b.Close()

	_, err = Store(ctx, shared.Config{StoreDriver: "sqlite"})
	assert.ErrorContains(t, err, "unknown STORE_DRIVER")
}

func TestStore_RestNeedsKey(t *testing.T) {
	_, err := Store(context.Background(), shared.Config{StoreDriver: "rest", RestURL: "http://x"})
	assert.Error(t, err)

	b, err := Store(context.Background(), shared.Config{StoreDriver: "rest", RestURL: "http://x", RestKey: "k"})
	require.NoError(t, err)
	assert.NotNil(t, b.Store)
}

func TestBlobsAndCache_DefaultToMemory(t *testing.T) {
	ctx := context.Background()
	blobs, err := Blobs(ctx, shared.Config{})
	require.NoError(t, err)
	assert.IsType(t, &memory.Blobs{}, blobs)

	_, err = Blobs(ctx, shared.Config{BlobDriver: "gcs"})
	assert.Error(t, err)

	assert.IsType(t, &memory.Cache{}, Cache(ctx, shared.Config{}))
}
