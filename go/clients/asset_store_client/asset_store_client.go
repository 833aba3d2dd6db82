package asset_store_client

import (
	"context"
	"fmt"
	"time"

	"github.com/mcdev12/caseroll/go/clients"
)

const (
	DefaultBaseURL = "http://localhost:8081/static/images"

	// AssetPathFormat is the per-key animation payload path.
	AssetPathFormat = "/gift_limited_%d.tgs"
)

// AssetStoreClient fetches compressed per-item animation payloads.
type AssetStoreClient struct {
	*clients.BaseClient
}

func NewAssetStoreClient(baseURL string, timeout time.Duration) *AssetStoreClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := &AssetStoreClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	client.SetHeader("Accept", "application/octet-stream")
	return client
}

// AssetPath returns the store path for a key.
func AssetPath(key int) string {
	return fmt.Sprintf(AssetPathFormat, key)
}

// Fetch downloads the raw payload for key. Non-2xx answers surface as
// *clients.StatusError.
func (c *AssetStoreClient) Fetch(ctx context.Context, key int) ([]byte, error) {
	return c.Get(ctx, AssetPath(key))
}
