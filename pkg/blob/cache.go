package blob

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/catalog-ingest/ingest-service/pkg/domain"
	log "github.com/sirupsen/logrus"
)

// ClientLoader creates an S3 client for region. An empty region means the
// default region of the environment.
type ClientLoader func(ctx context.Context, region string) (domain.S3API, error)

// ClientCache keeps one S3 client per region for the life of the process.
type ClientCache struct {
	m     sync.Map
	mutex sync.Mutex
	load  ClientLoader
}

func NewClientCache(loader ClientLoader) *ClientCache {
	return &ClientCache{
		load: loader,
	}
}

func (c *ClientCache) GetOrLoad(ctx context.Context, region string) (domain.S3API, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if client, found := c.m.Load(region); found {
		return client.(domain.S3API), nil
	}

	client, err := c.load(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("error loading S3 client for region %q: %w", region, err)
	}
	c.m.Store(region, client)
	return client, nil
}

// DefaultLoader loads the shared AWS configuration for the requested region.
func DefaultLoader(ctx context.Context, region string) (domain.S3API, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	log.WithField("region", cfg.Region).Info("using S3 client for region")
	return s3.NewFromConfig(cfg), nil
}

// StaticLoader always returns client, whatever the region.
func StaticLoader(client domain.S3API) ClientLoader {
	return func(ctx context.Context, region string) (domain.S3API, error) {
		return client, nil
	}
}
