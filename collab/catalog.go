package collab

import (
	"context"
	"fmt"
	"time"

	"ordersaga/cache"
)

// ProductVariant 商品目录服务返回的规格信息
type ProductVariant struct {
	VariantID int64  `json:"variantId"`
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	// Price 单价，单位为最小货币单位（分）
	Price int64 `json:"price"`
	Stock int   `json:"stock"`
}

// CatalogClientConfig 商品目录客户端配置
type CatalogClientConfig struct {
	ClientConfig
	// CacheSize 商品信息缓存容量，默认 1024
	CacheSize int
	// CacheTTL 商品信息缓存存活时间，默认 5 分钟
	CacheTTL time.Duration
}

// CatalogClient 商品目录客户端，规格查询走进程内缓存。
type CatalogClient struct {
	http  *httpClient
	cache *cache.Cache
}

// NewCatalogClient 创建商品目录客户端
func NewCatalogClient(cfg CatalogClientConfig) *CatalogClient {
	if cfg.Name == "" {
		cfg.Name = "catalog"
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &CatalogClient{
		http: newHTTPClient(cfg.ClientConfig),
		cache: cache.New(cache.Config{
			Name:    cfg.Name + ".variants",
			MaxSize: cfg.CacheSize,
			TTL:     cfg.CacheTTL,
		}),
	}
}

// GetVariant 查询商品规格，缓存命中时不发起远程调用
//
// 参数:
//   - ctx: 上下文
//   - variantID: 规格 id
//
// 返回:
//   - *ProductVariant: 规格信息
//   - error: 规格不存在时错误码为 NOT_FOUND
func (c *CatalogClient) GetVariant(ctx context.Context, variantID int64) (*ProductVariant, error) {
	key := fmt.Sprintf("variant:%d", variantID)
	if v, ok := c.cache.Get(key); ok {
		return v.(*ProductVariant), nil
	}

	var variant ProductVariant
	path := fmt.Sprintf("/api/v1/variants/%d", variantID)
	if err := c.http.getJSON(ctx, path, &variant); err != nil {
		return nil, err
	}
	c.cache.Set(key, &variant)
	return &variant, nil
}

// InvalidateVariant 主动失效规格缓存，库存变更后调用
func (c *CatalogClient) InvalidateVariant(variantID int64) {
	c.cache.Delete(fmt.Sprintf("variant:%d", variantID))
}

// CacheStats 返回缓存统计，用于观测命中率
func (c *CatalogClient) CacheStats() cache.Stats {
	return c.cache.Stats()
}
