package cache_test

import (
	"github.com/Brownie44l1/xray-api/internal/cache"
	"github.com/Brownie44l1/xray-api/internal/pipeline"
)

var _ pipeline.Cache = (*cache.RedisCache)(nil)
