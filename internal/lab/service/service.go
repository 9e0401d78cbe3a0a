package service

import (
	"time"

	"github.com/Async-Ng/ElecLab-sub001/internal/config"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/events"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/repository"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/workflow"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Services 服务集合
type Services struct {
	Request *RequestService
	Catalog *CatalogService
}

// NewServices 创建服务集合
func NewServices(repos *repository.Repositories, rdb *redis.Client, publisher events.Publisher, cfg *config.Config, logger *zap.Logger) *Services {
	policy := workflow.Policy{AllowSelfReview: cfg.Workflow.AllowSelfReview}

	catalogTTL := time.Duration(cfg.Cache.CatalogTTLSeconds) * time.Second

	return &Services{
		Request: NewRequestService(repos.Request,
			WithPolicy(policy),
			WithMinDescriptionLength(cfg.Workflow.MinDescriptionLength),
			WithPublisher(publisher),
			WithLogger(logger.Named("request")),
		),
		Catalog: NewCatalogService(repos.Catalog, rdb, catalogTTL, logger.Named("catalog")),
	}
}
