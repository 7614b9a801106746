package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"paperhands/internal/worker/config"
	"paperhands/pkg/database"
	"paperhands/pkg/elasticsearch"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var once sync.Once
var r *repositoryImpl

func New(cfg config.Config, logger *zap.Logger) Repository {
	once.Do(func() {
		r = &repositoryImpl{
			cfg:    cfg,
			logger: logger,
		}
		r.init()
	})
	return r
}

type repositoryImpl struct {
	cfg      config.Config
	logger   *zap.Logger
	db       *gorm.DB
	mainRdb  *redis.Client
	mq       *kafka.Writer
	esClient *elasticsearch.Client
}

func (r *repositoryImpl) init() {
	var err error
	r.db, err = database.InitPG(r.cfg.Postgres.DSN)

	if err != nil {
		panic(err)
	}

	// 初始化 Main RDB
	r.mainRdb = redis.NewClient(&redis.Options{
		Addr:     r.cfg.Redis.Address,
		Password: r.cfg.Redis.Password,
		DB:       r.cfg.Redis.DB,
		PoolSize: 20,
	})

	if err := r.mainRdb.Ping(context.Background()).Err(); err != nil {
		r.logger.Warn("failed to connect to redis, continue", zap.Error(err))
	}

	// Kafka为可选下游，brokers为空则跳过
	if strings.TrimSpace(r.cfg.Kafka.Brokers) != "" {
		brokers := strings.Split(r.cfg.Kafka.Brokers, ",")
		r.mq = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			BatchSize:    100,
			BatchBytes:   1024 * 1024, // 1MB
			Async:        true,
			RequiredAcks: kafka.RequireNone,
			Compression:  kafka.Snappy,
			MaxAttempts:  5,
			WriteTimeout: 500 * time.Millisecond,
		}
	} else {
		r.logger.Info("kafka brokers empty, skip kafka initialization")
	}

	// Elasticsearch同为可选
	if len(r.cfg.Elasticsearch.Addresses) > 0 {
		esCfg := elasticsearch.Config{
			Addresses: r.cfg.Elasticsearch.Addresses,
			Username:  r.cfg.Elasticsearch.Username,
			Password:  r.cfg.Elasticsearch.Password,
		}
		r.esClient, err = elasticsearch.NewClient(esCfg, r.logger)
		if err != nil {
			r.logger.Warn("failed to connect to elasticsearch, continue without it", zap.Error(err))
		} else if idx := r.cfg.Elasticsearch.ResultsIndexName; idx != "" {
			if err := r.esClient.EnsureIndex(context.Background(), idx, nil); err != nil {
				r.logger.Warn("failed to ensure results index", zap.String("index", idx), zap.Error(err))
			}
		}
	}
}

func (r *repositoryImpl) GetMainRDB() *redis.Client {
	return r.mainRdb
}

func (r *repositoryImpl) GetDB() *gorm.DB {
	return r.db
}

func (r *repositoryImpl) GetMQ() MQClient {
	return r.mq
}

func (r *repositoryImpl) GetElasticsearchClient() *elasticsearch.Client {
	return r.esClient
}

func (r *repositoryImpl) Close() error {
	if r.db != nil {
		sqlDB, _ := r.db.DB()
		sqlDB.Close()
	}
	if r.mainRdb != nil {
		r.mainRdb.Close()
	}
	if r.mq != nil {
		r.mq.Close()
	}
	return nil
}
