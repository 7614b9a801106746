package repository

import (
	"paperhands/pkg/elasticsearch"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"gorm.io/gorm"
)

type RedisClient = *redis.Client
type DBClient = *gorm.DB
type MQClient = *kafka.Writer

type Repository interface {
	//DB
	GetMainRDB() RedisClient
	GetDB() DBClient
	GetMQ() MQClient
	GetElasticsearchClient() *elasticsearch.Client
	Close() error
}
