package elasticsearch

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"
)

type Config struct {
	Addresses []string `yaml:"addresses"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
}

type Client struct {
	es     *elasticsearch.Client
	logger *zap.Logger
}

// BulkOperation 单条批量操作
type BulkOperation struct {
	Action   string                 `json:"action"` // index, create, update, delete
	Index    string                 `json:"index"`
	ID       string                 `json:"id"`
	Routing  string                 `json:"routing"`
	Document map[string]interface{} `json:"document"`
}

func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &Client{es: es, logger: log}, nil
}

// EnsureIndex 创建索引，已存在视为成功。mapping为nil时用ES默认动态映射
func (c *Client) EnsureIndex(ctx context.Context, indexName string, mapping map[string]interface{}) error {
	req := esapi.IndicesCreateRequest{Index: indexName}
	if mapping != nil {
		body, err := sonic.Marshal(mapping)
		if err != nil {
			return fmt.Errorf("failed to marshal mapping: %w", err)
		}
		req.Body = bytes.NewReader(body)
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && !strings.Contains(res.String(), "resource_already_exists_exception") {
		return fmt.Errorf("failed to create index: %s", res.String())
	}

	c.logger.Info("Index created or already exists", zap.String("index", indexName))
	return nil
}

// BulkWrite 组装NDJSON并执行_bulk
func (c *Client) BulkWrite(ctx context.Context, operations []BulkOperation) error {
	if len(operations) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, op := range operations {
		meta := map[string]interface{}{
			"_index": op.Index,
			"_id":    op.ID,
		}
		if op.Routing != "" {
			meta["routing"] = op.Routing
		}
		actionBytes, _ := sonic.Marshal(map[string]interface{}{op.Action: meta})
		buf.Write(actionBytes)
		buf.WriteByte('\n')

		// delete操作没有payload行
		if op.Action == "index" || op.Action == "create" || op.Action == "update" {
			if op.Document != nil {
				docBytes, _ := sonic.Marshal(op.Document)
				buf.Write(docBytes)
				buf.WriteByte('\n')
			}
		}
	}

	res, err := esapi.BulkRequest{Body: &buf}.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("bulk operation failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk operation error: %s", res.String())
	}

	c.logger.Debug("Bulk write operation completed",
		zap.Int("operations", len(operations)))

	return nil
}
