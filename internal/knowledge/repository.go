package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const documentKeyPrefix = "kb:docs:"

// globalKey stores documents shared by every org.
const globalKey = documentKeyPrefix + "_global"

// RedisDocumentRepository stores raw documents in Redis lists, one per org.
type RedisDocumentRepository struct {
	client *redis.Client
}

var _ DocumentRepository = (*RedisDocumentRepository)(nil)

func NewRedisDocumentRepository(client *redis.Client) *RedisDocumentRepository {
	if client == nil {
		panic("knowledge: redis client cannot be nil")
	}
	return &RedisDocumentRepository{client: client}
}

func documentKey(orgID string) string {
	if orgID == "" {
		return globalKey
	}
	return documentKeyPrefix + orgID
}

func (r *RedisDocumentRepository) AppendDocuments(ctx context.Context, orgID string, docs []string) error {
	if len(docs) == 0 {
		return nil
	}
	args := make([]interface{}, len(docs))
	for i, d := range docs {
		args[i] = d
	}
	if err := r.client.RPush(ctx, documentKey(orgID), args...).Err(); err != nil {
		return fmt.Errorf("knowledge: push documents: %w", err)
	}
	return nil
}

func (r *RedisDocumentRepository) GetDocuments(ctx context.Context, orgID string) ([]string, error) {
	docs, err := r.client.LRange(ctx, documentKey(orgID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("knowledge: get documents: %w", err)
	}
	return docs, nil
}

// LoadAll returns every org's documents keyed by org id ("" for global).
func (r *RedisDocumentRepository) LoadAll(ctx context.Context) (map[string][]string, error) {
	var cursor uint64
	result := make(map[string][]string)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, documentKeyPrefix+"*", 50).Result()
		if err != nil {
			return nil, fmt.Errorf("knowledge: scan document keys: %w", err)
		}
		for _, key := range keys {
			orgID := strings.TrimPrefix(key, documentKeyPrefix)
			if key == globalKey {
				orgID = ""
			}
			docs, err := r.client.LRange(ctx, key, 0, -1).Result()
			if err != nil {
				return nil, fmt.Errorf("knowledge: fetch documents %s: %w", key, err)
			}
			result[orgID] = docs
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return result, nil
}
