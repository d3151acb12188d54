package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Chaves usadas pelo resto do sistema. Invalidação é sempre por prefixo.
const (
	PrefixRotinas      = "routines:user:"
	PrefixShares       = "shares:user:"
	PrefixVinculos     = "care_links:user:"
	PrefixNotificacoes = "notifications:user:"
)

// Cache encapsula o Redis expondo apenas o contrato get/set/invalidate
// que os serviços conhecem.
type Cache struct {
	client     *redis.Client
	defaultTTL time.Duration
}

// New cria o colaborador de cache. client pode ser nil em testes;
// todas as operações viram no-op nesse caso.
func New(client *redis.Client, defaultTTL time.Duration) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &Cache{client: client, defaultTTL: defaultTTL}
}

// Get decodifica o valor JSON da chave em dest. Retorna false quando a
// chave não existe, expirou ou o payload não decodifica.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	if c == nil || c.client == nil {
		return false
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

// Set grava o valor como JSON com o TTL padrão. Falhas são ignoradas:
// cache é otimização, nunca fonte de verdade.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	if c == nil || c.client == nil {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, key, payload, c.defaultTTL).Err()
}

// InvalidatePrefix remove todas as chaves que começam com o prefixo.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) {
	if c == nil || c.client == nil {
		return
	}
	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		_ = c.client.Del(ctx, keys...).Err()
	}
}

// UserKey monta chave por usuário, ex.: routines:user:42.
func UserKey(prefix string, userID int64) string {
	return prefix + strconv.FormatInt(userID, 10)
}

// InvalidateUser apaga as entradas de um usuário para o prefixo dado.
func (c *Cache) InvalidateUser(ctx context.Context, prefix string, userID int64) {
	c.InvalidatePrefix(ctx, UserKey(prefix, userID))
}
