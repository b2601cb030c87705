// Package redisledger keeps the per-user refresh token ledger in Redis.
// It is an alternative to the relational ledger for deployments that want
// token state out of the main database.
package redisledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"resumehub/internal/domain/models"
	"resumehub/internal/storage"
)

const keyPrefix = "token_storage:"

// rotateScript swaps the stored token in place, keeping ip and created_at.
// Running it as a script makes rotation a single atomic step, so two
// near-expiry requests from the same user converge on one winning token.
var rotateScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
  return false
end
local doc = cjson.decode(v)
doc['refresh_token'] = ARGV[1]
doc['updated_at'] = tonumber(ARGV[2])
local out = cjson.encode(doc)
redis.call('SET', KEYS[1], out)
return out
`)

type Ledger struct {
	client *redis.Client
}

type record struct {
	Token     string `json:"refresh_token"`
	IP        string `json:"ip"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, addr, password string, db int) (*Ledger, error) {
	const op = "storage.redisledger.New"

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Ledger{client: client}, nil
}

// NewWithClient wraps an existing client. Used by tests with miniredis.
func NewWithClient(client *redis.Client) *Ledger {
	return &Ledger{client: client}
}

func (l *Ledger) Close() error {
	return l.client.Close()
}

func (l *Ledger) RefreshToken(ctx context.Context, userID int64) (*models.RefreshToken, error) {
	const op = "storage.redisledger.RefreshToken"

	raw, err := l.client.Get(ctx, key(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return decode(op, userID, []byte(raw))
}

// SaveRefreshToken creates the record with SETNX semantics: exactly one of
// any number of concurrent creators wins, the rest get ErrTokenExists.
func (l *Ledger) SaveRefreshToken(ctx context.Context, userID int64, token string, ip string) (*models.RefreshToken, error) {
	const op = "storage.redisledger.SaveRefreshToken"

	now := time.Now()
	rec := record{
		Token:     token,
		IP:        ip,
		CreatedAt: now.Unix(),
		UpdatedAt: now.Unix(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ok, err := l.client.SetNX(ctx, key(userID), raw, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrTokenExists)
	}
	return decode(op, userID, raw)
}

func (l *Ledger) RotateRefreshToken(ctx context.Context, userID int64, token string) (*models.RefreshToken, error) {
	const op = "storage.redisledger.RotateRefreshToken"

	raw, err := rotateScript.Run(ctx, l.client,
		[]string{key(userID)},
		token, time.Now().Unix(),
	).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrTokenNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return decode(op, userID, []byte(raw))
}

func key(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}

func decode(op string, userID int64, raw []byte) (*models.RefreshToken, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &models.RefreshToken{
		UserID:    userID,
		Token:     rec.Token,
		IP:        rec.IP,
		CreatedAt: time.Unix(rec.CreatedAt, 0),
		UpdatedAt: time.Unix(rec.UpdatedAt, 0),
	}, nil
}
