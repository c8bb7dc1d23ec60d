package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"matwana-controlplane/pkg/errutil"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// Role values mirror the users.user_type column.
const (
	RoleBusiness   = "business"
	RoleFreelancer = "freelancer"
	RoleAdmin      = "admin"
)

// Principal is the authenticated caller. Authorization beyond the coarse role
// gate (ownership checks and the like) belongs to the handlers.
type Principal struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Resolver turns an opaque bearer credential into a Principal.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*Principal, error)
}

var Module = fx.Module("identity", fx.Provide(NewRedisResolver))

// RedisResolver looks bearer tokens up in the shared session store. Sessions
// are written by the auth edge (out of process); this side only reads.
type RedisResolver struct {
	rdb *redis.Client
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisResolver(p Params) Resolver {
	return &RedisResolver{rdb: p.Redis}
}

func sessionKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

func (r *RedisResolver) Resolve(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, errutil.Unauthorized("no token provided")
	}

	raw, err := r.rdb.Get(ctx, sessionKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errutil.Unauthorized("invalid or expired token")
		}
		return nil, errutil.Internal("session lookup failed", errutil.WithErr(err))
	}

	var p Principal
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, errutil.Internal("malformed session record", errutil.WithErr(err))
	}

	return &p, nil
}

// StoreSession writes a session record, used by the auth edge and by tests.
func (r *RedisResolver) StoreSession(ctx context.Context, token string, p Principal, ttl time.Duration) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, sessionKey(token), raw, ttl).Err()
}
