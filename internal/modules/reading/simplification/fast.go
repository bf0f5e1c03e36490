package simplification

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/bookbridge/core/internal/models"
	redisc "github.com/bookbridge/core/internal/pkg/redis"
)

const fastKeyPrefix = "bb:simp:"

// FastLayer is a read-through copy of the durable store. A miss returns
// (nil, nil).
type FastLayer interface {
	Get(ctx context.Context, key Key) (*models.SimplificationModel, error)
	Set(ctx context.Context, row *models.SimplificationModel, ttl time.Duration) error
	Del(ctx context.Context, key Key) error
	DelBook(ctx context.Context, bookID string) error
	Flush(ctx context.Context) error
}

// RedisFast stores rows as JSON strings.
type RedisFast struct {
	rc *redisc.Client
}

func NewRedisFast(rc *redisc.Client) *RedisFast {
	return &RedisFast{rc: rc}
}

func fastKey(key Key) string { return fastKeyPrefix + key.String() }

func (r *RedisFast) Get(ctx context.Context, key Key) (*models.SimplificationModel, error) {
	data, err := r.rc.GetBytes(ctx, fastKey(key))
	if err != nil || data == nil {
		return nil, err
	}
	var row models.SimplificationModel
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *RedisFast) Set(ctx context.Context, row *models.SimplificationModel, ttl time.Duration) error {
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return r.rc.Set(ctx, fastKey(KeyOf(row)), data, ttl)
}

func (r *RedisFast) Del(ctx context.Context, key Key) error {
	return r.rc.Del(ctx, fastKey(key))
}

// DelBook relies on Key.String escaping glob metacharacters in the book id.
func (r *RedisFast) DelBook(ctx context.Context, bookID string) error {
	_, err := r.rc.ScanDel(ctx, fastKeyPrefix+url.PathEscape(bookID)+"/*")
	return err
}

func (r *RedisFast) Flush(ctx context.Context) error {
	_, err := r.rc.ScanDel(ctx, fastKeyPrefix+"*")
	return err
}

type noFast struct{}

func (noFast) Get(context.Context, Key) (*models.SimplificationModel, error) { return nil, nil }
func (noFast) Set(context.Context, *models.SimplificationModel, time.Duration) error {
	return nil
}
func (noFast) Del(context.Context, Key) error        { return nil }
func (noFast) DelBook(context.Context, string) error { return nil }
func (noFast) Flush(context.Context) error           { return nil }
