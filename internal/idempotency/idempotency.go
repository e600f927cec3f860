package idempotency

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	redisadapter "github.com/robertarktes/event-pass-gate/internal/adapters/redis"
	"github.com/robertarktes/event-pass-gate/internal/domain"
)

const lockTTL = 30 * time.Second

// ErrInFlight is returned by Begin while another request holds the key.
var ErrInFlight = errors.Mark(errors.New("request with this idempotency key is in progress"), domain.ErrConflict)

type ResponseStore interface {
	Load(ctx context.Context, key string) (*redisadapter.CachedResponse, error)
	Save(ctx context.Context, key string, resp redisadapter.CachedResponse, ttl time.Duration) error
}

type Locker interface {
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) error
}

type Idempotency struct {
	store ResponseStore
	locks Locker
	ttl   time.Duration
}

func NewIdempotency(store ResponseStore, locks Locker, ttl time.Duration) *Idempotency {
	return &Idempotency{store: store, locks: locks, ttl: ttl}
}

type Response struct {
	Status      int
	ContentType string
	Result      []byte
}

// Reservation is held between Begin and Complete or Abort.
type Reservation struct {
	key   string
	owner string
}

// Begin returns the stored response for key when there is one. Otherwise it
// reserves key for the caller, who must finish with Complete or Abort.
func (i *Idempotency) Begin(ctx context.Context, key string) (*Response, *Reservation, error) {
	stored, err := i.store.Load(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	if stored != nil {
		return &Response{Status: stored.Status, ContentType: stored.ContentType, Result: stored.Result}, nil, nil
	}

	res := &Reservation{key: key, owner: uuid.NewString()}
	ok, err := i.locks.AcquireLock(ctx, "idemp:"+key, res.owner, lockTTL)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrInFlight
	}
	return nil, res, nil
}

// Complete stores resp for replay and releases the reservation.
func (i *Idempotency) Complete(ctx context.Context, res *Reservation, resp Response) error {
	err := i.store.Save(ctx, res.key, redisadapter.CachedResponse{
		Status:      resp.Status,
		ContentType: resp.ContentType,
		Result:      resp.Result,
	}, i.ttl)
	return errors.CombineErrors(err, i.Abort(ctx, res))
}

// Abort releases the reservation without storing anything.
func (i *Idempotency) Abort(ctx context.Context, res *Reservation) error {
	return i.locks.ReleaseLock(ctx, "idemp:"+res.key, res.owner)
}
