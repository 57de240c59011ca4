package syncengine

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/matrixgo/sdk/crypto"
	"github.com/matrixgo/sdk/internal/clog"
	"github.com/matrixgo/sdk/keys"
	"github.com/matrixgo/sdk/mxapi"
	"github.com/matrixgo/sdk/sdkerr"
	"github.com/matrixgo/sdk/store"
)

var log = clog.For("syncengine")

// Config bundles the sync loop's tunables (§4.E, §5).
type Config struct {
	BackgroundSync    bool
	SyncErrorTimeout  time.Duration
	LongPollTimeoutMs int
}

func (c Config) withDefaults() Config {
	if c.SyncErrorTimeout == 0 {
		c.SyncErrorTimeout = 5 * time.Second
	}
	if c.LongPollTimeoutMs == 0 {
		c.LongPollTimeoutMs = 30000
	}
	return c
}

// Engine drives the incremental sync loop against a MatrixApi, updating
// Rooms/Session/the device-key Tracker/Encryption and firing Hooks. It
// owns no room/event state itself (§3 Ownership: the Client owns Rooms).
type Engine struct {
	api    mxapi.MatrixApi
	db     store.Database // nil is valid: sync proceeds without persistence
	rooms  Rooms
	sess   Session
	tracker *keys.Tracker
	enc    crypto.Encryption
	hooks  Hooks
	cfg    Config
	now    func() time.Time
	metrics *metrics

	sf           singleflight.Group
	firstSync    bool
	disposed     bool
	disposeOnce  bool
}

// New constructs an Engine. reg may be nil to skip metrics registration.
func New(api mxapi.MatrixApi, db store.Database, rooms Rooms, sess Session, tracker *keys.Tracker, enc crypto.Encryption, hooks Hooks, cfg Config, reg prometheus.Registerer) *Engine {
	if enc == nil {
		enc = crypto.Disabled{}
	}
	return &Engine{
		api: api, db: db, rooms: rooms, sess: sess, tracker: tracker, enc: enc,
		hooks: hooks, cfg: cfg.withDefaults(), now: time.Now,
		metrics: newMetrics(reg),
	}
}

// Dispose sets the disposed flag; the loop checks it at every resume point
// after an await and bails without emitting further (§5 Cancellation).
func (e *Engine) Dispose() { e.disposed = true }

func (e *Engine) IsDisposed() bool { return e.disposed }

// OneShotSync performs exactly one sync pass and returns. Both this and
// the background loop funnel through the same singleflight guard so a
// caller driving oneShotSync while the background loop is mid-pass simply
// joins the in-flight pass (§5 Sync reentrancy).
func (e *Engine) OneShotSync(ctx context.Context) error {
	if !e.sess.IsLoggedIn() || e.disposed {
		return nil
	}
	_, err, _ := e.sf.Do("sync", func() (interface{}, error) {
		return nil, e.syncOnce(ctx)
	})
	return err
}

// RunBackground starts the re-entrant-safe background sync loop: each
// iteration only schedules a follow-up once the previous has fully
// completed and the client is both logged in and not disposed (§5).
func (e *Engine) RunBackground(ctx context.Context) {
	for {
		if e.disposed || !e.sess.IsLoggedIn() {
			return
		}
		err := e.OneShotSync(ctx)
		if e.disposed {
			return
		}
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.cfg.SyncErrorTimeout):
			}
		}
		if !e.cfg.BackgroundSync {
			return
		}
	}
}

// syncOnce performs the request-and-handle pass described in §4.E "Single
// pass".
func (e *Engine) syncOnce(ctx context.Context) (err error) {
	start := e.now()
	defer func() {
		e.metrics.syncDuration.Observe(e.now().Sub(start).Seconds())
		if err != nil {
			e.metrics.syncFailures.Inc()
		}
	}()

	since := e.sess.PrevBatch()
	timeoutMs := 0
	if since != "" {
		timeoutMs = e.cfg.LongPollTimeoutMs
	}

	resp, err := e.api.Sync(ctx, e.sess.SyncFilter(), since, timeoutMs)
	if e.disposed {
		return nil
	}
	if err != nil {
		return e.handleSyncFailure(ctx, err)
	}

	apply := func(ctx context.Context) error {
		e.handleSync(ctx, resp)

		if since != resp.NextBatch {
			if serr := e.sess.SetPrevBatch(ctx, resp.NextBatch); serr != nil {
				return serr
			}
		}
		sortRooms(e.rooms)
		if !e.firstSync {
			e.firstSync = true
			e.hooks.fireFirstSync()
		}
		if e.db != nil {
			_ = e.db.DeleteOldFiles(ctx, e.now().Add(-30*24*time.Hour))
		}
		return nil
	}

	if e.db != nil {
		err = e.db.Transaction(ctx, apply)
	} else {
		err = apply(ctx)
	}
	if e.disposed {
		return nil
	}
	if err != nil {
		return e.handleSyncFailure(ctx, err)
	}

	if e.tracker != nil {
		e.updateUserDeviceKeys(ctx)
	}
	if e.enc.Enabled() {
		_ = e.enc.OnSync(ctx)
	}
	return nil
}

// handleSyncFailure implements §4.E / §7 Failure semantics: protocol
// errors go to onError, M_UNKNOWN_TOKEN triggers an implicit logout,
// everything else becomes an SdkSyncError on onSyncError.
func (e *Engine) handleSyncFailure(ctx context.Context, err error) error {
	var mxErr *mxapi.MatrixException
	if errors.As(err, &mxErr) {
		if mxErr.Errcode == "M_UNKNOWN_TOKEN" {
			// ClearOnUnknownToken routes through client.clear(), which already
			// fires OnLoginStateChanged(false) — firing it again here would
			// violate S6 (LoggedOut emitted exactly once).
			e.sess.ClearOnUnknownToken(ctx)
			return err
		}
		e.hooks.fireError(sdkerr.Protocolf(mxErr.Errcode, mxErr.Error_))
		return err
	}
	e.hooks.fireSyncError(&SdkSyncError{Err: err})
	return err
}

// sortRooms is provided by the client package at construction via Rooms;
// the engine only needs to trigger a re-sort, not own the ordering policy
// (§4.G sortRoomsBy belongs to the Client façade). Engine calls back into
// Rooms if it implements Sortable.
type Sortable interface{ SortRooms() }

func sortRooms(r Rooms) {
	if s, ok := r.(Sortable); ok {
		s.SortRooms()
	}
}
