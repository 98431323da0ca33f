package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/120m4n/infovis/internal/logging"
	"github.com/120m4n/infovis/internal/metrics"
)

// ErrNotFound is returned by FindOne when no document matches.
var ErrNotFound = errors.New("document not found")

// ConnState is the state of the shared client.
type ConnState int

const (
	Disconnected ConnState = iota
	Connected
)

func (s ConnState) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Options describe how to reach MongoDB. URI, when set, wins over the
// host/port/credential fields.
type Options struct {
	URI                    string
	Host                   string
	Port                   int
	User                   string
	Password               string
	AuthDB                 string
	Database               string
	ServerSelectionTimeout time.Duration
}

// Mongo owns the single client shared by every request.
//
// Queries hold the read lock for their whole duration; Disconnect and
// Reconnect take the write lock, so an explicit disconnect waits for
// in-flight queries and a query never sees a half-closed client.
type Mongo struct {
	opts Options

	mu     sync.RWMutex
	state  ConnState
	client *mongo.Client
}

// NewMongo creates the store without connecting; the client is created on
// first use.
func NewMongo(opts Options) *Mongo {
	return &Mongo{opts: opts}
}

// clientOptions builds the driver options. An empty or invalid host/port
// falls back to the driver default of localhost:27017; credentials are only
// used when user, password and auth database are all set.
func clientOptions(o Options) *options.ClientOptions {
	opts := options.Client()
	if o.URI != "" {
		opts.ApplyURI(o.URI)
	} else {
		if o.Host != "" && o.Port > 0 && o.Port < 65536 {
			opts.SetHosts([]string{net.JoinHostPort(o.Host, strconv.Itoa(o.Port))})
		} else {
			opts.SetHosts([]string{"localhost:27017"})
		}
		if o.User != "" && o.Password != "" && o.AuthDB != "" {
			opts.SetAuth(options.Credential{
				Username:   o.User,
				Password:   o.Password,
				AuthSource: o.AuthDB,
			})
		}
	}
	if o.ServerSelectionTimeout > 0 {
		opts.SetServerSelectionTimeout(o.ServerSelectionTimeout)
	}
	return opts
}

// connectLocked must be called with mu held for writing.
func (m *Mongo) connectLocked(ctx context.Context) error {
	client, err := mongo.Connect(ctx, clientOptions(m.opts))
	if err != nil {
		return fmt.Errorf("error connecting to MongoDB: %w", err)
	}
	m.client = client
	m.state = Connected
	metrics.StoreConnects.Inc()
	metrics.StoreConnected.Set(1)
	logging.Info().Str("database", m.opts.Database).Msg("MongoDB client created")
	return nil
}

// disconnectLocked must be called with mu held for writing.
func (m *Mongo) disconnectLocked(ctx context.Context) error {
	if m.state == Disconnected {
		return nil
	}
	err := m.client.Disconnect(ctx)
	m.client = nil
	m.state = Disconnected
	metrics.StoreConnected.Set(0)
	if err != nil {
		return fmt.Errorf("error disconnecting from MongoDB: %w", err)
	}
	logging.Info().Msg("MongoDB client closed")
	return nil
}

// acquire returns the database handle with the read lock held, connecting
// first if needed. The caller must invoke release when the query is done.
func (m *Mongo) acquire(ctx context.Context) (db *mongo.Database, release func(), err error) {
	for {
		m.mu.RLock()
		if m.state == Connected {
			return m.client.Database(m.opts.Database), m.mu.RUnlock, nil
		}
		m.mu.RUnlock()

		m.mu.Lock()
		if m.state == Disconnected {
			if err := m.connectLocked(ctx); err != nil {
				m.mu.Unlock()
				return nil, nil, err
			}
		}
		m.mu.Unlock()
	}
}

// Connect creates the client if it does not exist yet.
func (m *Mongo) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Connected {
		return nil
	}
	return m.connectLocked(ctx)
}

// Disconnect closes the client, waiting for in-flight queries. The next query
// reconnects.
func (m *Mongo) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnectLocked(ctx)
}

// Reconnect tears the client down and creates a new one.
func (m *Mongo) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.disconnectLocked(ctx); err != nil {
		logging.Warn().Err(err).Msg("Error closing MongoDB client before reconnect")
	}
	return m.connectLocked(ctx)
}

// State reports the current connection state.
func (m *Mongo) State() ConnState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Close releases the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.Disconnect(ctx)
}

// HealthCheck pings the primary.
func (m *Mongo) HealthCheck(ctx context.Context) error {
	db, release, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return db.Client().Ping(ctx, nil)
}

// Aggregate runs pipeline against collection and decodes every result.
func (m *Mongo) Aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline) (results []bson.M, err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreQuery("aggregate", collection, time.Since(start), err) }()

	db, release, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	cursor, err := db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("error running aggregation on %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	results = []bson.M{}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("error decoding aggregation on %s: %w", collection, err)
	}
	return results, nil
}

// Find returns every document matching filter. A nil projection returns whole
// documents.
func (m *Mongo) Find(ctx context.Context, collection string, filter, projection bson.D) (results []bson.M, err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreQuery("find", collection, time.Since(start), err) }()

	db, release, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	findOptions := options.Find()
	if projection != nil {
		findOptions.SetProjection(projection)
	}
	if filter == nil {
		filter = bson.D{}
	}

	cursor, err := db.Collection(collection).Find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("error finding documents in %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	results = []bson.M{}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("error decoding documents from %s: %w", collection, err)
	}
	return results, nil
}

// FindOne returns the first document matching filter or ErrNotFound.
func (m *Mongo) FindOne(ctx context.Context, collection string, filter bson.D) (doc bson.M, err error) {
	start := time.Now()
	defer func() {
		var recorded error
		if err != nil && !errors.Is(err, ErrNotFound) {
			recorded = err
		}
		metrics.RecordStoreQuery("find_one", collection, time.Since(start), recorded)
	}()

	db, release, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	err = db.Collection(collection).FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error finding document in %s: %w", collection, err)
	}
	return doc, nil
}

// Count returns the number of documents matching filter.
func (m *Mongo) Count(ctx context.Context, collection string, filter bson.D) (n int64, err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreQuery("count", collection, time.Since(start), err) }()

	db, release, err := m.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	if filter == nil {
		filter = bson.D{}
	}
	n, err = db.Collection(collection).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("error counting documents in %s: %w", collection, err)
	}
	return n, nil
}
