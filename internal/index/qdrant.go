package index

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/sortir-go/internal/config"
	"github.com/54b3r/sortir-go/internal/logging"
	"github.com/54b3r/sortir-go/internal/rag"
)

// Payload keys stored with every Qdrant point.
const (
	payloadText     = "text"
	payloadPosition = "position"
)

// metaModel is the collection metadata key recording the embedding model.
const metaModel = "embedding_model"

// versionSep separates the alias from the build timestamp in versioned
// collection names.
const versionSep = "_v"

// upsertBatchSize bounds the number of points per Upsert request.
const upsertBatchSize = 256

// pointNamespace seeds the deterministic UUIDv5 point IDs.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/54b3r/sortir-go/chunks"))

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string
	// Port is the Qdrant gRPC port (default: 6334).
	Port int
	// Collection is the alias searches query (default: sortir_events). Each
	// rebuild writes a versioned collection behind it.
	Collection string
	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string
	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantConfigFromEnv reads the QDRANT_* variables.
func QdrantConfigFromEnv() *QdrantConfig {
	return &QdrantConfig{
		Host:       config.String("QDRANT_HOST", "localhost"),
		Port:       config.Int("QDRANT_PORT", 6334),
		Collection: config.String("QDRANT_COLLECTION", "sortir_events"),
		APIKey:     config.String("QDRANT_API_KEY", ""),
		UseTLS:     config.Bool("QDRANT_TLS", false),
	}
}

// QdrantStore is the Qdrant-backed alternative to [Flat]. The configured
// collection name is an alias over a versioned collection that is rebuilt
// wholesale, never updated in place. It implements rag.Searcher.
type QdrantStore struct {
	client *qdrant.Client
	cfg    *QdrantConfig
}

// NewQdrantStore connects to Qdrant. The collection and its alias are
// created by [QdrantStore.Rebuild].
func NewQdrantStore(cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "sortir_events"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return &QdrantStore{client: client, cfg: cfg}, nil
}

// Collection returns the alias searches are issued against.
func (s *QdrantStore) Collection() string { return s.cfg.Collection }

// Rebuild loads chunks and their vectors, which must be parallel slices of
// equal dimension, produced by the embedding model named model into a fresh versioned collection and then points the
// configured collection name at it as an alias. Searches keep hitting the
// previous version until the alias swap, which Qdrant applies atomically.
// Superseded versions are dropped afterwards.
func (s *QdrantStore) Rebuild(ctx context.Context, model string, chunks []rag.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("qdrant: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	if len(vectors) == 0 {
		return fmt.Errorf("qdrant: nothing to index")
	}
	dim := len(vectors[0])
	alias := s.cfg.Collection
	target := versionedCollection(alias, time.Now())

	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: target,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim), //nolint:gosec // dimensions are bounded
			Distance: qdrant.Distance_Euclid,
		}),
		Metadata: qdrant.NewValueMap(map[string]any{metaModel: model}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", target, err)
	}

	if err := s.upsert(ctx, target, chunks, vectors, dim); err != nil {
		if derr := s.client.DeleteCollection(context.WithoutCancel(ctx), target); derr != nil {
			err = errors.Join(err, fmt.Errorf("qdrant: failed to drop partial collection %q: %w", target, derr))
		}
		return err
	}

	if err := s.swapAlias(ctx, alias, target); err != nil {
		return err
	}
	s.dropStale(ctx, alias, target)
	return nil
}

func (s *QdrantStore) upsert(ctx context.Context, collection string, chunks []rag.Chunk, vectors [][]float32, dim int) error {
	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(chunks))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			if len(vectors[i]) != dim {
				return fmt.Errorf("qdrant: chunk %d: %w", i, ErrDimensionMismatch)
			}
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(pointID(i, chunks[i]).String()),
				Vectors: qdrant.NewVectors(vectors[i]...),
				Payload: qdrant.NewValueMap(chunkPayload(i, chunks[i])),
			})
		}
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("qdrant: upsert failed: %w", err)
		}
	}
	return nil
}

// swapAlias points alias at target in a single UpdateAliases call. A plain
// collection still occupying the alias name, left by an older build, is
// dropped first since Qdrant cannot alias over it.
func (s *QdrantStore) swapAlias(ctx context.Context, alias, target string) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("qdrant: failed to list collections: %w", err)
	}
	if slices.Contains(collections, alias) {
		if err := s.client.DeleteCollection(ctx, alias); err != nil {
			return fmt.Errorf("qdrant: failed to drop legacy collection %q: %w", alias, err)
		}
	}

	aliases, err := s.client.ListAliases(ctx)
	if err != nil {
		return fmt.Errorf("qdrant: failed to list aliases: %w", err)
	}
	ops := aliasOperations(alias, target, slices.ContainsFunc(aliases, func(a *qdrant.AliasDescription) bool {
		return a.GetAliasName() == alias
	}))
	if err := s.client.UpdateAliases(ctx, ops); err != nil {
		return fmt.Errorf("qdrant: failed to point alias %q at %q: %w", alias, target, err)
	}
	return nil
}

// dropStale deletes every earlier version of alias. Failures only leave
// unreferenced collections behind, so they are logged and skipped.
func (s *QdrantStore) dropStale(ctx context.Context, alias, keep string) {
	log := logging.FromContext(ctx)
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		log.Warn("qdrant: failed to list collections for cleanup", slog.Any("error", err))
		return
	}
	for _, name := range staleVersions(alias, keep, collections) {
		if err := s.client.DeleteCollection(ctx, name); err != nil {
			log.Warn("qdrant: failed to drop superseded collection",
				slog.String("collection", name),
				slog.Any("error", err),
			)
			continue
		}
		log.Debug("qdrant: dropped superseded collection", slog.String("collection", name))
	}
}

// versionedCollection names the concrete collection built at t for alias.
func versionedCollection(alias string, t time.Time) string {
	return alias + versionSep + strconv.FormatInt(t.UnixNano(), 10)
}

// isVersionOf reports whether name was produced by versionedCollection for
// alias.
func isVersionOf(alias, name string) bool {
	rest, ok := strings.CutPrefix(name, alias+versionSep)
	if !ok || rest == "" {
		return false
	}
	_, err := strconv.ParseUint(rest, 10, 64)
	return err == nil
}

func staleVersions(alias, keep string, collections []string) []string {
	var stale []string
	for _, name := range collections {
		if name != keep && isVersionOf(alias, name) {
			stale = append(stale, name)
		}
	}
	return stale
}

func aliasOperations(alias, target string, exists bool) []*qdrant.AliasOperations {
	if !exists {
		return []*qdrant.AliasOperations{qdrant.NewAliasCreate(alias, target)}
	}
	return []*qdrant.AliasOperations{
		qdrant.NewAliasDelete(alias),
		qdrant.NewAliasCreate(alias, target),
	}
}

// Publish rebuilds the collection from a built index.
func (s *QdrantStore) Publish(ctx context.Context, f *Flat) error {
	return s.Rebuild(ctx, f.Info().Model, f.Chunks(), f.Vectors())
}

// Verify checks that the collection behind the alias holds points built by
// the model and vector size in c, and returns the point count. A missing,
// empty or incompatible collection is a *LoadError.
func (s *QdrantStore) Verify(ctx context.Context, c Compat) (uint64, error) {
	where := "qdrant:" + s.cfg.Collection
	info, err := s.client.GetCollectionInfo(ctx, s.cfg.Collection)
	if err != nil {
		return 0, &LoadError{Path: where, Reason: "collection unavailable", Err: err}
	}
	cc := info.GetConfig()
	dim := int(cc.GetParams().GetVectorsConfig().GetParams().GetSize()) //nolint:gosec // dimensions are bounded
	if err := c.check(where, cc.GetMetadata()[metaModel].GetStringValue(), dim); err != nil {
		return 0, err
	}

	n, err := s.Count(ctx)
	if err != nil {
		return 0, &LoadError{Path: where, Reason: "count points", Err: err}
	}
	if n == 0 {
		return 0, &LoadError{Path: where, Reason: "collection is empty, run sortir build"}
	}
	return n, nil
}

// Search returns the k nearest chunks ordered by increasing Euclidean
// distance, ties broken by insertion position.
func (s *QdrantStore) Search(ctx context.Context, query []float32, k int) ([]rag.SearchResult, error) {
	if k <= 0 {
		return []rag.SearchResult{}, nil
	}
	limit := uint64(k) //nolint:gosec // k is positive
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	results := make([]rag.SearchResult, 0, len(points))
	for _, p := range points {
		results = append(results, resultFromPoint(p))
	}
	sortResults(results)
	return results, nil
}

// Count returns the exact number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context) (uint64, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %w", err)
	}
	return n, nil
}

// Ping checks that the Qdrant server answers.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// pointID derives a stable UUIDv5 from the chunk position and text, so a
// rebuild from the same documents produces the same IDs.
func pointID(pos int, c rag.Chunk) uuid.UUID {
	return uuid.NewSHA1(pointNamespace, []byte(strconv.Itoa(pos)+"\x00"+c.Metadata.ID+"\x00"+c.Text))
}

func chunkPayload(pos int, c rag.Chunk) map[string]any {
	payload := map[string]any{
		payloadText:     c.Text,
		payloadPosition: int64(pos),
	}
	for k, v := range c.Metadata.Map() {
		payload[k] = v
	}
	return payload
}

func resultFromPoint(p *qdrant.ScoredPoint) rag.SearchResult {
	meta := make(map[string]string)
	var r rag.SearchResult
	for k, v := range p.GetPayload() {
		switch k {
		case payloadText:
			r.Chunk.Text = v.GetStringValue()
		case payloadPosition:
			r.Position = int(v.GetIntegerValue())
		default:
			meta[k] = v.GetStringValue()
		}
	}
	r.Chunk.Metadata = rag.MetadataFromMap(meta)
	r.Distance = p.GetScore()
	return r
}

func sortResults(results []rag.SearchResult) {
	slices.SortStableFunc(results, func(a, b rag.SearchResult) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Position, b.Position)
	})
}
