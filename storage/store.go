package storage

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"eventAwareness/config"
	"eventAwareness/core"
)

// InsightItem is one searchable insight document derived from a run: a zone's
// vision summary or its fused assessment, flattened to text.
type InsightItem struct {
	Zone    string `json:"zone"`
	Source  string `json:"source"` // "vision" or "fusion"
	Text    string `json:"text"`
	Summary string `json:"summary"`
}

// InsightHit is one search result with its similarity score.
type InsightHit struct {
	Score   float64 `json:"score"`
	Zone    string  `json:"zone"`
	Source  string  `json:"source"`
	Text    string  `json:"text"`
	Summary string  `json:"summary"`
}

// InsightStore abstracts the storage backend for zone insight search.
type InsightStore interface {
	Upsert(runID string, items []InsightItem) int
	Search(runID string, query string, topK int) []InsightHit
}

// NewInsightStore picks a backend from the STORE environment variable:
// "pgvector", "milvus", or anything else for the in-memory store. Backends
// that need embeddings fall back to memory when the API is not configured
// or the backend cannot be reached.
func NewInsightStore(cfg *config.Config) InsightStore {
	storeKind := strings.ToLower(strings.TrimSpace(os.Getenv("STORE")))
	switch storeKind {
	case "milvus":
		if !cfg.HasValidAPI() {
			log.Println("Warning: API configuration required for Milvus store, falling back to memory store")
			return newMemoryInsightStore()
		}
		s, err := newMilvusInsightStore(cfg)
		if err != nil {
			log.Printf("Warning: Failed to initialize Milvus store (%v), falling back to memory store", err)
			return newMemoryInsightStore()
		}
		return s
	case "pgvector":
		if !cfg.HasValidAPI() {
			log.Println("Warning: API configuration required for PgVector store, falling back to memory store")
			return newMemoryInsightStore()
		}
		s, err := newPgInsightStore(cfg)
		if err != nil {
			log.Printf("Warning: Failed to initialize PgVector store (%v), falling back to memory store", err)
			return newMemoryInsightStore()
		}
		return s
	default:
		return newMemoryInsightStore()
	}
}

// ---------------- Memory implementation (kept for fallback) ----------------

type insightDoc struct {
	Zone    string
	Source  string
	Text    string
	Summary string
	Embed   map[string]float64 // term -> weight
}

type MemoryInsightStore struct {
	mu   sync.RWMutex
	docs map[string][]insightDoc // runID -> docs
}

func newMemoryInsightStore() *MemoryInsightStore {
	return &MemoryInsightStore{docs: map[string][]insightDoc{}}
}

func (s *MemoryInsightStore) Upsert(runID string, items []InsightItem) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	embeds := make([]insightDoc, 0, len(items))
	for _, it := range items {
		vec := embedText(strings.ToLower(it.Text + " " + it.Summary))
		embeds = append(embeds, insightDoc{Zone: it.Zone, Source: it.Source, Text: it.Text, Summary: it.Summary, Embed: vec})
	}
	s.docs[runID] = embeds
	return len(embeds)
}

func (s *MemoryInsightStore) Search(runID string, query string, topK int) []InsightHit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.docs[runID]
	qv := embedText(strings.ToLower(query))
	type scored struct {
		i     int
		score float64
	}
	scores := make([]scored, 0, len(docs))
	for i, d := range docs {
		scores = append(scores, scored{i, cosine(qv, d.Embed)})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if topK <= 0 || topK > len(scores) {
		topK = min(len(scores), 5)
	}
	hits := make([]InsightHit, 0, topK)
	for _, sc := range scores[:topK] {
		d := docs[sc.i]
		hits = append(hits, InsightHit{Score: sc.score, Zone: d.Zone, Source: d.Source, Text: d.Text, Summary: d.Summary})
	}
	return hits
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

func embedText(text string) map[string]float64 {
	toks := tokenize(text)
	m := map[string]float64{}
	for _, t := range toks {
		m[t] += 1
	}
	// L2 normalize
	var sum float64
	for _, v := range m {
		sum += v * v
	}
	if sum == 0 {
		return m
	}
	norm := math.Sqrt(sum)
	for k, v := range m {
		m[k] = v / norm
	}
	return m
}

func cosine(a, b map[string]float64) float64 {
	var dot float64
	for k, va := range a {
		if vb, ok := b[k]; ok {
			dot += va * vb
		}
	}
	return dot
}

// ---------------- Shared embedding client ----------------

const embeddingDim = 1536

type embedder struct {
	cli   *openai.Client
	model string
}

func newEmbedder(cfg *config.Config) *embedder {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &embedder{cli: openai.NewClientWithConfig(clientConfig), model: cfg.EmbeddingModel}
}

func (e *embedder) embed(text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	}
	resp, err := e.cli.CreateEmbeddings(context.Background(), req)
	if err != nil {
		return nil, fmt.Errorf("embedding API failed: %v", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return resp.Data[0].Embedding, nil
}

// ---------------- PgVector implementation ----------------

type PgInsightStore struct {
	mu   sync.Mutex
	conn *pgx.Conn
	oa   *embedder
}

func newPgInsightStore(cfg *config.Config) (*PgInsightStore, error) {
	dbURL := cfg.PostgresURL
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		host := os.Getenv("POSTGRES_HOST")
		if host == "" {
			host = "localhost"
		}
		port := os.Getenv("POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		user := os.Getenv("POSTGRES_USER")
		if user == "" {
			user = "postgres"
		}
		password := os.Getenv("POSTGRES_PASSWORD")
		if password == "" {
			password = "postgres"
		}
		dbname := os.Getenv("POSTGRES_DB")
		if dbname == "" {
			dbname = "eventawareness"
		}
		dbURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, password, host, port, dbname)
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PgInsightStore{conn: conn, oa: newEmbedder(cfg)}
	if err := s.ensureTable(); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *PgInsightStore) ensureTable() error {
	ctx := context.Background()

	if _, err := s.conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	tableQuery := `
		CREATE TABLE IF NOT EXISTS zone_insights (
			id SERIAL PRIMARY KEY,
			run_id VARCHAR(255) NOT NULL,
			zone VARCHAR(255) NOT NULL,
			source VARCHAR(32) NOT NULL,
			text TEXT NOT NULL,
			summary TEXT,
			embedding vector(1536),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(run_id, zone, source)
		);
	`
	if _, err := s.conn.Exec(ctx, tableQuery); err != nil {
		return fmt.Errorf("failed to create zone_insights table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_zone_insights_run_id ON zone_insights(run_id);",
		"CREATE INDEX IF NOT EXISTS idx_zone_insights_zone ON zone_insights(zone);",
	}
	for _, indexQuery := range indexes {
		if _, err := s.conn.Exec(ctx, indexQuery); err != nil {
			log.Printf("Warning: failed to create index: %v", err)
		}
	}

	if err := s.createVectorIndex(); err != nil {
		log.Printf("Warning: failed to create vector index: %v", err)
	}
	return nil
}

// createVectorIndex builds an ivfflat cosine index sized to the row count.
// An empty table is left unindexed; ivfflat needs data to train on.
func (s *PgInsightStore) createVectorIndex() error {
	ctx := context.Background()

	var count int
	if err := s.conn.QueryRow(ctx, "SELECT COUNT(*) FROM zone_insights WHERE embedding IS NOT NULL").Scan(&count); err != nil {
		return fmt.Errorf("failed to count insights: %w", err)
	}
	if count == 0 {
		return nil
	}

	lists := 100
	if count > 10000 {
		lists = count / 100
		if lists > 1000 {
			lists = 1000
		}
	} else if count < 1000 {
		lists = 10
	}

	if _, err := s.conn.Exec(ctx, "DROP INDEX IF EXISTS idx_zone_insights_embedding;"); err != nil {
		log.Printf("Warning: failed to drop existing vector index: %v", err)
	}
	indexQuery := fmt.Sprintf(`
		CREATE INDEX idx_zone_insights_embedding
		ON zone_insights
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = %d);
	`, lists)
	if _, err := s.conn.Exec(ctx, indexQuery); err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	return nil
}

func (s *PgInsightStore) Upsert(runID string, items []InsightItem) int {
	if len(items) == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := context.Background()
	successCount := 0
	for _, item := range items {
		embedding, err := s.oa.embed(strings.ToLower(item.Text + " " + item.Summary))
		if err != nil {
			continue
		}
		vec := pgvector.NewVector(embedding)
		_, err = s.conn.Exec(ctx, `
			INSERT INTO zone_insights (run_id, zone, source, text, summary, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (run_id, zone, source)
			DO UPDATE SET
				text = EXCLUDED.text,
				summary = EXCLUDED.summary,
				embedding = EXCLUDED.embedding
		`, runID, item.Zone, item.Source, item.Text, item.Summary, vec)
		if err != nil {
			continue
		}
		successCount++
	}
	return successCount
}

func (s *PgInsightStore) Search(runID string, query string, topK int) []InsightHit {
	if topK <= 0 {
		topK = 5
	}
	queryEmbedding, err := s.oa.embed(strings.ToLower(query))
	if err != nil {
		return nil
	}
	vec := pgvector.NewVector(queryEmbedding)

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := context.Background()
	rows, err := s.conn.Query(ctx, `
		SELECT zone, source, text, summary,
			   1 - (embedding <=> $1) as similarity
		FROM zone_insights
		WHERE run_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, vec, runID, topK)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var hits []InsightHit
	for rows.Next() {
		var zone, source, text, summary string
		var similarity float64
		if err := rows.Scan(&zone, &source, &text, &summary, &similarity); err != nil {
			continue
		}
		hits = append(hits, InsightHit{Score: similarity, Zone: zone, Source: source, Text: text, Summary: summary})
	}
	return hits
}

// Close releases the postgres connection.
func (s *PgInsightStore) Close() error {
	return s.conn.Close(context.Background())
}

// ---------------- Milvus implementation ----------------

type MilvusInsightStore struct {
	mc   client.Client
	coll string
	dim  int
	oa   *embedder
}

func newMilvusInsightStore(cfg *config.Config) (*MilvusInsightStore, error) {
	addr := os.Getenv("MILVUS_ADDR")
	if addr == "" {
		addr = "localhost:19530"
	}
	username := os.Getenv("MILVUS_USERNAME")
	password := os.Getenv("MILVUS_PASSWORD")
	apiKey := os.Getenv("MILVUS_API_KEY") // For Zilliz Cloud
	coll := os.Getenv("MILVUS_COLLECTION")
	if coll == "" {
		coll = "zone_insights"
	}

	mc, err := client.NewClient(context.Background(), client.Config{Address: addr, Username: username, Password: password, APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}

	s := &MilvusInsightStore{mc: mc, coll: coll, dim: embeddingDim, oa: newEmbedder(cfg)}
	if err := s.ensureSchemaAndIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MilvusInsightStore) ensureSchemaAndIndex() error {
	ctx := context.Background()
	has, err := s.mc.HasCollection(ctx, s.coll)
	if err != nil {
		return err
	}
	if !has {
		schema := entity.NewSchema()
		schema.WithField(entity.NewField().WithName("id").WithIsAutoID(true).WithIsPrimaryKey(true).WithDataType(entity.FieldTypeInt64))
		schema.WithField(entity.NewField().WithName("run_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(128))
		schema.WithField(entity.NewField().WithName("zone").WithDataType(entity.FieldTypeVarChar).WithMaxLength(255))
		schema.WithField(entity.NewField().WithName("source").WithDataType(entity.FieldTypeVarChar).WithMaxLength(32))
		schema.WithField(entity.NewField().WithName("text").WithDataType(entity.FieldTypeVarChar).WithMaxLength(4096))
		schema.WithField(entity.NewField().WithName("summary").WithDataType(entity.FieldTypeVarChar).WithMaxLength(4096))
		schema.WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dim)))
		if err := s.mc.CreateCollection(ctx, schema, int32(2)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}
	idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
	if err != nil {
		return fmt.Errorf("new hnsw index: %w", err)
	}
	if err := s.mc.CreateIndex(ctx, s.coll, "vector", idx, false, client.WithIndexName("idx_vector")); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := s.mc.LoadCollection(ctx, s.coll, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

func (s *MilvusInsightStore) Upsert(runID string, items []InsightItem) int {
	if len(items) == 0 {
		return 0
	}
	runIDs := make([]string, 0, len(items))
	zones := make([]string, 0, len(items))
	sources := make([]string, 0, len(items))
	texts := make([]string, 0, len(items))
	summaries := make([]string, 0, len(items))
	vectors := make([][]float32, 0, len(items))

	for _, it := range items {
		v, err := s.oa.embed(strings.ToLower(it.Text + " " + it.Summary))
		if err != nil {
			continue
		}
		runIDs = append(runIDs, runID)
		zones = append(zones, it.Zone)
		sources = append(sources, it.Source)
		texts = append(texts, it.Text)
		summaries = append(summaries, it.Summary)
		vectors = append(vectors, v)
	}
	if len(vectors) == 0 {
		return 0
	}

	ctx := context.Background()
	_, err := s.mc.Insert(ctx, s.coll, "",
		entity.NewColumnVarChar("run_id", runIDs),
		entity.NewColumnVarChar("zone", zones),
		entity.NewColumnVarChar("source", sources),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("summary", summaries),
		entity.NewColumnFloatVector("vector", s.dim, vectors),
	)
	if err != nil {
		return 0
	}
	return len(vectors)
}

func (s *MilvusInsightStore) Search(runID string, query string, topK int) []InsightHit {
	v, err := s.oa.embed(strings.ToLower(query))
	if err != nil {
		return nil
	}
	if topK <= 0 {
		topK = 5
	}
	ctx := context.Background()
	sp, _ := entity.NewIndexHNSWSearchParam(74)
	filter := fmt.Sprintf("run_id == \"%s\"", strings.ReplaceAll(runID, "\"", "\\\""))
	res, err := s.mc.Search(ctx, s.coll, []string{}, filter, []string{"zone", "source", "text", "summary"}, []entity.Vector{entity.FloatVector(v)}, "vector", entity.COSINE, topK, sp)
	if err != nil {
		return nil
	}
	var hits []InsightHit
	for _, r := range res {
		cols := map[string]entity.Column{}
		for _, c := range r.Fields {
			cols[c.Name()] = c
		}
		for i := 0; i < r.ResultCount; i++ {
			var zone, source, text, summary string
			if c, ok := cols["zone"].(*entity.ColumnVarChar); ok {
				if data := c.Data(); i < len(data) {
					zone = data[i]
				}
			}
			if c, ok := cols["source"].(*entity.ColumnVarChar); ok {
				if data := c.Data(); i < len(data) {
					source = data[i]
				}
			}
			if c, ok := cols["text"].(*entity.ColumnVarChar); ok {
				if data := c.Data(); i < len(data) {
					text = data[i]
				}
			}
			if c, ok := cols["summary"].(*entity.ColumnVarChar); ok {
				if data := c.Data(); i < len(data) {
					summary = data[i]
				}
			}
			hits = append(hits, InsightHit{Score: float64(r.Scores[i]), Zone: zone, Source: source, Text: text, Summary: summary})
		}
	}
	return hits
}

// ---------------- Run indexing adapter ----------------

// RunIndexer flattens a run's zone summaries and fusion assessments into
// insight documents and stores them under the run ID.
type RunIndexer struct {
	store InsightStore
}

func NewRunIndexer(store InsightStore) *RunIndexer {
	return &RunIndexer{store: store}
}

func (r *RunIndexer) IndexRun(runID string, summaries []core.ZoneVisionSummary, fusion core.FusionSummary) error {
	items := BuildInsightItems(summaries, fusion)
	if len(items) == 0 {
		return nil
	}
	n := r.store.Upsert(runID, items)
	log.Printf("Indexed %d zone insights for run %s", n, runID)
	return nil
}

// SearchRun returns the indexed insights most relevant to a question,
// formatted as one evidence line per hit.
func (r *RunIndexer) SearchRun(runID, query string, topK int) []string {
	var lines []string
	for _, hit := range r.store.Search(runID, query, topK) {
		lines = append(lines, fmt.Sprintf("%s (%s): %s", hit.Zone, hit.Source, hit.Text))
	}
	return lines
}

// BuildInsightItems flattens per-zone analysis into searchable text documents.
func BuildInsightItems(summaries []core.ZoneVisionSummary, fusion core.FusionSummary) []InsightItem {
	var items []InsightItem
	for _, zs := range summaries {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Crowd density %s with %s behavior across %d analyzed frames.", zs.PredominantDensity, zs.PredominantBehavior, zs.FramesAnalyzed)
		if len(zs.IdentifiedRisks) > 0 {
			fmt.Fprintf(&sb, " Risks: %s.", strings.Join(zs.IdentifiedRisks, "; "))
		}
		if len(zs.RecommendedActions) > 0 {
			fmt.Fprintf(&sb, " Recommended actions: %s.", strings.Join(zs.RecommendedActions, "; "))
		}
		items = append(items, InsightItem{
			Zone:    zs.Zone,
			Source:  "vision",
			Text:    sb.String(),
			Summary: fmt.Sprintf("%s: %s crowd density, %s behavior", zs.Zone, zs.PredominantDensity, zs.PredominantBehavior),
		})
	}
	if !fusion.Error {
		for _, zone := range fusion.ZoneAnalysis {
			if zone.ZoneName == "" {
				continue
			}
			var sb strings.Builder
			sb.WriteString(zone.StatusAssessment)
			if zone.InfrastructureStatus != "" {
				fmt.Fprintf(&sb, " Infrastructure: %s.", zone.InfrastructureStatus)
			}
			if len(zone.RecommendedActions) > 0 {
				fmt.Fprintf(&sb, " Recommended actions: %s.", strings.Join(zone.RecommendedActions, "; "))
			}
			items = append(items, InsightItem{
				Zone:    zone.ZoneName,
				Source:  "fusion",
				Text:    sb.String(),
				Summary: zone.StatusAssessment,
			})
		}
	}
	return items
}
