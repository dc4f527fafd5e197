package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

// Milvus collection field names.
const (
	fieldID          = "id"
	fieldVector      = "vector"
	fieldDocumentID  = "document_id"
	fieldSourceID    = "source_id"
	fieldChunkIndex  = "chunk_index"
	fieldTextPreview = "text_preview"
)

const previewMaxLen = 500

// MilvusStore implements Store on a Milvus collection with an HNSW cosine
// index.
type MilvusStore struct {
	client     *milvusclient.Client
	collection string
	dimensions int
}

func NewMilvusStore(ctx context.Context, addr, apiKey, collection string, dimensions int) (*MilvusStore, error) {
	cli, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address: addr,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Milvus: %w", err)
	}

	s := &MilvusStore{
		client:     cli,
		collection: collection,
		dimensions: dimensions,
	}
	if err := s.ensureCollection(ctx); err != nil {
		cli.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

func (s *MilvusStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(s.collection))
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if !exists {
		schema := entity.NewSchema().WithName(s.collection).
			WithField(entity.NewField().WithName(fieldID).
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(64).WithIsPrimaryKey(true)).
			WithField(entity.NewField().WithName(fieldVector).
				WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dimensions))).
			WithField(entity.NewField().WithName(fieldDocumentID).
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
			WithField(entity.NewField().WithName(fieldSourceID).
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
			WithField(entity.NewField().WithName(fieldChunkIndex).
				WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(fieldTextPreview).
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(2048))

		idx := index.NewHNSWIndex(entity.COSINE, 16, 200)
		err = s.client.CreateCollection(ctx,
			milvusclient.NewCreateCollectionOption(s.collection, schema).
				WithIndexOptions(milvusclient.NewCreateIndexOption(s.collection, fieldVector, idx)))
		if err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
	}

	task, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(s.collection))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := task.Await(ctx); err != nil {
		return fmt.Errorf("failed to await collection load: %w", err)
	}
	return nil
}

func (s *MilvusStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	ids := make([]string, len(points))
	vectors := make([][]float32, len(points))
	docIDs := make([]string, len(points))
	sourceIDs := make([]string, len(points))
	chunkIndexes := make([]int64, len(points))
	previews := make([]string, len(points))
	for i, pt := range points {
		ids[i] = pt.ID.String()
		vectors[i] = pt.Vector
		docIDs[i] = pt.Payload.DocumentID.String()
		sourceIDs[i] = pt.Payload.SourceID.String()
		chunkIndexes[i] = int64(pt.Payload.ChunkIndex)
		previews[i] = truncatePreview(pt.Payload.TextPreview)
	}

	_, err := s.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(s.collection).
		WithVarcharColumn(fieldID, ids).
		WithFloatVectorColumn(fieldVector, s.dimensions, vectors).
		WithVarcharColumn(fieldDocumentID, docIDs).
		WithVarcharColumn(fieldSourceID, sourceIDs).
		WithInt64Column(fieldChunkIndex, chunkIndexes).
		WithVarcharColumn(fieldTextPreview, previews))
	if err != nil {
		return fmt.Errorf("failed to upsert %d vectors: %w", len(points), err)
	}
	return nil
}

func (s *MilvusStore) Search(ctx context.Context, vector []float32, limit int, scoreThreshold float32, filter *Filter) ([]Match, error) {
	opt := milvusclient.NewSearchOption(s.collection, limit, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(fieldVector).
		WithOutputFields(fieldDocumentID, fieldSourceID, fieldChunkIndex, fieldTextPreview)
	if expr := filterExpr(filter); expr != "" {
		opt = opt.WithFilter(expr)
	}

	resultSets, err := s.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	var matches []Match
	for _, rs := range resultSets {
		for i := 0; i < rs.ResultCount; i++ {
			if rs.Scores[i] < scoreThreshold {
				continue
			}
			rawID, err := rs.IDs.GetAsString(i)
			if err != nil {
				return nil, fmt.Errorf("failed to read hit id: %w", err)
			}
			id, err := uuid.Parse(rawID)
			if err != nil {
				return nil, fmt.Errorf("hit id %q is not a uuid: %w", rawID, err)
			}
			matches = append(matches, Match{
				ID:      id,
				Score:   rs.Scores[i],
				Payload: readPayload(rs, i),
			})
		}
	}
	return matches, nil
}

func (s *MilvusStore) DeleteByIDs(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	_, err := s.client.Delete(ctx, milvusclient.NewDeleteOption(s.collection).WithStringIDs(fieldID, raw))
	if err != nil {
		return fmt.Errorf("failed to delete %d vectors: %w", len(ids), err)
	}
	return nil
}

func (s *MilvusStore) DeleteByFilter(ctx context.Context, filter Filter) error {
	expr := filterExpr(&filter)
	if expr == "" {
		return fmt.Errorf("refusing to delete with empty filter")
	}
	_, err := s.client.Delete(ctx, milvusclient.NewDeleteOption(s.collection).WithExpr(expr))
	if err != nil {
		return fmt.Errorf("failed to delete vectors by filter: %w", err)
	}
	return nil
}

func filterExpr(filter *Filter) string {
	if filter == nil {
		return ""
	}
	var terms []string
	if filter.DocumentID != nil {
		terms = append(terms, fmt.Sprintf(`%s == "%s"`, fieldDocumentID, filter.DocumentID))
	}
	if filter.SourceID != nil {
		terms = append(terms, fmt.Sprintf(`%s == "%s"`, fieldSourceID, filter.SourceID))
	}
	return strings.Join(terms, " and ")
}

func readPayload(rs milvusclient.ResultSet, i int) Payload {
	var p Payload
	if col := rs.GetColumn(fieldDocumentID); col != nil {
		if v, err := col.GetAsString(i); err == nil {
			p.DocumentID, _ = uuid.Parse(v)
		}
	}
	if col := rs.GetColumn(fieldSourceID); col != nil {
		if v, err := col.GetAsString(i); err == nil {
			p.SourceID, _ = uuid.Parse(v)
		}
	}
	if col := rs.GetColumn(fieldChunkIndex); col != nil {
		if v, err := col.GetAsInt64(i); err == nil {
			p.ChunkIndex = int(v)
		}
	}
	if col := rs.GetColumn(fieldTextPreview); col != nil {
		if v, err := col.GetAsString(i); err == nil {
			p.TextPreview = v
		}
	}
	return p
}

func truncatePreview(text string) string {
	if len(text) <= previewMaxLen {
		return text
	}
	cut := previewMaxLen
	for cut > 0 && (text[cut]&0xC0) == 0x80 {
		cut--
	}
	return text[:cut]
}
