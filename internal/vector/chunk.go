package vector

import (
	"encoding/json"

	pb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

// Hierarchy levels. Level 2 chunks carry a ParentID linking back to their
// enclosing section so fine-grained hits can be expanded at query time.
const (
	LevelDocumentSummary = 0
	LevelSection         = 1
	LevelSubChunk        = 2
)

// Chunk is one indexed unit of content at a specific hierarchy level.
// Chunks are produced by the external ingestion pipeline; the retrieval
// core never mutates them.
type Chunk struct {
	ChunkID      string
	ParentID     string // set only on level-2 chunks
	Content      string
	FullText     string // populated for section-level summaries
	Summary      string
	SectionTitle string
	Level        int
	Entities     map[string][]string
	Source       string
	Embedding    []float32
}

// Candidate is a Chunk plus its nearest-neighbor distance (smaller = closer).
// Candidates exist only for the duration of one search invocation.
type Candidate struct {
	Chunk
	Distance float64
}

// decodeChunk parses a stored point's payload into a typed Chunk. Missing or
// mistyped fields default to zero values; a malformed entities blob is logged
// and decoded as empty rather than failing the record.
func decodeChunk(payload map[string]*pb.Value, logger *zap.Logger) Chunk {
	c := Chunk{
		ChunkID:      payload["chunk_id"].GetStringValue(),
		ParentID:     payload["parent_id"].GetStringValue(),
		Content:      payload["content"].GetStringValue(),
		FullText:     payload["full_text"].GetStringValue(),
		Summary:      payload["summary"].GetStringValue(),
		SectionTitle: payload["section_title"].GetStringValue(),
		Source:       payload["source"].GetStringValue(),
		Entities:     map[string][]string{},
	}

	if v, ok := payload["level"]; ok {
		switch v.GetKind().(type) {
		case *pb.Value_IntegerValue:
			c.Level = int(v.GetIntegerValue())
		case *pb.Value_DoubleValue:
			c.Level = int(v.GetDoubleValue())
		}
	}

	if raw := payload["entities"].GetStringValue(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Entities); err != nil {
			logger.Warn("malformed entities payload, defaulting to empty",
				zap.String("chunk_id", c.ChunkID), zap.Error(err))
			c.Entities = map[string][]string{}
		}
	}

	return c
}

// encodePayload serializes a Chunk back into store payload form. Entities are
// stored as a JSON string, mirroring what decodeChunk expects.
func encodePayload(c Chunk) map[string]*pb.Value {
	payload := map[string]*pb.Value{
		"chunk_id":      stringValue(c.ChunkID),
		"parent_id":     stringValue(c.ParentID),
		"content":       stringValue(c.Content),
		"full_text":     stringValue(c.FullText),
		"summary":       stringValue(c.Summary),
		"section_title": stringValue(c.SectionTitle),
		"source":        stringValue(c.Source),
		"level":         {Kind: &pb.Value_IntegerValue{IntegerValue: int64(c.Level)}},
	}
	if len(c.Entities) > 0 {
		if raw, err := json.Marshal(c.Entities); err == nil {
			payload["entities"] = stringValue(string(raw))
		}
	}
	return payload
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}
