// Package memory implements ports.MemoryStore over internal/store's
// memories and skills tables: episodic experiences, semantic facts with
// typed relations, and procedural skills executed by name. Recall is
// best-effort, ranked by 0.6*similarity + 0.4*relevance_decay.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/haasonsaas/orchestrator-core/internal/ports"
	"github.com/haasonsaas/orchestrator-core/internal/store"
)

const (
	typeEpisodic = "episodic"
	typeSemantic = "semantic"
	typeRelation = "relation"
)

// Store backs the three memory flavors with the sqlite persistence layer.
type Store struct {
	db  *store.Store
	log *slog.Logger
}

// New constructs a Store over db.
func New(db *store.Store) *Store {
	return &Store{
		db:  db,
		log: slog.Default().With("component", "memory"),
	}
}

var _ ports.MemoryStore = (*Store)(nil)

type episodicMeta struct {
	Outcome string         `json:"outcome,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

type semanticMeta struct {
	Topic      string  `json:"topic"`
	Source     string  `json:"source,omitempty"`
	Confidence float64 `json:"confidence"`
}

type relationMeta struct {
	A    string `json:"a"`
	B    string `json:"b"`
	Type string `json:"type"`
}

// Remember appends an episodic record of an experience and its outcome.
func (s *Store) Remember(ctx context.Context, experience, outcome string, meta map[string]any, importance float64) (string, error) {
	raw, err := json.Marshal(episodicMeta{Outcome: outcome, Meta: meta})
	if err != nil {
		return "", fmt.Errorf("marshal episodic metadata: %w", err)
	}
	return s.db.InsertMemory(ctx, store.Memory{
		Type:       typeEpisodic,
		Content:    experience,
		Metadata:   string(raw),
		Importance: importance,
	})
}

// RecallSimilar returns up to topK episodic records ranked by the combined
// score, best first, and touches each returned record's access clock.
func (s *Store) RecallSimilar(ctx context.Context, query string, topK int) ([]ports.MemoryRecord, error) {
	if topK <= 0 {
		topK = 5
	}
	rows, err := s.db.ListMemoriesByType(ctx, typeEpisodic)
	if err != nil {
		return nil, err
	}

	records := rankBySimilarity(rows, query)
	if len(records) > topK {
		records = records[:topK]
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	if err := s.db.TouchMemoryAccess(ctx, ids); err != nil {
		s.log.Warn("touch memory access failed", "error", err)
	}
	return records, nil
}

// RecallRecent returns the n most recently stored episodic records.
func (s *Store) RecallRecent(ctx context.Context, n int) ([]ports.MemoryRecord, error) {
	if n <= 0 {
		n = 5
	}
	rows, err := s.db.RecentMemories(ctx, typeEpisodic, n)
	if err != nil {
		return nil, err
	}
	out := make([]ports.MemoryRecord, 0, len(rows))
	for _, m := range rows {
		out = append(out, toRecord(m, 0))
	}
	return out, nil
}

// LearnFact stores a semantic fact under topic.
func (s *Store) LearnFact(ctx context.Context, topic, fact, source string, confidence float64) (string, error) {
	raw, err := json.Marshal(semanticMeta{Topic: topic, Source: source, Confidence: confidence})
	if err != nil {
		return "", fmt.Errorf("marshal semantic metadata: %w", err)
	}
	return s.db.InsertMemory(ctx, store.Memory{
		Type:       typeSemantic,
		Content:    fact,
		Metadata:   string(raw),
		Importance: confidence,
	})
}

// QueryFact returns the highest-confidence fact stored under topic, or nil.
func (s *Store) QueryFact(ctx context.Context, topic string) (*ports.MemoryRecord, error) {
	rows, err := s.db.ListMemoriesByType(ctx, typeSemantic)
	if err != nil {
		return nil, err
	}
	for _, m := range rows {
		var sm semanticMeta
		if err := json.Unmarshal([]byte(m.Metadata), &sm); err != nil {
			continue
		}
		if strings.EqualFold(sm.Topic, topic) {
			r := toRecord(m, 0)
			return &r, nil
		}
	}
	return nil, nil
}

// SearchFacts returns up to topK (topic, record) pairs whose topic or fact
// text matches query, ranked by the combined score.
func (s *Store) SearchFacts(ctx context.Context, query string, topK int) ([]ports.TopicRecord, error) {
	if topK <= 0 {
		topK = 5
	}
	rows, err := s.db.ListMemoriesByType(ctx, typeSemantic)
	if err != nil {
		return nil, err
	}

	type scored struct {
		topic  string
		record ports.MemoryRecord
	}
	var matches []scored
	for _, m := range rows {
		var sm semanticMeta
		if err := json.Unmarshal([]byte(m.Metadata), &sm); err != nil {
			continue
		}
		score := combinedScore(similarity(sm.Topic+" "+m.Content, query), m)
		if score <= 0 {
			continue
		}
		matches = append(matches, scored{topic: sm.Topic, record: toRecord(m, score)})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].record.Score > matches[j].record.Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}

	out := make([]ports.TopicRecord, 0, len(matches))
	for _, m := range matches {
		out = append(out, ports.TopicRecord{Topic: m.topic, Record: m.record})
	}
	return out, nil
}

// AddRelation records a typed edge between two topics.
func (s *Store) AddRelation(ctx context.Context, a, b, relationType string) error {
	raw, err := json.Marshal(relationMeta{A: a, B: b, Type: relationType})
	if err != nil {
		return fmt.Errorf("marshal relation metadata: %w", err)
	}
	_, err = s.db.InsertMemory(ctx, store.Memory{
		Type:     typeRelation,
		Content:  fmt.Sprintf("%s -[%s]-> %s", a, relationType, b),
		Metadata: string(raw),
	})
	return err
}

// LearnProcedure stores the named skill's steps in the skills table.
func (s *Store) LearnProcedure(ctx context.Context, skillName string, steps []string) error {
	raw, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("marshal procedure steps: %w", err)
	}
	return s.db.UpsertSkill(ctx, store.Skill{
		Name:        skillName,
		Code:        string(raw),
		Description: fmt.Sprintf("%d-step procedure", len(steps)),
	})
}

// ExecuteProcedure renders the named skill's steps with inputs substituted
// ({key} placeholders) and records the usage. The rendered plan is the
// result; actually running each step is the caller's concern.
func (s *Store) ExecuteProcedure(ctx context.Context, skillName string, inputs map[string]any) (string, error) {
	sk, err := s.db.GetSkill(ctx, skillName)
	if err != nil {
		return "", fmt.Errorf("execute procedure %q: %w", skillName, err)
	}

	var steps []string
	if err := json.Unmarshal([]byte(sk.Code), &steps); err != nil {
		return "", fmt.Errorf("decode procedure %q steps: %w", skillName, err)
	}

	var b strings.Builder
	for i, step := range steps {
		for key, value := range inputs {
			step = strings.ReplaceAll(step, "{"+key+"}", fmt.Sprint(value))
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}

	if err := s.db.RecordSkillUsage(ctx, skillName, sk.SuccessRate); err != nil {
		s.log.Warn("record skill usage failed", "skill", skillName, "error", err)
	}
	return b.String(), nil
}

func toRecord(m store.Memory, score float64) ports.MemoryRecord {
	return ports.MemoryRecord{
		ID:         m.ID,
		Content:    m.Content,
		Importance: m.Importance,
		Score:      score,
		CreatedAt:  m.CreatedAt,
	}
}

func rankBySimilarity(rows []store.Memory, query string) []ports.MemoryRecord {
	var out []ports.MemoryRecord
	for _, m := range rows {
		score := combinedScore(similarity(m.Content, query), m)
		if score <= 0 {
			continue
		}
		out = append(out, toRecord(m, score))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
