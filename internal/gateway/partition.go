package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mbeverdam/weatherdash/internal/observability"
)

// Record is one stored response: enough to replay it to a client later.
// CapturedAt tags the record for the weather policy's freshness check.
type Record struct {
	Status     int         `json:"status"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
	CapturedAt time.Time   `json:"capturedAt"`
}

// PartitionStore holds request/response pairs in named partitions. Partitions
// are strictly separated: dropping one never touches another.
type PartitionStore interface {
	Get(ctx context.Context, partition, key string) (Record, bool, error)
	Put(ctx context.Context, partition, key string, rec Record) error
	DeletePartition(ctx context.Context, partition string) error
	Partitions(ctx context.Context) ([]string, error)
}

// partitionName builds the versioned identifier for a resource class.
func partitionName(class ResourceClass, version string) string {
	return fmt.Sprintf("%s-%s", class.String(), version)
}

// currentPartitions returns the four partition names for a cache version.
func currentPartitions(version string) []string {
	return []string{
		partitionName(ClassStaticAsset, version),
		partitionName(ClassWeatherAPI, version),
		partitionName(ClassImage, version),
		partitionName(ClassOther, version),
	}
}

// Activate deletes every partition whose name is not part of the current
// version set. There is no incremental migration: a stale-versioned partition
// is dropped wholesale, and matching partitions are left untouched.
func Activate(ctx context.Context, store PartitionStore, version string, logger *zap.Logger) error {
	keep := make(map[string]struct{})
	for _, name := range currentPartitions(version) {
		keep[name] = struct{}{}
	}

	existing, err := store.Partitions(ctx)
	if err != nil {
		return fmt.Errorf("list partitions: %w", err)
	}
	for _, name := range existing {
		if _, ok := keep[name]; ok {
			continue
		}
		if err := store.DeletePartition(ctx, name); err != nil {
			return fmt.Errorf("delete partition %s: %w", name, err)
		}
		observability.GatewayPartitionsDroppedTotal.WithLabelValues(name).Inc()
		logger.Info("dropped stale cache partition", zap.String("partition", name))
	}
	return nil
}

// MemoryPartitionStore is the in-process PartitionStore. Entries do not
// survive a restart; use the Redis store when persistence matters.
type MemoryPartitionStore struct {
	mu   sync.RWMutex
	data map[string]map[string]Record
}

func NewMemoryPartitionStore() *MemoryPartitionStore {
	return &MemoryPartitionStore{data: make(map[string]map[string]Record)}
}

func (s *MemoryPartitionStore) Get(ctx context.Context, partition, key string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[partition][key]
	return rec, ok, nil
}

func (s *MemoryPartitionStore) Put(ctx context.Context, partition, key string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[partition] == nil {
		s.data[partition] = make(map[string]Record)
	}
	s.data[partition][key] = rec
	return nil
}

func (s *MemoryPartitionStore) DeletePartition(ctx context.Context, partition string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, partition)
	return nil
}

func (s *MemoryPartitionStore) Partitions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	return names, nil
}
