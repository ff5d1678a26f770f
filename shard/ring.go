package shard

import (
	"strconv"
	"sync"

	"github.com/buraksezer/consistent"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"
)

type hasher struct{}

func (h hasher) Sum64(data []byte) uint64 {
	return murmur3.Sum64(data)
}

type Member string

func (m Member) String() string {
	return string(m)
}

// Ring maps conversations to partitions and partitions to members. All
// contexts of one conversation share a partition so replies are routed
// without scanning other partitions.
type Ring struct {
	partitionCount int
	hring          *consistent.Consistent
	members        map[string]struct{}
	mu             sync.RWMutex
}

func NewRing(partitionCount int) *Ring {
	if partitionCount <= 0 {
		partitionCount = 1
	}
	cfg := consistent.Config{
		PartitionCount:    partitionCount,
		ReplicationFactor: 20,
		Load:              1.25,
		Hasher:            hasher{},
	}
	return &Ring{
		partitionCount: partitionCount,
		hring:          consistent.New(nil, cfg),
		members:        make(map[string]struct{}),
	}
}

func (r *Ring) Join(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[name]; ok {
		return
	}
	logger.Info("adding member to ring", zap.String("member", name))
	r.members[name] = struct{}{}
	r.hring.Add(Member(name))
}

func (r *Ring) Leave(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[name]; !ok {
		return
	}
	logger.Info("removing member from ring", zap.String("member", name))
	delete(r.members, name)
	r.hring.Remove(name)
}

func (r *Ring) PartitionCount() int {
	return r.partitionCount
}

// Partition returns the partition owning the conversation.
func (r *Ring) Partition(conversationId string) int {
	return r.hring.FindPartitionID([]byte(conversationId))
}

// Owner returns the member owning the partition, or "" on an empty ring.
func (r *Ring) Owner(partition int) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.hring.GetPartitionOwner(partition)
	if m == nil {
		return ""
	}
	return m.String()
}

// PartitionsOf returns the partitions owned by member in ascending order.
func (r *Ring) PartitionsOf(member string) []int {
	var out []int
	for p := 0; p < r.partitionCount; p++ {
		if r.Owner(p) == member {
			out = append(out, p)
		}
	}
	return out
}

func PartitionName(partition int) string {
	return strconv.Itoa(partition)
}
