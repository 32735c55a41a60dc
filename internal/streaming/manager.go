package streaming

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ringworld/server/internal/cache"
	"github.com/ringworld/server/internal/coordinator"
	"github.com/ringworld/server/internal/generation"
	"github.com/ringworld/server/internal/ringmap"
)

// Manager coordinates server-driven chunk streaming subscriptions.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
}

// Subscription tracks an individual client's chunk window.
type Subscription struct {
	ID        string
	Actor     string
	Request   SubscriptionRequest
	ChunkIDs  []ringmap.ChunkID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CameraPose describes the player's viewing position for streaming
// decisions. RingPosition is the absolute position along the ring axis in
// meters; it wraps at the circumference.
type CameraPose struct {
	RingPosition int64   `json:"ring_position"`
	WidthOffset  float64 `json:"width_offset,omitempty"`
	Elevation    float64 `json:"elevation,omitempty"`
	ActiveFloor  int     `json:"active_floor"`
}

// SubscriptionRequest is sent by clients to begin receiving chunk data.
type SubscriptionRequest struct {
	Pose         CameraPose     `json:"pose"`
	RadiusMeters int64          `json:"radius_meters"`
	LOD          generation.LOD `json:"lod"`
}

// SubscriptionPlan captures the initial server response for a subscription.
type SubscriptionPlan struct {
	SubscriptionID string            `json:"subscription_id"`
	ChunkIDs       []ringmap.ChunkID `json:"chunk_ids"`
}

// ChunkDelta describes server-evaluated chunk window changes.
type ChunkDelta struct {
	SubscriptionID string            `json:"subscription_id"`
	AddedChunks    []ringmap.ChunkID `json:"added_chunks,omitempty"`
	RemovedChunks  []ringmap.ChunkID `json:"removed_chunks,omitempty"`
	CurrentChunks  []ringmap.ChunkID `json:"current_chunks"`
}

// NewManager builds a streaming manager instance.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*Subscription),
	}
}

// PlanSubscription validates the request and registers the subscription.
func (m *Manager) PlanSubscription(actor string, req SubscriptionRequest) (*SubscriptionPlan, error) {
	if req.RadiusMeters <= 0 {
		return nil, fmt.Errorf("radius_meters must be positive")
	}
	if req.RadiusMeters > ringmap.RingCircumference/2 {
		return nil, fmt.Errorf("radius_meters cannot exceed %d", ringmap.RingCircumference/2)
	}
	if err := ringmap.ValidateFloor(req.Pose.ActiveFloor); err != nil {
		return nil, err
	}
	if req.LOD == "" {
		req.LOD = generation.LODLow
	}
	if err := req.LOD.Validate(); err != nil {
		return nil, err
	}

	chunkIDs := ComputeChunkWindow(req.Pose, req.RadiusMeters)
	subscriptionID := fmt.Sprintf("sub_%d_%d", req.Pose.ActiveFloor, time.Now().UnixNano())

	subscription := &Subscription{
		ID:        subscriptionID,
		Actor:     actor,
		Request:   req,
		ChunkIDs:  chunkIDs,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	m.mu.Lock()
	m.subscriptions[subscriptionID] = subscription
	m.mu.Unlock()

	return &SubscriptionPlan{
		SubscriptionID: subscriptionID,
		ChunkIDs:       chunkIDs,
	}, nil
}

// UpdatePose recomputes the subscription window and returns chunk deltas.
func (m *Manager) UpdatePose(actor, subscriptionID string, pose CameraPose) (*ChunkDelta, error) {
	if subscriptionID == "" {
		return nil, fmt.Errorf("subscription_id is required")
	}
	if err := ringmap.ValidateFloor(pose.ActiveFloor); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	subscription, ok := m.subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("subscription %s not found", subscriptionID)
	}
	if subscription.Actor != actor {
		return nil, fmt.Errorf("subscription %s does not belong to the current actor", subscriptionID)
	}

	newChunkIDs := ComputeChunkWindow(pose, subscription.Request.RadiusMeters)
	added, removed := diffChunkSets(subscription.ChunkIDs, newChunkIDs)

	subscription.ChunkIDs = newChunkIDs
	subscription.Request.Pose = pose
	subscription.UpdatedAt = time.Now()

	return &ChunkDelta{
		SubscriptionID: subscriptionID,
		AddedChunks:    added,
		RemovedChunks:  removed,
		CurrentChunks:  newChunkIDs,
	}, nil
}

// GetSubscription retrieves a subscription by ID.
func (m *Manager) GetSubscription(subscriptionID string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subscription, ok := m.subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("subscription %s not found", subscriptionID)
	}
	return subscription, nil
}

// Unsubscribe drops a subscription. Unknown ids are ignored.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	delete(m.subscriptions, subscriptionID)
	m.mu.Unlock()
}

// ComputeChunkWindow derives the chunk ids within radiusMeters of the pose
// along the ring axis, on the pose's active floor. The window wraps across
// the seam and never lists a chunk twice.
func ComputeChunkWindow(pose CameraPose, radiusMeters int64) []ringmap.ChunkID {
	if radiusMeters <= 0 {
		return nil
	}

	centerIndex := ringmap.PositionToChunkIndex(pose.RingPosition)
	chunkRadius := int(math.Ceil(float64(radiusMeters) / float64(ringmap.ChunkLength)))

	seen := make(map[int]struct{})
	var chunkIDs []ringmap.ChunkID
	for offset := -chunkRadius; offset <= chunkRadius; offset++ {
		idx := ringmap.WrapChunkIndex(centerIndex + offset)
		if _, exists := seen[idx]; exists {
			continue
		}
		seen[idx] = struct{}{}
		chunkIDs = append(chunkIDs, ringmap.ChunkID{Floor: pose.ActiveFloor, Index: idx})
	}
	return chunkIDs
}

// Batches splits a chunk window into coordinator-sized batch item slices,
// each at most coordinator.MaxBatchSize long.
func Batches(ids []ringmap.ChunkID, lod generation.LOD) [][]cache.BatchItem {
	var batches [][]cache.BatchItem
	for start := 0; start < len(ids); start += coordinator.MaxBatchSize {
		end := start + coordinator.MaxBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := make([]cache.BatchItem, 0, end-start)
		for _, id := range ids[start:end] {
			batch = append(batch, cache.BatchItem{ID: id, LOD: lod})
		}
		batches = append(batches, batch)
	}
	return batches
}

func diffChunkSets(previous, next []ringmap.ChunkID) (added, removed []ringmap.ChunkID) {
	prevSet := make(map[ringmap.ChunkID]struct{}, len(previous))
	nextSet := make(map[ringmap.ChunkID]struct{}, len(next))

	for _, id := range previous {
		prevSet[id] = struct{}{}
	}
	for _, id := range next {
		nextSet[id] = struct{}{}
		if _, exists := prevSet[id]; !exists {
			added = append(added, id)
		}
	}
	for _, id := range previous {
		if _, exists := nextSet[id]; !exists {
			removed = append(removed, id)
		}
	}
	return
}
