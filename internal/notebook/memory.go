package notebook

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Runner executes a block's payload and returns its result items. The real
// execution engine is external; tests and the CLI plug in lightweight ones.
type Runner interface {
	Run(blockID string, kind BlockKind, payload BlockPayload) ([]ResultItem, error)
}

// MemoryDocument is an in-process Document. Mutations are atomic under one
// lock; observers run synchronously on the mutating goroutine after the lock
// is released, so an observer may itself mutate the document (the
// visualization backfill does) without deadlocking.
type MemoryDocument struct {
	logger *slog.Logger

	mu        sync.Mutex
	order     []string
	blocks    map[string]*Block
	observers map[string]map[int]Observer
	nextObsID int
	execQueue []string
	runner    Runner
}

// NewMemoryDocument creates an empty in-memory notebook document
func NewMemoryDocument(logger *slog.Logger) *MemoryDocument {
	return &MemoryDocument{
		logger:    logger,
		blocks:    make(map[string]*Block),
		observers: make(map[string]map[int]Observer),
	}
}

// SetRunner installs an execution engine for RunBlock. Enqueueing never
// executes by itself: the run signal comes later, once observers are attached.
func (d *MemoryDocument) SetRunner(r Runner) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runner = r
}

// CreateBlock implements Document
func (d *MemoryDocument) CreateBlock(kind BlockKind, payload BlockPayload, blockID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if blockID == "" {
		blockID = fmt.Sprintf("blk-%s", uuid.New().String()[:8])
	}

	if _, exists := d.blocks[blockID]; exists {
		return "", fmt.Errorf("block %s already exists", blockID)
	}

	d.blocks[blockID] = &Block{ID: blockID, Kind: kind, Payload: payload}
	d.order = append(d.order, blockID)

	d.logger.Debug("block created", "block_id", blockID, "kind", kind)
	return blockID, nil
}

// Blocks implements Document
func (d *MemoryDocument) Blocks() []Block {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Block, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, *d.blocks[id])
	}
	return out
}

// EnqueueExecution implements Document
func (d *MemoryDocument) EnqueueExecution(blockID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.blocks[blockID]; !ok {
		return fmt.Errorf("block %s not found", blockID)
	}
	d.execQueue = append(d.execQueue, blockID)
	return nil
}

// RunBlock executes a block through the installed runner and writes its
// result. A runner error becomes an error result item, never a failed call.
func (d *MemoryDocument) RunBlock(blockID string) error {
	d.mu.Lock()
	blk, ok := d.blocks[blockID]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("block %s not found", blockID)
	}
	runner := d.runner
	kind, payload := blk.Kind, blk.Payload
	d.mu.Unlock()

	if runner == nil {
		return fmt.Errorf("no runner installed")
	}

	items, err := runner.Run(blockID, kind, payload)
	if err != nil {
		items = []ResultItem{{Kind: ResultError, Content: err.Error()}}
	}
	return d.WriteResult(blockID, items, ProvenanceExecution)
}

// ExecutionQueue returns the ids enqueued for execution, in order
func (d *MemoryDocument) ExecutionQueue() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.execQueue))
	copy(out, d.execQueue)
	return out
}

// ObserveBlock implements Document
func (d *MemoryDocument) ObserveBlock(blockID string, fn Observer) (Unsubscribe, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.blocks[blockID]; !ok {
		return nil, fmt.Errorf("block %s not found", blockID)
	}

	if d.observers[blockID] == nil {
		d.observers[blockID] = make(map[int]Observer)
	}

	id := d.nextObsID
	d.nextObsID++
	d.observers[blockID][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.observers[blockID], id)
		})
	}, nil
}

// WriteResult implements Document
func (d *MemoryDocument) WriteResult(blockID string, items []ResultItem, prov Provenance) error {
	d.mu.Lock()
	blk, ok := d.blocks[blockID]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("block %s not found", blockID)
	}
	blk.Result = items
	watchers := d.snapshotObservers(blockID)
	d.mu.Unlock()

	change := Change{BlockID: blockID, Attr: AttrResult, Items: items, Provenance: prov}
	for _, fn := range watchers {
		fn(change)
	}
	return nil
}

// SetChartData implements Document
func (d *MemoryDocument) SetChartData(blockID string, rows []map[string]any, prov Provenance) error {
	d.mu.Lock()
	blk, ok := d.blocks[blockID]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("block %s not found", blockID)
	}
	if blk.Payload.Chart == nil {
		d.mu.Unlock()
		return fmt.Errorf("block %s is not a visualization", blockID)
	}
	blk.Payload.Chart.Data = rows
	watchers := d.snapshotObservers(blockID)
	d.mu.Unlock()

	change := Change{BlockID: blockID, Attr: AttrChartData, Rows: rows, Provenance: prov}
	for _, fn := range watchers {
		fn(change)
	}
	return nil
}

// snapshotObservers must be called with the lock held
func (d *MemoryDocument) snapshotObservers(blockID string) []Observer {
	obs := d.observers[blockID]
	if len(obs) == 0 {
		return nil
	}
	out := make([]Observer, 0, len(obs))
	for _, fn := range obs {
		out = append(out, fn)
	}
	return out
}
