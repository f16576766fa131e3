package notebook

// BlockKind classifies notebook blocks
type BlockKind string

const (
	BlockKindCode          BlockKind = "code"
	BlockKindQuery         BlockKind = "query"
	BlockKindVisualization BlockKind = "visualization"
	BlockKindText          BlockKind = "text"
)

// Executable reports whether blocks of this kind run against an execution engine
func (k BlockKind) Executable() bool {
	return k == BlockKindCode || k == BlockKindQuery
}

// Tabular reports whether blocks of this kind produce tabular data a
// visualization can consume
func (k BlockKind) Tabular() bool {
	return k == BlockKindCode || k == BlockKindQuery
}

// ChartSpec is a declarative visualization specification
type ChartSpec struct {
	Type  string `json:"type,omitempty"`
	X     string `json:"x,omitempty"`
	Y     string `json:"y,omitempty"`
	Title string `json:"title,omitempty"`

	// SourceBlockID names the block whose output feeds the chart
	SourceBlockID string `json:"sourceBlockId,omitempty"`

	// Data holds inline rows. An empty (but non-nil) dataset is the
	// placeholder that backfill repairs once real rows exist.
	Data []map[string]any `json:"data,omitempty"`
}

// Placeholder reports whether the chart still awaits real data
func (s *ChartSpec) Placeholder() bool {
	return s != nil && len(s.Data) == 0
}

// BlockPayload is the content a block is created with
type BlockPayload struct {
	// Source holds code, a query, or rich text depending on the block kind
	Source string
	// Chart is set for visualization blocks
	Chart *ChartSpec
}

// Provenance tags a mutation with what produced it, so observers can tell
// real execution results from synthetic repairs and skip the latter.
type Provenance string

const (
	ProvenanceExecution Provenance = "execution"
	ProvenanceBackfill  Provenance = "backfill"
)

// ResultItemKind classifies one item of a block's heterogeneous result list
type ResultItemKind string

const (
	ResultText   ResultItemKind = "text"
	ResultError  ResultItemKind = "error"
	ResultTable  ResultItemKind = "table"
	ResultChart  ResultItemKind = "chart"
	ResultImage  ResultItemKind = "image"
	ResultMarkup ResultItemKind = "markup"
)

// ResultItem is one entry in a block's result attribute
type ResultItem struct {
	Kind    ResultItemKind   `json:"kind"`
	Content string           `json:"content,omitempty"`
	Rows    []map[string]any `json:"rows,omitempty"`
}

// AttrName names an observable block attribute
type AttrName string

const (
	AttrResult    AttrName = "result"
	AttrChartData AttrName = "chart_data"
)

// Change describes one attribute mutation on a block
type Change struct {
	BlockID    string
	Attr       AttrName
	Items      []ResultItem     // set for AttrResult
	Rows       []map[string]any // set for AttrChartData
	Provenance Provenance
}

// Observer receives attribute changes for one block. Observers run
// synchronously within the mutation that triggered them.
type Observer func(Change)

// Unsubscribe detaches an observer; safe to call more than once
type Unsubscribe func()

// Block is a snapshot of one notebook block
type Block struct {
	ID      string
	Kind    BlockKind
	Payload BlockPayload
	Result  []ResultItem
}

// Document is the mutation surface of the replicated notebook. The session
// core treats the document as append/observe-only: it appends blocks at the
// end and reads or writes attributes on blocks it created, never deleting or
// reordering existing content.
type Document interface {
	// CreateBlock appends one block at the end of the document as a single
	// atomic mutation. A non-empty blockID is preserved as the block's
	// identifier; otherwise the document assigns one. Returns the block id.
	CreateBlock(kind BlockKind, payload BlockPayload, blockID string) (string, error)

	// Blocks returns the blocks in document order
	Blocks() []Block

	// EnqueueExecution schedules an executable block to run
	EnqueueExecution(blockID string) error

	// ObserveBlock registers an observer for attribute changes on a block
	ObserveBlock(blockID string, fn Observer) (Unsubscribe, error)

	// WriteResult replaces the block's result attribute
	WriteResult(blockID string, items []ResultItem, prov Provenance) error

	// SetChartData replaces a visualization block's inline dataset
	SetChartData(blockID string, rows []map[string]any, prov Provenance) error
}
