package docanalysis

// BlockType identifies the kind of node in the analysis output graph.
type BlockType string

const (
	BlockTypePage             BlockType = "PAGE"
	BlockTypeWord             BlockType = "WORD"
	BlockTypeLine             BlockType = "LINE"
	BlockTypeKeyValueSet      BlockType = "KEY_VALUE_SET"
	BlockTypeTable            BlockType = "TABLE"
	BlockTypeCell             BlockType = "CELL"
	BlockTypeSelectionElement BlockType = "SELECTION_ELEMENT"
)

// RelationshipType labels an edge from one block to a set of related blocks.
type RelationshipType string

const (
	// RelationshipChild links a container block to its constituent blocks
	// (line to words, table to cells, key/value container to words).
	RelationshipChild RelationshipType = "CHILD"
	// RelationshipValue links a KEY_VALUE_SET key block to its value block.
	RelationshipValue RelationshipType = "VALUE"
)

// Entity type markers carried by KEY_VALUE_SET blocks.
const (
	EntityTypeKey   = "KEY"
	EntityTypeValue = "VALUE"
)

// Selection statuses carried by SELECTION_ELEMENT blocks.
const (
	SelectionSelected    = "SELECTED"
	SelectionNotSelected = "NOT_SELECTED"
)

// JobStatus is the remote lifecycle state reported by the analysis service.
type JobStatus string

const (
	JobStatusInProgress     JobStatus = "IN_PROGRESS"
	JobStatusSucceeded      JobStatus = "SUCCEEDED"
	JobStatusFailed         JobStatus = "FAILED"
	JobStatusPartialSuccess JobStatus = "PARTIAL_SUCCESS"
)

// Terminal reports whether the remote job will make no further progress.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusPartialSuccess:
		return true
	}
	return false
}

// Block is one node of the analysis payload. Blocks reference each other by
// ID through Relationships and form a directed graph, not a tree: a block may
// be reachable from more than one parent.
type Block struct {
	ID              string         `json:"id"`
	BlockType       BlockType      `json:"blockType"`
	Text            string         `json:"text,omitempty"`
	Confidence      float64        `json:"confidence,omitempty"`
	EntityTypes     []string       `json:"entityTypes,omitempty"`
	SelectionStatus string         `json:"selectionStatus,omitempty"`
	RowIndex        int            `json:"rowIndex,omitempty"`
	ColumnIndex     int            `json:"columnIndex,omitempty"`
	RowSpan         int            `json:"rowSpan,omitempty"`
	ColumnSpan      int            `json:"columnSpan,omitempty"`
	Page            int            `json:"page,omitempty"`
	Geometry        *Geometry      `json:"geometry,omitempty"`
	Relationships   []Relationship `json:"relationships,omitempty"`
}

// Relationship is a typed edge to a set of block IDs.
type Relationship struct {
	Type RelationshipType `json:"type"`
	IDs  []string         `json:"ids"`
}

// Geometry locates a block on the page in normalized [0,1] coordinates.
type Geometry struct {
	BoundingBox BoundingBox `json:"boundingBox"`
	Polygon     []Point     `json:"polygon,omitempty"`
}

// BoundingBox is an axis-aligned frame in normalized page coordinates.
type BoundingBox struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
}

// Point is a polygon vertex in normalized page coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DocumentLocation identifies the stored source image the service should read.
type DocumentLocation struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// FeatureSet selects which analysis passes run on the document.
type FeatureSet struct {
	Forms  bool `json:"forms"`
	Tables bool `json:"tables"`
}

// DocumentMetadata summarizes the analyzed document.
type DocumentMetadata struct {
	Pages int `json:"pages"`
}
