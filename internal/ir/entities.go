package ir

// Entity records reconstructed by the accumulator.
//
// Every id is the Seq of the begin event that created the entity.
// CreatedAt and CompletedAt are logical seqs; a zero CompletedAt means the
// scope is still open (or was abandoned).

// Node is one concrete stream stage instance.
type Node struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Shape       string `json:"shape"`
	TrackKey    string `json:"track_key,omitempty"`
	Module      string `json:"module,omitempty"`
	Build       int64  `json:"build,omitempty"`
	Step        int64  `json:"step,omitempty"`
	Output      int64  `json:"output,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	CompletedAt int64  `json:"completed_at,omitempty"`

	// Impl is a weak reference to the implementation object.
	Impl Handle `json:"-"`
}

// Live reports whether the implementation object can still be reached.
func (n Node) Live() bool {
	if n.Impl == nil {
		return false
	}
	_, ok := n.Impl.Resolve()
	return ok
}

// OperatorKind is a parameterized operator invocation such as map(fn).
type OperatorKind struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Rendered    string `json:"rendered"`
	CreatedAt   int64  `json:"created_at"`
	CompletedAt int64  `json:"completed_at,omitempty"`
}

// BuildScope is one chain-assembly operation.
type BuildScope struct {
	ID          int64   `json:"id"`
	Origin      int64   `json:"origin"`
	Output      int64   `json:"output,omitempty"`
	Steps       []int64 `json:"steps"`
	CreatedAt   int64   `json:"created_at"`
	CompletedAt int64   `json:"completed_at,omitempty"`
}

// CompositionStep is one use of an OperatorKind inside a build.
type CompositionStep struct {
	ID          int64 `json:"id"`
	Build       int64 `json:"build"`
	Index       int   `json:"index"`
	Operator    int64 `json:"operator"`
	Source      int64 `json:"source"`
	Target      int64 `json:"target,omitempty"`
	CreatedAt   int64 `json:"created_at"`
	CompletedAt int64 `json:"completed_at,omitempty"`
}

// Subscription is one attachment of a subscriber to a Node. Parent links
// form a tree of nested subscriptions.
type Subscription struct {
	ID             int64  `json:"id"`
	Node           int64  `json:"node"`
	Parent         int64  `json:"parent,omitempty"`
	Emission       int64  `json:"emission,omitempty"`
	Module         string `json:"module,omitempty"`
	CreatedAt      int64  `json:"created_at"`
	CompletedAt    int64  `json:"completed_at,omitempty"`
	UnsubscribedAt int64  `json:"unsubscribed_at,omitempty"`
	// Synthesized marks an unsubscribe recorded by a reload sweep rather
	// than observed from the pipeline.
	Synthesized bool `json:"synthesized,omitempty"`
}

// Open reports whether the subscription has not been torn down.
func (s Subscription) Open() bool {
	return s.UnsubscribedAt == 0
}

// Emission is one signal passing through a subscription.
type Emission struct {
	ID           int64  `json:"id"`
	Node         int64  `json:"node"`
	Subscription int64  `json:"subscription"`
	Signal       Signal `json:"signal"`
	Value        string `json:"value,omitempty"`
	TrackKey     string `json:"track_key"`
	CreatedAt    int64  `json:"created_at"`
	CompletedAt  int64  `json:"completed_at,omitempty"`
}

// ArgRef identifies a captured argument by its owner and position.
type ArgRef struct {
	Owner    int64 `json:"owner"`
	Position int   `json:"position"`
}

// Argument is a captured call-site argument of a Node or OperatorKind.
type Argument struct {
	ArgRef
	Kind ArgKind `json:"kind"`
	Text string  `json:"text"`
}

// ArgumentInvocation records one run of a closure argument, and the Node it
// produced when it built a dynamic sub-pipeline.
type ArgumentInvocation struct {
	ID          int64  `json:"id"`
	Argument    ArgRef `json:"argument"`
	Emission    int64  `json:"emission,omitempty"`
	Result      int64  `json:"result,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	CompletedAt int64  `json:"completed_at,omitempty"`
}

// Track is the stable identity of an externally visible stream.
type Track struct {
	Key  string    `json:"key"`
	Kind TrackKind `json:"kind"`
	Node int64     `json:"node,omitempty"`
	// History holds previously bound Node ids, oldest first.
	History       []int64 `json:"history"`
	Version       int     `json:"version"`
	Structural    bool    `json:"structural"`
	Parent        string  `json:"parent,omitempty"`
	Dynamic       bool    `json:"dynamic,omitempty"`
	Module        string  `json:"module,omitempty"`
	ModuleVersion int     `json:"module_version,omitempty"`
	CreatedAt     int64   `json:"created_at"`
	BoundAt       int64   `json:"bound_at,omitempty"`

	// Live is a strong reference to the object backing the current binding.
	Live Handle `json:"-"`
}

// Bound reports whether the track has resolved a Node.
func (t Track) Bound() bool {
	return t.Node != 0
}

// Module is one reloadable unit.
type Module struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
	// Previous holds the track keys touched by the last completed version.
	Previous []string `json:"previous"`
	// Touched holds the track keys touched by the version in progress.
	Touched     []string `json:"touched"`
	CreatedAt   int64    `json:"created_at"`
	ReloadedAt  int64    `json:"reloaded_at,omitempty"`
	CompletedAt int64    `json:"completed_at,omitempty"`
}

// Snapshot is a read-only copy of the relational store. Every slice is
// sorted by id (tracks and modules by name) so equal states compare equal.
type Snapshot struct {
	Seq           int64                `json:"seq"`
	Nodes         []Node               `json:"nodes"`
	Operators     []OperatorKind       `json:"operators"`
	Builds        []BuildScope         `json:"builds"`
	Steps         []CompositionStep    `json:"steps"`
	Subscriptions []Subscription       `json:"subscriptions"`
	Emissions     []Emission           `json:"emissions"`
	Arguments     []Argument           `json:"arguments"`
	Invocations   []ArgumentInvocation `json:"invocations"`
	Tracks        []Track              `json:"tracks"`
	Modules       []Module             `json:"modules"`
}

// Track returns the track with the given key.
func (s Snapshot) Track(key string) (Track, bool) {
	for _, t := range s.Tracks {
		if t.Key == key {
			return t, true
		}
	}
	return Track{}, false
}

// Node returns the node with the given id.
func (s Snapshot) Node(id int64) (Node, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Subscription returns the subscription with the given id.
func (s Snapshot) Subscription(id int64) (Subscription, bool) {
	for _, sub := range s.Subscriptions {
		if sub.ID == id {
			return sub, true
		}
	}
	return Subscription{}, false
}

// Module returns the module with the given name.
func (s Snapshot) Module(name string) (Module, bool) {
	for _, m := range s.Modules {
		if m.Name == name {
			return m, true
		}
	}
	return Module{}, false
}
