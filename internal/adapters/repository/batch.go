package repository

// OpKind identifies a batched write.
type OpKind int

// Batched write kinds.
const (
	OpPut OpKind = iota
	OpAddToSet
	OpRemoveFromSet
)

func (k OpKind) String() string {
	switch k {
	case OpPut:
		return "put"
	case OpAddToSet:
		return "add_to_set"
	case OpRemoveFromSet:
		return "remove_from_set"
	default:
		return "unknown"
	}
}

// Op is one write inside a Batch.
type Op struct {
	Kind    OpKind
	Key     string
	Blob    []byte
	Members []string
}

// Guard requires Key to hold Blob at commit time. A nil Blob requires Key to be absent.
type Guard struct {
	Key  string
	Blob []byte
}

// Batch collects writes that must become visible together.
// Operations apply in the order they were added.
type Batch struct {
	guards []Guard
	ops    []Op
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Expect adds a guard on key.
func (b *Batch) Expect(key string, blob []byte) *Batch {
	b.guards = append(b.guards, Guard{Key: key, Blob: blob})
	return b
}

// Put queues a blob overwrite.
func (b *Batch) Put(key string, blob []byte) *Batch {
	b.ops = append(b.ops, Op{Kind: OpPut, Key: key, Blob: blob})
	return b
}

// AddToSet queues set additions. Empty member lists are dropped.
func (b *Batch) AddToSet(key string, members ...string) *Batch {
	if len(members) > 0 {
		b.ops = append(b.ops, Op{Kind: OpAddToSet, Key: key, Members: members})
	}
	return b
}

// RemoveFromSet queues set removals. Empty member lists are dropped.
func (b *Batch) RemoveFromSet(key string, members ...string) *Batch {
	if len(members) > 0 {
		b.ops = append(b.ops, Op{Kind: OpRemoveFromSet, Key: key, Members: members})
	}
	return b
}

// Guards returns the batch guards.
func (b *Batch) Guards() []Guard { return b.guards }

// Ops returns the queued operations in order.
func (b *Batch) Ops() []Op { return b.ops }

// Len returns the number of queued operations.
func (b *Batch) Len() int { return len(b.ops) }

func (b *Batch) guardKeys() []string {
	keys := make([]string, len(b.guards))
	for i, g := range b.guards {
		keys[i] = g.Key
	}
	return keys
}
