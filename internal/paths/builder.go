package paths

import (
	"errors"
	"fmt"
)

// Label is an opaque, stable jump-target identifier supplied by the scanner.
type Label string

// OpKind classifies a plain instruction for trivial-fork detection.
type OpKind uint8

const (
	OpOther OpKind = iota
	// OpConstTrue pushes the boolean constant true.
	OpConstTrue
	// OpConstFalse pushes the boolean constant false.
	OpConstFalse
)

// InvariantError reports event input that violates the builder's structural
// invariants. It is raised as a panic inside the builder and recovered at the
// method boundary by Build and Finish.
type InvariantError struct {
	Event string
	Line  int
	Msg   string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invalid %s event at line %d: %s", e.Event, e.Line, e.Msg)
}

// Trivial-fork detection states: a conditional jump was seen, its
// fall-through pushed true, that arm jumped away, and the jump target pushes
// false.
const (
	trivialNone = iota
	trivialAfterFork
	trivialPushedTrue
	trivialAfterGoto
)

// Builder incrementally constructs a method's Graph from structural events.
// A Builder serves a single method and is not safe for concurrent use.
type Builder struct {
	g *Graph

	entry        int
	currentFork  int
	currentBlock int
	currentJoin  int
	// entryPending is set until the Entry node has its successor.
	entryPending bool

	forkTargets  map[Label][]int
	gotoSources  map[Label][]int
	pendingOrder []Label
	seenLabels   map[Label]bool

	trivial  int
	finished bool
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		g:            newGraph(),
		entry:        NoNode,
		currentFork:  NoNode,
		currentBlock: NoNode,
		currentJoin:  NoNode,
		forkTargets:  make(map[Label][]int),
		gotoSources:  make(map[Label][]int),
		seenLabels:   make(map[Label]bool),
	}
}

func violation(event string, line int, format string, args ...interface{}) {
	panic(&InvariantError{Event: event, Line: line, Msg: fmt.Sprintf(format, args...)})
}

func (b *Builder) requireOpen(event string, line int) {
	if b.finished {
		violation(event, line, "builder already finished")
	}
	if b.entry == NoNode {
		violation(event, line, "event before method entry")
	}
}

// OnEntry creates the Entry node. It must be the first event.
func (b *Builder) OnEntry(line int) int {
	if b.entry != NoNode {
		violation("entry", line, "method entry seen twice")
	}
	b.entry = b.g.add(Node{Kind: KindEntry, Line: line, Next: NoNode, Jump: NoNode})
	b.entryPending = true
	return b.entry
}

// OnInstruction records a plain instruction. A BasicBlock is only created
// when a fork or join is waiting for its successor.
func (b *Builder) OnInstruction(line int, op OpKind) int {
	b.requireOpen("instruction", line)

	if b.currentFork == NoNode && b.currentJoin == NoNode {
		b.trivial = trivialNone
		return NoNode
	}
	if b.currentBlock != NoNode {
		violation("instruction", line, "basic block %d still pending", b.currentBlock)
	}

	fromFork := b.currentFork != NoNode
	joinBefore := b.currentJoin
	idx := b.addNode(Node{Kind: KindBasicBlock, Line: line})

	if fromFork {
		if b.trivial == trivialAfterFork && op == OpConstTrue {
			b.trivial = trivialPushedTrue
		} else {
			b.trivial = trivialNone
		}
	} else {
		if b.trivial == trivialAfterGoto && op == OpConstFalse {
			b.g.Nodes[joinBefore].FromTrivialFork = true
		}
		b.trivial = trivialNone
	}

	b.currentBlock = idx
	return idx
}

// OnConditionalJump creates a SimpleFork whose taken edge leads to target.
// Jumps to already announced labels go backward and create nothing.
func (b *Builder) OnConditionalJump(target Label, line int) int {
	b.requireOpen("conditional jump", line)
	if b.seenLabels[target] {
		return NoNode
	}
	if b.currentFork != NoNode {
		violation("conditional jump", line, "fork %d is still unresolved", b.currentFork)
	}

	idx := b.addNode(Node{Kind: KindSimpleFork, Line: line})
	b.addPendingFork(target, idx)
	b.currentFork = idx
	b.trivial = trivialAfterFork
	return idx
}

// OnUnconditionalJump handles a goto. When a BasicBlock or Join is waiting,
// it becomes the source of the pending jump; otherwise a Goto node is
// created.
func (b *Builder) OnUnconditionalJump(target Label, line int) int {
	b.requireOpen("unconditional jump", line)
	if b.seenLabels[target] {
		return NoNode
	}

	if b.currentBlock == NoNode && b.currentJoin == NoNode {
		idx := b.addNode(Node{Kind: KindGoto, Line: line})
		b.addPendingGoto(target, idx)
		return idx
	}

	b.resolveGotoSource(target)
	return NoNode
}

// resolveGotoSource makes the pending Join, or else the pending BasicBlock,
// the source of a goto to target. When both are pending, both jump to
// target and the Join is registered first.
func (b *Builder) resolveGotoSource(target Label) {
	if b.currentJoin != NoNode {
		b.addPendingGoto(target, b.currentJoin)
		b.currentJoin = NoNode
	}
	if b.currentBlock != NoNode {
		b.addPendingGoto(target, b.currentBlock)
		b.currentBlock = NoNode
		if b.trivial == trivialPushedTrue {
			b.trivial = trivialAfterGoto
		}
	}
}

// OnJumpTarget announces a label. If forks or gotos are waiting for it, a
// Join is created and wired to all of them.
func (b *Builder) OnJumpTarget(target Label, line int) int {
	b.requireOpen("jump target", line)
	b.seenLabels[target] = true

	forks, hasForks := b.forkTargets[target]
	gotos, hasGotos := b.gotoSources[target]
	if !hasForks && !hasGotos {
		return NoNode
	}

	idx := b.addNode(Node{Kind: KindJoin, Line: line})
	for _, f := range forks {
		fork := &b.g.Nodes[f]
		if fork.Kind == KindMultiFork {
			fork.Cases = append(fork.Cases, idx)
		} else {
			fork.Jump = idx
		}
	}
	for _, s := range gotos {
		b.g.Nodes[s].Jump = idx
	}
	delete(b.forkTargets, target)
	delete(b.gotoSources, target)

	b.currentJoin = idx
	return idx
}

// OnMultiWayJump creates a MultiFork with one pending edge per distinct case
// label, plus the default label unless it repeats a case.
func (b *Builder) OnMultiWayJump(def Label, cases []Label, line int) int {
	b.requireOpen("multi-way jump", line)

	targets := make([]Label, 0, len(cases)+1)
	seen := make(map[Label]bool, len(cases)+1)
	for _, c := range cases {
		if c != def && !seen[c] {
			seen[c] = true
			targets = append(targets, c)
		}
	}
	targets = append(targets, def)

	idx := b.addNode(Node{Kind: KindMultiFork, Line: line})
	for _, t := range targets {
		if b.seenLabels[t] {
			violation("multi-way jump", line, "case label %q jumps backward", t)
		}
		b.addPendingFork(t, idx)
	}
	b.trivial = trivialNone
	return idx
}

// OnExit creates an Exit node for a return or throw.
func (b *Builder) OnExit(line int) int {
	b.requireOpen("exit", line)
	idx := b.addNode(Node{Kind: KindExit, Line: line})
	b.trivial = trivialNone
	return idx
}

// Finish completes construction and validates the graph. After Finish the
// builder rejects further events.
func (b *Builder) Finish() (g *Graph, err error) {
	defer recoverInvariant(&err)

	if b.entry == NoNode {
		violation("finish", 0, "no method entry")
	}
	b.finished = true
	for _, l := range b.pendingOrder {
		if _, ok := b.forkTargets[l]; ok {
			violation("finish", b.g.EntryLine(), "label %q never announced", l)
		}
		if _, ok := b.gotoSources[l]; ok {
			violation("finish", b.g.EntryLine(), "label %q never announced", l)
		}
	}
	for _, pending := range []int{b.currentFork, b.currentJoin, b.currentBlock} {
		if pending != NoNode {
			violation("finish", b.g.Nodes[pending].Line, "%s has no successor", b.g.Nodes[pending])
		}
	}
	if err := b.g.Validate(); err != nil {
		return nil, err
	}
	return b.g, nil
}

// Build runs events against a fresh builder and finishes it, converting any
// invariant violation into an error.
func Build(events func(b *Builder)) (g *Graph, err error) {
	b := NewBuilder()
	func() {
		defer recoverInvariant(&err)
		events(b)
	}()
	if err != nil {
		return nil, err
	}
	return b.Finish()
}

func recoverInvariant(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if ie, ok := r.(*InvariantError); ok {
		*err = ie
		return
	}
	panic(r)
}

// IsInvariantError reports whether err stems from invalid event input.
func IsInvariantError(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

// addNode appends n and connects it as the successor of whatever is pending.
func (b *Builder) addNode(n Node) int {
	n.Next, n.Jump = NoNode, NoNode
	idx := b.g.add(n)
	b.connect(idx)
	return idx
}

// connect makes idx the consecutive successor of the pending node, if any.
// The Entry takes the first node created after it.
func (b *Builder) connect(idx int) {
	if b.entryPending {
		b.g.Nodes[b.entry].Next = idx
		b.entryPending = false
	}
	switch {
	case b.currentFork != NoNode:
		b.g.Nodes[b.currentFork].Next = idx
		b.currentFork = NoNode
	case b.currentJoin != NoNode:
		b.g.Nodes[b.currentJoin].Next = idx
		b.currentJoin = NoNode
	case b.currentBlock != NoNode:
		b.g.Nodes[b.currentBlock].Next = idx
		b.currentBlock = NoNode
	}
}

func (b *Builder) addPendingFork(l Label, fork int) {
	b.notePending(l)
	b.forkTargets[l] = append(b.forkTargets[l], fork)
}

func (b *Builder) addPendingGoto(l Label, src int) {
	b.notePending(l)
	b.gotoSources[l] = append(b.gotoSources[l], src)
}

func (b *Builder) notePending(l Label) {
	if _, ok := b.forkTargets[l]; ok {
		return
	}
	if _, ok := b.gotoSources[l]; ok {
		return
	}
	b.pendingOrder = append(b.pendingOrder, l)
}
