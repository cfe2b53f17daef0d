package lower

import (
	"fmt"

	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/slowlang/slow/compiler/ast"
	"github.com/slowlang/slow/compiler/ir"
)

type (
	function struct {
		src *ast.Func
		f   *ir.Func
		b   *ir.Builder

		ssa *ssa

		vars  map[*ast.Var]*storage
		loops []loop

		// fetch caches element addresses of a[i] with a and i register variables.
		// Entries live until the block ends, a or i is reassigned,
		// or the loop iteration ends.
		fetch map[fetchKey]ir.Value

		labels int
	}

	// storage is the lowering-time symbol table entry of a variable.
	storage struct {
		Class ast.StorageClass
		Meta  Meta

		// Addr is the slot of Stack and Heap variables.
		Addr ir.Value
	}

	loop struct {
		brk  *ir.Block
		cont *lazy
	}

	// lazy is a block created on first use so unused joins never exist.
	lazy struct {
		label string
		blk   *ir.Block
	}

	fetchKey struct {
		arr, idx *ast.Var
	}
)

func (c *Context) lowerFunc(src *ast.Func) {
	cl := c.funcs[src]

	f := c.mod.NewFunc(cl.name, cl.ret, cl.params...)

	fn := &function{
		src:   src,
		f:     f,
		b:     ir.NewBuilder(f),
		ssa:   newSSA(f),
		vars:  make(map[*ast.Var]*storage),
		fetch: make(map[fetchKey]ir.Value),
	}

	c.fn = fn
	defer func() { c.fn = nil }()

	tlog.V("lower").Printw("lower func", "name", cl.name, "params", len(cl.params), "from", loc.Caller(1))

	entry := f.NewBlock("entry")
	fn.ssa.seal(entry)
	fn.b.SetBlock(entry)
	c.at(src.Pos)

	params := src.Params
	if src.Recv != nil {
		params = append([]*ast.Var{src.Recv}, params...)
	}

	c.hoist(params, src.Body)

	for i, v := range params {
		c.bind(v, f.Params[i].Value())
	}

	c.block(src.Body)

	if fn.b.Block.Terminated() {
		return
	}

	c.at(src.Body.Pos)

	if cl.ret == ir.Void {
		fn.b.RetVoid()
	} else {
		fn.b.Trap("missing_return")
	}
}

// hoist allocates stack slots of all Stack variables in the entry block,
// so a declaration inside a loop reuses one slot.
func (c *Context) hoist(params []*ast.Var, body *ast.Block) {
	for _, v := range params {
		c.declare(v)
	}

	walk(body, func(s ast.Stmt) {
		d, ok := s.(*ast.VarDecl)
		if ok && d.Var.Storage == ast.Stack {
			c.declare(d.Var)
		}
	})
}

// declare creates the symbol table entry of v.
func (c *Context) declare(v *ast.Var) *storage {
	fn := c.fn

	if s, ok := fn.vars[v]; ok {
		return s
	}

	s := &storage{
		Class: v.Storage,
		Meta:  describe(v.Type),
	}

	if s.Meta.IR == ir.Void {
		c.fail(v.Pos, "variable %v of type %v", v.Name, v.Type)
	}

	if s.Class == ast.Stack {
		s.Addr = fn.b.Alloca(ir.Int(int64(s.Meta.IR.Size())))
	}

	fn.vars[v] = s

	return s
}

// bind gives v its initial value, allocating a heap cell for Heap variables.
func (c *Context) bind(v *ast.Var, x ir.Value) {
	fn := c.fn
	s := c.declare(v)

	switch s.Class {
	case ast.Register:
		c.writeVar(v, x)
	case ast.Stack:
		fn.b.Store(s.Meta.IR, s.Addr, x)
	case ast.Heap:
		sig := c.runtime(v.Pos, "rt_alloc")
		s.Addr = fn.b.Call(sig.Ret, sig.Name, ir.Int(int64(s.Meta.IR.Size())))
		fn.b.Store(s.Meta.IR, s.Addr, x)
	default:
		c.fail(v.Pos, "variable %v: bad storage class %v", v.Name, s.Class)
	}
}

func (c *Context) lookup(v *ast.Var) *storage {
	s, ok := c.fn.vars[v]
	if !ok {
		c.fail(v.Pos, "undeclared variable %v", v.Name)
	}

	return s
}

func (c *Context) readVar(pos ast.Pos, v *ast.Var) ir.Value {
	fn := c.fn
	s := c.lookup(v)

	if s.Class != ast.Register {
		c.at(pos)
		return fn.b.Load(s.Meta.IR, s.Addr)
	}

	x, ok := fn.ssa.read(fn.b.Block, v)
	if !ok {
		c.fail(pos, "variable %v is not defined on every path", v.Name)
	}

	return x
}

func (c *Context) writeVar(v *ast.Var, x ir.Value) {
	fn := c.fn

	fn.ssa.write(fn.b.Block, v, x)

	for k := range fn.fetch {
		if k.arr == v || k.idx == v {
			delete(fn.fetch, k)
		}
	}
}

// newBlock creates a uniquely labeled block.
func (c *Context) newBlock(kind string) *ir.Block {
	fn := c.fn
	fn.labels++

	return fn.f.NewBlock(fmt.Sprintf("%s.%d", kind, fn.labels))
}

func (c *Context) lazy(kind string) *lazy {
	return &lazy{label: kind}
}

func (c *Context) get(l *lazy) *ir.Block {
	if l.blk == nil {
		l.blk = c.newBlock(l.label)
	}

	return l.blk
}

// enter makes b the current block. Cached fetches do not cross blocks.
func (c *Context) enter(b *ir.Block) {
	c.fn.b.SetBlock(b)
	c.release()
}

// release drops all cached element fetches.
func (c *Context) release() {
	clear(c.fn.fetch)
}

func (c *Context) br(to *ir.Block, args ...ir.Value) {
	fn := c.fn

	fn.ssa.edge(fn.b.Block, to)
	fn.b.Br(to, args...)
}

func (c *Context) cbr(cond ir.Value, then *ir.Block, targs []ir.Value, els *ir.Block, eargs []ir.Value) {
	fn := c.fn

	fn.ssa.edge(fn.b.Block, then, els)
	fn.b.CBr(cond, then, targs, els, eargs)
}

func (c *Context) seal(b *ir.Block) {
	if !c.fn.ssa.seal(b) {
		c.fail(c.fn.src.Pos, "block %v: variable not defined on every path", b.Label)
	}
}

func (c *Context) terminated() bool {
	return c.fn.b.Block.Terminated()
}

func (c *Context) at(p ast.Pos) {
	c.fn.b.Loc = ir.Pos{Line: p.Line, Col: p.Col}
}

// walk calls visit for every statement in b, nested ones included.
func walk(b *ast.Block, visit func(ast.Stmt)) {
	if b == nil {
		return
	}

	for _, s := range b.Stmts {
		walkStmt(s, visit)
	}
}

func walkStmt(s ast.Stmt, visit func(ast.Stmt)) {
	if s == nil {
		return
	}

	visit(s)

	switch s := s.(type) {
	case *ast.Block:
		walk(s, visit)
	case *ast.If:
		walk(s.Then, visit)
		walkStmt(s.Else, visit)
	case *ast.While:
		walk(s.Body, visit)
	case *ast.For:
		walkStmt(s.Init, visit)
		walkStmt(s.Post, visit)
		walk(s.Body, visit)
	}
}
