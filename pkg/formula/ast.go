package formula

// Node is an immutable AST node. The node set is closed: anything a
// formula can express is one of the five types below.
type Node interface {
	node()
}

// Literal is a number, string, or boolean constant.
type Literal struct {
	Value any
}

// Variable is an identifier resolved against the evaluation bindings.
type Variable struct {
	Name string
	Pos  int
}

// Unary is a prefix operator application: -x or !x.
type Unary struct {
	Op string
	X  Node
}

// Binary is an infix operator application.
type Binary struct {
	Op    string
	Left  Node
	Right Node
	Pos   int
}

// Call is an invocation of a whitelisted pure function.
type Call struct {
	Fn   string
	Args []Node
	Pos  int
}

func (*Literal) node()  {}
func (*Variable) node() {}
func (*Unary) node()    {}
func (*Binary) node()   {}
func (*Call) node()     {}
