package formula

import "sync"

// Cache memoizes parsed ASTs so repeated executions of the same tool
// definition parse each formula once. Safe for concurrent use; ASTs are
// immutable after parsing.
type Cache struct {
	mu   sync.RWMutex
	asts map[string]Node
}

// NewCache creates an empty formula cache. One cache per loaded tool
// snapshot keeps memory bounded by the tool's own formulas.
func NewCache() *Cache {
	return &Cache{asts: make(map[string]Node)}
}

// Parse returns the cached AST for src, parsing on first use.
func (c *Cache) Parse(src string) (Node, error) {
	c.mu.RLock()
	n, ok := c.asts[src]
	c.mu.RUnlock()
	if ok {
		return n, nil
	}

	n, err := Parse(src)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.asts[src] = n
	c.mu.Unlock()
	return n, nil
}

// Evaluate parses (through the cache) and evaluates src against bindings.
func (c *Cache) Evaluate(src string, bindings map[string]any) (any, error) {
	n, err := c.Parse(src)
	if err != nil {
		return nil, err
	}
	return Eval(n, bindings)
}

// EvaluateBool is Evaluate with truthiness coercion, for condition steps.
func (c *Cache) EvaluateBool(src string, bindings map[string]any) (bool, error) {
	v, err := c.Evaluate(src, bindings)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

// Len reports how many distinct formulas have been parsed.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.asts)
}
