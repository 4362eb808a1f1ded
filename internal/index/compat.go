package index

import "fmt"

// Compat names the embedding model and vector size that queries will be
// embedded with. Zero fields are not checked.
type Compat struct {
	Model     string
	Dimension int
}

// check compares what an index was built with against c. An index that
// never recorded its model passes the model check.
func (c Compat) check(where, model string, dim int) error {
	if c.Model != "" && model != "" && model != c.Model {
		return &LoadError{
			Path:   where,
			Reason: fmt.Sprintf("built with embedding model %q but the embedder uses %q, rebuild the index", model, c.Model),
		}
	}
	if c.Dimension > 0 && dim > 0 && dim != c.Dimension {
		return &LoadError{
			Path:   where,
			Reason: fmt.Sprintf("vectors have %d dimensions but the embedder produces %d, rebuild the index", dim, c.Dimension),
			Err:    ErrDimensionMismatch,
		}
	}
	return nil
}

// CheckCompat returns a *LoadError when f, loaded from dir, was built by a
// different embedding model or with a different vector size than c.
func (f *Flat) CheckCompat(dir string, c Compat) error {
	return c.check(dir, f.info.Model, f.dim)
}
