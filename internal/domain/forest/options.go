package forest

// Option applies a configuration option to training.
type Option func(*Params)

// WithTrees sets the number of trees in the ensemble.
func WithTrees(n int) Option {
	return func(p *Params) {
		if n > 0 {
			p.Trees = n
		}
	}
}

// WithLeafSize sets the node size below which a tree stops splitting.
// Zero keeps the library default of one twentieth of the training rows.
func WithLeafSize(n int) Option {
	return func(p *Params) {
		if n >= 0 {
			p.LeafSize = n
		}
	}
}

// WithMaxFeatures sets how many features are tried per split. Zero means
// the square root of the feature count.
func WithMaxFeatures(n int) Option {
	return func(p *Params) {
		if n >= 0 {
			p.MaxFeatures = n
		}
	}
}
