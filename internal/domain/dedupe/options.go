package dedupe

const defaultShards = 32

// Option applies a configuration option to NewInMemoryDeduper.
type Option func(shards *int)

// WithShards sets the number of lock shards. Values below 1 are ignored.
func WithShards(n int) Option {
	return func(shards *int) {
		if n > 0 {
			*shards = n
		}
	}
}
