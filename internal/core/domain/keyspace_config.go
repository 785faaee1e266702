package domain

// MetadataPolicy decides what a listing does when metadata for a single key
// cannot be fetched during the enumeration pass
type MetadataPolicy int

const (
	// MetadataLenient logs the failure, omits the key from the page and still counts it
	MetadataLenient MetadataPolicy = iota
	// MetadataStrict aborts the whole page on the first failure
	MetadataStrict
)

func (p MetadataPolicy) String() string {
	if p == MetadataStrict {
		return "strict"
	}
	return "lenient"
}

// KeyspaceConfig tunes the keyspace services
type KeyspaceConfig struct {
	// ScanCount is the COUNT hint passed to each SCAN round trip
	ScanCount int64
	// ListPreviewLimit bounds how many list elements a fetch materializes
	ListPreviewLimit int64
	// MetadataPolicy applies to per-key failures while paging
	MetadataPolicy MetadataPolicy
}

// DefaultKeyspaceConfig returns the standard limits
func DefaultKeyspaceConfig() KeyspaceConfig {
	return KeyspaceConfig{
		ScanCount:        1000,
		ListPreviewLimit: 100,
		MetadataPolicy:   MetadataLenient,
	}
}

// WithDefaults fills zero fields from DefaultKeyspaceConfig
func (c KeyspaceConfig) WithDefaults() KeyspaceConfig {
	def := DefaultKeyspaceConfig()
	if c.ScanCount <= 0 {
		c.ScanCount = def.ScanCount
	}
	if c.ListPreviewLimit <= 0 {
		c.ListPreviewLimit = def.ListPreviewLimit
	}
	return c
}
