package configuration

type Configuration struct {
	HttpAddr   string `usage:"HTTP address"`
	Dir        string `usage:"data directory"`
	Version    bool   `usage:"show version and exit"`
	ShowBanner bool   `usage:"show big banner"`
	ShowConfig bool   `usage:"print config"`
	LogLevel   string `usage:"log level: debug, info, warn or error"`

	EnableCompression bool `usage:"gzip responses when the client accepts it"`

	EmbeddedToTreeThreshold int `usage:"bags with more entries are stored in a tree, -1 never converts"`
	TreeToEmbeddedThreshold int `usage:"tree bags with fewer entries go back to embedded, -1 never converts"`
	IteratorPrefetch        int `usage:"keys fetched per page when iterating a tree bag"`

	CacheMaxSize           int `usage:"open trees kept by the cache after an eviction"`
	CacheEvictionThreshold int `usage:"open trees that trigger an eviction"`
}
