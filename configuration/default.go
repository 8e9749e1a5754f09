package configuration

func Default() *Configuration {
	return &Configuration{
		HttpAddr:   "127.0.0.1:8080",
		Dir:        "data",
		ShowBanner: true,
		LogLevel:   "info",

		EmbeddedToTreeThreshold: 40,
		TreeToEmbeddedThreshold: -1,
		IteratorPrefetch:        1000,

		CacheMaxSize:           1000,
		CacheEvictionThreshold: 1100,
	}
}
