package swcache

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

const (
	defaultNamePrefix    = "dovini"
	defaultVersion       = "v1"
	defaultKeyPrefix     = "swcache"
	defaultAPIMarker     = "/api/"
	defaultUpdateMessage = "A new version is available. Reload to update."

	defaultMaxBufferBytes int64 = 8 << 20
)

var (
	defaultSeedPaths = []string{"/", "/index.html"}
	// path.Ext values; "/" is matched separately
	defaultStaticSuffixes = []string{".js", ".css", ".html", ".ico", ".png", ".jpg", ".jpeg", ".gif", ".svg"}
)

// RuntimeCacheName returns the runtime namespace name for prefix and version.
func RuntimeCacheName(prefix, version string) string {
	return coalesce(prefix, defaultNamePrefix) + "-cache-" + coalesce(version, defaultVersion)
}

// StaticCacheName returns the install-time namespace name for prefix and version.
func StaticCacheName(prefix, version string) string {
	return coalesce(prefix, defaultNamePrefix) + "-static-" + coalesce(version, defaultVersion)
}
