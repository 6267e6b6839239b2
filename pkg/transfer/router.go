package transfer

// Size limits. The proxy threshold is the largest payload the API
// gateway's proxy path accepts in one request; the file ceiling bounds any
// single upload regardless of strategy.
const (
	DefaultProxyThreshold = 4 << 20   // 4 MiB
	DefaultMaxFileSize    = 100 << 20 // 100 MiB
)

// Router classifies files by size into an upload strategy and validates
// batches against the hard size ceiling. It is a pure decision function;
// no network calls are made here.
type Router struct {
	// ProxyThreshold is the single-request payload ceiling. Files above
	// it are always chunked.
	ProxyThreshold int64
	// MaxFileSize rejects a batch outright before routing begins.
	MaxFileSize int64
	// PreferDirect sends files at or below the threshold to storage via
	// presigned URLs instead of the proxied single-call path.
	PreferDirect bool
}

// NewRouter builds a router, substituting defaults for non-positive
// limits.
func NewRouter(proxyThreshold, maxFileSize int64, preferDirect bool) Router {
	if proxyThreshold <= 0 {
		proxyThreshold = DefaultProxyThreshold
	}
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return Router{
		ProxyThreshold: proxyThreshold,
		MaxFileSize:    maxFileSize,
		PreferDirect:   preferDirect,
	}
}

// Classify routes a file by size. Files above the proxy threshold require
// chunking; files at or below it use the direct presigned path when
// enabled, otherwise the proxied single-call path. The boundary value
// (size == threshold) stays on the single-call path.
func (r Router) Classify(f FileInput) Strategy {
	if f.Size > r.ProxyThreshold {
		return StrategyChunked
	}
	if r.PreferDirect {
		return StrategyDirect
	}
	return StrategyProxied
}

// ValidateBatch enforces the per-file ceiling across a whole selection
// before any network activity. The returned OversizeError names every
// offending file.
func (r Router) ValidateBatch(files []FileInput) error {
	if len(files) == 0 {
		return ErrEmptyBatch
	}

	var oversize []string
	for _, f := range files {
		if f.Size > r.MaxFileSize {
			oversize = append(oversize, f.Name)
		}
	}
	if len(oversize) > 0 {
		return &OversizeError{Files: oversize, Limit: r.MaxFileSize}
	}
	return nil
}
