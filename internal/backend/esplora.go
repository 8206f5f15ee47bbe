package backend

import "time"

// EsploraBackend implements Backend using the Esplora API (blockstream.info).
// The endpoints used here are shared with mempool.space, so it extends
// MempoolBackend.
type EsploraBackend struct {
	*MempoolBackend
}

// NewEsploraBackend creates a new Esplora backend.
func NewEsploraBackend(baseURL string, timeout time.Duration) *EsploraBackend {
	return &EsploraBackend{
		MempoolBackend: NewMempoolBackend(baseURL, timeout),
	}
}

// Type returns TypeEsplora.
func (e *EsploraBackend) Type() Type {
	return TypeEsplora
}

// Ensure EsploraBackend implements Backend
var _ Backend = (*EsploraBackend)(nil)
