//go:build nogpu

package gpu

// NewHALAdapter is unavailable in nogpu builds; callers fall back to
// the software path.
func NewHALAdapter() (Adapter, error) {
	return nil, ErrNoBackend
}

// AdoptHALAdapter is unavailable in nogpu builds.
func AdoptHALAdapter(any) (Adapter, error) {
	return nil, ErrNoBackend
}
