package media

import "sync"

// Opener builds the Image for a file an adapter found on disk.
type Opener func(path string, size *Size) *Image

var (
	openerMu sync.RWMutex
	opener   Opener = FromFile
)

// SetOpener replaces the opener used by Open. nil restores FromFile.
func SetOpener(o Opener) {
	openerMu.Lock()
	defer openerMu.Unlock()
	if o == nil {
		o = FromFile
	}
	opener = o
}

// Open returns the Image for path using the configured opener.
func Open(path string, size *Size) *Image {
	openerMu.RLock()
	o := opener
	openerMu.RUnlock()
	return o(path, size)
}
