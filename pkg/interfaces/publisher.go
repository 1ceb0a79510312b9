package interfaces

import "schedboard/pkg/types"

// Publisher fans a change event out to live connections. With no targets the
// event goes to every registered connection; with targets it goes only to
// connections currently registered for those identity ids (identities with
// no live connection are skipped, never queued).
//
// Publish is best-effort: delivery failures are handled internally and must
// never surface to the caller. Synchronous only up to "handed to transport".
type Publisher interface {
	Publish(event *types.ChangeEvent, targetIDs ...string)
}
