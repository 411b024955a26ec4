package eventstore

import (
	ferrors "git.home.luguber.info/inful/repocache/internal/foundation/errors"
)

// Journal failures. Callers attach the cause and the offending path or key.
var (
	ErrOpenJournal  = ferrors.EventStoreError("open event journal").Build()
	ErrCreateSchema = ferrors.EventStoreError("create events table").Build()
	ErrAppendEvent  = ferrors.EventStoreError("append cache event").Build()
	ErrQueryEvents  = ferrors.EventStoreError("query cache events").Build()
)
