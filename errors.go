package gtfsrt

import (
	"errors"

	"github.com/jamespfennell/gtfsrt/warnings"
	"github.com/jamespfennell/gtfsrt/wire"
)

var (
	// ErrMalformedInput is matched by errors caused by bytes that are not a valid encoding.
	ErrMalformedInput = wire.ErrMalformedInput
	// ErrSchemaViolation is matched by the validation warnings and by the error returned for
	// messages with an unusable header. MalformedEntity warnings match ErrMalformedInput instead.
	ErrSchemaViolation = warnings.ErrSchemaViolation
	// ErrUnsupportedIncrementality is matched by the warning reported for DIFFERENTIAL feeds.
	ErrUnsupportedIncrementality = warnings.ErrUnsupportedIncrementality
	// ErrNoTranslationAvailable is returned when no translation of a text matches the requested
	// language, the default language or the untagged fallback.
	ErrNoTranslationAvailable = errors.New("no translation available")
)
