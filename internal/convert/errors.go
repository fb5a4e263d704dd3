package convert

import (
	"errors"

	"github.com/inflaborg/ccrelay-sub001/internal/relay"
)

// errStreamDecode wraps relay.ErrConverterInvalid for malformed SSE chunks.
var errStreamDecode = errors.Join(relay.ErrConverterInvalid, errors.New("malformed SSE chunk"))
