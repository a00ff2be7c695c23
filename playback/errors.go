package playback

import (
	"errors"
	"fmt"

	"github.com/xmedia/xmedia/player"
)

var (
	// ErrReleased is returned by every control of a released orchestrator.
	ErrReleased = errors.New("orchestrator released")

	// ErrNotPrepared is returned by controls that need a prepared engine.
	ErrNotPrepared = errors.New("no media prepared")
)

// Kind groups engine failures by what the caller can do about them.
type Kind int

const (
	UnknownError Kind = iota
	SourceError
	DecoderError
	NetworkError
)

func (k Kind) String() string {
	switch k {
	case SourceError:
		return "source"
	case DecoderError:
		return "decoder"
	case NetworkError:
		return "network"
	default:
		return "unknown"
	}
}

// IsRecoverable reports whether retrying may succeed. Only network failures are.
func IsRecoverable(k Kind) bool {
	return k == NetworkError
}

// Classify maps every engine error code to exactly one Kind.
func Classify(code player.ErrorCode) Kind {
	switch code {
	case player.ErrorParsingContainerMalformed,
		player.ErrorParsingManifestMalformed,
		player.ErrorParsingContainerUnsupported,
		player.ErrorParsingManifestUnsupported,
		player.ErrorIOBadHTTPStatus,
		player.ErrorIOInvalidHTTPContentType,
		player.ErrorIOFileNotFound:
		return SourceError

	case player.ErrorDecoderInitFailed,
		player.ErrorDecoderQueryFailed,
		player.ErrorDecodingFailed,
		player.ErrorDecodingFormatExceedsCapabilities,
		player.ErrorDecodingFormatUnsupported:
		return DecoderError

	case player.ErrorIONetworkConnectionFailed,
		player.ErrorIONetworkConnectionTimeout,
		player.ErrorTimeout,
		player.ErrorIOUnspecified:
		return NetworkError

	default:
		return UnknownError
	}
}

// Error is a classified playback failure.
type Error struct {
	Kind    Kind
	Code    player.ErrorCode
	Message string
	Cause   error
}

func newError(e player.ErrorEvent) *Error {
	msg := e.Message
	if msg == "" {
		msg = e.Code.String()
	}
	return &Error{
		Kind:    Classify(e.Code),
		Code:    e.Code,
		Message: msg,
		Cause:   e.Cause,
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error (%s): %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
