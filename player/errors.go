package player

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/xmedia/xmedia/network"
)

// ErrorCode identifies why the engine failed.
type ErrorCode int

const (
	ErrorUnspecified ErrorCode = iota
	ErrorRemote
	ErrorBehindLiveWindow
	ErrorTimeout
	ErrorFailedRuntimeCheck

	ErrorIOUnspecified
	ErrorIONetworkConnectionFailed
	ErrorIONetworkConnectionTimeout
	ErrorIOInvalidHTTPContentType
	ErrorIOBadHTTPStatus
	ErrorIOFileNotFound
	ErrorIONoPermission
	ErrorIOReadPositionOutOfRange

	ErrorParsingContainerMalformed
	ErrorParsingManifestMalformed
	ErrorParsingContainerUnsupported
	ErrorParsingManifestUnsupported

	ErrorDecoderInitFailed
	ErrorDecoderQueryFailed
	ErrorDecodingFailed
	ErrorDecodingFormatExceedsCapabilities
	ErrorDecodingFormatUnsupported

	ErrorAudioTrackInitFailed
	ErrorAudioTrackWriteFailed
)

var errorCodeNames = map[ErrorCode]string{
	ErrorUnspecified:                       "unspecified",
	ErrorRemote:                            "remote",
	ErrorBehindLiveWindow:                  "behind live window",
	ErrorTimeout:                           "timeout",
	ErrorFailedRuntimeCheck:                "failed runtime check",
	ErrorIOUnspecified:                     "io unspecified",
	ErrorIONetworkConnectionFailed:         "network connection failed",
	ErrorIONetworkConnectionTimeout:        "network connection timeout",
	ErrorIOInvalidHTTPContentType:          "invalid http content type",
	ErrorIOBadHTTPStatus:                   "bad http status",
	ErrorIOFileNotFound:                    "file not found",
	ErrorIONoPermission:                    "no permission",
	ErrorIOReadPositionOutOfRange:          "read position out of range",
	ErrorParsingContainerMalformed:         "container malformed",
	ErrorParsingManifestMalformed:          "manifest malformed",
	ErrorParsingContainerUnsupported:       "container unsupported",
	ErrorParsingManifestUnsupported:        "manifest unsupported",
	ErrorDecoderInitFailed:                 "decoder init failed",
	ErrorDecoderQueryFailed:                "decoder query failed",
	ErrorDecodingFailed:                    "decoding failed",
	ErrorDecodingFormatExceedsCapabilities: "format exceeds capabilities",
	ErrorDecodingFormatUnsupported:         "format unsupported",
	ErrorAudioTrackInitFailed:              "audio track init failed",
	ErrorAudioTrackWriteFailed:             "audio track write failed",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return "unknown"
}

// TransferErrorCode maps a data path failure to an error code.
func TransferErrorCode(err error) ErrorCode {
	if err == nil {
		return ErrorUnspecified
	}

	if se, ok := network.IsStatusError(err); ok {
		if se.Code == 416 {
			return ErrorIOReadPositionOutOfRange
		}
		return ErrorIOBadHTTPStatus
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorIONetworkConnectionTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorIONetworkConnectionTimeout
		}
		return ErrorIONetworkConnectionFailed
	}

	return ErrorIOUnspecified
}

// endFileErrorCode maps mpv's end-file "file_error" strings.
func endFileErrorCode(reason string) ErrorCode {
	switch r := strings.ToLower(reason); {
	case strings.Contains(r, "unrecognized file format"), strings.Contains(r, "unknown file format"):
		return ErrorParsingContainerUnsupported
	case strings.Contains(r, "no audio or video data played"):
		return ErrorDecodingFailed
	case strings.Contains(r, "video output initialization failed"):
		return ErrorDecoderInitFailed
	case strings.Contains(r, "audio output initialization failed"):
		return ErrorAudioTrackInitFailed
	case strings.Contains(r, "unsupported"), strings.Contains(r, "not implemented"):
		return ErrorDecodingFormatUnsupported
	case strings.Contains(r, "loading failed"):
		return ErrorIOUnspecified
	default:
		return ErrorUnspecified
	}
}
