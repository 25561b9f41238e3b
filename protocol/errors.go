package protocol

import "errors"

var (
	ErrUnknownKind      = errors.New("unknown message kind")
	ErrUnexpectedKind   = errors.New("unexpected message kind")
	ErrInvalidLength    = errors.New("invalid message length")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrBufferTooSmall   = errors.New("buffer too small for message")
	ErrInvalidAddress   = errors.New("invalid link address")
	ErrInvalidFirmware  = errors.New("invalid firmware version")
	ErrOutOfRange       = errors.New("duration out of range")
	ErrUnknownPreset    = errors.New("unknown schedule preset")
)
