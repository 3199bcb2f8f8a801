package logging

import "errors"

var ErrUnknownBackend = errors.New("unknown logging backend")
