package transport

import "errors"

var ErrPeerDisconnected = errors.New("peer disconnected")
