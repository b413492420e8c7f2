package client

import "errors"

var (
    ErrClosed           = errors.New("groupchat: client closed")
    ErrNilSession       = errors.New("groupchat: nil Session")
    ErrNilCodec         = errors.New("groupchat: nil Codec")
    ErrNilStructCodec   = errors.New("groupchat: nil StructCodec")
    ErrNoWebCredentials = errors.New("groupchat: web credentials not configured")
    ErrBadResponse      = errors.New("groupchat: malformed response")
)
