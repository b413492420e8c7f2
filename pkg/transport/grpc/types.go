package grpc

// Wire types of the groupchat.v1.Gateway service, carried by the JSON codec.

const (
    serviceName   = "groupchat.v1.Gateway"
    methodCall    = "/groupchat.v1.Gateway/Call"
    methodUpload  = "/groupchat.v1.Gateway/Upload"
    methodStatus  = "/groupchat.v1.Gateway/Status"
    methodPush    = "/groupchat.v1.Gateway/Push"
    headerRequest = "x-request-id"
)

type empty struct{}

type statusBlob struct {
    Data []byte `json:"data"`
}

type callRequest struct {
    Cmd       string `json:"cmd"`
    Body      []byte `json:"body,omitempty"`
    TimeoutMs int64  `json:"timeoutMs,omitempty"`
    OneWay    bool   `json:"oneWay,omitempty"`
}

type callResponse struct {
    Body    []byte `json:"body,omitempty"`
    Code    int64  `json:"code,omitempty"`
    Message string `json:"message,omitempty"`
}

// uploadChunk is one piece of a blob transfer. Chunks of one transfer share
// UploadID; the final chunk triggers the backend upload.
type uploadChunk struct {
    UploadID  string `json:"uploadId"`
    CommandID int    `json:"commandId"`
    MD5       []byte `json:"md5,omitempty"`
    Size      int64  `json:"size"`
    Ext       []byte `json:"ext,omitempty"`
    Offset    int64  `json:"offset"`
    Data      []byte `json:"data,omitempty"`
    Final     bool   `json:"final,omitempty"`
}

type pushSubscribe struct {
    ClientID string `json:"clientId,omitempty"`
}

type pushEvent struct {
    Key     string `json:"key"`
    Payload []byte `json:"payload,omitempty"`
}
