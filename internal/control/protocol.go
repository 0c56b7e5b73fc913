package control

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// maxFrameSize bounds a single request/response frame, guarding against a
// misbehaving client sending a bogus length prefix (grounded on
// jsturma-joblet/persist/internal/ipc/server.go's MaxMessageSize check on
// its own length-prefixed frames).
const maxFrameSize = 16 << 20

// request is one Control Surface message: an operation name plus the
// operation-specific fields spec.md §6 calls "op and operation-specific
// fields."
type request struct {
	Op        string `json:"op"`
	Pipeline  string `json:"pipeline,omitempty"`
	Label     string `json:"label,omitempty"`
	TaskLabel string `json:"task_label,omitempty"`
	Query     string `json:"query,omitempty"`
	Echo      string `json:"echo,omitempty"`
	Follow    bool   `json:"follow,omitempty"`
	DB        bool   `json:"db,omitempty"`
	FS        bool   `json:"fs,omitempty"`
}

// response is one frame sent back to the client. spec.md §4.7: "either
// {success: true, ...} or {status: "ERROR", response: message}." A
// streaming op (LOGS, EVENTS) sends one success frame per item, followed
// by a final {status: "END", ...} frame borrowed from
// original_source/odin/serve.py's APIStatus.END sentinel.
type response struct {
	Success  bool   `json:"success,omitempty"`
	Status   string `json:"status,omitempty"`
	Response any    `json:"response,omitempty"`
}

func ok(payload any) response      { return response{Success: true, Response: payload} }
func end(payload any) response     { return response{Status: "END", Response: payload} }
func errResp(err error) response   { return response{Status: "ERROR", Response: err.Error()} }
func errMsg(message string) response { return response{Status: "ERROR", Response: message} }

// readJSON reads one length-prefixed JSON value from r into v (grounded
// on jsturma-joblet's IPC server: a 4-byte big-endian length prefix
// followed by that many bytes of message body, adapted from protobuf to
// JSON).
func readJSON(r io.Reader, v any) error {
	lengthBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lengthBuf); err != nil {
		return err
	}
	length := binary.BigEndian.Uint32(lengthBuf)
	if length > maxFrameSize {
		return fmt.Errorf("control: frame of %d bytes exceeds maximum %d", length, maxFrameSize)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// writeJSON writes v as one length-prefixed JSON frame to w.
func writeJSON(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	lengthBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lengthBuf, uint32(len(body)))
	if _, err := w.Write(lengthBuf); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// readFrame reads one request frame.
func readFrame(r io.Reader) (request, error) {
	var req request
	if err := readJSON(r, &req); err != nil {
		return req, fmt.Errorf("control: malformed request: %w", err)
	}
	return req, nil
}

// writeFrame writes one response frame.
func writeFrame(w io.Writer, resp response) error {
	return writeJSON(w, resp)
}
