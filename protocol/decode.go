package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrUnknownPacket is returned by Decode when the envelope's name has no
// registered decoder. Per spec §4.3, an unknown packet name is logged and
// dropped -- it must never terminate the session.
var ErrUnknownPacket = errors.New("protocol: unknown packet name")

// decoders maps a packet name to a function producing the concrete,
// decoded payload. This is an explicit registration table rather than
// reflection-based dispatch, per spec §9 Design Notes.
var decoders = map[string]func([]byte) (interface{}, error){
	NameHandshake: func(b []byte) (interface{}, error) {
		var v Handshake
		return v, json.Unmarshal(b, &v)
	},
	NameSubmissionAcknowledged: func(b []byte) (interface{}, error) {
		var v SubmissionAcknowledged
		return v, json.Unmarshal(b, &v)
	},
	NameGradingBegin: func(b []byte) (interface{}, error) {
		var v GradingBegin
		return v, json.Unmarshal(b, &v)
	},
	NameGradingEnd: func(b []byte) (interface{}, error) {
		var v GradingEnd
		return v, json.Unmarshal(b, &v)
	},
	NameCompileError: func(b []byte) (interface{}, error) {
		var v CompileError
		return v, json.Unmarshal(b, &v)
	},
	NameCompileMessage: func(b []byte) (interface{}, error) {
		var v CompileMessage
		return v, json.Unmarshal(b, &v)
	},
	NameBatchBegin: func(b []byte) (interface{}, error) {
		var v BatchBegin
		return v, json.Unmarshal(b, &v)
	},
	NameBatchEnd: func(b []byte) (interface{}, error) {
		var v BatchEnd
		return v, json.Unmarshal(b, &v)
	},
	NameTestCaseStatus: func(b []byte) (interface{}, error) {
		var v TestCaseStatus
		return v, json.Unmarshal(b, &v)
	},
	NameInternalError: func(b []byte) (interface{}, error) {
		var v InternalError
		return v, json.Unmarshal(b, &v)
	},
	NameSubmissionTerminated: func(b []byte) (interface{}, error) {
		var v SubmissionTerminated
		return v, json.Unmarshal(b, &v)
	},
	NamePingResponse: func(b []byte) (interface{}, error) {
		var v PingResponse
		return v, json.Unmarshal(b, &v)
	},
	NameSupportedProblems: func(b []byte) (interface{}, error) {
		var v SupportedProblems
		return v, json.Unmarshal(b, &v)
	},
	NameExecutors: func(b []byte) (interface{}, error) {
		var v Executors
		return v, json.Unmarshal(b, &v)
	},
	NameTestCaseIDE: func(b []byte) (interface{}, error) {
		var v TestCaseIDE
		if err := json.Unmarshal(b, &v); err != nil {
			return v, err
		}
		v.Raw = append(json.RawMessage(nil), b...)
		return v, nil
	},
}

// Decode inspects the "name" discriminator of a raw JSON packet and
// returns the fully-typed payload. It returns ErrUnknownPacket, wrapped
// with the offending name, if no decoder is registered; callers must treat
// that as non-fatal per spec §4.3.
func Decode(raw []byte) (name string, payload interface{}, err error) {
	var env Envelope
	if err = json.Unmarshal(raw, &env); err != nil {
		return "", nil, errors.Wrap(err, "protocol: decode envelope")
	}
	if env.Name == "" {
		return "", nil, errors.New("protocol: missing name discriminator")
	}

	decodeFn, ok := decoders[env.Name]
	if !ok {
		return env.Name, nil, errors.Wrapf(ErrUnknownPacket, "name=%s", env.Name)
	}

	payload, err = decodeFn(raw)
	if err != nil {
		return env.Name, nil, errors.Wrapf(err, "protocol: decode payload name=%s", env.Name)
	}
	return env.Name, payload, nil
}

// Encode marshals a Server->Worker packet. It exists mainly for symmetry
// and to centralize the "pretty-print while tracing" tweak point; today it
// is a thin wrapper over encoding/json.
func Encode(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	return b, errors.Wrap(err, "protocol: encode")
}
