package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHandshake(t *testing.T) {
	raw := []byte(`{"name":"handshake","id":"j1","key":"K","problems":[["p1"]],"executors":{"py3":[["CPython",[3,11,5]]]}}`)

	name, payload, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, NameHandshake, name)

	hs, ok := payload.(Handshake)
	require.True(t, ok)
	assert.Equal(t, "j1", hs.ID)
	assert.Equal(t, "K", hs.Key)
	assert.Equal(t, []string{"p1"}, hs.Problems)
	require.Len(t, hs.Executors["py3"], 1)
	assert.Equal(t, "CPython", hs.Executors["py3"][0].Name)
	assert.Equal(t, []int{3, 11, 5}, hs.Executors["py3"][0].Version)
}

func TestDecodeUnknownPacketIsNonFatal(t *testing.T) {
	raw := []byte(`{"name":"something-new","foo":"bar"}`)
	name, payload, err := Decode(raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownPacket)
	assert.Equal(t, "something-new", name)
	assert.Nil(t, payload)
}

func TestDecodeMissingNameFails(t *testing.T) {
	_, _, err := Decode([]byte(`{"foo":"bar"}`))
	require.Error(t, err)
}

func TestDecodeMalformedJSONFails(t *testing.T) {
	_, _, err := Decode([]byte(`{not json`))
	require.Error(t, err)
}

func TestDecodeTestCaseStatus(t *testing.T) {
	raw := []byte(`{"name":"test-case-status","submission-id":42,"cases":[{"position":1,"status":0,"time":0.01,"memory":1024,"points":1,"total-points":1}]}`)
	name, payload, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, NameTestCaseStatus, name)

	tcs, ok := payload.(TestCaseStatus)
	require.True(t, ok)
	assert.EqualValues(t, 42, tcs.SubmissionID)
	require.Len(t, tcs.Cases, 1)
	assert.Equal(t, 1, tcs.Cases[0].Position)
}

func TestDecodeTestCaseIDENestedIdentity(t *testing.T) {
	raw := []byte(`{"name":"testcase-ide","submission-id":1,"result":{"current_submission_id":7}}`)
	_, payload, err := Decode(raw)
	require.NoError(t, err)

	ide, ok := payload.(TestCaseIDE)
	require.True(t, ok)
	assert.EqualValues(t, 7, ide.Result.CurrentSubmissionID)
}

func TestExecutorEntryRoundTrip(t *testing.T) {
	entry := ExecutorEntry{Name: "CPython", Version: []int{3, 11, 5}}
	b, err := entry.MarshalJSON()
	require.NoError(t, err)

	var decoded ExecutorEntry
	require.NoError(t, decoded.UnmarshalJSON(b))
	assert.Equal(t, entry, decoded)
}

func TestEncodeSubmissionRequest(t *testing.T) {
	req := SubmissionRequest{
		Name:         NameSubmissionRequest,
		SubmissionID: 42,
		ProblemID:    "p1",
		Language:     "py3",
		Source:       "print(1)",
	}
	b, err := Encode(req)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"submission-id":42`)
}
