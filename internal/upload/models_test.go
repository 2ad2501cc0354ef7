package upload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartUploadURLRequest_PartNumberForms(t *testing.T) {
	for name, body := range map[string]string{
		"number": `{"key":"k","uploadId":"u","partNumber":2}`,
		"string": `{"key":"k","uploadId":"u","partNumber":"2"}`,
	} {
		t.Run(name, func(t *testing.T) {
			var req PartUploadURLRequest
			require.NoError(t, json.Unmarshal([]byte(body), &req))
			assert.Equal(t, PartUploadURLRequest{Key: "k", UploadID: "u", PartNumber: 2}, req)
		})
	}

	var req PartUploadURLRequest
	require.NoError(t, json.Unmarshal([]byte(`{"key":"k","uploadId":"u"}`), &req))
	assert.Zero(t, req.PartNumber)

	for _, bad := range []string{`{"partNumber":"two"}`, `{"partNumber":2.5}`, `{"partNumber":99999999999}`} {
		assert.Error(t, json.Unmarshal([]byte(bad), &req), bad)
	}
}
