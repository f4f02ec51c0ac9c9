package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	plain := Client("bad signature")
	assert.Equal(t, "client: bad signature", plain.Error())

	wrapped := Deploy("push rejected", errors.New("exit status 1"))
	assert.Equal(t, "deploy: push rejected: exit status 1", wrapped.Error())
}

func TestKindOfWalksChain(t *testing.T) {
	inner := Subprocess("git fetch failed", 128, errors.New("network down"))
	outer := fmt.Errorf("deploying dev/master: %w", inner)

	assert.Equal(t, KindSubprocess, KindOf(outer))
	assert.True(t, IsKind(outer, KindSubprocess))
	assert.False(t, IsKind(outer, KindClient))
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("anything")))
}

func TestKindLabel(t *testing.T) {
	assert.Equal(t, "ClientError", KindClient.Label())
	assert.Equal(t, "SubprocessError", KindSubprocess.Label())
	assert.Equal(t, "DeployError", KindDeploy.Label())
	assert.Equal(t, "InternalError", KindInternal.Label())
	assert.Equal(t, "InternalError", Kind("bogus").Label())
}

func TestTagStable(t *testing.T) {
	a := Tag(errors.New("boom"))
	b := Tag(errors.New("boom"))
	require.Len(t, a, 32)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Tag(errors.New("other")))
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{Client("x"), 2},
		{Subprocess("x", 1, nil), 3},
		{Deploy("x", nil), 4},
		{errors.New("x"), 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCodeFor(tt.err))
	}
}

func TestHTTPAdapterStatusCodes(t *testing.T) {
	a := NewHTTPAdapter(nil)
	assert.Equal(t, http.StatusOK, a.StatusCodeFor(nil))
	assert.Equal(t, http.StatusBadRequest, a.StatusCodeFor(Client("nope")))
	assert.Equal(t, http.StatusInternalServerError, a.StatusCodeFor(errors.New("boom")))
	assert.Equal(t, http.StatusInternalServerError, a.StatusCodeFor(Deploy("gone", nil)))
}

func TestWriteErrorEnvelope(t *testing.T) {
	a := NewHTTPAdapter(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/github", nil)

	err := Client("signature mismatch")
	a.WriteError(rec, req, err)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "client", env.ErrorType)
	assert.Equal(t, Tag(err), env.ErrorTraceback)
}

func TestWriteParseErrorShape(t *testing.T) {
	a := NewHTTPAdapter(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/github", nil)

	a.WriteParseError(rec, req, errors.New("invalid character"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t,
		`{"error_type":"json parsability","error_message":"expected json","path":[]}`,
		rec.Body.String())
}

func TestWriteErrorNil(t *testing.T) {
	a := NewHTTPAdapter(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/github", nil)

	a.WriteError(rec, req, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
}
