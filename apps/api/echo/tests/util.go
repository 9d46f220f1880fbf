package tests

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	echoapi "github.com/trezcool/feedesk/apps/api/echo"
	"github.com/trezcool/feedesk/core"
	"github.com/trezcool/feedesk/testutil"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

func setup(t *testing.T) (*testutil.Env, *echoapi.Server) {
	env := testutil.NewEnv(t)
	validate, translator := testutil.NewValidator()

	app := echoapi.NewServer(
		env.Conf,
		echoapi.Services{
			Subscriptions: env.Subscriptions,
			Batches:       env.Batches,
			Payments:      env.Payments,
			Access:        env.Access,
			Accounting:    env.Accounting,
		},
		validate,
		translator,
		core.NopLogger,
		echoapi.ServerOptions{DisableReqLogs: true},
	)
	return env, app
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// newMultipartRequest posts fields and, when fileName is set, a `receipt` file.
func newMultipartRequest(t *testing.T, path, token string, fields map[string]string, fileName string) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField(): %v", err)
		}
	}
	if fileName != "" {
		fw, err := w.CreateFormFile("receipt", fileName)
		if err != nil {
			t.Fatalf("CreateFormFile(): %v", err)
		}
		_, _ = fw.Write([]byte("receipt:" + fileName))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("multipart.Close(): %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func getToken(t *testing.T, env *testutil.Env, caller core.Caller) string {
	token, err := echoapi.GenerateToken(echoapi.NewClaims(caller, env.Conf), env.Conf)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("json.Unmarshal(%s): %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ObjectsAreEqualValues(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
