package testutils

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type TestServer struct {
	*httptest.Server
	t     *testing.T
	Token string
}

func NewTestServer(t *testing.T, handler http.Handler) *TestServer {
	server := httptest.NewServer(handler)
	return &TestServer{
		Server: server,
		t:      t,
	}
}

func (ts *TestServer) request(method, path string, body interface{}) *http.Response {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(ts.t, err)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, ts.URL+path, bodyReader)
	require.NoError(ts.t, err)
	req.Header.Set("Content-Type", "application/json")
	if ts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.Token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(ts.t, err)
	return resp
}

func (ts *TestServer) GET(path string) *http.Response {
	return ts.request("GET", path, nil)
}

func (ts *TestServer) POST(path string, body interface{}) *http.Response {
	return ts.request("POST", path, body)
}

func (ts *TestServer) PUT(path string, body interface{}) *http.Response {
	return ts.request("PUT", path, body)
}

// Login authenticates against /login and stores the bearer token for
// subsequent requests.
func (ts *TestServer) Login(username, password string) {
	resp := ts.POST("/login", map[string]string{"username": username, "password": password})
	defer resp.Body.Close()
	require.Equal(ts.t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(ts.t, json.NewDecoder(resp.Body).Decode(&body))
	ts.Token = body["token"]
}

func AssertJSONResponse(t *testing.T, resp *http.Response, expectedStatus int, target interface{}) {
	require.Equal(t, expectedStatus, resp.StatusCode)

	if target != nil {
		defer resp.Body.Close()
		err := json.NewDecoder(resp.Body).Decode(target)
		require.NoError(t, err)
	}
}

func AssertErrorResponse(t *testing.T, resp *http.Response, expectedStatus int, expectedMessage string) {
	require.Equal(t, expectedStatus, resp.StatusCode)

	defer resp.Body.Close()
	var errorResp map[string]interface{}
	err := json.NewDecoder(resp.Body).Decode(&errorResp)
	require.NoError(t, err)

	if expectedMessage != "" {
		require.Contains(t, errorResp["error"], expectedMessage)
	}
}
