package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

const writeSkew = `{
	"initial": {"x": "0", "y": "0"},
	"transactions": [
		{"id": 1, "ops": [{"kind": "begin", "start": 1}, {"kind": "read", "key": "x", "value": "0"}, {"kind": "write", "key": "y", "value": "1"}, {"kind": "commit", "start": 2, "end": 2}]},
		{"id": 2, "ops": [{"kind": "begin", "start": 3}, {"kind": "read", "key": "y", "value": "0"}, {"kind": "write", "key": "x", "value": "1"}, {"kind": "commit", "start": 4, "end": 4}]}
	]
}`

const serial = `{
	"initial": {"x": "0"},
	"transactions": [
		{"id": 1, "ops": [{"kind": "begin", "start": 1, "end": 1}, {"kind": "write", "key": "x", "value": "1"}, {"kind": "commit", "start": 2, "end": 2}]},
		{"id": 2, "ops": [{"kind": "begin", "start": 3, "end": 3}, {"kind": "read", "key": "x", "value": "1"}, {"kind": "commit", "start": 4, "end": 4}]}
	]
}`

const commitWithoutBegin = `{
	"initial": {"x": "0"},
	"transactions": [
		{"id": 7, "ops": [{"kind": "commit"}]}
	]
}`

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(NewServer())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("Did not expect to receive an error. Got %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status %v. Got %v", http.StatusOK, resp.StatusCode)
	}
}

func TestVerify(t *testing.T) {
	srv := httptest.NewServer(NewServer())
	defer srv.Close()

	for i, test := range verifyTests {
		resp, err := http.Post(srv.URL+"/verify"+test.query, "application/json", strings.NewReader(test.body))
		if err != nil {
			t.Fatalf("Test %v: Did not expect to receive an error. Got %v", i, err)
		}
		if resp.StatusCode != test.status {
			t.Errorf("Test %v: Expected status %v. Got %v", i, test.status, resp.StatusCode)
		}

		var out map[string]interface{}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Errorf("Test %v: Expected a JSON response. Got %v", i, err)
		}
		resp.Body.Close()

		if test.status != http.StatusOK {
			if msg, _ := out["error"].(string); !strings.Contains(msg, test.contains) {
				t.Errorf("Test %v: Expected the error to contain %q. Got %q", i, test.contains, msg)
			}
			continue
		}
		if _, err := uuid.Parse(resp.Header.Get(runIdHeader)); err != nil {
			t.Errorf("Test %v: Expected a run id. Got %q", i, resp.Header.Get(runIdHeader))
		}
		if out["result"] != test.result {
			t.Errorf("Test %v: Expected result %v. Got %v", i, test.result, out["result"])
		}
		if violations, _ := out["violations"].([]interface{}); len(violations) != test.violations {
			t.Errorf("Test %v: Expected %v violations. Got %v", i, test.violations, len(violations))
		}
	}
}

var verifyTests = []struct {
	query string
	body  string

	status     int
	result     string
	violations int
	contains   string
}{
	{"", writeSkew, http.StatusOK, "NotSerializable", 1, ""},
	{"?realtime=true", writeSkew, http.StatusOK, "NotSerializable", 1, ""},
	{"?maxViolations=1", writeSkew, http.StatusOK, "NotSerializable", 1, ""},
	{"", serial, http.StatusOK, "Serializable", 0, ""},
	{"?realtime=true", serial, http.StatusOK, "StrictlySerializable", 0, ""},
	{"", commitWithoutBegin, http.StatusBadRequest, "", 0, "transaction 7"},
	{"", "{not json", http.StatusBadRequest, "", 0, "decode"},
	{"?maxViolations=many", serial, http.StatusBadRequest, "", 0, "maxViolations"},
}

func TestMetrics(t *testing.T) {
	srv := httptest.NewServer(NewServer())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/verify", "application/json", strings.NewReader(writeSkew))
	if err != nil {
		t.Fatalf("Did not expect to receive an error. Got %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("Did not expect to receive an error. Got %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Did not expect to receive an error. Got %v", err)
	}
	for _, expected := range []string{
		`cobraverifier_verifications_total{result="NotSerializable"}`,
		`cobraverifier_violations_total{anomaly="G2 (write skew)"}`,
		"cobraverifier_verify_duration_seconds",
	} {
		if !strings.Contains(string(body), expected) {
			t.Errorf("Expected the metrics to contain %v", expected)
		}
	}
}
