package shopprobe

import (
	"encoding/json"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/oasdiff/yaml"
)

func sampleSummary() RunSummary {
	return RunSummary{
		BaseURL: "http://localhost:3000",
		Results: []Result{
			{Probe: "health", Title: "Health check", Passed: true, Duration: 1500 * time.Millisecond,
				Exchanges: []Exchange{{Method: "GET", Path: "/health", Status: 200}}},
			{Probe: "dashboard", Title: "Dashboard", Skipped: true},
			{Probe: "login", Title: "Log in (admin)", ErrorText: "POST /api/auth/login: status 401: Credenciais inválidas", Duration: 800 * time.Millisecond,
				Exchanges: []Exchange{{
					Method:          "POST",
					Path:            "/api/auth/login",
					Status:          401,
					ErrorText:       "status 401",
					RequestHeaders:  map[string]string{"authorization": "Bearer secret", "x-request-id": "abc"},
					ResponseHeaders: map[string]string{"set-cookie": "sid=1", "content-type": "application/json"},
				}}},
		},
		Total:        3,
		Passed:       1,
		Failed:       1,
		Skipped:      1,
		TotalElapsed: 3 * time.Second,
	}
}

func TestWriteReportJSON(t *testing.T) {
	out := filepath.Join(t.TempDir(), "report.json")
	if err := WriteReport("json", out, sampleSummary()); err != nil {
		t.Fatalf("write json: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var decoded RunSummary
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Failed != 1 || len(decoded.Results) != 3 || decoded.BaseURL != "http://localhost:3000" {
		t.Fatalf("unexpected decoded summary %+v", decoded)
	}
	if strings.Contains(string(data), "Bearer secret") {
		t.Fatalf("authorization leaked into report")
	}
}

func TestWriteReportYAML(t *testing.T) {
	out := filepath.Join(t.TempDir(), "report.yaml")
	if err := WriteReport("yaml", out, sampleSummary()); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var decoded map[string]any
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if decoded["baseUrl"] != "http://localhost:3000" {
		t.Fatalf("expected json field names in yaml, got %v", decoded)
	}
	if strings.Contains(string(data), "Bearer secret") || strings.Contains(string(data), "sid=1") {
		t.Fatalf("credentials leaked into yaml report")
	}
}

func TestWriteReportJUnit(t *testing.T) {
	out := filepath.Join(t.TempDir(), "report.xml")
	if err := WriteReport("junit", out, sampleSummary()); err != nil {
		t.Fatalf("write junit: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read junit: %v", err)
	}
	var suite junitTestsuite
	if err := xml.Unmarshal(data, &suite); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if suite.Tests != 3 || suite.Failures != 1 || suite.Skipped != 1 {
		t.Fatalf("unexpected suite %+v", suite)
	}
	fail := suite.Cases[2].Failure
	if fail == nil || fail.Type != "status" || !strings.Contains(fail.Body, "POST /api/auth/login -> 401") {
		t.Fatalf("unexpected failure %+v", fail)
	}
	if suite.Cases[1].Skipped == nil {
		t.Fatalf("dashboard should be skipped")
	}
}

func TestFailureTypes(t *testing.T) {
	cases := map[string]Result{
		"transport":    {Exchanges: []Exchange{{ErrorText: "http request failed: refused"}}},
		"status":       {Exchanges: []Exchange{{Status: 500, ErrorText: "status 500"}}},
		"precondition": {ErrorText: "authentication required"},
		"check":        {Exchanges: []Exchange{{Status: 200}}, ErrorText: "checks failed"},
	}
	for want, r := range cases {
		if got := failureType(r); got != want {
			t.Fatalf("failureType = %s, want %s", got, want)
		}
	}
}

func TestRedactSummary(t *testing.T) {
	sum := sampleSummary()

	masked := RedactSummary(sum)
	ex := masked.Results[2].Exchanges[0]
	if ex.RequestHeaders["authorization"] != "********" || ex.ResponseHeaders["set-cookie"] != "********" {
		t.Fatalf("credentials not masked: %+v %+v", ex.RequestHeaders, ex.ResponseHeaders)
	}
	if ex.RequestHeaders["x-request-id"] != "abc" {
		t.Fatalf("unrelated header changed")
	}
	if sum.Results[2].Exchanges[0].RequestHeaders["authorization"] != "Bearer secret" {
		t.Fatalf("input summary must not be modified")
	}

	skipped := RedactSummary(sum, "X-Request-ID")
	if _, ok := skipped.Results[2].Exchanges[0].RequestHeaders["x-request-id"]; ok {
		t.Fatalf("x-request-id should be dropped")
	}
}

func TestWriteReportHTML(t *testing.T) {
	out := filepath.Join(t.TempDir(), "report.html")
	if err := WriteReport("html", out, sampleSummary()); err != nil {
		t.Fatalf("write html: %v", err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read html: %v", err)
	}
	html := string(got)
	for _, want := range []string{
		"<title>shopprobe report</title>",
		"Total: 3",
		`<span class="status-pass">passed</span>`,
		`<span class="status-skip">skipped</span>`,
		`<span class="status-fail">failed</span>`,
		"Credenciais inválidas",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("html report missing %q", want)
		}
	}
}

func TestWriteReportUnknownFormat(t *testing.T) {
	if err := WriteReport("csv", filepath.Join(t.TempDir(), "r.csv"), RunSummary{}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
