package shopprobe

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html/template"
	"maps"
	"os"
	"strings"

	"github.com/oasdiff/yaml"
)

const maskedValue = "********"

// RedactSummary returns a copy of sum safe to write to disk: credentials in
// request and response headers are masked and headers named in skip are
// dropped (case-insensitive).
func RedactSummary(sum RunSummary, skip ...string) RunSummary {
	skipSet := map[string]struct{}{}
	for _, h := range skip {
		skipSet[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}

	out := sum
	out.Results = make([]Result, len(sum.Results))
	for i, res := range sum.Results {
		res.Exchanges = append([]Exchange(nil), res.Exchanges...)
		for j := range res.Exchanges {
			ex := &res.Exchanges[j]
			ex.RequestHeaders = redactHeaders(ex.RequestHeaders, skipSet)
			ex.ResponseHeaders = redactHeaders(ex.ResponseHeaders, skipSet)
		}
		out.Results[i] = res
	}
	return out
}

func redactHeaders(hdrs map[string]string, skipSet map[string]struct{}) map[string]string {
	if hdrs == nil {
		return nil
	}
	out := maps.Clone(hdrs)
	for k := range out {
		lk := strings.ToLower(k)
		if _, skip := skipSet[lk]; skip {
			delete(out, k)
			continue
		}
		switch lk {
		case "authorization", "proxy-authorization", "cookie", "set-cookie":
			out[k] = maskedValue
		}
	}
	return out
}

// WriteReportJSON writes a RunSummary to a JSON file.
func WriteReportJSON(path string, sum RunSummary) error {
	data, err := json.MarshalIndent(RedactSummary(sum), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// WriteReportYAML writes a RunSummary as YAML using the JSON field names.
func WriteReportYAML(path string, sum RunSummary) error {
	data, err := yaml.Marshal(RedactSummary(sum))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Minimal JUnit reporter for CI compatibility.
type junitTestsuite struct {
	XMLName  xml.Name        `xml:"testsuite"`
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Skipped  int             `xml:"skipped,attr"`
	Time     string          `xml:"time,attr"`
	Cases    []junitTestcase `xml:"testcase"`
}

type junitTestcase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

type junitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// WriteReportJUnit writes a RunSummary to JUnit XML, one testcase per probe.
func WriteReportJUnit(path string, sum RunSummary) error {
	ts := junitTestsuite{
		Name:     "shopprobe",
		Tests:    len(sum.Results),
		Failures: sum.Failed,
		Skipped:  sum.Skipped,
		Time:     fmt.Sprintf("%.3f", sum.TotalElapsed.Seconds()),
	}
	for _, r := range sum.Results {
		tc := junitTestcase{
			Name:      r.Probe,
			Classname: "shopprobe." + r.Probe,
			Time:      fmt.Sprintf("%.3f", r.Duration.Seconds()),
		}
		if r.Skipped {
			tc.Skipped = &junitSkipped{}
		} else if !r.Passed {
			tc.Failure = &junitFailure{
				Message: r.ErrorText,
				Type:    failureType(r),
				Body:    failureBody(r),
			}
		}
		ts.Cases = append(ts.Cases, tc)
	}
	data, err := xml.MarshalIndent(ts, "", "  ")
	if err != nil {
		return err
	}
	data = append([]byte(xml.Header), data...)
	return os.WriteFile(path, data, 0o644)
}

func failureType(r Result) string {
	for _, ex := range r.Exchanges {
		if ex.ErrorText != "" && !ex.Responded() {
			return "transport"
		}
		if ex.ErrorText != "" {
			return "status"
		}
	}
	if len(r.Exchanges) == 0 {
		return "precondition"
	}
	return "check"
}

func failureBody(r Result) string {
	var b strings.Builder
	b.WriteString(r.ErrorText)
	for _, ex := range r.Exchanges {
		fmt.Fprintf(&b, "\n%s %s -> %d (%s)", ex.Method, ex.Path, ex.Status, ex.Duration)
	}
	return b.String()
}

// HTML template structured as a status table, one row per probe.
var htmlTemplate = template.Must(template.New("report").Parse(`<!doctype html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <title>shopprobe report</title>
  <style>
    body { font-family: Arial, sans-serif; margin: 16px; background: #fafafa; }
    h1 { margin-bottom: 8px; }
    .summary { margin-bottom: 16px; }
    table { width: 100%; border-collapse: collapse; background: #fff; }
    th, td { padding: 8px 10px; border: 1px solid #e0e0e0; font-size: 14px; vertical-align: top; }
    th { background: #f5f5f5; text-align: left; }
    .status-pass { color: #2e7d32; font-weight: 600; }
    .status-fail { color: #c62828; font-weight: 600; }
    .status-skip { color: #9e9e9e; font-weight: 600; }
    .mono { font-family: "SFMono-Regular", Consolas, "Liberation Mono", Menlo, monospace; font-size: 12px; }
  </style>
</head>
<body>
  <h1>shopprobe report</h1>
  <div class="summary">
    <div>Target: <span class="mono">{{.BaseURL}}</span></div>
    <div>Total: {{.Total}} &nbsp; Passed: {{.Passed}} &nbsp; Failed: {{.Failed}} &nbsp; Skipped: {{.Skipped}} &nbsp; Time: {{.TotalElapsed}}</div>
  </div>
  <table>
    <thead>
      <tr>
        <th>#</th>
        <th>Probe</th>
        <th>Status</th>
        <th>Requests</th>
        <th>Duration</th>
        <th>Error</th>
      </tr>
    </thead>
    <tbody>
      {{range $idx, $r := .Results}}
      <tr>
        <td>{{$idx}}</td>
        <td>{{$r.Title}} <span class="mono">({{$r.Probe}})</span></td>
        <td>
          {{if $r.Skipped}}<span class="status-skip">skipped</span>{{else if $r.Passed}}<span class="status-pass">passed</span>{{else}}<span class="status-fail">failed</span>{{end}}
        </td>
        <td class="mono">{{range $r.Exchanges}}{{.Method}} {{.Path}} &rarr; {{.Status}}<br/>{{end}}</td>
        <td>{{$r.Duration}}</td>
        <td>{{if $r.ErrorText}}<span class="mono">{{$r.ErrorText}}</span>{{end}}</td>
      </tr>
      {{end}}
    </tbody>
  </table>
</body>
</html>`))

// WriteReportHTML renders a simple HTML table summary.
func WriteReportHTML(path string, sum RunSummary) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return htmlTemplate.Execute(f, RedactSummary(sum))
}

// WriteReport picks the reporter function by format.
func WriteReport(format, path string, sum RunSummary) error {
	switch strings.ToLower(format) {
	case "json", "":
		return WriteReportJSON(path, sum)
	case "yaml", "yml":
		return WriteReportYAML(path, sum)
	case "junit":
		return WriteReportJUnit(path, sum)
	case "html":
		return WriteReportHTML(path, sum)
	default:
		return fmt.Errorf("unknown format %s", format)
	}
}
