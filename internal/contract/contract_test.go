package contract_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pkt.systems/pslog"
	"pkt.systems/shopprobe/internal/api"
	"pkt.systems/shopprobe/internal/api/apitest"
	"pkt.systems/shopprobe/internal/contract"
	"pkt.systems/shopprobe/internal/probe"
)

const shopDoc = `openapi: 3.0.3
info:
  title: Shopping list gateway
  version: "1.0"
paths:
  /health:
    get:
      responses:
        "200":
          description: gateway status
          content:
            application/json:
              schema:
                type: object
                required: [status]
                properties:
                  status:
                    type: string
                    enum: [healthy]
  /api/auth/login:
    post:
      responses:
        "200":
          description: signed in
          content:
            application/json:
              schema:
                $ref: "#/components/schemas/AuthEnvelope"
        default:
          description: error
          content:
            application/json:
              schema:
                type: object
                required: [message]
  /api/lists/{listId}:
    get:
      parameters:
        - name: listId
          in: path
          required: true
          schema:
            type: string
      responses:
        "200":
          description: one list
          content:
            application/json:
              schema:
                type: object
                required: [data]
                properties:
                  data:
                    type: object
                    required: [id, items]
                    properties:
                      id:
                        type: string
                      items:
                        type: array
                        items:
                          type: object
components:
  schemas:
    AuthEnvelope:
      type: object
      required: [data]
      properties:
        data:
          type: object
          required: [token, user]
          properties:
            token:
              type: string
              minLength: 1
            user:
              type: object
`

func writeDoc(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write doc: %v", err)
	}
	return path
}

func load(t *testing.T) *contract.Validator {
	t.Helper()
	v, err := contract.Load(context.Background(), writeDoc(t, shopDoc), contract.WithLogger(pslog.New(io.Discard)))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return v
}

func exchange(method, route string, status int, body string) api.Exchange {
	return api.Exchange{Method: method, Route: route, Path: route, Status: status, Body: []byte(body)}
}

func TestVerifyAcceptsMatchingBodies(t *testing.T) {
	v := load(t)
	err := v.Verify(context.Background(), probe.Health, []api.Exchange{
		exchange("GET", "/health", 200, `{"status":"healthy","service":"api-gateway"}`),
		exchange("GET", "/api/lists/{id}", 200, `{"data":{"id":"list-1","items":[]}}`),
	})
	if err != nil {
		t.Fatalf("expected no violations, got %v", err)
	}
}

func TestVerifyReportsViolations(t *testing.T) {
	v := load(t)
	err := v.Verify(context.Background(), probe.Login, []api.Exchange{
		exchange("POST", "/api/auth/login", 200, `{"data":{"token":"","user":{}}}`),
		exchange("GET", "/health", 200, `{"status":"degraded"}`),
	})
	if err == nil {
		t.Fatalf("expected violations")
	}
	msg := err.Error()
	if !strings.Contains(msg, "POST /api/auth/login -> 200") || !strings.Contains(msg, "GET /health -> 200") {
		t.Fatalf("both violations should be reported, got %v", msg)
	}
}

func TestVerifySkipsUndescribedExchanges(t *testing.T) {
	v := load(t)
	err := v.Verify(context.Background(), probe.Search, []api.Exchange{
		exchange("GET", "/api/items/search", 200, `not json`),
		exchange("DELETE", "/health", 200, `{}`),
		exchange("GET", "/health", 503, `{}`),
		{Method: "GET", Route: "/health", ErrorText: "http request failed: refused"},
	})
	if err != nil {
		t.Fatalf("undescribed exchanges should be skipped, got %v", err)
	}
}

func TestVerifyFallsBackToDefaultResponse(t *testing.T) {
	v := load(t)
	err := v.Verify(context.Background(), probe.Login, []api.Exchange{
		exchange("POST", "/api/auth/login", 401, `{"success":false}`),
	})
	if err == nil || !strings.Contains(err.Error(), "-> 401") {
		t.Fatalf("default response schema should apply, got %v", err)
	}
}

func TestVerifyRejectsNonJSONBody(t *testing.T) {
	v := load(t)
	err := v.Verify(context.Background(), probe.Health, []api.Exchange{
		exchange("GET", "/health", 200, `<html>ok</html>`),
	})
	if err == nil || !strings.Contains(err.Error(), "not json") {
		t.Fatalf("expected json error, got %v", err)
	}
}

func TestLoadRejectsBrokenDocuments(t *testing.T) {
	if _, err := contract.Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := contract.Load(context.Background(), writeDoc(t, "openapi: 3.0.3\ninfo: [")); err == nil {
		t.Fatalf("expected error for malformed yaml")
	}
	empty := "openapi: 3.0.3\ninfo:\n  title: x\n  version: \"1\"\npaths: {}\n"
	if _, err := contract.Load(context.Background(), writeDoc(t, empty)); err == nil {
		t.Fatalf("expected error for a document without paths")
	}
	untypedArray := `openapi: 3.0.3
info:
  title: x
  version: "1"
paths:
  /api/items:
    get:
      responses:
        "200":
          description: items
          content:
            application/json:
              schema:
                type: array
`
	_, err := contract.Load(context.Background(), writeDoc(t, untypedArray))
	if err == nil || !strings.Contains(err.Error(), "invalid openapi document") {
		t.Fatalf("expected array schema without items to be rejected, got %v", err)
	}
}

func TestLoadAcceptsShopDocument(t *testing.T) {
	v := load(t)
	if err := v.Verify(context.Background(), probe.ViewList, []api.Exchange{
		exchange("GET", "/api/lists/{id}", 200, `{"data":{"id":"list-1","items":[{"id":"li-1"}]}}`),
	}); err != nil {
		t.Fatalf("list with items should match, got %v", err)
	}
	err := v.Verify(context.Background(), probe.ViewList, []api.Exchange{
		exchange("GET", "/api/lists/{id}", 200, `{"data":{"id":"list-1","items":["li-1"]}}`),
	})
	if err == nil {
		t.Fatalf("list items must be objects")
	}
}

// A contract violation turns an otherwise passing probe into a failure.
func TestValidatorAsProbeVerifier(t *testing.T) {
	srv := apitest.NewServer(t)
	client, err := api.New(srv.URL, api.WithLogger(pslog.New(io.Discard)))
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	v := load(t)
	env := &probe.Env{
		Client:      client,
		Session:     &probe.Session{},
		Out:         io.Discard,
		Logger:      pslog.New(io.Discard),
		Credentials: api.LoginRequest{Identifier: apitest.AdminIdentifier, Password: apitest.AdminPassword},
		Verifiers:   []probe.Verifier{v},
	}
	login, _ := probe.Lookup(probe.Login)
	if res := probe.Execute(context.Background(), login, env); !res.Passed {
		t.Fatalf("login should satisfy the contract: %v", res.Err)
	}

	strict := strings.Replace(shopDoc, "enum: [healthy]", "enum: [ok]", 1)
	v2, err := contract.Load(context.Background(), writeDoc(t, strict), contract.WithLogger(pslog.New(io.Discard)))
	if err != nil {
		t.Fatalf("load strict: %v", err)
	}
	env.Verifiers = []probe.Verifier{v2}
	health, _ := probe.Lookup(probe.Health)
	res := probe.Execute(context.Background(), health, env)
	var cerr *probe.CheckError
	if res.Passed || !errors.As(res.Err, &cerr) {
		t.Fatalf("expected contract failure, got %+v", res)
	}
}
