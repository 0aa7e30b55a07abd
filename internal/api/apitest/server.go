// Package apitest provides an in-process fake of the shopping-list API
// gateway for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

const (
	AdminIdentifier = "admin@microservices.com"
	AdminPassword   = "admin123"
)

// Server is a stateful fake of the gateway. Routes are keyed by their
// ServeMux pattern, e.g. "GET /api/lists/{id}".
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	hits       map[string]int
	failures   map[string]failure
	categories []any
	items      []map[string]any
	users      map[string]map[string]any // token -> user
	lists      map[string]map[string]any
	listOrder  []string
	lastAuth   string
	seq        int
}

// NewServer starts a fake gateway and closes it when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		hits:       map[string]int{},
		failures:   map[string]failure{},
		categories: []any{"Alimentos", "Limpeza", "Higiene"},
		items:      defaultItems(),
		users:      map[string]map[string]any{},
		lists:      map[string]map[string]any{},
	}
	mux := http.NewServeMux()
	s.handle(mux, "GET /health", false, s.health)
	s.handle(mux, "GET /registry", false, s.registry)
	s.handle(mux, "POST /api/auth/register", false, s.register)
	s.handle(mux, "POST /api/auth/login", false, s.login)
	s.handle(mux, "GET /api/items/categories", false, s.listCategories)
	s.handle(mux, "GET /api/items/search", false, s.searchItems)
	s.handle(mux, "GET /api/items", false, s.listItems)
	s.handle(mux, "POST /api/lists", true, s.createList)
	s.handle(mux, "POST /api/lists/{id}/items", true, s.addListItem)
	s.handle(mux, "GET /api/lists/{id}", true, s.getList)
	s.handle(mux, "GET /api/dashboard", true, s.dashboard)
	s.handle(mux, "GET /api/search", true, s.globalSearch)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

type failure struct {
	after  int
	status int
}

// Fail makes every request matching pattern answer with status.
func (s *Server) Fail(pattern string, status int) {
	s.FailAfter(pattern, 0, status)
}

// FailAfter lets n requests on pattern through and fails the rest.
func (s *Server) FailAfter(pattern string, n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[pattern] = failure{after: n, status: status}
}

// SetCategories replaces the category payload. Entries may be strings or
// objects.
func (s *Server) SetCategories(cats ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = cats
}

// Hits returns how many requests reached pattern.
func (s *Server) Hits(pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[pattern]
}

// TotalHits returns the number of requests across all routes.
func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.hits {
		n += v
	}
	return n
}

// LastAuthorization returns the Authorization header of the last
// authenticated request.
func (s *Server) LastAuthorization() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth
}

// ListItemCount returns how many items list id holds.
func (s *Server) ListItemCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[id]
	if !ok {
		return 0
	}
	return len(l["items"].([]map[string]any))
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, user map[string]any)

func (s *Server) handle(mux *http.ServeMux, pattern string, auth bool, fn handlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[pattern]++
		hit := s.hits[pattern]
		f, failing := s.failures[pattern]
		s.mu.Unlock()

		if failing && hit > f.after {
			writeJSON(w, f.status, map[string]any{"success": false, "message": fmt.Sprintf("forced failure on %s", pattern)})
			return
		}

		var user map[string]any
		if auth {
			header := r.Header.Get("Authorization")
			s.mu.Lock()
			s.lastAuth = header
			user = s.users[strings.TrimPrefix(header, "Bearer ")]
			s.mu.Unlock()
			if !strings.HasPrefix(header, "Bearer ") || user == nil {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Token de acesso obrigatório"})
				return
			}
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		fn(w, r, user)
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request, _ map[string]any) {
	writeJSON(w, http.StatusOK, map[string]any{"service": "api-gateway", "status": "healthy"})
}

func (s *Server) registry(w http.ResponseWriter, _ *http.Request, _ map[string]any) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"services": map[string]any{
			"user-service": map[string]any{"url": "http://localhost:3001", "healthy": true},
			"list-service": map[string]any{"url": "http://localhost:3002", "healthy": true},
			"item-service": map[string]any{"url": "http://localhost:3003", "healthy": true},
		},
	})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request, _ map[string]any) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid json"})
		return
	}
	for _, k := range []string{"email", "username", "password"} {
		if v, _ := body[k].(string); v == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": k + " is required"})
			return
		}
	}
	s.seq++
	user := map[string]any{
		"id":        fmt.Sprintf("user-%d", s.seq),
		"email":     body["email"],
		"username":  body["username"],
		"firstName": body["firstName"],
		"lastName":  body["lastName"],
	}
	if prefs, ok := body["preferences"]; ok {
		user["preferences"] = prefs
	}
	token := fmt.Sprintf("token-%d", s.seq)
	s.users[token] = user
	ok(w, http.StatusCreated, map[string]any{"token": token, "user": user})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request, _ map[string]any) {
	var body struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Identifier != AdminIdentifier || body.Password != AdminPassword {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Credenciais inválidas"})
		return
	}
	s.seq++
	user := map[string]any{
		"id":        "admin",
		"email":     AdminIdentifier,
		"username":  "admin",
		"firstName": "Admin",
		"lastName":  "Sistema",
	}
	token := fmt.Sprintf("token-%d", s.seq)
	s.users[token] = user
	ok(w, http.StatusOK, map[string]any{"token": token, "user": user})
}

func (s *Server) listCategories(w http.ResponseWriter, _ *http.Request, _ map[string]any) {
	ok(w, http.StatusOK, s.categories)
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request, _ map[string]any) {
	category := r.URL.Query().Get("category")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out := []map[string]any{}
	for _, it := range s.items {
		if category != "" && it["category"] != category {
			continue
		}
		out = append(out, it)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	ok(w, http.StatusOK, out)
}

func (s *Server) searchItems(w http.ResponseWriter, r *http.Request, _ map[string]any) {
	ok(w, http.StatusOK, s.matchItems(r.URL.Query().Get("q")))
}

func (s *Server) createList(w http.ResponseWriter, r *http.Request, user map[string]any) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	name, _ := body["name"].(string)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "name is required"})
		return
	}
	s.seq++
	id := fmt.Sprintf("list-%d", s.seq)
	l := map[string]any{
		"id":          id,
		"userId":      user["id"],
		"name":        name,
		"description": body["description"],
		"status":      "active",
		"items":       []map[string]any{},
		"summary":     map[string]any{"totalItems": 0, "purchasedItems": 0, "estimatedTotal": 0.0},
	}
	s.lists[id] = l
	s.listOrder = append(s.listOrder, id)
	ok(w, http.StatusCreated, l)
}

func (s *Server) addListItem(w http.ResponseWriter, r *http.Request, _ map[string]any) {
	l, found := s.lists[r.PathValue("id")]
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Lista não encontrada"})
		return
	}
	var body struct {
		ItemID   string  `json:"itemId"`
		Quantity float64 `json:"quantity"`
		Notes    string  `json:"notes"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	var item map[string]any
	for _, it := range s.items {
		if it["id"] == body.ItemID {
			item = it
		}
	}
	if item == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Item não encontrado"})
		return
	}
	price, _ := item["averagePrice"].(float64)
	entry := map[string]any{
		"itemId":         body.ItemID,
		"itemName":       item["name"],
		"quantity":       body.Quantity,
		"unit":           item["unit"],
		"estimatedPrice": price,
		"purchased":      false,
		"notes":          body.Notes,
	}
	items := append(l["items"].([]map[string]any), entry)
	l["items"] = items
	total := 0.0
	for _, e := range items {
		total += e["estimatedPrice"].(float64) * e["quantity"].(float64)
	}
	l["summary"] = map[string]any{"totalItems": len(items), "purchasedItems": 0, "estimatedTotal": total}
	ok(w, http.StatusCreated, l)
}

func (s *Server) getList(w http.ResponseWriter, r *http.Request, _ map[string]any) {
	l, found := s.lists[r.PathValue("id")]
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Lista não encontrada"})
		return
	}
	ok(w, http.StatusOK, l)
}

func (s *Server) dashboard(w http.ResponseWriter, _ *http.Request, user map[string]any) {
	total := 0.0
	for _, id := range s.listOrder {
		sum := s.lists[id]["summary"].(map[string]any)
		if v, isFloat := sum["estimatedTotal"].(float64); isFloat {
			total += v
		}
	}
	ok(w, http.StatusOK, map[string]any{
		"user": user,
		"statistics": map[string]any{
			"totalLists":     len(s.listOrder),
			"activeLists":    len(s.listOrder),
			"completedLists": 0,
			"totalEstimated": total,
		},
	})
}

func (s *Server) globalSearch(w http.ResponseWriter, r *http.Request, _ map[string]any) {
	q := strings.ToLower(r.URL.Query().Get("q"))
	lists := []map[string]any{}
	for _, id := range s.listOrder {
		if strings.Contains(strings.ToLower(s.lists[id]["name"].(string)), q) {
			lists = append(lists, s.lists[id])
		}
	}
	ok(w, http.StatusOK, map[string]any{"items": s.matchItems(q), "lists": lists})
}

func (s *Server) matchItems(q string) []map[string]any {
	q = strings.ToLower(q)
	out := []map[string]any{}
	for _, it := range s.items {
		if strings.Contains(strings.ToLower(it["name"].(string)), q) {
			out = append(out, it)
		}
	}
	return out
}

func defaultItems() []map[string]any {
	return []map[string]any{
		{"id": "item-1", "name": "Arroz Branco", "category": "Alimentos", "brand": "Tio João", "unit": "kg", "averagePrice": 5.5, "description": "Arroz tipo 1"},
		{"id": "item-2", "name": "Feijão Preto", "category": "Alimentos", "brand": "Camil", "unit": "kg", "averagePrice": 8.9},
		{"id": "item-3", "name": "Arroz Integral", "category": "Alimentos", "unit": "kg", "averagePrice": 7.2},
		{"id": "item-4", "name": "Detergente", "category": "Limpeza", "brand": "Ypê", "unit": "un", "averagePrice": 2.5},
		{"id": "item-5", "name": "Água Sanitária", "category": "Limpeza", "unit": "litro"},
		{"id": "item-6", "name": "Sabonete", "category": "Higiene", "brand": "Dove", "unit": "un", "averagePrice": 3.1},
	}
}

func ok(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"success": true, "data": data})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
