package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"lawdesk.org/internal/audit"
	"lawdesk.org/internal/auth"
	"lawdesk.org/internal/files"
	"lawdesk.org/internal/office"
	"lawdesk.org/internal/store/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
	auth    *auth.Service
	audit   *audit.Service
}

func newTestAPI(t *testing.T, tweak ...func(*Options, *ReadyProbe)) *apiClient {
	t.Helper()

	store := memory.New()
	tokens, err := auth.NewTokenService(testSecret)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	authSvc, err := auth.NewService(store.AuthStores(), tokens, auth.WithHasher(auth.NewHasher(4)))
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	auditSvc := audit.NewService(store.Audit())
	t.Cleanup(func() { _ = auditSvc.Close(context.Background()) })

	fileStore, err := files.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	svc := office.NewServices(office.Deps{
		Stores:   store.OfficeStores(),
		Accounts: authSvc,
		Files:    fileStore,
	}, auditSvc)

	opts := Options{AuthRateBurst: 100, AuthRatePerSec: 100, ExposeResetToken: true}
	probe := ReadyProbe{}
	for _, fn := range tweak {
		fn(&opts, &probe)
	}
	api := New(probe, "test", Services{Auth: authSvc, Audit: auditSvc, Office: svc}, opts)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		auth:    authSvc,
		audit:   auditSvc,
	}
}

func (c *apiClient) do(method, path string, body any, token string) *http.Response {
	c.t.Helper()
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.baseURL+path, payload)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, token string) *http.Response {
	return c.do(http.MethodPost, path, body, token)
}

func (c *apiClient) get(path string, params url.Values, token string) *http.Response {
	if params != nil {
		path += "?" + params.Encode()
	}
	return c.do(http.MethodGet, path, nil, token)
}

// seedUser creates an account directly through the service and logs it in
// over HTTP.
func (c *apiClient) seedUser(role auth.Role, email, dni string) string {
	c.t.Helper()
	_, err := c.auth.CreateUser(context.Background(), auth.NewUser{
		DNI: dni, Email: email, Password: "secret1", Role: role, Name: role.String(),
	})
	if err != nil {
		c.t.Fatalf("create %s: %v", role, err)
	}
	return c.login(email, "secret1")
}

func (c *apiClient) login(email, password string) string {
	c.t.Helper()
	resp := c.post("/api/v1/auth/login", map[string]any{"email": email, "password": password}, "")
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		c.t.Fatalf("login status: %d", resp.StatusCode)
	}
	env := decode[envelopeOf[auth.Session]](c.t, resp)
	if env.Data.AccessToken == "" {
		c.t.Fatalf("empty token issued")
	}
	return env.Data.AccessToken
}

type envelopeOf[T any] struct {
	Success   bool   `json:"success"`
	Data      T      `json:"data"`
	Message   string `json:"message"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectError(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	if resp.StatusCode != status {
		resp.Body.Close()
		t.Fatalf("status = %d, want %d", resp.StatusCode, status)
	}
	env := decode[envelopeOf[any]](t, resp)
	if env.Success || env.Code != code || env.Error == "" {
		t.Fatalf("unexpected error body %+v, want code %q", env, code)
	}
	if env.RequestID == "" {
		t.Fatalf("expected request_id in error body")
	}
}

func TestRegisterLoginProfileFlow(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/api/v1/auth/register", map[string]any{
		"dni":      "12345678A",
		"telefono": "600111222",
		"email":    "Ana@Example.com",
		"password": "secret1",
		"name":     "Ana",
		"surname":  "Ruiz",
	}, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status: %d", resp.StatusCode)
	}
	reg := decode[envelopeOf[auth.Session]](t, resp)
	if !reg.Success || reg.Data.User.Role != auth.RoleLawyer || reg.Data.User.Phone != "600111222" {
		t.Fatalf("unexpected register payload %+v", reg)
	}

	token := api.login("ana@example.com", "secret1")

	resp = api.get("/api/v1/auth/me", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status: %d", resp.StatusCode)
	}
	me := decode[envelopeOf[auth.Profile]](t, resp)
	if me.Data.Email != "ana@example.com" {
		t.Fatalf("me email = %q", me.Data.Email)
	}

	resp = api.post("/api/v1/auth/logout", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	if err := api.audit.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	resp = api.get("/api/v1/audit/recent", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("recent status: %d", resp.StatusCode)
	}
	recent := decode[envelopeOf[[]audit.Record]](t, resp)
	var actions []string
	for _, rec := range recent.Data {
		actions = append(actions, string(rec.Action))
	}
	if got := strings.Join(actions, ","); got != "LOGOUT,LOGIN,REGISTER" {
		t.Fatalf("recent actions = %s", got)
	}
	if recent.Data[0].RequestID == "" || recent.Data[0].IP == "" {
		t.Fatalf("audit record missing request metadata: %+v", recent.Data[0])
	}
}

func TestLoginRejectsBadCredentialsGenerically(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(auth.RoleLawyer, "law@example.com", "L1")

	expectError(t, api.post("/api/v1/auth/login", map[string]any{"email": "law@example.com", "password": "wrong"}, ""),
		http.StatusUnauthorized, "invalid_credentials")
	expectError(t, api.post("/api/v1/auth/login", map[string]any{"email": "nobody@example.com", "password": "secret1"}, ""),
		http.StatusUnauthorized, "invalid_credentials")
	expectError(t, api.post("/api/v1/auth/login", map[string]any{"email": "x@example.com", "extra": 1}, ""),
		http.StatusBadRequest, "invalid_body")
}

func TestAPIEnforcesAuth(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/api/v1/clients", nil, "")
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate header")
	}
	expectError(t, resp, http.StatusUnauthorized, "missing_credentials")

	req, _ := http.NewRequest(http.MethodGet, api.baseURL+"/api/v1/clients", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	resp, err := api.client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	expectError(t, resp, http.StatusUnauthorized, "malformed_credentials")

	expectError(t, api.get("/api/v1/clients", nil, "not.a.jwt"), http.StatusUnauthorized, "token_invalid")
}

func TestRoleGates(t *testing.T) {
	api := newTestAPI(t)
	admin := api.seedUser(auth.RoleAdmin, "admin@example.com", "A1")
	lawyer := api.seedUser(auth.RoleLawyer, "law@example.com", "L1")
	assistant := api.seedUser(auth.RoleAssistant, "asst@example.com", "S1")

	resp := api.post("/api/v1/clients", map[string]any{"dni": "C1", "name": "Acme"}, assistant)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("assistant create client: %d", resp.StatusCode)
	}
	client := decode[envelopeOf[office.Client]](t, resp).Data

	expectError(t, api.post("/api/v1/cases", map[string]any{"number": "1/2024", "title": "Acme v. Doe", "client_id": client.ID}, assistant),
		http.StatusForbidden, "forbidden")

	resp = api.post("/api/v1/cases", map[string]any{"number": "1/2024", "title": "Acme v. Doe", "client_id": client.ID}, lawyer)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("lawyer create case: %d", resp.StatusCode)
	}
	kase := decode[envelopeOf[office.Case]](t, resp).Data
	if kase.Status != office.CaseStatus("open") {
		t.Fatalf("default status = %q", kase.Status)
	}

	resp = api.do(http.MethodDelete, "/api/v1/cases/"+kase.ID, nil, lawyer)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("lawyer delete case: %d", resp.StatusCode)
	}
	forbidden := decode[map[string]any](t, resp)
	if forbidden["actual_role"] != "lawyer" {
		t.Fatalf("actual_role = %v", forbidden["actual_role"])
	}
	if roles, _ := forbidden["required_roles"].([]any); len(roles) != 1 || roles[0] != "admin" {
		t.Fatalf("required_roles = %v", forbidden["required_roles"])
	}

	// client with a case cannot be deleted
	expectError(t, api.do(http.MethodDelete, "/api/v1/clients/"+client.ID, nil, lawyer), http.StatusConflict, "client_has_cases")

	resp = api.do(http.MethodDelete, "/api/v1/cases/"+kase.ID, nil, admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin delete case: %d", resp.StatusCode)
	}
	resp.Body.Close()

	expectError(t, api.get("/api/v1/audit", nil, lawyer), http.StatusForbidden, "forbidden")
	if err := api.audit.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	resp = api.get("/api/v1/audit", url.Values{"entity_type": {"case"}}, admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin audit: %d", resp.StatusCode)
	}
	hist := decode[envelopeOf[audit.HistoryPage]](t, resp).Data
	if hist.Pagination.Total != 2 || hist.Records[0].Action != audit.ActionDelete {
		t.Fatalf("unexpected case history %+v", hist)
	}
}

func TestClientCRUD(t *testing.T) {
	api := newTestAPI(t)
	token := api.seedUser(auth.RoleLawyer, "law@example.com", "L1")

	expectError(t, api.post("/api/v1/clients", map[string]any{"name": "No DNI"}, token), http.StatusBadRequest, "missing_field")

	for _, c := range []map[string]any{
		{"dni": "X1", "name": "Maria", "surname": "Lopez"},
		{"dni": "X2", "name": "Jorge", "surname": "Perez"},
	} {
		resp := api.post("/api/v1/clients", c, token)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create client: %d", resp.StatusCode)
		}
		resp.Body.Close()
	}
	expectError(t, api.post("/api/v1/clients", map[string]any{"dni": "X1", "name": "Dup"}, token), http.StatusConflict, "client_dni_taken")

	resp := api.get("/api/v1/clients", url.Values{"search": {"lopez"}, "limit": {"5"}}, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d", resp.StatusCode)
	}
	page := decode[envelopeOf[office.Page[office.Client]]](t, resp).Data
	if page.Pagination.Total != 1 || page.Items[0].DNI != "X1" || page.Pagination.Limit != 5 {
		t.Fatalf("unexpected page %+v", page)
	}

	id := page.Items[0].ID
	resp = api.do(http.MethodPut, "/api/v1/clients/"+id, map[string]any{"dni": "X1", "name": "Maria", "phone": "555"}, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: %d", resp.StatusCode)
	}
	if got := decode[envelopeOf[office.Client]](t, resp).Data; got.Phone != "555" {
		t.Fatalf("phone = %q", got.Phone)
	}

	resp = api.do(http.MethodDelete, "/api/v1/clients/"+id, nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	resp.Body.Close()
	expectError(t, api.get("/api/v1/clients/"+id, nil, token), http.StatusNotFound, "client_not_found")
	expectError(t, api.get("/api/v1/clients", url.Values{"page": {"zero"}}, token), http.StatusBadRequest, "invalid_query")
	expectError(t, api.get("/api/v1/clients", url.Values{"page": {"922337203685477581"}, "limit": {"20"}}, token),
		http.StatusBadRequest, "invalid_query")
	expectError(t, api.get("/api/v1/audit", url.Values{"page": {"922337203685477581"}}, api.seedUser(auth.RoleAdmin, "root@example.com", "A9")),
		http.StatusBadRequest, "invalid_query")
}

func TestDocumentUploadAndDownload(t *testing.T) {
	api := newTestAPI(t)
	token := api.seedUser(auth.RoleLawyer, "law@example.com", "L1")

	upload := func(name, content string) *http.Response {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		_ = mw.WriteField("title", "Power of attorney")
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		_, _ = fw.Write([]byte(content))
		_ = mw.Close()
		req, _ := http.NewRequest(http.MethodPost, api.baseURL+"/api/v1/documents", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := api.client.Do(req)
		if err != nil {
			t.Fatalf("upload: %v", err)
		}
		return resp
	}

	resp := upload("poder notarial.txt", "signed and sealed")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status: %d", resp.StatusCode)
	}
	doc := decode[envelopeOf[office.Document]](t, resp).Data
	if doc.OriginalName != "poder notarial.txt" || !strings.HasSuffix(doc.StoredName, "-poder_notarial.txt") || doc.Size != 17 {
		t.Fatalf("unexpected document %+v", doc)
	}

	resp = api.get("/api/v1/documents/"+doc.ID+"/download", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download status: %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "signed and sealed" {
		t.Fatalf("download body = %q", body)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "poder notarial.txt") {
		t.Fatalf("content disposition = %q", cd)
	}

	expectError(t, upload("payload.exe", "MZ"), http.StatusBadRequest, "invalid_file_type")
	expectError(t, api.post("/api/v1/documents/"+doc.ID+"/summary", nil, token), http.StatusBadRequest, "summarization_disabled")
}

func TestPasswordResetFlow(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser(auth.RoleLawyer, "law@example.com", "L1")

	resp := api.post("/api/v1/auth/password/forgot", map[string]any{"email": "nobody@example.com"}, "")
	unknown := decode[envelopeOf[forgotPasswordResponse]](t, resp)
	if unknown.Data.Token != "" || unknown.Data.Message != auth.ResetRequestMessage {
		t.Fatalf("unknown email leaked: %+v", unknown.Data)
	}

	resp = api.post("/api/v1/auth/password/forgot", map[string]any{"email": "law@example.com"}, "")
	known := decode[envelopeOf[forgotPasswordResponse]](t, resp)
	if known.Data.Token == "" || known.Data.Message != unknown.Data.Message {
		t.Fatalf("expected exposed token with constant message: %+v", known.Data)
	}

	reset := map[string]any{"token": known.Data.Token, "new_password": "newsecret"}
	resp = api.post("/api/v1/auth/password/reset", reset, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status: %d", resp.StatusCode)
	}
	resp.Body.Close()
	expectError(t, api.post("/api/v1/auth/password/reset", reset, ""), http.StatusUnauthorized, "reset_token_invalid")

	api.login("law@example.com", "newsecret")
}

func TestAuthEndpointsAreRateLimited(t *testing.T) {
	api := newTestAPI(t, func(o *Options, _ *ReadyProbe) {
		o.AuthRateBurst = 2
		o.AuthRatePerSec = 0.01
	})
	creds := map[string]any{"email": "x@example.com", "password": "whatever"}
	for i := 0; i < 2; i++ {
		resp := api.post("/api/v1/auth/login", creds, "")
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d: %d", i, resp.StatusCode)
		}
	}
	resp := api.post("/api/v1/auth/login", creds, "")
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After")
	}
	expectError(t, resp, http.StatusTooManyRequests, "rate_limited")
}

func TestAuthLimiterIgnoresRotatingForwardedFor(t *testing.T) {
	api := newTestAPI(t, func(o *Options, _ *ReadyProbe) {
		o.AuthRateBurst = 2
		o.AuthRatePerSec = 0.001
	})
	limited := 0
	for i := 0; i < 20; i++ {
		req, err := http.NewRequest(http.MethodPost, api.baseURL+"/api/v1/auth/login",
			strings.NewReader(`{"email":"x@example.com","password":"whatever"}`))
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		resp, err := api.client.Do(req)
		if err != nil {
			t.Fatalf("do request: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 18 {
		t.Fatalf("limited = %d, want 18", limited)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	api := newTestAPI(t, func(_ *Options, p *ReadyProbe) {
		p.Checks = map[string]Pinger{
			"database": PingFunc(func(context.Context) error { return errors.New("connection refused") }),
		}
	})

	resp := api.get("/healthz", nil, "")
	health := decode[map[string]any](t, resp)
	if resp.StatusCode != http.StatusOK || health["status"] != "ok" {
		t.Fatalf("healthz: %d %v", resp.StatusCode, health)
	}

	resp = api.get("/readyz", nil, "")
	ready := decode[map[string]any](t, resp)
	if resp.StatusCode != http.StatusServiceUnavailable || ready["status"] != "not_ready" {
		t.Fatalf("readyz: %d %v", resp.StatusCode, ready)
	}
	if !strings.Contains(ready["error"].(string), "database") {
		t.Fatalf("readyz error = %v", ready["error"])
	}

	expectError(t, api.get("/api/v1/nope", nil, ""), http.StatusNotFound, "route_not_found")
}
