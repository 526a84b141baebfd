package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/maykecorrea/dressup/internal/cancel"
	"github.com/maykecorrea/dressup/internal/catalog"
	"github.com/maykecorrea/dressup/internal/gallery"
	"github.com/maykecorrea/dressup/internal/imagegen"
	"github.com/maykecorrea/dressup/internal/middleware"
	"github.com/maykecorrea/dressup/internal/stylist"
	"github.com/maykecorrea/dressup/internal/users"
)

func pngBytes(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for x := 0; x < 4; x++ {
		for y := 0; y < 3; y++ {
			img.Set(x, y, color.RGBA{R: shade, G: shade, B: shade, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func pngURI(t *testing.T, shade uint8) string {
	return imagegen.Encode(imagegen.ImageRef{Data: pngBytes(t, shade), ContentType: "image/png"})
}

type fakeEditor struct {
	mu     sync.Mutex
	calls  []imagegen.EditRequest
	output []byte
	errs   map[int]error
	before func(call int)
}

func (f *fakeEditor) Name() string { return "fake" }

func (f *fakeEditor) Edit(ctx context.Context, req imagegen.EditRequest) (imagegen.ImageRef, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	call := len(f.calls)
	f.mu.Unlock()
	if f.before != nil {
		f.before(call)
	}
	if err := f.errs[call]; err != nil {
		return imagegen.ImageRef{}, err
	}
	return imagegen.ImageRef{Data: f.output, ContentType: "image/png"}, nil
}

func (f *fakeEditor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type stubAccounts struct {
	users map[string]users.User
	pass  map[string]string
}

func newStubAccounts() *stubAccounts {
	return &stubAccounts{users: map[string]users.User{}, pass: map[string]string{}}
}

func (s *stubAccounts) Register(ctx context.Context, in users.SignUp) (users.User, error) {
	email := strings.ToLower(in.Email)
	for _, u := range s.users {
		if u.Email == email {
			return users.User{}, users.ErrEmailTaken
		}
	}
	u := users.User{ID: "user-" + email, Email: email, Name: in.Name, Locale: in.Locale, CreatedAt: time.Now()}
	s.users[u.ID] = u
	s.pass[u.ID] = in.Password
	return u, nil
}

func (s *stubAccounts) Authenticate(ctx context.Context, email, password string) (users.User, error) {
	for id, u := range s.users {
		if u.Email == strings.ToLower(email) && s.pass[id] == password {
			return u, nil
		}
	}
	return users.User{}, users.ErrInvalidCredentials
}

func (s *stubAccounts) ByID(ctx context.Context, id string) (users.User, error) {
	u, ok := s.users[id]
	if !ok {
		return users.User{}, users.ErrNotFound
	}
	return u, nil
}

type fakeVision struct {
	text   string
	prompt string
}

func (f *fakeVision) DescribeImage(ctx context.Context, img imagegen.ImageRef, prompt string) (string, error) {
	f.prompt = prompt
	return f.text, nil
}

type fakeJSON struct {
	body   string
	prompt string
}

func (f *fakeJSON) GenerateJSON(ctx context.Context, prompt string, images ...imagegen.ImageRef) (string, error) {
	f.prompt = prompt
	return f.body, nil
}

type testEnv struct {
	app     *App
	editor  *fakeEditor
	vision  *fakeVision
	json    *fakeJSON
	cancels *cancel.MemoryRegistry
	router  chi.Router
}

func newTestEnv(t *testing.T, policy imagegen.RefusalPolicy) *testEnv {
	t.Helper()
	editor := &fakeEditor{output: pngBytes(t, 200), errs: map[int]error{}}
	cancels := cancel.NewMemoryRegistry(time.Hour)
	composer, err := imagegen.NewComposer(imagegen.ComposerOptions{Editor: editor, Policy: policy, Cancel: cancels})
	if err != nil {
		t.Fatalf("NewComposer: %v", err)
	}
	vision := &fakeVision{text: "Camisa de linho azul."}
	describer, err := imagegen.NewDescriber(imagegen.DescriberOptions{Model: vision})
	if err != nil {
		t.Fatalf("NewDescriber: %v", err)
	}
	jsonModel := &fakeJSON{body: `{"suggestions":[{"item":"White sneakers","reason":"casual","purchase_link":"https://shop.example/sneakers"}]}`}
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	store, err := gallery.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	nop := zerolog.Nop()

	app := NewApp(nop, "test-secret")
	app.Users = newStubAccounts()
	app.Composer = composer
	app.Describer = describer
	app.Stylist = stylist.NewSuggester(jsonModel, &nop)
	app.Catalog = cat
	app.Gallery = store
	app.Cancel = cancels

	r := chi.NewRouter()
	r.Post("/v1/auth/signup", app.Signup)
	r.Post("/v1/auth/login", app.Login)
	r.Get("/v1/me", app.Me)
	r.Get("/v1/catalog", app.CatalogList)
	r.Get("/v1/catalog/{id}", app.CatalogGet)
	r.Post("/v1/compositions", app.Compose)
	r.Post("/v1/compositions/single", app.ComposeSingle)
	r.Post("/v1/compositions/looks", app.ComposeLooks)
	r.Delete("/v1/compositions/{requestID}", app.CancelComposition)
	r.Post("/v1/garments/describe", app.DescribeGarment)
	r.Post("/v1/styles/suggest", app.SuggestStyles)
	r.Post("/v1/gallery", app.GallerySave)
	r.Get("/v1/gallery", app.GalleryList)
	r.Get("/v1/gallery/export", app.GalleryExport)
	r.Get("/v1/gallery/{key}", app.GalleryOpen)
	r.Delete("/v1/gallery/{key}", app.GalleryDelete)

	return &testEnv{app: app, editor: editor, vision: vision, json: jsonModel, cancels: cancels, router: r}
}

// do sends a request as userID ("" for anonymous) with the given request id.
func (e *testEnv) do(t *testing.T, method, path, userID, requestID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	ctx := req.Context()
	if userID != "" {
		ctx = middleware.ContextWithUserID(ctx, userID)
	}
	if requestID != "" {
		ctx = middleware.ContextWithRequestID(ctx, requestID)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return out
}

func TestFailMapsErrorKinds(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{name: "invalid", err: imagegen.ErrInvalidRequest, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "malformed", err: imagegen.ErrMalformedInput, status: http.StatusBadRequest, code: "malformed_input"},
		{name: "refused", err: imagegen.Refused("fake", "policy"), status: http.StatusUnprocessableEntity, code: "provider_refused"},
		{name: "transport", err: imagegen.Transport("fake", 500, nil), status: http.StatusBadGateway, code: "provider_transport", retryable: true},
		{name: "canceled", err: imagegen.ErrCanceled, status: http.StatusConflict, code: "canceled"},
		{name: "internal", err: context.DeadlineExceeded, status: http.StatusInternalServerError, code: "internal"},
	}
	app := NewApp(zerolog.Nop(), "secret")
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			app.fail(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			env := decodeBody[errorEnvelope](t, rec)
			if env.Error.Code != tc.code || env.Error.Retryable != tc.retryable {
				t.Fatalf("unexpected envelope %+v", env.Error)
			}
		})
	}
}

func TestDecodeRejectsOversizedBody(t *testing.T) {
	env := newTestEnv(t, imagegen.RefusalAbort)
	env.app.MaxUploadBytes = 64
	rec := env.do(t, http.MethodPost, "/v1/gallery", "u1", "", map[string]string{"image": pngURI(t, 10)})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestDecodeValidatesConcurrently(t *testing.T) {
	app := &App{Logger: zerolog.Nop()}
	var wg sync.WaitGroup
	codes := make([]int, 16)
	for i := range codes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"nope","password":"long-enough"}`))
			var dst loginRequest
			if !app.decode(rec, req, &dst) {
				codes[i] = rec.Code
			}
		}()
	}
	wg.Wait()
	for i, code := range codes {
		if code != http.StatusBadRequest {
			t.Fatalf("request %d status = %d, want 400", i, code)
		}
	}
}

func TestHealth(t *testing.T) {
	app := NewApp(zerolog.Nop(), "secret")
	rec := httptest.NewRecorder()
	app.Health(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	app.DB = pingerFunc(func(context.Context) error { return context.DeadlineExceeded })
	rec = httptest.NewRecorder()
	app.Health(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d", rec.Code)
	}
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }
