package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"calendar-agent/internal/usecase"
	"calendar-agent/web"
)

type stubProcessor struct {
	in    usecase.ProcessInput
	body  string
	out   usecase.ProcessOutput
	err   error
	calls int
}

func (s *stubProcessor) Process(_ context.Context, in usecase.ProcessInput) (usecase.ProcessOutput, error) {
	s.calls++
	s.in = in
	if in.Upload != nil {
		b, _ := io.ReadAll(in.Upload.Body)
		s.body = string(b)
	}
	return s.out, s.err
}

type stubFlow struct {
	authURL     string
	authErr     error
	lastState   string
	code        string
	exchangeErr error
}

func (s *stubFlow) AuthURL(state string) (string, error) {
	s.lastState = state
	return s.authURL + "?state=" + url.QueryEscape(state), s.authErr
}

func (s *stubFlow) Exchange(_ context.Context, code string) error {
	s.code = code
	return s.exchangeErr
}

type fixture struct {
	router  http.Handler
	proc    *stubProcessor
	flow    *stubFlow
	workDir string
	cookies []*http.Cookie
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tmpl, err := web.Templates()
	require.NoError(t, err)
	sessions, err := NewSessions("test-secret", false)
	require.NoError(t, err)

	f := &fixture{
		proc:    &stubProcessor{},
		flow:    &stubFlow{authURL: "https://accounts.example.com/o/oauth2/auth"},
		workDir: t.TempDir(),
	}
	h, err := NewHandler(f.proc, f.flow, sessions, tmpl, Options{WorkDir: f.workDir, MaxUploadBytes: 1 << 20})
	require.NoError(t, err)
	f.router = NewRouter(h)
	return f
}

func (f *fixture) authenticate(t *testing.T) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.workDir, "token.json"), []byte("{}"), 0o600))
}

// do sends req with the cookies collected so far and keeps any new ones.
func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range f.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		f.cookies = replaceCookie(f.cookies, c)
	}
	return rec
}

func replaceCookie(jar []*http.Cookie, c *http.Cookie) []*http.Cookie {
	out := jar[:0]
	for _, existing := range jar {
		if existing.Name != c.Name {
			out = append(out, existing)
		}
	}
	if c.MaxAge < 0 {
		return out
	}
	return append(out, c)
}

func multipartRequest(t *testing.T, fields map[string]string, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file_upload", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/process", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestNewHandler_ValidatesDependencies(t *testing.T) {
	tmpl, err := web.Templates()
	require.NoError(t, err)
	sessions, err := NewSessions("", false)
	require.NoError(t, err)

	_, err = NewHandler(nil, &stubFlow{}, sessions, tmpl, Options{})
	require.Error(t, err)
	_, err = NewHandler(&stubProcessor{}, nil, sessions, tmpl, Options{})
	require.Error(t, err)
	_, err = NewHandler(&stubProcessor{}, &stubFlow{}, nil, tmpl, Options{})
	require.Error(t, err)
	_, err = NewHandler(&stubProcessor{}, &stubFlow{}, sessions, nil, Options{})
	require.Error(t, err)
}

func TestIndex_RedirectsToAuthWhenUnauthenticated(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/auth", rec.Header().Get("Location"))

	f.authenticate(t)
	rec = f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Please authenticate with Google to use the app.")
	require.Contains(t, rec.Body.String(), `name="text_input"`)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotContains(t, rec.Body.String(), "Please authenticate with Google")
}

func TestProcess_RendersResult(t *testing.T) {
	f := newFixture(t)
	f.proc.out = usecase.ProcessOutput{
		CombinedInput:   "Lunch <Friday>",
		GeneratedCode:   "print('hi')",
		ExecutionOutput: "Event created successfully!",
	}

	req := multipartRequest(t, map[string]string{"text_input": "Lunch", "selected_pages": "1,2"}, "scan.pdf", "%PDF")
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Lunch", f.proc.in.Text)
	require.Equal(t, "1,2", f.proc.in.SelectedPages)
	require.Equal(t, "scan.pdf", f.proc.in.Upload.Filename)
	require.Equal(t, "%PDF", f.proc.body)

	body := rec.Body.String()
	require.Contains(t, body, "Lunch &lt;Friday&gt;")
	require.Contains(t, body, "print(&#39;hi&#39;)")
	require.Contains(t, body, "Event created successfully!")
}

func TestProcess_WithoutUpload(t *testing.T) {
	f := newFixture(t)
	rec := f.do(multipartRequest(t, map[string]string{"text_input": "Lunch"}, "", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, f.proc.in.Upload)

	form := strings.NewReader(url.Values{"text_input": {"Dinner"}}.Encode())
	req := httptest.NewRequest(http.MethodPost, "/process", form)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Dinner", f.proc.in.Text)
}

func TestProcess_ValidationErrorFlashesAndRedirects(t *testing.T) {
	f := newFixture(t)
	f.authenticate(t)
	f.proc.err = &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: usecase.ReasonTooManyPages}

	rec := f.do(multipartRequest(t, map[string]string{"selected_pages": "1,2,3"}, "", ""))
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))

	rec = f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Contains(t, rec.Body.String(), "Please select a maximum of 2 pages.")
}

func TestProcess_InternalError(t *testing.T) {
	f := newFixture(t)
	f.proc.err = &usecase.Error{Code: usecase.ErrorInternal, Reason: usecase.ReasonUploadSave, Err: errors.New("disk full")}

	rec := f.do(multipartRequest(t, map[string]string{"text_input": "x"}, "a.png", "x"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestProcess_UploadTooLarge(t *testing.T) {
	f := newFixture(t)
	f.authenticate(t)
	rec := f.do(multipartRequest(t, nil, "big.pdf", strings.Repeat("x", 2<<20)))
	require.Equal(t, http.StatusFound, rec.Code)
	require.Zero(t, f.proc.calls)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Contains(t, rec.Body.String(), "The uploaded file is too large.")
}

func TestOAuthRoundTrip(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/auth", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "accounts.example.com", loc.Host)
	state := loc.Query().Get("state")
	require.Equal(t, f.flow.lastState, state)
	require.NotEmpty(t, state)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/oauth2callback?state="+url.QueryEscape(state)+"&code=abc", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))
	require.Equal(t, "abc", f.flow.code)

	f.authenticate(t)
	rec = f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Contains(t, rec.Body.String(), "Successfully authenticated with Google!")
}

func TestOAuthCallback_MissingState(t *testing.T) {
	f := newFixture(t)
	f.authenticate(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/oauth2callback?state=x&code=abc", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	require.Empty(t, f.flow.code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Contains(t, rec.Body.String(), "Authentication state is missing. Please try again.")
}

func TestOAuthCallback_Failures(t *testing.T) {
	cases := []struct {
		name  string
		query func(state string) string
		err   error
	}{
		{"state mismatch", func(string) string { return "state=forged&code=abc" }, nil},
		{"exchange error", func(s string) string { return "state=" + url.QueryEscape(s) + "&code=abc" }, errors.New("invalid_grant")},
		{"consent denied", func(s string) string { return "state=" + url.QueryEscape(s) + "&error=access_denied" }, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.flow.exchangeErr = tc.err
			f.do(httptest.NewRequest(http.MethodGet, "/auth", nil))

			rec := f.do(httptest.NewRequest(http.MethodGet, "/oauth2callback?"+tc.query(f.flow.lastState), nil))
			require.Equal(t, http.StatusFound, rec.Code)
			require.NoFileExists(t, filepath.Join(f.workDir, "token.json"))

			f.authenticate(t)
			rec = f.do(httptest.NewRequest(http.MethodGet, "/", nil))
			require.Contains(t, rec.Body.String(), "Failed to fetch credentials. Please try again.")
		})
	}
}

func TestCheckAuth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/check-auth", nil))
	require.Equal(t, "You are NOT authenticated. Please authenticate at /auth.", rec.Body.String())

	f.authenticate(t)
	rec = f.do(httptest.NewRequest(http.MethodGet, "/check-auth", nil))
	require.Equal(t, "You are authenticated!", rec.Body.String())
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
