package gcs

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
)

func staticTokens(token string) *tokenSource {
	return &tokenSource{fetch: func(context.Context) (string, time.Time, error) {
		return token, time.Now().Add(time.Hour), nil
	}}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return newClient(srv.Client(), config.GCSConfig{
		BucketName:    "deliveries-bucket",
		Endpoint:      srv.URL,
		PublicBaseURL: "https://cdn.example.com/",
	}, staticTokens("tok"), nil)
}

func TestUploadSendsMediaRequest(t *testing.T) {
	var gotBody, gotName, gotType, gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/upload/storage/v1/b/deliveries-bucket/o" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotName = r.URL.Query().Get("name")
		gotType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"ok"}`))
	})

	u, err := client.Upload(context.Background(), "deliveries/o1/f.pdf", "application/pdf", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if u != "https://cdn.example.com/deliveries-bucket/deliveries/o1/f.pdf" {
		t.Fatalf("unexpected url %s", u)
	}
	if gotName != "deliveries/o1/f.pdf" || gotType != "application/pdf" || gotAuth != "Bearer tok" {
		t.Fatalf("unexpected request name=%q type=%q auth=%q", gotName, gotType, gotAuth)
	}
	if gotBody != "%PDF-1.4" {
		t.Fatalf("unexpected body %q", gotBody)
	}
}

func TestUploadSurfacesAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"caller lacks storage.objects.create"}}`))
	})

	_, err := client.Upload(context.Background(), "a.pdf", "application/pdf", strings.NewReader("x"))
	if err == nil || !strings.Contains(err.Error(), "storage.objects.create") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestDeleteIgnoresMissingObject(t *testing.T) {
	var paths []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.EscapedPath())
		if r.Method != http.MethodDelete {
			t.Errorf("unexpected method %s", r.Method)
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"No such object"}}`))
	})

	if err := client.Delete(context.Background(), "deliveries/o1/f.pdf"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(paths) != 1 || paths[0] != "/storage/v1/b/deliveries-bucket/o/deliveries%2Fo1%2Ff.pdf" {
		t.Fatalf("unexpected paths %v", paths)
	}
}

func TestDeleteReportsServerErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	if err := client.Delete(context.Background(), "x.pdf"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/storage/v1/b/deliveries-bucket/o" || r.URL.Query().Get("maxResults") != "1" {
			t.Errorf("unexpected ping %s", r.URL.String())
		}
		_, _ = w.Write([]byte(`{"items":[]}`))
	})
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestTokenSourceCachesUntilExpiry(t *testing.T) {
	calls := 0
	ts := &tokenSource{fetch: func(context.Context) (string, time.Time, error) {
		calls++
		return "tok", time.Now().Add(time.Hour), nil
	}}
	for i := 0; i < 3; i++ {
		if _, err := ts.Token(context.Background()); err != nil {
			t.Fatalf("token: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one fetch, got %d", calls)
	}
}

func TestServiceAccountTokenExchange(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	var assertion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		assertion = r.PostForm.Get("assertion")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "sa-token", "expires_in": 3600})
	}))
	defer srv.Close()

	creds, _ := json.Marshal(map[string]string{
		"client_email": "uploader@example.iam.gserviceaccount.com",
		"private_key":  string(pemKey),
		"token_uri":    srv.URL,
	})
	ts, err := newServiceAccountTokenSource(srv.Client(), string(creds))
	if err != nil {
		t.Fatalf("token source: %v", err)
	}
	token, err := ts.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if token != "sa-token" {
		t.Fatalf("unexpected token %q", token)
	}

	parsed, err := jwt.ParseWithClaims(assertion, &assertionClaims{}, func(*jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithAudience(srv.URL))
	if err != nil {
		t.Fatalf("verify assertion: %v", err)
	}
	claims := parsed.Claims.(*assertionClaims)
	if claims.Issuer != "uploader@example.iam.gserviceaccount.com" || claims.Scope != scope {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestServiceAccountRejectsBadCredentials(t *testing.T) {
	if _, err := newServiceAccountTokenSource(http.DefaultClient, `{"client_email":"a@b"}`); err == nil {
		t.Fatalf("expected error for missing key")
	}
	if _, err := newServiceAccountTokenSource(http.DefaultClient, `{"client_email":"a@b","private_key":"nope"}`); err == nil {
		t.Fatalf("expected error for malformed key")
	}
}
