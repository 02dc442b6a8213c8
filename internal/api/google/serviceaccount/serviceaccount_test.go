package serviceaccount

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"sctables/internal/testutil"
)

func TestLoadKey(t *testing.T) {
	t.Parallel()

	key, err := LoadKey([]byte(`{"client_email": "svc@test.iam.gserviceaccount.com", "token_uri": "https://oauth2.googleapis.com/token"}`))
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, key.ClientEmail, "svc@test.iam.gserviceaccount.com")
	testutil.AssertEqual(t, key.TokenURI, "https://oauth2.googleapis.com/token")

	if _, err := LoadKey([]byte("{broken")); err == nil {
		t.Fatal("want error for malformed JSON")
	}
}

func TestAccessToken(t *testing.T) {
	t.Parallel()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Error(err)
		}
		testutil.AssertEqual(t, r.FormValue("grant_type"), "urn:ietf:params:oauth:grant-type:jwt-bearer")

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(r.FormValue("assertion"), claims, func(*jwt.Token) (any, error) {
			return &priv.PublicKey, nil
		})
		if err != nil {
			t.Errorf("parsing assertion: %v", err)
		}
		testutil.AssertEqual(t, claims["iss"], "svc@test.iam.gserviceaccount.com")
		testutil.AssertEqual(t, claims["scope"], "https://www.googleapis.com/auth/spreadsheets https://www.googleapis.com/auth/drive")

		json.NewEncoder(w).Encode(map[string]string{"access_token": "granted"})
	}))
	defer srv.Close()

	key := &Key{
		PrivateKey: string(pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(priv),
		})),
		ClientEmail: "svc@test.iam.gserviceaccount.com",
		TokenURI:    srv.URL,
	}

	tok, err := key.AccessToken(context.Background(), srv.Client(),
		"https://www.googleapis.com/auth/spreadsheets",
		"https://www.googleapis.com/auth/drive")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, tok, "granted")
}
