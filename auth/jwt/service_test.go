package jwt_test

import (
	"errors"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/kbukum/playurl/auth/jwt"
	"github.com/kbukum/playurl/clock"
)

const secret = "0123456789abcdef0123456789abcdef"

func newService(t *testing.T, cfg jwt.Config, clk clock.Clock) *jwt.Service[*jwt.Claims] {
	t.Helper()
	svc, err := jwt.NewService(&cfg, jwt.NewClaims, jwt.WithClock(clk))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     jwt.Config
		wantErr bool
	}{
		{"valid", jwt.Config{Secret: secret}, false},
		{"short secret", jwt.Config{Secret: "short"}, true},
		{"bad method", jwt.Config{Secret: secret, Method: "RS256"}, true},
		{"hs512", jwt.Config{Secret: secret, Method: jwt.HS512}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.ApplyDefaults()
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubjectRoundTrip(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newService(t, jwt.Config{Secret: secret, Issuer: "id.test", Audience: "playurl"}, clk)

	token, err := svc.GenerateAccess(&jwt.Claims{RegisteredClaims: gojwt.RegisteredClaims{Subject: "user-1"}})
	if err != nil {
		t.Fatalf("GenerateAccess: %v", err)
	}
	sub, err := svc.Subject(token)
	if err != nil {
		t.Fatalf("Subject: %v", err)
	}
	if sub != "user-1" {
		t.Fatalf("sub = %q, want user-1", sub)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newService(t, jwt.Config{Secret: secret, AccessTokenTTL: time.Minute, Leeway: time.Second}, clk)

	token, err := svc.GenerateAccess(&jwt.Claims{RegisteredClaims: gojwt.RegisteredClaims{Subject: "user-1"}})
	if err != nil {
		t.Fatalf("GenerateAccess: %v", err)
	}
	clk.Advance(2 * time.Minute)
	if _, err := svc.Subject(token); !errors.Is(err, gojwt.ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
}

func TestWrongSecretRejected(t *testing.T) {
	clk := clock.NewFake(time.Now())
	issuer := newService(t, jwt.Config{Secret: "another-secret-of-enough-length"}, clk)
	verifier := newService(t, jwt.Config{Secret: secret}, clk)

	token, err := issuer.GenerateAccess(&jwt.Claims{RegisteredClaims: gojwt.RegisteredClaims{Subject: "user-1"}})
	if err != nil {
		t.Fatalf("GenerateAccess: %v", err)
	}
	if _, err := verifier.Subject(token); !errors.Is(err, gojwt.ErrTokenSignatureInvalid) {
		t.Fatalf("err = %v, want ErrTokenSignatureInvalid", err)
	}
}

func TestIssuerMismatchRejected(t *testing.T) {
	clk := clock.NewFake(time.Now())
	issuer := newService(t, jwt.Config{Secret: secret, Issuer: "other"}, clk)
	verifier := newService(t, jwt.Config{Secret: secret, Issuer: "id.test"}, clk)

	token, err := issuer.GenerateAccess(&jwt.Claims{RegisteredClaims: gojwt.RegisteredClaims{Subject: "user-1"}})
	if err != nil {
		t.Fatalf("GenerateAccess: %v", err)
	}
	if _, err := verifier.Subject(token); !errors.Is(err, gojwt.ErrTokenInvalidIssuer) {
		t.Fatalf("err = %v, want ErrTokenInvalidIssuer", err)
	}
}

func TestMissingSubject(t *testing.T) {
	svc := newService(t, jwt.Config{Secret: secret}, clock.NewFake(time.Now()))

	token, err := svc.GenerateAccess(&jwt.Claims{})
	if err != nil {
		t.Fatalf("GenerateAccess: %v", err)
	}
	if _, err := svc.Subject(token); !errors.Is(err, jwt.ErrNoSubject) {
		t.Fatalf("err = %v, want ErrNoSubject", err)
	}
}

func TestMissingExpiryRejected(t *testing.T) {
	svc := newService(t, jwt.Config{Secret: secret}, clock.NewFake(time.Now()))

	token, err := svc.Generate(&jwt.Claims{RegisteredClaims: gojwt.RegisteredClaims{Subject: "user-1"}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := svc.Subject(token); !errors.Is(err, gojwt.ErrTokenRequiredClaimMissing) {
		t.Fatalf("err = %v, want ErrTokenRequiredClaimMissing", err)
	}
}
