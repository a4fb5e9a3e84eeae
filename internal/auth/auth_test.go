package auth

import (
	"errors"
	"testing"
	"time"
)

func TestRoleCapabilities(t *testing.T) {
	cases := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleViewer, PermView, true},
		{RoleViewer, PermTrade, false},
		{RoleTrader, PermTrade, true},
		{RoleTrader, PermManageRisk, false},
		{RoleRisk, PermManageRisk, true},
		{RoleRisk, PermTrade, false},
		{RoleAdmin, PermAdmin, true},
		{RoleAdmin, PermTrade, true},
		{Role("intern"), PermView, false},
	}

	for _, c := range cases {
		if got := c.role.Can(c.perm); got != c.want {
			t.Errorf("%s.Can(%s) = %v, want %v", c.role, c.perm, got, c.want)
		}
	}
}

func TestParseRole(t *testing.T) {
	if _, err := ParseRole("trader"); err != nil {
		t.Errorf("trader should parse: %v", err)
	}
	if _, err := ParseRole("superuser"); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("expected ErrUnknownRole, got %v", err)
	}
}

func TestVerifyToken_RoundTrip(t *testing.T) {
	token, err := SignToken("secret", "trader-1", RoleTrader, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := VerifyToken("secret", token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "trader-1" || claims.Role != RoleTrader {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	token, _ := SignToken("secret", "trader-1", RoleTrader, time.Minute)
	if _, err := VerifyToken("other", token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyToken_Expired(t *testing.T) {
	token, _ := SignToken("secret", "trader-1", RoleTrader, -time.Minute)
	if _, err := VerifyToken("secret", token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestVerifyToken_Empty(t *testing.T) {
	if _, err := VerifyToken("secret", ""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for empty token, got %v", err)
	}
}

func TestVerifyToken_UnknownRoleClaim(t *testing.T) {
	token, _ := SignToken("secret", "x", Role("intern"), time.Minute)
	if _, err := VerifyToken("secret", token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for unknown role, got %v", err)
	}
}
