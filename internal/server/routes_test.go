package server_test

import (
	"testing"

	"presencelog/internal/server"
)

func TestIsAuthRequired(t *testing.T) {
	cases := []struct {
		path     string
		basePath string
		want     bool
	}{
		{"/api/healthz", "", false},
		{"/api/auth/login", "", false},
		{"/metrics", "", false},
		{"/api/auth/logout", "", true},
		{"/api/auth/me", "", true},
		{"/api/users", "", true},
		{"/api/history", "", true},
		{"/api/presence/current", "", true},
		{"/unknown", "", true},

		// Under an external base path
		{"/presencelog/api/healthz", "/presencelog", false},
		{"/presencelog/api/users", "/presencelog", true},
		{"/presencelog/metrics", "/presencelog", false},
	}

	for _, tc := range cases {
		if got := server.IsAuthRequired(tc.path, tc.basePath); got != tc.want {
			t.Errorf("IsAuthRequired(%q, %q) = %v, want %v", tc.path, tc.basePath, got, tc.want)
		}
	}
}

func TestRouteGroupsCoverAPI(t *testing.T) {
	groups := server.GetRouteGroups()

	var hasAPI bool
	for _, rg := range groups {
		if rg.PathPrefix == "/api" && rg.RequiresAuth {
			hasAPI = true
		}
	}
	if !hasAPI {
		t.Error("api route group must require auth")
	}
}
