package github

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
)

func TestListOrganizationTeams(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/orgs/test-org/teams", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": 123, "slug": "team-one", "name": "Team One", "description": "First team", "privacy": "closed", "members_count": 4},
			{"id": 456, "slug": "team-two", "name": "Team Two", "privacy": "secret"},
		})
	})
	client := newTestClient(t, mux)

	teams, err := client.ListOrganizationTeams(context.Background(), "test-org")
	if err != nil {
		t.Fatalf("ListOrganizationTeams() error = %v", err)
	}
	if len(teams) != 2 {
		t.Fatalf("Expected 2 teams, got %d", len(teams))
	}
	if teams[0].Slug != "team-one" || teams[0].Name != "Team One" {
		t.Errorf("first team = %+v", teams[0])
	}
	if teams[0].MemberCount != 4 {
		t.Errorf("MemberCount = %d, want 4", teams[0].MemberCount)
	}
	if teams[1].Description != "" {
		t.Errorf("Description = %q, want empty", teams[1].Description)
	}
}

func TestListOrganizationTeams_Pagination(t *testing.T) {
	var serverURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/orgs/test-org/teams", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			writeJSON(w, http.StatusOK, []map[string]any{{"id": 2, "slug": "b"}})
			return
		}
		w.Header().Set("Link", `<`+serverURL+`/api/v3/orgs/test-org/teams?page=2>; rel="next"`)
		writeJSON(w, http.StatusOK, []map[string]any{{"id": 1, "slug": "a"}})
	})
	client := newTestClient(t, mux)
	serverURL = client.BaseURL()

	teams, err := client.ListOrganizationTeams(context.Background(), "test-org")
	if err != nil {
		t.Fatalf("ListOrganizationTeams() error = %v", err)
	}
	if len(teams) != 2 || teams[1].Slug != "b" {
		t.Errorf("expected both pages, got %d teams", len(teams))
	}
}

func TestListTeamRepositories(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/orgs/test-org/teams/team-one/repos", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{
			{
				"id": 1, "full_name": "test-org/repo-one", "visibility": "private",
				"permissions": map[string]bool{"admin": true, "maintain": true, "push": true, "triage": true, "pull": true},
			},
			{
				"id": 2, "full_name": "test-org/repo-two", "visibility": "internal", "archived": true,
				"permissions": map[string]bool{"push": true, "triage": true, "pull": true},
			},
			{
				"id": 3, "full_name": "test-org/repo-three",
				"permissions": map[string]bool{"pull": true},
			},
		})
	})
	client := newTestClient(t, mux)

	repos, err := client.ListTeamRepositories(context.Background(), "test-org", "team-one")
	if err != nil {
		t.Fatalf("ListTeamRepositories() error = %v", err)
	}
	if len(repos) != 3 {
		t.Fatalf("Expected 3 repositories, got %d", len(repos))
	}

	want := []TeamRepository{
		{FullName: "test-org/repo-one", Permission: "admin", Visibility: "private"},
		{FullName: "test-org/repo-two", Permission: "push", Visibility: "internal", Archived: true},
		{FullName: "test-org/repo-three", Permission: "pull"},
	}
	for i, w := range want {
		if *repos[i] != w {
			t.Errorf("repo[%d] = %+v, want %+v", i, *repos[i], w)
		}
	}
}

func TestGetTeamBySlug(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/orgs/test-org/teams/team-one", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 123, "slug": "team-one", "name": "Team One", "privacy": "closed"})
	})
	mux.HandleFunc("/api/v3/orgs/test-org/teams/missing", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
	})
	mux.HandleFunc("/api/v3/orgs/test-org/teams/forbidden", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]any{"message": "Resource not accessible"})
	})
	client := newTestClient(t, mux)
	ctx := context.Background()

	team, err := client.GetTeamBySlug(ctx, "test-org", "team-one")
	if err != nil {
		t.Fatalf("GetTeamBySlug() error = %v", err)
	}
	if team == nil || team.ID != 123 {
		t.Fatalf("GetTeamBySlug() = %+v, want team 123", team)
	}

	team, err = client.GetTeamBySlug(ctx, "test-org", "missing")
	if err != nil {
		t.Errorf("GetTeamBySlug() on 404 error = %v, want nil", err)
	}
	if team != nil {
		t.Errorf("GetTeamBySlug() on 404 = %+v, want nil", team)
	}

	_, err = client.GetTeamBySlug(ctx, "test-org", "forbidden")
	if !IsAuthError(err) {
		t.Errorf("GetTeamBySlug() on 403 error = %v, want auth error", err)
	}
}

func TestCreateTeam(t *testing.T) {
	var got map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v3/orgs/dest-org/teams", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		if got["name"] == "Taken" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "Validation Failed"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": 9, "slug": "platform", "name": got["name"], "privacy": got["privacy"]})
	})
	client := newTestClient(t, mux)
	ctx := context.Background()

	team, err := client.CreateTeam(ctx, "dest-org", CreateTeamInput{Name: "Platform"})
	if err != nil {
		t.Fatalf("CreateTeam() error = %v", err)
	}
	if team.Slug != "platform" {
		t.Errorf("Slug = %s, want platform", team.Slug)
	}
	if got["privacy"] != TeamPrivacyClosed {
		t.Errorf("privacy sent = %v, want closed", got["privacy"])
	}

	_, err = client.CreateTeam(ctx, "dest-org", CreateTeamInput{Name: "Taken"})
	if !IsUnprocessableError(err) {
		t.Errorf("CreateTeam() on 422 error = %v, want unprocessable", err)
	}

	if _, err := client.CreateTeam(ctx, "dest-org", CreateTeamInput{Name: "  "}); err == nil {
		t.Error("CreateTeam() with blank name should fail")
	}
}

func TestAddTeamRepoPermission(t *testing.T) {
	var got map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/v3/orgs/dest-org/teams/platform/repos/dest-org/api", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("PUT /api/v3/orgs/dest-org/teams/platform/repos/dest-org/missing", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
	})
	client := newTestClient(t, mux)
	ctx := context.Background()

	if err := client.AddTeamRepoPermission(ctx, "dest-org", "platform", "dest-org", "api", PermissionMaintain); err != nil {
		t.Fatalf("AddTeamRepoPermission() error = %v", err)
	}
	if got["permission"] != "maintain" {
		t.Errorf("permission sent = %v, want maintain", got["permission"])
	}

	err := client.AddTeamRepoPermission(ctx, "dest-org", "platform", "dest-org", "missing", PermissionPull)
	if !IsNotFoundError(err) {
		t.Errorf("AddTeamRepoPermission() on 404 error = %v, want not found", err)
	}

	if err := client.AddTeamRepoPermission(ctx, "dest-org", "platform", "dest-org", "api", "write"); err == nil {
		t.Error("AddTeamRepoPermission() should reject unknown permission")
	}
}

func TestRemoveTeamMembership(t *testing.T) {
	called := false
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /api/v3/orgs/dest-org/teams/platform/memberships/migration-bot", func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	})
	client := newTestClient(t, mux)

	if err := client.RemoveTeamMembership(context.Background(), "dest-org", "platform", "migration-bot"); err != nil {
		t.Fatalf("RemoveTeamMembership() error = %v", err)
	}
	if !called {
		t.Error("membership endpoint was not called")
	}
}

func TestListTeamMembersGraphQL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/graphql", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"data": map[string]any{
				"organization": map[string]any{
					"team": map[string]any{
						"members": map[string]any{
							"pageInfo": map[string]any{"hasNextPage": false, "endCursor": ""},
							"edges": []map[string]any{
								{"role": "MAINTAINER", "node": map[string]any{"login": "alice"}},
								{"role": "MEMBER", "node": map[string]any{"login": "bob"}},
							},
						},
					},
				},
			},
		})
	})
	client := newTestClient(t, mux)

	members, err := client.ListTeamMembersGraphQL(context.Background(), "test-org", "team-one")
	if err != nil {
		t.Fatalf("ListTeamMembersGraphQL() error = %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("Expected 2 members, got %d", len(members))
	}
	if members[0].Login != "alice" || members[0].Role != "maintainer" {
		t.Errorf("members[0] = %+v", members[0])
	}
}

func TestListTeamMembersGraphQL_FallsBackToREST(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/graphql", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
	})
	mux.HandleFunc("/api/v3/orgs/test-org/teams/team-one/members", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{{"login": "alice"}, {"login": "bob"}})
	})
	mux.HandleFunc("/api/v3/orgs/test-org/teams/team-one/memberships/alice", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"role": "maintainer", "state": "active"})
	})
	mux.HandleFunc("/api/v3/orgs/test-org/teams/team-one/memberships/bob", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"role": "member", "state": "active"})
	})
	client := newTestClient(t, mux)

	members, err := client.ListTeamMembersGraphQL(context.Background(), "test-org", "team-one")
	if err != nil {
		t.Fatalf("ListTeamMembersGraphQL() error = %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("Expected 2 members, got %d", len(members))
	}
	if members[0].Role != "maintainer" || members[1].Role != "member" {
		t.Errorf("roles = %s, %s", members[0].Role, members[1].Role)
	}
}

func TestHighestPermission(t *testing.T) {
	tests := []struct {
		perms map[string]bool
		want  string
	}{
		{nil, PermissionPull},
		{map[string]bool{"pull": true}, PermissionPull},
		{map[string]bool{"pull": true, "triage": true}, PermissionTriage},
		{map[string]bool{"pull": true, "push": true, "maintain": true}, PermissionMaintain},
		{map[string]bool{"admin": true}, PermissionAdmin},
	}
	for _, tt := range tests {
		if got := highestPermission(tt.perms); got != tt.want {
			t.Errorf("highestPermission(%v) = %s, want %s", tt.perms, got, tt.want)
		}
	}
}
