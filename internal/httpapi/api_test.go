package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"xitem.org/internal/auth"
	"xitem.org/internal/calendar"
	"xitem.org/internal/event"
	"xitem.org/internal/mail"
	"xitem.org/internal/note"
	"xitem.org/internal/store/memory"
	"xitem.org/internal/voting"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	mailer  *mail.Recorder
	store   *memory.Store
	t       *testing.T
}

type session struct {
	userID  string
	auth    string
	refresh string
}

func (s session) headers() map[string]string {
	return map[string]string{headerAuthToken: s.auth}
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	store := memory.New()
	tokens, err := auth.NewTokens(
		auth.WithSecret(auth.KindAuth, "auth-secret"),
		auth.WithSecret(auth.KindRefresh, "refresh-secret"),
		auth.WithSecret(auth.KindSecurity, "security-secret"),
		auth.WithSecret(auth.KindEmail, "email-secret"),
		auth.WithSecret(auth.KindRecovery, "recovery-secret"),
		auth.WithSecret(auth.KindDeletion, "deletion-secret"),
		auth.WithSecret(auth.KindInvitation, "invitation-secret"),
	)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	mailer := &mail.Recorder{}

	api := New(Deps{
		Resolver:   auth.NewResolver(tokens, store),
		Roles:      auth.NewRoleEngine(store),
		Accounts:   auth.NewAccounts(store, tokens, mailer),
		Calendars:  calendar.NewService(store.Calendars(), tokens),
		Events:     event.NewService(store.Events(), store.Calendars()),
		Notes:      note.NewService(store.Notes(), store.Calendars()),
		Votings:    voting.NewService(store.Votings(), store.Calendars()),
		Ready:      readyFunc(store.Ping),
		Version:    "test",
		RateBurst:  1000,
		RatePerSec: 1000,
	})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		srv.Close()
		api.Close()
	})

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		mailer:  mailer,
		store:   store,
		t:       t,
	}
}

// promote changes a user's role directly in the store.
func (c *apiClient) promote(s session, role string) {
	c.t.Helper()
	ctx := context.Background()
	u, err := c.store.Users(ctx).Find(ctx, s.userID)
	if err != nil {
		c.t.Fatalf("find user: %v", err)
	}
	u.Role = role
	if err := c.store.Users(ctx).Update(ctx, u); err != nil {
		c.t.Fatalf("update user: %v", err)
	}
}

type readyFunc func(ctx context.Context) error

func (f readyFunc) Check(ctx context.Context) error { return f(ctx) }

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
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

// expect checks the status and returns the decoded body.
func expect(t *testing.T, r *http.Response, status int) map[string]any {
	t.Helper()
	body := decode[map[string]any](t, r)
	if r.StatusCode != status {
		t.Fatalf("%s %s: expected %d, got %d (%v)", r.Request.Method, r.Request.URL.Path, status, r.StatusCode, body)
	}
	return body
}

func expectError(t *testing.T, r *http.Response, status int, tag string) {
	t.Helper()
	body := expect(t, r, status)
	if body["error"] != tag {
		t.Fatalf("expected error %q, got %v", tag, body["error"])
	}
	if body["request_id"] == nil || body["request_id"] == "" {
		t.Fatalf("expected request_id in error body")
	}
}

// register runs the verification flow and logs in.
func (c *apiClient) register(name, email, password string) session {
	c.t.Helper()
	expect(c.t, c.do(http.MethodPost, "/auth/send-verification", map[string]any{
		"name": name, "email": email, "birthday": "1990-04-01",
	}, nil), http.StatusOK)

	sent := c.mailer.Sent()
	if len(sent) == 0 {
		c.t.Fatal("no verification mail sent")
	}
	key := sent[len(sent)-1].Key

	created := expect(c.t, c.do(http.MethodPost, "/auth/verify", map[string]any{
		"validation_key": key, "password": password, "repeat_password": password,
	}, nil), http.StatusCreated)

	resp := c.do(http.MethodPost, "/auth/login", map[string]any{"email": email, "password": password}, nil)
	body := expect(c.t, resp, http.StatusOK)
	if body["user_id"] != created["user_id"] {
		c.t.Fatalf("login returned %v, verify returned %v", body["user_id"], created["user_id"])
	}
	s := session{
		userID:  body["user_id"].(string),
		auth:    resp.Header.Get(headerAuthToken),
		refresh: resp.Header.Get(headerRefreshToken),
	}
	if s.auth == "" || s.refresh == "" {
		c.t.Fatal("login did not return both tokens")
	}
	return s
}

// securityHeaders performs step-up and returns headers for high-security
// routes.
func (c *apiClient) securityHeaders(s session) map[string]string {
	c.t.Helper()
	resp := c.do(http.MethodGet, "/auth/security", nil, map[string]string{
		headerAuthToken:    s.auth,
		headerRefreshToken: s.refresh,
	})
	expect(c.t, resp, http.StatusOK)
	token := resp.Header.Get(headerSecurityToken)
	if token == "" {
		c.t.Fatal("no security token issued")
	}
	return map[string]string{headerAuthToken: s.auth, headerSecurityToken: token}
}

func (c *apiClient) createCalendar(s session, title string) map[string]any {
	c.t.Helper()
	body := expect(c.t, c.do(http.MethodPost, "/calendar", map[string]any{
		"title": title, "password": "letmein", "can_join": true,
	}, s.headers()), http.StatusCreated)
	return body["calendar"].(map[string]any)
}

func TestRegistrationAndWhoami(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register("Alice", "alice@example.com", "correct-horse")

	body := expect(t, api.do(http.MethodGet, "/auth/id", nil, alice.headers()), http.StatusOK)
	if body["user_id"] != alice.userID || body["role"] != auth.RoleVerified {
		t.Fatalf("unexpected identity: %v", body)
	}

	// a second registration with the same email is refused
	expectError(t, api.do(http.MethodPost, "/auth/send-verification", map[string]any{
		"name": "Alice", "email": "ALICE@example.com",
	}, nil), http.StatusBadRequest, "email_exists")
}

func TestLoginFailures(t *testing.T) {
	api := newTestAPI(t)
	api.register("Alice", "alice@example.com", "correct-horse")

	expectError(t, api.do(http.MethodPost, "/auth/login", map[string]any{
		"email": "alice@example.com", "password": "wrong-password",
	}, nil), http.StatusUnauthorized, "auth_failed")
	expectError(t, api.do(http.MethodPost, "/auth/login", map[string]any{
		"email": "nobody@example.com", "password": "whatever",
	}, nil), http.StatusUnauthorized, "auth_failed")
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t)
	expectError(t, api.do(http.MethodGet, "/auth/id", nil, nil), http.StatusUnauthorized, "token_required")
	expectError(t, api.do(http.MethodGet, "/auth/id", nil, map[string]string{headerAuthToken: "garbage"}),
		http.StatusUnauthorized, "invalid_token")
}

func TestBearerHeaderAccepted(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register("Alice", "alice@example.com", "correct-horse")
	expect(t, api.do(http.MethodGet, "/auth/id", nil, map[string]string{"Authorization": "Bearer " + alice.auth}), http.StatusOK)
}

func TestRefreshRejectsLiveToken(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register("Alice", "alice@example.com", "correct-horse")
	expectError(t, api.do(http.MethodGet, "/auth/refresh", nil, map[string]string{
		headerAuthToken: alice.auth, headerRefreshToken: alice.refresh,
	}), http.StatusBadRequest, "token_still_valid")
}

func TestCalendarMembershipFlow(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register("Alice", "alice@example.com", "correct-horse")
	bob := api.register("Bob", "bob@example.com", "battery-staple")

	cal := api.createCalendar(alice, "Team")
	if cal["calendar_name"] != "Team#0001" || cal["is_owner"] != true {
		t.Fatalf("unexpected calendar: %v", cal)
	}
	calID := cal["calendar_id"].(string)

	// join by full name; '#' travels escaped
	joinPath := "/calendar/" + url.PathEscape("Team#0001") + "/user"
	expectError(t, api.do(http.MethodPost, joinPath, map[string]any{"password": "nope"}, bob.headers()),
		http.StatusUnauthorized, "wrong_password")
	expect(t, api.do(http.MethodPost, joinPath, map[string]any{"password": "letmein", "color": 7}, bob.headers()), http.StatusOK)
	expectError(t, api.do(http.MethodPost, joinPath, map[string]any{"password": "letmein"}, bob.headers()),
		http.StatusForbidden, "already_exists")

	members := expect(t, api.do(http.MethodGet, "/calendar/"+calID+"/user", nil, bob.headers()), http.StatusOK)
	if list := members["associated_users"].([]any); len(list) != 2 {
		t.Fatalf("expected 2 members, got %v", list)
	}

	// the only owner cannot leave
	expectError(t, api.do(http.MethodDelete, "/calendar/"+calID+"/user/"+alice.userID, nil, api.securityHeaders(alice)),
		http.StatusForbidden, "last_owner")

	// bob is not an owner and may not promote himself
	expectError(t, api.do(http.MethodPatch, "/calendar/"+calID+"/user/"+bob.userID, map[string]any{"is_owner": true}, bob.headers()),
		http.StatusForbidden, "insufficient_permissions")

	body := expect(t, api.do(http.MethodPatch, "/calendar/"+calID+"/user/"+bob.userID,
		map[string]any{"is_owner": true, "can_edit_events": true}, alice.headers()), http.StatusOK)
	if body["changes"] != float64(2) {
		t.Fatalf("expected 2 changes, got %v", body["changes"])
	}

	// with a second owner alice can leave
	expect(t, api.do(http.MethodDelete, "/calendar/"+calID+"/user/"+alice.userID, nil, api.securityHeaders(alice)), http.StatusOK)
	expectError(t, api.do(http.MethodGet, "/calendar/"+calID, nil, alice.headers()), http.StatusForbidden, "access_forbidden")

	// and bob, now alone, cannot
	expectError(t, api.do(http.MethodDelete, "/calendar/"+calID+"/user/"+bob.userID, nil, api.securityHeaders(bob)),
		http.StatusForbidden, "last_member")
}

func TestHighSecurityRequiresSecurityToken(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register("Alice", "alice@example.com", "correct-horse")
	calID := api.createCalendar(alice, "Private")["calendar_id"].(string)

	expectError(t, api.do(http.MethodDelete, "/calendar/"+calID, nil, alice.headers()), http.StatusUnauthorized, "token_required")

	// a refresh token is not a security token
	expectError(t, api.do(http.MethodDelete, "/calendar/"+calID, nil, map[string]string{
		headerAuthToken: alice.auth, headerSecurityToken: alice.refresh,
	}), http.StatusUnauthorized, "invalid_token")

	expect(t, api.do(http.MethodDelete, "/calendar/"+calID, nil, api.securityHeaders(alice)), http.StatusOK)
}

func TestInvitationFlow(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register("Alice", "alice@example.com", "correct-horse")
	bob := api.register("Bob", "bob@example.com", "battery-staple")
	calID := api.createCalendar(alice, "Family")["calendar_id"].(string)

	invitePath := "/calendar/" + calID + "/invitation"
	expectError(t, api.do(http.MethodPost, invitePath, map[string]any{
		"can_create_events": true, "can_edit_events": false, "expire": 1,
	}, api.securityHeaders(alice)), http.StatusBadRequest, "invalid_number")

	body := expect(t, api.do(http.MethodPost, invitePath, map[string]any{
		"can_create_events": true, "can_edit_events": false, "expire": 60,
	}, api.securityHeaders(alice)), http.StatusOK)
	token := body["invitation_token"].(string)

	expect(t, api.do(http.MethodPost, "/invitation", map[string]any{"invitation_token": token, "icon": 3}, bob.headers()), http.StatusOK)

	member := expect(t, api.do(http.MethodGet, "/calendar/"+calID+"/user/"+bob.userID, nil, bob.headers()), http.StatusOK)
	m := member["associated_user"].(map[string]any)
	if m["can_create_events"] != true || m["can_edit_events"] != false || m["is_owner"] != false || m["icon"] != float64(3) {
		t.Fatalf("unexpected membership: %v", m)
	}
}

func TestEventFlow(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register("Alice", "alice@example.com", "correct-horse")
	mallory := api.register("Mallory", "mallory@example.com", "not-a-member")
	calID := api.createCalendar(alice, "Work")["calendar_id"].(string)
	eventsPath := "/calendar/" + calID + "/event"

	expectError(t, api.do(http.MethodPost, eventsPath, map[string]any{
		"title": "Standup", "begin_date": "2024-06-01T10:00:00Z", "end_date": "2024-06-01T09:00:00Z", "daylong": false,
	}, alice.headers()), http.StatusBadRequest, "end_before_start")

	created := expect(t, api.do(http.MethodPost, eventsPath, map[string]any{
		"title": "Standup", "begin_date": "2024-06-01T09:00:00Z", "end_date": "2024-06-01T09:15:00Z", "daylong": false,
	}, alice.headers()), http.StatusCreated)
	eventID := created["event_id"].(string)

	list := expect(t, api.do(http.MethodGet, eventsPath+"?begin=2024-06-01T00:00:00Z&end=2024-06-02T00:00:00Z", nil, alice.headers()), http.StatusOK)
	if events := list["events"].([]any); len(events) != 1 {
		t.Fatalf("expected 1 event, got %v", events)
	}
	list = expect(t, api.do(http.MethodGet, eventsPath+"?begin=2024-07-01T00:00:00Z", nil, alice.headers()), http.StatusOK)
	if events := list["events"].([]any); len(events) != 0 {
		t.Fatalf("expected no events, got %v", events)
	}

	body := expect(t, api.do(http.MethodPatch, eventsPath+"/"+eventID, map[string]any{"title": "Daily standup"}, alice.headers()), http.StatusOK)
	if body["changes"] != float64(1) {
		t.Fatalf("expected 1 change, got %v", body["changes"])
	}

	expectError(t, api.do(http.MethodGet, eventsPath+"/"+eventID, nil, mallory.headers()), http.StatusForbidden, "access_forbidden")
	expectError(t, api.do(http.MethodGet, eventsPath+"/not-a-uuid", nil, alice.headers()), http.StatusNotFound, "event_not_found")

	expect(t, api.do(http.MethodDelete, eventsPath+"/"+eventID, nil, alice.headers()), http.StatusOK)
	expectError(t, api.do(http.MethodGet, eventsPath+"/"+eventID, nil, alice.headers()), http.StatusNotFound, "event_not_found")
}

func TestInvitationIgnoresRequestedPermissions(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register("Alice", "alice@example.com", "correct-horse")
	bob := api.register("Bob", "bob@example.com", "battery-staple")
	calID := api.createCalendar(alice, "Family")["calendar_id"].(string)

	body := expect(t, api.do(http.MethodPost, "/calendar/"+calID+"/invitation", map[string]any{
		"can_create_events": true, "can_edit_events": false, "expire": 60,
	}, api.securityHeaders(alice)), http.StatusOK)

	// flags come from the signed invitation, never from the accepting request
	expect(t, api.do(http.MethodPost, "/invitation", map[string]any{
		"invitation_token":  body["invitation_token"],
		"is_owner":          true,
		"can_create_events": false,
		"can_edit_events":   true,
	}, bob.headers()), http.StatusOK)

	member := expect(t, api.do(http.MethodGet, "/calendar/"+calID+"/user/"+bob.userID, nil, bob.headers()), http.StatusOK)
	m := member["associated_user"].(map[string]any)
	if m["is_owner"] != false || m["can_create_events"] != true || m["can_edit_events"] != false {
		t.Fatalf("request fields leaked into membership: %v", m)
	}
}

func joinTeam(t *testing.T, api *apiClient, s session) {
	t.Helper()
	joinPath := "/calendar/" + url.PathEscape("Team#0001") + "/user"
	expect(t, api.do(http.MethodPost, joinPath, map[string]any{"password": "letmein"}, s.headers()), http.StatusOK)
}

func TestNoteFlow(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register("Alice", "alice@example.com", "correct-horse")
	bob := api.register("Bob", "bob@example.com", "battery-staple")
	mallory := api.register("Mallory", "mallory@example.com", "not-a-member")
	calID := api.createCalendar(alice, "Team")["calendar_id"].(string)
	joinTeam(t, api, bob)
	notesPath := "/calendar/" + calID + "/note"

	expectError(t, api.do(http.MethodPost, notesPath, map[string]any{"title": "Shopping", "pinned": false}, alice.headers()),
		http.StatusBadRequest, "missing_argument")
	expectError(t, api.do(http.MethodPost, notesPath, map[string]any{"title": "Shopping", "content": "milk", "pinned": false, "color": 5}, alice.headers()),
		http.StatusBadRequest, "invalid_color")

	created := expect(t, api.do(http.MethodPost, notesPath, map[string]any{"title": "Shopping", "content": "milk", "pinned": false}, alice.headers()),
		http.StatusCreated)
	noteID := created["note_id"].(string)
	expect(t, api.do(http.MethodPost, notesPath, map[string]any{"title": "Rules", "content": "be nice", "pinned": true}, bob.headers()),
		http.StatusCreated)

	list := expect(t, api.do(http.MethodGet, notesPath, nil, bob.headers()), http.StatusOK)
	notes := list["notes"].([]any)
	if len(notes) != 2 || notes[0].(map[string]any)["title"] != "Rules" {
		t.Fatalf("expected pinned note first, got %v", notes)
	}

	// bob can create but not edit others' notes
	expectError(t, api.do(http.MethodPatch, notesPath+"/"+noteID, map[string]any{"content": "beer"}, bob.headers()),
		http.StatusForbidden, "insufficient_permissions")
	body := expect(t, api.do(http.MethodPatch, notesPath+"/"+noteID, map[string]any{"content": "milk, eggs", "pinned": true}, alice.headers()),
		http.StatusOK)
	if body["changes"] != float64(2) {
		t.Fatalf("expected 2 changes, got %v", body["changes"])
	}
	got := expect(t, api.do(http.MethodGet, notesPath+"/"+noteID, nil, bob.headers()), http.StatusOK)
	if n := got["note"].(map[string]any); n["content"] != "milk, eggs" || n["owner_id"] != alice.userID {
		t.Fatalf("unexpected note %v", n)
	}

	expectError(t, api.do(http.MethodGet, notesPath, nil, mallory.headers()), http.StatusForbidden, "access_forbidden")
	expectError(t, api.do(http.MethodGet, notesPath+"/42", nil, alice.headers()), http.StatusNotFound, "note_not_found")

	expect(t, api.do(http.MethodDelete, notesPath+"/"+noteID, nil, alice.headers()), http.StatusOK)
	expectError(t, api.do(http.MethodGet, notesPath+"/"+noteID, nil, alice.headers()), http.StatusNotFound, "note_not_found")
}

func TestVotingFlow(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register("Alice", "alice@example.com", "correct-horse")
	bob := api.register("Bob", "bob@example.com", "battery-staple")
	mallory := api.register("Mallory", "mallory@example.com", "not-a-member")
	calID := api.createCalendar(alice, "Team")["calendar_id"].(string)
	joinTeam(t, api, bob)
	votingsPath := "/calendar/" + calID + "/voting"

	payload := map[string]any{
		"title": "Dinner", "abstention_allowed": true, "multiple_choice": false,
		"choices": []map[string]any{
			{"date": "2024-06-01T18:00:00Z", "comment": "friday"},
			{"date": "2024-06-02T18:00:00Z"},
		},
	}
	expectError(t, api.do(http.MethodPost, votingsPath, payload, bob.headers()), http.StatusForbidden, "insufficient_permissions")
	created := expect(t, api.do(http.MethodPost, votingsPath, payload, alice.headers()), http.StatusCreated)
	votingID := created["voting_id"].(string)
	choices := created["voting"].(map[string]any)["choices"].([]any)
	if len(choices) != 3 || choices[2].(map[string]any)["comment"] != "abstention" || choices[2].(map[string]any)["date"] != nil {
		t.Fatalf("expected abstention choice, got %v", choices)
	}
	friday := choices[0].(map[string]any)["choice_id"].(string)
	sunday := choices[1].(map[string]any)["choice_id"].(string)

	votePath := votingsPath + "/" + votingID + "/vote"
	expectError(t, api.do(http.MethodPost, votePath, map[string]any{"choice_ids": []string{}}, bob.headers()),
		http.StatusBadRequest, "missing_argument")
	expectError(t, api.do(http.MethodPost, votePath, map[string]any{"choice_ids": []string{friday, sunday}}, bob.headers()),
		http.StatusBadRequest, "no_multiple_choice_enabled")
	expectError(t, api.do(http.MethodPost, votePath, map[string]any{"choice_ids": []string{votingID}}, bob.headers()),
		http.StatusNotFound, "choice_not_found")
	expectError(t, api.do(http.MethodPost, votePath, map[string]any{"choice_ids": []string{friday}}, mallory.headers()),
		http.StatusForbidden, "access_forbidden")
	expect(t, api.do(http.MethodPost, votePath, map[string]any{"choice_ids": []string{friday}}, bob.headers()), http.StatusCreated)
	expectError(t, api.do(http.MethodPost, votePath, map[string]any{"choice_ids": []string{sunday}}, bob.headers()),
		http.StatusBadRequest, "already_voted")

	got := expect(t, api.do(http.MethodGet, votingsPath+"/"+votingID, nil, bob.headers()), http.StatusOK)
	v := got["voting"].(map[string]any)
	if v["users_voted"] != float64(1) || v["user_has_voted"] != true {
		t.Fatalf("unexpected tally %v", v)
	}
	if picks := v["user_voted_for"].([]any); len(picks) != 1 || picks[0] != friday {
		t.Fatalf("unexpected picks %v", picks)
	}
	if first := v["choices"].([]any)[0].(map[string]any); first["amount_votes"] != float64(1) {
		t.Fatalf("unexpected choice %v", first)
	}

	list := expect(t, api.do(http.MethodGet, votingsPath, nil, alice.headers()), http.StatusOK)
	votings := list["votings"].([]any)
	if len(votings) != 1 || votings[0].(map[string]any)["user_has_voted"] != false {
		t.Fatalf("alice has not voted: %v", votings)
	}

	expectError(t, api.do(http.MethodDelete, votingsPath+"/"+votingID, nil, bob.headers()), http.StatusForbidden, "insufficient_permissions")
	expect(t, api.do(http.MethodDelete, votingsPath+"/"+votingID, nil, alice.headers()), http.StatusOK)
	expectError(t, api.do(http.MethodGet, votingsPath+"/"+votingID, nil, alice.headers()), http.StatusNotFound, "voting_not_found")
}

func TestEventsPeriodFilter(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register("Alice", "alice@example.com", "correct-horse")
	calID := api.createCalendar(alice, "Work")["calendar_id"].(string)
	expect(t, api.do(http.MethodPost, "/calendar/"+calID+"/event", map[string]any{
		"title": "Offsite", "begin_date": "2024-06-01T00:00:00Z", "end_date": "2024-06-05T00:00:00Z", "daylong": true,
	}, alice.headers()), http.StatusCreated)

	periodPath := "/filter/calendar/" + calID + "/period"
	expectError(t, api.do(http.MethodGet, periodPath+"?begin_date=2024-06-02T00:00:00Z", nil, alice.headers()),
		http.StatusBadRequest, "missing_argument")

	// a window inside the event still matches it
	list := expect(t, api.do(http.MethodGet, periodPath+"?begin_date=2024-06-02T00:00:00Z&end_date=2024-06-03T00:00:00Z", nil, alice.headers()), http.StatusOK)
	if events := list["events"].([]any); len(events) != 1 {
		t.Fatalf("expected 1 event, got %v", events)
	}
	list = expect(t, api.do(http.MethodGet, periodPath+"?begin_date=2024-07-01T00:00:00Z&end_date=2024-07-02T00:00:00Z", nil, alice.headers()), http.StatusOK)
	if events := list["events"].([]any); len(events) != 0 {
		t.Fatalf("expected no events, got %v", events)
	}
}

func TestUserStatistics(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register("Alice", "alice@example.com", "correct-horse")
	api.register("Bob", "bob@example.com", "battery-staple")

	expectError(t, api.do(http.MethodGet, "/statistic/users", nil, alice.headers()), http.StatusForbidden, "insufficient_permissions")

	api.promote(alice, auth.RoleAdmin)
	body := expect(t, api.do(http.MethodGet, "/statistic/users", nil, alice.headers()), http.StatusOK)
	if body["registered"] != float64(2) {
		t.Fatalf("expected 2 registered users, got %v", body["registered"])
	}
	counts := map[string]float64{}
	for _, raw := range body["roles"].([]any) {
		rc := raw.(map[string]any)
		counts[rc["role"].(string)] = rc["amount"].(float64)
	}
	if counts[auth.RoleAdmin] != 1 || counts[auth.RoleVerified] != 1 {
		t.Fatalf("unexpected role counts %v", counts)
	}
}

func TestUserProfile(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register("Alice", "alice@example.com", "correct-horse")
	bob := api.register("Bob", "bob@example.com", "battery-staple")

	own := expect(t, api.do(http.MethodGet, "/user/"+alice.userID, nil, alice.headers()), http.StatusOK)
	if u := own["user"].(map[string]any); u["email"] != "alice@example.com" || u["birthday"] != "1990-04-01" {
		t.Fatalf("unexpected own profile: %v", u)
	}
	other := expect(t, api.do(http.MethodGet, "/user/"+alice.userID, nil, bob.headers()), http.StatusOK)
	if u := other["user"].(map[string]any); u["email"] != nil {
		t.Fatalf("email leaked to another user: %v", u)
	}

	expectError(t, api.do(http.MethodPatch, "/user/"+alice.userID, map[string]any{"name": "Eve"}, bob.headers()),
		http.StatusForbidden, "insufficient_permissions")
	body := expect(t, api.do(http.MethodPatch, "/user/"+alice.userID, map[string]any{"name": "Alicia"}, alice.headers()), http.StatusOK)
	if body["changes"] != float64(1) {
		t.Fatalf("expected 1 change, got %v", body["changes"])
	}

	// only sysadmins may delete other accounts
	expectError(t, api.do(http.MethodDelete, "/user/"+alice.userID, nil, bob.headers()), http.StatusForbidden, "insufficient_permissions")
}

func TestAccountDeletionFlow(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register("Alice", "alice@example.com", "correct-horse")

	expect(t, api.do(http.MethodPost, "/user/"+alice.userID+"/deletion_request", nil, api.securityHeaders(alice)), http.StatusOK)
	sent := api.mailer.Sent()
	msg := sent[len(sent)-1]
	if msg.Template != mail.TemplateDeletionRequest {
		t.Fatalf("unexpected template %q", msg.Template)
	}

	expectError(t, api.do(http.MethodDelete, "/user", map[string]any{"deletion_key": msg.Key, "password": "wrong-password"}, nil),
		http.StatusUnauthorized, "auth_failed")
	expect(t, api.do(http.MethodDelete, "/user", map[string]any{"deletion_key": msg.Key, "password": "correct-horse"}, nil), http.StatusOK)

	// the old auth token no longer resolves
	expectError(t, api.do(http.MethodGet, "/auth/id", nil, alice.headers()), http.StatusUnauthorized, "invalid_token")
}

func TestMalformedJSON(t *testing.T) {
	api := newTestAPI(t)
	req, err := http.NewRequest(http.MethodPost, api.baseURL+"/auth/login", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := api.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	expectError(t, resp, http.StatusBadRequest, "invalid_json")
}

func TestUnknownRoute(t *testing.T) {
	api := newTestAPI(t)
	expectError(t, api.do(http.MethodGet, "/nope", nil, nil), http.StatusNotFound, "not_found")
}

func TestHealthReadyInfo(t *testing.T) {
	api := newTestAPI(t)
	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		expect(t, api.do(http.MethodGet, path, nil, nil), http.StatusOK)
	}
	resp := api.do(http.MethodGet, "/openapi.yaml", nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("openapi: unexpected status %d", resp.StatusCode)
	}
}
