package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"

	"github.com/park285/cf-duels/internal/cfapi"
	"github.com/park285/cf-duels/internal/duel"
	"github.com/park285/cf-duels/internal/msgcat"
	"github.com/park285/cf-duels/internal/userstore"
)

type staticCatalog []cfapi.Problem

func (c staticCatalog) Problems(context.Context) ([]cfapi.Problem, error) { return c, nil }

type staticVerdicts map[string][]cfapi.Submission

func (v staticVerdicts) RecentSubmissions(_ context.Context, handle string, _ int) ([]cfapi.Submission, error) {
	return v[handle], nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	users := userstore.NewMemoryRepository()
	rating := 1200
	users.Put(userstore.User{ID: "alice", Username: "alice", Handle: "alice_cf", Verified: true, Rating: &rating, Points: 50})
	users.Put(userstore.User{ID: "bob", Username: "bob", Handle: "bob_cf", Verified: true, Rating: &rating, Points: 50})
	users.Befriend("alice", "bob")

	catalog := staticCatalog{{ContestID: 42, Index: "A", Name: "Warmup", Rating: 1200, Tags: []string{"math"}}}
	msgs, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	mgr := duel.NewManager(rdb, users,
		duel.NewSelector(catalog),
		duel.NewResolver(staticVerdicts{}, 0),
		msgs, duel.ManagerConfig{})
	return NewServer(mgr, msgs)
}

func doRequest(t *testing.T, s *Server, method, path, userID string, body any) *fasthttp.RequestCtx {
	t.Helper()
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(path)
	if userID != "" {
		req.Header.Set(userIDHeader, userID)
	}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		req.SetBody(raw)
	}
	var ctx fasthttp.RequestCtx
	ctx.Init(&req, nil, nil)
	s.Handle(&ctx)
	return &ctx
}

func decodeDuel(t *testing.T, ctx *fasthttp.RequestCtx) *duel.Duel {
	t.Helper()
	var resp struct {
		Duel *duel.Duel `json:"duel"`
	}
	if err := json.Unmarshal(ctx.Response.Body(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Duel == nil {
		t.Fatalf("no duel in response: %s", ctx.Response.Body())
	}
	return resp.Duel
}

func TestHandleRequiresIdentity(t *testing.T) {
	s := newTestServer(t)
	ctx := doRequest(t, s, fasthttp.MethodGet, "/duels", "", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusUnauthorized {
		t.Errorf("status = %d, want 401", ctx.Response.StatusCode())
	}
}

func TestChallengeLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	ctx := doRequest(t, s, fasthttp.MethodPost, "/duels", "alice", createRequest{
		OpponentID: "bob", RatingMin: 1000, RatingMax: 1500, Tags: []string{"math"},
	})
	if ctx.Response.StatusCode() != fasthttp.StatusCreated {
		t.Fatalf("create status = %d body = %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	d := decodeDuel(t, ctx)

	ctx = doRequest(t, s, fasthttp.MethodGet, "/duels/pending", "bob", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("pending status = %d", ctx.Response.StatusCode())
	}
	var pending []*duel.Duel
	if err := json.Unmarshal(ctx.Response.Body(), &pending); err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != d.ID {
		t.Fatalf("pending = %d entries", len(pending))
	}

	ctx = doRequest(t, s, fasthttp.MethodPost, fmt.Sprintf("/duels/%s/accept", d.ID), "bob", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("accept status = %d body = %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	active := decodeDuel(t, ctx)
	if active.Status != duel.StatusActive {
		t.Errorf("status after accept = %q", active.Status)
	}
	if active.ChallengeDetails.SelectedProblem == nil {
		t.Error("no problem selected")
	}

	ctx = doRequest(t, s, fasthttp.MethodGet, "/duels/"+d.ID, "alice", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("battle view status = %d", ctx.Response.StatusCode())
	}
	var view struct {
		Duel       *duel.Duel      `json:"duel"`
		Challenger participantView `json:"challenger"`
		Opponent   participantView `json:"opponent"`
	}
	if err := json.Unmarshal(ctx.Response.Body(), &view); err != nil {
		t.Fatal(err)
	}
	if view.Challenger.Username != "alice" || view.Opponent.Username != "bob" {
		t.Errorf("participants = %s/%s", view.Challenger.Username, view.Opponent.Username)
	}

	// undetermined poll keeps the battle running
	ctx = doRequest(t, s, fasthttp.MethodPost, fmt.Sprintf("/duels/%s/check", d.ID), "alice", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("check status = %d", ctx.Response.StatusCode())
	}
	var checkResp struct {
		Decided bool `json:"decided"`
	}
	if err := json.Unmarshal(ctx.Response.Body(), &checkResp); err != nil {
		t.Fatal(err)
	}
	if checkResp.Decided {
		t.Error("no solves yet, duel must stay undecided")
	}
}

func TestDrawFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)

	ctx := doRequest(t, s, fasthttp.MethodPost, "/duels", "alice", createRequest{
		OpponentID: "bob", RatingMin: 1000, RatingMax: 1500, Tags: []string{"math"},
	})
	d := decodeDuel(t, ctx)
	doRequest(t, s, fasthttp.MethodPost, fmt.Sprintf("/duels/%s/accept", d.ID), "bob", nil)

	ctx = doRequest(t, s, fasthttp.MethodPost, fmt.Sprintf("/duels/%s/draw", d.ID), "alice", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("draw offer status = %d body = %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}

	ctx = doRequest(t, s, fasthttp.MethodPost, fmt.Sprintf("/duels/%s/draw/respond", d.ID), "bob",
		drawResponseRequest{Action: "accept"})
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("draw respond status = %d body = %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	done := decodeDuel(t, ctx)
	if done.Status != duel.StatusDraw {
		t.Errorf("status = %q, want draw", done.Status)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		want   int
	}{
		{"self challenge", fasthttp.MethodPost, "/duels", "alice",
			createRequest{OpponentID: "alice", RatingMin: 1000, RatingMax: 1500, Tags: []string{"math"}},
			fasthttp.StatusBadRequest},
		{"unknown duel", fasthttp.MethodGet, "/duels/nope", "alice", nil, fasthttp.StatusNotFound},
		{"unknown route", fasthttp.MethodGet, "/teams", "alice", nil, fasthttp.StatusNotFound},
		{"bad body", fasthttp.MethodPost, "/duels", "alice", nil, fasthttp.StatusBadRequest},
		{"bad draw action", fasthttp.MethodPost, "/duels/x/draw/respond", "alice",
			drawResponseRequest{Action: "maybe"}, fasthttp.StatusBadRequest},
	}
	for _, tc := range cases {
		ctx := doRequest(t, s, tc.method, tc.path, tc.user, tc.body)
		if got := ctx.Response.StatusCode(); got != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestForbiddenActions(t *testing.T) {
	s := newTestServer(t)

	ctx := doRequest(t, s, fasthttp.MethodPost, "/duels", "alice", createRequest{
		OpponentID: "bob", RatingMin: 1000, RatingMax: 1500, Tags: []string{"math"},
	})
	d := decodeDuel(t, ctx)

	// only the challenged side may accept
	ctx = doRequest(t, s, fasthttp.MethodPost, fmt.Sprintf("/duels/%s/accept", d.ID), "alice", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusForbidden {
		t.Errorf("challenger accept status = %d, want 403", ctx.Response.StatusCode())
	}

	// duplicate pending challenge conflicts
	ctx = doRequest(t, s, fasthttp.MethodPost, "/duels", "bob", createRequest{
		OpponentID: "alice", RatingMin: 1000, RatingMax: 1500, Tags: []string{"math"},
	})
	if ctx.Response.StatusCode() != fasthttp.StatusConflict {
		t.Errorf("duplicate challenge status = %d, want 409", ctx.Response.StatusCode())
	}
}
