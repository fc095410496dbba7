package steam

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSteamID = "76561198000000000"

func newTestService(server *httptest.Server, wait time.Duration) *SteamService {
	return NewSteamService(Options{
		APIKey:        "test-key",
		APIBase:       server.URL,
		CommunityBase: server.URL,
		RetryAttempts: 5,
		RetryWait:     wait,
		Timeout:       2 * time.Second,
	})
}

// dropConnection closes the TCP connection without writing a response.
func dropConnection(t *testing.T, w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !assert.True(t, ok) {
		return
	}
	conn, _, err := hj.Hijack()
	if !assert.NoError(t, err) {
		return
	}
	_ = conn.Close()
}

func TestGetPlayerSummary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ISteamUser/GetPlayerSummaries/v0002/", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, testSteamID, r.URL.Query().Get("steamids"))
		fmt.Fprintf(w, `{"response":{"players":[{"steamid":%q,"personaname":"gaben","avatarfull":"https://a/b.jpg"}]}}`, testSteamID)
	}))
	defer server.Close()

	player, err := newTestService(server, 10*time.Millisecond).GetPlayerSummary(context.Background(), testSteamID)
	require.NoError(t, err)
	assert.Equal(t, "gaben", player.PersonaName)
	assert.Equal(t, testSteamID, player.SteamID)
	assert.Equal(t, "https://a/b.jpg", player.AvatarFull)
}

func TestGetPlayerSummaryNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":{"players":[]}}`)
	}))
	defer server.Close()

	_, err := newTestService(server, 10*time.Millisecond).GetPlayerSummary(context.Background(), testSteamID)
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestGetPlayerSummaryRetriesTransportErrorsFiveTimes(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		dropConnection(t, w)
	}))
	defer server.Close()

	wait := 20 * time.Millisecond
	start := time.Now()
	_, err := newTestService(server, wait).GetPlayerSummary(context.Background(), testSteamID)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, int32(5), atomic.LoadInt32(&hits))
	// four waits between five attempts
	assert.GreaterOrEqual(t, elapsed, 4*wait)
}

func TestGetPlayerSummaryRecoversAfterTransientFailure(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			dropConnection(t, w)
			return
		}
		fmt.Fprint(w, `{"response":{"players":[{"steamid":"1","personaname":"third-time"}]}}`)
	}))
	defer server.Close()

	player, err := newTestService(server, 5*time.Millisecond).GetPlayerSummary(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "third-time", player.PersonaName)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestGetPlayerSummaryDoesNotRetryHTTPErrors(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var hits int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&hits, 1)
				w.WriteHeader(status)
			}))
			defer server.Close()

			_, err := newTestService(server, 5*time.Millisecond).GetPlayerSummary(context.Background(), testSteamID)
			assert.ErrorIs(t, err, ErrUpstream)
			assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
		})
	}
}

func TestAuthURL(t *testing.T) {
	svc := NewSteamService(Options{})
	redirect := "https://panel.example/api/auth/steam/callback"

	raw := svc.AuthURL(redirect, nil)
	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "steamcommunity.com", u.Host)
	assert.Equal(t, "/openid/login", u.Path)
	q := u.Query()
	assert.Equal(t, "http://specs.openid.net/auth/2.0", q.Get("openid.ns"))
	assert.Equal(t, "checkid_setup", q.Get("openid.mode"))
	assert.Equal(t, redirect, q.Get("openid.return_to"))
	assert.Equal(t, redirect, q.Get("openid.realm"))
	assert.Equal(t, "http://openid.net/extensions/sreg/1.1", q.Get("openid.ns.sreg"))
	assert.Equal(t, "http://specs.openid.net/auth/2.0/identifier_select", q.Get("openid.claimed_id"))
	assert.Equal(t, "http://specs.openid.net/auth/2.0/identifier_select", q.Get("openid.identity"))
}

func TestAuthURLCarriesExtraParamsInReturnTo(t *testing.T) {
	svc := NewSteamService(Options{})
	redirect := "https://panel.example/api/auth/steam/callback"

	u, err := url.Parse(svc.AuthURL(redirect, url.Values{"domain_id": []string{"4"}}))
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, redirect+"?domain_id=4", q.Get("openid.return_to"))
	assert.Equal(t, redirect, q.Get("openid.realm"))
}

const testRedirectURI = "https://panel.example/api/auth/steam/callback"

func assertionParams(steamID string) url.Values {
	params := url.Values{}
	params.Set("openid.ns", "http://specs.openid.net/auth/2.0")
	params.Set("openid.mode", "id_res")
	params.Set("openid.op_endpoint", "https://steamcommunity.com/openid/login")
	params.Set("openid.claimed_id", "https://steamcommunity.com/openid/id/"+steamID)
	params.Set("openid.identity", "https://steamcommunity.com/openid/id/"+steamID)
	params.Set("openid.return_to", testRedirectURI)
	params.Set("openid.sig", "sig-value")
	return params
}

func TestVerifyOpenID(t *testing.T) {
	var valid atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/openid/login", r.URL.Path)
		assert.Equal(t, "check_authentication", r.PostForm.Get("openid.mode"))
		assert.Equal(t, "sig-value", r.PostForm.Get("openid.sig"))
		if valid.Load() {
			fmt.Fprint(w, "ns:http://specs.openid.net/auth/2.0\nis_valid:true\n")
			return
		}
		fmt.Fprint(w, "ns:http://specs.openid.net/auth/2.0\nis_valid:false\n")
	}))
	defer server.Close()

	svc := newTestService(server, time.Millisecond)
	params := assertionParams(testSteamID)

	valid.Store(true)
	steamID, err := svc.VerifyOpenID(context.Background(), params, testRedirectURI)
	require.NoError(t, err)
	assert.Equal(t, testSteamID, steamID)
	// caller's values are left untouched
	assert.Equal(t, "id_res", params.Get("openid.mode"))

	valid.Store(false)
	_, err = svc.VerifyOpenID(context.Background(), params, testRedirectURI)
	assert.ErrorIs(t, err, ErrInvalidOpenID)
}

func TestVerifyOpenIDRejectsForeignAssertions(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, "ns:http://specs.openid.net/auth/2.0\nis_valid:true\n")
	}))
	defer server.Close()
	svc := newTestService(server, time.Millisecond)

	cases := []struct {
		name   string
		mutate func(url.Values)
	}{
		{name: "return_to for another site", mutate: func(p url.Values) { p.Set("openid.return_to", "https://evil.example/login/cb") }},
		{name: "return_to on another path", mutate: func(p url.Values) { p.Set("openid.return_to", "https://panel.example/other") }},
		{name: "return_to downgraded to http", mutate: func(p url.Values) { p.Set("openid.return_to", "http://panel.example/api/auth/steam/callback") }},
		{name: "return_to param missing from request", mutate: func(p url.Values) {
			p.Set("openid.return_to", testRedirectURI+"?domain_id=4")
		}},
		{name: "return_to param altered in request", mutate: func(p url.Values) {
			p.Set("openid.return_to", testRedirectURI+"?domain_id=4")
			p.Set("domain_id", "9")
		}},
		{name: "foreign op endpoint", mutate: func(p url.Values) { p.Set("openid.op_endpoint", "https://openid.evil.example/login") }},
		{name: "missing op endpoint", mutate: func(p url.Values) { p.Del("openid.op_endpoint") }},
		{name: "foreign claimed id", mutate: func(p url.Values) {
			p.Set("openid.claimed_id", "https://evil.example/openid/id/"+testSteamID)
			p.Set("openid.identity", "https://evil.example/openid/id/"+testSteamID)
		}},
		{name: "identity differs from claimed id", mutate: func(p url.Values) {
			p.Set("openid.identity", "https://steamcommunity.com/openid/id/76561198000000001")
		}},
		{name: "not a positive assertion", mutate: func(p url.Values) { p.Set("openid.mode", "setup_needed") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := assertionParams(testSteamID)
			tc.mutate(params)
			_, err := svc.VerifyOpenID(context.Background(), params, testRedirectURI)
			assert.ErrorIs(t, err, ErrInvalidOpenID)
		})
	}
	assert.Zero(t, hits.Load(), "rejected assertions never reach the provider")

	// a return_to carrying parameters the request repeats is accepted
	params := assertionParams(testSteamID)
	params.Set("openid.return_to", testRedirectURI+"?domain_id=4")
	params.Set("domain_id", "4")
	steamID, err := svc.VerifyOpenID(context.Background(), params, testRedirectURI)
	require.NoError(t, err)
	assert.Equal(t, testSteamID, steamID)
}

func TestFetchInventoryReturnsBodyVerbatim(t *testing.T) {
	body := `{"assets":[],"descriptions":[]}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/inventory/"+testSteamID+"/730/2", r.URL.Path)
		assert.Equal(t, "english", r.URL.Query().Get("l"))
		assert.Equal(t, "5000", r.URL.Query().Get("count"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	defer server.Close()

	raw, err := newTestService(server, time.Millisecond).FetchInventory(context.Background(), testSteamID)
	require.NoError(t, err)
	assert.Equal(t, body, string(raw))
}

func TestFetchInventoryErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// no keep-alive so the dropped connection is always a fresh one
		w.Header().Set("Connection", "close")
		switch atomic.AddInt32(&hits, 1) {
		case 1:
			w.WriteHeader(http.StatusForbidden)
		case 2:
			fmt.Fprint(w, "<html>private profile</html>")
		default:
			dropConnection(t, w)
		}
	}))
	defer server.Close()

	svc := newTestService(server, time.Millisecond)

	_, err := svc.FetchInventory(context.Background(), testSteamID)
	assert.ErrorIs(t, err, ErrUpstream)

	_, err = svc.FetchInventory(context.Background(), testSteamID)
	assert.ErrorIs(t, err, ErrUpstream)

	_, err = svc.FetchInventory(context.Background(), testSteamID)
	assert.ErrorIs(t, err, ErrTransport)
	// inventory fetches are never retried
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestSteamIDFromClaimedID(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "https://steamcommunity.com/openid/id/76561198000000000", want: "76561198000000000"},
		{in: "https://steamcommunity.com/openid/id/76561198000000000/", want: "76561198000000000"},
		{in: "76561198000000000", want: "76561198000000000"},
		{in: "", wantErr: true},
		{in: "https://steamcommunity.com/openid/id/not-a-number", wantErr: true},
	}
	for _, tc := range cases {
		got, err := SteamIDFromClaimedID(tc.in)
		if tc.wantErr {
			assert.True(t, errors.Is(err, ErrInvalidSteamID), tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}
