package steam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultAPIBase       = "https://api.steampowered.com"
	DefaultCommunityBase = "https://steamcommunity.com"

	// CS2/CSGO app id and the item context holding tradable skins.
	inventoryAppID     = 730
	inventoryContextID = 2
	inventoryCount     = 5000

	openIDNamespace      = "http://specs.openid.net/auth/2.0"
	openIDIdentifierSel  = "http://specs.openid.net/auth/2.0/identifier_select"
	openIDSregNamespace  = "http://openid.net/extensions/sreg/1.1"
	openIDValidIndicator = "is_valid:true"

	// Steam's OpenID identity, independent of the community base used for transport.
	openIDProviderEndpoint = "https://steamcommunity.com/openid/login"
	openIDClaimedIDPrefix  = "https://steamcommunity.com/openid/id/"
)

var (
	ErrPlayerNotFound = errors.New("steam: player not found")
	ErrInvalidSteamID = errors.New("steam: invalid steam id")
	ErrInvalidOpenID  = errors.New("steam: invalid openid response")
	// ErrTransport wraps network-level failures talking to Steam.
	ErrTransport = errors.New("steam: transport error")
	// ErrUpstream marks a response Steam produced but we cannot use.
	ErrUpstream = errors.New("steam: upstream error")
)

type Options struct {
	APIKey        string
	APIBase       string
	CommunityBase string
	// RetryAttempts is the total number of tries for player lookups.
	RetryAttempts int
	RetryWait     time.Duration
	Timeout       time.Duration
}

type SteamService struct {
	apiKey        string
	apiBase       string
	communityBase string
	// api retries transport errors; community never retries.
	api       *resty.Client
	community *resty.Client
}

type Player struct {
	SteamID     string `json:"steamid"`
	PersonaName string `json:"personaname"`
	ProfileURL  string `json:"profileurl"`
	Avatar      string `json:"avatar"`
	AvatarFull  string `json:"avatarfull"`
}

type playerSummariesResponse struct {
	Response struct {
		Players []Player `json:"players"`
	} `json:"response"`
}

func NewSteamService(opts Options) *SteamService {
	if opts.APIBase == "" {
		opts.APIBase = DefaultAPIBase
	}
	if opts.CommunityBase == "" {
		opts.CommunityBase = DefaultCommunityBase
	}
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 5
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 2 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	wait := opts.RetryWait
	api := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryAttempts - 1).
		SetRetryWaitTime(wait).
		SetRetryMaxWaitTime(wait).
		SetRetryAfter(func(*resty.Client, *resty.Response) (time.Duration, error) {
			return wait, nil
		}).
		AddRetryCondition(func(_ *resty.Response, err error) bool {
			// status codes are answers, not failures; only the network is retried
			return err != nil
		})

	community := resty.New().SetTimeout(opts.Timeout)

	return &SteamService{
		apiKey:        opts.APIKey,
		apiBase:       strings.TrimRight(opts.APIBase, "/"),
		communityBase: strings.TrimRight(opts.CommunityBase, "/"),
		api:           api,
		community:     community,
	}
}

// AuthURL builds the OpenID 2.0 checkid_setup URL. The redirect URI is the
// realm; extra is merged into its query to form return_to, which Steam signs.
func (s *SteamService) AuthURL(redirectURI string, extra url.Values) string {
	returnTo, realm := redirectURI, redirectURI
	if u, err := url.Parse(redirectURI); err == nil {
		if len(extra) > 0 {
			q := u.Query()
			for k, v := range extra {
				q[k] = v
			}
			u.RawQuery = q.Encode()
			returnTo = u.String()
		}
		u.RawQuery = ""
		u.Fragment = ""
		realm = u.String()
	}

	params := url.Values{}
	params.Set("openid.ns", openIDNamespace)
	params.Set("openid.mode", "checkid_setup")
	params.Set("openid.return_to", returnTo)
	params.Set("openid.realm", realm)
	params.Set("openid.ns.sreg", openIDSregNamespace)
	params.Set("openid.claimed_id", openIDIdentifierSel)
	params.Set("openid.identity", openIDIdentifierSel)

	return s.communityBase + "/openid/login?" + params.Encode()
}

// VerifyOpenID checks that the callback parameters were issued by Steam for
// redirectURI, asks the provider to confirm the signature and returns the
// Steam id from openid.claimed_id.
func (s *SteamService) VerifyOpenID(ctx context.Context, params url.Values, redirectURI string) (string, error) {
	steamID, err := SteamIDFromClaimedID(params.Get("openid.claimed_id"))
	if err != nil {
		return "", err
	}
	if err := checkAssertion(params, redirectURI); err != nil {
		return "", err
	}

	form := url.Values{}
	for k, v := range params {
		form[k] = append([]string(nil), v...)
	}
	form.Set("openid.mode", "check_authentication")

	resp, err := s.community.R().
		SetContext(ctx).
		SetFormDataFromValues(form).
		Post(s.communityBase + "/openid/login")
	if err != nil {
		return "", fmt.Errorf("%w: openid verify: %v", ErrTransport, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("%w: openid verify returned %d", ErrUpstream, resp.StatusCode())
	}
	if !strings.Contains(string(resp.Body()), openIDValidIndicator) {
		return "", ErrInvalidOpenID
	}
	return steamID, nil
}

// GetPlayerSummary resolves a Steam id to its public profile. Transport
// errors are retried with a fixed wait; HTTP error statuses are not.
func (s *SteamService) GetPlayerSummary(ctx context.Context, steamID string) (*Player, error) {
	resp, err := s.api.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":      s.apiKey,
			"steamids": steamID,
		}).
		Get(s.apiBase + "/ISteamUser/GetPlayerSummaries/v0002/")
	if err != nil {
		attempts := 0
		if resp != nil && resp.Request != nil {
			attempts = resp.Request.Attempt
		}
		log.WithError(err).WithFields(log.Fields{"steam_id": steamID, "attempts": attempts}).
			Warn("steam player lookup failed")
		return nil, fmt.Errorf("%w: player summaries: %v", ErrTransport, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: player summaries returned %d", ErrUpstream, resp.StatusCode())
	}

	var summaries playerSummariesResponse
	if err := json.Unmarshal(resp.Body(), &summaries); err != nil {
		return nil, fmt.Errorf("%w: decode player summaries: %v", ErrUpstream, err)
	}
	if len(summaries.Response.Players) == 0 {
		return nil, ErrPlayerNotFound
	}

	player := summaries.Response.Players[0]
	return &player, nil
}

// FetchInventory downloads the public CS inventory and returns the JSON
// document unchanged.
func (s *SteamService) FetchInventory(ctx context.Context, steamID string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/inventory/%s/%d/%d", s.communityBase, url.PathEscape(steamID), inventoryAppID, inventoryContextID)

	resp, err := s.community.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"l":     "english",
			"count": strconv.Itoa(inventoryCount),
		}).
		Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: inventory: %v", ErrTransport, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: inventory returned %d", ErrUpstream, resp.StatusCode())
	}

	body := resp.Body()
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: inventory body is not JSON", ErrUpstream)
	}
	return body, nil
}

// checkAssertion rejects positive assertions from another provider, for
// another identity namespace or for another relying party.
func checkAssertion(params url.Values, redirectURI string) error {
	if params.Get("openid.mode") != "id_res" {
		return fmt.Errorf("%w: mode %q", ErrInvalidOpenID, params.Get("openid.mode"))
	}
	if params.Get("openid.op_endpoint") != openIDProviderEndpoint {
		return fmt.Errorf("%w: op_endpoint %q", ErrInvalidOpenID, params.Get("openid.op_endpoint"))
	}
	claimedID := params.Get("openid.claimed_id")
	if !strings.HasPrefix(claimedID, openIDClaimedIDPrefix) {
		return fmt.Errorf("%w: claimed_id %q", ErrInvalidOpenID, claimedID)
	}
	if identity := params.Get("openid.identity"); identity != "" && identity != claimedID {
		return fmt.Errorf("%w: identity does not match claimed_id", ErrInvalidOpenID)
	}
	return checkReturnTo(params, redirectURI)
}

// checkReturnTo applies the OpenID 2.0 return URL rules: return_to must
// point at the configured callback, and every query parameter it carries
// must be present with the same values in the request.
func checkReturnTo(params url.Values, redirectURI string) error {
	returnTo, err := url.Parse(params.Get("openid.return_to"))
	if err != nil || returnTo.Host == "" {
		return fmt.Errorf("%w: malformed return_to", ErrInvalidOpenID)
	}
	expected, err := url.Parse(redirectURI)
	if err != nil {
		return fmt.Errorf("%w: malformed redirect uri", ErrInvalidOpenID)
	}
	if !strings.EqualFold(returnTo.Scheme, expected.Scheme) ||
		!strings.EqualFold(returnTo.Host, expected.Host) ||
		returnTo.Path != expected.Path {
		return fmt.Errorf("%w: return_to %q does not match %q", ErrInvalidOpenID, returnTo.String(), redirectURI)
	}

	got := returnTo.Query()
	for k, want := range expected.Query() {
		if !slices.Equal(got[k], want) {
			return fmt.Errorf("%w: return_to lost parameter %q", ErrInvalidOpenID, k)
		}
	}
	for k, want := range got {
		if !slices.Equal(params[k], want) {
			return fmt.Errorf("%w: request does not match return_to parameter %q", ErrInvalidOpenID, k)
		}
	}
	return nil
}

// SteamIDFromClaimedID extracts the trailing path segment of an OpenID
// claimed id such as https://steamcommunity.com/openid/id/7656119....
func SteamIDFromClaimedID(claimedID string) (string, error) {
	claimedID = strings.TrimRight(strings.TrimSpace(claimedID), "/")
	if claimedID == "" {
		return "", fmt.Errorf("%w: empty claimed_id", ErrInvalidSteamID)
	}
	parts := strings.Split(claimedID, "/")
	steamID := parts[len(parts)-1]
	if !ValidSteamID(steamID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSteamID, steamID)
	}
	return steamID, nil
}

// ValidSteamID reports whether s looks like a SteamID64.
func ValidSteamID(s string) bool {
	if s == "" || len(s) > 20 {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}
