package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hitoshi/memeify/internal/upstream"
)

const (
	defaultGitHubAuthURL  = "https://github.com/login/oauth/authorize"
	defaultGitHubTokenURL = "https://github.com/login/oauth/access_token"
	defaultGitHubAPIURL   = "https://api.github.com"

	githubProvider = "github"
)

// GitHubOAuthConfig はGitHub OAuthプロバイダーの設定。
type GitHubOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string
	APIURL   string
}

// GitHubOAuthProvider はGitHub OAuthによる認証を提供する。
type GitHubOAuthProvider struct {
	config GitHubOAuthConfig
	client *upstream.Client
}

// NewGitHubOAuthProvider はGitHubOAuthProviderを生成する。
func NewGitHubOAuthProvider(config GitHubOAuthConfig, client *upstream.Client) *GitHubOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultGitHubAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGitHubTokenURL
	}
	if config.APIURL == "" {
		config.APIURL = defaultGitHubAPIURL
	}
	config.APIURL = strings.TrimRight(config.APIURL, "/")
	return &GitHubOAuthProvider{config: config, client: client}
}

// GetLoginURL はGitHubの認可URLを生成する。
// メールアドレスが非公開のユーザーにも対応するためuser:emailスコープを要求する。
func (p *GitHubOAuthProvider) GetLoginURL(state string) string {
	params := url.Values{
		"client_id":    {p.config.ClientID},
		"redirect_uri": {p.config.RedirectURL},
		"scope":        {"read:user user:email"},
		"state":        {state},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

// githubTokenResponse はトークンエンドポイントのレスポンス。
// GitHubは認可コードが不正な場合も200でerrorフィールドを返す。
type githubTokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// githubUser は /user のレスポンス。
type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// githubEmail は /user/emails の要素。
type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// ExchangeCode は認可コードをアクセストークンに交換し、ユーザー情報を取得する。
func (p *GitHubOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	token, err := p.exchangeToken(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	user, err := p.fetchUser(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}

	email := user.Email
	if email == "" {
		// 公開メールアドレスが未設定の場合は検証済みのプライマリアドレスを使う
		email, err = p.fetchPrimaryEmail(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch user emails: %w", err)
		}
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}

	return &OAuthUserInfo{
		ProviderUserID: strconv.FormatInt(user.ID, 10),
		Login:          user.Login,
		Email:          email,
		Name:           name,
		Provider:       githubProvider,
	}, nil
}

// exchangeToken は認可コードをアクセストークンに交換する。
func (p *GitHubOAuthProvider) exchangeToken(ctx context.Context, code string) (string, error) {
	data := url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var tokenResp githubTokenResponse
	if err := p.doJSON(ctx, req, &tokenResp); err != nil {
		return "", err
	}
	if tokenResp.Error != "" {
		return "", fmt.Errorf("token exchange rejected: %s: %s", tokenResp.Error, tokenResp.ErrorDescription)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}

	return tokenResp.AccessToken, nil
}

// fetchUser はアクセストークンでGitHubのユーザー情報を取得する。
func (p *GitHubOAuthProvider) fetchUser(ctx context.Context, accessToken string) (*githubUser, error) {
	req, err := p.newAPIRequest(ctx, "/user", accessToken)
	if err != nil {
		return nil, err
	}

	var user githubUser
	if err := p.doJSON(ctx, req, &user); err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("empty id in user response")
	}
	return &user, nil
}

// fetchPrimaryEmail は検証済みのプライマリメールアドレスを取得する。見つからない場合は空文字列を返す。
func (p *GitHubOAuthProvider) fetchPrimaryEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := p.newAPIRequest(ctx, "/user/emails", accessToken)
	if err != nil {
		return "", err
	}

	var emails []githubEmail
	if err := p.doJSON(ctx, req, &emails); err != nil {
		return "", err
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", nil
}

func (p *GitHubOAuthProvider) newAPIRequest(ctx context.Context, path, accessToken string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.APIURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")
	return req, nil
}

func (p *GitHubOAuthProvider) doJSON(ctx context.Context, req *http.Request, v any) error {
	body, err := p.client.Do(ctx, githubProvider, req)
	if err != nil {
		return err
	}
	return upstream.DecodeJSON(githubProvider, body, v)
}

// compile-time interface check
var _ OAuthProvider = (*GitHubOAuthProvider)(nil)
