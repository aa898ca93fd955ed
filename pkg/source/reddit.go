package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

const userAgent = "pitchpulse/1.0"

// Reddit talks to the Reddit listing API. With client credentials it uses
// OAuth; without them it falls back to the public JSON listings.
type Reddit struct {
	client       *resty.Client
	clientID     string
	clientSecret string
	authURL      string
	apiURL       string
	publicURL    string
	limit        int

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewReddit creates a Reddit client. limit caps posts per board.
func NewReddit(clientID, clientSecret string, limit int) *Reddit {
	if limit <= 0 {
		limit = 50
	}
	return &Reddit{
		client:       resty.New().SetHeader("User-Agent", userAgent),
		clientID:     clientID,
		clientSecret: clientSecret,
		authURL:      "https://www.reddit.com/api/v1/access_token",
		apiURL:       "https://oauth.reddit.com",
		publicURL:    "https://www.reddit.com",
		limit:        limit,
	}
}

// Boards returns one Origin per subreddit.
func (r *Reddit) Boards(subreddits []string) []Origin {
	origins := make([]Origin, 0, len(subreddits))
	for _, sub := range subreddits {
		sub = strings.TrimPrefix(strings.TrimSpace(sub), "r/")
		if sub == "" {
			continue
		}
		origins = append(origins, &redditBoard{reddit: r, subreddit: sub})
	}
	return origins
}

type redditBoard struct {
	reddit    *Reddit
	subreddit string
}

func (b *redditBoard) Label() string { return b.subreddit }

func (b *redditBoard) Fetch(ctx context.Context) ([]RawRecord, error) {
	return b.reddit.fetchSubreddit(ctx, b.subreddit)
}

func (r *Reddit) authenticate(ctx context.Context) (string, error) {
	if r.clientID == "" || r.clientSecret == "" {
		return "", nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.token != "" && time.Now().Before(r.tokenExpiry) {
		return r.token, nil
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	resp, err := r.client.R().
		SetContext(ctx).
		SetBasicAuth(r.clientID, r.clientSecret).
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		SetResult(&tokenResp).
		Post(r.authURL)
	if err != nil {
		return "", fmt.Errorf("reddit token request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("reddit auth status %d", resp.StatusCode())
	}

	r.token = tokenResp.AccessToken
	r.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)
	return r.token, nil
}

func (r *Reddit) fetchSubreddit(ctx context.Context, subreddit string) ([]RawRecord, error) {
	token, err := r.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	req := r.client.R().
		SetContext(ctx).
		SetQueryParam("limit", fmt.Sprintf("%d", r.limit))
	base := r.publicURL
	if token != "" {
		req.SetAuthToken(token)
		base = r.apiURL
	}

	var listing redditListing
	resp, err := req.SetResult(&listing).Get(fmt.Sprintf("%s/r/%s/new.json", base, subreddit))
	if err != nil {
		return nil, fmt.Errorf("fetch r/%s: %w", subreddit, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("reddit r/%s status %d", subreddit, resp.StatusCode())
	}

	var records []RawRecord
	for _, child := range listing.Data.Children {
		post := child.Data
		if post.Stickied {
			continue
		}

		origin := post.Subreddit
		if origin == "" {
			origin = subreddit
		}

		permalink := "https://www.reddit.com" + post.Permalink
		postURL := post.URL
		if postURL == "" || strings.HasPrefix(postURL, "/r/") {
			postURL = permalink
		}

		records = append(records, RawRecord{
			ExternalID:  post.ID,
			Title:       post.Title,
			URL:         postURL,
			Permalink:   permalink,
			Body:        post.Selftext,
			Author:      post.Author,
			Score:       post.Score,
			Origin:      origin,
			ImageURL:    post.thumbnail(),
			PublishedAt: time.Unix(int64(post.CreatedUTC), 0).UTC(),
		})
	}

	return records, nil
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Permalink  string  `json:"permalink"`
	Selftext   string  `json:"selftext"`
	Author     string  `json:"author"`
	Subreddit  string  `json:"subreddit"`
	Thumbnail  string  `json:"thumbnail"`
	Score      int     `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
	Stickied   bool    `json:"stickied"`
}

// thumbnail drops Reddit's placeholder values ("self", "default", "nsfw").
func (p redditPost) thumbnail() string {
	if strings.HasPrefix(p.Thumbnail, "http") {
		return p.Thumbnail
	}
	return ""
}
