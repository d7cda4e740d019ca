package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"guildhall/internal/config"

	"github.com/valyala/fasthttp"
)

// RaidHelperClient is a read-only client for the Raid-Helper event API.
// Event booking happens in Discord itself; the platform only lists what is
// scheduled.
type RaidHelperClient struct {
	apiKey      string
	serverID    string
	client      *fasthttp.Client
	rateLimitMu sync.RWMutex
	rateLimit   RateLimitInfo
}

type RateLimitInfo struct {
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`

	// seconds until reset
	Reset int `json:"reset"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewRaidHelperClient(cfg *config.Config) *RaidHelperClient {
	return &RaidHelperClient{
		apiKey:   cfg.RaidHelperAPIKey,
		serverID: cfg.RaidHelperServerID,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		rateLimit: RateLimitInfo{
			Limit:     60,
			Remaining: 60,
			Reset:     60,
			UpdatedAt: time.Now(),
		},
	}
}

// Enabled reports whether API credentials are configured.
func (c *RaidHelperClient) Enabled() bool {
	return c.apiKey != "" && c.serverID != ""
}

func (c *RaidHelperClient) GetRateLimitInfo() RateLimitInfo {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	return c.rateLimit
}

func (c *RaidHelperClient) updateRateLimit(resp *fasthttp.Response) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	if limit := string(resp.Header.Peek("X-Ratelimit-Limit")); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			c.rateLimit.Limit = val
		}
	}
	if remaining := string(resp.Header.Peek("X-Ratelimit-Remaining")); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			c.rateLimit.Remaining = val
		}
	}
	if reset := string(resp.Header.Peek("X-Ratelimit-Reset")); reset != "" {
		if val, err := strconv.Atoi(reset); err == nil {
			c.rateLimit.Reset = val
		}
	}
	c.rateLimit.UpdatedAt = time.Now()
}

// GetUpcomingEvents fetches the server's scheduled events.
func (c *RaidHelperClient) GetUpcomingEvents(ctx context.Context) (*EventsResponse, error) {
	url := fmt.Sprintf("https://raid-helper.dev/api/v3/servers/%s/events", c.serverID)
	return doRequest[EventsResponse](ctx, c, url)
}

// GetEvent fetches one event with its signups.
func (c *RaidHelperClient) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	url := fmt.Sprintf("https://raid-helper.dev/api/v2/events/%s", eventID)
	return doRequest[Event](ctx, c, url)
}

func doRequest[T any](ctx context.Context, client *RaidHelperClient, url string) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Authorization", client.apiKey)

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := client.client.Do(req, resp); err != nil {
			return nil, err
		}
	}

	client.updateRateLimit(resp)

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("API error: %d", resp.StatusCode())
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type EventsResponse struct {
	PostedEvents []Event `json:"postedEvents"`
}

type Event struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	LeaderName  string        `json:"leaderName"`
	ChannelName string        `json:"channelName"`
	StartTime   int64         `json:"startTime"`
	EndTime     int64         `json:"endTime"`
	ClosingTime int64         `json:"closingTime"`
	SignUps     []EventSignUp `json:"signUps"`
}

type EventSignUp struct {
	Name      string `json:"name"`
	UserID    string `json:"userId"`
	ClassName string `json:"className"`
	SpecName  string `json:"specName"`
	Status    string `json:"status"`
	EntryTime int64  `json:"entryTime"`
}
