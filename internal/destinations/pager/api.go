package pager

import (
	"context"
	"fmt"
	"time"

	"github.com/mixpanel/action-destinations-sub001/internal/action"
	"github.com/mixpanel/action-destinations-sub001/internal/requester"
)

// teamCacheTTL bounds how long a resolved team id is reused. Teams rarely
// change; an hour keeps steady-state traffic at one lookup per team.
const teamCacheTTL = time.Hour

func teamCacheKey(ec *action.Context) (string, error) {
	team, _ := ec.Settings["team"].(string)
	if team == "" {
		return "", fmt.Errorf("pager: team setting is required")
	}
	return "team:" + team, nil
}

// lookupTeam resolves the configured team name to the partner's team id.
func lookupTeam(ctx context.Context, client *requester.Client, ec *action.Context) (any, error) {
	team, _ := ec.Settings["team"].(string)

	resp, err := authed(client, ec).Get(ctx, "/v2/teams", &requester.RequestOptions{
		SearchParams: map[string]string{"name": team},
	})
	if err != nil {
		return nil, fmt.Errorf("pager: team lookup: %w", err)
	}

	var body struct {
		Teams []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"teams"`
	}
	if err := resp.JSON(&body); err != nil {
		return nil, fmt.Errorf("pager: team lookup: %w", err)
	}
	for _, t := range body.Teams {
		if t.Name == team {
			return map[string]any{"id": t.ID, "name": t.Name}, nil
		}
	}
	return nil, fmt.Errorf("pager: team %q not found", team)
}

// createAlert posts one alert per fan-out channel.
func createAlert(ctx context.Context, client *requester.Client, ec *action.Context) (*requester.Response, error) {
	teamID, ok := ec.Lookup("team.id")
	if !ok {
		return nil, fmt.Errorf("pager: team binding missing")
	}
	channel, _ := ec.Binding("channel")

	body := map[string]any{
		"title":   ec.Payload["title"],
		"team_id": teamID,
		"channel": channel,
	}
	if sev, present := ec.Payload["severity"]; present {
		body["severity"] = sev
	}
	if at, present := ec.Payload["occurredAt"]; present {
		body["occurred_at"] = at
	}
	if details, present := ec.Payload["details"]; present {
		body["details"] = details
	}

	return authed(client, ec).Post(ctx, "/v2/alerts", &requester.RequestOptions{JSON: body})
}

// listChannels pages through the partner's channel list for autocomplete.
func listChannels(ctx context.Context, client *requester.Client, ec *action.Context) (*action.AutocompleteResponse, error) {
	params := map[string]string{}
	if ec.Page != "" {
		params["page"] = ec.Page
	}

	resp, err := authed(client, ec).Get(ctx, "/v2/channels", &requester.RequestOptions{SearchParams: params})
	if err != nil {
		return nil, fmt.Errorf("pager: channel list: %w", err)
	}

	var body struct {
		Channels []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"channels"`
		NextPage string `json:"next_page"`
	}
	if err := resp.JSON(&body); err != nil {
		return nil, fmt.Errorf("pager: channel list: %w", err)
	}

	out := &action.AutocompleteResponse{}
	for _, ch := range body.Channels {
		out.Data = append(out.Data, action.AutocompleteItem{Label: ch.Name, Value: ch.ID})
	}
	out.Pagination.NextPage = body.NextPage
	return out, nil
}

// authed layers the per-invocation API key onto the destination client.
func authed(client *requester.Client, ec *action.Context) *requester.Client {
	apiKey, _ := ec.Settings["apiKey"].(string)
	return client.Extend(requester.BearerAuth(apiKey))
}
