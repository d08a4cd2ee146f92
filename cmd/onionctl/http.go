package main

import (
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

func newClient(apiURL string) *resty.Client {
	return resty.New().SetBaseURL(apiURL).SetTimeout(30 * time.Second)
}

// getJSON fetches path and copies the body to out. Non-2xx responses are errors.
func getJSON(c *resty.Client, path string, query url.Values, out io.Writer) error {
	resp, err := c.R().SetQueryParamsFromValues(query).Get(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("http %d: %s", resp.StatusCode(), resp.String())
	}
	_, err = out.Write(resp.Body())
	return err
}

func runProfileGet(apiURL, userID string, out io.Writer) error {
	if userID == "" {
		return fmt.Errorf("--user required")
	}
	return getJSON(newClient(apiURL), "/api/users/"+url.PathEscape(userID)+"/profile", nil, out)
}

func runDiaryList(apiURL, userID string, includeDrafts bool, out io.Writer) error {
	if userID == "" {
		return fmt.Errorf("--user required")
	}
	q := url.Values{}
	if includeDrafts {
		q.Set("include_drafts", "true")
	}
	return getJSON(newClient(apiURL), "/api/users/"+url.PathEscape(userID)+"/diaries", q, out)
}

func runLifeMapLatest(apiURL, userID string, out io.Writer) error {
	if userID == "" {
		return fmt.Errorf("--user required")
	}
	return getJSON(newClient(apiURL), "/api/users/"+url.PathEscape(userID)+"/life-map", nil, out)
}
