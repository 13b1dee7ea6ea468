package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/arborfoundry/scoutagent/internal/job"
)

// SubmitCmd posts a new research job to a running server (spec.md §6
// Submit) and prints the assigned job_id.
type SubmitCmd struct {
	Server    string   `help:"Base URL of a running server." default:"http://localhost:8080"`
	DeepLevel int      `name:"deep-level" help:"Research depth, 0-5." default:"0"`
	Priority  int      `help:"Scheduling priority, -100 to 100." default:"0"`
	Tags      []string `help:"Up to 10 free-form tags."`
	Query     string   `arg:"" help:"The research query."`
}

func (c *SubmitCmd) Run(ctx context.Context) error {
	body, err := json.Marshal(job.Request{
		Query:     c.Query,
		DeepLevel: c.DeepLevel,
		Priority:  c.Priority,
		Tags:      c.Tags,
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.Server, "/")+"/v1/jobs", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("submit job: %w", err)
	}
	defer resp.Body.Close()

	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("server rejected job (%s): %v", resp.Status, out)
	}

	fmt.Println(out["job_id"])
	return nil
}
