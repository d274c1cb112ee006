// Package peerclient implements the outbound half of §6's peer HTTP wire
// contract: heartbeat, leader-change, node-leaving, and distributed search
// calls to other cluster members. Every call goes through a circuit
// breaker (infrastructure/resilience); the POST calls (heartbeat,
// leader-change, node-leaving) are also retried with bounded backoff,
// while SearchRemote makes a single attempt.
package peerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/r3elabs/logwatch/cluster"
	"github.com/r3elabs/logwatch/cluster/membership"
	"github.com/r3elabs/logwatch/infrastructure/httputil"
	"github.com/r3elabs/logwatch/infrastructure/logging"
	"github.com/r3elabs/logwatch/infrastructure/ratelimit"
	"github.com/r3elabs/logwatch/infrastructure/resilience"
	"github.com/r3elabs/logwatch/recordmodel"
)

// peerRateLimit bounds outbound calls to any single peer set, so a flapping
// cluster (frequent leader changes, a partition healing) can't turn into a
// self-inflicted request storm against the rest of the nodes.
var peerRateLimit = ratelimit.RateLimitConfig{RequestsPerSecond: 50, Burst: 100}

// heartbeatDeadline and shardDeadline match §6's "heartbeats 5s soft" /
// "per-shard 10s" outbound deadlines.
const (
	heartbeatDeadline = 5 * time.Second
	shardDeadline     = 10 * time.Second
)

// Client issues every outbound peer RPC over plain HTTP/JSON, matching §6's
// wire contract. Satisfies membership.PeerClient and router.RemoteSearcher.
type Client struct {
	httpClient *ratelimit.RateLimitedClient
	breaker    *resilience.CircuitBreaker
	retry      resilience.RetryConfig
	logger     *logging.Logger
}

// New creates a Client. A single circuit breaker is shared across peers:
// persistent cluster-wide network trouble trips it regardless of which
// peer URL is being called, consistent with the teacher's one-breaker-
// per-dependency convention.
func New(logger *logging.Logger) *Client {
	base, _ := httputil.NewClient(httputil.ClientConfig{ServiceID: "cluster-agent"}, httputil.DefaultClientDefaults())
	base.Transport = httputil.DefaultTransportWithMinTLS12()
	return &Client{
		httpClient: ratelimit.NewRateLimitedClient(base, peerRateLimit),
		breaker:    resilience.New(resilience.DefaultConfig()),
		retry:      resilience.DefaultRetryConfig(),
		logger:     logger,
	}
}

// Heartbeat satisfies membership.PeerClient.
func (c *Client) Heartbeat(ctx context.Context, peerURL string, self cluster.Node) error {
	body := map[string]interface{}{
		"nodeId":    self.ID,
		"timestamp": self.LastHeartbeat,
		"isLeader":  self.IsLeader,
	}
	return c.postJSON(ctx, peerURL+"/api/cluster/heartbeat", body, heartbeatDeadline)
}

// LeaderChange satisfies membership.PeerClient.
func (c *Client) LeaderChange(ctx context.Context, peerURL string, state membership.State) error {
	return c.postJSON(ctx, peerURL+"/api/cluster/leader-change", state, heartbeatDeadline)
}

// NodeLeaving notifies a peer this instance is leaving the cluster (§6).
func (c *Client) NodeLeaving(ctx context.Context, peerURL, nodeID string) error {
	return c.postJSON(ctx, peerURL+"/api/cluster/node-leaving", map[string]string{"nodeId": nodeID}, heartbeatDeadline)
}

func (c *Client) postJSON(ctx context.Context, target string, body interface{}, deadline time.Duration) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	return resilience.Retry(ctx, c.retry, func() error {
		return c.breaker.Execute(ctx, func() error {
			reqCtx, cancel := context.WithTimeout(ctx, deadline)
			defer cancel()

			req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, target, bytes.NewReader(payload))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")

			start := time.Now()
			resp, err := c.httpClient.Do(req)
			if err != nil {
				if c.logger != nil {
					c.logger.LogServiceCall(ctx, target, http.MethodPost, time.Since(start), err)
				}
				return err
			}
			defer resp.Body.Close()
			io.Copy(io.Discard, resp.Body)

			if resp.StatusCode >= 500 {
				return fmt.Errorf("peer %s returned %d", target, resp.StatusCode)
			}
			return nil
		})
	})
}

// SearchRemote issues a suppressed-fan-out distributed search against one
// peer (§4.5, §6). Satisfies router.RemoteSearcher.
func (c *Client) SearchRemote(ctx context.Context, nodeURL, query string, isRegex bool, startTime, endTime int64) ([]*recordmodel.LogRecord, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("isRegex", strconv.FormatBool(isRegex))
	q.Set("startTime", strconv.FormatInt(startTime, 10))
	q.Set("endTime", strconv.FormatInt(endTime, 10))
	q.Set("isShardRequest", "true")
	target := nodeURL + "/api/logs/search?" + q.Encode()

	var records []*recordmodel.LogRecord
	err := c.breaker.Execute(ctx, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, shardDeadline)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("peer %s returned %d", target, resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&records)
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
