package replay

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nmslite/inventory-agent/internal/datarow"
	"github.com/nmslite/inventory-agent/internal/resultcode"
)

// Pair is one attribute name and its value from a response.
type Pair struct {
	Name  string
	Value string
}

// Parse splits a raw response into pairs. Empty segments are dropped. ok is
// false when the sentinel never appears; a trailing name without a value is
// returned in dangling.
func Parse(sentinel, raw string) (pairs []Pair, dangling string, ok bool) {
	segments := splitNonEmpty(raw, sentinel)
	if len(segments) == 1 && segments[0] == raw {
		return nil, "", false
	}

	for i := 0; i+1 < len(segments); i += 2 {
		pairs = append(pairs, Pair{Name: segments[i], Value: segments[i+1]})
	}
	if len(segments)%2 == 1 {
		dangling = segments[len(segments)-1]
	}
	return pairs, dangling, true
}

func splitNonEmpty(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Collect fetches the results of req and appends one row per recognised
// attribute to buf. Transport failures are retried up to the retry limit;
// anything else, including cancellation of ctx, aborts at once. Rows are
// only added once a whole response has been parsed.
func (c *Client) Collect(ctx context.Context, req Request, buf *datarow.Buffer) resultcode.Code {
	logger := c.logger.With("task_id", req.TaskID)
	start := time.Now()

	for attempt := 1; attempt <= c.cfg.RetryLimit; attempt++ {
		raw, err := c.Fetch(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				logger.Error("Replay request cancelled", "attempts", attempt, "error", err)
				return resultcode.ProcessingException
			}
			if !IsTransport(err) {
				logger.Error("Replay request failed", "error", err)
				return resultcode.ProcessingException
			}
			if attempt == c.cfg.RetryLimit {
				logger.Error("Replay server connection failed",
					"elapsed", time.Since(start),
					"attempts", attempt,
					"error", err,
				)
				return resultcode.ProcessingException
			}
			logger.Warn("Replay transport error, retrying", "attempt", attempt, "error", err)
			continue
		}

		buf.Add(c.rows(req, raw, buf)...)
		return resultcode.Success
	}

	// RetryLimit below one; ApplyDefaults prevents this.
	return resultcode.ProcessingException
}

func (c *Client) rows(req Request, raw string, buf *datarow.Buffer) []datarow.DataRow {
	logger := c.logger.With("task_id", req.TaskID)

	if raw == "" {
		logger.Debug("No data returned from replay server")
		return nil
	}

	pairs, dangling, ok := Parse(c.cfg.Sentinel, raw)
	if !ok {
		logger.Error("Invalid data returned from replay server",
			"separator", c.cfg.Sentinel,
			"data", raw,
		)
		return nil
	}
	if dangling != "" {
		logger.Warn("Replay response ends with an attribute name and no value", "attribute", dangling)
	}

	rows := make([]datarow.DataRow, 0, len(pairs))
	for _, p := range pairs {
		row, err := buf.Row(p.Name, p.Value)
		if err != nil {
			if errors.Is(err, datarow.ErrAttributeNotMapped) {
				logger.Error("Expected attribute name not found in attribute map", "attribute", p.Name)
			} else {
				logger.Warn("Skipping replay value", "attribute", p.Name, "error", err)
			}
			continue
		}
		rows = append(rows, row)
	}
	return rows
}
