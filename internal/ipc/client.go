package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

const dialTimeout = 2 * time.Second

// Client is one JSON-RPC connection to the daemon. It is safe for
// concurrent use.
type Client struct {
	client *rpc.Client
}

// Dial connects to the daemon socket at path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, err
	}
	return &Client{client: rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// call invokes rpcName.method and decodes the reply into a fresh Resp.
func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	resp := new(Resp)
	if err := c.client.Call(rpcName+"."+method, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Stop asks the daemon to shut down.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopResponse](c, "Stop", StopRequest{})
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// SetPaused pauses or resumes queue claiming.
func (c *Client) SetPaused(paused bool) (*PauseResponse, error) {
	return call[PauseResponse](c, "Pause", PauseRequest{Paused: paused})
}

// SetRecording sets the live-recording flag.
func (c *Client) SetRecording(active bool) (*RecordingResponse, error) {
	return call[RecordingResponse](c, "Recording", RecordingRequest{Active: active})
}

// Transcribe queues one audio file at high priority.
func (c *Client) Transcribe(path string) (*TranscribeResponse, error) {
	return call[TranscribeResponse](c, "Transcribe", TranscribeRequest{Path: path})
}

// Sync runs a reconciliation pass and returns its report.
func (c *Client) Sync() (*SyncResponse, error) {
	return call[SyncResponse](c, "Sync", SyncRequest{})
}

// ImportScan queues files waiting in the imports folder.
func (c *Client) ImportScan() (*ImportScanResponse, error) {
	return call[ImportScanResponse](c, "ImportScan", ImportScanRequest{})
}

// QueueList lists tasks, optionally filtered by status.
func (c *Client) QueueList(statuses []string, limit int) (*QueueListResponse, error) {
	return call[QueueListResponse](c, "QueueList", QueueListRequest{Statuses: statuses, Limit: limit})
}

// QueueDescribe fetches a single task.
func (c *Client) QueueDescribe(id string) (*QueueDescribeResponse, error) {
	return call[QueueDescribeResponse](c, "QueueDescribe", QueueDescribeRequest{ID: id})
}

// QueueRetry resets failed tasks; no ids retries all of them.
func (c *Client) QueueRetry(ids []string) (*QueueRetryResponse, error) {
	return call[QueueRetryResponse](c, "QueueRetry", QueueRetryRequest{IDs: ids})
}

// QueueClear removes completed or failed tasks.
func (c *Client) QueueClear(scope string) (*QueueClearResponse, error) {
	return call[QueueClearResponse](c, "QueueClear", QueueClearRequest{Scope: scope})
}

// QueueReset returns processing tasks to pending.
func (c *Client) QueueReset() (*QueueResetResponse, error) {
	return call[QueueResetResponse](c, "QueueReset", QueueResetRequest{})
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	return call[DatabaseHealthResponse](c, "DatabaseHealth", DatabaseHealthRequest{})
}

// RecordList pages through records.
func (c *Client) RecordList(req RecordListRequest) (*RecordListResponse, error) {
	return call[RecordListResponse](c, "RecordList", req)
}

// RecordShow fetches one record.
func (c *Client) RecordShow(id string) (*RecordShowResponse, error) {
	return call[RecordShowResponse](c, "RecordShow", RecordShowRequest{ID: id})
}

// RecordSearch searches transcripts.
func (c *Client) RecordSearch(query string, limit int) (*RecordSearchResponse, error) {
	return call[RecordSearchResponse](c, "RecordSearch", RecordSearchRequest{Query: query, Limit: limit})
}

// RecordStats summarizes the record table.
func (c *Client) RecordStats() (*RecordStatsResponse, error) {
	return call[RecordStatsResponse](c, "RecordStats", RecordStatsRequest{})
}

// Events returns event history after since.
func (c *Client) Events(since int64) (*EventsResponse, error) {
	return call[EventsResponse](c, "Events", EventsRequest{Since: since})
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return call[LogTailResponse](c, "LogTail", req)
}

// TestNotification sends a test notification.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
