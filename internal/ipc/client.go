package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Status retrieves the daemon's runtime summary.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Courtside.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Courtside.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StreamRegister adds a stream to the timing registry.
func (c *Client) StreamRegister(req StreamRegisterRequest) (*StreamRegisterResponse, error) {
	var resp StreamRegisterResponse
	if err := c.client.Call("Courtside.StreamRegister", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StreamStop removes a stream and tears down its links.
func (c *Client) StreamStop(id string) (*StreamStopResponse, error) {
	var resp StreamStopResponse
	if err := c.client.Call("Courtside.StreamStop", StreamStopRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StreamList returns the registered streams.
func (c *Client) StreamList() (*StreamListResponse, error) {
	var resp StreamListResponse
	if err := c.client.Call("Courtside.StreamList", StreamListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Link pairs an audio and a visual stream for correlation.
func (c *Client) Link(req LinkRequest) (*LinkResponse, error) {
	var resp LinkResponse
	if err := c.client.Call("Courtside.Link", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Unlink removes a correlation link.
func (c *Client) Unlink(linkID string) (*UnlinkResponse, error) {
	var resp UnlinkResponse
	if err := c.client.Call("Courtside.Unlink", UnlinkRequest{LinkID: linkID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LinkList returns the active correlation links.
func (c *Client) LinkList() (*LinkListResponse, error) {
	var resp LinkListResponse
	if err := c.client.Call("Courtside.LinkList", LinkListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProcessFrame dispatches a single frame through the pool.
func (c *Client) ProcessFrame(req ProcessFrameRequest) (*ProcessFrameResponse, error) {
	var resp ProcessFrameResponse
	if err := c.client.Call("Courtside.ProcessFrame", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail reads daemon log lines.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Courtside.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stats retrieves aggregate processing statistics.
func (c *Client) Stats(eventLimit int) (*StatsResponse, error) {
	var resp StatsResponse
	if err := c.client.Call("Courtside.Stats", StatsRequest{EventLimit: eventLimit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
