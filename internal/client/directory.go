package client

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/matchlink/internal/protocol"
	"github.com/cory-johannsen/matchlink/internal/transport"
)

// GetRegions connects to the directory and requests the region list. The
// result arrives through OnRegions and the directory connection stays open
// for a following ConnectToRegion.
//
// Precondition: Options.DirectoryAddress must be set.
// Postcondition: Returns nil with the state ConnectingToDirectory, or an error.
func (c *Client) GetRegions(ctx context.Context) error {
	return c.openDirectory(ctx, "")
}

// ConnectToRegion authenticates against the directory for region and then
// continues to the matchmaker it resolves.
//
// Precondition: Options.DirectoryAddress must be set and region non-empty.
// Postcondition: Returns nil once the directory stage has started, or an error.
func (c *Client) ConnectToRegion(ctx context.Context, region string) error {
	if region == "" {
		return fmt.Errorf("%w: region must not be empty", ErrInvalidOptions)
	}
	c.mu.Lock()
	if c.state == ConnectedToDirectory && c.directory != nil {
		defer c.unlockAndFlush()
		c.region = region
		return c.sendLocked(c.directory, protocol.OpAuthenticate, c.directoryAuthParams())
	}
	c.mu.Unlock()
	return c.openDirectory(ctx, region)
}

func (c *Client) openDirectory(ctx context.Context, region string) error {
	if c.opts.DirectoryAddress == "" {
		return fmt.Errorf("%w: no directory address", ErrInvalidOptions)
	}
	c.mu.Lock()
	defer c.unlockAndFlush()
	if err := c.transitionLocked(ConnectingToDirectory, false); err != nil {
		return err
	}
	c.ctx = ctx
	c.region = region
	c.secret = ""

	p := c.newPeerLocked(transport.RoleDirectory, c.opts.DirectoryAddress)
	c.directory = p
	c.onStatus(p, transport.StatusConnect, func(error) { c.onDirectoryConnectLocked(p) })
	c.onResponse(p, protocol.OpAuthenticate, c.onDirectoryAuthLocked)
	c.onResponse(p, protocol.OpGetRegions, c.onRegionsLocked)
	return p.Connect(ctx)
}

func (c *Client) directoryAuthParams() []protocol.Param {
	return append(c.credentials(), protocol.P(protocol.ParamRegion, c.region))
}

func (c *Client) onDirectoryConnectLocked(p *transport.Peer) {
	var err error
	if c.region != "" {
		err = c.sendLocked(p, protocol.OpAuthenticate, c.directoryAuthParams())
	} else {
		err = c.sendLocked(p, protocol.OpGetRegions, []protocol.Param{
			protocol.P(protocol.ParamApplicationID, c.opts.AppID),
		})
	}
	if err != nil {
		c.failLocked(CodeDirectoryError, "sending directory request", err)
	}
}

func (c *Client) onRegionsLocked(resp protocol.Response) {
	if !resp.OK() {
		c.failLocked(CodeDirectoryError, fmt.Sprintf("get regions: %s", resp.ErrMsg), nil)
		return
	}
	names, _ := protocol.ToStrings(resp.Params[protocol.ParamRegion])
	addrs, _ := protocol.ToStrings(resp.Params[protocol.ParamAddress])
	regions := make([]Region, 0, len(names))
	for i, name := range names {
		r := Region{Name: name}
		if i < len(addrs) {
			r.Address = addrs[i]
		}
		regions = append(regions, r)
	}
	c.logger.Info("regions received", zap.Int("count", len(regions)))
	c.setStateLocked(ConnectedToDirectory)
	c.emit(func(h Handler) { h.OnRegions(regions) })
}

func (c *Client) onDirectoryAuthLocked(resp protocol.Response) {
	if !resp.OK() {
		c.failLocked(CodeDirectoryAuthFailed, fmt.Sprintf("directory authentication: %s", resp.ErrMsg), nil)
		return
	}
	addr, ok := resp.Params.String(protocol.ParamAddress)
	if !ok || addr == "" {
		c.failLocked(CodeDirectoryError, "directory authentication returned no matchmaker address", nil)
		return
	}
	c.adoptIdentityLocked(resp.Params)
	c.matchmakerAddr = addr
	c.logger.Info("region resolved", zap.String("region", c.region), zap.String("matchmaker", addr))

	c.directory.Disconnect()
	c.directory = nil
	c.setStateLocked(ConnectedToDirectory)
	c.setStateLocked(ConnectingToMatchmaker)
	c.openMatchmakerLocked()
}

// adoptIdentityLocked keeps the secret and user id handed out by a server.
func (c *Client) adoptIdentityLocked(params protocol.Params) {
	if s, ok := params.String(protocol.ParamSecret); ok && s != "" {
		c.secret = s
	}
	if id, ok := params.String(protocol.ParamUserID); ok && id != "" && id != c.userID {
		c.userID = id
		c.model.Local().UserID = id
	}
}
