// Package client consumes simulation artifacts published by a repository:
// node sets, parameter maps and other structured documents. It keeps a
// local copy fresh with a background refresh loop.
package client

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/neurosimlabs/neurodamus/source"
)

type Client struct {
	Repository      source.Repository
	RefreshInterval time.Duration
	cancel          context.CancelFunc
}

// NewClient refreshes the repository once and starts a background
// goroutine that keeps refreshing it at the given interval. The initial
// refresh must succeed so callers never read an empty artifact.
func NewClient(ctx context.Context, repository source.Repository, refreshInterval time.Duration) (*Client, error) {
	ctx, cancel := context.WithCancel(ctx)
	client := &Client{
		Repository:      repository,
		RefreshInterval: refreshInterval,
		cancel:          cancel,
	}

	if err := client.Repository.Refresh(); err != nil {
		cancel()
		return nil, err
	}

	go refresh(ctx, client)
	return client, nil
}

// refresh periodically refreshes the artifact until the context is
// canceled.
func refresh(ctx context.Context, client *Client) {
	ticker := time.NewTicker(client.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := client.Repository.Refresh(); err != nil {
				logrus.WithError(err).Error("error refreshing repository")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close stops the background refresh goroutine.
func (c *Client) Close() {
	c.cancel()
}

// GetEntry retrieves the named entry of the artifact and decodes it into
// the provided pointer. Decoding goes through a yaml round trip so nested
// documents land in typed structs.
func (c *Client) GetEntry(name string, data interface{}) error {
	entry, ok := c.Repository.GetData(name)
	if !ok {
		return errors.New("entry not found")
	}
	marshal, err := yaml.Marshal(entry)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(marshal, data)
}

// GetString retrieves a string entry of the artifact.
func (c *Client) GetString(name string) (string, error) {
	var s string
	if err := c.GetEntry(name, &s); err != nil {
		return "", err
	}
	return s, nil
}

// GetStrings retrieves a list-of-strings entry of the artifact.
func (c *Client) GetStrings(name string) ([]string, error) {
	var out []string
	if err := c.GetEntry(name, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetInt retrieves an integer entry of the artifact.
func (c *Client) GetInt(name string) (int, error) {
	var v int
	if err := c.GetEntry(name, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// GetFloat retrieves a float entry of the artifact.
func (c *Client) GetFloat(name string) (float64, error) {
	var v float64
	if err := c.GetEntry(name, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// GetGIDs retrieves a list of cell gids, the usual payload of node set
// entries.
func (c *Client) GetGIDs(name string) ([]uint64, error) {
	var out []uint64
	if err := c.GetEntry(name, &out); err != nil {
		return nil, err
	}
	return out, nil
}
