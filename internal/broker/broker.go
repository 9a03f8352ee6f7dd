// Package broker talks to the Valkey/Redis instance that distributes
// policies to agents and collects their logs.
//
// Keys are namespaced by agent name: <name>_policy holds the TOML policy,
// <name>_log is a list of formatted log lines (newest first), and
// <name>_details is a hash of per-path change details.
package broker

import (
	"context"
	"fmt"
	"strings"

	"github.com/valkey-io/valkey-go"

	"gfimx/internal/fault"
)

// Broker is the agent's view of the message broker.
type Broker interface {
	GetPolicy(ctx context.Context) (string, error)
	Log(ctx context.Context, msg string) error
	LogDetails(ctx context.Context, key, value string) error
	Close() error
}

// Options configures a Valkey connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Name     string
}

// PolicyKey returns the key holding an agent's policy.
func PolicyKey(name string) string { return name + "_policy" }

// LogKey returns the list an agent pushes log lines to.
func LogKey(name string) string { return name + "_log" }

// DetailsKey returns the hash holding an agent's change details.
func DetailsKey(name string) string { return name + "_details" }

// Valkey implements Broker on valkey-go.
type Valkey struct {
	client valkey.Client
	name   string
}

var _ Broker = (*Valkey)(nil)

func (o Options) validate() error {
	if strings.TrimSpace(o.Addr) == "" {
		return fault.Wrap(fault.ErrConfiguration, "broker", "connect", "broker address is required", nil)
	}
	if strings.TrimSpace(o.Name) == "" {
		return fault.Wrap(fault.ErrConfiguration, "broker", "connect", "agent name is required", nil)
	}
	return nil
}

// NewValkey connects and verifies the broker with a PING.
func NewValkey(ctx context.Context, opts Options) (*Valkey, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	clientOpts := valkey.ClientOption{
		InitAddress: []string{opts.Addr},
		SelectDB:    opts.DB,
	}
	if opts.Password != "" {
		clientOpts.Password = opts.Password
	}

	client, err := valkey.NewClient(clientOpts)
	if err != nil {
		return nil, fault.Wrap(fault.ErrBrokerUnavailable, "broker", "connect", opts.Addr, err)
	}
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fault.Wrap(fault.ErrBrokerUnavailable, "broker", "ping", opts.Addr, err)
	}
	return &Valkey{client: client, name: opts.Name}, nil
}

// Name returns the agent name used for key namespacing.
func (v *Valkey) Name() string { return v.name }

// GetPolicy fetches this agent's policy text.
func (v *Valkey) GetPolicy(ctx context.Context) (string, error) {
	text, err := v.client.Do(ctx, v.client.B().Get().Key(PolicyKey(v.name)).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return "", fault.Wrap(fault.ErrPolicy, "broker", "get policy",
				fmt.Sprintf("no policy published under %s", PolicyKey(v.name)), nil)
		}
		return "", fault.Wrap(fault.ErrBrokerUnavailable, "broker", "get policy", "", err)
	}
	return text, nil
}

// PutPolicy publishes a policy for the named client.
func (v *Valkey) PutPolicy(ctx context.Context, client, text string) error {
	if err := v.client.Do(ctx, v.client.B().Set().Key(PolicyKey(client)).Value(text).Build()).Error(); err != nil {
		return fault.Wrap(fault.ErrBrokerUnavailable, "broker", "put policy", client, err)
	}
	return nil
}

// Log pushes one line onto the agent's log list.
func (v *Valkey) Log(ctx context.Context, msg string) error {
	if err := v.client.Do(ctx, v.client.B().Lpush().Key(LogKey(v.name)).Element(msg).Build()).Error(); err != nil {
		return fault.Wrap(fault.ErrBrokerUnavailable, "broker", "log", "", err)
	}
	return nil
}

// LogDetails records a field in the agent's details hash.
func (v *Valkey) LogDetails(ctx context.Context, key, value string) error {
	cmd := v.client.B().Hset().Key(DetailsKey(v.name)).FieldValue().FieldValue(key, value).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fault.Wrap(fault.ErrBrokerUnavailable, "broker", "log details", key, err)
	}
	return nil
}

// Logs returns up to limit of the newest log lines for the named client.
func (v *Valkey) Logs(ctx context.Context, client string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	lines, err := v.client.Do(ctx, v.client.B().Lrange().Key(LogKey(client)).Start(0).Stop(int64(limit-1)).Build()).AsStrSlice()
	if err != nil {
		return nil, fault.Wrap(fault.ErrBrokerUnavailable, "broker", "read logs", client, err)
	}
	return lines, nil
}

// Close releases the client.
func (v *Valkey) Close() error {
	v.client.Close()
	return nil
}
